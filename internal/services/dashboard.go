package services

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"donations/internal/cache"
	"donations/internal/core"
	"donations/internal/log"
)

type (
	// ViewKey identifies a filtered view within one refresh generation.
	ViewKey struct {
		Generation uint64
		Filter     core.Currency
		Search     string
	}

	DonationSource interface {
		All() []core.Donation
	}

	RateSource interface {
		Get() core.RateTable
	}
)

// Dashboard recomputes the view model from the stores. Nothing derived is
// kept across a Refresh except the selection, which is pruned to ids that
// still exist.
type Dashboard struct {
	donations DonationSource
	rates     RateSource
	selection *core.Selection
	views     cache.Cache[ViewKey, core.View]
	now       func() time.Time

	mu         sync.Mutex
	generation uint64
	current    core.View
	sinks      []ViewSink
}

func NewDashboard(donations DonationSource, rates RateSource, selection *core.Selection, views cache.Cache[ViewKey, core.View], now func() time.Time) *Dashboard {
	if now == nil {
		now = time.Now
	}
	if views == nil {
		views = cache.NewLRU[ViewKey, core.View](16, time.Minute)
	}
	return &Dashboard{
		donations: donations,
		rates:     rates,
		selection: selection,
		views:     views,
		now:       now,
	}
}

// AddSink registers s to receive every refreshed view.
func (d *Dashboard) AddSink(s ViewSink) {
	d.mu.Lock()
	d.sinks = append(d.sinks, s)
	d.mu.Unlock()
}

// Refresh rebuilds the unfiltered view and hands it to every sink.
func (d *Dashboard) Refresh(ctx context.Context, reason string) core.View {
	return d.rebuild(ctx, reason, true)
}

// RefreshSelection rebuilds the view after the admin selection changed.
// Sinks are not told: nothing they publish depends on the selection.
func (d *Dashboard) RefreshSelection(ctx context.Context) core.View {
	return d.rebuild(ctx, "selection", false)
}

func (d *Dashboard) rebuild(ctx context.Context, reason string, notify bool) core.View {
	d.mu.Lock()
	ds := d.donations.All()
	if dropped := d.selection.Retain(core.IDs(ds)); dropped > 0 {
		slog.DebugContext(ctx, "Pruned stale selection", log.FieldCount, dropped)
	}
	v := core.Aggregate(core.AggregateInput{
		Donations: ds,
		Rates:     d.rates.Get(),
		Selection: d.selection,
		Now:       d.now(),
	})
	d.generation++
	d.current = v
	d.views.Purge()
	gen := d.generation
	var sinks []ViewSink
	if notify {
		sinks = append(sinks, d.sinks...)
	}
	d.mu.Unlock()

	slog.DebugContext(ctx, "View refreshed", log.FieldReason, reason, log.FieldGeneration, gen, log.FieldCount, v.TotalCount)

	for _, s := range sinks {
		s.ViewUpdated(ctx, v)
	}
	return v
}

// View returns the view for a currency filter; an empty filter is the
// default view.
func (d *Dashboard) View(ctx context.Context, filter core.Currency) core.View {
	return d.Query(ctx, filter, "")
}

// Query returns the view whose managed list is narrowed by filter and
// search. Narrowed views are cached until the next rebuild.
func (d *Dashboard) Query(ctx context.Context, filter core.Currency, search string) core.View {
	search = strings.TrimSpace(search)
	d.mu.Lock()
	gen := d.generation
	current := d.current
	d.mu.Unlock()

	if gen == 0 {
		current = d.Refresh(ctx, "first view")
		gen = d.Generation()
	}
	if filter == "" && search == "" {
		return current
	}

	key := ViewKey{Generation: gen, Filter: filter, Search: search}
	if v, ok := d.views.Get(key); ok {
		return v
	}

	v := core.Aggregate(core.AggregateInput{
		Donations: d.donations.All(),
		Rates:     d.rates.Get(),
		Selection: d.selection,
		Filter:    filter,
		Search:    search,
		Now:       d.now(),
	})

	d.mu.Lock()
	if d.generation == gen {
		d.views.Set(key, v)
	}
	d.mu.Unlock()
	return v
}

// Generation counts completed refreshes.
func (d *Dashboard) Generation() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.generation
}
