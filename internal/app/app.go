// Package app assembles the donation state shared by the HTTP server and
// the admin CLI.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"donations/internal/backup"
	"donations/internal/broadcast"
	"donations/internal/cache"
	"donations/internal/core"
	"donations/internal/log"
	"donations/internal/services"
	"donations/internal/sheets"
	"donations/internal/storage"
)

// Options tunes an App. Zero values pick the defaults.
type Options struct {
	HeartbeatInterval time.Duration
	ViewCacheSize     int
	ViewCacheTTL      time.Duration
	Now               func() time.Time
	Logger            *log.Logger
}

// App owns the stores, the admin selection and the derived view of one
// process. Other processes sharing the same storage and bus converge through
// the sync monitor and the heartbeat.
type App struct {
	Origin    string
	Donations *services.DonationStore
	Rates     *services.RateStore
	Selection *core.Selection
	Dashboard *services.Dashboard

	kv        storage.KV
	bus       broadcast.Bus
	monitor   *services.SyncMonitor
	heartbeat *services.Heartbeat
	janitor   *cache.Janitor
	now       func() time.Time
	logger    *log.Logger
}

// New loads the persisted state and wires the change pipeline.
func New(ctx context.Context, kv storage.KV, bus broadcast.Bus, opts Options) (*App, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.ViewCacheSize <= 0 {
		opts.ViewCacheSize = 16
	}
	if opts.ViewCacheTTL <= 0 {
		opts.ViewCacheTTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.New(log.DefaultConfig())
	}
	logger := opts.Logger.WithComponent(log.ComponentApp)

	origin := uuid.NewString()
	marker, err := storage.ReadMarker(ctx, kv)
	if err != nil {
		return nil, fmt.Errorf("read change marker: %w", err)
	}
	tracker := services.NewChangeTracker(marker)

	notifier := services.NewBusNotifier(kv, bus, origin, tracker, opts.Now)
	donations := services.NewDonationStore(kv, notifier, opts.Now)
	rates := services.NewRateStore(kv, notifier)
	if err := donations.Reload(ctx); err != nil {
		return nil, err
	}
	if err := rates.Reload(ctx); err != nil {
		return nil, err
	}

	views := cache.NewLRU[services.ViewKey, core.View](opts.ViewCacheSize, opts.ViewCacheTTL)

	selection := core.NewSelection()
	dashboard := services.NewDashboard(donations, rates, selection, views, opts.Now)
	notifier.SetRefresher(dashboard)

	a := &App{
		Origin:    origin,
		Donations: donations,
		Rates:     rates,
		Selection: selection,
		Dashboard: dashboard,
		kv:        kv,
		bus:       bus,
		heartbeat: services.NewHeartbeat(kv, opts.HeartbeatInterval, tracker, dashboard, donations, rates),
		janitor:   cache.NewJanitor(time.Minute, views),
		now:       opts.Now,
		logger:    logger,
	}
	if bus != nil {
		a.monitor = services.NewSyncMonitor(bus, origin, tracker, dashboard, donations, rates)
	}

	logger.InfoContext(ctx, "State loaded",
		log.FieldOrigin, origin,
		log.FieldMarker, marker,
		log.FieldCount, len(donations.All()))
	return a, nil
}

// Run drives the sync monitor, the heartbeat and the view cache janitor
// until ctx is done.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.janitor.Run(ctx) })
	if a.monitor != nil {
		g.Go(func() error { return a.monitor.Run(ctx) })
	}
	g.Go(func() error { return a.heartbeat.Run(ctx) })
	return g.Wait()
}

// Now returns the application clock.
func (a *App) Now() time.Time {
	return a.now()
}

// ToggleSelection flips id in the admin selection.
func (a *App) ToggleSelection(ctx context.Context, id core.ID) bool {
	selected := a.Selection.Toggle(id)
	a.Dashboard.RefreshSelection(ctx)
	return selected
}

// SelectAll selects every donation listed under filter and search, as
// the admin list shows them, and returns how many matched.
func (a *App) SelectAll(ctx context.Context, filter core.Currency, search string) int {
	ds := core.SearchDonations(core.FilterByCurrency(a.Donations.All(), filter), search)
	a.Selection.SelectAll(core.IDs(ds))
	a.Dashboard.RefreshSelection(ctx)
	return len(ds)
}

func (a *App) ClearSelection(ctx context.Context) {
	a.Selection.Clear()
	a.Dashboard.RefreshSelection(ctx)
}

// DeleteSelected removes every selected donation and reports how many were
// removed, counted before the selection is cleared. Selected ids that
// another process already deleted are not counted. The selection is
// cleared once the records are gone from memory, even if persisting the
// result failed.
func (a *App) DeleteSelected(ctx context.Context, confirmed bool) (int, error) {
	if !confirmed {
		return 0, core.ErrNotConfirmed
	}
	ids := a.Selection.IDs()
	if len(ids) == 0 {
		return 0, nil
	}
	removed, err := a.Donations.DeleteMany(ctx, ids, true)
	if err != nil && !core.IsPersistence(err) {
		return 0, err
	}
	a.Selection.Clear()
	a.Dashboard.RefreshSelection(ctx)

	a.logger.InfoContext(ctx, "Selected donations deleted", log.NewFields().
		WithOperation(log.OpDelete).
		WithCount(removed).ToSlice()...)
	return removed, err
}

// ImportRows converts spreadsheet rows and prepends them to the collection.
func (a *App) ImportRows(ctx context.Context, rows []sheets.Row) (int, error) {
	ds, err := sheets.ToDonations(rows, a.now())
	if err != nil {
		return 0, err
	}
	n, err := a.Donations.Import(ctx, ds)
	if n > 0 {
		a.logger.InfoContext(ctx, "Donations imported", log.NewFields().
			WithOperation(log.OpImport).
			WithCount(n).ToSlice()...)
	}
	return n, err
}

// ExportGrid renders the collection for a spreadsheet.
func (a *App) ExportGrid() [][]any {
	return sheets.FromDonations(a.Donations.All())
}

// Backup snapshots the current state.
func (a *App) Backup() backup.Document {
	return backup.New(a.Donations.All(), a.Rates.Get(), a.now())
}

// Restore replaces the state with doc.
func (a *App) Restore(ctx context.Context, doc backup.Document, confirmed bool) error {
	if err := backup.Restore(ctx, doc, a.Donations, a.Rates, confirmed); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "Backup restored", log.NewFields().
		WithOperation(log.OpRestore).
		WithCount(len(doc.Donations)).ToSlice()...)
	return nil
}
