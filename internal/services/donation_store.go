package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"donations/internal/broadcast"
	"donations/internal/core"
	"donations/internal/locale"
	"donations/internal/log"
	"donations/internal/storage"
)

// DonationStore owns the donation collection, most recent first. Every
// mutation is written through to the KV and announced to the notifier.
type DonationStore struct {
	kv       storage.KV
	notifier ChangeNotifier
	now      func() time.Time

	mu    sync.Mutex
	items []core.Donation
}

func NewDonationStore(kv storage.KV, notifier ChangeNotifier, now func() time.Time) *DonationStore {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	if now == nil {
		now = time.Now
	}
	return &DonationStore{kv: kv, notifier: notifier, now: now}
}

// Add validates the input and prepends a new donation.
func (s *DonationStore) Add(ctx context.Context, name string, amount float64, currency core.Currency) (core.Donation, error) {
	d, err := core.NewDonation(name, amount, currency, s.now())
	if err != nil {
		return core.Donation{}, err
	}

	s.mu.Lock()
	s.items = append([]core.Donation{d}, s.items...)
	perr := s.persistLocked(ctx, "add")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return d, perr
}

// Edit replaces name, amount and currency of an existing donation. Its id,
// position and creation time are kept; the display time is refreshed.
func (s *DonationStore) Edit(ctx context.Context, id core.ID, name string, amount float64, currency core.Currency) (core.Donation, error) {
	now := s.now()

	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return core.Donation{}, fmt.Errorf("edit %s: %w", id, core.ErrNotFound)
	}

	updated := s.items[idx]
	updated.Name = strings.TrimSpace(name)
	updated.Amount = core.RoundAmount(amount)
	updated.Currency = currency
	updated.Time = locale.FormatTime(now)
	if err := updated.Validate(); err != nil {
		s.mu.Unlock()
		return core.Donation{}, err
	}

	s.items[idx] = updated
	perr := s.persistLocked(ctx, "edit")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return updated, perr
}

// Delete removes id and reports whether it existed. Nothing is written when
// the id is unknown.
func (s *DonationStore) Delete(ctx context.Context, id core.ID) (bool, error) {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.items = append(s.items[:idx:idx], s.items[idx+1:]...)
	perr := s.persistLocked(ctx, "delete")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return true, perr
}

// DeleteMany removes every listed id in one write and returns how many
// were removed.
func (s *DonationStore) DeleteMany(ctx context.Context, ids []core.ID, confirmed bool) (int, error) {
	if !confirmed {
		return 0, core.ErrNotConfirmed
	}
	if len(ids) == 0 {
		return 0, nil
	}
	drop := make(map[core.ID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	kept := make([]core.Donation, 0, len(s.items))
	for _, d := range s.items {
		if _, ok := drop[d.ID]; !ok {
			kept = append(kept, d)
		}
	}
	removed := len(s.items) - len(kept)
	if removed == 0 {
		s.mu.Unlock()
		return 0, nil
	}
	s.items = kept
	perr := s.persistLocked(ctx, "delete many")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return removed, perr
}

// Import prepends a batch, keeping the batch order. The whole batch is
// rejected when any record is invalid.
func (s *DonationStore) Import(ctx context.Context, batch []core.Donation) (int, error) {
	if len(batch) == 0 {
		return 0, nil
	}
	prepared, err := prepare(batch)
	if err != nil {
		return 0, fmt.Errorf("import: %w", err)
	}

	s.mu.Lock()
	s.items = append(prepared, s.items...)
	perr := s.persistLocked(ctx, "import")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return len(prepared), perr
}

// Replace swaps the whole collection, as done by a restore.
func (s *DonationStore) Replace(ctx context.Context, ds []core.Donation, confirmed bool) error {
	if !confirmed {
		return core.ErrNotConfirmed
	}
	prepared, err := prepare(ds)
	if err != nil {
		return fmt.Errorf("replace: %w", err)
	}

	s.mu.Lock()
	s.items = prepared
	perr := s.persistLocked(ctx, "replace")
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeDonations, perr == nil)
	return perr
}

// All returns a copy of the collection, most recent first.
func (s *DonationStore) All() []core.Donation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Donation(nil), s.items...)
}

// Get returns the donation with id.
func (s *DonationStore) Get(id core.ID) (core.Donation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.items[idx], true
	}
	return core.Donation{}, false
}

// Reload replaces the in-memory collection with the persisted one. Missing
// or unreadable data yields an empty collection.
func (s *DonationStore) Reload(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, storage.KeyDonations)
	if err != nil {
		return &core.PersistenceError{Op: "load donations", Err: err}
	}

	var items []core.Donation
	if ok {
		if err := json.Unmarshal(raw, &items); err != nil {
			slog.WarnContext(ctx, "Stored donations are corrupted, starting empty", log.FieldError, err)
			items = nil
		}
	}

	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
	return nil
}

func (s *DonationStore) indexLocked(id core.ID) int {
	for i, d := range s.items {
		if d.ID == id {
			return i
		}
	}
	return -1
}

func (s *DonationStore) persistLocked(ctx context.Context, op string) error {
	items := s.items
	if items == nil {
		items = []core.Donation{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return &core.PersistenceError{Op: op, Err: err}
	}
	if err := s.kv.Set(ctx, storage.KeyDonations, raw); err != nil {
		slog.ErrorContext(ctx, "Failed to persist donations", log.FieldOperation, op, log.FieldError, err)
		return &core.PersistenceError{Op: op, Err: err}
	}
	return nil
}

// prepare validates a batch and fills in missing ids.
func prepare(ds []core.Donation) ([]core.Donation, error) {
	out := make([]core.Donation, len(ds))
	for i, d := range ds {
		if d.ID == "" {
			d.ID = core.NewID()
		}
		if err := d.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", i+1, err)
		}
		out[i] = d
	}
	return out, nil
}
