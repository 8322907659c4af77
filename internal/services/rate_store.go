package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"donations/internal/broadcast"
	"donations/internal/core"
	"donations/internal/log"
	"donations/internal/storage"
)

// RateStore owns the exchange-rate table.
type RateStore struct {
	kv       storage.KV
	notifier ChangeNotifier

	mu    sync.Mutex
	rates core.RateTable
}

func NewRateStore(kv storage.KV, notifier ChangeNotifier) *RateStore {
	if notifier == nil {
		notifier = nopNotifier{}
	}
	return &RateStore{kv: kv, notifier: notifier, rates: core.DefaultRates()}
}

// Get returns a copy of the current table.
func (s *RateStore) Get() core.RateTable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rates.Clone()
}

// Set merges update onto the current table. Nothing changes when the merged
// table is invalid.
func (s *RateStore) Set(ctx context.Context, update core.RateTable) error {
	s.mu.Lock()
	merged := s.rates.Clone()
	for c, v := range update {
		merged[c] = v
	}
	if err := merged.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.rates = merged
	perr := s.persistLocked(ctx)
	s.mu.Unlock()

	s.notifier.Notify(ctx, broadcast.ScopeRates, perr == nil)
	return perr
}

// Reload re-reads the persisted table, falling back to the defaults when it
// is missing or unusable.
func (s *RateStore) Reload(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, storage.KeyRates)
	if err != nil {
		return &core.PersistenceError{Op: "load rates", Err: err}
	}

	rates := core.DefaultRates()
	if ok {
		var stored core.RateTable
		if err := json.Unmarshal(raw, &stored); err != nil {
			slog.WarnContext(ctx, "Stored exchange rates are corrupted, using defaults", log.FieldError, err)
		} else {
			for c, v := range stored {
				rates[c] = v
			}
			if err := rates.Validate(); err != nil {
				slog.WarnContext(ctx, "Stored exchange rates are invalid, using defaults", log.FieldError, err)
				rates = core.DefaultRates()
			}
		}
	}

	s.mu.Lock()
	s.rates = rates
	s.mu.Unlock()
	return nil
}

func (s *RateStore) persistLocked(ctx context.Context) error {
	raw, err := json.Marshal(s.rates)
	if err != nil {
		return &core.PersistenceError{Op: "rates", Err: err}
	}
	if err := s.kv.Set(ctx, storage.KeyRates, raw); err != nil {
		slog.ErrorContext(ctx, "Failed to persist exchange rates", log.FieldError, err)
		return &core.PersistenceError{Op: "rates", Err: err}
	}
	return nil
}
