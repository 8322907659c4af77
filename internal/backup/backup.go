// Package backup encodes and restores full JSON snapshots of the donation
// state.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"donations/internal/core"
)

// Version is written into every backup this package produces.
const Version = "2.0"

// Document is the on-disk backup layout.
type Document struct {
	Donations     []core.Donation `json:"donations"`
	ExchangeRates core.RateTable  `json:"exchangeRates,omitempty"`
	BackupDate    time.Time       `json:"backupDate"`
	Version       string          `json:"version"`
}

// wireDocument keeps the raw donations so a missing or mistyped field can be
// told apart from an empty list.
type wireDocument struct {
	Donations     json.RawMessage `json:"donations"`
	ExchangeRates core.RateTable  `json:"exchangeRates"`
	BackupDate    string          `json:"backupDate"`
	Version       string          `json:"version"`
}

type (
	DonationReplacer interface {
		Replace(ctx context.Context, ds []core.Donation, confirmed bool) error
	}

	RateSetter interface {
		Set(ctx context.Context, rates core.RateTable) error
	}
)

// New snapshots the given state.
func New(donations []core.Donation, rates core.RateTable, now time.Time) Document {
	if donations == nil {
		donations = []core.Donation{}
	}
	return Document{
		Donations:     donations,
		ExchangeRates: rates.Clone(),
		BackupDate:    now.UTC(),
		Version:       Version,
	}
}

// Encode writes doc as indented JSON.
func Encode(w io.Writer, doc Document) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode backup: %w", err)
	}
	return nil
}

// FileName names a backup produced at now.
func FileName(now time.Time) string {
	return "donations_backup_" + now.Format("2006-01-02") + ".json"
}

// Decode parses and validates a backup. Every failure wraps
// core.ErrBackupFormat. Records without an id are given a fresh one.
func Decode(r io.Reader) (Document, error) {
	var wire wireDocument
	if err := json.NewDecoder(r).Decode(&wire); err != nil {
		return Document{}, fmt.Errorf("%w: %v", core.ErrBackupFormat, err)
	}
	raw := bytes.TrimSpace(wire.Donations)
	if len(raw) == 0 || raw[0] != '[' {
		return Document{}, fmt.Errorf("%w: donations must be an array", core.ErrBackupFormat)
	}

	var ds []core.Donation
	if err := json.Unmarshal(raw, &ds); err != nil {
		return Document{}, fmt.Errorf("%w: %v", core.ErrBackupFormat, err)
	}
	for i := range ds {
		if ds[i].ID == "" {
			ds[i].ID = core.NewID()
		}
		if err := ds[i].Validate(); err != nil {
			return Document{}, fmt.Errorf("%w: record %d: %v", core.ErrBackupFormat, i+1, err)
		}
	}

	doc := Document{Donations: ds, Version: wire.Version}
	if doc.Donations == nil {
		doc.Donations = []core.Donation{}
	}
	if wire.ExchangeRates != nil {
		rates := core.DefaultRates()
		for c, v := range wire.ExchangeRates {
			rates[c] = v
		}
		if err := rates.Validate(); err != nil {
			return Document{}, fmt.Errorf("%w: %v", core.ErrBackupFormat, err)
		}
		doc.ExchangeRates = rates
	}
	if t, err := time.Parse(time.RFC3339Nano, wire.BackupDate); err == nil {
		doc.BackupDate = t
	}
	return doc, nil
}

// Restore replaces the donations and, when the backup carries them, the
// exchange rates. Validation problems leave both stores untouched.
// Persistence failures are reported after both stores were updated.
func Restore(ctx context.Context, doc Document, donations DonationReplacer, rates RateSetter, confirmed bool) error {
	if !confirmed {
		return core.ErrNotConfirmed
	}
	if doc.ExchangeRates != nil {
		if err := doc.ExchangeRates.Validate(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrBackupFormat, err)
		}
	}

	var perr error
	if err := donations.Replace(ctx, doc.Donations, true); err != nil {
		if !core.IsPersistence(err) {
			return err
		}
		perr = err
	}
	if doc.ExchangeRates != nil {
		if err := rates.Set(ctx, doc.ExchangeRates); err != nil && perr == nil {
			perr = err
		}
	}
	return perr
}
