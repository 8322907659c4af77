package core

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"donations/internal/locale"
)

const (
	USD Currency = "USD"
	TRY Currency = "TRY"
	SYP Currency = "SYP"

	// BaseCurrency is the currency every rate is expressed against.
	BaseCurrency = USD
)

// Currencies lists the supported currencies in display order.
var Currencies = []Currency{USD, TRY, SYP}

type (
	Currency string

	// ID identifies a donation for its whole lifetime.
	ID string

	Donation struct {
		ID        ID        `json:"id"`
		Name      string    `json:"name"`
		Amount    float64   `json:"amount"`
		Currency  Currency  `json:"currency"`
		Time      string    `json:"time"`      // display time, refreshed on edit
		Date      time.Time `json:"date"`      // creation instant
		Timestamp int64     `json:"timestamp"` // creation instant, unix millis
	}

	// RateTable maps a currency to units of it per one unit of BaseCurrency.
	RateTable map[Currency]float64
)

var currencySymbols = map[Currency]string{
	USD: "$",
	TRY: "₺",
	SYP: "ل.س",
}

// IsValid reports whether c is one of the supported currencies.
func (c Currency) IsValid() bool {
	_, ok := currencySymbols[c]
	return ok
}

// Symbol returns the display symbol, or the code itself for unknown currencies.
func (c Currency) Symbol() string {
	if s, ok := currencySymbols[c]; ok {
		return s
	}
	return string(c)
}

// Class returns the lowercase code used as a CSS class.
func (c Currency) Class() string {
	return strings.ToLower(string(c))
}

func (c Currency) String() string {
	return string(c)
}

// ParseCurrency normalises and validates a currency code.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	return c, nil
}

// NewID returns a fresh random identifier.
func NewID() ID {
	return ID(uuid.NewString())
}

// UnmarshalJSON accepts both string ids and the numeric ids found in
// older backup files.
func (id *ID) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("donation id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

// NewDonation validates the input and builds a record stamped with now.
func NewDonation(name string, amount float64, currency Currency, now time.Time) (Donation, error) {
	d := Donation{
		ID:        NewID(),
		Name:      strings.TrimSpace(name),
		Amount:    RoundAmount(amount),
		Currency:  currency,
		Time:      locale.FormatTime(now),
		Date:      now,
		Timestamp: now.UnixMilli(),
	}
	if err := d.Validate(); err != nil {
		return Donation{}, err
	}
	return d, nil
}

func (d Donation) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidName
	}
	if !validAmount(d.Amount) {
		return ErrInvalidAmount
	}
	if !d.Currency.IsValid() {
		return ErrInvalidCurrency
	}
	return nil
}

// MaxAmount bounds a single donation and a single rate so that totals and
// conversions stay finite.
const MaxAmount = 1e12

func validAmount(v float64) bool {
	return v > 0 && v <= MaxAmount && !math.IsNaN(v)
}

// DefaultRates returns the seed table used when nothing was persisted.
func DefaultRates() RateTable {
	return RateTable{
		USD: 1,
		TRY: 50,
		SYP: 5000,
	}
}

// Clone returns an independent copy.
func (r RateTable) Clone() RateTable {
	out := make(RateTable, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Validate checks that every supported currency has a positive rate and
// that the base currency is pinned to 1.
func (r RateTable) Validate() error {
	for c := range r {
		if !c.IsValid() {
			return fmt.Errorf("%w: unsupported currency %q", ErrInvalidRate, c)
		}
	}
	for _, c := range Currencies {
		v, ok := r[c]
		if !ok {
			return fmt.Errorf("%w: missing rate for %s", ErrInvalidRate, c)
		}
		if !validAmount(v) {
			return fmt.Errorf("%w: %s must be positive and at most %g", ErrInvalidRate, c, float64(MaxAmount))
		}
	}
	if r[BaseCurrency] != 1 {
		return fmt.Errorf("%w: base currency %s must be 1", ErrInvalidRate, BaseCurrency)
	}
	return nil
}
