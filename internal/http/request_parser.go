package http

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"donations/internal/core"
	"donations/internal/locale"
)

// donationForm holds the raw add/edit form values so a rejected form can be
// shown again as the user typed it.
type donationForm struct {
	ID       core.ID
	Name     string
	Amount   string
	Currency string
}

// ParseDonationForm reads the add/edit form fields.
func ParseDonationForm(form url.Values) donationForm {
	return donationForm{
		Name:     sanitizeInput(form.Get("name")),
		Amount:   strings.TrimSpace(form.Get("amount")),
		Currency: strings.TrimSpace(form.Get("currency")),
	}
}

// Validate checks the fields in the order they appear on the form.
func (f donationForm) Validate() (name string, amount float64, currency core.Currency, err error) {
	if f.Name == "" {
		return "", 0, "", core.ErrInvalidName
	}
	if amount, err = core.ParseAmount(f.Amount); err != nil {
		return "", 0, "", err
	}
	if currency, err = core.ParseCurrency(f.Currency); err != nil {
		return "", 0, "", err
	}
	return f.Name, amount, currency, nil
}

// ParseCurrencyFilter reads the optional currency filter. Empty and "all"
// select every currency.
func ParseCurrencyFilter(values url.Values) (core.Currency, error) {
	v := strings.TrimSpace(values.Get("currency"))
	if v == "" || strings.EqualFold(v, "all") {
		return "", nil
	}
	return core.ParseCurrency(v)
}

// ParseSearch reads the admin search text from ?q=.
func ParseSearch(values url.Values) string {
	return sanitizeInput(values.Get("q"))
}

// ParseRatesForm reads one field per non-base currency, named after its
// code. Missing fields leave the stored rate unchanged.
func ParseRatesForm(form url.Values) (core.RateTable, error) {
	rates := core.RateTable{}
	for _, c := range core.Currencies {
		if c == core.BaseCurrency {
			continue
		}
		raw := strings.TrimSpace(form.Get(string(c)))
		if raw == "" {
			continue
		}
		v, err := parseNumber(raw)
		if err != nil || v <= 0 {
			return nil, fmt.Errorf("%w: %s", core.ErrInvalidRate, c)
		}
		rates[c] = v
	}
	if len(rates) == 0 {
		return nil, fmt.Errorf("%w: no rates given", core.ErrInvalidRate)
	}
	return rates, nil
}

// IsConfirmed reports whether the confirmation checkbox was ticked.
func IsConfirmed(form url.Values) bool {
	switch strings.ToLower(strings.TrimSpace(form.Get("confirmed"))) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}

// parseNumber accepts Arabic-Indic digits and a decimal comma. NaN and
// infinities are rejected.
func parseNumber(s string) (float64, error) {
	s = strings.ReplaceAll(locale.ASCIIDigits(strings.TrimSpace(s)), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
