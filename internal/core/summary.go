package core

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"donations/internal/locale"
)

const (
	TopN           = 5
	RecentN        = 10
	RecentPanelN   = 5
	SidebarRecentN = 3
)

type (
	// CurrencyTotal is the sum of donations in a single currency.
	CurrencyTotal struct {
		Currency Currency `json:"currency"`
		Amount   float64  `json:"amount"`
	}

	CurrencyStats struct {
		Currency Currency `json:"currency"`
		Count    int      `json:"count"`
		Sum      float64  `json:"sum"`
		Max      float64  `json:"max"`
	}

	// ManagedDonation is a row of the administration list.
	ManagedDonation struct {
		Donation
		Selected bool `json:"selected"`
	}

	// Selector reports whether a donation is marked for bulk operations.
	Selector interface {
		Has(id ID) bool
	}

	AggregateInput struct {
		Donations []Donation
		Rates     RateTable
		Selection Selector
		Filter    Currency // empty means all currencies
		// Search narrows Managed to rows containing it, case-insensitively.
		Search string
		Now    time.Time
	}

	// View is everything the display and admin pages render.
	View struct {
		Totals        []CurrencyTotal         `json:"totals"`
		Top           map[Currency][]Donation `json:"top"`
		Recent        []Donation              `json:"recent"`
		RecentPanel   []Donation              `json:"recent_panel"`
		SidebarRecent []Donation              `json:"sidebar_recent"`
		Stats         []CurrencyStats         `json:"stats"`
		DonorCount    int                     `json:"donor_count"`
		TotalCount    int                     `json:"total_count"`
		TodayCount    int                     `json:"today_count"`
		Managed       []ManagedDonation       `json:"managed"`
		SelectedCount int                     `json:"selected_count"`
		Filter        Currency                `json:"filter"`
		Search        string                  `json:"search,omitempty"`
		Rates         RateTable               `json:"rates"`
		GeneratedAt   time.Time               `json:"generated_at"`
	}
)

// Aggregate derives a full View from a donation snapshot. Nothing is
// carried over between calls.
func Aggregate(in AggregateInput) View {
	ds := in.Donations
	v := View{
		Top:           make(map[Currency][]Donation, len(Currencies)),
		Recent:        head(ds, RecentN),
		RecentPanel:   head(ds, RecentPanelN),
		SidebarRecent: head(ds, SidebarRecentN),
		TotalCount:    len(ds),
		Filter:        in.Filter,
		Search:        in.Search,
		Rates:         in.Rates.Clone(),
		GeneratedAt:   in.Now,
	}

	sums := make(map[Currency]float64, len(Currencies))
	stats := make(map[Currency]*CurrencyStats, len(Currencies))
	for _, c := range Currencies {
		stats[c] = &CurrencyStats{Currency: c}
	}
	donors := make(map[string]struct{})
	for _, d := range ds {
		sums[d.Currency] += d.Amount
		if st, ok := stats[d.Currency]; ok {
			st.Count++
			st.Sum += d.Amount
			if d.Amount > st.Max {
				st.Max = d.Amount
			}
		}
		donors[d.Name] = struct{}{}
		if !d.Date.IsZero() && SameDay(d.Date, in.Now) {
			v.TodayCount++
		}
		if in.Selection != nil && in.Selection.Has(d.ID) {
			v.SelectedCount++
		}
	}
	v.DonorCount = len(donors)

	for _, c := range Currencies {
		v.Totals = append(v.Totals, CurrencyTotal{Currency: c, Amount: sums[c]})
		v.Stats = append(v.Stats, *stats[c])
		v.Top[c] = TopByAmount(ds, c, TopN)
	}

	for _, d := range SearchDonations(FilterByCurrency(ds, in.Filter), in.Search) {
		selected := in.Selection != nil && in.Selection.Has(d.ID)
		v.Managed = append(v.Managed, ManagedDonation{Donation: d, Selected: selected})
	}
	return v
}

// Total returns the running total for c.
func (v View) Total(c Currency) float64 {
	for _, t := range v.Totals {
		if t.Currency == c {
			return t.Amount
		}
	}
	return 0
}

// StatsFor returns the statistics row for c.
func (v View) StatsFor(c Currency) CurrencyStats {
	for _, s := range v.Stats {
		if s.Currency == c {
			return s
		}
	}
	return CurrencyStats{Currency: c}
}

// FilterByCurrency returns the donations in c, keeping order. An empty
// currency matches everything.
func FilterByCurrency(ds []Donation, c Currency) []Donation {
	out := make([]Donation, 0, len(ds))
	for _, d := range ds {
		if c == "" || d.Currency == c {
			out = append(out, d)
		}
	}
	return out
}

// SearchDonations keeps the donations whose name, amount, currency or
// time contain q, ignoring case. Amounts match in both ASCII and
// Arabic-Indic digits. A blank q keeps everything.
func SearchDonations(ds []Donation, q string) []Donation {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return ds
	}
	out := make([]Donation, 0, len(ds))
	for _, d := range ds {
		if d.matches(q) {
			out = append(out, d)
		}
	}
	return out
}

func (d Donation) matches(q string) bool {
	amount := strconv.FormatFloat(d.Amount, 'f', -1, 64)
	hay := strings.ToLower(strings.Join([]string{
		d.Name,
		amount,
		locale.ArabicDigits(amount),
		locale.FormatAmount(d.Amount),
		string(d.Currency),
		d.Currency.Symbol(),
		d.Time,
	}, "\x00"))
	return strings.Contains(hay, q)
}

// TopByAmount returns the n largest donations in c, largest first. Equal
// amounts keep their list order.
func TopByAmount(ds []Donation, c Currency, n int) []Donation {
	if c == "" {
		return nil
	}
	out := FilterByCurrency(ds, c)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Amount > out[j].Amount })
	return head(out, n)
}

// SameDay reports whether a falls on the same calendar day as b, in b's
// location.
func SameDay(a, b time.Time) bool {
	a = a.In(b.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// IDs returns the ids of ds in order.
func IDs(ds []Donation) []ID {
	out := make([]ID, len(ds))
	for i, d := range ds {
		out[i] = d.ID
	}
	return out
}

func head(ds []Donation, n int) []Donation {
	if len(ds) < n {
		n = len(ds)
	}
	out := make([]Donation, n)
	copy(out, ds[:n])
	return out
}
