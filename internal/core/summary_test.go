package core

import (
	"fmt"
	"testing"
	"time"
)

func donation(id, name string, amount float64, c Currency, at time.Time) Donation {
	return Donation{ID: ID(id), Name: name, Amount: amount, Currency: c, Date: at, Timestamp: at.UnixMilli()}
}

func TestAggregateScenarioAliSara(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var ds []Donation

	ds = append([]Donation{donation("1", "Ali", 10, USD, now)}, ds...)
	v := Aggregate(AggregateInput{Donations: ds, Rates: DefaultRates(), Now: now})
	if v.Total(USD) != 10 {
		t.Fatalf("total after Ali = %v", v.Total(USD))
	}

	ds = append([]Donation{donation("2", "Sara", 5, USD, now)}, ds...)
	v = Aggregate(AggregateInput{Donations: ds, Rates: DefaultRates(), Now: now})
	if v.Total(USD) != 15 {
		t.Fatalf("total after Sara = %v", v.Total(USD))
	}
	top := v.Top[USD]
	if len(top) != 2 || top[0].Name != "Ali" || top[1].Name != "Sara" {
		t.Fatalf("unexpected top list: %+v", top)
	}
}

func TestAggregateTotalsMatchFilteredSums(t *testing.T) {
	now := time.Now()
	var ds []Donation
	amounts := []float64{0.1, 0.2, 0.3, 19.99, 5000, 7.25, 3.33, 12}
	for i, a := range amounts {
		c := Currencies[i%len(Currencies)]
		ds = append(ds, donation(fmt.Sprint(i), fmt.Sprint("d", i), a, c, now))
	}
	v := Aggregate(AggregateInput{Donations: ds, Rates: DefaultRates(), Now: now})
	for _, c := range Currencies {
		var want float64
		for _, d := range FilterByCurrency(ds, c) {
			want += d.Amount
		}
		if v.Total(c) != want {
			t.Fatalf("%s total = %v, want %v", c, v.Total(c), want)
		}
		if v.StatsFor(c).Sum != want {
			t.Fatalf("%s stats sum = %v, want %v", c, v.StatsFor(c).Sum, want)
		}
	}
}

func TestTopByAmount(t *testing.T) {
	now := time.Now()
	ds := []Donation{
		donation("a", "a", 3, USD, now),
		donation("b", "b", 9, TRY, now),
		donation("c", "c", 7, USD, now),
		donation("d", "d", 7, USD, now),
		donation("e", "e", 1, USD, now),
		donation("f", "f", 10, USD, now),
		donation("g", "g", 2, USD, now),
		donation("h", "h", 100, SYP, now),
	}
	top := TopByAmount(ds, USD, TopN)
	want := []ID{"f", "c", "d", "a", "g"}
	if len(top) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(top))
	}
	for i, d := range top {
		if d.Currency != USD {
			t.Fatalf("foreign currency in top list: %+v", d)
		}
		if d.ID != want[i] {
			t.Fatalf("position %d: got %s, want %s", i, d.ID, want[i])
		}
		if i > 0 && top[i-1].Amount < d.Amount {
			t.Fatal("top list not descending")
		}
	}
}

func TestAggregateCountsAndRecent(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := time.Date(2025, 6, 1, 1, 0, 0, 0, loc)
	yesterdayLocal := time.Date(2025, 5, 31, 21, 30, 0, 0, time.UTC) // 00:30 local, same day
	old := time.Date(2025, 5, 31, 20, 0, 0, 0, time.UTC)             // 23:00 local, previous day

	var ds []Donation
	for i := 0; i < 12; i++ {
		ds = append(ds, donation(fmt.Sprint(i), "donor", 1, USD, old))
	}
	ds[0] = donation("x", "Ali", 4, TRY, yesterdayLocal)
	ds[1] = donation("y", "ali", 2, SYP, time.Time{})

	sel := NewSelection()
	sel.Toggle("x")
	sel.Toggle("gone")

	v := Aggregate(AggregateInput{Donations: ds, Rates: DefaultRates(), Selection: sel, Filter: TRY, Now: now})
	if v.TotalCount != 12 {
		t.Fatalf("total count = %d", v.TotalCount)
	}
	if v.DonorCount != 3 {
		t.Fatalf("donor count = %d, want 3 (case-sensitive)", v.DonorCount)
	}
	if v.TodayCount != 1 {
		t.Fatalf("today count = %d, want 1", v.TodayCount)
	}
	if len(v.Recent) != RecentN || len(v.RecentPanel) != RecentPanelN || len(v.SidebarRecent) != SidebarRecentN {
		t.Fatalf("recent lengths: %d %d %d", len(v.Recent), len(v.RecentPanel), len(v.SidebarRecent))
	}
	if v.Recent[0].ID != "x" {
		t.Fatalf("recent should keep list order, got %s", v.Recent[0].ID)
	}
	if len(v.Managed) != 1 || !v.Managed[0].Selected || v.Filter != TRY {
		t.Fatalf("unexpected managed list: %+v", v.Managed)
	}
	if v.SelectedCount != 1 {
		t.Fatalf("selected count = %d, want 1", v.SelectedCount)
	}
	if st := v.StatsFor(USD); st.Count != 10 || st.Max != 1 {
		t.Fatalf("unexpected USD stats: %+v", st)
	}
}

func TestAggregateEmpty(t *testing.T) {
	v := Aggregate(AggregateInput{Rates: DefaultRates(), Now: time.Now()})
	for _, c := range Currencies {
		st := v.StatsFor(c)
		if st.Count != 0 || st.Max != 0 || st.Sum != 0 || v.Total(c) != 0 {
			t.Fatalf("expected zero stats for %s: %+v", c, st)
		}
		if len(v.Top[c]) != 0 {
			t.Fatalf("expected empty top list for %s", c)
		}
	}
	if v.DonorCount != 0 || v.TodayCount != 0 || len(v.Recent) != 0 {
		t.Fatalf("unexpected counts: %+v", v)
	}
}

func TestAggregateSearchNarrowsManaged(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	ds := []Donation{
		donation("1", "Ali Hassan", 250, USD, now),
		donation("2", "Sara", 1500, TRY, now),
		donation("3", "ALI", 40, SYP, now),
	}
	tests := []struct {
		q    string
		want []ID
	}{
		{"", []ID{"1", "2", "3"}},
		{"  ali ", []ID{"1", "3"}},
		{"hassan", []ID{"1"}},
		{"1500", []ID{"2"}},
		{"٢٥٠", []ID{"1"}},
		{"try", []ID{"2"}},
		{"nobody", nil},
	}
	for _, tt := range tests {
		v := Aggregate(AggregateInput{Donations: ds, Rates: DefaultRates(), Search: tt.q, Now: now})
		var got []ID
		for _, m := range v.Managed {
			got = append(got, m.ID)
		}
		if fmt.Sprint(got) != fmt.Sprint(tt.want) {
			t.Errorf("search %q = %v, want %v", tt.q, got, tt.want)
		}
		if v.TotalCount != len(ds) {
			t.Errorf("search %q changed TotalCount to %d", tt.q, v.TotalCount)
		}
	}
}
