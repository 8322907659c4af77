package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donations/internal/backup"
	"donations/internal/broadcast"
	"donations/internal/core"
	"donations/internal/sheets"
	"donations/internal/storage"
)

func newApp(t *testing.T, kv storage.KV, bus broadcast.Bus) *App {
	t.Helper()
	a, err := New(context.Background(), kv, bus, Options{})
	require.NoError(t, err)
	return a
}

func TestNewLoadsPersistedState(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	raw, _ := json.Marshal([]core.Donation{{ID: "1", Name: "Ali", Amount: 10, Currency: core.USD}})
	require.NoError(t, kv.Set(ctx, storage.KeyDonations, raw))
	require.NoError(t, kv.Set(ctx, storage.KeyRates, []byte(`{"TRY":40}`)))

	a := newApp(t, kv, nil)
	assert.Len(t, a.Donations.All(), 1)
	assert.Equal(t, 40.0, a.Rates.Get()[core.TRY])
	assert.Equal(t, 10.0, a.Dashboard.View(ctx, "").Total(core.USD))
	assert.NotEmpty(t, a.Origin)
}

func TestSelectionAndDeleteSelected(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, storage.NewMemory(), broadcast.NewLocal())

	usd, err := a.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)
	_, err = a.Donations.Add(ctx, "Sara", 5, core.TRY)
	require.NoError(t, err)
	_, err = a.Donations.Add(ctx, "Omar", 7, core.USD)
	require.NoError(t, err)

	assert.Equal(t, 2, a.SelectAll(ctx, core.USD, ""))
	assert.Equal(t, 2, a.Dashboard.View(ctx, "").SelectedCount)

	assert.False(t, a.ToggleSelection(ctx, usd.ID))
	assert.Equal(t, 1, a.Selection.Len())

	a.ClearSelection(ctx)
	assert.Equal(t, 0, a.Selection.Len())

	assert.Equal(t, 3, a.SelectAll(ctx, "", ""))
	_, err = a.DeleteSelected(ctx, false)
	assert.ErrorIs(t, err, core.ErrNotConfirmed)
	assert.Len(t, a.Donations.All(), 3)

	n, err := a.DeleteSelected(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Empty(t, a.Donations.All())
	assert.Equal(t, 0, a.Selection.Len())

	n, err = a.DeleteSelected(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

type viewCounter struct{ n int }

func (c *viewCounter) ViewUpdated(context.Context, core.View) { c.n++ }

func TestSelectionChangesDoNotNotifySinks(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, storage.NewMemory(), nil)
	ali, err := a.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)

	sink := &viewCounter{}
	a.Dashboard.AddSink(sink)
	gen := a.Dashboard.Generation()

	a.ToggleSelection(ctx, ali.ID)
	a.SelectAll(ctx, "", "")
	a.ClearSelection(ctx)
	assert.Zero(t, sink.n)
	assert.Greater(t, a.Dashboard.Generation(), gen, "admin views are still rebuilt")

	_, err = a.Donations.Add(ctx, "Sara", 5, core.TRY)
	require.NoError(t, err)
	assert.Equal(t, 1, sink.n)
}

func TestSelectAllFollowsSearch(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, storage.NewMemory(), nil)
	for _, name := range []string{"Ali Hassan", "Sara", "ALI"} {
		_, err := a.Donations.Add(ctx, name, 10, core.USD)
		require.NoError(t, err)
	}

	assert.Equal(t, 2, a.SelectAll(ctx, core.USD, "ali"))
	assert.Equal(t, 2, a.Dashboard.Query(ctx, "", "ali").SelectedCount)
	assert.Len(t, a.Dashboard.Query(ctx, "", "ali").Managed, 2)
}

func TestDeleteSelectedCountsOnlyRemoved(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, storage.NewMemory(), nil)
	ali, err := a.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)

	a.Selection.Toggle(ali.ID)
	a.Selection.Toggle("deleted-elsewhere")

	n, err := a.DeleteSelected(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 0, a.Selection.Len())
}

func TestDeleteSelectedPersistenceFailure(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	a := newApp(t, kv, nil)
	_, err := a.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)
	a.SelectAll(ctx, "", "")

	kv.FailWrites(true)
	n, err := a.DeleteSelected(ctx, true)
	assert.True(t, core.IsPersistence(err))
	assert.Equal(t, 1, n)
	assert.Empty(t, a.Donations.All())
}

func TestImportExportAndBackup(t *testing.T) {
	ctx := context.Background()
	a := newApp(t, storage.NewMemory(), nil)

	n, err := a.ImportRows(ctx, []sheets.Row{
		{sheets.ColName: "Ali", sheets.ColAmount: "10"},
		{sheets.ColName: "Sara", sheets.ColAmount: "5", sheets.ColCurrency: "TRY"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	grid := a.ExportGrid()
	require.Len(t, grid, 3)
	assert.Equal(t, "Ali", grid[1][0])

	doc := a.Backup()
	assert.Equal(t, backup.Version, doc.Version)
	require.Len(t, doc.Donations, 2)

	_, err = a.Donations.Add(ctx, "extra", 1, core.SYP)
	require.NoError(t, err)
	require.NoError(t, a.Restore(ctx, doc, true))
	assert.Len(t, a.Donations.All(), 2)

	_, err = a.ImportRows(ctx, nil)
	assert.ErrorIs(t, err, core.ErrImportFormat)
}

func TestChangesReachOtherProcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	kv := storage.NewMemory()
	bus := broadcast.NewLocal()
	writer := newApp(t, kv, bus)
	reader := newApp(t, kv, bus)

	done := make(chan error, 1)
	go func() { done <- reader.Run(ctx) }()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	_, err := writer.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return reader.Dashboard.View(ctx, "").Total(core.USD) == 10
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, reader.Donations.All(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
