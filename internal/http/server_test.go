package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"donations/internal/app"
	"donations/internal/core"
	"donations/internal/log"
	"donations/internal/middleware/ratelimit"
	"donations/internal/sheets"
	"donations/internal/sheets/xlsx"
	"donations/internal/storage"
)

type testEnv struct {
	app *app.App
	kv  *storage.Memory
	srv *Server
}

func newTestEnv(t *testing.T, rl ratelimit.Config) *testEnv {
	t.Helper()
	kv := storage.NewMemory()
	a, err := app.New(context.Background(), kv, nil, app.Options{})
	require.NoError(t, err)
	srv, err := NewServer(":0", a, Options{RateLimit: rl})
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return &testEnv{app: a, kv: kv, srv: srv}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	e.srv.Handler.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) get(target string) *httptest.ResponseRecorder {
	return e.do(httptest.NewRequest(http.MethodGet, target, nil))
}

func (e *testEnv) postForm(target string, form url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return e.do(req)
}

func (e *testEnv) postFile(t *testing.T, target string, content []byte, fields url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k := range fields {
		require.NoError(t, mw.WriteField(k, fields.Get(k)))
	}
	fw, err := mw.CreateFormFile("file", "upload")
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return e.do(req)
}

func redirectQuery(t *testing.T, rec *httptest.ResponseRecorder) url.Values {
	t.Helper()
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/admin", loc.Path)
	return loc.Query()
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rec := env.get("/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())

	assert.Equal(t, http.StatusServiceUnavailable, env.get("/readyz").Code)

	env.app.Dashboard.Refresh(context.Background(), "test")
	rec = env.get("/readyz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ready", rec.Body.String())
}

func TestDisplayPage(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	_, err := env.app.Donations.Add(context.Background(), "أحمد", 25, core.USD)
	require.NoError(t, err)

	rec := env.get("/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "أحمد")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestAddDonation(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rec := env.postForm("/admin/donations?currency=USD", url.Values{
		"name":     {"Ali"},
		"amount":   {"10.5"},
		"currency": {"usd"},
	})
	q := redirectQuery(t, rec)
	assert.Equal(t, "success", q.Get("kind"))
	assert.Equal(t, "USD", q.Get("currency"))

	all := env.app.Donations.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Ali", all[0].Name)
	assert.Equal(t, 10.5, all[0].Amount)
}

func TestAddDonationRejectsInvalidInput(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rec := env.postForm("/admin/donations", url.Values{
		"name":     {""},
		"amount":   {"10"},
		"currency": {"USD"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "يرجى إدخال اسم المتبرع")
	assert.Empty(t, env.app.Donations.All())

	rec = env.postForm("/admin/donations", url.Values{
		"name":     {"Ali"},
		"amount":   {"-3"},
		"currency": {"USD"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), `value="Ali"`)
}

func TestAddDonationPersistenceFailure(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	env.kv.FailWrites(true)

	rec := env.postForm("/admin/donations", url.Values{
		"name":     {"Ali"},
		"amount":   {"10"},
		"currency": {"USD"},
	})
	q := redirectQuery(t, rec)
	assert.Equal(t, "warning", q.Get("kind"))
	assert.Len(t, env.app.Donations.All(), 1)
}

func TestEditDonation(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	d, err := env.app.Donations.Add(context.Background(), "Ali", 10, core.USD)
	require.NoError(t, err)

	rec := env.get("/admin?edit=" + string(d.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "تعديل التبرع")

	rec = env.postForm("/admin/donations/"+string(d.ID), url.Values{
		"name":     {"Sara"},
		"amount":   {"20"},
		"currency": {"TRY"},
	})
	redirectQuery(t, rec)

	got, ok := env.app.Donations.Get(d.ID)
	require.True(t, ok)
	assert.Equal(t, "Sara", got.Name)
	assert.Equal(t, core.TRY, got.Currency)
	assert.Equal(t, d.Timestamp, got.Timestamp)
}

func TestEditUnknownDonation(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	assert.Equal(t, http.StatusNotFound, env.get("/admin?edit=missing").Code)

	rec := env.postForm("/admin/donations/missing", url.Values{
		"name":     {"Sara"},
		"amount":   {"20"},
		"currency": {"TRY"},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDeleteDonation(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	d, err := env.app.Donations.Add(context.Background(), "Ali", 10, core.USD)
	require.NoError(t, err)

	redirectQuery(t, env.postForm("/admin/donations/"+string(d.ID)+"/delete", nil))
	assert.Empty(t, env.app.Donations.All())

	assert.Equal(t, http.StatusNotFound, env.postForm("/admin/donations/"+string(d.ID)+"/delete", nil).Code)
}

func TestSelectionFlow(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()
	a, err := env.app.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)
	_, err = env.app.Donations.Add(ctx, "Sara", 5, core.TRY)
	require.NoError(t, err)

	q := redirectQuery(t, env.postForm("/admin/selection/delete", url.Values{"confirmed": {"on"}}))
	assert.Equal(t, "warning", q.Get("kind"))

	redirectQuery(t, env.postForm("/admin/selection/"+string(a.ID)+"/toggle", nil))
	assert.True(t, env.app.Selection.Has(a.ID))

	redirectQuery(t, env.postForm("/admin/selection/clear", nil))
	assert.Equal(t, 0, env.app.Selection.Len())

	redirectQuery(t, env.postForm("/admin/selection/all?currency=TRY", nil))
	assert.Equal(t, 1, env.app.Selection.Len())

	rec := env.postForm("/admin/selection/delete?currency=TRY", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.app.Donations.All(), 2)

	q = redirectQuery(t, env.postForm("/admin/selection/delete?currency=TRY", url.Values{"confirmed": {"on"}}))
	assert.Equal(t, "success", q.Get("kind"))
	all := env.app.Donations.All()
	require.Len(t, all, 1)
	assert.Equal(t, a.ID, all[0].ID)
}

func TestAdminSearch(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()
	ali, err := env.app.Donations.Add(ctx, "Ali Hassan", 10, core.USD)
	require.NoError(t, err)
	_, err = env.app.Donations.Add(ctx, "Sara", 5, core.TRY)
	require.NoError(t, err)
	_, err = env.app.Donations.Add(ctx, "ALI", 7, core.SYP)
	require.NoError(t, err)

	rec := env.get("/admin?q=ali")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Equal(t, 2, strings.Count(body, `class="managed-donation `))
	assert.Contains(t, body, `name="q" value="ali"`)
	assert.Contains(t, body, `action="/admin/selection/all?q=ali"`)

	rec = env.get("/admin?currency=SYP&q=ali")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, strings.Count(rec.Body.String(), `class="managed-donation `))

	rec = env.get("/admin?q=nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Zero(t, strings.Count(rec.Body.String(), `class="managed-donation `))
	assert.Contains(t, rec.Body.String(), "لا توجد تبرعات تطابق البحث")

	q := redirectQuery(t, env.postForm("/admin/selection/all?q=ali", nil))
	assert.Equal(t, "ali", q.Get("q"))
	assert.Equal(t, 2, env.app.Selection.Len())
	assert.True(t, env.app.Selection.Has(ali.ID))

	q = redirectQuery(t, env.postForm("/admin/selection/clear?currency=USD&q=ali", nil))
	assert.Equal(t, "ali", q.Get("q"))
	assert.Equal(t, "USD", q.Get("currency"))
}

func TestLargeAmountsKeepViewEncodable(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()

	rec := env.postForm("/admin/donations", url.Values{
		"name":     {"Ali"},
		"amount":   {"1.7e308"},
		"currency": {"USD"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	_, err := env.app.Donations.Add(ctx, "Ali", 1.7e308, core.USD)
	require.ErrorIs(t, err, core.ErrInvalidAmount)

	for i := 0; i < 3; i++ {
		_, err = env.app.Donations.Add(ctx, "Sara", core.MaxAmount, core.SYP)
		require.NoError(t, err)
	}

	rec = env.get("/api/view")
	require.Equal(t, http.StatusOK, rec.Code)
	var v core.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, 3*core.MaxAmount, v.Total(core.SYP))
}

func TestSaveRates(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	redirectQuery(t, env.postForm("/admin/rates", url.Values{"TRY": {"42.5"}}))
	assert.Equal(t, 42.5, env.app.Rates.Get()[core.TRY])

	for _, bad := range []string{"0", "NaN", "Inf", "1e300"} {
		rec := env.postForm("/admin/rates", url.Values{"TRY": {bad}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, bad)
		assert.Equal(t, 42.5, env.app.Rates.Get()[core.TRY], bad)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()

	q := redirectQuery(t, env.get("/admin/export"))
	assert.Equal(t, "warning", q.Get("kind"))

	_, err := env.app.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)
	_, err = env.app.Donations.Add(ctx, "Sara", 300, core.TRY)
	require.NoError(t, err)

	rec := env.get("/admin/export")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsx.ContentType, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "filename*=UTF-8''")

	q = redirectQuery(t, env.postFile(t, "/admin/import", rec.Body.Bytes(), nil))
	assert.Equal(t, "success", q.Get("kind"))
	assert.Len(t, env.app.Donations.All(), 4)
}

func TestImportRejectsGarbage(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})

	rec := env.postFile(t, "/admin/import", []byte("not a workbook"), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var buf bytes.Buffer
	require.NoError(t, xlsx.Write(&buf, [][]any{{sheets.ColName, sheets.ColAmount}, {"Ali", "abc"}}))
	rec = env.postFile(t, "/admin/import", buf.Bytes(), nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Empty(t, env.app.Donations.All())
}

func TestBackupAndRestore(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := env.app.Donations.Add(ctx, "Ali", 10, core.USD)
	require.NoError(t, err)

	rec := env.get("/admin/backup")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	snapshot := rec.Body.Bytes()

	_, err = env.app.Donations.Add(ctx, "Sara", 5, core.TRY)
	require.NoError(t, err)

	rec = env.postFile(t, "/admin/restore", snapshot, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Len(t, env.app.Donations.All(), 2)

	rec = env.postFile(t, "/admin/restore", []byte(`{"version":"2.0"}`), url.Values{"confirmed": {"on"}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Len(t, env.app.Donations.All(), 2)

	redirectQuery(t, env.postFile(t, "/admin/restore", snapshot, url.Values{"confirmed": {"on"}}))
	all := env.app.Donations.All()
	require.Len(t, all, 1)
	assert.Equal(t, "Ali", all[0].Name)
}

func TestAPI(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{})
	_, err := env.app.Donations.Add(context.Background(), "Ali", 10, core.USD)
	require.NoError(t, err)

	rec := env.get("/api/convert?amount=100&from=USD&to=TRY")
	require.Equal(t, http.StatusOK, rec.Code)
	var conv convertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &conv))
	assert.Equal(t, 100*core.DefaultRates()[core.TRY], conv.Result)

	for _, amount := range []string{"x", "NaN", "Inf", "-Inf", "-5", "0", "1e300"} {
		rec = env.get("/api/convert?amount=" + url.QueryEscape(amount) + "&from=USD&to=TRY")
		assert.Equal(t, http.StatusBadRequest, rec.Code, amount)
		assert.Contains(t, rec.Body.String(), core.ErrInvalidAmount.Error(), amount)
	}
	assert.Equal(t, http.StatusBadRequest, env.get("/api/convert?amount=1&from=EUR&to=TRY").Code)

	rec = env.get("/api/view?currency=USD")
	require.Equal(t, http.StatusOK, rec.Code)
	var v core.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	assert.Equal(t, core.USD, v.Filter)
	assert.Equal(t, 1, v.TotalCount)

	assert.Equal(t, http.StatusBadRequest, env.get("/api/view?currency=EUR").Code)

	rec = env.get("/api/view?q=nobody")
	require.Equal(t, http.StatusOK, rec.Code)
	var searched core.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &searched))
	assert.Empty(t, searched.Managed)
	assert.Equal(t, "nobody", searched.Search)

	rec = env.get("/api/rates")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"TRY"`)
}

func TestAdminRateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.Config{RequestsPerMinute: 1})

	redirectQuery(t, env.postForm("/admin/selection/clear", nil))
	assert.Equal(t, http.StatusTooManyRequests, env.postForm("/admin/selection/clear", nil).Code)
	assert.Equal(t, http.StatusOK, env.get("/admin").Code)
}

func TestEventHubLogsAsEventsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := log.New(log.Config{Output: &buf, Level: slog.LevelDebug, Component: log.ComponentHTTP})
	hub := NewEventHub(logger)

	hub.ViewUpdated(context.Background(), core.View{TotalCount: 1})

	out := buf.String()
	assert.Contains(t, out, "component=events")
	assert.Contains(t, out, "count=0")
	assert.NotContains(t, out, "component=unknown")
}

func TestEventStream(t *testing.T) {
	hub := NewEventHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.ServeHTTP(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	hub.ViewUpdated(context.Background(), core.View{TotalCount: 3})

	hub.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stream did not end after Close")
	}
	cancel()

	body := rec.Body.String()
	assert.Contains(t, body, "retry: 3000")
	assert.Contains(t, body, "event: view")
	assert.Contains(t, body, `"total_count":3`)
	assert.Equal(t, 0, hub.Clients())

	rec = httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
