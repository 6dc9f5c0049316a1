package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rette/internal/core"
	"rette/internal/log"
	"rette/internal/services"
	"rette/internal/sheets/memory"
	"rette/internal/storage"
)

var fixedNow = time.Date(2025, 11, 15, 10, 0, 0, 0, core.ReferenceLocation())

func quietLogger() *log.Logger {
	return log.New(log.Config{Output: io.Discard})
}

func sampleCohorts() core.Cohorts {
	return core.Cohorts{
		"Salsa": {
			{ID: 2, Name: "bob", Payment: core.Settled("")},
			{ID: 3, Name: "Alice", Payment: core.Settled("2025-09-01")},
		},
		"Ballet": {
			{ID: 7, Name: "Dave", Payment: core.Settled("2025-11-05")},
			{ID: 12, Name: "eve", Payment: core.Settled("2025-10-01")},
		},
	}
}

func newTestServer(t *testing.T, src interface {
	FetchRoster(context.Context) (core.Cohorts, error)
	MarkPaid(context.Context, int64) (string, error)
	SetPaymentDate(context.Context, int64, string) (string, error)
	MarkPaidBulk(context.Context, []int64) (string, error)
}, opts Options) *Server {
	t.Helper()
	var tracker *services.Tracker
	if src == nil {
		tracker = services.NewTracker(nil, services.WithLogger(quietLogger()))
	} else {
		tracker = services.NewTracker(src,
			services.WithLogger(quietLogger()),
			services.WithClock(func() time.Time { return fixedNow }))
	}
	_ = tracker.Load(context.Background())
	opts.Logger = quietLogger()
	opts.Now = func() time.Time { return fixedNow }
	s := NewServer(":0", tracker, opts)
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	return s
}

func memoryServer(t *testing.T) *Server {
	t.Helper()
	paidAt := time.Date(2025, 11, 15, 4, 30, 0, 0, time.UTC)
	store := memory.New(sampleCohorts(), memory.WithClock(func() time.Time { return paidAt }))
	return newTestServer(t, store, Options{})
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	req.RemoteAddr = "192.0.2.10:5000"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.Handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

type apiError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func recordView(t *testing.T, v services.RosterView, id int64) services.RecordView {
	t.Helper()
	for _, c := range v.Cohorts {
		for _, r := range c.Records {
			if r.ID == id {
				return r
			}
		}
	}
	t.Fatalf("record %d not in view", id)
	return services.RecordView{}
}

// failingSource loads the sample roster and rejects every write.
type failingSource struct {
	fetchErr error
	writeErr error
}

func (f *failingSource) FetchRoster(context.Context) (core.Cohorts, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return sampleCohorts(), nil
}

func (f *failingSource) MarkPaid(context.Context, int64) (string, error) { return "", f.writeErr }

func (f *failingSource) SetPaymentDate(context.Context, int64, string) (string, error) {
	return "", f.writeErr
}

func (f *failingSource) MarkPaidBulk(context.Context, []int64) (string, error) {
	return "", f.writeErr
}

func TestHealthAndReady(t *testing.T) {
	s := memoryServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]any](t, rec)["status"])

	rec = do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, services.StatusReady, decode[services.TrackerStatus](t, rec).State)
}

func TestReady_SetupRequired(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rec := do(t, s, http.MethodGet, "/readyz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, services.StatusSetupRequired, decode[services.TrackerStatus](t, rec).State)
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodGet, "/api/roster", "")
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))
	assert.True(t, strings.HasPrefix(rec.Header().Get("X-Request-ID"), "req_"))
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
}

func TestRoster_View(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodGet, "/api/roster", "")
	require.Equal(t, http.StatusOK, rec.Code)

	v := decode[services.RosterView](t, rec)
	assert.Equal(t, services.StatusReady, v.Status)
	require.Len(t, v.Cohorts, 2)
	assert.Equal(t, "Ballet", v.Cohorts[0].Name)
	assert.Equal(t, 4, v.Summary.Records)
	assert.Equal(t, core.StatusOverdue, recordView(t, v, 2).Status)
}

func TestMarkPaid(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodPost, "/api/records/2/pay", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	res := decode[mutationResult](t, rec)
	assert.Equal(t, []int64{2}, res.IDs)
	assert.Equal(t, "2025-11-15T04:30:00.000Z", res.Date)
	assert.True(t, res.Applied)

	v := decode[services.RosterView](t, do(t, s, http.MethodGet, "/api/roster", ""))
	assert.Equal(t, core.StatusPaid, recordView(t, v, 2).Status)
}

func TestMarkPaid_UnknownIDIsNoop(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodPost, "/api/records/99/pay", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decode[mutationResult](t, rec).Applied)
}

func TestMarkPaid_InvalidID(t *testing.T) {
	s := memoryServer(t)
	for _, id := range []string{"abc", "0", "-3"} {
		rec := do(t, s, http.MethodPost, "/api/records/"+id+"/pay", "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
		assert.Equal(t, CodeBadRequest, decode[apiError](t, rec).Error.Code)
	}
}

func TestSetPaymentDate(t *testing.T) {
	s := memoryServer(t)

	rec := do(t, s, http.MethodPut, "/api/records/3/payment-date", `{"date":"2025-11-03"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[mutationResult](t, rec)
	assert.True(t, res.Applied)
	assert.NotEmpty(t, res.Date)

	rec = do(t, s, http.MethodPut, "/api/records/3/payment-date", `{"date":"  "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeEmptyDate, decode[apiError](t, rec).Error.Code)

	rec = do(t, s, http.MethodPut, "/api/records/3/payment-date", `{"date":"2025-11-03","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeBadRequest, decode[apiError](t, rec).Error.Code)
}

func TestSelectionAndBulkPay(t *testing.T) {
	s := memoryServer(t)

	rec := do(t, s, http.MethodPost, "/api/records/2/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	sel := decode[map[string]any](t, rec)
	assert.Equal(t, true, sel["selected"])
	assert.EqualValues(t, 1, sel["selected_count"])

	rec = do(t, s, http.MethodPost, "/api/cohorts/Ballet/selection", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "all", decode[map[string]any](t, rec)["selection"])

	rec = do(t, s, http.MethodPost, "/api/payments/bulk", `{"cohort":"Ballet"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decode[mutationResult](t, rec)
	assert.ElementsMatch(t, []int64{7, 12}, res.IDs)
	assert.True(t, res.Applied)

	v := decode[services.RosterView](t, do(t, s, http.MethodGet, "/api/roster", ""))
	assert.Equal(t, 1, v.SelectedCount)
	assert.Equal(t, core.StatusPaid, recordView(t, v, 12).Status)
}

func TestBulkPay_ExplicitIDsAndEmptySelection(t *testing.T) {
	s := memoryServer(t)

	rec := do(t, s, http.MethodPost, "/api/payments/bulk", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[mutationResult](t, rec)
	assert.False(t, res.Applied)
	assert.Empty(t, res.IDs)

	rec = do(t, s, http.MethodPost, "/api/payments/bulk", `{"ids":[2,3]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[mutationResult](t, rec).Applied)
}

func TestToggle_NotFound(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodPost, "/api/records/99/selection", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[apiError](t, rec).Error.Code)

	rec = do(t, s, http.MethodPost, "/api/cohorts/Tango/selection", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMutationFailure(t *testing.T) {
	src := &failingSource{writeErr: errors.New("sheet locked")}
	s := newTestServer(t, src, Options{})

	rec := do(t, s, http.MethodPost, "/api/records/2/pay", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Equal(t, CodeMutationFailed, decode[apiError](t, rec).Error.Code)

	v := decode[services.RosterView](t, do(t, s, http.MethodGet, "/api/roster", ""))
	assert.Equal(t, core.StatusOverdue, recordView(t, v, 2).Status)
}

func TestReload_LoadFailure(t *testing.T) {
	src := &failingSource{}
	s := newTestServer(t, src, Options{})
	src.fetchErr = errors.New("status 500")

	rec := do(t, s, http.MethodPost, "/api/roster/reload", "")
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[apiError](t, rec)
	assert.Equal(t, CodeLoadFailed, body.Error.Code)
	assert.Equal(t, "status 500", body.Error.Message)
}

func TestSetupRequired(t *testing.T) {
	s := newTestServer(t, nil, Options{})
	rec := do(t, s, http.MethodPost, "/api/roster/reload", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeSetupRequired, decode[apiError](t, rec).Error.Code)

	rec = do(t, s, http.MethodPost, "/api/payments/bulk", `{"ids":[2]}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRateLimit_MutationsOnly(t *testing.T) {
	paidAt := time.Date(2025, 11, 15, 4, 30, 0, 0, time.UTC)
	store := memory.New(sampleCohorts(), memory.WithClock(func() time.Time { return paidAt }))
	s := newTestServer(t, store, Options{RequestsPerMinute: 1})

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodPost, "/api/records/99/pay", "").Code)
	rec := do(t, s, http.MethodPost, "/api/records/99/pay", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, CodeRateLimited, decode[apiError](t, rec).Error.Code)

	assert.Equal(t, http.StatusOK, do(t, s, http.MethodGet, "/api/roster", "").Code)
}

type stubHistory struct {
	recordID int64
	limit    int
	entries  []storage.PaymentEntry
}

func (h *stubHistory) ListPayments(_ context.Context, recordID int64, limit int) ([]storage.PaymentEntry, error) {
	h.recordID, h.limit = recordID, limit
	return h.entries, nil
}

func TestHistory(t *testing.T) {
	h := &stubHistory{entries: []storage.PaymentEntry{{EventID: "e1", Operation: core.OpMarkPaid, RecordID: 2, Date: "2025-11-15T04:30:00.000Z"}}}
	s := newTestServer(t, &failingSource{}, Options{History: h})

	rec := do(t, s, http.MethodGet, "/api/payments/history?record=2&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 2, h.recordID)
	assert.Equal(t, 5, h.limit)
	got := decode[map[string][]storage.PaymentEntry](t, rec)["payments"]
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].EventID)

	rec = do(t, s, http.MethodGet, "/api/payments/history?limit=many", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHistory_JournalDisabled(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodGet, "/api/payments/history", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, CodeJournalDisabled, decode[apiError](t, rec).Error.Code)
}

func TestUnknownRoute(t *testing.T) {
	s := memoryServer(t)
	rec := do(t, s, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decode[apiError](t, rec).Error.Code)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{core.ErrSetupRequired, http.StatusServiceUnavailable, CodeSetupRequired},
		{core.ErrMutationInProgress, http.StatusConflict, CodeBusy},
		{&core.MutationError{Op: "mark_paid", IDs: []int64{2}, Err: errors.New("x")}, http.StatusBadGateway, CodeMutationFailed},
		{&core.LoadError{Err: errors.New("x")}, http.StatusBadGateway, CodeLoadFailed},
		{core.ErrEmptyDate, http.StatusBadRequest, CodeEmptyDate},
		{core.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		status, code, _ := classify(tt.err)
		assert.Equal(t, tt.status, status, tt.err.Error())
		assert.Equal(t, tt.code, code, tt.err.Error())
	}
}
