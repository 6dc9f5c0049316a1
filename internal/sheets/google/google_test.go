package google

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"rette/internal/core"
	ports "rette/internal/sheets"
)

type fakeSheets struct {
	mu      sync.Mutex
	values  string
	query   map[string]string
	updates []gsheet.ValueRange
	batches []gsheet.BatchUpdateValuesRequest
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.query = map[string]string{}
	for k := range r.URL.Query() {
		f.query[k] = r.URL.Query().Get(k)
	}
	body, _ := io.ReadAll(r.Body)
	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet:
		_, _ = io.WriteString(w, f.values)
	case r.Method == http.MethodPut:
		var vr gsheet.ValueRange
		_ = json.Unmarshal(body, &vr)
		f.updates = append(f.updates, vr)
		_, _ = io.WriteString(w, `{"updatedCells":1}`)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, ":batchUpdate"):
		var req gsheet.BatchUpdateValuesRequest
		_ = json.Unmarshal(body, &req)
		f.batches = append(f.batches, req)
		_, _ = io.WriteString(w, `{"totalUpdatedCells":1}`)
	default:
		http.Error(w, "unexpected request", http.StatusBadRequest)
	}
}

func newTestClient(t *testing.T, f *fakeSheets) *Client {
	t.Helper()
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	svc, err := gsheet.NewService(context.Background(),
		goption.WithEndpoint(srv.URL+"/"),
		goption.WithHTTPClient(srv.Client()),
		goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	c, err := newWithService(svc, Config{SpreadsheetID: "sheet-id", SheetName: "Roster"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c.now = func() time.Time { return time.Date(2025, 11, 15, 10, 0, 0, 0, c.loc) }
	return c
}

func TestNew_MissingSpreadsheetID(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if !errors.Is(err, core.ErrSetupRequired) {
		t.Fatalf("expected ErrSetupRequired, got %v", err)
	}
}

func TestNew_MissingCredentials(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	_, err := New(context.Background(), Config{SpreadsheetID: "x"})
	if err == nil || !strings.Contains(err.Error(), "missing service account credentials") {
		t.Fatalf("expected credentials error, got %v", err)
	}
}

func TestFetchRoster(t *testing.T) {
	f := &fakeSheets{values: `{"range":"Roster!A2:E","majorDimension":"ROWS","values":[
		["Salsa","bob",45962,5550100,"Ann"],
		["","ignored",45962],
		["Ballet","Dave","","", ""],
		["Salsa","carol","2025-10-01"]
	]}`}
	c := newTestClient(t, f)

	cohorts, err := c.FetchRoster(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if f.query["valueRenderOption"] != "UNFORMATTED_VALUE" || f.query["dateTimeRenderOption"] != "SERIAL_NUMBER" {
		t.Fatalf("unexpected render options: %v", f.query)
	}
	if len(cohorts) != 2 || len(cohorts["Salsa"]) != 2 || len(cohorts["Ballet"]) != 1 {
		t.Fatalf("unexpected grouping: %+v", cohorts)
	}
	bob := cohorts["Salsa"][0]
	if bob.ID != 2 || bob.Payment.Date() != "2025-10-31T18:30:00.000Z" || bob.Phone != "5550100" || bob.GuardianName != "Ann" {
		t.Fatalf("unexpected bob: %+v", bob)
	}
	if carol := cohorts["Salsa"][1]; carol.ID != 5 || carol.Payment.Date() != "2025-10-01" {
		t.Fatalf("unexpected carol: %+v", carol)
	}
	if dave := cohorts["Ballet"][0]; dave.ID != 4 || dave.Payment.Date() != "" {
		t.Fatalf("unexpected dave: %+v", dave)
	}
}

func TestMarkPaid_WritesLocalTimeReturnsUTC(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)

	got, err := c.MarkPaid(context.Background(), 7)
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if got != "2025-11-15T04:30:00.000Z" {
		t.Fatalf("confirmed date = %q", got)
	}
	if f.query["valueInputOption"] != "USER_ENTERED" {
		t.Fatalf("valueInputOption = %q", f.query["valueInputOption"])
	}
	if len(f.updates) != 1 {
		t.Fatalf("expected one update, got %d", len(f.updates))
	}
	u := f.updates[0]
	if u.Range != "'Roster'!C7" || u.Values[0][0] != "2025-11-15 10:00:00" {
		t.Fatalf("unexpected update: %+v", u)
	}
}

func TestSetPaymentDate(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)

	got, err := c.SetPaymentDate(context.Background(), 12, "2025-10-15")
	if err != nil {
		t.Fatalf("set date: %v", err)
	}
	if got != "2025-10-15T00:00:00.000Z" {
		t.Fatalf("confirmed date = %q", got)
	}
	if v := f.updates[0].Values[0][0]; v != "2025-10-15 05:30:00" {
		t.Fatalf("cell value = %v", v)
	}

	_, err = c.SetPaymentDate(context.Background(), 12, "someday")
	var re *ports.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestMarkPaidBulk_SingleBatch(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)

	got, err := c.MarkPaidBulk(context.Background(), []int64{7, 12, 19})
	if err != nil {
		t.Fatalf("bulk: %v", err)
	}
	if got != "2025-11-15T04:30:00.000Z" {
		t.Fatalf("confirmed date = %q", got)
	}
	if len(f.batches) != 1 {
		t.Fatalf("expected one batch, got %d", len(f.batches))
	}
	b := f.batches[0]
	if b.ValueInputOption != "USER_ENTERED" || len(b.Data) != 3 {
		t.Fatalf("unexpected batch: %+v", b)
	}
	for i, want := range []string{"'Roster'!C7", "'Roster'!C12", "'Roster'!C19"} {
		if b.Data[i].Range != want {
			t.Fatalf("data[%d].Range = %q, want %q", i, b.Data[i].Range, want)
		}
	}
}

func TestWrite_RejectsHeaderRow(t *testing.T) {
	f := &fakeSheets{}
	c := newTestClient(t, f)
	_, err := c.MarkPaid(context.Background(), 1)
	var re *ports.RemoteError
	if !errors.As(err, &re) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if len(f.updates) != 0 {
		t.Fatalf("no write expected")
	}
}
