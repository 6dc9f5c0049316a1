package appscript

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rette/internal/core"
	ports "rette/internal/sheets"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(Config{Endpoint: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Config{Endpoint: "  "})
	assert.ErrorIs(t, err, core.ErrSetupRequired)

	_, err = New(Config{Endpoint: "ftp://example.com/exec"})
	assert.Error(t, err)

	_, err = New(Config{Endpoint: "https://script.google.com/macros/s/abc/exec", RateLimit: 2})
	assert.NoError(t, err)
}

func TestFetchRoster_DecodesMixedCells(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"success":true,"data":{
			"Salsa":[{"rowIndex":2,"name":"bob","lastPaymentDate":"2025-10-01T00:00:00.000Z","phone":5550100,"parentName":" Ann "}],
			"Ballet":[{"rowIndex":7,"name":"Dave","lastPaymentDate":null,"phone":"","parentName":null}]
		}}`)
	})

	cohorts, err := c.FetchRoster(context.Background())
	require.NoError(t, err)
	require.Len(t, cohorts, 2)

	bob := cohorts["Salsa"][0]
	assert.Equal(t, int64(2), bob.ID)
	assert.Equal(t, "2025-10-01T00:00:00.000Z", bob.Payment.Date())
	assert.Equal(t, "5550100", bob.Phone)
	assert.Equal(t, "Ann", bob.GuardianName)

	dave := cohorts["Ballet"][0]
	assert.Equal(t, "", dave.Payment.Date())
	assert.False(t, dave.Payment.IsPending())
	assert.Equal(t, "", dave.GuardianName)
}

func TestFetchRoster_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{"http status", http.StatusInternalServerError, `oops`, func(t *testing.T, err error) {
			assert.ErrorContains(t, err, "status 500")
		}},
		{"remote failure", http.StatusOK, `{"success":false,"error":"Sheet not found"}`, func(t *testing.T, err error) {
			var re *ports.RemoteError
			require.True(t, errors.As(err, &re))
			assert.Equal(t, "Sheet not found", re.Message)
		}},
		{"no data", http.StatusOK, `{"success":true}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ports.ErrMalformedResponse)
		}},
		{"not json", http.StatusOK, `<html>login</html>`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ports.ErrMalformedResponse)
		}},
		{"missing rowIndex", http.StatusOK, `{"success":true,"data":{"A":[{"name":"x"}]}}`, func(t *testing.T, err error) {
			assert.ErrorIs(t, err, ports.ErrMalformedResponse)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, err := c.FetchRoster(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestFetchRoster_EmptyData(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"data":{}}`)
	})
	cohorts, err := c.FetchRoster(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cohorts)
}

func captureForm(t *testing.T, got *url.Values, reply string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
		assert.NoError(t, r.ParseForm())
		*got = r.PostForm
		_, _ = io.WriteString(w, reply)
	}
}

func TestMutations_FormEncoding(t *testing.T) {
	const reply = `{"success":true,"message":"ok","updatedDate":"2025-11-01T00:00:00.000Z"}`
	ctx := context.Background()

	var form url.Values
	c := newTestClient(t, captureForm(t, &form, reply))

	date, err := c.MarkPaid(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-11-01T00:00:00.000Z", date)
	assert.Equal(t, "7", form.Get("rowIndex"))
	assert.Empty(t, form.Get("newDate"))

	_, err = c.SetPaymentDate(ctx, 12, "2025-10-15")
	require.NoError(t, err)
	assert.Equal(t, "12", form.Get("rowIndex"))
	assert.Equal(t, "2025-10-15", form.Get("newDate"))

	_, err = c.MarkPaidBulk(ctx, []int64{7, 12, 19})
	require.NoError(t, err)
	assert.Equal(t, "7,12,19", form.Get("rowIndexes"))
	assert.Empty(t, form.Get("rowIndex"))
}

func TestMutations_Failures(t *testing.T) {
	ctx := context.Background()

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":false,"error":"Invalid row index"}`)
	})
	_, err := c.MarkPaid(ctx, 3)
	var re *ports.RemoteError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Invalid row index", re.Message)

	c = newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"success":true,"message":"ok"}`)
	})
	_, err = c.MarkPaid(ctx, 3)
	assert.ErrorIs(t, err, ports.ErrMalformedResponse)

	_, err = c.MarkPaidBulk(ctx, nil)
	assert.Error(t, err)
}

func TestCell_Unmarshal(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`null`, ""},
		{`"abc"`, "abc"},
		{`45962`, "45962"},
		{`1.5`, "1.5"},
		{`true`, "true"},
	}
	for _, tt := range tests {
		var c cell
		if err := c.UnmarshalJSON([]byte(tt.in)); err != nil {
			t.Fatalf("UnmarshalJSON(%s): %v", tt.in, err)
		}
		if string(c) != tt.want {
			t.Errorf("UnmarshalJSON(%s) = %q, want %q", tt.in, c, tt.want)
		}
	}
}
