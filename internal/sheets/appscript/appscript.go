// Package appscript talks to a Google Apps Script web app that fronts the
// roster sheet. The script answers GET with the whole roster and POST
// (form-encoded rowIndex, rowIndexes, newDate) with the stored date.
package appscript

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rette/internal/core"
	ports "rette/internal/sheets"
)

const maxBodyBytes = 10 << 20

// Config configures a Client.
type Config struct {
	// Endpoint is the deployed web app URL.
	Endpoint string
	// RateLimit caps outbound requests per second; zero or less disables it.
	RateLimit float64
	// Timeout bounds a whole request; zero means no timeout.
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
}

type Client struct {
	endpoint string
	http     *http.Client
	limiter  *rate.Limiter
}

// Ensure interface conformance
var _ ports.RosterSource = (*Client)(nil)

// New validates the endpoint and builds a client. An empty endpoint yields
// core.ErrSetupRequired.
func New(cfg Config) (*Client, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, core.ErrSetupRequired
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid endpoint scheme %q: must be http or https", u.Scheme)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		endpoint: endpoint,
		http:     hc,
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// FetchRoster implements sheets.RosterReader.
func (c *Client) FetchRoster(ctx context.Context) (core.Cohorts, error) {
	body, err := c.do(ctx, http.MethodGet, nil)
	if err != nil {
		return nil, err
	}
	cohorts, err := decodeFetch(body)
	if err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "Fetched roster from Apps Script", "component", "sheets", "cohorts", len(cohorts))
	return cohorts, nil
}

// MarkPaid implements sheets.PaymentWriter.
func (c *Client) MarkPaid(ctx context.Context, id int64) (string, error) {
	return c.update(ctx, url.Values{"rowIndex": {strconv.FormatInt(id, 10)}})
}

// SetPaymentDate implements sheets.PaymentWriter.
func (c *Client) SetPaymentDate(ctx context.Context, id int64, date string) (string, error) {
	return c.update(ctx, url.Values{
		"rowIndex": {strconv.FormatInt(id, 10)},
		"newDate":  {date},
	})
}

// MarkPaidBulk implements sheets.PaymentWriter.
func (c *Client) MarkPaidBulk(ctx context.Context, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "", errors.New("no row indexes provided for bulk update")
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return c.update(ctx, url.Values{"rowIndexes": {strings.Join(parts, ",")}})
}

func (c *Client) update(ctx context.Context, form url.Values) (string, error) {
	body, err := c.do(ctx, http.MethodPost, form)
	if err != nil {
		return "", err
	}
	return decodeUpdate(body)
}

func (c *Client) do(ctx context.Context, method string, form url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request: %w", method, err)
	}
	defer resp.Body.Close()

	slog.DebugContext(ctx, "Apps Script response",
		"component", "sheets",
		"method", method,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("network response was not ok: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return data, nil
}
