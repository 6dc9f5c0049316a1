package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"rette/internal/core"
	ports "rette/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Config configures a Sheets API client.
type Config struct {
	SpreadsheetID string
	// SheetName is the tab holding the roster (default "Sheet1").
	SheetName string
	// TimeZone is the spreadsheet's time zone; serial dates are wall clock
	// values in this zone.
	TimeZone string

	ServiceAccountJSON string
	ServiceAccountFile string

	RateLimit float64
	Timeout   time.Duration
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	loc           *time.Location
	limiter       *rate.Limiter
	timeout       time.Duration
	now           func() time.Time
}

// Ensure interface conformance
var _ ports.RosterSource = (*Client)(nil)

// New creates a Sheets client authenticated with a service account. An empty
// spreadsheet id yields core.ErrSetupRequired.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, core.ErrSetupRequired
	}
	creds, err := loadCredentials(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets service created", "component", "sheets", "sheet", cfg.SheetName)
	return newWithService(svc, cfg)
}

func newWithService(svc *gsheet.Service, cfg Config) (*Client, error) {
	sheet := strings.TrimSpace(cfg.SheetName)
	if sheet == "" {
		sheet = "Sheet1"
	}
	tz := strings.TrimSpace(cfg.TimeZone)
	if tz == "" {
		tz = core.ReferenceZone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load sheet time zone %q: %w", tz, err)
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		svc:           svc,
		spreadsheetID: strings.TrimSpace(cfg.SpreadsheetID),
		sheetName:     sheet,
		loc:           loc,
		limiter:       rate.NewLimiter(limit, 1),
		timeout:       cfg.Timeout,
		now:           time.Now,
	}, nil
}

// loadCredentials resolves service account JSON from inline config, a file,
// or GOOGLE_APPLICATION_CREDENTIALS.
func loadCredentials(ctx context.Context, cfg Config) ([]byte, error) {
	inline := strings.TrimSpace(cfg.ServiceAccountJSON)
	file := strings.TrimSpace(cfg.ServiceAccountFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		slog.InfoContext(ctx, "Using inline JSON credentials", "component", "sheets")
		return []byte(inline), nil
	case file != "":
		slog.InfoContext(ctx, "Reading credentials from file", "component", "sheets", "path", file)
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// FetchRoster reads columns A:E below the header row.
func (c *Client) FetchRoster(ctx context.Context) (core.Cohorts, error) {
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer cancel()

	rng := fmt.Sprintf("%s!A%d:E", quoteSheet(c.sheetName), firstDataRow)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("SERIAL_NUMBER").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rng, err)
	}
	return parseRoster(resp.Values, c.loc), nil
}

// MarkPaid stamps the record with the current time.
func (c *Client) MarkPaid(ctx context.Context, id int64) (string, error) {
	return c.write(ctx, []int64{id}, c.now())
}

// SetPaymentDate stores an explicit date. Date-only values are midnight UTC.
func (c *Client) SetPaymentDate(ctx context.Context, id int64, date string) (string, error) {
	t, ok := core.ParsePaymentDate(date)
	if !ok {
		return "", &ports.RemoteError{Message: fmt.Sprintf("invalid date format: %q", date)}
	}
	return c.write(ctx, []int64{id}, t)
}

// MarkPaidBulk stamps every row with one shared time in a single batch.
func (c *Client) MarkPaidBulk(ctx context.Context, ids []int64) (string, error) {
	if len(ids) == 0 {
		return "", errors.New("no row indexes provided for bulk update")
	}
	return c.write(ctx, ids, c.now())
}

func (c *Client) write(ctx context.Context, ids []int64, at time.Time) (string, error) {
	for _, id := range ids {
		if id < firstDataRow {
			return "", &ports.RemoteError{Message: fmt.Sprintf("invalid row index: %d", id)}
		}
	}
	ctx, cancel, err := c.begin(ctx)
	if err != nil {
		return "", err
	}
	defer cancel()

	cellValue := at.In(c.loc).Format(sheetDateTimeLayout)
	if len(ids) == 1 {
		rng := dateCell(c.sheetName, ids[0])
		vr := &gsheet.ValueRange{Range: rng, Values: [][]any{{cellValue}}}
		_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
			ValueInputOption("USER_ENTERED").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("update %s: %w", rng, err)
		}
	} else {
		data := make([]*gsheet.ValueRange, 0, len(ids))
		for _, id := range ids {
			data = append(data, &gsheet.ValueRange{Range: dateCell(c.sheetName, id), Values: [][]any{{cellValue}}})
		}
		req := &gsheet.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED", Data: data}
		if _, err = c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return "", fmt.Errorf("batch update %d rows: %w", len(ids), err)
		}
	}
	slog.DebugContext(ctx, "Payment date written", "component", "sheets", "rows", len(ids), "value", cellValue)
	return core.CanonicalDate(at), nil
}

// begin applies pacing and the optional per-call timeout.
func (c *Client) begin(ctx context.Context) (context.Context, context.CancelFunc, error) {
	if c.svc == nil {
		return nil, nil, errors.New("sheets service not initialized")
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, fmt.Errorf("rate limit wait: %w", err)
	}
	if c.timeout > 0 {
		ctx, cancel := context.WithTimeout(ctx, c.timeout)
		return ctx, cancel, nil
	}
	return ctx, func() {}, nil
}
