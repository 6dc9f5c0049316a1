package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"rette/internal/core"

	_ "modernc.org/sqlite"
)

// DefaultHistoryLimit caps ListPayments when no limit is given.
const DefaultHistoryLimit = 50

// recordedAtLayout is fixed width so that text order is time order.
const recordedAtLayout = "2006-01-02T15:04:05.000000000Z"

// Journal is an append-only sqlite log of confirmed payments.
type Journal struct {
	db      *sql.DB
	queries *Queries
}

// PaymentEntry is one record's share of a confirmed payment event.
type PaymentEntry struct {
	EventID   string         `json:"event_id"`
	Operation core.Operation `json:"operation"`
	RecordID  int64          `json:"record_id"`
	Date      string         `json:"date"`
	At        time.Time      `json:"at"`
}

func NewJournal(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// sqlite serializes writers; one connection avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Journal{
		db:      db,
		queries: New(db),
	}, nil
}

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

func (j *Journal) Name() string { return "journal" }

// Record stores the event and one row per record id in a single
// transaction. Recording the same event id twice is a no-op.
func (j *Journal) Record(ctx context.Context, ev core.PaymentEvent) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	q := j.queries.WithTx(tx)
	inserted, err := q.InsertPaymentEvent(ctx, InsertPaymentEventParams{
		EventID:     ev.EventID,
		Operation:   string(ev.Operation),
		PaymentDate: ev.Date,
		RecordedAt:  ev.At.UTC().Format(recordedAtLayout),
	})
	if err != nil {
		return fmt.Errorf("insert payment event: %w", err)
	}
	if !inserted {
		slog.DebugContext(ctx, "Payment event already journaled", "event_id", ev.EventID)
		return nil
	}
	for _, id := range ev.RecordIDs {
		if err := q.InsertPaymentRecord(ctx, ev.EventID, id); err != nil {
			return fmt.Errorf("insert payment record %d: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	slog.DebugContext(ctx, "Payment event journaled",
		"event_id", ev.EventID,
		"operation", ev.Operation,
		"records", len(ev.RecordIDs))
	return nil
}

// ListPayments returns the newest entries first. recordID 0 lists every
// record; limit <= 0 uses DefaultHistoryLimit.
func (j *Journal) ListPayments(ctx context.Context, recordID int64, limit int) ([]PaymentEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var (
		rows []PaymentRow
		err  error
	)
	if recordID == 0 {
		rows, err = j.queries.ListPayments(ctx, int64(limit))
	} else {
		rows, err = j.queries.ListPaymentsByRecord(ctx, recordID, int64(limit))
	}
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}

	entries := make([]PaymentEntry, 0, len(rows))
	for _, r := range rows {
		at, err := time.Parse(recordedAtLayout, r.RecordedAt)
		if err != nil {
			return nil, fmt.Errorf("parse recorded_at for event %s: %w", r.EventID, err)
		}
		entries = append(entries, PaymentEntry{
			EventID:   r.EventID,
			Operation: core.Operation(r.Operation),
			RecordID:  r.RecordID,
			Date:      r.PaymentDate,
			At:        at,
		})
	}
	return entries, nil
}
