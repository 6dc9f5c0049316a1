package storage

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

const insertPaymentEvent = `INSERT OR IGNORE INTO payment_events (event_id, operation, payment_date, recorded_at)
VALUES (?, ?, ?, ?)`

type InsertPaymentEventParams struct {
	EventID     string
	Operation   string
	PaymentDate string
	RecordedAt  string
}

// InsertPaymentEvent reports whether a new row was written. A repeated
// event id is ignored.
func (q *Queries) InsertPaymentEvent(ctx context.Context, arg InsertPaymentEventParams) (bool, error) {
	res, err := q.db.ExecContext(ctx, insertPaymentEvent,
		arg.EventID,
		arg.Operation,
		arg.PaymentDate,
		arg.RecordedAt,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

const insertPaymentRecord = `INSERT OR IGNORE INTO payment_records (event_id, record_id) VALUES (?, ?)`

func (q *Queries) InsertPaymentRecord(ctx context.Context, eventID string, recordID int64) error {
	_, err := q.db.ExecContext(ctx, insertPaymentRecord, eventID, recordID)
	return err
}

const listPayments = `SELECT e.event_id, e.operation, r.record_id, e.payment_date, e.recorded_at
FROM payment_records r
JOIN payment_events e ON e.event_id = r.event_id
ORDER BY e.recorded_at DESC, r.record_id ASC
LIMIT ?`

const listPaymentsByRecord = `SELECT e.event_id, e.operation, r.record_id, e.payment_date, e.recorded_at
FROM payment_records r
JOIN payment_events e ON e.event_id = r.event_id
WHERE r.record_id = ?
ORDER BY e.recorded_at DESC
LIMIT ?`

type PaymentRow struct {
	EventID     string
	Operation   string
	RecordID    int64
	PaymentDate string
	RecordedAt  string
}

func (q *Queries) ListPayments(ctx context.Context, limit int64) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPayments, limit)
	if err != nil {
		return nil, err
	}
	return scanPaymentRows(rows)
}

func (q *Queries) ListPaymentsByRecord(ctx context.Context, recordID, limit int64) ([]PaymentRow, error) {
	rows, err := q.db.QueryContext(ctx, listPaymentsByRecord, recordID, limit)
	if err != nil {
		return nil, err
	}
	return scanPaymentRows(rows)
}

func scanPaymentRows(rows *sql.Rows) ([]PaymentRow, error) {
	defer rows.Close()
	var items []PaymentRow
	for rows.Next() {
		var i PaymentRow
		if err := rows.Scan(
			&i.EventID,
			&i.Operation,
			&i.RecordID,
			&i.PaymentDate,
			&i.RecordedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
