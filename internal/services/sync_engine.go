package services

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"rette/internal/core"
	"rette/internal/log"
	"rette/internal/metrics"
	"rette/internal/sheets"
)

// SyncEngine applies payment mutations optimistically, confirms them with
// the remote source and rolls the targeted records back on failure.
//
// Only one mutation may be in flight per record id. A request touching a
// busy id fails with core.ErrMutationInProgress instead of queueing.
// Remote calls are never cancelled: a call that never returns keeps its
// ids locked.
type SyncEngine struct {
	writer    sheets.PaymentWriter
	state     *RosterState
	selection *Selection
	locks     *inFlight
	writes    *writeLog

	recorder Recorder
	metrics  *metrics.Metrics
	logger   *log.Logger
	events   *log.StructuredLogger
	now      func() time.Time
	newID    func() string
}

type EngineOption func(*SyncEngine)

// remoteCall performs the remote mutation for the locked targets and returns
// the stored date.
type remoteCall func(ctx context.Context, targets []int64) (string, error)

func WithEngineRecorder(r Recorder) EngineOption {
	return func(e *SyncEngine) { e.recorder = r }
}

func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *SyncEngine) { e.metrics = m }
}

func WithEngineLogger(l *log.Logger) EngineOption {
	return func(e *SyncEngine) { e.logger = l }
}

func WithEngineClock(now func() time.Time) EngineOption {
	return func(e *SyncEngine) { e.now = now }
}

// NewSyncEngine builds an engine. A nil writer means no source is
// configured; every mutation then fails with core.ErrSetupRequired.
func NewSyncEngine(writer sheets.PaymentWriter, state *RosterState, selection *Selection, opts ...EngineOption) *SyncEngine {
	e := &SyncEngine{
		writer:    writer,
		state:     state,
		selection: selection,
		locks:     newInFlight(),
		writes:    newWriteLog(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	if e.logger == nil {
		e.logger = log.New(log.DefaultConfig())
	}
	e.events = log.NewStructuredLogger(e.logger)
	e.logger = e.logger.WithComponent(log.ComponentEngine)
	return e
}

// Busy reports whether a mutation for id is awaiting the remote source.
func (e *SyncEngine) Busy(id int64) bool {
	return e.locks.busy(id)
}

// MarkPaid stamps the record with the source's current time. The record
// shows as pending until the source confirms. An id that is no longer in
// the roster is ignored.
func (e *SyncEngine) MarkPaid(ctx context.Context, id int64) (string, error) {
	if e.writer == nil {
		e.metrics.ObserveMutation(string(core.OpMarkPaid), metrics.ResultSetup)
		return "", core.ErrSetupRequired
	}
	return e.mutate(ctx, core.OpMarkPaid, []int64{id}, core.Pending(), "",
		func(ctx context.Context, _ []int64) (string, error) {
			return e.writer.MarkPaid(ctx, id)
		})
}

// SetPaymentDate stores an explicit date. The new value is shown right away
// and replaced by the source's echo once confirmed. Setting the date the
// record already has is a no-op.
func (e *SyncEngine) SetPaymentDate(ctx context.Context, id int64, date string) (string, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		e.metrics.ObserveMutation(string(core.OpSetDate), metrics.ResultRejected)
		return "", core.ErrEmptyDate
	}
	if e.writer == nil {
		e.metrics.ObserveMutation(string(core.OpSetDate), metrics.ResultSetup)
		return "", core.ErrSetupRequired
	}
	if _, rec, ok := e.state.Snapshot().Locate(id); ok && !rec.Payment.IsPending() && rec.Payment.Editable() == date {
		e.logger.DebugContext(ctx, "Payment date unchanged", log.FieldRecordID, id, log.FieldDate, date)
		e.metrics.ObserveMutation(string(core.OpSetDate), metrics.ResultNoop)
		return rec.Payment.Date(), nil
	}
	return e.mutate(ctx, core.OpSetDate, []int64{id}, core.Settled(date), date,
		func(ctx context.Context, _ []int64) (string, error) {
			return e.writer.SetPaymentDate(ctx, id, date)
		})
}

// MarkPaidBulk stamps every id with one shared time in a single remote
// call. Duplicates and ids no longer in the roster are dropped; an empty
// set is a no-op. Either all targets are confirmed or all are rolled back.
func (e *SyncEngine) MarkPaidBulk(ctx context.Context, ids []int64) (string, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		e.metrics.ObserveMutation(string(core.OpMarkPaidBulk), metrics.ResultNoop)
		return "", nil
	}
	if e.writer == nil {
		e.metrics.ObserveMutation(string(core.OpMarkPaidBulk), metrics.ResultSetup)
		return "", core.ErrSetupRequired
	}
	return e.mutate(ctx, core.OpMarkPaidBulk, ids, core.Pending(), "",
		func(ctx context.Context, targets []int64) (string, error) {
			return e.writer.MarkPaidBulk(ctx, targets)
		})
}

// localIDs returns the ids whose local state must survive a load fetched
// at gen: ids still in flight and ids written after gen. Call it under the
// roster writer lock so no engine write interleaves.
func (e *SyncEngine) localIDs(gen uint64) []int64 {
	ids := append(e.locks.snapshot(), e.writes.since(gen)...)
	slices.Sort(ids)
	return slices.Compact(ids)
}

// BulkTargets returns the selected ids within cohort, or the whole
// selection when cohort is empty.
func (e *SyncEngine) BulkTargets(cohort string) []int64 {
	if cohort == "" {
		return e.selection.IDs()
	}
	var out []int64
	for _, id := range e.state.Snapshot().IDs(cohort) {
		if e.selection.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

// present filters ids to those in the current roster.
func (e *SyncEngine) present(ids []int64) []int64 {
	r := e.state.Snapshot()
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if r.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}

func (e *SyncEngine) mutate(ctx context.Context, op core.Operation, ids []int64, optimistic core.PaymentState, submitted string, call remoteCall) (string, error) {
	targets := e.present(ids)
	if len(targets) < len(ids) {
		e.logger.DebugContext(ctx, "Ignoring ids not in roster",
			log.FieldOperation, op,
			log.FieldRecordIDs, without(ids, targets))
	}
	if len(targets) == 0 {
		e.metrics.ObserveMutation(string(op), metrics.ResultNoop)
		return "", nil
	}

	if !e.locks.acquire(targets) {
		e.logger.InfoContext(ctx, "Rejected mutation for busy record",
			log.FieldOperation, op,
			log.FieldRecordIDs, targets)
		e.metrics.ObserveMutation(string(op), metrics.ResultBusy)
		return "", core.ErrMutationInProgress
	}
	defer e.locks.release(targets)

	// Targets are locked, so nothing else changes their state until release.
	var prior map[int64]core.PaymentState
	e.state.Update(func(r *core.Roster) *core.Roster {
		prior = r.Payments(targets)
		e.writes.mark(targets)
		return r.WithPayments(uniform(targets, optimistic))
	})
	e.logger.DebugContext(ctx, "Applied optimistic update",
		log.FieldOperation, op,
		log.FieldRecordIDs, targets)

	done := e.metrics.StartRemote(string(op))
	confirmed, err := e.callRemote(ctx, targets, call)
	done()

	if err != nil {
		e.state.Update(func(r *core.Roster) *core.Roster {
			e.writes.mark(targets)
			return r.WithPayments(prior)
		})
		e.events.LogRollback(ctx, string(op), targets, err)
		e.metrics.ObserveMutation(string(op), metrics.ResultFailure)
		return "", &core.MutationError{Op: string(op), IDs: targets, Err: err}
	}

	e.state.Update(func(r *core.Roster) *core.Roster {
		e.writes.mark(targets)
		return r.WithPayments(uniform(targets, core.Settled(confirmed)))
	})
	e.selection.Remove(targets...)
	e.events.LogPaymentConfirmed(ctx, string(op), targets, confirmed)
	e.metrics.ObserveMutation(string(op), metrics.ResultSuccess)
	if submitted != "" && core.EditableDate(confirmed) != submitted {
		e.logger.InfoContext(ctx, "Source stored a different date than submitted",
			log.FieldRecordIDs, targets,
			"submitted", submitted,
			"stored", confirmed)
	}

	e.record(ctx, core.PaymentEvent{
		EventID:   e.newID(),
		Operation: op,
		RecordIDs: targets,
		Date:      confirmed,
		At:        e.now().UTC(),
	})
	return confirmed, nil
}

// callRemote runs the remote call detached from ctx cancellation so a
// disconnected caller cannot strand an optimistic update.
func (e *SyncEngine) callRemote(ctx context.Context, targets []int64, call remoteCall) (string, error) {
	confirmed, err := call(context.WithoutCancel(ctx), targets)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(confirmed) == "" {
		return "", sheets.ErrMalformedResponse
	}
	return confirmed, nil
}

func (e *SyncEngine) record(ctx context.Context, ev core.PaymentEvent) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.Record(context.WithoutCancel(ctx), ev); err != nil {
		e.logger.WarnContext(ctx, "Payment event not fully recorded",
			log.FieldEventID, ev.EventID,
			log.FieldError, err)
	}
}

func uniform(ids []int64, p core.PaymentState) map[int64]core.PaymentState {
	out := make(map[int64]core.PaymentState, len(ids))
	for _, id := range ids {
		out[id] = p
	}
	return out
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func without(all, keep []int64) []int64 {
	var out []int64
	for _, id := range all {
		if !slices.Contains(keep, id) {
			out = append(out, id)
		}
	}
	return out
}
