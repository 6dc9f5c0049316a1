package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"rette/internal/core"
	"rette/internal/log"
	"rette/internal/metrics"
	"rette/internal/sheets"
)

// LoadStatus is the outcome of the most recent load.
type LoadStatus string

const (
	StatusLoading       LoadStatus = "loading"
	StatusSetupRequired LoadStatus = "setup_required"
	StatusError         LoadStatus = "error"
	StatusEmpty         LoadStatus = "empty"
	StatusReady         LoadStatus = "ready"
)

// TrackerStatus describes the last load attempt.
type TrackerStatus struct {
	State    LoadStatus `json:"state"`
	Message  string     `json:"message,omitempty"`
	LoadedAt time.Time  `json:"loaded_at,omitzero"`
}

// Tracker is the single entry point for the roster, the selection and the
// payment mutations.
type Tracker struct {
	state     *RosterState
	selection *Selection
	loader    *Loader
	engine    *SyncEngine
	logger    *log.Logger
	now       func() time.Time

	mu     sync.RWMutex
	status TrackerStatus
}

type trackerOptions struct {
	recorder Recorder
	metrics  *metrics.Metrics
	logger   *log.Logger
	now      func() time.Time
}

type TrackerOption func(*trackerOptions)

func WithRecorder(r Recorder) TrackerOption {
	return func(o *trackerOptions) { o.recorder = r }
}

func WithMetrics(m *metrics.Metrics) TrackerOption {
	return func(o *trackerOptions) { o.metrics = m }
}

func WithLogger(l *log.Logger) TrackerOption {
	return func(o *trackerOptions) { o.logger = l }
}

// WithClock sets the clock used for views and event timestamps.
func WithClock(now func() time.Time) TrackerOption {
	return func(o *trackerOptions) { o.now = now }
}

// NewTracker wires the components around source. A nil source reports
// setup required for every data operation.
func NewTracker(source sheets.RosterSource, opts ...TrackerOption) *Tracker {
	o := trackerOptions{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = log.New(log.DefaultConfig())
	}

	var (
		reader sheets.RosterReader
		writer sheets.PaymentWriter
	)
	if source != nil {
		reader, writer = source, source
	}

	state := NewRosterState()
	selection := NewSelection()
	engineOpts := []EngineOption{
		WithEngineMetrics(o.metrics),
		WithEngineLogger(o.logger),
		WithEngineClock(o.now),
	}
	if o.recorder != nil {
		engineOpts = append(engineOpts, WithEngineRecorder(o.recorder))
	}
	loader := NewLoader(reader, o.metrics, o.logger)
	engine := NewSyncEngine(writer, state, selection, engineOpts...)
	loader.generation = engine.writes.current
	return &Tracker{
		state:     state,
		selection: selection,
		loader:    loader,
		engine:    engine,
		logger:    o.logger.WithComponent(log.ComponentTracker),
		now:       o.now,
		status:    TrackerStatus{State: StatusLoading},
	}
}

// Load fetches the roster and replaces the current snapshot. Records with
// a mutation in flight, or written locally after the fetch was issued,
// keep their local state. The selection is pruned to
// ids present in the new roster.
func (t *Tracker) Load(ctx context.Context) error {
	t.setStatus(TrackerStatus{State: StatusLoading})

	roster, gen, err := t.loader.load(ctx)
	switch {
	case errors.Is(err, core.ErrSetupRequired):
		t.setStatus(TrackerStatus{State: StatusSetupRequired, Message: err.Error()})
		return err
	case err != nil:
		msg := err.Error()
		var le *core.LoadError
		if errors.As(err, &le) {
			msg = le.Message()
		}
		t.setStatus(TrackerStatus{State: StatusError, Message: msg})
		return err
	}

	// Records in flight or written locally after the fetch was issued keep
	// their local state; the fetched value may predate the write.
	var kept []int64
	t.state.Update(func(cur *core.Roster) *core.Roster {
		kept = t.engine.localIDs(gen)
		return roster.WithPayments(cur.Payments(kept))
	})
	t.selection.Retain(t.state.Snapshot().Contains)

	st := TrackerStatus{State: StatusReady, LoadedAt: t.now()}
	if roster.IsEmpty() {
		st.State = StatusEmpty
	}
	t.setStatus(st)
	if len(kept) > 0 {
		t.logger.DebugContext(ctx, "Kept local state for records changed during load", log.FieldRecordIDs, kept)
	}
	return nil
}

func (t *Tracker) setStatus(st TrackerStatus) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = st
}

func (t *Tracker) Status() TrackerStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Roster returns the current immutable snapshot.
func (t *Tracker) Roster() *core.Roster {
	return t.state.Snapshot()
}

// Selection exposes the selection for read-only queries.
func (t *Tracker) Selection() *Selection {
	return t.selection
}

// View renders the ordered roster, summary and selection at now.
func (t *Tracker) View(now time.Time) RosterView {
	return buildView(t.state.Snapshot(), t.selection, t.engine.Busy, t.Status(), now)
}

// ToggleSelection flips the selection of a record and reports whether it
// is now selected.
func (t *Tracker) ToggleSelection(id int64) (bool, error) {
	if !t.state.Snapshot().Contains(id) {
		return false, core.ErrNotFound
	}
	return t.selection.Toggle(id), nil
}

// ToggleCohortSelection selects the rest of a cohort, or clears it when
// every record is already selected.
func (t *Tracker) ToggleCohortSelection(cohort string) (GroupState, error) {
	ids := t.state.Snapshot().IDs(cohort)
	if len(ids) == 0 {
		return GroupNone, core.ErrNotFound
	}
	return t.selection.ToggleAll(ids), nil
}

func (t *Tracker) MarkPaid(ctx context.Context, id int64) (string, error) {
	return t.engine.MarkPaid(ctx, id)
}

func (t *Tracker) SetPaymentDate(ctx context.Context, id int64, date string) (string, error) {
	return t.engine.SetPaymentDate(ctx, id, date)
}

func (t *Tracker) MarkPaidBulk(ctx context.Context, ids []int64) (string, error) {
	return t.engine.MarkPaidBulk(ctx, ids)
}

// MarkSelectedPaid bulk-pays the selection within cohort, or the whole
// selection when cohort is empty.
func (t *Tracker) MarkSelectedPaid(ctx context.Context, cohort string) (string, []int64, error) {
	ids := t.engine.BulkTargets(cohort)
	date, err := t.engine.MarkPaidBulk(ctx, ids)
	return date, ids, err
}
