package http

import (
	"net/http"
	"time"

	"rette/internal/log"
	"rette/internal/services"
	"rette/internal/storage"
)

// mutationResult is returned by every payment endpoint. Applied is false
// when the request resolved to a no-op.
type mutationResult struct {
	IDs     []int64 `json:"ids"`
	Date    string  `json:"date,omitempty"`
	Applied bool    `json:"applied"`
}

// handleHealth is a liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status":    "ok",
		"timestamp": s.now().Format(time.RFC3339),
		"uptime":    s.now().Sub(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports ready once a roster has been loaded, even if empty.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	st := s.tracker.Status()
	code := http.StatusOK
	if st.State != services.StatusReady && st.State != services.StatusEmpty {
		code = http.StatusServiceUnavailable
	}
	NewJSONResponse().Status(code).Body(st).Write(w)
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(s.tracker.View(s.now())).Write(w)
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if err := s.tracker.Load(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(s.tracker.View(s.now())).Write(w)
}

func (s *Server) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	date, err := s.tracker.MarkPaid(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mutationResult{IDs: []int64{id}, Date: date, Applied: date != ""}).Write(w)
}

type setDateRequest struct {
	Date string `json:"date"`
}

func (s *Server) handleSetPaymentDate(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setDateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	date, err := s.tracker.SetPaymentDate(r.Context(), id, sanitizeInput(req.Date))
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(mutationResult{IDs: []int64{id}, Date: date, Applied: date != ""}).Write(w)
}

func (s *Server) handleToggleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseRecordID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	selected, err := s.tracker.ToggleSelection(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"id":             id,
		"selected":       selected,
		"selected_count": s.tracker.Selection().Len(),
	}).Write(w)
}

func (s *Server) handleToggleCohort(w http.ResponseWriter, r *http.Request) {
	cohort := sanitizeInput(r.PathValue("cohort"))
	state, err := s.tracker.ToggleCohortSelection(cohort)
	if err != nil {
		writeError(w, r, err)
		return
	}
	NewJSONResponse().Body(map[string]any{
		"cohort":         cohort,
		"selection":      state,
		"selected_count": s.tracker.Selection().Len(),
	}).Write(w)
}

// bulkRequest pays either explicit ids or the current selection, optionally
// narrowed to one cohort.
type bulkRequest struct {
	Cohort string  `json:"cohort,omitempty"`
	IDs    []int64 `json:"ids,omitempty"`
}

func (s *Server) handleBulkPay(w http.ResponseWriter, r *http.Request) {
	var req bulkRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	var (
		date string
		ids  []int64
		err  error
	)
	if len(req.IDs) > 0 {
		ids = req.IDs
		date, err = s.tracker.MarkPaidBulk(r.Context(), ids)
	} else {
		date, ids, err = s.tracker.MarkSelectedPaid(r.Context(), sanitizeInput(req.Cohort))
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ids == nil {
		ids = []int64{}
	}
	log.FromContext(r.Context()).DebugContext(r.Context(), "Bulk payment handled",
		log.FieldRecordIDs, ids, log.FieldDate, date)
	NewJSONResponse().Body(mutationResult{IDs: ids, Date: date, Applied: date != ""}).Write(w)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		ErrorResponse(http.StatusServiceUnavailable, CodeJournalDisabled, "payment journal is not configured").Write(w)
		return
	}
	var recordID int64
	if v := r.URL.Query().Get("record"); v != "" {
		n, err := parseLimit(r, "record")
		if err != nil || n == 0 {
			BadRequestError("invalid record " + sanitizeInput(v)).Write(w)
			return
		}
		recordID = int64(n)
	}
	limit, err := parseLimit(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.history.ListPayments(r.Context(), recordID, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []storage.PaymentEntry{}
	}
	NewJSONResponse().Body(map[string]any{"payments": entries}).Write(w)
}
