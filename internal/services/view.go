package services

import (
	"time"

	"rette/internal/core"
)

// RosterView is the presentation-ready roster at one instant.
type RosterView struct {
	Status        LoadStatus   `json:"status"`
	Message       string       `json:"message,omitempty"`
	Cohorts       []CohortView `json:"cohorts"`
	Summary       core.Summary `json:"summary"`
	SelectedCount int          `json:"selected_count"`
}

type CohortView struct {
	Name          string       `json:"name"`
	Selection     GroupState   `json:"selection"`
	SelectedCount int          `json:"selected_count"`
	Records       []RecordView `json:"records"`
}

type RecordView struct {
	ID              int64       `json:"id"`
	Name            string      `json:"name"`
	Phone           string      `json:"phone,omitempty"`
	GuardianName    string      `json:"guardian_name,omitempty"`
	LastPaymentDate string      `json:"last_payment_date"`
	Display         string      `json:"display_date"`
	Editable        string      `json:"editable_date"`
	Status          core.Status `json:"status"`
	Selected        bool        `json:"selected"`
	Busy            bool        `json:"busy"`
}

func buildView(r *core.Roster, sel *Selection, busy func(int64) bool, st TrackerStatus, now time.Time) RosterView {
	v := RosterView{
		Status:        st.State,
		Message:       st.Message,
		Cohorts:       make([]CohortView, 0, len(r.CohortOrder())),
		Summary:       r.Summarize(now),
		SelectedCount: sel.Len(),
	}
	for _, name := range r.CohortOrder() {
		ids := r.IDs(name)
		cv := CohortView{
			Name:          name,
			Selection:     sel.State(ids),
			SelectedCount: sel.CountWithin(ids),
		}
		for _, rec := range r.Ordered(name, now) {
			cv.Records = append(cv.Records, RecordView{
				ID:              rec.ID,
				Name:            rec.Name,
				Phone:           rec.Phone,
				GuardianName:    rec.GuardianName,
				LastPaymentDate: rec.Payment.String(),
				Display:         rec.Payment.Display(),
				Editable:        rec.Payment.Editable(),
				Status:          rec.Payment.Status(now),
				Selected:        sel.Contains(rec.ID),
				Busy:            busy(rec.ID),
			})
		}
		v.Cohorts = append(v.Cohorts, cv)
	}
	return v
}
