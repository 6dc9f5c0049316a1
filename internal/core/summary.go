package core

import "time"

// CohortSummary counts the records of one cohort.
type CohortSummary struct {
	Name    string `json:"name"`
	Records int    `json:"records"`
	Overdue int    `json:"overdue"`
	Pending int    `json:"pending"`
}

// Summary is the roster-wide report at a given instant.
type Summary struct {
	Records  int             `json:"records"`
	Overdue  int             `json:"overdue"`
	Pending  int             `json:"pending"`
	ByCohort []CohortSummary `json:"by_cohort"`
}

// Summarize counts records, overdue and pending records at now.
func (r *Roster) Summarize(now time.Time) Summary {
	var s Summary
	for _, cohort := range r.CohortOrder() {
		cs := CohortSummary{Name: cohort}
		for _, rec := range r.cohorts[cohort] {
			cs.Records++
			switch rec.Payment.Status(now) {
			case StatusOverdue:
				cs.Overdue++
			case StatusPending:
				cs.Pending++
			}
		}
		s.Records += cs.Records
		s.Overdue += cs.Overdue
		s.Pending += cs.Pending
		s.ByCohort = append(s.ByCohort, cs)
	}
	return s
}
