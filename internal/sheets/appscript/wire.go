package appscript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"rette/internal/core"
	ports "rette/internal/sheets"
)

// cell decodes a spreadsheet value that may arrive as a string, a number,
// a boolean or null.
type cell string

func (c *cell) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		*c = ""
	case len(b) > 0 && b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*c = cell(s)
	case bytes.Equal(b, []byte("true")), bytes.Equal(b, []byte("false")):
		*c = cell(b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("unsupported cell value %s", b)
		}
		*c = cell(n.String())
	}
	return nil
}

type wireStudent struct {
	RowIndex        *int64 `json:"rowIndex"`
	Name            cell   `json:"name"`
	LastPaymentDate cell   `json:"lastPaymentDate"`
	Phone           cell   `json:"phone"`
	ParentName      cell   `json:"parentName"`
}

type fetchEnvelope struct {
	Success bool                     `json:"success"`
	Data    map[string][]wireStudent `json:"data"`
	Error   string                   `json:"error"`
}

type updateEnvelope struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	UpdatedDate string `json:"updatedDate"`
	Error       string `json:"error"`
}

func decodeFetch(body []byte) (core.Cohorts, error) {
	var env fetchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ports.ErrMalformedResponse, err)
	}
	if !env.Success {
		return nil, &ports.RemoteError{Message: orDefault(env.Error, "failed to fetch data")}
	}
	if env.Data == nil {
		return nil, fmt.Errorf("%w: missing data", ports.ErrMalformedResponse)
	}
	out := make(core.Cohorts, len(env.Data))
	for cohort, students := range env.Data {
		recs := make([]core.Record, 0, len(students))
		for i, s := range students {
			if s.RowIndex == nil {
				return nil, fmt.Errorf("%w: cohort %q entry %d has no rowIndex", ports.ErrMalformedResponse, cohort, i)
			}
			recs = append(recs, core.Record{
				ID:           *s.RowIndex,
				Name:         string(s.Name),
				Payment:      core.Settled(string(s.LastPaymentDate)),
				Phone:        strings.TrimSpace(string(s.Phone)),
				GuardianName: strings.TrimSpace(string(s.ParentName)),
			})
		}
		out[cohort] = recs
	}
	return out, nil
}

func decodeUpdate(body []byte) (string, error) {
	var env updateEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ports.ErrMalformedResponse, err)
	}
	if !env.Success {
		return "", &ports.RemoteError{Message: orDefault(env.Error, "failed to update payment date")}
	}
	if strings.TrimSpace(env.UpdatedDate) == "" {
		return "", fmt.Errorf("%w: missing updatedDate", ports.ErrMalformedResponse)
	}
	return env.UpdatedDate, nil
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}
