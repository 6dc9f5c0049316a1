package google

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"rette/internal/core"
)

// Row 1 is the header; the record id is the 1-based sheet row.
const firstDataRow = 2

const sheetDateTimeLayout = "2006-01-02 15:04:05"

// Roster columns.
const (
	colCohort = iota
	colName
	colDate
	colPhone
	colGuardian
)

// parseRoster groups the A:E matrix by cohort. Rows without a cohort are
// skipped.
func parseRoster(values [][]interface{}, loc *time.Location) core.Cohorts {
	out := core.Cohorts{}
	for i, row := range values {
		cohort := cellText(safeGet(row, colCohort))
		if cohort == "" {
			continue
		}
		out[cohort] = append(out[cohort], core.Record{
			ID:           int64(i + firstDataRow),
			Name:         cellText(safeGet(row, colName)),
			Payment:      core.Settled(cellDate(safeGet(row, colDate), loc)),
			Phone:        cellText(safeGet(row, colPhone)),
			GuardianName: cellText(safeGet(row, colGuardian)),
		})
	}
	return out
}

func safeGet(row []interface{}, idx int) interface{} {
	if idx < 0 || idx >= len(row) {
		return nil
	}
	return row[idx]
}

func cellText(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// cellDate renders a date cell as a canonical UTC timestamp. Numbers are
// serial dates. Text in the layout this client writes is read in loc, since
// a plain-text column keeps it verbatim; other text is passed through for
// the date rules to interpret.
func cellDate(v interface{}, loc *time.Location) string {
	switch x := v.(type) {
	case float64:
		return core.CanonicalDate(serialToTime(x, loc))
	default:
		text := cellText(v)
		if t, err := time.ParseInLocation(sheetDateTimeLayout, text, loc); err == nil {
			return core.CanonicalDate(t)
		}
		return text
	}
}

// serialToTime converts a spreadsheet serial number (days since 1899-12-30,
// fractional part is time of day) to an instant in loc.
func serialToTime(serial float64, loc *time.Location) time.Time {
	days := math.Floor(serial)
	secs := math.Round((serial - days) * 86400)
	return time.Date(1899, time.December, 30+int(days), 0, 0, int(secs), 0, loc)
}

func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func dateCell(sheet string, id int64) string {
	return fmt.Sprintf("%s!C%d", quoteSheet(sheet), id)
}
