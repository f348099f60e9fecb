package reporting

import (
	"sort"
	"strings"
	"time"

	"qms/walkin-service/internal/models"
)

type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// ParseDirection accepts "asc" or "desc" in any case.
func ParseDirection(value string) (Direction, bool) {
	switch Direction(strings.ToLower(strings.TrimSpace(value))) {
	case Ascending:
		return Ascending, true
	case Descending:
		return Descending, true
	default:
		return "", false
	}
}

func (d Direction) Toggle() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// Filter narrows the history. A zero Start or End leaves that side of the
// date range open. Bounds are compared by calendar day, both inclusive.
type Filter struct {
	Text  string    `json:"text"`
	Start time.Time `json:"start,omitempty"`
	End   time.Time `json:"end,omitempty"`
}

func (f Filter) hasRange() bool {
	return !f.Start.IsZero() || !f.End.IsZero()
}

func (f Filter) matches(record models.HistoryRecord) bool {
	if search := strings.ToLower(strings.TrimSpace(f.Text)); search != "" {
		if !strings.Contains(strings.ToLower(record.Name), search) &&
			!strings.Contains(strings.ToLower(record.Cellphone), search) {
			return false
		}
	}
	if !f.hasRange() {
		return true
	}
	if record.Date.IsZero() {
		return false
	}
	day := dayKey(record.Date)
	if !f.Start.IsZero() && day < dayKey(f.Start) {
		return false
	}
	if !f.End.IsZero() && day > dayKey(f.End) {
		return false
	}
	return true
}

func dayKey(t time.Time) int {
	return t.Year()*10000 + int(t.Month())*100 + t.Day()
}

func FilterRecords(records []models.HistoryRecord, filter Filter) []models.HistoryRecord {
	out := make([]models.HistoryRecord, 0, len(records))
	for _, record := range records {
		if filter.matches(record) {
			out = append(out, record)
		}
	}
	return out
}

// SortByDate orders records by date in place. Records with equal dates keep
// their input order and undated records always sort last.
func SortByDate(records []models.HistoryRecord, direction Direction) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i].Date, records[j].Date
		switch {
		case a.IsZero() || b.IsZero():
			return !a.IsZero() && b.IsZero()
		case direction == Ascending:
			return a.Before(b)
		default:
			return a.After(b)
		}
	})
}

func TotalRevenue(records []models.HistoryRecord) float64 {
	total := 0.0
	for _, record := range records {
		total += record.Amount
	}
	return total
}
