// Package flatrec reads loosely-typed flat records, such as rows imported
// from spreadsheets, where every value arrives as a string and columns may
// be missing or misnamed.
package flatrec

import (
	"strconv"
	"strings"
	"time"
)

// Row is one flat record keyed by column name. Unknown columns are simply
// never read; accessors return zero values for missing or unparsable cells.
type Row map[string]string

// String returns the trimmed cell value, or "" when absent.
func (r Row) String(col string) string {
	return strings.TrimSpace(r[col])
}

// Float parses the cell as a float, returning 0 when absent or malformed.
func (r Row) Float(col string) float64 {
	v, err := strconv.ParseFloat(r.String(col), 64)
	if err != nil {
		return 0
	}
	return v
}

// Int parses the cell as an integer, returning 0 when absent or malformed.
// Decimal values are truncated.
func (r Row) Int(col string) int {
	s := r.String(col)
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return int(f)
	}
	return 0
}

// Bool parses the cell as a boolean. Accepted true values are "true", "1",
// "yes" and "y", case-insensitively; everything else is false.
func (r Row) Bool(col string) bool {
	switch strings.ToLower(r.String(col)) {
	case "true", "1", "yes", "y":
		return true
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
	"02/01/2006",
}

// Time parses the cell with a set of common layouts, returning nil when the
// cell is absent or matches none of them.
func (r Row) Time(col string) *time.Time {
	s := r.String(col)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}
