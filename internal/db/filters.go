// Package db provides query filter building for record listings.
package db

import (
	"strings"
	"time"
)

// Filter represents a single query filter condition.
type Filter interface {
	// SQL returns the SQL fragment for this filter
	SQL() string

	// Args returns the arguments for this filter
	Args() []interface{}

	// Valid checks if the filter is valid
	Valid() bool
}

// UserFilter scopes a query to one account.
type UserFilter struct {
	UserID string
}

// Valid checks that a user is named.
func (f *UserFilter) Valid() bool {
	return f.UserID != ""
}

// SQL returns the SQL fragment for user scoping.
func (f *UserFilter) SQL() string {
	return "user_id = ?"
}

// Args returns the arguments for user scoping.
func (f *UserFilter) Args() []interface{} {
	return []interface{}{f.UserID}
}

// TimestampRangeFilter filters a unix-timestamp column by range.
// Either boundary may be zero, meaning unbounded on that side.
type TimestampRangeFilter struct {
	Column string
	From   int64
	To     int64
}

// Valid checks that at least one boundary is set and the range is ordered.
func (f *TimestampRangeFilter) Valid() bool {
	if f.Column == "" {
		return false
	}
	if f.From == 0 && f.To == 0 {
		return false
	}
	if f.From != 0 && f.To != 0 && f.From > f.To {
		return false
	}
	return true
}

// SQL returns the SQL fragment for the configured boundaries.
func (f *TimestampRangeFilter) SQL() string {
	var parts []string
	if f.From != 0 {
		parts = append(parts, f.Column+" >= ?")
	}
	if f.To != 0 {
		parts = append(parts, f.Column+" <= ?")
	}
	return strings.Join(parts, " AND ")
}

// Args returns the arguments for the configured boundaries.
func (f *TimestampRangeFilter) Args() []interface{} {
	var args []interface{}
	if f.From != 0 {
		args = append(args, f.From)
	}
	if f.To != 0 {
		args = append(args, f.To)
	}
	return args
}

// DayRangeFilter filters a YYYY-MM-DD text column by range. Lexicographic
// comparison matches chronological order for this format.
type DayRangeFilter struct {
	Column string
	From   string
	To     string
}

// Valid checks the boundaries parse as dates.
func (f *DayRangeFilter) Valid() bool {
	if f.Column == "" || (f.From == "" && f.To == "") {
		return false
	}
	for _, day := range []string{f.From, f.To} {
		if day == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", day); err != nil {
			return false
		}
	}
	return true
}

// SQL returns the SQL fragment for the configured boundaries.
func (f *DayRangeFilter) SQL() string {
	var parts []string
	if f.From != "" {
		parts = append(parts, f.Column+" >= ?")
	}
	if f.To != "" {
		parts = append(parts, f.Column+" <= ?")
	}
	return strings.Join(parts, " AND ")
}

// Args returns the arguments for the configured boundaries.
func (f *DayRangeFilter) Args() []interface{} {
	var args []interface{}
	if f.From != "" {
		args = append(args, f.From)
	}
	if f.To != "" {
		args = append(args, f.To)
	}
	return args
}

// PendingFilter restricts to records still awaiting sync.
type PendingFilter struct{}

func (f *PendingFilter) Valid() bool         { return true }
func (f *PendingFilter) SQL() string         { return "synced = 0" }
func (f *PendingFilter) Args() []interface{} { return nil }

// BuildWhere combines valid filters into a WHERE clause. Invalid filters are
// skipped. Returns an empty clause when nothing applies.
func BuildWhere(filters ...Filter) (string, []interface{}) {
	var parts []string
	var args []interface{}

	for _, f := range filters {
		if f == nil || !f.Valid() {
			continue
		}
		parts = append(parts, f.SQL())
		args = append(args, f.Args()...)
	}

	if len(parts) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(parts, " AND "), args
}
