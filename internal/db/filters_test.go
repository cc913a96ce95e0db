package db

import "testing"

func TestBuildWhereCombinesFilters(t *testing.T) {
	where, args := BuildWhere(
		&UserFilter{UserID: "user-1"},
		&DayRangeFilter{Column: "date", From: "2026-01-01", To: "2026-01-31"},
	)
	if where != " WHERE user_id = ? AND date >= ? AND date <= ?" {
		t.Errorf("unexpected clause: %q", where)
	}
	if len(args) != 3 {
		t.Errorf("expected 3 args, got %d", len(args))
	}
}

func TestBuildWhereSkipsInvalidFilters(t *testing.T) {
	where, args := BuildWhere(
		&UserFilter{},
		&DayRangeFilter{Column: "date"},
		nil,
	)
	if where != "" || args != nil {
		t.Errorf("expected empty clause for invalid filters, got %q / %v", where, args)
	}
}

func TestTimestampRangeFilter(t *testing.T) {
	tests := []struct {
		name  string
		f     TimestampRangeFilter
		valid bool
		sql   string
	}{
		{"both bounds", TimestampRangeFilter{Column: "occurred_at", From: 100, To: 200}, true, "occurred_at >= ? AND occurred_at <= ?"},
		{"from only", TimestampRangeFilter{Column: "occurred_at", From: 100}, true, "occurred_at >= ?"},
		{"to only", TimestampRangeFilter{Column: "occurred_at", To: 200}, true, "occurred_at <= ?"},
		{"no bounds", TimestampRangeFilter{Column: "occurred_at"}, false, ""},
		{"inverted range", TimestampRangeFilter{Column: "occurred_at", From: 200, To: 100}, false, ""},
		{"no column", TimestampRangeFilter{From: 100}, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.f.Valid(); got != tt.valid {
				t.Fatalf("Valid() = %v, want %v", got, tt.valid)
			}
			if tt.valid && tt.f.SQL() != tt.sql {
				t.Errorf("SQL() = %q, want %q", tt.f.SQL(), tt.sql)
			}
		})
	}
}

func TestDayRangeFilterRejectsMalformedDates(t *testing.T) {
	f := &DayRangeFilter{Column: "date", From: "not-a-date"}
	if f.Valid() {
		t.Error("expected malformed date to be invalid")
	}

	f = &DayRangeFilter{Column: "date", From: "2026-08-29"}
	if !f.Valid() {
		t.Error("expected well-formed date to be valid")
	}
}

func TestPendingFilter(t *testing.T) {
	where, args := BuildWhere(&UserFilter{UserID: "u"}, &PendingFilter{})
	if where != " WHERE user_id = ? AND synced = 0" {
		t.Errorf("unexpected clause: %q", where)
	}
	if len(args) != 1 {
		t.Errorf("expected 1 arg, got %d", len(args))
	}
}
