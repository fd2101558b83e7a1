package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestOverAllocationErrorMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("allocate payment: %w", &OverAllocationError{Remaining: 2500})

	if !errors.Is(err, ErrOverAllocation) {
		t.Fatal("expected wrapped over-allocation error to match ErrOverAllocation")
	}

	var overErr *OverAllocationError
	if !errors.As(err, &overErr) {
		t.Fatal("expected errors.As to recover the typed error")
	}
	if overErr.Remaining != 2500 {
		t.Errorf("expected remaining 2500, got %d", overErr.Remaining)
	}
}

func TestIsTransient(t *testing.T) {
	testCases := []struct {
		name      string
		err       error
		transient bool
	}{
		{
			name:      "serialization failure",
			err:       &pgconn.PgError{Code: "40001"},
			transient: true,
		},
		{
			name:      "deadlock detected",
			err:       &pgconn.PgError{Code: "40P01"},
			transient: true,
		},
		{
			name:      "wrapped serialization failure",
			err:       fmt.Errorf("query: %w", &pgconn.PgError{Code: "40001"}),
			transient: true,
		},
		{
			name:      "unique violation",
			err:       &pgconn.PgError{Code: "23505"},
			transient: false,
		},
		{
			name:      "over allocation",
			err:       &OverAllocationError{Remaining: 100},
			transient: false,
		},
		{
			name:      "day not found",
			err:       ErrDayNotFound,
			transient: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.transient {
				t.Errorf("IsTransient(%v) = %v, want %v", tc.err, got, tc.transient)
			}
		})
	}
}
