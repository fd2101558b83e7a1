/**
 * @description
 * This file defines the `Repository` interface, which specifies the contract for all
 * data access operations required by the agenda-service. By defining an interface,
 * we decouple the application's business logic from the specific database implementation
 * (e.g., PostgreSQL), making the code more modular and easier to test.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/choferia/agenda-service/internal/domain"
)

var (
	ErrDriverNotFound = errors.New("driver not found")
	ErrDayNotFound    = errors.New("agenda day not found")
	// ErrOverAllocation is the sentinel matched by errors.Is for allocations
	// that would exceed the day's remaining balance. The concrete error is an
	// *OverAllocationError carrying the committed remaining balance.
	ErrOverAllocation = errors.New("amount exceeds remaining balance")
)

// OverAllocationError reports a rejected allocation together with the
// remaining balance committed at the time of the check, so callers can render
// an accurate message without a second read.
type OverAllocationError struct {
	Remaining int64
}

func (e *OverAllocationError) Error() string {
	return fmt.Sprintf("amount exceeds remaining balance (remaining %d)", e.Remaining)
}

func (e *OverAllocationError) Is(target error) bool { return target == ErrOverAllocation }

// AllocatePaymentParams carries one validated payment submission into the
// atomic allocate transaction.
type AllocatePaymentParams struct {
	DriverID    uuid.UUID
	AgendaDayID uuid.UUID
	Amount      int64
	Method      domain.PaymentMethod
	Note        *string
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Identity methods
	FindDriverIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error)
	ListActiveDrivers(ctx context.Context) ([]domain.Driver, error)

	// Agenda day methods
	FindAgendaDayByDate(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error)
	GetOrCreateAgendaDay(ctx context.Context, driverID uuid.UUID, date time.Time, baseAmount int64) (*domain.AgendaDay, error)
	UpsertAgendaDayBaseAmount(ctx context.Context, driverID uuid.UUID, date time.Time, baseAmount int64, note *string) (*domain.AgendaDay, error)
	ToggleDayOff(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error)

	// Ledger methods. AllocatePayment returns the created payment plus the
	// day's remaining balance after the commit.
	AllocatePayment(ctx context.Context, params AllocatePaymentParams) (*domain.Payment, int64, error)
	ListAllocationsByDay(ctx context.Context, driverID uuid.UUID, agendaDayID uuid.UUID) ([]domain.Allocation, error)

	// Read-model methods
	FindAgendaDaysWithTotals(ctx context.Context, driverID uuid.UUID, from time.Time, to time.Time) ([]domain.DayWithTotal, error)
	FindPaymentHistory(ctx context.Context, driverID uuid.UUID, opts domain.HistoryOptions) ([]domain.PaymentHistoryItem, error)
}
