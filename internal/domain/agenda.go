/**
 * @description
 * This file defines the core domain models for the agenda-service.
 * These structs represent the main entities and data transfer objects (DTOs)
 * used throughout the service's business logic, database interactions, and API layers.
 *
 * @notes
 * - Amounts are stored as `int64` to represent the value in the smallest currency
 *   unit (centavos), which avoids floating-point inaccuracies with financial data.
 * - Agenda dates carry no time-of-day component; `DateLayout` is the canonical
 *   wire format for them.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the wire format for agenda dates (calendar dates, no time component).
const DateLayout = "2006-01-02"

// PaymentMethod enumerates how a driver handed over a payment.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "cash"
	MethodTransfer PaymentMethod = "transfer"
	MethodOther    PaymentMethod = "other"
)

// ParsePaymentMethod normalizes and validates a payment method string.
func ParsePaymentMethod(raw string) (PaymentMethod, bool) {
	switch PaymentMethod(strings.TrimSpace(strings.ToLower(raw))) {
	case MethodCash:
		return MethodCash, true
	case MethodTransfer:
		return MethodTransfer, true
	case MethodOther:
		return MethodOther, true
	}
	return "", false
}

// Driver represents the subset of driver data the agenda-service needs.
// Identity (auth subject) is owned by the session provider; this service only
// resolves it to the internal UUID and scopes every query by it.
type Driver struct {
	ID                uuid.UUID `json:"id"`
	AuthSubject       string    `json:"-"`
	FullName          string    `json:"full_name"`
	DefaultBaseAmount int64     `json:"default_base_amount"` // in centavos
	Active            bool      `json:"active"`
}

// AgendaDay is one calendar date's earning obligation for one driver.
// This struct maps directly to the `agenda_days` table.
type AgendaDay struct {
	ID         uuid.UUID `json:"id"`
	DriverID   uuid.UUID `json:"driver_id"`
	Date       time.Time `json:"date"`
	BaseAmount int64     `json:"base_amount"` // in centavos, never negative
	IsDayOff   bool      `json:"is_day_off"`
	Note       *string   `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Payment is a single payment made by a driver, immutable once created.
// A payment may fund several day links; the submission path currently creates
// exactly one link crediting the full amount.
type Payment struct {
	ID        uuid.UUID     `json:"id"`
	DriverID  uuid.UUID     `json:"driver_id"`
	Amount    int64         `json:"amount"` // in centavos
	Method    PaymentMethod `json:"method"`
	Note      *string       `json:"note,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// PaymentDayLink credits part (or all) of a Payment to one AgendaDay.
// Invariant: the sum of amount_applied over a day's links never exceeds the
// day's base_amount.
type PaymentDayLink struct {
	ID          uuid.UUID `json:"id"`
	PaymentID   uuid.UUID `json:"payment_id"`
	AgendaDayID uuid.UUID `json:"agenda_day_id"`
	AmountApplied int64   `json:"amount_applied"` // positive, in centavos
}

// Allocation is one row of a day's payment list: the payment joined with the
// portion of it credited to the day.
type Allocation struct {
	Payment
	AmountApplied int64 `json:"amount_applied"`
}

// DerivedDayStatus is the derived financial state of one date. It is never
// persisted; every consumer recomputes it through DeriveDayStatus.
type DerivedDayStatus struct {
	Date            time.Time       `json:"date"`
	BaseAmount      int64           `json:"base_amount"`
	IsDayOff        bool            `json:"is_day_off"`
	TotalPaid       int64           `json:"total_paid"`
	DayDebt         int64           `json:"day_debt"`
	FinancialStatus FinancialStatus `json:"financial_status"`
}

// DayDetail is the single-day view: derived status, the persisted day row if
// one exists, and the day's allocations newest first.
type DayDetail struct {
	DerivedDayStatus
	Day         *AgendaDay   `json:"day,omitempty"`
	Allocations []Allocation `json:"allocations"`
}

// DayWithTotal is a read-model row: an agenda day joined with the committed
// sum of its allocations.
type DayWithTotal struct {
	AgendaDay
	TotalApplied int64
}

// AllocatePaymentRequest is the DTO for payment submissions.
type AllocatePaymentRequest struct {
	Amount int64   `json:"amount"` // in centavos
	Method string  `json:"method"`
	Note   *string `json:"note,omitempty"`
}

// PaymentHistoryItem flattens one PaymentDayLink joined to its Payment and
// AgendaDay for the history/report view.
type PaymentHistoryItem struct {
	LinkID           uuid.UUID     `json:"payment_day_link_id"`
	PaymentID        uuid.UUID     `json:"payment_id"`
	PaymentAmount    int64         `json:"payment_total_amount"`
	Method           PaymentMethod `json:"payment_method"`
	PaymentNote      *string       `json:"payment_note,omitempty"`
	PaymentCreatedAt time.Time     `json:"payment_created_at"`
	AmountApplied    int64         `json:"amount_applied"`
	AgendaDayID      uuid.UUID     `json:"agenda_day_id"`
	Date             time.Time     `json:"agenda_date"`
	BaseAmount       int64         `json:"day_base_amount"`
	IsDayOff         bool          `json:"is_day_off"`
	DayNote          *string       `json:"day_note,omitempty"`
}

// HistoryOptions controls the optional inclusive date range and pagination of
// the payment history projection.
type HistoryOptions struct {
	From   *time.Time
	To     *time.Time
	Limit  int
	Offset int
}
