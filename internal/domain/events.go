/**
 * @description
 * Message payloads exchanged over the `agenda.events` topic exchange. The
 * service publishes ledger and day-off events for downstream consumers
 * (notifications, back-office dashboards) and consumes seeding events
 * published by the back-office when schedules change.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// PaymentAllocatedEvent is published after a payment has been committed
// against an agenda day.
type PaymentAllocatedEvent struct {
	PaymentID   uuid.UUID     `json:"payment_id"`
	DriverID    uuid.UUID     `json:"driver_id"`
	AgendaDayID uuid.UUID     `json:"agenda_day_id"`
	Date        string        `json:"date"`
	Amount      int64         `json:"amount"`
	Method      PaymentMethod `json:"method"`
	Remaining   int64         `json:"remaining"`
	Timestamp   time.Time     `json:"timestamp"`
}

// DayOffToggledEvent is published after a franco flag flip.
type DayOffToggledEvent struct {
	DriverID  uuid.UUID `json:"driver_id"`
	Date      string    `json:"date"`
	IsDayOff  bool      `json:"is_day_off"`
	Timestamp time.Time `json:"timestamp"`
}

// SeedDayEvent is consumed from the back-office: it materializes or updates
// one agenda day's base amount for a driver.
type SeedDayEvent struct {
	DriverID   uuid.UUID `json:"driver_id"`
	Date       string    `json:"date"` // DateLayout
	BaseAmount int64     `json:"base_amount"`
	Note       *string   `json:"note,omitempty"`
}
