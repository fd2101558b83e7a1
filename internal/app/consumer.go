package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/choferia/agenda-service/internal/domain"
	"github.com/choferia/agenda-service/internal/store"
)

// SeedConsumer applies seeding events published by the back-office: new
// schedule rows and base-amount corrections both arrive as SeedDayEvent.
type SeedConsumer struct {
	repo store.Repository
}

func NewSeedConsumer(repo store.Repository) *SeedConsumer {
	return &SeedConsumer{repo: repo}
}

// HandleMessage processes one delivery. Malformed payloads are acknowledged
// and dropped; store failures return false so the delivery is re-queued.
func (c *SeedConsumer) HandleMessage(body []byte) bool {
	var event domain.SeedDayEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("seed-consumer: failed to unmarshal payload: %v", err)
		return true
	}

	if event.DriverID == uuid.Nil {
		log.Printf("seed-consumer: missing driver id in event %+v", event)
		return true
	}
	if event.BaseAmount < 0 {
		log.Printf("seed-consumer: negative base amount %d for driver %s; dropping", event.BaseAmount, event.DriverID)
		return true
	}

	date, err := time.ParseInLocation(domain.DateLayout, event.Date, time.UTC)
	if err != nil {
		log.Printf("seed-consumer: invalid date %q in event for driver %s: %v", event.Date, event.DriverID, err)
		return true
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := c.processEvent(ctx, event, date); err != nil {
		log.Printf("seed-consumer: processing error for driver %s date %s: %v", event.DriverID, event.Date, err)
		return false
	}
	return true
}

func (c *SeedConsumer) processEvent(ctx context.Context, event domain.SeedDayEvent, date time.Time) error {
	day, err := c.repo.UpsertAgendaDayBaseAmount(ctx, event.DriverID, date, event.BaseAmount, event.Note)
	if err != nil {
		return fmt.Errorf("upsert agenda day: %w", err)
	}
	log.Printf("level=info component=seed_consumer msg=\"agenda day seeded\" driver_id=%s date=%s base_amount=%d",
		day.DriverID, event.Date, day.BaseAmount)
	return nil
}
