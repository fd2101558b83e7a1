package app

import (
	"context"
	"log"
	"time"

	"github.com/choferia/agenda-service/internal/store"
)

// Seeder materializes upcoming agenda days for every active driver so the
// week view never starts from an empty calendar. It runs on a cron schedule
// and is idempotent: existing days keep their amounts and flags.
type Seeder struct {
	repo        store.Repository
	horizonDays int
}

func NewSeeder(repo store.Repository, horizonDays int) *Seeder {
	if horizonDays <= 0 {
		horizonDays = 7
	}
	return &Seeder{repo: repo, horizonDays: horizonDays}
}

// MaterializeUpcomingDays creates today plus the configured horizon of future
// days for each active driver, using the driver's default base amount. It
// keeps going past per-driver failures and reports the first error at the end.
func (s *Seeder) MaterializeUpcomingDays(ctx context.Context) error {
	drivers, err := s.repo.ListActiveDrivers(ctx)
	if err != nil {
		return err
	}

	today := time.Now().UTC()
	today = time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, time.UTC)

	var firstErr error
	created := 0
	for _, driver := range drivers {
		for offset := 0; offset < s.horizonDays; offset++ {
			date := today.AddDate(0, 0, offset)
			if _, err := s.repo.GetOrCreateAgendaDay(ctx, driver.ID, date, driver.DefaultBaseAmount); err != nil {
				log.Printf("level=warn component=seeder msg=\"failed to materialize day\" driver_id=%s date=%s err=%v",
					driver.ID, date.Format("2006-01-02"), err)
				if firstErr == nil {
					firstErr = err
				}
				continue
			}
			created++
		}
	}

	log.Printf("level=info component=seeder msg=\"agenda horizon materialized\" drivers=%d days=%d horizon=%d",
		len(drivers), created, s.horizonDays)
	return firstErr
}
