/**
 * @description
 * Read-side aggregation for the driver agenda. Everything here is a
 * projection: day statuses are recomputed from the persisted base amounts and
 * committed allocations on every request, never stored.
 *
 * A date inside a requested range that has no persisted agenda day is treated
 * as a zero-obligation day: status pagado, no debt, nothing paid. Missing
 * days therefore never inflate a debt total.
 *
 * @dependencies
 * - internal/domain, internal/store: domain models and data access.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/choferia/agenda-service/internal/domain"
	"github.com/choferia/agenda-service/internal/store"
)

// RangeSummary totals a contiguous run of derived day statuses.
type RangeSummary struct {
	From       string                    `json:"from"`
	To         string                    `json:"to"`
	TotalDebt  int64                     `json:"total_debt"`
	TotalPaid  int64                     `json:"total_paid"`
	FrancoDays int                       `json:"franco_days"`
	Days       []domain.DerivedDayStatus `json:"days"`
}

// maxRangeDays caps aggregation requests so a bad from/to pair cannot fan out
// into an unbounded day walk.
const maxRangeDays = 366

// DayView returns the single-day detail for one date: the derived status, the
// persisted day row if any, and the day's allocations newest first.
func (s *Service) DayView(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.DayDetail, error) {
	day, err := s.repo.FindAgendaDayByDate(ctx, driverID, date)
	if err != nil {
		if errors.Is(err, store.ErrDayNotFound) {
			// Unmaterialized date: zero obligation, nothing paid.
			return &domain.DayDetail{
				DerivedDayStatus: domain.Derive(date, 0, false, 0),
				Allocations:      []domain.Allocation{},
			}, nil
		}
		return nil, err
	}

	allocations, err := s.repo.ListAllocationsByDay(ctx, driverID, day.ID)
	if err != nil {
		return nil, err
	}

	var totalApplied int64
	for _, a := range allocations {
		totalApplied += a.AmountApplied
	}

	status := domain.Derive(day.Date, day.BaseAmount, day.IsDayOff, totalApplied)
	s.warnOnNegativeDebt(driverID, status)

	return &domain.DayDetail{
		DerivedDayStatus: status,
		Day:              day,
		Allocations:      allocations,
	}, nil
}

// Aggregate derives the status of every date in the inclusive [from, to]
// range and totals debt, payments and franco days across it.
func (s *Service) Aggregate(ctx context.Context, driverID uuid.UUID, from, to time.Time) (*RangeSummary, error) {
	from = truncateToDate(from)
	to = truncateToDate(to)
	if to.Before(from) {
		return nil, fmt.Errorf("range end %s precedes start %s", to.Format(domain.DateLayout), from.Format(domain.DateLayout))
	}
	if int(to.Sub(from).Hours()/24)+1 > maxRangeDays {
		return nil, fmt.Errorf("range exceeds %d days", maxRangeDays)
	}

	persisted, err := s.repo.FindAgendaDaysWithTotals(ctx, driverID, from, to)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string]domain.DayWithTotal, len(persisted))
	for _, d := range persisted {
		byDate[d.Date.Format(domain.DateLayout)] = d
	}

	summary := &RangeSummary{
		From: from.Format(domain.DateLayout),
		To:   to.Format(domain.DateLayout),
	}
	for cursor := from; !cursor.After(to); cursor = cursor.AddDate(0, 0, 1) {
		var status domain.DerivedDayStatus
		if d, ok := byDate[cursor.Format(domain.DateLayout)]; ok {
			status = domain.Derive(cursor, d.BaseAmount, d.IsDayOff, d.TotalApplied)
		} else {
			status = domain.Derive(cursor, 0, false, 0)
		}
		s.warnOnNegativeDebt(driverID, status)

		summary.Days = append(summary.Days, status)
		summary.TotalPaid += status.TotalPaid
		if status.DayDebt > 0 {
			summary.TotalDebt += status.DayDebt
		}
		if status.FinancialStatus == domain.StatusFranco {
			summary.FrancoDays++
		}
	}
	return summary, nil
}

// AggregateDates derives the status of an arbitrary list of dates, in the
// order given. Duplicates derive twice; missing days follow the same fallback
// as Aggregate.
func (s *Service) AggregateDates(ctx context.Context, driverID uuid.UUID, dates []time.Time) ([]domain.DerivedDayStatus, error) {
	if len(dates) == 0 {
		return []domain.DerivedDayStatus{}, nil
	}

	min, max := truncateToDate(dates[0]), truncateToDate(dates[0])
	for _, d := range dates[1:] {
		d = truncateToDate(d)
		if d.Before(min) {
			min = d
		}
		if d.After(max) {
			max = d
		}
	}

	persisted, err := s.repo.FindAgendaDaysWithTotals(ctx, driverID, min, max)
	if err != nil {
		return nil, err
	}
	byDate := make(map[string]domain.DayWithTotal, len(persisted))
	for _, d := range persisted {
		byDate[d.Date.Format(domain.DateLayout)] = d
	}

	statuses := make([]domain.DerivedDayStatus, 0, len(dates))
	for _, raw := range dates {
		day := truncateToDate(raw)
		var status domain.DerivedDayStatus
		if d, ok := byDate[day.Format(domain.DateLayout)]; ok {
			status = domain.Derive(day, d.BaseAmount, d.IsDayOff, d.TotalApplied)
		} else {
			status = domain.Derive(day, 0, false, 0)
		}
		s.warnOnNegativeDebt(driverID, status)
		statuses = append(statuses, status)
	}
	return statuses, nil
}

// History returns the driver's payment history projection, newest payment first.
func (s *Service) History(ctx context.Context, driverID uuid.UUID, opts domain.HistoryOptions) ([]domain.PaymentHistoryItem, error) {
	items, err := s.repo.FindPaymentHistory(ctx, driverID, opts)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.PaymentHistoryItem{}
	}
	return items, nil
}

// warnOnNegativeDebt logs when allocations exceed a day's base amount. The
// ledger rejects that at write time, so a negative debt means the base amount
// was lowered after payments landed. The derivation reports it as is.
func (s *Service) warnOnNegativeDebt(driverID uuid.UUID, status domain.DerivedDayStatus) {
	if status.DayDebt < 0 {
		log.Printf("level=warn component=aggregate msg=\"day paid beyond base amount\" driver_id=%s date=%s day_debt=%d",
			driverID, status.Date.Format(domain.DateLayout), status.DayDebt)
	}
}

func truncateToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
