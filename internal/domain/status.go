/**
 * @description
 * This file holds the single financial status derivation rule for an agenda
 * day. Every read path (single-day view, calendar aggregation, history) must
 * go through DeriveDayStatus; a second copy of this rule anywhere in the
 * codebase is a bug, not a variant.
 */

package domain

import "time"

// FinancialStatus is the derived state of one agenda day. It is computed on
// every read and never stored.
type FinancialStatus string

const (
	StatusPendiente FinancialStatus = "pendiente" // owed, nothing paid
	StatusParcial   FinancialStatus = "parcial"   // owed, partially paid
	StatusPagado    FinancialStatus = "pagado"    // nothing outstanding
	StatusFranco    FinancialStatus = "franco"    // day off, no obligation
)

// DeriveDayStatus turns a day's base amount, day-off flag and committed
// allocation total into its debt and financial status. Rules apply in priority
// order; the first match wins:
//
//  1. day off            -> franco, debt 0
//  2. base amount zero   -> pagado, debt -totalApplied
//  3. nothing applied    -> pendiente, debt baseAmount
//  4. positive debt left -> parcial
//  5. otherwise          -> pagado
//
// A negative debt from rule 2 can only happen if the allocation invariant was
// bypassed; callers surface it, they do not correct it.
func DeriveDayStatus(baseAmount int64, isDayOff bool, totalApplied int64) (dayDebt int64, status FinancialStatus) {
	switch {
	case isDayOff:
		return 0, StatusFranco
	case baseAmount == 0:
		return -totalApplied, StatusPagado
	case totalApplied == 0:
		return baseAmount, StatusPendiente
	}

	dayDebt = baseAmount - totalApplied
	if dayDebt > 0 {
		return dayDebt, StatusParcial
	}
	return dayDebt, StatusPagado
}

// Derive builds the full derived view for one date.
func Derive(date time.Time, baseAmount int64, isDayOff bool, totalApplied int64) DerivedDayStatus {
	debt, status := DeriveDayStatus(baseAmount, isDayOff, totalApplied)
	return DerivedDayStatus{
		Date:            date,
		BaseAmount:      baseAmount,
		IsDayOff:        isDayOff,
		TotalPaid:       totalApplied,
		DayDebt:         debt,
		FinancialStatus: status,
	}
}
