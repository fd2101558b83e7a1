/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface.
 * It contains all the necessary SQL queries to interact with the database tables
 * related to drivers, agenda days, payments and payment-day links.
 *
 * The allocate path is the one place in the service with a cross-request
 * invariant (a day's allocations never exceed its base amount); it runs inside
 * a single transaction with a row lock on the agenda day so racing submissions
 * serialize per day.
 *
 * @dependencies
 * - context, time, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/choferia/agenda-service/internal/domain"
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IsTransient reports whether an error is a retry-safe store failure:
// a serialization/deadlock conflict or a connection-level fault. Invariant
// violations are never transient.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 40001 serialization_failure, 40P01 deadlock_detected
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// FindDriverIDByAuthSubject resolves the internal driver UUID from the auth
// subject supplied by the session provider.
func (r *PostgresRepository) FindDriverIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.db.QueryRow(ctx, "SELECT id FROM drivers WHERE auth_subject = $1 AND active", subject).Scan(&id)
	if err != nil {
		if err == pgx.ErrNoRows {
			return uuid.Nil, ErrDriverNotFound
		}
		return uuid.Nil, err
	}
	return id, nil
}

// ListActiveDrivers returns every active driver; used by the agenda seeding job.
func (r *PostgresRepository) ListActiveDrivers(ctx context.Context) ([]domain.Driver, error) {
	query := `SELECT id, auth_subject, full_name, default_base_amount, active FROM drivers WHERE active ORDER BY full_name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var drivers []domain.Driver
	for rows.Next() {
		var d domain.Driver
		if err := rows.Scan(&d.ID, &d.AuthSubject, &d.FullName, &d.DefaultBaseAmount, &d.Active); err != nil {
			return nil, err
		}
		drivers = append(drivers, d)
	}
	return drivers, rows.Err()
}

const agendaDayColumns = `id, driver_id, date, base_amount, is_day_off, note, created_at, updated_at`

func scanAgendaDay(row pgx.Row) (*domain.AgendaDay, error) {
	var day domain.AgendaDay
	err := row.Scan(&day.ID, &day.DriverID, &day.Date, &day.BaseAmount, &day.IsDayOff, &day.Note, &day.CreatedAt, &day.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrDayNotFound
		}
		return nil, err
	}
	return &day, nil
}

// FindAgendaDayByDate retrieves one agenda day scoped to its owning driver.
func (r *PostgresRepository) FindAgendaDayByDate(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	query := `SELECT ` + agendaDayColumns + ` FROM agenda_days WHERE driver_id = $1 AND date = $2`
	return scanAgendaDay(r.db.QueryRow(ctx, query, driverID, normalizeDate(date)))
}

// GetOrCreateAgendaDay materializes an agenda day if it does not exist yet.
// An existing row is returned untouched; seeding never overwrites an amount an
// administrator already set.
func (r *PostgresRepository) GetOrCreateAgendaDay(ctx context.Context, driverID uuid.UUID, date time.Time, baseAmount int64) (*domain.AgendaDay, error) {
	query := `
		INSERT INTO agenda_days (id, driver_id, date, base_amount, is_day_off)
		VALUES ($1, $2, $3, $4, FALSE)
		ON CONFLICT (driver_id, date) DO UPDATE SET updated_at = agenda_days.updated_at
		RETURNING ` + agendaDayColumns
	return scanAgendaDay(r.db.QueryRow(ctx, query, uuid.New(), driverID, normalizeDate(date), baseAmount))
}

// UpsertAgendaDayBaseAmount creates or updates one day's base amount (and
// optional note). This is the administrative seeding path.
func (r *PostgresRepository) UpsertAgendaDayBaseAmount(ctx context.Context, driverID uuid.UUID, date time.Time, baseAmount int64, note *string) (*domain.AgendaDay, error) {
	query := `
		INSERT INTO agenda_days (id, driver_id, date, base_amount, note)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (driver_id, date) DO UPDATE SET
			base_amount = EXCLUDED.base_amount,
			note = COALESCE(EXCLUDED.note, agenda_days.note),
			updated_at = NOW()
		RETURNING ` + agendaDayColumns
	return scanAgendaDay(r.db.QueryRow(ctx, query, uuid.New(), driverID, normalizeDate(date), baseAmount, note))
}

// ToggleDayOff flips the franco flag in a single upsert statement, so the
// read-then-flip cannot lose a concurrent toggle. A missing day is created
// with a zero base amount and the flag set.
func (r *PostgresRepository) ToggleDayOff(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	query := `
		INSERT INTO agenda_days (id, driver_id, date, base_amount, is_day_off)
		VALUES ($1, $2, $3, 0, TRUE)
		ON CONFLICT (driver_id, date) DO UPDATE SET
			is_day_off = NOT agenda_days.is_day_off,
			updated_at = NOW()
		RETURNING ` + agendaDayColumns
	return scanAgendaDay(r.db.QueryRow(ctx, query, uuid.New(), driverID, normalizeDate(date)))
}

// AllocatePayment commits one payment and its day link atomically, or nothing
// at all. The agenda day row is locked FOR UPDATE for the duration of the
// transaction so the remaining-balance check is evaluated against committed
// state, never a stale read.
func (r *PostgresRepository) AllocatePayment(ctx context.Context, params AllocatePaymentParams) (*domain.Payment, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback(ctx)

	var baseAmount int64
	err = tx.QueryRow(ctx,
		"SELECT base_amount FROM agenda_days WHERE id = $1 AND driver_id = $2 FOR UPDATE",
		params.AgendaDayID, params.DriverID,
	).Scan(&baseAmount)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, 0, ErrDayNotFound
		}
		return nil, 0, err
	}

	var applied int64
	err = tx.QueryRow(ctx,
		"SELECT COALESCE(SUM(amount_applied), 0) FROM payment_day_links WHERE agenda_day_id = $1",
		params.AgendaDayID,
	).Scan(&applied)
	if err != nil {
		return nil, 0, err
	}

	remaining := baseAmount - applied
	if params.Amount > remaining {
		return nil, remaining, &OverAllocationError{Remaining: remaining}
	}

	payment := &domain.Payment{
		ID:       uuid.New(),
		DriverID: params.DriverID,
		Amount:   params.Amount,
		Method:   params.Method,
		Note:     params.Note,
	}
	err = tx.QueryRow(ctx,
		`INSERT INTO payments (id, driver_id, amount, method, note) VALUES ($1, $2, $3, $4, $5) RETURNING created_at`,
		payment.ID, payment.DriverID, payment.Amount, payment.Method, payment.Note,
	).Scan(&payment.CreatedAt)
	if err != nil {
		return nil, 0, fmt.Errorf("insert payment: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO payment_day_links (id, payment_id, agenda_day_id, amount_applied) VALUES ($1, $2, $3, $4)`,
		uuid.New(), payment.ID, params.AgendaDayID, params.Amount,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("insert payment day link: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, 0, err
	}
	return payment, remaining - params.Amount, nil
}

// ListAllocationsByDay returns the day's payments newest first. Ownership is
// enforced through the join on the driver column.
func (r *PostgresRepository) ListAllocationsByDay(ctx context.Context, driverID uuid.UUID, agendaDayID uuid.UUID) ([]domain.Allocation, error) {
	query := `
		SELECT p.id, p.driver_id, p.amount, p.method, p.note, p.created_at, l.amount_applied
		FROM payment_day_links l
		JOIN payments p ON p.id = l.payment_id
		JOIN agenda_days d ON d.id = l.agenda_day_id
		WHERE l.agenda_day_id = $1 AND d.driver_id = $2
		ORDER BY p.created_at DESC
	`
	rows, err := r.db.Query(ctx, query, agendaDayID, driverID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var allocations []domain.Allocation
	for rows.Next() {
		var a domain.Allocation
		if err := rows.Scan(&a.ID, &a.DriverID, &a.Amount, &a.Method, &a.Note, &a.CreatedAt, &a.AmountApplied); err != nil {
			return nil, err
		}
		allocations = append(allocations, a)
	}
	return allocations, rows.Err()
}

// FindAgendaDaysWithTotals returns every persisted day in the inclusive range
// joined with its committed allocation total. Missing dates are the
// aggregator's problem, not the store's.
func (r *PostgresRepository) FindAgendaDaysWithTotals(ctx context.Context, driverID uuid.UUID, from time.Time, to time.Time) ([]domain.DayWithTotal, error) {
	query := `
		SELECT d.id, d.driver_id, d.date, d.base_amount, d.is_day_off, d.note, d.created_at, d.updated_at,
		       COALESCE(SUM(l.amount_applied), 0) AS total_applied
		FROM agenda_days d
		LEFT JOIN payment_day_links l ON l.agenda_day_id = d.id
		WHERE d.driver_id = $1 AND d.date BETWEEN $2 AND $3
		GROUP BY d.id
		ORDER BY d.date
	`
	rows, err := r.db.Query(ctx, query, driverID, normalizeDate(from), normalizeDate(to))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []domain.DayWithTotal
	for rows.Next() {
		var d domain.DayWithTotal
		err := rows.Scan(&d.ID, &d.DriverID, &d.Date, &d.BaseAmount, &d.IsDayOff, &d.Note, &d.CreatedAt, &d.UpdatedAt, &d.TotalApplied)
		if err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}

// FindPaymentHistory flattens every payment-day link joined to its payment and
// day, filtered by the optional inclusive date range, newest payment first.
func (r *PostgresRepository) FindPaymentHistory(ctx context.Context, driverID uuid.UUID, opts domain.HistoryOptions) ([]domain.PaymentHistoryItem, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 500 {
		limit = 500
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT l.id, p.id, p.amount, p.method, p.note, p.created_at,
		       l.amount_applied,
		       d.id, d.date, d.base_amount, d.is_day_off, d.note
		FROM payment_day_links l
		JOIN payments p ON p.id = l.payment_id
		JOIN agenda_days d ON d.id = l.agenda_day_id
		WHERE d.driver_id = $1
	`
	args := []interface{}{driverID}
	argPos := 2
	if opts.From != nil {
		query += fmt.Sprintf(" AND d.date >= $%d", argPos)
		args = append(args, normalizeDate(*opts.From))
		argPos++
	}
	if opts.To != nil {
		query += fmt.Sprintf(" AND d.date <= $%d", argPos)
		args = append(args, normalizeDate(*opts.To))
		argPos++
	}
	query += fmt.Sprintf(" ORDER BY p.created_at DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.PaymentHistoryItem, 0, limit)
	for rows.Next() {
		var item domain.PaymentHistoryItem
		err := rows.Scan(
			&item.LinkID,
			&item.PaymentID,
			&item.PaymentAmount,
			&item.Method,
			&item.PaymentNote,
			&item.PaymentCreatedAt,
			&item.AmountApplied,
			&item.AgendaDayID,
			&item.Date,
			&item.BaseAmount,
			&item.IsDayOff,
			&item.DayNote,
		)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// normalizeDate strips the time-of-day component so DATE columns compare
// consistently regardless of the caller's clock or zone.
func normalizeDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
