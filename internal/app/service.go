/**
 * @description
 * This file contains the core business logic for the agenda-service. The `Service`
 * struct orchestrates payment allocation, franco toggling and base-amount
 * administration, coordinating between the database repository, the Redis rate
 * limiter and the message broker.
 *
 * Key features:
 * - Validates and commits payment submissions against the day's remaining balance.
 * - Flips a date's franco flag atomically, creating the day on first toggle.
 * - Retries allocation a bounded number of times when the store reports a
 *   transient conflict.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: For driver and day identifiers.
 * - internal/domain, internal/store: For domain models and data access.
 * - pkg/rabbitmq: For event publishing.
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
	"github.com/choferia/agenda-service/pkg/rabbitmq"
)

const (
	// PaymentRateLimitScope namespaces the limiter keys for payment submissions.
	PaymentRateLimitScope = "payment_submit"

	// allocateMaxAttempts bounds the retry loop around transient store conflicts.
	allocateMaxAttempts = 3
)

// Validation sentinels for payment submissions.
var (
	ErrInvalidAmount = errors.New("payment amount must be a positive integer")
	ErrInvalidMethod = errors.New("payment method must be one of cash, transfer, other")
	ErrRateLimited   = errors.New("too many payment submissions; slow down")
)

// RateLimitedError is the concrete rate-limit rejection; it matches
// ErrRateLimited under errors.Is and carries the window reset delay so the
// handler can emit a Retry-After header.
type RateLimitedError struct {
	RetryAfterSeconds int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("too many payment submissions; retry in %ds", e.RetryAfterSeconds)
}

func (e *RateLimitedError) Is(target error) bool { return target == ErrRateLimited }

// RateLimiter is the subset of the Redis limiter the service needs. A nil
// limiter disables rate limiting.
type RateLimiter interface {
	ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (count int, retryAfterSeconds int, err error)
}

// Service provides the core business logic for the driver agenda.
type Service struct {
	repo          store.Repository
	eventProducer rabbitmq.Publisher
	rateLimiter   RateLimiter
	paymentLimit  int
}

// NewService creates a new agenda service instance.
func NewService(repo store.Repository, producer rabbitmq.Publisher, limiter RateLimiter, paymentLimitPerMinute int) *Service {
	return &Service{
		repo:          repo,
		eventProducer: producer,
		rateLimiter:   limiter,
		paymentLimit:  paymentLimitPerMinute,
	}
}

// ResolveDriverID converts the auth subject from a validated JWT into the
// internal driver UUID. Handlers accept subjects; repositories operate on UUIDs.
func (s *Service) ResolveDriverID(ctx context.Context, authSubject string) (uuid.UUID, error) {
	return s.repo.FindDriverIDByAuthSubject(ctx, authSubject)
}

// AllocatePaymentByDate validates a payment submission and commits it against
// the given date's agenda day. The date must already be materialized; a
// payment against a date with no obligation has nothing to be applied to.
func (s *Service) AllocatePaymentByDate(ctx context.Context, driverID uuid.UUID, date time.Time, req domain.AllocatePaymentRequest) (*domain.Payment, int64, error) {
	if req.Amount <= 0 {
		return nil, 0, ErrInvalidAmount
	}
	method, ok := domain.ParsePaymentMethod(req.Method)
	if !ok {
		return nil, 0, ErrInvalidMethod
	}

	if s.rateLimiter != nil && s.paymentLimit > 0 {
		count, retryAfter, err := s.rateLimiter.ConsumeRateLimit(ctx, PaymentRateLimitScope, driverID.String(), s.paymentLimit, time.Minute)
		if err != nil {
			// Limiter outages must not block payments.
			log.Printf("level=warn component=service msg=\"rate limiter unavailable; allowing request\" driver_id=%s err=%v", driverID, err)
		} else if count > s.paymentLimit {
			log.Printf("level=warn component=service msg=\"payment submission rate limited\" driver_id=%s count=%d retry_after=%d", driverID, count, retryAfter)
			return nil, 0, &RateLimitedError{RetryAfterSeconds: retryAfter}
		}
	}

	day, err := s.repo.FindAgendaDayByDate(ctx, driverID, date)
	if err != nil {
		return nil, 0, err
	}

	params := store.AllocatePaymentParams{
		DriverID:    driverID,
		AgendaDayID: day.ID,
		Amount:      req.Amount,
		Method:      method,
		Note:        req.Note,
	}

	var payment *domain.Payment
	var remaining int64
	for attempt := 1; attempt <= allocateMaxAttempts; attempt++ {
		payment, remaining, err = s.repo.AllocatePayment(ctx, params)
		if err == nil {
			break
		}
		if !store.IsTransient(err) || attempt == allocateMaxAttempts {
			return nil, remaining, err
		}
		log.Printf("level=warn component=service msg=\"transient allocate conflict; retrying\" driver_id=%s date=%s attempt=%d err=%v",
			driverID, date.Format(domain.DateLayout), attempt, err)
	}
	if err != nil {
		return nil, remaining, err
	}

	s.publishPaymentAllocated(ctx, payment, day, remaining)
	return payment, remaining, nil
}

// ToggleDayOff flips the franco flag for the given date, creating the day with
// a zero base amount if it does not exist yet.
func (s *Service) ToggleDayOff(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	day, err := s.repo.ToggleDayOff(ctx, driverID, date)
	if err != nil {
		return nil, fmt.Errorf("failed to toggle day off: %w", err)
	}

	event := domain.DayOffToggledEvent{
		DriverID:  driverID,
		Date:      day.Date.Format(domain.DateLayout),
		IsDayOff:  day.IsDayOff,
		Timestamp: time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.AgendaEventsExchange, rabbitmq.RoutingKeyDayOffToggled, event); err != nil {
		log.Printf("level=warn component=service msg=\"failed to publish day off event\" driver_id=%s date=%s err=%v",
			driverID, event.Date, err)
	}
	return day, nil
}

func (s *Service) publishPaymentAllocated(ctx context.Context, payment *domain.Payment, day *domain.AgendaDay, remaining int64) {
	event := domain.PaymentAllocatedEvent{
		PaymentID:   payment.ID,
		DriverID:    payment.DriverID,
		AgendaDayID: day.ID,
		Date:        day.Date.Format(domain.DateLayout),
		Amount:      payment.Amount,
		Method:      payment.Method,
		Remaining:   remaining,
		Timestamp:   time.Now().UTC(),
	}
	if err := s.eventProducer.Publish(ctx, rabbitmq.AgendaEventsExchange, rabbitmq.RoutingKeyPaymentAllocated, event); err != nil {
		log.Printf("level=warn component=service msg=\"failed to publish payment allocated event\" payment_id=%s err=%v", payment.ID, err)
	}
}
