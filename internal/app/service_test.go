package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/choferia/agenda-service/internal/domain"
	"github.com/choferia/agenda-service/internal/store"
)

type allocateRepoStub struct {
	store.Repository

	day          *domain.AgendaDay
	findDayErr   error
	allocateErrs []error
	payment      *domain.Payment
	remaining    int64

	allocateCalls  int
	allocateParams store.AllocatePaymentParams
	toggledDay     *domain.AgendaDay
	toggleErr      error
}

func (s *allocateRepoStub) FindAgendaDayByDate(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	if s.findDayErr != nil {
		return nil, s.findDayErr
	}
	return s.day, nil
}

func (s *allocateRepoStub) AllocatePayment(ctx context.Context, params store.AllocatePaymentParams) (*domain.Payment, int64, error) {
	s.allocateCalls++
	s.allocateParams = params
	if len(s.allocateErrs) > 0 {
		err := s.allocateErrs[0]
		s.allocateErrs = s.allocateErrs[1:]
		if err != nil {
			return nil, s.remaining, err
		}
	}
	return s.payment, s.remaining, nil
}

func (s *allocateRepoStub) ToggleDayOff(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	if s.toggleErr != nil {
		return nil, s.toggleErr
	}
	return s.toggledDay, nil
}

type publisherStub struct {
	published  []string
	publishErr error
}

func (p *publisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.published = append(p.published, routingKey)
	return p.publishErr
}

func (p *publisherStub) Close() {}

type limiterStub struct {
	count      int
	retryAfter int
	err        error
}

func (l *limiterStub) ConsumeRateLimit(ctx context.Context, scope, subject string, limit int, window time.Duration) (int, int, error) {
	return l.count, l.retryAfter, l.err
}

func makeDay(driverID uuid.UUID, base int64) *domain.AgendaDay {
	return &domain.AgendaDay{
		ID:         uuid.New(),
		DriverID:   driverID,
		Date:       time.Date(2026, time.August, 31, 0, 0, 0, 0, time.UTC),
		BaseAmount: base,
	}
}

func TestAllocatePaymentRejectsInvalidInput(t *testing.T) {
	svc := NewService(&allocateRepoStub{}, &publisherStub{}, nil, 0)
	driverID := uuid.New()
	date := time.Now()

	_, _, err := svc.AllocatePaymentByDate(context.Background(), driverID, date, domain.AllocatePaymentRequest{Amount: 0, Method: "cash"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for zero amount, got %v", err)
	}

	_, _, err = svc.AllocatePaymentByDate(context.Background(), driverID, date, domain.AllocatePaymentRequest{Amount: -500, Method: "cash"})
	if !errors.Is(err, ErrInvalidAmount) {
		t.Errorf("expected ErrInvalidAmount for negative amount, got %v", err)
	}

	_, _, err = svc.AllocatePaymentByDate(context.Background(), driverID, date, domain.AllocatePaymentRequest{Amount: 100, Method: "bitcoin"})
	if !errors.Is(err, ErrInvalidMethod) {
		t.Errorf("expected ErrInvalidMethod, got %v", err)
	}
}

func TestAllocatePaymentRequiresExistingDay(t *testing.T) {
	repo := &allocateRepoStub{findDayErr: store.ErrDayNotFound}
	svc := NewService(repo, &publisherStub{}, nil, 0)

	_, _, err := svc.AllocatePaymentByDate(context.Background(), uuid.New(), time.Now(), domain.AllocatePaymentRequest{Amount: 100, Method: "cash"})
	if !errors.Is(err, store.ErrDayNotFound) {
		t.Errorf("expected ErrDayNotFound, got %v", err)
	}
	if repo.allocateCalls != 0 {
		t.Errorf("expected no allocate attempt, got %d", repo.allocateCalls)
	}
}

func TestAllocatePaymentSuccessPublishesEvent(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	repo := &allocateRepoStub{
		day: day,
		payment: &domain.Payment{
			ID:       uuid.New(),
			DriverID: driverID,
			Amount:   20000,
			Method:   domain.MethodCash,
		},
		remaining: 30000,
	}
	producer := &publisherStub{}
	svc := NewService(repo, producer, nil, 0)

	payment, remaining, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 20000, Method: "Cash"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payment == nil || payment.Amount != 20000 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if remaining != 30000 {
		t.Errorf("expected remaining 30000, got %d", remaining)
	}
	if repo.allocateParams.Method != domain.MethodCash {
		t.Errorf("expected normalized method cash, got %q", repo.allocateParams.Method)
	}
	if len(producer.published) != 1 || producer.published[0] != "payment.allocated" {
		t.Errorf("expected one payment.allocated event, got %v", producer.published)
	}
}

func TestAllocatePaymentRetriesTransientConflicts(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	repo := &allocateRepoStub{
		day:          day,
		allocateErrs: []error{&pgconn.PgError{Code: "40001"}, nil},
		payment:      &domain.Payment{ID: uuid.New(), DriverID: driverID, Amount: 100, Method: domain.MethodCash},
		remaining:    49900,
	}
	svc := NewService(repo, &publisherStub{}, nil, 0)

	_, _, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 100, Method: "cash"})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if repo.allocateCalls != 2 {
		t.Errorf("expected 2 allocate attempts, got %d", repo.allocateCalls)
	}
}

func TestAllocatePaymentGivesUpAfterMaxAttempts(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	transient := &pgconn.PgError{Code: "40P01"}
	repo := &allocateRepoStub{
		day:          day,
		allocateErrs: []error{transient, transient, transient},
	}
	svc := NewService(repo, &publisherStub{}, nil, 0)

	_, _, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 100, Method: "cash"})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if repo.allocateCalls != allocateMaxAttempts {
		t.Errorf("expected %d attempts, got %d", allocateMaxAttempts, repo.allocateCalls)
	}
}

func TestAllocatePaymentDoesNotRetryOverAllocation(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	repo := &allocateRepoStub{
		day:          day,
		allocateErrs: []error{&store.OverAllocationError{Remaining: 1500}},
		remaining:    1500,
	}
	producer := &publisherStub{}
	svc := NewService(repo, producer, nil, 0)

	_, remaining, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 2000, Method: "cash"})
	if !errors.Is(err, store.ErrOverAllocation) {
		t.Fatalf("expected over-allocation error, got %v", err)
	}
	if remaining != 1500 {
		t.Errorf("expected remaining 1500 reported back, got %d", remaining)
	}
	if repo.allocateCalls != 1 {
		t.Errorf("expected single attempt, got %d", repo.allocateCalls)
	}
	if len(producer.published) != 0 {
		t.Errorf("expected no events, got %v", producer.published)
	}
}

func TestAllocatePaymentRateLimited(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	repo := &allocateRepoStub{day: day}
	svc := NewService(repo, &publisherStub{}, &limiterStub{count: 11, retryAfter: 42}, 10)

	_, _, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 100, Method: "cash"})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
	var rlErr *RateLimitedError
	if !errors.As(err, &rlErr) || rlErr.RetryAfterSeconds != 42 {
		t.Errorf("expected typed rate-limit error with retry after 42, got %v", err)
	}
	if repo.allocateCalls != 0 {
		t.Errorf("expected no allocate attempt when rate limited, got %d", repo.allocateCalls)
	}
}

func TestAllocatePaymentAllowsWhenLimiterFails(t *testing.T) {
	driverID := uuid.New()
	day := makeDay(driverID, 50000)
	repo := &allocateRepoStub{
		day:       day,
		payment:   &domain.Payment{ID: uuid.New(), DriverID: driverID, Amount: 100, Method: domain.MethodCash},
		remaining: 49900,
	}
	svc := NewService(repo, &publisherStub{}, &limiterStub{err: errors.New("redis down")}, 10)

	_, _, err := svc.AllocatePaymentByDate(context.Background(), driverID, day.Date, domain.AllocatePaymentRequest{Amount: 100, Method: "cash"})
	if err != nil {
		t.Fatalf("expected limiter outage to be ignored, got %v", err)
	}
}

func TestToggleDayOffPublishesEvent(t *testing.T) {
	driverID := uuid.New()
	toggled := makeDay(driverID, 0)
	toggled.IsDayOff = true
	repo := &allocateRepoStub{toggledDay: toggled}
	producer := &publisherStub{}
	svc := NewService(repo, producer, nil, 0)

	day, err := svc.ToggleDayOff(context.Background(), driverID, toggled.Date)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !day.IsDayOff {
		t.Error("expected toggled day to be franco")
	}
	if len(producer.published) != 1 || producer.published[0] != "day.franco_toggled" {
		t.Errorf("expected one day.franco_toggled event, got %v", producer.published)
	}
}

func TestToggleDayOffSurvivesPublishFailure(t *testing.T) {
	driverID := uuid.New()
	toggled := makeDay(driverID, 0)
	toggled.IsDayOff = true
	repo := &allocateRepoStub{toggledDay: toggled}
	svc := NewService(repo, &publisherStub{publishErr: errors.New("broker gone")}, nil, 0)

	if _, err := svc.ToggleDayOff(context.Background(), driverID, toggled.Date); err != nil {
		t.Fatalf("toggle must not fail on publish error, got %v", err)
	}
}
