package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/choferia/agenda-service/internal/app"
	"github.com/choferia/agenda-service/internal/domain"
	"github.com/choferia/agenda-service/internal/store"
)

type handlerRepoStub struct {
	store.Repository

	driverID    uuid.UUID
	resolveErr  error
	day         *domain.AgendaDay
	findDayErr  error
	allocations []domain.Allocation
	allocateErr error
	payment     *domain.Payment
	remaining   int64
	toggledDay  *domain.AgendaDay
	history     []domain.PaymentHistoryItem
}

func (s *handlerRepoStub) FindDriverIDByAuthSubject(ctx context.Context, subject string) (uuid.UUID, error) {
	if s.resolveErr != nil {
		return uuid.Nil, s.resolveErr
	}
	return s.driverID, nil
}

func (s *handlerRepoStub) FindAgendaDayByDate(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	if s.findDayErr != nil {
		return nil, s.findDayErr
	}
	return s.day, nil
}

func (s *handlerRepoStub) ListAllocationsByDay(ctx context.Context, driverID uuid.UUID, agendaDayID uuid.UUID) ([]domain.Allocation, error) {
	return s.allocations, nil
}

func (s *handlerRepoStub) AllocatePayment(ctx context.Context, params store.AllocatePaymentParams) (*domain.Payment, int64, error) {
	if s.allocateErr != nil {
		return nil, s.remaining, s.allocateErr
	}
	return s.payment, s.remaining, nil
}

func (s *handlerRepoStub) ToggleDayOff(ctx context.Context, driverID uuid.UUID, date time.Time) (*domain.AgendaDay, error) {
	return s.toggledDay, nil
}

func (s *handlerRepoStub) FindPaymentHistory(ctx context.Context, driverID uuid.UUID, opts domain.HistoryOptions) ([]domain.PaymentHistoryItem, error) {
	return s.history, nil
}

type noopPublisher struct{}

func (noopPublisher) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}
func (noopPublisher) Close() {}

// newTestRouter wires the protected routes without the JWT middleware; the
// auth subject is injected directly into the request context instead.
func newTestRouter(repo store.Repository) http.Handler {
	svc := app.NewService(repo, noopPublisher{}, nil, 0)
	h := NewAgendaHandlers(svc)

	r := chi.NewRouter()
	r.Get("/days", h.AggregateHandler)
	r.Get("/days/{date}", h.GetDayHandler)
	r.Get("/days/{date}/payments", h.ListDayPaymentsHandler)
	r.Post("/days/{date}/payments", h.SubmitPaymentHandler)
	r.Post("/days/{date}/day-off", h.ToggleDayOffHandler)
	r.Get("/history", h.HistoryHandler)
	r.Get("/history/export", h.ExportHistoryHandler)
	return r
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	ctx := context.WithValue(req.Context(), authSubjectKey, "user_driver_1")
	return req.WithContext(ctx)
}

func TestGetDayHandlerDerivesStatus(t *testing.T) {
	driverID := uuid.New()
	repo := &handlerRepoStub{
		driverID: driverID,
		day: &domain.AgendaDay{
			ID:         uuid.New(),
			DriverID:   driverID,
			Date:       time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
			BaseAmount: 50000,
		},
		allocations: []domain.Allocation{
			{Payment: domain.Payment{ID: uuid.New(), Amount: 20000}, AmountApplied: 20000},
		},
	}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/days/2026-08-30", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var detail domain.DayDetail
	if err := json.Unmarshal(rec.Body.Bytes(), &detail); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if detail.FinancialStatus != domain.StatusParcial {
		t.Errorf("expected parcial, got %s", detail.FinancialStatus)
	}
	if detail.DayDebt != 30000 {
		t.Errorf("expected debt 30000, got %d", detail.DayDebt)
	}
}

func TestGetDayHandlerRejectsBadDate(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{driverID: uuid.New()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/days/30-08-2026", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetDayHandlerUnknownDriver(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{resolveErr: store.ErrDriverNotFound})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/days/2026-08-30", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSubmitPaymentHandlerSuccess(t *testing.T) {
	driverID := uuid.New()
	repo := &handlerRepoStub{
		driverID: driverID,
		day: &domain.AgendaDay{
			ID:         uuid.New(),
			DriverID:   driverID,
			Date:       time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
			BaseAmount: 50000,
		},
		payment: &domain.Payment{
			ID:       uuid.New(),
			DriverID: driverID,
			Amount:   20000,
			Method:   domain.MethodCash,
		},
		remaining: 30000,
	}
	router := newTestRouter(repo)

	body, _ := json.Marshal(domain.AllocatePaymentRequest{Amount: 20000, Method: "cash"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/days/2026-08-30/payments", body))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Remaining int64  `json:"remaining"`
		Method    string `json:"method"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Remaining != 30000 {
		t.Errorf("expected remaining 30000, got %d", resp.Remaining)
	}
	if resp.Method != "cash" {
		t.Errorf("expected method cash, got %q", resp.Method)
	}
}

func TestSubmitPaymentHandlerStatusMapping(t *testing.T) {
	driverID := uuid.New()
	day := &domain.AgendaDay{
		ID:         uuid.New(),
		DriverID:   driverID,
		Date:       time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
		BaseAmount: 50000,
	}

	testCases := []struct {
		name       string
		repo       *handlerRepoStub
		body       domain.AllocatePaymentRequest
		wantStatus int
	}{
		{
			name:       "zero amount",
			repo:       &handlerRepoStub{driverID: driverID, day: day},
			body:       domain.AllocatePaymentRequest{Amount: 0, Method: "cash"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown method",
			repo:       &handlerRepoStub{driverID: driverID, day: day},
			body:       domain.AllocatePaymentRequest{Amount: 100, Method: "iou"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "missing day",
			repo:       &handlerRepoStub{driverID: driverID, findDayErr: store.ErrDayNotFound},
			body:       domain.AllocatePaymentRequest{Amount: 100, Method: "cash"},
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "over allocation",
			repo:       &handlerRepoStub{driverID: driverID, day: day, allocateErr: &store.OverAllocationError{Remaining: 1500}, remaining: 1500},
			body:       domain.AllocatePaymentRequest{Amount: 2000, Method: "cash"},
			wantStatus: http.StatusConflict,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := newTestRouter(tc.repo)
			body, _ := json.Marshal(tc.body)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, authedRequest(http.MethodPost, "/days/2026-08-30/payments", body))
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tc.wantStatus, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSubmitPaymentHandlerOverAllocationBody(t *testing.T) {
	driverID := uuid.New()
	repo := &handlerRepoStub{
		driverID: driverID,
		day: &domain.AgendaDay{
			ID:         uuid.New(),
			DriverID:   driverID,
			Date:       time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
			BaseAmount: 50000,
		},
		allocateErr: &store.OverAllocationError{Remaining: 1500},
		remaining:   1500,
	}
	router := newTestRouter(repo)

	body, _ := json.Marshal(domain.AllocatePaymentRequest{Amount: 2000, Method: "cash"})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/days/2026-08-30/payments", body))

	var resp struct {
		Remaining int64 `json:"remaining"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Remaining != 1500 {
		t.Errorf("expected remaining 1500 in conflict body, got %d", resp.Remaining)
	}
}

func TestToggleDayOffHandler(t *testing.T) {
	driverID := uuid.New()
	repo := &handlerRepoStub{
		driverID: driverID,
		toggledDay: &domain.AgendaDay{
			ID:       uuid.New(),
			DriverID: driverID,
			Date:     time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
			IsDayOff: true,
		},
	}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodPost, "/days/2026-08-30/day-off", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp dayOffResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.IsDayOff {
		t.Error("expected is_day_off true")
	}
	if resp.Date != "2026-08-30" {
		t.Errorf("unexpected date %q", resp.Date)
	}
}

func TestAggregateHandlerRequiresRange(t *testing.T) {
	router := newTestRouter(&handlerRepoStub{driverID: uuid.New()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/days?from=2026-08-01", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing to, got %d", rec.Code)
	}
}

func TestExportHistoryHandlerSetsAttachmentHeaders(t *testing.T) {
	driverID := uuid.New()
	repo := &handlerRepoStub{
		driverID: driverID,
		history: []domain.PaymentHistoryItem{
			{
				LinkID:           uuid.New(),
				PaymentID:        uuid.New(),
				PaymentAmount:    20000,
				Method:           domain.MethodCash,
				PaymentCreatedAt: time.Now().UTC(),
				AmountApplied:    20000,
				AgendaDayID:      uuid.New(),
				Date:             time.Date(2026, time.August, 30, 0, 0, 0, 0, time.UTC),
				BaseAmount:       50000,
			},
		},
	}
	router := newTestRouter(repo)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, authedRequest(http.MethodGet, "/history/export", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("unexpected content type %q", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd == "" {
		t.Error("expected Content-Disposition header")
	}
	if rec.Body.Len() == 0 {
		t.Error("expected workbook bytes in response")
	}
}
