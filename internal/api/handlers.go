/**
 * @description
 * This file contains the HTTP handlers for the agenda-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/choferia/agenda-service/internal/app"
	"github.com/choferia/agenda-service/internal/domain"
	"github.com/choferia/agenda-service/internal/store"
)

// AgendaHandlers holds the application service that handlers will use.
type AgendaHandlers struct {
	service *app.Service
}

// NewAgendaHandlers creates the handler set around the application service.
func NewAgendaHandlers(service *app.Service) *AgendaHandlers {
	return &AgendaHandlers{service: service}
}

// paymentResponse is sent back after a payment has been committed. It reports
// the day's remaining balance so the client can refresh its view without a
// second request.
type paymentResponse struct {
	PaymentID string  `json:"payment_id"`
	Date      string  `json:"date"`
	Amount    int64   `json:"amount"`
	Method    string  `json:"method"`
	Remaining int64   `json:"remaining"`
	Note      *string `json:"note,omitempty"`
}

type dayOffResponse struct {
	Date     string `json:"date"`
	IsDayOff bool   `json:"is_day_off"`
}

// resolveDriver extracts the auth subject from the request context and maps it
// to the internal driver id. It writes the error response itself and returns
// false when the caller cannot be resolved.
func (h *AgendaHandlers) resolveDriver(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	subject, ok := GetAuthSubject(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get auth subject from context")
		return uuid.Nil, false
	}

	driverID, err := h.service.ResolveDriverID(r.Context(), subject)
	if err != nil {
		if errors.Is(err, store.ErrDriverNotFound) {
			h.writeError(w, http.StatusNotFound, "Driver not found")
			return uuid.Nil, false
		}
		log.Printf("level=error component=api msg=\"failed to resolve driver\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return uuid.Nil, false
	}
	return driverID, true
}

// parseDateParam reads the {date} URL parameter. Dates are calendar dates in
// YYYY-MM-DD form.
func (h *AgendaHandlers) parseDateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := chi.URLParam(r, "date")
	date, err := time.ParseInLocation(domain.DateLayout, raw, time.UTC)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid date %q; expected YYYY-MM-DD", raw))
		return time.Time{}, false
	}
	return date, true
}

// GetDayHandler returns the single-day view: derived status plus allocations.
func (h *AgendaHandlers) GetDayHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}

	detail, err := h.service.DayView(r.Context(), driverID, date)
	if err != nil {
		log.Printf("level=error component=api msg=\"day view failed\" driver_id=%s err=%v", driverID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, detail)
}

// ListDayPaymentsHandler returns only the allocations of one date.
func (h *AgendaHandlers) ListDayPaymentsHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}

	detail, err := h.service.DayView(r.Context(), driverID, date)
	if err != nil {
		log.Printf("level=error component=api msg=\"list day payments failed\" driver_id=%s err=%v", driverID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, detail.Allocations)
}

// SubmitPaymentHandler validates and commits one payment against the date in the URL.
func (h *AgendaHandlers) SubmitPaymentHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}

	var req domain.AllocatePaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	payment, remaining, err := h.service.AllocatePaymentByDate(r.Context(), driverID, date, req)
	if err != nil {
		h.writePaymentError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, paymentResponse{
		PaymentID: payment.ID.String(),
		Date:      date.Format(domain.DateLayout),
		Amount:    payment.Amount,
		Method:    string(payment.Method),
		Remaining: remaining,
		Note:      payment.Note,
	})
}

func (h *AgendaHandlers) writePaymentError(w http.ResponseWriter, err error) {
	var overErr *store.OverAllocationError
	switch {
	case errors.Is(err, app.ErrInvalidAmount), errors.Is(err, app.ErrInvalidMethod):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, app.ErrRateLimited):
		var rlErr *app.RateLimitedError
		if errors.As(err, &rlErr) && rlErr.RetryAfterSeconds > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(rlErr.RetryAfterSeconds))
		}
		h.writeError(w, http.StatusTooManyRequests, "Too many payment submissions. Please wait and try again.")
	case errors.Is(err, store.ErrDayNotFound):
		h.writeError(w, http.StatusNotFound, "No agenda day exists for that date")
	case errors.As(err, &overErr):
		h.writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     "Payment exceeds the day's remaining balance",
			"remaining": overErr.Remaining,
		})
	case store.IsTransient(err):
		h.writeError(w, http.StatusServiceUnavailable, "Temporary conflict committing the payment. Please retry.")
	default:
		log.Printf("level=error component=api msg=\"payment submission failed\" err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// ToggleDayOffHandler flips the franco flag for the date in the URL.
func (h *AgendaHandlers) ToggleDayOffHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}
	date, ok := h.parseDateParam(w, r)
	if !ok {
		return
	}

	day, err := h.service.ToggleDayOff(r.Context(), driverID, date)
	if err != nil {
		log.Printf("level=error component=api msg=\"day off toggle failed\" driver_id=%s err=%v", driverID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, dayOffResponse{
		Date:     day.Date.Format(domain.DateLayout),
		IsDayOff: day.IsDayOff,
	})
}

// AggregateHandler returns derived statuses and totals for an inclusive date range.
func (h *AgendaHandlers) AggregateHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}

	from, ok := h.parseDateQuery(w, r, "from")
	if !ok {
		return
	}
	to, ok := h.parseDateQuery(w, r, "to")
	if !ok {
		return
	}

	summary, err := h.service.Aggregate(r.Context(), driverID, from, to)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, summary)
}

func (h *AgendaHandlers) parseDateQuery(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Query parameter %q is required", name))
		return time.Time{}, false
	}
	date, err := time.ParseInLocation(domain.DateLayout, raw, time.UTC)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid %s date %q; expected YYYY-MM-DD", name, raw))
		return time.Time{}, false
	}
	return date, true
}

// HistoryHandler returns the flattened payment history, newest payment first.
func (h *AgendaHandlers) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}

	opts, ok := h.parseHistoryOptions(w, r)
	if !ok {
		return
	}

	items, err := h.service.History(r.Context(), driverID, opts)
	if err != nil {
		log.Printf("level=error component=api msg=\"history query failed\" driver_id=%s err=%v", driverID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	h.writeJSON(w, http.StatusOK, items)
}

// ExportHistoryHandler streams the payment history as an XLSX attachment.
func (h *AgendaHandlers) ExportHistoryHandler(w http.ResponseWriter, r *http.Request) {
	driverID, ok := h.resolveDriver(w, r)
	if !ok {
		return
	}

	opts, ok := h.parseHistoryOptions(w, r)
	if !ok {
		return
	}
	// The export is a report, not a page; ignore pagination and take a
	// bounded full dump instead.
	opts.Limit = 500
	opts.Offset = 0

	items, err := h.service.History(r.Context(), driverID, opts)
	if err != nil {
		log.Printf("level=error component=api msg=\"history export query failed\" driver_id=%s err=%v", driverID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	fileName := fmt.Sprintf("historial_pagos_%s.xlsx", time.Now().Format("20060102_150405"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", "attachment; filename="+fileName)
	if err := app.WriteHistoryWorkbook(w, items); err != nil {
		log.Printf("level=error component=api msg=\"history export write failed\" driver_id=%s err=%v", driverID, err)
	}
}

func (h *AgendaHandlers) parseHistoryOptions(w http.ResponseWriter, r *http.Request) (domain.HistoryOptions, bool) {
	var opts domain.HistoryOptions

	if raw := strings.TrimSpace(r.URL.Query().Get("from")); raw != "" {
		date, err := time.ParseInLocation(domain.DateLayout, raw, time.UTC)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid from date %q; expected YYYY-MM-DD", raw))
			return opts, false
		}
		opts.From = &date
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("to")); raw != "" {
		date, err := time.ParseInLocation(domain.DateLayout, raw, time.UTC)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid to date %q; expected YYYY-MM-DD", raw))
			return opts, false
		}
		opts.To = &date
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid limit")
			return opts, false
		}
		opts.Limit = limit
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil || offset < 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid offset")
			return opts, false
		}
		opts.Offset = offset
	}
	return opts, true
}

// writeJSON is a helper for writing JSON responses.
func (h *AgendaHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *AgendaHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
