/**
 * @description
 * This file contains the HTTP handlers for the commission-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, enforcing role-based
 * access, calling the appropriate methods on the application layer, and writing
 * the HTTP response. They act as the bridge between the web layer and the
 * business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"context"
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
	"github.com/learnsphere/commission-service/internal/app"
	"github.com/learnsphere/commission-service/internal/domain"
	"github.com/learnsphere/commission-service/internal/store"
	"github.com/shopspring/decimal"
)

// CommissionHandlers holds the application components that handlers will use.
type CommissionHandlers struct {
	service  *app.Service
	tiers    *app.TierEngine
	reporter *app.RevenueReporter
	monitor  *app.AttendanceMonitor
}

// NewCommissionHandlers creates a new instance of CommissionHandlers.
func NewCommissionHandlers(service *app.Service, tiers *app.TierEngine, reporter *app.RevenueReporter, monitor *app.AttendanceMonitor) *CommissionHandlers {
	return &CommissionHandlers{service: service, tiers: tiers, reporter: reporter, monitor: monitor}
}

// requireRole checks the caller's role against the allowed set and writes a
// 403 when it does not match. Returns the caller's id for ownership checks.
func (h *CommissionHandlers) requireRole(w http.ResponseWriter, r *http.Request, roles ...string) (uuid.UUID, bool) {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get caller ID from context")
		return uuid.Nil, false
	}
	role, ok := GetCallerRole(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get caller role from context")
		return uuid.Nil, false
	}
	for _, allowed := range roles {
		if role == allowed {
			return callerID, true
		}
	}
	h.writeError(w, http.StatusForbidden, "Insufficient permissions")
	return uuid.Nil, false
}

// callerOwnsOrAdmin permits admins unconditionally and other callers only when
// they are acting on their own resource.
func (h *CommissionHandlers) callerOwnsOrAdmin(w http.ResponseWriter, r *http.Request, resourceOwner uuid.UUID) bool {
	callerID, ok := GetCallerID(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Could not get caller ID from context")
		return false
	}
	role, _ := GetCallerRole(r.Context())
	if role == RoleAdmin || callerID == resourceOwner {
		return true
	}
	h.writeError(w, http.StatusForbidden, "Insufficient permissions")
	return false
}

// CalculateCommissionHandler records the commission for a completed session.
// The operation is idempotent: recalculating an already-recorded session
// returns the frozen record unchanged.
func (h *CommissionHandlers) CalculateCommissionHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID  uuid.UUID `json:"session_id"`
		ProviderID uuid.UUID `json:"provider_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=calculate_commission outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}
	if req.SessionID == uuid.Nil || req.ProviderID == uuid.Nil {
		h.writeError(w, http.StatusBadRequest, "session_id and provider_id are required")
		return
	}
	if !h.callerOwnsOrAdmin(w, r, req.ProviderID) {
		return
	}

	record, err := h.service.RecordCommission(r.Context(), req.ProviderID, req.SessionID)
	if err != nil {
		log.Printf("level=warn component=api endpoint=calculate_commission outcome=failed session_id=%s provider_id=%s err=%v", req.SessionID, req.ProviderID, err)
		switch {
		case errors.Is(err, store.ErrSessionNotFound):
			h.writeError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, store.ErrProviderNotFound):
			h.writeError(w, http.StatusNotFound, "Provider not found")
		case errors.Is(err, app.ErrSessionCancelled),
			errors.Is(err, app.ErrSessionNotCompleted),
			errors.Is(err, app.ErrProviderMismatch),
			errors.Is(err, app.ErrMissingInstitution),
			errors.Is(err, app.ErrRateOutOfRange),
			errors.Is(err, app.ErrUnknownPricingMode):
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// GetCommissionHandler fetches a single commission record by id.
func (h *CommissionHandlers) GetCommissionHandler(w http.ResponseWriter, r *http.Request) {
	commissionID, err := uuid.Parse(chi.URLParam(r, "commissionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid commission ID format")
		return
	}

	record, err := h.service.GetCommission(r.Context(), commissionID)
	if err != nil {
		if errors.Is(err, store.ErrCommissionNotFound) {
			h.writeError(w, http.StatusNotFound, "Commission record not found")
			return
		}
		log.Printf("level=error component=api endpoint=get_commission outcome=failed commission_id=%s err=%v", commissionID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	if !h.callerOwnsOrAdmin(w, r, record.ProviderID) {
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// ApproveCommissionHandler moves a pending commission record to APPROVED.
func (h *CommissionHandlers) ApproveCommissionHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, RoleAdmin); !ok {
		return
	}
	h.transitionCommission(w, r, "approve_commission", h.service.ApproveCommission)
}

// MarkCommissionPaidHandler moves an approved commission record to PAID.
func (h *CommissionHandlers) MarkCommissionPaidHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, RoleAdmin); !ok {
		return
	}
	h.transitionCommission(w, r, "pay_commission", h.service.MarkCommissionPaid)
}

func (h *CommissionHandlers) transitionCommission(w http.ResponseWriter, r *http.Request, endpoint string, transition func(ctx context.Context, id uuid.UUID) (*domain.CommissionRecord, error)) {
	commissionID, err := uuid.Parse(chi.URLParam(r, "commissionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid commission ID format")
		return
	}

	record, err := transition(r.Context(), commissionID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrCommissionNotFound):
			h.writeError(w, http.StatusNotFound, "Commission record not found")
		case errors.Is(err, store.ErrInvalidStatusTransition):
			h.writeError(w, http.StatusConflict, err.Error())
		default:
			log.Printf("level=error component=api endpoint=%s outcome=failed commission_id=%s err=%v", endpoint, commissionID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, record)
}

// ListProviderCommissionsHandler lists a provider's commission records
// newest-first.
func (h *CommissionHandlers) ListProviderCommissionsHandler(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid provider ID format")
		return
	}
	if !h.callerOwnsOrAdmin(w, r, providerID) {
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	records, err := h.service.ListProviderCommissions(r.Context(), providerID, limit)
	if err != nil {
		if errors.Is(err, store.ErrProviderNotFound) {
			h.writeError(w, http.StatusNotFound, "Provider not found")
			return
		}
		log.Printf("level=error component=api endpoint=list_commissions outcome=failed provider_id=%s err=%v", providerID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, records)
}

// GetTierStatusHandler returns a provider's current tier, completed-session
// count, and progress toward the next tier.
func (h *CommissionHandlers) GetTierStatusHandler(w http.ResponseWriter, r *http.Request) {
	providerID, err := uuid.Parse(chi.URLParam(r, "providerID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid provider ID format")
		return
	}
	if !h.callerOwnsOrAdmin(w, r, providerID) {
		return
	}

	status, err := h.tiers.GetTierStatus(r.Context(), providerID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrProviderNotFound):
			h.writeError(w, http.StatusNotFound, "Provider not found")
		case errors.Is(err, app.ErrNoTiersConfigured), errors.Is(err, app.ErrTierTableInvalid):
			log.Printf("level=error component=api endpoint=get_tier_status outcome=failed provider_id=%s err=%v", providerID, err)
			h.writeError(w, http.StatusInternalServerError, "Tier configuration error")
		default:
			log.Printf("level=error component=api endpoint=get_tier_status outcome=failed provider_id=%s err=%v", providerID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// UpdateInstitutionRateHandler applies an admin-initiated commission rate
// change for an institution. An unchanged rate is a successful no-op that
// produces no audit entry.
func (h *CommissionHandlers) UpdateInstitutionRateHandler(w http.ResponseWriter, r *http.Request) {
	callerID, ok := h.requireRole(w, r, RoleAdmin)
	if !ok {
		return
	}

	institutionID, err := uuid.Parse(chi.URLParam(r, "institutionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid institution ID format")
		return
	}

	var req struct {
		Rate   decimal.Decimal `json:"rate"`
		Reason string          `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("level=warn component=api endpoint=update_rate outcome=reject reason=invalid_json err=%v", err)
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		h.writeError(w, http.StatusBadRequest, "A reason for the rate change is required")
		return
	}

	log.Printf("level=info component=api endpoint=update_rate outcome=accepted institution_id=%s rate=%s changed_by=%s", institutionID, req.Rate, callerID)

	result, err := h.service.UpdateInstitutionRate(r.Context(), institutionID, req.Rate, req.Reason, callerID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrInstitutionNotFound):
			h.writeError(w, http.StatusNotFound, "Institution not found")
		case errors.Is(err, app.ErrRateOutOfRange):
			h.writeError(w, http.StatusBadRequest, err.Error())
		default:
			log.Printf("level=error component=api endpoint=update_rate outcome=failed institution_id=%s err=%v", institutionID, err)
			h.writeError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// GetRateHistoryHandler lists an institution's rate-change audit rows
// newest-first. Institution tokens carry the institution id as their subject,
// so the same ownership check used for provider reads applies here.
func (h *CommissionHandlers) GetRateHistoryHandler(w http.ResponseWriter, r *http.Request) {
	institutionID, err := uuid.Parse(chi.URLParam(r, "institutionID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid institution ID format")
		return
	}
	if !h.callerOwnsOrAdmin(w, r, institutionID) {
		return
	}

	limit, err := parseOptionalInt(r.URL.Query().Get("limit"), 50)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid limit")
		return
	}

	logs, err := h.service.GetRateHistory(r.Context(), institutionID, limit)
	if err != nil {
		if errors.Is(err, store.ErrInstitutionNotFound) {
			h.writeError(w, http.StatusNotFound, "Institution not found")
			return
		}
		log.Printf("level=error component=api endpoint=rate_history outcome=failed institution_id=%s err=%v", institutionID, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, logs)
}

// GetRevenueHandler serves the revenue read models. The `type` query parameter
// selects metrics (default), breakdown, projection, or the combined report;
// report additionally honors `format=csv`.
func (h *CommissionHandlers) GetRevenueHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, RoleAdmin); !ok {
		return
	}

	q := r.URL.Query()
	start, end, err := parseDateRange(q.Get("start"), q.Get("end"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	dimension := domain.BreakdownDimension(q.Get("by"))
	if dimension == "" {
		dimension = domain.BreakdownByInstitution
	}

	reportType := q.Get("type")
	if reportType == "" {
		reportType = "metrics"
	}

	switch reportType {
	case "metrics":
		metrics, err := h.reporter.GetMetrics(r.Context(), start, end)
		if err != nil {
			h.writeRevenueError(w, "get_revenue_metrics", err)
			return
		}
		h.writeJSON(w, http.StatusOK, metrics)

	case "breakdown":
		breakdown, err := h.reporter.GetBreakdown(r.Context(), start, end, dimension)
		if err != nil {
			h.writeRevenueError(w, "get_revenue_breakdown", err)
			return
		}
		h.writeJSON(w, http.StatusOK, breakdown)

	case "projection":
		windowDays, err := parseOptionalInt(q.Get("window_days"), 0)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "Invalid window_days")
			return
		}
		projection, err := h.reporter.GetProjection(r.Context(), windowDays)
		if err != nil {
			h.writeRevenueError(w, "get_revenue_projection", err)
			return
		}
		h.writeJSON(w, http.StatusOK, projection)

	case "report":
		format := app.ReportFormat(q.Get("format"))
		if format == "" {
			format = app.ReportJSON
		}
		report, err := h.reporter.GetReport(r.Context(), start, end, dimension, format)
		if err != nil {
			h.writeRevenueError(w, "get_revenue_report", err)
			return
		}
		if format == app.ReportCSV {
			w.Header().Set("Content-Type", "text/csv")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(report.CSV))
			return
		}
		h.writeJSON(w, http.StatusOK, report)

	default:
		h.writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown revenue type %q", reportType))
	}
}

func (h *CommissionHandlers) writeRevenueError(w http.ResponseWriter, endpoint string, err error) {
	switch {
	case errors.Is(err, app.ErrInvalidDateRange),
		errors.Is(err, app.ErrUnknownReportFormat),
		errors.Is(err, store.ErrUnknownBreakdownDimension):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		log.Printf("level=error component=api endpoint=%s outcome=failed err=%v", endpoint, err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// RunThresholdCheckHandler triggers an immediate attendance threshold sweep.
// The same sweep runs on the cron schedule; this endpoint exists so operators
// can force one without waiting.
func (h *CommissionHandlers) RunThresholdCheckHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireRole(w, r, RoleAdmin); !ok {
		return
	}

	result, err := h.monitor.RunThresholdCheck(r.Context())
	if err != nil {
		log.Printf("level=error component=api endpoint=run_threshold_check outcome=failed err=%v", err)
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	h.writeJSON(w, http.StatusOK, result)
}

// parseOptionalInt parses a non-negative integer query parameter, falling back
// to a default when absent.
func parseOptionalInt(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	return value, nil
}

// parseDateRange parses optional RFC 3339 start/end parameters, defaulting to
// the trailing 30 days.
func parseDateRange(rawStart, rawEnd string) (time.Time, time.Time, error) {
	end := time.Now().UTC()
	if rawEnd != "" {
		parsed, err := time.Parse(time.RFC3339, rawEnd)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid end %q: expected RFC 3339", rawEnd)
		}
		end = parsed
	}

	start := end.AddDate(0, 0, -30)
	if rawStart != "" {
		parsed, err := time.Parse(time.RFC3339, rawStart)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid start %q: expected RFC 3339", rawStart)
		}
		start = parsed
	}

	return start, end, nil
}

// writeJSON is a helper for writing JSON responses.
func (h *CommissionHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *CommissionHandlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
