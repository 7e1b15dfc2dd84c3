package cron

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/commission-service/internal/services/ports"
)

// SettlementHandler exposes the driver's sweeps as cron endpoints so
// an external scheduler can drive them alongside the in-process timers
type SettlementHandler struct {
	driver     ports.SettlementDriver
	logger     *zap.Logger
	cronSecret string // Secret token for authenticating cron requests
	location   *time.Location
}

// NewSettlementHandler creates a new settlement cron handler
func NewSettlementHandler(
	driver ports.SettlementDriver,
	logger *zap.Logger,
	cronSecret string,
	location *time.Location,
) *SettlementHandler {
	return &SettlementHandler{
		driver:     driver,
		logger:     logger,
		cronSecret: cronSecret,
		location:   location,
	}
}

// RunSettlementRequest represents the request body for a manual settlement run
type RunSettlementRequest struct {
	AsOfDate *string `json:"as_of_date"` // Optional: ISO date string, defaults to now
}

// RunSettlementResponse represents the response from a settlement run
type RunSettlementResponse struct {
	Success   bool   `json:"success"`
	Due       int    `json:"due"`
	Requested int    `json:"requested"`
	Deferred  int    `json:"deferred"`
	Skipped   int    `json:"skipped"`
	Cancelled int    `json:"cancelled"`
	Failed    int    `json:"failed"`
	RanAt     string `json:"ran_at"`
}

// RunSettlement handles the POST /cron/run-settlement endpoint
func (h *SettlementHandler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	h.logger.Info("Settlement cron job triggered",
		zap.String("method", r.Method),
		zap.String("remote_addr", r.RemoteAddr),
	)

	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RunSettlementRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.logger.Warn("Failed to parse request body", zap.Error(err))
			// Continue with defaults if parsing fails
		}
	}

	asOf := time.Now().In(h.location)
	if req.AsOfDate != nil {
		parsed, err := time.ParseInLocation("2006-01-02", *req.AsOfDate, h.location)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, fmt.Sprintf("invalid as_of_date format: %v", err))
			return
		}
		asOf = parsed
	}

	result, err := h.driver.RunDailySettlement(r.Context(), asOf)
	if err != nil {
		h.logger.Error("Settlement run failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "settlement run failed")
		return
	}

	resp := RunSettlementResponse{
		Success:   result.Failed == 0,
		Due:       result.Due,
		Requested: result.Requested,
		Deferred:  result.Deferred,
		Skipped:   result.Skipped,
		Cancelled: result.Cancelled,
		Failed:    result.Failed,
		RanAt:     time.Now().Format(time.RFC3339),
	}

	h.logger.Info("Settlement run completed",
		zap.Int("due", result.Due),
		zap.Int("requested", result.Requested),
		zap.Int("deferred", result.Deferred),
		zap.Int("failed", result.Failed),
	)

	h.respondJSON(w, resp, resp.Success)
}

// RunReconcileResponse represents the response from a reconcile run
type RunReconcileResponse struct {
	Success         bool   `json:"success"`
	Polled          int    `json:"polled"`
	Settled         int    `json:"settled"`
	Failed          int    `json:"failed"`
	StillProcessing int    `json:"still_processing"`
	ForcedFailed    int    `json:"forced_failed"`
	RanAt           string `json:"ran_at"`
}

// RunReconcile handles the POST /cron/run-reconcile endpoint
func (h *SettlementHandler) RunReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.driver.RunHourlyReconcile(r.Context())
	if err != nil {
		h.logger.Error("Reconcile run failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "reconcile run failed")
		return
	}

	resp := RunReconcileResponse{
		Success:         true,
		Polled:          result.Polled,
		Settled:         result.Settled,
		Failed:          result.Failed,
		StillProcessing: result.StillProcessing,
		ForcedFailed:    result.ForcedFailed,
		RanAt:           time.Now().Format(time.RFC3339),
	}

	h.logger.Info("Reconcile run completed",
		zap.Int("polled", result.Polled),
		zap.Int("settled", result.Settled),
		zap.Int("failed", result.Failed),
	)

	h.respondJSON(w, resp, true)
}

// RunAnomalySweepResponse represents the response from an anomaly sweep
type RunAnomalySweepResponse struct {
	Success   bool   `json:"success"`
	Flagged   int    `json:"flagged"`
	Suspended int    `json:"suspended"`
	RanAt     string `json:"ran_at"`
}

// RunAnomalySweep handles the POST /cron/run-anomaly-sweep endpoint
func (h *SettlementHandler) RunAnomalySweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respondError(w, http.StatusMethodNotAllowed, "only POST method is allowed")
		return
	}

	if !h.authenticateRequest(r) {
		h.logger.Warn("Unauthorized cron request",
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respondError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.driver.RunAnomalySweep(r.Context())
	if err != nil {
		h.logger.Error("Anomaly sweep failed", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "anomaly sweep failed")
		return
	}

	resp := RunAnomalySweepResponse{
		Success:   true,
		Flagged:   result.Flagged,
		Suspended: result.Suspended,
		RanAt:     time.Now().Format(time.RFC3339),
	}

	h.logger.Info("Anomaly sweep completed",
		zap.Int("flagged", result.Flagged),
		zap.Int("suspended", result.Suspended),
	)

	h.respondJSON(w, resp, true)
}

// HealthCheck handles GET /cron/health for monitoring
func (h *SettlementHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	resp := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// authenticateRequest verifies the cron request is authorized
func (h *SettlementHandler) authenticateRequest(r *http.Request) bool {
	// Check X-Cron-Secret header
	cronSecret := r.Header.Get("X-Cron-Secret")
	if cronSecret != "" && cronSecret == h.cronSecret {
		return true
	}

	// Check Authorization header (Bearer token)
	authHeader := r.Header.Get("Authorization")
	if authHeader == "Bearer "+h.cronSecret {
		return true
	}

	return false
}

func (h *SettlementHandler) respondJSON(w http.ResponseWriter, resp interface{}, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusPartialContent) // 206 indicates partial success
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// respondError sends an error response
func (h *SettlementHandler) respondError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := map[string]interface{}{
		"success": false,
		"error":   message,
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode error response", zap.Error(err))
	}
}
