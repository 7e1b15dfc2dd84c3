package cron_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kevin07696/commission-service/internal/handlers/cron"
	"github.com/kevin07696/commission-service/internal/services/ports"
	"github.com/kevin07696/commission-service/internal/testutil/mocks"
)

const testCronSecret = "test-cron-secret"

func newTestHandler(driver *mocks.MockSettlementDriver) *cron.SettlementHandler {
	return cron.NewSettlementHandler(driver, zap.NewNop(), testCronSecret, time.UTC)
}

func authedRequest(method, target string, body []byte) *http.Request {
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.Header.Set("X-Cron-Secret", testCronSecret)
	return req
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// Test RunSettlement - rejects requests without the cron secret
func TestSettlementHandler_RunSettlement_Unauthorized(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	handler := newTestHandler(driver)

	req := httptest.NewRequest(http.MethodPost, "/cron/run-settlement", nil)
	rec := httptest.NewRecorder()

	handler.RunSettlement(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	driver.AssertNotCalled(t, "RunDailySettlement")
}

// Test RunSettlement - rejects non-POST methods
func TestSettlementHandler_RunSettlement_MethodNotAllowed(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodGet, "/cron/run-settlement", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	driver.AssertNotCalled(t, "RunDailySettlement")
}

// Test RunSettlement - accepts the bearer token form of the secret
func TestSettlementHandler_RunSettlement_BearerToken(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunDailySettlement", mock.Anything, mock.Anything).
		Return(&ports.SettlementRunResult{}, nil)
	handler := newTestHandler(driver)

	req := httptest.NewRequest(http.MethodPost, "/cron/run-settlement", nil)
	req.Header.Set("Authorization", "Bearer "+testCronSecret)
	rec := httptest.NewRecorder()

	handler.RunSettlement(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	driver.AssertExpectations(t)
}

// Test RunSettlement - successful run reports counters
func TestSettlementHandler_RunSettlement_Success(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunDailySettlement", mock.Anything, mock.Anything).
		Return(&ports.SettlementRunResult{Due: 5, Requested: 3, Deferred: 1, Skipped: 1}, nil)
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodPost, "/cron/run-settlement", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(5), body["due"])
	assert.Equal(t, float64(3), body["requested"])
	assert.Equal(t, float64(1), body["deferred"])
	driver.AssertExpectations(t)
}

// Test RunSettlement - an as_of_date override is parsed in the handler location
func TestSettlementHandler_RunSettlement_AsOfDate(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunDailySettlement", mock.Anything, mock.MatchedBy(func(asOf time.Time) bool {
		return asOf.Year() == 2026 && asOf.Month() == time.March && asOf.Day() == 15
	})).Return(&ports.SettlementRunResult{}, nil)
	handler := newTestHandler(driver)

	payload := []byte(`{"as_of_date":"2026-03-15"}`)
	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodPost, "/cron/run-settlement", payload))

	assert.Equal(t, http.StatusOK, rec.Code)
	driver.AssertExpectations(t)
}

// Test RunSettlement - a malformed as_of_date is a bad request
func TestSettlementHandler_RunSettlement_BadAsOfDate(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	handler := newTestHandler(driver)

	payload := []byte(`{"as_of_date":"15/03/2026"}`)
	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodPost, "/cron/run-settlement", payload))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	driver.AssertNotCalled(t, "RunDailySettlement")
}

// Test RunSettlement - per-record failures surface as partial content
func TestSettlementHandler_RunSettlement_PartialFailure(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunDailySettlement", mock.Anything, mock.Anything).
		Return(&ports.SettlementRunResult{Due: 4, Requested: 3, Failed: 1}, nil)
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodPost, "/cron/run-settlement", nil))

	assert.Equal(t, http.StatusPartialContent, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(1), body["failed"])
}

// Test RunSettlement - a run error is an internal server error
func TestSettlementHandler_RunSettlement_RunError(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunDailySettlement", mock.Anything, mock.Anything).
		Return(nil, errors.New("database unavailable"))
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunSettlement(rec, authedRequest(http.MethodPost, "/cron/run-settlement", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// Test RunReconcile - successful run reports counters
func TestSettlementHandler_RunReconcile_Success(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunHourlyReconcile", mock.Anything).
		Return(&ports.ReconcileResult{Polled: 6, Settled: 4, StillProcessing: 1, ForcedFailed: 1}, nil)
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunReconcile(rec, authedRequest(http.MethodPost, "/cron/run-reconcile", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(6), body["polled"])
	assert.Equal(t, float64(4), body["settled"])
	assert.Equal(t, float64(1), body["forced_failed"])
	driver.AssertExpectations(t)
}

// Test RunReconcile - rejects requests without the cron secret
func TestSettlementHandler_RunReconcile_Unauthorized(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	handler := newTestHandler(driver)

	req := httptest.NewRequest(http.MethodPost, "/cron/run-reconcile", nil)
	req.Header.Set("X-Cron-Secret", "wrong-secret")
	rec := httptest.NewRecorder()

	handler.RunReconcile(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	driver.AssertNotCalled(t, "RunHourlyReconcile")
}

// Test RunAnomalySweep - successful run reports counters
func TestSettlementHandler_RunAnomalySweep_Success(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunAnomalySweep", mock.Anything).
		Return(&ports.AnomalySweepResult{Flagged: 3, Suspended: 2}, nil)
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunAnomalySweep(rec, authedRequest(http.MethodPost, "/cron/run-anomaly-sweep", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), body["flagged"])
	assert.Equal(t, float64(2), body["suspended"])
	driver.AssertExpectations(t)
}

// Test RunAnomalySweep - a sweep error is an internal server error
func TestSettlementHandler_RunAnomalySweep_SweepError(t *testing.T) {
	driver := new(mocks.MockSettlementDriver)
	driver.On("RunAnomalySweep", mock.Anything).
		Return(nil, errors.New("database unavailable"))
	handler := newTestHandler(driver)

	rec := httptest.NewRecorder()
	handler.RunAnomalySweep(rec, authedRequest(http.MethodPost, "/cron/run-anomaly-sweep", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// Test HealthCheck - always healthy
func TestSettlementHandler_HealthCheck(t *testing.T) {
	handler := newTestHandler(new(mocks.MockSettlementDriver))

	rec := httptest.NewRecorder()
	handler.HealthCheck(rec, httptest.NewRequest(http.MethodGet, "/cron/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "healthy", body["status"])
}
