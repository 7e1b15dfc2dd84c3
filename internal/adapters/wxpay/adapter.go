package wxpay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kevin07696/commission-service/internal/domain"
	"github.com/kevin07696/commission-service/internal/domain/ports"
	"github.com/kevin07696/commission-service/pkg/observability"
	"github.com/kevin07696/commission-service/pkg/resilience"
)

// Provider business error codes
const (
	codeReceiverExists   = "RECEIVER_ACCOUNT_EXIST"
	codeOrderNotExists   = "RESOURCE_NOT_EXISTS"
	codeFrequencyLimited = "FREQUENCY_LIMITED"
)

// Config contains configuration for the split-payment gateway adapter
type Config struct {
	// Base URL of the provider API
	// Sandbox: https://api.sandbox.wxpay.example.com
	// Production: https://api.wxpay.example.com
	BaseURL string

	// Merchant account id registered with the provider
	MerchantID string

	// API key used as the bearer credential
	APIKey string

	// HTTP client timeout
	Timeout time.Duration

	// TLS configuration
	InsecureSkipVerify bool

	// Retry configuration for transient transport failures
	MaxRetries int
}

// DefaultConfig returns default configuration for the gateway adapter
func DefaultConfig(environment string) *Config {
	baseURL := "https://api.wxpay.example.com"
	if environment == "sandbox" {
		baseURL = "https://api.sandbox.wxpay.example.com"
	}

	return &Config{
		BaseURL:            baseURL,
		Timeout:            30 * time.Second,
		InsecureSkipVerify: environment == "sandbox",
		MaxRetries:         3,
	}
}

// gatewayAdapter implements the SplitPaymentGateway port against the
// provider's JSON API
type gatewayAdapter struct {
	config         *Config
	httpClient     *http.Client
	logger         *zap.Logger
	circuitBreaker *CircuitBreaker
	backoff        resilience.BackoffStrategy
}

// NewGateway creates a new split-payment gateway adapter
func NewGateway(config *Config, logger *zap.Logger) ports.SplitPaymentGateway {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.InsecureSkipVerify,
		},
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 100,
		IdleConnTimeout:     90 * time.Second,
	}

	httpClient := &http.Client{
		Timeout:   config.Timeout,
		Transport: transport,
	}

	return &gatewayAdapter{
		config:         config,
		httpClient:     httpClient,
		logger:         logger,
		circuitBreaker: NewCircuitBreaker(DefaultCircuitBreakerConfig()),
		backoff:        resilience.DefaultExponentialBackoff(),
	}
}

// providerError is the provider's error envelope on non-2xx responses
type providerError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	status  int
}

func (e *providerError) Error() string {
	return fmt.Sprintf("provider error %s (HTTP %d): %s", e.Code, e.status, e.Message)
}

// retriable reports whether the failure is worth retrying: transport
// errors and provider 5xx. Business errors (4xx with a code) are not.
func retriable(err error) bool {
	if perr, ok := err.(*providerError); ok {
		return perr.status >= 500
	}
	return true
}

// AddReceiver registers a payout identity with the provider.
// An already-registered identity comes back as RECEIVER_ACCOUNT_EXIST
// and is treated as success.
func (a *gatewayAdapter) AddReceiver(ctx context.Context, identity, name string) error {
	body := map[string]any{
		"account": identity,
		"name":    name,
	}

	var resp struct {
		Account string `json:"account"`
	}
	err := a.do(ctx, "add_receiver", http.MethodPost, "/v3/profitsharing/receivers/add", body, &resp)
	if err != nil {
		if perr, ok := asProviderError(err); ok && perr.Code == codeReceiverExists {
			a.logger.Debug("Receiver already registered with provider",
				zap.String("identity", identity),
			)
			return nil
		}
		return fmt.Errorf("add receiver: %w", err)
	}

	a.logger.Info("Receiver registered with provider",
		zap.String("identity", identity),
	)
	return nil
}

// RemoveReceiver deregisters a payout identity
func (a *gatewayAdapter) RemoveReceiver(ctx context.Context, identity string) error {
	body := map[string]any{
		"account": identity,
	}

	var resp struct {
		Account string `json:"account"`
	}
	if err := a.do(ctx, "remove_receiver", http.MethodPost, "/v3/profitsharing/receivers/delete", body, &resp); err != nil {
		if perr, ok := asProviderError(err); ok && perr.Code == codeOrderNotExists {
			// Never registered; nothing to remove
			return nil
		}
		return fmt.Errorf("remove receiver: %w", err)
	}

	a.logger.Info("Receiver deregistered from provider",
		zap.String("identity", identity),
	)
	return nil
}

// RequestSplit submits a split order. unfreeze_unsplit releases the
// remainder of the transaction back to the merchant in the same call.
func (a *gatewayAdapter) RequestSplit(ctx context.Context, req ports.SplitRequest) (*ports.SplitResult, error) {
	type wireReceiver struct {
		Account     string `json:"account"`
		Amount      int64  `json:"amount"`
		Description string `json:"description"`
	}

	receivers := make([]wireReceiver, 0, len(req.Receivers))
	for _, r := range req.Receivers {
		receivers = append(receivers, wireReceiver{
			Account:     r.Identity,
			Amount:      r.AmountMinorUnits,
			Description: r.Description,
		})
	}

	body := map[string]any{
		"transaction_id":   req.TransactionID,
		"out_order_no":     req.OutOrderNo,
		"receivers":        receivers,
		"unfreeze_unsplit": req.UnfreezeRemaining,
	}

	var resp struct {
		OrderID string `json:"order_id"`
		State   string `json:"state"`
	}
	if err := a.do(ctx, "request_split", http.MethodPost, "/v3/profitsharing/orders", body, &resp); err != nil {
		if perr, ok := asProviderError(err); ok && perr.status < 500 {
			// The provider refused the order outright; retrying the
			// same request cannot succeed.
			a.logger.Warn("Split order rejected by provider",
				zap.String("out_order_no", req.OutOrderNo),
				zap.String("provider_code", perr.Code),
				zap.String("provider_message", perr.Message),
			)
			return nil, domain.WrapError(domain.ErrorCodeProviderRejected, "split order rejected", err).
				WithDetail("out_order_no", req.OutOrderNo).
				WithDetail("provider_code", perr.Code)
		}
		return nil, fmt.Errorf("request split: %w", err)
	}

	a.logger.Info("Split order accepted by provider",
		zap.String("out_order_no", req.OutOrderNo),
		zap.String("provider_order_id", resp.OrderID),
	)
	return &ports.SplitResult{ProviderOrderID: resp.OrderID}, nil
}

// QuerySplit polls a previously submitted split order and normalizes
// the provider's answer:
//   - FINISHED / PROCESSING map directly
//   - RESOURCE_NOT_EXISTS: the provider lost or never recorded the
//     order; probe the transaction's unsplit amount to decide whether
//     the split actually went through
//   - FREQUENCY_LIMITED: we are polling too fast, report processing
//     and let the next sweep try again
func (a *gatewayAdapter) QuerySplit(ctx context.Context, outOrderNo, transactionID string) (*ports.SplitStatus, error) {
	path := fmt.Sprintf("/v3/profitsharing/orders/%s?transaction_id=%s", outOrderNo, transactionID)

	var resp struct {
		OrderID string `json:"order_id"`
		State   string `json:"state"`
	}
	err := a.do(ctx, "query_split", http.MethodGet, path, nil, &resp)
	if err != nil {
		perr, ok := asProviderError(err)
		if !ok {
			return nil, fmt.Errorf("query split: %w", err)
		}

		switch perr.Code {
		case codeOrderNotExists:
			return a.probeUnsplitAmount(ctx, outOrderNo, transactionID)
		case codeFrequencyLimited:
			a.logger.Debug("Provider rate limited split query",
				zap.String("out_order_no", outOrderNo),
			)
			return &ports.SplitStatus{State: ports.SplitProcessing}, nil
		default:
			return nil, fmt.Errorf("query split: %w", err)
		}
	}

	switch resp.State {
	case "FINISHED":
		return &ports.SplitStatus{State: ports.SplitFinished, ProviderOrderID: resp.OrderID}, nil
	case "PROCESSING":
		return &ports.SplitStatus{State: ports.SplitProcessing, ProviderOrderID: resp.OrderID}, nil
	default:
		return &ports.SplitStatus{
			State:           ports.SplitFailed,
			ProviderOrderID: resp.OrderID,
			FailReason:      fmt.Sprintf("unexpected provider state %q", resp.State),
		}, nil
	}
}

// probeUnsplitAmount settles the RESOURCE_NOT_EXISTS ambiguity: if the
// transaction has no unsplit amount left, the split went through and
// only the order record was lost.
func (a *gatewayAdapter) probeUnsplitAmount(ctx context.Context, outOrderNo, transactionID string) (*ports.SplitStatus, error) {
	path := fmt.Sprintf("/v3/profitsharing/transactions/%s/amounts", transactionID)

	var resp struct {
		TransactionID string `json:"transaction_id"`
		UnsplitAmount int64  `json:"unsplit_amount"`
	}
	if err := a.do(ctx, "probe_unsplit_amount", http.MethodGet, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("probe unsplit amount: %w", err)
	}

	a.logger.Info("Probed unsplit amount for lost split order",
		zap.String("out_order_no", outOrderNo),
		zap.String("transaction_id", transactionID),
		zap.Int64("unsplit_amount", resp.UnsplitAmount),
	)

	if resp.UnsplitAmount == 0 {
		return &ports.SplitStatus{State: ports.SplitFinished}, nil
	}
	return &ports.SplitStatus{State: ports.SplitProcessing}, nil
}

// do sends one API call through the circuit breaker with retries on
// transient failures. out is decoded from a 2xx body when non-nil.
func (a *gatewayAdapter) do(ctx context.Context, op, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}

	err := a.circuitBreaker.Call(func() error {
		var lastErr error
		for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
			if attempt > 0 {
				delay := a.backoff.NextDelay(attempt - 1)
				a.logger.Debug("Retrying provider call",
					zap.String("path", path),
					zap.Int("attempt", attempt),
					zap.Duration("delay", delay),
				)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(delay):
				}
			}

			lastErr = a.doOnce(ctx, method, path, payload, out)
			if lastErr == nil {
				return nil
			}
			if !retriable(lastErr) {
				return lastErr
			}
		}
		return lastErr
	})

	status := "success"
	if err != nil {
		status = "error"
	}
	observability.RecordProviderCall(op, status)
	return err
}

func (a *gatewayAdapter) doOnce(ctx context.Context, method, path string, payload []byte, out any) error {
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, a.config.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	httpReq.Header.Set("X-Merchant-Id", a.config.MerchantID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		perr := &providerError{status: httpResp.StatusCode}
		if jsonErr := json.Unmarshal(respBody, perr); jsonErr != nil || perr.Code == "" {
			perr.Code = fmt.Sprintf("HTTP_%d", httpResp.StatusCode)
			perr.Message = string(respBody)
		}
		return perr
	}

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func asProviderError(err error) (*providerError, bool) {
	for err != nil {
		if perr, ok := err.(*providerError); ok {
			return perr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
