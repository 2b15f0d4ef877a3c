package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/tradielink/backend/internal/domain"
)

// HTTPPaymentGateway implements domain.PaymentGateway against the external
// payment provider. Charges carry an Idempotency-Key header so a retried
// request cannot collect twice.
type HTTPPaymentGateway struct {
	baseURL    string
	httpClient *http.Client
}

// NewPaymentGateway creates a payment gateway client.
func NewPaymentGateway(baseURL string) *HTTPPaymentGateway {
	return &HTTPPaymentGateway{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type chargePayload struct {
	AmountCents     int64             `json:"amount_cents"`
	Currency        string            `json:"currency"`
	PaymentMethodID string            `json:"payment_method_id"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CreateCharge collects a payment. A declined card surfaces as
// ErrPaymentFailed; transport errors are returned as-is so callers can treat
// an unknown outcome differently from a known decline.
func (c *HTTPPaymentGateway) CreateCharge(ctx context.Context, req domain.ChargeRequest) (*domain.ChargeResult, error) {
	body, err := json.Marshal(chargePayload{
		AmountCents:     req.AmountCents,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Metadata:        req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to encode charge: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/charges", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Idempotency-Key", req.IdempotencyKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to execute charge: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var result domain.ChargeResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("payment gateway: failed to decode charge response: %w", err)
		}
		return &result, nil

	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return nil, domain.ErrPaymentFailed

	default:
		return nil, fmt.Errorf("payment gateway: unexpected status code: %d", resp.StatusCode)
	}
}

type refundPayload struct {
	ChargeID    string `json:"charge_id"`
	AmountCents int64  `json:"amount_cents"`
	Reason      string `json:"reason,omitempty"`
}

// CreateRefund returns money for a previous charge.
func (c *HTTPPaymentGateway) CreateRefund(ctx context.Context, chargeID string, amountCents int64, reason string) (*domain.RefundResult, error) {
	body, err := json.Marshal(refundPayload{
		ChargeID:    chargeID,
		AmountCents: amountCents,
		Reason:      reason,
	})
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to encode refund: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/refunds", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("payment gateway: failed to execute refund: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		var result domain.RefundResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("payment gateway: failed to decode refund response: %w", err)
		}
		return &result, nil

	default:
		return nil, fmt.Errorf("payment gateway: unexpected status code: %d", resp.StatusCode)
	}
}
