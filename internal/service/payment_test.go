package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tradielink/backend/internal/domain"
)

func TestHTTPPaymentGateway_CreateCharge(t *testing.T) {
	ctx := context.Background()

	t.Run("Success sends the idempotency key", func(t *testing.T) {
		var gotKey string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/api/charges", r.URL.Path)
			gotKey = r.Header.Get("Idempotency-Key")

			var payload map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
			assert.Equal(t, float64(5500), payload["amount_cents"])

			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(domain.ChargeResult{ID: "ch_1", Status: "succeeded"})
		}))
		defer server.Close()

		gateway := NewPaymentGateway(server.URL)
		result, err := gateway.CreateCharge(ctx, domain.ChargeRequest{
			AmountCents:     5500,
			Currency:        "AUD",
			PaymentMethodID: "pm_123",
			IdempotencyKey:  "charge-abc",
		})
		require.NoError(t, err)
		assert.Equal(t, "ch_1", result.ID)
		assert.Equal(t, "charge-abc", gotKey)
	})

	t.Run("Decline maps to ErrPaymentFailed", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusPaymentRequired)
		}))
		defer server.Close()

		gateway := NewPaymentGateway(server.URL)
		_, err := gateway.CreateCharge(ctx, domain.ChargeRequest{AmountCents: 100, IdempotencyKey: "k"})
		assert.ErrorIs(t, err, domain.ErrPaymentFailed)
	})

	t.Run("Server error is not a decline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		gateway := NewPaymentGateway(server.URL)
		_, err := gateway.CreateCharge(ctx, domain.ChargeRequest{AmountCents: 100, IdempotencyKey: "k"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrPaymentFailed)
	})
}

func TestHTTPPaymentGateway_CreateRefund(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/refunds", r.URL.Path)
		json.NewEncoder(w).Encode(domain.RefundResult{ID: "re_1"})
	}))
	defer server.Close()

	gateway := NewPaymentGateway(server.URL)
	result, err := gateway.CreateRefund(context.Background(), "ch_1", 5500, "job cancelled")
	require.NoError(t, err)
	assert.Equal(t, "re_1", result.ID)
}

func TestHTTPNotifier_Send(t *testing.T) {
	var got notificationPayload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/notifications", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	notifier := NewNotifier(server.URL)
	err := notifier.Send(context.Background(), 7, domain.NotifyLowBalance, map[string]string{"balance": "8"})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.AccountID)
	assert.Equal(t, domain.NotifyLowBalance, got.Kind)
}
