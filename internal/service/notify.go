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

// HTTPNotifier implements domain.Notifier against the notification
// dispatcher. Delivery failures are for the caller to log, never to act on.
type HTTPNotifier struct {
	baseURL    string
	httpClient *http.Client
}

// NewNotifier creates a notifier client.
func NewNotifier(baseURL string) *HTTPNotifier {
	return &HTTPNotifier{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

type notificationPayload struct {
	AccountID int64                   `json:"account_id"`
	Kind      domain.NotificationKind `json:"kind"`
	Data      map[string]string       `json:"data,omitempty"`
}

// Send posts one notification.
func (n *HTTPNotifier) Send(ctx context.Context, accountID int64, kind domain.NotificationKind, data map[string]string) error {
	body, err := json.Marshal(notificationPayload{
		AccountID: accountID,
		Kind:      kind,
		Data:      data,
	})
	if err != nil {
		return fmt.Errorf("notifier: failed to encode notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.baseURL+"/api/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notifier: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("notifier: failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("notifier: unexpected status code: %d", resp.StatusCode)
	}
	return nil
}

// NopNotifier drops every notification. Used when no dispatcher is
// configured.
type NopNotifier struct{}

// Send discards the notification.
func (NopNotifier) Send(context.Context, int64, domain.NotificationKind, map[string]string) error {
	return nil
}
