package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

func TestBalanceAlerter_Observe(t *testing.T) {
	ctx := context.Background()

	t.Run("Low then critical escalates", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 8)
		alerter.Observe(ctx, 1, 2)

		assert.Equal(t, 1, notifier.countOf(domain.NotifyLowBalance))
		assert.Equal(t, 1, notifier.countOf(domain.NotifyCriticalBalance))
	})

	t.Run("Critical takes precedence over low", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 2)

		assert.Equal(t, 0, notifier.countOf(domain.NotifyLowBalance))
		assert.Equal(t, 1, notifier.countOf(domain.NotifyCriticalBalance))
	})

	t.Run("Same level does not repeat", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 8)
		alerter.Observe(ctx, 1, 6)
		alerter.Observe(ctx, 1, 4)

		assert.Equal(t, 1, notifier.countOf(domain.NotifyLowBalance))
	})

	t.Run("Recovery re-arms the alert", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 8)
		alerter.Observe(ctx, 1, 50)
		alerter.Observe(ctx, 1, 9)

		assert.Equal(t, 2, notifier.countOf(domain.NotifyLowBalance))
	})

	t.Run("De-escalation stays quiet", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 2)
		alerter.Observe(ctx, 1, 8)

		assert.Equal(t, 1, notifier.countOf(domain.NotifyCriticalBalance))
		assert.Equal(t, 0, notifier.countOf(domain.NotifyLowBalance))
	})

	t.Run("Accounts are independent", func(t *testing.T) {
		notifier := &fakeNotifier{}
		alerter := NewBalanceAlerter(notifier, zap.NewNop(), 10, 3)

		alerter.Observe(ctx, 1, 8)
		alerter.Observe(ctx, 2, 8)

		assert.Equal(t, 2, notifier.countOf(domain.NotifyLowBalance))
	})
}
