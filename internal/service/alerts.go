package service

import (
	"context"
	"strconv"
	"sync"

	"github.com/tradielink/backend/internal/domain"
	"go.uber.org/zap"
)

type alertLevel int

const (
	alertNone alertLevel = iota
	alertLow
	alertCritical
)

// BalanceAlerter watches balances after debits and sends a low or critical
// notification when a threshold is crossed. At most one alert per account is
// active at a time; critical supersedes low, and recovery above the low
// threshold re-arms both. The active set is in-memory only, so a restart may
// re-send an alert.
type BalanceAlerter struct {
	notifier          domain.Notifier
	logger            *zap.Logger
	lowThreshold      int
	criticalThreshold int

	mu     sync.Mutex
	active map[int64]alertLevel
}

// NewBalanceAlerter creates a BalanceAlerter.
func NewBalanceAlerter(notifier domain.Notifier, logger *zap.Logger, lowThreshold, criticalThreshold int) *BalanceAlerter {
	return &BalanceAlerter{
		notifier:          notifier,
		logger:            logger,
		lowThreshold:      lowThreshold,
		criticalThreshold: criticalThreshold,
		active:            make(map[int64]alertLevel),
	}
}

// Observe inspects a fresh balance and fires or clears alerts.
func (a *BalanceAlerter) Observe(ctx context.Context, accountID int64, balance int) {
	level := alertNone
	switch {
	case balance <= a.criticalThreshold:
		level = alertCritical
	case balance <= a.lowThreshold:
		level = alertLow
	}

	a.mu.Lock()
	previous := a.active[accountID]
	if level == previous {
		a.mu.Unlock()
		return
	}
	if level == alertNone {
		delete(a.active, accountID)
	} else {
		a.active[accountID] = level
	}
	a.mu.Unlock()

	if level == alertNone || level < previous {
		return
	}

	kind := domain.NotifyLowBalance
	if level == alertCritical {
		kind = domain.NotifyCriticalBalance
	}
	if err := a.notifier.Send(ctx, accountID, kind, map[string]string{
		"balance": strconv.Itoa(balance),
	}); err != nil {
		a.logger.Warn("failed to send balance alert",
			zap.Int64("account_id", accountID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}
