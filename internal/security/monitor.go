package security

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Alerter delivers escalations to operators.
type Alerter interface {
	SendAlert(ctx context.Context, severity, title, message string) error
}

// SecurityMonitor counts blocked transfers per source IP and escalates when one
// source reaches AlertThresholdBlocks inside MonitoringInterval.
type SecurityMonitor struct {
	logger  *Logger
	config  *SecurityConfig
	alerter Alerter

	mu          sync.Mutex
	blockCounts map[string]int
	lastReset   time.Time
	now         func() time.Time
}

// NewSecurityMonitor creates a monitor. alerter may be nil, in which case
// escalations are only logged.
func NewSecurityMonitor(logger *Logger, config *SecurityConfig, alerter Alerter) *SecurityMonitor {
	return &SecurityMonitor{
		logger:      logger,
		config:      config,
		alerter:     alerter,
		blockCounts: make(map[string]int),
		lastReset:   time.Now(),
		now:         time.Now,
	}
}

// MonitorBlock records one blocked transfer from sourceIP. The escalation fires
// once, when the count reaches the threshold.
func (m *SecurityMonitor) MonitorBlock(ctx context.Context, sourceIP string, policies []string) {
	if sourceIP == "" {
		sourceIP = "unknown"
	}

	m.mu.Lock()
	m.resetIfElapsedLocked()
	m.blockCounts[sourceIP]++
	count := m.blockCounts[sourceIP]
	m.mu.Unlock()

	m.logger.SecurityEvent(EventTransferBlocked, "", sourceIP, "", map[string]interface{}{
		"policies":     policies,
		"window_count": count,
	})

	if count != m.config.AlertThresholdBlocks {
		return
	}

	message := fmt.Sprintf("%d blocked transfers from %s within %s", count, sourceIP, m.config.MonitoringInterval)
	m.logger.SecurityEvent(EventBlockBurst, "", sourceIP, "", map[string]interface{}{"count": count})

	if m.alerter == nil {
		return
	}
	if err := m.alerter.SendAlert(ctx, "HIGH", "Repeated blocked transfers", message); err != nil {
		m.logger.Error("failed to send block burst alert", err)
	}
}

// BlockCount returns the blocked transfers recorded for sourceIP in the current window.
func (m *SecurityMonitor) BlockCount(sourceIP string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blockCounts[sourceIP]
}

// ResetCounters clears all counters once MonitoringInterval has elapsed since the last reset.
func (m *SecurityMonitor) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetIfElapsedLocked()
}

func (m *SecurityMonitor) resetIfElapsedLocked() {
	now := m.now()
	if now.Sub(m.lastReset) < m.config.MonitoringInterval {
		return
	}
	m.blockCounts = make(map[string]int)
	m.lastReset = now
}
