// Package security provides centralized security configuration and utilities:
// input limits, validation, rate limiting, structured logging and block monitoring.
package security

import (
	"time"
)

// SecurityConfig holds all security-related configuration values.
type SecurityConfig struct {
	// Input validation
	MaxTextSize  int // Maximum bytes of text per analysis request
	MaxFindings  int // Maximum findings per analysis request
	QueryTimeout time.Duration

	// Pagination
	DefaultPageLimit int
	MaxPageLimit     int
	MaxAuditLimit    int
	MaxReportDays    int

	// Rate limiting (requests per minute per IP)
	RateLimitAnalyze int

	// Block monitoring
	MonitoringInterval   time.Duration // Window after which per-IP block counters reset
	AlertThresholdBlocks int           // Blocked transfers from one IP before escalating
}

// DefaultSecurityConfig returns security configuration with recommended defaults.
func DefaultSecurityConfig() *SecurityConfig {
	return &SecurityConfig{
		MaxTextSize:  1024 * 1024, // 1MB
		MaxFindings:  10000,
		QueryTimeout: 30 * time.Second,

		DefaultPageLimit: 20,
		MaxPageLimit:     100,
		MaxAuditLimit:    500,
		MaxReportDays:    365,

		RateLimitAnalyze: 60,

		MonitoringInterval:   5 * time.Minute,
		AlertThresholdBlocks: 5,
	}
}
