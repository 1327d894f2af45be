// Package models defines the domain entities and data transfer objects for the
// data protection service. It includes persisted records (policies, alerts, audit
// entries), the per-request pipeline values (findings, matches, decisions) and the
// input DTOs used by the policy administration surface.
package models

import (
	"math"
	"time"
)

// ============================================================================
// Enumerations
// ============================================================================

// Action is the enforcement action a policy requests when it matches.
type Action string

// Policy actions. ActionNone is only ever produced by the resolver for an
// empty match set and is never a valid policy action.
const (
	ActionNone      Action = "none"
	ActionAlert     Action = "alert"
	ActionAnonymize Action = "anonymize"
	ActionEncrypt   Action = "encrypt"
	ActionBlock     Action = "block"
)

// Precedence returns the action's rank when several matched policies disagree.
// block > encrypt > anonymize > alert. ActionNone ranks 0 and unknown actions -1.
func (a Action) Precedence() int {
	switch a {
	case ActionBlock:
		return 4
	case ActionEncrypt:
		return 3
	case ActionAnonymize:
		return 2
	case ActionAlert:
		return 1
	case ActionNone:
		return 0
	default:
		return -1
	}
}

// Valid reports whether the action may be stored on a policy.
func (a Action) Valid() bool {
	return a.Precedence() > 0
}

// Severity is the ordered importance attached to a policy and its alerts.
type Severity string

// Severity levels, ordered low < medium < high < critical.
const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank returns the ordering position of the severity. SeverityNone ranks 0 and
// unknown values -1.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	case SeverityNone:
		return 0
	default:
		return -1
	}
}

// Valid reports whether the severity may be stored on a policy or alert.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// AlertStatus is the lifecycle state of an alert.
//
// Status Values: "pending", "acknowledged", "resolved", "false_positive"
type AlertStatus string

// Alert lifecycle states. Resolved and false positive are terminal.
const (
	AlertStatusPending       AlertStatus = "pending"
	AlertStatusAcknowledged  AlertStatus = "acknowledged"
	AlertStatusResolved      AlertStatus = "resolved"
	AlertStatusFalsePositive AlertStatus = "false_positive"
)

// Valid reports whether the status is one of the four lifecycle states.
func (s AlertStatus) Valid() bool {
	switch s {
	case AlertStatusPending, AlertStatusAcknowledged, AlertStatusResolved, AlertStatusFalsePositive:
		return true
	}
	return false
}

// Terminal reports whether no forward transition leaves this status.
func (s AlertStatus) Terminal() bool {
	return s == AlertStatusResolved || s == AlertStatusFalsePositive
}

// forwardTransitions lists the moves allowed without an admin override.
var forwardTransitions = map[AlertStatus][]AlertStatus{
	AlertStatusPending:      {AlertStatusAcknowledged, AlertStatusResolved, AlertStatusFalsePositive},
	AlertStatusAcknowledged: {AlertStatusResolved, AlertStatusFalsePositive},
}

// CanTransitionTo reports whether moving from s to next is a forward lifecycle move.
func (s AlertStatus) CanTransitionTo(next AlertStatus) bool {
	for _, allowed := range forwardTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ============================================================================
// Pipeline Values (request scoped, never persisted as-is)
// ============================================================================

// Finding is one sensitive-data occurrence reported by the entity detector.
// Start and End are character (rune) offsets into the analyzed text.
type Finding struct {
	EntityType string  `json:"entity_type"` // Open vocabulary tag, e.g. PERSON, PHONE_NUMBER
	Start      int     `json:"start"`       // Inclusive rune offset
	End        int     `json:"end"`         // Exclusive rune offset
	Score      float64 `json:"score"`       // Detector confidence in [0, 1]
	Value      string  `json:"value"`       // Matched text
}

// ValidSpan reports whether the finding's offsets describe a non-empty span
// inside a text of textLen runes.
func (f Finding) ValidSpan(textLen int) bool {
	return f.Start >= 0 && f.Start < f.End && f.End <= textLen
}

// MatchedPolicy is a policy whose entity types intersected a request's findings.
type MatchedPolicy struct {
	PolicyID        string   `json:"id"`
	Name            string   `json:"name"`
	Action          Action   `json:"action"`
	Severity        Severity `json:"severity"`
	EntityTypes     []string `json:"entity_types"`
	MatchedEntities []string `json:"matched_entities"` // First-seen order in the findings
	MatchedCount    int      `json:"matched_count"`    // Findings contributing, duplicates included
}

// Decision is the single enforcement outcome resolved from all matched policies.
type Decision struct {
	Action       Action          `json:"action"`
	Severity     Severity        `json:"severity"`
	Blocked      bool            `json:"blocked"`
	Policies     []MatchedPolicy `json:"policies"`     // Every matched policy
	Contributing []MatchedPolicy `json:"contributing"` // Matched policies carrying the resolved action
	Summary      string          `json:"summary"`      // Action plus all contributing policy names
}

// RequestMeta carries caller context through the pipeline.
type RequestMeta struct {
	SourceIP     string `json:"source_ip,omitempty"`
	SourceUser   string `json:"source_user,omitempty"`
	SourceDevice string `json:"source_device,omitempty"`
}

// EncryptedRef links a replaced span to the vault reference of its ciphertext.
type EncryptedRef struct {
	EntityType string `json:"entity_type"`
	Start      int    `json:"start"`
	End        int    `json:"end"`
	Ref        string `json:"ref"`
}

// EnforcementResult is what the executor did for a decision.
type EnforcementResult struct {
	ActionsTaken  []string       `json:"actions_taken"`
	RedactedText  string         `json:"redacted_text,omitempty"`
	Modified      bool           `json:"modified"`
	Blocked       bool           `json:"blocked"`
	EncryptedRefs []EncryptedRef `json:"encrypted_refs,omitempty"`
}

// ============================================================================
// Domain Models (Database Entities)
// ============================================================================

// Policy is an administrator-defined rule mapping entity types to an action.
//
// Database Table: policies
// Lifecycle: created -> updated in place -> soft deleted -> optionally restored
type Policy struct {
	ID             string     `json:"id"`               // UUID primary key
	Name           string     `json:"name"`             // Unique among non-deleted policies
	Description    string     `json:"description"`      // Optional free text
	EntityTypes    []string   `json:"entity_types"`     // Non-empty set of entity tags
	Action         Action     `json:"action"`           // block, alert, encrypt, anonymize
	Severity       Severity   `json:"severity"`         // low, medium, high, critical
	Enabled        bool       `json:"enabled"`          // Disabled policies never match
	Deleted        bool       `json:"deleted"`          // Soft delete flag
	ApplyToNetwork bool       `json:"apply_to_network"` // Scoping flags, informational to matching
	ApplyToDevices bool       `json:"apply_to_devices"`
	ApplyToStorage bool       `json:"apply_to_storage"`
	GDPRCompliant  bool       `json:"gdpr_compliant"` // Compliance tags, informational
	HIPAACompliant bool       `json:"hipaa_compliant"`
	CreatedBy      string     `json:"created_by"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Active reports whether the policy takes part in matching.
func (p Policy) Active() bool {
	return p.Enabled && !p.Deleted
}

// Alert is a persisted record of a policy-triggering analysis.
// Title and Description are snapshots taken at creation time; PolicyID may
// dangle once the policy is soft deleted.
//
// Database Table: alerts
type Alert struct {
	ID               string      `json:"id"`
	Title            string      `json:"title"`
	PolicyID         *string     `json:"policy_id"`
	Description      string      `json:"description"`
	Severity         Severity    `json:"severity"`
	Status           AlertStatus `json:"status"`
	SourceIP         string      `json:"source_ip"`
	SourceUser       string      `json:"source_user"`
	SourceDevice     string      `json:"source_device"`
	Blocked          bool        `json:"blocked"`
	ActionTaken      string      `json:"action_taken"`
	DetectedEntities []Finding   `json:"detected_entities"`
	CreatedAt        time.Time   `json:"created_at"`
	ResolvedBy       *string     `json:"resolved_by"`
	ResolvedAt       *time.Time  `json:"resolved_at"`
}

// AlertFilter narrows alert listings. Empty fields do not filter.
type AlertFilter struct {
	Status   AlertStatus
	Severity Severity
}

// AlertStats is the dashboard summary of all alerts.
type AlertStats struct {
	Total    int `json:"total"`
	Pending  int `json:"pending"`
	Resolved int `json:"resolved"`
	Blocked  int `json:"blocked"`
}

// PeriodSummary reports activity over the trailing Days days. ActivePolicies
// counts enabled policies now, not over the period.
type PeriodSummary struct {
	Days             int            `json:"period_days"`
	Since            time.Time      `json:"start_date"`
	Until            time.Time      `json:"end_date"`
	Logs             int            `json:"total_logs"`
	DetectedEntities int            `json:"total_detected_entities"`
	Alerts           int            `json:"total_alerts"`
	BlockedAlerts    int            `json:"blocked_attempts"`
	ActivePolicies   int            `json:"active_policies"`
	EntityBreakdown  map[string]int `json:"entity_type_breakdown"`
}

// AuditFilter narrows audit listings. Empty fields do not filter.
type AuditFilter struct {
	EventType string `json:"event_type" validate:"max=64"`
	Level     string `json:"level" validate:"omitempty,oneof=INFO WARNING ERROR"`
}

// AuditLog is an immutable trace of an analysis request or administrative mutation.
//
// Database Table: audit_logs
// Immutability: entries are never updated or deleted once written
type AuditLog struct {
	ID         string                 `json:"id"`
	EventType  string                 `json:"event_type"` // e.g. "analysis", "policy_create"
	Level      string                 `json:"level"`      // INFO, WARNING, ERROR
	Message    string                 `json:"message"`
	SourceUser string                 `json:"source_user"`
	SourceIP   string                 `json:"source_ip"`
	ObjectType string                 `json:"object_type,omitempty"` // "policy", "alert"
	ObjectID   *string                `json:"object_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
}

// Audit event types written by the service.
const (
	AuditEventAnalysis          = "analysis"
	AuditEventAnalysisRejected  = "analysis_rejected"
	AuditEventPolicyCreate      = "policy_create"
	AuditEventPolicyUpdate      = "policy_update"
	AuditEventPolicyDelete      = "policy_delete"
	AuditEventPolicyRestore     = "policy_restore"
	AuditEventAlertStatusChange = "alert_status_change"
)

// Audit levels.
const (
	AuditLevelInfo    = "INFO"
	AuditLevelWarning = "WARNING"
	AuditLevelError   = "ERROR"
)

// ============================================================================
// Data Transfer Objects (DTOs) - Policy Administration
// ============================================================================

// PolicyInput is the payload for creating a policy. Nil booleans take the
// documented defaults (enabled and all scopes true).
type PolicyInput struct {
	Name           string   `json:"name" yaml:"name" validate:"required,max=255"`
	Description    string   `json:"description" yaml:"description" validate:"max=2000"`
	EntityTypes    []string `json:"entity_types" yaml:"entity_types" validate:"required,min=1,max=64,dive,required,max=100"`
	Action         Action   `json:"action" yaml:"action" validate:"required,oneof=block alert encrypt anonymize"`
	Severity       Severity `json:"severity" yaml:"severity" validate:"omitempty,oneof=low medium high critical"`
	Enabled        *bool    `json:"enabled" yaml:"enabled"`
	ApplyToNetwork *bool    `json:"apply_to_network" yaml:"apply_to_network"`
	ApplyToDevices *bool    `json:"apply_to_devices" yaml:"apply_to_devices"`
	ApplyToStorage *bool    `json:"apply_to_storage" yaml:"apply_to_storage"`
	GDPRCompliant  bool     `json:"gdpr_compliant" yaml:"gdpr_compliant"`
	HIPAACompliant bool     `json:"hipaa_compliant" yaml:"hipaa_compliant"`
	CreatedBy      string   `json:"created_by" yaml:"created_by"`
}

// ToPolicy builds a new, not yet persisted policy from the input.
func (in PolicyInput) ToPolicy() Policy {
	return Policy{
		Name:           in.Name,
		Description:    in.Description,
		EntityTypes:    append([]string(nil), in.EntityTypes...),
		Action:         in.Action,
		Severity:       in.Severity,
		Enabled:        boolOr(in.Enabled, true),
		ApplyToNetwork: boolOr(in.ApplyToNetwork, true),
		ApplyToDevices: boolOr(in.ApplyToDevices, true),
		ApplyToStorage: boolOr(in.ApplyToStorage, true),
		GDPRCompliant:  in.GDPRCompliant,
		HIPAACompliant: in.HIPAACompliant,
		CreatedBy:      in.CreatedBy,
	}
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// PolicyUpdate carries a partial policy update; nil fields are left unchanged.
type PolicyUpdate struct {
	Name           *string   `json:"name"`
	Description    *string   `json:"description"`
	EntityTypes    *[]string `json:"entity_types"`
	Action         *Action   `json:"action"`
	Severity       *Severity `json:"severity"`
	Enabled        *bool     `json:"enabled"`
	ApplyToNetwork *bool     `json:"apply_to_network"`
	ApplyToDevices *bool     `json:"apply_to_devices"`
	ApplyToStorage *bool     `json:"apply_to_storage"`
	GDPRCompliant  *bool     `json:"gdpr_compliant"`
	HIPAACompliant *bool     `json:"hipaa_compliant"`
}

// Apply copies every set field of u onto p.
func (u PolicyUpdate) Apply(p *Policy) {
	if u.Name != nil {
		p.Name = *u.Name
	}
	if u.Description != nil {
		p.Description = *u.Description
	}
	if u.EntityTypes != nil {
		p.EntityTypes = append([]string(nil), (*u.EntityTypes)...)
	}
	if u.Action != nil {
		p.Action = *u.Action
	}
	if u.Severity != nil {
		p.Severity = *u.Severity
	}
	if u.Enabled != nil {
		p.Enabled = *u.Enabled
	}
	if u.ApplyToNetwork != nil {
		p.ApplyToNetwork = *u.ApplyToNetwork
	}
	if u.ApplyToDevices != nil {
		p.ApplyToDevices = *u.ApplyToDevices
	}
	if u.ApplyToStorage != nil {
		p.ApplyToStorage = *u.ApplyToStorage
	}
	if u.GDPRCompliant != nil {
		p.GDPRCompliant = *u.GDPRCompliant
	}
	if u.HIPAACompliant != nil {
		p.HIPAACompliant = *u.HIPAACompliant
	}
}

// Actor identifies who performed an administrative mutation, for the audit trail.
type Actor struct {
	User string
	IP   string
}

// ============================================================================
// View Models
// ============================================================================

// Page is one page of a paginated listing.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

// NewPage builds a page envelope, computing the page count from total and limit.
func NewPage[T any](items []T, total, page, limit int) Page[T] {
	if items == nil {
		items = []T{}
	}
	pages := 0
	if limit > 0 {
		pages = int(math.Ceil(float64(total) / float64(limit)))
	}
	return Page[T]{Items: items, Total: total, Page: page, Limit: limit, Pages: pages}
}

// Offset converts a 1-based page number and limit into a row offset.
func Offset(page, limit int) int {
	if page < 1 {
		return 0
	}
	return (page - 1) * limit
}
