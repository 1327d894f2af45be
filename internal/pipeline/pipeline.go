// Package pipeline runs one analysis request end to end: policy snapshot,
// matching, resolution, enforcement, alerting and audit.
package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/enforcement"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/matcher"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/metrics"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/resolver"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// TracerName is the instrumentation scope of pipeline spans.
const TracerName = "github.com/ul8ziz/Integrated-Data-Protection-System/internal/pipeline"

// Degradation tags added to ActionsTaken next to the executor's tags.
const (
	TagPolicyStoreUnavailable = "policy_store_unavailable"
	TagPolicyResolutionFailed = "policy_resolution_failed"
	TagAlertPersistFailed     = "alert_persist_failed"
)

// Request is one analysis call. Findings come from the entity detector.
type Request struct {
	Text          string           `json:"text"`
	Findings      []models.Finding `json:"findings"`
	SourceIP      string           `json:"source_ip,omitempty"`
	SourceUser    string           `json:"source_user,omitempty"`
	SourceDevice  string           `json:"source_device,omitempty"`
	ApplyPolicies bool             `json:"apply_policies"`
}

// Response is the outcome of one analysis call.
type Response struct {
	SensitiveDataDetected bool                   `json:"sensitive_data_detected"`
	DetectedEntities      []models.Finding       `json:"detected_entities"`
	PoliciesMatched       bool                   `json:"policies_matched"`
	AppliedPolicies       []models.MatchedPolicy `json:"applied_policies"`
	Action                models.Action          `json:"action"`
	Severity              models.Severity        `json:"severity"`
	ActionsTaken          []string               `json:"actions_taken"`
	Blocked               bool                   `json:"blocked"`
	AlertCreated          bool                   `json:"alert_created"`
	AlertID               string                 `json:"alert_id,omitempty"`
	ProcessedText         string                 `json:"processed_text"`
	EncryptedRefs         []models.EncryptedRef  `json:"encrypted_refs,omitempty"`
	Timestamp             time.Time              `json:"timestamp"`
}

// PolicySource returns the active policy snapshot.
type PolicySource interface {
	ActivePolicies(ctx context.Context) ([]models.Policy, error)
}

// Enforcer carries out a decision.
type Enforcer interface {
	Execute(ctx context.Context, decision models.Decision, findings []models.Finding, text string, meta models.RequestMeta) models.EnforcementResult
}

// Recorder persists alerts and audit entries.
type Recorder interface {
	Record(ctx context.Context, decision models.Decision, findings []models.Finding, meta models.RequestMeta) (*models.Alert, error)
	LogAudit(ctx context.Context, entry *models.AuditLog)
}

// BlockMonitor observes blocked transfers.
type BlockMonitor interface {
	MonitorBlock(ctx context.Context, sourceIP string, policies []string)
}

// Pipeline wires the analysis stages. It holds no per-request state and is
// safe for concurrent use when its collaborators are.
type Pipeline struct {
	policies  PolicySource
	enforcer  Enforcer
	recorder  Recorder
	monitor   BlockMonitor
	validator *security.ValidationService
	logger    *security.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	now       func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMonitor reports blocked transfers to m.
func WithMonitor(m BlockMonitor) Option {
	return func(p *Pipeline) { p.monitor = m }
}

// WithMetrics records analysis metrics in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithTracerProvider takes spans from tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(p *Pipeline) { p.tracer = tp.Tracer(TracerName) }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New creates a pipeline.
func New(policies PolicySource, enforcer Enforcer, recorder Recorder, validator *security.ValidationService, logger *security.Logger, opts ...Option) *Pipeline {
	p := &Pipeline{
		policies:  policies,
		enforcer:  enforcer,
		recorder:  recorder,
		validator: validator,
		logger:    logger,
		tracer:    otel.GetTracerProvider().Tracer(TracerName),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Analyze evaluates req against the active policies and enforces the result.
//
// The only error is a *models.ValidationError for oversized input. Collaborator
// and storage failures degrade the response and are reported in ActionsTaken.
// Exactly one audit entry is written per call: an analysis entry when the
// request is accepted, also when ApplyPolicies is false, and a WARNING
// analysis_rejected entry when it is not.
func (p *Pipeline) Analyze(ctx context.Context, req Request) (*Response, error) {
	start := p.now()
	ctx, span := p.tracer.Start(ctx, "athier.analyze",
		trace.WithAttributes(
			attribute.Int("athier.findings", len(req.Findings)),
			attribute.Bool("athier.apply_policies", req.ApplyPolicies),
		))
	defer span.End()

	if err := p.validator.ValidateAnalysisText(req.Text, len(req.Findings)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		p.recorder.LogAudit(ctx, rejectionEntry(req, err))
		return nil, err
	}

	findings := req.Findings
	if findings == nil {
		findings = []models.Finding{}
	}
	meta := models.RequestMeta{SourceIP: req.SourceIP, SourceUser: req.SourceUser, SourceDevice: req.SourceDevice}

	resp := &Response{
		SensitiveDataDetected: len(findings) > 0,
		DetectedEntities:      findings,
		AppliedPolicies:       []models.MatchedPolicy{},
		Action:                models.ActionNone,
		Severity:              models.SeverityNone,
		ActionsTaken:          []string{},
		ProcessedText:         req.Text,
		Timestamp:             start.UTC(),
	}

	if req.ApplyPolicies {
		p.applyPolicies(ctx, span, req.Text, findings, meta, resp)
	}

	if p.metrics != nil {
		p.metrics.ObserveDecision(string(resp.Action), len(resp.AppliedPolicies))
		p.metrics.AnalysisDuration.Observe(p.now().Sub(start).Seconds())
	}
	span.SetAttributes(
		attribute.String("athier.action", string(resp.Action)),
		attribute.Int("athier.policies_matched", len(resp.AppliedPolicies)),
		attribute.Bool("athier.blocked", resp.Blocked),
		attribute.Bool("athier.alert_created", resp.AlertCreated),
	)

	p.recorder.LogAudit(ctx, p.auditEntry(req, resp))
	p.logger.SecurityEvent(security.EventAnalysis, meta.SourceUser, meta.SourceIP, meta.SourceDevice,
		map[string]interface{}{
			"findings": len(findings),
			"action":   resp.Action,
			"blocked":  resp.Blocked,
		})
	return resp, nil
}

func (p *Pipeline) applyPolicies(ctx context.Context, span trace.Span, text string, findings []models.Finding, meta models.RequestMeta, resp *Response) {
	policies, err := p.policies.ActivePolicies(ctx)
	if err != nil {
		if p.metrics != nil {
			p.metrics.PolicyStoreErrors.Inc()
		}
		p.logger.Error("failed to load active policies", err)
		span.RecordError(err)
		resp.ActionsTaken = append(resp.ActionsTaken, TagPolicyStoreUnavailable)
		return
	}

	matched := matcher.Match(findings, policies)
	decision, err := resolver.Resolve(matched)
	if err != nil {
		p.logger.Critical("stored policy failed resolution", err)
		span.RecordError(err)
		resp.ActionsTaken = append(resp.ActionsTaken, TagPolicyResolutionFailed)
		return
	}
	span.AddEvent("policies.resolved", trace.WithAttributes(
		attribute.Int("athier.active_policies", len(policies)),
		attribute.String("athier.summary", decision.Summary),
	))

	resp.AppliedPolicies = matched
	resp.PoliciesMatched = len(matched) > 0
	resp.Action = decision.Action
	resp.Severity = decision.Severity
	if !resp.PoliciesMatched {
		return
	}

	result := p.enforcer.Execute(ctx, decision, findings, text, meta)
	resp.ActionsTaken = append(resp.ActionsTaken, result.ActionsTaken...)
	resp.Blocked = result.Blocked
	resp.ProcessedText = result.RedactedText
	resp.EncryptedRefs = result.EncryptedRefs

	alert, err := p.recorder.Record(ctx, decision, findings, meta)
	if err != nil {
		span.RecordError(err)
		resp.ActionsTaken = replaceTag(resp.ActionsTaken, enforcement.TagAlertCreated, TagAlertPersistFailed)
	} else if alert != nil {
		resp.AlertCreated = true
		resp.AlertID = alert.ID
	}

	if resp.Blocked {
		if p.metrics != nil {
			p.metrics.BlocksTotal.Inc()
		}
		if p.monitor != nil {
			names := make([]string, 0, len(decision.Contributing))
			for _, mp := range decision.Contributing {
				names = append(names, mp.Name)
			}
			p.monitor.MonitorBlock(ctx, meta.SourceIP, names)
		}
	}
}

// replaceTag swaps old for repl, appending repl when old is absent.
func replaceTag(tags []string, old, repl string) []string {
	for i, t := range tags {
		if t == old {
			tags[i] = repl
			return tags
		}
	}
	return append(tags, repl)
}

// auditEntry summarizes the call. The analyzed text is represented by its
// SHA-256 digest and length only.
func (p *Pipeline) auditEntry(req Request, resp *Response) *models.AuditLog {
	sum := sha256.Sum256([]byte(req.Text))

	types := make([]string, 0, len(resp.DetectedEntities))
	seen := make(map[string]bool)
	for _, f := range resp.DetectedEntities {
		if !seen[f.EntityType] {
			seen[f.EntityType] = true
			types = append(types, f.EntityType)
		}
	}
	policyIDs := make([]string, 0, len(resp.AppliedPolicies))
	for _, mp := range resp.AppliedPolicies {
		policyIDs = append(policyIDs, mp.PolicyID)
	}

	level := models.AuditLevelInfo
	if resp.Blocked {
		level = models.AuditLevelWarning
	}

	entry := &models.AuditLog{
		EventType:  models.AuditEventAnalysis,
		Level:      level,
		Message:    fmt.Sprintf("Analyzed %d finding(s): action %s, %d policies matched", len(resp.DetectedEntities), resp.Action, len(resp.AppliedPolicies)),
		SourceUser: req.SourceUser,
		SourceIP:   req.SourceIP,
		Metadata: map[string]interface{}{
			"text_hash":      hex.EncodeToString(sum[:]),
			"text_length":    len([]rune(req.Text)),
			"source_device":  req.SourceDevice,
			"apply_policies": req.ApplyPolicies,
			"entity_types":   types,
			"policy_ids":     policyIDs,
			"action":         resp.Action,
			"severity":       resp.Severity,
			"actions_taken":  resp.ActionsTaken,
			"blocked":        resp.Blocked,
			"alert_created":  resp.AlertCreated,
		},
	}
	if resp.AlertID != "" {
		alertID := resp.AlertID
		entry.ObjectType = "alert"
		entry.ObjectID = &alertID
	}
	return entry
}

// rejectionEntry records a request refused before analysis. Like auditEntry it
// keeps only the digest and length of the text.
func rejectionEntry(req Request, cause error) *models.AuditLog {
	sum := sha256.Sum256([]byte(req.Text))

	field, reason := "", cause.Error()
	var verr *models.ValidationError
	if errors.As(cause, &verr) {
		field, reason = verr.Field, verr.Message
	}

	return &models.AuditLog{
		EventType:  models.AuditEventAnalysisRejected,
		Level:      models.AuditLevelWarning,
		Message:    fmt.Sprintf("Rejected analysis request: %s %s", field, reason),
		SourceUser: req.SourceUser,
		SourceIP:   req.SourceIP,
		Metadata: map[string]interface{}{
			"text_hash":     hex.EncodeToString(sum[:]),
			"text_bytes":    len(req.Text),
			"findings":      len(req.Findings),
			"source_device": req.SourceDevice,
			"field":         field,
			"reason":        reason,
		},
	}
}
