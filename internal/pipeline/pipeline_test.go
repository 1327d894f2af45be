package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/alerting"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/enforcement"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/metrics"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

type staticPolicies struct {
	mu       sync.Mutex
	policies []models.Policy
	err      error
	calls    int
}

func (s *staticPolicies) ActivePolicies(ctx context.Context) ([]models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	var out []models.Policy
	for _, p := range s.policies {
		if p.Active() {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubBlocker struct {
	err   error
	calls int
}

func (b *stubBlocker) Block(ctx context.Context, req enforcement.BlockRequest) error {
	b.calls++
	return b.err
}

type alertStore struct {
	mu     sync.Mutex
	alerts map[string]models.Alert
	err    error
}

func (s *alertStore) Create(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	alert.ID = fmt.Sprintf("alert-%d", len(s.alerts)+1)
	alert.CreatedAt = time.Now().UTC()
	s.alerts[alert.ID] = *alert
	return nil
}

type auditStore struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (s *auditStore) Log(ctx context.Context, entry *models.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

type countingAlerter struct {
	mu     sync.Mutex
	titles []string
}

func (a *countingAlerter) SendAlert(ctx context.Context, severity, title, message string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.titles = append(a.titles, title)
	return nil
}

type harness struct {
	pipeline *Pipeline
	policies *staticPolicies
	blocker  *stubBlocker
	alerts   *alertStore
	audit    *auditStore
	alerter  *countingAlerter
	metrics  *metrics.Metrics
	spans    *tracetest.SpanRecorder
}

func newHarness(t *testing.T, policies ...models.Policy) *harness {
	t.Helper()

	logger := security.NewLoggerWithOutput(io.Discard, security.LogLevelInfo)
	cfg := security.DefaultSecurityConfig()
	cfg.AlertThresholdBlocks = 2
	m := metrics.NewMetrics(prometheus.NewRegistry())

	vault, err := enforcement.NewVault(64)
	require.NoError(t, err)
	encryptor, err := enforcement.NewAESEncryptor("test-secret", "test-salt", vault)
	require.NoError(t, err)

	h := &harness{
		policies: &staticPolicies{policies: policies},
		blocker:  &stubBlocker{},
		alerts:   &alertStore{alerts: make(map[string]models.Alert)},
		audit:    &auditStore{},
		alerter:  &countingAlerter{},
		metrics:  m,
		spans:    tracetest.NewSpanRecorder(),
	}

	executor := enforcement.NewExecutor(h.blocker, encryptor, enforcement.Config{}, logger, m)
	recorder := alerting.NewRecorder(h.alerts, h.audit, logger, m, alerting.WithAuditRetry(1, time.Millisecond))
	monitor := security.NewSecurityMonitor(logger, cfg, h.alerter)
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(h.spans))

	h.pipeline = New(h.policies, executor, recorder, security.NewValidationService(cfg), logger,
		WithMonitor(monitor), WithMetrics(m), WithTracerProvider(tp))
	return h
}

func policy(id, name string, action models.Action, severity models.Severity, types ...string) models.Policy {
	return models.Policy{
		ID:          id,
		Name:        name,
		EntityTypes: types,
		Action:      action,
		Severity:    severity,
		Enabled:     true,
	}
}

func phoneRequest() Request {
	text := "Call me at 123-456-7890"
	return Request{
		Text:          text,
		Findings:      []models.Finding{{EntityType: "PHONE_NUMBER", Start: 11, End: 23, Score: 0.95, Value: "123-456-7890"}},
		SourceIP:      "10.1.1.1",
		SourceUser:    "bob",
		ApplyPolicies: true,
	}
}

func TestAnalyze_AlertPolicy(t *testing.T) {
	h := newHarness(t, policy("p1", "Alert Phones", models.ActionAlert, models.SeverityMedium, "PHONE_NUMBER"))

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.True(t, resp.SensitiveDataDetected)
	assert.True(t, resp.PoliciesMatched)
	assert.False(t, resp.Blocked)
	assert.True(t, resp.AlertCreated)
	assert.NotEmpty(t, resp.AlertID)
	assert.Equal(t, []string{enforcement.TagAlertCreated}, resp.ActionsTaken)
	assert.Equal(t, "Call me at 123-456-7890", resp.ProcessedText)
	assert.Equal(t, models.SeverityMedium, resp.Severity)
	require.Len(t, resp.AppliedPolicies, 1)
	assert.Equal(t, "Alert Phones", resp.AppliedPolicies[0].Name)
	assert.Len(t, h.audit.entries, 1)
}

func TestAnalyze_BlockPolicy(t *testing.T) {
	h := newHarness(t, policy("p1", "Block Phones", models.ActionBlock, models.SeverityHigh, "PHONE_NUMBER"))

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.True(t, resp.Blocked)
	assert.Contains(t, resp.ActionsTaken, "blocked_by_policy_Block Phones")
	assert.NotContains(t, resp.ActionsTaken, enforcement.TagBlockServiceUnavailable)
	assert.True(t, resp.AlertCreated)
	assert.Empty(t, resp.ProcessedText)
	assert.Equal(t, 1, h.blocker.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.BlocksTotal))

	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, models.AuditLevelWarning, h.audit.entries[0].Level)
}

func TestAnalyze_NoOverlapWithPolicies(t *testing.T) {
	h := newHarness(t, policy("p1", "People", models.ActionBlock, models.SeverityHigh, "PERSON"))

	resp, err := h.pipeline.Analyze(context.Background(), Request{
		Text:          "card 4111111111111111",
		Findings:      []models.Finding{{EntityType: "CREDIT_CARD", Start: 5, End: 21, Score: 0.99}},
		ApplyPolicies: true,
	})

	require.NoError(t, err)
	assert.True(t, resp.SensitiveDataDetected)
	assert.False(t, resp.PoliciesMatched)
	assert.False(t, resp.Blocked)
	assert.False(t, resp.AlertCreated)
	assert.Empty(t, resp.ActionsTaken)
	assert.Equal(t, models.ActionNone, resp.Action)
	assert.Empty(t, h.alerts.alerts)
	assert.Len(t, h.audit.entries, 1)
}

func TestAnalyze_AlertIsSnapshotOfPolicy(t *testing.T) {
	h := newHarness(t, policy("p1", "Alert Phones", models.ActionAlert, models.SeverityMedium, "PHONE_NUMBER"))

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())
	require.NoError(t, err)
	before := h.alerts.alerts[resp.AlertID]

	h.policies.policies[0].Deleted = true
	h.policies.policies[0].Name = "Renamed Later"

	after := h.alerts.alerts[resp.AlertID]
	assert.Equal(t, "Alert Phones", after.Title)
	assert.Equal(t, before.Description, after.Description)

	again, err := h.pipeline.Analyze(context.Background(), phoneRequest())
	require.NoError(t, err)
	assert.False(t, again.PoliciesMatched, "deleted policy no longer matches")
}

func TestAnalyze_AnonymizeRightToLeft(t *testing.T) {
	h := newHarness(t, policy("p1", "Anonymize Names", models.ActionAnonymize, models.SeverityLow, "PERSON"))

	text := "John met Mary there."
	require.Len(t, []rune(text), 20)
	resp, err := h.pipeline.Analyze(context.Background(), Request{
		Text: text,
		Findings: []models.Finding{
			{EntityType: "PERSON", Start: 0, End: 4, Value: "John"},
			{EntityType: "PERSON", Start: 9, End: 13, Value: "Mary"},
		},
		ApplyPolicies: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "<PERSON> met <PERSON> there.", resp.ProcessedText)
	assert.Equal(t, []string{"anonymized_PERSON", "anonymized_PERSON"}, resp.ActionsTaken)
}

func TestAnalyze_EncryptReturnsRefs(t *testing.T) {
	h := newHarness(t, policy("p1", "Encrypt Cards", models.ActionEncrypt, models.SeverityCritical, "CREDIT_CARD"))

	resp, err := h.pipeline.Analyze(context.Background(), Request{
		Text:          "card 4111111111111111 ok",
		Findings:      []models.Finding{{EntityType: "CREDIT_CARD", Start: 5, End: 21}},
		ApplyPolicies: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "card [ENCRYPTED:CREDIT_CARD] ok", resp.ProcessedText)
	assert.Equal(t, []string{"encrypted_CREDIT_CARD"}, resp.ActionsTaken)
	require.Len(t, resp.EncryptedRefs, 1)
	assert.NotEmpty(t, resp.EncryptedRefs[0].Ref)
}

func TestAnalyze_BlockerUnavailableStillBlocks(t *testing.T) {
	h := newHarness(t, policy("p1", "Block Phones", models.ActionBlock, models.SeverityHigh, "PHONE_NUMBER"))
	h.blocker.err = models.ErrCollaboratorUnavailable

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.True(t, resp.Blocked)
	assert.Contains(t, resp.ActionsTaken, enforcement.TagBlockServiceUnavailable)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.CollaboratorFailuresTotal.WithLabelValues("blocker")))
}

func TestAnalyze_ThreePoliciesOneAlert(t *testing.T) {
	h := newHarness(t,
		policy("p1", "Alert Phones", models.ActionAlert, models.SeverityLow, "PHONE_NUMBER"),
		policy("p2", "Anonymize Phones", models.ActionAnonymize, models.SeverityMedium, "PHONE_NUMBER"),
		policy("p3", "Watch Contacts", models.ActionAlert, models.SeverityCritical, "PHONE_NUMBER", "EMAIL_ADDRESS"),
	)

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.Len(t, resp.AppliedPolicies, 3)
	assert.Equal(t, models.ActionAnonymize, resp.Action)
	assert.Equal(t, models.SeverityCritical, resp.Severity)
	require.Len(t, h.alerts.alerts, 1)
	alert := h.alerts.alerts[resp.AlertID]
	assert.Equal(t, alerting.MultiPolicyTitle, alert.Title)
	for _, name := range []string{"Alert Phones", "Anonymize Phones", "Watch Contacts"} {
		assert.Contains(t, alert.Description, name)
	}
}

func TestAnalyze_ApplyPoliciesFalseStillAudits(t *testing.T) {
	h := newHarness(t, policy("p1", "Block Phones", models.ActionBlock, models.SeverityHigh, "PHONE_NUMBER"))
	req := phoneRequest()
	req.ApplyPolicies = false

	resp, err := h.pipeline.Analyze(context.Background(), req)

	require.NoError(t, err)
	assert.True(t, resp.SensitiveDataDetected)
	assert.False(t, resp.PoliciesMatched)
	assert.False(t, resp.Blocked)
	assert.Equal(t, req.Text, resp.ProcessedText)
	assert.Equal(t, 0, h.policies.calls)
	assert.Equal(t, 0, h.blocker.calls)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, false, h.audit.entries[0].Metadata["apply_policies"])
}

func TestAnalyze_PolicyStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	h.policies.err = errors.New("connection refused")

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.Equal(t, []string{TagPolicyStoreUnavailable}, resp.ActionsTaken)
	assert.False(t, resp.PoliciesMatched)
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.PolicyStoreErrors))
	assert.Len(t, h.audit.entries, 1)
}

func TestAnalyze_AlertPersistFailureStillAudits(t *testing.T) {
	h := newHarness(t, policy("p1", "Alert Phones", models.ActionAlert, models.SeverityMedium, "PHONE_NUMBER"))
	h.alerts.err = models.ErrPersistence

	resp, err := h.pipeline.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.False(t, resp.AlertCreated)
	assert.Empty(t, resp.AlertID)
	assert.Equal(t, []string{TagAlertPersistFailed}, resp.ActionsTaken)
	require.Len(t, h.audit.entries, 1)
	assert.Nil(t, h.audit.entries[0].ObjectID)
}

func TestAnalyze_AuditNeverStoresText(t *testing.T) {
	h := newHarness(t, policy("p1", "Alert Phones", models.ActionAlert, models.SeverityMedium, "PHONE_NUMBER"))
	req := phoneRequest()

	_, err := h.pipeline.Analyze(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, h.audit.entries, 1)
	entry := h.audit.entries[0]
	sum := sha256.Sum256([]byte(req.Text))
	assert.Equal(t, hex.EncodeToString(sum[:]), entry.Metadata["text_hash"])
	assert.Equal(t, models.AuditEventAnalysis, entry.EventType)
	for key, v := range entry.Metadata {
		if s, ok := v.(string); ok {
			assert.False(t, strings.Contains(s, "123-456-7890"), "metadata %s leaks the analyzed text", key)
		}
	}
	assert.NotContains(t, entry.Message, "123-456-7890")
}

func TestAnalyze_RejectsOversizedText(t *testing.T) {
	h := newHarness(t)
	text := strings.Repeat("a", security.DefaultSecurityConfig().MaxTextSize+1)
	req := Request{Text: text, SourceIP: "10.9.9.9", SourceUser: "eve"}

	resp, err := h.pipeline.Analyze(context.Background(), req)

	assert.Nil(t, resp)
	assert.ErrorIs(t, err, models.ErrValidation)

	require.Len(t, h.audit.entries, 1, "a rejected request still leaves one audit entry")
	entry := h.audit.entries[0]
	sum := sha256.Sum256([]byte(text))
	assert.Equal(t, models.AuditEventAnalysisRejected, entry.EventType)
	assert.Equal(t, models.AuditLevelWarning, entry.Level)
	assert.Equal(t, "eve", entry.SourceUser)
	assert.Equal(t, "10.9.9.9", entry.SourceIP)
	assert.Equal(t, hex.EncodeToString(sum[:]), entry.Metadata["text_hash"])
	assert.Equal(t, len(text), entry.Metadata["text_bytes"])
	assert.Equal(t, "text", entry.Metadata["field"])
	assert.Less(t, len(entry.Message), 200, "message carries no text")
}

func TestAnalyze_RejectsTooManyFindings(t *testing.T) {
	h := newHarness(t)
	req := Request{Text: "x", Findings: make([]models.Finding, security.DefaultSecurityConfig().MaxFindings+1)}

	_, err := h.pipeline.Analyze(context.Background(), req)

	assert.ErrorIs(t, err, models.ErrValidation)
	require.Len(t, h.audit.entries, 1)
	assert.Equal(t, models.AuditEventAnalysisRejected, h.audit.entries[0].EventType)
	assert.Equal(t, "findings", h.audit.entries[0].Metadata["field"])
	assert.Equal(t, len(req.Findings), h.audit.entries[0].Metadata["findings"])
}

// hangingAuditStore blocks every write until its context ends.
type hangingAuditStore struct{}

func (hangingAuditStore) Log(ctx context.Context, entry *models.AuditLog) error {
	<-ctx.Done()
	return ctx.Err()
}

func TestAnalyze_HungAuditStoreBoundsLatency(t *testing.T) {
	logger := security.NewLoggerWithOutput(io.Discard, security.LogLevelInfo)
	cfg := security.DefaultSecurityConfig()
	m := metrics.NewMetrics(prometheus.NewRegistry())
	vault, err := enforcement.NewVault(8)
	require.NoError(t, err)
	encryptor, err := enforcement.NewAESEncryptor("test-secret", "test-salt", vault)
	require.NoError(t, err)

	recorder := alerting.NewRecorder(&alertStore{alerts: make(map[string]models.Alert)}, hangingAuditStore{}, logger, m,
		alerting.WithAuditRetry(3, time.Millisecond), alerting.WithAuditTimeout(50*time.Millisecond))
	p := New(&staticPolicies{}, enforcement.NewExecutor(&stubBlocker{}, encryptor, enforcement.Config{}, logger, m),
		recorder, security.NewValidationService(cfg), logger, WithMetrics(m))

	start := time.Now()
	resp, err := p.Analyze(context.Background(), phoneRequest())

	require.NoError(t, err)
	assert.True(t, resp.SensitiveDataDetected)
	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AuditWriteErrors))
}

func TestAnalyze_EscalatesBlockBurst(t *testing.T) {
	h := newHarness(t, policy("p1", "Block Phones", models.ActionBlock, models.SeverityHigh, "PHONE_NUMBER"))

	for i := 0; i < 3; i++ {
		_, err := h.pipeline.Analyze(context.Background(), phoneRequest())
		require.NoError(t, err)
	}

	assert.Equal(t, []string{"Repeated blocked transfers"}, h.alerter.titles)
}

func TestAnalyze_RecordsSpan(t *testing.T) {
	h := newHarness(t, policy("p1", "Block Phones", models.ActionBlock, models.SeverityHigh, "PHONE_NUMBER"))

	_, err := h.pipeline.Analyze(context.Background(), phoneRequest())
	require.NoError(t, err)

	spans := h.spans.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "athier.analyze", spans[0].Name())

	attrs := make(map[string]interface{})
	for _, kv := range spans[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.AsInterface()
	}
	assert.Equal(t, "block", attrs["athier.action"])
	assert.Equal(t, true, attrs["athier.blocked"])
	assert.Equal(t, int64(1), attrs["athier.findings"])
}

func TestAnalyze_CountsAnalyses(t *testing.T) {
	h := newHarness(t, policy("p1", "Alert Phones", models.ActionAlert, models.SeverityMedium, "PHONE_NUMBER"))

	_, err := h.pipeline.Analyze(context.Background(), phoneRequest())
	require.NoError(t, err)
	_, err = h.pipeline.Analyze(context.Background(), Request{Text: "nothing here", ApplyPolicies: true})
	require.NoError(t, err)

	assert.Equal(t, 2.0, testutil.ToFloat64(h.metrics.AnalysesTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DecisionsTotal.WithLabelValues("alert")))
	assert.Equal(t, 1.0, testutil.ToFloat64(h.metrics.DecisionsTotal.WithLabelValues("none")))
}
