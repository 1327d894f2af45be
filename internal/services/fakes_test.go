package services_test

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/security"
)

// memoryPolicyStore is an in-memory PolicyStore.
type memoryPolicyStore struct {
	mu       sync.Mutex
	policies map[string]*models.Policy
	order    []string
	seq      int
	err      error
}

func newMemoryPolicyStore() *memoryPolicyStore {
	return &memoryPolicyStore{policies: make(map[string]*models.Policy)}
}

func (m *memoryPolicyStore) Create(ctx context.Context, policy *models.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.seq++
	policy.ID = fmt.Sprintf("policy-%d", m.seq)
	policy.CreatedAt = time.Date(2024, 1, 1, 0, 0, m.seq, 0, time.UTC)
	cp := *policy
	m.policies[policy.ID] = &cp
	m.order = append(m.order, policy.ID)
	return nil
}

func (m *memoryPolicyStore) Update(ctx context.Context, policy *models.Policy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.policies[policy.ID]
	if !ok || existing.Deleted {
		return models.NotFoundError("policy", policy.ID)
	}
	cp := *policy
	m.policies[policy.ID] = &cp
	return nil
}

func (m *memoryPolicyStore) GetByID(ctx context.Context, id string) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok || p.Deleted {
		return nil, models.NotFoundError("policy", id)
	}
	cp := *p
	return &cp, nil
}

func (m *memoryPolicyStore) filter(keep func(*models.Policy) bool) []models.Policy {
	out := []models.Policy{}
	for _, id := range m.order {
		if p := m.policies[id]; keep(p) {
			out = append(out, *p)
		}
	}
	return out
}

func page(items []models.Policy, limit, offset int) []models.Policy {
	if offset >= len(items) {
		return []models.Policy{}
	}
	end := offset + limit
	if end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}

func (m *memoryPolicyStore) List(ctx context.Context, enabled *bool, limit, offset int) ([]models.Policy, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(p *models.Policy) bool {
		return !p.Deleted && (enabled == nil || p.Enabled == *enabled)
	})
	return page(all, limit, offset), len(all), nil
}

func (m *memoryPolicyStore) ListDeleted(ctx context.Context, limit, offset int) ([]models.Policy, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	all := m.filter(func(p *models.Policy) bool { return p.Deleted })
	return page(all, limit, offset), len(all), nil
}

func (m *memoryPolicyStore) ListActive(ctx context.Context) ([]models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	return m.filter(func(p *models.Policy) bool { return p.Active() }), nil
}

func (m *memoryPolicyStore) SoftDelete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok || p.Deleted {
		return models.NotFoundError("policy", id)
	}
	now := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	p.Deleted = true
	p.DeletedAt = &now
	return nil
}

func (m *memoryPolicyStore) Restore(ctx context.Context, id string) (*models.Policy, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.policies[id]
	if !ok || !p.Deleted {
		return nil, models.NotFoundError("deleted policy", id)
	}
	for _, other := range m.policies {
		if other.ID != id && !other.Deleted && other.Name == p.Name {
			return nil, models.NewValidationError("name", "a policy with this name already exists")
		}
	}
	p.Deleted = false
	p.DeletedAt = nil
	cp := *p
	return &cp, nil
}

func (m *memoryPolicyStore) NameTaken(ctx context.Context, name, excludeID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.policies {
		if !p.Deleted && p.Name == name && p.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

// recordingAuditor keeps audit entries in memory.
type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (r *recordingAuditor) LogAudit(ctx context.Context, entry *models.AuditLog) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
}

func (r *recordingAuditor) events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.EventType)
	}
	return out
}

// memoryAlertStore is an in-memory AlertStore and StatsStore.
type memoryAlertStore struct {
	alerts  map[string]*models.Alert
	updates int
	since   time.Time

	// beforeWrite runs at the start of UpdateStatus, standing in for a
	// concurrent writer that commits between the caller's read and write.
	beforeWrite func(m *memoryAlertStore)
}

func newMemoryAlertStore(alerts ...models.Alert) *memoryAlertStore {
	m := &memoryAlertStore{alerts: make(map[string]*models.Alert)}
	for i := range alerts {
		a := alerts[i]
		m.alerts[a.ID] = &a
	}
	return m
}

func (m *memoryAlertStore) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	a, ok := m.alerts[id]
	if !ok {
		return nil, models.NotFoundError("alert", id)
	}
	cp := *a
	return &cp, nil
}

func (m *memoryAlertStore) List(ctx context.Context, filter models.AlertFilter, limit, offset int) ([]models.Alert, int, error) {
	out := []models.Alert{}
	for _, a := range m.alerts {
		if filter.Status != "" && a.Status != filter.Status {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset >= total {
		return []models.Alert{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func (m *memoryAlertStore) UpdateStatus(ctx context.Context, alert *models.Alert, expected models.AlertStatus) error {
	if hook := m.beforeWrite; hook != nil {
		m.beforeWrite = nil
		hook(m)
	}
	stored, ok := m.alerts[alert.ID]
	if !ok {
		return models.NotFoundError("alert", alert.ID)
	}
	if stored.Status != expected {
		return fmt.Errorf("alert %q is %s: %w", alert.ID, stored.Status, models.ErrStaleStatus)
	}
	cp := *alert
	m.alerts[alert.ID] = &cp
	m.updates++
	return nil
}

func (m *memoryAlertStore) AlertSummary(ctx context.Context) (*models.AlertStats, error) {
	stats := &models.AlertStats{}
	for _, a := range m.alerts {
		stats.Total++
		switch a.Status {
		case models.AlertStatusPending:
			stats.Pending++
		case models.AlertStatusResolved:
			stats.Resolved++
		}
		if a.Blocked {
			stats.Blocked++
		}
	}
	return stats, nil
}

func (m *memoryAlertStore) PeriodSummary(ctx context.Context, since time.Time) (*models.PeriodSummary, error) {
	m.since = since
	summary := &models.PeriodSummary{Since: since, EntityBreakdown: map[string]int{}}
	for _, a := range m.alerts {
		if a.CreatedAt.Before(since) {
			continue
		}
		summary.Alerts++
		if a.Blocked {
			summary.BlockedAlerts++
		}
		for _, f := range a.DetectedEntities {
			summary.EntityBreakdown[f.EntityType]++
			summary.DetectedEntities++
		}
	}
	return summary, nil
}

func quietLogger() *security.Logger {
	return security.NewLoggerWithOutput(io.Discard, security.LogLevelInfo)
}

func boolPtr(b bool) *bool { return &b }

func strPtr(s string) *string { return &s }
