package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

func mp(name string, action models.Action, severity models.Severity) models.MatchedPolicy {
	return models.MatchedPolicy{
		PolicyID:        "id-" + name,
		Name:            name,
		Action:          action,
		Severity:        severity,
		EntityTypes:     []string{"PERSON"},
		MatchedEntities: []string{"PERSON"},
		MatchedCount:    1,
	}
}

func TestResolve_Empty(t *testing.T) {
	d, err := Resolve(nil)

	require.NoError(t, err)
	assert.Equal(t, models.ActionNone, d.Action)
	assert.Equal(t, models.SeverityNone, d.Severity)
	assert.False(t, d.Blocked)
	assert.Empty(t, d.Contributing)
	assert.Empty(t, d.Summary)
}

func TestResolve_ActionPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		matched []models.MatchedPolicy
		want    models.Action
	}{
		{"alert only", []models.MatchedPolicy{mp("a", models.ActionAlert, models.SeverityLow)}, models.ActionAlert},
		{"anonymize beats alert", []models.MatchedPolicy{
			mp("a", models.ActionAlert, models.SeverityLow),
			mp("b", models.ActionAnonymize, models.SeverityLow),
		}, models.ActionAnonymize},
		{"encrypt beats anonymize", []models.MatchedPolicy{
			mp("a", models.ActionAnonymize, models.SeverityLow),
			mp("b", models.ActionEncrypt, models.SeverityLow),
		}, models.ActionEncrypt},
		{"block beats everything", []models.MatchedPolicy{
			mp("a", models.ActionEncrypt, models.SeverityLow),
			mp("b", models.ActionBlock, models.SeverityLow),
			mp("c", models.ActionAlert, models.SeverityLow),
		}, models.ActionBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Resolve(tt.matched)
			require.NoError(t, err)
			assert.Equal(t, tt.want, d.Action)
			assert.Equal(t, tt.want == models.ActionBlock, d.Blocked)
		})
	}
}

// TestResolve_SeverityIsMaxAcrossAllMatches covers a lower-precedence policy
// carrying the highest severity.
func TestResolve_SeverityIsMaxAcrossAllMatches(t *testing.T) {
	d, err := Resolve([]models.MatchedPolicy{
		mp("block-low", models.ActionBlock, models.SeverityLow),
		mp("alert-critical", models.ActionAlert, models.SeverityCritical),
	})

	require.NoError(t, err)
	assert.Equal(t, models.ActionBlock, d.Action)
	assert.Equal(t, models.SeverityCritical, d.Severity)
}

func TestResolve_ContributingAndSummary(t *testing.T) {
	matched := []models.MatchedPolicy{
		mp("Encrypt Emails", models.ActionEncrypt, models.SeverityMedium),
		mp("Alert Names", models.ActionAlert, models.SeverityHigh),
		mp("Encrypt Phones", models.ActionEncrypt, models.SeverityLow),
	}

	d, err := Resolve(matched)

	require.NoError(t, err)
	require.Len(t, d.Contributing, 2)
	assert.Equal(t, "Encrypt Emails", d.Contributing[0].Name)
	assert.Equal(t, "Encrypt Phones", d.Contributing[1].Name)
	assert.Len(t, d.Policies, 3)
	assert.Equal(t, "encrypt (policies: Encrypt Emails, Alert Names, Encrypt Phones)", d.Summary)
}

func TestResolve_InvalidInput(t *testing.T) {
	_, err := Resolve([]models.MatchedPolicy{mp("bad", "quarantine", models.SeverityLow)})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = Resolve([]models.MatchedPolicy{mp("bad", models.ActionAlert, "urgent")})
	assert.ErrorIs(t, err, ErrInvalidPolicy)

	_, err = Resolve([]models.MatchedPolicy{mp("none", models.ActionNone, models.SeverityLow)})
	assert.ErrorIs(t, err, ErrInvalidPolicy)
}
