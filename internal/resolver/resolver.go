// Package resolver folds the policies matched for one request into a single
// enforcement decision. It performs no I/O.
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// ErrInvalidPolicy reports a matched policy carrying an action or severity outside
// the closed sets. Stored policies are validated, so this indicates a programming error.
var ErrInvalidPolicy = errors.New("matched policy has invalid action or severity")

// Resolve returns the decision for matched.
//
// The action is the highest-precedence action present (block > encrypt >
// anonymize > alert); the severity is the maximum across all matched policies,
// not only those carrying the winning action. An empty input yields
// ActionNone and SeverityNone.
func Resolve(matched []models.MatchedPolicy) (models.Decision, error) {
	decision := models.Decision{
		Action:       models.ActionNone,
		Severity:     models.SeverityNone,
		Policies:     []models.MatchedPolicy{},
		Contributing: []models.MatchedPolicy{},
	}
	if len(matched) == 0 {
		return decision, nil
	}

	names := make([]string, 0, len(matched))
	for _, mp := range matched {
		if !mp.Action.Valid() || !mp.Severity.Valid() {
			return models.Decision{}, fmt.Errorf("%w: policy %q action=%q severity=%q",
				ErrInvalidPolicy, mp.Name, mp.Action, mp.Severity)
		}
		if mp.Action.Precedence() > decision.Action.Precedence() {
			decision.Action = mp.Action
		}
		if mp.Severity.Rank() > decision.Severity.Rank() {
			decision.Severity = mp.Severity
		}
		names = append(names, mp.Name)
	}

	for _, mp := range matched {
		if mp.Action == decision.Action {
			decision.Contributing = append(decision.Contributing, mp)
		}
	}

	decision.Policies = append(decision.Policies, matched...)
	decision.Blocked = decision.Action == models.ActionBlock
	decision.Summary = fmt.Sprintf("%s (policies: %s)", decision.Action, strings.Join(names, ", "))
	return decision, nil
}
