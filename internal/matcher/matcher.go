// Package matcher intersects detector findings with the active policy snapshot.
// It performs no I/O; the caller supplies the snapshot.
package matcher

import (
	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// Match returns one MatchedPolicy per eligible policy whose entity types share at
// least one type with the findings, in the order the policies were given.
//
// Only enabled, non-deleted policies are eligible. MatchedEntities lists the shared
// types in the order they first appear in findings, and MatchedCount counts every
// contributing finding including duplicates. The result is never nil.
func Match(findings []models.Finding, policies []models.Policy) []models.MatchedPolicy {
	matched := []models.MatchedPolicy{}
	if len(findings) == 0 || len(policies) == 0 {
		return matched
	}

	// First-seen order of types and the number of findings per type.
	order := make([]string, 0, len(findings))
	counts := make(map[string]int, len(findings))
	for _, f := range findings {
		if counts[f.EntityType] == 0 {
			order = append(order, f.EntityType)
		}
		counts[f.EntityType]++
	}

	for _, p := range policies {
		if !p.Active() {
			continue
		}

		wanted := make(map[string]bool, len(p.EntityTypes))
		for _, t := range p.EntityTypes {
			wanted[t] = true
		}

		var (
			entities []string
			count    int
		)
		for _, t := range order {
			if wanted[t] {
				entities = append(entities, t)
				count += counts[t]
			}
		}
		if len(entities) == 0 {
			continue
		}

		matched = append(matched, models.MatchedPolicy{
			PolicyID:        p.ID,
			Name:            p.Name,
			Action:          p.Action,
			Severity:        p.Severity,
			EntityTypes:     append([]string(nil), p.EntityTypes...),
			MatchedEntities: entities,
			MatchedCount:    count,
		})
	}
	return matched
}
