package alerting

import (
	"fmt"
	"time"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// Transition moves alert to next.
//
// Forward moves are pending -> acknowledged|resolved|false_positive and
// acknowledged -> resolved|false_positive. Any other move requires override.
// Entering a terminal status stamps ResolvedAt and ResolvedBy; leaving one
// through an override clears them. Moving to the current status is a no-op and
// reports changed=false.
func Transition(alert *models.Alert, next models.AlertStatus, by string, override bool, now time.Time) (changed bool, err error) {
	if !next.Valid() {
		return false, models.NewValidationError("status", "must be one of: pending, acknowledged, resolved, false_positive")
	}
	if alert.Status == next {
		return false, nil
	}
	if !override && !alert.Status.CanTransitionTo(next) {
		return false, fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, alert.Status, next)
	}

	alert.Status = next
	if next.Terminal() {
		at := now.UTC()
		alert.ResolvedAt = &at
		if by != "" {
			resolvedBy := by
			alert.ResolvedBy = &resolvedBy
		} else {
			alert.ResolvedBy = nil
		}
	} else {
		alert.ResolvedAt = nil
		alert.ResolvedBy = nil
	}
	return true, nil
}
