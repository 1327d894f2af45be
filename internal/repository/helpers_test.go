package repository_test

import (
	"time"

	"github.com/pashagolub/pgxmock/v4"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

var testTime = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

var policyCols = []string{
	"id", "name", "description", "entity_types", "action", "severity", "enabled", "deleted",
	"apply_to_network", "apply_to_devices", "apply_to_storage", "gdpr_compliant", "hipaa_compliant",
	"created_by", "created_at", "updated_at", "deleted_at",
}

var alertCols = []string{
	"id", "title", "policy_id", "description", "severity", "status", "source_ip", "source_user",
	"source_device", "blocked", "action_taken", "detected_entities", "created_at", "resolved_by", "resolved_at",
}

// addPolicyRow appends p to rows in column order.
func addPolicyRow(rows *pgxmock.Rows, p models.Policy) *pgxmock.Rows {
	return rows.AddRow(
		p.ID, p.Name, p.Description, p.EntityTypes, string(p.Action), string(p.Severity), p.Enabled, p.Deleted,
		p.ApplyToNetwork, p.ApplyToDevices, p.ApplyToStorage, p.GDPRCompliant, p.HIPAACompliant,
		p.CreatedBy, p.CreatedAt, p.UpdatedAt, p.DeletedAt,
	)
}

func samplePolicy(id, name string, action models.Action) models.Policy {
	return models.Policy{
		ID:             id,
		Name:           name,
		Description:    "test policy",
		EntityTypes:    []string{"EMAIL_ADDRESS", "PHONE_NUMBER"},
		Action:         action,
		Severity:       models.SeverityHigh,
		Enabled:        true,
		ApplyToNetwork: true,
		ApplyToDevices: true,
		ApplyToStorage: true,
		GDPRCompliant:  true,
		CreatedBy:      "admin",
		CreatedAt:      testTime,
		UpdatedAt:      (*time.Time)(nil),
		DeletedAt:      (*time.Time)(nil),
	}
}

// anyArgs matches n arguments of any value.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}
