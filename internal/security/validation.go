// Package security provides input validation functionality.
package security

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

var controlChars = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F\x7F]`)

// ValidationService provides centralized input validation functions.
// All validation methods return *models.ValidationError values whose messages
// are safe to show to users.
type ValidationService struct {
	config   *SecurityConfig
	validate *validator.Validate
}

// NewValidationService creates a new validation service with security configuration.
// Field names in errors follow the json tags of the validated structs.
func NewValidationService(config *SecurityConfig) *ValidationService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return &ValidationService{config: config, validate: v}
}

// translate converts the first validator failure into a user-safe ValidationError.
func (v *ValidationService) translate(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return models.NewValidationError("", "invalid input")
	}

	fe := fieldErrs[0]
	field := fe.Field()
	switch fe.Tag() {
	case "required":
		return models.NewValidationError(field, "is required")
	case "min":
		return models.NewValidationError(field, "must contain at least %s item(s)", fe.Param())
	case "max":
		if fe.Kind() == reflect.Slice {
			return models.NewValidationError(field, "must contain at most %s items", fe.Param())
		}
		return models.NewValidationError(field, "must be %s characters or less", fe.Param())
	case "oneof":
		return models.NewValidationError(field, "must be one of: %s", strings.ReplaceAll(fe.Param(), " ", ", "))
	default:
		return models.NewValidationError(field, "is invalid")
	}
}

// NormalizePolicyInput trims the name and description and normalizes entity types in place.
func (v *ValidationService) NormalizePolicyInput(in *models.PolicyInput) {
	in.Name = strings.TrimSpace(v.SanitizeString(in.Name))
	in.Description = strings.TrimSpace(v.SanitizeString(in.Description))
	in.EntityTypes = NormalizeEntityTypes(in.EntityTypes)
	if in.Severity == "" {
		in.Severity = models.SeverityMedium
	}
}

// ValidatePolicyInput normalizes and validates a create payload.
//
// Rules: non-empty name, at least one entity type, action in the closed
// action set, severity in the closed severity set.
func (v *ValidationService) ValidatePolicyInput(in *models.PolicyInput) error {
	v.NormalizePolicyInput(in)
	if err := v.validate.Struct(in); err != nil {
		return v.translate(err)
	}
	return nil
}

// ValidatePolicy validates a merged policy, as produced by applying a PolicyUpdate.
func (v *ValidationService) ValidatePolicy(p *models.Policy) error {
	p.Name = strings.TrimSpace(v.SanitizeString(p.Name))
	p.Description = strings.TrimSpace(v.SanitizeString(p.Description))
	p.EntityTypes = NormalizeEntityTypes(p.EntityTypes)

	in := models.PolicyInput{
		Name:        p.Name,
		Description: p.Description,
		EntityTypes: p.EntityTypes,
		Action:      p.Action,
		Severity:    p.Severity,
	}
	if err := v.validate.Struct(&in); err != nil {
		return v.translate(err)
	}
	if !p.Severity.Valid() {
		return models.NewValidationError("severity", "is required")
	}
	return nil
}

// NormalizeEntityTypes trims entity tags, drops empty ones and removes duplicates,
// keeping first occurrence order. Tags are otherwise kept verbatim.
func NormalizeEntityTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]bool, len(types))
	for _, t := range types {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// ValidatePagination checks a 1-based page number and a page size.
func (v *ValidationService) ValidatePagination(page, limit int) error {
	if page < 1 {
		return models.NewValidationError("page", "must be 1 or greater")
	}
	if limit < 1 || limit > v.config.MaxPageLimit {
		return models.NewValidationError("limit", "must be between 1 and %d", v.config.MaxPageLimit)
	}
	return nil
}

// ValidateAlertStatus parses an alert status.
func (v *ValidationService) ValidateAlertStatus(s string) (models.AlertStatus, error) {
	status := models.AlertStatus(strings.ToLower(strings.TrimSpace(s)))
	if !status.Valid() {
		return "", models.NewValidationError("status", "must be one of: pending, acknowledged, resolved, false_positive")
	}
	return status, nil
}

// ValidateSeverity parses a severity.
func (v *ValidationService) ValidateSeverity(s string) (models.Severity, error) {
	severity := models.Severity(strings.ToLower(strings.TrimSpace(s)))
	if !severity.Valid() {
		return "", models.NewValidationError("severity", "must be one of: low, medium, high, critical")
	}
	return severity, nil
}

// ValidateAuditFilter trims the filter in place, uppercasing the level, and
// checks it against the known audit levels.
func (v *ValidationService) ValidateAuditFilter(f *models.AuditFilter) error {
	f.EventType = strings.ToLower(strings.TrimSpace(f.EventType))
	f.Level = strings.ToUpper(strings.TrimSpace(f.Level))
	if err := v.validate.Struct(f); err != nil {
		return v.translate(err)
	}
	return nil
}

// ValidateReportDays bounds the look-back window of period reports.
func (v *ValidationService) ValidateReportDays(days int) error {
	if days < 1 || days > v.config.MaxReportDays {
		return models.NewValidationError("days", "must be between 1 and %d", v.config.MaxReportDays)
	}
	return nil
}

// ValidateAnalysisText enforces the per-request text size limit.
func (v *ValidationService) ValidateAnalysisText(text string, findings int) error {
	if len(text) > v.config.MaxTextSize {
		return models.NewValidationError("text", "must be %d bytes or less", v.config.MaxTextSize)
	}
	if findings > v.config.MaxFindings {
		return models.NewValidationError("findings", "must contain at most %d items", v.config.MaxFindings)
	}
	return nil
}

// SanitizeString removes control characters (except newline and tab).
func (v *ValidationService) SanitizeString(input string) string {
	return controlChars.ReplaceAllString(input, "")
}
