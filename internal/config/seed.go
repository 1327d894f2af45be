package config

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ul8ziz/Integrated-Data-Protection-System/internal/models"
)

// SeedUser is recorded as the creator of seeded policies.
const SeedUser = "system"

//go:embed default_policies.yaml
var defaultPolicies []byte

// DefaultPolicies returns the built-in seed policies.
func DefaultPolicies() ([]models.PolicyInput, error) {
	return ParsePolicies(defaultPolicies)
}

// LoadPolicies reads seed policies from a YAML file. An empty path yields the
// built-in defaults.
func LoadPolicies(path string) ([]models.PolicyInput, error) {
	if path == "" {
		return DefaultPolicies()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy seed file: %w", err)
	}
	return ParsePolicies(data)
}

// ParsePolicies decodes a YAML list of policies. Policies without a creator
// are attributed to SeedUser.
func ParsePolicies(data []byte) ([]models.PolicyInput, error) {
	var inputs []models.PolicyInput
	if err := yaml.Unmarshal(data, &inputs); err != nil {
		return nil, fmt.Errorf("parse policy seed: %w", err)
	}
	for i := range inputs {
		if inputs[i].CreatedBy == "" {
			inputs[i].CreatedBy = SeedUser
		}
	}
	return inputs, nil
}
