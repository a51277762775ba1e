package authz

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type rolesFile struct {
	Roles []Role `yaml:"roles"`
}

// LoadRoles reads the declarative role configuration and compiles every
// permission pattern. Roles are immutable after this point; refreshing
// them means building a new Evaluator.
func LoadRoles(path string) ([]Role, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("authz: read roles file: %w", err)
	}
	return ParseRoles(raw)
}

// ParseRoles parses YAML role definitions.
func ParseRoles(raw []byte) ([]Role, error) {
	var f rolesFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("authz: parse roles: %w", err)
	}
	seen := map[string]bool{}
	for i := range f.Roles {
		r := &f.Roles[i]
		if r.Name == "" {
			return nil, fmt.Errorf("authz: role %d has no name", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("authz: duplicate role %q", r.Name)
		}
		seen[r.Name] = true
		compiled, err := CompilePermissions(r.Permissions)
		if err != nil {
			return nil, fmt.Errorf("authz: role %q: %w", r.Name, err)
		}
		r.Permissions = compiled
	}
	return f.Roles, nil
}
