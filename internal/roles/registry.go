// Package roles holds agent role metadata: the built-in roles plus any
// custom roles loaded from the project context. The registry is read-only
// after load; reloading requires rebuilding it.
package roles

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/coderclaw/coderclaw/internal/common/logger"
)

// Role is immutable agent-role metadata.
type Role struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities"`
	Tools        []string `yaml:"tools"`
	SystemPrompt string   `yaml:"system_prompt"`
	Model        string   `yaml:"model"`
	Thinking     string   `yaml:"thinking"`
	Constraints  []string `yaml:"constraints,omitempty"`
}

// Registry resolves roles by name. Custom roles override built-ins of the
// same name.
type Registry struct {
	roles  map[string]*Role
	logger *logger.Logger
}

// NewRegistry creates a registry seeded with the built-in roles plus the
// given custom roles.
func NewRegistry(log *logger.Logger, custom ...*Role) *Registry {
	r := &Registry{
		roles:  make(map[string]*Role),
		logger: log.WithFields(zap.String("component", "role-registry")),
	}
	for _, role := range BuiltinRoles() {
		r.roles[role.Name] = role
	}
	for _, role := range custom {
		if _, exists := r.roles[role.Name]; exists {
			r.logger.Info("custom role overrides built-in", zap.String("role", role.Name))
		}
		r.roles[role.Name] = role
	}
	return r
}

// Get returns the role with the given name.
func (r *Registry) Get(name string) (*Role, error) {
	role, ok := r.roles[name]
	if !ok {
		return nil, fmt.Errorf("unknown agent role: %s", name)
	}
	return role, nil
}

// Has reports whether a role with the given name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.roles[name]
	return ok
}

// List returns all roles sorted by name.
func (r *Registry) List() []*Role {
	result := make([]*Role, 0, len(r.roles))
	for _, role := range r.roles {
		result = append(result, role)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

// LoadCustomRoles parses every *.yaml file in dir as a role definition.
// A missing directory yields no roles and no error.
func LoadCustomRoles(dir string, log *logger.Logger) ([]*Role, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read roles dir: %w", err)
	}

	var result []*Role
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read role file %s: %w", path, err)
		}
		var role Role
		if err := yaml.Unmarshal(data, &role); err != nil {
			return nil, fmt.Errorf("parse role file %s: %w", path, err)
		}
		if role.Name == "" {
			log.Warn("skipping role file without a name", zap.String("file", path))
			continue
		}
		result = append(result, &role)
	}
	return result, nil
}
