// Package projectctx reads and scaffolds the project-context directory: a
// well-known tree holding project metadata, coding rules, architecture notes
// and custom agent role definitions. The orchestrator and role registry read
// it at startup and never write it.
package projectctx

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DirName is the well-known relative path of the project-context directory.
const DirName = ".coderclaw"

const (
	contextFile      = "context.yaml"
	rulesFile        = "rules.yaml"
	architectureFile = "architecture.md"
	agentsDir        = "agents"
)

// ProjectContext holds the parsed project metadata.
type ProjectContext struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Languages   []string `yaml:"languages,omitempty"`
	Repository  string   `yaml:"repository,omitempty"`
}

// Rules holds the parsed coding standards.
type Rules struct {
	Standards   []string `yaml:"standards,omitempty"`
	Forbidden   []string `yaml:"forbidden,omitempty"`
	TestCommand string   `yaml:"test_command,omitempty"`
}

// Tree is the loaded project-context directory.
type Tree struct {
	Root         string
	Context      ProjectContext
	Rules        Rules
	Architecture string
	AgentsDir    string
}

// Dir returns the project-context directory under base.
func Dir(base string) string {
	return filepath.Join(base, DirName)
}

// Exists reports whether the project-context directory exists under base.
func Exists(base string) bool {
	info, err := os.Stat(Dir(base))
	return err == nil && info.IsDir()
}

// Load reads the project-context tree rooted under base. Missing optional
// files yield zero values; a missing directory is an error.
func Load(base string) (*Tree, error) {
	root := Dir(base)
	if _, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("project context not found at %s: %w", root, err)
	}

	tree := &Tree{
		Root:      root,
		AgentsDir: filepath.Join(root, agentsDir),
	}

	if data, err := os.ReadFile(filepath.Join(root, contextFile)); err == nil {
		if err := yaml.Unmarshal(data, &tree.Context); err != nil {
			return nil, fmt.Errorf("parse %s: %w", contextFile, err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(root, rulesFile)); err == nil {
		if err := yaml.Unmarshal(data, &tree.Rules); err != nil {
			return nil, fmt.Errorf("parse %s: %w", rulesFile, err)
		}
	}
	if data, err := os.ReadFile(filepath.Join(root, architectureFile)); err == nil {
		tree.Architecture = string(data)
	}

	return tree, nil
}

// Init scaffolds the project-context directory under base. Existing files
// are left untouched.
func Init(base string) error {
	root := Dir(base)
	if err := os.MkdirAll(filepath.Join(root, agentsDir), 0755); err != nil {
		return fmt.Errorf("create project context: %w", err)
	}

	defaults := map[string]string{
		contextFile: "" +
			"name: \"\"\n" +
			"description: \"\"\n" +
			"languages: []\n" +
			"repository: \"\"\n",
		rulesFile: "" +
			"standards: []\n" +
			"forbidden: []\n" +
			"test_command: \"\"\n",
		architectureFile: "# Architecture\n\nDescribe the system here.\n",
	}

	for name, content := range defaults {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
