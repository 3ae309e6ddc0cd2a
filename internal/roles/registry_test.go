package roles

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderclaw/coderclaw/internal/common/logger"
)

func TestRegistryHoldsSevenBuiltins(t *testing.T) {
	r := NewRegistry(logger.Default())

	expected := []string{
		"code-creator", "code-reviewer", "test-generator", "bug-analyzer",
		"refactor-agent", "documentation-agent", "architecture-advisor",
	}
	assert.Len(t, r.List(), len(expected))
	for _, name := range expected {
		role, err := r.Get(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, role.Name)
		assert.NotEmpty(t, role.SystemPrompt)
	}

	_, err := r.Get("nonexistent")
	require.Error(t, err)
}

func TestCustomRoleOverridesBuiltin(t *testing.T) {
	custom := &Role{
		Name:        "code-creator",
		Description: "house-trained variant",
	}
	r := NewRegistry(logger.Default(), custom)

	role, err := r.Get("code-creator")
	require.NoError(t, err)
	assert.Equal(t, "house-trained variant", role.Description)
	assert.Len(t, r.List(), 7)
}

func TestCustomRoleExtendsRegistry(t *testing.T) {
	custom := &Role{Name: "security-auditor", Description: "audits changes"}
	r := NewRegistry(logger.Default(), custom)

	assert.Len(t, r.List(), 8)
	assert.True(t, r.Has("security-auditor"))
}

func TestLoadCustomRolesFromDir(t *testing.T) {
	dir := t.TempDir()

	content := "" +
		"name: sql-specialist\n" +
		"description: Optimizes queries\n" +
		"capabilities:\n" +
		"  - sql\n" +
		"system_prompt: You tune databases.\n" +
		"model: default\n" +
		"thinking: deep\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sql.yaml"), []byte(content), 0644))
	// Files without a name are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("description: x\n"), 0644))
	// Non-yaml files are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0644))

	loaded, err := LoadCustomRoles(dir, logger.Default())
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, "sql-specialist", loaded[0].Name)
	assert.Equal(t, []string{"sql"}, loaded[0].Capabilities)
	assert.Equal(t, "deep", loaded[0].Thinking)
}

func TestLoadCustomRolesMissingDir(t *testing.T) {
	loaded, err := LoadCustomRoles(filepath.Join(t.TempDir(), "nope"), logger.Default())
	require.NoError(t, err)
	assert.Empty(t, loaded)
}
