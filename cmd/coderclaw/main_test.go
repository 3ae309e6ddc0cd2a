package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coderclaw/coderclaw/internal/projectctx"
)

func TestInitThenStatus(t *testing.T) {
	base := t.TempDir()

	assert.Equal(t, 1, run([]string{"status", base}))
	assert.Equal(t, 0, run([]string{"init", base}))
	assert.Equal(t, 0, run([]string{"status", base}))
	require.True(t, projectctx.Exists(base))
}

func TestUnknownCommand(t *testing.T) {
	assert.Equal(t, 2, run([]string{"frobnicate"}))
}

func TestMissingCommand(t *testing.T) {
	assert.Equal(t, 2, run(nil))
}
