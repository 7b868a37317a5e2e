package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func runDemo(t *testing.T, db string, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(zap.NewNop())
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--db", db, "--redis", ""}, args...))
	require.NoError(t, cmd.Execute(), out.String())
	return out.String()
}

func TestDemoCommands(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	out := runDemo(t, db, "list")
	assert.Contains(t, out, "[ ] 1  Create a demo for Subhash")
	assert.Equal(t, 3, strings.Count(out, "\n"))

	out = runDemo(t, db, "add", "Buy", "milk")
	assert.Contains(t, out, "Buy milk")

	out = runDemo(t, db, "toggle", "1")
	assert.Contains(t, out, "[x] 1")

	out = runDemo(t, db, "delete", "2")
	assert.Contains(t, out, "Deleted 2")

	out = runDemo(t, db, "suggest")
	assert.Contains(t, out, "Added 5 AI-generated tasks")
	assert.Contains(t, out, "Research latest AI development tools  (AI)")

	out = runDemo(t, db, "analytics")
	assert.Contains(t, out, "Total tasks:      8")
	assert.Contains(t, out, "Completed:        1")
	assert.Contains(t, out, "AI generated:     5")

	first := runDemo(t, db, "session")
	assert.Equal(t, first, runDemo(t, db, "session"))
}

func TestDemoCommands_Errors(t *testing.T) {
	db := filepath.Join(t.TempDir(), "demo.db")

	for _, args := range [][]string{
		{"toggle", "missing"},
		{"delete", "missing"},
		{"suggest", "--model", "gpt"},
		{"add", "   "},
	} {
		cmd := newRootCmd(zap.NewNop())
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(append([]string{"--db", db, "--redis", ""}, args...))
		assert.Error(t, cmd.Execute(), "args %v", args)
	}
}
