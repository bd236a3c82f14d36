package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCtl(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	require.NoError(t, cmd.Execute())
	return out.String()
}

func TestSimulateThenInspect(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("RESPONSES_PATH", "")
	t.Setenv("PROTECTED_USERS", "")
	t.Setenv("POKE_ENABLED", "true")
	path := filepath.Join(t.TempDir(), "store.json")

	out := runCtl(t, "--storage", path, "--log-level", "error",
		"simulate", "--actor", "u1", "--count", "3", "--no-cooldown", "--seed", "7")
	assert.Contains(t, out, "#1 ")
	assert.Contains(t, out, "#3 ")
	assert.Contains(t, out, "=> handled (streak 3,")

	out = runCtl(t, "--storage", path, "inspect", "u1")
	assert.Contains(t, out, `"totalPokes": 3`)
	assert.Contains(t, out, "today: 3")

	out = runCtl(t, "--storage", path, "reset-daily")
	assert.Equal(t, "reset 1 daily counters\n", out)

	out = runCtl(t, "--storage", path, "inspect", "u1")
	assert.Contains(t, out, "today: 0")

	out = runCtl(t, "--storage", path, "sweep")
	assert.Contains(t, out, "swept ")
	assert.Contains(t, out, "local store: 1 keys,")
}

func TestSimulate_CooldownAndProtectedTarget(t *testing.T) {
	t.Setenv("REDIS_URL", "")
	t.Setenv("RESPONSES_PATH", "")
	t.Setenv("PROTECTED_USERS", "owner")
	t.Setenv("POKE_ENABLED", "true")
	t.Setenv("POKE_MODULES_MASTER", "true")
	path := filepath.Join(t.TempDir(), "store.json")

	out := runCtl(t, "--storage", path, "--log-level", "error",
		"simulate", "--actor", "u1", "--count", "2", "--spacing", "1s")
	assert.Contains(t, out, "=> handled")
	assert.Contains(t, out, "=> cooling")

	out = runCtl(t, "--storage", path, "--log-level", "error",
		"simulate", "--actor", "u2", "--target", "owner", "--count", "2", "--no-cooldown")
	assert.Contains(t, out, "=> escalated (offense 1)")
	assert.Contains(t, out, "=> escalated (offense 2)")
}
