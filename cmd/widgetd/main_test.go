package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestEvalAlwaysBetween(t *testing.T) {
	out, err := execute(t, "eval",
		"--trigger", `{"kind":"always_between","start":"2024-03-01T09:00:00Z","end":"2024-03-05T17:00:00Z"}`,
		"--at", "2024-03-01T10:00:00Z")
	require.NoError(t, err)
	assert.Contains(t, out, "visible:   true")
	assert.Contains(t, out, "next_wake: 2024-03-05T17:01:00Z")
	assert.Contains(t, out, "expired:   false")
}

func TestEvalWeatherNeedsLocation(t *testing.T) {
	_, err := execute(t, "eval", "--trigger", `{"kind":"weather","weather":"raining"}`)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(explain(err), "location unavailable"))

	out, err := execute(t, "eval",
		"--trigger", `{"kind":"weather","weather":"raining"}`,
		"--location-known",
		"--conditions", `{"precip_probability":0.9,"precip_types":["rain"]}`)
	require.NoError(t, err)
	assert.Contains(t, out, "visible:   true")
	assert.Contains(t, out, "next_wake: none")
}

func TestEvalInvalidTrigger(t *testing.T) {
	_, err := execute(t, "eval", "--trigger", `{"kind":"sometimes"}`)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(explain(err), "invalid trigger"))
}

func TestAddListRemove(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.json")
	cfg := fmt.Sprintf(`{"storage": {"driver": "file", "path": %q}}`, filepath.Join(dir, "widgets.json"))
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o644))

	out, err := execute(t, "--config", cfgPath, "add", "--name", "clock", "--trigger", `{"kind":"always"}`)
	require.NoError(t, err)
	id := strings.TrimSpace(out)
	require.NotEmpty(t, id)

	out, err = execute(t, "--config", cfgPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, id)
	assert.Contains(t, out, "clock")
	assert.Contains(t, out, "true")

	out, err = execute(t, "--config", cfgPath, "remove", id)
	require.NoError(t, err)
	assert.Contains(t, out, "removed "+id)

	_, err = execute(t, "--config", cfgPath, "remove", id)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(explain(err), "no such widget"))
}

func TestMissingConfigExplained(t *testing.T) {
	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "nope.json"), "list")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(explain(err), "file does not exist"))
}

func TestDisabledStorageExplained(t *testing.T) {
	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  driver: none\n"), 0o644))
	_, err := execute(t, "--config", cfgPath, "list")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(explain(err), "storage is disabled"))
}
