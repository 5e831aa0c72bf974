package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONYX_HOME", home)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, home, cfg.Root)
	assert.Equal(t, filepath.Join(home, "projects"), cfg.ProjectsDir)
	assert.Equal(t, 10, cfg.Fix.MaxIterations)
	assert.Equal(t, BatchPerFile, cfg.Fix.Batching)
	assert.Equal(t, "claude-cli", cfg.LLM.Provider)
	assert.Equal(t, 10*time.Minute, cfg.Build.Timeout)
	assert.Equal(t, []string{"Models", "Services", "ViewModels", "Views"}, cfg.Project.Layers)
}

func TestLoadFileAndEnvOverrides(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONYX_HOME", home)
	path := filepath.Join(home, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: anthropic
  model: claude-sonnet-4-5
build:
  timeout: 90s
  treat_warnings_as_errors: true
fix:
  max_iterations: 4
  batching: combined
`), 0o644))
	t.Setenv("ONYX_MAX_ITERATIONS", "6")
	t.Setenv("ONYX_MODEL", "claude-opus-4-1")

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
	assert.Equal(t, "claude-opus-4-1", cfg.LLM.Model)
	assert.Equal(t, 90*time.Second, cfg.Build.Timeout)
	assert.True(t, cfg.Build.TreatWarningsAsErrors)
	assert.Equal(t, 6, cfg.Fix.MaxIterations)
	assert.Equal(t, BatchCombined, cfg.Fix.Batching)
	// Unset fields keep their defaults.
	assert.Equal(t, "xcodebuild", cfg.Build.Tool)
}

func TestLoadDotEnv(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONYX_HOME", home)
	require.NoError(t, os.WriteFile(filepath.Join(home, ".env"), []byte("ONYX_PROVIDER=gemini\n"), 0o600))
	t.Setenv("ONYX_PROVIDER", "")
	os.Unsetenv("ONYX_PROVIDER")

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.LLM.Provider)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Fix.MaxIterations = 0 }},
		{"bad batching", func(c *Config) { c.Fix.Batching = "sometimes" }},
		{"bad provider", func(c *Config) { c.LLM.Provider = "carrier-pigeon" }},
		{"bad analyst", func(c *Config) { c.Analyst.Provider = "nope" }},
		{"no timeout", func(c *Config) { c.Build.Timeout = 0 }},
		{"no layers", func(c *Config) { c.Project.Layers = nil }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(t.TempDir())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	assert.NoError(t, Default(t.TempDir()).Validate())
}

func TestLoadInvalidEnv(t *testing.T) {
	t.Setenv("ONYX_HOME", t.TempDir())
	t.Setenv("ONYX_MAX_ITERATIONS", "lots")

	_, err := Load("")

	assert.Error(t, err)
}

func TestSaveRoundTripsThroughLoad(t *testing.T) {
	home := t.TempDir()
	t.Setenv("ONYX_HOME", home)
	cfg := Default(home)
	cfg.Fix.MaxIterations = 3
	path := filepath.Join(home, "config.yaml")

	require.NoError(t, cfg.Save(path))
	got, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, 3, got.Fix.MaxIterations)
	assert.Equal(t, cfg.Build.Timeout, got.Build.Timeout)
}

func TestListAndResolveProjects(t *testing.T) {
	cfg := Default(t.TempDir())
	for _, name := range []string{"Alpha", "Beta"} {
		require.NoError(t, os.MkdirAll(StateDir(filepath.Join(cfg.ProjectsDir, name)), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(StateDir(filepath.Join(cfg.ProjectsDir, name)), "project.json"), []byte("{}"), 0o644))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(cfg.ProjectsDir, "NotAProject"), 0o755))

	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(filepath.Join(StateDir(filepath.Join(cfg.ProjectsDir, "Alpha")), "project.json"), past, past))

	projects := cfg.ListProjects()
	require.Len(t, projects, 2)
	assert.Equal(t, "Beta", projects[0].Name)

	got, err := cfg.ResolveProject("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ProjectsDir, "Beta"), got)

	got, err = cfg.ResolveProject("Alpha")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.ProjectsDir, "Alpha"), got)

	_, err = cfg.ResolveProject("Gamma")
	assert.Error(t, err)
}
