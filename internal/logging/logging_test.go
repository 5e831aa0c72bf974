package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesJSONToFile(t *testing.T) {
	dir := t.TempDir()
	log, closeFn := New(Options{Dir: dir, Level: "debug"})

	log.Debug().Str("component", "build").Int("pass", 2).Msg("build finished")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "onyx.log"))
	require.NoError(t, err)

	var line map[string]any
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(data))), &line))
	assert.Equal(t, "debug", line["level"])
	assert.Equal(t, "build", line["component"])
	assert.EqualValues(t, 2, line["pass"])
	assert.Equal(t, "build finished", line["message"])
	assert.Contains(t, line, "time")
}

func TestNewRespectsLevel(t *testing.T) {
	dir := t.TempDir()
	log, closeFn := New(Options{Dir: dir, Level: "warn"})

	log.Info().Msg("hidden")
	log.Warn().Msg("shown")
	require.NoError(t, closeFn())

	data, err := os.ReadFile(filepath.Join(dir, "onyx.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hidden")
	assert.Contains(t, string(data), "shown")
}

func TestNewWithoutSinksIsDisabled(t *testing.T) {
	log, closeFn := New(Options{})
	log.Error().Msg("dropped")
	assert.NoError(t, closeFn())
	assert.Equal(t, "disabled", log.GetLevel().String())
}
