package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONLines(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerWithDir(dir)
	var terminal bytes.Buffer
	l.terminal = &terminal

	l.LogRegistration("CREATE", "reg-1", "registered")
	l.Warn("scheduler", "slow tick")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "fest-engine-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var e LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &e))
		entries = append(entries, e)
	}

	var categories []string
	for _, e := range entries {
		categories = append(categories, e.Category)
	}
	assert.Contains(t, categories, "REGISTRATION")
	assert.Contains(t, categories, "SCHEDULER")
	assert.Contains(t, terminal.String(), "[CREATE] reg-1 - registered")
}

func TestNopLoggerIsSilent(t *testing.T) {
	l := NewNopLogger()
	l.Info("TEST", "nothing")
	l.Error("TEST", "still nothing")
	l.Close()

	var nilLogger *Logger
	assert.NotPanics(t, func() { nilLogger.Info("TEST", "nil receiver") })
}

func TestSetLevelFiltersEntries(t *testing.T) {
	l := NewLoggerWithDir(t.TempDir())
	defer l.Close()
	var terminal bytes.Buffer
	l.terminal = &terminal

	require.NoError(t, l.SetLevel("warn"))
	l.Info("TEST", "hidden")
	l.Debug("TEST", "hidden too")
	l.Warn("TEST", "shown")

	assert.NotContains(t, terminal.String(), "hidden")
	assert.Contains(t, terminal.String(), "shown")

	// Test case: unknown level keeps the current threshold
	assert.Error(t, l.SetLevel("verbose"))
	l.Info("TEST", "still hidden")
	assert.NotContains(t, terminal.String(), "still hidden")
}

func TestLogFileChangesOverAtMidnight(t *testing.T) {
	dir := t.TempDir()
	l := NewLoggerWithDir(dir)
	l.terminal = &bytes.Buffer{}

	next := time.Now().UTC().AddDate(0, 0, 1)
	l.now = func() time.Time { return next }
	l.Info("TEST", "tomorrow")
	l.Close()

	files, err := filepath.Glob(filepath.Join(dir, "fest-engine-*.log"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	raw, err := os.ReadFile(filepath.Join(dir, "fest-engine-"+next.Format("2006-01-02")+".log"))
	require.NoError(t, err)
	assert.Contains(t, string(raw), "tomorrow")
}

func TestParseLevel(t *testing.T) {
	lv, err := ParseLevel(" error ")
	require.NoError(t, err)
	assert.Equal(t, ERROR, lv)
	assert.Equal(t, "ERROR", lv.String())

	_, err = ParseLevel("")
	assert.Error(t, err)
}
