package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   DEBUG,
		" INFO ":  INFO,
		"warning": WARN,
		"Warn":    WARN,
		"error":   ERROR,
		"FATAL":   FATAL,
		"verbose": INFO,
		"":        INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
	assert.Equal(t, "WARN", WARN.String())
	assert.Equal(t, "INFO", LogLevel(42).String())
}

func TestLogger_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, WARN)

	l.Debugf("hidden %d", 1)
	l.Infof("hidden %d", 2)
	l.Warnf("instance=%s skipped", "mysql-1")
	l.Errorf("sync failed")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] ")
	assert.Contains(t, out, "instance=mysql-1 skipped")
	assert.Contains(t, out, "[ERROR] ")
	assert.Contains(t, out, "logger_test.go", "call site is reported")

	l.SetLevel(DEBUG)
	assert.Equal(t, DEBUG, l.GetLevel())
	l.Debugf("now visible")
	assert.Contains(t, buf.String(), "[DEBUG] ")
}

func TestNew_WritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sync.log")
	l, err := New(Options{File: path, Level: INFO, MaxSize: 1, MaxBackups: 1, MaxAge: 1})
	require.NoError(t, err)

	l.Infof("session %s completed", "abc")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "session abc completed"))
}
