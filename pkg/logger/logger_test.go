package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelWarn},
		{"", slog.LevelWarn},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew_SimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple)

	l.Info("connected", "server", "mcp_hfspace")
	l.Debug("hidden")

	out := buf.String()
	assert.Equal(t, "INFO connected server=mcp_hfspace\n", out)
}

func TestNew_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, FormatSimple).With("agent", "default")

	l.Warn("slow tool")

	assert.Equal(t, "WARN slow tool agent=default\n", buf.String())
}

func TestNew_VerboseFormatHasTimestamp(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelDebug, &buf, FormatVerbose)

	l.Error("boom")

	out := buf.String()
	assert.True(t, strings.HasSuffix(out, "ERROR boom\n"), out)
	assert.Greater(t, len(out), len("ERROR boom\n"))
}

func TestNew_CustomFormatFallsBackToText(t *testing.T) {
	var buf bytes.Buffer
	l := New(slog.LevelInfo, &buf, "text")

	l.Warn("careful")

	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), `msg=careful`)
}

func TestOpenLogFile(t *testing.T) {
	path := t.TempDir() + "/hfspace.log"
	f, cleanup, err := OpenLogFile(path)
	assert.NoError(t, err)
	defer cleanup()

	_, err = f.WriteString("line\n")
	assert.NoError(t, err)
}
