package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fiscalclm/clm/internal/domain"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warning", slog.LevelWarn, false},
		{" error ", slog.LevelError, false},
		{"trace", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, closer, err := New(domain.LoggingConfig{Level: "warn", Format: "json"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	logger.Info("hidden")
	logger.Warn("contract risk", "code", "DIFAL")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "contract risk", rec["msg"])
	assert.Equal(t, "DIFAL", rec["code"])
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, _, err := New(domain.LoggingConfig{Format: "text"}, &buf)
	require.NoError(t, err)

	logger.Info("ready", "port", 8080)
	assert.Contains(t, buf.String(), "msg=ready port=8080")
}

func TestNewFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clm.log")
	var buf bytes.Buffer
	logger, closer, err := New(domain.LoggingConfig{File: path, MaxSizeMB: 1, MaxBackups: 1}, &buf)
	require.NoError(t, err)

	logger.Info("to both")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "to both")
	assert.Contains(t, buf.String(), "to both")
}

func TestNewInvalid(t *testing.T) {
	_, _, err := New(domain.LoggingConfig{Level: "loud"}, nil)
	assert.Error(t, err)

	_, _, err = New(domain.LoggingConfig{Format: "xml"}, nil)
	assert.Error(t, err)
}
