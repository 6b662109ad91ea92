package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsUnknownSettings(t *testing.T) {
	_, err := New(Config{Level: "verbose", Format: "json"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "xml"})
	assert.Error(t, err)

	_, err = New(Config{Level: "info", Format: "json", Output: "syslog"})
	assert.Error(t, err)
}

func TestNewWritesToRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atlas.log")

	log, err := New(Config{Level: "info", Format: "json", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	log.Named("parser").Info("parsed utterance", String("callsign", "AFR345"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"callsign":"AFR345"`)
	assert.Contains(t, string(data), `"logger":"parser"`)
}

func TestNopLoggerIsUsable(t *testing.T) {
	log := NewNop().Named("sequence").WithCallsign("AAL77")
	log.Debug("dropped")
}
