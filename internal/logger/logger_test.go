package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(envProd, "warn", &buf)

	log.Info("dropped")
	log.Warn("kept", Err(errors.New("boom")))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "kept", entry["msg"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "WARN", entry["level"])
}

func TestNew_Local(t *testing.T) {
	var buf bytes.Buffer
	log := New(envLocal, "debug", &buf)

	log.Debug("hello", slog.String("k", "v"))

	assert.Contains(t, buf.String(), "msg=hello")
	assert.Contains(t, buf.String(), "k=v")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, parseLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLevel(""))
}

func TestErr_Nil(t *testing.T) {
	assert.Equal(t, "", Err(nil).Value.String())
}
