package obs

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProductionLoggerWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "production").Info("ready", "port", "8080")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "ready", entry["msg"])
	assert.Equal(t, "8080", entry["port"])
}

func TestDevLoggerIsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "dev").Debug("подключение", "host", "localhost")

	assert.Contains(t, buf.String(), "подключение")
	assert.False(t, json.Valid(buf.Bytes()))
}
