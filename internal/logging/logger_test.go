package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewWithWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewWithWriter(&buf, "warn", true)
	require.NoError(t, err)

	logger.Info("hidden")
	logger.Warn("shown", zap.String("rule", "T1"))
	require.NoError(t, logger.Sync())

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "T1", entry["rule"])
	assert.Equal(t, "warn", entry["level"])

	buf.Reset()
	logger, err = NewWithWriter(&buf, "debug", false)
	require.NoError(t, err)
	logger.Debug("console")
	assert.Contains(t, buf.String(), "DEBUG")

	_, err = NewWithWriter(&buf, "loud", false)
	assert.Error(t, err)
}
