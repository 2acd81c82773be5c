package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewJSONWithService(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "scanner", "json", "info").Info("tick", "missed", true)

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	require.Equal(t, "scanner", line["service"])
	require.Equal(t, true, line["missed"])
}

func TestNewLevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "api", "text", "warn")
	l.Info("hidden")
	l.Warn("shown")
	require.NotContains(t, buf.String(), "hidden")
	require.Contains(t, buf.String(), "shown")
}

func TestNewUnknownFormatFallsBackToJSON(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "api", "xml", "")
	first := strings.SplitN(buf.String(), "\n", 2)[0]
	require.True(t, json.Valid([]byte(first)))
	require.Contains(t, first, "unknown log format")
}
