package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWithWriter_EmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("info", &buf)

	log.Info().Str("tenant_id", "t-1").Msg("balance updated")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line), "output should be one JSON line")
	assert.Equal(t, "balance updated", line["message"])
	assert.Equal(t, "t-1", line["tenant_id"])
	assert.Equal(t, "info", line["level"])
	assert.Contains(t, line, "time")
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	cases := []struct {
		level     string
		debugSeen bool
		infoSeen  bool
		errorSeen bool
	}{
		{"debug", true, true, true},
		{"info", false, true, true},
		{"warn", false, false, true},
		{"error", false, false, true},
		{"not-a-level", false, true, true}, // falls back to info
	}

	for _, tc := range cases {
		t.Run(tc.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := NewWithWriter(tc.level, &buf)

			log.Debug().Msg("d")
			assert.Equal(t, tc.debugSeen, buf.Len() > 0, "debug at level %s", tc.level)

			buf.Reset()
			log.Info().Msg("i")
			assert.Equal(t, tc.infoSeen, buf.Len() > 0, "info at level %s", tc.level)

			buf.Reset()
			log.Error().Msg("e")
			assert.Equal(t, tc.errorSeen, buf.Len() > 0, "error at level %s", tc.level)
		})
	}
}

func TestNew_PrettyModeDoesNotPanic(t *testing.T) {
	log := New("info", true)
	log.Info().Msg("console writer smoke test")
}
