package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/epics-containers/techui-builder/config"
)

func TestSetupJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{Level: "warn", Format: "JSON"}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Info().Msg("hidden")
	logger.Warn().Str("screen", "motor").Msg("visible")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &entry))
	require.Equal(t, "visible", entry["message"])
	require.Equal(t, "motor", entry["screen"])
	require.Equal(t, "warn", entry["level"])
}

func TestSetupTextDefault(t *testing.T) {
	var buf bytes.Buffer
	logger, cleanup, err := Setup(config.LoggingConfig{}, &buf)
	require.NoError(t, err)
	defer cleanup()

	logger.Debug().Msg("hidden")
	logger.Info().Msg("motor.bob has been created successfully")
	require.Contains(t, buf.String(), "INF motor.bob has been created successfully")
	require.NotContains(t, buf.String(), "hidden")
}

func TestSetupRejectsInvalidOptions(t *testing.T) {
	_, _, err := Setup(config.LoggingConfig{Level: "loud"}, nil)
	require.Error(t, err)

	_, _, err = Setup(config.LoggingConfig{Format: "xml"}, nil)
	require.Error(t, err)

	_, _, err = Setup(config.LoggingConfig{Loki: config.LokiConfig{Enabled: true}}, nil)
	require.Error(t, err)
}

func TestLokiLabels(t *testing.T) {
	require.Equal(t, model.LabelSet{"app": "techui-builder"}, lokiLabels(nil))
	require.Equal(t, model.LabelSet{"beamline": "bl01t"}, lokiLabels(map[string]string{"beamline": "bl01t"}))
}
