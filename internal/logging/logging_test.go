package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, ParseLevel("warning"))
	assert.Equal(t, zerolog.InfoLevel, ParseLevel("nonsense"))
}

func TestContextRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	ctx := WithLogger(context.Background(), logger)
	l := FromContext(ctx)
	l.Info().Msg("hello")
	assert.Contains(t, buf.String(), "hello")

	// a bare context yields a silent logger
	nop := FromContext(context.Background())
	nop.Info().Msg("dropped")
	assert.NotContains(t, buf.String(), "dropped")
}

func TestLogExitFields(t *testing.T) {
	var buf bytes.Buffer
	logger := WithRun(WithSymbol(zerolog.New(&buf), "NVDA"), "run-1")

	LogExit(logger, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "Stop Loss", -120.5, -0.5)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "exit", entry["event"])
	assert.Equal(t, "NVDA", entry["symbol"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "Stop Loss", entry["reason"])
	assert.Equal(t, -120.5, entry["pnl"])
}

func TestLogSoftFailure(t *testing.T) {
	var buf bytes.Buffer
	LogSoftFailure(zerolog.New(&buf), errors.New("no bars"))
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), "no bars")
}

func TestNewLoggerWithConfig_FileOnly(t *testing.T) {
	cfg := DefaultLogConfig()
	cfg.Console = false
	cfg.File = true
	cfg.FilePath = t.TempDir() + "/logs/test.log"
	cfg.Level = "warn"

	logger := NewLoggerWithConfig(cfg)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())
}
