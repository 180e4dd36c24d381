package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"option-backtester/internal/config"
	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
	"option-backtester/internal/store"
)

// writeWave writes 200 daily bars of an oscillating uptrend to <dir>/WAVE.csv.
func writeWave(t *testing.T, dir string) {
	t.Helper()
	var b strings.Builder
	b.WriteString("date,open,high,low,close,volume\n")
	start := time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 200; i++ {
		c := 100 + 8*math.Sin(float64(i)/6) + float64(i)*0.05
		fmt.Fprintf(&b, "%s,%.4f,%.4f,%.4f,%.4f,%d\n",
			start.AddDate(0, 0, i).Format("2006-01-02"), c, c*1.01, c*0.99, c, 1_000_000+(i%7)*150_000)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "WAVE.csv"), []byte(b.String()), 0644))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dataDir := t.TempDir()
	writeWave(t, dataDir)

	cfg := config.Default()
	cfg.Dir = t.TempDir()
	cfg.Provider.DataDir = dataDir
	cfg.Storage.DBPath = filepath.Join(t.TempDir(), "runs", "backtests.db")
	cfg.Scan.Workers = 2
	return cfg
}

func execute(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	return executeWithLogger(t, cfg, zerolog.Nop(), args...)
}

func executeWithLogger(t *testing.T, cfg *config.Config, logger zerolog.Logger, args ...string) (string, error) {
	t.Helper()
	app := NewApp(cfg, logger)
	defer func() { assert.NoError(t, app.Close()) }()

	cmd := NewRootCmd(app)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

const (
	waveFrom = "2023-01-02"
	waveTo   = "2023-07-20"
)

func TestVersion_JSON(t *testing.T) {
	out, err := execute(t, testConfig(t), "version", "--json")
	require.NoError(t, err)

	var v map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &v))
	assert.Equal(t, Version, v["version"])
}

func TestBacktest_CSVSourceProducesConsistentResult(t *testing.T) {
	cfg := testConfig(t)
	tradesPath := filepath.Join(t.TempDir(), "out", "trades.csv")
	equityPath := filepath.Join(t.TempDir(), "equity.csv")

	out, err := execute(t, cfg, "backtest", "wave", "--from", waveFrom, "--to", waveTo,
		"--strategy", "macd_rsi_bb", "--json", "--csv", tradesPath, "--equity-csv", equityPath)
	require.NoError(t, err)

	var result models.BacktestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, "WAVE", result.Symbol)
	assert.Equal(t, "MACD_RSI_BB", result.Strategy)
	assert.Empty(t, result.SoftFailure)
	assert.Len(t, result.EquityCurve, 200)
	assert.NotEmpty(t, result.RunID)

	var pnl float64
	for _, tr := range result.Trades {
		pnl += tr.PnL
	}
	assert.InDelta(t, result.InitialCapital+pnl, result.FinalCapital, 1e-6)

	trades, err := os.ReadFile(tradesPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(trades)), "\n")
	assert.Len(t, lines, len(result.Trades)+1)
	assert.True(t, strings.HasPrefix(lines[0], "entry_date,exit_date,expiry,symbol,direction"), lines[0])

	equity, err := os.ReadFile(equityPath)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(equity), "date,equity\n2023-01-02,"))
}

func TestBacktest_UnknownSymbolSoftFails(t *testing.T) {
	out, err := execute(t, testConfig(t), "backtest", "MISSING", "--from", waveFrom, "--to", waveTo, "--json")
	require.NoError(t, err)

	var result models.BacktestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.NotEmpty(t, result.SoftFailure)
	assert.Empty(t, result.Trades)
	assert.Equal(t, result.InitialCapital, result.FinalCapital)
}

func TestBacktest_RejectsBadFlags(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		target error
	}{
		{"unknown weighted signal", []string{"--weights", "nope=1"}, apperrors.ErrUnknownSignal},
		{"unknown single signal", []string{"--signal", "nope"}, apperrors.ErrUnknownSignal},
		{"unknown strategy", []string{"--strategy", "nope"}, apperrors.ErrUnknownStrategy},
		{"unknown profile", []string{"--profile", "deep"}, apperrors.ErrUnknownProfile},
		{"bad direction", []string{"--direction", "sideways"}, apperrors.ErrConfigInvalid},
		{"malformed weights", []string{"--weights", "rsi_oversold"}, apperrors.ErrConfigInvalid},
		{"reversed range", []string{"--from", "2023-06-01", "--to", "2023-01-01"}, apperrors.ErrConfigInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"backtest", "WAVE"}, tt.args...)
			_, err := execute(t, testConfig(t), args...)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.target), "got %v", err)
		})
	}
}

func TestBacktest_ClosesStoreAndTagsLogs(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	out, err := executeWithLogger(t, cfg, zerolog.New(&logs), "backtest", "WAVE",
		"--from", waveFrom, "--to", waveTo, "--signal", "bb_compression", "--json")
	require.NoError(t, err)

	var result models.BacktestResult
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Contains(t, logs.String(), `"operation":"backtest"`)
	assert.Contains(t, logs.String(), `"run_id":"`+result.RunID+`"`)

	// the last connection checkpoints and removes the write-ahead log
	_, err = os.Stat(cfg.Storage.DBPath + "-wal")
	assert.True(t, os.IsNotExist(err), "wal file left behind: %v", err)

	db, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	require.NoError(t, err)
	defer db.Close()
	saved, err := db.GetRun(context.Background(), result.RunID)
	require.NoError(t, err)
	assert.Equal(t, result.RunID, saved.RunID)
}

func TestRuns_ListAndShowSavedRun(t *testing.T) {
	cfg := testConfig(t)
	out, err := execute(t, cfg, "backtest", "WAVE", "--from", waveFrom, "--to", waveTo, "--signal", "bb_compression", "--json")
	require.NoError(t, err)
	var saved models.BacktestResult
	require.NoError(t, json.Unmarshal([]byte(out), &saved))

	out, err = execute(t, cfg, "runs", "list", "--json", "--symbol", "WAVE")
	require.NoError(t, err)
	var records []store.RunRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, saved.RunID, records[0].RunID)
	assert.Equal(t, "bb_compression", records[0].Strategy)

	out, err = execute(t, cfg, "runs", "show", saved.RunID, "--json")
	require.NoError(t, err)
	var loaded models.BacktestResult
	require.NoError(t, json.Unmarshal([]byte(out), &loaded))
	assert.Equal(t, saved.RunID, loaded.RunID)
	assert.Len(t, loaded.Trades, len(saved.Trades))
	assert.InDelta(t, saved.FinalCapital, loaded.FinalCapital, 1e-9)

	_, err = execute(t, cfg, "runs", "show", "does-not-exist")
	assert.Error(t, err)
}

func TestScan_RanksPairsAndReportsFailures(t *testing.T) {
	cfg := testConfig(t)
	csvPath := filepath.Join(t.TempDir(), "scan.csv")

	out, err := execute(t, cfg, "scan", "--json", "--from", waveFrom, "--to", waveTo,
		"--symbols", "WAVE,MISSING", "--strategies", "MACD_RSI_BB,BB_Volume_Hybrid", "--csv", csvPath)
	require.NoError(t, err)

	var report struct {
		Ranking  []map[string]interface{} `json:"ranking"`
		Failures []scanFailure            `json:"failures"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Ranking, 4)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, "MISSING", f.Symbol)
	}

	data, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 5)
}

func TestScan_RejectsUnknownStrategy(t *testing.T) {
	_, err := execute(t, testConfig(t), "scan", "--strategies", "nope", "--symbols", "WAVE")
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnknownStrategy))
}

func TestSignals_ListsRegistry(t *testing.T) {
	out, err := execute(t, testConfig(t), "signals", "--json")
	require.NoError(t, err)

	var infos []signalInfo
	require.NoError(t, json.Unmarshal([]byte(out), &infos))
	assert.Len(t, infos, 15)
}

func TestSignalsCheck_ReadsLastBar(t *testing.T) {
	out, err := execute(t, testConfig(t), "signals", "check", "WAVE", "--from", waveFrom, "--to", waveTo, "--json")
	require.NoError(t, err)

	var check signalCheck
	require.NoError(t, json.Unmarshal([]byte(out), &check))
	assert.Equal(t, "WAVE", check.Symbol)
	assert.Equal(t, "2023-07-20", check.Date)
	assert.Contains(t, []string{string(models.Bullish), string(models.Bearish)}, check.Direction)
	assert.NotEmpty(t, check.Strike.Steps)
}

func TestSignalsCheck_TextShowsConfidence(t *testing.T) {
	out, err := execute(t, testConfig(t), "signals", "check", "WAVE", "--from", waveFrom, "--to", waveTo, "--no-color")
	require.NoError(t, err)
	assert.Regexp(t, `Confidence:\s+\d+%`, out)
}

func TestScan_TextShowsFinalCapital(t *testing.T) {
	out, err := execute(t, testConfig(t), "scan", "--no-color", "--from", waveFrom, "--to", waveTo,
		"--symbols", "WAVE", "--strategies", "MACD_RSI_BB")
	require.NoError(t, err)
	assert.Contains(t, out, "FINAL")
	assert.Regexp(t, `\$[0-9.,]+K?`, out)
}

func TestStrikes_HighVolatilityIsConservative(t *testing.T) {
	out, err := execute(t, testConfig(t), "strikes", "--volatility", "0.8", "--spot", "100", "--json")
	require.NoError(t, err)

	var report struct {
		Selection struct {
			Profile struct {
				Key string `json:"key"`
			} `json:"profile"`
		} `json:"selection"`
		Recommendation struct {
			Evaluations []json.RawMessage `json:"evaluations"`
		} `json:"recommendation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, "conservative", report.Selection.Profile.Key)
	assert.Len(t, report.Recommendation.Evaluations, 4)
}

func TestConfigValidate(t *testing.T) {
	cfg := testConfig(t)
	_, err := execute(t, cfg, "config", "validate")
	require.NoError(t, err)

	cfg.Backtest.StopLoss = 0.5
	_, err = execute(t, cfg, "config", "validate")
	assert.True(t, errors.Is(err, apperrors.ErrConfigInvalid))
}

func TestParseWeights(t *testing.T) {
	w, err := ParseWeights(" rsi_oversold=0.5, volume_surge = 0.25 ,")
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"rsi_oversold": 0.5, "volume_surge": 0.25}, w)

	for _, bad := range []string{"", "rsi_oversold", "rsi_oversold=x"} {
		_, err := ParseWeights(bad)
		assert.Error(t, err, bad)
	}
}

func TestTable_AlignsColoredCells(t *testing.T) {
	var buf bytes.Buffer
	output := newOutput(&buf, false, true)
	table := NewTable(output, "A", "B")
	table.AddRow(output.Green("x"), "long value")
	table.AddRow("yyy", "z")
	table.Render()

	lines := strings.Split(strings.TrimSpace(ansi.ReplaceAllString(buf.String(), "")), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "A    B", lines[0])
	assert.Equal(t, "x    long value", lines[2])
	assert.Equal(t, "yyy  z", lines[3])
}

type failingCloser struct {
	bytes.Buffer
	closed bool
}

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("disk quota exceeded")
}

func TestMarshalCSV_ReportsCloseError(t *testing.T) {
	w := &failingCloser{}
	rows := []equityRow{{Date: "2024-01-02", Equity: 10000}}

	err := marshalCSV(w, "equity.csv", &rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closing equity.csv")
	assert.True(t, w.closed)
	assert.True(t, strings.HasPrefix(w.String(), "date,equity\n2024-01-02,"))
}
