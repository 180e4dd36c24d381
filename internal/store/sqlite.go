package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "option-backtester/internal/errors"
	"option-backtester/internal/models"
)

// SQLiteStore implements DataStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based data store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Daily bars cached from the price provider
	CREATE TABLE IF NOT EXISTS candles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol TEXT NOT NULL,
		timeframe TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		open REAL NOT NULL,
		high REAL NOT NULL,
		low REAL NOT NULL,
		close REAL NOT NULL,
		volume INTEGER NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(symbol, timeframe, timestamp)
	);

	-- One row per backtest run
	CREATE TABLE IF NOT EXISTS backtest_runs (
		id TEXT PRIMARY KEY,
		symbol TEXT NOT NULL,
		strategy TEXT NOT NULL,
		initial_capital REAL NOT NULL,
		final_capital REAL NOT NULL,
		num_trades INTEGER NOT NULL,
		wins INTEGER NOT NULL,
		losses INTEGER NOT NULL,
		win_rate REAL NOT NULL,
		avg_win REAL NOT NULL,
		avg_loss REAL NOT NULL,
		total_pnl REAL NOT NULL,
		total_return REAL NOT NULL,
		max_drawdown REAL NOT NULL,
		sharpe_ratio REAL NOT NULL,
		profit_factor REAL NOT NULL,
		soft_failure TEXT,
		equity_curve TEXT,
		created_at DATETIME NOT NULL
	);

	-- Closed trades of each run, in execution order
	CREATE TABLE IF NOT EXISTS backtest_trades (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL REFERENCES backtest_runs(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		symbol TEXT NOT NULL,
		direction TEXT NOT NULL,
		profile TEXT,
		strike REAL NOT NULL,
		quantity INTEGER NOT NULL,
		entry_date DATETIME NOT NULL,
		entry_premium REAL NOT NULL,
		entry_underlying REAL NOT NULL,
		expiry DATETIME NOT NULL,
		exit_date DATETIME NOT NULL,
		exit_premium REAL NOT NULL,
		exit_underlying REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		holding_days INTEGER NOT NULL,
		status TEXT NOT NULL,
		exit_reason TEXT NOT NULL,
		UNIQUE(run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_candles_symbol_timeframe ON candles(symbol, timeframe);
	CREATE INDEX IF NOT EXISTS idx_candles_timestamp ON candles(timestamp);
	CREATE INDEX IF NOT EXISTS idx_runs_symbol ON backtest_runs(symbol);
	CREATE INDEX IF NOT EXISTS idx_runs_strategy ON backtest_runs(strategy);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON backtest_runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_trades_run ON backtest_trades(run_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Candles Methods
// ============================================================================

// SaveCandles saves candles to the database.
func (s *SQLiteStore) SaveCandles(ctx context.Context, symbol, timeframe string, candles []models.Candle) error {
	if len(candles) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candles (symbol, timeframe, timestamp, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candles {
		_, err := stmt.ExecContext(ctx, symbol, timeframe, c.Timestamp.UTC(), c.Open, c.High, c.Low, c.Close, c.Volume)
		if err != nil {
			return fmt.Errorf("failed to insert candle: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetCandles retrieves candles from the database.
func (s *SQLiteStore) GetCandles(ctx context.Context, symbol, timeframe string, from, to time.Time) ([]models.Candle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT timestamp, open, high, low, close, volume
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`, symbol, timeframe, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()

	var candles []models.Candle
	for rows.Next() {
		var c models.Candle
		if err := rows.Scan(&c.Timestamp, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candles: %w", err)
	}

	return candles, nil
}

// GetCandlesFreshness returns the timestamp of the most recent candle.
func (s *SQLiteStore) GetCandlesFreshness(ctx context.Context, symbol, timeframe string) (time.Time, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(timestamp) FROM candles WHERE symbol = ? AND timeframe = ?
	`, symbol, timeframe).Scan(&raw)
	if err != nil && err != sql.ErrNoRows {
		return time.Time{}, fmt.Errorf("failed to get candles freshness: %w", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, nil
	}
	return parseSQLiteTime(raw.String)
}

// MAX() loses the column type, so the driver hands back text.
func parseSQLiteTime(s string) (time.Time, error) {
	layouts := []string{
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02",
	}
	s = strings.TrimSuffix(s, "Z")
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

// ============================================================================
// Backtest Run Methods
// ============================================================================

// SaveRun stores a result with its trades and equity curve. Saving the same
// run ID again replaces the earlier copy.
func (s *SQLiteStore) SaveRun(ctx context.Context, result *models.BacktestResult) error {
	if result == nil || result.RunID == "" {
		return apperrors.NewValidationError("run_id", "", "a run ID is required")
	}

	curve, err := json.Marshal(result.EquityCurve)
	if err != nil {
		return fmt.Errorf("failed to encode equity curve: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM backtest_trades WHERE run_id = ?`, result.RunID); err != nil {
		return fmt.Errorf("failed to clear trades: %w", err)
	}

	sm := result.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO backtest_runs (
			id, symbol, strategy, initial_capital, final_capital,
			num_trades, wins, losses, win_rate, avg_win, avg_loss, total_pnl,
			total_return, max_drawdown, sharpe_ratio, profit_factor,
			soft_failure, equity_curve, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		result.RunID, result.Symbol, result.Strategy, result.InitialCapital, result.FinalCapital,
		sm.NumTrades, sm.Wins, sm.Losses, sm.WinRate, sm.AvgWin, sm.AvgLoss, sm.TotalPnL,
		sm.TotalReturn, sm.MaxDrawdown, sm.SharpeRatio, sm.ProfitFactor,
		result.SoftFailure, string(curve), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO backtest_trades (
			run_id, seq, symbol, direction, profile, strike, quantity,
			entry_date, entry_premium, entry_underlying, expiry,
			exit_date, exit_premium, exit_underlying,
			pnl, pnl_pct, holding_days, status, exit_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for i, t := range result.Trades {
		_, err := stmt.ExecContext(ctx,
			result.RunID, i, t.Symbol, string(t.Direction), t.Profile, t.Strike, t.Quantity,
			t.EntryDate.UTC(), t.EntryPremium, t.EntryUnderlying, t.Expiry.UTC(),
			t.ExitDate.UTC(), t.ExitPremium, t.ExitUnderlying,
			t.PnL, t.PnLPct, t.HoldingDays, string(t.Status), string(t.ExitReason),
		)
		if err != nil {
			return fmt.Errorf("failed to insert trade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetRun loads a stored run with its trades and equity curve.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*models.BacktestResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, symbol, strategy, initial_capital, final_capital,
			num_trades, wins, losses, win_rate, avg_win, avg_loss, total_pnl,
			total_return, max_drawdown, sharpe_ratio, profit_factor,
			soft_failure, equity_curve, created_at
		FROM backtest_runs WHERE id = ?
	`, runID)

	rec, curveJSON, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", apperrors.ErrDataNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperrors.ErrDatabaseError, err)
	}

	result := &models.BacktestResult{
		RunID:          rec.RunID,
		Symbol:         rec.Symbol,
		Strategy:       rec.Strategy,
		InitialCapital: rec.InitialCapital,
		FinalCapital:   rec.FinalCapital,
		Summary:        rec.Summary,
		SoftFailure:    rec.SoftFailure,
		EquityCurve:    []models.EquityPoint{},
	}
	if curveJSON != "" {
		if err := json.Unmarshal([]byte(curveJSON), &result.EquityCurve); err != nil {
			return nil, fmt.Errorf("failed to decode equity curve: %w", err)
		}
	}

	trades, err := s.getTrades(ctx, runID)
	if err != nil {
		return nil, err
	}
	result.Trades = trades
	return result, nil
}

func (s *SQLiteStore) getTrades(ctx context.Context, runID string) ([]models.ClosedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, direction, profile, strike, quantity,
			entry_date, entry_premium, entry_underlying, expiry,
			exit_date, exit_premium, exit_underlying,
			pnl, pnl_pct, holding_days, status, exit_reason
		FROM backtest_trades WHERE run_id = ? ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query trades: %w", err)
	}
	defer rows.Close()

	trades := make([]models.ClosedTrade, 0)
	for rows.Next() {
		var t models.ClosedTrade
		var dir, status, reason string
		var profile sql.NullString
		if err := rows.Scan(
			&t.Symbol, &dir, &profile, &t.Strike, &t.Quantity,
			&t.EntryDate, &t.EntryPremium, &t.EntryUnderlying, &t.Expiry,
			&t.ExitDate, &t.ExitPremium, &t.ExitUnderlying,
			&t.PnL, &t.PnLPct, &t.HoldingDays, &status, &reason,
		); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		t.Direction = models.Direction(dir)
		t.Profile = profile.String
		t.Status = models.TradeStatus(status)
		t.ExitReason = models.ExitReason(reason)
		trades = append(trades, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trades: %w", err)
	}
	return trades, nil
}

// ListRuns returns stored run headlines, newest first.
func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunRecord, error) {
	query := `
		SELECT id, symbol, strategy, initial_capital, final_capital,
			num_trades, wins, losses, win_rate, avg_win, avg_loss, total_pnl,
			total_return, max_drawdown, sharpe_ratio, profit_factor,
			soft_failure, equity_curve, created_at
		FROM backtest_runs WHERE 1=1`
	args := []interface{}{}

	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, filter.Symbol)
	}
	if filter.Strategy != "" {
		query += " AND strategy = ?"
		args = append(args, filter.Strategy)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC, id ASC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var records []RunRecord
	for rows.Next() {
		rec, _, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (RunRecord, string, error) {
	var rec RunRecord
	var softFailure, curve sql.NullString
	sm := &rec.Summary
	err := row.Scan(
		&rec.RunID, &rec.Symbol, &rec.Strategy, &rec.InitialCapital, &rec.FinalCapital,
		&sm.NumTrades, &sm.Wins, &sm.Losses, &sm.WinRate, &sm.AvgWin, &sm.AvgLoss, &sm.TotalPnL,
		&sm.TotalReturn, &sm.MaxDrawdown, &sm.SharpeRatio, &sm.ProfitFactor,
		&softFailure, &curve, &rec.CreatedAt,
	)
	rec.SoftFailure = softFailure.String
	return rec, curve.String, err
}
