package storage

// sqlite.go: durable bet history and daily risk ledgers.
//
// Layout:
//   - `bet_orders`: one row per bet attempt, keyed by local UUID. A partial
//     unique index enforces at most one non-terminal order per
//     (market, selection) pair.
//   - `daily_ledger`: one row per UTC day with bet count and signed net P&L.
//     Lifetime P&L is the sum over all rows.
//
// SQLite serializes writers, so every write goes through busyRetry: bounded
// exponential backoff on SQLITE_BUSY. A write that exhausts its retries is
// surfaced to the caller: the engine treats that step as not having happened.

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/laybot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bet_orders (
    id            TEXT PRIMARY KEY,
    market_id     TEXT    NOT NULL,
    selection_id  INTEGER NOT NULL,
    runner        TEXT,
    stage         INTEGER NOT NULL DEFAULT 0,
    price         REAL    NOT NULL,
    stake         REAL    NOT NULL,
    exchange_ref  TEXT    NOT NULL DEFAULT '',
    status        TEXT    NOT NULL,
    matched_size  REAL    NOT NULL DEFAULT 0,
    matched_price REAL    NOT NULL DEFAULT 0,
    placed_at     DATETIME NOT NULL,
    matched_at    DATETIME,
    profit        REAL
);

-- At most one non-terminal order per (market, selection)
CREATE UNIQUE INDEX IF NOT EXISTS idx_orders_active
    ON bet_orders(market_id, selection_id)
    WHERE status NOT IN ('MATCHED', 'CANCELLED', 'FAILED');

CREATE INDEX IF NOT EXISTS idx_orders_pair   ON bet_orders(market_id, selection_id);
CREATE INDEX IF NOT EXISTS idx_orders_status ON bet_orders(status);

CREATE TABLE IF NOT EXISTS daily_ledger (
    day         TEXT PRIMARY KEY,
    bets_placed INTEGER NOT NULL DEFAULT 0,
    profit_loss REAL    NOT NULL DEFAULT 0
);
`

const (
	busyRetries   = 5
	busyBaseWait  = 50 * time.Millisecond
	retentionDays = 90 * 24 * time.Hour
)

// SQLiteStorage implements ports.Storage using SQLite (pure Go, no CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens (or creates) the database at the given path,
// applies the schema and prunes old terminal rows.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}

	s := &SQLiteStorage{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

// RecordPlacement inserts the bet attempt and bumps the day's bet count in
// one transaction, before any exchange call is made. The partial unique
// index rejects a second live order for the same pair.
func (s *SQLiteStorage) RecordPlacement(ctx context.Context, order domain.BetOrder) error {
	return s.busyRetry(ctx, "storage.RecordPlacement", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO bet_orders
				(id, market_id, selection_id, runner, stage, price, stake,
				 exchange_ref, status, matched_size, matched_price, placed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			order.ID, order.MarketID, order.SelectionID, order.Runner,
			int(order.Stage), order.Price, order.Stake,
			order.ExchangeRef, string(order.Status),
			order.MatchedSize, order.MatchedPrice, order.PlacedAt.UTC(),
		); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_ledger (day, bets_placed, profit_loss)
			VALUES (?, 1, 0)
			ON CONFLICT(day) DO UPDATE SET bets_placed = bets_placed + 1`,
			domain.DayKey(order.PlacedAt),
		); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// UpdateStage records a stage transition with its exchange order id and price.
func (s *SQLiteStorage) UpdateStage(ctx context.Context, orderID string, stage domain.CascadeStage, exchangeRef string, price float64) error {
	return s.busyRetry(ctx, "storage.UpdateStage", func() error {
		res, err := s.db.ExecContext(ctx, `
			UPDATE bet_orders SET stage = ?, exchange_ref = ?, price = ?
			WHERE id = ?`,
			int(stage), exchangeRef, price, orderID)
		if err != nil {
			return err
		}
		return requireRow(res, orderID)
	})
}

// RecordSettlement writes the order's match state and (possibly terminal)
// status.
func (s *SQLiteStorage) RecordSettlement(ctx context.Context, orderID string, status domain.OrderStatus, matchedSize, matchedPrice float64, matchedAt *time.Time) error {
	return s.busyRetry(ctx, "storage.RecordSettlement", func() error {
		var at any
		if matchedAt != nil {
			at = matchedAt.UTC()
		}
		res, err := s.db.ExecContext(ctx, `
			UPDATE bet_orders
			SET status = ?, matched_size = ?, matched_price = ?, matched_at = ?
			WHERE id = ?`,
			string(status), matchedSize, matchedPrice, at, orderID)
		if err != nil {
			return err
		}
		return requireRow(res, orderID)
	})
}

// RecordOutcome applies a settled bet's signed profit to the order row and
// the day's ledger.
func (s *SQLiteStorage) RecordOutcome(ctx context.Context, orderID string, profit float64, settledAt time.Time) error {
	return s.busyRetry(ctx, "storage.RecordOutcome", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		res, err := tx.ExecContext(ctx,
			`UPDATE bet_orders SET profit = ? WHERE id = ?`, profit, orderID)
		if err != nil {
			return err
		}
		if err := requireRow(res, orderID); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO daily_ledger (day, bets_placed, profit_loss)
			VALUES (?, 0, ?)
			ON CONFLICT(day) DO UPDATE SET profit_loss = profit_loss + excluded.profit_loss`,
			domain.DayKey(settledAt), profit,
		); err != nil {
			return err
		}

		return tx.Commit()
	})
}

// HasBetOn reports whether any non-FAILED bet exists for the pair. FAILED
// attempts don't count: they never reached the exchange book.
func (s *SQLiteStorage) HasBetOn(ctx context.Context, marketID string, selectionID int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM bet_orders
		WHERE market_id = ? AND selection_id = ? AND status != 'FAILED'`,
		marketID, selectionID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("storage.HasBetOn: %w", err)
	}
	return n > 0, nil
}

// OpenOrders returns all non-terminal bet orders, oldest first.
func (s *SQLiteStorage) OpenOrders(ctx context.Context) ([]domain.BetOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, selection_id, runner, stage, price, stake,
		       exchange_ref, status, matched_size, matched_price, placed_at, matched_at
		FROM bet_orders
		WHERE status NOT IN ('MATCHED', 'CANCELLED', 'FAILED')
		ORDER BY placed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.OpenOrders: query: %w", err)
	}
	defer rows.Close()

	var orders []domain.BetOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.OpenOrders: scan: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// UnsettledOrders returns matched bets with no recorded profit yet, oldest
// first. These are the candidates for the cleared-orders settlement sweep.
func (s *SQLiteStorage) UnsettledOrders(ctx context.Context) ([]domain.BetOrder, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market_id, selection_id, runner, stage, price, stake,
		       exchange_ref, status, matched_size, matched_price, placed_at, matched_at
		FROM bet_orders
		WHERE status IN ('MATCHED', 'PARTIALLY_MATCHED')
		  AND matched_size > 0
		  AND profit IS NULL
		ORDER BY placed_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.UnsettledOrders: query: %w", err)
	}
	defer rows.Close()

	var orders []domain.BetOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("storage.UnsettledOrders: scan: %w", err)
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// GetDailyLedger returns the ledger row for a date, with lifetime P&L summed
// across every row. Absent days return a zero row for that date.
func (s *SQLiteStorage) GetDailyLedger(ctx context.Context, date time.Time) (domain.DailyRiskLedger, error) {
	ledger := domain.DailyRiskLedger{Date: date.UTC().Truncate(24 * time.Hour)}

	err := s.db.QueryRowContext(ctx, `
		SELECT bets_placed, profit_loss FROM daily_ledger WHERE day = ?`,
		domain.DayKey(date)).Scan(&ledger.BetsPlaced, &ledger.ProfitLoss)
	if err != nil && err != sql.ErrNoRows {
		return ledger, fmt.Errorf("storage.GetDailyLedger: day row: %w", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(profit_loss), 0) FROM daily_ledger`).Scan(&ledger.LifetimePnL)
	if err != nil {
		return ledger, fmt.Errorf("storage.GetDailyLedger: lifetime sum: %w", err)
	}
	return ledger, nil
}

// GetLedgers returns all daily ledger rows, oldest first, with running
// lifetime P&L.
func (s *SQLiteStorage) GetLedgers(ctx context.Context) ([]domain.DailyRiskLedger, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT day, bets_placed, profit_loss FROM daily_ledger ORDER BY day ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetLedgers: query: %w", err)
	}
	defer rows.Close()

	var out []domain.DailyRiskLedger
	running := 0.0
	for rows.Next() {
		var day string
		var l domain.DailyRiskLedger
		if err := rows.Scan(&day, &l.BetsPlaced, &l.ProfitLoss); err != nil {
			return nil, fmt.Errorf("storage.GetLedgers: scan: %w", err)
		}
		l.Date, _ = time.Parse("2006-01-02", day)
		running += l.ProfitLoss
		l.LifetimePnL = running
		out = append(out, l)
	}
	return out, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- internal helpers ---

// busyRetry runs fn, retrying with exponential backoff while SQLite reports
// a busy/locked condition. Any other error (including a genuine constraint
// violation) is returned immediately.
func (s *SQLiteStorage) busyRetry(ctx context.Context, op string, fn func() error) error {
	wait := busyBaseWait
	var err error
	for attempt := 0; attempt < busyRetries; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !isBusy(err) {
			return fmt.Errorf("%s: %w", op, err)
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
		wait *= 2
	}
	return fmt.Errorf("%s: retries exhausted: %w", op, err)
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database table is locked")
}

func requireRow(res sql.Result, orderID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no such order %s", orderID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(rows rowScanner) (domain.BetOrder, error) {
	var o domain.BetOrder
	var stage int
	var status string
	var matchedAt sql.NullTime

	if err := rows.Scan(
		&o.ID, &o.MarketID, &o.SelectionID, &o.Runner, &stage, &o.Price,
		&o.Stake, &o.ExchangeRef, &status, &o.MatchedSize, &o.MatchedPrice,
		&o.PlacedAt, &matchedAt,
	); err != nil {
		return o, err
	}
	o.Stage = domain.CascadeStage(stage)
	o.Status = domain.OrderStatus(status)
	if matchedAt.Valid {
		t := matchedAt.Time
		o.MatchedAt = &t
	}
	return o, nil
}

// pruneOld removes terminal rows older than the retention window to keep the
// DB light.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionDays)
	s.db.ExecContext(ctx, `
		DELETE FROM bet_orders
		WHERE placed_at < ? AND status IN ('MATCHED', 'CANCELLED', 'FAILED')`, cutoff)
}
