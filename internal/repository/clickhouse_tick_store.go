package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	pkgch "NiftyPulse/pkg/clickhouse"
	applogger "NiftyPulse/pkg/logger"
)

// ClickHouseTickStore implements TickStore on the ticks table.
type ClickHouseTickStore struct {
	db    *sql.DB
	table string
	loc   *time.Location
	l     *applogger.Logger
}

var _ domrepo.TickStore = (*ClickHouseTickStore)(nil)

// NewClickHouseTickStore returns a store over <database>.ticks. Scanned times are converted to loc.
func NewClickHouseTickStore(ch *pkgch.Client, loc *time.Location, l *applogger.Logger) *ClickHouseTickStore {
	return &ClickHouseTickStore{
		db:    ch.DB(),
		table: ch.Database() + ".ticks",
		loc:   loc,
		l:     l.With(applogger.String("component", "clickhouse_tick_store")),
	}
}

func (s *ClickHouseTickStore) Append(ctx context.Context, t *models.Tick) (bool, error) {
	var n uint64
	q := fmt.Sprintf("SELECT count() FROM %s WHERE symbol = ? AND received_at = ? AND price = ?", s.table)
	if err := s.db.QueryRowContext(ctx, q, t.Symbol, t.ReceivedAt.UTC(), t.Price).Scan(&n); err != nil {
		s.l.Error("clickhouse tick exists query error", applogger.String("symbol", t.Symbol), applogger.Error(err))
		return false, fmt.Errorf("tick exists: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	var marketTS any
	if t.MarketTimestamp != nil {
		marketTS = t.MarketTimestamp.UTC()
	}
	ins := fmt.Sprintf("INSERT INTO %s (symbol, price, exchange, volume, received_at, market_ts) VALUES (?, ?, ?, ?, ?, ?)", s.table)
	if _, err := s.db.ExecContext(ctx, ins, t.Symbol, t.Price, t.Exchange, t.Volume, t.ReceivedAt.UTC(), marketTS); err != nil {
		s.l.Error("clickhouse tick insert error", applogger.String("symbol", t.Symbol), applogger.Error(err))
		return false, fmt.Errorf("insert tick: %w", err)
	}
	return true, nil
}

func (s *ClickHouseTickStore) QueryRange(ctx context.Context, symbol string, start, end time.Time) ([]models.Tick, error) {
	q := fmt.Sprintf(`
        SELECT symbol, price, exchange, volume, received_at, market_ts
        FROM %s FINAL
        WHERE symbol = ? AND received_at >= ? AND received_at < ?
        ORDER BY received_at ASC`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, start.UTC(), end.UTC())
	if err != nil {
		s.l.Error("clickhouse query_range error",
			applogger.String("symbol", symbol),
			applogger.Time("start", start),
			applogger.Time("end", end),
			applogger.Error(err),
		)
		return nil, fmt.Errorf("query ticks: %w", err)
	}
	defer rows.Close()

	out := make([]models.Tick, 0, 256)
	for rows.Next() {
		t, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (s *ClickHouseTickStore) Latest(ctx context.Context, symbol string, since time.Time) (*models.Tick, error) {
	q := fmt.Sprintf(`
        SELECT symbol, price, exchange, volume, received_at, market_ts
        FROM %s
        WHERE symbol = ? AND received_at >= ?
        ORDER BY received_at DESC
        LIMIT 1`, s.table)
	rows, err := s.db.QueryContext(ctx, q, symbol, since.UTC())
	if err != nil {
		s.l.Error("clickhouse latest tick error", applogger.String("symbol", symbol), applogger.Error(err))
		return nil, fmt.Errorf("latest tick: %w", err)
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, rows.Err()
	}
	t, err := s.scan(rows)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *ClickHouseTickStore) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n uint64
	cq := fmt.Sprintf("SELECT count() FROM %s WHERE received_at < ?", s.table)
	if err := s.db.QueryRowContext(ctx, cq, cutoff.UTC()).Scan(&n); err != nil {
		return 0, fmt.Errorf("count expired ticks: %w", err)
	}
	if n == 0 {
		return 0, nil
	}
	dq := fmt.Sprintf("ALTER TABLE %s DELETE WHERE received_at < ?", s.table)
	if _, err := s.db.ExecContext(ctx, dq, cutoff.UTC()); err != nil {
		return 0, fmt.Errorf("purge ticks: %w", err)
	}
	return int64(n), nil
}

// Close is a no-op; the connection pool belongs to pkg/clickhouse.
func (s *ClickHouseTickStore) Close() error { return nil }

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *ClickHouseTickStore) scan(r rowScanner) (models.Tick, error) {
	var (
		t        models.Tick
		marketTS sql.NullTime
	)
	if err := r.Scan(&t.Symbol, &t.Price, &t.Exchange, &t.Volume, &t.ReceivedAt, &marketTS); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		s.l.Error("clickhouse tick scan error", applogger.Error(err))
		return t, fmt.Errorf("scan tick: %w", err)
	}
	t.ReceivedAt = t.ReceivedAt.In(s.loc)
	if marketTS.Valid {
		mt := marketTS.Time.In(s.loc)
		t.MarketTimestamp = &mt
	}
	return t, nil
}
