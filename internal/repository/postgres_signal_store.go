package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"NiftyPulse/internal/domain"
	"NiftyPulse/internal/domain/models"
	domrepo "NiftyPulse/internal/domain/repository"
	pkgpg "NiftyPulse/pkg/postgres"
)

const dayLayout = "2006-01-02"

// PostgresSignalStore persists signals; the unique index on
// (trading_date, session_name, signal_type) is the authoritative duplicate guard.
type PostgresSignalStore struct {
	pool *pgxpool.Pool
	loc  *time.Location
}

var _ domrepo.SignalStore = (*PostgresSignalStore)(nil)

func NewPostgresSignalStore(pool *pgxpool.Pool, loc *time.Location) *PostgresSignalStore {
	return &PostgresSignalStore{pool: pool, loc: loc}
}

const signalSelectCols = `id, trading_date, session_name, signal_type,
	entry_price, stop_loss, target_1, target_2, confidence, status,
	session_high, session_low, index_price, futures_price, futures_high, futures_low,
	reason, display_text, details, created_at, updated_at`

// Insert never upserts: a natural-key collision returns domain.ErrDuplicateSignal.
func (s *PostgresSignalStore) Insert(ctx context.Context, sig *models.Signal) error {
	day, err := time.Parse(dayLayout, sig.TradingDay)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: trading day: %w", sig.ID, err)
	}
	details, err := json.Marshal(sig.Details)
	if err != nil {
		return fmt.Errorf("postgres: insert signal %s: details: %w", sig.ID, err)
	}

	const query = `
		INSERT INTO signals (
			id, trading_date, session_name, signal_type,
			entry_price, stop_loss, target_1, target_2, confidence, status,
			session_high, session_low, index_price, futures_price, futures_high, futures_low,
			reason, display_text, details, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21
		)`

	_, err = s.pool.Exec(ctx, query,
		sig.ID, day, sig.SessionName, string(sig.SignalType),
		sig.EntryPrice, sig.StopLoss, sig.Target1, sig.Target2, sig.Confidence, string(sig.Status),
		sig.SessionHigh, sig.SessionLow, sig.IndexPrice, sig.FuturesPrice, sig.FuturesHigh, sig.FuturesLow,
		sig.Reason, sig.DisplayText, details, sig.CreatedAt, sig.UpdatedAt,
	)
	if err != nil {
		if pkgpg.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateSignal, sig.Key())
		}
		return fmt.Errorf("postgres: insert signal %s: %w", sig.ID, err)
	}
	return nil
}

func (s *PostgresSignalStore) Exists(ctx context.Context, key models.SignalKey) (bool, error) {
	day, err := time.Parse(dayLayout, key.TradingDay)
	if err != nil {
		return false, fmt.Errorf("postgres: signal exists: trading day: %w", err)
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM signals
			WHERE trading_date = $1 AND session_name = $2 AND signal_type = $3
		)`, day, key.SessionName, string(key.SignalType),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: signal exists %s: %w", key, err)
	}
	return exists, nil
}

func (s *PostgresSignalStore) UpdateStatus(ctx context.Context, id string, status models.SignalStatus, at time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE signals SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), at, id,
	)
	if err != nil {
		return fmt.Errorf("postgres: update signal status %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns ACTIVE signals of tradingDay, or of every day when tradingDay is empty.
func (s *PostgresSignalStore) ListActive(ctx context.Context, tradingDay string) ([]models.Signal, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if tradingDay == "" {
		rows, err = s.pool.Query(ctx,
			`SELECT `+signalSelectCols+` FROM signals WHERE status = $1 ORDER BY created_at`,
			string(models.SignalActive))
	} else {
		day, perr := time.Parse(dayLayout, tradingDay)
		if perr != nil {
			return nil, fmt.Errorf("postgres: list active signals: trading day: %w", perr)
		}
		rows, err = s.pool.Query(ctx,
			`SELECT `+signalSelectCols+` FROM signals WHERE status = $1 AND trading_date = $2 ORDER BY created_at`,
			string(models.SignalActive), day)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: list active signals: %w", err)
	}
	return s.collect(rows)
}

func (s *PostgresSignalStore) ListRecent(ctx context.Context, limit int) ([]models.Signal, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+signalSelectCols+` FROM signals ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent signals: %w", err)
	}
	return s.collect(rows)
}

// Close is a no-op; the pool belongs to pkg/postgres.
func (s *PostgresSignalStore) Close() error { return nil }

func (s *PostgresSignalStore) collect(rows pgx.Rows) ([]models.Signal, error) {
	defer rows.Close()
	out := make([]models.Signal, 0, 16)
	for rows.Next() {
		sig, err := s.scanSignal(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan signal: %w", err)
		}
		out = append(out, sig)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: signal rows: %w", err)
	}
	return out, nil
}

func (s *PostgresSignalStore) scanSignal(scanner interface{ Scan(dest ...any) error }) (models.Signal, error) {
	var (
		sig                models.Signal
		day                time.Time
		signalType, status string
		details            []byte
	)
	err := scanner.Scan(
		&sig.ID, &day, &sig.SessionName, &signalType,
		&sig.EntryPrice, &sig.StopLoss, &sig.Target1, &sig.Target2, &sig.Confidence, &status,
		&sig.SessionHigh, &sig.SessionLow, &sig.IndexPrice, &sig.FuturesPrice, &sig.FuturesHigh, &sig.FuturesLow,
		&sig.Reason, &sig.DisplayText, &details, &sig.CreatedAt, &sig.UpdatedAt,
	)
	if err != nil {
		return models.Signal{}, err
	}
	sig.TradingDay = day.Format(dayLayout)
	sig.SignalType = models.SignalType(signalType)
	sig.Status = models.SignalStatus(status)
	sig.CreatedAt = sig.CreatedAt.In(s.loc)
	sig.UpdatedAt = sig.UpdatedAt.In(s.loc)
	if len(details) > 0 {
		if err := json.Unmarshal(details, &sig.Details); err != nil {
			return models.Signal{}, fmt.Errorf("details: %w", err)
		}
	}
	return sig, nil
}
