package domain

import "errors"

var (
	// ErrDuplicateSignal means a signal with the same trading day, session and type already exists.
	ErrDuplicateSignal = errors.New("duplicate signal")
	ErrNotFound        = errors.New("not found")
	// ErrInvalidTick is returned for ticks rejected at ingestion.
	ErrInvalidTick = errors.New("invalid tick")
	// ErrNoData marks a data gap: nothing to evaluate this cycle.
	ErrNoData = errors.New("no data")
)
