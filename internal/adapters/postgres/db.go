package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/samirrijal/fieldmap/internal/pkg/metrics"
)

// DB wraps pgxpool.Pool and provides a shared connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New creates a new DB connection pool.
func New(ctx context.Context, dsn string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	cfg.MaxConns = 50

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// CollectPoolStats exports pool statistics every interval until ctx is done.
func (db *DB) CollectPoolStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastEmpty, lastWaits int64
	var lastWait time.Duration
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s := db.Pool.Stat()
		metrics.DBPoolConnsOpen.Set(float64(s.TotalConns()))
		metrics.DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		metrics.DBPoolConnsIdle.Set(float64(s.IdleConns()))

		// pgxpool counters are cumulative
		if d := s.EmptyAcquireCount() - lastEmpty; d > 0 {
			metrics.DBPoolEmptyAcquires.Add(float64(d))
		}
		waits := s.AcquireCount() - lastWaits
		if waits > 0 {
			metrics.DBPoolWaitCount.Add(float64(waits))
			metrics.DBPoolWaitDuration.Observe((s.AcquireDuration() - lastWait).Seconds() / float64(waits))
		}
		lastEmpty, lastWaits, lastWait = s.EmptyAcquireCount(), s.AcquireCount(), s.AcquireDuration()
	}
}

// Close releases pool resources.
func (db *DB) Close() {
	db.Pool.Close()
}
