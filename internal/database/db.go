// Package database owns the process-wide pgx connection pool.
package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	pool     *pgxpool.Pool
	poolMu   sync.RWMutex
	poolOnce sync.Once
)

// Options controls pool construction. SingleConn and SessionSetup are used
// together for managed-cloud backends that dislike client-side pooling and
// need fixed date/timezone session state; the embedded-style local backend
// leaves both off.
type Options struct {
	ConnString   string
	MaxConns     int
	MinConns     int
	MaxLifetime  time.Duration
	MaxIdleTime  time.Duration
	SingleConn   bool
	SessionSetup bool
}

// Connect creates the database connection pool (safe for concurrent use).
func Connect(ctx context.Context, opts Options) error {
	var initErr error
	poolOnce.Do(func() {
		config, err := pgxpool.ParseConfig(opts.ConnString)
		if err != nil {
			initErr = fmt.Errorf("error parsing database config: %w", err)
			return
		}

		config.MaxConns = int32(opts.MaxConns)
		config.MinConns = int32(opts.MinConns)
		config.MaxConnLifetime = opts.MaxLifetime
		config.MaxConnIdleTime = opts.MaxIdleTime
		config.HealthCheckPeriod = 1 * time.Minute

		if opts.SingleConn {
			config.MaxConns = 1
			config.MinConns = 0
		}
		if opts.SessionSetup {
			config.AfterConnect = setupSession
		}

		newPool, err := pgxpool.NewWithConfig(ctx, config)
		if err != nil {
			initErr = fmt.Errorf("error creating connection pool: %w", err)
			return
		}

		if err := newPool.Ping(ctx); err != nil {
			newPool.Close()
			initErr = fmt.Errorf("error connecting to database: %w", err)
			return
		}

		poolMu.Lock()
		pool = newPool
		poolMu.Unlock()
	})

	if initErr != nil {
		poolOnce = sync.Once{} // reset on failure
		return initErr
	}
	return nil
}

// setupSession pins the session state every price query assumes: UTC
// timestamps and ISO date rendering.
func setupSession(ctx context.Context, conn *pgx.Conn) error {
	if _, err := conn.Exec(ctx, "SET TIME ZONE 'UTC'"); err != nil {
		return fmt.Errorf("set session time zone: %w", err)
	}
	if _, err := conn.Exec(ctx, "SET datestyle TO ISO"); err != nil {
		return fmt.Errorf("set session datestyle: %w", err)
	}
	return nil
}

// Close closes the database connection pool.
func Close() {
	poolMu.Lock()
	defer poolMu.Unlock()
	if pool != nil {
		pool.Close()
		pool = nil
	}
	poolOnce = sync.Once{} // reset to allow reconnection
}

// Pool returns the connection pool.
func Pool() *pgxpool.Pool {
	poolMu.RLock()
	defer poolMu.RUnlock()
	return pool
}

// Status returns the current status of the database connection.
func Status(ctx context.Context) error {
	poolMu.RLock()
	p := pool
	poolMu.RUnlock()

	if p == nil {
		return fmt.Errorf("database not initialized")
	}
	return p.Ping(ctx)
}

// Stats returns connection pool statistics.
func Stats() *pgxpool.Stat {
	poolMu.RLock()
	defer poolMu.RUnlock()
	if pool == nil {
		return nil
	}
	return pool.Stat()
}
