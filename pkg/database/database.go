package database

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pesio-ai/be-hr-leave-applications/pkg/errors"
	"github.com/pesio-ai/be-hr-leave-applications/pkg/metrics"
)

// Config holds connection pool settings.
type Config struct {
	Host        string
	Port        int
	User        string
	Password    string
	Database    string
	SSLMode     string
	MaxConns    int32
	MinConns    int32
	MaxConnTime time.Duration
	MaxIdleTime time.Duration
	HealthCheck time.Duration
	TxMaxWait   time.Duration
	TxTimeout   time.Duration
}

// Querier is the statement surface shared by the pool and a transaction.
// Repositories depend on it so the same code runs inside and outside a
// unit of work.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool is a Querier that can open transactions.
type Pool interface {
	Querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is the service database handle.
type DB struct {
	Pool
	closeFn   func()
	txMaxWait time.Duration
	txTimeout time.Duration
}

// New connects a pgx pool and verifies it with a ping.
func New(ctx context.Context, cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnTime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnTime
	}
	if cfg.MaxIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxIdleTime
	}
	if cfg.HealthCheck > 0 {
		poolCfg.HealthCheckPeriod = cfg.HealthCheck
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &DB{
		Pool:      pool,
		closeFn:   pool.Close,
		txMaxWait: cfg.TxMaxWait,
		txTimeout: cfg.TxTimeout,
	}, nil
}

// Wrap builds a DB around an existing pool, e.g. a pgxmock pool in tests.
func Wrap(pool Pool, txMaxWait, txTimeout time.Duration) *DB {
	return &DB{Pool: pool, txMaxWait: txMaxWait, txTimeout: txTimeout}
}

// Close releases the pool.
func (db *DB) Close() {
	if db.closeFn != nil {
		db.closeFn()
	}
}

// InTransaction runs fn inside one transaction. fn's statements all go through
// the tx handle it receives; any error rolls everything back. The whole unit
// is bounded by the configured budget and overruns surface as a retryable
// internal error.
func (db *DB) InTransaction(ctx context.Context, fn func(tx pgx.Tx) error) (err error) {
	start := time.Now()
	defer func() {
		outcome := "commit"
		if err != nil {
			outcome = "rollback"
		}
		metrics.TransactionDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	if db.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.txTimeout)
		defer cancel()
	}

	beginCtx := ctx
	if db.txMaxWait > 0 {
		var cancelBegin context.CancelFunc
		beginCtx, cancelBegin = context.WithTimeout(ctx, db.txMaxWait)
		defer cancelBegin()
	}

	tx, err := db.Begin(beginCtx)
	if err != nil {
		return classify(beginCtx, err, "failed to begin transaction")
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(context.Background())
		}
	}()

	if err := fn(tx); err != nil {
		if errors.CodeOf(err) == errors.ErrCodeInternal {
			return classify(ctx, err, "transaction failed")
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(ctx, err, "failed to commit transaction")
	}
	committed = true
	return nil
}

// SQLSTATEs Postgres uses when it aborts a transaction that may succeed if
// run again.
const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

func classify(ctx context.Context, err error, message string) error {
	if stderrors.Is(ctx.Err(), context.DeadlineExceeded) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.Timeout("transaction exceeded its time budget", err)
	}
	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateSerializationFailure, sqlStateDeadlockDetected:
			return errors.Transient("transaction aborted by a concurrent update", err)
		}
	}
	return errors.Wrap(err, errors.ErrCodeInternal, message)
}
