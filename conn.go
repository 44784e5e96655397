package sproc

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// DefaultConnectTimeout bounds the initial reachability check so a call
// against a dead host fails instead of hanging.
const DefaultConnectTimeout = 10 * time.Second

// runner is the slice of *sql.DB / *sql.Conn used by a single call.
type runner interface {
	Querier
	Execer
}

// session is a per-call connection handle. It is created inside a call,
// never stored on the Executor, and released on every exit path.
type session struct {
	r runner

	// Exactly one of these is set: db in scoped mode (the handle is closed
	// at release, discarding any driver pool), conn in pooled mode (the
	// call's private checkout from the shared pool).
	db   *sql.DB
	conn *sql.Conn
}

// acquire returns an open, verified session for one call.
func (e *Executor) acquire(ctx context.Context) (*session, error) {
	dsn, err := e.source.ConnectionString(e.connection)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}

	if e.pooling {
		db, err := e.sharedDB(ctx, dsn)
		if err != nil {
			return nil, err
		}
		conn, err := db.Conn(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConnect, err)
		}
		return &session{r: conn, conn: conn}, nil
	}

	db, err := e.openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	e.metrics.opens.Inc()
	e.log.Debug("connection opened", zap.String("connection", e.connection))
	return &session{r: db, db: db}, nil
}

// release closes the session unconditionally. The returned error is only
// reported to callers when the call itself succeeded, so a cleanup failure
// never shadows an execution failure.
func (e *Executor) release(s *session) error {
	if s == nil {
		return nil
	}
	var err error
	switch {
	case s.conn != nil:
		err = s.conn.Close()
	case s.db != nil:
		err = s.db.Close()
		e.metrics.closes.Inc()
		e.log.Debug("connection closed", zap.String("connection", e.connection))
	}
	if err != nil {
		e.log.Warn("connection release failed", zap.String("connection", e.connection), zap.Error(err))
	}
	return err
}

func (e *Executor) openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(e.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, e.connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	return db, nil
}

// sharedDB lazily opens the pool handle kept across calls in pooled mode.
func (e *Executor) sharedDB(ctx context.Context, dsn string) (*sql.DB, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared != nil {
		return e.shared, nil
	}
	db, err := e.openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	e.metrics.opens.Inc()
	e.log.Debug("pool opened", zap.String("connection", e.connection))
	e.shared = db
	return db, nil
}

// Close releases the shared pool handle, if any. Only meaningful in pooled
// mode; in scoped mode every call cleans up after itself and Close is a
// no-op.
func (e *Executor) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.shared == nil {
		return nil
	}
	err := e.shared.Close()
	e.shared = nil
	e.metrics.closes.Inc()
	return err
}
