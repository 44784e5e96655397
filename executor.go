package sproc

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Config wires an Executor to its connection source.
type Config struct {
	// Driver is the database/sql driver name ("postgres", "mysql", …).
	// The driver must be registered by the importing program.
	Driver string `validate:"required"`

	// Connection names the entry looked up in Source. Defaults to
	// DefaultConnection.
	Connection string

	// Source resolves the named connection string. Resolution happens on
	// every acquire, so a missing entry fails at first use, not here.
	Source Source `validate:"required"`
}

// Option customizes an Executor beyond its Config.
type Option func(*Executor)

// WithLogger sets the structured logger. Defaults to a no-op logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Executor) { e.log = log }
}

// WithRegisterer sets where call and connection metrics are registered.
// Defaults to a private registry, keeping the default global registry clean.
func WithRegisterer(stats prometheus.Registerer) Option {
	return func(e *Executor) { e.stats = stats }
}

// WithClock sets the clock used for latency measurement. For tests.
func WithClock(clk clock.Clock) Option {
	return func(e *Executor) { e.clk = clk }
}

// WithPlaceholder overrides the placeholder style inferred from the driver
// name via PlaceholderFor.
func WithPlaceholder(ph Placeholder) Option {
	return func(e *Executor) { e.ph = ph }
}

// WithConnectTimeout bounds the reachability check on acquire. Defaults to
// DefaultConnectTimeout.
func WithConnectTimeout(d time.Duration) Option {
	return func(e *Executor) { e.connectTimeout = d }
}

// WithPooling keeps one pool handle open across calls instead of the default
// open-execute-close cycle per call. Each call still gets its own private
// connection from the pool. Call Close when done with a pooled Executor.
func WithPooling(pooled bool) Option {
	return func(e *Executor) { e.pooling = pooled }
}

// Executor invokes stored procedures with positional string parameters and
// materializes their results. Safe for concurrent use: no connection state
// is shared between calls except, in pooled mode, the *sql.DB pool handle,
// which is itself concurrency-safe.
type Executor struct {
	driver         string
	connection     string
	source         Source
	ph             Placeholder
	pooling        bool
	connectTimeout time.Duration
	log            *zap.Logger
	clk            clock.Clock
	stats          prometheus.Registerer
	metrics        *metrics

	mu     sync.Mutex
	shared *sql.DB
}

// New builds an Executor. The connection is not touched here; the first
// Query or Exec performs the first open.
func New(cfg Config, opts ...Option) (*Executor, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("sproc: invalid config: %w", err)
	}
	connection := cfg.Connection
	if connection == "" {
		connection = DefaultConnection
	}

	e := &Executor{
		driver:         cfg.Driver,
		connection:     connection,
		source:         cfg.Source,
		ph:             PlaceholderFor(cfg.Driver),
		connectTimeout: DefaultConnectTimeout,
		log:            zap.NewNop(),
		clk:            clock.Default(),
		stats:          prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.metrics = newMetrics(e.stats)
	return e, nil
}

// Query invokes a stored procedure and materializes every returned row into
// a Table. paramNames and paramValues are equal-length parallel slices; a
// nil value binds as SQL NULL. Both may be nil for a parameterless call.
//
// The connection used is scoped to this call and released on every exit
// path, success or failure.
//
// Example:
//
//	month := "2026-08"
//	table, err := exec.Query(ctx, "monthly_report",
//	    []string{"month"}, []*string{&month})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rows, err := sproc.ToStructs[ReportRow](table)
func (e *Executor) Query(ctx context.Context, procedure string, paramNames []string, paramValues []*string) (*Table, error) {
	args, err := bindParams(procedure, paramNames, paramValues)
	if err != nil {
		return nil, opErr("query", procedure, ErrExecute, err)
	}

	s, err := e.acquire(ctx)
	if err != nil {
		e.metrics.calls.WithLabelValues(procedure, "connect_error").Inc()
		return nil, &OpError{Op: "query", Procedure: procedure, Err: err}
	}

	start := e.clk.Now()
	t, execErr := e.queryTable(ctx, s, procedure, args)
	e.metrics.latency.WithLabelValues(procedure).Observe(e.clk.Since(start).Seconds())
	relErr := e.release(s)

	if execErr != nil {
		e.metrics.calls.WithLabelValues(procedure, "execute_error").Inc()
		e.log.Warn("procedure query failed", zap.String("procedure", procedure), zap.Error(execErr))
		return nil, opErr("query", procedure, ErrExecute, execErr)
	}
	if relErr != nil {
		e.metrics.calls.WithLabelValues(procedure, "release_error").Inc()
		return nil, opErr("release connection after query", procedure, ErrConnect, relErr)
	}

	e.metrics.calls.WithLabelValues(procedure, "ok").Inc()
	e.log.Debug("procedure query succeeded",
		zap.String("procedure", procedure),
		zap.Int("rows", t.Len()))
	return t, nil
}

// Exec invokes a stored procedure for effect only. Binding and connection
// scoping behave exactly as in Query.
func (e *Executor) Exec(ctx context.Context, procedure string, paramNames []string, paramValues []*string) error {
	args, err := bindParams(procedure, paramNames, paramValues)
	if err != nil {
		return opErr("exec", procedure, ErrExecute, err)
	}

	s, err := e.acquire(ctx)
	if err != nil {
		e.metrics.calls.WithLabelValues(procedure, "connect_error").Inc()
		return &OpError{Op: "exec", Procedure: procedure, Err: err}
	}

	start := e.clk.Now()
	stmt := callStatement(procedure, e.ph, len(args))
	_, execErr := s.r.ExecContext(ctx, stmt, args...)
	e.metrics.latency.WithLabelValues(procedure).Observe(e.clk.Since(start).Seconds())
	relErr := e.release(s)

	if execErr != nil {
		e.metrics.calls.WithLabelValues(procedure, "execute_error").Inc()
		e.log.Warn("procedure exec failed", zap.String("procedure", procedure), zap.Error(execErr))
		return opErr("exec", procedure, ErrExecute, execErr)
	}
	if relErr != nil {
		e.metrics.calls.WithLabelValues(procedure, "release_error").Inc()
		return opErr("release connection after exec", procedure, ErrConnect, relErr)
	}

	e.metrics.calls.WithLabelValues(procedure, "ok").Inc()
	e.log.Debug("procedure exec succeeded", zap.String("procedure", procedure))
	return nil
}

func (e *Executor) queryTable(ctx context.Context, s *session, procedure string, args []any) (t *Table, err error) {
	stmt := callStatement(procedure, e.ph, len(args))
	rows, err := s.r.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	// Propagate rows.Close() error if nothing else failed.
	defer func() {
		if cerr := rows.Close(); cerr != nil && err == nil {
			t, err = nil, cerr
		}
	}()
	return readTable(rows)
}

// bindParams validates the procedure name and parallel parameter slices and
// converts them into driver arguments. A nil *string binds as SQL NULL, not
// the literal string "null".
func bindParams(procedure string, names []string, values []*string) ([]any, error) {
	if err := validProcedureName(procedure); err != nil {
		return nil, err
	}
	if len(names) != len(values) {
		return nil, fmt.Errorf("%d parameter names and %d values", len(names), len(values))
	}
	if len(names) == 0 {
		return nil, nil
	}
	args := make([]any, len(values))
	for i, v := range values {
		if names[i] == "" {
			return nil, fmt.Errorf("parameter %d has an empty name", i)
		}
		if v == nil {
			args[i] = nil
			continue
		}
		args[i] = *v
	}
	return args, nil
}
