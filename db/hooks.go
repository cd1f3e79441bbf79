package db

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// ─────────────────────────────────────────────────────────────────────────────
// Hook interface
// ─────────────────────────────────────────────────────────────────────────────

// Hook is called before and after every statement execution.
//
// Implementations MUST be goroutine-safe and SHOULD be non-blocking.
// Panics inside a hook are recovered by the hook chain.
type Hook interface {
	// BeforeQuery is invoked immediately before the statement is sent to the
	// driver.
	BeforeQuery(ctx context.Context, query string, args []any)

	// AfterQuery is invoked after the driver returns. duration is the
	// wall-clock time spent in the driver call; err is the mapped error.
	AfterQuery(ctx context.Context, query string, args []any, duration time.Duration, err error)
}

// ─────────────────────────────────────────────────────────────────────────────
// hookChain
// ─────────────────────────────────────────────────────────────────────────────

type hookChain struct {
	hooks []Hook
}

func newHookChain(hooks []Hook) hookChain {
	filtered := make([]Hook, 0, len(hooks))
	for _, h := range hooks {
		if h != nil {
			filtered = append(filtered, h)
		}
	}
	return hookChain{hooks: filtered}
}

func (c hookChain) Before(ctx context.Context, query string, args []any) {
	for _, h := range c.hooks {
		safeBeforeQuery(h, ctx, query, args)
	}
}

func (c hookChain) After(ctx context.Context, query string, args []any, d time.Duration, err error) {
	for _, h := range c.hooks {
		safeAfterQuery(h, ctx, query, args, d, err)
	}
}

func safeBeforeQuery(h Hook, ctx context.Context, query string, args []any) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("stars/db: hook panic in BeforeQuery", zap.Any("panic", r))
		}
	}()
	h.BeforeQuery(ctx, query, args)
}

func safeAfterQuery(h Hook, ctx context.Context, query string, args []any, d time.Duration, err error) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("stars/db: hook panic in AfterQuery", zap.Any("panic", r))
		}
	}()
	h.AfterQuery(ctx, query, args, d, err)
}

// ─────────────────────────────────────────────────────────────────────────────
// Logging hook
// ─────────────────────────────────────────────────────────────────────────────

// LogHookConfig configures the structured logging hook.
type LogHookConfig struct {
	// Logger defaults to zap.L() if nil.
	Logger *zap.Logger
	// SlowQueryThreshold logs a warning when duration exceeds this value.
	// Zero disables slow-query logging.
	SlowQueryThreshold time.Duration
	// LogArgs includes bound parameters in log entries.
	LogArgs bool
}

// NewLogHook returns a Hook that emits structured log entries via zap.
// Not-found results are logged at debug level; they are an expected outcome
// of id lookups.
func NewLogHook(cfg LogHookConfig) Hook {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.L()
	}
	return &logHook{cfg: cfg, logger: logger.Named("db")}
}

type logHook struct {
	cfg    LogHookConfig
	logger *zap.Logger
}

func (h *logHook) BeforeQuery(_ context.Context, _ string, _ []any) {}

func (h *logHook) AfterQuery(_ context.Context, query string, args []any, d time.Duration, err error) {
	fields := []zap.Field{
		zap.String("query", trimQuery(query)),
		zap.Duration("duration", d),
	}
	if h.cfg.LogArgs && len(args) > 0 {
		fields = append(fields, zap.Any("args", args))
	}

	if err != nil && !IsNotFound(err) {
		h.logger.Error("query error", append(fields, zap.Error(err))...)
		return
	}

	if h.cfg.SlowQueryThreshold > 0 && d > h.cfg.SlowQueryThreshold {
		h.logger.Warn("slow query", fields...)
		return
	}

	h.logger.Debug("query", fields...)
}

func trimQuery(q string) string {
	if len(q) > 500 {
		return q[:500] + "…"
	}
	return q
}

// ─────────────────────────────────────────────────────────────────────────────
// Metrics hook
// ─────────────────────────────────────────────────────────────────────────────

// MetricsCollector is implemented by the metrics backend
// (see observability.Metrics).
type MetricsCollector interface {
	// RecordQuery is called after every statement.
	RecordQuery(query string, duration time.Duration, success bool)
}

// NewMetricsHook returns a Hook that delegates to a MetricsCollector.
func NewMetricsHook(collector MetricsCollector) Hook {
	return &metricsHook{c: collector}
}

type metricsHook struct{ c MetricsCollector }

func (h *metricsHook) BeforeQuery(_ context.Context, _ string, _ []any) {}
func (h *metricsHook) AfterQuery(_ context.Context, query string, _ []any, d time.Duration, err error) {
	h.c.RecordQuery(query, d, err == nil || IsNotFound(err))
}

// ─────────────────────────────────────────────────────────────────────────────
// Tracing hook
// ─────────────────────────────────────────────────────────────────────────────

// Tracer is implemented by the tracing backend (see observability.QueryTracer).
// Hooks cannot thread a context from BeforeQuery to AfterQuery, so the span is
// recorded after the fact with an explicit start time.
type Tracer interface {
	RecordSpan(ctx context.Context, query string, start time.Time, end time.Time, err error)
}

// NewTracingHook returns a Hook wrapping a Tracer.
func NewTracingHook(t Tracer) Hook { return &tracingHook{t: t} }

type tracingHook struct{ t Tracer }

func (h *tracingHook) BeforeQuery(_ context.Context, _ string, _ []any) {}
func (h *tracingHook) AfterQuery(ctx context.Context, query string, _ []any, d time.Duration, err error) {
	end := time.Now()
	h.t.RecordSpan(ctx, query, end.Add(-d), end, err)
}
