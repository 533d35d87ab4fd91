// Package uow runs groups of ledger calls as one all-or-nothing database
// transaction, retrying the whole group when the database reports a
// serialization conflict.
package uow

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"smallbiznis-picks/pkg/config"
	"smallbiznis-picks/pkg/db"
	"smallbiznis-picks/pkg/errutil"
	"smallbiznis-picks/pkg/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrSerialization marks a conflict detected by the application itself,
	// e.g. a guarded update that matched no row. It is retried like a
	// database serialization failure.
	ErrSerialization = errors.New("concurrent update conflict")

	ErrRetriesExhausted = errors.New("unit of work retries exhausted")
)

var attemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "picks",
	Subsystem: "uow",
	Name:      "attempts_total",
	Help:      "Unit of work attempts by outcome.",
}, []string{"outcome"})

var Module = fx.Module("uow",
	fx.Provide(
		New,
		func(c *Coordinator) UnitOfWork { return c },
	),
)

// Func is one attempt of a unit of work. It must only touch the database
// through tx and must be safe to run again after a rollback.
type Func func(ctx context.Context, tx *gorm.DB) error

type UnitOfWork interface {
	Do(ctx context.Context, fn Func) error
}

type Coordinator struct {
	db         *gorm.DB
	isolation  sql.IsolationLevel
	maxRetries uint64
	initial    time.Duration
	max        time.Duration
	tracer     trace.Tracer
}

type Params struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func New(p Params) *Coordinator {
	return NewCoordinator(p.DB, p.Config.Ledger)
}

func NewCoordinator(gdb *gorm.DB, cfg config.Ledger) *Coordinator {
	initial := cfg.RetryInitialInterval
	if initial <= 0 {
		initial = 20 * time.Millisecond
	}
	maxInterval := cfg.RetryMaxInterval
	if maxInterval < initial {
		maxInterval = initial
	}

	return &Coordinator{
		db:         gdb,
		isolation:  ParseIsolation(cfg.Isolation),
		maxRetries: cfg.MaxRetries,
		initial:    initial,
		max:        maxInterval,
		tracer:     otel.Tracer("smallbiznis-picks/uow"),
	}
}

// ParseIsolation maps a config value to a sql isolation level; anything
// unknown is serializable.
func ParseIsolation(v string) sql.IsolationLevel {
	switch strings.ToLower(strings.ReplaceAll(v, "_", " ")) {
	case "default":
		return sql.LevelDefault
	case "read committed":
		return sql.LevelReadCommitted
	case "repeatable read":
		return sql.LevelRepeatableRead
	default:
		return sql.LevelSerializable
	}
}

// Transient reports whether err should cause the whole unit of work to be
// attempted again.
func Transient(err error) bool {
	return errors.Is(err, ErrSerialization) || db.IsSerializationFailure(err)
}

func (c *Coordinator) txOptions() *sql.TxOptions {
	// go-sqlite3 transactions are always serializable.
	if c.db.Dialector.Name() == "sqlite" || c.isolation == sql.LevelDefault {
		return nil
	}
	return &sql.TxOptions{Isolation: c.isolation}
}

func (c *Coordinator) Do(ctx context.Context, fn Func) error {
	ctx, span := c.tracer.Start(ctx, "uow.Do")
	defer span.End()

	log := logger.FromContext(ctx)

	var attempt int
	op := func() error {
		attempt++
		err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return fn(ctx, tx)
		}, c.txOptions())
		switch {
		case err == nil:
			attemptsTotal.WithLabelValues("committed").Inc()
			return nil
		case Transient(err):
			attemptsTotal.WithLabelValues("conflict").Inc()
			return err
		default:
			attemptsTotal.WithLabelValues("failed").Inc()
			return backoff.Permanent(err)
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initial
	b.MaxInterval = c.max
	b.MaxElapsedTime = 0

	notify := func(err error, next time.Duration) {
		log.Warn("unit of work conflict, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", next),
			zap.Error(err),
		)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, c.maxRetries), ctx), notify)
	span.SetAttributes(attribute.Int("uow.attempts", attempt))
	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())

	if Transient(err) {
		log.Error("unit of work gave up after conflicts", zap.Int("attempts", attempt), zap.Error(err))
		return errutil.ServiceUnavailable("the request conflicted with a concurrent update, please retry",
			errors.Join(ErrRetriesExhausted, err))
	}

	return err
}
