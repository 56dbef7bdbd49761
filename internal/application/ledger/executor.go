package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/labelops/backend/internal/domain/shared"
	"go.uber.org/zap"
)

const (
	// DefaultMaxAttempts bounds how often a command is re-run after losing an optimistic-lock race
	DefaultMaxAttempts = 3
	// DefaultLockTTL bounds how long an in-flight reference stays locked
	DefaultLockTTL = 30 * time.Second
)

// executor carries what every ledger command needs: the transaction scope,
// identity and time ports, and the optional idempotency, lock, event and
// metrics collaborators. Services embed it, so its setters are theirs.
type executor struct {
	scope       TransactionScope
	ids         shared.IDGenerator
	clock       shared.Clock
	logger      *zap.Logger
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	locker      shared.Locker
	lockTTL     time.Duration
	publisher   shared.EventPublisher
	metrics     MetricsRecorder
	maxAttempts int
}

func newExecutor(scope TransactionScope, ids shared.IDGenerator, clock shared.Clock, logger *zap.Logger) executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return executor{
		scope:       scope,
		ids:         ids,
		clock:       clock,
		logger:      logger,
		idemConfig:  shared.DefaultIdempotencyConfig(),
		lockTTL:     DefaultLockTTL,
		metrics:     noopMetrics{},
		maxAttempts: DefaultMaxAttempts,
	}
}

// SetEventPublisher sets the publisher that receives events after commit
func (e *executor) SetEventPublisher(publisher shared.EventPublisher) {
	e.publisher = publisher
}

// SetIdempotencyStore enables the processed-reference fast path
func (e *executor) SetIdempotencyStore(store shared.IdempotencyStore, cfg shared.IdempotencyConfig) {
	e.idempotency = store
	e.idemConfig = cfg
}

// SetLocker sets the lock used to serialize commands carrying the same reference
func (e *executor) SetLocker(locker shared.Locker, ttl time.Duration) {
	e.locker = locker
	if ttl > 0 {
		e.lockTTL = ttl
	}
}

// SetMetrics sets the metrics recorder
func (e *executor) SetMetrics(m MetricsRecorder) {
	if m == nil {
		m = noopMetrics{}
	}
	e.metrics = m
}

// SetMaxAttempts sets how many times a command runs before a concurrency conflict is returned
func (e *executor) SetMaxAttempts(n int) {
	if n < 1 {
		n = 1
	}
	e.maxAttempts = n
}

// run executes fn in a transaction, re-running it when an optimistic lock is
// lost. referenceKey, when set, names a caller-supplied reference: it is
// locked for the duration and checked against the idempotency store first.
// fn must rebuild all state it reads on every attempt.
func (e *executor) run(ctx context.Context, command, referenceKey string, fn func(repos TransactionalRepositories) error) error {
	start := time.Now()
	err := e.runOnce(ctx, command, referenceKey, fn)
	e.metrics.RecordCommand(ctx, command, outcomeOf(err), time.Since(start))
	return err
}

func (e *executor) runOnce(ctx context.Context, command, referenceKey string, fn func(repos TransactionalRepositories) error) error {
	if referenceKey != "" {
		release, err := e.lock(ctx, referenceKey)
		if err != nil {
			return err
		}
		defer release()

		if e.alreadyProcessed(ctx, referenceKey) {
			return shared.ErrDuplicateReference
		}
	}

	var err error
	for attempt := 1; ; attempt++ {
		err = e.scope.Execute(ctx, fn)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) || attempt >= e.maxAttempts {
			break
		}
		e.metrics.RecordConflictRetry(ctx, command)
		e.logger.Debug("Ledger command lost an optimistic lock, retrying",
			zap.String("command", command),
			zap.Int("attempt", attempt),
		)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
	}
	if err != nil {
		return err
	}

	if referenceKey != "" {
		e.markProcessed(ctx, referenceKey)
	}
	return nil
}

func (e *executor) lock(ctx context.Context, key string) (func(), error) {
	noop := func() {}
	if e.locker == nil {
		return noop, nil
	}
	release, err := e.locker.Obtain(ctx, key, e.lockTTL)
	if errors.Is(err, shared.ErrLockNotObtained) {
		return nil, shared.WrapDomainError(shared.CodeDuplicateReference, "Reference is already being processed", err)
	}
	if err != nil {
		// The unique reference constraint still guards the ledger.
		e.logger.Warn("Could not obtain reference lock, continuing without it",
			zap.String("reference_key", key),
			zap.Error(err),
		)
		return noop, nil
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Warn("Failed to release reference lock", zap.String("reference_key", key), zap.Error(err))
		}
	}, nil
}

func (e *executor) alreadyProcessed(ctx context.Context, key string) bool {
	if e.idempotency == nil || !e.idemConfig.Enabled {
		return false
	}
	processed, err := e.idempotency.IsProcessed(ctx, key)
	if err != nil {
		e.logger.Warn("Idempotency lookup failed", zap.String("reference_key", key), zap.Error(err))
		return false
	}
	return processed
}

func (e *executor) markProcessed(ctx context.Context, key string) {
	if e.idempotency == nil || !e.idemConfig.Enabled {
		return
	}
	if _, err := e.idempotency.MarkProcessed(ctx, key, e.idemConfig.TTL); err != nil {
		e.logger.Warn("Failed to mark reference as processed", zap.String("reference_key", key), zap.Error(err))
	}
}

func (e *executor) publish(ctx context.Context, events ...shared.DomainEvent) {
	if e.publisher == nil || len(events) == 0 {
		return
	}
	if err := e.publisher.Publish(ctx, events...); err != nil {
		e.logger.Error("Failed to publish ledger events", zap.Int("count", len(events)), zap.Error(err))
	}
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case errors.Is(err, shared.ErrInsufficientInventory):
		return OutcomeInsufficient
	case errors.Is(err, shared.ErrInvalidRequest), errors.Is(err, shared.ErrNotFound):
		return OutcomeInvalid
	case errors.Is(err, shared.ErrDuplicateReference):
		return OutcomeDuplicate
	case errors.Is(err, shared.ErrConcurrencyConflict):
		return OutcomeConflict
	default:
		return OutcomeError
	}
}

// asInvalid turns a repository not-found into the InvalidRequest a command reports
func asInvalid(err error, format string, args ...any) error {
	if errors.Is(err, shared.ErrNotFound) {
		return shared.NewInvalidRequest(format, args...)
	}
	return err
}
