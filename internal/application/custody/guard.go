package custody

import (
	"context"
	"errors"
	"fmt"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// advanceGuard runs a mutation of one advance under its lock, inside a transaction,
// re-running the whole transaction when the optimistic version check fails.
type advanceGuard struct {
	locker     AdvanceLocker
	txScope    TransactionScope
	maxRetries int
	logger     *zap.Logger
}

func (g *advanceGuard) run(ctx context.Context, advanceID uuid.UUID, fn func(repos TransactionalRepositories) error) error {
	unlock, err := g.locker.Lock(ctx, advanceID)
	if err != nil {
		return shared.WrapDomainError(shared.CodeConcurrencyConflict, "Advance is busy, try again", err)
	}
	defer unlock()

	for attempt := 1; ; attempt++ {
		err := g.txScope.Execute(ctx, fn)
		if err == nil || !errors.Is(err, shared.ErrConcurrencyConflict) || attempt > g.maxRetries {
			return err
		}
		g.logger.Warn("Advance modified concurrently, retrying",
			zap.String("advance_id", advanceID.String()),
			zap.Int("attempt", attempt),
		)
	}
}

// lockAdvance loads the advance for update within the current transaction
func lockAdvance(ctx context.Context, repos TransactionalRepositories, scope shared.Scope, id uuid.UUID) (*custody.Advance, error) {
	advance, err := repos.Advances().FindByIDForUpdate(ctx, scope, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewNotFoundError("advance", id)
		}
		return nil, fmt.Errorf("failed to load advance: %w", err)
	}
	return advance, nil
}
