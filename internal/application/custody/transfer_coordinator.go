package custody

import (
	"context"
	"fmt"

	"github.com/erp/custody/internal/domain/custody"
	"github.com/erp/custody/internal/domain/shared"
	"github.com/erp/custody/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TransferCoordinator moves the open balance of an advance to another cost center
type TransferCoordinator struct {
	guard       *advanceGuard
	costCenters custody.CostCenterLookup
	metrics     *telemetry.CustodyMetrics
	logger      *zap.Logger
}

// NewTransferCoordinator creates a new TransferCoordinator
func NewTransferCoordinator(deps LedgerDeps) *TransferCoordinator {
	return &TransferCoordinator{
		guard:       deps.newGuard(),
		costCenters: deps.CostCenters,
		metrics:     deps.Metrics,
		logger:      deps.logger(),
	}
}

// TransferRequest names the advance to close and its new cost center (nil = general custody)
type TransferRequest struct {
	AdvanceID       uuid.UUID
	NewCostCenterID *uuid.UUID
}

// TransferResult holds both sides of a completed transfer
type TransferResult struct {
	Closed *custody.Advance
	New    *custody.Advance
	Record custody.TransferRecord
}

// TransferAdvance closes the advance and opens an APPROVED successor carrying its
// remaining balance. Both writes commit together or not at all.
func (s *TransferCoordinator) TransferAdvance(ctx context.Context, scope shared.Scope, req TransferRequest) (*TransferResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "transfer", "transfer_advance",
		telemetry.SpanAttrAdvanceID, req.AdvanceID.String(),
	)
	defer span.End()

	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var result *TransferResult
	err := s.guard.run(ctx, req.AdvanceID, func(repos TransactionalRepositories) error {
		source, err := lockAdvance(ctx, repos, scope, req.AdvanceID)
		if err != nil {
			return err
		}
		if err := source.CanTransferTo(req.NewCostCenterID); err != nil {
			return err
		}
		if err := checkCostCenter(ctx, s.costCenters, scope, req.NewCostCenterID); err != nil {
			return err
		}

		successor, err := source.Transfer(scope, req.NewCostCenterID)
		if err != nil {
			return err
		}
		if err := repos.Advances().SaveWithLock(ctx, source); err != nil {
			return err
		}
		if err := repos.Advances().Create(ctx, successor); err != nil {
			return fmt.Errorf("failed to create successor advance: %w", err)
		}
		if err := repos.Outbox().Publish(ctx, shared.DrainEvents(source, successor)...); err != nil {
			return fmt.Errorf("failed to publish transfer events: %w", err)
		}

		result = &TransferResult{
			Closed: source,
			New:    successor,
			Record: custody.NewTransferRecord(source, successor),
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(span, err)
		s.logger.Warn("Advance transfer rejected",
			zap.String("advance_id", req.AdvanceID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.RecordTransfer(ctx)
	s.metrics.RecordAdvanceIssued(ctx, result.New.Currency.String())
	s.logger.Info("Advance transferred",
		zap.String("closed_advance_id", result.Closed.ID.String()),
		zap.String("new_advance_id", result.New.ID.String()),
		zap.String("carried_amount", result.Record.CarriedAmount.String()),
	)
	return result, nil
}
