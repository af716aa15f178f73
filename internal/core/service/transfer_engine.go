package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/port"
)

const (
	defaultOperationTimeout = 5 * time.Second
	defaultRollbackTimeout  = 10 * time.Second
)

type EngineConfig struct {
	// OperationTimeout bounds a whole distribute/redistribute/debit call
	OperationTimeout time.Duration
	// RollbackTimeout bounds compensation, which ignores caller cancellation
	RollbackTimeout time.Duration
}

// TransferEngine is the only writer of the allocation store. Multi-row
// operations hold the locks of every row they touch, and a failed step is
// compensated before the locks are released.
type TransferEngine struct {
	store    port.AllocationRepository
	catalog  *CatalogService
	locker   port.Locker
	reporter port.IntegrityReporter
	logger   *zap.Logger
	cfg      EngineConfig
}

func NewTransferEngine(
	store port.AllocationRepository,
	catalog *CatalogService,
	locker port.Locker,
	reporter port.IntegrityReporter,
	logger *zap.Logger,
	cfg EngineConfig,
) *TransferEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OperationTimeout <= 0 {
		cfg.OperationTimeout = defaultOperationTimeout
	}
	if cfg.RollbackTimeout <= 0 {
		cfg.RollbackTimeout = defaultRollbackTimeout
	}

	return &TransferEngine{
		store:    store,
		catalog:  catalog,
		locker:   locker,
		reporter: reporter,
		logger:   logger.Named("engine"),
		cfg:      cfg,
	}
}

// Distribute moves units from the product's unallocated pool to a holder.
func (e *TransferEngine) Distribute(ctx context.Context, productID, destinationHolderID string, quantity int64) (*domain.TransferResult, error) {
	run := e.begin(domain.Transfer{
		Kind:                domain.TransferDistribute,
		ProductID:           productID,
		DestinationHolderID: destinationHolderID,
		Quantity:            quantity,
	})

	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	if err := validateQuantity(quantity); err != nil {
		return nil, run.reject(err)
	}
	if err := requireID("destination holder id", destinationHolderID); err != nil {
		return nil, run.reject(err)
	}
	product, err := e.lookupProduct(ctx, productID)
	if err != nil {
		return nil, run.reject(err)
	}

	run.advance(domain.TransferReserving)
	release, err := e.locker.Acquire(ctx,
		domain.ProductScope(productID, false),
		domain.RowKey(productID, destinationHolderID),
	)
	if err != nil {
		return nil, run.reject(fmt.Errorf("acquire locks: %w", err))
	}
	defer release()

	allocated, err := e.store.SumForProduct(ctx, productID)
	if err != nil {
		return nil, run.reject(fmt.Errorf("sum allocations: %w", err))
	}
	remaining := product.PurchasedQuantity - allocated
	if quantity > remaining {
		return nil, run.reject(fmt.Errorf("%w: product %s has %d undistributed units, requested %d",
			domain.ErrCapacityExceeded, productID, remaining, quantity))
	}

	run.advance(domain.TransferCommitting)
	newQty, landed, err := e.applyStep(ctx, domain.TransferDistribute, productID, destinationHolderID, quantity)
	if err != nil {
		cause := fmt.Errorf("credit holder %s: %w", destinationHolderID, err)
		if landed {
			cause = e.compensate(ctx, domain.TransferDistribute, cause, productID, destinationHolderID, -quantity)
		}
		return nil, run.reject(cause)
	}

	run.result.DestinationQuantity = newQty
	return run.done(), nil
}

// Redistribute moves units between two holders. The product total never changes.
func (e *TransferEngine) Redistribute(ctx context.Context, productID, sourceHolderID, destinationHolderID string, quantity int64) (*domain.TransferResult, error) {
	run := e.begin(domain.Transfer{
		Kind:                domain.TransferRedistribute,
		ProductID:           productID,
		SourceHolderID:      sourceHolderID,
		DestinationHolderID: destinationHolderID,
		Quantity:            quantity,
	})

	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	if err := validateQuantity(quantity); err != nil {
		return nil, run.reject(err)
	}
	if err := requireID("source holder id", sourceHolderID); err != nil {
		return nil, run.reject(err)
	}
	if err := requireID("destination holder id", destinationHolderID); err != nil {
		return nil, run.reject(err)
	}
	if sourceHolderID == destinationHolderID {
		return nil, run.reject(fmt.Errorf("%w: source and destination holder are the same", domain.ErrValidation))
	}
	if _, err := e.lookupProduct(ctx, productID); err != nil {
		return nil, run.reject(err)
	}

	run.advance(domain.TransferReserving)
	release, err := e.locker.Acquire(ctx,
		domain.ProductScope(productID, true),
		domain.RowKey(productID, sourceHolderID),
		domain.RowKey(productID, destinationHolderID),
	)
	if err != nil {
		return nil, run.reject(fmt.Errorf("acquire locks: %w", err))
	}
	defer release()

	srcQty, landed, err := e.applyStep(ctx, domain.TransferRedistribute, productID, sourceHolderID, -quantity)
	if err != nil {
		cause := fmt.Errorf("debit holder %s: %w", sourceHolderID, err)
		if landed {
			cause = e.compensate(ctx, domain.TransferRedistribute, cause, productID, sourceHolderID, quantity)
		}
		return nil, run.reject(cause)
	}

	run.advance(domain.TransferCommitting)
	dstQty, landed, err := e.applyStep(ctx, domain.TransferRedistribute, productID, destinationHolderID, quantity)
	if err != nil {
		cause := fmt.Errorf("credit holder %s: %w", destinationHolderID, err)
		if landed {
			cause = e.compensate(ctx, domain.TransferRedistribute, cause, productID, destinationHolderID, -quantity)
		}
		return nil, run.reject(e.compensate(ctx, domain.TransferRedistribute, cause, productID, sourceHolderID, quantity))
	}

	run.result.SourceQuantity = srcQty
	run.result.DestinationQuantity = dstQty
	return run.done(), nil
}

// DebitForSale decrements every line from the holder, all or nothing.
func (e *TransferEngine) DebitForSale(ctx context.Context, holderID string, lines []domain.StockLine) error {
	return e.DebitForSaleWith(ctx, holderID, lines, nil)
}

// DebitForSaleWith debits every line and then runs commit while the rows are
// still locked. A failing line or a failing commit restores every line already
// debited before returning.
func (e *TransferEngine) DebitForSaleWith(ctx context.Context, holderID string, lines []domain.StockLine, commit func(context.Context) error) error {
	run := e.begin(domain.Transfer{
		Kind:           domain.TransferSaleDebit,
		SourceHolderID: holderID,
	})

	ctx, cancel := e.operationContext(ctx)
	defer cancel()

	if err := requireID("holder id", holderID); err != nil {
		return run.reject(err)
	}
	if len(lines) == 0 {
		return run.reject(fmt.Errorf("%w: at least one line is required", domain.ErrValidation))
	}

	keys := make([]domain.LockKey, 0, 2*len(lines))
	for _, l := range lines {
		if err := validateQuantity(l.Quantity); err != nil {
			return run.reject(err)
		}
		if _, err := e.lookupProduct(ctx, l.ProductID); err != nil {
			return run.reject(err)
		}
		run.result.Transfer.Quantity += l.Quantity
		keys = append(keys, domain.ProductScope(l.ProductID, true), domain.RowKey(l.ProductID, holderID))
	}

	run.advance(domain.TransferReserving)
	release, err := e.locker.Acquire(ctx, keys...)
	if err != nil {
		return run.reject(fmt.Errorf("acquire locks: %w", err))
	}
	defer release()

	applied := make([]domain.StockLine, 0, len(lines))
	for _, l := range lines {
		_, landed, err := e.applyStep(ctx, domain.TransferSaleDebit, l.ProductID, holderID, -l.Quantity)
		if landed {
			applied = append(applied, l)
		}
		if err != nil {
			cause := fmt.Errorf("debit product %s: %w", l.ProductID, err)
			return run.reject(e.restoreDebits(ctx, holderID, applied, cause))
		}
	}

	run.advance(domain.TransferCommitting)
	if commit != nil {
		if err := commit(ctx); err != nil {
			return run.reject(e.restoreDebits(ctx, holderID, applied, fmt.Errorf("commit sale: %w", err)))
		}
	}

	run.done()
	return nil
}

func (e *TransferEngine) Quantity(ctx context.Context, productID, holderID string) (int64, error) {
	return e.store.GetQuantity(ctx, productID, holderID)
}

// applyStep applies one delta to a locked row. A store failure other than
// insufficient stock is ambiguous, so the row is re-read to learn whether the
// write landed. landed reports a delta the caller must undo. A row that cannot
// be settled is escalated as ErrDataIntegrityRisk.
func (e *TransferEngine) applyStep(ctx context.Context, op domain.TransferKind, productID, holderID string, delta int64) (int64, bool, error) {
	before, err := e.store.GetQuantity(ctx, productID, holderID)
	if err != nil {
		return 0, false, fmt.Errorf("read allocation: %w", err)
	}

	qty, err := e.store.ApplyDelta(ctx, productID, holderID, delta)
	if err == nil {
		return qty, true, nil
	}
	if errors.Is(err, domain.ErrInsufficientStock) {
		return qty, false, err
	}

	rbCtx, cancel := e.rollbackContext(ctx)
	defer cancel()

	after, readErr := e.store.GetQuantity(rbCtx, productID, holderID)
	switch {
	case readErr != nil:
		return 0, false, e.escalate(rbCtx, op, err, productID, holderID, delta,
			fmt.Errorf("re-read allocation: %w", readErr))
	case after == before+delta:
		e.logger.Warn("write reported failure but landed",
			zap.String("operation", string(op)),
			zap.String("product_id", productID),
			zap.String("holder_id", holderID),
			zap.Int64("quantity", delta),
			zap.Error(err),
		)
		return after, true, err
	case after == before:
		return after, false, err
	default:
		return after, false, e.escalate(rbCtx, op, err, productID, holderID, delta,
			fmt.Errorf("allocation moved from %d to %d on a change of %d", before, after, delta))
	}
}

type rollbackDeadlineKey struct{}

// operationContext bounds an operation by OperationTimeout. Every compensation
// step it triggers shares one deadline RollbackTimeout later, so locks are
// never held past OperationTimeout plus RollbackTimeout.
func (e *TransferEngine) operationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	start := time.Now()
	ctx = context.WithValue(ctx, rollbackDeadlineKey{}, start.Add(e.cfg.OperationTimeout+e.cfg.RollbackTimeout))
	return context.WithDeadline(ctx, start.Add(e.cfg.OperationTimeout))
}

// rollbackContext detaches ctx from the caller's cancellation.
func (e *TransferEngine) rollbackContext(ctx context.Context) (context.Context, context.CancelFunc) {
	detached := context.WithoutCancel(ctx)
	if deadline, ok := ctx.Value(rollbackDeadlineKey{}).(time.Time); ok {
		return context.WithDeadline(detached, deadline)
	}
	return context.WithTimeout(detached, e.cfg.RollbackTimeout)
}

// restoreDebits credits back every applied line, newest first, and returns
// cause unless a credit itself failed.
func (e *TransferEngine) restoreDebits(ctx context.Context, holderID string, applied []domain.StockLine, cause error) error {
	var failures []error
	for i := len(applied) - 1; i >= 0; i-- {
		l := applied[i]
		if err := e.compensate(ctx, domain.TransferSaleDebit, cause, l.ProductID, holderID, l.Quantity); err != cause {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}
	return cause
}

// compensate applies delta to undo a step. It returns cause when the undo
// succeeds and an ErrDataIntegrityRisk error when it does not.
func (e *TransferEngine) compensate(ctx context.Context, op domain.TransferKind, cause error, productID, holderID string, delta int64) error {
	rbCtx, cancel := e.rollbackContext(ctx)
	defer cancel()

	if _, err := e.store.ApplyDelta(rbCtx, productID, holderID, delta); err != nil {
		return e.escalate(rbCtx, op, cause, productID, holderID, delta, err)
	}

	e.logger.Warn("rolled back ledger step",
		zap.String("operation", string(op)),
		zap.String("product_id", productID),
		zap.String("holder_id", holderID),
		zap.Int64("quantity", delta),
	)
	return cause
}

// escalate records a row whose state the engine can no longer vouch for.
func (e *TransferEngine) escalate(ctx context.Context, op domain.TransferKind, cause error, productID, holderID string, delta int64, failure error) error {
	e.logger.Error("CRITICAL rollback failed, ledger needs reconciliation",
		zap.String("operation", string(op)),
		zap.String("product_id", productID),
		zap.String("holder_id", holderID),
		zap.Int64("quantity", delta),
		zap.NamedError("cause", cause),
		zap.Error(failure),
	)

	if e.reporter != nil {
		incident := domain.IntegrityIncident{
			Operation: op,
			ProductID: productID,
			HolderID:  holderID,
			Quantity:  delta,
			Cause:     cause.Error(),
			Rollback:  failure.Error(),
		}
		if repErr := e.reporter.ReportIntegrityRisk(ctx, incident); repErr != nil {
			e.logger.Error("failed to report integrity incident", zap.Error(repErr))
		}
	}

	return errors.Join(
		fmt.Errorf("%w: %d units of %s for %s unsettled", domain.ErrDataIntegrityRisk, delta, productID, holderID),
		cause,
		failure,
	)
}

func (e *TransferEngine) lookupProduct(ctx context.Context, productID string) (*domain.Product, error) {
	if err := requireID("product id", productID); err != nil {
		return nil, err
	}

	product, err := e.catalog.GetProduct(ctx, productID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	return product, err
}

func validateQuantity(quantity int64) error {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", domain.ErrValidation, quantity)
	}
	return nil
}

func requireID(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("%w: %s is required", domain.ErrValidation, name)
	}
	return nil
}

type transferRun struct {
	logger *zap.Logger
	result *domain.TransferResult
}

func (e *TransferEngine) begin(t domain.Transfer) *transferRun {
	return &transferRun{
		logger: e.logger,
		result: &domain.TransferResult{Transfer: t, State: domain.TransferValidating},
	}
}

func (r *transferRun) advance(state domain.TransferState) {
	r.result.State = state
}

func (r *transferRun) fields() []zap.Field {
	t := r.result.Transfer
	return []zap.Field{
		zap.String("kind", string(t.Kind)),
		zap.String("product_id", t.ProductID),
		zap.String("source_holder_id", t.SourceHolderID),
		zap.String("destination_holder_id", t.DestinationHolderID),
		zap.Int64("quantity", t.Quantity),
	}
}

func (r *transferRun) reject(err error) error {
	fields := append(r.fields(), zap.String("stage", string(r.result.State)), zap.Error(err))
	r.result.State = domain.TransferRejected

	switch {
	case errors.Is(err, domain.ErrDataIntegrityRisk):
		// already logged as CRITICAL by escalate
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrCapacityExceeded),
		errors.Is(err, domain.ErrInsufficientStock):
		r.logger.Info("transfer rejected", fields...)
	default:
		r.logger.Error("transfer failed", fields...)
	}
	return err
}

func (r *transferRun) done() *domain.TransferResult {
	r.result.State = domain.TransferDone
	r.logger.Debug("transfer done", r.fields()...)
	return r.result
}
