package domain

import "errors"

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrCapacityExceeded  = errors.New("capacity exceeded")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrDuplicateRequest  = errors.New("duplicate request")
	ErrConflict          = errors.New("conflict")

	// ErrDataIntegrityRisk means a compensation step failed and the ledger may
	// no longer satisfy the conservation law. Requires manual reconciliation.
	ErrDataIntegrityRisk = errors.New("data integrity risk")
)

// IntegrityIncident describes a failed compensation.
type IntegrityIncident struct {
	Operation TransferKind
	ProductID string
	HolderID  string
	Quantity  int64
	Cause     string
	Rollback  string
}
