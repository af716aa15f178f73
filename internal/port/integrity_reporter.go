package port

import (
	"context"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

type IntegrityReporter interface {
	ReportIntegrityRisk(ctx context.Context, incident domain.IntegrityIncident) error
}
