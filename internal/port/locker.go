package port

import (
	"context"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
)

type Locker interface {
	// Acquire blocks until every key is held, taking them in domain.CanonicalLockOrder.
	// The returned release func is safe to call once.
	Acquire(ctx context.Context, keys ...domain.LockKey) (release func(), err error)
}
