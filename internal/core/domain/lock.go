package domain

import (
	"sort"
	"strconv"
)

// LockKey names a lockable ledger resource. An empty HolderID addresses the
// product scope, which guards the distribution ceiling.
type LockKey struct {
	ProductID string
	HolderID  string
	Shared    bool
}

func ProductScope(productID string, shared bool) LockKey {
	return LockKey{ProductID: productID, Shared: shared}
}

func RowKey(productID, holderID string) LockKey {
	return LockKey{ProductID: productID, HolderID: holderID}
}

// Name is unique per key. The product id is length-prefixed so ids containing
// the separator cannot alias another key.
func (k LockKey) Name() string {
	product := strconv.Itoa(len(k.ProductID)) + ":" + k.ProductID
	if k.HolderID == "" {
		return "product:" + product
	}
	return "row:" + product + ":" + k.HolderID
}

// CanonicalLockOrder sorts keys by product, product scope first, then holder,
// and merges duplicates. An exclusive request wins over a shared one.
func CanonicalLockOrder(keys []LockKey) []LockKey {
	merged := make(map[string]LockKey, len(keys))
	for _, k := range keys {
		if prev, ok := merged[k.Name()]; ok {
			k.Shared = prev.Shared && k.Shared
		}
		merged[k.Name()] = k
	}

	out := make([]LockKey, 0, len(merged))
	for _, k := range merged {
		out = append(out, k)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductID != out[j].ProductID {
			return out[i].ProductID < out[j].ProductID
		}
		return out[i].HolderID < out[j].HolderID
	})

	return out
}
