package domain

import "time"

type Allocation struct {
	ProductID string
	HolderID  string
	Quantity  int64
	Active    bool
	Version   int64 // optimistic locking
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HolderAllocation is an allocation joined with the product it refers to.
type HolderAllocation struct {
	Allocation
	Product Product
}
