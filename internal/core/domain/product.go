package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a purchased lot. PurchasedQuantity is fixed at intake and is the
// ceiling for the sum of all allocations of the product.
type Product struct {
	ID                string
	Name              string
	Color             string
	IMEI              string
	Barcode           string
	Description       string
	Supplier          string
	PurchasedQuantity int64
	UnitCost          decimal.Decimal
	UnitPrice         decimal.Decimal
	CreatedAt         time.Time
}

// ProductStock is the catalog view of a product's distribution state.
type ProductStock struct {
	Product   Product
	Allocated int64
	Remaining int64
}
