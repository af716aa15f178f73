package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type SaleLine struct {
	ProductID string
	Quantity  int64
	UnitPrice decimal.Decimal
}

func (l SaleLine) Total() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(l.Quantity))
}

// SaleMetadata is customer information carried with a sale. The ledger does not
// interpret it.
type SaleMetadata struct {
	RequestID     string
	CustomerName  string
	CustomerPhone string
	Notes         string
}

type Sale struct {
	ID        string
	HolderID  string
	Metadata  SaleMetadata
	Lines     []SaleLine
	Total     decimal.Decimal
	CreatedAt time.Time
}

func NewSale(id, holderID string, metadata SaleMetadata, lines []SaleLine, at time.Time) Sale {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}

	return Sale{
		ID:        id,
		HolderID:  holderID,
		Metadata:  metadata,
		Lines:     lines,
		Total:     total,
		CreatedAt: at,
	}
}

// StockLines returns the product/quantity pairs the ledger debits for the sale.
func (s Sale) StockLines() []StockLine {
	out := make([]StockLine, len(s.Lines))
	for i, l := range s.Lines {
		out[i] = StockLine{ProductID: l.ProductID, Quantity: l.Quantity}
	}
	return out
}
