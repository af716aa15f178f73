package domain

// TransferState tracks a transfer request through the engine.
type TransferState string

const (
	TransferValidating TransferState = "validating"
	TransferReserving  TransferState = "reserving"
	TransferCommitting TransferState = "committing"
	TransferDone       TransferState = "done"
	TransferRejected   TransferState = "rejected"
)

type TransferKind string

const (
	TransferDistribute   TransferKind = "distribute"
	TransferRedistribute TransferKind = "redistribute"
	TransferSaleDebit    TransferKind = "sale_debit"
)

// Transfer moves Quantity units of a product into DestinationHolderID. An empty
// SourceHolderID means the units come from the product's unallocated pool.
type Transfer struct {
	Kind                TransferKind
	ProductID           string
	SourceHolderID      string
	DestinationHolderID string
	Quantity            int64
}

func (t Transfer) FromPool() bool {
	return t.SourceHolderID == ""
}

type TransferResult struct {
	Transfer            Transfer
	State               TransferState
	SourceQuantity      int64
	DestinationQuantity int64
}

// StockLine is one product/quantity pair debited from a holder.
type StockLine struct {
	ProductID string
	Quantity  int64
}
