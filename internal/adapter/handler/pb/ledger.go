// Package pb holds the message types and service descriptor of the
// ledger.v1.AllocationLedger gRPC API. Messages travel as JSON through the
// codec registered by this package.
package pb

type DistributeRequest struct {
	ProductId           string `json:"product_id,omitempty"`
	DestinationHolderId string `json:"destination_holder_id,omitempty"`
	Quantity            int64  `json:"quantity,omitempty"`
}

func (x *DistributeRequest) GetProductId() string {
	if x != nil {
		return x.ProductId
	}
	return ""
}

func (x *DistributeRequest) GetDestinationHolderId() string {
	if x != nil {
		return x.DestinationHolderId
	}
	return ""
}

func (x *DistributeRequest) GetQuantity() int64 {
	if x != nil {
		return x.Quantity
	}
	return 0
}

type RedistributeRequest struct {
	ProductId           string `json:"product_id,omitempty"`
	SourceHolderId      string `json:"source_holder_id,omitempty"`
	DestinationHolderId string `json:"destination_holder_id,omitempty"`
	Quantity            int64  `json:"quantity,omitempty"`
}

func (x *RedistributeRequest) GetProductId() string {
	if x != nil {
		return x.ProductId
	}
	return ""
}

func (x *RedistributeRequest) GetSourceHolderId() string {
	if x != nil {
		return x.SourceHolderId
	}
	return ""
}

func (x *RedistributeRequest) GetDestinationHolderId() string {
	if x != nil {
		return x.DestinationHolderId
	}
	return ""
}

func (x *RedistributeRequest) GetQuantity() int64 {
	if x != nil {
		return x.Quantity
	}
	return 0
}

type TransferResponse struct {
	Success             bool   `json:"success,omitempty"`
	Code                string `json:"code,omitempty"`
	Message             string `json:"message,omitempty"`
	SourceQuantity      int64  `json:"source_quantity,omitempty"`
	DestinationQuantity int64  `json:"destination_quantity,omitempty"`
}

func (x *TransferResponse) GetSuccess() bool {
	if x != nil {
		return x.Success
	}
	return false
}

func (x *TransferResponse) GetCode() string {
	if x != nil {
		return x.Code
	}
	return ""
}

// SaleLine carries UnitPrice as a decimal string; empty means catalog price.
type SaleLine struct {
	ProductId string `json:"product_id,omitempty"`
	Quantity  int64  `json:"quantity,omitempty"`
	UnitPrice string `json:"unit_price,omitempty"`
}

type RecordSaleRequest struct {
	RequestId     string      `json:"request_id,omitempty"`
	HolderId      string      `json:"holder_id,omitempty"`
	Lines         []*SaleLine `json:"lines,omitempty"`
	CustomerName  string      `json:"customer_name,omitempty"`
	CustomerPhone string      `json:"customer_phone,omitempty"`
	Notes         string      `json:"notes,omitempty"`
}

func (x *RecordSaleRequest) GetRequestId() string {
	if x != nil {
		return x.RequestId
	}
	return ""
}

func (x *RecordSaleRequest) GetHolderId() string {
	if x != nil {
		return x.HolderId
	}
	return ""
}

func (x *RecordSaleRequest) GetLines() []*SaleLine {
	if x != nil {
		return x.Lines
	}
	return nil
}

type RecordSaleResponse struct {
	Success   bool   `json:"success,omitempty"`
	Code      string `json:"code,omitempty"`
	Message   string `json:"message,omitempty"`
	SaleId    string `json:"sale_id,omitempty"`
	Total     string `json:"total,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

func (x *RecordSaleResponse) GetSuccess() bool {
	if x != nil {
		return x.Success
	}
	return false
}

func (x *RecordSaleResponse) GetCode() string {
	if x != nil {
		return x.Code
	}
	return ""
}

type ListAllocationsRequest struct {
	HolderId string `json:"holder_id,omitempty"`
}

func (x *ListAllocationsRequest) GetHolderId() string {
	if x != nil {
		return x.HolderId
	}
	return ""
}

type Allocation struct {
	ProductId   string `json:"product_id,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	Quantity    int64  `json:"quantity,omitempty"`
	Active      bool   `json:"active,omitempty"`
}

type ListAllocationsResponse struct {
	Success     bool          `json:"success,omitempty"`
	Code        string        `json:"code,omitempty"`
	Message     string        `json:"message,omitempty"`
	Allocations []*Allocation `json:"allocations,omitempty"`
}

func (x *ListAllocationsResponse) GetAllocations() []*Allocation {
	if x != nil {
		return x.Allocations
	}
	return nil
}
