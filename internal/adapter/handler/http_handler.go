package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/core/service"
)

type HTTPHandler struct {
	catalog  *service.CatalogService
	engine   *service.TransferEngine
	sales    *service.SaleService
	validate *validator.Validate
	logger   *zap.Logger
}

type APIResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type CreateProductHTTPRequest struct {
	ID                string          `json:"id"`
	Name              string          `json:"name" validate:"required,max=255"`
	Color             string          `json:"color" validate:"max=64"`
	IMEI              string          `json:"imei" validate:"max=64"`
	Barcode           string          `json:"barcode" validate:"max=128"`
	Description       string          `json:"description"`
	Supplier          string          `json:"supplier" validate:"max=255"`
	PurchasedQuantity int64           `json:"purchased_quantity" validate:"gt=0"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

type DistributeHTTPRequest struct {
	ProductID           string `json:"product_id" validate:"required"`
	DestinationHolderID string `json:"destination_holder_id" validate:"required"`
	Quantity            int64  `json:"quantity" validate:"gt=0"`
}

type RedistributeHTTPRequest struct {
	ProductID           string `json:"product_id" validate:"required"`
	SourceHolderID      string `json:"source_holder_id" validate:"required"`
	DestinationHolderID string `json:"destination_holder_id" validate:"required,nefield=SourceHolderID"`
	Quantity            int64  `json:"quantity" validate:"gt=0"`
}

type SaleLineHTTPRequest struct {
	ProductID string           `json:"product_id" validate:"required"`
	Quantity  int64            `json:"quantity" validate:"gt=0"`
	UnitPrice *decimal.Decimal `json:"unit_price,omitempty"`
}

type RecordSaleHTTPRequest struct {
	RequestID     string                `json:"request_id" validate:"max=128"`
	HolderID      string                `json:"holder_id" validate:"required"`
	Lines         []SaleLineHTTPRequest `json:"lines" validate:"required,min=1,dive"`
	CustomerName  string                `json:"customer_name" validate:"max=255"`
	CustomerPhone string                `json:"customer_phone" validate:"max=64"`
	Notes         string                `json:"notes" validate:"max=1024"`
}

type productResponse struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Color             string          `json:"color,omitempty"`
	IMEI              string          `json:"imei,omitempty"`
	Barcode           string          `json:"barcode,omitempty"`
	Description       string          `json:"description,omitempty"`
	Supplier          string          `json:"supplier,omitempty"`
	PurchasedQuantity int64           `json:"purchased_quantity"`
	Allocated         int64           `json:"allocated"`
	Remaining         int64           `json:"remaining"`
	UnitCost          decimal.Decimal `json:"unit_cost"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
	CreatedAt         time.Time       `json:"created_at"`
}

type transferResponse struct {
	ProductID           string `json:"product_id"`
	SourceHolderID      string `json:"source_holder_id,omitempty"`
	SourceQuantity      int64  `json:"source_quantity"`
	DestinationHolderID string `json:"destination_holder_id"`
	DestinationQuantity int64  `json:"destination_quantity"`
	State               string `json:"state"`
}

type allocationResponse struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Color       string `json:"color,omitempty"`
	IMEI        string `json:"imei,omitempty"`
	Barcode     string `json:"barcode,omitempty"`
	Quantity    int64  `json:"quantity"`
	Active      bool   `json:"active"`
}

type saleLineResponse struct {
	ProductID string          `json:"product_id"`
	Quantity  int64           `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Total     decimal.Decimal `json:"total"`
}

type saleResponse struct {
	ID            string             `json:"id"`
	HolderID      string             `json:"holder_id"`
	RequestID     string             `json:"request_id,omitempty"`
	CustomerName  string             `json:"customer_name,omitempty"`
	CustomerPhone string             `json:"customer_phone,omitempty"`
	Notes         string             `json:"notes,omitempty"`
	Lines         []saleLineResponse `json:"lines"`
	Total         decimal.Decimal    `json:"total"`
	CreatedAt     time.Time          `json:"created_at"`
}

func NewHTTPHandler(catalog *service.CatalogService, engine *service.TransferEngine, sales *service.SaleService, logger *zap.Logger) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		catalog:  catalog,
		engine:   engine,
		sales:    sales,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger.Named("http"),
	}
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req CreateProductHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	product, err := h.catalog.RegisterProduct(r.Context(), domain.Product{
		ID:                req.ID,
		Name:              req.Name,
		Color:             req.Color,
		IMEI:              req.IMEI,
		Barcode:           req.Barcode,
		Description:       req.Description,
		Supplier:          req.Supplier,
		PurchasedQuantity: req.PurchasedQuantity,
		UnitCost:          req.UnitCost,
		UnitPrice:         req.UnitPrice,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Message: "product registered",
		Data:    toProductResponse(domain.ProductStock{Product: *product, Remaining: product.PurchasedQuantity}),
	})
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	stock, err := h.catalog.Stock(r.Context(), chi.URLParam(r, "productID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toProductResponse(*stock)})
}

func (h *HTTPHandler) Distribute(w http.ResponseWriter, r *http.Request) {
	var req DistributeHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.Distribute(r.Context(), req.ProductID, req.DestinationHolderID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "stock distributed",
		Data:    toTransferResponse(result),
	})
}

func (h *HTTPHandler) Redistribute(w http.ResponseWriter, r *http.Request) {
	var req RedistributeHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.engine.Redistribute(r.Context(), req.ProductID, req.SourceHolderID, req.DestinationHolderID, req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Message: "stock redistributed",
		Data:    toTransferResponse(result),
	})
}

func (h *HTTPHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	rows, err := h.catalog.HolderStock(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]allocationResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, allocationResponse{
			ProductID:   a.ProductID,
			ProductName: a.Product.Name,
			Color:       a.Product.Color,
			IMEI:        a.Product.IMEI,
			Barcode:     a.Product.Barcode,
			Quantity:    a.Quantity,
			Active:      a.Active,
		})
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (h *HTTPHandler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleHTTPRequest
	if !h.decode(w, r, &req) {
		return
	}

	lines := make([]service.SaleLineRequest, len(req.Lines))
	for i, l := range req.Lines {
		lines[i] = service.SaleLineRequest{ProductID: l.ProductID, Quantity: l.Quantity, UnitPrice: l.UnitPrice}
	}

	sale, err := h.sales.RecordSale(r.Context(), service.RecordSaleRequest{
		HolderID: req.HolderID,
		Lines:    lines,
		Metadata: domain.SaleMetadata{
			RequestID:     req.RequestID,
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Notes:         req.Notes,
		},
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, APIResponse{
		Success: true,
		Message: "sale recorded",
		Data:    toSaleResponse(*sale),
	})
}

func (h *HTTPHandler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.sales.GetSale(r.Context(), chi.URLParam(r, "saleID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: toSaleResponse(*sale)})
}

func (h *HTTPHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	sales, err := h.sales.ListSalesByHolder(r.Context(), chi.URLParam(r, "holderID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]saleResponse, 0, len(sales))
	for _, s := range sales {
		out = append(out, toSaleResponse(s))
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: out})
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Message: "invalid request body",
		})
		return false
	}

	if err := h.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, APIResponse{
			Success: false,
			Code:    "VALIDATION_ERROR",
			Message: validationMessage(err),
		})
		return false
	}
	return true
}

func validationMessage(err error) string {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return "field " + fe.Namespace() + " failed on '" + fe.Tag() + "'"
	}
	return "missing required fields"
}

// errorCode maps ledger errors to API codes. Integrity risk is checked first
// because it wraps the business error that triggered the rollback.
func errorCode(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrDataIntegrityRisk):
		return http.StatusInternalServerError, "DATA_INTEGRITY_RISK"
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, "CAPACITY_EXCEEDED"
	case errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusConflict, "INSUFFICIENT_STOCK"
	case errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict, "DUPLICATE_REQUEST"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "CONFLICT"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorCode(err)

	message := err.Error()
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.Error(err),
		)
		message = "internal error"
		if code == "DATA_INTEGRITY_RISK" {
			message = "operation failed and requires reconciliation"
		}
	}

	writeJSON(w, status, APIResponse{Success: false, Code: code, Message: message})
}

func toProductResponse(s domain.ProductStock) productResponse {
	p := s.Product
	return productResponse{
		ID:                p.ID,
		Name:              p.Name,
		Color:             p.Color,
		IMEI:              p.IMEI,
		Barcode:           p.Barcode,
		Description:       p.Description,
		Supplier:          p.Supplier,
		PurchasedQuantity: p.PurchasedQuantity,
		Allocated:         s.Allocated,
		Remaining:         s.Remaining,
		UnitCost:          p.UnitCost,
		UnitPrice:         p.UnitPrice,
		CreatedAt:         p.CreatedAt,
	}
}

func toTransferResponse(r *domain.TransferResult) transferResponse {
	return transferResponse{
		ProductID:           r.Transfer.ProductID,
		SourceHolderID:      r.Transfer.SourceHolderID,
		SourceQuantity:      r.SourceQuantity,
		DestinationHolderID: r.Transfer.DestinationHolderID,
		DestinationQuantity: r.DestinationQuantity,
		State:               string(r.State),
	}
}

func toSaleResponse(s domain.Sale) saleResponse {
	lines := make([]saleLineResponse, len(s.Lines))
	for i, l := range s.Lines {
		lines[i] = saleLineResponse{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: l.UnitPrice,
			Total:     l.Total(),
		}
	}

	return saleResponse{
		ID:            s.ID,
		HolderID:      s.HolderID,
		RequestID:     s.Metadata.RequestID,
		CustomerName:  s.Metadata.CustomerName,
		CustomerPhone: s.Metadata.CustomerPhone,
		Notes:         s.Metadata.Notes,
		Lines:         lines,
		Total:         s.Total,
		CreatedAt:     s.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
