package handler

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/allocation-ledger/internal/adapter/handler/pb"
	"github.com/rl1809/allocation-ledger/internal/core/domain"
	"github.com/rl1809/allocation-ledger/internal/core/service"
)

type GRPCHandler struct {
	pb.UnimplementedAllocationLedgerServer
	catalog *service.CatalogService
	engine  *service.TransferEngine
	sales   *service.SaleService
	logger  *zap.Logger
}

func NewGRPCHandler(catalog *service.CatalogService, engine *service.TransferEngine, sales *service.SaleService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{
		catalog: catalog,
		engine:  engine,
		sales:   sales,
		logger:  logger.Named("grpc"),
	}
}

func (h *GRPCHandler) Distribute(ctx context.Context, req *pb.DistributeRequest) (*pb.TransferResponse, error) {
	result, err := h.engine.Distribute(ctx, req.GetProductId(), req.GetDestinationHolderId(), req.GetQuantity())
	if err != nil {
		code, message, rpcErr := h.rejection("Distribute", err)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return &pb.TransferResponse{Success: false, Code: code, Message: message}, nil
	}

	return &pb.TransferResponse{
		Success:             true,
		Message:             "stock distributed",
		DestinationQuantity: result.DestinationQuantity,
	}, nil
}

func (h *GRPCHandler) Redistribute(ctx context.Context, req *pb.RedistributeRequest) (*pb.TransferResponse, error) {
	result, err := h.engine.Redistribute(ctx, req.GetProductId(), req.GetSourceHolderId(), req.GetDestinationHolderId(), req.GetQuantity())
	if err != nil {
		code, message, rpcErr := h.rejection("Redistribute", err)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return &pb.TransferResponse{Success: false, Code: code, Message: message}, nil
	}

	return &pb.TransferResponse{
		Success:             true,
		Message:             "stock redistributed",
		SourceQuantity:      result.SourceQuantity,
		DestinationQuantity: result.DestinationQuantity,
	}, nil
}

func (h *GRPCHandler) RecordSale(ctx context.Context, req *pb.RecordSaleRequest) (*pb.RecordSaleResponse, error) {
	lines := make([]service.SaleLineRequest, 0, len(req.GetLines()))
	for _, l := range req.GetLines() {
		if l == nil {
			continue
		}
		line := service.SaleLineRequest{ProductID: l.ProductId, Quantity: l.Quantity}
		if l.UnitPrice != "" {
			price, err := decimal.NewFromString(l.UnitPrice)
			if err != nil {
				return &pb.RecordSaleResponse{
					Success: false,
					Code:    "VALIDATION_ERROR",
					Message: "invalid unit_price " + l.UnitPrice,
				}, nil
			}
			line.UnitPrice = &price
		}
		lines = append(lines, line)
	}

	sale, err := h.sales.RecordSale(ctx, service.RecordSaleRequest{
		HolderID: req.GetHolderId(),
		Lines:    lines,
		Metadata: domain.SaleMetadata{
			RequestID:     req.GetRequestId(),
			CustomerName:  req.CustomerName,
			CustomerPhone: req.CustomerPhone,
			Notes:         req.Notes,
		},
	})
	if err != nil {
		code, message, rpcErr := h.rejection("RecordSale", err)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return &pb.RecordSaleResponse{Success: false, Code: code, Message: message}, nil
	}

	return &pb.RecordSaleResponse{
		Success:   true,
		Message:   "sale recorded",
		SaleId:    sale.ID,
		Total:     sale.Total.String(),
		CreatedAt: sale.CreatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (h *GRPCHandler) ListAllocations(ctx context.Context, req *pb.ListAllocationsRequest) (*pb.ListAllocationsResponse, error) {
	rows, err := h.catalog.HolderStock(ctx, req.GetHolderId())
	if err != nil {
		code, message, rpcErr := h.rejection("ListAllocations", err)
		if rpcErr != nil {
			return nil, rpcErr
		}
		return &pb.ListAllocationsResponse{Success: false, Code: code, Message: message}, nil
	}

	out := make([]*pb.Allocation, 0, len(rows))
	for _, a := range rows {
		out = append(out, &pb.Allocation{
			ProductId:   a.ProductID,
			ProductName: a.Product.Name,
			Quantity:    a.Quantity,
			Active:      a.Active,
		})
	}

	return &pb.ListAllocationsResponse{Success: true, Allocations: out}, nil
}

// rejection turns business errors into an unsuccessful response body and
// everything else into a gRPC status.
func (h *GRPCHandler) rejection(method string, err error) (string, string, error) {
	switch {
	case errors.Is(err, domain.ErrDataIntegrityRisk):
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
		return "", "", status.Error(codes.DataLoss, "operation failed and requires reconciliation")
	case errors.Is(err, domain.ErrValidation):
		return "VALIDATION_ERROR", err.Error(), nil
	case errors.Is(err, domain.ErrNotFound):
		return "NOT_FOUND", err.Error(), nil
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "CAPACITY_EXCEEDED", "capacity exceeded", nil
	case errors.Is(err, domain.ErrInsufficientStock):
		return "INSUFFICIENT_STOCK", "insufficient stock", nil
	case errors.Is(err, domain.ErrDuplicateRequest):
		return "DUPLICATE_REQUEST", "duplicate request", nil
	case errors.Is(err, context.DeadlineExceeded):
		return "", "", status.Error(codes.DeadlineExceeded, "operation timed out")
	case errors.Is(err, context.Canceled):
		return "", "", status.Error(codes.Canceled, "operation canceled")
	default:
		h.logger.Error("rpc failed", zap.String("method", method), zap.Error(err))
		return "", "", status.Error(codes.Internal, "internal error")
	}
}
