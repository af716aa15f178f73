package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/middleware/stdlib"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"
)

// NewRouter mounts the HTTP API. rateLimit uses the limiter format ("200-S");
// an empty value disables rate limiting.
func NewRouter(h *HTTPHandler, logger *zap.Logger, rateLimit string) (http.Handler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger.Named("access")))
	r.Use(middleware.Recoverer)

	r.Get("/health", h.HealthCheck)

	var limit func(http.Handler) http.Handler
	if rateLimit != "" {
		rate, err := limiter.NewRateFromFormatted(rateLimit)
		if err != nil {
			return nil, fmt.Errorf("parse rate limit %q: %w", rateLimit, err)
		}
		limit = stdlib.NewMiddleware(limiter.New(memory.NewStore(), rate)).Handler
	}

	r.Route("/api", func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}

		r.Post("/products", h.CreateProduct)
		r.Get("/products/{productID}", h.GetProduct)

		r.Post("/allocations/distribute", h.Distribute)
		r.Post("/allocations/redistribute", h.Redistribute)
		r.Get("/holders/{holderID}/allocations", h.ListAllocations)
		r.Get("/holders/{holderID}/sales", h.ListSales)

		r.Post("/sales", h.RecordSale)
		r.Get("/sales/{saleID}", h.GetSale)
	})

	return r, nil
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
			)
		})
	}
}
