package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/safar/checkout-lifecycle/internal/metrics"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(h *Handler, db Pinger) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(withLogging)
	r.Use(metrics.Middleware)

	r.Get("/health", health(db))
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/{id}", h.GetOrder)
		r.Get("/number/{number}", h.GetOrderByNumber)
		r.Post("/{id}/payment-evidence", h.SubmitPaymentEvidence)
	})
	r.Get("/customers/{id}/orders", h.ListCustomerOrders)
	r.Get("/payment-settings", h.GetPaymentSettings)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Get("/orders", h.ListOrders)
		r.Post("/orders/{id}/verify", h.VerifyPayment)
		r.Put("/orders/{id}/status", h.UpdateFulfillmentStatus)
		r.Delete("/orders/{id}", h.DeleteOrder)
		r.Put("/payment-settings", h.UpdatePaymentSettings)
	})

	return r
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	})
}

func health(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := db.Ping(ctx); err != nil {
			slog.Warn("health check failed", "error", err)
			respondError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
