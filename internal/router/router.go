package router

import (
	"context"
	"net/http"
	"time"

	"github.com/antonminaichev/shop-settlement/internal/logger"
	"github.com/antonminaichev/shop-settlement/internal/metrics"
	"github.com/antonminaichev/shop-settlement/internal/middleware"
	"github.com/antonminaichev/shop-settlement/internal/payment"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Pinger interface {
	Ping(ctx context.Context) error
}

func NewRouter(
	paymentH *payment.Handler,
	jwtSecret []byte,
	webhookAuth middleware.SignatureVerifier,
	webhookHeader string,
	db Pinger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(chiMiddleware.RequestID)
	r.Use(logger.WithLogging)
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	// The signature covers the exact bytes on the wire, so the webhook
	// stays outside the gzip group.
	r.With(middleware.WebhookSignature(webhookAuth, webhookHeader)).
		Post("/api/payments/paystack/webhook", paymentH.Webhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.GzipHandler)
		r.Use(middleware.JWTMiddleware(jwtSecret))

		r.Post("/api/payments/init", paymentH.InitPayment)
		r.Get("/api/payments/verify/{reference}", paymentH.VerifyPayment)
		r.Get("/api/orders/my-orders", paymentH.ListOrders)

		r.With(middleware.RequireRole("admin")).
			Patch("/api/admin/orders/{reference}/payment", paymentH.AdminSetPaymentStatus)
	})

	return r
}
