package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/pricing-service/pkg/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// RateLimits holds the per-user throttles of the write routes that can be
// abused: promo guessing, cart flooding and bulk sync.
type RateLimits struct {
	PromoApply *RateLimiter
	AddItem    *RateLimiter
	Sync       *RateLimiter
}

// PerMinuteLimits builds RateLimits from requests-per-minute budgets.
func PerMinuteLimits(promoApply, addItem, sync int) RateLimits {
	return RateLimits{
		PromoApply: NewRateLimiter(promoApply, time.Minute),
		AddItem:    NewRateLimiter(addItem, time.Minute),
		Sync:       NewRateLimiter(sync, time.Minute),
	}
}

// NewRouter mounts the cart and promo API under /api/v1 next to /health
// and /metrics.
func NewRouter(h *CartHandler, m *telemetry.Metrics, metricsHandler http.Handler, limits RateLimits) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware(m))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/promos/active", h.ActivePromotions)

		r.With(UserIDMiddleware).Route("/cart", func(r chi.Router) {
			r.Get("/", h.GetCart)
			r.Delete("/", h.ClearCart)
			r.Get("/summary", h.Summary)
			r.With(limits.Sync.Middleware).Post("/sync", h.SyncCart)
			r.With(limits.AddItem.Middleware).Post("/items", h.AddItem)
			r.Put("/items/{product_id}", h.UpdateQuantity)
			r.Delete("/items/{product_id}", h.RemoveItem)
			r.With(limits.PromoApply.Middleware).Post("/promo", h.ApplyPromo)
			r.Delete("/promo", h.RemovePromo)
		})
	})

	return r
}
