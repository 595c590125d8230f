package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_cart/pricing-service/internal/domain"
	"github.com/fjod/go_cart/pricing-service/pkg/logger"
	"github.com/fjod/go_cart/pricing-service/pkg/telemetry"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CartManager interface {
	AddItem(ctx context.Context, userID string, productID int64, quantity int) error
	UpdateQuantity(ctx context.Context, userID string, productID int64, quantity int) error
	RemoveItem(ctx context.Context, userID string, productID int64) error
	ClearCart(ctx context.Context, userID string) error
	Summary(ctx context.Context, userID string) (domain.CartSummary, error)
	Sync(ctx context.Context, userID string, items []domain.CartItem) (int, error)
}

type PromoManager interface {
	Apply(ctx context.Context, userID, code string) (domain.CartTotal, error)
	Remove(ctx context.Context, userID string) (domain.CartTotal, error)
	Total(ctx context.Context, userID string) (domain.CartTotal, error)
	ActivePromotions(ctx context.Context, filter domain.PromotionFilter) ([]domain.PromotionSummary, error)
}

type CartHandler struct {
	carts   CartManager
	promos  PromoManager
	metrics *telemetry.Metrics
	timeout time.Duration
	maxBody int64
	logger  *zap.Logger
}

func NewCartHandler(carts CartManager, promos PromoManager, metrics *telemetry.Metrics, timeout time.Duration, maxBody int64, log *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		promos:  promos,
		metrics: metrics,
		timeout: timeout,
		maxBody: maxBody,
		logger:  log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type ApplyPromoRequestDTO struct {
	Code string `json:"code"`
}

type SyncCartResponse struct {
	ItemsAdded int              `json:"items_added"`
	Cart       domain.CartTotal `json:"cart"`
}

type ActivePromotionsResponse struct {
	Promotions []domain.PromotionSummary `json:"promotions"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	h.respondTotal(ctx, w, userID, http.StatusOK)
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	var req AddItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}

	if err := h.carts.AddItem(ctx, userID, req.ProductID, req.Quantity); err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	h.respondTotal(ctx, w, userID, http.StatusCreated)
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}
	var req UpdateQuantityRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.carts.UpdateQuantity(ctx, userID, productID, req.Quantity); err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	h.respondTotal(ctx, w, userID, http.StatusOK)
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	if err := h.carts.RemoveItem(ctx, userID, productID); err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	h.respondTotal(ctx, w, userID, http.StatusOK)
}

func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	if err := h.carts.ClearCart(ctx, userID); err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	h.respondTotal(ctx, w, userID, http.StatusOK)
}

func (h *CartHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	summary, err := h.carts.Summary(ctx, userID)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// SyncCart replaces the cart with a guest cart carried over at login.
// Unknown or inactive products are dropped rather than rejected.
func (h *CartHandler) SyncCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	var req []AddItemRequestDTO
	if !h.decode(w, r, &req) {
		return
	}
	items := make([]domain.CartItem, 0, len(req))
	for _, it := range req {
		items = append(items, domain.CartItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}

	added, err := h.carts.Sync(ctx, userID, items)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	total, err := h.promos.Total(ctx, userID)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, http.StatusOK, SyncCartResponse{ItemsAdded: added, Cart: total})
}

func (h *CartHandler) ApplyPromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	var req ApplyPromoRequestDTO
	if !h.decode(w, r, &req) {
		return
	}

	total, err := h.promos.Apply(ctx, userID, req.Code)
	h.metrics.PromoOutcomes.WithLabelValues(promoOutcome(err)).Inc()
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, http.StatusOK, total)
}

func (h *CartHandler) RemovePromo(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()
	userID := getUserIDFromContext(ctx)

	total, err := h.promos.Remove(ctx, userID)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, http.StatusOK, total)
}

// ActivePromotions serves GET /promos/active?scope=product&productId=1.
func (h *CartHandler) ActivePromotions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	filter, err := parsePromotionFilter(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	promotions, err := h.promos.ActivePromotions(ctx, filter)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, http.StatusOK, ActivePromotionsResponse{Promotions: promotions})
}

func (h *CartHandler) respondTotal(ctx context.Context, w http.ResponseWriter, userID string, status int) {
	total, err := h.promos.Total(ctx, userID)
	if err != nil {
		handleServiceError(w, h.log(ctx), err)
		return
	}
	respondJSON(w, status, total)
}

func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "request_too_large", "request body too large")
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	return true
}

func (h *CartHandler) log(ctx context.Context) *zap.Logger {
	return logger.WithContext(ctx, h.logger).With(zap.String("user_id", getUserIDFromContext(ctx)))
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}

func parsePromotionFilter(r *http.Request) (domain.PromotionFilter, error) {
	q := r.URL.Query()
	var filter domain.PromotionFilter

	switch scope := domain.PromotionScope(q.Get("scope")); scope {
	case domain.PromotionScopeAny, domain.PromotionScopeCart, domain.PromotionScopeProduct:
		filter.Scope = scope
	default:
		return filter, errors.New("scope must be cart or product")
	}

	for param, dst := range map[string]**int64{"productId": &filter.ProductID, "categoryId": &filter.CategoryID} {
		raw := q.Get(param)
		if raw == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			return filter, errors.New(param + " must be a positive integer")
		}
		*dst = &id
	}
	return filter, nil
}
