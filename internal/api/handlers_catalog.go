package api

import (
	"net/http"
	"time"

	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/storage"
)

type CatalogHandler struct {
	store storage.Storage
}

func NewCatalogHandler(store storage.Storage) *CatalogHandler {
	return &CatalogHandler{store: store}
}

type createProductRequest struct {
	Name        string `json:"name"`
	SKU         string `json:"sku"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	TrackStock  *bool  `json:"track_stock"`
	WeightGrams int    `json:"weight_grams"`
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.PriceCents <= 0 {
		writeError(w, http.StatusBadRequest, "price_cents must be positive")
		return
	}

	track := true
	if req.TrackStock != nil {
		track = *req.TrackStock
	}

	now := time.Now().UTC()
	p := &models.Product{
		ID:          models.NewID("prd"),
		Name:        req.Name,
		SKU:         req.SKU,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		TrackStock:  track,
		WeightGrams: req.WeightGrams,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.store.CreateProduct(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.store.ListProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []models.Product{}
	}
	writeJSON(w, http.StatusOK, products)
}

type createCouponRequest struct {
	Code             string     `json:"code"`
	Type             string     `json:"type"`
	Value            int64      `json:"value"`
	MinSubtotalCents int64      `json:"min_subtotal_cents"`
	MaxDiscountCents int64      `json:"max_discount_cents"`
	ExpiresAt        *time.Time `json:"expires_at"`
}

func (h *CatalogHandler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req createCouponRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}
	switch models.CouponType(req.Type) {
	case models.CouponFixed, models.CouponPercentage, models.CouponFreeShipping:
	default:
		writeError(w, http.StatusBadRequest, "type must be fixed, percentage or free_shipping")
		return
	}

	c := &models.Coupon{
		ID:               models.NewID("cpn"),
		Code:             req.Code,
		Type:             models.CouponType(req.Type),
		Value:            req.Value,
		MinSubtotalCents: req.MinSubtotalCents,
		MaxDiscountCents: req.MaxDiscountCents,
		Active:           true,
		ExpiresAt:        req.ExpiresAt,
		CreatedAt:        time.Now().UTC(),
	}

	if err := h.store.CreateCoupon(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create coupon")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (h *CatalogHandler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	coupons, err := h.store.ListCoupons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list coupons")
		return
	}
	if coupons == nil {
		coupons = []models.Coupon{}
	}
	writeJSON(w, http.StatusOK, coupons)
}

type createCustomerRequest struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	PushToken string `json:"push_token"`
}

func (h *CatalogHandler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := &models.Customer{
		ID:        models.NewID("cus"),
		Name:      req.Name,
		Email:     req.Email,
		Phone:     req.Phone,
		PushToken: req.PushToken,
		CreatedAt: time.Now().UTC(),
	}

	if err := h.store.CreateCustomer(r.Context(), c); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create customer")
		return
	}
	writeJSON(w, http.StatusCreated, c)
}
