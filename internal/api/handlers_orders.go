package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

type OrderHandler struct {
	store storage.Storage
}

func NewOrderHandler(store storage.Storage) *OrderHandler {
	return &OrderHandler{store: store}
}

type createOrderRequest struct {
	CustomerID      string           `json:"customer_id"`
	CouponCode      string           `json:"coupon_code"`
	ShippingAddress models.Address   `json:"shipping_address"`
	Items           []orderItemInput `json:"items"`
}

type orderItemInput struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// Create persists a new order with price snapshots taken from the catalog
// and enqueues a pipeline run for it.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Items) == 0 {
		writeError(w, http.StatusBadRequest, "items are required")
		return
	}
	if req.ShippingAddress.Street == "" || req.ShippingAddress.Country == "" {
		writeError(w, http.StatusBadRequest, "shipping_address is required")
		return
	}
	if req.CustomerID == "" && req.ShippingAddress.Email == "" {
		writeError(w, http.StatusBadRequest, "guest orders need a contact email on the shipping address")
		return
	}

	now := time.Now().UTC()
	order := &models.Order{
		ID:              models.NewID("ord"),
		Number:          models.NewOrderNumber(),
		CustomerID:      req.CustomerID,
		Status:          models.OrderPending,
		PaymentStatus:   models.PaymentUnpaid,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	for _, in := range req.Items {
		if in.Quantity <= 0 {
			writeError(w, http.StatusBadRequest, "item quantity must be positive")
			return
		}
		product, err := h.store.GetProduct(r.Context(), in.ProductID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load product")
			return
		}
		if product == nil {
			writeError(w, http.StatusUnprocessableEntity, "unknown product: "+in.ProductID)
			return
		}

		lineTotal := product.PriceCents * int64(in.Quantity)
		order.Items = append(order.Items, models.OrderItem{
			ID:             models.NewID("itm"),
			OrderID:        order.ID,
			ProductID:      product.ID,
			Quantity:       in.Quantity,
			UnitPriceCents: product.PriceCents,
			LineTotalCents: lineTotal,
		})
		order.SubtotalCents += lineTotal
	}
	order.TotalCents = order.SubtotalCents

	if err := h.store.CreateOrder(r.Context(), order); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create order")
		return
	}

	job, err := queue.EnqueueOrder(r.Context(), h.store, order.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue order")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"order":  order,
		"job_id": job.ID,
	})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, order)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	orders, err := h.store.ListOrders(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	if orders == nil {
		orders = []models.Order{}
	}
	writeJSON(w, http.StatusOK, orders)
}

func (h *OrderHandler) Events(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	events, err := h.store.ListOrderEvents(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list order events")
		return
	}
	if events == nil {
		events = []models.OrderEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// Retry re-enqueues a failed order with a fresh retry budget.
func (h *OrderHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.Status != models.OrderFailed {
		writeError(w, http.StatusConflict, "only failed orders can be retried")
		return
	}

	// A transiently-failed order may still have its scheduled retry in the
	// queue; enqueueing a second live job would let two workers run the same
	// order concurrently.
	active, err := h.store.HasActiveJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check pending jobs")
		return
	}
	if active {
		writeError(w, http.StatusConflict, "a retry is already scheduled for this order")
		return
	}

	if err := h.store.UpdateOrderStatus(r.Context(), id, models.OrderPending, "manual retry requested"); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to reset order")
		return
	}

	job, err := queue.EnqueueOrder(r.Context(), h.store, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue order")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"order_id": id,
		"job_id":   job.ID,
	})
}

// Cancel flips the order to cancelled. A pipeline run already in flight
// notices between steps and halts.
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	order, err := h.store.GetOrder(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get order")
		return
	}
	if order == nil {
		writeError(w, http.StatusNotFound, "order not found")
		return
	}
	if order.Status == models.OrderConfirmed || order.Status == models.OrderShipped || order.Status == models.OrderDelivered {
		writeError(w, http.StatusConflict, "order can no longer be cancelled")
		return
	}

	if err := h.store.UpdateOrderStatus(r.Context(), id, models.OrderCancelled, "order cancelled"); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel order")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"order_id": id, "status": string(models.OrderCancelled)})
}
