package storage

import (
	"context"
	"errors"

	"github.com/shohag/orderpipe/internal/models"
)

// ErrInsufficientStock is returned by ReserveStock when a product has fewer
// units available than requested.
var ErrInsufficientStock = errors.New("insufficient stock")

type Storage interface {
	// Products
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	ListProducts(ctx context.Context) ([]models.Product, error)

	// Stock reservations. ReserveStock is idempotent per (orderID,
	// productID): a second call for the same pair confirms the existing
	// reservation instead of decrementing stock again.
	ReserveStock(ctx context.Context, orderID, productID string, quantity int) error
	ReleaseReservations(ctx context.Context, orderID string) error
	GetReservations(ctx context.Context, orderID string) ([]models.StockReservation, error)

	// Coupons
	CreateCoupon(ctx context.Context, c *models.Coupon) error
	GetCouponByCode(ctx context.Context, code string) (*models.Coupon, error)
	ListCoupons(ctx context.Context) ([]models.Coupon, error)

	// Recipient directory
	CreateCustomer(ctx context.Context, c *models.Customer) error
	GetCustomer(ctx context.Context, id string) (*models.Customer, error)
	CreateAdmin(ctx context.Context, a *models.Admin) error
	GetAdmin(ctx context.Context, id string) (*models.Admin, error)

	// Orders
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, limit, offset int) ([]models.Order, error)
	GetOrderStatus(ctx context.Context, id string) (models.OrderStatus, error)
	UpdateOrderStatus(ctx context.Context, id string, status models.OrderStatus, note string) error
	UpdateOrderPayment(ctx context.Context, id string, status models.PaymentStatus) error
	UpdateOrderAmounts(ctx context.Context, id string, discountCents, shippingCents, totalCents int64) error
	AppendOrderEvent(ctx context.Context, orderID, note string) error
	ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error)

	// Notifications
	CreateNotification(ctx context.Context, n *models.Notification) error
	GetNotification(ctx context.Context, id string) (*models.Notification, error)
	ListNotifications(ctx context.Context, limit, offset int) ([]models.Notification, error)
	MarkNotificationSent(ctx context.Context, id string, attempt int) error
	MarkNotificationFailed(ctx context.Context, id string, attempt int, errMsg string) error
	CreateInboxEntry(ctx context.Context, e *models.InboxEntry) error
	ListInbox(ctx context.Context, customerID string) ([]models.InboxEntry, error)

	// Jobs. HasActiveJob reports whether a pending, running or retrying job
	// already targets the given record, so callers can avoid enqueueing a
	// second live run for the same target.
	CreateJob(ctx context.Context, j *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ClaimDueJobs(ctx context.Context, queue string, limit int) ([]models.Job, error)
	UpdateJob(ctx context.Context, j *models.Job) error
	HasActiveJob(ctx context.Context, targetID string) (bool, error)

	// Stats
	GetStats(ctx context.Context) (*Stats, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

type Stats struct {
	TotalOrders        int64 `json:"total_orders"`
	ConfirmedOrders    int64 `json:"confirmed_orders"`
	FailedOrders       int64 `json:"failed_orders"`
	PendingOrders      int64 `json:"pending_orders"`
	TotalNotifications int64 `json:"total_notifications"`
	SentNotifications  int64 `json:"sent_notifications"`
	FailedNotifications int64 `json:"failed_notifications"`
	QueuedJobs         int64 `json:"queued_jobs"`
	FailedJobs         int64 `json:"failed_jobs"`
}
