package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/config"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

type fakeGateway struct {
	results []func() (*ChargeResult, error)
	calls   int
}

func (g *fakeGateway) Charge(ctx context.Context, order *models.Order) (*ChargeResult, error) {
	g.calls++
	if len(g.results) == 0 {
		return &ChargeResult{Success: true}, nil
	}
	next := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return next()
}

func approve() func() (*ChargeResult, error) {
	return func() (*ChargeResult, error) { return &ChargeResult{Success: true}, nil }
}

func decline(msg string) func() (*ChargeResult, error) {
	return func() (*ChargeResult, error) { return &ChargeResult{Success: false, Message: msg}, nil }
}

func transport(msg string) func() (*ChargeResult, error) {
	return func() (*ChargeResult, error) { return nil, errors.New(msg) }
}

type fakeAlerter struct {
	events []string
}

func (a *fakeAlerter) Alert(ctx context.Context, event string, fields map[string]interface{}) {
	a.events = append(a.events, event)
}

func newTestStore(t *testing.T) storage.Storage {
	t.Helper()
	store, err := storage.NewSQLite(":memory:")
	if err != nil {
		t.Fatalf("failed to open in-memory store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	return store
}

func testEstimator() *Estimator {
	return NewEstimator(config.ShippingConfig{
		Methods: []config.ShippingMethodConfig{
			{Name: "standard", MaxWeightGrams: 30000, RateCents: 1500},
		},
	})
}

func newTestPipeline(store storage.Storage, gw Gateway, policy CouponPolicy, alerts queue.Alerter) *Pipeline {
	return New(store, testEstimator(), gw, policy, alerts, zerolog.Nop())
}

func seedProduct(t *testing.T, store storage.Storage, name string, priceCents int64, stock, weightGrams int) *models.Product {
	t.Helper()
	now := time.Now().UTC()
	p := &models.Product{
		ID:          models.NewID("prd"),
		Name:        name,
		PriceCents:  priceCents,
		Stock:       stock,
		TrackStock:  true,
		WeightGrams: weightGrams,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := store.CreateProduct(context.Background(), p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func seedCustomer(t *testing.T, store storage.Storage) *models.Customer {
	t.Helper()
	c := &models.Customer{
		ID:        models.NewID("cus"),
		Name:      "Maria Silva",
		Email:     "maria@example.com",
		Phone:     "+5511999990000",
		CreatedAt: time.Now().UTC(),
	}
	if err := store.CreateCustomer(context.Background(), c); err != nil {
		t.Fatalf("create customer: %v", err)
	}
	return c
}

func seedOrder(t *testing.T, store storage.Storage, customerID, couponCode string, lines []models.OrderItem) *models.Order {
	t.Helper()
	var subtotal int64
	for i := range lines {
		lines[i].ID = models.NewID("itm")
		lines[i].LineTotalCents = lines[i].UnitPriceCents * int64(lines[i].Quantity)
		subtotal += lines[i].LineTotalCents
	}
	now := time.Now().UTC()
	o := &models.Order{
		ID:            models.NewID("ord"),
		Number:        models.NewOrderNumber(),
		CustomerID:    customerID,
		Status:        models.OrderPending,
		PaymentStatus: models.PaymentUnpaid,
		SubtotalCents: subtotal,
		TotalCents:    subtotal,
		CouponCode:    couponCode,
		Items:         lines,
		ShippingAddress: models.Address{
			Name: "Maria Silva", Street: "Rua A, 10", City: "São Paulo",
			State: "SP", PostalCode: "01000-000", Country: "BR",
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("create order: %v", err)
	}
	return o
}

func orderJob(orderID string) models.Job {
	return models.Job{
		ID:           models.NewID("job"),
		Kind:         models.JobOrderPipeline,
		TargetID:     orderID,
		Queue:        models.QueueOrders,
		Status:       models.JobRunning,
		AttemptCount: 1,
	}
}

func TestPipelineHappyPathWithPercentageCoupon(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)
	shirt := seedProduct(t, store, "Camiseta", 6000, 5, 200)

	if err := store.CreateCoupon(ctx, &models.Coupon{
		ID: models.NewID("cpn"), Code: "BEMVINDO10", Type: models.CouponPercentage,
		Value: 10, MinSubtotalCents: 10000, Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	order := seedOrder(t, store, customer.ID, "BEMVINDO10", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
		{ProductID: shirt.ID, Quantity: 1, UnitPriceCents: 6000},
	})

	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, CouponLenient, &fakeAlerter{})

	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("pipeline run failed: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	if got.PaymentStatus != models.PaymentPaid {
		t.Fatalf("payment_status = %s, want paid", got.PaymentStatus)
	}
	if got.SubtotalCents != 15000 {
		t.Fatalf("subtotal = %d, want 15000", got.SubtotalCents)
	}
	if got.DiscountCents != 1500 {
		t.Fatalf("discount = %d, want 1500", got.DiscountCents)
	}
	if got.ShippingCents != 1500 {
		t.Fatalf("shipping = %d, want 1500", got.ShippingCents)
	}
	if got.TotalCents != got.SubtotalCents-got.DiscountCents+got.ShippingCents {
		t.Fatalf("total %d breaks subtotal-discount+shipping", got.TotalCents)
	}
	if gw.calls != 1 {
		t.Fatalf("gateway charged %d times, want 1", gw.calls)
	}

	gotMug, _ := store.GetProduct(ctx, mug.ID)
	if gotMug.Stock != 8 {
		t.Fatalf("mug stock = %d, want 8", gotMug.Stock)
	}

	notifications, err := store.ListNotifications(ctx, 10, 0)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("want 1 confirmation notification, got %d", len(notifications))
	}
	n := notifications[0]
	if n.Kind != "order_confirmation" || n.Channel != models.ChannelEmail {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if n.RecipientType != models.RecipientCustomer || n.RecipientID != customer.ID {
		t.Fatalf("notification recipient wrong: %+v", n)
	}
}

func TestPipelineInsufficientStockFailsBeforePayment(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mug := seedProduct(t, store, "Caneca", 4500, 1, 350)

	order := seedOrder(t, store, "", "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 3, UnitPriceCents: 4500},
	})

	gw := &fakeGateway{}
	alerts := &fakeAlerter{}
	p := newTestPipeline(store, gw, CouponLenient, alerts)

	err := p.Run(ctx, orderJob(order.ID))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !queue.IsTerminal(err) {
		t.Fatalf("stock shortage must be terminal, got %v", err)
	}
	if !errors.Is(err, storage.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock in chain", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.PaymentStatus != models.PaymentUnpaid {
		t.Fatalf("payment touched: %s", got.PaymentStatus)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called %d times on a failed reservation", gw.calls)
	}

	gotMug, _ := store.GetProduct(ctx, mug.ID)
	if gotMug.Stock != 1 {
		t.Fatalf("stock mutated: %d, want 1", gotMug.Stock)
	}

	notifications, _ := store.ListNotifications(ctx, 10, 0)
	if len(notifications) != 0 {
		t.Fatalf("confirmation enqueued for a failed order: %+v", notifications)
	}
	if len(alerts.events) != 1 || alerts.events[0] != "order_pipeline_failed" {
		t.Fatalf("expected one order_pipeline_failed alert, got %v", alerts.events)
	}
}

func TestPipelineDeclineReleasesReservations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
	})

	gw := &fakeGateway{results: []func() (*ChargeResult, error){decline("card refused")}}
	p := newTestPipeline(store, gw, CouponLenient, &fakeAlerter{})

	err := p.Run(ctx, orderJob(order.ID))
	if err == nil {
		t.Fatal("expected an error")
	}
	if !queue.IsTerminal(err) {
		t.Fatalf("a decline must be terminal, got %v", err)
	}
	if !errors.Is(err, ErrPaymentDeclined) {
		t.Fatalf("err = %v, want ErrPaymentDeclined in chain", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.PaymentStatus != models.PaymentFailed {
		t.Fatalf("payment_status = %s, want failed", got.PaymentStatus)
	}

	// The declined order keeps no hold on stock.
	gotMug, _ := store.GetProduct(ctx, mug.ID)
	if gotMug.Stock != 10 {
		t.Fatalf("stock not released after decline: %d, want 10", gotMug.Stock)
	}

	events, _ := store.ListOrderEvents(ctx, order.ID)
	found := false
	for _, e := range events {
		if strings.Contains(e.Note, "released after payment decline") {
			found = true
		}
	}
	if !found {
		t.Fatalf("release not recorded in events: %+v", events)
	}
}

func TestPipelineTransientGatewayErrorIsRetryable(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
	})

	gw := &fakeGateway{results: []func() (*ChargeResult, error){transport("connection reset"), approve()}}
	p := newTestPipeline(store, gw, CouponLenient, &fakeAlerter{})

	err := p.Run(ctx, orderJob(order.ID))
	if err == nil {
		t.Fatal("expected a transient error")
	}
	if queue.IsTerminal(err) {
		t.Fatalf("transport failure must stay retryable, got %v", err)
	}

	// Second attempt succeeds; the idempotent reservation must not
	// double-decrement stock.
	job := orderJob(order.ID)
	job.AttemptCount = 2
	if err := p.Run(ctx, job); err != nil {
		t.Fatalf("retry run failed: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	gotMug, _ := store.GetProduct(ctx, mug.ID)
	if gotMug.Stock != 8 {
		t.Fatalf("stock = %d, want 8 (reserved exactly once)", gotMug.Stock)
	}
	if gw.calls != 2 {
		t.Fatalf("gateway charged %d times, want 2", gw.calls)
	}
}

func TestPipelineCouponPolicyLenientVsStrict(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 20, 350)

	// Lenient: an unknown coupon applies zero discount and the run proceeds.
	lenientOrder := seedOrder(t, store, customer.ID, "NAOEXISTE", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 1, UnitPriceCents: 4500},
	})
	p := newTestPipeline(store, &fakeGateway{}, CouponLenient, &fakeAlerter{})
	if err := p.Run(ctx, orderJob(lenientOrder.ID)); err != nil {
		t.Fatalf("lenient run failed: %v", err)
	}
	got, _ := store.GetOrder(ctx, lenientOrder.ID)
	if got.Status != models.OrderConfirmed || got.DiscountCents != 0 {
		t.Fatalf("lenient: status=%s discount=%d", got.Status, got.DiscountCents)
	}

	// Strict: the same coupon fails the run.
	strictOrder := seedOrder(t, store, customer.ID, "NAOEXISTE", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 1, UnitPriceCents: 4500},
	})
	p = newTestPipeline(store, &fakeGateway{}, CouponStrict, &fakeAlerter{})
	err := p.Run(ctx, orderJob(strictOrder.ID))
	if err == nil {
		t.Fatal("strict run should fail on an unknown coupon")
	}
	if !errors.Is(err, ErrCouponInvalid) || !queue.IsTerminal(err) {
		t.Fatalf("err = %v, want terminal ErrCouponInvalid", err)
	}
	got, _ = store.GetOrder(ctx, strictOrder.ID)
	if got.Status != models.OrderFailed {
		t.Fatalf("strict: status = %s, want failed", got.Status)
	}
}

func TestPipelineFreeShippingCoupon(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 20, 350)

	if err := store.CreateCoupon(ctx, &models.Coupon{
		ID: models.NewID("cpn"), Code: "FRETEGRATIS", Type: models.CouponFreeShipping,
		Active: true, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("create coupon: %v", err)
	}

	order := seedOrder(t, store, customer.ID, "FRETEGRATIS", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
	})

	p := newTestPipeline(store, &fakeGateway{}, CouponLenient, &fakeAlerter{})
	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.ShippingCents != 0 {
		t.Fatalf("shipping = %d, want 0", got.ShippingCents)
	}
	if got.DiscountCents != 0 {
		t.Fatalf("free shipping should not produce a discount amount, got %d", got.DiscountCents)
	}
	if got.TotalCents != got.SubtotalCents {
		t.Fatalf("total = %d, want subtotal %d", got.TotalCents, got.SubtotalCents)
	}
}

func TestPipelineHaltsOnCancelledOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
	})
	if err := store.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled, "cancelled by customer"); err != nil {
		t.Fatalf("cancel order: %v", err)
	}

	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, CouponLenient, &fakeAlerter{})

	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("run on a cancelled order must not error: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if gw.calls != 0 {
		t.Fatalf("gateway called for a cancelled order")
	}
	gotMug, _ := store.GetProduct(ctx, mug.ID)
	if gotMug.Stock != 10 {
		t.Fatalf("stock = %d, want 10", gotMug.Stock)
	}
}

// cancellingGateway cancels the order while the charge is in flight,
// simulating a customer cancellation racing the payment step.
type cancellingGateway struct {
	store storage.Storage
}

func (g *cancellingGateway) Charge(ctx context.Context, order *models.Order) (*ChargeResult, error) {
	if err := g.store.UpdateOrderStatus(ctx, order.ID, models.OrderCancelled, "cancelled by customer"); err != nil {
		return nil, err
	}
	return &ChargeResult{Success: true}, nil
}

func TestPipelineCancelledAfterChargeAlertsOperator(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 2, UnitPriceCents: 4500},
	})

	alerts := &fakeAlerter{}
	p := newTestPipeline(store, &cancellingGateway{store: store}, CouponLenient, alerts)

	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
	if got.PaymentStatus != models.PaymentPaid {
		t.Fatalf("payment_status = %s, want paid", got.PaymentStatus)
	}

	found := false
	for _, e := range alerts.events {
		if e == "order_cancelled_after_charge" {
			found = true
		}
	}
	if !found {
		t.Fatalf("no operator alert for the captured payment: %v", alerts.events)
	}

	events, _ := store.ListOrderEvents(ctx, order.ID)
	noted := false
	for _, e := range events {
		if strings.Contains(e.Note, "manual refund") {
			noted = true
		}
	}
	if !noted {
		t.Fatalf("refund not recorded in events: %+v", events)
	}
}

func TestPipelineConfirmedOrderIsNoOp(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)
	mug := seedProduct(t, store, "Caneca", 4500, 10, 350)

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: mug.ID, Quantity: 1, UnitPriceCents: 4500},
	})
	if err := store.UpdateOrderStatus(ctx, order.ID, models.OrderConfirmed, "order confirmed"); err != nil {
		t.Fatalf("confirm order: %v", err)
	}

	gw := &fakeGateway{}
	p := newTestPipeline(store, gw, CouponLenient, &fakeAlerter{})
	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("redelivered job must be a no-op: %v", err)
	}
	if gw.calls != 0 {
		t.Fatal("gateway charged an already confirmed order")
	}
}

func TestPipelineSkipsUntrackedProducts(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	customer := seedCustomer(t, store)

	now := time.Now().UTC()
	gift := &models.Product{
		ID: models.NewID("prd"), Name: "Cartão Presente", PriceCents: 5000,
		Stock: 0, TrackStock: false, WeightGrams: 0, CreatedAt: now, UpdatedAt: now,
	}
	if err := store.CreateProduct(ctx, gift); err != nil {
		t.Fatalf("create product: %v", err)
	}

	order := seedOrder(t, store, customer.ID, "", []models.OrderItem{
		{ProductID: gift.ID, Quantity: 2, UnitPriceCents: 5000},
	})

	p := newTestPipeline(store, &fakeGateway{}, CouponLenient, &fakeAlerter{})
	if err := p.Run(ctx, orderJob(order.ID)); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	got, _ := store.GetOrder(ctx, order.ID)
	if got.Status != models.OrderConfirmed {
		t.Fatalf("status = %s, want confirmed", got.Status)
	}
	reservations, _ := store.GetReservations(ctx, order.ID)
	if len(reservations) != 0 {
		t.Fatalf("untracked product reserved: %+v", reservations)
	}
}
