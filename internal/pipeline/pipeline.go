// Package pipeline drives an order through its processing steps: reserve
// inventory, calculate shipping, apply discounts, charge payment, enqueue
// the confirmation notification, finalize. Any step failure leaves the order
// failed with the reason recorded as an order event.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

type Pipeline struct {
	store     storage.Storage
	estimator *Estimator
	gateway   Gateway
	policy    CouponPolicy
	alerts    queue.Alerter
	log       zerolog.Logger
}

func New(store storage.Storage, estimator *Estimator, gateway Gateway, policy CouponPolicy, alerts queue.Alerter, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		store:     store,
		estimator: estimator,
		gateway:   gateway,
		policy:    policy,
		alerts:    alerts,
		log:       log,
	}
}

// Run implements queue.Runner for order pipeline jobs.
func (p *Pipeline) Run(ctx context.Context, job models.Job) error {
	order, err := p.store.GetOrder(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("load order: %w", err)
	}
	if order == nil {
		return queue.Terminal(fmt.Errorf("order %s not found", job.TargetID))
	}

	switch order.Status {
	case models.OrderConfirmed:
		// Redelivered job for an already confirmed order.
		return nil
	case models.OrderCancelled:
		return p.halt(ctx, order)
	}

	if err := p.store.UpdateOrderStatus(ctx, order.ID, models.OrderProcessing,
		fmt.Sprintf("processing started (attempt %d)", job.AttemptCount)); err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	order.Status = models.OrderProcessing

	// Step 1: reserve inventory.
	weightGrams, err := p.reserveInventory(ctx, order)
	if err != nil {
		return p.fail(ctx, order, "inventory reservation", err)
	}

	if cancelled, err := p.checkCancelled(ctx, order); err != nil || cancelled {
		return err
	}

	// Step 2: calculate shipping.
	shipping, method, err := p.estimator.Estimate(order.ShippingAddress, weightGrams, order.SubtotalCents)
	if err != nil {
		return p.fail(ctx, order, "shipping calculation", queue.Terminal(err))
	}
	order.ShippingCents = shipping
	if err := p.store.AppendOrderEvent(ctx, order.ID,
		fmt.Sprintf("shipping via %s: %s", method, reais(shipping))); err != nil {
		return fmt.Errorf("record shipping: %w", err)
	}

	if cancelled, err := p.checkCancelled(ctx, order); err != nil || cancelled {
		return err
	}

	// Step 3: apply discounts.
	if err := p.applyDiscount(ctx, order); err != nil {
		return p.fail(ctx, order, "discount application", err)
	}
	order.TotalCents = order.SubtotalCents - order.DiscountCents + order.ShippingCents
	if err := p.store.UpdateOrderAmounts(ctx, order.ID, order.DiscountCents, order.ShippingCents, order.TotalCents); err != nil {
		return fmt.Errorf("persist amounts: %w", err)
	}
	if err := p.store.AppendOrderEvent(ctx, order.ID,
		fmt.Sprintf("totals finalized: subtotal %s, discount %s, shipping %s, total %s",
			reais(order.SubtotalCents), reais(order.DiscountCents), reais(order.ShippingCents), reais(order.TotalCents))); err != nil {
		return fmt.Errorf("record totals: %w", err)
	}

	if cancelled, err := p.checkCancelled(ctx, order); err != nil || cancelled {
		return err
	}

	// Step 4: process payment.
	if err := p.processPayment(ctx, order); err != nil {
		return p.fail(ctx, order, "payment", err)
	}

	if cancelled, err := p.checkCancelled(ctx, order); err != nil || cancelled {
		return err
	}

	// Step 5: confirmation notification. A failure here is logged and noted
	// but never aborts the order; the dispatcher retries on its own.
	if err := p.enqueueConfirmation(ctx, order); err != nil {
		p.log.Warn().Err(err).Str("order_id", order.ID).Msg("failed to enqueue confirmation notification")
		p.store.AppendOrderEvent(ctx, order.ID, fmt.Sprintf("confirmation notification not enqueued: %v", err))
	}

	// Step 6: finalize.
	if err := p.store.UpdateOrderStatus(ctx, order.ID, models.OrderConfirmed, "order confirmed"); err != nil {
		return fmt.Errorf("confirm order: %w", err)
	}

	p.log.Info().
		Str("order_id", order.ID).
		Str("number", order.Number).
		Int64("total_cents", order.TotalCents).
		Msg("order confirmed")
	return nil
}

// reserveInventory reserves every tracked line item, releasing anything
// already reserved in this run before reporting a shortage. Reservation is
// idempotent per (order, product), so a retried run confirms rather than
// double-decrements.
func (p *Pipeline) reserveInventory(ctx context.Context, order *models.Order) (int, error) {
	weightGrams := 0

	for _, item := range order.Items {
		product, err := p.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			return 0, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if product == nil {
			return 0, queue.Terminal(fmt.Errorf("product %s no longer exists", item.ProductID))
		}
		weightGrams += product.WeightGrams * item.Quantity

		if !product.TrackStock {
			continue
		}
		if err := p.store.ReserveStock(ctx, order.ID, item.ProductID, item.Quantity); err != nil {
			if rerr := p.store.ReleaseReservations(ctx, order.ID); rerr != nil {
				p.log.Error().Err(rerr).Str("order_id", order.ID).Msg("failed to release partial reservations")
			}
			if err == storage.ErrInsufficientStock {
				return 0, queue.Terminal(fmt.Errorf("%w for %s: requested %d, short on stock",
					storage.ErrInsufficientStock, product.Name, item.Quantity))
			}
			return 0, fmt.Errorf("reserve %s: %w", item.ProductID, err)
		}
	}

	return weightGrams, nil
}

func (p *Pipeline) applyDiscount(ctx context.Context, order *models.Order) error {
	order.DiscountCents = 0
	if order.CouponCode == "" {
		return nil
	}

	coupon, err := p.store.GetCouponByCode(ctx, order.CouponCode)
	if err != nil {
		return fmt.Errorf("load coupon %s: %w", order.CouponCode, err)
	}

	var reason error
	if coupon == nil {
		reason = fmt.Errorf("coupon %s not found", order.CouponCode)
	} else {
		discount, freeShipping, cerr := ComputeDiscount(coupon, order.SubtotalCents, time.Now().UTC())
		if cerr == nil {
			if freeShipping {
				order.ShippingCents = 0
				return p.store.AppendOrderEvent(ctx, order.ID,
					fmt.Sprintf("coupon %s applied: free shipping", coupon.Code))
			}
			order.DiscountCents = discount
			return p.store.AppendOrderEvent(ctx, order.ID,
				fmt.Sprintf("coupon %s applied: %s off", coupon.Code, reais(discount)))
		}
		reason = cerr
	}

	if p.policy == CouponStrict {
		return queue.Terminal(fmt.Errorf("%w: %v", ErrCouponInvalid, reason))
	}
	return p.store.AppendOrderEvent(ctx, order.ID,
		fmt.Sprintf("coupon %s not applied: %v", order.CouponCode, reason))
}

func (p *Pipeline) processPayment(ctx context.Context, order *models.Order) error {
	result, err := p.gateway.Charge(ctx, order)
	if err != nil {
		// Transport failure: payment state unknown, let the retry scheduler
		// re-run the pipeline.
		return fmt.Errorf("charge order: %w", err)
	}

	if !result.Success {
		if perr := p.store.UpdateOrderPayment(ctx, order.ID, models.PaymentFailed); perr != nil {
			return fmt.Errorf("record payment failure: %w", perr)
		}
		order.PaymentStatus = models.PaymentFailed
		// Compensating step: a declined card keeps no hold on stock.
		if rerr := p.store.ReleaseReservations(ctx, order.ID); rerr != nil {
			p.log.Error().Err(rerr).Str("order_id", order.ID).Msg("failed to release reservations after decline")
		} else {
			p.store.AppendOrderEvent(ctx, order.ID, "stock reservations released after payment decline")
		}
		return queue.Terminal(fmt.Errorf("%w: %s", ErrPaymentDeclined, result.Message))
	}

	if err := p.store.UpdateOrderPayment(ctx, order.ID, models.PaymentPaid); err != nil {
		return fmt.Errorf("record payment: %w", err)
	}
	order.PaymentStatus = models.PaymentPaid
	return p.store.AppendOrderEvent(ctx, order.ID, fmt.Sprintf("payment captured: %s", reais(order.TotalCents)))
}

func (p *Pipeline) enqueueConfirmation(ctx context.Context, order *models.Order) error {
	now := time.Now().UTC()
	n := &models.Notification{
		ID:      models.NewID("ntf"),
		Kind:    "order_confirmation",
		Channel: models.ChannelEmail,
		Title:   fmt.Sprintf("Order %s confirmed", order.Number),
		Content: fmt.Sprintf("Your order %s has been confirmed. Total: %s.", order.Number, reais(order.TotalCents)),
		Status:  models.NotificationPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if order.CustomerID != "" {
		n.RecipientType = models.RecipientCustomer
		n.RecipientID = order.CustomerID
	} else {
		n.RecipientType = models.RecipientGuest
		n.ContactEmail = order.ShippingAddress.Email
		n.ContactPhone = order.ShippingAddress.Phone
	}

	if err := p.store.CreateNotification(ctx, n); err != nil {
		return err
	}
	_, err := queue.EnqueueNotification(ctx, p.store, n.ID)
	return err
}

// checkCancelled re-reads the order status so an external cancellation stops
// the run between steps instead of racing it to completion.
func (p *Pipeline) checkCancelled(ctx context.Context, order *models.Order) (bool, error) {
	status, err := p.store.GetOrderStatus(ctx, order.ID)
	if err != nil {
		return false, fmt.Errorf("check cancellation: %w", err)
	}
	if status != models.OrderCancelled {
		return false, nil
	}
	order.Status = models.OrderCancelled
	return true, p.halt(ctx, order)
}

func (p *Pipeline) halt(ctx context.Context, order *models.Order) error {
	if err := p.store.ReleaseReservations(ctx, order.ID); err != nil {
		p.log.Error().Err(err).Str("order_id", order.ID).Msg("failed to release reservations for cancelled order")
	}

	// Cancellation after capture leaves money held with no refund flow;
	// operators have to resolve that by hand.
	if order.PaymentStatus == models.PaymentPaid {
		if p.alerts != nil {
			p.alerts.Alert(ctx, "order_cancelled_after_charge", map[string]interface{}{
				"order_id":     order.ID,
				"order_number": order.Number,
				"amount_cents": order.TotalCents,
			})
		}
		p.log.Warn().
			Str("order_id", order.ID).
			Int64("amount_cents", order.TotalCents).
			Msg("order cancelled after payment capture, manual refund required")
		return p.store.AppendOrderEvent(ctx, order.ID,
			fmt.Sprintf("processing halted: order cancelled after payment capture, %s needs manual refund", reais(order.TotalCents)))
	}

	p.log.Info().Str("order_id", order.ID).Msg("processing halted, order cancelled")
	return p.store.AppendOrderEvent(ctx, order.ID, "processing halted: order cancelled")
}

func (p *Pipeline) fail(ctx context.Context, order *models.Order, step string, err error) error {
	note := fmt.Sprintf("%s failed: %v", step, err)
	if uerr := p.store.UpdateOrderStatus(ctx, order.ID, models.OrderFailed, note); uerr != nil {
		p.log.Error().Err(uerr).Str("order_id", order.ID).Msg("failed to mark order failed")
	}

	if p.alerts != nil {
		p.alerts.Alert(ctx, "order_pipeline_failed", map[string]interface{}{
			"order_id":     order.ID,
			"order_number": order.Number,
			"step":         step,
			"error":        err.Error(),
		})
	}

	p.log.Warn().
		Str("order_id", order.ID).
		Str("step", step).
		Err(err).
		Msg("order pipeline step failed")
	return fmt.Errorf("%s: %w", step, err)
}

func reais(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%sR$ %d.%02d", sign, cents/100, cents%100)
}
