// Package notify delivers notification records over their designated
// channel and records the outcome on the record itself.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

// ErrUnsupportedChannel reports a channel the dispatcher cannot deliver to.
// Such records fail immediately rather than being silently skipped.
var ErrUnsupportedChannel = errors.New("unsupported notification channel")

type Dispatcher struct {
	store     storage.Storage
	directory *Directory
	email     Sender
	sms       Sender
	push      Sender
	log       zerolog.Logger
}

func NewDispatcher(store storage.Storage, directory *Directory, email, sms, push Sender, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		store:     store,
		directory: directory,
		email:     email,
		sms:       sms,
		push:      push,
		log:       log,
	}
}

// Run implements queue.Runner for notification jobs.
func (d *Dispatcher) Run(ctx context.Context, job models.Job) error {
	n, err := d.store.GetNotification(ctx, job.TargetID)
	if err != nil {
		return fmt.Errorf("load notification: %w", err)
	}
	if n == nil {
		return queue.Terminal(fmt.Errorf("notification %s not found", job.TargetID))
	}
	if n.Status == models.NotificationSent {
		// Sent is terminal; a redelivered job is a no-op.
		return nil
	}

	attempt := job.AttemptCount

	// Resolve decides terminality itself: a missing recipient is terminal, a
	// storage failure looking one up is not.
	contact, err := d.directory.Resolve(ctx, n)
	if err != nil {
		return d.failed(ctx, n, attempt, err)
	}

	switch n.Channel {
	case models.ChannelEmail:
		if contact.Email == "" {
			return d.failed(ctx, n, attempt, queue.Terminal(errors.New("no email found")))
		}
		err = d.email.Send(ctx, contact.Email, n.Title, n.Content)

	case models.ChannelSMS:
		if contact.Phone == "" {
			return d.failed(ctx, n, attempt, queue.Terminal(errors.New("no phone found")))
		}
		err = d.sms.Send(ctx, contact.Phone, n.Title, n.Content)

	case models.ChannelPush:
		if contact.PushToken == "" {
			return d.failed(ctx, n, attempt, queue.Terminal(errors.New("no push token found")))
		}
		err = d.push.Send(ctx, contact.PushToken, n.Title, n.Content)

	case models.ChannelDatabase:
		err = d.storeInbox(ctx, n)

	default:
		return d.failed(ctx, n, attempt, queue.Terminal(fmt.Errorf("%w: %q", ErrUnsupportedChannel, n.Channel)))
	}

	if err != nil {
		// Sender failures are transient until the retry budget says
		// otherwise.
		return d.failed(ctx, n, attempt, err)
	}

	if err := d.store.MarkNotificationSent(ctx, n.ID, attempt); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	d.log.Info().
		Str("notification_id", n.ID).
		Str("channel", string(n.Channel)).
		Int("attempt", attempt).
		Msg("notification sent")
	return nil
}

// storeInbox handles the database channel: no external call, the message
// lands in the customer's in-app inbox.
func (d *Dispatcher) storeInbox(ctx context.Context, n *models.Notification) error {
	if n.RecipientType != models.RecipientCustomer {
		return queue.Terminal(fmt.Errorf("database channel requires a customer recipient, got %q", n.RecipientType))
	}
	return d.store.CreateInboxEntry(ctx, &models.InboxEntry{
		ID:             models.NewID("inb"),
		CustomerID:     n.RecipientID,
		NotificationID: n.ID,
		Title:          n.Title,
		Content:        n.Content,
		CreatedAt:      time.Now().UTC(),
	})
}

func (d *Dispatcher) failed(ctx context.Context, n *models.Notification, attempt int, err error) error {
	if merr := d.store.MarkNotificationFailed(ctx, n.ID, attempt, err.Error()); merr != nil {
		d.log.Error().Err(merr).Str("notification_id", n.ID).Msg("failed to record notification failure")
	}
	d.log.Warn().
		Str("notification_id", n.ID).
		Str("channel", string(n.Channel)).
		Int("attempt", attempt).
		Err(err).
		Msg("notification delivery failed")
	return err
}
