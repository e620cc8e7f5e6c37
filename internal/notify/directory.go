package notify

import (
	"context"
	"fmt"

	"github.com/shohag/orderpipe/internal/models"
	"github.com/shohag/orderpipe/internal/queue"
	"github.com/shohag/orderpipe/internal/storage"
)

// Contact is a resolved recipient's reachable addresses.
type Contact struct {
	Name      string
	Email     string
	Phone     string
	PushToken string
}

// Directory resolves a notification's recipient reference to a Contact.
// Recipient types form a closed set; anything else is rejected here and
// already at record creation.
type Directory struct {
	store storage.Storage
}

func NewDirectory(store storage.Storage) *Directory {
	return &Directory{store: store}
}

// Resolve classifies its own failures: a recipient that does not exist (or
// an unknown tag) is terminal, while a storage error stays retryable.
func (d *Directory) Resolve(ctx context.Context, n *models.Notification) (*Contact, error) {
	switch n.RecipientType {
	case models.RecipientCustomer:
		c, err := d.store.GetCustomer(ctx, n.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("look up customer %s: %w", n.RecipientID, err)
		}
		if c == nil {
			return nil, queue.Terminal(fmt.Errorf("customer %s not found", n.RecipientID))
		}
		return &Contact{Name: c.Name, Email: c.Email, Phone: c.Phone, PushToken: c.PushToken}, nil

	case models.RecipientAdmin:
		a, err := d.store.GetAdmin(ctx, n.RecipientID)
		if err != nil {
			return nil, fmt.Errorf("look up admin %s: %w", n.RecipientID, err)
		}
		if a == nil {
			return nil, queue.Terminal(fmt.Errorf("admin %s not found", n.RecipientID))
		}
		return &Contact{Name: a.Name, Email: a.Email, Phone: a.Phone}, nil

	case models.RecipientGuest:
		// Guests carry their contact inline on the record.
		return &Contact{Email: n.ContactEmail, Phone: n.ContactPhone}, nil
	}

	return nil, queue.Terminal(fmt.Errorf("unknown recipient type: %q", n.RecipientType))
}
