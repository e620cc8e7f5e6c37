package models

import (
	"fmt"
	"time"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelSMS      Channel = "sms"
	ChannelPush     Channel = "push"
	ChannelDatabase Channel = "database"
)

func ParseChannel(s string) (Channel, error) {
	switch Channel(s) {
	case ChannelEmail, ChannelSMS, ChannelPush, ChannelDatabase:
		return Channel(s), nil
	}
	return "", fmt.Errorf("unknown channel: %q", s)
}

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

// RecipientType is a closed set. Unknown tags are rejected when a
// notification is created, not discovered at send time.
type RecipientType string

const (
	RecipientCustomer RecipientType = "customer"
	RecipientAdmin    RecipientType = "admin"
	RecipientGuest    RecipientType = "guest"
)

func ParseRecipientType(s string) (RecipientType, error) {
	switch RecipientType(s) {
	case RecipientCustomer, RecipientAdmin, RecipientGuest:
		return RecipientType(s), nil
	}
	return "", fmt.Errorf("unknown recipient type: %q", s)
}

// Notification is one unit of outbound communication. Guests have no
// directory row, so their contact details travel inline on the record.
type Notification struct {
	ID            string             `json:"id"`
	Kind          string             `json:"kind"` // order_confirmation, password_reset, ...
	Channel       Channel            `json:"channel"`
	RecipientType RecipientType      `json:"recipient_type"`
	RecipientID   string             `json:"recipient_id,omitempty"`
	ContactEmail  string             `json:"contact_email,omitempty"`
	ContactPhone  string             `json:"contact_phone,omitempty"`
	Title         string             `json:"title"`
	Content       string             `json:"content"`
	Status        NotificationStatus `json:"status"`
	AttemptCount  int                `json:"attempt_count"`
	SentAt        *time.Time         `json:"sent_at,omitempty"`
	FailedAt      *time.Time         `json:"failed_at,omitempty"`
	Error         string             `json:"error,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
}

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	PushToken string    `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Admin struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// InboxEntry is what the database channel produces: an in-app message row.
type InboxEntry struct {
	ID             string     `json:"id"`
	CustomerID     string     `json:"customer_id"`
	NotificationID string     `json:"notification_id"`
	Title          string     `json:"title"`
	Content        string     `json:"content"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}
