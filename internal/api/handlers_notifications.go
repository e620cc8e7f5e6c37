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

type NotificationHandler struct {
	store storage.Storage
}

func NewNotificationHandler(store storage.Storage) *NotificationHandler {
	return &NotificationHandler{store: store}
}

type createNotificationRequest struct {
	Kind          string `json:"kind"`
	Channel       string `json:"channel"`
	RecipientType string `json:"recipient_type"`
	RecipientID   string `json:"recipient_id"`
	ContactEmail  string `json:"contact_email"`
	ContactPhone  string `json:"contact_phone"`
	Title         string `json:"title"`
	Content       string `json:"content"`
}

func (h *NotificationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Kind == "" {
		writeError(w, http.StatusBadRequest, "kind is required")
		return
	}

	channel, err := models.ParseChannel(req.Channel)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Unknown recipient tags are rejected here, not at send time.
	recipientType, err := models.ParseRecipientType(req.RecipientType)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if recipientType != models.RecipientGuest && req.RecipientID == "" {
		writeError(w, http.StatusBadRequest, "recipient_id is required")
		return
	}

	now := time.Now().UTC()
	n := &models.Notification{
		ID:            models.NewID("ntf"),
		Kind:          req.Kind,
		Channel:       channel,
		RecipientType: recipientType,
		RecipientID:   req.RecipientID,
		ContactEmail:  req.ContactEmail,
		ContactPhone:  req.ContactPhone,
		Title:         req.Title,
		Content:       req.Content,
		Status:        models.NotificationPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := h.store.CreateNotification(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create notification")
		return
	}

	job, err := queue.EnqueueNotification(r.Context(), h.store, n.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue notification")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"notification": n,
		"job_id":       job.ID,
	})
}

func (h *NotificationHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	notifications, err := h.store.ListNotifications(r.Context(), limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list notifications")
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// Retry re-enqueues a failed notification; a later success moves it
// failed → sent.
func (h *NotificationHandler) Retry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	n, err := h.store.GetNotification(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get notification")
		return
	}
	if n == nil {
		writeError(w, http.StatusNotFound, "notification not found")
		return
	}
	if n.Status != models.NotificationFailed {
		writeError(w, http.StatusConflict, "only failed notifications can be retried")
		return
	}

	// The record flips to failed on every failed attempt while its job may
	// still be retrying; don't stack a second live job on top of it.
	active, err := h.store.HasActiveJob(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check pending jobs")
		return
	}
	if active {
		writeError(w, http.StatusConflict, "a retry is already scheduled for this notification")
		return
	}

	job, err := queue.EnqueueNotification(r.Context(), h.store, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to enqueue notification")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"notification_id": id,
		"job_id":          job.ID,
	})
}

func (h *NotificationHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	customerID := chi.URLParam(r, "customerID")
	entries, err := h.store.ListInbox(r.Context(), customerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list inbox")
		return
	}
	if entries == nil {
		entries = []models.InboxEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
