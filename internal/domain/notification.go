// Package domain contains core types shared across packages.
package domain

import "time"

// Priority indicates delivery urgency of a notification.
type Priority string

// Priorities.
const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// EventStatus represents the delivery status of a notification event.
// Transitions are monotonic: pending -> sent or pending -> failed.
type EventStatus string

// Event statuses.
const (
	EventStatusPending EventStatus = "pending"
	EventStatusSent    EventStatus = "sent"
	EventStatusFailed  EventStatus = "failed"
)

// Content is the displayed portion of a notification.
type Content struct {
	Title          string         `json:"title"`
	Body           string         `json:"body"`
	StructuredData map[string]any `json:"structured_data,omitempty"`
}

// NotificationRequest is the transient input to an admission decision.
// It is consumed within a single Decide call and never persisted.
type NotificationRequest struct {
	EventType   string            `json:"event_type"`
	EntityID    string            `json:"entity_id"`
	RecipientID string            `json:"recipient_id"`
	Content     Content           `json:"content"`
	Source      string            `json:"source,omitempty"`
	Priority    Priority          `json:"priority,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NotificationEvent is created for the first-seen fingerprint within a
// dedup window and updated once when delivery settles.
type NotificationEvent struct {
	ID          string      `json:"id"`
	EventType   string      `json:"event_type"`
	EntityID    string      `json:"entity_id"`
	RecipientID string      `json:"recipient_id"`
	Fingerprint string      `json:"fingerprint"`
	ContentHash string      `json:"content_hash"`
	Source      string      `json:"source,omitempty"`
	Priority    Priority    `json:"priority"`
	Content     Content     `json:"content"`
	Status      EventStatus `json:"status"`
	// DedupWindow is resolved from config when the event is created and
	// frozen on the event, so later config edits are not retroactive.
	DedupWindow time.Duration `json:"dedup_window"`
	ErrorDetail string        `json:"error_detail,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// IsTerminal reports whether the status can no longer change.
func (s EventStatus) IsTerminal() bool {
	return s == EventStatusSent || s == EventStatusFailed
}
