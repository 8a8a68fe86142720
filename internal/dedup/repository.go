// Package dedup provides two-tier notification deduplication: a fast
// in-process reservation cache backed by a durable event store.
package dedup

import (
	"context"
	"errors"
	"time"

	"github.com/crewsync/fieldnotify/internal/domain"
)

// Repository errors.
var (
	ErrEventNotFound = errors.New("notification event not found")
)

// Repository is the durable tier. It is consulted only on fast-tier
// miss and tolerates duplicate writes (idempotent by event id).
type Repository interface {
	// FindByFingerprint returns the most recent event with the given
	// fingerprint created at or after windowStart, or nil.
	FindByFingerprint(ctx context.Context, fingerprint string, windowStart time.Time) (*domain.NotificationEvent, error)

	// Create persists a new pending event.
	Create(ctx context.Context, event *domain.NotificationEvent) error

	// UpdateStatus records a terminal status. The update only applies
	// while the stored status is still pending, keeping transitions
	// monotonic under at-least-once writes.
	UpdateStatus(ctx context.Context, eventID string, status domain.EventStatus, errorDetail string) error
}
