// Package postgres provides the PostgreSQL implementation of the
// durable dedup tier.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crewsync/fieldnotify/internal/dedup"
	"github.com/crewsync/fieldnotify/internal/domain"
)

// Repository implements dedup.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// FindByFingerprint returns the most recent event with the fingerprint
// created at or after windowStart, or nil when none exists.
func (r *Repository) FindByFingerprint(ctx context.Context, fingerprint string, windowStart time.Time) (*domain.NotificationEvent, error) {
	query := `
		SELECT id, event_type, entity_id, recipient_id, fingerprint, content_hash,
		       source, priority, title, body, structured_data, status,
		       dedup_window_ms, error_detail, created_at, updated_at
		FROM notification_events
		WHERE fingerprint = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`
	event, err := scanEvent(r.db.QueryRow(ctx, query, fingerprint, windowStart))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find event by fingerprint: %w", err)
	}
	return event, nil
}

// Create persists a new event. Idempotent by event id so at-least-once
// callers never fail on replay.
func (r *Repository) Create(ctx context.Context, event *domain.NotificationEvent) error {
	query := `
		INSERT INTO notification_events (
			id, event_type, entity_id, recipient_id, fingerprint, content_hash,
			source, priority, title, body, structured_data, status,
			dedup_window_ms, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		event.EventType,
		event.EntityID,
		event.RecipientID,
		event.Fingerprint,
		event.ContentHash,
		event.Source,
		event.Priority,
		event.Content.Title,
		event.Content.Body,
		event.Content.StructuredData,
		event.Status,
		event.DedupWindow.Milliseconds(),
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

// UpdateStatus records a terminal status. The update only applies while
// the stored status is pending, keeping transitions monotonic.
func (r *Repository) UpdateStatus(ctx context.Context, eventID string, status domain.EventStatus, errorDetail string) error {
	query := `
		UPDATE notification_events
		SET status = $2, error_detail = NULLIF($3, ''), updated_at = NOW()
		WHERE id = $1 AND status = 'pending'
	`
	result, err := r.db.Exec(ctx, query, eventID, status, errorDetail)
	if err != nil {
		return fmt.Errorf("update event status: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	// Either the event is unknown or already terminal. Terminal is fine
	// under at-least-once writes.
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM notification_events WHERE id = $1)`, eventID,
	).Scan(&exists); err != nil {
		return fmt.Errorf("check event existence: %w", err)
	}
	if !exists {
		return dedup.ErrEventNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*domain.NotificationEvent, error) {
	var (
		event       domain.NotificationEvent
		windowMs    int64
		source      *string
		errorDetail *string
	)
	err := row.Scan(
		&event.ID,
		&event.EventType,
		&event.EntityID,
		&event.RecipientID,
		&event.Fingerprint,
		&event.ContentHash,
		&source,
		&event.Priority,
		&event.Content.Title,
		&event.Content.Body,
		&event.Content.StructuredData,
		&event.Status,
		&windowMs,
		&errorDetail,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	event.DedupWindow = time.Duration(windowMs) * time.Millisecond
	if source != nil {
		event.Source = *source
	}
	if errorDetail != nil {
		event.ErrorDetail = *errorDetail
	}
	return &event, nil
}
