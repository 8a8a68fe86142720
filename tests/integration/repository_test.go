//go:build integration

package integration

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/fieldnotify/internal/dedup"
	dedupPostgres "github.com/crewsync/fieldnotify/internal/dedup/postgres"
	"github.com/crewsync/fieldnotify/internal/domain"
)

func newStoredEvent() *domain.NotificationEvent {
	now := time.Now().UTC().Truncate(time.Millisecond)
	return &domain.NotificationEvent{
		ID:          uuid.NewString(),
		EventType:   "job.assigned",
		EntityID:    "job-" + uuid.NewString(),
		RecipientID: "worker-" + uuid.NewString(),
		Fingerprint: "fp-" + uuid.NewString(),
		ContentHash: "ch-" + uuid.NewString(),
		Source:      "repository-tests",
		Priority:    domain.PriorityNormal,
		Content: domain.Content{
			Title:          "New job",
			Body:           "Job is yours",
			StructuredData: map[string]any{"jobId": "job-42"},
		},
		Status:      domain.EventStatusPending,
		DedupWindow: 30 * time.Second,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestRepository_CreateAndFind(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))

	found, err := repo.FindByFingerprint(ctx, event.Fingerprint, event.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, found)

	assert.Equal(t, event.ID, found.ID)
	assert.Equal(t, event.EventType, found.EventType)
	assert.Equal(t, event.RecipientID, found.RecipientID)
	assert.Equal(t, event.ContentHash, found.ContentHash)
	assert.Equal(t, event.Source, found.Source)
	assert.Equal(t, domain.EventStatusPending, found.Status)
	assert.Equal(t, 30*time.Second, found.DedupWindow)
	assert.Equal(t, "job-42", found.Content.StructuredData["jobId"])
}

func TestRepository_FindOutsideWindow(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))

	// windowStart after the event's creation: not a duplicate anymore.
	found, err := repo.FindByFingerprint(ctx, event.Fingerprint, event.CreatedAt.Add(time.Second))
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestRepository_FindReturnsMostRecent(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	older := newStoredEvent()
	require.NoError(t, repo.Create(ctx, older))

	newer := newStoredEvent()
	newer.Fingerprint = older.Fingerprint
	newer.CreatedAt = older.CreatedAt.Add(time.Second)
	newer.UpdatedAt = newer.CreatedAt
	require.NoError(t, repo.Create(ctx, newer))

	found, err := repo.FindByFingerprint(ctx, older.Fingerprint, older.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, newer.ID, found.ID)
}

func TestRepository_CreateIdempotent(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))
	require.NoError(t, repo.Create(ctx, event))

	var count int
	require.NoError(t, testDB.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_events WHERE id = $1`, event.ID,
	).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRepository_UpdateStatus(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))

	require.NoError(t, repo.UpdateStatus(ctx, event.ID, domain.EventStatusSent, ""))

	found, err := repo.FindByFingerprint(ctx, event.Fingerprint, event.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.EventStatusSent, found.Status)
	assert.Empty(t, found.ErrorDetail)
}

func TestRepository_UpdateStatusMonotonic(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))
	require.NoError(t, repo.UpdateStatus(ctx, event.ID, domain.EventStatusSent, ""))

	// A late failure report must not roll a sent event back.
	require.NoError(t, repo.UpdateStatus(ctx, event.ID, domain.EventStatusFailed, "late delivery timeout"))

	found, err := repo.FindByFingerprint(ctx, event.Fingerprint, event.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.EventStatusSent, found.Status)
	assert.Empty(t, found.ErrorDetail)
}

func TestRepository_UpdateStatusWithErrorDetail(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)
	ctx := t.Context()

	event := newStoredEvent()
	require.NoError(t, repo.Create(ctx, event))
	require.NoError(t, repo.UpdateStatus(ctx, event.ID, domain.EventStatusFailed, "push: token not registered"))

	found, err := repo.FindByFingerprint(ctx, event.Fingerprint, event.CreatedAt.Add(-time.Second))
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, domain.EventStatusFailed, found.Status)
	assert.Equal(t, "push: token not registered", found.ErrorDetail)
}

func TestRepository_UpdateStatusUnknownEvent(t *testing.T) {
	repo := dedupPostgres.NewRepository(testDB)

	err := repo.UpdateStatus(t.Context(), uuid.NewString(), domain.EventStatusSent, "")
	assert.ErrorIs(t, err, dedup.ErrEventNotFound)
}
