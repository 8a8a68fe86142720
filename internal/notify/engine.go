package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/crewsync/fieldnotify/internal/config"
	"github.com/crewsync/fieldnotify/internal/dedup"
	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/ratelimit"
)

// Block reasons used in stats and metrics.
const (
	ReasonRateLimited        = "rate_limited"
	ReasonDuplicateFastCache = "duplicate_fast_cache"
	ReasonDuplicateContent   = "duplicate_content"
	ReasonDuplicatePersisted = "duplicate_persistent"
)

// Decision is the outcome of an admission check. Soft blocks (rate
// limited, duplicate) are normal outcomes, not errors.
type Decision struct {
	Allowed     bool   `json:"allowed"`
	Reason      string `json:"reason,omitempty"`
	DuplicateID string `json:"duplicate_id,omitempty"`
	// ContentConflict marks a duplicate whose content differs from the
	// original: same identity, changed message.
	ContentConflict bool `json:"content_conflict,omitempty"`
	// Degraded marks an admission made without durable dedup because
	// the durable tier was unreachable.
	Degraded  bool                      `json:"degraded,omitempty"`
	RateLimit *ratelimit.Verdict        `json:"rate_limit,omitempty"`
	Event     *domain.NotificationEvent `json:"event,omitempty"`
}

// Engine is the sole admission-control entry point. All callers route
// notifications through Decide; nothing talks to channel transports
// directly.
type Engine struct {
	cfg     config.DedupConfig
	store   *dedup.Store
	limiter *ratelimit.Limiter
	tracker *Tracker
	now     func() time.Time
}

// NewEngine creates a decision engine.
func NewEngine(cfg config.DedupConfig, store *dedup.Store, limiter *ratelimit.Limiter, tracker *Tracker) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   store,
		limiter: limiter,
		tracker: tracker,
		now:     time.Now,
	}
}

// Decide runs hashing, rate limiting and deduplication in order and
// either admits the request as a new pending event or blocks it with a
// reason. Rate limiting is evaluated before any dedup mutation so a
// rate-blocked request never burns a dedup slot.
func (e *Engine) Decide(ctx context.Context, req *domain.NotificationRequest) *Decision {
	fingerprint := Fingerprint(req.EventType, req.EntityID, req.RecipientID)
	contentHash := ContentHash(req.Content.Title, req.Content.Body, req.Content.StructuredData)

	verdict := e.limiter.Allow(req.RecipientID)
	if !verdict.Allowed {
		e.tracker.RecordDecision(false, ReasonRateLimited)
		recordDecision("blocked", ReasonRateLimited)
		return &Decision{
			Allowed: false,
			Reason: fmt.Sprintf("rate limited: scope %s at %d/%d, resets in %s",
				verdict.Scope, verdict.Current, verdict.Limit, verdict.RetryAfter.Round(time.Second)),
			RateLimit: &verdict,
		}
	}

	window := e.cfg.WindowFor(req.EventType)
	res := e.store.CheckAndReserve(ctx, fingerprint, contentHash, window)

	if !res.Reserved {
		reason := ReasonDuplicateFastCache
		switch res.Source {
		case dedup.DuplicateSourceContent:
			reason = ReasonDuplicateContent
		case dedup.DuplicateSourcePersistent:
			reason = ReasonDuplicatePersisted
		}
		if res.ContentConflict {
			// Same identity with changed content usually means a caller
			// bug or an update the caller should send as a new entity.
			slog.Warn("content conflict on duplicate notification",
				"fingerprint", fingerprint,
				"duplicate_id", res.DuplicateID,
				"content_hash", contentHash,
			)
		}
		e.tracker.RecordDecision(false, reason)
		recordDecision("blocked", reason)
		return &Decision{
			Allowed:         false,
			Reason:          fmt.Sprintf("duplicate: %s", res.Source),
			DuplicateID:     res.DuplicateID,
			ContentConflict: res.ContentConflict,
		}
	}

	priority := req.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}

	now := e.now()
	event := &domain.NotificationEvent{
		ID:          res.EventID,
		EventType:   req.EventType,
		EntityID:    req.EntityID,
		RecipientID: req.RecipientID,
		Fingerprint: fingerprint,
		ContentHash: contentHash,
		Source:      req.Source,
		Priority:    priority,
		Content:     req.Content,
		Status:      domain.EventStatusPending,
		DedupWindow: window,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	e.store.CreateEvent(ctx, event)

	e.tracker.RecordDecision(true, "")
	recordDecision("allowed", "")
	return &Decision{
		Allowed:  true,
		Degraded: res.Degraded,
		Event:    event,
	}
}

// Stats exposes aggregate counters for operational visibility.
func (e *Engine) Stats() Stats {
	return e.tracker.Stats()
}
