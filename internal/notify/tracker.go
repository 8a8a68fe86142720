package notify

import (
	"sync"
	"time"

	"github.com/crewsync/fieldnotify/internal/dedup"
)

// Stats is the operational snapshot exposed to dashboards.
type Stats struct {
	MemoryCacheSize     int              `json:"memory_cache_size"`
	RecentBlockedCount  int              `json:"recent_blocked_count"`
	TotalProcessedCount int64            `json:"total_processed_count"`
	BlockedByReason     map[string]int64 `json:"blocked_by_reason"`
}

// Tracker records terminal delivery status (pass-through to the dedup
// store's async writer) and keeps in-memory decision counters.
type Tracker struct {
	store     *dedup.Store
	retention time.Duration
	now       func() time.Time

	mu              sync.Mutex
	totalProcessed  int64
	blockedByReason map[string]int64
	blockedAt       []time.Time
}

// NewTracker creates a tracker. retention bounds how long a block
// counts as "recent".
func NewTracker(store *dedup.Store, retention time.Duration) *Tracker {
	return &Tracker{
		store:           store,
		retention:       retention,
		now:             time.Now,
		blockedByReason: make(map[string]int64),
	}
}

// RecordDecision accounts one admission decision. reason is the coarse
// block reason, empty for allowed decisions.
func (t *Tracker) RecordDecision(allowed bool, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.totalProcessed++
	if !allowed {
		t.blockedByReason[reason]++
		t.blockedAt = append(t.blockedAt, t.now())
	}
}

// MarkSent records a successful delivery, best-effort.
func (t *Tracker) MarkSent(eventID string) {
	t.store.MarkSent(eventID)
}

// MarkFailed records a failed delivery, best-effort.
func (t *Tracker) MarkFailed(eventID, errorDetail string) {
	t.store.MarkFailed(eventID, errorDetail)
}

// Stats returns the current counters merged with the store snapshot.
func (t *Tracker) Stats() Stats {
	storeStats := t.store.Stats()

	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.retention)
	kept := t.blockedAt[:0]
	for _, at := range t.blockedAt {
		if at.After(cutoff) {
			kept = append(kept, at)
		}
	}
	t.blockedAt = kept

	byReason := make(map[string]int64, len(t.blockedByReason))
	for reason, n := range t.blockedByReason {
		byReason[reason] = n
	}

	return Stats{
		MemoryCacheSize:     storeStats.MemoryCacheSize,
		RecentBlockedCount:  len(t.blockedAt),
		TotalProcessedCount: t.totalProcessed,
		BlockedByReason:     byReason,
	}
}
