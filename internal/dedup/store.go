package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crewsync/fieldnotify/internal/domain"
)

// DuplicateSource indicates which tier detected a duplicate.
type DuplicateSource string

// Duplicate sources.
const (
	DuplicateSourceFastCache  DuplicateSource = "fast-cache"
	DuplicateSourceContent    DuplicateSource = "content"
	DuplicateSourcePersistent DuplicateSource = "persistent"
)

// CheckResult is the outcome of CheckAndReserve.
type CheckResult struct {
	// Reserved is true when the caller won the slot and should create
	// the event. EventID is the id assigned to the reservation.
	Reserved bool
	EventID  string

	// DuplicateID references the existing event when not reserved.
	DuplicateID string
	Source      DuplicateSource

	// ContentConflict is set when the duplicate carries a different
	// content hash than the original. Same identity, changed content
	// usually signals a caller bug or a legitimate update; it is
	// surfaced rather than silently allowed.
	ContentConflict bool

	// Degraded is set when the durable lookup failed and the request
	// was admitted dedup-blind.
	Degraded bool
}

// Stats is a snapshot of store counters.
type Stats struct {
	MemoryCacheSize     int   `json:"memory_cache_size"`
	RecentBlockedCount  int   `json:"recent_blocked_count"`
	TotalProcessedCount int64 `json:"total_processed_count"`
}

// entry is a fast-tier record for one fingerprint.
type entry struct {
	eventID     string
	contentHash string
	window      time.Duration
	createdAt   time.Time
	// reserving marks an in-flight durable lookup. Racers resolve
	// against the reservation and the sweeper must not evict it.
	reserving bool
}

// Store is the two-tier dedup store. The fast tier is authoritative for
// concurrent-request correctness within the process; the durable tier
// catches duplicates across processes and restarts.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry

	repo          Repository
	writer        *Writer
	maxHistoryAge time.Duration
	now           func() time.Time

	totalProcessed int64
	blockedAt      []time.Time
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithClock overrides the store clock.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// WithWriter attaches a status writer for async MarkSent/MarkFailed.
func WithWriter(w *Writer) StoreOption {
	return func(s *Store) { s.writer = w }
}

// NewStore creates a dedup store. repo may be nil when persistent
// storage is disabled; the store then runs on the fast tier alone.
func NewStore(repo Repository, maxHistoryAge time.Duration, opts ...StoreOption) *Store {
	s := &Store{
		entries:       make(map[string]*entry),
		repo:          repo,
		maxHistoryAge: maxHistoryAge,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CheckAndReserve atomically checks the fast tier for the fingerprint
// and reserves the slot on miss, before consulting the durable tier.
// Concurrent callers racing on one fingerprint see exactly one winner.
func (s *Store) CheckAndReserve(ctx context.Context, fingerprint, contentHash string, window time.Duration) CheckResult {
	s.mu.Lock()
	s.totalProcessed++
	now := s.now()

	if e, ok := s.entries[fingerprint]; ok {
		if e.reserving || now.Sub(e.createdAt) <= e.window {
			res := CheckResult{
				DuplicateID: e.eventID,
				Source:      DuplicateSourceFastCache,
			}
			if e.contentHash != contentHash {
				res.Source = DuplicateSourceContent
				res.ContentConflict = true
			}
			s.blockedAt = append(s.blockedAt, now)
			s.mu.Unlock()
			recordDuplicate(string(res.Source))
			return res
		}
		// Entry expired against its own frozen window: the slot is free.
	}

	e := &entry{
		eventID:     uuid.NewString(),
		contentHash: contentHash,
		window:      window,
		createdAt:   now,
		reserving:   s.repo != nil,
	}
	s.entries[fingerprint] = e
	cacheSize := len(s.entries)
	s.mu.Unlock()
	recordCacheSize(cacheSize)

	if s.repo == nil {
		return CheckResult{Reserved: true, EventID: e.eventID}
	}

	// Durable lookup runs outside the lock; the reservation placeholder
	// already blocks racers on this fingerprint.
	existing, err := s.repo.FindByFingerprint(ctx, fingerprint, now.Add(-window))

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		// Availability over strict dedup: admit rather than block all
		// notifications while the durable tier is down.
		e.reserving = false
		recordDegradedLookup()
		slog.Warn("durable dedup lookup failed, admitting dedup-blind",
			"fingerprint", fingerprint,
			"error", err,
		)
		return CheckResult{Reserved: true, EventID: e.eventID, Degraded: true}
	}

	if existing != nil {
		// Adopt the durable event into the fast tier so further racers
		// resolve without another round trip.
		s.entries[fingerprint] = &entry{
			eventID:     existing.ID,
			contentHash: existing.ContentHash,
			window:      existing.DedupWindow,
			createdAt:   existing.CreatedAt,
		}
		res := CheckResult{
			DuplicateID: existing.ID,
			Source:      DuplicateSourcePersistent,
		}
		if existing.ContentHash != contentHash {
			res.ContentConflict = true
		}
		s.blockedAt = append(s.blockedAt, now)
		recordDuplicate(string(res.Source))
		return res
	}

	e.reserving = false
	return CheckResult{Reserved: true, EventID: e.eventID}
}

// Release frees a reservation that will not turn into an event, e.g.
// when event creation is abandoned. No-op if the slot was re-taken.
func (s *Store) Release(fingerprint, eventID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[fingerprint]; ok && e.eventID == eventID {
		delete(s.entries, fingerprint)
	}
}

// CreateEvent persists the event won by a reservation. Persistence
// failures degrade cross-process dedup only, never admission.
func (s *Store) CreateEvent(ctx context.Context, event *domain.NotificationEvent) {
	if s.repo == nil {
		return
	}
	if err := s.repo.Create(ctx, event); err != nil {
		recordDegradedWrite("create")
		slog.Warn("failed to persist notification event",
			"event_id", event.ID,
			"error", err,
		)
	}
}

// MarkSent asynchronously records a successful delivery in the durable
// tier. Best-effort: failures only degrade observability.
func (s *Store) MarkSent(eventID string) {
	if s.writer == nil {
		return
	}
	s.writer.Enqueue(eventID, domain.EventStatusSent, "")
}

// MarkFailed asynchronously records a failed delivery.
func (s *Store) MarkFailed(eventID, errorDetail string) {
	if s.writer == nil {
		return
	}
	s.writer.Enqueue(eventID, domain.EventStatusFailed, errorDetail)
}

// EvictExpired removes fast-tier entries older than maxHistoryAge and
// prunes blocked timestamps past the same horizon. Entries with an
// in-flight reservation are never evicted.
func (s *Store) EvictExpired(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for fp, e := range s.entries {
		if e.reserving {
			continue
		}
		if now.Sub(e.createdAt) > s.maxHistoryAge {
			delete(s.entries, fp)
			evicted++
		}
	}

	cutoff := now.Add(-s.maxHistoryAge)
	kept := s.blockedAt[:0]
	for _, t := range s.blockedAt {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.blockedAt = kept

	recordCacheSize(len(s.entries))
	return evicted
}

// Stats returns a snapshot of store counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		MemoryCacheSize:     len(s.entries),
		RecentBlockedCount:  len(s.blockedAt),
		TotalProcessedCount: s.totalProcessed,
	}
}
