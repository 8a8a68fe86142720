package dedup

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/crewsync/fieldnotify/internal/domain"
)

// WriterConfig contains status writer configuration.
type WriterConfig struct {
	QueueSize         int
	NumWorkers        int
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
	WriteTimeout      time.Duration
}

// DefaultWriterConfig returns default writer configuration.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		QueueSize:         1024,
		NumWorkers:        2,
		MaxAttempts:       3,
		InitialBackoff:    1 * time.Second,
		MaxBackoff:        1 * time.Minute,
		BackoffMultiplier: 2.0,
		WriteTimeout:      10 * time.Second,
	}
}

type statusUpdate struct {
	eventID     string
	status      domain.EventStatus
	errorDetail string
}

// Writer flushes terminal event statuses to the durable tier in the
// background. Writes are best-effort: failures degrade observability,
// never delivery. Updates run on a detached context so an abandoned
// request cannot cancel an in-flight write.
type Writer struct {
	config WriterConfig
	repo   Repository

	queue  chan statusUpdate
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWriter creates a status writer.
func NewWriter(config WriterConfig, repo Repository) *Writer {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultWriterConfig().QueueSize
	}
	if config.NumWorkers <= 0 {
		config.NumWorkers = DefaultWriterConfig().NumWorkers
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriterConfig().WriteTimeout
	}
	return &Writer{
		config: config,
		repo:   repo,
		queue:  make(chan statusUpdate, config.QueueSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches writer goroutines.
func (w *Writer) Start() {
	slog.Info("starting status writer",
		"workers", w.config.NumWorkers,
		"queue_size", w.config.QueueSize,
	)
	for i := 0; i < w.config.NumWorkers; i++ {
		w.wg.Add(1)
		go w.run()
	}
}

// Stop gracefully stops all writers after draining queued updates.
func (w *Writer) Stop() {
	close(w.stopCh)
	w.wg.Wait()
	slog.Info("status writer stopped")
}

// Enqueue schedules a status update. Never blocks: when the queue is
// full the update is dropped and logged.
func (w *Writer) Enqueue(eventID string, status domain.EventStatus, errorDetail string) {
	select {
	case w.queue <- statusUpdate{eventID: eventID, status: status, errorDetail: errorDetail}:
		recordWriterQueueDepth(len(w.queue))
	default:
		recordWriterDropped()
		slog.Warn("status writer queue full, dropping update",
			"event_id", eventID,
			"status", status,
		)
	}
}

func (w *Writer) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.stopCh:
			// Drain remaining updates before exiting.
			for {
				select {
				case u := <-w.queue:
					w.process(u)
				default:
					return
				}
			}
		case u := <-w.queue:
			w.process(u)
			recordWriterQueueDepth(len(w.queue))
		}
	}
}

func (w *Writer) process(u statusUpdate) {
	var lastErr error
	for attempt := 1; attempt <= w.config.MaxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), w.config.WriteTimeout)
		err := w.repo.UpdateStatus(ctx, u.eventID, u.status, u.errorDetail)
		cancel()

		if err == nil {
			recordWriterFlushed(string(u.status))
			return
		}
		if errors.Is(err, ErrEventNotFound) {
			// The event was never persisted (degraded create). Nothing
			// to update.
			slog.Debug("status update for unknown event",
				"event_id", u.eventID,
				"status", u.status,
			)
			return
		}

		lastErr = err
		if attempt < w.config.MaxAttempts {
			if !w.sleep(w.backoffFor(attempt)) {
				break
			}
		}
	}

	recordWriterFailed()
	slog.Error("failed to write event status",
		"event_id", u.eventID,
		"status", u.status,
		"attempts", w.config.MaxAttempts,
		"error", lastErr,
	)
}

// backoffFor returns the backoff before the given retry attempt.
func (w *Writer) backoffFor(attempt int) time.Duration {
	backoff := float64(w.config.InitialBackoff)
	for i := 1; i < attempt; i++ {
		backoff *= w.config.BackoffMultiplier
	}
	if backoff > float64(w.config.MaxBackoff) {
		backoff = float64(w.config.MaxBackoff)
	}
	return time.Duration(backoff)
}

// sleep waits for d or until the writer stops. Returns false when
// stopped.
func (w *Writer) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-w.stopCh:
		return false
	}
}
