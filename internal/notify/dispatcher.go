package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/crewsync/fieldnotify/internal/domain"
)

// Payload is the channel-neutral message handed to senders.
type Payload struct {
	EventID   string          `json:"event_id"`
	EventType string          `json:"event_type"`
	EntityID  string          `json:"entity_id"`
	Priority  domain.Priority `json:"priority"`
	Title     string          `json:"title"`
	Body      string          `json:"body"`
	Data      map[string]any  `json:"data,omitempty"`
}

// Sender delivers a payload over one channel type. Implementations are
// provider-specific; the dispatcher treats them uniformly.
type Sender interface {
	Type() domain.ChannelType
	Send(ctx context.Context, address string, payload Payload) error
}

// RecipientDirectory resolves delivery preferences and channel
// addresses. It is an external collaborator; lookups can fail and a
// failure is a hard error for the dispatch operation.
type RecipientDirectory interface {
	GetProfile(ctx context.Context, recipientID string) (*domain.RecipientProfile, error)
}

// ChannelOutcome counts per-channel delivery results.
type ChannelOutcome struct {
	Success int `json:"success"`
	Failed  int `json:"failed"`
}

// DeliveryResult aggregates per-channel outcomes of one dispatch.
// Delivery failure is reported separately from admission: a result with
// zero successes is still a completed dispatch.
type DeliveryResult struct {
	EventID    string                                `json:"event_id"`
	PerChannel map[domain.ChannelType]ChannelOutcome `json:"per_channel"`
	Errors     []string                              `json:"errors,omitempty"`
	Delivered  bool                                  `json:"delivered"`
}

// Dispatcher fans an admitted event out to every applicable channel
// concurrently. One channel's failure never blocks another.
type Dispatcher struct {
	directory RecipientDirectory
	tracker   *Tracker
	senders   map[domain.ChannelType]Sender
}

// NewDispatcher creates a dispatcher over the given senders.
func NewDispatcher(directory RecipientDirectory, tracker *Tracker, senders ...Sender) *Dispatcher {
	senderMap := make(map[domain.ChannelType]Sender)
	for _, s := range senders {
		senderMap[s.Type()] = s
	}
	return &Dispatcher{
		directory: directory,
		tracker:   tracker,
		senders:   senderMap,
	}
}

// Dispatch delivers the event to all channels the recipient has enabled
// and registered, joins on completion of all of them, and records the
// terminal status: sent when at least one channel succeeded, failed
// otherwise. The only hard error is a recipient profile lookup failure.
func (d *Dispatcher) Dispatch(ctx context.Context, event *domain.NotificationEvent, recipientID string) (*DeliveryResult, error) {
	profile, err := d.directory.GetProfile(ctx, recipientID)
	if err != nil {
		return nil, fmt.Errorf("resolve recipient profile: %w", err)
	}

	result := &DeliveryResult{
		EventID:    event.ID,
		PerChannel: make(map[domain.ChannelType]ChannelOutcome),
	}

	payload := Payload{
		EventID:   event.ID,
		EventType: event.EventType,
		EntityID:  event.EntityID,
		Priority:  event.Priority,
		Title:     event.Content.Title,
		Body:      event.Content.Body,
		Data:      event.Content.StructuredData,
	}

	targets := d.applicableTargets(event, profile)
	if len(targets) == 0 {
		slog.Info("no deliverable channels for recipient",
			"event_id", event.ID,
			"recipient_id", recipientID,
		)
		result.Errors = append(result.Errors, "no deliverable channels")
		d.tracker.MarkFailed(event.ID, "no deliverable channels")
		recordDelivery("no_channels")
		return result, nil
	}

	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)

	for _, target := range targets {
		wg.Add(1)
		go func(sender Sender, address string) {
			defer wg.Done()

			start := time.Now()
			err := d.send(ctx, sender, address, payload)
			duration := time.Since(start)

			channelType := sender.Type()
			recordChannelSend(string(channelType), err == nil, duration)

			mu.Lock()
			defer mu.Unlock()
			outcome := result.PerChannel[channelType]
			if err != nil {
				outcome.Failed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", channelType, err))
				slog.Error("channel delivery failed",
					"event_id", event.ID,
					"channel_type", channelType,
					"error", err,
				)
			} else {
				outcome.Success++
				slog.Debug("channel delivery succeeded",
					"event_id", event.ID,
					"channel_type", channelType,
					"duration", duration,
				)
			}
			result.PerChannel[channelType] = outcome
		}(target.sender, target.address)
	}

	wg.Wait()

	for _, outcome := range result.PerChannel {
		if outcome.Success > 0 {
			result.Delivered = true
			break
		}
	}

	if result.Delivered {
		d.tracker.MarkSent(event.ID)
		recordDelivery("sent")
	} else {
		d.tracker.MarkFailed(event.ID, joinErrors(result.Errors))
		recordDelivery("failed")
	}

	return result, nil
}

type dispatchTarget struct {
	sender  Sender
	address string
}

// applicableTargets filters the recipient's channels down to those with
// a configured sender, an enabled preference and a registered address.
func (d *Dispatcher) applicableTargets(event *domain.NotificationEvent, profile *domain.RecipientProfile) []dispatchTarget {
	if !profile.WantsEventType(event.EventType) {
		return nil
	}

	var targets []dispatchTarget
	for _, ch := range profile.Channels {
		if !ch.Enabled || ch.Address == "" {
			continue
		}
		sender, ok := d.senders[ch.Type]
		if !ok {
			slog.Warn("no sender for channel type", "type", ch.Type)
			continue
		}
		targets = append(targets, dispatchTarget{sender: sender, address: ch.Address})
	}
	return targets
}

// send invokes the sender, converting a panic into an error so a
// misbehaving transport cannot take down sibling channels.
func (d *Dispatcher) send(ctx context.Context, sender Sender, address string, payload Payload) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sender panic: %v", r)
		}
	}()
	return sender.Send(ctx, address, payload)
}

func joinErrors(errs []string) string {
	if len(errs) == 0 {
		return "delivery failed"
	}
	out := errs[0]
	for _, e := range errs[1:] {
		out += "; " + e
	}
	return out
}
