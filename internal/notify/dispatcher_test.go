package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/fieldnotify/internal/dedup"
	"github.com/crewsync/fieldnotify/internal/domain"
)

// fakeSender records sends and returns a scripted error.
type fakeSender struct {
	channelType domain.ChannelType
	err         error
	panics      bool

	mu        sync.Mutex
	addresses []string
}

func (s *fakeSender) Type() domain.ChannelType { return s.channelType }

func (s *fakeSender) Send(_ context.Context, address string, _ Payload) error {
	s.mu.Lock()
	s.addresses = append(s.addresses, address)
	s.mu.Unlock()
	if s.panics {
		panic("provider client blew up")
	}
	return s.err
}

func (s *fakeSender) sentTo() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.addresses...)
}

// fakeDirectory serves a fixed profile or error.
type fakeDirectory struct {
	profile *domain.RecipientProfile
	err     error
}

func (d *fakeDirectory) GetProfile(context.Context, string) (*domain.RecipientProfile, error) {
	if d.err != nil {
		return nil, d.err
	}
	return d.profile, nil
}

func bothChannelsProfile() *domain.RecipientProfile {
	return &domain.RecipientProfile{
		RecipientID: "worker-7",
		Channels: []domain.ChannelAddress{
			{Type: domain.ChannelTypePush, Address: "token-1", Enabled: true},
			{Type: domain.ChannelTypeRealtime, Address: "https://rt.internal/sessions/abc", Enabled: true},
		},
	}
}

func testEvent() *domain.NotificationEvent {
	return &domain.NotificationEvent{
		ID:          "event-1",
		EventType:   "job.assigned",
		EntityID:    "job-42",
		RecipientID: "worker-7",
		Priority:    domain.PriorityNormal,
		Content: domain.Content{
			Title: "New job assigned",
			Body:  "Job 42 is yours",
		},
		Status: domain.EventStatusPending,
	}
}

func newTestTracker() *Tracker {
	return NewTracker(dedup.NewStore(nil, time.Hour), time.Hour)
}

func TestDispatcher_Dispatch_AllChannelsSucceed(t *testing.T) {
	push := &fakeSender{channelType: domain.ChannelTypePush}
	realtime := &fakeSender{channelType: domain.ChannelTypeRealtime}
	d := NewDispatcher(&fakeDirectory{profile: bothChannelsProfile()}, newTestTracker(), push, realtime)

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Empty(t, result.Errors)
	assert.Equal(t, ChannelOutcome{Success: 1}, result.PerChannel[domain.ChannelTypePush])
	assert.Equal(t, ChannelOutcome{Success: 1}, result.PerChannel[domain.ChannelTypeRealtime])
	assert.Equal(t, []string{"token-1"}, push.sentTo())
}

func TestDispatcher_Dispatch_PartialFailure(t *testing.T) {
	push := &fakeSender{channelType: domain.ChannelTypePush, err: errors.New("token expired")}
	realtime := &fakeSender{channelType: domain.ChannelTypeRealtime}
	d := NewDispatcher(&fakeDirectory{profile: bothChannelsProfile()}, newTestTracker(), push, realtime)

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

	require.NoError(t, err)
	// One channel failing never blocks the other; one success is enough
	// for a delivered event.
	assert.True(t, result.Delivered)
	assert.Equal(t, ChannelOutcome{Failed: 1}, result.PerChannel[domain.ChannelTypePush])
	assert.Equal(t, ChannelOutcome{Success: 1}, result.PerChannel[domain.ChannelTypeRealtime])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "token expired")
}

func TestDispatcher_Dispatch_AllChannelsFail(t *testing.T) {
	push := &fakeSender{channelType: domain.ChannelTypePush, err: errors.New("token expired")}
	realtime := &fakeSender{channelType: domain.ChannelTypeRealtime, err: errors.New("session gone")}
	d := NewDispatcher(&fakeDirectory{profile: bothChannelsProfile()}, newTestTracker(), push, realtime)

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

	require.NoError(t, err)
	assert.False(t, result.Delivered)
	assert.Len(t, result.Errors, 2)
}

func TestDispatcher_Dispatch_SenderPanicIsolated(t *testing.T) {
	push := &fakeSender{channelType: domain.ChannelTypePush, panics: true}
	realtime := &fakeSender{channelType: domain.ChannelTypeRealtime}
	d := NewDispatcher(&fakeDirectory{profile: bothChannelsProfile()}, newTestTracker(), push, realtime)

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

	require.NoError(t, err)
	assert.True(t, result.Delivered)
	assert.Equal(t, ChannelOutcome{Failed: 1}, result.PerChannel[domain.ChannelTypePush])
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "panic")
}

func TestDispatcher_Dispatch_NoDeliverableChannels(t *testing.T) {
	tests := []struct {
		name    string
		profile *domain.RecipientProfile
	}{
		{
			name:    "no channels registered",
			profile: &domain.RecipientProfile{RecipientID: "worker-7"},
		},
		{
			name: "all channels disabled",
			profile: &domain.RecipientProfile{
				RecipientID: "worker-7",
				Channels: []domain.ChannelAddress{
					{Type: domain.ChannelTypePush, Address: "token-1", Enabled: false},
				},
			},
		},
		{
			name: "empty address",
			profile: &domain.RecipientProfile{
				RecipientID: "worker-7",
				Channels: []domain.ChannelAddress{
					{Type: domain.ChannelTypePush, Address: "", Enabled: true},
				},
			},
		},
		{
			name: "event type opted out",
			profile: &domain.RecipientProfile{
				RecipientID:       "worker-7",
				EnabledEventTypes: []string{"job.cancelled"},
				Channels: []domain.ChannelAddress{
					{Type: domain.ChannelTypePush, Address: "token-1", Enabled: true},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			push := &fakeSender{channelType: domain.ChannelTypePush}
			d := NewDispatcher(&fakeDirectory{profile: tt.profile}, newTestTracker(), push)

			result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

			require.NoError(t, err)
			assert.False(t, result.Delivered)
			assert.Contains(t, result.Errors, "no deliverable channels")
			assert.Empty(t, push.sentTo())
		})
	}
}

func TestDispatcher_Dispatch_NoSenderForChannel(t *testing.T) {
	// Profile wants realtime but only a push sender is configured.
	profile := &domain.RecipientProfile{
		RecipientID: "worker-7",
		Channels: []domain.ChannelAddress{
			{Type: domain.ChannelTypeRealtime, Address: "https://rt/abc", Enabled: true},
		},
	}
	push := &fakeSender{channelType: domain.ChannelTypePush}
	d := NewDispatcher(&fakeDirectory{profile: profile}, newTestTracker(), push)

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-7")

	require.NoError(t, err)
	assert.False(t, result.Delivered)
	assert.Empty(t, push.sentTo())
}

func TestDispatcher_Dispatch_DirectoryFailureIsHardError(t *testing.T) {
	d := NewDispatcher(&fakeDirectory{err: ErrRecipientNotFound}, newTestTracker())

	result, err := d.Dispatch(context.Background(), testEvent(), "worker-unknown")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRecipientNotFound)
	assert.Nil(t, result)
}
