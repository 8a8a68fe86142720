package domain

// ChannelType identifies an independent delivery mechanism.
type ChannelType string

// Channel types.
const (
	ChannelTypePush     ChannelType = "push"
	ChannelTypeRealtime ChannelType = "realtime"
)

// ChannelAddress is a delivery endpoint registered for a recipient,
// e.g. a push token or a realtime session endpoint.
type ChannelAddress struct {
	Type    ChannelType `json:"type"`
	Address string      `json:"address"`
	Enabled bool        `json:"enabled"`
}

// RecipientProfile holds the delivery preferences and capabilities of a
// recipient, resolved from the recipient directory at dispatch time.
type RecipientProfile struct {
	RecipientID string           `json:"recipient_id"`
	Channels    []ChannelAddress `json:"channels"`
	// EnabledEventTypes limits which event types the recipient wants.
	// Empty means all event types are accepted.
	EnabledEventTypes []string `json:"enabled_event_types,omitempty"`
}

// WantsEventType reports whether the recipient accepts the event type.
func (p *RecipientProfile) WantsEventType(eventType string) bool {
	if len(p.EnabledEventTypes) == 0 {
		return true
	}
	for _, t := range p.EnabledEventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}
