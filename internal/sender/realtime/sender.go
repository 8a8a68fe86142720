// Package realtime delivers notifications to the in-app realtime
// gateway. The address is the recipient's session endpoint, registered
// by the gateway when the app connects.
package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/notify"
)

const defaultTimeout = 5 * time.Second

// Config holds realtime sender configuration.
type Config struct {
	Enabled bool
	Timeout time.Duration
}

// Sender implements in-app realtime delivery.
type Sender struct {
	config     Config
	httpClient *http.Client
}

// NewSender creates a realtime sender.
func NewSender(config Config) *Sender {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypeRealtime
}

// Send posts the payload to the recipient's session endpoint.
func (s *Sender) Send(ctx context.Context, address string, payload notify.Payload) error {
	if !s.config.Enabled {
		slog.Debug("realtime sender disabled, skipping", "to", address)
		return nil
	}
	if address == "" {
		return fmt.Errorf("realtime session endpoint is empty")
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send to gateway: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("gateway returned status %d", resp.StatusCode)
	}

	slog.Debug("realtime message delivered", "event_id", payload.EventID)
	return nil
}
