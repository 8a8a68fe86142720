// Package push delivers notifications through a mobile push provider's
// HTTP API.
package push

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/notify"
)

const (
	defaultTimeout   = 10 * time.Second
	defaultRateLimit = 50 // requests per second against the provider
)

// Config holds push sender configuration.
type Config struct {
	Enabled     bool
	ProviderURL string
	APIKey      string
	Timeout     time.Duration
	RateLimit   float64
}

// Sender implements push delivery via the provider HTTP API.
type Sender struct {
	config     Config
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewSender creates a push sender. Returns an error if enabled but
// required config is missing.
func NewSender(config Config) (*Sender, error) {
	if config.Enabled {
		if config.ProviderURL == "" {
			return nil, errors.New("push sender: provider URL is required when enabled")
		}
		if config.APIKey == "" {
			return nil, errors.New("push sender: API key is required when enabled")
		}
	}
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	if config.RateLimit <= 0 {
		config.RateLimit = defaultRateLimit
	}

	slog.Info("push sender configured",
		"enabled", config.Enabled,
		"rate_limit", config.RateLimit,
	)

	return &Sender{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(config.RateLimit), int(config.RateLimit)),
	}, nil
}

// Type returns the channel type.
func (s *Sender) Type() domain.ChannelType {
	return domain.ChannelTypePush
}

// providerMessage is the provider wire format. address is the device
// push token registered for the recipient.
type providerMessage struct {
	To       string         `json:"to"`
	Title    string         `json:"title"`
	Body     string         `json:"body"`
	Priority string         `json:"priority,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// Send pushes one notification to the device token in address.
func (s *Sender) Send(ctx context.Context, address string, payload notify.Payload) error {
	if !s.config.Enabled {
		slog.Debug("push sender disabled, skipping", "to", address)
		return nil
	}
	if address == "" {
		return &PermanentError{Message: "push token is empty"}
	}

	// Client-side throttle against the provider's request budget.
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("wait for rate limiter: %w", err)
	}

	msg := providerMessage{
		To:       address,
		Title:    payload.Title,
		Body:     payload.Body,
		Priority: string(payload.Priority),
		Data:     payload.Data,
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.config.ProviderURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return &RetryableError{Message: fmt.Sprintf("send request: %v", err)}
	}
	defer func() { _ = resp.Body.Close() }()

	return s.handleResponse(resp)
}

func (s *Sender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return nil

	case resp.StatusCode == http.StatusBadRequest:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("bad request: %s", string(body)),
		}

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "invalid API key",
		}

	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Token no longer registered with the provider.
		return &PermanentError{
			Code:    resp.StatusCode,
			Message: "push token not registered",
		}

	case resp.StatusCode == http.StatusTooManyRequests:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: "provider rate limited",
		}

	case resp.StatusCode >= 500:
		return &RetryableError{
			Code:    resp.StatusCode,
			Message: fmt.Sprintf("provider error: %s", string(body)),
		}

	default:
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
}

// PermanentError indicates a permanent error that should not be retried.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push error: %s", e.Message)
}

// IsRetryable returns false as permanent errors should not be retried.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError indicates a temporary error that can be retried.
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	if e.Code > 0 {
		return fmt.Sprintf("push error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("push error: %s", e.Message)
}

// IsRetryable returns true as these errors are temporary.
func (e *RetryableError) IsRetryable() bool { return true }
