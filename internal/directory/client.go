// Package directory provides the HTTP client for the recipient
// directory service, which owns profiles, preferences and channel
// addresses.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/notify"
)

const defaultTimeout = 5 * time.Second

// Config holds directory client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client implements notify.RecipientDirectory against the directory
// service HTTP API.
type Client struct {
	config     Config
	httpClient *http.Client
}

// NewClient creates a directory client.
func NewClient(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = defaultTimeout
	}
	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

// GetProfile fetches delivery preferences and channel addresses for a
// recipient.
func (c *Client) GetProfile(ctx context.Context, recipientID string) (*domain.RecipientProfile, error) {
	url := fmt.Sprintf("%s/recipients/%s/profile", c.config.BaseURL, recipientID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query directory: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, notify.ErrRecipientNotFound
	default:
		return nil, fmt.Errorf("directory returned status %d", resp.StatusCode)
	}

	var profile domain.RecipientProfile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &profile, nil
}
