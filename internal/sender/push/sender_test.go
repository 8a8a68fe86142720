package push

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/fieldnotify/internal/domain"
	"github.com/crewsync/fieldnotify/internal/notify"
)

func testPayload() notify.Payload {
	return notify.Payload{
		EventID:   "event-1",
		EventType: "job.assigned",
		EntityID:  "job-42",
		Priority:  domain.PriorityHigh,
		Title:     "New job assigned",
		Body:      "Job 42 is yours",
		Data:      map[string]any{"jobId": "job-42"},
	}
}

func TestNewSender_Validation(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name:    "enabled without provider URL",
			config:  Config{Enabled: true, APIKey: "key"},
			wantErr: "provider URL is required",
		},
		{
			name:    "enabled without API key",
			config:  Config{Enabled: true, ProviderURL: "https://push.example/send"},
			wantErr: "API key is required",
		},
		{
			name:    "disabled - no validation",
			config:  Config{Enabled: false},
			wantErr: "",
		},
		{
			name:    "valid config",
			config:  Config{Enabled: true, ProviderURL: "https://push.example/send", APIKey: "key"},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender, err := NewSender(tt.config)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				assert.Nil(t, sender)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, sender)
			}
		})
	}
}

func TestSender_Type(t *testing.T) {
	sender, err := NewSender(Config{})
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelTypePush, sender.Type())
}

func TestSender_Send_Disabled(t *testing.T) {
	sender, err := NewSender(Config{Enabled: false})
	require.NoError(t, err)

	assert.NoError(t, sender.Send(context.Background(), "token-1", testPayload()))
}

func TestSender_Send_EmptyToken(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: "https://push.example/send",
		APIKey:      "key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "", testPayload())
	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.False(t, permErr.IsRetryable())
}

func TestSender_Send_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var msg providerMessage
		err := json.NewDecoder(r.Body).Decode(&msg)
		require.NoError(t, err)
		assert.Equal(t, "token-1", msg.To)
		assert.Equal(t, "New job assigned", msg.Title)
		assert.Equal(t, "Job 42 is yours", msg.Body)
		assert.Equal(t, "high", msg.Priority)

		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: server.URL,
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	assert.NoError(t, sender.Send(context.Background(), "token-1", testPayload()))
}

func TestSender_Send_TokenNotRegistered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGone)
	}))
	defer server.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: server.URL,
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "stale-token", testPayload())
	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.Equal(t, http.StatusGone, permErr.Code)
	assert.Contains(t, permErr.Message, "not registered")
}

func TestSender_Send_InvalidAPIKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: server.URL,
		APIKey:      "bad-key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "token-1", testPayload())
	require.Error(t, err)
	var permErr *PermanentError
	require.ErrorAs(t, err, &permErr)
	assert.False(t, permErr.IsRetryable())
}

func TestSender_Send_ProviderRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: server.URL,
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "token-1", testPayload())
	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.True(t, retryErr.IsRetryable())
}

func TestSender_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: server.URL,
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "token-1", testPayload())
	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, http.StatusServiceUnavailable, retryErr.Code)
}

func TestSender_Send_ConnectionFailureIsRetryable(t *testing.T) {
	sender, err := NewSender(Config{
		Enabled:     true,
		ProviderURL: "http://127.0.0.1:1", // nothing listens here
		APIKey:      "test-key",
	})
	require.NoError(t, err)

	err = sender.Send(context.Background(), "token-1", testPayload())
	require.Error(t, err)
	var retryErr *RetryableError
	require.ErrorAs(t, err, &retryErr)
	assert.True(t, retryErr.IsRetryable())
}
