//go:build integration

package integration

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/crewsync/fieldnotify/internal/domain"
)

// directoryMock is a stand-in for the recipient directory service. Tests
// register profiles per recipient; unknown recipients get 404.
type directoryMock struct {
	mu       sync.Mutex
	profiles map[string]*domain.RecipientProfile
	server   *httptest.Server
}

func newDirectoryMock() *directoryMock {
	m := &directoryMock{profiles: make(map[string]*domain.RecipientProfile)}
	m.server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *directoryMock) handle(w http.ResponseWriter, r *http.Request) {
	// Path shape: /recipients/{id}/profile
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "recipients" || parts[2] != "profile" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	m.mu.Lock()
	profile, ok := m.profiles[parts[1]]
	m.mu.Unlock()

	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	_ = json.NewEncoder(w).Encode(profile)
}

func (m *directoryMock) register(profile *domain.RecipientProfile) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[profile.RecipientID] = profile
}

func (m *directoryMock) close() {
	m.server.Close()
}

// channelMock records deliveries for a channel endpoint and can be
// switched into a failure mode.
type channelMock struct {
	mu       sync.Mutex
	requests []channelRequest
	failWith int // HTTP status to fail with; 0 means succeed
	server   *httptest.Server
}

type channelRequest struct {
	path string
	body map[string]any
}

func newChannelMock() *channelMock {
	m := &channelMock{}
	m.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		m.mu.Lock()
		m.requests = append(m.requests, channelRequest{path: r.URL.Path, body: body})
		failWith := m.failWith
		m.mu.Unlock()

		if failWith != 0 {
			w.WriteHeader(failWith)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return m
}

func (m *channelMock) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *channelMock) lastRequest() (channelRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return channelRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}

func (m *channelMock) setFailure(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = status
}

func (m *channelMock) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
	m.failWith = 0
}

func (m *channelMock) close() {
	m.server.Close()
}
