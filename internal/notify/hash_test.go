package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint_Deterministic(t *testing.T) {
	a := Fingerprint("job.assigned", "job-42", "worker-7")
	b := Fingerprint("job.assigned", "job-42", "worker-7")

	assert.Equal(t, a, b)
	assert.Len(t, a, 64) // hex-encoded 256-bit digest
}

func TestFingerprint_FieldSensitivity(t *testing.T) {
	base := Fingerprint("job.assigned", "job-42", "worker-7")

	tests := []struct {
		name        string
		eventType   string
		entityID    string
		recipientID string
	}{
		{"different event type", "job.cancelled", "job-42", "worker-7"},
		{"different entity", "job.assigned", "job-43", "worker-7"},
		{"different recipient", "job.assigned", "job-42", "worker-8"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, base, Fingerprint(tt.eventType, tt.entityID, tt.recipientID))
		})
	}
}

func TestFingerprint_FieldBoundaries(t *testing.T) {
	// Adjacent fields must not blur: ("ab","c") != ("a","bc").
	a := Fingerprint("ab", "c", "r")
	b := Fingerprint("a", "bc", "r")
	assert.NotEqual(t, a, b)
}

func TestFingerprint_Normalization(t *testing.T) {
	t.Run("whitespace trimmed", func(t *testing.T) {
		a := Fingerprint("job.assigned", "job-42", "worker-7")
		b := Fingerprint("  job.assigned ", "\tjob-42\n", " worker-7 ")
		assert.Equal(t, a, b)
	})

	t.Run("unicode NFC", func(t *testing.T) {
		// "é" precomposed vs "e" + combining acute accent.
		a := Fingerprint("job.assigned", "café", "worker-7")
		b := Fingerprint("job.assigned", "café", "worker-7")
		assert.Equal(t, a, b)
	})
}

func TestContentHash_Deterministic(t *testing.T) {
	data := map[string]any{"jobId": "job-42", "priority": "high"}

	a := ContentHash("New job", "You have been assigned", data)
	b := ContentHash("New job", "You have been assigned", data)

	assert.Equal(t, a, b)
}

func TestContentHash_KeyOrderIndependent(t *testing.T) {
	// Maps built in different insertion orders hash identically.
	a := ContentHash("t", "b", map[string]any{
		"alpha": 1,
		"beta":  "x",
		"gamma": []any{"1", "2"},
	})
	b := ContentHash("t", "b", map[string]any{
		"gamma": []any{"1", "2"},
		"beta":  "x",
		"alpha": 1,
	})

	assert.Equal(t, a, b)
}

func TestContentHash_NestedData(t *testing.T) {
	a := ContentHash("t", "b", map[string]any{
		"outer": map[string]any{"x": 1, "y": 2},
	})
	b := ContentHash("t", "b", map[string]any{
		"outer": map[string]any{"y": 2, "x": 1},
	})
	c := ContentHash("t", "b", map[string]any{
		"outer": map[string]any{"y": 2, "x": 9},
	})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
}

func TestContentHash_Sensitivity(t *testing.T) {
	base := ContentHash("title", "body", nil)

	assert.NotEqual(t, base, ContentHash("title!", "body", nil))
	assert.NotEqual(t, base, ContentHash("title", "body!", nil))
	assert.NotEqual(t, base, ContentHash("title", "body", map[string]any{"k": "v"}))
}

func TestContentHash_EmptyDataVariants(t *testing.T) {
	// nil and empty map are the same absence of data.
	assert.Equal(t,
		ContentHash("t", "b", nil),
		ContentHash("t", "b", map[string]any{}),
	)
}

func TestCanonicalJSON(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]any
		expected string
	}{
		{"empty", nil, ""},
		{"scalar values", map[string]any{"b": 2, "a": "x"}, `{"a":"x","b":2}`},
		{"nested", map[string]any{"m": map[string]any{"z": true, "a": nil}}, `{"m":{"a":null,"z":true}}`},
		{"slice", map[string]any{"s": []any{"1", 2}}, `{"s":["1",2]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, canonicalJSON(tt.data))
		})
	}
}
