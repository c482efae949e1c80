package autosense

import (
	"bytes"
	"testing"

	"github.com/couchbaselabs/go.assert"
)

func TestTrackingIDShape(t *testing.T) {
	ids := NewTrackingIDGenerator()
	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		id, err := ids.New()
		assert.True(t, err == nil)
		assert.Equals(t, len(id), TrackingIDLength)
		assert.True(t, ValidTrackingID(id))
		seen[id] = true
	}
	assert.Equals(t, len(seen), 200)
}

func TestTrackingIDDeterministicSource(t *testing.T) {
	// bytes at or above 252 are skipped, the rest map modulo 36
	source := bytes.NewReader(append(
		[]byte{0, 1, 25, 26, 35, 36, 252, 255, 71, 72, 100, 200, 251, 2, 3},
		make([]byte, 32)...,
	))
	ids := &TrackingIDGenerator{Source: source}
	id, err := ids.New()
	assert.True(t, err == nil)
	// 0 A, 1 B, 25 Z, 26 0, 35 9, 36 A, 71 9, 72 A, 100 2, 200 U, 251 9, 2 C
	assert.Equals(t, id, "ABZ09A9A2U9C")
}

func TestTrackingIDExhaustedSource(t *testing.T) {
	ids := &TrackingIDGenerator{Source: bytes.NewReader([]byte{1, 2, 3})}
	_, err := ids.New()
	assert.True(t, err != nil)
}

func TestValidTrackingID(t *testing.T) {
	assert.True(t, ValidTrackingID("ABCDEF123456"))
	assert.False(t, ValidTrackingID("abcdef123456"))
	assert.False(t, ValidTrackingID("ABCDEF12345"))
	assert.False(t, ValidTrackingID("ABCDEF1234567"))
	assert.False(t, ValidTrackingID("ABCDEF12345-"))
	assert.False(t, ValidTrackingID("../../etc/pw"))
	assert.False(t, ValidTrackingID(""))
}
