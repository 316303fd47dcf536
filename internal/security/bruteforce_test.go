package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBruteForceLocksOnTenthFailure(t *testing.T) {
	b := NewBruteForceDetector()
	var locked bool
	for i := 0; i < 10; i++ {
		locked = b.RecordFailure("user:alice")
	}
	assert.True(t, locked)
	assert.True(t, b.IsLocked("user:alice"))
}

func TestBruteForceBelowThresholdNotLocked(t *testing.T) {
	b := NewBruteForceDetector()
	for i := 0; i < 9; i++ {
		locked := b.RecordFailure("user:bob")
		assert.False(t, locked)
	}
	assert.False(t, b.IsLocked("user:bob"))
}

func TestBruteForceSuccessClearsEntry(t *testing.T) {
	b := NewBruteForceDetector()
	for i := 0; i < 9; i++ {
		b.RecordFailure("user:carol")
	}
	b.RecordSuccess("user:carol")
	assert.False(t, b.IsLocked("user:carol"))

	// A fresh run of 9 more failures after the reset should still not lock.
	for i := 0; i < 9; i++ {
		locked := b.RecordFailure("user:carol")
		assert.False(t, locked)
	}
}

func TestBruteForceUnknownKeyNotLocked(t *testing.T) {
	b := NewBruteForceDetector()
	assert.False(t, b.IsLocked("nobody"))
}
