// ABOUTME: Tests for the two-generation duplicate detection cache
// ABOUTME: Covers TTL rotation, size-forced rotation, and empty ids

package dedupe

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_DetectsDuplicates(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.Duplicate("msg-1"))
	assert.True(t, c.Duplicate("msg-1"))
	assert.False(t, c.Duplicate("msg-2"))
	assert.True(t, c.Duplicate("msg-2"))
}

func TestCache_EmptyIDNeverDuplicate(t *testing.T) {
	c := New(time.Minute, 100)

	assert.False(t, c.Duplicate(""))
	assert.False(t, c.Duplicate(""))
	assert.Equal(t, 0, c.Len())
}

func TestCache_SurvivesOneRotation(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, 100)
	c.now = func() time.Time { return now }
	c.rotated = now

	assert.False(t, c.Duplicate("msg-1"))

	// One TTL later: the id moves to the previous generation but is still
	// remembered.
	now = now.Add(time.Minute)
	assert.True(t, c.Duplicate("msg-1"))
}

func TestCache_ForgetsAfterTwoRotations(t *testing.T) {
	now := time.Now()
	c := New(time.Minute, 100)
	c.now = func() time.Time { return now }
	c.rotated = now

	assert.False(t, c.Duplicate("msg-1"))

	now = now.Add(time.Minute)
	c.Duplicate("other") // forces the first rotation
	now = now.Add(time.Minute)
	c.Duplicate("another") // second rotation drops msg-1

	assert.False(t, c.Duplicate("msg-1"))
}

func TestCache_FullGenerationForcesRotation(t *testing.T) {
	c := New(time.Hour, 3)

	for i := 0; i < 3; i++ {
		assert.False(t, c.Duplicate(fmt.Sprintf("msg-%d", i)))
	}

	// Generation is full; the next insert rotates but the recent ids are
	// still remembered via the previous generation.
	assert.False(t, c.Duplicate("msg-3"))
	assert.True(t, c.Duplicate("msg-0"))
	assert.True(t, c.Duplicate("msg-2"))
}
