package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedup_WindowAndExpiry(t *testing.T) {
	d := NewDedup(50 * time.Millisecond)

	assert.False(t, d.IsDuplicate("a"))
	assert.True(t, d.IsDuplicate("a"))
	assert.False(t, d.IsDuplicate("b"))

	time.Sleep(60 * time.Millisecond)
	assert.False(t, d.IsDuplicate("a"))
}

func TestDedup_Forget(t *testing.T) {
	d := NewDedup(time.Hour)

	assert.False(t, d.IsDuplicate("a"))
	d.Forget("a")
	assert.False(t, d.IsDuplicate("a"))
}

func TestDedup_Cleanup(t *testing.T) {
	d := NewDedup(time.Nanosecond)

	d.IsDuplicate("a")
	d.IsDuplicate("b")
	time.Sleep(time.Millisecond)
	d.Cleanup()

	d.mu.Lock()
	defer d.mu.Unlock()
	assert.Empty(t, d.seen)
}
