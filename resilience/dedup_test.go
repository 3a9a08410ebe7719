package resilience

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeduplicator_FirstSeenThenDuplicate(t *testing.T) {
	d := NewDeduplicator(10)

	assert.False(t, d.IsDuplicate("evt-1"), "unseen id must not be reported as duplicate")
	assert.True(t, d.IsDuplicate("evt-1"), "the same id must be reported as duplicate thereafter")
	assert.Equal(t, 1, d.Len())
}

func TestDeduplicator_EvictsOldestOnceOverCapacity(t *testing.T) {
	d := NewDeduplicator(3)

	for i := 0; i < 3; i++ {
		assert.False(t, d.IsDuplicate(fmt.Sprintf("evt-%d", i)))
	}
	assert.Equal(t, 3, d.Len())

	assert.False(t, d.IsDuplicate("evt-3"), "a 4th id must evict the oldest")
	assert.Equal(t, 3, d.Len())
	assert.False(t, d.IsDuplicate("evt-0"), "evicted id is treated as unseen again")
}

func TestDeduplicator_DefaultCapacity(t *testing.T) {
	d := NewDeduplicator(0)
	assert.False(t, d.IsDuplicate("evt-1"))
	assert.Equal(t, 1, d.Len())
}
