package routing

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jizhuozhi/hermes/broker/internal/model"
)

func TestInMemorySelector_AddContainsRemove(t *testing.T) {
	s := NewInMemorySelector()
	id := model.InstanceID(42)

	assert.False(t, s.ContainsInstance(id))
	s.AddInstance(id)
	assert.True(t, s.ContainsInstance(id))
	s.RemoveInstance(id)
	assert.False(t, s.ContainsInstance(id))
}

func TestInMemorySelector_RemoveUnknownInstanceIsNoop(t *testing.T) {
	s := NewInMemorySelector()
	assert.NotPanics(t, func() { s.RemoveInstance(model.InstanceID(7)) })
}

func TestInMemorySelector_ClaimInstance(t *testing.T) {
	s := NewInMemorySelector()
	id := model.InstanceID(42)

	assert.True(t, s.ClaimInstance(id))
	assert.True(t, s.ContainsInstance(id))
	assert.False(t, s.ClaimInstance(id), "second claim of the same id must fail")
}

// TestInMemorySelector_ClaimInstanceConcurrentOnlyOneWins exercises the
// actual race a separate ContainsInstance+AddInstance pair is vulnerable
// to: many goroutines racing to claim the same id must see exactly one
// winner, never zero and never more than one.
func TestInMemorySelector_ClaimInstanceConcurrentOnlyOneWins(t *testing.T) {
	s := NewInMemorySelector()
	id := model.InstanceID(7)

	const n = 200
	var wins int32
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			if s.ClaimInstance(id) {
				atomic.AddInt32(&wins, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, wins)
}

func TestInMemorySelector_ConcurrentAddContains(t *testing.T) {
	s := NewInMemorySelector()
	var wg sync.WaitGroup
	const n = 100

	for i := 0; i < n; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.AddInstance(model.InstanceID(i))
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		assert.True(t, s.ContainsInstance(model.InstanceID(i)))
	}
}
