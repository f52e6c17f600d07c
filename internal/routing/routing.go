// Package routing defines the ServiceRoutingSelector collaborator consumed
// by the admission pipeline's uniqueness gate. Actual request routing and
// load balancing are out of scope for this core (spec.md Non-goals); this
// package only tracks which instance ids are currently live so admission
// can reject duplicates.
package routing

import (
	"sync"

	"github.com/jizhuozhi/hermes/broker/internal/model"
)

// Selector is the narrow routing-selector contract the admission pipeline
// needs: "is this instance id already live?"
type Selector interface {
	ContainsInstance(id model.InstanceID) bool
}

// Mutator is implemented by selectors the registry can also update as
// handlers are admitted and disposed, keeping the uniqueness view current
// without a separate full routing implementation.
type Mutator interface {
	Selector
	AddInstance(id model.InstanceID)
	RemoveInstance(id model.InstanceID)

	// ClaimInstance atomically checks and inserts id under a single lock,
	// returning false if id was already present. This is the operation
	// admission must use to close the check-then-act race between a
	// ContainsInstance probe and a later AddInstance call made from two
	// separate critical sections.
	ClaimInstance(id model.InstanceID) bool
}

// InMemorySelector is the minimal ServiceRoutingSelector needed to exercise
// the uniqueness gate in standalone deployments and tests. A real
// routing/load-balancing selector belongs to the surrounding broker and is
// explicitly out of scope here.
type InMemorySelector struct {
	mu  sync.RWMutex
	set map[model.InstanceID]struct{}
}

// NewInMemorySelector returns an empty selector.
func NewInMemorySelector() *InMemorySelector {
	return &InMemorySelector{set: make(map[model.InstanceID]struct{})}
}

func (s *InMemorySelector) ContainsInstance(id model.InstanceID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.set[id]
	return ok
}

func (s *InMemorySelector) AddInstance(id model.InstanceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set[id] = struct{}{}
}

// ClaimInstance is the single-critical-section version of
// ContainsInstance+AddInstance: the check and the insert happen under the
// same write lock, so two callers racing on the same id can never both
// observe "absent".
func (s *InMemorySelector) ClaimInstance(id model.InstanceID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.set[id]; ok {
		return false
	}
	s.set[id] = struct{}{}
	return true
}

func (s *InMemorySelector) RemoveInstance(id model.InstanceID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.set, id)
}
