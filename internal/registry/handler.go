package registry

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/jizhuozhi/hermes/broker/internal/mesh"
	"github.com/jizhuozhi/hermes/broker/internal/model"
	"github.com/jizhuozhi/hermes/broker/internal/transport"
)

var (
	errNilSocket     = errors.New("registry: responder handler requires a non-nil socket")
	errNilDescriptor = errors.New("registry: responder handler requires a non-nil app descriptor")
)

// FilterChain and LocalServiceCaller are opaque collaborators injected into
// the responder handler. Neither filter composition nor local-call dispatch
// is this core's concern (spec.md §1); the registry only threads them
// through to the handler constructor.
type FilterChain interface {
	Name() string
}

type LocalServiceCaller interface {
	Name() string
}

// ResponderHandler is the per-connection object the directory indexes: it
// owns the requester socket, the app descriptor, the principal, the
// published/consumed service sets, the role bitmask, and a terminal
// disposal signal.
type ResponderHandler interface {
	AppDescriptor() *model.AppDescriptor
	Principal() *model.Principal
	InstanceID() model.InstanceID
	Roles() uint8
	PublishedServices() []model.PublishedService
	ConsumedServices() []model.ConsumedService
	// Send delivers an envelope fire-and-forget over the requester socket.
	// Per-handler failures are logged by the handler itself; callers (C6
	// broadcast, C5 cluster announce) never abort on one handler's error.
	Send(ctx context.Context, env model.EventEnvelope) error
	// Closed signals socket disposal; the directory's disposal hook watches
	// it to know when to run OnHandlerDisposed.
	Closed() <-chan struct{}
	Close() error
}

// Deps bundles the collaborators the responder handler factory needs.
type Deps struct {
	Socket      transport.RequesterSocket
	Descriptor  *model.AppDescriptor
	Principal   *model.Principal
	Mesh        mesh.Inspector
	Filters     FilterChain
	LocalCaller LocalServiceCaller
}

// Factory constructs a ResponderHandler from admitted session state.
// Construction failure is surfaced by the admission pipeline as RST-500406.
type Factory func(deps Deps) (ResponderHandler, error)

// responderHandler is the default ResponderHandler implementation.
type responderHandler struct {
	socket     transport.RequesterSocket
	descriptor *model.AppDescriptor
	principal  *model.Principal
	mesh       mesh.Inspector
	filters    FilterChain
	local      LocalServiceCaller

	mu        sync.RWMutex
	published []model.PublishedService
	consumed  []model.ConsumedService
}

// NewResponderHandler is the default Factory.
func NewResponderHandler(deps Deps) (ResponderHandler, error) {
	if deps.Socket == nil {
		return nil, errNilSocket
	}
	if deps.Descriptor == nil {
		return nil, errNilDescriptor
	}
	return &responderHandler{
		socket:     deps.Socket,
		descriptor: deps.Descriptor,
		principal:  deps.Principal,
		mesh:       deps.Mesh,
		filters:    deps.Filters,
		local:      deps.LocalCaller,
	}, nil
}

func (h *responderHandler) AppDescriptor() *model.AppDescriptor { return h.descriptor }
func (h *responderHandler) Principal() *model.Principal         { return h.principal }
func (h *responderHandler) InstanceID() model.InstanceID        { return h.descriptor.InstanceID }

// Roles derives the cluster-announce role bitmask from the services this
// handler currently publishes/consumes (spec.md §3/§4.5), rather than
// storing a separate field set once at construction — the RPC layer's
// SetServices call is the only thing that changes these sets over the
// handler's lifetime, and role bits must track them.
func (h *responderHandler) Roles() uint8 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var roles uint8
	if len(h.published) > 0 {
		roles |= model.RolePublishes
	}
	if len(h.consumed) > 0 {
		roles |= model.RoleConsumes
	}
	return roles
}

func (h *responderHandler) PublishedServices() []model.PublishedService {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.PublishedService, len(h.published))
	copy(out, h.published)
	return out
}

func (h *responderHandler) ConsumedServices() []model.ConsumedService {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]model.ConsumedService, len(h.consumed))
	copy(out, h.consumed)
	return out
}

// SetServices lets the RPC layer register what this app publishes/consumes
// once it has demultiplexed the setup payload's service annotations.
func (h *responderHandler) SetServices(published []model.PublishedService, consumed []model.ConsumedService) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.published = published
	h.consumed = consumed
}

func (h *responderHandler) Send(ctx context.Context, env model.EventEnvelope) error {
	payload, metadata := encodeEnvelope(env)
	return h.socket.FireAndForget(ctx, payload, metadata)
}

func (h *responderHandler) Closed() <-chan struct{} { return h.socket.Closed() }
func (h *responderHandler) Close() error            { return h.socket.Close() }

// encodeEnvelope is a minimal wire encoding: JSON payload, no metadata.
// The real RPC demultiplexing format is the RPC layer's concern; the
// registry only needs something a fire-and-forget test double can observe.
func encodeEnvelope(env model.EventEnvelope) (payload []byte, metadata []byte) {
	b, err := json.Marshal(env)
	if err != nil {
		return nil, nil
	}
	return b, nil
}
