// Package registry implements the Handler Directory (C3) and the
// Broadcast API (C6): the single owning container for the three indices
// over live responder handlers, and the targeted/wildcard dispatch built
// on top of it.
package registry

import (
	"context"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jizhuozhi/hermes/broker/internal/eventbus"
	"github.com/jizhuozhi/hermes/broker/internal/model"
)

// Directory is the single owning container for the three parallel indices
// over live responder handlers (spec.md §3/§9): byConnectionID, byAppUUID,
// byAppName. All three are guarded by one RWMutex so insert/remove is
// atomic with respect to any reader — never three independently-locked
// maps.
type Directory struct {
	logger *zap.SugaredLogger
	bus    *eventbus.Bus

	mu              sync.RWMutex
	byConnectionID  map[model.InstanceID]ResponderHandler
	byAppUUID       map[string]ResponderHandler
	byAppName       map[string][]ResponderHandler

	disposalPending map[model.InstanceID]time.Time
}

// New returns an empty Directory publishing lifecycle events on bus.
func New(bus *eventbus.Bus, logger *zap.SugaredLogger) *Directory {
	return &Directory{
		logger:          logger,
		bus:             bus,
		byConnectionID:  make(map[model.InstanceID]ResponderHandler),
		byAppUUID:       make(map[string]ResponderHandler),
		byAppName:       make(map[string][]ResponderHandler),
		disposalPending: make(map[model.InstanceID]time.Time),
	}
}

// OnHandlerRegistered inserts h into all three indices atomically, then
// publishes a CONNECTED AppStatus event and a human-readable notification.
// The triple insertion happens under the single write lock so no reader
// observes a partial update (spec.md Invariant 1).
func (d *Directory) OnHandlerRegistered(h ResponderHandler) {
	desc := h.AppDescriptor()

	d.mu.Lock()
	d.byConnectionID[h.InstanceID()] = h
	d.byAppUUID[desc.UUID] = h
	d.byAppName[desc.Name] = append(d.byAppName[desc.Name], h)
	d.mu.Unlock()

	d.logger.Infof("RST-500200 handler registered: uuid=%s name=%s instanceId=%d", desc.UUID, desc.Name, h.InstanceID())

	d.publishStatus(desc.UUID, model.AppStatusConnected)
	d.bus.Notifications().Publish("RST-300203 app connected: " + desc.Name + " (" + desc.UUID + ")")
}

// OnHandlerDisposed removes h from all three indices atomically, then
// publishes a STOPPED AppStatus event and a notification. Disposal errors
// from the underlying socket are logged and swallowed — h is removed from
// the directory regardless (spec.md §7).
func (d *Directory) OnHandlerDisposed(h ResponderHandler) {
	// Canonical uuid source: the descriptor, on both registration and
	// disposal (resolves spec.md §9's open question about symmetry between
	// onHandlerRegistered's appMetadata.uuid() and onHandlerDisposed's
	// responderHandler.uuid()).
	desc := h.AppDescriptor()
	id := h.InstanceID()

	d.mu.Lock()
	delete(d.byConnectionID, id)
	delete(d.byAppUUID, desc.UUID)
	d.byAppName[desc.Name] = removeHandler(d.byAppName[desc.Name], h)
	if len(d.byAppName[desc.Name]) == 0 {
		delete(d.byAppName, desc.Name)
	}
	delete(d.disposalPending, id)
	d.mu.Unlock()

	d.logger.Infof("RST-500202 handler disposed: uuid=%s name=%s instanceId=%d", desc.UUID, desc.Name, id)

	d.publishStatus(desc.UUID, model.AppStatusStopped)
	d.bus.Notifications().Publish("RST-300204 app stopped: " + desc.Name + " (" + desc.UUID + ")")
}

func removeHandler(list []ResponderHandler, target ResponderHandler) []ResponderHandler {
	out := list[:0:0]
	for _, h := range list {
		if h != target {
			out = append(out, h)
		}
	}
	return out
}

func (d *Directory) publishStatus(uuid string, status model.AppStatusKind) {
	env := model.EventEnvelope{
		Type:            model.EventTypeAppStatus,
		Source:          "app://" + uuid,
		DataContentType: "application/json",
		Data:            model.AppStatus{UUID: uuid, Status: status},
	}
	d.bus.Lifecycle().Publish(env)
}

// FindAll returns a snapshot of every live handler.
func (d *Directory) FindAll() []ResponderHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ResponderHandler, 0, len(d.byAppUUID))
	for _, h := range d.byAppUUID {
		out = append(out, h)
	}
	return out
}

// FindByUUID looks up a handler by its client-chosen app uuid.
func (d *Directory) FindByUUID(uuid string) (ResponderHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byAppUUID[uuid]
	return h, ok
}

// FindByID looks up a handler by its derived instance id.
func (d *Directory) FindByID(id model.InstanceID) (ResponderHandler, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	h, ok := d.byConnectionID[id]
	return h, ok
}

// FindByAppName returns a snapshot of the (possibly empty) multiset of
// handlers registered under name. Callers must tolerate the live set
// changing after the call returns.
func (d *Directory) FindByAppName(name string) []ResponderHandler {
	d.mu.RLock()
	defer d.mu.RUnlock()
	list := d.byAppName[name]
	out := make([]ResponderHandler, len(list))
	copy(out, list)
	return out
}

// FindAllAppNames returns every distinct app name with at least one live
// handler.
func (d *Directory) FindAllAppNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.byAppName))
	for name := range d.byAppName {
		out = append(out, name)
	}
	return out
}

// Count returns the number of live handlers.
func (d *Directory) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.byAppUUID)
}

// BroadcastResult reports per-handler outcomes of a Broadcast call.
type BroadcastResult struct {
	Delivered int
	Failed    int
}

// Broadcast is the Broadcast API (C6): appName == "*" delivers to every
// live handler; appName present in the directory delivers to that
// multiset; otherwise it's a no-op. Delivery is fire-and-forget per
// handler with bounded concurrency; per-handler failures are logged but
// never abort the broadcast (spec.md §4.6/§7).
func (d *Directory) Broadcast(ctx context.Context, appName string, env model.EventEnvelope) BroadcastResult {
	var targets []ResponderHandler
	if appName == "*" {
		targets = d.FindAll()
	} else {
		targets = d.FindByAppName(appName)
	}
	if len(targets) == 0 {
		return BroadcastResult{}
	}

	var mu sync.Mutex
	result := BroadcastResult{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0) * 4)
	for _, h := range targets {
		h := h
		g.Go(func() error {
			if err := h.Send(gctx, env); err != nil {
				d.logger.Warnf("broadcast delivery failed: uuid=%s err=%v", h.AppDescriptor().UUID, err)
				mu.Lock()
				result.Failed++
				mu.Unlock()
				return nil // per-handler failures never abort the broadcast
			}
			mu.Lock()
			result.Delivered++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return result
}

// MarkDisposalPending records that h's socket has signaled close and its
// disposal hook has been scheduled, for ReapStale's grace-window check.
func (d *Directory) MarkDisposalPending(id model.InstanceID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.byConnectionID[id]; ok {
		d.disposalPending[id] = time.Now()
	}
}

// ReapStale disposes any handler whose socket has signaled close but whose
// OnHandlerDisposed has not run within grace. This is the periodic sweep
// resolving spec.md §9's commented-out cleanStaleHandlers gap: heartbeat
// timeout / half-open socket reaping beyond the grace window.
func (d *Directory) ReapStale(grace time.Duration) {
	now := time.Now()
	var stale []ResponderHandler

	d.mu.RLock()
	for id, since := range d.disposalPending {
		if now.Sub(since) < grace {
			continue
		}
		if h, ok := d.byConnectionID[id]; ok {
			stale = append(stale, h)
		}
	}
	d.mu.RUnlock()

	for _, h := range stale {
		d.logger.Warnf("reaping stale handler past disposal grace window: uuid=%s", h.AppDescriptor().UUID)
		d.OnHandlerDisposed(h)
	}
}
