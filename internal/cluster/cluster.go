// Package cluster implements the Cluster Announcer (C5): it subscribes to
// an external broker-membership stream and, on every change, fans out an
// UpstreamClusterChanged envelope to every directory handler staggered by
// the handler's role bits.
package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/model"
	"github.com/jizhuozhi/hermes/broker/internal/registry"
)

// Broker is one member of the active-broker set.
type Broker struct {
	URL    string
	Active bool
}

// BrokerManager is the external membership-stream collaborator (spec.md
// §6): IsStandalone reports whether cluster announcements apply at all,
// CurrentBrokers returns the present active set on demand, Membership
// streams every subsequent change in stable source order.
type BrokerManager interface {
	IsStandalone() bool
	CurrentBrokers(ctx context.Context) ([]Broker, error)
	Membership(ctx context.Context) (<-chan []Broker, error)
}

// Standalone is the BrokerManager for single-broker deployments: no
// membership changes are ever emitted, and IsStandalone is always true.
type Standalone struct{}

func (Standalone) IsStandalone() bool { return true }
func (Standalone) CurrentBrokers(context.Context) ([]Broker, error) { return nil, nil }
func (Standalone) Membership(context.Context) (<-chan []Broker, error) {
	ch := make(chan []Broker)
	return ch, nil
}

// Delays are the role-staggered announce delays from spec.md §4.5.
// Overridable for test tuning (see internal/config's Cluster section).
type Delays struct {
	PublishOnly    time.Duration // role bits 10, default 0
	PublishConsume time.Duration // role bits 11, default 15s
	Other          time.Duration // role bits 01 or other, default 30s
}

// DefaultDelays returns the 0s/15s/30s table from spec.md §4.5.
func DefaultDelays() Delays {
	return Delays{
		PublishOnly:    0,
		PublishConsume: 15 * time.Second,
		Other:          30 * time.Second,
	}
}

func (d Delays) forRoles(roles uint8) time.Duration {
	switch roles {
	case model.RolePublishes:
		return d.PublishOnly
	case model.RolePublishes | model.RoleConsumes:
		return d.PublishConsume
	default:
		return d.Other
	}
}

// Announcer drives the Cluster Announcer component. Run blocks until ctx
// is canceled or the membership stream closes.
type Announcer struct {
	manager   BrokerManager
	directory *registry.Directory
	delays    Delays
	group     string
	iface     string
	version   string
	logger    *zap.SugaredLogger
}

// New constructs an Announcer. group/iface/version populate the
// UpstreamClusterChanged envelope's identifying fields; they are fixed
// per-broker-deployment values supplied at startup.
func New(manager BrokerManager, directory *registry.Directory, delays Delays, group, iface, version string, logger *zap.SugaredLogger) *Announcer {
	return &Announcer{
		manager:   manager,
		directory: directory,
		delays:    delays,
		group:     group,
		iface:     iface,
		version:   version,
		logger:    logger,
	}
}

// Run subscribes to the membership stream and fans out every emission
// until ctx is done. Standalone managers return a stream that never fires,
// so Run simply blocks on ctx in that case.
func (a *Announcer) Run(ctx context.Context) error {
	if a.manager.IsStandalone() {
		<-ctx.Done()
		return ctx.Err()
	}

	stream, err := a.manager.Membership(ctx)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case brokers, ok := <-stream:
			if !ok {
				return nil
			}
			a.announce(brokers)
		}
	}
}

func (a *Announcer) announce(brokers []Broker) {
	uris := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if b.Active {
			uris = append(uris, b.URL)
		}
	}

	env := model.EventEnvelope{
		Type:            model.EventTypeUpstreamClusterChanged,
		Source:          "cluster://" + a.group,
		DataContentType: "application/json",
		Data: model.UpstreamClusterChanged{
			Group:         a.group,
			InterfaceName: a.iface,
			Version:       a.version,
			URIs:          uris,
		},
	}

	for _, h := range a.directory.FindAll() {
		h := h
		delay := a.delays.forRoles(h.Roles())
		if delay <= 0 {
			a.deliver(h, env)
			continue
		}
		// Each handler gets its own timer so a slow handler's delivery
		// never delays another's (spec.md §4.5).
		time.AfterFunc(delay, func() { a.deliver(h, env) })
	}
}

func (a *Announcer) deliver(h registry.ResponderHandler, env model.EventEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.Send(ctx, env); err != nil {
		a.logger.Warnf("cluster announce delivery failed: uuid=%s err=%v", h.AppDescriptor().UUID, err)
	}
}
