// Package model holds the data types shared by the admission pipeline, the
// handler directory and the event bus: the app descriptor, the derived
// instance id, the authenticated principal, and the event envelope shapes
// published on the lifecycle topic.
package model

import "time"

// InstanceID is the 32-bit routing-level identity derived from
// hash32(credentials + ":" + uuid). It deliberately differs from the
// client-chosen UUID so a replayed UUID under different credentials maps
// to a different instance.
type InstanceID uint32

// Reserved AppDescriptor metadata keys populated by the admission pipeline
// from the authenticated principal. Never trust these from client setup
// metadata — admission overwrites them unconditionally.
const (
	MetaOrgs            = "_orgs"
	MetaRoles           = "_roles"
	MetaServiceAccounts = "_serviceAccounts"
)

// AppDescriptor is immutable per session after admission.
type AppDescriptor struct {
	UUID        string
	Name        string
	IP          string
	ConnectedAt time.Time
	InstanceID  InstanceID
	Metadata    map[string]string
}

// Clone returns a deep copy safe to hand to callers outside the directory.
func (d *AppDescriptor) Clone() *AppDescriptor {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Metadata = make(map[string]string, len(d.Metadata))
	for k, v := range d.Metadata {
		cp.Metadata[k] = v
	}
	return &cp
}

// Principal is the authenticated identity behind a session: real token
// verification, or the fixed mock principal when authentication is
// disabled.
type Principal struct {
	Subject          string
	Organizations    []string
	Roles            []string
	ServiceAccounts  []string
	Authorities      []string
}

// RoleBits. Bit 0 = consumes services, bit 1 = publishes services.
const (
	RoleConsumes uint8 = 1 << 0
	RolePublishes uint8 = 1 << 1
)

// PublishedService / ConsumedService attach the RPC layer's declarative
// service-name/group/version/encoding/endpoint tag to a handler, as a plain
// record rather than a struct-tag/annotation mechanism — the mapping itself
// belongs to the RPC layer, this core only stores it.
type PublishedService struct {
	Service  string
	Group    string
	Version  string
	Encoding string
	Endpoint string
}

type ConsumedService struct {
	Service string
	Group   string
	Version string
}

// AppStatusKind enumerates the lifecycle states carried on the lifecycle
// topic as AppStatus payloads.
type AppStatusKind string

const (
	AppStatusConnected     AppStatusKind = "CONNECTED"
	AppStatusServing       AppStatusKind = "SERVING"
	AppStatusOutOfService  AppStatusKind = "OUT_OF_SERVICE"
	AppStatusStopped       AppStatusKind = "STOPPED"
)

// AppStatus is one of the two EventEnvelope payload shapes used by the core.
type AppStatus struct {
	UUID   string        `json:"uuid"`
	Status AppStatusKind `json:"status"`
}

// UpstreamClusterChanged is the other EventEnvelope payload shape, fanned
// out by the cluster announcer on every membership change.
type UpstreamClusterChanged struct {
	Group         string   `json:"group"`
	InterfaceName string   `json:"interfaceName"`
	Version       string   `json:"version"`
	URIs          []string `json:"uris"`
}

// EventEnvelope is the structured message wrapper used on the lifecycle
// topic for both AppStatus and UpstreamClusterChanged payloads.
type EventEnvelope struct {
	ID              string `json:"id"`
	Time            time.Time `json:"time"`
	Type            string `json:"type"`
	Source          string `json:"source"`
	DataContentType string `json:"dataContentType"`
	DataSchema      *string `json:"dataSchema,omitempty"`
	Data            any    `json:"data"`
}

const (
	EventTypeAppStatus              = "org.hermes.broker.AppStatus"
	EventTypeUpstreamClusterChanged = "org.hermes.broker.UpstreamClusterChanged"
)
