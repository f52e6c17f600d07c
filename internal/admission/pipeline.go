package admission

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/auth"
	"github.com/jizhuozhi/hermes/broker/internal/hashutil"
	"github.com/jizhuozhi/hermes/broker/internal/mesh"
	"github.com/jizhuozhi/hermes/broker/internal/metadata"
	"github.com/jizhuozhi/hermes/broker/internal/model"
	"github.com/jizhuozhi/hermes/broker/internal/registry"
	"github.com/jizhuozhi/hermes/broker/internal/routing"
	"github.com/jizhuozhi/hermes/broker/internal/transport"
	"github.com/jizhuozhi/hermes/broker/internal/workerpool"
)

// minUUIDLength is the app descriptor's minimum opaque-identifier length
// (spec.md §4.2 step 4).
const minUUIDLength = 32

// Deps bundles the collaborators the admission pipeline consumes. Mesh,
// Filters and LocalCaller are passed through opaquely to the responder
// handler factory; the pipeline itself never inspects them.
type Deps struct {
	Auth        auth.Service
	Selector    routing.Mutator
	Directory   *registry.Directory
	Disposal    *workerpool.Pool
	Mesh        mesh.Inspector
	Filters     registry.FilterChain
	LocalCaller registry.LocalServiceCaller
	Factory     registry.Factory
	Logger      *zap.SugaredLogger

	// AcceptTimeout bounds the Authenticate collaborator call when it
	// exposes a synchronous contract (spec.md §5).
	AcceptTimeout time.Duration
}

// Pipeline implements the Admission Pipeline (C2): accept(setupPayload,
// requesterSocket) -> AdmitResult, spec.md §4.2.
type Pipeline struct {
	deps Deps
}

// New returns a ready Pipeline. deps.Factory defaults to
// registry.NewResponderHandler when nil.
func New(deps Deps) *Pipeline {
	if deps.Factory == nil {
		deps.Factory = registry.NewResponderHandler
	}
	if deps.AcceptTimeout <= 0 {
		deps.AcceptTimeout = 10 * time.Second
	}
	return &Pipeline{deps: deps}
}

// Accept drives the ten admission steps of spec.md §4.2 in order. On any
// rejection, socket is closed exactly once, no index is mutated and no
// event is published.
func (p *Pipeline) Accept(ctx context.Context, setupPayload []byte, socket transport.RequesterSocket) (registry.ResponderHandler, *RejectError) {
	h, rerr := p.acceptRecovered(ctx, setupPayload, socket)
	if rerr != nil {
		if cerr := socket.Close(); cerr != nil {
			p.deps.Logger.Warnf("reject-path socket close failed: %v", cerr)
		}
		p.deps.Logger.Infow("admission rejected", "code", rerr.Code, "reason", rerr.Message)
		return nil, rerr
	}
	return h, nil
}

// acceptRecovered guards accept against an unexpected panic in any
// collaborator, surfacing it as the same InternalError/RST-600500 shape a
// caught error would take instead of crashing the accept goroutine.
func (p *Pipeline) acceptRecovered(ctx context.Context, setupPayload []byte, socket transport.RequesterSocket) (h registry.ResponderHandler, rerr *RejectError) {
	defer func() {
		if r := recover(); r != nil {
			ie := &InternalError{Code: CodeUnexpectedFailure, Cause: fmt.Errorf("%v", r)}
			p.deps.Logger.Errorf("admission panic recovered: %v\n%s", ie, debug.Stack())
			h, rerr = nil, reject(CodeUnexpectedFailure, "unexpected admission failure")
		}
	}()
	return p.accept(ctx, setupPayload, socket)
}

func (p *Pipeline) accept(ctx context.Context, setupPayload []byte, socket transport.RequesterSocket) (registry.ResponderHandler, *RejectError) {
	// Step 1: parse (PARSING).
	cm, err := metadata.Parse(setupPayload)
	if err != nil {
		return nil, reject(CodeParseFailure, "composite metadata parse failure: %v", err)
	}

	// Step 2: authenticate (AUTHENTICATING).
	principal, credentials, rerr := p.authenticate(ctx, cm)
	if rerr != nil {
		return nil, rerr
	}

	// Step 3: app descriptor present (VALIDATING_APP).
	appBytes, ok := cm.Get(metadata.MimeApplication)
	if !ok {
		return nil, reject(CodeMissingDescriptor, "missing app descriptor")
	}
	desc, err := parseAppDescriptor(appBytes)
	if err != nil {
		return nil, reject(CodeMissingDescriptor, "malformed app descriptor: %v", err)
	}

	// Step 4: uuid shape.
	if len(desc.UUID) < minUUIDLength {
		return nil, reject(CodeMalformedUUID, "malformed app uuid: %q", desc.UUID)
	}

	// Step 5: instance-id derivation.
	instanceID := hashutil.InstanceID(credentials, desc.UUID)
	desc.InstanceID = instanceID

	// Step 6: uniqueness (CHECKING_UNIQUENESS).
	if p.deps.Selector.ContainsInstance(instanceID) {
		return nil, reject(CodeDuplicateInstance, "duplicate live instance id %d", instanceID)
	}

	// Step 7: principal enrichment (ENRICHING).
	if desc.Metadata == nil {
		desc.Metadata = make(map[string]string)
	}
	desc.Metadata[model.MetaOrgs] = strings.Join(principal.Organizations, ",")
	desc.Metadata[model.MetaRoles] = strings.Join(principal.Roles, ",")
	desc.Metadata[model.MetaServiceAccounts] = strings.Join(principal.ServiceAccounts, ",")
	desc.ConnectedAt = time.Now()

	// Step 8: construct handler (CONSTRUCTING). Re-claim uniqueness under
	// the selector's own single-lock ClaimInstance: the step 6 probe and
	// this claim are two separate calls, so a concurrent admission for the
	// same instance id can still slip between them. ClaimInstance folds
	// the check and the insert into one critical section, so only one of
	// two colliding admissions ever wins; the other is rejected here
	// rather than silently corrupting the directory.
	if !p.claimInstance(instanceID) {
		return nil, reject(CodeDuplicateInstance, "duplicate live instance id %d", instanceID)
	}

	h, err := p.deps.Factory(registry.Deps{
		Socket:      socket,
		Descriptor:  desc,
		Principal:   principal,
		Mesh:        p.deps.Mesh,
		Filters:     p.deps.Filters,
		LocalCaller: p.deps.LocalCaller,
	})
	if err != nil {
		p.deps.Selector.RemoveInstance(instanceID)
		ie := &InternalError{Code: CodeConstructionFailure, Cause: err}
		p.deps.Logger.Errorf("%v", ie)
		return nil, reject(CodeConstructionFailure, "responder construction failed: %v", err)
	}

	// Step 9: register disposal hook. Disposal never runs on the accept
	// path (spec.md §5) — it is scheduled on the worker pool when the
	// socket's close signal fires.
	go p.watchDisposal(h)

	// Step 10: register (REGISTERED).
	p.deps.Directory.OnHandlerRegistered(h)
	p.deps.Logger.Infof("%s admitted uuid=%s name=%s instanceId=%d", CodeAcceptSuccess, desc.UUID, desc.Name, instanceID)

	return h, nil
}

// claimInstance delegates to the selector's atomic ClaimInstance, the
// single critical section that closes the check-then-act race between
// step 6 and step 8 (spec.md §5).
func (p *Pipeline) claimInstance(id model.InstanceID) bool {
	return p.deps.Selector.ClaimInstance(id)
}

func (p *Pipeline) watchDisposal(h registry.ResponderHandler) {
	<-h.Closed()
	p.deps.Directory.MarkDisposalPending(h.InstanceID())
	p.deps.Disposal.Submit(func() {
		p.deps.Selector.RemoveInstance(h.InstanceID())
		p.deps.Directory.OnHandlerDisposed(h)
		p.deps.Logger.Infof("%s disposed uuid=%s instanceId=%d", CodeDisposal, h.AppDescriptor().UUID, h.InstanceID())
	})
}

func (p *Pipeline) authenticate(ctx context.Context, cm *metadata.CompositeMetadata) (*model.Principal, string, *RejectError) {
	if _, ok := p.deps.Auth.(auth.Disabled); ok {
		principal, err := p.deps.Auth.Auth(ctx, "MOCK", "")
		if err != nil {
			de := &DependencyError{Cause: err}
			p.deps.Logger.Warnf("auth collaborator failed: %v", de)
			return nil, "", reject(CodeAuthFailure, "mock auth failed: %v", err)
		}
		// Fresh random credential salt per connection (spec.md §4.2 step 2):
		// the mock path still needs a credentials string to derive a
		// deterministic-per-connection instance id from.
		return principal, uuid.NewString(), nil
	}

	tokenBytes, ok := cm.Get(metadata.MimeBearerToken)
	if !ok || len(tokenBytes) == 0 {
		return nil, "", reject(CodeAuthFailure, "missing bearer token")
	}
	token := string(tokenBytes)

	actx, cancel := context.WithTimeout(ctx, p.deps.AcceptTimeout)
	defer cancel()

	principal, err := p.deps.Auth.Auth(actx, "JWT", token)
	if err != nil {
		de := &DependencyError{Cause: err}
		p.deps.Logger.Warnf("auth collaborator failed: %v", de)
		return nil, "", reject(CodeAuthFailure, "authentication failed: %v", err)
	}
	return principal, token, nil
}

// parseAppDescriptor decodes the Application mime entry's JSON payload
// into an AppDescriptor stub (uuid/name/ip only; metadata and
// instance-derived fields are filled in by the pipeline).
func parseAppDescriptor(raw []byte) (*model.AppDescriptor, error) {
	var stub struct {
		UUID string            `json:"uuid"`
		Name string            `json:"name"`
		IP   string            `json:"ip"`
		Meta map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(raw, &stub); err != nil {
		return nil, fmt.Errorf("decode app descriptor: %w", err)
	}
	return &model.AppDescriptor{
		UUID:     stub.UUID,
		Name:     stub.Name,
		IP:       stub.IP,
		Metadata: stub.Meta,
	}, nil
}
