// Package mesh defines the opaque ServiceMeshInspector collaborator. Mesh
// policy evaluation itself is out of scope for the registry core (spec.md
// Non-goals); the registry only threads this value through to the
// responder handler factory.
package mesh

// Inspector is passed opaquely to the responder handler constructor. The
// registry never calls into it directly.
type Inspector interface {
	// Name identifies the inspector implementation, useful for logging.
	Name() string
}

// NoopInspector satisfies Inspector without evaluating any policy. Used for
// standalone deployments and tests where a full mesh policy engine isn't
// wired up.
type NoopInspector struct{}

func (NoopInspector) Name() string { return "noop" }
