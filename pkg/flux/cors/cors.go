// Package cors declares the CORS collaborator contract consulted by the
// router dispatcher. Concrete header-composition policy is an external
// concern; this package fixes the interface the dispatcher calls through,
// plus a no-op default so a server can run without a CORS collaborator
// configured at all, and FromConfig (config.go), a collaborator for one
// fixed default policy.
package cors

// Collaborator is implemented by an external CORS policy. The dispatcher
// calls Preflight first for OPTIONS requests; if it returns true the
// collaborator has already written res and the dispatcher returns without
// invoking the route. For non-preflight requests the dispatcher calls
// Augment after the handler (or middleware chain) has produced a response,
// letting the collaborator add CORS headers.
type Collaborator interface {
	// Preflight inspects a request and, if it is a CORS preflight, mutates
	// res and returns true. req and res are passed as interface{} to avoid
	// an import cycle with the http11 request/response types; a concrete
	// collaborator type-asserts to the types it expects.
	Preflight(req, res interface{}) bool

	// Augment adds CORS headers to a non-preflight response when enabled.
	Augment(req, res interface{})
}

// Noop is the zero-configuration default: it never claims a preflight and
// never augments a response. Servers that don't need CORS wire this in by
// default so the dispatcher's collaborator hook is never nil.
type Noop struct{}

func (Noop) Preflight(req, res interface{}) bool { return false }
func (Noop) Augment(req, res interface{})        {}
