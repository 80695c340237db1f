package server

import (
	"errors"

	"github.com/fluxhttp/flux/pkg/flux/cors"
	"github.com/fluxhttp/flux/pkg/flux/http11"
	"github.com/fluxhttp/flux/pkg/flux/memory"
	"github.com/fluxhttp/flux/pkg/flux/middleware"
	"github.com/fluxhttp/flux/pkg/flux/router"
)

// errRegionPoolExhausted is returned by Build's handler when the region
// pool has no Region to give this request. Per http11.Handler's contract,
// a non-nil error tells the connection to close rather than keep serving
// requests it can no longer give a backing allocation to.
var errRegionPoolExhausted = errors.New("server: region pool exhausted")

// RouteHandler is the application-facing terminal handler registered per
// route via Router.Get/Post/.../Use's get/post/put/patch/delete/head/
// options surface.
type RouteHandler func(req *http11.Request, res *http11.ResponseWriter)

// Router ties the route trie, the middleware chain runtime, the optional
// per-request region pool, and the CORS collaborator into the single
// http11.Handler a Connection calls per request. One Router is built at
// startup via the registration methods and Build, then treated as
// read-only for the life of the process, mirroring the trie's own
// build-then-serve split.
type Router struct {
	trie    *router.Trie
	global  []middleware.Func
	cors    cors.Collaborator
	regions *memory.RegionPool
}

// NewRouter returns an empty Router with no CORS collaborator (cors.Noop).
func NewRouter() *Router {
	return &Router{trie: router.NewTrie(), cors: cors.Noop{}}
}

// Use appends a middleware function run for every route, ahead of any
// per-route middleware, in registration order.
func (r *Router) Use(mw middleware.Func) { r.global = append(r.global, mw) }

// SetCORS installs the CORS collaborator consulted for OPTIONS preflight
// requests and response augmentation. Defaults to cors.Noop.
func (r *Router) SetCORS(c cors.Collaborator) {
	if c == nil {
		c = cors.Noop{}
	}
	r.cors = c
}

// SetRegionPool installs the pool Build's dispatcher acquires a Region
// from per request; captured parameter values are copied into it. Without
// one, parameter values are not copied and refer to the request's bytes.
func (r *Router) SetRegionPool(p *memory.RegionPool) { r.regions = p }

func (r *Router) register(method, pattern string, handler RouteHandler, mw []middleware.Func) {
	terminal := func(req, res interface{}) error {
		handler(req.(*http11.Request), res.(*http11.ResponseWriter))
		return nil
	}
	info := middleware.NewInfo(append([]middleware.Func(nil), mw...), terminal)
	r.trie.Insert(method, pattern, func(req, res interface{}) error {
		return middleware.NewChain(info, req, res).Run()
	}, info)
}

// Get registers a GET route.
func (r *Router) Get(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("GET", pattern, h, mw)
}

// Post registers a POST route.
func (r *Router) Post(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("POST", pattern, h, mw)
}

// Put registers a PUT route.
func (r *Router) Put(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("PUT", pattern, h, mw)
}

// Patch registers a PATCH route.
func (r *Router) Patch(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("PATCH", pattern, h, mw)
}

// Delete registers a DELETE route.
func (r *Router) Delete(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("DELETE", pattern, h, mw)
}

// Head registers a HEAD route.
func (r *Router) Head(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("HEAD", pattern, h, mw)
}

// Options registers an OPTIONS route. Most deployments never call this
// directly: the CORS collaborator's Preflight answers OPTIONS requests
// before the trie is consulted (see Build).
func (r *Router) Options(pattern string, h RouteHandler, mw ...middleware.Func) {
	r.register("OPTIONS", pattern, h, mw)
}

// RouteCount returns the number of routes registered.
func (r *Router) RouteCount() int { return r.trie.RouteCount() }

// Build returns the http11.Handler a Connection invokes per request. It
// acquires a region, matches the route, answers CORS preflight, populates
// path parameters, runs the global middleware ahead of the route's own
// chain, and falls back to 404 when nothing matches.
func (r *Router) Build() http11.Handler {
	notFound := func(res *http11.ResponseWriter) {
		res.WriteError(404, "not found")
	}

	return func(req *http11.Request, res *http11.ResponseWriter) error {
		if req.IsOPTIONS() && r.cors.Preflight(req, res) {
			return nil
		}

		if _, ok := router.TokenizePath(req.Path()); !ok {
			res.WriteError(400, "bad request")
			return nil
		}

		var region *memory.Region
		if r.regions != nil {
			region = r.regions.Acquire()
			if region == nil {
				res.WriteError(500, "region pool exhausted")
				return errRegionPoolExhausted
			}
			defer r.regions.Release(region)
		}

		match := router.NewRouteMatch(region)
		if !r.trie.Match(req.Method(), req.Path(), match) {
			notFound(res)
			return nil
		}

		if params := match.Params(); len(params) > 0 {
			rp := make([]http11.RouteParam, len(params))
			for i, p := range params {
				rp[i] = http11.RouteParam{Key: p.Key, Value: p.Value}
			}
			req.SetRouteParams(rp)
		}

		routeHandler := match.Handler

		var err error
		if len(r.global) > 0 {
			info := middleware.NewInfo(r.global, func(req, res interface{}) error {
				return routeHandler(req, res)
			})
			err = middleware.NewChain(info, req, res).Run()
		} else {
			err = routeHandler(req, res)
		}

		r.cors.Augment(req, res)
		return err
	}
}
