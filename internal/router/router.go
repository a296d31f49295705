// Package router is a thin layer over http.ServeMux that applies a shared
// middleware chain to every registered route.
package router

import (
	"net/http"
	"slices"
)

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Router registers method-qualified patterns ("POST /send-email") on a
// ServeMux. Middleware given to New runs first, in the order given.
type Router struct {
	mux   *http.ServeMux
	chain []Middleware
}

func New(middleware ...Middleware) *Router {
	return &Router{mux: http.NewServeMux(), chain: middleware}
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.mux.ServeHTTP(w, req)
}

func (r *Router) Get(pattern string, h http.HandlerFunc, extra ...Middleware) {
	r.Handle(http.MethodGet, pattern, h, extra...)
}

func (r *Router) Post(pattern string, h http.HandlerFunc, extra ...Middleware) {
	r.Handle(http.MethodPost, pattern, h, extra...)
}

// Handle registers h for method and pattern behind the router chain and any
// route-specific middleware.
func (r *Router) Handle(method, pattern string, h http.Handler, extra ...Middleware) {
	r.mux.Handle(method+" "+pattern, r.build(h, extra))
}

// Preflight answers OPTIONS on every path through the chain so the CORS
// middleware sees it. The mux alone would reply 405.
func (r *Router) Preflight() {
	r.Handle(http.MethodOptions, "/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
}

// NotFound handles every path no route matched, for any method.
func (r *Router) NotFound(h http.HandlerFunc) {
	r.mux.Handle("/", r.build(h, nil))
}

// Group returns a router on the same mux whose routes also pass through extra.
func (r *Router) Group(extra ...Middleware) *Router {
	return &Router{mux: r.mux, chain: slices.Concat(r.chain, extra)}
}

func (r *Router) build(h http.Handler, extra []Middleware) http.Handler {
	all := slices.Concat(r.chain, extra)
	for i := len(all) - 1; i >= 0; i-- {
		h = all[i](h)
	}
	return h
}
