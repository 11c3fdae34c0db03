// Package router assembles the versioned API surface from per-domain
// route groups so the route table in main reads as one block per
// bounded context.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RouteRegistrar mounts a set of routes onto a gin group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router mounts registrars under /api/<version>.
type Router struct {
	engine     *gin.Engine
	apiVersion string
	middleware []gin.HandlerFunc
	registrars []RouteRegistrar
}

// RouterOption configures a Router.
type RouterOption func(*Router)

// WithAPIVersion overrides the default "v1" prefix segment.
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) { r.apiVersion = version }
}

// NewRouter creates a Router on the given engine.
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{engine: engine, apiVersion: "v1"}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Use adds middleware applied to every route under the API prefix.
// Middleware registered directly on the engine also covers routes
// outside the prefix, such as /health.
func (r *Router) Use(middleware ...gin.HandlerFunc) *Router {
	r.middleware = append(r.middleware, middleware...)
	return r
}

// Register queues registrars for Setup.
func (r *Router) Register(registrars ...RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrars...)
	return r
}

// Setup mounts everything registered so far onto the engine.
func (r *Router) Setup() {
	api := r.engine.Group("/api/"+r.apiVersion, r.middleware...)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup collects the routes of one bounded context under a
// shared prefix.
type DomainGroup struct {
	prefix     string
	middleware []gin.HandlerFunc
	routes     []route
}

type route struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a route group mounted at prefix.
func NewDomainGroup(prefix string) *DomainGroup {
	return &DomainGroup{prefix: prefix}
}

// Use adds middleware covering every route in the group.
func (g *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	g.middleware = append(g.middleware, middleware...)
	return g
}

func (g *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodGet, path, handlers)
}

func (g *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodPost, path, handlers)
}

func (g *DomainGroup) PUT(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodPut, path, handlers)
}

func (g *DomainGroup) PATCH(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodPatch, path, handlers)
}

func (g *DomainGroup) DELETE(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return g.add(http.MethodDelete, path, handlers)
}

func (g *DomainGroup) add(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	g.routes = append(g.routes, route{method: method, path: path, handlers: handlers})
	return g
}

// RegisterRoutes implements RouteRegistrar.
func (g *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	mount := rg.Group(g.prefix, g.middleware...)
	for _, rt := range g.routes {
		mount.Handle(rt.method, rt.path, rt.handlers...)
	}
}
