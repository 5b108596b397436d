// Package vhost implements per-server virtual-host routing and the
// per-host context (path-prefix) table described by spec §4.9: a host
// name resolves to a VirtualHost, whose contexts resolve a request
// path to the longest registered ancestor prefix.
package vhost

import (
	"strings"
	"sync"
)

// Handler is the capability a registered context invokes for a
// matched request. Serve returns 0 when it has already written a
// complete response; any other value asks the dispatcher to send that
// status as a default error response. A handler that also implements
// Closer has its Close invoked by Server.Close - the unmount hook for
// handlers that hold open resources (e.g. a mounted archive).
type Handler interface {
	Serve(w ResponseWriter, r Request) int
}

// Closer is implemented by handlers that hold resources needing
// release on server shutdown.
type Closer interface {
	Close() error
}

// Request and ResponseWriter are the minimal structural interfaces a
// context's Handler needs. internal/request.Request and
// internal/response.Response both satisfy them without importing this
// package, which keeps vhost free of a dependency cycle.
type Request interface {
	GetMethod() string
	GetPath() string
}

type ResponseWriter interface {
	HeadersSent() bool
}

// ContextInfo is a registered path prefix on a VirtualHost: a table
// of per-method handlers. The empty path is the root context (a
// registration at "/") and is also the path of the host's empty
// placeholder context.
type ContextInfo struct {
	Path string

	mu       sync.RWMutex
	handlers map[string]Handler
}

func newContextInfo(path string) *ContextInfo {
	return &ContextInfo{Path: path, handlers: make(map[string]Handler)}
}

// Handler returns the handler registered for method, if any.
func (c *ContextInfo) Handler(method string) (Handler, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.handlers[strings.ToUpper(method)]
	return h, ok
}

// Methods returns the set of methods this context has handlers for.
func (c *ContextInfo) Methods() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.handlers))
	for m := range c.handlers {
		out = append(out, m)
	}
	return out
}

func (c *ContextInfo) empty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.handlers) == 0
}

// Empty reports whether this context has no registered handlers - the
// host's catch-all placeholder returned when GetContext finds no
// ancestor match.
func (c *ContextInfo) Empty() bool { return c.empty() }

// VirtualHost is a named (or default, name == "") routing namespace.
type VirtualHost struct {
	Name string

	DirectoryIndex     string // "" disables index-file rewriting
	AllowGeneratedIndex bool

	mu       sync.RWMutex
	contexts map[string]*ContextInfo
	methods  map[string]bool
	empty    *ContextInfo
}

// NewVirtualHost returns a host with the default directory-index
// filename "index.html" and no registered contexts.
func NewVirtualHost(name string) *VirtualHost {
	return &VirtualHost{
		Name:           name,
		DirectoryIndex: "index.html",
		contexts:       make(map[string]*ContextInfo),
		methods:        make(map[string]bool),
		empty:          newContextInfo(""),
	}
}

// AddContext registers handler for method on the path prefix path
// (trailing slash stripped). Registering a handler also records
// method into the host's method set, used by OPTIONS and 405
// handling. Configuration mutations are only safe before the server
// starts accepting connections; once running, the table is read-mostly.
func (v *VirtualHost) AddContext(path string, method string, handler Handler) {
	path = strings.TrimSuffix(path, "/")
	method = strings.ToUpper(method)

	v.mu.Lock()
	defer v.mu.Unlock()

	ctx, ok := v.contexts[path]
	if !ok {
		ctx = newContextInfo(path)
		v.contexts[path] = ctx
	}
	ctx.mu.Lock()
	ctx.handlers[method] = handler
	ctx.mu.Unlock()

	v.methods[method] = true
}

// Methods returns every method any context on this host supports,
// used for server-wide "OPTIONS *".
func (v *VirtualHost) Methods() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]string, 0, len(v.methods))
	for m := range v.methods {
		out = append(out, m)
	}
	return out
}

// GetContext implements spec §4.9's getContext: strip the trailing
// slash, then walk ancestor paths by trimming the last '/'-delimited
// segment until a registered context is found or the root is reached.
// Returns the host's empty ContextInfo if nothing matches - never a
// non-ancestor of path.
func (v *VirtualHost) GetContext(path string) *ContextInfo {
	path = strings.TrimSuffix(path, "/")

	v.mu.RLock()
	defer v.mu.RUnlock()

	for {
		if ctx, ok := v.contexts[path]; ok {
			return ctx
		}
		if path == "" {
			return v.empty
		}
		idx := strings.LastIndexByte(path, '/')
		if idx <= 0 {
			path = ""
		} else {
			path = path[:idx]
		}
	}
}

// Handlers returns the handler of every registration across all of
// this host's contexts, used by Server.Close to run Closer hooks. A
// handler registered more than once appears once per registration.
func (v *VirtualHost) Handlers() []Handler {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]Handler, 0, len(v.contexts))
	for _, ctx := range v.contexts {
		ctx.mu.RLock()
		for _, h := range ctx.handlers {
			out = append(out, h)
		}
		ctx.mu.RUnlock()
	}
	return out
}

// Table maps host names (the empty string is the default host) to
// VirtualHosts. Aliases share the owning host's entry.
type Table struct {
	mu    sync.RWMutex
	hosts map[string]*VirtualHost
}

func NewTable() *Table {
	return &Table{hosts: make(map[string]*VirtualHost)}
}

// Add registers host under its own name and every alias.
func (t *Table) Add(host *VirtualHost, aliases ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hosts[strings.ToLower(host.Name)] = host
	for _, a := range aliases {
		t.hosts[strings.ToLower(a)] = host
	}
}

// Lookup resolves name (already stripped of any port suffix) to its
// VirtualHost, falling back to the default host ("").
func (t *Table) Lookup(name string) *VirtualHost {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if h, ok := t.hosts[strings.ToLower(name)]; ok {
		return h
	}
	return t.hosts[""]
}

// AllHandlers returns Handlers() of every distinct host in the table
// (a host listed under aliases is visited once), used by Server.Close
// to run Closer hooks on shutdown.
func (t *Table) AllHandlers() []Handler {
	t.mu.RLock()
	hosts := make([]*VirtualHost, 0, len(t.hosts))
	seen := make(map[*VirtualHost]bool, len(t.hosts))
	for _, h := range t.hosts {
		if !seen[h] {
			seen[h] = true
			hosts = append(hosts, h)
		}
	}
	t.mu.RUnlock()

	var out []Handler
	for _, h := range hosts {
		out = append(out, h.Handlers()...)
	}
	return out
}
