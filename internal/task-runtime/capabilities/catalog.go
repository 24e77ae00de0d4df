// Package capabilities holds the fixed process-wide registry of injectable
// service handles. A task only ever receives handles for names it declared in
// its definition; handles are bound positionally in catalog order.
package capabilities

import "log"

// Handle is a capability as seen from task code: a bag of named methods.
// Values are Go functions; the sandbox converts them into callable slots.
type Handle map[string]interface{}

// Catalog order is fixed at startup and defines the positional binding order
// of declared capabilities.
const (
	CapabilityFetch   = "fetch"
	CapabilitySMS     = "sms"
	CapabilityClock   = "clock"
	CapabilityBrowser = "browser"
	CapabilityFeed    = "feed"
)

// Catalog maps capability names to resolved handles. It is initialized once at
// startup and read-only afterwards.
type Catalog struct {
	order   []string
	handles map[string]Handle
}

// NewCatalog builds the full catalog from the environment. Capabilities whose
// configuration is missing still resolve to a placeholder handle that fails
// only when actually exercised.
func NewCatalog() *Catalog {
	c := &Catalog{handles: map[string]Handle{}}
	c.register(CapabilityFetch, newFetchHandle())
	c.register(CapabilitySMS, newSMSHandle())
	c.register(CapabilityClock, newClockHandle())
	c.register(CapabilityBrowser, newBrowserHandle())
	c.register(CapabilityFeed, newFeedHandle())
	return c
}

// NewCatalogWith builds a catalog from explicit handles, preserving insertion
// order. Used by tests to substitute deterministic handles.
func NewCatalogWith(names []string, handles map[string]Handle) *Catalog {
	c := &Catalog{handles: map[string]Handle{}}
	for _, name := range names {
		c.register(name, handles[name])
	}
	return c
}

func (c *Catalog) register(name string, h Handle) {
	c.order = append(c.order, name)
	c.handles[name] = h
}

// Resolve returns the handle for name. An unknown name is a warning, not an
// error: the caller drops the slot.
func (c *Catalog) Resolve(name string) (Handle, bool) {
	h, ok := c.handles[name]
	if !ok {
		log.Printf("capability catalog: unknown capability %q requested", name)
	}
	return h, ok
}

// Order returns the catalog-defined binding order.
func (c *Catalog) Order() []string {
	return c.order
}

// BindDeclared resolves the declared names into handles following catalog
// order. Unknown names are dropped after reporting through warn.
func (c *Catalog) BindDeclared(declared []string, warn func(msg string)) []Handle {
	want := map[string]bool{}
	for _, name := range declared {
		want[name] = true
	}
	var handles []Handle
	for _, name := range c.order {
		if !want[name] {
			continue
		}
		delete(want, name)
		h, _ := c.Resolve(name)
		handles = append(handles, h)
	}
	for name := range want {
		c.Resolve(name) // logs the process-level warning
		if warn != nil {
			warn("unknown capability " + name + " dropped")
		}
	}
	return handles
}

// unavailable builds a placeholder handle exposing the given method names.
// Every method fails with the same explanation the moment it is called.
func unavailable(name, reason string, methods ...string) Handle {
	h := Handle{}
	for _, m := range methods {
		h[m] = func(args ...interface{}) (interface{}, error) {
			return nil, &UnavailableError{Capability: name, Reason: reason}
		}
	}
	return h
}

// UnavailableError is raised when a task exercises a declared capability whose
// backing service is not configured in this process.
type UnavailableError struct {
	Capability string
	Reason     string
}

func (e *UnavailableError) Error() string {
	return "capability " + e.Capability + " is not available: " + e.Reason
}
