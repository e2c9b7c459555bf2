// Package topology builds a read-only tree of machine, NUMA and PCI objects
// and answers bus-id and ancestor queries against it.
package topology

import (
	"context"
	"errors"
	"fmt"

	"pcitopo/pkg"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrNotLoaded is returned when a query needs a loaded topology
	ErrNotLoaded = errors.New("topology not loaded")
	// ErrClosed is returned when a closed topology is used
	ErrClosed = errors.New("topology closed")
)

// Provider fills a Builder with discovered objects
type Provider interface {
	Discover(ctx context.Context, b *Builder) error
}

// ProviderFunc adapts a function to the Provider interface
type ProviderFunc func(ctx context.Context, b *Builder) error

// Discover calls f(ctx, b)
func (f ProviderFunc) Discover(ctx context.Context, b *Builder) error {
	return f(ctx, b)
}

// Topology is a handle on a discovered object tree. Create it with Init,
// populate it with Load and release it with Close.
type Topology struct {
	provider Provider
	filter   IOFilter

	objects []*Object
	byBusID map[Address]ObjectID
	loaded  bool
	closed  bool
}

// Init prepares a topology handle. Without WithProvider the sysfs provider is used.
func Init(opts ...Option) (*Topology, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	provider := o.provider
	if provider == nil {
		sysfs, err := NewSysfsProvider(o.sysfs)
		if err != nil {
			return nil, fmt.Errorf("init sysfs provider: %w", err)
		}
		provider = sysfs
	}

	return &Topology{
		provider: provider,
		filter:   o.filter,
	}, nil
}

// Load runs discovery and freezes the resulting tree. Loading again replaces
// the previous tree; objects from the previous load no longer belong to t.
func (t *Topology) Load(ctx context.Context) error {
	if t.closed {
		return ErrClosed
	}

	b := NewBuilder()
	if err := t.provider.Discover(ctx, b); err != nil {
		return fmt.Errorf("discover topology: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	t.objects, t.byBusID = b.build(t, t.filter)
	t.loaded = true

	pkg.WithFields(log.Fields{
		"objects":     len(t.objects),
		"pci_devices": len(t.byBusID),
		"io_filter":   t.filter.String(),
	}).Debug("topology loaded")
	return nil
}

// Close releases the tree. It is safe to call more than once.
func (t *Topology) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.loaded = false
	t.objects = nil
	t.byBusID = nil
	return nil
}

// Loaded reports whether Load succeeded and Close has not been called
func (t *Topology) Loaded() bool {
	return t.loaded
}

// Root returns the Machine object, or nil when not loaded
func (t *Topology) Root() *Object {
	if len(t.objects) == 0 {
		return nil
	}
	return t.objects[0]
}

// Object returns the object with the given id, or nil
func (t *Topology) Object(id ObjectID) *Object {
	if id < 0 || int(id) >= len(t.objects) {
		return nil
	}
	return t.objects[id]
}

// Len returns the number of objects
func (t *Topology) Len() int {
	return len(t.objects)
}

// Contains reports whether o belongs to this topology
func (t *Topology) Contains(o *Object) bool {
	return o != nil && o.owner == t && t.Object(o.ID) == o
}

// Parent returns the parent of o, or nil for the root or a foreign object
func (t *Topology) Parent(o *Object) *Object {
	if !t.Contains(o) || o.parent == NoObject {
		return nil
	}
	return t.objects[o.parent]
}

// Children returns the children of o in order
func (t *Topology) Children(o *Object) []*Object {
	if !t.Contains(o) {
		return nil
	}
	children := make([]*Object, 0, len(o.children))
	for _, id := range o.children {
		children = append(children, t.objects[id])
	}
	return children
}

// ObjectsByType returns every object of the given type in logical index order
func (t *Topology) ObjectsByType(typ ObjectType) []*Object {
	var out []*Object
	for _, o := range t.objects {
		if o.Type == typ {
			out = append(out, o)
		}
	}
	return out
}

// PCIDevice returns the PCI device with the given address. Bridges are not matched.
func (t *Topology) PCIDevice(addr Address) (*Object, bool) {
	id, ok := t.byBusID[addr]
	if !ok {
		return nil, false
	}
	return t.objects[id], true
}

// LookupBusID parses a bus id string and returns the matching PCI device.
// Unparsable strings are reported as not found.
func (t *Topology) LookupBusID(busID string) (*Object, bool) {
	addr, err := ParseBusID(busID)
	if err != nil {
		return nil, false
	}
	return t.PCIDevice(addr)
}

// CommonAncestor returns the deepest object that is an ancestor of both a
// and b (an object is its own ancestor). It fails when either object does
// not belong to this topology.
func (t *Topology) CommonAncestor(a, b *Object) (*Object, bool) {
	if !t.Contains(a) || !t.Contains(b) {
		return nil, false
	}

	for a != b {
		for a.Depth > b.Depth {
			a = t.objects[a.parent]
		}
		for b.Depth > a.Depth {
			b = t.objects[b.parent]
		}
		if a != b && a.Depth == b.Depth {
			if a.parent == NoObject || b.parent == NoObject {
				return nil, false
			}
			a = t.objects[a.parent]
			b = t.objects[b.parent]
		}
	}
	return a, true
}

// IsAncestor reports whether ancestor is o or lies on the parent chain of o
func (t *Topology) IsAncestor(ancestor, o *Object) bool {
	if !t.Contains(ancestor) {
		return false
	}
	for cur := o; cur != nil; cur = t.Parent(cur) {
		if cur == ancestor {
			return true
		}
	}
	return false
}
