package topology

import (
	"fmt"
)

// Node describes an object to insert with Builder.Add
type Node struct {
	Type    ObjectType
	Subtype string
	Name    string
	Infos   []Info
	Attr    Attr
}

// Builder accumulates objects during discovery. The root Machine object is
// created by NewBuilder. A Builder is consumed by Topology.Load and must not
// be reused afterwards.
type Builder struct {
	objects []*Object
}

// NewBuilder creates a builder holding only the Machine root
func NewBuilder() *Builder {
	return &Builder{
		objects: []*Object{{
			ID:     0,
			Type:   TypeMachine,
			parent: NoObject,
		}},
	}
}

// Root returns the id of the Machine root
func (b *Builder) Root() ObjectID {
	return 0
}

// Len returns the number of objects added so far, root included
func (b *Builder) Len() int {
	return len(b.objects)
}

// Add inserts an object below parent and returns its provisional id
func (b *Builder) Add(parent ObjectID, n Node) (ObjectID, error) {
	if !b.valid(parent) {
		return NoObject, fmt.Errorf("invalid parent id %d", parent)
	}
	if n.Type == TypeMachine {
		return NoObject, fmt.Errorf("a topology has exactly one machine root")
	}
	if err := checkAttr(n.Type, n.Attr); err != nil {
		return NoObject, err
	}

	id := ObjectID(len(b.objects))
	b.objects = append(b.objects, &Object{
		ID:      id,
		Type:    n.Type,
		Subtype: n.Subtype,
		Name:    n.Name,
		Infos:   append([]Info(nil), n.Infos...),
		Attr:    n.Attr,
		parent:  parent,
	})
	b.objects[parent].children = append(b.objects[parent].children, id)
	return id, nil
}

// MustAdd is like Add but panics on error. Meant for fixtures.
func (b *Builder) MustAdd(parent ObjectID, n Node) ObjectID {
	id, err := b.Add(parent, n)
	if err != nil {
		panic(err)
	}
	return id
}

// AddInfo appends an info pair to an object
func (b *Builder) AddInfo(id ObjectID, name, value string) {
	if !b.valid(id) || value == "" {
		return
	}
	b.objects[id].Infos = append(b.objects[id].Infos, Info{Name: name, Value: value})
}

// SetName sets the name of an object
func (b *Builder) SetName(id ObjectID, name string) {
	if b.valid(id) {
		b.objects[id].Name = name
	}
}

func (b *Builder) valid(id ObjectID) bool {
	return id >= 0 && int(id) < len(b.objects)
}

// checkAttr makes sure the payload matches the type tag
func checkAttr(typ ObjectType, attr Attr) error {
	switch typ {
	case TypeBridge:
		bridge, ok := attr.(*BridgeAttr)
		if !ok || bridge == nil {
			return fmt.Errorf("bridge object requires *BridgeAttr, got %T", attr)
		}
		if (bridge.UpstreamType == BridgePCI) != (bridge.Upstream != nil) {
			return fmt.Errorf("bridge upstream attributes must be set exactly when upstream type is PCI")
		}
		if (bridge.DownstreamType == BridgePCI) != (bridge.Downstream != nil) {
			return fmt.Errorf("bridge downstream range must be set exactly when downstream type is PCI")
		}
		return nil
	case TypePCIDevice, TypeOSDevice, TypeNUMANode:
		if isNilAttr(attr) || attr.objectType() != typ {
			return fmt.Errorf("%s object has mismatched attributes %T", typ, attr)
		}
		return nil
	default:
		if attr != nil && attr.objectType() != typ {
			return fmt.Errorf("%s object has mismatched attributes %T", typ, attr)
		}
		return nil
	}
}

// build applies the I/O filter, compacts the arena in depth-first order and
// computes depths and logical indexes
func (b *Builder) build(owner *Topology, filter IOFilter) ([]*Object, map[Address]ObjectID) {
	b.prune(b.Root(), filter)

	objects := make([]*Object, 0, len(b.objects))
	byBusID := make(map[Address]ObjectID)
	logical := make(map[ObjectType]int)

	var visit func(old ObjectID, parent ObjectID, depth int)
	visit = func(old ObjectID, parent ObjectID, depth int) {
		o := b.objects[old]
		id := ObjectID(len(objects))
		oldChildren := o.children

		o.ID = id
		o.parent = parent
		o.Depth = depth
		o.LogicalIndex = logical[o.Type]
		o.children = nil
		o.owner = owner
		logical[o.Type]++

		objects = append(objects, o)
		if parent != NoObject {
			objects[parent].children = append(objects[parent].children, id)
		}
		if pci, ok := o.PCIDev(); ok {
			byBusID[pci.Address] = id
		}

		for _, child := range oldChildren {
			visit(child, id, depth+1)
		}
	}
	visit(b.Root(), NoObject, 0)

	b.objects = nil
	return objects, byBusID
}

// prune removes filtered I/O objects below id and reports whether id survives
func (b *Builder) prune(id ObjectID, filter IOFilter) bool {
	o := b.objects[id]

	if filter == IOFilterImportant {
		if pci, ok := o.PCIDev(); ok && !importantPCIClass(pci.ClassID) {
			return false
		}
	}

	kept := o.children[:0]
	for _, child := range o.children {
		if b.prune(child, filter) {
			kept = append(kept, child)
		}
	}
	o.children = kept

	if filter == IOFilterImportant && o.Type == TypeBridge && len(o.children) == 0 {
		return false
	}
	return true
}

func isNilAttr(attr Attr) bool {
	switch a := attr.(type) {
	case nil:
		return true
	case *PCIDevAttr:
		return a == nil
	case *BridgeAttr:
		return a == nil
	case *NUMANodeAttr:
		return a == nil
	case *OSDevAttr:
		return a == nil
	}
	return false
}
