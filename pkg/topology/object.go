package topology

// ObjectID is the stable arena index of an object inside its topology
type ObjectID int

// NoObject is the parent of the root object
const NoObject ObjectID = -1

// Object is a node of a loaded topology. Objects are owned by their Topology
// and must not be modified once it is loaded.
type Object struct {
	ID           ObjectID
	Type         ObjectType
	Subtype      string
	Name         string
	Depth        int
	LogicalIndex int
	Infos        []Info
	Attr         Attr

	parent   ObjectID
	children []ObjectID
	owner    *Topology
}

// ParentID returns the arena index of the parent, or NoObject for the root
func (o *Object) ParentID() ObjectID {
	return o.parent
}

// ChildIDs returns the arena indexes of the children in order
func (o *Object) ChildIDs() []ObjectID {
	return append([]ObjectID(nil), o.children...)
}

// Arity returns the number of children
func (o *Object) Arity() int {
	return len(o.children)
}

// IsRoot reports whether the object has no parent
func (o *Object) IsRoot() bool {
	return o.parent == NoObject
}

// PCIDev returns the PCI attributes if the object is a PCI device
func (o *Object) PCIDev() (*PCIDevAttr, bool) {
	if o.Type != TypePCIDevice {
		return nil, false
	}
	attr, ok := o.Attr.(*PCIDevAttr)
	return attr, ok
}

// Bridge returns the bridge attributes if the object is a bridge
func (o *Object) Bridge() (*BridgeAttr, bool) {
	if o.Type != TypeBridge {
		return nil, false
	}
	attr, ok := o.Attr.(*BridgeAttr)
	return attr, ok
}

// NUMANode returns the NUMA attributes if the object is a NUMA node
func (o *Object) NUMANode() (*NUMANodeAttr, bool) {
	if o.Type != TypeNUMANode {
		return nil, false
	}
	attr, ok := o.Attr.(*NUMANodeAttr)
	return attr, ok
}

// OSDev returns the OS device attributes if the object is an OS device
func (o *Object) OSDev() (*OSDevAttr, bool) {
	if o.Type != TypeOSDevice {
		return nil, false
	}
	attr, ok := o.Attr.(*OSDevAttr)
	return attr, ok
}

// IsHostBridge reports whether the object is a bridge whose upstream side is the host
func (o *Object) IsHostBridge() bool {
	bridge, ok := o.Bridge()
	return ok && bridge.UpstreamType == BridgeHost
}

// BusID returns the PCI address of a PCI device or PCI-to-PCI bridge
func (o *Object) BusID() (Address, bool) {
	if pci, ok := o.PCIDev(); ok {
		return pci.Address, true
	}
	if bridge, ok := o.Bridge(); ok && bridge.UpstreamType == BridgePCI && bridge.Upstream != nil {
		return bridge.Upstream.Address, true
	}
	return Address{}, false
}

// Info returns the value of the first info pair with the given name
func (o *Object) Info(name string) (string, bool) {
	for _, info := range o.Infos {
		if info.Name == name {
			return info.Value, true
		}
	}
	return "", false
}
