package topology

import "fmt"

// ObjectType is the type tag of a topology object
type ObjectType int

const (
	// TypeMachine is the root of every topology
	TypeMachine ObjectType = iota
	// TypePackage is a processor package
	TypePackage
	// TypeNUMANode is a NUMA memory node
	TypeNUMANode
	// TypeBridge is a host bridge or a PCI-to-PCI bridge
	TypeBridge
	// TypePCIDevice is a PCI function that is not a bridge
	TypePCIDevice
	// TypeOSDevice is an operating system device (netdev, block device) below a PCI function
	TypeOSDevice
)

var objectTypeNames = map[ObjectType]string{
	TypeMachine:   "Machine",
	TypePackage:   "Package",
	TypeNUMANode:  "NUMANode",
	TypeBridge:    "Bridge",
	TypePCIDevice: "PCIDev",
	TypeOSDevice:  "OSDev",
}

func (t ObjectType) String() string {
	if name, ok := objectTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("ObjectType(%d)", int(t))
}

// BridgeType describes the bus on either side of a bridge
type BridgeType int

const (
	// BridgeHost is the CPU side of a host bridge
	BridgeHost BridgeType = iota
	// BridgePCI is a PCI bus
	BridgePCI
)

func (t BridgeType) String() string {
	switch t {
	case BridgeHost:
		return "Host"
	case BridgePCI:
		return "PCI"
	default:
		return fmt.Sprintf("BridgeType(%d)", int(t))
	}
}

// OSDeviceType is the kind of an operating system device
type OSDeviceType int

const (
	OSDeviceNetwork OSDeviceType = iota
	OSDeviceBlock
)

func (t OSDeviceType) String() string {
	switch t {
	case OSDeviceNetwork:
		return "Network"
	case OSDeviceBlock:
		return "Block"
	default:
		return fmt.Sprintf("OSDeviceType(%d)", int(t))
	}
}

// Info is a key/value string pair attached to an object
type Info struct {
	Name  string `json:"name" yaml:"name"`
	Value string `json:"value" yaml:"value"`
}

func nonEmptyInfos(infos ...Info) []Info {
	out := infos[:0]
	for _, info := range infos {
		if info.Value != "" {
			out = append(out, info)
		}
	}
	return out
}

// Attr is the type-specific payload of an object. The concrete type always
// matches the object's type tag; use the typed accessors on Object to read it.
type Attr interface {
	objectType() ObjectType
}

// PCIDevAttr holds the attributes of a PCI function
type PCIDevAttr struct {
	Address
	ClassID     uint16
	VendorID    uint16
	DeviceID    uint16
	SubVendorID uint16
	SubDeviceID uint16
	Revision    uint8
	// LinkSpeed is the aggregate link rate in GT/s (lane rate times width)
	LinkSpeed float64
}

func (*PCIDevAttr) objectType() ObjectType { return TypePCIDevice }

// BusRange is the PCI bus range below a bridge
type BusRange struct {
	Domain         uint32
	SecondaryBus   uint8
	SubordinateBus uint8
}

// Contains reports whether a bus of the given domain lies inside the range
func (r BusRange) Contains(domain uint32, bus uint8) bool {
	return r.Domain == domain && bus >= r.SecondaryBus && bus <= r.SubordinateBus
}

// BridgeAttr holds the attributes of a bridge. Upstream is set only when
// UpstreamType is BridgePCI and Downstream only when DownstreamType is BridgePCI.
type BridgeAttr struct {
	UpstreamType   BridgeType
	Upstream       *PCIDevAttr
	DownstreamType BridgeType
	Downstream     *BusRange
	// Depth is 0 for host bridges and grows by one for each PCI bridge below
	Depth uint
}

func (*BridgeAttr) objectType() ObjectType { return TypeBridge }

// NUMANodeAttr holds the attributes of a NUMA node
type NUMANodeAttr struct {
	OSIndex int
}

func (*NUMANodeAttr) objectType() ObjectType { return TypeNUMANode }

// OSDevAttr holds the attributes of an operating system device
type OSDevAttr struct {
	Kind OSDeviceType
}

func (*OSDevAttr) objectType() ObjectType { return TypeOSDevice }
