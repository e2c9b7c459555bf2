package inspect

import (
	"bufio"
	"fmt"
	"io"

	"pcitopo/pkg/topology"
)

const (
	absentField = "(none)"
	separator   = "\n\n ------------------- \n\n"
)

// WriteObject prints the generic fields of o, then its PCI or bridge
// attributes, then its logical index and child count
func WriteObject(w io.Writer, o *topology.Object) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "Type: %s\n", o.Type)
	fmt.Fprintf(bw, "Subtype: %s\n", orAbsent(o.Subtype))
	fmt.Fprintf(bw, "Name: %s\n", orAbsent(o.Name))
	fmt.Fprintf(bw, "Depth: %d\n", o.Depth)

	fmt.Fprintf(bw, "Number of Info Attributes: %d\n", len(o.Infos))
	for i, info := range o.Infos {
		fmt.Fprintf(bw, "Info %d: Key = %s, Value = %s\n", i, info.Name, info.Value)
	}

	if pci, ok := o.PCIDev(); ok {
		writePCIDevAttr(bw, pci)
	} else if bridge, ok := o.Bridge(); ok {
		writeBridgeAttr(bw, bridge)
	}

	fmt.Fprintf(bw, "Logical Index: %d\n", o.LogicalIndex)
	fmt.Fprintf(bw, "Number of Children: %d\n", o.Arity())
	return bw.Flush()
}

func writePCIDevAttr(w io.Writer, pci *topology.PCIDevAttr) {
	fmt.Fprintf(w, "PCI Device Domain: %04x\n", pci.Domain)
	fmt.Fprintf(w, "PCI Device Bus: %02x\n", pci.Bus)
	fmt.Fprintf(w, "PCI Device Dev: %02x\n", pci.Device)
	fmt.Fprintf(w, "PCI Device Func: %01x\n", pci.Function)
	fmt.Fprintf(w, "PCI Device Class: %04x\n", pci.ClassID)
	fmt.Fprintf(w, "PCI Device Vendor: %04x\n", pci.VendorID)
	fmt.Fprintf(w, "PCI Device Device: %04x\n", pci.DeviceID)
	fmt.Fprintf(w, "PCI Device Subvendor: %04x\n", pci.SubVendorID)
	fmt.Fprintf(w, "PCI Device Subdevice: %04x\n", pci.SubDeviceID)
	fmt.Fprintf(w, "PCI Device Revision: %02x\n", pci.Revision)
	fmt.Fprintf(w, "PCI Device Linkspeed: %f GT/s\n", pci.LinkSpeed)
}

func writeBridgeAttr(w io.Writer, bridge *topology.BridgeAttr) {
	fmt.Fprintf(w, "Upstream Bridge Type: %s\n", bridge.UpstreamType)
	if bridge.UpstreamType == topology.BridgePCI && bridge.Upstream != nil {
		fmt.Fprintf(w, "Upstream PCI Domain: %04x\n", bridge.Upstream.Domain)
		fmt.Fprintf(w, "Upstream PCI Bus: %02x\n", bridge.Upstream.Bus)
		fmt.Fprintf(w, "Upstream PCI Device: %02x\n", bridge.Upstream.Device)
		fmt.Fprintf(w, "Upstream PCI Function: %01x\n", bridge.Upstream.Function)
	}

	fmt.Fprintf(w, "Downstream Bridge Type: %s\n", bridge.DownstreamType)
	if bridge.DownstreamType == topology.BridgePCI && bridge.Downstream != nil {
		fmt.Fprintf(w, "Downstream PCI Domain: %d\n", bridge.Downstream.Domain)
		fmt.Fprintf(w, "Downstream PCI Secondary Bus: %02x\n", bridge.Downstream.SecondaryBus)
		fmt.Fprintf(w, "Downstream PCI Subordinate Bus: %02x\n", bridge.Downstream.SubordinateBus)
	}

	fmt.Fprintf(w, "Bridge Depth: %d\n", bridge.Depth)
}

func orAbsent(s string) string {
	if s == "" {
		return absentField
	}
	return s
}
