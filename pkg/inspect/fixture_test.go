package inspect

import (
	"context"
	"testing"

	"pcitopo/pkg/topology"

	"github.com/stretchr/testify/require"
)

func loadBuilt(t *testing.T, build func(b *topology.Builder)) *topology.Topology {
	t.Helper()
	provider := topology.ProviderFunc(func(_ context.Context, b *topology.Builder) error {
		build(b)
		return nil
	})
	topo, err := topology.Init(topology.WithProvider(provider), topology.WithIOFilter(topology.IOFilterAll))
	require.NoError(t, err)
	require.NoError(t, topo.Load(context.Background()))
	t.Cleanup(func() { _ = topo.Close() })
	return topo
}

func addr(s string) topology.Address {
	a, err := topology.ParseBusID(s)
	if err != nil {
		panic(err)
	}
	return a
}

func hostBridge(domain uint32, sec, sub uint8) topology.Node {
	return topology.Node{
		Type: topology.TypeBridge,
		Attr: &topology.BridgeAttr{
			UpstreamType:   topology.BridgeHost,
			DownstreamType: topology.BridgePCI,
			Downstream:     &topology.BusRange{Domain: domain, SecondaryBus: sec, SubordinateBus: sub},
		},
	}
}

func pciBridge(busID string, sec, sub uint8, depth uint) topology.Node {
	a := addr(busID)
	return topology.Node{
		Type: topology.TypeBridge,
		Attr: &topology.BridgeAttr{
			UpstreamType:   topology.BridgePCI,
			Upstream:       &topology.PCIDevAttr{Address: a, ClassID: 0x0604, VendorID: 0x8086, DeviceID: 0x2030},
			DownstreamType: topology.BridgePCI,
			Downstream:     &topology.BusRange{Domain: a.Domain, SecondaryBus: sec, SubordinateBus: sub},
			Depth:          depth,
		},
	}
}

func nic(busID string) topology.Node {
	return topology.Node{
		Type: topology.TypePCIDevice,
		Infos: []topology.Info{
			{Name: "PCIVendor", Value: "Mellanox Technologies"},
		},
		Attr: &topology.PCIDevAttr{
			Address:     addr(busID),
			ClassID:     0x0200,
			VendorID:    0x15b3,
			DeviceID:    0x101e,
			SubVendorID: 0x15b3,
			SubDeviceID: 0x0007,
			LinkSpeed:   256,
		},
	}
}

// singleDevice is a device directly below a host bridge below the root
func singleDevice(b *topology.Builder) {
	hb := b.MustAdd(b.Root(), hostBridge(0, 0x01, 0x01))
	b.MustAdd(hb, nic("0000:01:00.0"))
}

// sharedBridge has two devices on different buses behind one switch
func sharedBridge(b *topology.Builder) {
	hb := b.MustAdd(b.Root(), hostBridge(0, 0x00, 0x02))
	sw := b.MustAdd(hb, pciBridge("0000:00:01.0", 0x01, 0x02, 1))
	b.MustAdd(sw, nic("0000:01:00.0"))
	b.MustAdd(sw, nic("0000:02:00.0"))
}

// twoNodes has one device per NUMA node and a device with no host bridge
func twoNodes(b *topology.Builder) {
	n0 := b.MustAdd(b.Root(), topology.Node{Type: topology.TypeNUMANode, Attr: &topology.NUMANodeAttr{OSIndex: 0}})
	n1 := b.MustAdd(b.Root(), topology.Node{Type: topology.TypeNUMANode, Attr: &topology.NUMANodeAttr{OSIndex: 1}})

	hb0 := b.MustAdd(n0, hostBridge(0, 0x00, 0x01))
	rp := b.MustAdd(hb0, pciBridge("0000:00:01.0", 0x01, 0x01, 1))
	b.MustAdd(rp, nic("0000:01:00.0"))
	b.MustAdd(rp, nic("0000:01:00.1"))

	hb1 := b.MustAdd(n1, hostBridge(0, 0x80, 0x80))
	b.MustAdd(hb1, nic("0000:80:00.0"))

	b.MustAdd(b.Root(), nic("0000:f0:00.0"))
}
