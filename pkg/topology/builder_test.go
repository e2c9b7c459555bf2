package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilderAddValidation(t *testing.T) {
	tests := []struct {
		name    string
		parent  ObjectID
		node    Node
		wantErr string
	}{
		{
			name:    "unknown parent",
			parent:  42,
			node:    pciNode("0000:01:00.0", 0x0200),
			wantErr: "invalid parent",
		},
		{
			name:    "second machine",
			parent:  0,
			node:    Node{Type: TypeMachine},
			wantErr: "exactly one machine",
		},
		{
			name:    "PCI device without attributes",
			parent:  0,
			node:    Node{Type: TypePCIDevice},
			wantErr: "mismatched attributes",
		},
		{
			name:    "PCI device with typed nil attributes",
			parent:  0,
			node:    Node{Type: TypePCIDevice, Attr: (*PCIDevAttr)(nil)},
			wantErr: "mismatched attributes",
		},
		{
			name:    "NUMA node with bridge attributes",
			parent:  0,
			node:    Node{Type: TypeNUMANode, Attr: &BridgeAttr{}},
			wantErr: "mismatched attributes",
		},
		{
			name:   "host bridge with upstream attributes",
			parent: 0,
			node: Node{Type: TypeBridge, Attr: &BridgeAttr{
				UpstreamType:   BridgeHost,
				Upstream:       &PCIDevAttr{},
				DownstreamType: BridgePCI,
				Downstream:     &BusRange{},
			}},
			wantErr: "upstream",
		},
		{
			name:   "PCI bridge without downstream range",
			parent: 0,
			node: Node{Type: TypeBridge, Attr: &BridgeAttr{
				UpstreamType:   BridgePCI,
				Upstream:       &PCIDevAttr{},
				DownstreamType: BridgePCI,
			}},
			wantErr: "downstream",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := NewBuilder()
			id, err := b.Add(tt.parent, tt.node)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Equal(t, NoObject, id)
			assert.Equal(t, 1, b.Len())
		})
	}
}

func TestBuilderAddInfoSkipsEmptyValues(t *testing.T) {
	b := NewBuilder()
	id := b.MustAdd(b.Root(), pciNode("0000:01:00.0", 0x0200))
	b.AddInfo(id, "PCIVendor", "Intel Corporation")
	b.AddInfo(id, "PCIDevice", "")
	b.AddInfo(ObjectID(99), "Ignored", "value")
	b.SetName(id, "nic")

	o := b.objects[id]
	assert.Equal(t, []Info{{Name: "PCIVendor", Value: "Intel Corporation"}}, o.Infos)
	assert.Equal(t, "nic", o.Name)
}

func TestBuilderMustAddPanics(t *testing.T) {
	b := NewBuilder()
	assert.Panics(t, func() {
		b.MustAdd(NoObject, pciNode("0000:01:00.0", 0x0200))
	})
}

func TestImportantPCIClass(t *testing.T) {
	tests := []struct {
		class    uint16
		expected bool
	}{
		{0x0200, true},
		{0x0108, true},
		{0x0300, true},
		{0x0302, true},
		{0x0604, true},
		{0x0b40, true},
		{0x1200, true},
		{0x0c04, true},
		{0x0c06, true},
		{0x0502, true},
		{0x0c03, false},
		{0x0c05, false},
		{0x0500, false},
		{0x0880, false},
		{0x0403, false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, importantPCIClass(tt.class), "class %04x", tt.class)
	}
}

func TestParseIOFilter(t *testing.T) {
	f, err := ParseIOFilter("important")
	require.NoError(t, err)
	assert.Equal(t, IOFilterImportant, f)

	f, err = ParseIOFilter("ALL")
	require.NoError(t, err)
	assert.Equal(t, IOFilterAll, f)

	f, err = ParseIOFilter("")
	require.NoError(t, err)
	assert.Equal(t, IOFilterImportant, f)

	_, err = ParseIOFilter("some")
	assert.Error(t, err)
}
