package inspect

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"pcitopo/pkg/topology"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestWriteObjectPCIDevice(t *testing.T) {
	topo := loadBuilt(t, singleDevice)
	dev, ok := topo.LookupBusID("0000:01:00.0")
	require.True(t, ok)

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, dev))

	expected := `Type: PCIDev
Subtype: (none)
Name: (none)
Depth: 2
Number of Info Attributes: 1
Info 0: Key = PCIVendor, Value = Mellanox Technologies
PCI Device Domain: 0000
PCI Device Bus: 01
PCI Device Dev: 00
PCI Device Func: 0
PCI Device Class: 0200
PCI Device Vendor: 15b3
PCI Device Device: 101e
PCI Device Subvendor: 15b3
PCI Device Subdevice: 0007
PCI Device Revision: 00
PCI Device Linkspeed: 256.000000 GT/s
Logical Index: 0
Number of Children: 0
`
	assert.Equal(t, expected, buf.String())
}

func TestWriteObjectHostBridge(t *testing.T) {
	topo := loadBuilt(t, singleDevice)
	dev, _ := topo.LookupBusID("0000:01:00.0")

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, topo.Parent(dev)))

	expected := `Type: Bridge
Subtype: (none)
Name: (none)
Depth: 1
Number of Info Attributes: 0
Upstream Bridge Type: Host
Downstream Bridge Type: PCI
Downstream PCI Domain: 0
Downstream PCI Secondary Bus: 01
Downstream PCI Subordinate Bus: 01
Bridge Depth: 0
Logical Index: 0
Number of Children: 1
`
	assert.Equal(t, expected, buf.String())
}

func TestWriteObjectPCIBridge(t *testing.T) {
	topo := loadBuilt(t, sharedBridge)
	dev, _ := topo.LookupBusID("0000:01:00.0")

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, topo.Parent(dev)))

	out := buf.String()
	assert.Contains(t, out, "Upstream Bridge Type: PCI\nUpstream PCI Domain: 0000\nUpstream PCI Bus: 00\nUpstream PCI Device: 01\nUpstream PCI Function: 0\n")
	assert.Contains(t, out, "Downstream PCI Secondary Bus: 01\nDownstream PCI Subordinate Bus: 02\nBridge Depth: 1\n")
	assert.Contains(t, out, "Number of Children: 2\n")
	assert.NotContains(t, out, "PCI Device Class")
}

func TestWriteObjectOtherTypesHaveNoPayload(t *testing.T) {
	topo := loadBuilt(t, twoNodes)

	var buf bytes.Buffer
	require.NoError(t, WriteObject(&buf, topo.Root()))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "Type: Machine\n"))
	assert.NotContains(t, out, "PCI")
	assert.NotContains(t, out, "Bridge Type")
	assert.Contains(t, out, "Number of Children: 3\n")
}

func TestRenderText(t *testing.T) {
	topo := loadBuilt(t, sharedBridge)
	report, err := New(topo).Run(context.Background(), []string{"0000:01:00.0", "ffff:ff:1f.7", "0000:02:00.0"})
	require.Error(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatText))
	out := buf.String()

	assert.Equal(t, 2, strings.Count(out, "PCI device found at "))
	assert.Equal(t, 2, strings.Count(out, "\n\nHostBridge info\n"))
	assert.Equal(t, 2, strings.Count(out, "ancestor found for "))
	assert.Equal(t, 4, strings.Count(out, "\n\n ------------------- \n\n"))
	assert.NotContains(t, out, "ffff:ff:1f.7", "failed items produce no output")
	assert.Contains(t, out, "ancestor found for 0000:01:00.0 and 0000:02:00.0 \n")
	assert.Contains(t, out, "ancestor found for 0000:02:00.0 and 0000:01:00.0 \n")

	first := strings.Index(out, "PCI device found at 0000:01:00.0\n")
	second := strings.Index(out, "PCI device found at 0000:02:00.0\n")
	pairs := strings.Index(out, "ancestor found for")
	assert.True(t, first >= 0 && first < second && second < pairs)
}

func TestRenderJSON(t *testing.T) {
	topo := loadBuilt(t, sharedBridge)
	report, err := New(topo).Run(context.Background(), []string{"0000:01:00.0", "0000:02:00.0"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatJSON))

	var view ReportView
	require.NoError(t, json.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Devices, 2)
	require.Len(t, view.Ancestors, 2)

	dev := view.Devices[0]
	assert.Equal(t, "0000:01:00.0", dev.BusID)
	assert.Equal(t, "PCIDev", dev.Device.Type)
	assert.Equal(t, "15b3", dev.Device.PCI.Vendor)
	assert.Equal(t, "0200", dev.Device.PCI.Class)
	assert.Equal(t, "Host", dev.HostBridge.Bridge.UpstreamType)
	assert.Empty(t, dev.HostBridge.Bridge.Upstream)

	anc := view.Ancestors[0].Ancestor
	assert.Equal(t, "Bridge", anc.Type)
	assert.Equal(t, "0000:00:01.0", anc.Bridge.Upstream)
	assert.Equal(t, "01", anc.Bridge.Downstream.Secondary)
	assert.Equal(t, "02", anc.Bridge.Downstream.Subordinate)
}

func TestRenderYAML(t *testing.T) {
	topo := loadBuilt(t, singleDevice)
	report, err := New(topo).Run(context.Background(), []string{"01:00.0"})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, report, FormatYAML))

	var view ReportView
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &view))
	require.Len(t, view.Devices, 1)
	assert.Equal(t, "01:00.0", view.Devices[0].BusID)
	assert.Equal(t, "0000:01:00.0", view.Devices[0].Device.PCI.BusID)
	assert.InDelta(t, 256.0, view.Devices[0].Device.PCI.LinkSpeed, 1e-9)
	assert.Empty(t, view.Ancestors)
}

func TestRenderRejectsUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, Render(&buf, &Report{}, Format("xml")))
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input    string
		expected Format
		wantErr  bool
	}{
		{"", FormatText, false},
		{"text", FormatText, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"csv", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			f, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, f)
		})
	}
}

func TestWriteTree(t *testing.T) {
	topo := loadBuilt(t, twoNodes)

	var buf bytes.Buffer
	require.NoError(t, WriteTree(&buf, topo))
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, topo.Len())
	assert.True(t, strings.HasPrefix(lines[0], "Machine#0"))
	assert.Contains(t, out, "NUMANode#1 P#1")
	assert.Contains(t, out, "Bridge#0 Host [0000:00-01]")
	assert.Contains(t, out, "Bridge#1 0000:00:01.0 [0000:01-01]")
	assert.Contains(t, out, "PCIDev#0 0000:01:00.0 (0200 15b3:101e)")
	assert.NotContains(t, out, "\x1b[", "no escape codes when not writing to a terminal")
}

func TestWriteTreeNotLoaded(t *testing.T) {
	topo, err := topology.Init(topology.WithProvider(topology.ProviderFunc(func(context.Context, *topology.Builder) error {
		return nil
	})))
	require.NoError(t, err)

	assert.ErrorIs(t, WriteTree(&bytes.Buffer{}, topo), topology.ErrNotLoaded)
}
