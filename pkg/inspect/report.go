package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"pcitopo/pkg/topology"

	"gopkg.in/yaml.v3"
)

// Format selects how a report is written
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses text, json or yaml
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatText, nil
	case FormatText, FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("invalid output format: %s", s)
	}
}

// ObjectView is the structured form of an object
type ObjectView struct {
	Type         string          `json:"type" yaml:"type"`
	Subtype      string          `json:"subtype,omitempty" yaml:"subtype,omitempty"`
	Name         string          `json:"name,omitempty" yaml:"name,omitempty"`
	Depth        int             `json:"depth" yaml:"depth"`
	LogicalIndex int             `json:"logical_index" yaml:"logical_index"`
	Children     int             `json:"children" yaml:"children"`
	Infos        []topology.Info `json:"infos,omitempty" yaml:"infos,omitempty"`
	PCI          *PCIView        `json:"pci,omitempty" yaml:"pci,omitempty"`
	Bridge       *BridgeView     `json:"bridge,omitempty" yaml:"bridge,omitempty"`
}

// PCIView holds PCI attributes with ids in hex
type PCIView struct {
	BusID     string  `json:"bus_id" yaml:"bus_id"`
	Class     string  `json:"class" yaml:"class"`
	Vendor    string  `json:"vendor" yaml:"vendor"`
	Device    string  `json:"device" yaml:"device"`
	SubVendor string  `json:"subvendor" yaml:"subvendor"`
	SubDevice string  `json:"subdevice" yaml:"subdevice"`
	Revision  string  `json:"revision" yaml:"revision"`
	LinkSpeed float64 `json:"link_speed_gts" yaml:"link_speed_gts"`
}

// BridgeView holds bridge attributes
type BridgeView struct {
	UpstreamType   string        `json:"upstream_type" yaml:"upstream_type"`
	Upstream       string        `json:"upstream,omitempty" yaml:"upstream,omitempty"`
	DownstreamType string        `json:"downstream_type" yaml:"downstream_type"`
	Downstream     *BusRangeView `json:"downstream,omitempty" yaml:"downstream,omitempty"`
	Depth          uint          `json:"depth" yaml:"depth"`
}

// BusRangeView is the bus range below a bridge
type BusRangeView struct {
	Domain      uint32 `json:"domain" yaml:"domain"`
	Secondary   string `json:"secondary_bus" yaml:"secondary_bus"`
	Subordinate string `json:"subordinate_bus" yaml:"subordinate_bus"`
}

// DeviceView is a resolved device with its host bridge
type DeviceView struct {
	BusID      string      `json:"bus_id" yaml:"bus_id"`
	Device     *ObjectView `json:"device" yaml:"device"`
	HostBridge *ObjectView `json:"host_bridge" yaml:"host_bridge"`
}

// PairView is the ancestor of an ordered device pair
type PairView struct {
	From     string      `json:"from" yaml:"from"`
	To       string      `json:"to" yaml:"to"`
	Ancestor *ObjectView `json:"ancestor" yaml:"ancestor"`
}

// ReportView is the structured form of a report. Failed items are left out;
// they are reported as diagnostics.
type ReportView struct {
	Devices   []DeviceView `json:"devices" yaml:"devices"`
	Ancestors []PairView   `json:"ancestors" yaml:"ancestors"`
}

// NewObjectView converts an object
func NewObjectView(o *topology.Object) *ObjectView {
	view := &ObjectView{
		Type:         o.Type.String(),
		Subtype:      o.Subtype,
		Name:         o.Name,
		Depth:        o.Depth,
		LogicalIndex: o.LogicalIndex,
		Children:     o.Arity(),
		Infos:        o.Infos,
	}

	if pci, ok := o.PCIDev(); ok {
		view.PCI = newPCIView(pci)
	} else if bridge, ok := o.Bridge(); ok {
		bv := &BridgeView{
			UpstreamType:   bridge.UpstreamType.String(),
			DownstreamType: bridge.DownstreamType.String(),
			Depth:          bridge.Depth,
		}
		if bridge.UpstreamType == topology.BridgePCI && bridge.Upstream != nil {
			bv.Upstream = bridge.Upstream.Address.String()
		}
		if bridge.DownstreamType == topology.BridgePCI && bridge.Downstream != nil {
			bv.Downstream = &BusRangeView{
				Domain:      bridge.Downstream.Domain,
				Secondary:   fmt.Sprintf("%02x", bridge.Downstream.SecondaryBus),
				Subordinate: fmt.Sprintf("%02x", bridge.Downstream.SubordinateBus),
			}
		}
		view.Bridge = bv
	}
	return view
}

func newPCIView(pci *topology.PCIDevAttr) *PCIView {
	return &PCIView{
		BusID:     pci.Address.String(),
		Class:     fmt.Sprintf("%04x", pci.ClassID),
		Vendor:    fmt.Sprintf("%04x", pci.VendorID),
		Device:    fmt.Sprintf("%04x", pci.DeviceID),
		SubVendor: fmt.Sprintf("%04x", pci.SubVendorID),
		SubDevice: fmt.Sprintf("%04x", pci.SubDeviceID),
		Revision:  fmt.Sprintf("%02x", pci.Revision),
		LinkSpeed: pci.LinkSpeed,
	}
}

// View converts the successful items of a report
func (r *Report) View() *ReportView {
	view := &ReportView{
		Devices:   []DeviceView{},
		Ancestors: []PairView{},
	}
	for _, d := range r.Devices {
		if d.Err != nil || d.Device == nil || d.HostBridge == nil {
			continue
		}
		view.Devices = append(view.Devices, DeviceView{
			BusID:      d.BusID,
			Device:     NewObjectView(d.Device),
			HostBridge: NewObjectView(d.HostBridge),
		})
	}
	for _, p := range r.Pairs {
		if p.Err != nil || p.Ancestor == nil {
			continue
		}
		view.Ancestors = append(view.Ancestors, PairView{
			From:     p.From,
			To:       p.To,
			Ancestor: NewObjectView(p.Ancestor),
		})
	}
	return view
}

// Render writes the report in the given format
func Render(w io.Writer, r *Report, format Format) error {
	switch format {
	case FormatText, "":
		return renderText(w, r)
	case FormatJSON:
		data, err := json.MarshalIndent(r.View(), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.View()); err != nil {
			return fmt.Errorf("failed to marshal report: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("invalid output format: %s", format)
	}
}

// renderText writes one block per successful device and per successful pair
func renderText(w io.Writer, r *Report) error {
	for _, d := range r.Devices {
		if d.Err != nil || d.Device == nil || d.HostBridge == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "PCI device found at %s\n", d.BusID); err != nil {
			return err
		}
		if err := WriteObject(w, d.Device); err != nil {
			return err
		}
		if _, err := io.WriteString(w, "\n\nHostBridge info\n"); err != nil {
			return err
		}
		if err := WriteObject(w, d.HostBridge); err != nil {
			return err
		}
		if _, err := io.WriteString(w, separator); err != nil {
			return err
		}
	}

	for _, p := range r.Pairs {
		if p.Err != nil || p.Ancestor == nil {
			continue
		}
		if _, err := fmt.Fprintf(w, "ancestor found for %s and %s \n", p.From, p.To); err != nil {
			return err
		}
		if err := WriteObject(w, p.Ancestor); err != nil {
			return err
		}
		if _, err := io.WriteString(w, separator); err != nil {
			return err
		}
	}
	return nil
}
