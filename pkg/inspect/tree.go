package inspect

import (
	"fmt"
	"io"
	"strings"

	"pcitopo/pkg/topology"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/tree"
)

// TreeSource is what WriteTree walks
type TreeSource interface {
	Root() *topology.Object
	Children(o *topology.Object) []*topology.Object
}

type treeStyles struct {
	kind   lipgloss.Style
	busID  lipgloss.Style
	detail lipgloss.Style
}

// WriteTree draws the whole topology, one line per object. Colors are only
// emitted when w is a terminal.
func WriteTree(w io.Writer, src TreeSource) error {
	root := src.Root()
	if root == nil {
		return topology.ErrNotLoaded
	}

	r := lipgloss.NewRenderer(w)
	styles := treeStyles{
		kind:   r.NewStyle().Bold(true).Foreground(lipgloss.Color("12")),
		busID:  r.NewStyle().Foreground(lipgloss.Color("10")),
		detail: r.NewStyle().Faint(true),
	}

	t := buildTree(src, root, styles).
		Enumerator(tree.RoundedEnumerator).
		EnumeratorStyle(r.NewStyle().Faint(true))

	_, err := fmt.Fprintln(w, t.String())
	return err
}

func buildTree(src TreeSource, o *topology.Object, styles treeStyles) *tree.Tree {
	t := tree.Root(objectLabel(o, styles))
	for _, child := range src.Children(o) {
		if child.Arity() == 0 {
			t.Child(objectLabel(child, styles))
			continue
		}
		t.Child(buildTree(src, child, styles))
	}
	return t
}

// objectLabel renders "Type#logical name busid details"
func objectLabel(o *topology.Object, styles treeStyles) string {
	parts := []string{styles.kind.Render(fmt.Sprintf("%s#%d", o.Type, o.LogicalIndex))}
	if o.Name != "" {
		parts = append(parts, o.Name)
	}

	switch {
	case o.Type == topology.TypeNUMANode:
		if numa, ok := o.NUMANode(); ok {
			parts = append(parts, fmt.Sprintf("P#%d", numa.OSIndex))
		}
	case o.Type == topology.TypeBridge:
		bridge, _ := o.Bridge()
		if addr, ok := o.BusID(); ok {
			parts = append(parts, styles.busID.Render(addr.String()))
		} else {
			parts = append(parts, bridge.UpstreamType.String())
		}
		if bridge.Downstream != nil {
			parts = append(parts, styles.detail.Render(fmt.Sprintf("[%04x:%02x-%02x]",
				bridge.Downstream.Domain, bridge.Downstream.SecondaryBus, bridge.Downstream.SubordinateBus)))
		}
	case o.Type == topology.TypePCIDevice:
		pci, _ := o.PCIDev()
		parts = append(parts, styles.busID.Render(pci.Address.String()))
		parts = append(parts, styles.detail.Render(fmt.Sprintf("(%04x %04x:%04x)", pci.ClassID, pci.VendorID, pci.DeviceID)))
		if product, ok := o.Info("PCIDevice"); ok {
			parts = append(parts, product)
		}
	}
	return strings.Join(parts, " ")
}
