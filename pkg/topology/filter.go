package topology

import (
	"fmt"
	"strings"
)

// IOFilter selects which I/O objects survive discovery
type IOFilter int

const (
	// IOFilterImportant keeps PCI devices of interesting classes and the
	// bridges leading to them, and drops bridges left without children
	IOFilterImportant IOFilter = iota
	// IOFilterAll keeps every discovered bridge and PCI device
	IOFilterAll
)

func (f IOFilter) String() string {
	switch f {
	case IOFilterImportant:
		return "important"
	case IOFilterAll:
		return "all"
	default:
		return fmt.Sprintf("IOFilter(%d)", int(f))
	}
}

// ParseIOFilter parses "important" or "all"
func ParseIOFilter(s string) (IOFilter, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "important":
		return IOFilterImportant, nil
	case "all":
		return IOFilterAll, nil
	default:
		return IOFilterImportant, fmt.Errorf("invalid io filter: %s", s)
	}
}

// importantPCIClass reports whether a PCI class (base class << 8 | subclass)
// is kept by IOFilterImportant
func importantPCIClass(classID uint16) bool {
	baseClass := classID >> 8
	switch baseClass {
	case 0x00, // unclassified
		0x01, // storage
		0x02, // network
		0x03, // display
		0x06, // bridge, pruned later when childless
		0x0b, // processor
		0x12: // processing accelerator
		return true
	}
	switch classID {
	case 0x0c04, // fibre channel
		0x0c06, // infiniband
		0x0502: // CXL memory
		return true
	}
	return false
}
