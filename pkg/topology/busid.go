package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// Address is a PCI bus address (domain:bus:device.function)
type Address struct {
	Domain   uint32
	Bus      uint8
	Device   uint8
	Function uint8
}

func (a Address) String() string {
	return fmt.Sprintf("%04x:%02x:%02x.%01x", a.Domain, a.Bus, a.Device, a.Function)
}

// Less orders addresses by domain, bus, device and function
func (a Address) Less(b Address) bool {
	if a.Domain != b.Domain {
		return a.Domain < b.Domain
	}
	if a.Bus != b.Bus {
		return a.Bus < b.Bus
	}
	if a.Device != b.Device {
		return a.Device < b.Device
	}
	return a.Function < b.Function
}

// ParseBusID parses a PCI bus id in the form "dddd:bb:dd.f" or "bb:dd.f".
// All fields are hexadecimal; a missing domain means domain 0.
func ParseBusID(s string) (Address, error) {
	var addr Address

	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	var domainStr, busStr, devfn string
	switch len(parts) {
	case 3:
		domainStr, busStr, devfn = parts[0], parts[1], parts[2]
	case 2:
		domainStr, busStr, devfn = "0", parts[0], parts[1]
	default:
		return addr, fmt.Errorf("invalid bus id %q: expected [domain:]bus:device.function", s)
	}

	devStr, fnStr, ok := strings.Cut(devfn, ".")
	if !ok {
		return addr, fmt.Errorf("invalid bus id %q: missing function", s)
	}

	domain, err := parseHexField(domainStr, 32)
	if err != nil {
		return addr, fmt.Errorf("invalid bus id %q: domain: %w", s, err)
	}
	bus, err := parseHexField(busStr, 8)
	if err != nil {
		return addr, fmt.Errorf("invalid bus id %q: bus: %w", s, err)
	}
	dev, err := parseHexField(devStr, 8)
	if err != nil {
		return addr, fmt.Errorf("invalid bus id %q: device: %w", s, err)
	}
	if dev > 0x1f {
		return addr, fmt.Errorf("invalid bus id %q: device %#x out of range", s, dev)
	}
	fn, err := parseHexField(fnStr, 8)
	if err != nil {
		return addr, fmt.Errorf("invalid bus id %q: function: %w", s, err)
	}
	if fn > 7 {
		return addr, fmt.Errorf("invalid bus id %q: function %#x out of range", s, fn)
	}

	addr.Domain = uint32(domain)
	addr.Bus = uint8(bus)
	addr.Device = uint8(dev)
	addr.Function = uint8(fn)
	return addr, nil
}

func parseHexField(s string, bits int) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty field")
	}
	return strconv.ParseUint(s, 16, bits)
}

// isPciAddress checks if a sysfs entry name is a full PCI address
// (dddd:bb:dd.f, with a domain of four or more hex digits)
func isPciAddress(name string) bool {
	parts := strings.Split(name, ":")
	if len(parts) != 3 || len(parts[0]) < 4 || len(parts[1]) != 2 {
		return false
	}
	if len(parts[2]) != 4 || parts[2][2] != '.' {
		return false
	}
	for _, c := range strings.ReplaceAll(strings.ReplaceAll(name, ":", ""), ".", "") {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	_, err := ParseBusID(name)
	return err == nil
}
