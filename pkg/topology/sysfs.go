package topology

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"pcitopo/pkg"

	"github.com/siderolabs/go-pcidb/pkg/pcidb"
	log "github.com/sirupsen/logrus"
)

const (
	pciClassBridgePCI = 0x0604

	pciCfgOffsetRevisionID     = 0x08
	pciCfgOffsetHeaderType     = 0x0e
	pciCfgOffsetSecondaryBus   = 0x19
	pciCfgOffsetSubordinateBus = 0x1a

	pciHeaderTypeBridge = 0x01
)

// netInfoReader returns driver information for a network interface
type netInfoReader interface {
	DriverInfo(iface string) ([]Info, error)
	Close()
}

// newNetInfoReader is a variable so tests can replace ethtool
var newNetInfoReader = openEthtool

// SysfsProvider discovers the PCI hierarchy from a Linux sysfs tree
type SysfsProvider struct {
	opts SysfsOptions
}

// sysfsPciDevice holds what a single /sys/bus/pci/devices entry tells us
type sysfsPciDevice struct {
	path     string
	attr     PCIDevAttr
	bridge   *BusRange
	numaNode int
	driver   string
	totalVFs string
	numVFs   string

	parent   int
	children []int
}

// hostGroup is a set of top-level functions sharing a root bus
type hostGroup struct {
	domain  uint32
	bus     uint8
	members []int
}

// NewSysfsProvider checks that the sysfs PCI directory exists
func NewSysfsProvider(opts SysfsOptions) (*SysfsProvider, error) {
	if opts.Root == "" {
		opts.Root = "/sys"
	}
	if _, err := os.Stat(devicesDir(opts.Root)); err != nil {
		return nil, fmt.Errorf("sysfs PCI devices not available: %w", err)
	}
	return &SysfsProvider{opts: opts}, nil
}

// DevicesDir returns the PCI devices directory below a sysfs root
func DevicesDir(root string) string {
	return devicesDir(root)
}

func devicesDir(root string) string {
	return filepath.Join(root, "bus", "pci", "devices")
}

// Discover fills b with NUMA nodes, host bridges, PCI bridges, PCI devices
// and their OS devices
func (p *SysfsProvider) Discover(ctx context.Context, b *Builder) error {
	root := b.Root()
	for _, info := range machineInfos() {
		b.AddInfo(root, info.Name, info.Value)
	}

	devices, err := p.parseDevices(ctx)
	if err != nil {
		return err
	}
	linkBridges(devices)

	numaObjects := make(map[int]ObjectID)
	for _, node := range p.numaNodes(devices) {
		id, err := b.Add(root, Node{
			Type: TypeNUMANode,
			Attr: &NUMANodeAttr{OSIndex: node},
		})
		if err != nil {
			return err
		}
		numaObjects[node] = id
	}

	var netInfo netInfoReader
	if p.opts.OSDevices && p.opts.Ethtool {
		if netInfo, err = newNetInfoReader(); err != nil {
			pkg.WithError(err).Debug("ethtool unavailable, skipping driver information")
			netInfo = nil
		} else {
			defer netInfo.Close()
		}
	}

	for _, group := range groupHostBridges(devices) {
		parent := root
		if node := devices[group.members[0]].numaNode; node >= 0 {
			if id, ok := numaObjects[node]; ok {
				parent = id
			}
		}

		hostBridge, err := b.Add(parent, Node{
			Type: TypeBridge,
			Attr: &BridgeAttr{
				UpstreamType:   BridgeHost,
				DownstreamType: BridgePCI,
				Downstream: &BusRange{
					Domain:         group.domain,
					SecondaryBus:   group.bus,
					SubordinateBus: group.subordinate(devices),
				},
			},
		})
		if err != nil {
			return err
		}

		for _, member := range group.members {
			if err := p.insert(b, hostBridge, devices, member, 1, netInfo); err != nil {
				return err
			}
		}
	}

	pkg.WithFields(log.Fields{
		"root":       p.opts.Root,
		"devices":    len(devices),
		"numa_nodes": len(numaObjects),
	}).Debug("sysfs discovery finished")
	return nil
}

// insert adds a device and everything below it
func (p *SysfsProvider) insert(b *Builder, parent ObjectID, devices []*sysfsPciDevice, idx int, depth uint, netInfo netInfoReader) error {
	dev := devices[idx]

	attr := dev.attr
	node := Node{Infos: pciInfos(dev)}
	if dev.bridge != nil {
		node.Type = TypeBridge
		node.Attr = &BridgeAttr{
			UpstreamType:   BridgePCI,
			Upstream:       &attr,
			DownstreamType: BridgePCI,
			Downstream:     dev.bridge,
			Depth:          depth,
		}
	} else {
		node.Type = TypePCIDevice
		node.Attr = &attr
	}

	id, err := b.Add(parent, node)
	if err != nil {
		return fmt.Errorf("add %s: %w", attr.Address, err)
	}

	if dev.bridge == nil && p.opts.OSDevices {
		addOSDevices(b, id, dev.path, netInfo)
	}

	for _, child := range dev.children {
		if err := p.insert(b, id, devices, child, depth+1, netInfo); err != nil {
			return err
		}
	}
	return nil
}

// parseDevices reads every PCI function below the sysfs root
func (p *SysfsProvider) parseDevices(ctx context.Context) ([]*sysfsPciDevice, error) {
	sysfsPath := devicesDir(p.opts.Root)

	entries, err := os.ReadDir(sysfsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read sysfs directory: %w", err)
	}

	var devices []*sysfsPciDevice
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !isPciAddress(entry.Name()) {
			continue
		}

		devicePath := filepath.Join(sysfsPath, entry.Name())
		if _, err := os.Stat(devicePath); err != nil {
			continue
		}

		device, err := parseSysfsPciDevice(devicePath, entry.Name())
		if err != nil {
			pkg.WithFields(log.Fields{
				"device": entry.Name(),
				"error":  err.Error(),
			}).Warn("Failed to parse device")
			continue
		}

		if device.bridge == nil && !p.vendorAllowed(device.attr.VendorID) {
			pkg.WithFields(log.Fields{
				"device": entry.Name(),
				"vendor": fmt.Sprintf("%04x", device.attr.VendorID),
			}).Debug("device filtered by vendor")
			continue
		}

		devices = append(devices, device)
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].attr.Address.Less(devices[j].attr.Address)
	})
	return devices, nil
}

func (p *SysfsProvider) vendorAllowed(vendor uint16) bool {
	for _, excluded := range p.opts.ExcludedVendors {
		if vendor == excluded {
			return false
		}
	}
	if len(p.opts.AllowedVendors) == 0 {
		return true
	}
	for _, allowed := range p.opts.AllowedVendors {
		if vendor == allowed {
			return true
		}
	}
	return false
}

// numaNodes merges the nodes reported by the system with the ones devices point at
func (p *SysfsProvider) numaNodes(devices []*sysfsPciDevice) []int {
	set := make(map[int]struct{})

	nodes, err := discoverNUMANodes(p.opts.Root)
	if err != nil {
		pkg.WithError(err).Debug("NUMA discovery failed, using device affinity only")
	}
	for _, node := range nodes {
		set[node] = struct{}{}
	}
	for _, dev := range devices {
		if dev.numaNode >= 0 {
			set[dev.numaNode] = struct{}{}
		}
	}

	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// parseSysfsPciDevice parses a single PCI device from sysfs
func parseSysfsPciDevice(devicePath, deviceName string) (*sysfsPciDevice, error) {
	addr, err := ParseBusID(deviceName)
	if err != nil {
		return nil, err
	}

	device := &sysfsPciDevice{
		path:     devicePath,
		numaNode: -1,
		parent:   -1,
	}
	device.attr.Address = addr

	if err := parseDeviceIds(devicePath, device); err != nil {
		return nil, fmt.Errorf("failed to parse device IDs: %w", err)
	}
	if err := parseDeviceClass(devicePath, device); err != nil {
		return nil, fmt.Errorf("failed to parse device class: %w", err)
	}

	config, _ := os.ReadFile(filepath.Join(devicePath, "config"))
	if _, err := os.Stat(filepath.Join(devicePath, "revision")); err != nil && len(config) > pciCfgOffsetRevisionID {
		device.attr.Revision = config[pciCfgOffsetRevisionID]
	}
	if device.attr.ClassID == pciClassBridgePCI {
		if err := parseBridgeConfig(config, device); err != nil {
			pkg.Debug("bridge %s has no usable config space, treating it as a device: %v", deviceName, err)
		}
	}

	parseLinkSpeed(devicePath, device)
	parseKernelDriver(devicePath, device)
	parseSRIOVParameters(devicePath, device)
	parseNUMANode(devicePath, device)

	return device, nil
}

// parseDeviceIds parses vendor and device IDs from sysfs
func parseDeviceIds(devicePath string, device *sysfsPciDevice) error {
	vendor, err := readHexFile(filepath.Join(devicePath, "vendor"), 16)
	if err != nil {
		return err
	}
	device.attr.VendorID = uint16(vendor)

	id, err := readHexFile(filepath.Join(devicePath, "device"), 16)
	if err != nil {
		return err
	}
	device.attr.DeviceID = uint16(id)

	// Subsystem and revision are optional
	if v, err := readHexFile(filepath.Join(devicePath, "subsystem_vendor"), 16); err == nil {
		device.attr.SubVendorID = uint16(v)
	}
	if v, err := readHexFile(filepath.Join(devicePath, "subsystem_device"), 16); err == nil {
		device.attr.SubDeviceID = uint16(v)
	}
	if v, err := readHexFile(filepath.Join(devicePath, "revision"), 8); err == nil {
		device.attr.Revision = uint8(v)
	}
	return nil
}

// parseDeviceClass keeps the base class and subclass of the 24-bit class code
func parseDeviceClass(devicePath string, device *sysfsPciDevice) error {
	class, err := readHexFile(filepath.Join(devicePath, "class"), 24)
	if err != nil {
		return err
	}
	device.attr.ClassID = uint16(class >> 8)
	return nil
}

// parseBridgeConfig reads the secondary and subordinate bus numbers of a
// type 1 configuration header
func parseBridgeConfig(config []byte, device *sysfsPciDevice) error {
	if len(config) <= pciCfgOffsetSubordinateBus {
		return fmt.Errorf("config too short for bridge (%d bytes)", len(config))
	}
	if config[pciCfgOffsetHeaderType]&0x7f != pciHeaderTypeBridge {
		return fmt.Errorf("header type %#x is not a bridge", config[pciCfgOffsetHeaderType])
	}
	device.bridge = &BusRange{
		Domain:         device.attr.Domain,
		SecondaryBus:   config[pciCfgOffsetSecondaryBus],
		SubordinateBus: config[pciCfgOffsetSubordinateBus],
	}
	return nil
}

// parseLinkSpeed multiplies the lane rate by the negotiated width
func parseLinkSpeed(devicePath string, device *sysfsPciDevice) {
	data, err := os.ReadFile(filepath.Join(devicePath, "current_link_speed"))
	if err != nil {
		return
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return
	}
	rate, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return
	}

	width := 1
	if data, err := os.ReadFile(filepath.Join(devicePath, "current_link_width")); err == nil {
		w := strings.TrimPrefix(strings.TrimSpace(string(data)), "x")
		if n, err := strconv.Atoi(w); err == nil && n > 0 {
			width = n
		}
	}
	device.attr.LinkSpeed = rate * float64(width)
}

// parseKernelDriver reads the driver symlink
func parseKernelDriver(devicePath string, device *sysfsPciDevice) {
	if driverLink, err := os.Readlink(filepath.Join(devicePath, "driver")); err == nil {
		device.driver = filepath.Base(driverLink)
	}
}

// parseSRIOVParameters reads the VF counts of a physical function
func parseSRIOVParameters(devicePath string, device *sysfsPciDevice) {
	if data, err := os.ReadFile(filepath.Join(devicePath, "sriov_totalvfs")); err == nil {
		device.totalVFs = strings.TrimSpace(string(data))
	}
	if data, err := os.ReadFile(filepath.Join(devicePath, "sriov_numvfs")); err == nil {
		device.numVFs = strings.TrimSpace(string(data))
	}
}

// parseNUMANode parses NUMA node information from sysfs
func parseNUMANode(devicePath string, device *sysfsPciDevice) {
	data, err := os.ReadFile(filepath.Join(devicePath, "numa_node"))
	if err != nil {
		return
	}
	node, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		pkg.Debug("invalid NUMA node %q for %s", strings.TrimSpace(string(data)), devicePath)
		return
	}
	device.numaNode = node
}

// pciInfos names the vendor and device and records driver and SR-IOV state
func pciInfos(dev *sysfsPciDevice) []Info {
	var infos []Info
	if name, ok := pcidb.LookupVendor(dev.attr.VendorID); ok {
		infos = append(infos, Info{Name: "PCIVendor", Value: name})
	}
	if name, ok := pcidb.LookupProduct(dev.attr.VendorID, dev.attr.DeviceID); ok {
		infos = append(infos, Info{Name: "PCIDevice", Value: name})
	}
	if dev.driver != "" {
		infos = append(infos, Info{Name: "KernelDriver", Value: dev.driver})
	}
	if dev.totalVFs != "" && dev.totalVFs != "0" {
		infos = append(infos, Info{Name: "SRIOVTotalVFs", Value: dev.totalVFs})
		if dev.numVFs != "" {
			infos = append(infos, Info{Name: "SRIOVNumVFs", Value: dev.numVFs})
		}
	}
	return infos
}

// addOSDevices adds network interfaces and NVMe namespaces below a PCI device
func addOSDevices(b *Builder, parent ObjectID, devicePath string, netInfo netInfoReader) {
	if entries, err := os.ReadDir(filepath.Join(devicePath, "net")); err == nil {
		for _, entry := range entries {
			iface := entry.Name()
			infos := []Info{}
			if mac, err := os.ReadFile(filepath.Join(devicePath, "net", iface, "address")); err == nil {
				if addr := strings.TrimSpace(string(mac)); addr != "" {
					infos = append(infos, Info{Name: "Address", Value: addr})
				}
			}
			if netInfo != nil {
				if driverInfos, err := netInfo.DriverInfo(iface); err == nil {
					infos = append(infos, driverInfos...)
				} else {
					pkg.WithError(err).WithField("interface", iface).Debug("ethtool driver info failed")
				}
			}
			b.MustAdd(parent, Node{
				Type:  TypeOSDevice,
				Name:  iface,
				Infos: infos,
				Attr:  &OSDevAttr{Kind: OSDeviceNetwork},
			})
		}
	}

	for _, name := range blockDevices(devicePath) {
		b.MustAdd(parent, Node{
			Type: TypeOSDevice,
			Name: name,
			Attr: &OSDevAttr{Kind: OSDeviceBlock},
		})
	}
}

// blockDevices lists NVMe namespaces (nvme/nvmeX/nvmeXnY) and direct block children
func blockDevices(devicePath string) []string {
	var names []string
	if controllers, err := os.ReadDir(filepath.Join(devicePath, "nvme")); err == nil {
		for _, ctrl := range controllers {
			namespaces, err := os.ReadDir(filepath.Join(devicePath, "nvme", ctrl.Name()))
			if err != nil {
				continue
			}
			for _, ns := range namespaces {
				if strings.HasPrefix(ns.Name(), ctrl.Name()+"n") {
					names = append(names, ns.Name())
				}
			}
		}
	}
	if entries, err := os.ReadDir(filepath.Join(devicePath, "block")); err == nil {
		for _, entry := range entries {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names
}

// linkBridges gives every device the narrowest bridge whose bus range holds it
func linkBridges(devices []*sysfsPciDevice) {
	for i, dev := range devices {
		best := -1
		for j, cand := range devices {
			if i == j || cand.bridge == nil || !cand.bridge.Contains(dev.attr.Domain, dev.attr.Bus) {
				continue
			}
			if best == -1 || narrower(cand.bridge, devices[best].bridge) {
				best = j
			}
		}
		dev.parent = best
		dev.children = nil
	}

	// Inconsistent config space can make bridges claim each other
	for i, dev := range devices {
		steps := 0
		for p := dev.parent; p != -1; p = devices[p].parent {
			steps++
			if steps > len(devices) {
				pkg.WithField("device", dev.attr.Address.String()).Warn("bridge bus ranges form a cycle, detaching device")
				devices[i].parent = -1
				break
			}
		}
	}

	for i, dev := range devices {
		if dev.parent >= 0 {
			devices[dev.parent].children = append(devices[dev.parent].children, i)
		}
	}
}

func narrower(a, b *BusRange) bool {
	wa := int(a.SubordinateBus) - int(a.SecondaryBus)
	wb := int(b.SubordinateBus) - int(b.SecondaryBus)
	if wa != wb {
		return wa < wb
	}
	return a.SecondaryBus < b.SecondaryBus
}

// groupHostBridges groups the top-level devices by domain and root bus
func groupHostBridges(devices []*sysfsPciDevice) []hostGroup {
	var groups []hostGroup
	index := make(map[[2]uint32]int)
	for i, dev := range devices {
		if dev.parent != -1 {
			continue
		}
		key := [2]uint32{dev.attr.Domain, uint32(dev.attr.Bus)}
		g, ok := index[key]
		if !ok {
			g = len(groups)
			index[key] = g
			groups = append(groups, hostGroup{domain: dev.attr.Domain, bus: dev.attr.Bus})
		}
		groups[g].members = append(groups[g].members, i)
	}
	return groups
}

// subordinate returns the highest bus reachable below the group
func (g hostGroup) subordinate(devices []*sysfsPciDevice) uint8 {
	highest := g.bus
	var walk func(idx int)
	walk = func(idx int) {
		dev := devices[idx]
		if dev.bridge != nil && dev.bridge.SubordinateBus > highest {
			highest = dev.bridge.SubordinateBus
		}
		for _, child := range dev.children {
			walk(child)
		}
	}
	for _, member := range g.members {
		walk(member)
	}
	return highest
}

// readHexFile reads a sysfs attribute such as "0x15b3"
func readHexFile(path string, bits int) (uint64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	s := strings.TrimSpace(string(data))
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, bits)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return v, nil
}
