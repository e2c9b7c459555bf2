package topology

import (
	"fmt"
	"os"
	"path/filepath"
)

// MockDevice describes one PCI function written by WriteMockSysfs
type MockDevice struct {
	Address     string
	VendorID    string
	DeviceID    string
	SubVendorID string
	SubDeviceID string
	Class       string
	Revision    string
	NUMANode    string
	LinkSpeed   string
	LinkWidth   string
	Driver      string
	TotalVFs    string
	NumVFs      string

	// Bridge makes the function a PCI-to-PCI bridge with a type 1 header
	Bridge *MockBridge
	// NetInterfaces maps interface names to MAC addresses
	NetInterfaces map[string]string
	// NVMeNamespaces are created below nvme/nvme0
	NVMeNamespaces []string
}

// MockBridge is the bus range of a mock bridge
type MockBridge struct {
	Secondary   uint8
	Subordinate uint8
}

// MockDevices returns a two socket host: a ConnectX-7, a Pensando DSC and an
// I350 on node 0 and an NVMe drive and a GPU behind a PLX switch on node 1,
// plus a USB controller, an SMBus controller and an empty root port that the
// important filter drops.
func MockDevices() []MockDevice {
	rootPort := func(addr, device string, sec, sub uint8, node string) MockDevice {
		return MockDevice{
			Address:  addr,
			VendorID: "0x8086",
			DeviceID: device,
			Class:    "0x060400",
			Revision: "0x04",
			NUMANode: node,
			Driver:   "pcieport",
			Bridge:   &MockBridge{Secondary: sec, Subordinate: sub},
		}
	}
	switchPort := func(addr string, sec, sub uint8) MockDevice {
		return MockDevice{
			Address:  addr,
			VendorID: "0x10b5",
			DeviceID: "0x8747",
			Class:    "0x060400",
			Revision: "0xca",
			NUMANode: "1",
			Driver:   "pcieport",
			Bridge:   &MockBridge{Secondary: sec, Subordinate: sub},
		}
	}

	return []MockDevice{
		rootPort("0000:00:01.0", "0x2030", 0x01, 0x01, "0"),
		rootPort("0000:00:02.0", "0x2031", 0x02, 0x02, "0"),
		rootPort("0000:00:03.0", "0x2032", 0x03, 0x03, "0"),
		rootPort("0000:00:1c.0", "0xa110", 0x04, 0x04, "0"),
		{
			Address:  "0000:00:14.0",
			VendorID: "0x8086",
			DeviceID: "0xa12f",
			Class:    "0x0c0330",
			Revision: "0x31",
			NUMANode: "0",
			Driver:   "xhci_hcd",
		},
		{
			Address:  "0000:00:1f.4",
			VendorID: "0x8086",
			DeviceID: "0xa123",
			Class:    "0x0c0500",
			Revision: "0x31",
			NUMANode: "0",
		},
		{
			Address:       "0000:01:00.0",
			VendorID:      "0x15b3",
			DeviceID:      "0x101e",
			SubVendorID:   "0x15b3",
			SubDeviceID:   "0x0007",
			Class:         "0x020000",
			NUMANode:      "0",
			LinkSpeed:     "16.0 GT/s PCIe",
			LinkWidth:     "16",
			Driver:        "mlx5_core",
			TotalVFs:      "16",
			NumVFs:        "4",
			NetInterfaces: map[string]string{"ens1f0np0": "b8:3f:d2:00:00:10"},
		},
		{
			Address:       "0000:01:00.1",
			VendorID:      "0x15b3",
			DeviceID:      "0x101e",
			SubVendorID:   "0x15b3",
			SubDeviceID:   "0x0007",
			Class:         "0x020000",
			NUMANode:      "0",
			LinkSpeed:     "16.0 GT/s PCIe",
			LinkWidth:     "16",
			Driver:        "mlx5_core",
			TotalVFs:      "16",
			NumVFs:        "0",
			NetInterfaces: map[string]string{"ens1f1np1": "b8:3f:d2:00:00:11"},
		},
		{
			Address:       "0000:02:00.0",
			VendorID:      "0x1dd8",
			DeviceID:      "0x1002",
			SubVendorID:   "0x1dd8",
			SubDeviceID:   "0x5008",
			Class:         "0x020000",
			NUMANode:      "0",
			LinkSpeed:     "16.0 GT/s PCIe",
			LinkWidth:     "8",
			Driver:        "ionic",
			NetInterfaces: map[string]string{"enp2s0np0": "00:ae:cd:00:00:20"},
		},
		{
			Address:       "0000:03:00.0",
			VendorID:      "0x8086",
			DeviceID:      "0x1521",
			SubVendorID:   "0x8086",
			SubDeviceID:   "0x0001",
			Class:         "0x020000",
			Revision:      "0x01",
			NUMANode:      "0",
			LinkSpeed:     "5.0 GT/s PCIe",
			LinkWidth:     "4",
			Driver:        "igb",
			TotalVFs:      "7",
			NumVFs:        "0",
			NetInterfaces: map[string]string{"eno1": "3c:ec:ef:00:00:30"},
		},
		rootPort("0000:80:01.0", "0x2030", 0x81, 0x85, "1"),
		switchPort("0000:81:00.0", 0x82, 0x85),
		switchPort("0000:82:08.0", 0x83, 0x83),
		switchPort("0000:82:10.0", 0x84, 0x84),
		{
			Address:        "0000:83:00.0",
			VendorID:       "0x144d",
			DeviceID:       "0xa808",
			SubVendorID:    "0x144d",
			SubDeviceID:    "0xa801",
			Class:          "0x010802",
			NUMANode:       "1",
			LinkSpeed:      "8.0 GT/s PCIe",
			LinkWidth:      "4",
			Driver:         "nvme",
			NVMeNamespaces: []string{"nvme0n1"},
		},
		{
			Address:     "0000:84:00.0",
			VendorID:    "0x10de",
			DeviceID:    "0x2330",
			SubVendorID: "0x10de",
			SubDeviceID: "0x16c1",
			Class:       "0x030200",
			Revision:    "0xa1",
			NUMANode:    "1",
			LinkSpeed:   "32.0 GT/s PCIe",
			LinkWidth:   "16",
			Driver:      "nvidia",
		},
	}
}

// WriteMockSysfs lays out devices below root the way /sys does, so that
// NewSysfsProvider(SysfsOptions{Root: root}) can discover them
func WriteMockSysfs(root string, devices []MockDevice) error {
	devicesPath := devicesDir(root)
	if err := os.MkdirAll(devicesPath, 0o755); err != nil {
		return err
	}

	for _, dev := range devices {
		if err := writeMockDevice(root, filepath.Join(devicesPath, dev.Address), dev); err != nil {
			return fmt.Errorf("mock device %s: %w", dev.Address, err)
		}
	}
	return nil
}

func writeMockDevice(root, path string, dev MockDevice) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return err
	}

	files := map[string]string{
		"vendor":             dev.VendorID,
		"device":             dev.DeviceID,
		"subsystem_vendor":   dev.SubVendorID,
		"subsystem_device":   dev.SubDeviceID,
		"class":              dev.Class,
		"revision":           dev.Revision,
		"numa_node":          dev.NUMANode,
		"current_link_speed": dev.LinkSpeed,
		"current_link_width": dev.LinkWidth,
		"sriov_totalvfs":     dev.TotalVFs,
		"sriov_numvfs":       dev.NumVFs,
	}
	for name, value := range files {
		if value == "" {
			continue
		}
		if err := os.WriteFile(filepath.Join(path, name), []byte(value+"\n"), 0o644); err != nil {
			return err
		}
	}

	config := make([]byte, 64)
	if dev.Bridge != nil {
		config[pciCfgOffsetHeaderType] = pciHeaderTypeBridge
		config[pciCfgOffsetSecondaryBus] = dev.Bridge.Secondary
		config[pciCfgOffsetSubordinateBus] = dev.Bridge.Subordinate
	}
	if err := os.WriteFile(filepath.Join(path, "config"), config, 0o644); err != nil {
		return err
	}

	if dev.Driver != "" {
		driverDir := filepath.Join(root, "bus", "pci", "drivers", dev.Driver)
		if err := os.MkdirAll(driverDir, 0o755); err != nil {
			return err
		}
		if err := os.Symlink(driverDir, filepath.Join(path, "driver")); err != nil {
			return err
		}
	}

	for iface, mac := range dev.NetInterfaces {
		ifacePath := filepath.Join(path, "net", iface)
		if err := os.MkdirAll(ifacePath, 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(ifacePath, "address"), []byte(mac+"\n"), 0o644); err != nil {
			return err
		}
	}

	for _, ns := range dev.NVMeNamespaces {
		if err := os.MkdirAll(filepath.Join(path, "nvme", "nvme0", ns), 0o755); err != nil {
			return err
		}
	}
	return nil
}
