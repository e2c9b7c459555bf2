//go:build linux

package topology

import (
	"fmt"

	"github.com/safchain/ethtool"
)

type ethtoolReader struct {
	handle *ethtool.Ethtool
}

func openEthtool() (netInfoReader, error) {
	handle, err := ethtool.NewEthtool()
	if err != nil {
		return nil, fmt.Errorf("open ethtool: %w", err)
	}
	return &ethtoolReader{handle: handle}, nil
}

// DriverInfo reports the driver, its version and the firmware version
func (r *ethtoolReader) DriverInfo(iface string) ([]Info, error) {
	drv, err := r.handle.DriverInfo(iface)
	if err != nil {
		return nil, err
	}
	return nonEmptyInfos(
		Info{Name: "DriverName", Value: drv.Driver},
		Info{Name: "DriverVersion", Value: drv.Version},
		Info{Name: "FirmwareVersion", Value: drv.FwVersion},
	), nil
}

func (r *ethtoolReader) Close() {
	r.handle.Close()
}
