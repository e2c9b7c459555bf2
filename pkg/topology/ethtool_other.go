//go:build !linux

package topology

import "errors"

func openEthtool() (netInfoReader, error) {
	return nil, errors.New("ethtool is only available on linux")
}
