//go:build linux

package topology

import (
	"pcitopo/pkg"

	"golang.org/x/sys/unix"
)

// machineInfos describes the running kernel and host
func machineInfos() []Info {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		pkg.WithError(err).Debug("uname failed")
		return nil
	}

	return nonEmptyInfos(
		Info{Name: "OSName", Value: unix.ByteSliceToString(uts.Sysname[:])},
		Info{Name: "OSRelease", Value: unix.ByteSliceToString(uts.Release[:])},
		Info{Name: "OSVersion", Value: unix.ByteSliceToString(uts.Version[:])},
		Info{Name: "HostName", Value: unix.ByteSliceToString(uts.Nodename[:])},
		Info{Name: "Architecture", Value: unix.ByteSliceToString(uts.Machine[:])},
	)
}
