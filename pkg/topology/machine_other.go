//go:build !linux

package topology

func machineInfos() []Info {
	return nil
}
