package topology

import (
	"path/filepath"

	"github.com/jaypipes/ghw"
)

// discoverNUMANodes is a variable so tests can run without ghw
var discoverNUMANodes = ghwNUMANodes

// ghwNUMANodes lists the NUMA node ids of the system that owns sysfsRoot.
// ghw reads <chroot>/sys, so roots not named "sys" are skipped.
func ghwNUMANodes(sysfsRoot string) ([]int, error) {
	root := filepath.Clean(sysfsRoot)
	if filepath.Base(root) != "sys" {
		return nil, nil
	}

	topo, err := ghw.Topology(
		ghw.WithChroot(filepath.Dir(root)),
		ghw.WithDisableWarnings(),
	)
	if err != nil {
		return nil, err
	}

	ids := make([]int, 0, len(topo.Nodes))
	for _, node := range topo.Nodes {
		ids = append(ids, node.ID)
	}
	return ids, nil
}
