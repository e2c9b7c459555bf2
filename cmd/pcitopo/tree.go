package main

import (
	"pcitopo/pkg/inspect"

	"github.com/spf13/cobra"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the whole topology as a tree",
	Long: `Print every object of the loaded topology, one per line:
machine, NUMA nodes, host bridges, PCI bridges, PCI devices and the network
and block devices below them.

Examples:
  pcitopo tree                    # Important devices only
  pcitopo tree --io-filter all    # Every bridge and device`,
	Args: cobra.NoArgs,
	RunE: runTree,
}

func init() {
	rootCmd.AddCommand(treeCmd)
}

func runTree(cmd *cobra.Command, _ []string) error {
	topo, err := openTopology(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer topo.Close()

	return inspect.WriteTree(cmd.OutOrStdout(), topo)
}
