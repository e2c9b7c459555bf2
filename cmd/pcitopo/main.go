package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"pcitopo/internal/config"
	"pcitopo/pkg"
	"pcitopo/pkg/inspect"
	"pcitopo/pkg/topology"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath      string
	sysfsRoot       string
	outputFormat    string
	ioFilter        string
	maxDevices      int
	failFast        bool
	allowedVendors  string
	excludedVendors string
	logLevel        string

	// cfg is the merged configuration, set before any command runs
	cfg *config.Config

	// openTopology is a variable so tests can observe or replace discovery
	openTopology = loadTopology
)

var rootCmd = &cobra.Command{
	Use:   "pcitopo [flags] <busid>...",
	Short: "Inspect PCI devices, their host bridges and common topology ancestors",
	Long: `pcitopo resolves PCI devices by bus id, prints their attributes, finds the
host bridge above each of them and prints the nearest common topology ancestor
of every ordered pair of devices.

Bus ids use the form dddd:bb:dd.f or bb:dd.f (domain 0), in hexadecimal.

Examples:
  pcitopo 0000:01:00.0                     # One device and its host bridge
  pcitopo 01:00.0 01:00.1 83:00.0          # Three devices and six ancestor queries
  pcitopo --format json 0000:01:00.0       # Structured output
  pcitopo --io-filter all 0000:00:14.0     # Keep devices the default filter drops
  pcitopo tree                             # Print the whole topology
  pcitopo watch 0000:01:00.0               # Re-run whenever PCI devices change`,
	Args:              cobra.ArbitraryArgs,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
	RunE:              runInspect,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flags.StringVar(&sysfsRoot, "sysfs-root", "/sys", "Sysfs mount point to discover devices from")
	flags.StringVar(&outputFormat, "format", "text", "Output format: text, json, yaml")
	flags.StringVar(&ioFilter, "io-filter", "important", "I/O objects to keep: important, all")
	flags.IntVar(&maxDevices, "max-devices", config.DefaultMaxDevices, "Maximum number of bus ids (0 for no limit)")
	flags.BoolVar(&failFast, "fail-fast", false, "Stop at the first device or pair that fails")
	flags.StringVar(&allowedVendors, "allowed-vendors", "", "Comma-separated list of allowed vendor IDs (e.g., 0x15b3,0x8086)")
	flags.StringVar(&excludedVendors, "excluded-vendors", "", "Comma-separated list of excluded vendor IDs (e.g., 0x1234,0x5678)")
	flags.StringVar(&logLevel, "log-level", "warn", "Log level: debug, info, warn, error")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the command line and returns the process exit code
func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		printDiagnostics(stderr, err)
		return 1
	}
	return 0
}

// printDiagnostics writes one line per failure
func printDiagnostics(w io.Writer, err error) {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		for _, e := range joined.Unwrap() {
			printDiagnostics(w, e)
		}
		return
	}
	fmt.Fprintf(w, "error: %v\n", err)
}

// loadConfig merges the config file with the flags that were set explicitly
func loadConfig(cmd *cobra.Command, _ []string) error {
	c, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("sysfs-root") {
		c.SysfsRoot = sysfsRoot
	}
	if flags.Changed("format") {
		c.Format = outputFormat
	}
	if flags.Changed("io-filter") {
		c.Discovery.IOFilter = ioFilter
	}
	if flags.Changed("max-devices") {
		c.MaxDevices = maxDevices
	}
	if flags.Changed("fail-fast") {
		c.FailFast = failFast
	}
	if flags.Changed("allowed-vendors") {
		c.Discovery.AllowedVendorIDs = config.ParseVendorList(allowedVendors)
	}
	if flags.Changed("excluded-vendors") {
		c.Discovery.ExcludedVendorIDs = config.ParseVendorList(excludedVendors)
	}
	if flags.Changed("log-level") {
		c.LogLevel = logLevel
	}

	if err := c.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	pkg.SetOutput(cmd.ErrOrStderr())
	if err := pkg.SetLogLevelFromString(c.LogLevel); err != nil {
		return err
	}

	pkg.WithFields(log.Fields{
		"config":           configPath,
		"sysfs_root":       c.SysfsRoot,
		"format":           c.Format,
		"io_filter":        c.Discovery.IOFilter,
		"max_devices":      c.MaxDevices,
		"allowed_vendors":  c.Discovery.AllowedVendorIDs,
		"excluded_vendors": c.Discovery.ExcludedVendorIDs,
	}).Debug("configuration loaded")

	cfg = c
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	if err := checkArgCount(args, cfg.MaxDevices); err != nil {
		return err
	}
	format, err := inspect.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	topo, err := openTopology(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer topo.Close()

	return inspectOnce(cmd.Context(), cmd.OutOrStdout(), topo, args, format)
}

// inspectOnce runs the inspector and renders whatever succeeded
func inspectOnce(ctx context.Context, w io.Writer, topo *topology.Topology, busIDs []string, format inspect.Format) error {
	report, runErr := inspect.New(topo, inspect.WithFailFast(cfg.FailFast)).Run(ctx, busIDs)
	if err := inspect.Render(w, report, format); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return runErr
}

func checkArgCount(args []string, limit int) error {
	n := len(args)
	switch {
	case n == 0 && limit > 0:
		return inspect.NewError(inspect.KindArgumentCount, "0 bus ids", fmt.Errorf("expected between 1 and %d", limit))
	case n == 0:
		return inspect.NewError(inspect.KindArgumentCount, "0 bus ids", errors.New("expected at least 1"))
	case limit > 0 && n > limit:
		return inspect.NewError(inspect.KindArgumentCount, fmt.Sprintf("%d bus ids", n), fmt.Errorf("expected between 1 and %d", limit))
	}
	return nil
}

// loadTopology creates and loads a sysfs topology from the configuration
func loadTopology(ctx context.Context, c *config.Config) (*topology.Topology, error) {
	filter, err := topology.ParseIOFilter(c.Discovery.IOFilter)
	if err != nil {
		return nil, inspect.NewError(inspect.KindTopologyInit, "init topology", err)
	}
	allowed, err := config.ParseVendorIDs(c.Discovery.AllowedVendorIDs)
	if err != nil {
		return nil, inspect.NewError(inspect.KindTopologyInit, "init topology", err)
	}
	excluded, err := config.ParseVendorIDs(c.Discovery.ExcludedVendorIDs)
	if err != nil {
		return nil, inspect.NewError(inspect.KindTopologyInit, "init topology", err)
	}

	topo, err := topology.Init(
		topology.WithSysfsRoot(c.SysfsRoot),
		topology.WithIOFilter(filter),
		topology.WithVendorFilter(allowed, excluded),
		topology.WithOSDevices(c.Discovery.EnableOSDevices),
		topology.WithEthtool(c.Discovery.EnableEthtool),
	)
	if err != nil {
		return nil, inspect.NewError(inspect.KindTopologyInit, "init topology", err)
	}

	if err := topo.Load(ctx); err != nil {
		topo.Close()
		return nil, inspect.NewError(inspect.KindTopologyLoad, "load topology", err)
	}
	return topo, nil
}
