package main

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"pcitopo/pkg"
	"pcitopo/pkg/inspect"
	"pcitopo/pkg/topology"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var watchCmd = &cobra.Command{
	Use:   "watch <busid>...",
	Short: "Re-run the inspection whenever PCI devices appear or disappear",
	Long: `Run the inspection once, then watch the sysfs PCI device directory and
reload the topology and re-run the inspection after devices are added or
removed (hotplug, SR-IOV virtual functions). Stops on SIGINT or SIGTERM.

Examples:
  pcitopo watch 0000:01:00.0 0000:83:00.0`,
	Args: cobra.ArbitraryArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := checkArgCount(args, cfg.MaxDevices); err != nil {
		return err
	}
	format, err := inspect.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	topo, err := openTopology(ctx, cfg)
	if err != nil {
		return err
	}
	defer topo.Close()

	monitor, err := newFSMonitor(topology.DevicesDir(cfg.SysfsRoot), cfg.Watch.Debounce)
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := monitor.start(); err != nil {
		monitor.stop()
		return fmt.Errorf("failed to watch %s: %w", monitor.dir, err)
	}
	defer monitor.stop()

	if err := inspectOnce(ctx, cmd.OutOrStdout(), topo, args, format); err != nil {
		printDiagnostics(cmd.ErrOrStderr(), err)
	}

	for {
		select {
		case <-ctx.Done():
			pkg.Info("Stopping watch")
			return nil
		case <-monitor.changes:
			pkg.Info("PCI devices changed, reloading topology")
			if err := topo.Load(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				printDiagnostics(cmd.ErrOrStderr(), inspect.NewError(inspect.KindTopologyLoad, "reload topology", err))
				continue
			}
			if err := inspectOnce(ctx, cmd.OutOrStdout(), topo, args, format); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				printDiagnostics(cmd.ErrOrStderr(), err)
			}
		}
	}
}

// fsMonitor reports debounced changes to the set of PCI devices
type fsMonitor struct {
	watcher  *fsnotify.Watcher
	dir      string
	debounce time.Duration
	changes  chan struct{}
	stopCh   chan struct{}
	done     chan struct{}
}

// newFSMonitor creates a monitor for a sysfs PCI devices directory
func newFSMonitor(dir string, debounce time.Duration) (*fsMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &fsMonitor{
		watcher:  watcher,
		dir:      dir,
		debounce: debounce,
		changes:  make(chan struct{}, 1),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// start begins monitoring the devices directory
func (fm *fsMonitor) start() error {
	pkg.WithField("dir", fm.dir).Info("Starting file system monitoring for PCI device changes")

	if err := fm.watcher.Add(fm.dir); err != nil {
		return err
	}

	go fm.processEvents()
	return nil
}

// stop stops the file system monitoring and waits for the event loop
func (fm *fsMonitor) stop() {
	select {
	case <-fm.stopCh:
		return
	default:
	}
	close(fm.stopCh)
	fm.watcher.Close()

	select {
	case <-fm.done:
	case <-time.After(time.Second):
	}
}

// processEvents coalesces bursts of events into one notification per debounce window
func (fm *fsMonitor) processEvents() {
	defer close(fm.done)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case event, ok := <-fm.watcher.Events:
			if !ok {
				return
			}
			if !isDeviceEvent(event) {
				continue
			}
			pkg.WithField("pci", filepath.Base(event.Name)).Debug("PCI device change detected")
			if timer == nil {
				timer = time.NewTimer(fm.debounce)
			} else {
				timer.Reset(fm.debounce)
			}
			fire = timer.C
		case err, ok := <-fm.watcher.Errors:
			if !ok {
				return
			}
			pkg.WithError(err).Error("file system monitor error")
		case <-fire:
			fire = nil
			select {
			case fm.changes <- struct{}{}:
			default:
			}
		case <-fm.stopCh:
			return
		}
	}
}

// isDeviceEvent reports whether a PCI function appeared or disappeared
func isDeviceEvent(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if strings.Count(name, ":") != 2 {
		return false
	}
	if _, err := topology.ParseBusID(name); err != nil {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
