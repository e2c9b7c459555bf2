// Package inspect resolves PCI devices by bus id, locates their host bridges
// and computes common ancestors between every ordered pair of them.
package inspect

import (
	"context"
	"errors"
	"fmt"

	"pcitopo/pkg"
	"pcitopo/pkg/topology"

	log "github.com/sirupsen/logrus"
)

var errNoSuchDevice = errors.New("no PCI device with this bus id")

// Topology is the read-only view of a loaded topology the inspector needs
type Topology interface {
	LookupBusID(busID string) (*topology.Object, bool)
	Parent(o *topology.Object) *topology.Object
	CommonAncestor(a, b *topology.Object) (*topology.Object, bool)
}

// DeviceResult is the outcome of resolving one bus id
type DeviceResult struct {
	BusID      string
	Device     *topology.Object
	HostBridge *topology.Object
	Err        error
}

// PairResult is the outcome of one ordered ancestor query
type PairResult struct {
	From     string
	To       string
	Ancestor *topology.Object
	Err      error
}

// Report collects the results of a run in input order
type Report struct {
	Devices []DeviceResult
	Pairs   []PairResult
}

// Errors returns every per-item failure in the order they occurred
func (r *Report) Errors() []error {
	var errs []error
	for _, d := range r.Devices {
		if d.Err != nil {
			errs = append(errs, d.Err)
		}
	}
	for _, p := range r.Pairs {
		if p.Err != nil {
			errs = append(errs, p.Err)
		}
	}
	return errs
}

// Err joins every per-item failure, or returns nil
func (r *Report) Err() error {
	return errors.Join(r.Errors()...)
}

// Inspector runs device resolution, host-bridge lookup and the pairwise sweep
type Inspector struct {
	topo     Topology
	failFast bool
}

// Option configures an Inspector
type Option func(*Inspector)

// WithFailFast stops at the first failed device or pair
func WithFailFast(enabled bool) Option {
	return func(in *Inspector) {
		in.failFast = enabled
	}
}

// New creates an inspector over a loaded topology
func New(topo Topology, opts ...Option) *Inspector {
	in := &Inspector{topo: topo}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Resolve maps a bus id to its PCI device
func (in *Inspector) Resolve(busID string) (*topology.Object, error) {
	dev, ok := in.topo.LookupBusID(busID)
	if !ok {
		return nil, NewError(KindDeviceNotFound, busID, errNoSuchDevice)
	}
	return dev, nil
}

// Run resolves every bus id, finds each device's host bridge and computes the
// common ancestor of every ordered pair of distinct resolved devices. Failed
// items are recorded in the report and joined into the returned error.
func (in *Inspector) Run(ctx context.Context, busIDs []string) (*Report, error) {
	report := &Report{Devices: make([]DeviceResult, 0, len(busIDs))}

	for _, busID := range busIDs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		result := DeviceResult{BusID: busID}
		dev, err := in.Resolve(busID)
		if err == nil {
			result.Device = dev
			result.HostBridge, err = FindHostBridge(in.topo, dev)
			if err != nil {
				err = NewError(KindHostBridgeNotFound, busID, errors.Unwrap(err))
			}
		}
		result.Err = err
		report.Devices = append(report.Devices, result)

		if err != nil {
			pkg.WithFields(log.Fields{
				"bus_id": busID,
				"kind":   KindOf(err).String(),
			}).Debug("device inspection failed")
			if in.failFast {
				return report, report.Err()
			}
		}
	}

	for i, a := range report.Devices {
		if a.Device == nil {
			continue
		}
		for j, b := range report.Devices {
			if i == j || b.Device == nil {
				continue
			}
			if err := ctx.Err(); err != nil {
				return report, err
			}

			pair := PairResult{From: a.BusID, To: b.BusID}
			if anc, ok := in.topo.CommonAncestor(a.Device, b.Device); ok {
				pair.Ancestor = anc
			} else {
				pair.Err = NewError(KindAncestorInconsistency,
					fmt.Sprintf("%s and %s", a.BusID, b.BusID),
					errors.New("objects share no common ancestor"))
			}
			report.Pairs = append(report.Pairs, pair)

			if pair.Err != nil && in.failFast {
				return report, report.Err()
			}
		}
	}

	pkg.WithFields(log.Fields{
		"devices": len(report.Devices),
		"pairs":   len(report.Pairs),
	}).Debug("inspection finished")
	return report, report.Err()
}

// FindHostBridge returns the nearest object, o included, that is a bridge
// with a host upstream side
func FindHostBridge(topo Topology, o *topology.Object) (*topology.Object, error) {
	for cur := o; cur != nil; cur = topo.Parent(cur) {
		if cur.IsHostBridge() {
			return cur, nil
		}
	}
	return nil, NewError(KindHostBridgeNotFound, describe(o), errors.New("no host bridge above object"))
}

func describe(o *topology.Object) string {
	if o == nil {
		return "<nil>"
	}
	if addr, ok := o.BusID(); ok {
		return addr.String()
	}
	return fmt.Sprintf("%s#%d", o.Type, o.LogicalIndex)
}
