package topology

// Option configures Init
type Option func(*options)

type options struct {
	provider Provider
	filter   IOFilter
	sysfs    SysfsOptions
}

// SysfsOptions configures the sysfs provider
type SysfsOptions struct {
	// Root is the sysfs mount point, normally /sys
	Root string
	// AllowedVendors keeps only devices of these vendors when non-empty
	AllowedVendors []uint16
	// ExcludedVendors drops devices of these vendors
	ExcludedVendors []uint16
	// OSDevices adds network and block devices below PCI devices
	OSDevices bool
	// Ethtool queries driver information of network OS devices
	Ethtool bool
}

func defaultOptions() options {
	return options{
		filter: IOFilterImportant,
		sysfs: SysfsOptions{
			Root:      "/sys",
			OSDevices: true,
			Ethtool:   true,
		},
	}
}

// WithProvider replaces the sysfs provider
func WithProvider(p Provider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithIOFilter selects which I/O objects are kept
func WithIOFilter(f IOFilter) Option {
	return func(o *options) {
		o.filter = f
	}
}

// WithSysfsRoot points the sysfs provider at another sysfs tree
func WithSysfsRoot(root string) Option {
	return func(o *options) {
		o.sysfs.Root = root
	}
}

// WithVendorFilter restricts the sysfs provider to, or away from, vendors
func WithVendorFilter(allowed, excluded []uint16) Option {
	return func(o *options) {
		o.sysfs.AllowedVendors = allowed
		o.sysfs.ExcludedVendors = excluded
	}
}

// WithOSDevices enables or disables OS device discovery
func WithOSDevices(enabled bool) Option {
	return func(o *options) {
		o.sysfs.OSDevices = enabled
	}
}

// WithEthtool enables or disables ethtool driver queries
func WithEthtool(enabled bool) Option {
	return func(o *options) {
		o.sysfs.Ethtool = enabled
	}
}
