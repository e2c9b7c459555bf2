package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultMaxDevices is the number of bus ids accepted unless configured otherwise
const DefaultMaxDevices = 8

var validate = validator.New()

// Config represents the pcitopo configuration
type Config struct {
	SysfsRoot string `yaml:"sysfs_root" validate:"required"`
	Format    string `yaml:"format" validate:"oneof=text json yaml"`
	// MaxDevices bounds the bus id arguments; 0 means unbounded
	MaxDevices int    `yaml:"max_devices" validate:"min=0"`
	FailFast   bool   `yaml:"fail_fast"`
	LogLevel   string `yaml:"log_level" validate:"oneof=debug info warn warning error"`

	Discovery Discovery `yaml:"discovery"`
	Watch     Watch     `yaml:"watch"`
}

// Discovery configures the sysfs topology provider
type Discovery struct {
	IOFilter          string   `yaml:"io_filter" validate:"oneof=important all"`
	AllowedVendorIDs  []string `yaml:"allowed_vendor_ids" validate:"dive,hexadecimal"`
	ExcludedVendorIDs []string `yaml:"excluded_vendor_ids" validate:"dive,hexadecimal"`
	EnableOSDevices   bool     `yaml:"enable_os_devices"`
	EnableEthtool     bool     `yaml:"enable_ethtool"`
}

// Watch configures watch mode
type Watch struct {
	Debounce time.Duration `yaml:"debounce" validate:"min=0"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		SysfsRoot:  "/sys",
		Format:     "text",
		MaxDevices: DefaultMaxDevices,
		LogLevel:   "warn",
		Discovery: Discovery{
			IOFilter:        "important",
			EnableOSDevices: true,
			EnableEthtool:   true,
		},
		Watch: Watch{
			Debounce: 500 * time.Millisecond,
		},
	}
}

// LoadConfig loads configuration from a YAML file on top of the defaults.
// An empty path returns the defaults.
func LoadConfig(path string) (*Config, error) {
	config := Default()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Validate checks field constraints and vendor id ranges
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}
	if _, err := ParseVendorIDs(c.Discovery.AllowedVendorIDs); err != nil {
		return fmt.Errorf("allowed_vendor_ids: %w", err)
	}
	if _, err := ParseVendorIDs(c.Discovery.ExcludedVendorIDs); err != nil {
		return fmt.Errorf("excluded_vendor_ids: %w", err)
	}
	return nil
}

func formatValidationError(err error) error {
	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(validationErrs) == 0 {
		return err
	}

	e := validationErrs[0]
	field := e.Namespace()
	switch e.Tag() {
	case "required":
		return fmt.Errorf("%s: field is required", field)
	case "oneof":
		return fmt.Errorf("%s: must be one of [%s], got %q", field, e.Param(), e.Value())
	case "min":
		return fmt.Errorf("%s: must be at least %s", field, e.Param())
	case "hexadecimal":
		return fmt.Errorf("%s: %q is not a hexadecimal vendor id", field, e.Value())
	default:
		return fmt.Errorf("%s: validation failed (%s)", field, e.Tag())
	}
}

// ParseVendorList parses a comma-separated list of vendor IDs
func ParseVendorList(vendorList string) []string {
	if vendorList == "" {
		return nil
	}

	vendors := make([]string, 0)
	for _, vendor := range strings.Split(vendorList, ",") {
		vendor = strings.TrimSpace(vendor)
		if vendor != "" {
			vendors = append(vendors, vendor)
		}
	}
	return vendors
}

// ParseVendorIDs converts vendor IDs such as "0x15b3" or "8086" to numbers
func ParseVendorIDs(vendors []string) ([]uint16, error) {
	if len(vendors) == 0 {
		return nil, nil
	}

	ids := make([]uint16, 0, len(vendors))
	for _, vendor := range vendors {
		s := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(vendor), "0x"), "0X")
		id, err := strconv.ParseUint(s, 16, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid vendor id: %s", vendor)
		}
		ids = append(ids, uint16(id))
	}
	return ids, nil
}
