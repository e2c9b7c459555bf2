package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	configContent := `sysfs_root: /host/sys
format: json
max_devices: 0
fail_fast: true
log_level: debug
discovery:
  io_filter: all
  allowed_vendor_ids: ["0x15b3", "8086"]
  enable_ethtool: false
watch:
  debounce: 2s
`

	tmpFile := filepath.Join(t.TempDir(), "pcitopo.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte(configContent), 0644))

	config, err := LoadConfig(tmpFile)
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "/host/sys", config.SysfsRoot)
	assert.Equal(t, "json", config.Format)
	assert.Equal(t, 0, config.MaxDevices)
	assert.True(t, config.FailFast)
	assert.Equal(t, "debug", config.LogLevel)
	assert.Equal(t, "all", config.Discovery.IOFilter)
	assert.Equal(t, []string{"0x15b3", "8086"}, config.Discovery.AllowedVendorIDs)
	assert.False(t, config.Discovery.EnableEthtool)
	assert.True(t, config.Discovery.EnableOSDevices, "unset fields keep their defaults")
	assert.Equal(t, 2*time.Second, config.Watch.Debounce)
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig("")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, Default(), config)
	assert.Equal(t, DefaultMaxDevices, config.MaxDevices)
	assert.Equal(t, 500*time.Millisecond, config.Watch.Debounce)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")

	tmpFile := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(tmpFile, []byte("max_devices: [1, 2"), 0644))
	_, err = LoadConfig(tmpFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty sysfs root",
			mutate:  func(c *Config) { c.SysfsRoot = "" },
			wantErr: "SysfsRoot: field is required",
		},
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.Format = "xml" },
			wantErr: "Format: must be one of",
		},
		{
			name:    "negative max devices",
			mutate:  func(c *Config) { c.MaxDevices = -1 },
			wantErr: "MaxDevices: must be at least 0",
		},
		{
			name:    "unknown io filter",
			mutate:  func(c *Config) { c.Discovery.IOFilter = "some" },
			wantErr: "IOFilter: must be one of",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "trace" },
			wantErr: "LogLevel: must be one of",
		},
		{
			name:    "vendor id not hex",
			mutate:  func(c *Config) { c.Discovery.ExcludedVendorIDs = []string{"intel"} },
			wantErr: "is not a hexadecimal vendor id",
		},
		{
			name:    "vendor id too large",
			mutate:  func(c *Config) { c.Discovery.AllowedVendorIDs = []string{"0x123456"} },
			wantErr: "allowed_vendor_ids: invalid vendor id",
		},
		{
			name:    "negative debounce",
			mutate:  func(c *Config) { c.Watch.Debounce = -time.Second },
			wantErr: "Debounce: must be at least",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := Default()
			tt.mutate(config)
			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseVendorList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "single", input: "0x15b3", expected: []string{"0x15b3"}},
		{name: "spaces and empties", input: " 0x15b3, ,8086 ,", expected: []string{"0x15b3", "8086"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseVendorList(tt.input))
		})
	}
}

func TestParseVendorIDs(t *testing.T) {
	ids, err := ParseVendorIDs([]string{"0x15b3", "8086", "0X1DD8"})
	require.NoError(t, err)
	assert.Equal(t, []uint16{0x15b3, 0x8086, 0x1dd8}, ids)

	ids, err = ParseVendorIDs(nil)
	require.NoError(t, err)
	assert.Nil(t, ids)

	_, err = ParseVendorIDs([]string{"0x10000"})
	assert.Error(t, err)
}
