package topology

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBusID(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected Address
		wantErr  bool
	}{
		{
			name:     "full form",
			input:    "0000:01:00.0",
			expected: Address{Domain: 0, Bus: 0x01, Device: 0, Function: 0},
		},
		{
			name:     "short form defaults domain to zero",
			input:    "83:00.1",
			expected: Address{Domain: 0, Bus: 0x83, Device: 0, Function: 1},
		},
		{
			name:     "nonzero domain",
			input:    "10001:3b:1f.7",
			expected: Address{Domain: 0x10001, Bus: 0x3b, Device: 0x1f, Function: 7},
		},
		{
			name:     "uppercase hex",
			input:    "0000:AF:0A.2",
			expected: Address{Bus: 0xaf, Device: 0x0a, Function: 2},
		},
		{
			name:     "surrounding whitespace",
			input:    " 0000:02:00.0\n",
			expected: Address{Bus: 0x02},
		},
		{name: "empty", input: "", wantErr: true},
		{name: "missing function", input: "0000:01:00", wantErr: true},
		{name: "too many fields", input: "0000:00:01:00.0", wantErr: true},
		{name: "not hex", input: "0000:zz:00.0", wantErr: true},
		{name: "device out of range", input: "0000:01:20.0", wantErr: true},
		{name: "function out of range", input: "0000:01:00.8", wantErr: true},
		{name: "bus too wide", input: "0000:100:00.0", wantErr: true},
		{name: "empty bus", input: "0000::00.0", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := ParseBusID(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}

func TestAddressString(t *testing.T) {
	assert.Equal(t, "0000:01:00.0", Address{Bus: 1}.String())
	assert.Equal(t, "0001:af:1f.7", Address{Domain: 1, Bus: 0xaf, Device: 0x1f, Function: 7}.String())
}

func TestAddressLess(t *testing.T) {
	a := Address{Domain: 0, Bus: 1, Device: 0, Function: 1}
	b := Address{Domain: 0, Bus: 1, Device: 1, Function: 0}
	c := Address{Domain: 1, Bus: 0, Device: 0, Function: 0}

	assert.True(t, a.Less(b))
	assert.True(t, b.Less(c))
	assert.False(t, c.Less(a))
	assert.False(t, a.Less(a))
}

func TestIsPciAddress(t *testing.T) {
	tests := []struct {
		name     string
		expected bool
	}{
		{"0000:01:00.0", true},
		{"10000:00:00.0", true},
		{"01:00.0", false},
		{"0000:01:00.0:extra", false},
		{"0000:AF:00.0", false},
		{"pci0000:00", false},
		{"0000:01:20.0", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isPciAddress(tt.name))
		})
	}
}

func TestBusIDProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("formatted address parses back to itself", prop.ForAll(
		func(domain uint32, bus, dev, fn uint8) bool {
			addr := Address{Domain: domain, Bus: bus, Device: dev, Function: fn}
			parsed, err := ParseBusID(addr.String())
			return err == nil && parsed == addr
		},
		gen.UInt32(),
		gen.UInt8(),
		gen.UInt8Range(0, 0x1f),
		gen.UInt8Range(0, 7),
	))

	properties.Property("short form is domain zero", prop.ForAll(
		func(bus, dev, fn uint8) bool {
			full := Address{Bus: bus, Device: dev, Function: fn}
			short := full.String()[len("0000:"):]
			parsed, err := ParseBusID(short)
			return err == nil && parsed == full
		},
		gen.UInt8(),
		gen.UInt8Range(0, 0x1f),
		gen.UInt8Range(0, 7),
	))

	properties.TestingRun(t)
}
