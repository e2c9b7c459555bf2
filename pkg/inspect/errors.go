package inspect

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies inspection failures
type Kind int

const (
	// KindArgumentCount means the number of bus ids is out of bounds
	KindArgumentCount Kind = iota + 1
	// KindTopologyInit means the topology provider could not be created
	KindTopologyInit
	// KindTopologyLoad means discovery failed
	KindTopologyLoad
	// KindDeviceNotFound means a bus id did not resolve to a PCI device
	KindDeviceNotFound
	// KindHostBridgeNotFound means no host bridge lies above a device
	KindHostBridgeNotFound
	// KindAncestorInconsistency means two devices share no ancestor
	KindAncestorInconsistency
)

var kindNames = map[Kind]string{
	KindArgumentCount:         "ArgumentCountError",
	KindTopologyInit:          "TopologyInitError",
	KindTopologyLoad:          "TopologyLoadError",
	KindDeviceNotFound:        "DeviceNotFoundError",
	KindHostBridgeNotFound:    "HostBridgeNotFoundError",
	KindAncestorInconsistency: "AncestorInconsistencyError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether the kind aborts the whole run. Other kinds are
// recorded per device or per pair.
func (k Kind) Fatal() bool {
	return k == KindArgumentCount || k == KindTopologyInit || k == KindTopologyLoad
}

// Error is an inspection failure tied to the input that caused it
type Error struct {
	Kind Kind
	// Subject is the bus id, the pair "a and b", or the failed step
	Subject string
	Err     error
}

// Sentinels for errors.Is. Any *Error of the same kind matches.
var (
	ErrArgumentCount         = &Error{Kind: KindArgumentCount}
	ErrTopologyInit          = &Error{Kind: KindTopologyInit}
	ErrTopologyLoad          = &Error{Kind: KindTopologyLoad}
	ErrDeviceNotFound        = &Error{Kind: KindDeviceNotFound}
	ErrHostBridgeNotFound    = &Error{Kind: KindHostBridgeNotFound}
	ErrAncestorInconsistency = &Error{Kind: KindAncestorInconsistency}
)

// NewError creates an error of the given kind
func NewError(kind Kind, subject string, err error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: err}
}

func (e *Error) Error() string {
	parts := []string{e.Kind.String()}
	if e.Subject != "" {
		parts = append(parts, e.Subject)
	}
	if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}
	return strings.Join(parts, ": ")
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or 0
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}
