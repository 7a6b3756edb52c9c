// Package registry owns the authoritative set of reachable MIDI endpoints.
// It is the single writer of device state: a local poll loop and a network
// discovery loop feed the same table, everything else reads snapshots or
// consumes connect/disconnect events.
package registry

import (
	"fmt"
	"hash/fnv"
	"strings"
	"time"
)

// Direction tells which way MIDI data can flow for a device.
type Direction int

const (
	DirectionInput Direction = iota
	DirectionOutput
	DirectionDuplex
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	case DirectionDuplex:
		return "duplex"
	}
	return "unknown"
}

// CanReceive reports whether the device produces input we can subscribe to.
func (d Direction) CanReceive() bool {
	return d == DirectionInput || d == DirectionDuplex
}

// Transport identifies how a device is reached.
type Transport int

const (
	TransportUSB Transport = iota
	TransportVirtual
	TransportNetwork
)

func (t Transport) String() string {
	switch t {
	case TransportUSB:
		return "usb"
	case TransportVirtual:
		return "virtual"
	case TransportNetwork:
		return "network"
	}
	return "unknown"
}

// Status is the lifecycle state of a device record.
type Status int

const (
	StatusConnected Status = iota
	StatusDisconnected
)

func (s Status) String() string {
	if s == StatusConnected {
		return "connected"
	}
	return "disconnected"
}

// Device is one reachable endpoint. Host, Port and SessionName are only set
// for network devices.
type Device struct {
	ID           string
	Name         string
	Direction    Direction
	Transport    Transport
	Status       Status
	DiscoveredAt time.Time

	Host        string
	Port        int
	SessionName string
}

// Id namespaces. Local and network ids can never collide because each carries
// its own prefix.
const (
	localPrefix   = "local:"
	networkPrefix = "net:"
)

// LocalID builds the registry id for a locally enumerated port.
func LocalID(portName string) string {
	return localPrefix + portName
}

// NetworkID builds the registry id for a network session. The advertised
// instance name is hashed so renames produce a fresh id and odd characters in
// instance names never leak into ids.
func NetworkID(instance string) string {
	h := fnv.New64a()
	h.Write([]byte(instance))
	return fmt.Sprintf("%s%016x", networkPrefix, h.Sum64())
}

// PortName extracts the underlying port name from a local device id.
// Reports false for network ids, which have no local port.
func PortName(id string) (string, bool) {
	if strings.HasPrefix(id, localPrefix) {
		return strings.TrimPrefix(id, localPrefix), true
	}
	return "", false
}

// IsNetworkID reports whether an id belongs to the network namespace.
func IsNetworkID(id string) bool {
	return strings.HasPrefix(id, networkPrefix)
}

// Ports matching these patterns are loopback/system ports, kept in the
// registry but flagged as virtual.
var virtualPatterns = []string{"midi through", "through port", "dummy", "virtual"}

func isVirtualPort(name string) bool {
	lower := strings.ToLower(name)
	for _, pat := range virtualPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}
