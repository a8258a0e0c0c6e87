// internal/registry/types.go
package registry

import (
	"time"

	"github.com/tamzrod/modbus-probe/internal/codec"
)

// ConnectionKind selects the transport family.
type ConnectionKind string

const (
	Network ConnectionKind = "Network"
	Serial  ConnectionKind = "Serial"
)

// ConnectionProfile describes one transport endpoint. Immutable while the
// connection is in use; replacing it requires disconnect and reconnect.
type ConnectionProfile struct {
	Name string
	Kind ConnectionKind

	// Network
	Host string
	Port int

	// Serial
	Device   string
	BaudRate int
	Parity   string // "N", "E", "O"
	StopBits int
	DataBits int

	Timeout time.Duration
	Retries int
}

// AddressSpace is one of the four disjoint Modbus data areas.
type AddressSpace string

const (
	Coil            AddressSpace = "Coil"
	DiscreteInput   AddressSpace = "Discrete Input"
	HoldingRegister AddressSpace = "Holding Register"
	InputRegister   AddressSpace = "Input Register"
)

// FunctionCode returns the read function code for the space.
func (a AddressSpace) FunctionCode() byte {
	switch a {
	case Coil:
		return 1
	case DiscreteInput:
		return 2
	case HoldingRegister:
		return 3
	case InputRegister:
		return 4
	default:
		return 0
	}
}

// IsBits reports whether the space holds single bits rather than words.
func (a AddressSpace) IsBits() bool {
	return a == Coil || a == DiscreteInput
}

// TagDefinition is a named, typed, scaled view onto one or two raw
// words/bits within a session's read window. Immutable value object.
type TagDefinition struct {
	Space       AddressSpace
	Address     uint16
	Name        string
	DataType    codec.DataType
	ByteOrder   codec.ByteOrder
	ScaleFactor float64
	ScaleOffset float64
	Unit        string
}

// SessionStatus is the runtime state of a session.
type SessionStatus string

const (
	Stopped SessionStatus = "Stopped"
	Running SessionStatus = "Running"
	Errored SessionStatus = "Error"
)

// SessionDefinition configures one polling session. The registry owns the
// runtime status separately; everything here is operator-defined.
type SessionDefinition struct {
	Name           string
	ConnectionName string
	UnitID         uint8
	Space          AddressSpace
	StartAddress   uint16
	Quantity       uint16
	PollInterval   time.Duration
	Tags           []TagDefinition
}
