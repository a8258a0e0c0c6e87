// internal/registry/builder.go
package registry

import (
	"time"

	"github.com/tamzrod/modbus-probe/internal/codec"
	cfg "github.com/tamzrod/modbus-probe/internal/config"
)

// BuildProfile maps a validated, normalized connection config onto the
// runtime profile.
func BuildProfile(c cfg.ConnectionConfig) ConnectionProfile {
	kind := Network
	if c.Kind == "serial" {
		kind = Serial
	}

	parity := "N"
	switch c.Parity {
	case "even":
		parity = "E"
	case "odd":
		parity = "O"
	}

	return ConnectionProfile{
		Name:     c.Name,
		Kind:     kind,
		Host:     c.Host,
		Port:     c.Port,
		Device:   c.Device,
		BaudRate: c.BaudRate,
		Parity:   parity,
		StopBits: c.StopBits,
		DataBits: c.DataBits,
		Timeout:  time.Duration(c.TimeoutMs) * time.Millisecond,
		Retries:  c.Retries,
	}
}

// BuildSession maps a validated, normalized session config onto the runtime
// definition.
func BuildSession(s cfg.SessionConfig) SessionDefinition {
	tags := make([]TagDefinition, 0, len(s.Tags))
	for _, t := range s.Tags {
		tags = append(tags, TagDefinition{
			Space:       buildSpace(t.Space),
			Address:     t.Address,
			Name:        t.Name,
			DataType:    buildDataType(t.DataType),
			ByteOrder:   buildByteOrder(t.ByteOrder),
			ScaleFactor: t.ScaleFactor,
			ScaleOffset: t.ScaleOffset,
			Unit:        t.Unit,
		})
	}

	return SessionDefinition{
		Name:           s.Name,
		ConnectionName: s.Connection,
		UnitID:         s.UnitID,
		Space:          buildSpace(s.Space),
		StartAddress:   s.StartAddress,
		Quantity:       s.Quantity,
		PollInterval:   time.Duration(s.PollIntervalMs) * time.Millisecond,
		Tags:           tags,
	}
}

func buildSpace(s string) AddressSpace {
	switch s {
	case "coil":
		return Coil
	case "discrete":
		return DiscreteInput
	case "input":
		return InputRegister
	default:
		return HoldingRegister
	}
}

func buildDataType(s string) codec.DataType {
	switch s {
	case "bool":
		return codec.Bool
	case "int16":
		return codec.Int16
	case "int32":
		return codec.Int32
	case "uint32":
		return codec.UInt32
	case "float32":
		return codec.Float32
	default:
		return codec.UInt16
	}
}

func buildByteOrder(s string) codec.ByteOrder {
	switch s {
	case "little":
		return codec.LittleEndian
	case "swapped":
		return codec.Swapped
	default:
		return codec.BigEndian
	}
}
