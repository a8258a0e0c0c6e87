// internal/config/validate.go
package config

import (
	"fmt"
)

var validSpaces = map[string]bool{
	"coil":     true,
	"discrete": true,
	"holding":  true,
	"input":    true,
}

var validDataTypes = map[string]bool{
	"bool":    true,
	"int16":   true,
	"uint16":  true,
	"int32":   true,
	"uint32":  true,
	"float32": true,
}

var validByteOrders = map[string]bool{
	"":        true, // normalized later
	"big":     true,
	"little":  true,
	"swapped": true,
}

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {

	// ------------------------------------------------------------
	// CONNECTION VALIDATION
	// ------------------------------------------------------------

	connections := make(map[string]bool)

	for _, c := range cfg.Probe.Connections {
		if c.Name == "" {
			return fmt.Errorf("connection with empty name")
		}
		if connections[c.Name] {
			return fmt.Errorf("duplicate connection name %q", c.Name)
		}
		connections[c.Name] = true

		switch c.Kind {
		case "network":
			if c.Host == "" {
				return fmt.Errorf("connection %q: host required for network kind", c.Name)
			}
			if c.Port < 0 || c.Port > 65535 {
				return fmt.Errorf("connection %q: port %d out of range", c.Name, c.Port)
			}
		case "serial":
			if c.Device == "" {
				return fmt.Errorf("connection %q: device required for serial kind", c.Name)
			}
			switch c.Parity {
			case "", "none", "even", "odd":
			default:
				return fmt.Errorf("connection %q: unknown parity %q", c.Name, c.Parity)
			}
			if c.StopBits != 0 && c.StopBits != 1 && c.StopBits != 2 {
				return fmt.Errorf("connection %q: stop_bits must be 1 or 2", c.Name)
			}
		default:
			return fmt.Errorf("connection %q: kind must be \"network\" or \"serial\", got %q", c.Name, c.Kind)
		}

		if c.TimeoutMs < 0 {
			return fmt.Errorf("connection %q: timeout_ms must be >= 0", c.Name)
		}
	}

	// ------------------------------------------------------------
	// SESSION VALIDATION
	// ------------------------------------------------------------

	sessions := make(map[string]bool)

	for _, s := range cfg.Probe.Sessions {
		if s.Name == "" {
			return fmt.Errorf("session with empty name")
		}
		if sessions[s.Name] {
			return fmt.Errorf("duplicate session name %q", s.Name)
		}
		sessions[s.Name] = true

		if !connections[s.Connection] {
			return fmt.Errorf("session %q: unknown connection %q", s.Name, s.Connection)
		}
		if s.UnitID < 1 || s.UnitID > 247 {
			return fmt.Errorf("session %q: unit_id %d out of range 1-247", s.Name, s.UnitID)
		}
		if !validSpaces[s.Space] {
			return fmt.Errorf("session %q: unknown space %q", s.Name, s.Space)
		}
		if s.Quantity == 0 {
			return fmt.Errorf("session %q: quantity must be > 0", s.Name)
		}
		if s.PollIntervalMs < 0 {
			return fmt.Errorf("session %q: poll_interval_ms must be >= 0", s.Name)
		}

		for _, t := range s.Tags {
			if t.Space != "" && !validSpaces[t.Space] {
				return fmt.Errorf("session %q: tag %q: unknown space %q", s.Name, t.Name, t.Space)
			}
			if t.DataType != "" && !validDataTypes[t.DataType] {
				return fmt.Errorf("session %q: tag %q: unknown data_type %q", s.Name, t.Name, t.DataType)
			}
			if !validByteOrders[t.ByteOrder] {
				return fmt.Errorf("session %q: tag %q: unknown byte_order %q", s.Name, t.Name, t.ByteOrder)
			}
			if t.Address < s.StartAddress {
				return fmt.Errorf("session %q: tag %q: address %d before session start %d",
					s.Name, t.Name, t.Address, s.StartAddress)
			}
		}
	}

	// ------------------------------------------------------------
	// ENGINE SETTINGS
	// ------------------------------------------------------------

	if cfg.Probe.PollTickMs < 0 {
		return fmt.Errorf("poll_tick_ms must be >= 0")
	}
	if cfg.Probe.TraceCapacity < 0 {
		return fmt.Errorf("trace_capacity must be >= 0")
	}
	if cfg.Probe.Diagnostics.IntervalMs < 0 {
		return fmt.Errorf("diagnostics interval_ms must be >= 0")
	}

	return nil
}
