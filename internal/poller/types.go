// internal/poller/types.go
package poller

import (
	"time"

	"github.com/tamzrod/modbus-probe/internal/status"
)

// DecodedValue is one decoded entry in a poll result. Raw addresses come
// first with FromTag unset; tag-derived values follow in definition order.
type DecodedValue struct {
	Address uint16
	Name    string
	Raw     float64
	Scaled  float64
	Unit    string
	FromTag bool
}

// PollResult is the snapshot produced by one poll attempt. Transient:
// published to subscribers, never persisted by the engine.
type PollResult struct {
	Timestamp   time.Time
	SessionName string

	// Exactly one of these is set on success, depending on the session's
	// address space.
	RawBits  []bool
	RawWords []uint16

	Values []DecodedValue

	Status         status.Status
	ErrorMessage   string
	ExceptionCode  byte
	ResponseTimeMs float64
}
