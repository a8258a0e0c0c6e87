// internal/trace/entry.go
package trace

import (
	"fmt"
	"time"

	"github.com/tamzrod/modbus-probe/internal/status"
)

// Direction marks which side of the transaction an entry records.
type Direction string

const (
	Sent     Direction = "TX"
	Received Direction = "RX"
)

// Entry is an immutable audit record of one request/response transaction.
// Created once per transaction attempt; never mutated afterwards.
type Entry struct {
	Timestamp      time.Time
	Direction      Direction
	SessionName    string
	ConnectionName string
	UnitID         uint8
	OperationCode  byte
	StartAddress   uint16
	Quantity       uint16
	Status         status.Status
	ErrorMessage   string
	ExceptionCode  byte
	ResponseTimeMs float64
}

// AddressRange renders the entry's read window in conventional Modbus
// notation (coils from 1, discrete inputs from 10001, input registers from
// 30001, holding registers from 40001).
func (e Entry) AddressRange() string {
	if e.Quantity == 0 {
		return "N/A"
	}

	var base uint32
	switch e.OperationCode {
	case 1:
		base = 1
	case 2:
		base = 10001
	case 3:
		base = 40001
	case 4:
		base = 30001
	default:
		base = 0
	}

	start := base + uint32(e.StartAddress)
	end := start + uint32(e.Quantity) - 1
	return fmt.Sprintf("%d-%d", start, end)
}

// OperationName returns the human-readable name of the entry's function code.
func (e Entry) OperationName() string {
	return status.FunctionName(e.OperationCode)
}
