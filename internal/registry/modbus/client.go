// internal/registry/modbus/client.go
package modbus

import (
	"errors"
	"fmt"

	mb "github.com/goburrow/modbus"

	"github.com/tamzrod/modbus-probe/internal/registry"
	"github.com/tamzrod/modbus-probe/internal/status"
)

// Client implements registry.Client on top of goburrow/modbus.
// This adapter is geometry-only: framing, CRC and exception parsing all
// happen inside the library; the adapter unpacks raw payloads and maps
// library errors onto the probe's error surface.
//
// Not reentrant. The registry serializes all calls per connection.
type Client struct {
	profile registry.ConnectionProfile

	// Exactly one of these is set depending on profile.Kind.
	tcp *mb.TCPClientHandler
	rtu *mb.RTUClientHandler

	client mb.Client
}

// New builds an unconnected client for the profile.
func New(p registry.ConnectionProfile) (registry.Client, error) {
	c := &Client{profile: p}

	switch p.Kind {
	case registry.Network:
		h := mb.NewTCPClientHandler(fmt.Sprintf("%s:%d", p.Host, p.Port))
		h.Timeout = p.Timeout
		c.tcp = h
		c.client = mb.NewClient(h)

	case registry.Serial:
		h := mb.NewRTUClientHandler(p.Device)
		h.BaudRate = p.BaudRate
		h.DataBits = p.DataBits
		h.StopBits = p.StopBits
		h.Parity = p.Parity
		h.Timeout = p.Timeout
		c.rtu = h
		c.client = mb.NewClient(h)

	default:
		return nil, fmt.Errorf("modbus client: unknown connection kind %q", p.Kind)
	}

	return c, nil
}

// Connect opens the transport.
func (c *Client) Connect() bool {
	if c.tcp != nil {
		return c.tcp.Connect() == nil
	}
	return c.rtu.Connect() == nil
}

// Disconnect closes the transport. Safe to call when not connected.
func (c *Client) Disconnect() {
	if c.tcp != nil {
		c.tcp.Close()
		return
	}
	c.rtu.Close()
}

// setUnit routes the next request to one device on the shared transport.
func (c *Client) setUnit(unitID uint8) {
	if c.tcp != nil {
		c.tcp.SlaveId = unitID
		return
	}
	c.rtu.SlaveId = unitID
}

// attempts returns how many times a transaction is tried in total.
func (c *Client) attempts() int {
	if c.profile.Retries > 0 {
		return 1 + c.profile.Retries
	}
	return 1
}

// do runs op with retries on transport errors. Protocol exceptions are a
// valid device answer and are never retried.
func (c *Client) do(op func() ([]byte, error)) ([]byte, error) {
	var lastErr error
	for i := 0; i < c.attempts(); i++ {
		raw, err := op()
		if err == nil {
			return raw, nil
		}
		lastErr = wrap(err)
		var exc *ExceptionError
		if errors.As(lastErr, &exc) {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// ---- registry.Client interface ----

func (c *Client) ReadBits(unitID uint8, space registry.AddressSpace, startAddr, count uint16) ([]bool, error) {
	c.setUnit(unitID)

	var op func() ([]byte, error)
	switch space {
	case registry.Coil:
		op = func() ([]byte, error) { return c.client.ReadCoils(startAddr, count) }
	case registry.DiscreteInput:
		op = func() ([]byte, error) { return c.client.ReadDiscreteInputs(startAddr, count) }
	default:
		return nil, fmt.Errorf("modbus client: %q is not a bit address space", space)
	}

	raw, err := c.do(op)
	if err != nil {
		return nil, err
	}
	return unpackBits(raw, int(count)), nil
}

func (c *Client) ReadWords(unitID uint8, space registry.AddressSpace, startAddr, count uint16) ([]uint16, error) {
	c.setUnit(unitID)

	var op func() ([]byte, error)
	switch space {
	case registry.HoldingRegister:
		op = func() ([]byte, error) { return c.client.ReadHoldingRegisters(startAddr, count) }
	case registry.InputRegister:
		op = func() ([]byte, error) { return c.client.ReadInputRegisters(startAddr, count) }
	default:
		return nil, fmt.Errorf("modbus client: %q is not a word address space", space)
	}

	raw, err := c.do(op)
	if err != nil {
		return nil, err
	}
	return unpackWords(raw), nil
}

func (c *Client) WriteBit(unitID uint8, addr uint16, value bool) (bool, error) {
	c.setUnit(unitID)

	// Coil on-value is protocol-fixed.
	var v uint16
	if value {
		v = 0xFF00
	}

	_, err := c.do(func() ([]byte, error) { return c.client.WriteSingleCoil(addr, v) })
	return err == nil, err
}

func (c *Client) WriteWord(unitID uint8, addr uint16, value uint16) (bool, error) {
	c.setUnit(unitID)

	_, err := c.do(func() ([]byte, error) { return c.client.WriteSingleRegister(addr, value) })
	return err == nil, err
}

func (c *Client) WriteBits(unitID uint8, startAddr uint16, values []bool) (bool, error) {
	c.setUnit(unitID)

	packed := packBits(values)
	count := uint16(len(values))

	_, err := c.do(func() ([]byte, error) { return c.client.WriteMultipleCoils(startAddr, count, packed) })
	return err == nil, err
}

func (c *Client) WriteWords(unitID uint8, startAddr uint16, values []uint16) (bool, error) {
	c.setUnit(unitID)

	packed := packWords(values)
	count := uint16(len(values))

	_, err := c.do(func() ([]byte, error) { return c.client.WriteMultipleRegisters(startAddr, count, packed) })
	return err == nil, err
}

// ---- error surface ----

// ExceptionError is a device exception response surfaced with its code.
// Satisfies the ExceptionCoder behavior the scheduler classifies on.
type ExceptionError struct {
	Function byte
	Code     byte
}

func (e *ExceptionError) Error() string {
	return fmt.Sprintf("exception %d (%s), function %d", e.Code, status.ExceptionName(e.Code), e.Function)
}

// ExceptionCode returns the raw Modbus exception code.
func (e *ExceptionError) ExceptionCode() byte {
	return e.Code
}

// wrap converts library errors into the probe's error surface.
func wrap(err error) error {
	var me *mb.ModbusError
	if errors.As(err, &me) {
		return &ExceptionError{Function: me.FunctionCode, Code: me.ExceptionCode}
	}
	return err
}

// ---- helpers (pure geometry) ----

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<bitIdx) != 0
	}
	return out
}

func packBits(values []bool) []byte {
	out := make([]byte, (len(values)+7)/8)
	for i, v := range values {
		if v {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

func unpackWords(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func packWords(values []uint16) []byte {
	out := make([]byte, 2*len(values))
	for i, v := range values {
		out[2*i] = byte(v >> 8)
		out[2*i+1] = byte(v)
	}
	return out
}
