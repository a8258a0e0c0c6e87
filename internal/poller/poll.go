// internal/poller/poll.go
package poller

import (
	"fmt"
	"time"

	"github.com/tamzrod/modbus-probe/internal/codec"
	"github.com/tamzrod/modbus-probe/internal/registry"
	"github.com/tamzrod/modbus-probe/internal/status"
	"github.com/tamzrod/modbus-probe/internal/trace"
)

// pollSession runs one transaction for one session. Exactly one trace entry
// and one published result per attempt that reaches the wire; a session whose
// connection profile is gone produces no trace, only an error result.
func (s *Scheduler) pollSession(now time.Time, def registry.SessionDefinition) {
	if !s.reg.HasConnection(def.ConnectionName) {
		s.reg.SetSessionError(def.Name)
		s.log.Warn().Str("session", def.Name).Str("connection", def.ConnectionName).
			Msg("connection profile missing")
		s.publish(PollResult{
			Timestamp:    now,
			SessionName:  def.Name,
			Status:       status.TransportError,
			ErrorMessage: fmt.Sprintf("connection %q not registered", def.ConnectionName),
		})
		return
	}

	if !s.reg.Connected(def.ConnectionName) && !s.reg.Connect(def.ConnectionName) {
		s.reg.SetSessionError(def.Name)
		msg := fmt.Sprintf("connect to %q failed", def.ConnectionName)
		s.record(now, def, trace.Sent, def.Quantity, status.NoResponse, msg, 0, 0)
		s.publish(PollResult{
			Timestamp:    now,
			SessionName:  def.Name,
			Status:       status.TransportError,
			ErrorMessage: msg,
		})
		return
	}

	quantity := effectiveQuantity(def)

	var (
		bits  []bool
		words []uint16
		err   error
	)
	started := time.Now()
	if def.Space.IsBits() {
		bits, err = s.reg.ReadBits(def.ConnectionName, def.UnitID, def.Space, def.StartAddress, quantity)
	} else {
		words, err = s.reg.ReadWords(def.ConnectionName, def.UnitID, def.Space, def.StartAddress, quantity)
	}
	elapsedMs := float64(time.Since(started)) / float64(time.Millisecond)

	st, excCode := Classify(err)

	// Transport-level failure latches the session into Error. A protocol
	// exception is a live device saying no; the session keeps running.
	if st == status.Timeout || st == status.TransportError || st == status.ChecksumError {
		s.reg.SetSessionError(def.Name)
	}

	var errMsg string
	if err != nil {
		errMsg = err.Error()
	}

	// Timeouts and transport errors mean nothing came back; checksum errors
	// and exceptions are responses, just bad ones.
	dir := trace.Received
	if st == status.Timeout || st == status.TransportError {
		dir = trace.Sent
	}
	s.record(now, def, dir, quantity, st, errMsg, excCode, elapsedMs)

	res := PollResult{
		Timestamp:      now,
		SessionName:    def.Name,
		Status:         st,
		ErrorMessage:   errMsg,
		ExceptionCode:  excCode,
		ResponseTimeMs: elapsedMs,
	}
	if st == status.Ok {
		res.RawBits = bits
		res.RawWords = words
		var skipped []string
		res.Values, skipped = decodeValues(def, bits, words)
		for _, name := range skipped {
			s.log.Debug().Str("session", def.Name).Str("tag", name).Msg("tag decode failed")
		}
	}
	s.publish(res)

	if st != status.Ok {
		s.log.Warn().Str("session", def.Name).Str("status", string(st)).
			Str("error", errMsg).Msg("poll failed")
	}
}

// record appends one audit entry, if tracing is enabled.
func (s *Scheduler) record(now time.Time, def registry.SessionDefinition, dir trace.Direction, quantity uint16, st status.Status, errMsg string, excCode byte, elapsedMs float64) {
	if s.store == nil {
		return
	}
	s.store.Append(trace.Entry{
		Timestamp:      now,
		Direction:      dir,
		SessionName:    def.Name,
		ConnectionName: def.ConnectionName,
		UnitID:         def.UnitID,
		OperationCode:  def.Space.FunctionCode(),
		StartAddress:   def.StartAddress,
		Quantity:       quantity,
		Status:         st,
		ErrorMessage:   errMsg,
		ExceptionCode:  excCode,
		ResponseTimeMs: elapsedMs,
	})
}

// effectiveQuantity widens the session's read window so every tag in the
// session's address space fits, two-word types included. One read per poll;
// tags never trigger extra transactions.
func effectiveQuantity(def registry.SessionDefinition) uint16 {
	q := def.Quantity
	for _, tag := range def.Tags {
		if tag.Space != def.Space || tag.Address < def.StartAddress {
			continue
		}
		span := tag.Address - def.StartAddress + uint16(tag.DataType.Words())
		if span > q {
			q = span
		}
	}
	return q
}

// decodeValues renders a successful read: the raw window first, address by
// address, then each tag decoded and scaled. A tag whose window falls outside
// the read data is omitted for that poll; its name comes back in skipped.
func decodeValues(def registry.SessionDefinition, bits []bool, words []uint16) (out []DecodedValue, skipped []string) {
	out = make([]DecodedValue, 0, int(def.Quantity)+len(def.Tags))

	if def.Space.IsBits() {
		n := int(def.Quantity)
		if len(bits) < n {
			n = len(bits)
		}
		for i := 0; i < n; i++ {
			var v float64
			if bits[i] {
				v = 1
			}
			out = append(out, DecodedValue{
				Address: def.StartAddress + uint16(i),
				Raw:     v,
				Scaled:  v,
			})
		}
	} else {
		raws := codec.DecodeRange(words, codec.UInt16, codec.BigEndian, int(def.Quantity))
		for i, v := range raws {
			out = append(out, DecodedValue{
				Address: def.StartAddress + uint16(i),
				Raw:     v,
				Scaled:  v,
			})
		}
	}

	for _, tag := range def.Tags {
		if tag.Space != def.Space || tag.Address < def.StartAddress {
			continue
		}
		offset := int(tag.Address - def.StartAddress)

		var raw float64
		if def.Space.IsBits() {
			if offset >= len(bits) {
				skipped = append(skipped, tag.Name)
				continue
			}
			if bits[offset] {
				raw = 1
			}
		} else {
			v, err := codec.Decode(words, tag.DataType, tag.ByteOrder, offset)
			if err != nil {
				skipped = append(skipped, tag.Name)
				continue
			}
			raw = v
		}

		out = append(out, DecodedValue{
			Address: tag.Address,
			Name:    tag.Name,
			Raw:     raw,
			Scaled:  codec.ApplyScale(raw, true, tag.ScaleFactor, tag.ScaleOffset),
			Unit:    tag.Unit,
			FromTag: true,
		})
	}

	return out, skipped
}
