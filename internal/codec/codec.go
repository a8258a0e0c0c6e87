// internal/codec/codec.go
package codec

import (
	"errors"
	"math"
)

// DataType is the engineering type a tag decodes to.
type DataType string

const (
	Bool    DataType = "BOOL"
	Int16   DataType = "INT16"
	UInt16  DataType = "UINT16"
	Int32   DataType = "INT32"
	UInt32  DataType = "UINT32"
	Float32 DataType = "FLOAT32"
)

// Words returns how many 16-bit registers the type occupies.
func (dt DataType) Words() int {
	switch dt {
	case Int32, UInt32, Float32:
		return 2
	default:
		return 1
	}
}

// ByteOrder selects how two registers combine into a 32-bit value.
type ByteOrder string

const (
	BigEndian    ByteOrder = "Big Endian"
	LittleEndian ByteOrder = "Little Endian"

	// Swapped swaps the two bytes within each register and keeps
	// big-endian register order. Distinct from both of the above.
	Swapped ByteOrder = "Swapped"
)

var (
	ErrInsufficientData = errors.New("codec: insufficient data")
	ErrUnknownDataType  = errors.New("codec: unknown data type")
	ErrUnknownByteOrder = errors.New("codec: unknown byte order")
)

// Decode converts raw register words into a typed value, returned as float64.
// Bool decodes to 0 or 1. Integer types are exact; UInt32 fits float64 losslessly.
// 32-bit types require two words starting at start.
func Decode(words []uint16, dt DataType, bo ByteOrder, start int) (float64, error) {
	if start < 0 || start >= len(words) {
		return 0, ErrInsufficientData
	}

	switch dt {
	case Bool:
		if words[start] != 0 {
			return 1, nil
		}
		return 0, nil

	case UInt16:
		return float64(words[start]), nil

	case Int16:
		// Two's-complement reinterpretation of the raw word.
		return float64(int16(words[start])), nil

	case UInt32:
		v, err := combine32(words, bo, start)
		if err != nil {
			return 0, err
		}
		return float64(v), nil

	case Int32:
		v, err := combine32(words, bo, start)
		if err != nil {
			return 0, err
		}
		return float64(int32(v)), nil

	case Float32:
		v, err := combine32(words, bo, start)
		if err != nil {
			return 0, err
		}
		return float64(math.Float32frombits(v)), nil

	default:
		return 0, ErrUnknownDataType
	}
}

// Encode converts a typed value into raw register words: exactly one word for
// Bool/Int16/UInt16, exactly two for the 32-bit types. Negative integers wrap
// two's-complement into the unsigned lanes.
func Encode(value float64, dt DataType, bo ByteOrder) ([]uint16, error) {
	switch dt {
	case Bool:
		if value != 0 {
			return []uint16{1}, nil
		}
		return []uint16{0}, nil

	case UInt16:
		return []uint16{uint16(int64(value) & 0xFFFF)}, nil

	case Int16:
		n := int64(value)
		if n < 0 {
			n += 1 << 16
		}
		return []uint16{uint16(n & 0xFFFF)}, nil

	case UInt32:
		n := int64(value) & 0xFFFFFFFF
		return split32(uint32(n), bo)

	case Int32:
		n := int64(value)
		if n < 0 {
			n += 1 << 32
		}
		return split32(uint32(n&0xFFFFFFFF), bo)

	case Float32:
		return split32(math.Float32bits(float32(value)), bo)

	default:
		return nil, ErrUnknownDataType
	}
}

// ApplyScale applies the linear transform raw*factor+offset.
// Total function: a missing raw value (ok == false) yields 0.0, never an
// error, because scaled values feed a display pipeline.
func ApplyScale(raw float64, ok bool, factor, offset float64) float64 {
	if !ok {
		return 0.0
	}
	return raw*factor + offset
}

// DecodeRange decodes up to quantity values from words. One-word types yield
// one value per word; two-word types consume register pairs without overlap.
// Words that fail to decode are skipped.
func DecodeRange(words []uint16, dt DataType, bo ByteOrder, quantity int) []float64 {
	var out []float64

	if dt.Words() == 1 {
		n := quantity
		if len(words) < n {
			n = len(words)
		}
		for i := 0; i < n; i++ {
			v, err := Decode(words, dt, bo, i)
			if err != nil {
				continue
			}
			out = append(out, v)
		}
		return out
	}

	n := quantity / 2
	if len(words)/2 < n {
		n = len(words) / 2
	}
	for i := 0; i < n; i++ {
		v, err := Decode(words, dt, bo, i*2)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// combine32 joins words[start] and words[start+1] into one 32-bit value
// according to the byte order.
func combine32(words []uint16, bo ByteOrder, start int) (uint32, error) {
	if start+1 >= len(words) {
		return 0, ErrInsufficientData
	}
	w1 := uint32(words[start])
	w2 := uint32(words[start+1])

	switch bo {
	case BigEndian:
		return w1<<16 | w2, nil
	case LittleEndian:
		return w2<<16 | w1, nil
	case Swapped:
		return (w1&0xFF)<<24 | (w1&0xFF00)<<8 | (w2&0xFF)<<8 | (w2&0xFF00)>>8, nil
	default:
		return 0, ErrUnknownByteOrder
	}
}

// split32 is the exact inverse of combine32.
func split32(v uint32, bo ByteOrder) ([]uint16, error) {
	hi := uint16(v >> 16)
	lo := uint16(v & 0xFFFF)

	switch bo {
	case BigEndian:
		return []uint16{hi, lo}, nil
	case LittleEndian:
		return []uint16{lo, hi}, nil
	case Swapped:
		return []uint16{swapBytes(hi), swapBytes(lo)}, nil
	default:
		return nil, ErrUnknownByteOrder
	}
}

func swapBytes(w uint16) uint16 {
	return w<<8 | w>>8
}
