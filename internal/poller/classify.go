// internal/poller/classify.go
package poller

import (
	"errors"
	"strings"

	"github.com/tamzrod/modbus-probe/internal/status"
)

// ExceptionCoder is the structured error kind a protocol client can expose
// for device exception responses. Preferred over text matching.
type ExceptionCoder interface {
	ExceptionCode() byte
}

// Classify maps a protocol client error onto the status taxonomy.
//
// A structured exception code wins outright. Otherwise the error text is
// matched case-insensitively: this is a heuristic fallback, kept isolated
// here so a richer error surface can replace it without touching the
// scheduler. Text-matched exceptions carry code 0 (the code is unknown).
func Classify(err error) (status.Status, byte) {
	if err == nil {
		return status.Ok, 0
	}

	var exc ExceptionCoder
	if errors.As(err, &exc) {
		return status.ProtocolException, exc.ExceptionCode()
	}

	text := strings.ToLower(err.Error())
	switch {
	case strings.Contains(text, "timeout"):
		return status.Timeout, 0
	case strings.Contains(text, "crc"), strings.Contains(text, "checksum"):
		return status.ChecksumError, 0
	case strings.Contains(text, "exception"):
		return status.ProtocolException, 0
	default:
		return status.TransportError, 0
	}
}
