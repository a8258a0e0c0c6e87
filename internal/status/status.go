// internal/status/status.go
package status

// Status classifies the outcome of one request/response transaction.
// Shared by poll results and trace entries.
type Status string

const (
	// Ok means the device answered and the frame was valid.
	Ok Status = "OK"

	// Timeout means the request was sent and no answer arrived in time.
	Timeout Status = "Timeout"

	// TransportError means a generic I/O or connection failure.
	TransportError Status = "Transport Error"

	// ChecksumError means the transport reported a frame integrity failure.
	ChecksumError Status = "Checksum Error"

	// ProtocolException means the device returned a structured exception
	// response. The exception code travels alongside the status.
	ProtocolException Status = "Exception"

	// NoResponse means the transaction never reached the device
	// (connection-level failure). Trace entries only.
	NoResponse Status = "No Response"
)

// IsError reports whether s represents a failed transaction.
func (s Status) IsError() bool {
	return s != Ok
}
