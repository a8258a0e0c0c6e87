// internal/registry/serial.go
package registry

import "go.bug.st/serial"

// ListSerialPorts enumerates the serial devices present on the host, for
// building Serial connection profiles. Returns an empty list on platforms
// without serial support.
func ListSerialPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, err
	}
	return ports, nil
}
