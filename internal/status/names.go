// internal/status/names.go
package status

import "fmt"

// Modbus exception code names.
// These values define the protocol and MUST NOT be configurable.
var exceptionNames = map[byte]string{
	1: "Illegal Function",
	2: "Illegal Data Address",
	3: "Illegal Data Value",
	4: "Device Failure",
	5: "Acknowledge",
	6: "Device Busy",
	7: "Negative Acknowledge",
	8: "Memory Parity Error",
}

// ExceptionName returns the human-readable name for a Modbus exception code.
func ExceptionName(code byte) string {
	if name, ok := exceptionNames[code]; ok {
		return name
	}
	return fmt.Sprintf("Unknown (%d)", code)
}

// Modbus function code names, read and write.
var functionNames = map[byte]string{
	1:  "Read Coils",
	2:  "Read Discrete Inputs",
	3:  "Read Holding Registers",
	4:  "Read Input Registers",
	5:  "Write Single Coil",
	6:  "Write Single Register",
	15: "Write Multiple Coils",
	16: "Write Multiple Registers",
}

// FunctionName returns the human-readable name for a Modbus function code.
func FunctionName(fc byte) string {
	if name, ok := functionNames[fc]; ok {
		return name
	}
	return fmt.Sprintf("Function %d", fc)
}
