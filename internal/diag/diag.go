// internal/diag/diag.go
package diag

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tamzrod/modbus-probe/internal/status"
	"github.com/tamzrod/modbus-probe/internal/trace"
)

// Severity ranks a finding.
type Severity string

const (
	Info    Severity = "Info"
	Warning Severity = "Warning"
	Error   Severity = "Error"
)

// rank is used for severity sorting, highest first.
var rank = map[Severity]int{Error: 2, Warning: 1, Info: 0}

// Finding is one diagnostics conclusion derived from the trace history.
// Computed on demand, never persisted.
type Finding struct {
	Severity Severity
	Category string
	Message  string
	Details  string
}

func (f Finding) String() string {
	return fmt.Sprintf("[%s] %s: %s", f.Severity, f.Category, f.Message)
}

// Heuristic thresholds.
const (
	timeoutWarnCount   = 5
	checksumWarnCount  = 3
	exceptionRepeat    = 3
	errorRateMinSample = 10
	errorRateWarn      = 0.3
	slowResponseMs     = 1000
)

// Analyze snapshots the store and runs all rules.
func Analyze(store *trace.Store) []Finding {
	return AnalyzeEntries(store.Snapshot())
}

// AnalyzeEntries runs every rule over one point-in-time snapshot.
// Rules are independent; findings appear in rule-definition order, not
// severity order. Use SortBySeverity if severity order is wanted.
func AnalyzeEntries(entries []trace.Entry) []Finding {
	if len(entries) == 0 {
		return nil
	}

	byUnit := make(map[uint8][]trace.Entry)
	byConnection := make(map[string][]trace.Entry)
	bySession := make(map[string][]trace.Entry)

	for _, e := range entries {
		byUnit[e.UnitID] = append(byUnit[e.UnitID], e)
		if e.ConnectionName != "" {
			byConnection[e.ConnectionName] = append(byConnection[e.ConnectionName], e)
		}
		if e.SessionName != "" {
			bySession[e.SessionName] = append(bySession[e.SessionName], e)
		}
	}

	var findings []Finding
	findings = append(findings, checkTimeouts(byUnit)...)
	findings = append(findings, checkChecksumErrors(byConnection)...)
	findings = append(findings, checkIDConflicts(entries)...)
	findings = append(findings, checkExceptionStorms(byUnit)...)
	findings = append(findings, checkErrorRates(bySession)...)
	findings = append(findings, checkSlowResponses(bySession)...)
	return findings
}

// SortBySeverity reorders findings highest severity first, preserving the
// relative order of equal severities.
func SortBySeverity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		return rank[findings[i].Severity] > rank[findings[j].Severity]
	})
}

func sortedUnits(m map[uint8][]trace.Entry) []uint8 {
	units := make([]uint8, 0, len(m))
	for u := range m {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })
	return units
}

func sortedKeys(m map[string][]trace.Entry) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func checkTimeouts(byUnit map[uint8][]trace.Entry) []Finding {
	var findings []Finding
	for _, unit := range sortedUnits(byUnit) {
		entries := byUnit[unit]

		timeouts := 0
		requests := 0
		for _, e := range entries {
			if e.Status == status.Timeout {
				timeouts++
			}
			if e.Direction == trace.Sent {
				requests++
			}
		}
		if timeouts < timeoutWarnCount {
			continue
		}

		severity := Warning
		if timeouts > timeoutWarnCount*2 {
			severity = Error
		}
		findings = append(findings, Finding{
			Severity: severity,
			Category: "Timeout",
			Message:  fmt.Sprintf("Many timeouts on unit %d (%d timeouts out of %d requests)", unit, timeouts, requests),
			Details:  fmt.Sprintf("Check cable, unit id, baud rate or network connection. %d timeout errors recorded.", timeouts),
		})
	}
	return findings
}

func checkChecksumErrors(byConnection map[string][]trace.Entry) []Finding {
	var findings []Finding
	for _, conn := range sortedKeys(byConnection) {
		count := 0
		for _, e := range byConnection[conn] {
			if e.Status == status.ChecksumError {
				count++
			}
		}
		if count < checksumWarnCount {
			continue
		}

		severity := Warning
		if count > checksumWarnCount*2 {
			severity = Error
		}
		findings = append(findings, Finding{
			Severity: severity,
			Category: "Checksum Error",
			Message:  fmt.Sprintf("Multiple checksum errors on %s (%d errors)", conn, count),
			Details:  fmt.Sprintf("Check cable quality, electrical noise or baud rate settings. %d checksum errors recorded.", count),
		})
	}
	return findings
}

func checkIDConflicts(entries []trace.Entry) []Finding {
	connsByUnit := make(map[uint8]map[string]bool)
	for _, e := range entries {
		if e.ConnectionName == "" {
			continue
		}
		if connsByUnit[e.UnitID] == nil {
			connsByUnit[e.UnitID] = make(map[string]bool)
		}
		connsByUnit[e.UnitID][e.ConnectionName] = true
	}

	units := make([]uint8, 0, len(connsByUnit))
	for u := range connsByUnit {
		units = append(units, u)
	}
	sort.Slice(units, func(i, j int) bool { return units[i] < units[j] })

	var findings []Finding
	for _, unit := range units {
		conns := connsByUnit[unit]
		if len(conns) < 2 {
			continue
		}

		names := make([]string, 0, len(conns))
		for name := range conns {
			names = append(names, name)
		}
		sort.Strings(names)

		findings = append(findings, Finding{
			Severity: Warning,
			Category: "ID Conflict",
			Message:  fmt.Sprintf("Multiple connections use the same unit id %d", unit),
			Details:  fmt.Sprintf("Unit id %d is used on: %s. This can cause conflicts.", unit, strings.Join(names, ", ")),
		})
	}
	return findings
}

func checkExceptionStorms(byUnit map[uint8][]trace.Entry) []Finding {
	var findings []Finding
	for _, unit := range sortedUnits(byUnit) {
		codes := make(map[byte]int)
		for _, e := range byUnit[unit] {
			if e.Status == status.ProtocolException {
				codes[e.ExceptionCode]++
			}
		}

		sorted := make([]byte, 0, len(codes))
		for c := range codes {
			sorted = append(sorted, c)
		}
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		for _, code := range sorted {
			count := codes[code]
			if count < exceptionRepeat {
				continue
			}
			findings = append(findings, Finding{
				Severity: Error,
				Category: "Exception",
				Message:  fmt.Sprintf("Consistent exception %d (%s) on unit %d", code, status.ExceptionName(code), unit),
				Details:  fmt.Sprintf("%d times exception %d. Wrong function code or the device does not support it.", count, code),
			})
		}
	}
	return findings
}

func checkErrorRates(bySession map[string][]trace.Entry) []Finding {
	var findings []Finding
	for _, session := range sortedKeys(bySession) {
		entries := bySession[session]
		total := len(entries)
		if total <= errorRateMinSample {
			continue
		}

		errors := 0
		for _, e := range entries {
			if e.Status.IsError() {
				errors++
			}
		}
		rate := float64(errors) / float64(total)
		if rate < errorRateWarn {
			continue
		}

		findings = append(findings, Finding{
			Severity: Warning,
			Category: "Error Rate",
			Message:  fmt.Sprintf("High error rate on session %q (%d/%d = %.1f%%)", session, errors, total, rate*100),
			Details:  fmt.Sprintf("Over %.0f%% of requests are failing. Check connection and configuration.", errorRateWarn*100),
		})
	}
	return findings
}

func checkSlowResponses(bySession map[string][]trace.Entry) []Finding {
	var findings []Finding
	for _, session := range sortedKeys(bySession) {
		var max, sum float64
		n := 0
		for _, e := range bySession[session] {
			if e.ResponseTimeMs <= 0 {
				continue
			}
			if e.ResponseTimeMs > max {
				max = e.ResponseTimeMs
			}
			sum += e.ResponseTimeMs
			n++
		}
		if n == 0 || max <= slowResponseMs {
			continue
		}

		findings = append(findings, Finding{
			Severity: Info,
			Category: "Performance",
			Message:  fmt.Sprintf("Slow response time on session %q (max: %.0fms, avg: %.0fms)", session, max, sum/float64(n)),
			Details:  fmt.Sprintf("Maximum response time is %.0fms. Check network connection or device load.", max),
		})
	}
	return findings
}
