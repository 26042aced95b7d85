//   Copyright 2025 the check_ceph authors
//
//   Licensed under the Apache License, Version 2.0 (the "License");
//   you may not use this file except in compliance with the License.
//   You may obtain a copy of the License at
//
//       http://www.apache.org/licenses/LICENSE-2.0
//
//   Unless required by applicable law or agreed to in writing, software
//   distributed under the License is distributed on an "AS IS" BASIS,
//   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//   See the License for the specific language governing permissions and
//   limitations under the License.

package ceph

import (
	"fmt"
	"strings"
)

// Severity is the outcome class of a single check invocation. The numeric
// values double as the Nagios plugin exit codes and are therefore fixed.
type Severity int

const (
	// SeverityOK means every rule of the check passed.
	SeverityOK Severity = iota

	// SeverityWarning means at least one rule breached its warning level.
	SeverityWarning

	// SeverityCritical means at least one rule breached its critical level.
	SeverityCritical

	// SeverityUnknown is reserved for transport failures, unparseable
	// responses and usage errors. Evaluators never return it on their own.
	SeverityUnknown
)

func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "OK"
	case SeverityWarning:
		return "WARNING"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// ExitCode returns the process exit code the monitoring scheduler expects
// for this severity: OK=0, WARNING=1, CRITICAL=2, UNKNOWN=3.
func (s Severity) ExitCode() int {
	if s < SeverityOK || s > SeverityUnknown {
		return int(SeverityUnknown)
	}
	return int(s)
}

// Verdict is the result of one check invocation. It is constructed once,
// reported and then discarded; nothing mutates it afterwards.
type Verdict struct {
	Severity Severity
	Message  string
	Perfdata []string
}

// Render formats the verdict as the single stdout line of the plugin text
// protocol, e.g. "WARNING: 2 OSDs out". Perfdata, when present, is appended
// after a pipe on the same line.
func (v Verdict) Render() string {
	line := fmt.Sprintf("%s: %s", v.Severity, v.Message)
	if len(v.Perfdata) > 0 {
		line = line + "|" + strings.Join(v.Perfdata, " ")
	}
	return line
}

// ExitCode returns the exit code matching the verdict severity.
func (v Verdict) ExitCode() int {
	return v.Severity.ExitCode()
}

// condition is one triggered rule recorded while evaluating a report.
type condition struct {
	severity Severity
	detail   string
}

// conditions collects triggered rules in evaluation order.
type conditions []condition

func (cs *conditions) add(severity Severity, format string, args ...interface{}) {
	*cs = append(*cs, condition{severity: severity, detail: fmt.Sprintf(format, args...)})
}

// verdict reduces the recorded conditions to a single Verdict. The severity
// is the maximum over all conditions and the message concatenates the
// details of the worst ones; allClear is used when nothing triggered.
func (cs conditions) verdict(allClear string, perfdata ...string) Verdict {
	worst := SeverityOK
	for _, c := range cs {
		if c.severity > worst {
			worst = c.severity
		}
	}

	if worst == SeverityOK {
		return Verdict{Severity: SeverityOK, Message: allClear, Perfdata: perfdata}
	}

	details := make([]string, 0, len(cs))
	for _, c := range cs {
		if c.severity == worst {
			details = append(details, c.detail)
		}
	}

	return Verdict{
		Severity: worst,
		Message:  strings.Join(details, "; "),
		Perfdata: perfdata,
	}
}
