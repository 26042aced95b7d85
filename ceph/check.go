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
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Check is a single (section, test) probe. Run executes the full pipeline,
// invoke, parse, evaluate, and always returns a well-formed verdict;
// failures along the way surface as UNKNOWN or CRITICAL verdicts, never as
// errors or panics.
type Check interface {
	Run() Verdict
}

// CheckOptions carries everything a check may need. Thresholds are
// explicit here so that nothing inside the checks reaches for ambient
// configuration.
type CheckOptions struct {
	Conn       Conn
	Logger     *logrus.Logger
	Thresholds Thresholds

	// MonID names the monitor probed by `mon --health`.
	MonID string
}

type checkFactory func(opts CheckOptions) Check

// checkTable maps (section, test) to the check implementation. This is the
// full CLI surface; anything not in here is a usage error.
var checkTable = map[string]map[string]checkFactory{
	"common": {
		"status": func(o CheckOptions) Check { return NewStatusCheck(o.Conn, o.Logger) },
		"health": func(o CheckOptions) Check { return NewHealthCheck(o.Conn, o.Logger) },
		"quorum": func(o CheckOptions) Check { return NewQuorumCheck(o.Conn, o.Logger, o.Thresholds.MinQuorum) },
		"df":     func(o CheckOptions) Check { return NewDfCheck(o.Conn, o.Logger, o.Thresholds) },
		"crash":  func(o CheckOptions) Check { return NewCrashCheck(o.Conn, o.Logger) },
	},
	"mon": {
		"health":    func(o CheckOptions) Check { return NewMonHealthCheck(o.Conn, o.Logger, o.MonID) },
		"monstatus": func(o CheckOptions) Check { return NewMonStatusCheck(o.Conn, o.Logger) },
		"monstat":   func(o CheckOptions) Check { return NewMonStatCheck(o.Conn, o.Logger) },
	},
	"osd": {
		"stat": func(o CheckOptions) Check { return NewOsdStatCheck(o.Conn, o.Logger) },
		"tree": func(o CheckOptions) Check { return NewOsdTreeCheck(o.Conn, o.Logger) },
	},
	"mds": {
		"mdsstat": func(o CheckOptions) Check { return NewMdsStatCheck(o.Conn, o.Logger) },
	},
}

// Sections returns the known section names, sorted.
func Sections() []string {
	sections := make([]string, 0, len(checkTable))
	for section := range checkTable {
		sections = append(sections, section)
	}
	sort.Strings(sections)
	return sections
}

// Tests returns the known test names of a section, sorted.
func Tests(section string) []string {
	tests := make([]string, 0, len(checkTable[section]))
	for test := range checkTable[section] {
		tests = append(tests, test)
	}
	sort.Strings(tests)
	return tests
}

// NewCheck looks up the check for the given section and test. Unknown
// combinations are rejected here, before any cluster query is issued.
func NewCheck(section, test string, opts CheckOptions) (Check, error) {
	tests, ok := checkTable[section]
	if !ok {
		return nil, fmt.Errorf("unknown section %q (known: %s)", section, strings.Join(Sections(), ", "))
	}

	factory, ok := tests[test]
	if !ok {
		return nil, fmt.Errorf("unknown test %q for section %q (known: %s)",
			test, section, strings.Join(Tests(section), ", "))
	}

	if section == "mon" && test == "health" && opts.MonID == "" {
		return nil, fmt.Errorf("mon --health requires --monid")
	}

	return factory(opts), nil
}
