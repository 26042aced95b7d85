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
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// CrashReport is the parsed form of a `crash ls` query: the number of
// unacknowledged crash reports per daemon. Archived reports have been seen
// by an operator and are not counted.
type CrashReport struct {
	NewByEntity map[string]int
}

type cephCrashEntry struct {
	Entity   string `json:"entity_name"`
	Archived string `json:"archived"`
}

// parseCrashLs validates a raw `crash ls` response. An empty list is a
// valid report meaning no daemon has crashed.
func parseCrashLs(buf []byte) (*CrashReport, error) {
	var entries []cephCrashEntry
	if err := json.Unmarshal(buf, &entries); err != nil {
		return nil, &ParseError{Query: "crash ls", Field: "json"}
	}

	report := &CrashReport{NewByEntity: make(map[string]int)}
	for _, entry := range entries {
		if entry.Entity == "" {
			return nil, &ParseError{Query: "crash ls", Field: "entity_name"}
		}
		if entry.Archived == "" {
			report.NewByEntity[entry.Entity]++
		}
	}

	return report, nil
}

// evaluateCrashes reports WARNING when unarchived crash reports exist; the
// crashed daemon may well be running again, so this never goes CRITICAL.
func evaluateCrashes(report *CrashReport) Verdict {
	var cs conditions

	if len(report.NewByEntity) > 0 {
		entities := make([]string, 0, len(report.NewByEntity))
		total := 0
		for entity, count := range report.NewByEntity {
			entities = append(entities, fmt.Sprintf("%s (%d)", entity, count))
			total += count
		}
		sort.Strings(entities)
		cs.add(SeverityWarning, "%d new crash reports: %s", total, strings.Join(entities, ", "))
	}

	return cs.verdict("no new crash reports")
}

// CrashCheck implements `common --crash`.
type CrashCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewCrashCheck returns a check reporting unacknowledged daemon crashes.
func NewCrashCheck(conn Conn, logger *logrus.Logger) *CrashCheck {
	return &CrashCheck{conn: conn, logger: logger}
}

// Run executes the crash ls query and evaluates the response.
func (c *CrashCheck) Run() Verdict {
	cmd := monCommand(c.logger, "crash ls")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("crash ls", err)
	}

	report, err := parseCrashLs(buf)
	if err != nil {
		return unknownVerdict("crash ls", err)
	}

	return evaluateCrashes(report)
}
