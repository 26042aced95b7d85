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

// QuorumReport is the parsed form of a `quorum_status` query: the monitors
// currently in quorum against the full configured monitor set.
type QuorumReport struct {
	InQuorum   []string
	Configured []string
}

type cephQuorumStatus struct {
	QuorumNames []string `json:"quorum_names"`
	Quorum      []int    `json:"quorum"`
	MonMap      struct {
		Mons []struct {
			Rank int    `json:"rank"`
			Name string `json:"name"`
		} `json:"mons"`
	} `json:"monmap"`
}

// parseQuorumStatus validates a raw `quorum_status` response. The monmap is
// mandatory; quorum membership comes from quorum_names when present and is
// otherwise resolved from the quorum rank list.
func parseQuorumStatus(buf []byte) (*QuorumReport, error) {
	status := &cephQuorumStatus{}
	if err := json.Unmarshal(buf, status); err != nil {
		return nil, &ParseError{Query: "quorum_status", Field: "json"}
	}

	if status.MonMap.Mons == nil {
		return nil, &ParseError{Query: "quorum_status", Field: "monmap.mons"}
	}

	report := &QuorumReport{}
	rankToName := make(map[int]string, len(status.MonMap.Mons))
	for _, mon := range status.MonMap.Mons {
		if mon.Name == "" {
			return nil, &ParseError{Query: "quorum_status", Field: "monmap.mons.name"}
		}
		rankToName[mon.Rank] = mon.Name
		report.Configured = append(report.Configured, mon.Name)
	}

	switch {
	case status.QuorumNames != nil:
		report.InQuorum = status.QuorumNames
	case status.Quorum != nil:
		for _, rank := range status.Quorum {
			name, ok := rankToName[rank]
			if !ok {
				return nil, &ParseError{Query: "quorum_status", Field: "quorum"}
			}
			report.InQuorum = append(report.InQuorum, name)
		}
	default:
		return nil, &ParseError{Query: "quorum_status", Field: "quorum_names"}
	}

	sort.Strings(report.InQuorum)
	sort.Strings(report.Configured)

	return report, nil
}

// evaluateQuorum applies the majority rule: an empty or minority quorum is
// CRITICAL, missing monitors with majority intact are WARNING, full quorum
// is OK. The message names the missing monitors. minQuorum overrides the
// strict-majority rule when positive.
func evaluateQuorum(report *QuorumReport, minQuorum int) Verdict {
	var cs conditions

	if len(report.Configured) == 0 {
		cs.add(SeverityWarning, "no monitors configured in monmap")
		return cs.verdict("")
	}

	required := len(report.Configured)/2 + 1
	if minQuorum > 0 {
		required = minQuorum
	}

	inQuorum := make(map[string]bool, len(report.InQuorum))
	for _, name := range report.InQuorum {
		inQuorum[name] = true
	}

	var missing []string
	for _, name := range report.Configured {
		if !inQuorum[name] {
			missing = append(missing, name)
		}
	}

	switch {
	case len(report.InQuorum) == 0:
		cs.add(SeverityCritical, "no monitors in quorum (configured: %s)",
			strings.Join(report.Configured, ","))
	case len(report.InQuorum) < required:
		cs.add(SeverityCritical, "quorum broken: %d/%d monitors, missing %s",
			len(report.InQuorum), len(report.Configured), strings.Join(missing, ","))
	case len(missing) > 0:
		cs.add(SeverityWarning, "quorum intact but monitors missing: %s",
			strings.Join(missing, ","))
	}

	return cs.verdict(fmt.Sprintf("full quorum of %d monitors", len(report.InQuorum)))
}

// QuorumCheck implements `common --quorum`.
type QuorumCheck struct {
	conn      Conn
	logger    *logrus.Logger
	minQuorum int
}

// NewQuorumCheck returns a check evaluating monitor quorum membership.
// minQuorum overrides the default strict-majority rule when positive.
func NewQuorumCheck(conn Conn, logger *logrus.Logger, minQuorum int) *QuorumCheck {
	return &QuorumCheck{conn: conn, logger: logger, minQuorum: minQuorum}
}

// Run executes the quorum_status query and evaluates the response.
func (c *QuorumCheck) Run() Verdict {
	cmd := monCommand(c.logger, "quorum_status")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("quorum_status", err)
	}

	report, err := parseQuorumStatus(buf)
	if err != nil {
		return unknownVerdict("quorum_status", err)
	}

	return evaluateQuorum(report, c.minQuorum)
}
