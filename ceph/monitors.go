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
	"strings"

	"github.com/Jeffail/gabs"
	"github.com/sirupsen/logrus"
)

// Monitor states that mean the daemon is running and participating.
const (
	monStateLeader = "leader"
	monStatePeon   = "peon"
)

// monStateRunning reports whether the state string is one a live monitor
// daemon can report. Anything else is an error state.
func monStateRunning(state string) bool {
	switch state {
	case monStateLeader, monStatePeon, "probing", "electing", "synchronizing":
		return true
	}
	return false
}

// MonPingResult is the parsed outcome of pinging a single named monitor.
type MonPingResult struct {
	MonID    string
	State    string
	InQuorum bool
}

// parseMonPing validates a raw `ping mon.<id>` response. The interesting
// part is the embedded mon_status object; its shape varies slightly across
// releases, so it is walked with gabs.
func parseMonPing(monID string, buf []byte) (*MonPingResult, error) {
	parsed, err := gabs.ParseJSON(buf)
	if err != nil {
		return nil, &ParseError{Query: "ping mon." + monID, Field: "json"}
	}

	status := parsed
	if parsed.Exists("mon_status") {
		status = parsed.Path("mon_status")
	}

	state, ok := status.Path("state").Data().(string)
	if !ok {
		return nil, &ParseError{Query: "ping mon." + monID, Field: "mon_status.state"}
	}

	result := &MonPingResult{MonID: monID, State: state}

	rank, rankOK := status.Path("rank").Data().(float64)
	if quorum, err := status.Path("quorum").Children(); err == nil && rankOK {
		for _, member := range quorum {
			if r, ok := member.Data().(float64); ok && r == rank {
				result.InQuorum = true
			}
		}
	}

	return result, nil
}

// evaluateMonPing classifies the ping outcome for one monitor: a leader or
// peon in quorum is healthy, every other state is CRITICAL.
func evaluateMonPing(result *MonPingResult) Verdict {
	var cs conditions

	switch {
	case !monStateRunning(result.State):
		cs.add(SeverityCritical, "mon.%s reports error state %q", result.MonID, result.State)
	case result.State != monStateLeader && result.State != monStatePeon:
		cs.add(SeverityCritical, "mon.%s is unhealthy: state %q, not in quorum", result.MonID, result.State)
	case !result.InQuorum:
		cs.add(SeverityCritical, "mon.%s is %s but not in quorum", result.MonID, result.State)
	}

	return cs.verdict(fmt.Sprintf("mon.%s healthy (%s, in quorum)", result.MonID, result.State))
}

// MonHealthCheck implements `mon --health`, probing a single monitor named
// by its MONID. Membership in the configured monitor set is verified from
// the quorum_status monmap before any ping is issued, so a mistyped MONID
// never reaches the cluster.
type MonHealthCheck struct {
	conn   Conn
	logger *logrus.Logger
	monID  string
}

// NewMonHealthCheck returns a check probing the health of one monitor.
func NewMonHealthCheck(conn Conn, logger *logrus.Logger, monID string) *MonHealthCheck {
	return &MonHealthCheck{conn: conn, logger: logger, monID: strings.TrimPrefix(monID, "mon.")}
}

// Run resolves the configured monitor set, verifies membership of the
// requested MONID and then pings the monitor.
func (c *MonHealthCheck) Run() Verdict {
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

	known := false
	for _, name := range report.Configured {
		if name == c.monID {
			known = true
			break
		}
	}
	if !known {
		return Verdict{
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("unknown monitor: %s (configured: %s)", c.monID, strings.Join(report.Configured, ",")),
		}
	}

	cmd = monCommand(c.logger, "ping mon."+c.monID)
	buf, _, err = c.conn.MonCommand(cmd)
	if err != nil {
		// A known monitor that does not answer is a monitor problem, not
		// a probe problem.
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error pinging monitor")
		return Verdict{
			Severity: SeverityCritical,
			Message:  fmt.Sprintf("mon.%s unreachable: %s", c.monID, err),
		}
	}

	result, err := parseMonPing(c.monID, buf)
	if err != nil {
		return unknownVerdict("ping mon."+c.monID, err)
	}

	return evaluateMonPing(result)
}

// MonStatusReport is the parsed form of a `mon_status` query: the state of
// the monitor that answered, as reported by itself.
type MonStatusReport struct {
	Name   string
	Rank   int
	State  string
	Quorum []int
}

type cephMonStatus struct {
	Name   string `json:"name"`
	Rank   *int   `json:"rank"`
	State  string `json:"state"`
	Quorum []int  `json:"quorum"`
}

// parseMonStatus validates a raw `mon_status` response.
func parseMonStatus(buf []byte) (*MonStatusReport, error) {
	status := &cephMonStatus{}
	if err := json.Unmarshal(buf, status); err != nil {
		return nil, &ParseError{Query: "mon_status", Field: "json"}
	}
	if status.State == "" {
		return nil, &ParseError{Query: "mon_status", Field: "state"}
	}
	if status.Rank == nil {
		return nil, &ParseError{Query: "mon_status", Field: "rank"}
	}

	return &MonStatusReport{
		Name:   status.Name,
		Rank:   *status.Rank,
		State:  status.State,
		Quorum: status.Quorum,
	}, nil
}

// evaluateMonStatus classifies the answering monitor: an error state is
// CRITICAL, a running monitor outside the quorum is WARNING, a leader or
// peon inside the quorum is OK.
func evaluateMonStatus(report *MonStatusReport) Verdict {
	var cs conditions

	inQuorum := false
	for _, rank := range report.Quorum {
		if rank == report.Rank {
			inQuorum = true
		}
	}

	switch {
	case !monStateRunning(report.State):
		cs.add(SeverityCritical, "mon.%s reports error state %q", report.Name, report.State)
	case !inQuorum:
		cs.add(SeverityWarning, "mon.%s is running (%s) but not in quorum", report.Name, report.State)
	}

	return cs.verdict(fmt.Sprintf("mon.%s in quorum (%s)", report.Name, report.State))
}

// MonStatusCheck implements `mon --monstatus`.
type MonStatusCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewMonStatusCheck returns a check evaluating the answering monitor's own
// status report.
func NewMonStatusCheck(conn Conn, logger *logrus.Logger) *MonStatusCheck {
	return &MonStatusCheck{conn: conn, logger: logger}
}

// Run executes the mon_status query and evaluates the response.
func (c *MonStatusCheck) Run() Verdict {
	cmd := monCommand(c.logger, "mon_status")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("mon_status", err)
	}

	report, err := parseMonStatus(buf)
	if err != nil {
		return unknownVerdict("mon_status", err)
	}

	return evaluateMonStatus(report)
}

// MonStatReport is the parsed form of a `mon stat` query: the quorum
// membership summary as the cluster sees it.
type MonStatReport struct {
	Epoch  int
	Leader string
	Quorum []string
}

type cephMonStat struct {
	Epoch  *int   `json:"epoch"`
	Leader string `json:"leader"`
	Quorum []struct {
		Rank int    `json:"rank"`
		Name string `json:"name"`
	} `json:"quorum"`
}

// parseMonStat validates a raw `mon stat` response.
func parseMonStat(buf []byte) (*MonStatReport, error) {
	stat := &cephMonStat{}
	if err := json.Unmarshal(buf, stat); err != nil {
		return nil, &ParseError{Query: "mon stat", Field: "json"}
	}
	if stat.Epoch == nil {
		return nil, &ParseError{Query: "mon stat", Field: "epoch"}
	}

	report := &MonStatReport{Epoch: *stat.Epoch, Leader: stat.Leader}
	for _, member := range stat.Quorum {
		if member.Name == "" {
			return nil, &ParseError{Query: "mon stat", Field: "quorum.name"}
		}
		report.Quorum = append(report.Quorum, member.Name)
	}

	return report, nil
}

// evaluateMonStat applies the monstatus rules to the stat summary: an empty
// quorum is CRITICAL, a quorum without an elected leader is WARNING.
func evaluateMonStat(report *MonStatReport) Verdict {
	var cs conditions

	switch {
	case len(report.Quorum) == 0:
		cs.add(SeverityCritical, "no monitors in quorum (epoch %d)", report.Epoch)
	case report.Leader == "":
		cs.add(SeverityWarning, "quorum %s has no elected leader", strings.Join(report.Quorum, ","))
	}

	return cs.verdict(fmt.Sprintf("quorum %s (leader %s)", strings.Join(report.Quorum, ","), report.Leader))
}

// MonStatCheck implements `mon --monstat`.
type MonStatCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewMonStatCheck returns a check evaluating the cluster's monitor stat
// summary.
func NewMonStatCheck(conn Conn, logger *logrus.Logger) *MonStatCheck {
	return &MonStatCheck{conn: conn, logger: logger}
}

// Run executes the mon stat query and evaluates the response.
func (c *MonStatCheck) Run() Verdict {
	cmd := monCommand(c.logger, "mon stat")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("mon stat", err)
	}

	report, err := parseMonStat(buf)
	if err != nil {
		return unknownVerdict("mon stat", err)
	}

	return evaluateMonStat(report)
}
