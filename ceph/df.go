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

	"github.com/sirupsen/logrus"
)

// Thresholds carries the tunable limits of the evaluators. They are
// threaded in explicitly so the evaluators stay pure and testable.
type Thresholds struct {
	// DfWarnRatio and DfCritRatio bound the used/total capacity ratio of
	// the df check.
	DfWarnRatio float64
	DfCritRatio float64

	// MinQuorum overrides the strict-majority quorum rule when positive.
	MinQuorum int
}

// DefaultThresholds returns the documented defaults: warn at 80% capacity
// used, critical at 90%, quorum at strict majority.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DfWarnRatio: 0.80,
		DfCritRatio: 0.90,
	}
}

// CapacityReport is the parsed form of a `df` query: the cluster-wide
// capacity figures in bytes.
type CapacityReport struct {
	TotalBytes float64
	UsedBytes  float64
	AvailBytes float64
}

type cephDfResponse struct {
	Stats *struct {
		TotalBytes      json.Number `json:"total_bytes"`
		TotalUsedBytes  json.Number `json:"total_used_bytes"`
		TotalAvailBytes json.Number `json:"total_avail_bytes"`
	} `json:"stats"`
}

// parseDf validates a raw `df` response and extracts the global capacity
// figures.
func parseDf(buf []byte) (*CapacityReport, error) {
	response := &cephDfResponse{}
	if err := json.Unmarshal(buf, response); err != nil {
		return nil, &ParseError{Query: "df", Field: "json"}
	}
	if response.Stats == nil {
		return nil, &ParseError{Query: "df", Field: "stats"}
	}

	total, err := response.Stats.TotalBytes.Float64()
	if err != nil {
		return nil, &ParseError{Query: "df", Field: "stats.total_bytes"}
	}
	used, err := response.Stats.TotalUsedBytes.Float64()
	if err != nil {
		return nil, &ParseError{Query: "df", Field: "stats.total_used_bytes"}
	}
	avail, err := response.Stats.TotalAvailBytes.Float64()
	if err != nil {
		return nil, &ParseError{Query: "df", Field: "stats.total_avail_bytes"}
	}

	return &CapacityReport{TotalBytes: total, UsedBytes: used, AvailBytes: avail}, nil
}

// evaluateDf compares the used capacity ratio against the configured
// thresholds. A cluster reporting zero total capacity has no OSDs backing
// it, which is worth a WARNING rather than a silent OK.
func evaluateDf(report *CapacityReport, th Thresholds) Verdict {
	var cs conditions

	if report.TotalBytes <= 0 {
		cs.add(SeverityWarning, "cluster reports no raw capacity")
		return cs.verdict("")
	}

	ratio := report.UsedBytes / report.TotalBytes
	percent := ratio * 100

	perfdata := fmt.Sprintf("usage=%.2f%%;%.0f;%.0f",
		percent, th.DfWarnRatio*100, th.DfCritRatio*100)

	switch {
	case ratio >= th.DfCritRatio:
		cs.add(SeverityCritical, "%.0f%% of cluster capacity used (critical at %.0f%%)",
			percent, th.DfCritRatio*100)
	case ratio >= th.DfWarnRatio:
		cs.add(SeverityWarning, "%.0f%% of cluster capacity used (warning at %.0f%%)",
			percent, th.DfWarnRatio*100)
	}

	return cs.verdict(fmt.Sprintf("%.0f%% of cluster capacity used", percent), perfdata)
}

// DfCheck implements `common --df`.
type DfCheck struct {
	conn       Conn
	logger     *logrus.Logger
	thresholds Thresholds
}

// NewDfCheck returns a check evaluating cluster capacity usage against the
// given thresholds.
func NewDfCheck(conn Conn, logger *logrus.Logger, thresholds Thresholds) *DfCheck {
	return &DfCheck{conn: conn, logger: logger, thresholds: thresholds}
}

// Run executes the df query and evaluates the response.
func (c *DfCheck) Run() Verdict {
	cmd := monCommand(c.logger, "df")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("df", err)
	}

	report, err := parseDf(buf)
	if err != nil {
		return unknownVerdict("df", err)
	}

	return evaluateDf(report, c.thresholds)
}
