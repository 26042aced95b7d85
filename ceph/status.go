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
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	// CephHealthOK denotes the status of the ceph cluster when healthy.
	CephHealthOK = "HEALTH_OK"

	// CephHealthWarn denotes the status of the ceph cluster when unhealthy
	// but recovering.
	CephHealthWarn = "HEALTH_WARN"

	// CephHealthErr denotes the status of the ceph cluster when unhealthy
	// and usually in need of manual intervention.
	CephHealthErr = "HEALTH_ERR"
)

// ClusterStatusReport is the parsed form of a `status` query: the overall
// health string plus the cluster's own summaries of whatever is wrong.
type ClusterStatusReport struct {
	Status    string
	Summaries []string
}

type cephStatusResponse struct {
	Health struct {
		Status string `json:"status"`

		// Pre-Luminous clusters report overall_status and a summary list
		// instead of the checks map.
		OverallStatus string `json:"overall_status"`
		Summary       []struct {
			Severity string `json:"severity"`
			Summary  string `json:"summary"`
		} `json:"summary"`
		Checks map[string]struct {
			Severity string `json:"severity"`
			Summary  struct {
				Message string `json:"message"`
			} `json:"summary"`
		} `json:"checks"`
	} `json:"health"`
}

// parseClusterStatus validates a raw `status` response and reduces it to a
// ClusterStatusReport.
func parseClusterStatus(buf []byte) (*ClusterStatusReport, error) {
	status := &cephStatusResponse{}
	if err := json.Unmarshal(buf, status); err != nil {
		return nil, &ParseError{Query: "status", Field: "health"}
	}

	overall := status.Health.Status
	if overall == "" {
		overall = status.Health.OverallStatus
	}

	switch overall {
	case CephHealthOK, CephHealthWarn, CephHealthErr:
	default:
		return nil, &ParseError{Query: "status", Field: "health.status"}
	}

	report := &ClusterStatusReport{Status: overall}
	for name, check := range status.Health.Checks {
		report.Summaries = append(report.Summaries, name+": "+check.Summary.Message)
	}
	for _, s := range status.Health.Summary {
		report.Summaries = append(report.Summaries, s.Summary)
	}

	return report, nil
}

// evaluateClusterStatus maps the cluster's overall health string directly
// onto a verdict and attaches the cluster's own summary text.
func evaluateClusterStatus(report *ClusterStatusReport) Verdict {
	var cs conditions

	detail := strings.Join(report.Summaries, "; ")
	switch report.Status {
	case CephHealthWarn:
		if detail == "" {
			detail = "cluster reports HEALTH_WARN"
		}
		cs.add(SeverityWarning, "%s", detail)
	case CephHealthErr:
		if detail == "" {
			detail = "cluster reports HEALTH_ERR"
		}
		cs.add(SeverityCritical, "%s", detail)
	}

	return cs.verdict("cluster reports HEALTH_OK")
}

// StatusCheck implements `common --status`.
type StatusCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewStatusCheck returns a check evaluating the overall cluster status.
func NewStatusCheck(conn Conn, logger *logrus.Logger) *StatusCheck {
	return &StatusCheck{conn: conn, logger: logger}
}

// Run executes the status query and evaluates the response.
func (c *StatusCheck) Run() Verdict {
	cmd := monCommand(c.logger, "status")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("status", err)
	}

	report, err := parseClusterStatus(buf)
	if err != nil {
		return unknownVerdict("status", err)
	}

	return evaluateClusterStatus(report)
}
