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
	"sort"

	"github.com/Jeffail/gabs"
	"github.com/sirupsen/logrus"
)

// HealthCheckItem is one named health check from a `health` response,
// e.g. OSD_DOWN with severity HEALTH_WARN and a message.
type HealthCheckItem struct {
	Name     string
	Severity string
	Message  string
}

// ClusterHealthReport is the parsed form of a `health` query: the itemized
// list of currently firing health checks. An empty list is a valid report
// and means the cluster is clean.
type ClusterHealthReport struct {
	Checks []HealthCheckItem
}

// parseClusterHealth validates a raw `health` response. The checks map has
// dynamic keys, so it is walked with gabs rather than a fixed struct.
// Luminous and later report a "checks" map; older releases report a
// "summary" list. Both shapes are accepted, anything else is a ParseError.
func parseClusterHealth(buf []byte) (*ClusterHealthReport, error) {
	parsed, err := gabs.ParseJSON(buf)
	if err != nil {
		return nil, &ParseError{Query: "health", Field: "json"}
	}

	report := &ClusterHealthReport{}

	if parsed.Exists("checks") {
		checks, err := parsed.Path("checks").ChildrenMap()
		if err != nil {
			return nil, &ParseError{Query: "health", Field: "checks"}
		}

		for name, check := range checks {
			severity, ok := check.Path("severity").Data().(string)
			if !ok {
				return nil, &ParseError{Query: "health", Field: "checks." + name + ".severity"}
			}
			if severity != CephHealthWarn && severity != CephHealthErr {
				return nil, &ParseError{Query: "health", Field: "checks." + name + ".severity"}
			}

			message, _ := check.Path("summary.message").Data().(string)
			report.Checks = append(report.Checks, HealthCheckItem{
				Name:     name,
				Severity: severity,
				Message:  message,
			})
		}

		// Map iteration order is random; keep reports deterministic.
		sort.Slice(report.Checks, func(i, j int) bool {
			return report.Checks[i].Name < report.Checks[j].Name
		})

		return report, nil
	}

	if parsed.Exists("summary") {
		items, err := parsed.Path("summary").Children()
		if err != nil {
			return nil, &ParseError{Query: "health", Field: "summary"}
		}

		for _, item := range items {
			severity, ok := item.Path("severity").Data().(string)
			if !ok {
				return nil, &ParseError{Query: "health", Field: "summary.severity"}
			}
			if severity != CephHealthWarn && severity != CephHealthErr {
				return nil, &ParseError{Query: "health", Field: "summary.severity"}
			}

			message, _ := item.Path("summary").Data().(string)
			report.Checks = append(report.Checks, HealthCheckItem{
				Severity: severity,
				Message:  message,
			})
		}

		return report, nil
	}

	// A clean cluster still carries one of the two markers; a response
	// with neither is not a health response.
	if _, ok := parsed.Path("status").Data().(string); ok {
		return report, nil
	}
	if _, ok := parsed.Path("overall_status").Data().(string); ok {
		return report, nil
	}

	return nil, &ParseError{Query: "health", Field: "checks"}
}

// evaluateClusterHealth inspects the itemized health checks: any check
// flagged HEALTH_ERR makes the verdict CRITICAL, otherwise any HEALTH_WARN
// makes it WARNING, and an empty list is OK.
func evaluateClusterHealth(report *ClusterHealthReport) Verdict {
	var cs conditions

	for _, check := range report.Checks {
		severity := SeverityWarning
		if check.Severity == CephHealthErr {
			severity = SeverityCritical
		}

		detail := check.Message
		if check.Name != "" {
			detail = check.Name + ": " + check.Message
		}
		cs.add(severity, "%s", detail)
	}

	return cs.verdict("no health checks reported")
}

// HealthCheck implements `common --health`.
type HealthCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewHealthCheck returns a check evaluating the itemized cluster health.
func NewHealthCheck(conn Conn, logger *logrus.Logger) *HealthCheck {
	return &HealthCheck{conn: conn, logger: logger}
}

// Run executes the health query and evaluates the response.
func (c *HealthCheck) Run() Verdict {
	cmd := monCommand(c.logger, "health")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("health", err)
	}

	report, err := parseClusterHealth(buf)
	if err != nil {
		return unknownVerdict("health", err)
	}

	return evaluateClusterHealth(report)
}
