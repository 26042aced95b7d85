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

// OsdStatReport is the parsed form of an `osd stat` query: the cluster-wide
// OSD counts and capacity flags.
type OsdStatReport struct {
	Total    int
	Up       int
	In       int
	Full     bool
	Nearfull bool
}

type cephOsdStat struct {
	NumOSDs   *int   `json:"num_osds"`
	NumUpOSDs *int   `json:"num_up_osds"`
	NumInOSDs *int   `json:"num_in_osds"`
	Full      bool   `json:"full"`
	Nearfull  bool   `json:"nearfull"`
	Flags     string `json:"flags"`
}

type cephOsdStatWrapped struct {
	OSDMap *cephOsdStat `json:"osdmap"`
}

// parseOsdStat validates a raw `osd stat` response. Some releases nest the
// counters under an "osdmap" key, newer ones report them flat; both shapes
// are accepted.
func parseOsdStat(buf []byte) (*OsdStatReport, error) {
	stat := &cephOsdStat{}
	wrapped := &cephOsdStatWrapped{}
	if err := json.Unmarshal(buf, wrapped); err == nil && wrapped.OSDMap != nil {
		stat = wrapped.OSDMap
	} else if err := json.Unmarshal(buf, stat); err != nil {
		return nil, &ParseError{Query: "osd stat", Field: "json"}
	}

	if stat.NumOSDs == nil || stat.NumUpOSDs == nil || stat.NumInOSDs == nil {
		return nil, &ParseError{Query: "osd stat", Field: "num_osds"}
	}

	report := &OsdStatReport{
		Total:    *stat.NumOSDs,
		Up:       *stat.NumUpOSDs,
		In:       *stat.NumInOSDs,
		Full:     stat.Full,
		Nearfull: stat.Nearfull,
	}

	// Releases that dropped the booleans report capacity trouble through
	// the osdmap flags string instead.
	for _, flag := range strings.Split(stat.Flags, ",") {
		switch strings.TrimSpace(flag) {
		case "full":
			report.Full = true
		case "nearfull":
			report.Nearfull = true
		}
	}

	return report, nil
}

// evaluateOsdStat applies the OSD counting rules: any OSD down is CRITICAL,
// up-but-out OSDs or a cluster-wide capacity flag are WARNING, a cluster
// without OSDs is WARNING rather than a silent OK.
func evaluateOsdStat(report *OsdStatReport) Verdict {
	var cs conditions

	perfdata := []string{
		fmt.Sprintf("osds=%d", report.Total),
		fmt.Sprintf("up=%d", report.Up),
		fmt.Sprintf("in=%d", report.In),
	}

	if report.Total == 0 {
		cs.add(SeverityWarning, "no OSDs in cluster")
		return cs.verdict("", perfdata...)
	}

	if down := report.Total - report.Up; down > 0 {
		cs.add(SeverityCritical, "%d/%d OSDs down", down, report.Total)
	}
	if out := report.Up - report.In; out > 0 {
		cs.add(SeverityWarning, "%d OSDs up but out", out)
	}
	if report.Full {
		cs.add(SeverityWarning, "cluster is flagged full")
	}
	if report.Nearfull {
		cs.add(SeverityWarning, "cluster is flagged nearfull")
	}

	return cs.verdict(fmt.Sprintf("%d OSDs, all up and in", report.Total), perfdata...)
}

// OsdStatCheck implements `osd --stat`.
type OsdStatCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewOsdStatCheck returns a check evaluating the cluster-wide OSD counts.
func NewOsdStatCheck(conn Conn, logger *logrus.Logger) *OsdStatCheck {
	return &OsdStatCheck{conn: conn, logger: logger}
}

// Run executes the osd stat query and evaluates the response.
func (c *OsdStatCheck) Run() Verdict {
	cmd := monCommand(c.logger, "osd stat")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("osd stat", err)
	}

	report, err := parseOsdStat(buf)
	if err != nil {
		return unknownVerdict("osd stat", err)
	}

	return evaluateOsdStat(report)
}

// OsdNode is one OSD leaf of the placement tree.
type OsdNode struct {
	ID     int64
	Name   string
	Status string
}

// OsdHost groups the OSDs placed on one host. Stray OSDs that hang outside
// any host bucket are collected under an empty host name.
type OsdHost struct {
	Name string
	OSDs []OsdNode
}

// OsdTreeReport is the parsed form of an `osd tree` query: the host to OSD
// placement with per-OSD status.
type OsdTreeReport struct {
	Hosts []OsdHost
}

type cephOsdTreeNode struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	Status   string  `json:"status"`
	Children []int64 `json:"children"`
}

type cephOsdTree struct {
	Nodes []cephOsdTreeNode `json:"nodes"`
	Stray []cephOsdTreeNode `json:"stray"`
}

// parseOsdTree validates a raw `osd tree` response and flattens the crush
// hierarchy into hosts with their OSD leaves.
func parseOsdTree(buf []byte) (*OsdTreeReport, error) {
	tree := &cephOsdTree{}
	if err := json.Unmarshal(buf, tree); err != nil {
		return nil, &ParseError{Query: "osd tree", Field: "json"}
	}
	if tree.Nodes == nil {
		return nil, &ParseError{Query: "osd tree", Field: "nodes"}
	}

	byID := make(map[int64]cephOsdTreeNode, len(tree.Nodes))
	for _, node := range tree.Nodes {
		if node.Name == "" || node.Type == "" {
			return nil, &ParseError{Query: "osd tree", Field: "nodes.name"}
		}
		byID[node.ID] = node
	}

	report := &OsdTreeReport{}
	placed := make(map[int64]bool)

	for _, node := range tree.Nodes {
		if node.Type != "host" {
			continue
		}

		host := OsdHost{Name: node.Name}
		for _, childID := range node.Children {
			child, ok := byID[childID]
			if !ok {
				return nil, &ParseError{Query: "osd tree", Field: "nodes.children"}
			}
			if child.Type != "osd" {
				continue
			}
			host.OSDs = append(host.OSDs, OsdNode{ID: child.ID, Name: child.Name, Status: child.Status})
			placed[child.ID] = true
		}

		report.Hosts = append(report.Hosts, host)
	}

	// OSDs outside any host bucket still need a verdict.
	stray := OsdHost{}
	for _, node := range append(tree.Nodes, tree.Stray...) {
		if node.Type == "osd" && !placed[node.ID] {
			stray.OSDs = append(stray.OSDs, OsdNode{ID: node.ID, Name: node.Name, Status: node.Status})
			placed[node.ID] = true
		}
	}
	if len(stray.OSDs) > 0 {
		report.Hosts = append(report.Hosts, stray)
	}

	sort.Slice(report.Hosts, func(i, j int) bool {
		return report.Hosts[i].Name < report.Hosts[j].Name
	})

	return report, nil
}

// evaluateOsdTree walks the host placement: a host whose OSDs are all down
// is CRITICAL, a host with a partial outage is WARNING. The message
// enumerates the affected hosts by name.
func evaluateOsdTree(report *OsdTreeReport) Verdict {
	var cs conditions

	var dark, degraded []string
	total := 0

	for _, host := range report.Hosts {
		up := 0
		for _, osd := range host.OSDs {
			total++
			if osd.Status == "up" {
				up++
			}
		}

		name := host.Name
		if name == "" {
			name = "(stray)"
		}

		switch {
		case len(host.OSDs) == 0:
			// A host bucket without OSDs carries no data; nothing to say.
		case up == 0:
			dark = append(dark, fmt.Sprintf("%s (%d OSDs)", name, len(host.OSDs)))
		case up < len(host.OSDs):
			degraded = append(degraded, fmt.Sprintf("%s (%d/%d up)", name, up, len(host.OSDs)))
		}
	}

	if total == 0 {
		cs.add(SeverityWarning, "no OSDs in cluster")
		return cs.verdict("")
	}

	if len(dark) > 0 {
		cs.add(SeverityCritical, "hosts with all OSDs down: %s", strings.Join(dark, ", "))
	}
	if len(degraded) > 0 {
		cs.add(SeverityWarning, "hosts with OSDs down: %s", strings.Join(degraded, ", "))
	}

	return cs.verdict(fmt.Sprintf("%d OSDs up across %d hosts", total, len(report.Hosts)))
}

// OsdTreeCheck implements `osd --tree`.
type OsdTreeCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewOsdTreeCheck returns a check evaluating per-host OSD placement.
func NewOsdTreeCheck(conn Conn, logger *logrus.Logger) *OsdTreeCheck {
	return &OsdTreeCheck{conn: conn, logger: logger}
}

// Run executes the osd tree query and evaluates the response.
func (c *OsdTreeCheck) Run() Verdict {
	cmd := monCommand(c.logger, "osd tree")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("osd tree", err)
	}

	report, err := parseOsdTree(buf)
	if err != nil {
		return unknownVerdict("osd tree", err)
	}

	return evaluateOsdTree(report)
}
