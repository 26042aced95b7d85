package ceph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// MdsDaemon is one metadata server daemon with its reported state, e.g.
// "up:active" or "up:standby-replay".
type MdsDaemon struct {
	Name  string
	Rank  int
	State string
}

// MdsFilesystem is one filesystem with its MDS daemons and rank-level
// health flags.
type MdsFilesystem struct {
	Name    string
	Daemons []MdsDaemon
	Damaged []int
	Failed  []int
}

// MdsStatReport is the parsed form of an `mds stat` query.
type MdsStatReport struct {
	Filesystems []MdsFilesystem
	Standbys    int
}

type cephMdsStat struct {
	FSMap *struct {
		Filesystems []struct {
			MDSMap struct {
				FSName string `json:"fs_name"`
				Info   map[string]struct {
					Name  string `json:"name"`
					Rank  int    `json:"rank"`
					State string `json:"state"`
				} `json:"info"`
				Damaged []int `json:"damaged"`
				Failed  []int `json:"failed"`
			} `json:"mdsmap"`
		} `json:"filesystems"`
		Standbys []json.RawMessage `json:"standbys"`
	} `json:"fsmap"`
}

// parseMdsStat validates a raw `mds stat` response.
func parseMdsStat(buf []byte) (*MdsStatReport, error) {
	stat := &cephMdsStat{}
	if err := json.Unmarshal(buf, stat); err != nil {
		return nil, &ParseError{Query: "mds stat", Field: "json"}
	}
	if stat.FSMap == nil {
		return nil, &ParseError{Query: "mds stat", Field: "fsmap"}
	}

	report := &MdsStatReport{Standbys: len(stat.FSMap.Standbys)}
	for _, fs := range stat.FSMap.Filesystems {
		if fs.MDSMap.FSName == "" {
			return nil, &ParseError{Query: "mds stat", Field: "fsmap.filesystems.mdsmap.fs_name"}
		}

		filesystem := MdsFilesystem{
			Name:    fs.MDSMap.FSName,
			Damaged: fs.MDSMap.Damaged,
			Failed:  fs.MDSMap.Failed,
		}
		for _, daemon := range fs.MDSMap.Info {
			if daemon.State == "" {
				return nil, &ParseError{Query: "mds stat", Field: "fsmap.filesystems.mdsmap.info.state"}
			}
			filesystem.Daemons = append(filesystem.Daemons, MdsDaemon{
				Name:  daemon.Name,
				Rank:  daemon.Rank,
				State: daemon.State,
			})
		}

		// The info map has dynamic gid keys; keep reports deterministic.
		sort.Slice(filesystem.Daemons, func(i, j int) bool {
			if filesystem.Daemons[i].Rank != filesystem.Daemons[j].Rank {
				return filesystem.Daemons[i].Rank < filesystem.Daemons[j].Rank
			}
			return filesystem.Daemons[i].Name < filesystem.Daemons[j].Name
		})

		report.Filesystems = append(report.Filesystems, filesystem)
	}

	return report, nil
}

// evaluateMdsStat checks every filesystem for a healthy active MDS: no
// active daemon or damaged/failed ranks are CRITICAL, an active failover
// or replay condition is WARNING, a cluster without filesystems is WARNING.
func evaluateMdsStat(report *MdsStatReport) Verdict {
	var cs conditions

	if len(report.Filesystems) == 0 {
		cs.add(SeverityWarning, "no filesystems configured")
		return cs.verdict("")
	}

	var healthy []string
	for _, fs := range report.Filesystems {
		active := 0
		var transitioning []string
		for _, daemon := range fs.Daemons {
			switch daemon.State {
			case "up:active":
				active++
			case "up:standby-replay", "up:replay", "up:reconnect", "up:rejoin", "up:resolve":
				transitioning = append(transitioning, fmt.Sprintf("%s %s", daemon.Name, daemon.State))
			}
		}

		switch {
		case len(fs.Damaged) > 0:
			cs.add(SeverityCritical, "fs %s has damaged ranks", fs.Name)
		case len(fs.Failed) > 0:
			cs.add(SeverityCritical, "fs %s has failed ranks", fs.Name)
		case active == 0:
			cs.add(SeverityCritical, "fs %s has no active MDS", fs.Name)
		case len(transitioning) > 0:
			cs.add(SeverityWarning, "fs %s in failover: %s", fs.Name, strings.Join(transitioning, ", "))
		default:
			healthy = append(healthy, fmt.Sprintf("%s (%d active)", fs.Name, active))
		}
	}

	return cs.verdict(fmt.Sprintf("all filesystems healthy: %s", strings.Join(healthy, ", ")))
}

// MdsStatCheck implements `mds --mdsstat`.
type MdsStatCheck struct {
	conn   Conn
	logger *logrus.Logger
}

// NewMdsStatCheck returns a check evaluating MDS daemon states per
// filesystem.
func NewMdsStatCheck(conn Conn, logger *logrus.Logger) *MdsStatCheck {
	return &MdsStatCheck{conn: conn, logger: logger}
}

// Run executes the mds stat query and evaluates the response.
func (c *MdsStatCheck) Run() Verdict {
	cmd := monCommand(c.logger, "mds stat")
	buf, _, err := c.conn.MonCommand(cmd)
	if err != nil {
		c.logger.WithError(err).WithField("args", string(cmd)).Error("error executing mon command")
		return unknownVerdict("mds stat", err)
	}

	report, err := parseMdsStat(buf)
	if err != nil {
		return unknownVerdict("mds stat", err)
	}

	return evaluateMdsStat(report)
}
