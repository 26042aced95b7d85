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

// Command check_ceph is a Nagios-compatible probe for Ceph clusters. It
// runs exactly one check per invocation, prints a single line on stdout
// and exits with the matching Nagios code.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/ianschenck/envflag"
	"github.com/sirupsen/logrus"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/cephnagios/check_ceph/ceph"
	"github.com/cephnagios/check_ceph/cephcmd"
	"github.com/cephnagios/check_ceph/rados"
)

const (
	defaultCephConfigPath = "/etc/ceph/ceph.conf"
	defaultCephUser       = "admin"
	defaultProbeConfig    = "/etc/ceph/check_ceph.yml"
	defaultTimeout        = 30 * time.Second
)

// probeVersion is overridden at build time with -ldflags.
var probeVersion = "dev"

func main() {
	os.Exit(run(os.Args[1:]))
}

// usageVerdict reports a usage problem the Nagios way: one UNKNOWN line on
// stdout and exit code 3. No cluster query is issued for these.
func usageVerdict(err error) int {
	fmt.Printf("%s: %s\n", ceph.SeverityUnknown, err)
	return ceph.SeverityUnknown.ExitCode()
}

// Environment-driven defaults; flags take precedence over all of these.
var (
	envExec    = envflag.String("CEPH_EXEC", "", "Ceph executable, overridden by --exe")
	envConf    = envflag.String("CEPH_CONFIG", "", "Ceph config file, overridden by --conf")
	envUser    = envflag.String("CEPH_USER", "", "Ceph client id, overridden by --id")
	envTimeout = envflag.Duration("CHECK_TIMEOUT", 0, "Query time limit, overridden by --timeout")
	envConfig  = envflag.String("CHECK_CONFIG", defaultProbeConfig, "Path to check_ceph config, overridden by --config")
	logLevel   = envflag.String("LOG_LEVEL", "warn", "Logging level. One of: [trace, debug, info, warn, error, fatal, panic]")
)

func run(args []string) int {
	envflag.Parse()

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if v, err := logrus.ParseLevel(*logLevel); err != nil {
		logger.WithError(err).Warn("error setting log level")
	} else {
		logger.SetLevel(v)
	}

	app := kingpin.New("check_ceph", "Nagios-compatible probe for Ceph clusters.")
	app.UsageWriter(os.Stderr)
	app.ErrorWriter(os.Stderr)
	app.Version(probeVersion)
	app.HelpFlag.Short('h')

	var (
		exe        = app.Flag("exe", "Ceph executable; may carry leading wrapper arguments, e.g. \"sudo /usr/bin/ceph\".").Short('e').String()
		conf       = app.Flag("conf", "Ceph configuration file.").Short('c').String()
		monAddress = app.Flag("monaddress", "Monitor address to direct the query at.").Short('m').String()
		clientID   = app.Flag("id", "Client id for cluster authentication.").String()
		clientName = app.Flag("name", "Client name for cluster authentication.").Short('n').String()
		keyring    = app.Flag("keyring", "Keyring file for cluster authentication.").Short('k').String()
		timeout    = app.Flag("timeout", "Time limit for the cluster query.").Duration()
		configPath = app.Flag("config", "Path to the check_ceph configuration file.").String()
		useRados   = app.Flag("rados", "Query through librados instead of the ceph CLI.").Bool()
		verbose    = app.Flag("verbose", "Log query progress to stderr.").Short('v').Bool()

		dfWarn    = app.Flag("df-warn", "Capacity usage percentage that raises WARNING.").Float64()
		dfCrit    = app.Flag("df-crit", "Capacity usage percentage that raises CRITICAL.").Float64()
		minQuorum = app.Flag("min-quorum", "Monitors required for quorum; 0 means strict majority.").Int()

		monID = app.Flag("monid", "Monitor to probe with mon --health.").String()

		common       = app.Command("common", "Cluster-wide checks.")
		commonStatus = common.Flag("status", "Overall cluster status.").Bool()
		commonHealth = common.Flag("health", "Itemized cluster health checks.").Bool()
		commonQuorum = common.Flag("quorum", "Monitor quorum membership.").Bool()
		commonDf     = common.Flag("df", "Cluster capacity usage.").Bool()
		commonCrash  = common.Flag("crash", "New, unarchived crash reports.").Bool()

		mon          = app.Command("mon", "Monitor checks.")
		monHealth    = mon.Flag("health", "Health of a single monitor; requires --monid.").Bool()
		monMonstatus = mon.Flag("monstatus", "State of the queried monitor.").Bool()
		monMonstat   = mon.Flag("monstat", "Monitor map summary.").Bool()

		osd     = app.Command("osd", "OSD checks.")
		osdStat = osd.Flag("stat", "OSD map summary.").Bool()
		osdTree = osd.Flag("tree", "OSD availability grouped by host.").Bool()

		mds        = app.Command("mds", "MDS checks.")
		mdsMdsstat = mds.Flag("mdsstat", "Filesystem MDS daemon states.").Bool()
	)

	section, err := app.Parse(args)
	if err != nil {
		return usageVerdict(err)
	}

	if *verbose && logger.Level < logrus.DebugLevel {
		logger.SetLevel(logrus.DebugLevel)
	}

	var test string
	switch section {
	case common.FullCommand():
		test, err = pickTest(section, map[string]bool{
			"status": *commonStatus,
			"health": *commonHealth,
			"quorum": *commonQuorum,
			"df":     *commonDf,
			"crash":  *commonCrash,
		})
	case mon.FullCommand():
		test, err = pickTest(section, map[string]bool{
			"health":    *monHealth,
			"monstatus": *monMonstatus,
			"monstat":   *monMonstat,
		})
	case osd.FullCommand():
		test, err = pickTest(section, map[string]bool{
			"stat": *osdStat,
			"tree": *osdTree,
		})
	case mds.FullCommand():
		test, err = pickTest(section, map[string]bool{
			"mdsstat": *mdsMdsstat,
		})
	}
	if err != nil {
		return usageVerdict(err)
	}

	cfg := &Config{}
	cfgPath := firstNonEmpty(*configPath, *envConfig)
	if fileExists(cfgPath) {
		cfg, err = ParseConfig(cfgPath)
		if err != nil {
			logger.WithError(err).WithField("file", cfgPath).Error("error parsing check_ceph config file")
			return usageVerdict(fmt.Errorf("bad config file %s: %s", cfgPath, err))
		}
	} else if *configPath != "" {
		return usageVerdict(fmt.Errorf("config file %s not found", *configPath))
	}

	thresholds := ceph.DefaultThresholds()
	if cfg.Thresholds.DfWarnPercent > 0 {
		thresholds.DfWarnRatio = cfg.Thresholds.DfWarnPercent / 100
	}
	if cfg.Thresholds.DfCritPercent > 0 {
		thresholds.DfCritRatio = cfg.Thresholds.DfCritPercent / 100
	}
	if cfg.Thresholds.MinQuorum > 0 {
		thresholds.MinQuorum = cfg.Thresholds.MinQuorum
	}
	if *dfWarn > 0 {
		thresholds.DfWarnRatio = *dfWarn / 100
	}
	if *dfCrit > 0 {
		thresholds.DfCritRatio = *dfCrit / 100
	}
	if *minQuorum > 0 {
		thresholds.MinQuorum = *minQuorum
	}
	if thresholds.DfWarnRatio > thresholds.DfCritRatio {
		return usageVerdict(fmt.Errorf("df warning threshold %.0f%% above critical threshold %.0f%%",
			thresholds.DfWarnRatio*100, thresholds.DfCritRatio*100))
	}

	queryTimeout := defaultTimeout
	if *envTimeout > 0 {
		queryTimeout = *envTimeout
	}
	if cfg.TimeoutSeconds > 0 {
		queryTimeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if *timeout > 0 {
		queryTimeout = *timeout
	}

	var conn ceph.Conn
	if *useRados {
		// librados can serve mon commands but not CLI-level monitor
		// pings, so the single-monitor probe stays on the CLI transport.
		if section == "mon" && test == "health" {
			return usageVerdict(fmt.Errorf("mon --health is not supported with --rados"))
		}
		conn = rados.NewRadosConn(
			firstNonEmpty(*clientID, *envUser, defaultCephUser),
			firstNonEmpty(*conf, cfg.Ceph.ConfigFile, *envConf, defaultCephConfigPath),
			queryTimeout,
			logger)
	} else {
		conn, err = cephcmd.New(cephcmd.Options{
			Exec:       firstNonEmpty(*exe, cfg.Ceph.Exec, *envExec),
			ConfigFile: firstNonEmpty(*conf, cfg.Ceph.ConfigFile, *envConf),
			MonAddress: firstNonEmpty(*monAddress, cfg.Ceph.MonAddress),
			ID:         firstNonEmpty(*clientID, cfg.Ceph.ID, *envUser),
			Name:       firstNonEmpty(*clientName, cfg.Ceph.Name),
			Keyring:    firstNonEmpty(*keyring, cfg.Ceph.Keyring),
			Timeout:    queryTimeout,
		}, logger)
		if err != nil {
			return usageVerdict(err)
		}
	}

	check, err := ceph.NewCheck(section, test, ceph.CheckOptions{
		Conn:       conn,
		Logger:     logger,
		Thresholds: thresholds,
		MonID:      *monID,
	})
	if err != nil {
		return usageVerdict(err)
	}

	verdict := check.Run()
	fmt.Println(verdict.Render())
	return verdict.ExitCode()
}

// pickTest enforces the one-test-per-invocation rule before anything talks
// to the cluster.
func pickTest(section string, selected map[string]bool) (string, error) {
	var picked []string
	for _, test := range ceph.Tests(section) {
		if selected[test] {
			picked = append(picked, test)
		}
	}

	switch len(picked) {
	case 0:
		return "", fmt.Errorf("no test selected for section %q (one of --%s required)",
			section, joinTests(section))
	case 1:
		return picked[0], nil
	default:
		return "", fmt.Errorf("section %q takes exactly one test flag, got %d", section, len(picked))
	}
}

func joinTests(section string) string {
	tests := ceph.Tests(section)
	out := ""
	for i, test := range tests {
		if i > 0 {
			out += ", --"
		}
		out += test
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
