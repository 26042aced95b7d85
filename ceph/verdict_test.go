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
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSeverity(t *testing.T) {
	for _, tt := range []struct {
		severity Severity
		text     string
		exitCode int
	}{
		{SeverityOK, "OK", 0},
		{SeverityWarning, "WARNING", 1},
		{SeverityCritical, "CRITICAL", 2},
		{SeverityUnknown, "UNKNOWN", 3},
		{Severity(42), "UNKNOWN", 3},
		{Severity(-1), "UNKNOWN", 3},
	} {
		require.Equal(t, tt.text, tt.severity.String())
		require.Equal(t, tt.exitCode, tt.severity.ExitCode())
	}
}

func TestVerdictRender(t *testing.T) {
	plain := Verdict{Severity: SeverityWarning, Message: "2 OSDs out"}
	require.Equal(t, "WARNING: 2 OSDs out", plain.Render())

	withPerfdata := Verdict{
		Severity: SeverityOK,
		Message:  "42% of cluster capacity used",
		Perfdata: []string{"usage=42.00%;80;90"},
	}
	require.Equal(t, "OK: 42% of cluster capacity used|usage=42.00%;80;90", withPerfdata.Render())
}

func TestConditionsAllClear(t *testing.T) {
	var cs conditions
	verdict := cs.verdict("everything fine")

	require.Equal(t, SeverityOK, verdict.Severity)
	require.Equal(t, "everything fine", verdict.Message)
}

func TestConditionsWorstSeverityWins(t *testing.T) {
	var cs conditions
	cs.add(SeverityWarning, "1 OSD out")
	cs.add(SeverityCritical, "2 OSDs down")
	cs.add(SeverityWarning, "cluster is flagged nearfull")
	cs.add(SeverityCritical, "quorum broken")

	verdict := cs.verdict("")

	// Only the details of the worst severity make the message.
	require.Equal(t, SeverityCritical, verdict.Severity)
	require.Equal(t, "2 OSDs down; quorum broken", verdict.Message)
}

func TestConditionsKeepPerfdataOnOK(t *testing.T) {
	var cs conditions
	verdict := cs.verdict("all up", "osds=3", "up=3")

	require.Equal(t, SeverityOK, verdict.Severity)
	require.Equal(t, []string{"osds=3", "up=3"}, verdict.Perfdata)
}
