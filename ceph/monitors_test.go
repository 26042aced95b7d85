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
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const quorumStatusABC = `{
	"quorum_names": ["a", "b", "c"],
	"monmap": {"mons": [
		{"rank": 0, "name": "a"},
		{"rank": 1, "name": "b"},
		{"rank": 2, "name": "c"}
	]}
}`

// matchPrefix matches mon commands whose prefix contains the given text.
func matchPrefix(text string) interface{} {
	return mock.MatchedBy(func(args []byte) bool {
		return strings.Contains(string(args), text)
	})
}

func TestParseMonPing(t *testing.T) {
	buf := []byte(`{
		"mon_status": {
			"name": "b",
			"rank": 1,
			"state": "peon",
			"quorum": [0, 1, 2]
		}
	}`)

	result, err := parseMonPing("b", buf)
	require.NoError(t, err)
	require.Equal(t, "peon", result.State)
	require.True(t, result.InQuorum)
}

func TestParseMonPingFlatShape(t *testing.T) {
	result, err := parseMonPing("a", []byte(`{"name": "a", "rank": 0, "state": "leader", "quorum": [0]}`))
	require.NoError(t, err)
	require.Equal(t, "leader", result.State)
	require.True(t, result.InQuorum)
}

func TestParseMonPingRejectsMissingState(t *testing.T) {
	_, err := parseMonPing("a", []byte(`{"mon_status": {"rank": 0}}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "mon_status.state")
}

func TestMonHealthCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		ping     string
		severity Severity
		contains string
	}{
		{
			name:     "healthy peon",
			ping:     `{"mon_status": {"name": "b", "rank": 1, "state": "peon", "quorum": [0, 1, 2]}}`,
			severity: SeverityOK,
			contains: "mon.b healthy (peon, in quorum)",
		},
		{
			name:     "probing monitor",
			ping:     `{"mon_status": {"name": "b", "rank": 1, "state": "probing", "quorum": []}}`,
			severity: SeverityCritical,
			contains: "unhealthy",
		},
		{
			name:     "error state",
			ping:     `{"mon_status": {"name": "b", "rank": 1, "state": "shutdown", "quorum": []}}`,
			severity: SeverityCritical,
			contains: `error state "shutdown"`,
		},
		{
			name:     "peon outside quorum",
			ping:     `{"mon_status": {"name": "b", "rank": 1, "state": "peon", "quorum": [0, 2]}}`,
			severity: SeverityCritical,
			contains: "not in quorum",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", matchPrefix("quorum_status")).Return([]byte(quorumStatusABC), "", nil)
			conn.On("MonCommand", matchPrefix("ping mon.b")).Return([]byte(tt.ping), "", nil)

			verdict := NewMonHealthCheck(conn, logrus.New(), "b").Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}

func TestMonHealthCheckStripsMonPrefix(t *testing.T) {
	conn := &MockConn{}
	conn.On("MonCommand", matchPrefix("quorum_status")).Return([]byte(quorumStatusABC), "", nil)
	conn.On("MonCommand", matchPrefix("ping mon.b")).Return(
		[]byte(`{"mon_status": {"name": "b", "rank": 1, "state": "peon", "quorum": [0, 1, 2]}}`), "", nil)

	verdict := NewMonHealthCheck(conn, logrus.New(), "mon.b").Run()
	require.Equal(t, SeverityOK, verdict.Severity)
}

func TestMonHealthCheckUnknownMonitorNeverPings(t *testing.T) {
	conn := &MockConn{}
	conn.On("MonCommand", matchPrefix("quorum_status")).Return([]byte(quorumStatusABC), "", nil)

	verdict := NewMonHealthCheck(conn, logrus.New(), "z").Run()
	require.Equal(t, SeverityCritical, verdict.Severity)
	require.Contains(t, verdict.Message, "unknown monitor: z")
	require.Contains(t, verdict.Message, "a,b,c")

	// Only the quorum_status query may have gone out.
	conn.AssertNumberOfCalls(t, "MonCommand", 1)
}

func TestMonHealthCheckUnreachableMonitorIsCritical(t *testing.T) {
	conn := &MockConn{}
	conn.On("MonCommand", matchPrefix("quorum_status")).Return([]byte(quorumStatusABC), "", nil)
	conn.On("MonCommand", matchPrefix("ping mon.b")).Return(
		nil, "", &TransportError{Kind: TransportTimeout, Err: errors.New("no response within 30s")})

	verdict := NewMonHealthCheck(conn, logrus.New(), "b").Run()
	require.Equal(t, SeverityCritical, verdict.Severity)
	require.Contains(t, verdict.Message, "mon.b unreachable")
}

func TestMonHealthCheckQuorumFailureIsUnknown(t *testing.T) {
	conn := &MockConn{}
	conn.On("MonCommand", matchPrefix("quorum_status")).Return(
		nil, "", &TransportError{Kind: TransportUnreachable, Err: errors.New("connection refused")})

	verdict := NewMonHealthCheck(conn, logrus.New(), "b").Run()
	require.Equal(t, SeverityUnknown, verdict.Severity)
}

func TestMonStatusCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		input    string
		severity Severity
		contains string
	}{
		{
			name:     "leader in quorum",
			input:    `{"name": "a", "rank": 0, "state": "leader", "quorum": [0, 1, 2]}`,
			severity: SeverityOK,
			contains: "mon.a in quorum (leader)",
		},
		{
			name:     "running outside quorum",
			input:    `{"name": "c", "rank": 2, "state": "electing", "quorum": [0, 1]}`,
			severity: SeverityWarning,
			contains: "not in quorum",
		},
		{
			name:     "error state",
			input:    `{"name": "c", "rank": 2, "state": "shutdown", "quorum": []}`,
			severity: SeverityCritical,
			contains: `error state "shutdown"`,
		},
		{
			name:     "missing rank",
			input:    `{"name": "c", "state": "peon"}`,
			severity: SeverityUnknown,
			contains: "unexpected mon_status response",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", mock.Anything).Return([]byte(tt.input), "", nil)

			verdict := NewMonStatusCheck(conn, logrus.New()).Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}

func TestMonStatCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		input    string
		severity Severity
		contains string
	}{
		{
			name: "quorum with leader",
			input: `{"epoch": 4, "leader": "a", "quorum": [
				{"rank": 0, "name": "a"}, {"rank": 1, "name": "b"}]}`,
			severity: SeverityOK,
			contains: "quorum a,b (leader a)",
		},
		{
			name:     "no leader elected",
			input:    `{"epoch": 4, "leader": "", "quorum": [{"rank": 0, "name": "a"}]}`,
			severity: SeverityWarning,
			contains: "no elected leader",
		},
		{
			name:     "empty quorum",
			input:    `{"epoch": 4, "leader": "", "quorum": []}`,
			severity: SeverityCritical,
			contains: "no monitors in quorum (epoch 4)",
		},
		{
			name:     "missing epoch",
			input:    `{"leader": "a"}`,
			severity: SeverityUnknown,
			contains: "unexpected mon stat response",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", mock.Anything).Return([]byte(tt.input), "", nil)

			verdict := NewMonStatCheck(conn, logrus.New()).Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}
