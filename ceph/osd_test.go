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
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestParseOsdStat(t *testing.T) {
	for _, tt := range []struct {
		name  string
		input string
		want  OsdStatReport
	}{
		{
			name:  "flat shape",
			input: `{"num_osds":3,"num_up_osds":3,"num_in_osds":3}`,
			want:  OsdStatReport{Total: 3, Up: 3, In: 3},
		},
		{
			name:  "wrapped in osdmap",
			input: `{"osdmap":{"num_osds":4,"num_up_osds":3,"num_in_osds":3}}`,
			want:  OsdStatReport{Total: 4, Up: 3, In: 3},
		},
		{
			name:  "nearfull via flags string",
			input: `{"num_osds":3,"num_up_osds":3,"num_in_osds":3,"flags":"nearfull,sortbitwise"}`,
			want:  OsdStatReport{Total: 3, Up: 3, In: 3, Nearfull: true},
		},
		{
			name:  "full via boolean",
			input: `{"num_osds":3,"num_up_osds":3,"num_in_osds":3,"full":true}`,
			want:  OsdStatReport{Total: 3, Up: 3, In: 3, Full: true},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			report, err := parseOsdStat([]byte(tt.input))
			require.NoError(t, err)
			if diff := cmp.Diff(&tt.want, report); diff != "" {
				t.Errorf("unexpected report (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseOsdStatRejectsMissingCounters(t *testing.T) {
	_, err := parseOsdStat([]byte(`{"epoch": 42}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "num_osds")
}

func TestOsdStatCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		input    string
		severity Severity
		contains string
	}{
		{
			name:     "all up and in",
			input:    `{"num_osds":3,"num_up_osds":3,"num_in_osds":3}`,
			severity: SeverityOK,
			contains: "3 OSDs, all up and in",
		},
		{
			name:     "one down",
			input:    `{"num_osds":3,"num_up_osds":2,"num_in_osds":2}`,
			severity: SeverityCritical,
			contains: "1/3 OSDs down",
		},
		{
			name:     "up but out",
			input:    `{"num_osds":3,"num_up_osds":3,"num_in_osds":2}`,
			severity: SeverityWarning,
			contains: "1 OSDs up but out",
		},
		{
			name:     "nearfull flag",
			input:    `{"num_osds":3,"num_up_osds":3,"num_in_osds":3,"nearfull":true}`,
			severity: SeverityWarning,
			contains: "nearfull",
		},
		{
			name:     "empty cluster",
			input:    `{"num_osds":0,"num_up_osds":0,"num_in_osds":0}`,
			severity: SeverityWarning,
			contains: "no OSDs in cluster",
		},
		{
			name:     "garbage response",
			input:    `[1,2,3]`,
			severity: SeverityUnknown,
			contains: "unexpected osd stat response",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", mock.Anything).Return([]byte(tt.input), "", nil)

			verdict := NewOsdStatCheck(conn, logrus.New()).Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}

const osdTreeTwoHosts = `{
	"nodes": [
		{"id": -1, "name": "default", "type": "root", "children": [-2, -3]},
		{"id": -2, "name": "rack1", "type": "host", "children": [0, 1]},
		{"id": -3, "name": "rack2", "type": "host", "children": [2, 3]},
		{"id": 0, "name": "osd.0", "type": "osd", "status": "%s"},
		{"id": 1, "name": "osd.1", "type": "osd", "status": "%s"},
		{"id": 2, "name": "osd.2", "type": "osd", "status": "up"},
		{"id": 3, "name": "osd.3", "type": "osd", "status": "up"}
	]
}`

func TestParseOsdTree(t *testing.T) {
	buf := []byte(`{
		"nodes": [
			{"id": -2, "name": "rack1", "type": "host", "children": [1, 0]},
			{"id": 0, "name": "osd.0", "type": "osd", "status": "up"},
			{"id": 1, "name": "osd.1", "type": "osd", "status": "down"}
		],
		"stray": [
			{"id": 7, "name": "osd.7", "type": "osd", "status": "down"}
		]
	}`)

	report, err := parseOsdTree(buf)
	require.NoError(t, err)

	want := &OsdTreeReport{Hosts: []OsdHost{
		{Name: "", OSDs: []OsdNode{{ID: 7, Name: "osd.7", Status: "down"}}},
		{Name: "rack1", OSDs: []OsdNode{
			{ID: 1, Name: "osd.1", Status: "down"},
			{ID: 0, Name: "osd.0", Status: "up"},
		}},
	}}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Errorf("unexpected report (-want +got):\n%s", diff)
	}
}

func TestParseOsdTreeRejectsUnknownChild(t *testing.T) {
	_, err := parseOsdTree([]byte(`{
		"nodes": [{"id": -2, "name": "rack1", "type": "host", "children": [99]}]
	}`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "nodes.children")
}

func TestOsdTreeCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		input    string
		severity Severity
		contains string
	}{
		{
			name:     "all hosts up",
			input:    osdTreeFixture("up", "up"),
			severity: SeverityOK,
			contains: "4 OSDs up across 2 hosts",
		},
		{
			name:     "host fully dark",
			input:    osdTreeFixture("down", "down"),
			severity: SeverityCritical,
			contains: "hosts with all OSDs down: rack1 (2 OSDs)",
		},
		{
			name:     "host partially down",
			input:    osdTreeFixture("up", "down"),
			severity: SeverityWarning,
			contains: "hosts with OSDs down: rack1 (1/2 up)",
		},
		{
			name:     "empty tree",
			input:    `{"nodes": []}`,
			severity: SeverityWarning,
			contains: "no OSDs in cluster",
		},
		{
			name:     "missing nodes",
			input:    `{"stray": []}`,
			severity: SeverityUnknown,
			contains: "unexpected osd tree response",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", mock.Anything).Return([]byte(tt.input), "", nil)

			verdict := NewOsdTreeCheck(conn, logrus.New()).Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}

// osdTreeFixture fills in the statuses of rack1's two OSDs.
func osdTreeFixture(status0, status1 string) string {
	return fmt.Sprintf(osdTreeTwoHosts, status0, status1)
}
