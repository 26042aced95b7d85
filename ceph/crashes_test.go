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

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestCrashCheck(t *testing.T) {
	for _, tt := range []struct {
		name     string
		input    string
		severity Severity
		contains string
	}{
		{
			name:     "no crashes",
			input:    `[]`,
			severity: SeverityOK,
			contains: "no new crash reports",
		},
		{
			name: "single new crash",
			input: `[
				{"entity_name": "osd.0", "archived": ""}
			]`,
			severity: SeverityWarning,
			contains: "1 new crash reports: osd.0 (1)",
		},
		{
			name: "archived crashes are ignored",
			input: `[
				{"entity_name": "osd.0", "archived": "2022-02-08 21:02:46"}
			]`,
			severity: SeverityOK,
			contains: "no new crash reports",
		},
		{
			name: "mixed entities sorted in message",
			input: `[
				{"entity_name": "osd.3", "archived": ""},
				{"entity_name": "mon.a", "archived": ""},
				{"entity_name": "osd.3", "archived": ""},
				{"entity_name": "osd.1", "archived": "2022-02-08 21:02:46"}
			]`,
			severity: SeverityWarning,
			contains: "3 new crash reports: mon.a (1), osd.3 (2)",
		},
		{
			name:     "missing entity name",
			input:    `[{"archived": ""}]`,
			severity: SeverityUnknown,
			contains: "unexpected crash ls response",
		},
		{
			name:     "garbage response",
			input:    `{"crashes": 3}`,
			severity: SeverityUnknown,
			contains: "unexpected crash ls response",
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			conn := &MockConn{}
			conn.On("MonCommand", mock.Anything).Return([]byte(tt.input), "", nil)

			verdict := NewCrashCheck(conn, logrus.New()).Run()
			require.Equal(t, tt.severity, verdict.Severity)
			require.Contains(t, verdict.Message, tt.contains)
		})
	}
}
