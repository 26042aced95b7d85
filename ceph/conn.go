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
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Conn is the contract with the cluster management interface. The argument
// to MonCommand is a marshalled mon command of the form
// {"prefix": "osd tree", "format": "json"}; the first return value is the
// raw structured response. Keeping the interface this narrow keeps the
// transport an implementation detail and makes mocking the checks trivial.
type Conn interface {
	MonCommand([]byte) ([]byte, string, error)
}

const jsonFormat = "json"

// monCommand marshals a plain mon command for Conn.MonCommand. The prefix
// may contain spaces ("osd tree"); transports split it themselves.
func monCommand(logger *logrus.Logger, prefix string) []byte {
	cmd, err := json.Marshal(map[string]interface{}{
		"prefix": prefix,
		"format": jsonFormat,
	})
	if err != nil {
		logger.WithError(err).WithField("prefix", prefix).Panic("error marshalling mon command")
	}
	return cmd
}

// TransportKind classifies how a cluster query failed in transit.
type TransportKind string

const (
	// TransportTimeout means the query did not complete within the
	// configured timeout.
	TransportTimeout TransportKind = "timeout"

	// TransportUnreachable means the management interface could not be
	// reached at all (missing executable, connection failure).
	TransportUnreachable TransportKind = "unreachable"

	// TransportExitStatus means the underlying command ran but returned a
	// non-zero exit status.
	TransportExitStatus TransportKind = "non-zero exit"
)

// TransportError is returned by Conn implementations when a query never
// produced a structured response.
type TransportError struct {
	Kind TransportKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ParseError is returned by parsers when a structured response does not
// match the expected schema for its query type. Field names the offending
// field or shape; parsers never fall back to a best-effort guess.
type ParseError struct {
	Query string
	Field string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unexpected %s response: bad or missing %q", e.Query, e.Field)
}

// unknownVerdict converts a transport or parse failure for the named query
// into the UNKNOWN verdict. Every failed pipeline stage funnels through
// here so that no code path leaves the probe without a well-formed verdict.
func unknownVerdict(query string, err error) Verdict {
	var terr *TransportError
	if errors.As(err, &terr) {
		return Verdict{
			Severity: SeverityUnknown,
			Message:  fmt.Sprintf("%s query failed (%s): %s", query, terr.Kind, err),
		}
	}

	var perr *ParseError
	if errors.As(err, &perr) {
		return Verdict{Severity: SeverityUnknown, Message: err.Error()}
	}

	return Verdict{
		Severity: SeverityUnknown,
		Message:  fmt.Sprintf("%s query failed: %s", query, err),
	}
}
