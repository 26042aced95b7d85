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

// Package cephcmd talks to the cluster by spawning the ceph CLI and asking
// it for JSON output. It is the default transport of the probe and the one
// that supports every query type, including monitor pings.
package cephcmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/sirupsen/logrus"

	"github.com/cephnagios/check_ceph/ceph"
)

// DefaultCephExec is the ceph CLI binary used when nothing overrides it.
const DefaultCephExec = "/usr/bin/ceph"

// Options configure how the ceph CLI is invoked. Every field is optional.
type Options struct {
	// Exec is the ceph executable. It may be a quoted command string with
	// leading arguments, e.g. "sudo /usr/bin/ceph".
	Exec string

	// ConfigFile is passed as -c when set.
	ConfigFile string

	// MonAddress is passed as -m when set, pinning the query to a single
	// monitor endpoint.
	MonAddress string

	// ID and Name select the client credentials (--id / --name); Keyring
	// points at the keyring file.
	ID      string
	Name    string
	Keyring string

	// Timeout bounds every invocation. Zero falls back to 30s; the probe
	// must never hang under a monitoring scheduler.
	Timeout time.Duration
}

// CephConn implements ceph.Conn on top of the ceph CLI.
type CephConn struct {
	argv    []string
	timeout time.Duration
	logger  *logrus.Logger

	// runFn is swapped out in tests.
	runFn func(ctx context.Context, argv []string) ([]byte, []byte, error)
}

var _ ceph.Conn = &CephConn{}

// New builds a CephConn from the given options. The executable string is
// split shell-style, so quoted wrappers keep working.
func New(opts Options, logger *logrus.Logger) (*CephConn, error) {
	execStr := opts.Exec
	if execStr == "" {
		execStr = DefaultCephExec
	}

	argv, err := shellquote.Split(execStr)
	if err != nil {
		return nil, fmt.Errorf("error parsing ceph executable %q: %w", execStr, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty ceph executable")
	}

	if opts.ConfigFile != "" {
		argv = append(argv, "-c", opts.ConfigFile)
	}
	if opts.MonAddress != "" {
		argv = append(argv, "-m", opts.MonAddress)
	}
	if opts.ID != "" {
		argv = append(argv, "--id", opts.ID)
	}
	if opts.Name != "" {
		argv = append(argv, "--name", opts.Name)
	}
	if opts.Keyring != "" {
		argv = append(argv, "--keyring", opts.Keyring)
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &CephConn{
		argv:    argv,
		timeout: timeout,
		logger:  logger,
		runFn:   runCeph,
	}, nil
}

func runCeph(ctx context.Context, argv []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// MonCommand translates a marshalled mon command into a CLI invocation:
// the prefix words become arguments and the format becomes --format. The
// info return value carries whatever the CLI printed on stderr.
func (c *CephConn) MonCommand(args []byte) ([]byte, string, error) {
	var request struct {
		Prefix string `json:"prefix"`
		Format string `json:"format"`
	}
	if err := json.Unmarshal(args, &request); err != nil {
		return nil, "", &ceph.TransportError{Kind: ceph.TransportUnreachable,
			Err: fmt.Errorf("bad mon command: %w", err)}
	}
	if request.Prefix == "" {
		return nil, "", &ceph.TransportError{Kind: ceph.TransportUnreachable,
			Err: fmt.Errorf("bad mon command: empty prefix")}
	}

	argv := append(append([]string{}, c.argv...), strings.Fields(request.Prefix)...)
	if request.Format != "" {
		argv = append(argv, "--format", request.Format)
	}

	ll := c.logger.WithField("argv", strings.Join(argv, " "))
	ll.Debug("executing ceph command")

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	stdout, stderr, err := c.runFn(ctx, argv)
	info := strings.TrimSpace(string(stderr))

	if err != nil {
		ll.WithError(err).Debug("ceph command failed")
		return nil, info, c.classify(ctx, err, info)
	}

	return stdout, info, nil
}

// classify maps an invocation failure onto the transport error taxonomy:
// deadline hits are timeouts, a missing binary is unreachable, everything
// the CLI itself refused is a non-zero exit.
func (c *CephConn) classify(ctx context.Context, err error, info string) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &ceph.TransportError{Kind: ceph.TransportTimeout,
			Err: fmt.Errorf("no response within %s", c.timeout)}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := firstLine(info)
		if detail == "" {
			detail = exitErr.String()
		}
		return &ceph.TransportError{Kind: ceph.TransportExitStatus,
			Err: fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), detail)}
	}

	return &ceph.TransportError{Kind: ceph.TransportUnreachable, Err: err}
}

func firstLine(s string) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		return s[:idx]
	}
	return s
}
