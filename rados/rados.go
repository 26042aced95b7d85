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

// Package rados talks to the cluster through librados instead of the ceph
// CLI. It avoids a subprocess per query but cannot serve CLI-level
// commands such as monitor pings; the cephcmd transport remains the
// default.
package rados

import (
	"fmt"
	"strconv"
	"time"

	"github.com/ceph/go-ceph/rados"
	"github.com/sirupsen/logrus"

	"github.com/cephnagios/check_ceph/ceph"
)

// RadosConn implements the ceph.Conn interface with an underlying
// *rados.Conn that talks to a real Ceph cluster.
type RadosConn struct {
	user       string
	configFile string
	timeout    time.Duration
	logger     *logrus.Logger
}

// *RadosConn must implement ceph.Conn.
var _ ceph.Conn = &RadosConn{}

// NewRadosConn returns a new RadosConn. Unlike the native rados.Conn, there
// is no need to manage the connection before/after talking to the rados;
// it is the responsibility of this *RadosConn to manage the connection.
func NewRadosConn(user, configFile string, timeout time.Duration, logger *logrus.Logger) *RadosConn {
	return &RadosConn{
		user:       user,
		configFile: configFile,
		timeout:    timeout,
		logger:     logger,
	}
}

// newRadosConn creates an established rados connection to the Ceph cluster
// using the provided Ceph user and configFile. Ceph parameters
// rados_osd_op_timeout and rados_mon_op_timeout are specified by the
// timeout value, where 0 means no limit.
func (c *RadosConn) newRadosConn() (*rados.Conn, error) {
	conn, err := rados.NewConnWithUser(c.user)
	if err != nil {
		return nil, &ceph.TransportError{Kind: ceph.TransportUnreachable,
			Err: fmt.Errorf("error creating rados connection: %s", err)}
	}

	err = conn.ReadConfigFile(c.configFile)
	if err != nil {
		return nil, &ceph.TransportError{Kind: ceph.TransportUnreachable,
			Err: fmt.Errorf("error reading config file: %s", err)}
	}

	tv := strconv.FormatFloat(c.timeout.Seconds(), 'f', -1, 64)
	// Set rados_osd_op_timeout and rados_mon_op_timeout to avoid Mon
	// and PG command hang.
	// See
	// https://github.com/ceph/ceph/blob/d4872ce97a2825afcb58876559cc73aaa1862c0f/src/common/legacy_config_opts.h#L1258-L1259
	for _, option := range []string{"rados_osd_op_timeout", "rados_mon_op_timeout", "client_mount_timeout"} {
		if err := conn.SetConfigOption(option, tv); err != nil {
			return nil, &ceph.TransportError{Kind: ceph.TransportUnreachable,
				Err: fmt.Errorf("error setting %s: %s", option, err)}
		}
	}

	// Ceph may retry the connection up to 10 times internally, which
	// essentially makes client_mount_timeout 10x longer. Use a goroutine,
	// channel, and a select statement to implement our own timeout
	// wrapper for connections.
	ch := make(chan error, 1)
	go func(conn *rados.Conn, ch chan error) {
		defer close(ch)
		ch <- conn.Connect()
	}(conn, ch)

	select {
	case err = <-ch:
	case <-time.After(c.timeout):
		return nil, &ceph.TransportError{Kind: ceph.TransportTimeout,
			Err: fmt.Errorf("no rados connection within %s", c.timeout)}
	}

	if err != nil {
		return nil, &ceph.TransportError{Kind: ceph.TransportUnreachable,
			Err: fmt.Errorf("error connecting to rados: %s", err)}
	}

	return conn, nil
}

// MonCommand executes a monitor command via rados.
func (c *RadosConn) MonCommand(args []byte) (buffer []byte, info string, err error) {
	ll := c.logger.WithField("args", string(args))

	ll.Trace("creating rados connection to execute mon command")

	conn, err := c.newRadosConn()
	if err != nil {
		return nil, "", err
	}
	defer conn.Shutdown()

	ll = ll.WithField("conn", conn.GetInstanceID())

	ll.Trace("start executing mon command")

	buffer, info, err = conn.MonCommand(args)
	if err != nil {
		// librados surfaces command rejection the same way the CLI
		// surfaces a non-zero exit.
		err = &ceph.TransportError{Kind: ceph.TransportExitStatus, Err: err}
	}

	ll.WithError(err).Trace("complete executing mon command")

	return buffer, info, err
}
