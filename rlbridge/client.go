// Copyright 2015 go-fuzz project authors. All rights reserved.
// Use of this source code is governed by Apache 2 LICENSE that can be found in the LICENSE file.

package rlbridge

import (
	"fmt"
	"net"
	"time"

	"github.com/bradleyjkemp/vmfuzz/mutate"
)

// Client is the fuzzer side of a policy connection.
type Client struct {
	conn    net.Conn
	timeout time.Duration
}

// Dial connects to the policy listening on a unix socket. The timeout also
// bounds every later exchange; zero disables deadlines.
func Dial(path string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to policy: %w", err)
	}
	return NewClient(conn, timeout), nil
}

func NewClient(conn net.Conn, timeout time.Duration) *Client {
	return &Client{conn: conn, timeout: timeout}
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) deadline() error {
	if c.timeout <= 0 {
		return nil
	}
	return c.conn.SetDeadline(time.Now().Add(c.timeout))
}

func (c *Client) write(buf []byte) error {
	if err := c.deadline(); err != nil {
		return err
	}
	for len(buf) > 0 {
		n, err := c.conn.Write(buf)
		if err != nil {
			return err
		}
		buf = buf[n:]
	}
	return nil
}

func (c *Client) SendState(vec []float32) error {
	if err := c.write(EncodeState(vec)); err != nil {
		return fmt.Errorf("failed to send state: %w", err)
	}
	return nil
}

func (c *Client) RecvActions(n int) ([]mutate.Action, error) {
	if err := c.deadline(); err != nil {
		return nil, err
	}
	return ReadActions(c.conn, n)
}

func (c *Client) SendReward(r float32) error {
	if err := c.write(EncodeReward(r)); err != nil {
		return fmt.Errorf("failed to send reward: %w", err)
	}
	return nil
}
