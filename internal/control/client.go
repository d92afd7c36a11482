package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"
)

// DefaultTimeout bounds one command round trip
const DefaultTimeout = 10 * time.Second

// Client sends commands to a running agent
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a client for the socket at socketPath
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: DefaultTimeout}
}

// SetTimeout sets the per-command timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// Send delivers a command and waits for the response. A response with
// Success=false is returned as an error.
func (c *Client) Send(cmd Command) (*Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to agent (is it running?): %w", err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !resp.Success {
		return &resp, errors.New(resp.Error)
	}
	return &resp, nil
}

// Status requests the agent status and decodes it into v
func (c *Client) Status(v interface{}) error {
	resp, err := c.Send(Command{Type: CommandStatus})
	if err != nil {
		return err
	}
	return resp.Decode(v)
}

// Stop asks the agent to shut down
func (c *Client) Stop() error {
	_, err := c.Send(Command{Type: CommandStop})
	return err
}

// Approvals lists up to limit queued approval requests into v
func (c *Client) Approvals(limit int, v interface{}) error {
	resp, err := c.Send(Command{Type: CommandApprovals, Limit: limit})
	if err != nil {
		return err
	}
	return resp.Decode(v)
}
