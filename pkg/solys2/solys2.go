// Package solys2 implements a client for the Kipp & Zonen SOLYS2 sun
// tracker's ASCII command protocol over TCP.
package solys2

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/goa-uva/solys2scope/pkg/config"
)

// Default timeouts for dialing and individual commands.
const (
	dialTimeout    = 10 * time.Second
	commandTimeout = 20 * time.Second
)

// MaxAdjustment is the largest single azimuth or zenith adjustment the
// tracker accepts, in degrees.
const MaxAdjustment = 0.2

// Client represents a SOLYS2 tracker client.
// All commands are serialized over one TCP connection and rate limited,
// since the tracker firmware drops commands when flooded.
type Client struct {
	// config contains the tracker connection settings
	config config.Solys2Config

	// conn is the TCP connection to the tracker's command port
	conn net.Conn

	// reader buffers protocol responses
	reader *bufio.Reader

	// limiter paces outgoing commands
	limiter *rate.Limiter

	// mu serializes command/response exchanges
	mu sync.Mutex

	// connected tracks if we're currently connected and authenticated
	connected bool
}

// NewClient creates a new SOLYS2 client from configuration.
// The connection is not established until Connect is called.
func NewClient(cfg config.Solys2Config) *Client {
	rps := cfg.CommandRate
	if rps <= 0 {
		rps = 5.0
	}
	return &Client{
		config:  cfg,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Connect dials the tracker and authenticates with the protection password.
// Must be called before any other tracker operation.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	addr := net.JoinHostPort(c.config.Host, strconv.Itoa(c.config.Port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to tracker at %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected = true

	// Unlock the protected command set
	if _, err := c.exchange(fmt.Sprintf("PW %s", c.config.Password)); err != nil {
		conn.Close()
		c.connected = false
		return fmt.Errorf("failed to authenticate with tracker: %w", err)
	}

	// Select the ASCII protocol with decimal degrees
	if _, err := c.exchange("PR 0"); err != nil {
		conn.Close()
		c.connected = false
		return fmt.Errorf("failed to select protocol: %w", err)
	}

	return nil
}

// Close closes the connection to the tracker.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}

// Position returns the tracker's current azimuth and zenith angle in degrees.
func (c *Client) Position() (azimuth, zenith float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.exchange("CP")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read position: %w", err)
	}
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected position response: %v", fields)
	}

	azimuth, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed azimuth %q: %w", fields[0], err)
	}
	zenith, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed zenith %q: %w", fields[1], err)
	}
	return azimuth, zenith, nil
}

// SetAzimuth commands the tracker to rotate to the given azimuth in degrees
// from north (0-360).
func (c *Client) SetAzimuth(degrees float64) error {
	if degrees < 0 || degrees > 360 {
		return fmt.Errorf("azimuth %.4f out of range [0, 360]", degrees)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(fmt.Sprintf("PO 0 %.4f", degrees)); err != nil {
		return fmt.Errorf("failed to set azimuth: %w", err)
	}
	return nil
}

// SetZenith commands the tracker to tilt to the given zenith angle in
// degrees from vertical (0-90).
func (c *Client) SetZenith(degrees float64) error {
	if degrees < 0 || degrees > 90 {
		return fmt.Errorf("zenith %.4f out of range [0, 90]", degrees)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(fmt.Sprintf("PO 1 %.4f", degrees)); err != nil {
		return fmt.Errorf("failed to set zenith: %w", err)
	}
	return nil
}

// MoveTo points the tracker at the given azimuth and zenith angle.
// Convenience method combining both axes.
func (c *Client) MoveTo(azimuth, zenith float64) error {
	if err := c.SetAzimuth(azimuth); err != nil {
		return err
	}
	if err := c.SetZenith(zenith); err != nil {
		return err
	}
	return nil
}

// Adjustment returns the accumulated azimuth and zenith pointing
// adjustments in degrees.
func (c *Client) Adjustment() (azimuth, zenith float64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.exchange("AD")
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read adjustment: %w", err)
	}
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("unexpected adjustment response: %v", fields)
	}

	azimuth, err = strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed azimuth adjustment %q: %w", fields[0], err)
	}
	zenith, err = strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("malformed zenith adjustment %q: %w", fields[1], err)
	}
	return azimuth, zenith, nil
}

// AdjustAzimuth applies a relative azimuth pointing adjustment in degrees.
// The tracker accepts at most ±MaxAdjustment per command.
func (c *Client) AdjustAzimuth(delta float64) error {
	if delta < -MaxAdjustment || delta > MaxAdjustment {
		return fmt.Errorf("azimuth adjustment %.4f exceeds ±%.1f limit", delta, MaxAdjustment)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(fmt.Sprintf("AD 0 %.4f", delta)); err != nil {
		return fmt.Errorf("failed to adjust azimuth: %w", err)
	}
	return nil
}

// AdjustZenith applies a relative zenith pointing adjustment in degrees.
// The tracker accepts at most ±MaxAdjustment per command.
func (c *Client) AdjustZenith(delta float64) error {
	if delta < -MaxAdjustment || delta > MaxAdjustment {
		return fmt.Errorf("zenith adjustment %.4f exceeds ±%.1f limit", delta, MaxAdjustment)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(fmt.Sprintf("AD 1 %.4f", delta)); err != nil {
		return fmt.Errorf("failed to adjust zenith: %w", err)
	}
	return nil
}

// Home sends the tracker to its home position.
func (c *Client) Home() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange("HO"); err != nil {
		return fmt.Errorf("failed to home tracker: %w", err)
	}
	return nil
}

// Version returns the tracker firmware identification string.
func (c *Client) Version() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.exchange("VE")
	if err != nil {
		return "", fmt.Errorf("failed to read version: %w", err)
	}
	return strings.Join(fields, " "), nil
}

// IsConnected returns the current connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Probe checks that a tracker is reachable and accepts the password.
// It dials, authenticates, and closes the connection.
func Probe(cfg config.Solys2Config) error {
	client := NewClient(cfg)
	if err := client.Connect(); err != nil {
		return err
	}
	return client.Close()
}

// exchange sends one command and parses the response line.
// Callers must hold c.mu.
func (c *Client) exchange(command string) ([]string, error) {
	if !c.connected {
		return nil, fmt.Errorf("tracker not connected")
	}

	// Pace commands so the firmware's input buffer never overruns
	if err := c.limiter.Wait(context.Background()); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(commandTimeout)
	if err := c.conn.SetDeadline(deadline); err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(c.conn, "%s\r\n", command); err != nil {
		return nil, fmt.Errorf("failed to send command %q: %w", command, err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response to %q: %w", command, err)
	}

	return parseResponse(line)
}

// parseResponse splits a protocol response line into its value fields.
// Successful responses start with ">", errors with "NO" and a numeric code.
func parseResponse(line string) ([]string, error) {
	line = strings.TrimSpace(line)

	if strings.HasPrefix(line, "NO") {
		fields := strings.Fields(line)
		code := 0
		if len(fields) > 1 {
			code, _ = strconv.Atoi(fields[1])
		}
		return nil, &ProtocolError{Code: code}
	}

	if !strings.HasPrefix(line, ">") {
		return nil, fmt.Errorf("unexpected response %q", line)
	}

	return strings.Fields(strings.TrimPrefix(line, ">")), nil
}

// ProtocolError is an error reported by the tracker firmware.
type ProtocolError struct {
	// Code is the numeric error reported by the tracker
	Code int
}

// Error returns the tracker's description for the error code.
func (e *ProtocolError) Error() string {
	return fmt.Sprintf("tracker error %d: %s", e.Code, errorDescription(e.Code))
}

// errorDescription maps tracker error codes to the descriptions in the
// SOLYS2 communication manual.
func errorDescription(code int) string {
	switch code {
	case 1:
		return "framing error"
	case 2:
		return "reserved for future use"
	case 3:
		return "unrecognized command"
	case 4:
		return "message too long"
	case 5:
		return "unimplemented instruction or non-control related command"
	case 6:
		return "motion queue is full, movement command rejected"
	case 7:
		return "travel bounds exceeded"
	case 8:
		return "maximum velocity exceeded"
	case 9:
		return "maximum acceleration exceeded"
	case 10:
		return "instrument is operating autonomously, command rejected"
	case 11:
		return "invalid adjustment size"
	case 12:
		return "invalid total adjustment"
	case 13:
		return "duration out of range"
	case 14:
		return "reserved for future use"
	case 15:
		return "illegal extent specified"
	case 16:
		return "attempt to change password protected data"
	case 17:
		return "hardware failure detected"
	default:
		return "unknown error"
	}
}
