// Package asd implements a client for the ASD FieldSpec spectroradiometer's
// remote acquisition service, and serialization of acquired spectra.
package asd

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
)

// dialTimeout bounds connection establishment.
const dialTimeout = 10 * time.Second

// IntegrationTime is the detector integration time code. Each step doubles
// the base 8.5 ms integration window.
type IntegrationTime int

const (
	IntegrationTime8ms IntegrationTime = iota
	IntegrationTime17ms
	IntegrationTime34ms
	IntegrationTime68ms
	IntegrationTime136ms
	IntegrationTime272ms
	IntegrationTime544ms
	IntegrationTime1088ms
	IntegrationTime2176ms
)

// Milliseconds returns the integration window length for the code.
func (it IntegrationTime) Milliseconds() float64 {
	return 8.5 * float64(int(1)<<int(it))
}

// Client represents an ASD spectroradiometer client.
// Commands are serialized over one TCP connection to the instrument's
// acquisition service.
type Client struct {
	// host and port locate the instrument's acquisition service
	host string
	port int

	// conn is the TCP connection to the instrument
	conn net.Conn

	// reader buffers protocol responses
	reader *bufio.Reader

	// mu serializes command/response exchanges
	mu sync.Mutex

	// connected tracks if we're currently connected
	connected bool
}

// NewClient creates a new spectroradiometer client.
// The connection is not established until Connect is called.
func NewClient(host string, port int) *Client {
	return &Client{host: host, port: port}
}

// Connect dials the instrument's acquisition service.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.connected {
		return nil
	}

	addr := net.JoinHostPort(c.host, strconv.Itoa(c.port))
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to spectrometer at %s: %w", addr, err)
	}

	c.conn = conn
	c.reader = bufio.NewReader(conn)
	c.connected = true
	return nil
}

// Close closes the connection to the instrument.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.connected {
		return nil
	}
	c.connected = false
	return c.conn.Close()
}

// IsConnected returns the current connection status.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Restore resets the instrument to its stored startup configuration.
func (c *Client) Restore() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange("RESTORE", 30*time.Second); err != nil {
		return fmt.Errorf("failed to restore instrument: %w", err)
	}
	return nil
}

// Optimize runs the instrument's automatic gain and integration time
// optimization against the current light level. Slow; the instrument takes
// several measurements internally.
func (c *Client) Optimize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange("OPT", 120*time.Second); err != nil {
		return fmt.Errorf("failed to optimize instrument: %w", err)
	}
	return nil
}

// SetIntegrationTime sets the detector integration time.
func (c *Client) SetIntegrationTime(it IntegrationTime) error {
	if it < IntegrationTime8ms || it > IntegrationTime2176ms {
		return fmt.Errorf("integration time code %d out of range", int(it))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.exchange(fmt.Sprintf("IT %d", int(it)), 30*time.Second); err != nil {
		return fmt.Errorf("failed to set integration time: %w", err)
	}
	return nil
}

// Acquire captures one spectrum. The timeout bounds the whole exchange
// including the instrument's integration and readout time.
func (c *Client) Acquire(timeout time.Duration) (*Spectrum, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fields, err := c.exchange("ACQ", timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire spectrum: %w", err)
	}
	if len(fields) < 7 {
		return nil, fmt.Errorf("unexpected acquisition header: %v", fields)
	}

	header := make([]int, 7)
	for i := 0; i < 7; i++ {
		header[i], err = strconv.Atoi(fields[i])
		if err != nil {
			return nil, fmt.Errorf("malformed acquisition header field %q: %w", fields[i], err)
		}
	}

	count := header[6]
	if count <= 0 || count > 4096 {
		return nil, fmt.Errorf("implausible channel count %d", count)
	}

	spectrum := &Spectrum{
		Time:            time.Now().UTC(),
		IntegrationTime: IntegrationTime(header[0]),
		Drift:           header[1],
		SWIR1Gain:       header[2],
		SWIR1Offset:     header[3],
		SWIR2Gain:       header[4],
		SWIR2Offset:     header[5],
		StartWavelength: 350,
		WavelengthStep:  1,
		Values:          make([]float64, count),
	}

	for i := 0; i < count; i++ {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			return nil, fmt.Errorf("failed to read channel %d: %w", i, err)
		}
		spectrum.Values[i], err = strconv.ParseFloat(strings.TrimSpace(line), 64)
		if err != nil {
			return nil, fmt.Errorf("malformed channel %d value %q: %w", i, line, err)
		}
	}

	return spectrum, nil
}

// exchange sends one command and parses the response line.
// Callers must hold c.mu.
func (c *Client) exchange(command string, timeout time.Duration) ([]string, error) {
	if !c.connected {
		return nil, fmt.Errorf("spectrometer not connected")
	}

	if err := c.conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	if _, err := fmt.Fprintf(c.conn, "%s\r\n", command); err != nil {
		return nil, fmt.Errorf("failed to send command %q: %w", command, err)
	}

	line, err := c.reader.ReadString('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response to %q: %w", command, err)
	}

	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "ERR") {
		return nil, fmt.Errorf("instrument error: %s", strings.TrimSpace(strings.TrimPrefix(line, "ERR")))
	}
	if !strings.HasPrefix(line, "OK") {
		return nil, fmt.Errorf("unexpected response %q", line)
	}

	return strings.Fields(strings.TrimPrefix(line, "OK")), nil
}
