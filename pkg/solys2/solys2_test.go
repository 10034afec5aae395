package solys2

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/goa-uva/solys2scope/pkg/config"
)

// fakeTracker runs a minimal SOLYS2 protocol server on a loopback listener
// and returns the config needed to connect to it. The handler maps a
// received command line to its response line.
func fakeTracker(t *testing.T, handler func(command string) string) config.Solys2Config {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to start fake tracker: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				scanner := bufio.NewScanner(conn)
				for scanner.Scan() {
					command := strings.TrimSpace(scanner.Text())
					fmt.Fprintf(conn, "%s\r\n", handler(command))
				}
			}(conn)
		}
	}()

	addr := listener.Addr().(*net.TCPAddr)
	return config.Solys2Config{
		Host:        "127.0.0.1",
		Port:        addr.Port,
		Password:    "solys",
		CommandRate: 1000, // Keep tests fast
	}
}

// okTracker answers every command as the real firmware would for an
// idle, healthy instrument.
func okTracker(t *testing.T) config.Solys2Config {
	return fakeTracker(t, func(command string) string {
		switch {
		case strings.HasPrefix(command, "PW "):
			return ">"
		case command == "PR 0":
			return ">"
		case command == "CP":
			return "> 123.4500 45.6700"
		case command == "AD":
			return "> 0.0500 -0.1000"
		case command == "VE":
			return "> SOLYS2 2.13"
		case strings.HasPrefix(command, "PO "),
			strings.HasPrefix(command, "AD "),
			command == "HO":
			return ">"
		default:
			return "NO 3"
		}
	})
}

func TestConnectAndClose(t *testing.T) {
	client := NewClient(okTracker(t))

	if client.IsConnected() {
		t.Error("Expected client to start disconnected")
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	if !client.IsConnected() {
		t.Error("Expected client to be connected after Connect")
	}

	// Connect on an already connected client is a no-op
	if err := client.Connect(); err != nil {
		t.Errorf("Second Connect failed: %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if client.IsConnected() {
		t.Error("Expected client to be disconnected after Close")
	}

	// Close on an already closed client is a no-op
	if err := client.Close(); err != nil {
		t.Errorf("Second Close failed: %v", err)
	}
}

func TestConnectRejectedPassword(t *testing.T) {
	cfg := fakeTracker(t, func(command string) string {
		if strings.HasPrefix(command, "PW ") {
			return "NO 16"
		}
		return ">"
	})

	client := NewClient(cfg)
	err := client.Connect()
	if err == nil {
		t.Fatal("Expected Connect to fail with rejected password")
	}
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Expected ProtocolError, got %v", err)
	}
	if protoErr.Code != 16 {
		t.Errorf("Error code = %d, want 16", protoErr.Code)
	}
	if client.IsConnected() {
		t.Error("Expected client to be disconnected after failed auth")
	}
}

func TestConnectUnreachable(t *testing.T) {
	// Port 1 on loopback is almost certainly closed
	client := NewClient(config.Solys2Config{Host: "127.0.0.1", Port: 1})
	if err := client.Connect(); err == nil {
		t.Error("Expected Connect to an unreachable host to fail")
		client.Close()
	}
}

func TestPosition(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	azimuth, zenith, err := client.Position()
	if err != nil {
		t.Fatalf("Position failed: %v", err)
	}
	if azimuth != 123.45 {
		t.Errorf("Azimuth = %v, want 123.45", azimuth)
	}
	if zenith != 45.67 {
		t.Errorf("Zenith = %v, want 45.67", zenith)
	}
}

func TestAdjustment(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	azimuth, zenith, err := client.Adjustment()
	if err != nil {
		t.Fatalf("Adjustment failed: %v", err)
	}
	if azimuth != 0.05 {
		t.Errorf("Azimuth adjustment = %v, want 0.05", azimuth)
	}
	if zenith != -0.10 {
		t.Errorf("Zenith adjustment = %v, want -0.10", zenith)
	}
}

func TestSetAzimuthRange(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.SetAzimuth(180.0); err != nil {
		t.Errorf("SetAzimuth(180) failed: %v", err)
	}
	if err := client.SetAzimuth(-1.0); err == nil {
		t.Error("Expected SetAzimuth(-1) to fail")
	}
	if err := client.SetAzimuth(360.5); err == nil {
		t.Error("Expected SetAzimuth(360.5) to fail")
	}
}

func TestSetZenithRange(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.SetZenith(45.0); err != nil {
		t.Errorf("SetZenith(45) failed: %v", err)
	}
	if err := client.SetZenith(90.5); err == nil {
		t.Error("Expected SetZenith(90.5) to fail")
	}
}

func TestAdjustmentLimits(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.AdjustAzimuth(0.2); err != nil {
		t.Errorf("AdjustAzimuth(0.2) failed: %v", err)
	}
	if err := client.AdjustAzimuth(0.21); err == nil {
		t.Error("Expected AdjustAzimuth(0.21) to fail")
	}
	if err := client.AdjustZenith(-0.2); err != nil {
		t.Errorf("AdjustZenith(-0.2) failed: %v", err)
	}
	if err := client.AdjustZenith(-0.25); err == nil {
		t.Error("Expected AdjustZenith(-0.25) to fail")
	}
}

func TestMoveTo(t *testing.T) {
	var mu sync.Mutex
	var commands []string
	cfg := fakeTracker(t, func(command string) string {
		mu.Lock()
		commands = append(commands, command)
		mu.Unlock()
		return ">"
	})

	client := NewClient(cfg)
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.MoveTo(123.4567, 45.0); err != nil {
		t.Fatalf("MoveTo failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	found := 0
	for _, command := range commands {
		if command == "PO 0 123.4567" || command == "PO 1 45.0000" {
			found++
		}
	}
	if found != 2 {
		t.Errorf("Expected both axis commands, got %v", commands)
	}
}

func TestCommandsRequireConnection(t *testing.T) {
	client := NewClient(config.Solys2Config{Host: "127.0.0.1", Port: 15000})

	if _, _, err := client.Position(); err == nil {
		t.Error("Expected Position to fail when disconnected")
	}
	if err := client.Home(); err == nil {
		t.Error("Expected Home to fail when disconnected")
	}
}

func TestHomeAndVersion(t *testing.T) {
	client := NewClient(okTracker(t))
	if err := client.Connect(); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer client.Close()

	if err := client.Home(); err != nil {
		t.Errorf("Home failed: %v", err)
	}
	version, err := client.Version()
	if err != nil {
		t.Fatalf("Version failed: %v", err)
	}
	if version != "SOLYS2 2.13" {
		t.Errorf("Version = %q, want \"SOLYS2 2.13\"", version)
	}
}

func TestProbe(t *testing.T) {
	if err := Probe(okTracker(t)); err != nil {
		t.Errorf("Probe failed: %v", err)
	}
	if err := Probe(config.Solys2Config{Host: "127.0.0.1", Port: 1}); err == nil {
		t.Error("Expected Probe of an unreachable host to fail")
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		line       string
		wantFields []string
		wantCode   int
		wantErr    bool
	}{
		{"> 1.0 2.0\r\n", []string{"1.0", "2.0"}, 0, false},
		{">\r\n", nil, 0, false},
		{"NO 7\r\n", nil, 7, true},
		{"NO\r\n", nil, 0, true},
		{"garbage\r\n", nil, 0, true},
	}

	for _, test := range tests {
		fields, err := parseResponse(test.line)
		if test.wantErr {
			if err == nil {
				t.Errorf("parseResponse(%q) expected error", test.line)
				continue
			}
			var protoErr *ProtocolError
			if errors.As(err, &protoErr) && protoErr.Code != test.wantCode {
				t.Errorf("parseResponse(%q) code = %d, want %d", test.line, protoErr.Code, test.wantCode)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseResponse(%q) failed: %v", test.line, err)
			continue
		}
		if len(fields) != len(test.wantFields) {
			t.Errorf("parseResponse(%q) = %v, want %v", test.line, fields, test.wantFields)
			continue
		}
		for i := range fields {
			if fields[i] != test.wantFields[i] {
				t.Errorf("parseResponse(%q) field %d = %q, want %q", test.line, i, fields[i], test.wantFields[i])
			}
		}
	}
}

func TestProtocolErrorDescriptions(t *testing.T) {
	err := &ProtocolError{Code: 7}
	if !strings.Contains(err.Error(), "travel bounds") {
		t.Errorf("Error() = %q, expected travel bounds description", err.Error())
	}
	unknown := &ProtocolError{Code: 99}
	if !strings.Contains(unknown.Error(), "unknown") {
		t.Errorf("Error() = %q, expected unknown error description", unknown.Error())
	}
}
