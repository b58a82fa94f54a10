// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.bug.st/serial"
)

// Transport is a raw byte stream to the thermostat
type Transport interface {
	io.Reader
	io.Writer
	io.Closer
}

// Transport kinds
const (
	KindTCP       = "tcp"
	KindWebSocket = "ws"
	KindSerial    = "serial"
)

// DefaultPort is the thermostat's listening port
const DefaultPort = 5000

const (
	defaultDialTimeout = 5 * time.Second
	tcpKeepAlive       = 15 * time.Second
)

// Endpoint describes where and how to reach the thermostat
type Endpoint struct {
	Kind        string
	Address     string // host:port, ws(s):// URL or serial device path
	Baud        int    // serial only
	DialTimeout time.Duration
}

// String returns a human-readable description of the endpoint
func (e Endpoint) String() string {
	switch e.Kind {
	case KindSerial:
		return fmt.Sprintf("Serial: %s @ %d baud", e.Address, e.Baud)
	case KindWebSocket:
		return fmt.Sprintf("WebSocket: %s", e.Address)
	default:
		return fmt.Sprintf("TCP: %s", e.Address)
	}
}

// ParseEndpoint resolves an address and optional transport name into an
// Endpoint. The transport is inferred from the address scheme when empty:
//
//	192.168.50.92           tcp, port 5000
//	tcp://host:5000         tcp
//	ws://bridge:8081/ws     websocket (wss:// also accepted)
//	serial:///dev/ttyUSB0   serial
//	/dev/ttyUSB0            serial (with transport "serial")
func ParseEndpoint(addr, transport string, baud int) (Endpoint, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return Endpoint{}, errors.New("empty address")
	}

	kind := strings.ToLower(strings.TrimSpace(transport))
	scheme := ""
	if i := strings.Index(addr, "://"); i > 0 {
		scheme = strings.ToLower(addr[:i])
	}

	inferred := ""
	switch scheme {
	case "":
	case "tcp":
		inferred = KindTCP
		addr = addr[len("tcp://"):]
	case "ws", "wss":
		inferred = KindWebSocket
	case "serial":
		inferred = KindSerial
		addr = addr[len("serial://"):]
	default:
		return Endpoint{}, fmt.Errorf("unsupported address scheme %q", scheme)
	}

	switch {
	case kind == "":
		kind = inferred
		if kind == "" {
			kind = KindTCP
		}
	case inferred != "" && inferred != kind:
		return Endpoint{}, fmt.Errorf("address %q does not match transport %q", addr, kind)
	}

	ep := Endpoint{Kind: kind, Baud: baud, DialTimeout: defaultDialTimeout}

	switch kind {
	case KindTCP:
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			// No port given
			host, port = addr, strconv.Itoa(DefaultPort)
		}
		if host == "" {
			return Endpoint{}, fmt.Errorf("missing host in %q", addr)
		}
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return Endpoint{}, fmt.Errorf("invalid port %q", port)
		}
		ep.Address = net.JoinHostPort(host, port)

	case KindWebSocket:
		u, err := url.Parse(addr)
		if err != nil {
			return Endpoint{}, fmt.Errorf("invalid URL: %w", err)
		}
		if u.Scheme != "ws" && u.Scheme != "wss" {
			return Endpoint{}, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
		}
		if u.Host == "" {
			return Endpoint{}, fmt.Errorf("missing host in %q", addr)
		}
		ep.Address = u.String()

	case KindSerial:
		if addr == "" {
			return Endpoint{}, errors.New("missing serial device path")
		}
		if baud <= 0 {
			return Endpoint{}, fmt.Errorf("invalid baud rate %d", baud)
		}
		ep.Address = addr

	default:
		return Endpoint{}, fmt.Errorf("unknown transport %q (want tcp, ws or serial)", kind)
	}

	return ep, nil
}

// DialFunc opens a transport for an endpoint
type DialFunc func(ctx context.Context, ep Endpoint) (Transport, error)

// Dial opens the transport an endpoint describes. Failures are *ConnectError.
func Dial(ctx context.Context, ep Endpoint) (Transport, error) {
	timeout := ep.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		t   Transport
		err error
	)
	switch ep.Kind {
	case KindTCP, "":
		t, err = dialTCP(ctx, ep.Address)
	case KindWebSocket:
		t, err = dialWebSocket(ctx, ep.Address, timeout)
	case KindSerial:
		t, err = openSerial(ep.Address, ep.Baud)
	default:
		err = fmt.Errorf("unknown transport %q", ep.Kind)
	}
	if err != nil {
		return nil, &ConnectError{Addr: ep.Address, Err: err}
	}
	return t, nil
}

func dialTCP(ctx context.Context, addr string) (Transport, error) {
	d := net.Dialer{KeepAlive: tcpKeepAlive}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// SerialTransport wraps a serial port
type SerialTransport struct {
	port serial.Port
}

func (s *SerialTransport) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialTransport) Close() error {
	return s.port.Close()
}

func openSerial(portName string, baudRate int) (Transport, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", portName, err)
	}
	return &SerialTransport{port: port}, nil
}

// WebSocketTransport presents a WebSocket bridge as a byte stream. Each
// frame carries one or more protocol lines; frame boundaries carry no
// meaning and are erased by the line framer.
type WebSocketTransport struct {
	conn      *websocket.Conn
	buf       []byte
	bufOffset int
	closed    bool // read side has failed; only touched by the reader
}

// errWebSocketClosed is returned when reading after the socket has failed
var errWebSocketClosed = errors.New("websocket connection closed")

func (w *WebSocketTransport) Read(p []byte) (int, error) {
	if w.closed {
		return 0, errWebSocketClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return 0, io.EOF
			}
			return 0, err
		}

		// Bridges may use either frame type for text lines
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketTransport) Write(p []byte) (int, error) {
	if err := w.conn.WriteMessage(websocket.TextMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (w *WebSocketTransport) Close() error {
	return w.conn.Close()
}

func dialWebSocket(ctx context.Context, wsURL string, timeout time.Duration) (Transport, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: timeout,
	}

	conn, resp, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}
