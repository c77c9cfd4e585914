package emh1_modbus

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"github.com/goburrow/serial"
)

const (
	// DefaultReadTimeout bounds every blocking read. A timed out read is
	// "no response", an expected outcome on this link, not an error.
	DefaultReadTimeout = 1 * time.Second

	// maxLineChars guards ReadLine against a link that streams garbage
	// without ever sending a line terminator.
	maxLineChars = 512
)

// Transport owns the byte-level connection to the charger. Implementations
// are not safe for concurrent use: the protocol allows exactly one in-flight
// request/response pair, serialized by the Device that owns the transport.
type Transport interface {
	Open() error
	Close() error
	// WriteFrame writes a full encoded frame.
	WriteFrame(frame []byte) error
	// ReadLine blocks until a '\n' terminated line or the read timeout.
	// A timeout yields (nil, nil).
	ReadLine() ([]byte, error)
	// ClearInput discards unread bytes so that a stale tail of a garbage
	// response cannot leak into the next transaction.
	ClearInput()
}

// serialTransport drives a local serial port: 8 data bits, even parity,
// 1 stop bit, as the eMH1 expects.
type serialTransport struct {
	config serial.Config
	port   serial.Port
}

// NewSerialTransport prepares a serial transport for the given device path
// and baud rate. The port is acquired on Open, not here.
func NewSerialTransport(address string, baudRate uint) Transport {
	return &serialTransport{
		config: serial.Config{
			Address:  address,
			BaudRate: int(baudRate),
			DataBits: 8,
			Parity:   "E",
			StopBits: 1,
			Timeout:  DefaultReadTimeout,
		},
	}
}

func (t *serialTransport) Open() error {
	if t.port != nil {
		return nil
	}
	port, err := serial.Open(&t.config)
	if err != nil {
		return fmt.Errorf("emh1: open %s: %w", t.config.Address, err)
	}
	t.port = port
	return nil
}

func (t *serialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	port := t.port
	t.port = nil
	return port.Close()
}

func (t *serialTransport) WriteFrame(frame []byte) error {
	if t.port == nil {
		return ErrPortClosed
	}
	_, err := t.port.Write(frame)
	return err
}

func (t *serialTransport) ReadLine() ([]byte, error) {
	if t.port == nil {
		return nil, ErrPortClosed
	}
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := t.port.Read(buf)
		if err != nil {
			if err == serial.ErrTimeout {
				if len(line) > 0 {
					return line, nil
				}
				return nil, nil
			}
			return nil, err
		}
		if n == 0 {
			continue
		}
		line = append(line, buf[0])
		if buf[0] == '\n' || len(line) >= maxLineChars {
			return line, nil
		}
	}
}

func (t *serialTransport) ClearInput() {
	if t.port == nil {
		return
	}
	buf := make([]byte, 64)
	for {
		n, err := t.port.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}

// tcpTransport drives a serial line tunneled over TCP (ser2net style).
type tcpTransport struct {
	address string
	timeout time.Duration
	conn    net.Conn
	reader  *bufio.Reader
}

// NewTCPTransport prepares a transport for a host:port tunneled serial link.
func NewTCPTransport(address string) Transport {
	return &tcpTransport{
		address: address,
		timeout: DefaultReadTimeout,
	}
}

func (t *tcpTransport) Open() error {
	if t.conn != nil {
		return nil
	}
	conn, err := net.DialTimeout("tcp", t.address, 5*time.Second)
	if err != nil {
		return fmt.Errorf("emh1: connect %s: %w", t.address, err)
	}
	t.conn = conn
	t.reader = bufio.NewReader(conn)
	return nil
}

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	conn := t.conn
	t.conn = nil
	t.reader = nil
	return conn.Close()
}

func (t *tcpTransport) WriteFrame(frame []byte) error {
	if t.conn == nil {
		return ErrPortClosed
	}
	_, err := t.conn.Write(frame)
	return err
}

func (t *tcpTransport) ReadLine() ([]byte, error) {
	if t.conn == nil {
		return nil, ErrPortClosed
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(t.timeout)); err != nil {
		return nil, err
	}
	line, err := t.reader.ReadBytes('\n')
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			if len(line) > 0 {
				return line, nil
			}
			return nil, nil
		}
		return nil, err
	}
	return line, nil
}

func (t *tcpTransport) ClearInput() {
	if t.conn == nil {
		return
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond)); err != nil {
		return
	}
	buf := make([]byte, 64)
	for {
		n, err := t.reader.Read(buf)
		if err != nil || n == 0 {
			return
		}
	}
}
