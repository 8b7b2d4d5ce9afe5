// Package rmio gives the rest of the application one handle type for the
// kinds of I/O it uses: files, network connections, serial ports and
// pipes to child processes. A handle is opened from a source string such
// as "file:/etc/roadmap/traffic.yaml" or "serial:/dev/ttyUSB0?baud=9600".
package rmio

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Subsystem identifies the kind of I/O behind a handle.
type Subsystem int

const (
	File Subsystem = iota + 1
	Net
	Serial
	Pipe
)

func (s Subsystem) String() string {
	switch s {
	case File:
		return "file"
	case Net:
		return "net"
	case Serial:
		return "serial"
	case Pipe:
		return "pipe"
	}
	return "invalid"
}

var ErrUnknownSubsystem = errors.New("rmio: unknown subsystem")

const (
	defaultBaudRate = 9600
	dialTimeout     = 5 * time.Second
	serialTimeout   = 200 * time.Millisecond
)

// IO is an open handle. Exactly one of the OS-level fields is set,
// according to subsystem.
type IO struct {
	subsystem Subsystem
	source    string

	file   *os.File
	conn   net.Conn
	port   serial.Port
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
}

// Open parses source and opens the corresponding handle.
//
//	file:<path>             (read-only)
//	tcp:<host:port>
//	serial:<device>[?baud=N]
//	pipe:<command> [args...]
func Open(source string) (*IO, error) {
	kind, rest, ok := strings.Cut(source, ":")
	if !ok || rest == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSubsystem, source)
	}

	switch kind {
	case "file":
		f, err := os.Open(rest)
		if err != nil {
			return nil, fmt.Errorf("rmio: %w", err)
		}
		return &IO{subsystem: File, source: source, file: f}, nil

	case "tcp":
		conn, err := net.DialTimeout("tcp", rest, dialTimeout)
		if err != nil {
			return nil, fmt.Errorf("rmio: dial %s: %w", rest, err)
		}
		return &IO{subsystem: Net, source: source, conn: conn}, nil

	case "serial":
		return openSerial(source, rest)

	case "pipe":
		return openPipe(source, rest)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownSubsystem, kind)
}

func openSerial(source, rest string) (*IO, error) {
	device, query, _ := strings.Cut(rest, "?")
	baud := defaultBaudRate
	if query != "" {
		values, err := url.ParseQuery(query)
		if err != nil {
			return nil, fmt.Errorf("rmio: %s: %w", source, err)
		}
		if v := values.Get("baud"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("rmio: %s: bad baud rate %q", source, v)
			}
			baud = n
		}
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(device, mode)
	if err != nil {
		return nil, fmt.Errorf("rmio: failed to open %s: %w", device, err)
	}
	if err := port.SetReadTimeout(serialTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("rmio: %s: %w", device, err)
	}
	return &IO{subsystem: Serial, source: source, port: port}, nil
}

func openPipe(source, rest string) (*IO, error) {
	args := strings.Fields(rest)
	if len(args) == 0 {
		return nil, fmt.Errorf("rmio: %s: empty command", source)
	}
	cmd := exec.Command(args[0], args[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("rmio: %s: %w", source, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("rmio: %s: %w", source, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("rmio: start %s: %w", args[0], err)
	}
	return &IO{subsystem: Pipe, source: source, cmd: cmd, stdin: stdin, stdout: stdout}, nil
}

// Subsystem reports the kind of handle.
func (h *IO) Subsystem() Subsystem { return h.subsystem }

func (h *IO) String() string { return h.source }

func (h *IO) Read(p []byte) (int, error) {
	switch h.subsystem {
	case File:
		return h.file.Read(p)
	case Net:
		return h.conn.Read(p)
	case Serial:
		n, err := h.port.Read(p)
		if n == 0 && err == nil {
			// A read timeout on a serial port returns no data and no error.
			return 0, io.EOF
		}
		return n, err
	case Pipe:
		return h.stdout.Read(p)
	}
	return 0, ErrUnknownSubsystem
}

func (h *IO) Write(p []byte) (int, error) {
	switch h.subsystem {
	case File:
		return h.file.Write(p)
	case Net:
		return h.conn.Write(p)
	case Serial:
		return h.port.Write(p)
	case Pipe:
		return h.stdin.Write(p)
	}
	return 0, ErrUnknownSubsystem
}

// Close releases the handle. For pipes it closes both ends and waits for
// the child; a child still writing is stopped by the closed stdout.
func (h *IO) Close() error {
	switch h.subsystem {
	case File:
		return h.file.Close()
	case Net:
		return h.conn.Close()
	case Serial:
		return h.port.Close()
	case Pipe:
		inErr := h.stdin.Close()
		outErr := h.stdout.Close()
		if err := h.cmd.Wait(); err != nil {
			return fmt.Errorf("rmio: %s: %w", h.source, err)
		}
		return errors.Join(inErr, outErr)
	}
	return ErrUnknownSubsystem
}
