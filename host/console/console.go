// Package console owns the process's console transport: a single duplex
// byte channel (serial device, PTY, or pipe) configured for non-blocking
// I/O. It is the host-side stand-in for a microcontroller's serial port:
// reads never block, "no data" is a zero-length result rather than an
// error, and transport failures are reported without taking the process
// down.
//
// The package targets Linux hosts, like the firmware shim it replaces.
package console

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"hostmcu-go/errcode"
)

// TransportError classifies a console transport failure.
type TransportError struct {
	Kind errcode.Code // TransportNotFound | TransportPermissionDenied | TransportInUse | TransportIO | TransportClosed
	Path string
	Err  error
}

func (e *TransportError) Error() string {
	msg := string(e.Kind)
	if e.Path != "" {
		msg += ": " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error      { return e.Err }
func (e *TransportError) Code() errcode.Code { return e.Kind }

func classify(path string, err error) *TransportError {
	kind := errcode.TransportIO
	switch {
	case errors.Is(err, unix.ENOENT):
		kind = errcode.TransportNotFound
	case errors.Is(err, unix.EACCES), errors.Is(err, unix.EPERM):
		kind = errcode.TransportPermissionDenied
	case errors.Is(err, unix.EBUSY):
		kind = errcode.TransportInUse
	}
	return &TransportError{Kind: kind, Path: path, Err: err}
}

// Port is the Transport Handle: one process-owned non-blocking duplex
// channel. At most one Port exists per runtime instance.
type Port struct {
	path string
	log  *slog.Logger

	mu      sync.Mutex
	fd      int
	closed  bool
	lastErr error
}

// Setup opens the named channel and configures it for non-blocking reads
// and writes. Failure is fatal to this setup attempt only; the caller
// decides whether to retry or abort.
func Setup(path string, log *slog.Logger) (*Port, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		te := classify(path, err)
		ReportError(log, "console setup", te)
		return nil, te
	}
	p := &Port{path: path, fd: fd, log: log}
	if err := p.SetNonblocking(); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	// Serial devices and PTYs get raw attributes; pipes report ENOTTY,
	// which is not a failure.
	if err := setRaw(fd); err != nil && !errors.Is(err, unix.ENOTTY) {
		ReportError(log, "console termios", err)
	}
	return p, nil
}

// FromFd wraps an already-open descriptor (a pipe in tests, an inherited
// fd in production). The descriptor is placed in non-blocking mode.
func FromFd(fd int, path string, log *slog.Logger) (*Port, error) {
	p := &Port{path: path, fd: fd, log: log}
	if err := p.SetNonblocking(); err != nil {
		return nil, err
	}
	return p, nil
}

// Path reports the channel identifier the port was opened with.
func (p *Port) Path() string { return p.path }

// Fd exposes the descriptor for poll integration.
func (p *Port) Fd() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fd
}

// LastErr reports the most recent transport error observed on this port.
func (p *Port) LastErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}

// SetNonblocking applies non-blocking semantics to the open descriptor.
// Idempotent: repeated calls have no additional effect.
func (p *Port) SetNonblocking() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return &TransportError{Kind: errcode.TransportClosed, Path: p.path}
	}
	if err := unix.SetNonblock(p.fd, true); err != nil {
		te := classify(p.path, err)
		p.lastErr = te
		return te
	}
	return nil
}

// Read drains available bytes without blocking. No pending data is the
// zero-length result (0, nil), never an error; only genuine transport
// failures return a TransportError.
func (p *Port) Read(buf []byte) (int, error) {
	p.mu.Lock()
	fd, closed := p.fd, p.closed
	p.mu.Unlock()
	if closed {
		return 0, &TransportError{Kind: errcode.TransportClosed, Path: p.path}
	}
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case err == nil:
			if n < 0 {
				n = 0
			}
			return n, nil
		case errors.Is(err, unix.EAGAIN):
			return 0, nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			te := classify(p.path, err)
			p.noteErr(te)
			return 0, te
		}
	}
}

// Write sends bytes without blocking. A full kernel buffer results in a
// short (possibly zero) count with a nil error; the caller re-offers the
// remainder on a later pass.
func (p *Port) Write(b []byte) (int, error) {
	p.mu.Lock()
	fd, closed := p.fd, p.closed
	p.mu.Unlock()
	if closed {
		return 0, &TransportError{Kind: errcode.TransportClosed, Path: p.path}
	}
	total := 0
	for total < len(b) {
		n, err := unix.Write(fd, b[total:])
		switch {
		case err == nil:
			total += n
		case errors.Is(err, unix.EAGAIN):
			return total, nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			te := classify(p.path, err)
			p.noteErr(te)
			return total, te
		}
	}
	return total, nil
}

// Sleep suspends the caller for at most d, returning early if console
// input arrives (so a pass can start processing it immediately) or if the
// poll is interrupted. Callers treat it as a best-effort delay.
func (p *Port) Sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	p.mu.Lock()
	fd, closed := p.fd, p.closed
	p.mu.Unlock()
	if closed {
		time.Sleep(d)
		return
	}
	ms := int(d.Milliseconds())
	if ms <= 0 {
		ms = 1
	}
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
	_, _ = unix.Poll(pfd, ms)
}

// Close releases the descriptor. Safe on a shutdown path even with
// conceptually in-flight I/O: non-blocking mode means there is no pending
// operation to cancel. Closing twice is a no-op.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	if err := unix.Close(p.fd); err != nil {
		return classify(p.path, err)
	}
	return nil
}

func (p *Port) noteErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
	ReportError(p.log, "console "+p.path, err)
}

// ReportError writes a human-readable description of err tagged with
// context to the operator log. It never fails and never panics; this is
// the last line of defense for otherwise-unhandled transport failures.
func ReportError(log *slog.Logger, context string, err error) {
	if log == nil {
		log = slog.Default()
	}
	if err == nil {
		return
	}
	log.Error("transport error", "context", context, "code", string(errcode.Of(err)), "err", err)
}
