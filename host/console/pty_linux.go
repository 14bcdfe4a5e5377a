package console

import (
	"fmt"
	"log/slog"
	"os"

	"golang.org/x/sys/unix"
)

// CreatePTY allocates a pseudo-terminal, symlinks its slave side at link,
// and returns the master side as a non-blocking Port. This is how the
// process presents a "serial port" to host software without real
// hardware: peers open the link as if it were a tty device.
func CreatePTY(link string, log *slog.Logger) (*Port, string, error) {
	master, err := unix.Open("/dev/ptmx", unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		te := classify("/dev/ptmx", err)
		ReportError(log, "pty open", te)
		return nil, "", te
	}
	// Unlock the slave side and discover its name.
	if err := unix.IoctlSetPointerInt(master, unix.TIOCSPTLCK, 0); err != nil {
		_ = unix.Close(master)
		return nil, "", classify("/dev/ptmx", err)
	}
	ptn, err := unix.IoctlGetInt(master, unix.TIOCGPTN)
	if err != nil {
		_ = unix.Close(master)
		return nil, "", classify("/dev/ptmx", err)
	}
	slave := fmt.Sprintf("/dev/pts/%d", ptn)

	if link != "" {
		_ = os.Remove(link)
		if err := os.Symlink(slave, link); err != nil {
			_ = unix.Close(master)
			return nil, "", classify(link, err)
		}
		// Group read/write, like a real serial device node.
		_ = os.Chmod(link, 0o660)
	}

	if err := setRaw(master); err != nil {
		ReportError(log, "pty termios", err)
	}

	p := &Port{path: slave, fd: master, log: log}
	if err := p.SetNonblocking(); err != nil {
		_ = unix.Close(master)
		return nil, "", err
	}
	return p, slave, nil
}
