package device

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Timer is a core.OverrideTimer backed by a Linux timerfd, the same
// kernel facility the original Rust daemon arms via nix's TimerFd — a
// file descriptor whose read blocks until the timer next expires, read
// by Loop's dedicated timer goroutine alongside one goroutine per
// grabbed input device.
type Timer struct {
	fd int
}

// NewTimer creates a disarmed timerfd. The fd is left blocking: Loop
// dedicates a goroutine to reading it, the same one-goroutine-per-source
// shape it uses for every grabbed input device.
func NewTimer() (*Timer, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("timerfd_create: %w", err)
	}
	return &Timer{fd: fd}, nil
}

// Set arms the timer to fire once after d.
func (t *Timer) Set(d time.Duration) error {
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd_settime: %w", err)
	}
	return nil
}

// Unset disarms the timer. Unsetting an already-disarmed timer is a no-op.
func (t *Timer) Unset() error {
	spec := unix.ItimerSpec{}
	if err := unix.TimerfdSettime(t.fd, 0, &spec, nil); err != nil {
		return fmt.Errorf("timerfd_settime disarm: %w", err)
	}
	return nil
}

// WaitForFire blocks until the timer next expires, returning the number
// of times it has fired since the last read (always 1 for the one-shot
// usage here) or an error if the fd was closed out from under it.
func (t *Timer) WaitForFire() (uint64, error) {
	var buf [8]byte
	n, err := unix.Read(t.fd, buf[:])
	if err != nil {
		return 0, fmt.Errorf("read timerfd: %w", err)
	}
	if n != 8 {
		return 0, fmt.Errorf("short read from timerfd: %d bytes", n)
	}
	count := uint64(buf[0]) | uint64(buf[1])<<8 | uint64(buf[2])<<16 | uint64(buf[3])<<24 |
		uint64(buf[4])<<32 | uint64(buf[5])<<40 | uint64(buf[6])<<48 | uint64(buf[7])<<56
	return count, nil
}

// Close releases the timerfd.
func (t *Timer) Close() error {
	return unix.Close(t.fd)
}
