//go:build linux

package notification

import "golang.org/x/sys/unix"

// createWakeFd creates an eventfd for cross-goroutine wake-up (Linux). The
// same fd serves as both the read and write end.
func createWakeFd() (readFD, writeFD int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func closeWakeFd(readFD, writeFD int) error {
	if readFD >= 0 {
		return unix.Close(readFD)
	}
	return nil
}

func signalWakeFd(writeFD int) error {
	var buf [8]byte
	buf[7] = 1
	_, err := unix.Write(writeFD, buf[:])
	if err == unix.EAGAIN {
		// already has a pending wake-up; nothing more to do
		return nil
	}
	return err
}

func drainWakeFd(readFD int) {
	var buf [8]byte
	for {
		if _, err := unix.Read(readFD, buf[:]); err != nil {
			return
		}
	}
}
