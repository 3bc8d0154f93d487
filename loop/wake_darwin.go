//go:build darwin

package loop

import "golang.org/x/sys/unix"

// createWakeFd creates a self-pipe for the per-RunProtected wake-up device
// (Darwin has no eventfd equivalent; the self-pipe trick is the standard
// substitute).
func createWakeFd() (readFD, writeFD int, err error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return -1, -1, err
	}
	cleanup := func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	}
	if err := unix.SetNonblock(fds[0], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		cleanup()
		return -1, -1, err
	}
	unix.CloseOnExec(fds[0])
	unix.CloseOnExec(fds[1])
	return fds[0], fds[1], nil
}

func closeWakeFd(readFD, writeFD int) error {
	if readFD >= 0 {
		_ = unix.Close(readFD)
	}
	if writeFD >= 0 && writeFD != readFD {
		_ = unix.Close(writeFD)
	}
	return nil
}

func signalWakeFd(writeFD int) error {
	var buf [1]byte
	_, err := unix.Write(writeFD, buf[:])
	if err == unix.EAGAIN {
		return nil
	}
	return err
}

func drainWakeFd(readFD int) {
	var buf [64]byte
	for {
		if _, err := unix.Read(readFD, buf[:]); err != nil {
			return
		}
	}
}
