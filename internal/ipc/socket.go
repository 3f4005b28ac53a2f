package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"
)

var ErrAlreadyRunning = errors.New("socket is in use by a running process")

const probeTimeout = 200 * time.Millisecond

// SocketPath is the command socket for the process with the given pid.
func SocketPath(dir string, pid int) string {
	return filepath.Join(dir, strconv.Itoa(pid)+".sock")
}

// Listen binds a unix socket at path, creating its directory. A socket file
// nobody listens on is replaced; one that accepts connections is left alone.
func Listen(ctx context.Context, path string) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("ensure socket dir: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		if !errors.Is(err, syscall.EADDRINUSE) {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}

		// Only a socket nobody listens on is ours to remove, whatever
		// answers on a live one.
		_, sendErr := Send(ctx, path, "", probeTimeout)
		switch {
		case sendErr == nil:
			return nil, ErrAlreadyRunning
		case !isSocketMissing(sendErr) && !isConnectionRefused(sendErr):
			return nil, fmt.Errorf("probe existing socket %s: %w", path, sendErr)
		}
		if removeErr := os.Remove(path); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale socket %s: %w", path, removeErr)
		}

		listener, err = net.Listen("unix", path)
		if err != nil {
			return nil, fmt.Errorf("listen unix %s: %w", path, err)
		}
	}

	_ = os.Chmod(path, 0o600)
	return listener, nil
}
