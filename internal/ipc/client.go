package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"
	"time"

	"github.com/simon/ssht/internal/protocol"
)

// Send delivers one message to the socket at path and returns the reply.
func Send(ctx context.Context, path, msg string, timeout time.Duration) (string, error) {
	dialer := net.Dialer{Timeout: timeout}
	conn, err := dialer.DialContext(ctx, "unix", path)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return "", fmt.Errorf("set deadline: %w", err)
		}
	}

	if _, err := io.WriteString(conn, msg); err != nil {
		return "", fmt.Errorf("write request: %w", err)
	}
	// Half-close so an empty message still reaches the server as EOF.
	if uc, ok := conn.(*net.UnixConn); ok {
		if err := uc.CloseWrite(); err != nil {
			return "", fmt.Errorf("close write: %w", err)
		}
	}

	reply, err := io.ReadAll(conn)
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return string(reply), nil
}

// Probe checks whether something is answering on path. It sends an empty
// message, which a bridge answers without touching the remote host.
func Probe(ctx context.Context, path string, timeout time.Duration) (bool, error) {
	reply, err := Send(ctx, path, "", timeout)
	if err == nil {
		return protocol.IsUnrecognized(reply), nil
	}
	if isSocketMissing(err) || isConnectionRefused(err) {
		return false, nil
	}
	return false, fmt.Errorf("probe socket: %w", err)
}

// isSocketMissing reports absent-socket failures.
func isSocketMissing(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, os.ErrNotExist)
}

// isConnectionRefused reports no-listener failures.
func isConnectionRefused(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, syscall.ECONNREFUSED)
}
