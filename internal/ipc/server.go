// Package ipc serves the local command socket: one raw text message in, one
// reply out, one connection at a time.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DefaultMaxMessageSize bounds the single read taken per connection. Longer
// messages are truncated.
const DefaultMaxMessageSize = 1024

// Handler turns one request message into a reply. A returned error is fatal
// to the server.
type Handler interface {
	Handle(ctx context.Context, msg string) (string, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(context.Context, string) (string, error)

func (f HandlerFunc) Handle(ctx context.Context, msg string) (string, error) {
	return f(ctx, msg)
}

type Server struct {
	Handler        Handler
	MaxMessageSize int
	Logger         *zap.Logger
}

// Serve accepts clients until ctx is cancelled, the listener is closed, or
// the handler fails. Connections are handled strictly in order; a client
// whose request is in flight when Serve stops has its connection closed
// without a reply.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	defer listener.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = listener.Close()
		case <-stop:
		}
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept IPC connection: %w", err)
		}

		if err := s.serveConn(ctx, conn, logger); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn, logger *zap.Logger) error {
	defer conn.Close()
	// A client that never writes must not hold Serve past cancellation.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	size := s.MaxMessageSize
	if size <= 0 {
		size = DefaultMaxMessageSize
	}
	buf := make([]byte, size)
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		if ctx.Err() != nil {
			return nil
		}
		logger.Warn("read request failed", zap.Error(err))
		return nil
	}
	if !utf8.Valid(buf[:n]) {
		logger.Warn("dropping request with invalid UTF-8", zap.Int("bytes", n))
		return nil
	}
	msg := string(buf[:n])

	reply, err := s.Handler.Handle(ctx, msg)
	if err != nil {
		return fmt.Errorf("handle %q: %w", msg, err)
	}
	logger.Debug("request", zap.String("msg", msg), zap.String("reply", reply))

	if _, err := conn.Write([]byte(reply)); err != nil {
		logger.Warn("write reply failed", zap.Error(err))
	}
	return nil
}
