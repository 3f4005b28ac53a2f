// Package bridge runs one ssht process: a single ssh control connection, the
// command socket served against it, and the foreground tmux attach sharing
// it. Whichever of the socket server and the attach finishes first ends the
// bridge.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/simon/ssht/internal/config"
	"github.com/simon/ssht/internal/ipc"
	"github.com/simon/ssht/internal/remote"
	"github.com/simon/ssht/internal/state"
	"github.com/simon/ssht/internal/tmux"
)

const closeTimeout = 5 * time.Second

var (
	errForegroundExited = errors.New("foreground attach exited")
	errServerStopped    = errors.New("command socket closed")
)

// Session is the remote capability a bridge borrows for its lifetime.
type Session interface {
	tmux.Runner
	Attach(ctx context.Context, program string, args ...string) error
	Close(ctx context.Context) error
}

// ConnectFunc opens the bridge's one Session.
type ConnectFunc func(ctx context.Context, opts remote.Options) (Session, error)

// Registry records running bridges for discovery by other ssht commands.
type Registry interface {
	Register(b state.Bridge) error
	Unregister(pid int) error
}

type Bridge struct {
	Host     string // command-line host argument
	Target   config.Target
	Config   *config.Config
	Logger   *zap.Logger
	Registry Registry    // optional
	Connect  ConnectFunc // defaults to an OpenSSH control master
	PID      int         // defaults to os.Getpid()
	ID       string      // defaults to a random uuid
}

// ControlPath is the ssh control socket for the process with the given pid.
func ControlPath(dir string, pid int) string {
	return filepath.Join(dir, strconv.Itoa(pid)+".ssh")
}

func dialSSH(ctx context.Context, opts remote.Options) (Session, error) {
	s, err := remote.Connect(ctx, opts)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Run acquires the session and socket, serves until the attach exits, the
// server fails, or ctx is cancelled, then releases everything. Release is
// best-effort: failures are logged and never replace Run's result.
func (b *Bridge) Run(ctx context.Context) error {
	cfg := b.Config
	if cfg == nil {
		cfg = config.Default()
	}
	pid := b.PID
	if pid == 0 {
		pid = os.Getpid()
	}
	id := b.ID
	if id == "" {
		id = uuid.NewString()
	}
	connect := b.Connect
	if connect == nil {
		connect = dialSSH
	}
	logger := b.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.Int("pid", pid), zap.String("bridge", id), zap.String("host", b.Host))

	if err := os.MkdirAll(cfg.SocketDir, 0o700); err != nil {
		return fmt.Errorf("create socket dir: %w", err)
	}
	socketPath := ipc.SocketPath(cfg.SocketDir, pid)
	controlPath := ControlPath(cfg.SocketDir, pid)

	// A control socket at our pid can only be left over from a dead process.
	if err := os.Remove(controlPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove stale control socket: %w", err)
	}

	session, err := connect(ctx, cfg.SSHOptions(b.Target, controlPath))
	if err != nil {
		return fmt.Errorf("connect %s: %w", b.Target.Destination, err)
	}
	logger.Info("ssh connected", zap.String("destination", b.Target.Destination), zap.String("control_path", controlPath))
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
		defer cancel()
		if err := session.Close(closeCtx); err != nil {
			logger.Warn("close ssh session failed", zap.Error(err))
			return
		}
		logger.Info("ssh session closed")
	}()

	listener, err := ipc.Listen(ctx, socketPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = listener.Close()
		if err := os.Remove(socketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn("remove socket failed", zap.String("socket", socketPath), zap.Error(err))
		}
	}()
	logger.Info("listening", zap.String("socket", socketPath))

	if b.Registry != nil {
		entry := state.Bridge{
			PID:         pid,
			ID:          id,
			Host:        b.Host,
			Destination: b.Target.Destination,
			Socket:      socketPath,
			ControlPath: controlPath,
			StartedAt:   time.Now(),
		}
		if err := b.Registry.Register(entry); err != nil {
			logger.Warn("register bridge failed", zap.Error(err))
		} else {
			defer func() {
				if err := b.Registry.Unregister(pid); err != nil {
					logger.Warn("unregister bridge failed", zap.Error(err))
				}
			}()
		}
	}

	return race(ctx, session, listener, cfg, logger)
}

// race runs the command server and the foreground attach until the first of
// them returns. The loser's context is cancelled: the listener closes, so a
// client mid-request gets no reply, and the attach's ssh process is killed.
func race(ctx context.Context, session Session, listener net.Listener, cfg *config.Config, logger *zap.Logger) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		srv := &ipc.Server{
			Handler:        tmux.NewNavigator(session),
			MaxMessageSize: cfg.MaxMessageSize,
			Logger:         logger,
		}
		if err := srv.Serve(gctx, listener); err != nil {
			return err
		}
		return errServerStopped
	})

	g.Go(func() error {
		argv := tmux.AttachArgs(cfg.Session)
		err := session.Attach(gctx, argv[0], argv[1:]...)
		if err != nil && gctx.Err() == nil {
			logger.Info("foreground attach ended with error", zap.Error(err))
		}
		return errForegroundExited
	})

	err := g.Wait()
	switch {
	case errors.Is(err, errForegroundExited):
		logger.Info("foreground attach exited")
		return nil
	case errors.Is(err, errServerStopped), ctx.Err() != nil:
		logger.Info("bridge stopped", zap.NamedError("cause", context.Cause(ctx)))
		return nil
	default:
		logger.Error("command server failed", zap.Error(err))
		return err
	}
}
