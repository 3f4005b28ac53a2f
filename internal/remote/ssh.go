// Package remote owns the one persistent ssh connection a bridge talks
// through. The connection is an OpenSSH control master; every command and the
// foreground attach are multiplexed over its control socket.
package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/term"
)

var (
	// ErrTransport means ssh itself failed, as opposed to the remote command.
	ErrTransport = errors.New("ssh transport failure")
	// ErrNotConnected is returned for calls on a closed session.
	ErrNotConnected = errors.New("ssh session is not connected")
)

// ssh exits with 255 when the error is its own rather than the remote command's.
const sshFailureStatus = 255

// Known-host policies accepted by Options.KnownHosts.
const (
	KnownHostsStrict    = "strict"
	KnownHostsAcceptNew = "accept-new"
	KnownHostsOff       = "off"
)

type Options struct {
	Destination string // user@host or an ssh_config alias
	Port        int
	SSHKey      string
	KnownHosts  string
	ControlPath string
	Binary      string // defaults to "ssh"
}

// Result is what a remote command produced. A non-zero ExitCode is not an
// error; callers decide what it means.
type Result struct {
	Stdout   []byte
	ExitCode int
}

// Session is a connected control master.
type Session struct {
	opts Options

	mu     sync.Mutex
	closed bool
}

// Connect starts a backgrounded control master for opts.Destination and
// verifies it answers.
func Connect(ctx context.Context, opts Options) (*Session, error) {
	if opts.Destination == "" {
		return nil, errors.New("ssh destination is empty")
	}
	if opts.ControlPath == "" {
		return nil, errors.New("ssh control path is empty")
	}
	if opts.Binary == "" {
		opts.Binary = "ssh"
	}

	s := &Session{opts: opts}

	// The backgrounded master inherits stderr and never closes it, so it
	// must be a file rather than a pipe or Run would wait forever.
	errFile, err := os.CreateTemp("", "ssht-connect-*.log")
	if err != nil {
		return nil, fmt.Errorf("create ssh log: %w", err)
	}
	defer os.Remove(errFile.Name())
	defer errFile.Close()

	cmd := exec.CommandContext(ctx, opts.Binary, s.masterArgs()...)
	cmd.Stderr = errFile
	if err := cmd.Run(); err != nil {
		stderr, _ := os.ReadFile(errFile.Name())
		return nil, wrapSSHError(err, string(stderr), "connect "+opts.Destination)
	}

	if err := s.Check(ctx); err != nil {
		_ = s.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	return s, nil
}

func (s *Session) ControlPath() string { return s.opts.ControlPath }

func (s *Session) masterArgs() []string {
	args := []string{
		"-S", s.opts.ControlPath,
		"-M", "-f", "-N",
		"-o", "ControlPersist=yes",
		"-o", "BatchMode=yes",
		"-o", "StrictHostKeyChecking=" + strictHostKeyChecking(s.opts.KnownHosts),
	}
	if s.opts.Port > 0 {
		args = append(args, "-p", strconv.Itoa(s.opts.Port))
	}
	if s.opts.SSHKey != "" {
		args = append(args, "-i", s.opts.SSHKey)
	}
	return append(args, s.opts.Destination)
}

// muxArgs builds argv for a client riding on the control socket. ssh ignores
// the destination when -S is given, so "none" stands in for it.
func (s *Session) muxArgs(extra ...string) []string {
	args := append([]string{}, extra...)
	return append(args, "-S", s.opts.ControlPath, "none")
}

func strictHostKeyChecking(mode string) string {
	switch mode {
	case KnownHostsAcceptNew:
		return "accept-new"
	case KnownHostsOff:
		return "no"
	default:
		return "yes"
	}
}

// Run executes program with args on the remote host and captures stdout.
// Each argument is shell-quoted, so tmux formats like #{pane_at_top}
// reach tmux untouched.
func (s *Session) Run(ctx context.Context, program string, args ...string) (Result, error) {
	if s.isClosed() {
		return Result{}, ErrNotConnected
	}

	argv := s.muxArgs()
	argv = append(argv, RemoteCommand(program, args...))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.opts.Binary, argv...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return Result{Stdout: stdout.Bytes()}, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() != sshFailureStatus && exitErr.ExitCode() >= 0 {
		return Result{Stdout: stdout.Bytes(), ExitCode: exitErr.ExitCode()}, nil
	}
	return Result{}, wrapSSHError(err, stderr.String(), program)
}

// Check asks the control master whether it is still alive.
func (s *Session) Check(ctx context.Context) error {
	if s.isClosed() {
		return ErrNotConnected
	}
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.opts.Binary, s.muxArgs("-O", "check")...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapSSHError(err, stderr.String(), "check")
	}
	return nil
}

// Attach runs an interactive remote command on the control socket with the
// local terminal attached. It returns when the remote command exits or ctx
// is cancelled.
func (s *Session) Attach(ctx context.Context, program string, args ...string) error {
	if s.isClosed() {
		return ErrNotConnected
	}

	tty := "-t"
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		tty = "-T"
	}
	argv := s.muxArgs(tty)
	argv = append(argv, RemoteCommand(program, args...))

	cmd := exec.CommandContext(ctx, s.opts.Binary, argv...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Env = filterTMUX(os.Environ())
	return cmd.Run()
}

// Close stops the control master. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.opts.Binary, s.muxArgs("-O", "exit")...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return wrapSSHError(err, stderr.String(), "exit")
	}
	return nil
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func wrapSSHError(err error, stderr, op string) error {
	stderr = strings.TrimSpace(stderr)
	if stderr != "" {
		return fmt.Errorf("%w: ssh %s: %s", ErrTransport, op, stderr)
	}
	return fmt.Errorf("%w: ssh %s: %w", ErrTransport, op, err)
}

// RemoteCommand joins program and args into one string for the remote shell.
func RemoteCommand(program string, args ...string) string {
	parts := make([]string, 0, len(args)+1)
	parts = append(parts, shellQuote(program))
	for _, a := range args {
		parts = append(parts, shellQuote(a))
	}
	return strings.Join(parts, " ")
}

// shellQuote wraps a string in single quotes, escaping any single quotes inside.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "'\"'\"'") + "'"
}

// filterTMUX removes the TMUX env var so ssh does not leak the local tmux
// context into the remote attach.
func filterTMUX(env []string) []string {
	filtered := make([]string, 0, len(env))
	for _, e := range env {
		if !strings.HasPrefix(e, "TMUX=") {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
