// Package tmux translates pane-navigation requests into tmux queries and
// mutations run through a Runner.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/simon/ssht/internal/protocol"
)

const tmuxBin = "tmux"

// notAtEdge is the exact output of a pane_at_* format when the focused pane
// is not on that edge, i.e. a neighbour exists.
var notAtEdge = []byte("0\n")

// edgeName maps a direction to tmux's pane_at_* suffix. Up and Down use
// top/bottom; Left and Right are named as-is.
func edgeName(d protocol.Direction) string {
	switch d {
	case protocol.Up:
		return "top"
	case protocol.Down:
		return "bottom"
	default:
		return d.String()
	}
}

// EdgeFormat returns the tmux format reporting whether the active pane sits
// on the edge facing d, e.g. "#{pane_at_top}".
func EdgeFormat(d protocol.Direction) string {
	return "#{pane_at_" + edgeName(d) + "}"
}

// SelectFlag returns the select-pane flag for d: -U, -D, -L or -R.
func SelectFlag(d protocol.Direction) string {
	return "-" + strings.ToUpper(d.String()[:1])
}

// AttachArgs is the tmux argv for the foreground UI: attach to session,
// creating it when missing.
func AttachArgs(session string) []string {
	return []string{tmuxBin, "new-session", "-A", "-s", session}
}

// Navigator answers has_pane/move_pane against one tmux server.
type Navigator struct {
	runner Runner
}

func NewNavigator(r Runner) *Navigator {
	return &Navigator{runner: r}
}

// PaneInDirection reports whether a pane exists beyond the active pane in
// direction d. Only output of exactly "0\n" counts as yes.
func (n *Navigator) PaneInDirection(ctx context.Context, d protocol.Direction) (bool, error) {
	res, err := n.runner.Run(ctx, tmuxBin, "display-message", "-p", EdgeFormat(d))
	if err != nil {
		return false, fmt.Errorf("query %s: %w", EdgeFormat(d), err)
	}
	return bytes.Equal(res.Stdout, notAtEdge), nil
}

// MoveInDirection focuses the neighbouring pane in direction d. tmux treats
// a move off the edge as a no-op, and the exit status is not inspected.
func (n *Navigator) MoveInDirection(ctx context.Context, d protocol.Direction) error {
	if _, err := n.runner.Run(ctx, tmuxBin, "select-pane", SelectFlag(d)); err != nil {
		return fmt.Errorf("select-pane %s: %w", SelectFlag(d), err)
	}
	return nil
}

// Handle parses one raw message and returns the reply to send back.
// Unrecognized input is answered, not failed; a returned error always comes
// from the runner.
func (n *Navigator) Handle(ctx context.Context, raw string) (string, error) {
	req, ok := protocol.ParseCommand(raw)
	if !ok {
		return protocol.Unrecognized(raw), nil
	}

	switch req.Kind {
	case protocol.HasPane:
		found, err := n.PaneInDirection(ctx, req.Direction)
		if err != nil {
			return "", err
		}
		return protocol.BoolReply(found), nil
	case protocol.MovePane:
		if err := n.MoveInDirection(ctx, req.Direction); err != nil {
			return "", err
		}
		return protocol.ReplyOK, nil
	default:
		return protocol.Unrecognized(raw), nil
	}
}
