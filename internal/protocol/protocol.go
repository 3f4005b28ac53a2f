// Package protocol implements the text command vocabulary spoken on the
// local socket: "<verb> <direction>" requests and plain-text replies.
package protocol

import (
	"fmt"
	"strings"
)

type Direction int

const (
	Up Direction = iota
	Down
	Left
	Right
)

func (d Direction) String() string {
	switch d {
	case Up:
		return "up"
	case Down:
		return "down"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("direction(%d)", int(d))
	}
}

// ParseDirection maps a lowercase direction word to a Direction.
func ParseDirection(s string) (Direction, bool) {
	switch s {
	case "up":
		return Up, true
	case "down":
		return Down, true
	case "left":
		return Left, true
	case "right":
		return Right, true
	default:
		return 0, false
	}
}

type Kind int

const (
	HasPane Kind = iota
	MovePane
)

const (
	VerbHasPane  = "has_pane"
	VerbMovePane = "move_pane"
)

func (k Kind) String() string {
	switch k {
	case HasPane:
		return VerbHasPane
	case MovePane:
		return VerbMovePane
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

type Request struct {
	Kind      Kind
	Direction Direction
}

// ParseCommand parses one raw message. The message must be exactly two
// tokens separated by a single space; anything else is unrecognized.
// Trailing whitespace is not stripped.
func ParseCommand(s string) (Request, bool) {
	parts := strings.Split(s, " ")
	if len(parts) != 2 {
		return Request{}, false
	}

	var kind Kind
	switch parts[0] {
	case VerbHasPane:
		kind = HasPane
	case VerbMovePane:
		kind = MovePane
	default:
		return Request{}, false
	}

	dir, ok := ParseDirection(parts[1])
	if !ok {
		return Request{}, false
	}
	return Request{Kind: kind, Direction: dir}, true
}

// Replies.
const (
	ReplyTrue  = "true"
	ReplyFalse = "false"
	ReplyOK    = "ok"

	unrecognizedPrefix = "unrecognized command "
)

// BoolReply encodes a has_pane answer.
func BoolReply(b bool) string {
	if b {
		return ReplyTrue
	}
	return ReplyFalse
}

// Unrecognized echoes the raw input back to the client.
func Unrecognized(raw string) string {
	return unrecognizedPrefix + raw
}

// IsUnrecognized reports whether a reply is the unrecognized-command diagnostic.
func IsUnrecognized(reply string) bool {
	return strings.HasPrefix(reply, unrecognizedPrefix)
}
