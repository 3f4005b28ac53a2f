package tmux

import (
	"context"

	"github.com/simon/ssht/internal/remote"
)

// Runner executes a program on the host where tmux lives. *remote.Session
// satisfies it; a non-zero exit status is reported in the Result, and only
// transport failures are returned as errors.
type Runner interface {
	Run(ctx context.Context, program string, args ...string) (remote.Result, error)
}
