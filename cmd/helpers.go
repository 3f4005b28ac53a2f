package cmd

import (
	"fmt"

	"github.com/simon/ssht/internal/state"
)

// findBridge resolves a pid, host or ssh destination to a running bridge.
// Empty target picks the only running bridge.
func findBridge(target string) (state.Bridge, error) {
	store, err := state.Open()
	if err != nil {
		return state.Bridge{}, fmt.Errorf("failed to open state db: %w", err)
	}
	defer store.Close()

	return store.Find(target)
}
