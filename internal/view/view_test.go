package view

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/simon/ssht/internal/state"
)

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d      time.Duration
		expect string
	}{
		{-time.Second, "0s"},
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{2 * time.Hour, "2h"},
		{2*time.Hour + 15*time.Minute, "2h 15m"},
		{48 * time.Hour, "2d"},
		{50 * time.Hour, "2d 2h"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.expect, FormatDuration(tt.d), tt.d.String())
	}
}

func TestBridgesEmpty(t *testing.T) {
	out := Bridges(nil, time.Now())
	require.Contains(t, out, "no running bridges")
}

func TestBridgesRows(t *testing.T) {
	now := time.Unix(10_000, 0)
	out := Bridges([]state.Bridge{
		{PID: 4242, Host: "dev", Destination: "simon@devbox", Socket: "/tmp/ssht/4242.sock", StartedAt: now.Add(-90 * time.Minute)},
		{PID: 7, Host: "build", Destination: "ci@build", Socket: "/tmp/ssht/7.sock", StartedAt: now.Add(-10 * time.Second)},
	}, now)

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	require.Contains(t, lines[1], "PID")
	require.Contains(t, lines[2], "4242")
	require.Contains(t, lines[2], "simon@devbox")
	require.Contains(t, lines[2], "1h 30m")
	require.Contains(t, lines[2], "/tmp/ssht/4242.sock")
	require.Contains(t, lines[3], "10s")
}

func TestTruncateAndPad(t *testing.T) {
	require.Equal(t, "abc", truncate("abc", 5))
	require.Equal(t, "abc…", truncate("abcdef", 4))
	require.Equal(t, "ab   ", pad("ab", 5))
	require.Equal(t, "abcdef", pad("abcdef", 3))
}

func TestShortenPath(t *testing.T) {
	t.Setenv("HOME", "/home/simon")
	require.Equal(t, "~/run/1.sock", shortenPath("/home/simon/run/1.sock", 40))
	require.Equal(t, "…/1.sock", shortenPath("/very/long/path/1.sock", 8))
	require.Equal(t, "", shortenPath("", 8))
}
