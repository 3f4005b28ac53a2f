// Package view renders ssht's terminal output.
package view

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/simon/ssht/internal/state"
)

var (
	// Adaptive colors for light/dark terminal backgrounds
	accentColor = lipgloss.AdaptiveColor{Light: "#D6249F", Dark: "#FF79C6"}
	greenColor  = lipgloss.AdaptiveColor{Light: "#116620", Dark: "#50FA7B"}
	dimColor    = lipgloss.AdaptiveColor{Light: "#777777", Dark: "#6272A4"}
	cyanColor   = lipgloss.AdaptiveColor{Light: "#0E7490", Dark: "#8BE9FD"}

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			PaddingLeft(1)

	headerStyle = lipgloss.NewStyle().
			Foreground(dimColor).
			PaddingLeft(1)

	rowStyle = lipgloss.NewStyle().
			PaddingLeft(1)

	hostStyle = lipgloss.NewStyle().
			Foreground(greenColor).
			Bold(true)

	destStyle = lipgloss.NewStyle().
			Foreground(cyanColor)

	dimStyle = lipgloss.NewStyle().
			Foreground(dimColor)
)

const (
	pidWidth    = 8
	hostWidth   = 16
	destWidth   = 28
	uptimeWidth = 9
	socketWidth = 40
)

// Bridges renders running bridges as a table.
func Bridges(bridges []state.Bridge, now time.Time) string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("ssht bridges"))
	b.WriteString("\n")

	if len(bridges) == 0 {
		b.WriteString(headerStyle.Render("no running bridges"))
		b.WriteString("\n")
		return b.String()
	}

	header := pad("PID", pidWidth) + pad("HOST", hostWidth) + pad("DESTINATION", destWidth) +
		pad("UPTIME", uptimeWidth) + "SOCKET"
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	for _, br := range bridges {
		row := pad(strconv.Itoa(br.PID), pidWidth) +
			pad(hostStyle.Render(truncate(br.Host, hostWidth-1)), hostWidth) +
			pad(destStyle.Render(truncate(br.Destination, destWidth-1)), destWidth) +
			pad(FormatDuration(now.Sub(br.StartedAt)), uptimeWidth) +
			dimStyle.Render(shortenPath(br.Socket, socketWidth))
		b.WriteString(rowStyle.Render(row))
		b.WriteString("\n")
	}
	return b.String()
}

// pad right-pads s to width with spaces (based on visual width, not byte count).
func pad(s string, width int) string {
	visual := lipgloss.Width(s)
	if visual >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visual)
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-1]) + "…"
}

// shortenPath abbreviates a path for display (replaces $HOME with ~, truncates).
func shortenPath(path string, maxLen int) string {
	if path == "" {
		return ""
	}
	home, _ := os.UserHomeDir()
	if home != "" && strings.HasPrefix(path, home) {
		path = "~" + path[len(home):]
	}
	if len(path) <= maxLen {
		return path
	}
	return "…" + path[len(path)-(maxLen-1):]
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh %dm", h, m)
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	if hours == 0 {
		return fmt.Sprintf("%dd", days)
	}
	return fmt.Sprintf("%dd %dh", days, hours)
}
