package state

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"golang.org/x/sys/unix"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS bridges (
    pid          INTEGER PRIMARY KEY,
    id           TEXT NOT NULL,
    host         TEXT NOT NULL,
    destination  TEXT NOT NULL DEFAULT '',
    socket       TEXT NOT NULL,
    control_path TEXT NOT NULL DEFAULT '',
    started_at   INTEGER NOT NULL
);
`

var (
	ErrNotFound  = errors.New("no running bridge matches")
	ErrAmbiguous = errors.New("more than one running bridge matches")
)

// Bridge is one running ssht process.
type Bridge struct {
	PID         int
	ID          string
	Host        string // as given on the command line
	Destination string // resolved ssh destination
	Socket      string
	ControlPath string
	StartedAt   time.Time
}

// Store is the registry of running bridges. Rows only live as long as their
// process; anything left by a crash is pruned on read.
type Store struct {
	db *sql.DB
}

// Dir returns $XDG_STATE_HOME/ssht, falling back to ~/.local/state/ssht.
func Dir() (string, error) {
	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		stateHome = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(stateHome, "ssht"), nil
}

// Open creates or opens the registry at $XDG_STATE_HOME/ssht/state.db.
func Open() (*Store, error) {
	dir, err := Dir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "state.db"))
	if err != nil {
		return nil, err
	}

	// WAL mode for safe concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA busy_timeout=2000"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Register records a running bridge, replacing any row left by an earlier
// process with the same pid.
func (s *Store) Register(b Bridge) error {
	_, err := s.db.Exec(`
		INSERT INTO bridges (pid, id, host, destination, socket, control_path, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pid) DO UPDATE SET
			id = excluded.id,
			host = excluded.host,
			destination = excluded.destination,
			socket = excluded.socket,
			control_path = excluded.control_path,
			started_at = excluded.started_at
	`, b.PID, b.ID, b.Host, b.Destination, b.Socket, b.ControlPath, b.StartedAt.Unix())
	return err
}

// Unregister removes the bridge with the given pid.
func (s *Store) Unregister(pid int) error {
	_, err := s.db.Exec("DELETE FROM bridges WHERE pid = ?", pid)
	return err
}

// List returns running bridges, oldest first, dropping rows whose process
// has exited.
func (s *Store) List() ([]Bridge, error) {
	rows, err := s.db.Query(`
		SELECT pid, id, host, destination, socket, control_path, started_at
		FROM bridges
		ORDER BY started_at, pid
	`)
	if err != nil {
		return nil, err
	}

	var all []Bridge
	for rows.Next() {
		var b Bridge
		var started int64
		if err := rows.Scan(&b.PID, &b.ID, &b.Host, &b.Destination, &b.Socket, &b.ControlPath, &started); err != nil {
			rows.Close()
			return nil, err
		}
		b.StartedAt = time.Unix(started, 0)
		all = append(all, b)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	live := make([]Bridge, 0, len(all))
	for _, b := range all {
		if processAlive(b.PID) {
			live = append(live, b)
			continue
		}
		if err := s.Unregister(b.PID); err != nil {
			return nil, fmt.Errorf("prune bridge %d: %w", b.PID, err)
		}
	}
	return live, nil
}

// Find resolves target to one running bridge. A number matches a pid;
// anything else matches the host argument or the ssh destination. An empty
// target matches when exactly one bridge is running.
func (s *Store) Find(target string) (Bridge, error) {
	bridges, err := s.List()
	if err != nil {
		return Bridge{}, err
	}

	pid, pidErr := strconv.Atoi(target)
	var matches []Bridge
	for _, b := range bridges {
		switch {
		case target == "":
			matches = append(matches, b)
		case pidErr == nil && b.PID == pid:
			matches = append(matches, b)
		case b.Host == target || b.Destination == target:
			matches = append(matches, b)
		}
	}

	switch len(matches) {
	case 0:
		return Bridge{}, fmt.Errorf("%w %q", ErrNotFound, target)
	case 1:
		return matches[0], nil
	default:
		return Bridge{}, fmt.Errorf("%w %q (%d found, pass a pid)", ErrAmbiguous, target, len(matches))
	}
}

// processAlive reports whether pid names a live process. EPERM still means
// the process exists.
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
