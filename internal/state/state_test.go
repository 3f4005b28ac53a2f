package state

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// deadPID is above Linux's pid_max, so no process can hold it.
const deadPID = 99999999

func openStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("XDG_STATE_HOME", t.TempDir())
	s, err := Open()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func bridge(pid int, host string, started int64) Bridge {
	return Bridge{
		PID:         pid,
		ID:          "id-" + host,
		Host:        host,
		Destination: "simon@" + host,
		Socket:      filepath.Join("/tmp/ssht", host+".sock"),
		ControlPath: filepath.Join("/tmp/ssht", host+".ssh"),
		StartedAt:   time.Unix(started, 0),
	}
}

func TestOpenCreatesDatabaseUnderStateHome(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_STATE_HOME", xdg)

	s, err := Open()
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(filepath.Join(xdg, "ssht", "state.db"))
	require.NoError(t, err)
}

func TestRegisterListUnregister(t *testing.T) {
	s := openStore(t)

	self := bridge(os.Getpid(), "devbox", 200)
	parent := bridge(os.Getppid(), "buildbox", 100)
	require.NoError(t, s.Register(self))
	require.NoError(t, s.Register(parent))

	got, err := s.List()
	require.NoError(t, err)
	require.Equal(t, []Bridge{parent, self}, got)

	require.NoError(t, s.Unregister(parent.PID))
	got, err = s.List()
	require.NoError(t, err)
	require.Equal(t, []Bridge{self}, got)
}

func TestRegisterReplacesSamePID(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Register(bridge(os.Getpid(), "old", 1)))
	require.NoError(t, s.Register(bridge(os.Getpid(), "new", 2)))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "new", got[0].Host)
}

func TestListPrunesDeadProcesses(t *testing.T) {
	s := openStore(t)

	require.NoError(t, s.Register(bridge(deadPID, "ghost", 1)))
	require.NoError(t, s.Register(bridge(os.Getpid(), "devbox", 2)))

	got, err := s.List()
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "devbox", got[0].Host)

	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM bridges").Scan(&n))
	require.Equal(t, 1, n)
}

func TestFind(t *testing.T) {
	s := openStore(t)

	self := bridge(os.Getpid(), "devbox", 1)
	parent := bridge(os.Getppid(), "buildbox", 2)
	require.NoError(t, s.Register(self))
	require.NoError(t, s.Register(parent))

	got, err := s.Find("devbox")
	require.NoError(t, err)
	require.Equal(t, self, got)

	got, err = s.Find("simon@buildbox")
	require.NoError(t, err)
	require.Equal(t, parent, got)

	got, err = s.Find(strconv.Itoa(os.Getppid()))
	require.NoError(t, err)
	require.Equal(t, parent, got)

	_, err = s.Find("")
	require.ErrorIs(t, err, ErrAmbiguous)

	_, err = s.Find("nowhere")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Unregister(parent.PID))
	got, err = s.Find("")
	require.NoError(t, err)
	require.Equal(t, self, got)
}

func TestProcessAlive(t *testing.T) {
	require.True(t, processAlive(os.Getpid()))
	require.False(t, processAlive(deadPID))
	require.False(t, processAlive(0))
}
