package ipc

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func echoHandler() Handler {
	return HandlerFunc(func(_ context.Context, msg string) (string, error) {
		return "unrecognized command " + msg, nil
	})
}

// startServer runs a Server on a fresh socket and returns its path and a
// channel carrying Serve's result.
func startServer(t *testing.T, srv *Server) (string, context.CancelFunc, <-chan error) {
	t.Helper()
	socketPath := filepath.Join(t.TempDir(), "1.sock")
	listener, err := net.Listen("unix", socketPath)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, listener) }()
	return socketPath, cancel, done
}

func TestServeRoundTrip(t *testing.T) {
	path, cancel, done := startServer(t, &Server{Handler: HandlerFunc(func(_ context.Context, msg string) (string, error) {
		if msg != "has_pane up" {
			return "unexpected " + msg, nil
		}
		return "true", nil
	})})

	reply, err := Send(context.Background(), path, "has_pane up", time.Second)
	require.NoError(t, err)
	require.Equal(t, "true", reply)

	cancel()
	require.NoError(t, <-done)
}

func TestServeEmptyMessage(t *testing.T) {
	path, cancel, done := startServer(t, &Server{Handler: echoHandler()})

	reply, err := Send(context.Background(), path, "", time.Second)
	require.NoError(t, err)
	require.Equal(t, "unrecognized command ", reply)

	cancel()
	require.NoError(t, <-done)
}

func TestServeTruncatesAtMaxMessageSize(t *testing.T) {
	path, cancel, done := startServer(t, &Server{
		MaxMessageSize: 8,
		Handler: HandlerFunc(func(_ context.Context, msg string) (string, error) {
			return msg, nil
		}),
	})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("has_pane left and more"))
	require.NoError(t, err)

	buf := make([]byte, 64)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "has_pane", string(buf[:n]))

	cancel()
	require.NoError(t, <-done)
}

func TestServeInvalidUTF8DropsConnectionOnly(t *testing.T) {
	path, cancel, done := startServer(t, &Server{Handler: echoHandler()})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	_, err = conn.Write([]byte{0xff, 0xfe, 0xfd})
	require.NoError(t, err)
	require.NoError(t, conn.(*net.UnixConn).CloseWrite())

	buf := make([]byte, 64)
	n, _ := conn.Read(buf)
	require.Zero(t, n)
	conn.Close()

	reply, err := Send(context.Background(), path, "jump up", time.Second)
	require.NoError(t, err)
	require.Equal(t, "unrecognized command jump up", reply)

	cancel()
	require.NoError(t, <-done)
}

func TestServeHandlerErrorIsFatal(t *testing.T) {
	errRemote := errors.New("remote gone")
	path, _, done := startServer(t, &Server{Handler: HandlerFunc(func(context.Context, string) (string, error) {
		return "", errRemote
	})})

	reply, err := Send(context.Background(), path, "move_pane up", time.Second)
	require.NoError(t, err)
	require.Empty(t, reply)

	serveErr := <-done
	require.ErrorIs(t, serveErr, errRemote)

	_, err = Send(context.Background(), path, "move_pane up", 100*time.Millisecond)
	require.Error(t, err)
}

func TestServeHandlesConnectionsSequentially(t *testing.T) {
	entered := make(chan string, 2)
	release := make(chan struct{})

	path, cancel, done := startServer(t, &Server{Handler: HandlerFunc(func(_ context.Context, msg string) (string, error) {
		entered <- msg
		if msg == "first" {
			<-release
		}
		return msg + " done", nil
	})})

	var wg sync.WaitGroup
	firstReply := make(chan string, 1)
	secondReply := make(chan string, 1)

	wg.Add(1)
	go func() {
		defer wg.Done()
		reply, err := Send(context.Background(), path, "first", 5*time.Second)
		if err == nil {
			firstReply <- reply
		}
	}()
	require.Equal(t, "first", <-entered)

	wg.Add(1)
	go func() {
		defer wg.Done()
		reply, err := Send(context.Background(), path, "second", 5*time.Second)
		if err == nil {
			secondReply <- reply
		}
	}()

	select {
	case msg := <-entered:
		t.Fatalf("handler entered for %q while first request in flight", msg)
	case <-secondReply:
		t.Fatal("second client answered while first request in flight")
	case <-time.After(150 * time.Millisecond):
	}

	close(release)
	require.Equal(t, "first done", <-firstReply)
	require.Equal(t, "second", <-entered)
	require.Equal(t, "second done", <-secondReply)
	wg.Wait()

	cancel()
	require.NoError(t, <-done)
}

func TestServeStopsOnCancel(t *testing.T) {
	path, cancel, done := startServer(t, &Server{Handler: echoHandler()})
	cancel()
	require.NoError(t, <-done)

	alive, err := Probe(context.Background(), path, 100*time.Millisecond)
	require.NoError(t, err)
	require.False(t, alive)
}

func TestServeCancelClosesStalledClient(t *testing.T) {
	path, cancel, done := startServer(t, &Server{Handler: echoHandler()})

	conn, err := net.Dial("unix", path)
	require.NoError(t, err)
	defer conn.Close()
	time.Sleep(50 * time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve still blocked on a client that sent nothing")
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	n, _ := conn.Read(make([]byte, 16))
	require.Zero(t, n)
}
