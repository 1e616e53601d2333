package main

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/person-api/backend/internal/handler"
	"github.com/zhouzirui/person-api/backend/internal/model/person"
	"github.com/zhouzirui/person-api/backend/internal/service/events"
)

func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitListening(t *testing.T, addr string) {
	t.Helper()
	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 20*time.Millisecond)
}

func TestRunServerStopsOnCancel(t *testing.T) {
	addr := freeAddr(t)
	srv := &http.Server{Addr: addr, Handler: http.NewServeMux()}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv, time.Second, zerolog.Nop()) }()
	waitListening(t, addr)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestShutdownEndsOpenEventStreams(t *testing.T) {
	addr := freeAddr(t)
	store := person.NewMemoryStore(person.Seed(), person.IDPolicyLast)
	broker := events.NewBroker(4, zerolog.Nop())
	srv := newServer(addr, handler.NewRouter(store, broker, zerolog.Nop()), broker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv, 5*time.Second, zerolog.Nop()) }()
	waitListening(t, addr)

	resp, err := http.Get("http://" + addr + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, broker.Subscribers())

	start := time.Now()
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(4 * time.Second):
		t.Fatal("shutdown waited on the open event stream")
	}
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Equal(t, 0, broker.Subscribers())

	// The stream terminates cleanly once the handler returns.
	reader := bufio.NewReader(resp.Body)
	for {
		if _, err := reader.ReadString('\n'); err != nil {
			break
		}
	}
}

func TestRunServerLogsIncompleteShutdown(t *testing.T) {
	addr := freeAddr(t)
	release := make(chan struct{})
	started := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
	})
	srv := &http.Server{Addr: addr, Handler: mux}

	var logs bytes.Buffer
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runServer(ctx, srv, 50*time.Millisecond, zerolog.New(&logs)) }()
	waitListening(t, addr)

	go func() {
		if resp, err := http.Get("http://" + addr + "/slow"); err == nil {
			resp.Body.Close()
		}
	}()
	<-started

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
	close(release)

	assert.Contains(t, logs.String(), "graceful shutdown incomplete")
}

func TestRootCmdRejectsBadLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("PERSON_ID_POLICY", "")

	cmd := newRootCmd()
	var stderr bytes.Buffer
	cmd.SetErr(&stderr)
	cmd.SetArgs([]string{"--env-file", "does-not-exist.env", "--log-level", "loud"})

	assert.Error(t, cmd.Execute())
	assert.Contains(t, stderr.String(), "does-not-exist.env")
}
