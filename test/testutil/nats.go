package testutil

import (
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// StartLocalNATSServer starts an in-process JetStream server for tests.
// Params: test handle for lifecycle and failure reporting.
// Returns: client URL; the server shuts down when the test ends. Skipped with -short.
func StartLocalNATSServer(tb testing.TB) string {
	tb.Helper()
	if testing.Short() {
		tb.Skip("embedded nats-server skipped in short mode")
	}

	ns, err := server.NewServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  tb.TempDir(),
		NoLog:     true,
		NoSigs:    true,
	})
	if err != nil {
		tb.Fatalf("create nats server: %v", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(8 * time.Second) {
		ns.Shutdown()
		tb.Fatalf("nats server did not become ready")
	}
	tb.Cleanup(func() {
		ns.Shutdown()
		ns.WaitForShutdown()
	})
	return ns.ClientURL()
}

// Connect opens a client connection closed at test end.
// Params: test handle and server URL.
// Returns: connection and JetStream context.
func Connect(tb testing.TB, url string) (*nats.Conn, nats.JetStreamContext) {
	tb.Helper()

	nc, err := nats.Connect(url)
	if err != nil {
		tb.Fatalf("connect nats: %v", err)
	}
	tb.Cleanup(nc.Close)
	js, err := nc.JetStream()
	if err != nil {
		tb.Fatalf("jetstream: %v", err)
	}
	return nc, js
}

// Eventually polls cond until it holds or timeout elapses.
// Params: test handle, timeout and condition.
// Returns: fails the test on timeout.
func Eventually(tb testing.TB, timeout time.Duration, cond func() bool) {
	tb.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	tb.Fatalf("condition not met within %s", timeout)
}
