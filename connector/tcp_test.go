//go:build !windows

package connector

import (
	"net/url"
	"testing"
	"time"
)

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse(%q): %v", raw, err)
	}

	return u
}

// TestTCP_StreamRoundTrip exercises a blocking-mode accept/connect pair
// and a single request/response exchange, matching the stream round-trip
// scenario: client writes "Hello, world!", server echoes it back with a
// " [2]" suffix appended.
func TestTCP_StreamRoundTrip(t *testing.T) {
	server, err := NewTCP(mustParseURL(t, "tcp://127.0.0.1:18765"), Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewTCP(server): %v", err)
	}
	defer server.Close()

	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	accepted := make(chan Connector, 1)
	acceptErr := make(chan error, 1)

	go func() {
		peer, err := server.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- peer
	}()

	client, err := NewTCP(mustParseURL(t, "tcp://127.0.0.1:18765"), Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewTCP(client): %v", err)
	}
	defer client.Close()

	if err := client.Connect(); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	var peer Connector
	select {
	case peer = <-accepted:
	case err := <-acceptErr:
		t.Fatalf("Accept: %v", err)
	case <-time.After(time.Second):
		t.Fatal("Accept timed out")
	}
	defer peer.Close()

	req := []byte("Hello, world!")
	if n, err := client.Write(req); err != nil || n != len(req) {
		t.Fatalf("client.Write = (%d, %v), want (%d, nil)", n, err, len(req))
	}

	buf := make([]byte, 64)
	n, err := peer.Read(buf)
	if err != nil {
		t.Fatalf("peer.Read: %v", err)
	}
	if string(buf[:n]) != string(req) {
		t.Fatalf("peer.Read = %q, want %q", buf[:n], req)
	}

	reply := []byte("Hello, world! [2]")
	if n, err := peer.Write(reply); err != nil || n != len(reply) {
		t.Fatalf("peer.Write = (%d, %v), want (%d, nil)", n, err, len(reply))
	}

	n, err = client.Read(buf)
	if err != nil {
		t.Fatalf("client.Read: %v", err)
	}
	if string(buf[:n]) != string(reply) {
		t.Fatalf("client.Read = %q, want %q", buf[:n], reply)
	}
}

func TestTCP_RejectsNonLiteralHost(t *testing.T) {
	_, err := NewTCP(mustParseURL(t, "tcp://example.com:80"), Options{})
	if err == nil {
		t.Fatal("NewTCP should reject a hostname authority; DNS expansion happens upstream")
	}
}
