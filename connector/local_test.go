//go:build !windows

package connector

import (
	"net/url"
	"path/filepath"
	"testing"
	"time"
)

// TestLocal_SequentialMultiClient matches the local-stream multi-client
// scenario (the POSIX counterpart to the Windows named-pipe variant):
// one listener accepts two clients in sequence, each connecting,
// exchanging one message and disconnecting before the next connects.
func TestLocal_SequentialMultiClient(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "packetio-local-test.sock")
	u := &url.URL{Scheme: "local", Path: sockPath}

	server, err := NewLocal(u, Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewLocal(server): %v", err)
	}
	defer server.Close()

	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	for i, msg := range []string{"hello from client one", "hello from client two"} {
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

		client, err := NewLocal(u, Options{Blocking: BlockModeBlocking})
		if err != nil {
			t.Fatalf("client %d: NewLocal: %v", i, err)
		}

		if err := client.Connect(); err != nil {
			t.Fatalf("client %d: Connect: %v", i, err)
		}

		var peer Connector
		select {
		case peer = <-accepted:
		case err := <-acceptErr:
			t.Fatalf("client %d: Accept: %v", i, err)
		case <-time.After(time.Second):
			t.Fatalf("client %d: Accept timed out", i)
		}

		if n, err := client.Write([]byte(msg)); err != nil || n != len(msg) {
			t.Fatalf("client %d: Write = (%d, %v), want (%d, nil)", i, n, err, len(msg))
		}

		buf := make([]byte, 64)
		n, err := peer.Read(buf)
		if err != nil {
			t.Fatalf("client %d: peer.Read: %v", i, err)
		}
		if string(buf[:n]) != msg {
			t.Fatalf("client %d: peer.Read = %q, want %q", i, buf[:n], msg)
		}

		if err := client.Close(); err != nil {
			t.Fatalf("client %d: Close: %v", i, err)
		}
		if err := peer.Close(); err != nil {
			t.Fatalf("client %d: peer.Close: %v", i, err)
		}
	}
}

func TestLocal_AbstractNamespace(t *testing.T) {
	u := &url.URL{Scheme: "local", Path: "\x00packetio-test-abstract"}

	server, err := NewLocal(u, Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewLocal: %v", err)
	}
	defer server.Close()

	if err := server.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if server.PeerAddr().Path[0] != 0 {
		t.Fatalf("abstract socket path should retain its leading NUL marker")
	}
	if !server.PeerAddr().Abstract {
		t.Fatal("PeerAddr().Abstract should be true for a %%00-prefixed path")
	}
}
