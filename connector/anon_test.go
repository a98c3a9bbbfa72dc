//go:build !windows

package connector

import "testing"

// TestAnon_ListenWriteRead matches the anonymous-pipe scenario: listen,
// write "hello, world!", and read the same 13 bytes back through the
// read end of the pair.
func TestAnon_ListenWriteRead(t *testing.T) {
	c, err := NewAnon(nil, Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewAnon: %v", err)
	}
	defer c.Close()

	if err := c.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	if !c.Listening() || !c.Connected() {
		t.Fatal("an anonymous pipe is both listening and connected once opened")
	}

	msg := []byte("hello, world!")
	if n, err := c.Write(msg); err != nil || n != len(msg) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(msg))
	}

	buf := make([]byte, 32)
	n, err := c.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if n != len(msg) {
		t.Fatalf("Read %d bytes, want %d", n, len(msg))
	}
	if string(buf[:n]) != string(msg) {
		t.Fatalf("Read = %q, want %q", buf[:n], msg)
	}
}

// TestAnon_AcceptSharesState asserts the no-server/client-distinction
// behavior: Accept clones the same connector rather than producing a new
// underlying driver.
func TestAnon_AcceptSharesState(t *testing.T) {
	c, err := NewAnon(nil, Options{})
	if err != nil {
		t.Fatalf("NewAnon: %v", err)
	}
	defer c.Close()

	peer, err := c.Accept()
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	defer peer.Close()

	if !c.Equal(peer) {
		t.Fatal("Accept on a no-distinction kind should return an equal, shared connector")
	}
}
