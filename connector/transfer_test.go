//go:build !windows

package connector

import "testing"

// TestTransfer_AnonPipeRoundTrip moves a payload from one anonymous pipe
// to another through Transfer, exercising the splice(2) path on Linux and
// the pooled-buffer fallback everywhere else.
func TestTransfer_AnonPipeRoundTrip(t *testing.T) {
	src, err := NewAnon(nil, Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewAnon(src): %v", err)
	}
	defer src.Close()
	if err := src.Listen(); err != nil {
		t.Fatalf("src.Listen: %v", err)
	}

	dst, err := NewAnon(nil, Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewAnon(dst): %v", err)
	}
	defer dst.Close()
	if err := dst.Listen(); err != nil {
		t.Fatalf("dst.Listen: %v", err)
	}

	payload := []byte("the quick brown fox jumps over the lazy dog")
	if n, err := src.Write(payload); err != nil || n != len(payload) {
		t.Fatalf("src.Write = (%d, %v), want (%d, nil)", n, err, len(payload))
	}

	done := make(chan struct{})
	var n int64
	var transferErr error

	go func() {
		n, transferErr = Transfer(dst, src, int64(len(payload)))
		close(done)
	}()

	<-done

	if transferErr != nil {
		t.Fatalf("Transfer: %v", transferErr)
	}
	if n != int64(len(payload)) {
		t.Fatalf("Transfer moved %d bytes, want %d", n, len(payload))
	}

	buf := make([]byte, len(payload))
	got, err := dst.Read(buf)
	if err != nil {
		t.Fatalf("dst.Read: %v", err)
	}
	if string(buf[:got]) != string(payload) {
		t.Fatalf("dst.Read = %q, want %q", buf[:got], payload)
	}
}
