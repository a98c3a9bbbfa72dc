//go:build !windows

package connector

import (
	"net"
	"testing"
)

// TestUDP_EchoRing exercises a scaled-down version of the UDP echo-ring
// scenario: two datagram endpoints repeatedly exchange the same message,
// which is echoed back unchanged, for a handful of rounds rather than the
// full-scale ring.
func TestUDP_EchoRing(t *testing.T) {
	const rounds = 5

	a, err := NewUDP(mustParseURL(t, "udp://127.0.0.1:18766"), Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewUDP(a): %v", err)
	}
	defer a.Close()
	if err := a.Listen(); err != nil {
		t.Fatalf("a.Listen: %v", err)
	}

	b, err := NewUDP(mustParseURL(t, "udp://127.0.0.1:18767"), Options{Blocking: BlockModeBlocking})
	if err != nil {
		t.Fatalf("NewUDP(b): %v", err)
	}
	defer b.Close()
	if err := b.Listen(); err != nil {
		t.Fatalf("b.Listen: %v", err)
	}

	aAddr := a.PeerAddr()
	bAddr := b.PeerAddr()

	toA := &net.UDPAddr{IP: net.IP(aAddr.IP.AsSlice()), Port: int(aAddr.Port)}
	toB := &net.UDPAddr{IP: net.IP(bAddr.IP.AsSlice()), Port: int(bAddr.Port)}

	buf := make([]byte, 64)

	msg := []byte("ping-0")
	if _, err := a.Send(msg, toB); err != nil {
		t.Fatalf("a.Send: %v", err)
	}

	errCount := 0
	for i := 0; i < rounds; i++ {
		n, _, err := b.Receive(buf)
		if err != nil {
			errCount++
			continue
		}

		if _, err := b.Send(buf[:n], toA); err != nil {
			errCount++
			continue
		}

		n, _, err = a.Receive(buf)
		if err != nil {
			errCount++
			continue
		}

		if _, err := a.Send(buf[:n], toB); err != nil {
			errCount++
		}
	}

	if errCount != 0 {
		t.Fatalf("echo ring accumulated %d errors over %d rounds, want 0", errCount, rounds)
	}
}
