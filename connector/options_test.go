package connector

import "testing"

var tcpLikePossible = possibleSet{
	behaviors: []Behavior{Stream},
	blocking:  []Blocking{BlockModeBlocking, BlockModeNonBlocking},
}

var tcpLikeDefault = Options{Behavior: Stream, Blocking: BlockModeBlocking}

func TestSanitize_FillsDefaults(t *testing.T) {
	out, err := Sanitize(Options{}, tcpLikeDefault, tcpLikePossible)
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}

	if out.Behavior != Stream || out.Blocking != BlockModeBlocking {
		t.Fatalf("Sanitize() = %+v, want the default pair", out)
	}
}

func TestSanitize_RejectsDisallowedOption(t *testing.T) {
	_, err := Sanitize(Options{Behavior: Datagram}, tcpLikeDefault, tcpLikePossible)
	if err == nil {
		t.Fatal("Sanitize() should reject a behavior outside possible.behaviors")
	}
}

func TestSanitize_PreservesExplicitChoice(t *testing.T) {
	out, err := Sanitize(Options{Blocking: BlockModeNonBlocking}, tcpLikeDefault, tcpLikePossible)
	if err != nil {
		t.Fatalf("Sanitize() error = %v", err)
	}

	if !out.IsStream() || out.IsBlocking() {
		t.Fatalf("Sanitize() = %+v, want stream+non-blocking", out)
	}
}
