package connector

import "testing"

func TestType_Narrow(t *testing.T) {
	cases := []struct {
		t    Type
		f    Family
		want Type
	}{
		{TCP, FamilyInet4, TCP4},
		{TCP, FamilyInet6, TCP6},
		{UDP, FamilyInet4, UDP4},
		{UDP, FamilyInet6, UDP6},
		{Local, FamilyInet6, Local},
		{TCP4, FamilyInet6, TCP4},
	}

	for _, c := range cases {
		if got := c.t.Narrow(c.f); got != c.want {
			t.Errorf("%s.Narrow(%v) = %s, want %s", c.t, c.f, got, c.want)
		}
	}
}

func TestType_HasServerClientDistinction(t *testing.T) {
	cases := []struct {
		t    Type
		want bool
	}{
		{TCP, true},
		{Local, true},
		{Pipe, true},
		{UDP, false},
		{Anon, false},
		{FIFO, false},
	}

	for _, c := range cases {
		if got := c.t.HasServerClientDistinction(); got != c.want {
			t.Errorf("%s.HasServerClientDistinction() = %v, want %v", c.t, got, c.want)
		}
	}
}

func TestType_String(t *testing.T) {
	if got := TCP6.String(); got != "tcp6" {
		t.Fatalf("String() = %q, want %q", got, "tcp6")
	}

	if got := Type(999).String(); got != "unknown" {
		t.Fatalf("String() for out-of-range Type = %q, want %q", got, "unknown")
	}
}
