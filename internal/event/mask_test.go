package event

import "testing"

func TestMask_HasAny(t *testing.T) {
	cases := []struct {
		name string
		m, o Mask
		want bool
	}{
		{"overlap", IORead | IOWrite, IOWrite, true},
		{"disjoint", IORead, IOWrite, false},
		{"empty", 0, IORead, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.HasAny(c.o); got != c.want {
				t.Fatalf("HasAny(%v, %v) = %v, want %v", c.m, c.o, got, c.want)
			}
		})
	}
}

func TestMask_IsUser(t *testing.T) {
	cases := []struct {
		name string
		m    Mask
		want bool
	}{
		{"builtin only", IORead, false},
		{"user only", UserBase, true},
		{"mixed", IORead | UserBase, false},
		{"zero", 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.IsUser(); got != c.want {
				t.Fatalf("IsUser(%v) = %v, want %v", c.m, got, c.want)
			}
		})
	}
}

func TestMask_HasUserBit(t *testing.T) {
	cases := []struct {
		name string
		m    Mask
		want bool
	}{
		{"pure builtin", IORead | Timeout, false},
		{"pure user", UserBase << 2, true},
		{"builtin and user", IORead | UserBase, true},
		{"zero", 0, false},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.m.HasUserBit(); got != c.want {
				t.Fatalf("HasUserBit(%v) = %v, want %v", c.m, got, c.want)
			}
		})
	}
}

func TestMask_String(t *testing.T) {
	if got := Mask(0).String(); got != "none" {
		t.Fatalf("String() = %q, want %q", got, "none")
	}

	if got := (IORead | IOWrite).String(); got != "IO_READ|IO_WRITE" {
		t.Fatalf("String() = %q, want %q", got, "IO_READ|IO_WRITE")
	}

	if got := (IORead | UserBase).String(); got != "IO_READ|USER" {
		t.Fatalf("String() = %q, want %q", got, "IO_READ|USER")
	}
}
