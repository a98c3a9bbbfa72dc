package connector

// Type tags the kind of endpoint a connector talks to. Family-agnostic
// tcp/udp narrow to tcp4/tcp6/udp4/udp6 once a socket-address family is
// known (spec invariant 4).
type Type int

const (
	Unspec Type = iota
	TCP
	TCP4
	TCP6
	UDP
	UDP4
	UDP6
	Anon
	Local
	FIFO
	Pipe
	TUN
	TAP
	FileDesc
)

func (t Type) String() string {
	switch t {
	case Unspec:
		return "unspec"
	case TCP:
		return "tcp"
	case TCP4:
		return "tcp4"
	case TCP6:
		return "tcp6"
	case UDP:
		return "udp"
	case UDP4:
		return "udp4"
	case UDP6:
		return "udp6"
	case Anon:
		return "anon"
	case Local:
		return "local"
	case FIFO:
		return "fifo"
	case Pipe:
		return "pipe"
	case TUN:
		return "tun"
	case TAP:
		return "tap"
	case FileDesc:
		return "fd"
	default:
		return "unknown"
	}
}

// Family mirrors the address-family distinction relevant to narrowing.
type Family int

const (
	FamilyUnspec Family = iota
	FamilyInet4
	FamilyInet6
)

// Narrow resolves a family-agnostic type (TCP/UDP) against a known
// address family, implementing spec invariant 4. Types that are already
// family-specific, or that have no family (Local, Anon, FIFO, Pipe, TUN,
// TAP, FileDesc), are returned unchanged.
func (t Type) Narrow(f Family) Type {
	switch t {
	case TCP:
		if f == FamilyInet6 {
			return TCP6
		}

		return TCP4
	case UDP:
		if f == FamilyInet6 {
			return UDP6
		}

		return UDP4
	default:
		return t
	}
}

// IsStreamKind reports whether connectors of this type are inherently
// stream-oriented (as opposed to datagram-oriented). Kinds without an
// opinion (Anon, FileDesc) return false; callers should consult Options
// for those.
func (t Type) IsStreamKind() bool {
	switch t {
	case TCP, TCP4, TCP6, Local, FIFO, Pipe:
		return true
	default:
		return false
	}
}

// HasServerClientDistinction reports whether accept() on this kind
// returns a distinct connector (true) or the same shared state as the
// listener (false, per spec §4.1: anonymous, datagram UDP, FIFO).
func (t Type) HasServerClientDistinction() bool {
	switch t {
	case UDP, UDP4, UDP6, Anon, FIFO:
		return false
	default:
		return true
	}
}
