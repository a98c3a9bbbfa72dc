package connector

import "github.com/packetio/packetio/internal/perror"

// Behavior selects the connector's communication style.
type Behavior uint8

const (
	// BehaviorDefault means "inherit from the connector kind's default".
	BehaviorDefault Behavior = iota
	Stream
	Datagram
)

// Blocking selects whether I/O calls block the caller's goroutine.
type Blocking uint8

const (
	// BlockingDefault means "inherit from the connector kind's default".
	BlockingDefault Blocking = iota
	BlockModeBlocking
	BlockModeNonBlocking
)

// Options is the sanitized bitset of connector behavior. It always
// carries exactly one Behavior and one Blocking value once Sanitize has
// run; before that, either field may be the *Default sentinel meaning
// "not yet decided".
type Options struct {
	Behavior Behavior
	Blocking Blocking
}

// possibleSet is the bitset of option combinations a connector kind
// allows, used by Sanitize to reject anything outside it.
type possibleSet struct {
	behaviors []Behavior
	blocking  []Blocking
}

func allows[T comparable](set []T, v T) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}

	return false
}

// Sanitize fills in o's Default fields from def, then asserts every
// explicit field is a member of possible. It implements spec invariant
// 5: the result is always a full, legal (behavior, blocking) pair.
func Sanitize(o, def Options, possible possibleSet) (Options, error) {
	out := o

	if out.Behavior == BehaviorDefault {
		out.Behavior = def.Behavior
	}

	if out.Blocking == BlockingDefault {
		out.Blocking = def.Blocking
	}

	if out.Behavior == BehaviorDefault || out.Blocking == BlockingDefault {
		return Options{}, perror.New(perror.InvalidOption,
			"connector kind has no default for an unset option", nil)
	}

	if !allows(possible.behaviors, out.Behavior) {
		return Options{}, perror.New(perror.InvalidOption,
			"behavior not permitted for this connector kind", map[string]any{"behavior": out.Behavior})
	}

	if !allows(possible.blocking, out.Blocking) {
		return Options{}, perror.New(perror.InvalidOption,
			"blocking mode not permitted for this connector kind", map[string]any{"blocking": out.Blocking})
	}

	return out, nil
}

// IsBlocking reports whether o resolves to blocking mode. Only
// meaningful after Sanitize.
func (o Options) IsBlocking() bool { return o.Blocking == BlockModeBlocking }

// IsStream reports whether o resolves to stream behavior. Only
// meaningful after Sanitize.
func (o Options) IsStream() bool { return o.Behavior == Stream }
