//go:build linux

package iomux

import "github.com/packetio/packetio/internal/perror"

// Backend names a multiplexor implementation explicitly, or "automatic"
// to use the platform's picking order (spec §4.3).
type Backend string

const (
	Automatic Backend = ""
	Epoll     Backend = "epoll"
	Poll      Backend = "poll"
	Select    Backend = "select"
)

// New constructs a Multiplexor, picking epoll automatically unless a
// specific backend is requested.
func New(backend Backend) (Multiplexor, error) {
	switch backend {
	case Automatic, Epoll:
		return newEpoll()
	case Poll:
		return newPoll()
	case Select:
		return newSelect()
	default:
		return nil, perror.New(perror.InvalidValue, "unsupported multiplexor backend on this platform", map[string]any{"backend": string(backend)})
	}
}
