//go:build windows

package iomux

// Backend names a multiplexor implementation explicitly, or "automatic"
// for the platform's default (spec §4.3's picking order places IOCP
// after epoll/kqueue; on Windows there is no epoll/kqueue, so automatic
// always means the composite IOCP+WSAPoll multiplexor).
type Backend string

const (
	Automatic Backend = ""
	IOCP      Backend = "iocp"
)

// New constructs the Windows composite multiplexor.
func New(backend Backend) (Multiplexor, error) {
	return newComposite()
}
