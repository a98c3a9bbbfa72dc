//go:build !windows

package registry

import "github.com/packetio/packetio/connector"

// registerPlatformSchemes adds the POSIX-only connector kinds: UNIX
// domain sockets, anonymous pipes, named FIFOs, and (on Linux) TUN/TAP
// devices.
func registerPlatformSchemes(r *Registry) {
	r.Register(Info{Type: connector.Local, Scheme: "local", Factory: connector.NewLocal})
	r.Register(Info{Type: connector.Local, Scheme: "unix", Factory: connector.NewLocal})
	r.Register(Info{Type: connector.Anon, Scheme: "anon", Factory: connector.NewAnon})
	r.Register(Info{Type: connector.FIFO, Scheme: "fifo", Factory: connector.NewFIFO})

	registerTunTap(r)
}
