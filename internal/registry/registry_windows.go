//go:build windows

package registry

import "github.com/packetio/packetio/connector"

// registerPlatformSchemes adds the Windows-only connector kinds: AF_UNIX
// sockets and named pipes. TUN/TAP has no Windows implementation (spec's
// scope note limits it to the Linux ioctl path).
func registerPlatformSchemes(r *Registry) {
	r.Register(Info{Type: connector.Local, Scheme: "local", Factory: connector.NewLocal})
	r.Register(Info{Type: connector.Anon, Scheme: "anon", Factory: connector.NewAnon})
	r.Register(Info{Type: connector.Pipe, Scheme: "pipe", Factory: connector.NewPipe})
}
