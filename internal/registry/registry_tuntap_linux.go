//go:build linux

package registry

import "github.com/packetio/packetio/connector"

func registerTunTap(r *Registry) {
	r.Register(Info{Type: connector.TUN, Scheme: "tun", Factory: connector.NewTUN})
	r.Register(Info{Type: connector.TAP, Scheme: "tap", Factory: connector.NewTAP})
}
