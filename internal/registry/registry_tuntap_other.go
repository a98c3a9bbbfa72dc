//go:build !windows && !linux

package registry

// registerTunTap is a no-op on POSIX platforms other than Linux: TUN/TAP
// device creation is Linux-ioctl-specific (spec §4.1's Non-goals exclude
// portable tunnel-interface support).
func registerTunTap(r *Registry) {}
