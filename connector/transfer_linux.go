//go:build linux

package connector

import (
	"golang.org/x/sys/unix"

	"github.com/packetio/packetio/internal/perror"
)

// Transfer moves up to n bytes from src to dst using splice(2) through an
// intermediate pipe, never copying payload bytes into user space. n <= 0
// means "until EOF". When the splice from src into the pipe fails with
// EINVAL, it falls back to the pooled-buffer copy in transfer.go,
// resuming from the bytes already moved; an EINVAL from the splice out of
// the pipe into dst is returned as a perror.Unexpected error instead.
func Transfer(dst, src Connector, n int64) (int64, error) {
	if err := src.requireInit(); err != nil {
		return 0, err
	}

	if err := dst.requireInit(); err != nil {
		return 0, err
	}

	sfd := src.ReadHandle().FD()
	dfd := dst.WriteHandle().FD()

	if sfd < 0 || dfd < 0 {
		return 0, perror.New(perror.Initialization, "transfer requires valid read and write handles", nil)
	}

	var p [2]int
	if err := unix.Pipe(p[:]); err != nil {
		return copyFallback(dst, src, n)
	}
	pr, pw := p[0], p[1]
	defer unix.Close(pr)
	defer unix.Close(pw)

	const chunk = 1 << 20

	var transferred int64
	for n <= 0 || transferred < n {
		toRead := int64(chunk)
		if n > 0 {
			if remaining := n - transferred; remaining < toRead {
				toRead = remaining
			}
		}

		n1, err := unix.Splice(sfd, nil, pw, nil, int(toRead), unix.SPLICE_F_MOVE)
		if n1 == 0 && err == nil {
			break
		}

		if err != nil {
			if err == unix.EAGAIN {
				return transferred, perror.ErrAsync
			}
			if err == unix.EINTR {
				continue
			}
			if err == unix.EINVAL {
				return copyFallbackFrom(dst, src, n, transferred)
			}

			return transferred, perror.Wrap(perror.Unexpected, err, "splice(2) src->pipe failed")
		}

		for off := 0; off < n1; {
			n2, err2 := unix.Splice(pr, nil, dfd, nil, n1-off, unix.SPLICE_F_MOVE)
			if err2 != nil {
				if err2 == unix.EINTR {
					continue
				}
				if err2 == unix.EAGAIN {
					return transferred, perror.ErrAsync
				}

				return transferred, perror.Wrap(perror.Unexpected, err2, "splice(2) pipe->dst failed")
			}

			if n2 == 0 {
				break
			}

			off += n2
		}

		transferred += int64(n1)
	}

	return transferred, nil
}
