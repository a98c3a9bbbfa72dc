package connector

import "github.com/packetio/packetio/internal/bufpool"

var transferPool = bufpool.Default()

// copyFallback moves up to n bytes (n <= 0 meaning until EOF) from src to
// dst through a pooled intermediate buffer, for platforms or connector
// kinds that splice(2) cannot serve.
func copyFallback(dst, src Connector, n int64) (int64, error) {
	return copyFallbackFrom(dst, src, n, 0)
}

// copyFallbackFrom resumes a pooled-buffer copy after `already` bytes
// have already been moved by a zero-copy path that bailed out partway
// through (e.g. splice(2) returning EINVAL mid-transfer).
func copyFallbackFrom(dst, src Connector, n, already int64) (int64, error) {
	buf := transferPool.Get(64 * 1024)
	defer transferPool.Put(buf)

	transferred := already

	for n <= 0 || transferred < n {
		want := len(buf)
		if n > 0 {
			if remaining := n - transferred; remaining < int64(want) {
				want = int(remaining)
			}
		}

		r, err := src.Read(buf[:want])
		if r == 0 && err == nil {
			break
		}

		if err != nil {
			return transferred, err
		}

		off := 0
		for off < r {
			w, err := dst.Write(buf[off:r])
			if err != nil {
				return transferred, err
			}
			if w == 0 {
				break
			}
			off += w
		}

		transferred += int64(r)
	}

	return transferred, nil
}
