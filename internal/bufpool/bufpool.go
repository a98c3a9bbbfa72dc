// Package bufpool provides size-bucketed byte-slice reuse for the
// connector package's pooled-buffer Transfer fallback, cutting GC
// pressure on the hot copy path the way the teacher's async I/O engine
// pools buffers for its own high-frequency reads.
package bufpool

import (
	"sort"
	"sync"
	"sync/atomic"
)

type bucket struct {
	size  int
	limit int64
	inuse int64
	pool  sync.Pool
}

// Pool is a set of sync.Pool buckets keyed by ascending buffer capacity.
type Pool struct {
	buckets []bucket
}

// Default returns a Pool sized for typical connector read/write chunks.
func Default() *Pool {
	return New([]int{4096, 16384, 65536, 262144}, 256)
}

// New builds a Pool from explicit bucket sizes (need not be pre-sorted)
// and an approximate per-bucket retention cap.
func New(sizes []int, maxPerBucket int) *Pool {
	bs := append([]int(nil), sizes...)
	sort.Ints(bs)

	buckets := make([]bucket, len(bs))
	for i, sz := range bs {
		size := sz
		buckets[i] = bucket{
			size:  size,
			limit: int64(maxPerBucket),
			pool:  sync.Pool{New: func() any { return make([]byte, size) }},
		}
	}

	return &Pool{buckets: buckets}
}

// Get returns a buffer with capacity >= n. Oversize requests bypass the
// pool entirely and are not eligible for Put.
func (p *Pool) Get(n int) []byte {
	if n <= 0 {
		n = 1
	}

	idx := p.findBucket(n)
	if idx < 0 {
		return make([]byte, n)
	}

	b := &p.buckets[idx]
	buf := b.pool.Get().([]byte)
	atomic.AddInt64(&b.inuse, 1)

	return buf[:n]
}

// Put returns buf to its bucket if its capacity exactly matches a known
// bucket size and that bucket is not over its retention cap.
func (p *Pool) Put(buf []byte) {
	capn := cap(buf)
	if capn == 0 {
		return
	}

	idx := p.findBucket(capn)
	if idx < 0 || p.buckets[idx].size != capn {
		return
	}

	b := &p.buckets[idx]
	if cur := atomic.AddInt64(&b.inuse, -1); cur >= b.limit {
		return
	}

	b.pool.Put(buf[:capn])
}

func (p *Pool) findBucket(n int) int {
	i := sort.Search(len(p.buckets), func(i int) bool { return p.buckets[i].size >= n })
	if i >= len(p.buckets) {
		return -1
	}

	return i
}
