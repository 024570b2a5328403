package convert

import "sync"

// bufferCacheSize bounds the number of retained scratch buffers.
const bufferCacheSize = 5

// bufferCache is a best-effort reuse pool for input copy buffers. It holds
// no job-identifying state and is safe to clear at any time.
type bufferCache struct {
	mu   sync.Mutex
	bufs [][]byte
}

// get returns a buffer of length n, reusing a cached allocation when one is
// large enough.
func (c *bufferCache) get(n int) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, buf := range c.bufs {
		if cap(buf) >= n {
			c.bufs = append(c.bufs[:i], c.bufs[i+1:]...)
			return buf[:n]
		}
	}
	return make([]byte, n)
}

// put returns a buffer to the pool, dropping it when the pool is full.
func (c *bufferCache) put(buf []byte) {
	if buf == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.bufs) < bufferCacheSize {
		c.bufs = append(c.bufs, buf[:0])
	}
}

// clear releases all pooled buffers.
func (c *bufferCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bufs = nil
}
