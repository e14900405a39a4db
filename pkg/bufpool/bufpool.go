// Package bufpool provides a tiered buffer pool for request frames.
//
// The LDAP front-end reads one BER frame per request into a pooled
// buffer and returns it once the response is written. Address book
// clients poll aggressively, so per-request allocations add up; the
// pool keeps frame buffers out of the garbage collector's way.
//
// Three size tiers cover the traffic shape:
//   - Small (4KB): bind and typical search requests
//   - Medium (64KB): searches with long filter lists
//   - Large (1MB): frames up to the configured message size cap
//
// Requests above the large tier are allocated directly and never
// pooled, so an occasional oversized frame does not pin memory.
//
// All operations are safe for concurrent use; each tier is a
// sync.Pool.
//
// Usage:
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import (
	"sync"
)

// Default buffer size classes. NewPool accepts overrides.
const (
	// DefaultSmallSize covers typical request frames (4KB)
	DefaultSmallSize = 4 << 10

	// DefaultMediumSize covers outsized search requests (64KB)
	DefaultMediumSize = 64 << 10

	// DefaultLargeSize covers frames near the message size cap (1MB)
	DefaultLargeSize = 1 << 20
)

// Pool manages byte slice pools organized by size class. Get selects
// the smallest class that fits and falls back to direct allocation for
// oversized requests.
type Pool struct {
	small      sync.Pool
	medium     sync.Pool
	large      sync.Pool
	smallSize  int
	mediumSize int
	largeSize  int
}

// Config holds the size classes for a custom pool.
type Config struct {
	// SmallSize is the size of small buffers (default: 4KB)
	SmallSize int

	// MediumSize is the size of medium buffers (default: 64KB)
	MediumSize int

	// LargeSize is the size of large buffers (default: 1MB)
	LargeSize int
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() Config {
	return Config{
		SmallSize:  DefaultSmallSize,
		MediumSize: DefaultMediumSize,
		LargeSize:  DefaultLargeSize,
	}
}

// NewPool creates a buffer pool with the given configuration. A nil
// config or zero fields fall back to the defaults.
func NewPool(cfg *Config) *Pool {
	if cfg == nil {
		defaultCfg := DefaultConfig()
		cfg = &defaultCfg
	}

	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{
		smallSize:  cfg.SmallSize,
		mediumSize: cfg.MediumSize,
		largeSize:  cfg.LargeSize,
	}

	p.small = sync.Pool{
		New: func() any {
			buf := make([]byte, p.smallSize)
			return &buf
		},
	}
	p.medium = sync.Pool{
		New: func() any {
			buf := make([]byte, p.mediumSize)
			return &buf
		},
	}
	p.large = sync.Pool{
		New: func() any {
			buf := make([]byte, p.largeSize)
			return &buf
		},
	}

	return p
}

// Get returns a byte slice of length size. Its capacity may exceed
// size to align with the pool's size classes. The caller must return
// the buffer with Put when done.
//
// Sizes above the large class are allocated directly and will not be
// pooled on Put.
func (p *Pool) Get(size int) []byte {
	var bufPtr *[]byte

	switch {
	case size <= p.smallSize:
		bufPtr = p.small.Get().(*[]byte)
	case size <= p.mediumSize:
		bufPtr = p.medium.Get().(*[]byte)
	case size <= p.largeSize:
		bufPtr = p.large.Get().(*[]byte)
	default:
		buf := make([]byte, size)
		return buf
	}

	buf := *bufPtr
	return buf[:size]
}

// Put returns a buffer obtained from Get to its pool. Buffers whose
// capacity matches no size class (oversized direct allocations,
// foreign slices) are left for the garbage collector. Nil is ignored.
func (p *Pool) Put(buf []byte) {
	if buf == nil {
		return
	}

	// The size class is identified by capacity; the length is restored
	// to the full class size for the next Get.
	switch cap(buf) {
	case p.smallSize:
		fullBuf := buf[:cap(buf)]
		p.small.Put(&fullBuf)
	case p.mediumSize:
		fullBuf := buf[:cap(buf)]
		p.medium.Put(&fullBuf)
	case p.largeSize:
		fullBuf := buf[:cap(buf)]
		p.large.Put(&fullBuf)
	}
}

// globalPool serves the package-level Get/Put used by the connection
// read loop.
var globalPool = NewPool(nil)

// Get returns a byte slice of length size from the global pool.
func Get(size int) []byte {
	return globalPool.Get(size)
}

// Put returns a buffer to the global pool. Pair every Get with a Put,
// usually via defer.
func Put(buf []byte) {
	globalPool.Put(buf)
}
