package sandbox

import (
	"bytes"
	"sync"
)

// cappedBuffer collects writes up to a byte limit and silently discards
// the rest. Writes never fail, so a chatty plugin keeps running; only its
// captured output is bounded.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	limit     int64
	discarded int64
}

func newCappedBuffer(limit int64) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	remaining := b.limit - int64(b.buf.Len())
	if remaining <= 0 {
		b.discarded += int64(len(p))
		return len(p), nil
	}
	keep := int64(len(p))
	if keep > remaining {
		keep = remaining
	}
	b.buf.Write(p[:keep])
	b.discarded += int64(len(p)) - keep
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *cappedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.discarded > 0
}
