package device

import (
	"sync"
	"unsafe"
)

// HostBackend keeps device allocations in host memory. It is always available
// and is the backend used by tests and by machines without a GPU.
type HostBackend struct {
	mu      sync.Mutex
	next    Ptr
	buffers map[Ptr][]byte
	used    int
	limit   int
	streams streamSet
}

// HostOption configures a HostBackend.
type HostOption func(*HostBackend)

// WithMemoryLimit caps the total bytes the backend will hand out.
func WithMemoryLimit(bytes int) HostOption {
	return func(h *HostBackend) { h.limit = bytes }
}

func NewHostBackend(opts ...HostOption) *HostBackend {
	h := &HostBackend{buffers: make(map[Ptr][]byte)}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *HostBackend) Name() string    { return "host" }
func (h *HostBackend) Available() bool { return true }

// Used reports the bytes currently allocated.
func (h *HostBackend) Used() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.used
}

func (h *HostBackend) Alloc(bytes int) (Ptr, error) {
	if bytes <= 0 {
		return 0, ErrAlloc
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.limit > 0 && h.used+bytes > h.limit {
		return 0, ErrOutOfMemory
	}
	// Backed by uint64 words so float64 and 8-byte vector elements stay aligned.
	words := make([]uint64, (bytes+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), bytes)
	h.next++
	h.buffers[h.next] = buf
	h.used += bytes
	return h.next, nil
}

func (h *HostBackend) Free(p Ptr) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.buffers[p]
	if !ok {
		return ErrInvalidPointer
	}
	h.used -= len(buf)
	delete(h.buffers, p)
	return nil
}

func (h *HostBackend) buffer(p Ptr) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	buf, ok := h.buffers[p]
	if !ok {
		return nil, ErrInvalidPointer
	}
	return buf, nil
}

func (h *HostBackend) HostBytes(p Ptr, bytes int) ([]byte, error) {
	buf, err := h.buffer(p)
	if err != nil {
		return nil, err
	}
	if bytes > len(buf) {
		return nil, ErrSizeMismatch
	}
	return buf[:bytes], nil
}

func (h *HostBackend) CopyHostToDevice(dst Ptr, src []byte, s Stream) error {
	return h.streams.run(s, func() error {
		buf, err := h.HostBytes(dst, len(src))
		if err != nil {
			return err
		}
		copy(buf, src)
		return nil
	})
}

func (h *HostBackend) CopyDeviceToHost(dst []byte, src Ptr, s Stream) error {
	return h.streams.run(s, func() error {
		buf, err := h.HostBytes(src, len(dst))
		if err != nil {
			return err
		}
		copy(dst, buf)
		return nil
	})
}

func (h *HostBackend) CopyDeviceToDevice(dst, src Ptr, bytes int, s Stream) error {
	return h.streams.run(s, func() error {
		from, err := h.HostBytes(src, bytes)
		if err != nil {
			return err
		}
		to, err := h.HostBytes(dst, bytes)
		if err != nil {
			return err
		}
		copy(to, from)
		return nil
	})
}

func (h *HostBackend) Memset(p Ptr, value byte, bytes int) error {
	buf, err := h.HostBytes(p, bytes)
	if err != nil {
		return err
	}
	for i := range buf {
		buf[i] = value
	}
	return nil
}

func (h *HostBackend) MemsetPattern(p Ptr, pattern []byte, count int) error {
	buf, err := h.HostBytes(p, len(pattern)*count)
	if err != nil {
		return err
	}
	fillPattern(buf, pattern)
	return nil
}

func (h *HostBackend) NewStream() (Stream, error) {
	return h.streams.create(), nil
}

func (h *HostBackend) Synchronize(s Stream) error {
	return h.streams.sync(s)
}

func (h *HostBackend) Cleanup() {
	h.streams.closeAll()
}

// fillPattern repeats pattern across buf by doubling the filled prefix.
func fillPattern(buf, pattern []byte) {
	if len(buf) == 0 || len(pattern) == 0 {
		return
	}
	n := copy(buf, pattern)
	for n < len(buf) {
		n += copy(buf[n:], buf[:n])
	}
}
