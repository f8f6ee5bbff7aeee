package device

import "sync"

// Ptr is an opaque handle to a device allocation.
type Ptr uintptr

// Stream identifies an ordered queue of asynchronous operations. The zero
// value is the default stream, on which every operation completes before the
// call returns.
type Stream uintptr

// DefaultStream executes operations synchronously.
const DefaultStream Stream = 0

// Backend is the raw memory interface of a compute device.
type Backend interface {
	Name() string
	Available() bool

	Alloc(bytes int) (Ptr, error)
	Free(p Ptr) error

	CopyHostToDevice(dst Ptr, src []byte, s Stream) error
	CopyDeviceToHost(dst []byte, src Ptr, s Stream) error
	CopyDeviceToDevice(dst, src Ptr, bytes int, s Stream) error

	Memset(p Ptr, value byte, bytes int) error
	MemsetPattern(p Ptr, pattern []byte, count int) error

	NewStream() (Stream, error)
	Synchronize(s Stream) error
	Cleanup()
}

// HostAddressable is implemented by backends whose allocations can be read and
// written directly by host kernels.
type HostAddressable interface {
	HostBytes(p Ptr, bytes int) ([]byte, error)
}

var (
	activeMu      sync.Mutex
	activeBackend Backend
)

// SetBackend replaces the process default backend, releasing the previous one.
func SetBackend(b Backend) {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeBackend != nil && activeBackend != b {
		activeBackend.Cleanup()
	}
	activeBackend = b
}

// GetBackend returns the process default backend, selecting one on first use.
func GetBackend() Backend {
	activeMu.Lock()
	defer activeMu.Unlock()
	if activeBackend == nil {
		activeBackend = AutoSelect()
	}
	return activeBackend
}

// AutoSelect prefers CUDA when a device is present and falls back to host memory.
func AutoSelect() Backend {
	cuda := NewCUDABackend()
	if cuda.Available() {
		return cuda
	}
	return NewHostBackend()
}

// Select returns the backend named by a config value ("auto", "host", "cuda").
func Select(name string) (Backend, error) {
	switch name {
	case "", "auto":
		return AutoSelect(), nil
	case "host", "cpu":
		return NewHostBackend(), nil
	case "cuda":
		cuda := NewCUDABackend()
		if !cuda.Available() {
			return nil, ErrUnavailable
		}
		return cuda, nil
	}
	return nil, ErrUnavailable
}
