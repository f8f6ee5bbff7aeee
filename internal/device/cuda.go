//go:build cuda

package device

/*
#cgo CFLAGS: -I/opt/cuda/include
#cgo LDFLAGS: -L/opt/cuda/lib64 -lcudart
#include <stdlib.h>
#include <cuda_runtime.h>

static int cuda_device_count() {
	int n = 0;
	if (cudaGetDeviceCount(&n) != cudaSuccess) {
		return 0;
	}
	return n;
}

static const char* cuda_device_name(int dev) {
	static struct cudaDeviceProp prop;
	if (cudaGetDeviceProperties(&prop, dev) != cudaSuccess) {
		return "";
	}
	return prop.name;
}

static int cuda_malloc_managed(void **ptr, size_t bytes) {
	return (int) cudaMallocManaged(ptr, bytes, cudaMemAttachGlobal);
}
*/
import "C"

import (
	"fmt"
	"sync"
	"unsafe"
)

// CUDABackend allocates unified memory, so host kernels and the GPU share the
// same addresses. Asynchronous copies are serialized per stream on a host
// queue because cgo forbids C retaining Go pointers past the call.
type CUDABackend struct {
	available  bool
	deviceName string

	mu      sync.Mutex
	sizes   map[Ptr]int
	streams streamSet
}

func NewCUDABackend() *CUDABackend {
	count := int(C.cuda_device_count())
	name := ""
	if count > 0 {
		name = C.GoString(C.cuda_device_name(0))
	}
	return &CUDABackend{
		available:  count > 0,
		deviceName: name,
		sizes:      make(map[Ptr]int),
	}
}

func (c *CUDABackend) Name() string {
	if c.available {
		return "cuda (" + c.deviceName + ")"
	}
	return "cuda (not available)"
}

func (c *CUDABackend) Available() bool { return c.available }

func (c *CUDABackend) Cleanup() {
	c.streams.closeAll()
}

func cudaErr(code C.cudaError_t) error {
	if code == C.cudaSuccess {
		return nil
	}
	return fmt.Errorf("cuda: %s", C.GoString(C.cudaGetErrorString(code)))
}

func (c *CUDABackend) Alloc(bytes int) (Ptr, error) {
	if !c.available {
		return 0, ErrUnavailable
	}
	if bytes <= 0 {
		return 0, ErrAlloc
	}
	var p unsafe.Pointer
	if code := C.cuda_malloc_managed(&p, C.size_t(bytes)); code != 0 {
		return 0, fmt.Errorf("%w: %v", ErrOutOfMemory, cudaErr(C.cudaError_t(code)))
	}
	ptr := Ptr(uintptr(p))
	c.mu.Lock()
	c.sizes[ptr] = bytes
	c.mu.Unlock()
	return ptr, nil
}

func (c *CUDABackend) Free(p Ptr) error {
	c.mu.Lock()
	_, ok := c.sizes[p]
	delete(c.sizes, p)
	c.mu.Unlock()
	if !ok {
		return ErrInvalidPointer
	}
	return cudaErr(C.cudaFree(unsafe.Pointer(uintptr(p))))
}

func (c *CUDABackend) HostBytes(p Ptr, bytes int) ([]byte, error) {
	c.mu.Lock()
	size, ok := c.sizes[p]
	c.mu.Unlock()
	if !ok {
		return nil, ErrInvalidPointer
	}
	if bytes > size {
		return nil, ErrSizeMismatch
	}
	if err := cudaErr(C.cudaDeviceSynchronize()); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(p))), bytes), nil
}

func (c *CUDABackend) CopyHostToDevice(dst Ptr, src []byte, s Stream) error {
	if len(src) == 0 {
		return nil
	}
	return c.streams.run(s, func() error {
		return cudaErr(C.cudaMemcpy(unsafe.Pointer(uintptr(dst)), unsafe.Pointer(&src[0]),
			C.size_t(len(src)), C.cudaMemcpyHostToDevice))
	})
}

func (c *CUDABackend) CopyDeviceToHost(dst []byte, src Ptr, s Stream) error {
	if len(dst) == 0 {
		return nil
	}
	return c.streams.run(s, func() error {
		return cudaErr(C.cudaMemcpy(unsafe.Pointer(&dst[0]), unsafe.Pointer(uintptr(src)),
			C.size_t(len(dst)), C.cudaMemcpyDeviceToHost))
	})
}

func (c *CUDABackend) CopyDeviceToDevice(dst, src Ptr, bytes int, s Stream) error {
	return c.streams.run(s, func() error {
		return cudaErr(C.cudaMemcpy(unsafe.Pointer(uintptr(dst)), unsafe.Pointer(uintptr(src)),
			C.size_t(bytes), C.cudaMemcpyDeviceToDevice))
	})
}

func (c *CUDABackend) Memset(p Ptr, value byte, bytes int) error {
	return cudaErr(C.cudaMemset(unsafe.Pointer(uintptr(p)), C.int(value), C.size_t(bytes)))
}

func (c *CUDABackend) MemsetPattern(p Ptr, pattern []byte, count int) error {
	buf, err := c.HostBytes(p, len(pattern)*count)
	if err != nil {
		return err
	}
	fillPattern(buf, pattern)
	return nil
}

func (c *CUDABackend) NewStream() (Stream, error) {
	if !c.available {
		return 0, ErrUnavailable
	}
	return c.streams.create(), nil
}

func (c *CUDABackend) Synchronize(s Stream) error {
	if err := c.streams.sync(s); err != nil {
		return err
	}
	return cudaErr(C.cudaDeviceSynchronize())
}
