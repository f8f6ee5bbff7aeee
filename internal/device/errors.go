package device

import (
	"errors"
	"fmt"
	"runtime"
)

var (
	// ErrAlloc indicates the backend could not satisfy an allocation.
	ErrAlloc = errors.New("device: allocation failed")

	// ErrOutOfMemory indicates the backend memory budget is exhausted.
	ErrOutOfMemory = errors.New("device: out of memory")

	// ErrSizeMismatch indicates a transfer between buffers of different lengths.
	ErrSizeMismatch = errors.New("device: size mismatch")

	// ErrUnsupportedWidth indicates an element fill on a type whose size is not 4, 8, 12 or 16 bytes.
	ErrUnsupportedWidth = errors.New("device: element width not supported for fill")

	// ErrInvalidPointer indicates a pointer unknown to the backend.
	ErrInvalidPointer = errors.New("device: invalid device pointer")

	// ErrNotHostAddressable indicates the backend cannot expose device memory to host kernels.
	ErrNotHostAddressable = errors.New("device: memory is not host addressable")

	// ErrUnavailable indicates the backend has no usable device.
	ErrUnavailable = errors.New("device: backend not available")
)

// AllocError carries the context of a failed allocation.
type AllocError struct {
	Bytes   int
	Backend string
	Site    string
	Err     error
}

func (e *AllocError) Error() string {
	return fmt.Sprintf("device: allocating %d bytes on %s at %s: %v", e.Bytes, e.Backend, e.Site, e.Err)
}

func (e *AllocError) Unwrap() error {
	return e.Err
}

// TransferError carries the context of a failed copy or fill.
type TransferError struct {
	Op    string
	Bytes int
	Err   error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("device: %s of %d bytes: %v", e.Op, e.Bytes, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// callSite reports the caller of the exported function that failed.
func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", file, line)
}
