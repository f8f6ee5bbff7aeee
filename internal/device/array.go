package device

import "unsafe"

// Array owns one device allocation sized for n elements of T. The zero value
// is an empty array bound to no backend; n == 0 means nothing is allocated.
type Array[T any] struct {
	backend Backend
	ptr     Ptr
	n       int
}

// NewArray allocates n elements of T on b.
func NewArray[T any](b Backend, n int) (*Array[T], error) {
	a := &Array[T]{backend: b}
	if err := a.allocate(n, 2); err != nil {
		return nil, err
	}
	return a, nil
}

func elemSize[T any]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

func asBytes[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(unsafe.SliceData(s))), len(s)*elemSize[T]())
}

func (a *Array[T]) Len() int         { return a.n }
func (a *Array[T]) ElemSize() int    { return elemSize[T]() }
func (a *Array[T]) Bytes() int       { return a.n * elemSize[T]() }
func (a *Array[T]) Backend() Backend { return a.backend }
func (a *Array[T]) Ptr() Ptr         { return a.ptr }
func (a *Array[T]) Empty() bool      { return a.n == 0 }

// Allocate releases any held memory and reserves n elements.
func (a *Array[T]) Allocate(n int) error {
	return a.allocate(n, 2)
}

func (a *Array[T]) allocate(n, skip int) error {
	a.Release()
	if n <= 0 {
		return nil
	}
	if a.backend == nil {
		a.backend = GetBackend()
	}
	bytes := n * elemSize[T]()
	p, err := a.backend.Alloc(bytes)
	if err != nil {
		return &AllocError{Bytes: bytes, Backend: a.backend.Name(), Site: callSite(skip), Err: err}
	}
	a.ptr = p
	a.n = n
	return nil
}

// Release frees the allocation if one is held. It is safe to call repeatedly.
func (a *Array[T]) Release() {
	if a.ptr != 0 && a.backend != nil {
		_ = a.backend.Free(a.ptr)
	}
	a.ptr = 0
	a.n = 0
}

func (a *Array[T]) checkLen(n int) error {
	if n != a.n {
		return &TransferError{Op: "copy", Bytes: n * elemSize[T](), Err: ErrSizeMismatch}
	}
	return nil
}

// CopyFrom uploads exactly Len() elements from host.
func (a *Array[T]) CopyFrom(host []T) error {
	if err := a.checkLen(len(host)); err != nil || a.n == 0 {
		return err
	}
	if err := a.backend.CopyHostToDevice(a.ptr, asBytes(host), DefaultStream); err != nil {
		return &TransferError{Op: "host to device", Bytes: a.Bytes(), Err: err}
	}
	return nil
}

// CopyFromAsync queues an upload on s. host must stay untouched until the
// returned transfer completes.
func (a *Array[T]) CopyFromAsync(host []T, s Stream) (*Transfer, error) {
	if err := a.checkLen(len(host)); err != nil {
		return nil, err
	}
	if a.n == 0 {
		return Completed(nil), nil
	}
	if err := a.backend.CopyHostToDevice(a.ptr, asBytes(host), s); err != nil {
		return nil, &TransferError{Op: "async host to device", Bytes: a.Bytes(), Err: err}
	}
	return newTransfer(a.backend, s, nil), nil
}

// CopyTo downloads exactly Len() elements into host.
func (a *Array[T]) CopyTo(host []T) error {
	if err := a.checkLen(len(host)); err != nil || a.n == 0 {
		return err
	}
	if err := a.backend.CopyDeviceToHost(asBytes(host), a.ptr, DefaultStream); err != nil {
		return &TransferError{Op: "device to host", Bytes: a.Bytes(), Err: err}
	}
	return nil
}

// CopyToAsync queues a download on s.
func (a *Array[T]) CopyToAsync(host []T, s Stream) (*Transfer, error) {
	if err := a.checkLen(len(host)); err != nil {
		return nil, err
	}
	if a.n == 0 {
		return Completed(nil), nil
	}
	if err := a.backend.CopyDeviceToHost(asBytes(host), a.ptr, s); err != nil {
		return nil, &TransferError{Op: "async device to host", Bytes: a.Bytes(), Err: err}
	}
	return newTransfer(a.backend, s, nil), nil
}

// CopyToDevice copies every element into dst, which must have the same length.
func (a *Array[T]) CopyToDevice(dst *Array[T]) error {
	if err := a.checkLen(dst.n); err != nil || a.n == 0 {
		return err
	}
	if err := a.backend.CopyDeviceToDevice(dst.ptr, a.ptr, a.Bytes(), DefaultStream); err != nil {
		return &TransferError{Op: "device to device", Bytes: a.Bytes(), Err: err}
	}
	return nil
}

func (a *Array[T]) CopyToDeviceAsync(dst *Array[T], s Stream) (*Transfer, error) {
	if err := a.checkLen(dst.n); err != nil {
		return nil, err
	}
	if a.n == 0 {
		return Completed(nil), nil
	}
	if err := a.backend.CopyDeviceToDevice(dst.ptr, a.ptr, a.Bytes(), s); err != nil {
		return nil, &TransferError{Op: "async device to device", Bytes: a.Bytes(), Err: err}
	}
	return newTransfer(a.backend, s, nil), nil
}

// FillBytes sets every byte of the allocation to value. This is a byte-level
// fill: FillBytes(1) on an int32 array yields 0x01010101, not 1.
func (a *Array[T]) FillBytes(value byte) error {
	if a.n == 0 {
		return nil
	}
	if err := a.backend.Memset(a.ptr, value, a.Bytes()); err != nil {
		return &TransferError{Op: "memset", Bytes: a.Bytes(), Err: err}
	}
	return nil
}

// FillElements sets every element to v. Only 4, 8, 12 and 16 byte elements
// are supported.
func (a *Array[T]) FillElements(v T) error {
	switch size := elemSize[T](); size {
	case 4, 8, 12, 16:
	default:
		return &TransferError{Op: "memset by value", Bytes: size, Err: ErrUnsupportedWidth}
	}
	if a.n == 0 {
		return nil
	}
	pattern := asBytes([]T{v})
	if err := a.backend.MemsetPattern(a.ptr, pattern, a.n); err != nil {
		return &TransferError{Op: "memset by value", Bytes: a.Bytes(), Err: err}
	}
	return nil
}

// View exposes the device memory to host kernels. It fails on backends that
// are not host addressable. No transfer touching the array may be in flight
// while the view is used.
func (a *Array[T]) View() ([]T, error) {
	if a.n == 0 {
		return nil, nil
	}
	ha, ok := a.backend.(HostAddressable)
	if !ok {
		return nil, ErrNotHostAddressable
	}
	b, err := ha.HostBytes(a.ptr, a.Bytes())
	if err != nil {
		return nil, err
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), a.n), nil
}

// Clone returns a deep copy with its own allocation.
func (a *Array[T]) Clone() (*Array[T], error) {
	c := &Array[T]{backend: a.backend}
	if err := c.allocate(a.n, 2); err != nil {
		return nil, err
	}
	if err := a.CopyToDevice(c); err != nil {
		c.Release()
		return nil, err
	}
	return c, nil
}

// Move transfers ownership of the allocation to the returned array and leaves
// a empty.
func (a *Array[T]) Move() *Array[T] {
	m := &Array[T]{backend: a.backend, ptr: a.ptr, n: a.n}
	a.ptr = 0
	a.n = 0
	return m
}

// Assign makes a a copy of src, reallocating when the lengths differ.
func (a *Array[T]) Assign(src *Array[T]) error {
	if a == src {
		return nil
	}
	if a.backend == nil {
		a.backend = src.backend
	}
	if a.n != src.n {
		if err := a.allocate(src.n, 2); err != nil {
			return err
		}
	}
	return src.CopyToDevice(a)
}
