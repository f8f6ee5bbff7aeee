//go:build !cuda

package device

type CUDABackend struct{}

func NewCUDABackend() *CUDABackend {
	return &CUDABackend{}
}

func (c *CUDABackend) Name() string    { return "cuda (not available)" }
func (c *CUDABackend) Available() bool { return false }
func (c *CUDABackend) Cleanup()        {}

func (c *CUDABackend) Alloc(bytes int) (Ptr, error) { return 0, ErrUnavailable }
func (c *CUDABackend) Free(p Ptr) error             { return ErrUnavailable }

func (c *CUDABackend) CopyHostToDevice(dst Ptr, src []byte, s Stream) error {
	return ErrUnavailable
}

func (c *CUDABackend) CopyDeviceToHost(dst []byte, src Ptr, s Stream) error {
	return ErrUnavailable
}

func (c *CUDABackend) CopyDeviceToDevice(dst, src Ptr, bytes int, s Stream) error {
	return ErrUnavailable
}

func (c *CUDABackend) Memset(p Ptr, value byte, bytes int) error            { return ErrUnavailable }
func (c *CUDABackend) MemsetPattern(p Ptr, pattern []byte, count int) error { return ErrUnavailable }
func (c *CUDABackend) NewStream() (Stream, error)                           { return 0, ErrUnavailable }
func (c *CUDABackend) Synchronize(s Stream) error                           { return ErrUnavailable }
