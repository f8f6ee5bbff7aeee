package device

// Mirror pairs a host slice with a device array of the same length. Host is
// the staging area for uploads and the destination of downloads.
type Mirror[T any] struct {
	Host    []T
	dev     *Array[T]
	backend Backend
}

func NewMirror[T any](b Backend, n int) *Mirror[T] {
	return &Mirror[T]{Host: make([]T, n), backend: b}
}

// MirrorOf wraps an existing host slice without copying it.
func MirrorOf[T any](b Backend, host []T) *Mirror[T] {
	return &Mirror[T]{Host: host, backend: b}
}

func (m *Mirror[T]) Len() int { return len(m.Host) }

// Device returns the device side, which is empty until the first upload.
func (m *Mirror[T]) Device() *Array[T] {
	if m.dev == nil {
		m.dev = &Array[T]{backend: m.backend}
	}
	return m.dev
}

func (m *Mirror[T]) ensureDevice() error {
	d := m.Device()
	if d.Len() != len(m.Host) {
		return d.allocate(len(m.Host), 3)
	}
	return nil
}

// DataToDevice uploads Host, reallocating the device side if the length changed.
func (m *Mirror[T]) DataToDevice() error {
	if err := m.ensureDevice(); err != nil {
		return err
	}
	return m.dev.CopyFrom(m.Host)
}

// DataToHost downloads the device side into Host.
func (m *Mirror[T]) DataToHost() error {
	if err := m.ensureDevice(); err != nil {
		return err
	}
	return m.dev.CopyTo(m.Host)
}

// DataToHostAsync queues a download on s. Host must not be read until the
// transfer completes.
func (m *Mirror[T]) DataToHostAsync(s Stream) (*Transfer, error) {
	if err := m.ensureDevice(); err != nil {
		return nil, err
	}
	return m.dev.CopyToAsync(m.Host, s)
}

// View is the device side as seen by host kernels.
func (m *Mirror[T]) View() ([]T, error) {
	if err := m.ensureDevice(); err != nil {
		return nil, err
	}
	return m.dev.View()
}

// Resize changes the host length, keeping the common prefix. The device side
// is reallocated on the next transfer.
func (m *Mirror[T]) Resize(n int) {
	if n <= cap(m.Host) {
		old := len(m.Host)
		m.Host = m.Host[:n]
		var zero T
		for i := old; i < n; i++ {
			m.Host[i] = zero
		}
		return
	}
	h := make([]T, n)
	copy(h, m.Host)
	m.Host = h
}

func (m *Mirror[T]) Release() {
	if m.dev != nil {
		m.dev.Release()
	}
}
