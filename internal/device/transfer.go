package device

import "sync"

// Transfer is a handle to an asynchronous copy. The destination of the copy
// must not be read until Wait returns nil.
type Transfer struct {
	backend Backend
	stream  Stream
	once    sync.Once
	err     error
	then    func()
}

func newTransfer(b Backend, s Stream, then func()) *Transfer {
	return &Transfer{backend: b, stream: s, then: then}
}

// Completed returns a transfer that has already finished with err.
func Completed(err error) *Transfer {
	t := &Transfer{err: err}
	t.once.Do(func() {})
	return t
}

// Wait blocks until the stream carrying the copy has drained.
func (t *Transfer) Wait() error {
	if t == nil {
		return nil
	}
	t.once.Do(func() {
		if t.backend != nil {
			t.err = t.backend.Synchronize(t.stream)
		}
		if t.err == nil && t.then != nil {
			t.then()
		}
	})
	return t.err
}

// WaitAll waits on every transfer and returns the first error.
func WaitAll(ts ...*Transfer) error {
	var first error
	for _, t := range ts {
		if err := t.Wait(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
