package params

import (
	"errors"
	"fmt"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
)

// Set is the labelled collection of matrices owned by one pair fix. User
// values are kept as entered; Prepare populates a copy of each matrix and
// pushes it to the device, so later edits to self parameters are never
// shadowed by earlier mixing.
type Set struct {
	backend device.Backend
	size    int
	order   []string
	entries map[string]*entry
	dirty   bool
}

type entry struct {
	explicit  *Matrix
	populated *Matrix
	mix       MixFunc
	dev       *device.Array[float32]
}

// Record is the persisted form of one labelled matrix.
type Record struct {
	Label  string
	Size   int
	Values []float32
}

func NewSet(b device.Backend) *Set {
	return &Set{backend: b, entries: make(map[string]*entry), dirty: true}
}

// Label registers a matrix under label with its mixing rule.
func (s *Set) Label(label string, mix MixFunc) {
	if e, ok := s.entries[label]; ok {
		e.mix = mix
		s.dirty = true
		return
	}
	s.order = append(s.order, label)
	s.entries[label] = &entry{explicit: NewMatrix(s.size), mix: mix}
	s.dirty = true
}

// Labels returns the registered labels in registration order.
func (s *Set) Labels() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

func (s *Set) Size() int { return s.size }

// Dirty reports whether any matrix changed since the last Prepare.
func (s *Set) Dirty() bool { return s.dirty }

// EnsureSize grows every matrix to n types. It never shrinks.
func (s *Set) EnsureSize(n int) error {
	if n < s.size {
		return fmt.Errorf("%w: %d -> %d", ErrShrink, s.size, n)
	}
	if n == s.size {
		return nil
	}
	for _, label := range s.order {
		e := s.entries[label]
		grown, err := e.explicit.Resize(n)
		if err != nil {
			return err
		}
		e.explicit = grown
	}
	s.size = n
	s.dirty = true
	return nil
}

// SetParameter sets the (a, b) cell of label, resolving the type handles
// through p. Both orderings are set.
func (s *Set) SetParameter(p *md.AtomParams, label, a, b string, v float64) error {
	e, ok := s.entries[label]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownKey, label)
	}
	i, err := p.TypeOf(a)
	if err != nil {
		return err
	}
	j, err := p.TypeOf(b)
	if err != nil {
		return err
	}
	if err := s.EnsureSize(p.NumTypes()); err != nil {
		return err
	}
	e.explicit.SetSymmetric(i, j, float32(v))
	s.dirty = true
	return nil
}

// Explicit returns the user-set matrix for label.
func (s *Set) Explicit(label string) (*Matrix, bool) {
	e, ok := s.entries[label]
	if !ok {
		return nil, false
	}
	return e.explicit, true
}

// Prepare sizes every matrix to p's type count, populates them with their
// mixing rules and uploads the result. A missing self parameter is returned
// as a *MissingParameterError naming the label and type handle.
func (s *Set) Prepare(p *md.AtomParams) error {
	if err := s.EnsureSize(p.NumTypes()); err != nil {
		return err
	}
	for _, label := range s.order {
		e := s.entries[label]
		pop := e.explicit.Clone()
		if err := pop.Populate(e.mix); err != nil {
			var mp *MissingParameterError
			if errors.As(err, &mp) {
				mp.Label = label
				if mp.Type < p.NumTypes() {
					mp.Handle = p.Handles[mp.Type]
				}
			}
			return err
		}
		if e.dev == nil {
			arr, err := device.NewArray[float32](s.backend, len(pop.Values()))
			if err != nil {
				return fmt.Errorf("params: %s: %w", label, err)
			}
			e.dev = arr
		} else if e.dev.Len() != len(pop.Values()) {
			if err := e.dev.Allocate(len(pop.Values())); err != nil {
				return fmt.Errorf("params: %s: %w", label, err)
			}
		}
		if err := e.dev.CopyFrom(pop.Values()); err != nil {
			return fmt.Errorf("params: %s: %w", label, err)
		}
		e.populated = pop
	}
	s.dirty = false
	return nil
}

// Device returns the uploaded populated matrix for label. It fails if the
// set changed since the last Prepare.
func (s *Set) Device(label string) (*device.Array[float32], error) {
	e, ok := s.entries[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, label)
	}
	if s.dirty || e.dev == nil {
		return nil, ErrStale
	}
	return e.dev, nil
}

// View is the device matrix of label as seen by host kernels.
func (s *Set) View(label string) ([]float32, error) {
	arr, err := s.Device(label)
	if err != nil {
		return nil, err
	}
	return arr.View()
}

// Populated returns the host copy of the last prepared matrix for label.
func (s *Set) Populated(label string) (*Matrix, error) {
	e, ok := s.entries[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKey, label)
	}
	if s.dirty || e.populated == nil {
		return nil, ErrStale
	}
	return e.populated, nil
}

// Records returns the user-set matrices in label order.
func (s *Set) Records() []Record {
	recs := make([]Record, 0, len(s.order))
	for _, label := range s.order {
		m := s.entries[label].explicit.Clone()
		recs = append(recs, Record{Label: label, Size: m.Size(), Values: m.Values()})
	}
	return recs
}

// Restore replaces the user-set matrices with recs. Labels must already be
// registered; the set grows to the largest record.
func (s *Set) Restore(recs []Record) error {
	for _, r := range recs {
		if _, ok := s.entries[r.Label]; !ok {
			return fmt.Errorf("%w: %q", ErrUnknownKey, r.Label)
		}
		if r.Size < 0 || len(r.Values) != r.Size*r.Size {
			return fmt.Errorf("%w: %q has %d values for size %d", ErrBadRecord, r.Label, len(r.Values), r.Size)
		}
		if r.Size > s.size {
			if err := s.EnsureSize(r.Size); err != nil {
				return err
			}
		}
	}
	for _, r := range recs {
		e := s.entries[r.Label]
		m := NewMatrix(s.size)
		for i := 0; i < r.Size; i++ {
			for j := 0; j < r.Size; j++ {
				m.Set(i, j, r.Values[i*r.Size+j])
			}
		}
		e.explicit = m
	}
	s.dirty = true
	return nil
}

// Release frees the device matrices.
func (s *Set) Release() {
	for _, e := range s.entries {
		if e.dev != nil {
			e.dev.Release()
			e.dev = nil
		}
	}
	s.dirty = true
}
