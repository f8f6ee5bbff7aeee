// Package setup builds initial conditions: atoms on a lattice or at random
// non-overlapping positions, and velocities drawn for a target temperature.
package setup

import (
	"errors"
	"fmt"
	"math"
	"math/rand"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

var (
	ErrNonPositiveCount    = errors.New("setup: atom count must be positive")
	ErrTooFewAtoms         = errors.New("setup: temperature needs at least two atoms")
	ErrPackingTooDense     = errors.New("setup: random packing too dense")
	ErrNegativeTemperature = errors.New("setup: negative temperature")
	ErrBadMinDist          = errors.New("setup: minimum distance must not be negative")
)

// DefaultAttemptsPerAtom bounds PopulateRand to this many consecutive
// rejections per requested atom.
const DefaultAttemptsPerAtom = 1000

type options struct {
	groupTag    uint32
	maxAttempts int
}

type Option func(*options)

// WithGroup adds the populated atoms to the group with the given tag.
func WithGroup(tag uint32) Option { return func(o *options) { o.groupTag = tag } }

// WithMaxAttempts sets the number of consecutive rejected draws after which
// PopulateRand gives up.
func WithMaxAttempts(n int) Option { return func(o *options) { o.maxAttempts = n } }

func collect(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// side returns the smallest k with k^dims >= n.
func side(n, dims int) int {
	k := int(math.Round(math.Pow(float64(n), 1/float64(dims))))
	for pow(k, dims) < n {
		k++
	}
	return k
}

func pow(k, dims int) int {
	p := 1
	for i := 0; i < dims; i++ {
		p *= k
	}
	return p
}

// PopulateOnGrid adds n atoms of type handle on a uniform lattice spanning
// bounds, with ceil(cbrt(n)) sites per side (ceil(sqrt(n)) in 2-D). Sites are
// filled in lattice order and filling stops once n atoms have been added.
func PopulateOnGrid(s *md.State, bounds md.Bounds, handle string, n int, opts ...Option) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveCount, n)
	}
	if _, err := s.AtomParams.TypeOf(handle); err != nil {
		return err
	}
	o := collect(opts)
	k := side(n, s.Dims())
	kz := k
	if s.Is2D {
		kz = 1
	}
	added := 0
	for i := 0; i < k; i++ {
		for j := 0; j < k; j++ {
			for l := 0; l < kz; l++ {
				if added == n {
					return nil
				}
				f := md.Vec3{float64(i) / float64(k), float64(j) / float64(k), float64(l) / float64(k)}
				if _, err := s.AddAtom(handle, bounds.FromFrac(f), o.groupTag); err != nil {
					return err
				}
				added++
			}
		}
	}
	return nil
}

// PopulateRand adds n atoms of type handle at uniformly random positions in
// bounds, rejecting any candidate closer than distMin to an atom already in
// the state. Each candidate is checked against the whole population.
func PopulateRand(s *md.State, rng *rand.Rand, bounds md.Bounds, handle string, n int, distMin float64, opts ...Option) error {
	if n <= 0 {
		return fmt.Errorf("%w: %d", ErrNonPositiveCount, n)
	}
	if distMin < 0 {
		return fmt.Errorf("%w: %g", ErrBadMinDist, distMin)
	}
	if _, err := s.AtomParams.TypeOf(handle); err != nil {
		return err
	}
	o := collect(opts)
	maxAttempts := o.maxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultAttemptsPerAtom * n
	}
	min2 := distMin * distMin

	added, rejected := 0, 0
	for added < n {
		f := md.Vec3{rng.Float64(), rng.Float64(), rng.Float64()}
		if s.Is2D {
			f[2] = 0
		}
		pos := bounds.FromFrac(f)
		if overlaps(s, pos, min2) {
			rejected++
			if rejected >= maxAttempts {
				return fmt.Errorf("%w: placed %d of %d atoms, %d draws rejected in a row",
					ErrPackingTooDense, added, n, rejected)
			}
			continue
		}
		if _, err := s.AddAtom(handle, pos, o.groupTag); err != nil {
			return err
		}
		added++
		rejected = 0
	}
	return nil
}

func overlaps(s *md.State, pos md.Vec3, min2 float64) bool {
	if min2 == 0 {
		return false
	}
	for i := range s.Atoms {
		if s.MinImage(s.Atoms[i].Pos, pos).Norm2() < min2 {
			return true
		}
	}
	return false
}

// InitTemp draws velocities for the atoms of group from a normal
// distribution of width sqrt(T/m), removes the group's mean velocity and
// rescales so the group's kinetic temperature is exactly temp.
func InitTemp(s *md.State, rng *rand.Rand, group string, temp float64) error {
	if temp < 0 {
		return fmt.Errorf("%w: %g", ErrNegativeTemperature, temp)
	}
	mask, err := s.GroupTag(group)
	if err != nil {
		return err
	}
	idxs := s.GroupIndices(mask)
	if len(idxs) < 2 {
		return fmt.Errorf("%w: group %q has %d", ErrTooFewAtoms, group, len(idxs))
	}

	for _, i := range idxs {
		a := &s.Atoms[i]
		sigma := math.Sqrt(temp / a.Mass)
		a.Vel = md.Vec3{rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64()}.Scale(sigma)
		if s.Is2D {
			a.Vel[2] = 0
		}
	}
	mean := thermo.MeanVelocity(s.Atoms, mask)
	for _, i := range idxs {
		s.Atoms[i].Vel = s.Atoms[i].Vel.Sub(mean)
	}

	cur := thermo.Temperature(s.Atoms, mask, s.Dims())
	scale := 0.0
	if cur > 0 {
		scale = math.Sqrt(temp / cur)
	}
	for _, i := range idxs {
		s.Atoms[i].Vel = s.Atoms[i].Vel.Scale(scale)
	}
	return nil
}
