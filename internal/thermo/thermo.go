// Package thermo computes thermodynamic observables in reduced units (kB = 1)
// and provides temperature schedules for thermostats.
package thermo

import (
	"gonum.org/v1/gonum/floats"

	"github.com/san-kum/mdsim/internal/md"
)

// KineticEnergy sums 1/2 m v² over atoms in mask.
func KineticEnergy(atoms []md.Atom, mask uint32) float64 {
	ke := make([]float64, 0, len(atoms))
	for i := range atoms {
		if atoms[i].InGroup(mask) {
			ke = append(ke, atoms[i].Kinetic())
		}
	}
	return floats.Sum(ke)
}

// Temperature is 2 KE / (dims N) for the atoms in mask. It is zero for an
// empty group.
func Temperature(atoms []md.Atom, mask uint32, dims int) float64 {
	n := Count(atoms, mask)
	if n == 0 || dims <= 0 {
		return 0
	}
	return 2 * KineticEnergy(atoms, mask) / float64(dims*n)
}

// Count returns the number of atoms in mask.
func Count(atoms []md.Atom, mask uint32) int {
	n := 0
	for i := range atoms {
		if atoms[i].InGroup(mask) {
			n++
		}
	}
	return n
}

// MeanVelocity is the unweighted average velocity of the atoms in mask.
func MeanVelocity(atoms []md.Atom, mask uint32) md.Vec3 {
	var sum md.Vec3
	n := 0
	for i := range atoms {
		if atoms[i].InGroup(mask) {
			sum = sum.Add(atoms[i].Vel)
			n++
		}
	}
	if n == 0 {
		return md.Vec3{}
	}
	return sum.Scale(1 / float64(n))
}

// TemperatureOf computes the temperature from SoA velocity and mass slices,
// as used on device views.
func TemperatureOf(vel []md.Vec3, mass []float64, tags []uint32, mask uint32, dims int) float64 {
	mv2 := make([]float64, 0, len(vel))
	for i := range vel {
		if tags[i]&mask == 0 {
			continue
		}
		v := vel[i]
		if dims == 2 {
			v[2] = 0
		}
		mv2 = append(mv2, mass[i]*v.Norm2())
	}
	if len(mv2) == 0 || dims <= 0 {
		return 0
	}
	return floats.Sum(mv2) / float64(dims*len(mv2))
}
