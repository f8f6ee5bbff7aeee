// Package md holds the mutable particle state of a molecular dynamics run.
//
//   - [Atom]: one particle with position, velocity and force accumulators
//   - [AtomParams]: the append-only table of atom types
//   - [Bounds]: the simulation cell, possibly triclinic
//   - [Bond], [Angle], [Dihedral]: topology referencing atoms by id
//   - [State]: owns all of the above plus groups and the turn counter
//   - [DeviceData]: structure-of-arrays device mirrors used by kernels
//
// Atoms and topology are appended during setup and may be appended mid-run;
// nothing is removed individually. Appends set [State.Changed] so the
// integrator knows to re-upload device data.
package md
