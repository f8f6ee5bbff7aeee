package md

import (
	"fmt"
	"sort"
)

const (
	// GroupAll is the handle of the group every atom belongs to.
	GroupAll = "all"
	// GroupNone selects no atoms.
	GroupNone = "none"
)

// State is the particle state of one run.
type State struct {
	Atoms      []Atom
	AtomParams AtomParams

	Bonds     []Bond
	Angles    []Angle
	Dihedrals []Dihedral

	Bounds   Bounds
	Periodic [3]bool
	Is2D     bool

	// Turn only increases. Dt is the integration timestep.
	Turn int64
	Dt   float64

	// Changed is set whenever atoms or topology are appended and cleared once
	// device data has been rebuilt.
	Changed bool

	// Device is populated by PrepareDevice for the duration of a run.
	Device *DeviceData

	groupTags map[string]uint32
	idToIdx   map[int]int
	nextID    int
}

func NewState() *State {
	return &State{
		Periodic:  [3]bool{true, true, true},
		Dt:        0.005,
		groupTags: map[string]uint32{GroupAll: 1},
		idToIdx:   make(map[int]int),
	}
}

// Dims is 2 for 2-D runs and 3 otherwise.
func (s *State) Dims() int {
	if s.Is2D {
		return 2
	}
	return 3
}

func (s *State) NumTypes() int { return s.AtomParams.NumTypes() }

// AddAtomType appends a type. Existing type indices never change.
func (s *State) AddAtomType(handle string, mass float64) (int, error) {
	idx, err := s.AtomParams.AddType(handle, mass)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", err, handle)
	}
	s.Changed = true
	return idx, nil
}

// AddAtom appends an atom of the given type at pos and returns its id. Every
// atom is a member of the "all" group in addition to groupTag.
func (s *State) AddAtom(handle string, pos Vec3, groupTag uint32) (int, error) {
	typ, err := s.AtomParams.TypeOf(handle)
	if err != nil {
		return 0, err
	}
	if s.Is2D {
		pos[2] = 0
	}
	a := Atom{
		ID:       s.nextID,
		Type:     typ,
		GroupTag: groupTag | s.groupTags[GroupAll],
		Mass:     s.AtomParams.Masses[typ],
		Pos:      pos,
	}
	if err := s.RestoreAtom(a); err != nil {
		return 0, err
	}
	return a.ID, nil
}

// RestoreAtom appends a fully specified atom, keeping its id. Used when
// hydrating a state from a snapshot.
func (s *State) RestoreAtom(a Atom) error {
	if _, dup := s.idToIdx[a.ID]; dup {
		return fmt.Errorf("%w: %d", ErrDuplicateID, a.ID)
	}
	if a.Type < 0 || a.Type >= s.NumTypes() {
		return fmt.Errorf("%w: type index %d", ErrUnknownType, a.Type)
	}
	if a.Mass == 0 {
		a.Mass = s.AtomParams.Masses[a.Type]
	}
	s.idToIdx[a.ID] = len(s.Atoms)
	s.Atoms = append(s.Atoms, a)
	if a.ID >= s.nextID {
		s.nextID = a.ID + 1
	}
	s.Changed = true
	return nil
}

// IndexOf resolves an atom id to its current slice index.
func (s *State) IndexOf(id int) (int, bool) {
	idx, ok := s.idToIdx[id]
	return idx, ok
}

// AtomByID returns the atom with id, or nil.
func (s *State) AtomByID(id int) *Atom {
	idx, ok := s.idToIdx[id]
	if !ok {
		return nil
	}
	return &s.Atoms[idx]
}

func (s *State) ValidAtomID(id int) bool {
	_, ok := s.idToIdx[id]
	return ok
}

// MaxID is the largest id in use, or -1 for an empty state.
func (s *State) MaxID() int { return s.nextID - 1 }

// CreateGroup allocates the next free bit for handle.
func (s *State) CreateGroup(handle string) (uint32, error) {
	if handle == GroupNone {
		return 0, ErrDuplicateGroup
	}
	if _, ok := s.groupTags[handle]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicateGroup, handle)
	}
	var used uint32
	for _, tag := range s.groupTags {
		used |= tag
	}
	for bit := 0; bit < 32; bit++ {
		tag := uint32(1) << bit
		if used&tag == 0 {
			s.groupTags[handle] = tag
			return tag, nil
		}
	}
	return 0, ErrTooManyGroups
}

// GroupTag returns the bitmask of handle. "none" is the empty mask.
func (s *State) GroupTag(handle string) (uint32, error) {
	if handle == GroupNone {
		return 0, nil
	}
	tag, ok := s.groupTags[handle]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownGroup, handle)
	}
	return tag, nil
}

// GroupTags returns a copy of the handle to bitmask table.
func (s *State) GroupTags() map[string]uint32 {
	out := make(map[string]uint32, len(s.groupTags))
	for k, v := range s.groupTags {
		out[k] = v
	}
	return out
}

// GroupHandles lists group handles in bit order.
func (s *State) GroupHandles() []string {
	handles := make([]string, 0, len(s.groupTags))
	for h := range s.groupTags {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return s.groupTags[handles[i]] < s.groupTags[handles[j]]
	})
	return handles
}

// RestoreGroup installs a handle with a known tag, as read from a snapshot.
func (s *State) RestoreGroup(handle string, tag uint32) {
	s.groupTags[handle] = tag
}

// AddToGroup sets the group bit on each listed atom.
func (s *State) AddToGroup(handle string, ids ...int) error {
	tag, err := s.GroupTag(handle)
	if err != nil {
		return err
	}
	for slot, id := range ids {
		a := s.AtomByID(id)
		if a == nil {
			return &InvalidAtomError{Owner: "group " + handle, ID: id, Slot: slot}
		}
		a.GroupTag |= tag
	}
	s.Changed = true
	return nil
}

// GroupIndices returns the slice indices of atoms in mask.
func (s *State) GroupIndices(mask uint32) []int {
	var idxs []int
	for i := range s.Atoms {
		if s.Atoms[i].InGroup(mask) {
			idxs = append(idxs, i)
		}
	}
	return idxs
}

func (s *State) checkIDs(owner string, ids []int) error {
	for slot, id := range ids {
		if !s.ValidAtomID(id) {
			return &InvalidAtomError{Owner: owner, ID: id, Slot: slot}
		}
	}
	return nil
}

func (s *State) AddBond(b Bond) error {
	if err := s.checkIDs("bond "+b.FixHandle, b.IDs[:]); err != nil {
		return err
	}
	s.Bonds = append(s.Bonds, b)
	s.Changed = true
	return nil
}

func (s *State) AddAngle(a Angle) error {
	if err := s.checkIDs("angle "+a.FixHandle, a.IDs[:]); err != nil {
		return err
	}
	s.Angles = append(s.Angles, a)
	s.Changed = true
	return nil
}

func (s *State) AddDihedral(d Dihedral) error {
	if err := s.checkIDs("dihedral "+d.FixHandle, d.IDs[:]); err != nil {
		return err
	}
	s.Dihedrals = append(s.Dihedrals, d)
	s.Changed = true
	return nil
}

// MinImage returns b - a under the cell's periodicity.
func (s *State) MinImage(a, b Vec3) Vec3 {
	d := s.Bounds.MinImage(b.Sub(a), s.Periodic)
	if s.Is2D {
		d[2] = 0
	}
	return d
}
