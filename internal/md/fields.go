package md

// FieldKind distinguishes vector and integer per-atom fields.
type FieldKind int

const (
	VecField FieldKind = iota
	IntField
	UintField
)

// Field describes one per-atom quantity for writers that serialize atoms
// without knowing their layout. Extractors are pure.
type Field struct {
	Tag  string
	Kind FieldKind

	Vec    func(*Atom) Vec3
	SetVec func(*Atom, Vec3)
	Int    func(*Atom) int64
	SetInt func(*Atom, int64)
}

// Fields lists the per-atom fields in snapshot order.
func Fields() []Field {
	return []Field{
		{
			Tag:    "position",
			Kind:   VecField,
			Vec:    func(a *Atom) Vec3 { return a.Pos },
			SetVec: func(a *Atom, v Vec3) { a.Pos = v },
		},
		{
			Tag:    "velocity",
			Kind:   VecField,
			Vec:    func(a *Atom) Vec3 { return a.Vel },
			SetVec: func(a *Atom, v Vec3) { a.Vel = v },
		},
		{
			Tag:    "force",
			Kind:   VecField,
			Vec:    func(a *Atom) Vec3 { return a.Force },
			SetVec: func(a *Atom, v Vec3) { a.Force = v },
		},
		{
			Tag:    "forceLast",
			Kind:   VecField,
			Vec:    func(a *Atom) Vec3 { return a.ForceLast },
			SetVec: func(a *Atom, v Vec3) { a.ForceLast = v },
		},
		{
			Tag:    "groupTag",
			Kind:   UintField,
			Int:    func(a *Atom) int64 { return int64(a.GroupTag) },
			SetInt: func(a *Atom, v int64) { a.GroupTag = uint32(v) },
		},
		{
			Tag:    "type",
			Kind:   IntField,
			Int:    func(a *Atom) int64 { return int64(a.Type) },
			SetInt: func(a *Atom, v int64) { a.Type = int(v) },
		},
		{
			Tag:    "id",
			Kind:   IntField,
			Int:    func(a *Atom) int64 { return int64(a.ID) },
			SetInt: func(a *Atom, v int64) { a.ID = int(v) },
		},
	}
}
