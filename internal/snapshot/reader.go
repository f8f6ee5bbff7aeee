package snapshot

import (
	"bufio"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/klauspost/compress/zstd"

	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/params"
)

// Configuration is one decoded <configuration> element.
type Configuration struct {
	Turn      int64
	Dimension int
	Periodic  [3]bool
	Bounds    md.Bounds
	Handles   []string
	Masses    []float64
	Groups    map[string]uint32
	Atoms     []md.Atom
	Bonds     []md.Bond
	Angles    []md.Angle
	Dihedrals []md.Dihedral
	Fixes     []fix.Record
}

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// ReadFile reads every configuration in path. Compression is detected from
// the content.
func ReadFile(path string) ([]*Configuration, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Read decodes configurations from r until the document ends. A document
// cut short after a complete configuration, as left by an interrupted
// run, is accepted.
func Read(r io.Reader) ([]*Configuration, error) {
	br := bufio.NewReader(r)
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("snapshot: zstd reader: %w", err)
		}
		defer zr.Close()
		return decode(zr)
	}
	return decode(br)
}

func decode(r io.Reader) ([]*Configuration, error) {
	dec := xml.NewDecoder(r)
	var out []*Configuration
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(out) > 0 && errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			var se *xml.SyntaxError
			if len(out) > 0 && errors.As(err, &se) {
				break
			}
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "configuration" {
			continue
		}
		var raw configurationXML
		if err := dec.DecodeElement(&raw, &start); err != nil {
			if len(out) > 0 {
				break
			}
			return nil, fmt.Errorf("snapshot: %w", err)
		}
		c, err := raw.configuration()
		if err != nil {
			return nil, fmt.Errorf("turn %d: %w", raw.Turn, err)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, ErrNoSnapshot
	}
	return out, nil
}

// Last returns the final configuration in path.
func Last(path string) (*Configuration, error) {
	cs, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return cs[len(cs)-1], nil
}

func (raw *configurationXML) configuration() (*Configuration, error) {
	c := &Configuration{Turn: raw.Turn, Dimension: raw.Dimension, Groups: make(map[string]uint32)}
	var err error
	if c.Periodic, err = parsePeriodic(raw.Periodic); err != nil {
		return nil, err
	}
	if c.Bounds, err = raw.Bounds.bounds(); err != nil {
		return nil, err
	}
	for _, row := range rows(raw.AtomParams.Handle) {
		c.Handles = append(c.Handles, row[0])
	}
	for _, row := range rows(raw.AtomParams.Mass) {
		m, err := parseFloats(row[:1])
		if err != nil {
			return nil, err
		}
		c.Masses = append(c.Masses, m[0])
	}
	if len(c.Handles) != raw.AtomParams.NumTypes || len(c.Masses) != len(c.Handles) {
		return nil, fmt.Errorf("%w: %d types, %d handles, %d masses", ErrCorrupt,
			raw.AtomParams.NumTypes, len(c.Handles), len(c.Masses))
	}
	for _, g := range raw.Groups {
		c.Groups[g.Handle] = g.Tag
	}

	if raw.NumAtoms < 0 {
		return nil, fmt.Errorf("%w: %d atoms", ErrCorrupt, raw.NumAtoms)
	}
	byTag := make(map[string]*blobXML, len(raw.Fields))
	for i := range raw.Fields {
		byTag[raw.Fields[i].XMLName.Local] = &raw.Fields[i]
	}
	fields := md.Fields()
	first, ok := byTag[fields[0].Tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingField, fields[0].Tag)
	}
	n, err := fieldLen(fields[0], first)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fields[0].Tag, err)
	}
	if n != raw.NumAtoms {
		return nil, fmt.Errorf("%w: %s holds %d atoms, numAtoms is %d", ErrCorrupt, fields[0].Tag, n, raw.NumAtoms)
	}

	c.Atoms = make([]md.Atom, raw.NumAtoms)
	for _, f := range fields {
		blob, ok := byTag[f.Tag]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingField, f.Tag)
		}
		if err := decodeField(f, blob, c.Atoms); err != nil {
			return nil, fmt.Errorf("%s: %w", f.Tag, err)
		}
	}
	for i := range c.Atoms {
		a := &c.Atoms[i]
		if a.Type < 0 || a.Type >= len(c.Masses) {
			return nil, fmt.Errorf("%w: atom %d has type %d", ErrCorrupt, a.ID, a.Type)
		}
		a.Mass = c.Masses[a.Type]
	}

	if err := c.decodeTopology(raw); err != nil {
		return nil, err
	}
	for _, fx := range raw.Fixes {
		r, err := fx.record()
		if err != nil {
			return nil, fmt.Errorf("fix %s: %w", fx.Handle, err)
		}
		c.Fixes = append(c.Fixes, r)
	}
	return c, nil
}

func (b *boundsXML) bounds() (md.Bounds, error) {
	var vals [12]float64
	for i, slot := range b.slots() {
		if b.Base64 == "1" {
			v, err := decodeFloat64s(*slot)
			if err != nil {
				return md.Bounds{}, err
			}
			if len(v) != 1 {
				return md.Bounds{}, fmt.Errorf("%w: bounds entry %d", ErrCorrupt, i)
			}
			vals[i] = v[0]
			continue
		}
		v, err := parseFloats([]string{*slot})
		if err != nil {
			return md.Bounds{}, err
		}
		vals[i] = v[0]
	}
	lo := md.Vec3{vals[0], vals[1], vals[2]}
	var sides [3]md.Vec3
	for i := 0; i < 3; i++ {
		sides[i] = md.Vec3{vals[3+3*i], vals[4+3*i], vals[5+3*i]}
	}
	return md.NewTriclinic(lo, sides)
}

// fieldLen is the number of atoms a field blob holds.
func fieldLen(f md.Field, blob *blobXML) (int, error) {
	if blob.Base64 != "1" {
		return len(rows(blob.Data)), nil
	}
	if f.Kind == md.VecField {
		b, err := decodeBase64(blob.Data, 24)
		if err != nil {
			return 0, err
		}
		return len(b) / 24, nil
	}
	b, err := decodeBase64(blob.Data, 4)
	if err != nil {
		return 0, err
	}
	return len(b) / 4, nil
}

func decodeField(f md.Field, blob *blobXML, atoms []md.Atom) error {
	n := len(atoms)
	if blob.Base64 == "1" {
		if f.Kind == md.VecField {
			vals, err := decodeFloat64s(blob.Data)
			if err != nil {
				return err
			}
			if len(vals) != 3*n {
				return fmt.Errorf("%w: %d values for %d atoms", ErrCorrupt, len(vals), n)
			}
			for i := range atoms {
				f.SetVec(&atoms[i], md.Vec3{vals[3*i], vals[3*i+1], vals[3*i+2]})
			}
			return nil
		}
		vals, err := decodeInt32s(blob.Data, f.Kind == md.IntField)
		if err != nil {
			return err
		}
		if len(vals) != n {
			return fmt.Errorf("%w: %d values for %d atoms", ErrCorrupt, len(vals), n)
		}
		for i := range atoms {
			f.SetInt(&atoms[i], vals[i])
		}
		return nil
	}

	rs := rows(blob.Data)
	if len(rs) != n {
		return fmt.Errorf("%w: %d rows for %d atoms", ErrCorrupt, len(rs), n)
	}
	for i, row := range rs {
		if f.Kind == md.VecField {
			if len(row) != 3 {
				return fmt.Errorf("%w: row %d", ErrCorrupt, i)
			}
			v, err := parseFloats(row)
			if err != nil {
				return err
			}
			f.SetVec(&atoms[i], md.Vec3{v[0], v[1], v[2]})
			continue
		}
		v, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		f.SetInt(&atoms[i], v)
	}
	return nil
}

func (c *Configuration) decodeTopology(raw *configurationXML) error {
	if raw.Bonds != nil {
		for _, row := range rows(raw.Bonds.Data) {
			if len(row) != 5 {
				return fmt.Errorf("%w: bond row %v", ErrCorrupt, row)
			}
			ids, err := parseInts(row[1:3])
			if err != nil {
				return err
			}
			v, err := parseFloats(row[3:])
			if err != nil {
				return err
			}
			c.Bonds = append(c.Bonds, md.Bond{FixHandle: handleValue(row[0]), IDs: [2]int{ids[0], ids[1]}, K: v[0], R0: v[1]})
		}
	}
	if raw.Angles != nil {
		for _, row := range rows(raw.Angles.Data) {
			if len(row) != 6 {
				return fmt.Errorf("%w: angle row %v", ErrCorrupt, row)
			}
			ids, err := parseInts(row[1:4])
			if err != nil {
				return err
			}
			v, err := parseFloats(row[4:])
			if err != nil {
				return err
			}
			c.Angles = append(c.Angles, md.Angle{FixHandle: handleValue(row[0]), IDs: [3]int{ids[0], ids[1], ids[2]}, K: v[0], ThetaEq: v[1]})
		}
	}
	if raw.Dihedrals != nil {
		for _, row := range rows(raw.Dihedrals.Data) {
			if len(row) != 9 {
				return fmt.Errorf("%w: dihedral row %v", ErrCorrupt, row)
			}
			ids, err := parseInts(row[1:5])
			if err != nil {
				return err
			}
			v, err := parseFloats(row[5:])
			if err != nil {
				return err
			}
			c.Dihedrals = append(c.Dihedrals, md.Dihedral{
				FixHandle: handleValue(row[0]),
				IDs:       [4]int{ids[0], ids[1], ids[2], ids[3]},
				Coefs:     [4]float64{v[0], v[1], v[2], v[3]},
			})
		}
	}
	return nil
}

func (fx *fixXML) record() (fix.Record, error) {
	r := fix.Record{Type: fx.Type, Handle: fx.Handle, Attrs: make(map[string]string, len(fx.Attrs))}
	for _, a := range fx.Attrs {
		r.Attrs[a.Name] = a.Value
	}
	for _, m := range fx.Matrices {
		var vals []float32
		if m.Base64 == "1" {
			v, err := decodeFloat32s(m.Data)
			if err != nil {
				return r, err
			}
			vals = v
		} else {
			for _, row := range rows(m.Data) {
				for _, s := range row {
					v, err := strconv.ParseFloat(s, 32)
					if err != nil {
						return r, fmt.Errorf("%w: %v", ErrCorrupt, err)
					}
					vals = append(vals, float32(v))
				}
			}
		}
		if len(vals) != m.Size*m.Size {
			return r, fmt.Errorf("%w: matrix %s has %d values for size %d", ErrCorrupt, m.Label, len(vals), m.Size)
		}
		r.Matrices = append(r.Matrices, params.Record{Label: m.Label, Size: m.Size, Values: vals})
	}
	return r, nil
}

// FixRecord returns the restart record written for the fix (typ, handle).
func (c *Configuration) FixRecord(typ, handle string) (fix.Record, bool) {
	for _, r := range c.Fixes {
		if r.Type == typ && r.Handle == handle {
			return r, true
		}
	}
	return fix.Record{}, false
}

// Apply loads the configuration into an empty state: cell, atom types,
// groups, atoms and topology. Types already defined in s must match the
// snapshot's leading types.
func (c *Configuration) Apply(s *md.State) error {
	if len(s.Atoms) > 0 {
		return ErrStateNotEmpty
	}
	for i, h := range c.Handles {
		if i < s.NumTypes() {
			if s.AtomParams.Handles[i] != h {
				return fmt.Errorf("%w: type %d is %q, snapshot has %q", ErrTypeMismatch, i, s.AtomParams.Handles[i], h)
			}
			continue
		}
		if _, err := s.AddAtomType(h, c.Masses[i]); err != nil {
			return err
		}
	}
	s.Turn = c.Turn
	s.Bounds = c.Bounds
	s.Periodic = c.Periodic
	s.Is2D = c.Dimension == 2
	for h, tag := range c.Groups {
		s.RestoreGroup(h, tag)
	}
	for _, a := range c.Atoms {
		if err := s.RestoreAtom(a); err != nil {
			return err
		}
	}
	for _, b := range c.Bonds {
		if err := s.AddBond(b); err != nil {
			return err
		}
	}
	for _, a := range c.Angles {
		if err := s.AddAngle(a); err != nil {
			return err
		}
	}
	for _, d := range c.Dihedrals {
		if err := s.AddDihedral(d); err != nil {
			return err
		}
	}
	return nil
}

// RestoreFixes hands every fix in l that keeps restart state its record.
// Fixes without a record are left as configured.
func (c *Configuration) RestoreFixes(l *fix.List) error {
	for _, f := range l.All() {
		r, ok := f.(fix.Restarter)
		if !ok {
			continue
		}
		rec, found := c.FixRecord(f.Type(), f.Handle())
		if !found {
			continue
		}
		if err := r.Restore(rec); err != nil {
			return err
		}
	}
	return nil
}
