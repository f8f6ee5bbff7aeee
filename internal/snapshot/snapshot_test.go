package snapshot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/fix"
	"github.com/san-kum/mdsim/internal/md"
)

func sampleState(t *testing.T) *md.State {
	t.Helper()
	s := md.NewState()
	b, err := md.NewBounds(md.Vec3{-1, -2, -3}, md.Vec3{9, 8, 7})
	require.NoError(t, err)
	s.Bounds = b
	s.Periodic = [3]bool{true, false, true}
	s.Turn = 120
	_, err = s.AddAtomType("A", 1)
	require.NoError(t, err)
	_, err = s.AddAtomType("B", 2.5)
	require.NoError(t, err)
	tag, err := s.CreateGroup("chain")
	require.NoError(t, err)

	positions := []md.Vec3{{0.1, 0.2, 0.3}, {1.0 / 3, 2, 3}, {4, 5.5, 6}, {7, -1.25, 0}}
	for i, p := range positions {
		handle := "A"
		if i%2 == 1 {
			handle = "B"
		}
		_, err := s.AddAtom(handle, p, tag)
		require.NoError(t, err)
		s.Atoms[i].Vel = md.Vec3{float64(i) * 0.1, -0.7, 1e-9}
		s.Atoms[i].Force = md.Vec3{1.5, 0, -2}
		s.Atoms[i].ForceLast = md.Vec3{0, 3, 0.25}
	}
	require.NoError(t, s.AddBond(md.Bond{FixHandle: "bonds", IDs: [2]int{0, 1}, K: 10, R0: 1}))
	require.NoError(t, s.AddBond(md.Bond{IDs: [2]int{1, 2}, K: 5, R0: 1.5}))
	require.NoError(t, s.AddAngle(md.Angle{FixHandle: "angles", IDs: [3]int{0, 1, 2}, K: 3, ThetaEq: 1.9}))
	require.NoError(t, s.AddDihedral(md.Dihedral{FixHandle: "dihedrals", IDs: [4]int{0, 1, 2, 3}, Coefs: [4]float64{1, -0.5, 0.25, 0}}))
	return s
}

func ljFixes(t *testing.T, s *md.State) *fix.List {
	t.Helper()
	lj, err := fix.NewLJCut(s, device.NewHostBackend(), "lj", "", 2.5)
	require.NoError(t, err)
	require.NoError(t, lj.SetParameter(fix.LabelEpsilon, "A", "A", 1))
	require.NoError(t, lj.SetParameter(fix.LabelEpsilon, "B", "B", 0.5))
	require.NoError(t, lj.SetParameter(fix.LabelSigma, "A", "A", 1))
	require.NoError(t, lj.SetParameter(fix.LabelSigma, "B", "B", 1.2))
	require.NoError(t, lj.SetParameter(fix.LabelSigma, "A", "B", 0.9))
	l := fix.NewList()
	l.Add(lj)
	return l
}

func writeOne(t *testing.T, s *md.State, opts ...WriterOption) string {
	t.Helper()
	w, err := NewWriter(filepath.Join(t.TempDir(), "snap"), opts...)
	require.NoError(t, err)
	require.NoError(t, w.Write(s))
	require.NoError(t, w.Close())
	return w.Path()
}

func assertSameState(t *testing.T, want, got *md.State) {
	t.Helper()
	assert.Equal(t, want.Turn, got.Turn)
	assert.Equal(t, want.Periodic, got.Periodic)
	assert.Equal(t, want.Is2D, got.Is2D)
	assert.Equal(t, want.Bounds.Lo, got.Bounds.Lo)
	assert.Equal(t, want.Bounds.Sides, got.Bounds.Sides)
	assert.Equal(t, want.AtomParams, got.AtomParams)
	assert.Equal(t, want.GroupTags(), got.GroupTags())
	assert.Equal(t, want.Atoms, got.Atoms)
	assert.Equal(t, want.Bonds, got.Bonds)
	assert.Equal(t, want.Angles, got.Angles)
	assert.Equal(t, want.Dihedrals, got.Dihedrals)
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		format   Format
		compress bool
		suffix   string
	}{
		{"text", FormatText, false, ".xml"},
		{"base64", FormatBase64, false, ".xml"},
		{"text zstd", FormatText, true, ".xml.zst"},
		{"base64 zstd", FormatBase64, true, ".xml.zst"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleState(t)
			path := writeOne(t, s, WithFormat(tt.format), WithCompression(tt.compress))
			assert.True(t, strings.HasSuffix(path, tt.suffix), path)

			c, err := Last(path)
			require.NoError(t, err)
			assert.Equal(t, 3, c.Dimension)

			got := md.NewState()
			require.NoError(t, c.Apply(got))
			assertSameState(t, s, got)
		})
	}
}

func TestTextIsReadable(t *testing.T) {
	path := writeOne(t, sampleState(t))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	doc := string(raw)
	assert.Contains(t, doc, `<configuration turn="120" numAtoms="4" dimension="3" periodic="101">`)
	assert.Contains(t, doc, `xlo="-1"`)
	assert.Contains(t, doc, "0.1 0.2 0.3")
	assert.Contains(t, doc, "bonds 0 1 10 1")
	assert.Contains(t, doc, "- 1 2 5 1.5")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(doc), "</data>"))
}

func TestSeveralConfigurations(t *testing.T) {
	s := sampleState(t)
	w, err := NewWriter(filepath.Join(t.TempDir(), "traj"), WithFormat(FormatBase64))
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		s.Turn = int64(i * 10)
		s.Atoms[0].Pos[0] = float64(i)
		require.NoError(t, w.Write(s))
	}
	require.NoError(t, w.Close())
	assert.Equal(t, 3, w.Count())
	assert.ErrorIs(t, w.Write(s), ErrWriterClosed)

	cs, err := ReadFile(w.Path())
	require.NoError(t, err)
	require.Len(t, cs, 3)
	for i, c := range cs {
		assert.Equal(t, int64(i*10), c.Turn)
		assert.Equal(t, float64(i), c.Atoms[0].Pos[0])
	}
}

func TestTruncatedDocument(t *testing.T) {
	s := sampleState(t)
	w, err := NewWriter(filepath.Join(t.TempDir(), "cut"))
	require.NoError(t, err)
	require.NoError(t, w.Write(s))
	s.Turn = 200
	require.NoError(t, w.Write(s))
	require.NoError(t, w.Close())

	raw, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	doc := string(raw)
	cut := strings.LastIndex(doc, "<velocity")
	require.Greater(t, cut, 0)

	cs, err := Read(strings.NewReader(doc[:cut]))
	require.NoError(t, err)
	require.Len(t, cs, 1)
	assert.Equal(t, int64(120), cs[0].Turn)
}

func TestReadErrors(t *testing.T) {
	_, err := Read(strings.NewReader(xmlHeaderOnly))
	assert.ErrorIs(t, err, ErrNoSnapshot)

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.xml"))
	assert.Error(t, err)

	_, err = NewWriter(filepath.Join(t.TempDir(), "bad"), WithFormat("yaml"))
	assert.ErrorIs(t, err, ErrBadFormat)

	path := writeOne(t, sampleState(t))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	broken := strings.Replace(string(raw), "0.1 0.2 0.3", "0.1 0.2", 1)
	_, err = Read(strings.NewReader(broken))
	assert.ErrorIs(t, err, ErrCorrupt)
}

const xmlHeaderOnly = `<?xml version="1.0" encoding="UTF-8"?>
<data>
</data>
`

func TestApplyChecks(t *testing.T) {
	c, err := Last(writeOne(t, sampleState(t)))
	require.NoError(t, err)

	busy := sampleState(t)
	assert.ErrorIs(t, c.Apply(busy), ErrStateNotEmpty)

	other := md.NewState()
	_, err = other.AddAtomType("B", 1)
	require.NoError(t, err)
	assert.ErrorIs(t, c.Apply(other), ErrTypeMismatch)

	// a state that already defines the leading types is accepted
	same := md.NewState()
	_, err = same.AddAtomType("A", 1)
	require.NoError(t, err)
	require.NoError(t, c.Apply(same))
	assert.Equal(t, []string{"A", "B"}, same.AtomParams.Handles)
}

func TestTwoDimensional(t *testing.T) {
	s := md.NewState()
	s.Is2D = true
	b, err := md.NewBounds(md.Vec3{}, md.Vec3{5, 5, 0})
	require.NoError(t, err)
	s.Bounds = b
	_, err = s.AddAtomType("A", 1)
	require.NoError(t, err)
	_, err = s.AddAtom("A", md.Vec3{1, 2, 3}, 0)
	require.NoError(t, err)

	c, err := Last(writeOne(t, s))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Dimension)
	got := md.NewState()
	require.NoError(t, c.Apply(got))
	assert.True(t, got.Is2D)
	assert.Zero(t, got.Atoms[0].Pos[2])
}

func TestFixRecords(t *testing.T) {
	for _, format := range []Format{FormatText, FormatBase64} {
		t.Run(string(format), func(t *testing.T) {
			s := sampleState(t)
			fixes := ljFixes(t, s)
			path := writeOne(t, s, WithFormat(format), WithFixes(fixes))

			c, err := Last(path)
			require.NoError(t, err)
			rec, ok := c.FixRecord(fix.TypeLJCut, "lj")
			require.True(t, ok)
			assert.Equal(t, "2.5", rec.Attrs["rcut"])
			_, ok = c.FixRecord(fix.TypeLJCut, "other")
			assert.False(t, ok)

			f, ok := fixes.Get("lj")
			require.True(t, ok)
			want := f.(*fix.LJCut).Params().Records()
			assert.Equal(t, want, rec.Matrices)

			restored := md.NewState()
			require.NoError(t, c.Apply(restored))
			fresh, err := fix.NewLJCut(restored, device.NewHostBackend(), "lj", "", 1)
			require.NoError(t, err)
			l := fix.NewList()
			l.Add(fresh)
			require.NoError(t, c.RestoreFixes(l))
			assert.Equal(t, 2.5, fresh.Cutoff())
			assert.Equal(t, want, fresh.Params().Records())
		})
	}
}

func TestBadAtomCount(t *testing.T) {
	for _, format := range []Format{FormatText, FormatBase64} {
		raw, err := os.ReadFile(writeOne(t, sampleState(t), WithFormat(format)))
		require.NoError(t, err)
		for _, count := range []string{"-1", "3", "5", "2000000000"} {
			doc := strings.Replace(string(raw), `numAtoms="4"`, `numAtoms="`+count+`"`, 1)
			_, err := Read(strings.NewReader(doc))
			assert.ErrorIs(t, err, ErrCorrupt, "%s numAtoms=%s", format, count)
		}
	}
}
