package setup

import (
	"errors"
	"math/rand"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

func newState(t *testing.T, is2D bool) (*md.State, md.Bounds) {
	t.Helper()
	s := md.NewState()
	s.Is2D = is2D
	b, err := md.NewBounds(md.Vec3{}, md.Vec3{10, 10, 10})
	if err != nil {
		t.Fatal(err)
	}
	s.Bounds = b
	if _, err := s.AddAtomType("A", 2); err != nil {
		t.Fatal(err)
	}
	return s, b
}

func TestSide(t *testing.T) {
	tests := []struct {
		n, dims, want int
	}{
		{1, 3, 1},
		{8, 3, 2},
		{9, 3, 3},
		{27, 3, 3},
		{28, 3, 4},
		{64, 3, 4},
		{1000, 3, 10},
		{16, 2, 4},
		{17, 2, 5},
	}
	for _, tt := range tests {
		if got := side(tt.n, tt.dims); got != tt.want {
			t.Errorf("side(%d, %d) = %d, want %d", tt.n, tt.dims, got, tt.want)
		}
	}
}

func TestPopulateOnGridCount(t *testing.T) {
	g := NewWithT(t)
	for _, n := range []int{1, 7, 8, 30, 64} {
		s, b := newState(t, false)
		g.Expect(PopulateOnGrid(s, b, "A", n)).To(Succeed())
		g.Expect(s.Atoms).To(HaveLen(n))
		for _, a := range s.Atoms {
			g.Expect(b.Contains(a.Pos, false)).To(BeTrue())
		}
	}
}

func TestPopulateOnGridSpacing(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	g.Expect(PopulateOnGrid(s, b, "A", 8)).To(Succeed())
	g.Expect(s.Atoms[0].Pos).To(Equal(md.Vec3{0, 0, 0}))
	g.Expect(s.Atoms[1].Pos).To(Equal(md.Vec3{0, 0, 5}))
	g.Expect(s.Atoms[7].Pos).To(Equal(md.Vec3{5, 5, 5}))
}

func TestPopulateOnGrid2D(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, true)
	g.Expect(PopulateOnGrid(s, b, "A", 9)).To(Succeed())
	g.Expect(s.Atoms).To(HaveLen(9))
	seen := map[md.Vec3]bool{}
	for _, a := range s.Atoms {
		g.Expect(a.Pos[2]).To(BeZero())
		seen[a.Pos] = true
	}
	g.Expect(seen).To(HaveLen(9))
}

func TestPopulateErrors(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	rng := rand.New(rand.NewSource(1))

	g.Expect(PopulateOnGrid(s, b, "A", 0)).To(MatchError(ErrNonPositiveCount))
	g.Expect(PopulateRand(s, rng, b, "A", -1, 1)).To(MatchError(ErrNonPositiveCount))
	g.Expect(PopulateRand(s, rng, b, "A", 1, -1)).To(MatchError(ErrBadMinDist))
	g.Expect(errors.Is(PopulateOnGrid(s, b, "B", 3), md.ErrUnknownType)).To(BeTrue())
	g.Expect(s.Atoms).To(BeEmpty())
}

func TestPopulateRandMinDistance(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	rng := rand.New(rand.NewSource(7))
	g.Expect(PopulateRand(s, rng, b, "A", 50, 1.5)).To(Succeed())
	g.Expect(s.Atoms).To(HaveLen(50))
	for i := range s.Atoms {
		g.Expect(b.Contains(s.Atoms[i].Pos, false)).To(BeTrue())
		for j := i + 1; j < len(s.Atoms); j++ {
			d := s.MinImage(s.Atoms[i].Pos, s.Atoms[j].Pos).Norm()
			g.Expect(d).To(BeNumerically(">=", 1.5))
		}
	}
}

func TestPopulateRandRespectsExistingAtoms(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	_, err := s.AddAtom("A", md.Vec3{5, 5, 5}, 0)
	g.Expect(err).NotTo(HaveOccurred())

	g.Expect(PopulateRand(s, rand.New(rand.NewSource(3)), b, "A", 20, 2)).To(Succeed())
	g.Expect(s.Atoms).To(HaveLen(21))
	for _, a := range s.Atoms[1:] {
		g.Expect(s.MinImage(a.Pos, md.Vec3{5, 5, 5}).Norm()).To(BeNumerically(">=", 2))
	}
}

func TestPopulateRandTooDense(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	err := PopulateRand(s, rand.New(rand.NewSource(1)), b, "A", 10, 20, WithMaxAttempts(50))
	g.Expect(err).To(MatchError(ErrPackingTooDense))
	g.Expect(s.Atoms).To(HaveLen(1))
}

func TestPopulateWithGroup(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	tag, err := s.CreateGroup("solvent")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(PopulateOnGrid(s, b, "A", 4, WithGroup(tag))).To(Succeed())
	g.Expect(s.GroupIndices(tag)).To(HaveLen(4))
}

func TestInitTemp(t *testing.T) {
	for _, is2D := range []bool{false, true} {
		g := NewWithT(t)
		s, b := newState(t, is2D)
		g.Expect(PopulateOnGrid(s, b, "A", 27)).To(Succeed())
		g.Expect(InitTemp(s, rand.New(rand.NewSource(11)), md.GroupAll, 1.5)).To(Succeed())

		all, err := s.GroupTag(md.GroupAll)
		g.Expect(err).NotTo(HaveOccurred())
		mean := thermo.MeanVelocity(s.Atoms, all)
		g.Expect(mean.Norm()).To(BeNumerically("<", 1e-12))
		g.Expect(thermo.Temperature(s.Atoms, all, s.Dims())).To(BeNumerically("~", 1.5, 1e-12))
		if is2D {
			for _, a := range s.Atoms {
				g.Expect(a.Vel[2]).To(BeZero())
			}
		}
	}
}

func TestInitTempOnlyTouchesGroup(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	tag, err := s.CreateGroup("hot")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(PopulateOnGrid(s, b, "A", 4)).To(Succeed())
	g.Expect(PopulateOnGrid(s, b, "A", 4, WithGroup(tag))).To(Succeed())

	g.Expect(InitTemp(s, rand.New(rand.NewSource(5)), "hot", 2)).To(Succeed())
	for _, a := range s.Atoms[:4] {
		g.Expect(a.Vel).To(Equal(md.Vec3{}))
	}
	g.Expect(thermo.Temperature(s.Atoms, tag, 3)).To(BeNumerically("~", 2, 1e-12))
}

func TestInitTempErrors(t *testing.T) {
	g := NewWithT(t)
	s, b := newState(t, false)
	rng := rand.New(rand.NewSource(1))
	g.Expect(PopulateOnGrid(s, b, "A", 1)).To(Succeed())

	g.Expect(InitTemp(s, rng, md.GroupAll, 1)).To(MatchError(ErrTooFewAtoms))
	g.Expect(InitTemp(s, rng, md.GroupAll, -1)).To(MatchError(ErrNegativeTemperature))
	g.Expect(errors.Is(InitTemp(s, rng, "missing", 1), md.ErrUnknownGroup)).To(BeTrue())
}
