package fix

import (
	"context"
	"errors"
	"math"
	"testing"

	. "github.com/onsi/gomega"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/neighbor"
	"github.com/san-kum/mdsim/internal/params"
	"github.com/san-kum/mdsim/internal/thermo"
)

func newLJ(t *testing.T, s *md.State) *LJCut {
	t.Helper()
	f, err := NewLJCut(s, device.NewHostBackend(), "lj", "all", 2.5)
	if err != nil {
		t.Fatal(err)
	}
	for _, label := range []string{LabelEpsilon, LabelSigma} {
		if err := f.SetParameter(label, "A", "A", 1); err != nil {
			t.Fatal(err)
		}
	}
	return f
}

func TestLJCutPairForce(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	r := 1.2
	s := newTestState(t, md.Vec3{5, 5, 5}, md.Vec3{5 + r, 5, 5})
	upload(t, s)

	f := newLJ(t, s)
	f.UseNeighbors(buildList(t, s, f.Cutoff()))
	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	g.Expect(f.ComputeForces(ctx, 0)).To(Succeed())

	sr6 := math.Pow(1/r, 6)
	want := 24 * sr6 * (2*sr6 - 1) / r
	forces := deviceForces(t, s)
	g.Expect(forces[0][0]).To(BeNumerically("~", -want, 1e-9))
	g.Expect(forces[1][0]).To(BeNumerically("~", want, 1e-9))
	g.Expect(forces[0][1]).To(BeZero())

	u, err := f.PotentialEnergy(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u).To(BeNumerically("~", 4*(sr6*sr6-sr6), 1e-9))
}

func TestLJCutAccumulates(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := newTestState(t, md.Vec3{5, 5, 5}, md.Vec3{6.1, 5, 5})
	upload(t, s)
	forces := deviceForces(t, s)
	forces[0] = md.Vec3{0, 7, 0}

	f := newLJ(t, s)
	f.UseNeighbors(buildList(t, s, f.Cutoff()))
	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	g.Expect(f.ComputeForces(ctx, 0)).To(Succeed())
	g.Expect(forces[0][1]).To(Equal(7.0))
}

func TestLJCutGradient(t *testing.T) {
	s := newTestState(t,
		md.Vec3{5, 5, 5}, md.Vec3{6.1, 5.2, 5}, md.Vec3{5.3, 6.2, 5.4}, md.Vec3{19.6, 5.1, 5.2})
	upload(t, s)
	f := newLJ(t, s)
	f.UseNeighbors(buildList(t, s, f.Cutoff()))
	if err := f.PrepareForRun(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkGradient(t, s, f)
}

func TestLJCutMissingParameter(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t, md.Vec3{1, 1, 1})
	_, err := s.AddAtomType("B", 1)
	g.Expect(err).NotTo(HaveOccurred())
	upload(t, s)

	f := newLJ(t, s)
	err = f.PrepareForRun(context.Background())
	var mp *params.MissingParameterError
	g.Expect(errors.As(err, &mp)).To(BeTrue())
	g.Expect(mp.Handle).To(Equal("B"))
	g.Expect(err).To(BeIdenticalTo(error(mp)))
}

func TestLJCutRequiresNeighbors(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t, md.Vec3{1, 1, 1})
	upload(t, s)
	f := newLJ(t, s)
	g.Expect(f.PrepareForRun(context.Background())).To(Succeed())
	// the integrator names the fix; the error itself stays bare
	g.Expect(f.ComputeForces(context.Background(), 0)).To(Equal(neighbor.ErrNotBuilt))
}

func TestLJCutRestartRecord(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t)
	f := newLJ(t, s)
	rec := f.RestartRecord()
	g.Expect(rec.Attrs).To(HaveKeyWithValue("rcut", "2.5"))
	g.Expect(rec.Matrices).To(HaveLen(2))

	other, err := NewLJCut(s, device.NewHostBackend(), "lj", "all", 1)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(other.Restore(rec)).To(Succeed())
	g.Expect(other.Cutoff()).To(Equal(2.5))

	rec.Handle = "other"
	g.Expect(other.Restore(rec)).To(MatchError(ErrRecordMismatch))
}

func TestBondHarmonicForce(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := newTestState(t, md.Vec3{1, 1, 1}, md.Vec3{3, 1, 1}, md.Vec3{10, 10, 10})
	f, err := NewBondHarmonic(s, "bonds", "all")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.CreateBond(0, 1, 5, 1.5)).To(Succeed())
	upload(t, s)

	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	defer f.Release()
	g.Expect(f.Count()).To(Equal(1))
	g.Expect(f.ComputeForces(ctx, 0)).To(Succeed())

	forces := deviceForces(t, s)
	g.Expect(forces[0][0]).To(BeNumerically("~", 5.0, 1e-6))
	g.Expect(forces[1][0]).To(BeNumerically("~", -5.0, 1e-6))
	g.Expect(forces[2]).To(Equal(md.Vec3{}))
}

func TestBondHarmonicAcrossBoundary(t *testing.T) {
	s := newTestState(t, md.Vec3{0.5, 1, 1}, md.Vec3{19.2, 1.3, 1}, md.Vec3{18.1, 2, 1.5})
	f, err := NewBondHarmonic(s, "bonds", "all")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.CreateBond(0, 1, 3, 1); err != nil {
		t.Fatal(err)
	}
	if err := f.CreateBond(1, 2, 3, 1); err != nil {
		t.Fatal(err)
	}
	upload(t, s)
	if err := f.PrepareForRun(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkGradient(t, s, f)
}

func TestBondHarmonicInvalidAtom(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t, md.Vec3{1, 1, 1}, md.Vec3{2, 1, 1})
	f, err := NewBondHarmonic(s, "bonds", "all")
	g.Expect(err).NotTo(HaveOccurred())
	s.Bonds = append(s.Bonds, md.Bond{FixHandle: "bonds", IDs: [2]int{0, 42}})
	upload(t, s)

	err = f.PrepareForRun(context.Background())
	var ia *md.InvalidAtomError
	g.Expect(errors.As(err, &ia)).To(BeTrue())
	g.Expect(ia.ID).To(Equal(42))
}

func TestBondedRequiresPrepare(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t, md.Vec3{1, 1, 1})
	upload(t, s)
	f, err := NewAngleHarmonic(s, "angles", "all")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.ComputeForces(context.Background(), 0)).To(MatchError(ErrNotPrepared))
}

func TestAngleHarmonicGradient(t *testing.T) {
	s := newTestState(t,
		md.Vec3{4, 5, 5}, md.Vec3{5, 5.2, 5.1}, md.Vec3{5.6, 6, 4.7}, md.Vec3{6.5, 6.3, 5.2})
	f, err := NewAngleHarmonic(s, "angles", "all")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.CreateAngle(0, 1, 2, 4, 1.9); err != nil {
		t.Fatal(err)
	}
	if err := f.CreateAngle(1, 2, 3, 2, 2.2); err != nil {
		t.Fatal(err)
	}
	upload(t, s)
	if err := f.PrepareForRun(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkGradient(t, s, f)
}

func TestAngleHarmonicAtEquilibrium(t *testing.T) {
	g := NewWithT(t)
	s := newTestState(t, md.Vec3{4, 5, 5}, md.Vec3{5, 5, 5}, md.Vec3{5, 6, 5})
	f, err := NewAngleHarmonic(s, "angles", "all")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.CreateAngle(0, 1, 2, 10, math.Pi/2)).To(Succeed())
	upload(t, s)
	g.Expect(f.PrepareForRun(context.Background())).To(Succeed())
	g.Expect(f.ComputeForces(context.Background(), 0)).To(Succeed())
	for _, force := range deviceForces(t, s) {
		g.Expect(force.Norm()).To(BeNumerically("<", 1e-5))
	}
}

func TestDihedralOPLSGradient(t *testing.T) {
	s := newTestState(t,
		md.Vec3{4, 5, 5}, md.Vec3{5, 5.3, 5}, md.Vec3{5.8, 6, 5.2}, md.Vec3{6.1, 6.4, 6.1}, md.Vec3{7, 6, 6.5})
	f, err := NewDihedralOPLS(s, "dihedrals", "all")
	if err != nil {
		t.Fatal(err)
	}
	if err := f.CreateDihedral([4]int{0, 1, 2, 3}, [4]float64{1.3, -0.5, 0.7, 0.2}); err != nil {
		t.Fatal(err)
	}
	if err := f.CreateDihedral([4]int{1, 2, 3, 4}, [4]float64{0.4, 0.9, -0.3, 0.1}); err != nil {
		t.Fatal(err)
	}
	upload(t, s)
	if err := f.PrepareForRun(context.Background()); err != nil {
		t.Fatal(err)
	}
	checkGradient(t, s, f)
}

func TestWallHarmonic(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := newTestState(t, md.Vec3{5, 5, 0.25}, md.Vec3{5, 5, 3})
	f, err := NewWallHarmonic(s, "floor", "all", md.Vec3{0, 0, 0}, md.Vec3{0, 0, 2}, 10, 1)
	g.Expect(err).NotTo(HaveOccurred())
	upload(t, s)
	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	g.Expect(f.ComputeForces(ctx, 0)).To(Succeed())

	forces := deviceForces(t, s)
	g.Expect(forces[0]).To(Equal(md.Vec3{0, 0, 7.5}))
	g.Expect(forces[1]).To(Equal(md.Vec3{}))

	u, err := f.PotentialEnergy(ctx)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(u).To(BeNumerically("~", 0.5*10*0.75*0.75, 1e-12))

	_, err = NewWallHarmonic(s, "bad", "all", md.Vec3{}, md.Vec3{}, 1, 1)
	g.Expect(errors.Is(err, ErrBadConfig)).To(BeTrue())
}

func TestNVTRescaleHitsTarget(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := newTestState(t, md.Vec3{1, 1, 1}, md.Vec3{3, 3, 3}, md.Vec3{5, 5, 5})
	s.Atoms[0].Vel = md.Vec3{1, 0, 0}
	s.Atoms[1].Vel = md.Vec3{0, -2, 0}
	s.Atoms[2].Vel = md.Vec3{0, 0, 0.5}
	upload(t, s)

	sched, err := thermo.Intervals([]int64{0, 10}, []float64{2, 2})
	g.Expect(err).NotTo(HaveOccurred())
	f, err := NewNVTRescale(s, "thermo", "all", 1, sched)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(f.Flags().IsThermostat).To(BeTrue())
	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	g.Expect(f.PostIntegration(ctx, 1)).To(Succeed())

	g.Expect(s.SyncFromDevice()).To(Succeed())
	g.Expect(thermo.Temperature(s.Atoms, 1, 3)).To(BeNumerically("~", 2, 1e-9))

	// past the last interval the thermostat stops acting
	vel, err := s.Device.Vel.View()
	g.Expect(err).NotTo(HaveOccurred())
	before := append([]md.Vec3(nil), vel...)
	g.Expect(f.PostIntegration(ctx, 11)).To(Succeed())
	g.Expect(sched.Finished()).To(BeTrue())
	g.Expect(vel).To(Equal(before))
}

func TestLJCutPicksUpEdits(t *testing.T) {
	g := NewWithT(t)
	ctx := context.Background()
	s := newTestState(t, md.Vec3{5, 5, 5}, md.Vec3{6.2, 5, 5})
	upload(t, s)
	f := newLJ(t, s)
	f.UseNeighbors(buildList(t, s, f.Cutoff()))
	g.Expect(f.PrepareForRun(ctx)).To(Succeed())
	g.Expect(f.ComputeForces(ctx, 0)).To(Succeed())
	forces := deviceForces(t, s)
	before := forces[0]

	g.Expect(f.SetParameter(LabelEpsilon, "A", "A", 2)).To(Succeed())
	g.Expect(f.Params().Dirty()).To(BeTrue())
	forces[0], forces[1] = md.Vec3{}, md.Vec3{}
	g.Expect(f.ComputeForces(ctx, 1)).To(Succeed())
	g.Expect(f.Params().Dirty()).To(BeFalse())
	g.Expect(forces[0][0]).To(BeNumerically("~", 2*before[0], 1e-9))

	// a type added after prepare needs its own parameters
	_, err := s.AddAtomType("B", 2)
	g.Expect(err).NotTo(HaveOccurred())
	err = f.ComputeForces(ctx, 2)
	var mp *params.MissingParameterError
	g.Expect(errors.As(err, &mp)).To(BeTrue())
	g.Expect(mp.Handle).To(Equal("B"))

	for _, label := range []string{LabelEpsilon, LabelSigma} {
		g.Expect(f.SetParameter(label, "B", "B", 1)).To(Succeed())
	}
	g.Expect(f.ComputeForces(ctx, 3)).To(Succeed())
	g.Expect(f.Params().Size()).To(Equal(2))
}

type bondedBuilder func(s *md.State, group string) (Fix, error)

// groupForces builds a bonded fix over atoms whose group "g" holds only the
// first atom and returns the forces and energy it produces.
func groupForces(t *testing.T, group string, build bondedBuilder, positions ...md.Vec3) ([]md.Vec3, float64) {
	t.Helper()
	ctx := context.Background()
	s := newTestState(t, positions...)
	if _, err := s.CreateGroup("g"); err != nil {
		t.Fatal(err)
	}
	if err := s.AddToGroup("g", 0); err != nil {
		t.Fatal(err)
	}
	f, err := build(s, group)
	if err != nil {
		t.Fatal(err)
	}
	upload(t, s)
	if err := f.PrepareForRun(ctx); err != nil {
		t.Fatal(err)
	}
	defer f.(Releaser).Release()
	if err := f.ComputeForces(ctx, 0); err != nil {
		t.Fatal(err)
	}
	u, err := f.(Energizer).PotentialEnergy(ctx)
	if err != nil {
		t.Fatal(err)
	}
	return append([]md.Vec3(nil), deviceForces(t, s)...), u
}

func TestBondedFixesOnlyActOnGroup(t *testing.T) {
	positions := []md.Vec3{{4, 5, 5}, {5, 5.3, 5}, {5.8, 6, 5.2}, {6.1, 6.4, 6.1}}
	builders := map[string]struct {
		build bondedBuilder
		size  float64
	}{
		"bond": {func(s *md.State, group string) (Fix, error) {
			f, err := NewBondHarmonic(s, "b", group)
			if err != nil {
				return nil, err
			}
			return f, f.CreateBond(0, 1, 5, 0.5)
		}, 2},
		"angle": {func(s *md.State, group string) (Fix, error) {
			f, err := NewAngleHarmonic(s, "a", group)
			if err != nil {
				return nil, err
			}
			return f, f.CreateAngle(0, 1, 2, 4, 1.2)
		}, 3},
		"dihedral": {func(s *md.State, group string) (Fix, error) {
			f, err := NewDihedralOPLS(s, "d", group)
			if err != nil {
				return nil, err
			}
			return f, f.CreateDihedral([4]int{0, 1, 2, 3}, [4]float64{1.3, -0.5, 0.7, 0.2})
		}, 4},
	}
	for name, tc := range builders {
		t.Run(name, func(t *testing.T) {
			g := NewWithT(t)
			full, uFull := groupForces(t, "all", tc.build, positions...)
			part, uPart := groupForces(t, "g", tc.build, positions...)

			g.Expect(full[1].Norm()).To(BeNumerically(">", 0))
			g.Expect(part[0]).To(Equal(full[0]))
			for i := 1; i < len(part); i++ {
				g.Expect(part[i]).To(Equal(md.Vec3{}), "atom %d", i)
			}
			g.Expect(uPart).To(BeNumerically("~", uFull/tc.size, 1e-12))
		})
	}
}
