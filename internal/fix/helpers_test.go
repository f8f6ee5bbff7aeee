package fix

import (
	"context"
	"testing"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/neighbor"
)

func newTestState(t *testing.T, positions ...md.Vec3) *md.State {
	t.Helper()
	s := md.NewState()
	b, err := md.NewBounds(md.Vec3{}, md.Vec3{20, 20, 20})
	if err != nil {
		t.Fatal(err)
	}
	s.Bounds = b
	if _, err := s.AddAtomType("A", 1); err != nil {
		t.Fatal(err)
	}
	for _, p := range positions {
		if _, err := s.AddAtom("A", p, 0); err != nil {
			t.Fatal(err)
		}
	}
	return s
}

func upload(t *testing.T, s *md.State) {
	t.Helper()
	if err := s.PrepareDevice(device.NewHostBackend()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.ReleaseDevice)
}

func deviceForces(t *testing.T, s *md.State) []md.Vec3 {
	t.Helper()
	f, err := s.Device.Force.View()
	if err != nil {
		t.Fatal(err)
	}
	return f
}

func devicePositions(t *testing.T, s *md.State) []md.Vec3 {
	t.Helper()
	p, err := s.Device.Pos.View()
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func buildList(t *testing.T, s *md.State, rc float64) *neighbor.List {
	t.Helper()
	l := neighbor.New()
	if err := l.Build(context.Background(), s, rc, 0.3); err != nil {
		t.Fatal(err)
	}
	return l
}

// checkGradient compares the forces of f against central differences of its
// potential energy.
func checkGradient(t *testing.T, s *md.State, f interface {
	Fix
	Energizer
}) {
	t.Helper()
	ctx := context.Background()
	if err := f.ComputeForces(ctx, 0); err != nil {
		t.Fatal(err)
	}
	forces := append([]md.Vec3(nil), deviceForces(t, s)...)
	pos := devicePositions(t, s)
	const h = 1e-6
	for i := range pos {
		for k := 0; k < 3; k++ {
			orig := pos[i][k]
			pos[i][k] = orig + h
			up, err := f.PotentialEnergy(ctx)
			if err != nil {
				t.Fatal(err)
			}
			pos[i][k] = orig - h
			down, err := f.PotentialEnergy(ctx)
			if err != nil {
				t.Fatal(err)
			}
			pos[i][k] = orig
			want := -(up - down) / (2 * h)
			if d := forces[i][k] - want; d > 1e-4 || d < -1e-4 {
				t.Errorf("atom %d axis %d: force %g, numeric %g", i, k, forces[i][k], want)
			}
		}
	}
}
