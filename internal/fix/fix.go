// Package fix defines the force and constraint plug-ins applied each turn.
//
// A fix is identified by its (type, handle) pair. The integrator walks the
// fixes in OrderPreference order, calls ComputeForces on every fix whose
// ApplyEvery divides the turn, and afterwards calls PostIntegration on fixes
// that implement PostIntegrator. Optional capabilities are discovered with
// type assertions.
package fix

import (
	"context"

	"github.com/san-kum/mdsim/internal/neighbor"
	"github.com/san-kum/mdsim/internal/params"
)

// Order preferences. Lower values run first.
const (
	OrderPair       = 0
	OrderBonded     = 10
	OrderWall       = 20
	OrderThermostat = 100
)

type Flags struct {
	RequiresVirials bool
	RequiresCharges bool
	IsThermostat    bool
	// ForceSingle fixes take part in Integrator.ForceSingle.
	ForceSingle bool
}

type Fix interface {
	Type() string
	Handle() string
	GroupTag() uint32
	ApplyEvery() int
	OrderPreference() int
	Flags() Flags
	PrepareForRun(ctx context.Context) error
	ComputeForces(ctx context.Context, turn int64) error
}

// PostIntegrator is implemented by fixes that act after the position and
// velocity update, such as velocity rescaling thermostats.
type PostIntegrator interface {
	PostIntegration(ctx context.Context, turn int64) error
}

// Cutoffer is implemented by pair fixes that need a neighbor list.
type Cutoffer interface {
	Cutoff() float64
	UseNeighbors(l *neighbor.List)
}

// Energizer reports the potential energy of a fix's interactions for the
// current positions.
type Energizer interface {
	PotentialEnergy(ctx context.Context) (float64, error)
}

// Restarter is implemented by fixes with state worth persisting in a
// snapshot.
type Restarter interface {
	RestartRecord() Record
	Restore(r Record) error
}

// Record is the persisted form of a fix.
type Record struct {
	Type     string
	Handle   string
	Attrs    map[string]string
	Matrices []params.Record
}

// Releaser is implemented by fixes holding device memory between
// PrepareForRun and the end of a run.
type Releaser interface {
	Release()
}
