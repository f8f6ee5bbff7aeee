package fix

import (
	"context"
	"math"
	"strconv"

	"github.com/san-kum/mdsim/internal/device"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

const TypeNVTRescale = "nvt_rescale"

// NVTRescale rescales the velocities of its group to the schedule's target
// temperature after integration on every turn it applies. It stops acting
// once the schedule is finished.
type NVTRescale struct {
	Base
	Schedule *thermo.Schedule

	lastTemp float64
}

func NewNVTRescale(s *md.State, handle, group string, applyEvery int, sched *thermo.Schedule) (*NVTRescale, error) {
	base, err := NewBase(s, TypeNVTRescale, handle, group, applyEvery, OrderThermostat)
	if err != nil {
		return nil, err
	}
	if sched == nil {
		return nil, base.configError("no temperature schedule")
	}
	base.flags.IsThermostat = true
	return &NVTRescale{Base: base, Schedule: sched}, nil
}

func (f *NVTRescale) PrepareForRun(ctx context.Context) error {
	return f.UpdateGroupTag()
}

func (f *NVTRescale) ComputeForces(ctx context.Context, turn int64) error { return nil }

// LastTemperature is the group temperature measured before the most recent
// rescale.
func (f *NVTRescale) LastTemperature() float64 { return f.lastTemp }

func (f *NVTRescale) PostIntegration(ctx context.Context, turn int64) error {
	target := f.Schedule.Advance(turn)
	if f.Schedule.Finished() {
		return nil
	}
	v, err := viewsOf(f.State)
	if err != nil {
		return err
	}
	mask := f.groupTag
	cur := thermo.TemperatureOf(v.vel, v.mass, v.tags, mask, f.State.Dims())
	f.lastTemp = cur
	if cur <= 0 {
		return nil
	}
	scale := math.Sqrt(target / cur)
	return device.Launch(ctx, len(v.vel), func(lo, hi int) error {
		for i := lo; i < hi; i++ {
			if v.tags[i]&mask != 0 {
				v.vel[i] = v.vel[i].Scale(scale)
			}
		}
		return nil
	})
}

func (f *NVTRescale) RestartRecord() Record {
	r := f.record()
	r.Attrs["interval"] = strconv.Itoa(f.Schedule.Interval())
	r.Attrs["finished"] = strconv.FormatBool(f.Schedule.Finished())
	return r
}

// Restore only checks identity. The schedule cursor is recomputed from the
// turn on the next Advance.
func (f *NVTRescale) Restore(r Record) error {
	return f.checkRecord(r)
}
