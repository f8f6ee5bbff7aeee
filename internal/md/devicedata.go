package md

import (
	"github.com/san-kum/mdsim/internal/device"
)

// DeviceData is the structure-of-arrays copy of the atoms used by kernels
// during a run. The device side of each mirror is authoritative while the run
// is active; the host side is only valid after a download completes.
type DeviceData struct {
	Pos       *device.Mirror[Vec3]
	Vel       *device.Mirror[Vec3]
	Force     *device.Mirror[Vec3]
	ForceLast *device.Mirror[Vec3]
	Mass      *device.Mirror[float64]
	Type      *device.Mirror[int32]
	GroupTag  *device.Mirror[uint32]
	ID        *device.Mirror[int32]

	backend device.Backend
}

// PrepareDevice copies the atoms into fresh device mirrors and uploads them.
func (s *State) PrepareDevice(b device.Backend) error {
	if s.Device != nil {
		s.Device.Release()
		s.Device = nil
	}
	n := len(s.Atoms)
	d := &DeviceData{
		Pos:       device.NewMirror[Vec3](b, n),
		Vel:       device.NewMirror[Vec3](b, n),
		Force:     device.NewMirror[Vec3](b, n),
		ForceLast: device.NewMirror[Vec3](b, n),
		Mass:      device.NewMirror[float64](b, n),
		Type:      device.NewMirror[int32](b, n),
		GroupTag:  device.NewMirror[uint32](b, n),
		ID:        device.NewMirror[int32](b, n),
		backend:   b,
	}
	for i := range s.Atoms {
		a := &s.Atoms[i]
		d.Pos.Host[i] = a.Pos
		d.Vel.Host[i] = a.Vel
		d.Force.Host[i] = a.Force
		d.ForceLast.Host[i] = a.ForceLast
		d.Mass.Host[i] = a.Mass
		d.Type.Host[i] = int32(a.Type)
		d.GroupTag.Host[i] = a.GroupTag
		d.ID.Host[i] = int32(a.ID)
	}
	if err := d.upload(); err != nil {
		d.Release()
		return err
	}
	s.Device = d
	s.Changed = false
	return nil
}

func (d *DeviceData) upload() error {
	for _, up := range []func() error{
		d.Pos.DataToDevice, d.Vel.DataToDevice, d.Force.DataToDevice, d.ForceLast.DataToDevice,
		d.Mass.DataToDevice, d.Type.DataToDevice, d.GroupTag.DataToDevice, d.ID.DataToDevice,
	} {
		if err := up(); err != nil {
			return err
		}
	}
	return nil
}

func (d *DeviceData) Backend() device.Backend { return d.backend }

// Len is the number of atoms mirrored.
func (d *DeviceData) Len() int { return d.Pos.Len() }

// DownloadAsync queues host copies of the dynamic per-atom fields on s.
func (d *DeviceData) DownloadAsync(s device.Stream) ([]*device.Transfer, error) {
	var ts []*device.Transfer
	for _, m := range []*device.Mirror[Vec3]{d.Pos, d.Vel, d.Force, d.ForceLast} {
		t, err := m.DataToHostAsync(s)
		if err != nil {
			return ts, err
		}
		ts = append(ts, t)
	}
	return ts, nil
}

// Download copies the dynamic per-atom fields back synchronously.
func (d *DeviceData) Download() error {
	for _, m := range []*device.Mirror[Vec3]{d.Pos, d.Vel, d.Force, d.ForceLast} {
		if err := m.DataToHost(); err != nil {
			return err
		}
	}
	return nil
}

func (d *DeviceData) Release() {
	d.Pos.Release()
	d.Vel.Release()
	d.Force.Release()
	d.ForceLast.Release()
	d.Mass.Release()
	d.Type.Release()
	d.GroupTag.Release()
	d.ID.Release()
}

// ApplyHost writes the host side of the dynamic fields into the atoms. Only
// call it after a download has completed. Atoms appended since the upload
// keep their host values until the next PrepareDevice.
func (s *State) ApplyHost() error {
	d := s.Device
	if d == nil {
		return ErrNoDeviceData
	}
	n := d.Len()
	if n > len(s.Atoms) {
		n = len(s.Atoms)
	}
	for i := 0; i < n; i++ {
		a := &s.Atoms[i]
		a.Pos = d.Pos.Host[i]
		a.Vel = d.Vel.Host[i]
		a.Force = d.Force.Host[i]
		a.ForceLast = d.ForceLast.Host[i]
	}
	return nil
}

// SyncFromDevice downloads and applies the dynamic fields.
func (s *State) SyncFromDevice() error {
	if s.Device == nil {
		return ErrNoDeviceData
	}
	if err := s.Device.Download(); err != nil {
		return err
	}
	return s.ApplyHost()
}

// ReleaseDevice frees the device mirrors.
func (s *State) ReleaseDevice() {
	if s.Device != nil {
		s.Device.Release()
		s.Device = nil
	}
}
