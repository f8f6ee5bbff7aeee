package fix

import (
	"fmt"

	"github.com/san-kum/mdsim/internal/md"
)

// Base carries the fields shared by every fix. Concrete fixes embed it.
type Base struct {
	State *md.State

	typ             string
	handle          string
	groupHandle     string
	groupTag        uint32
	applyEvery      int
	orderPreference int
	flags           Flags
}

// NewBase resolves group against s. An applyEvery below one means every turn.
func NewBase(s *md.State, typ, handle, group string, applyEvery, order int) (Base, error) {
	if group == "" {
		group = md.GroupAll
	}
	if applyEvery < 1 {
		applyEvery = 1
	}
	b := Base{
		State:           s,
		typ:             typ,
		handle:          handle,
		groupHandle:     group,
		applyEvery:      applyEvery,
		orderPreference: order,
	}
	if err := b.UpdateGroupTag(); err != nil {
		return Base{}, err
	}
	return b, nil
}

func (b *Base) Type() string         { return b.typ }
func (b *Base) Handle() string       { return b.handle }
func (b *Base) GroupHandle() string  { return b.groupHandle }
func (b *Base) GroupTag() uint32     { return b.groupTag }
func (b *Base) ApplyEvery() int      { return b.applyEvery }
func (b *Base) OrderPreference() int { return b.orderPreference }
func (b *Base) Flags() Flags         { return b.flags }

// RestartHandle names the fix in snapshots.
func (b *Base) RestartHandle() string { return b.typ + "_" + b.handle }

func (b *Base) SetApplyEvery(n int) {
	if n < 1 {
		n = 1
	}
	b.applyEvery = n
}

// UpdateGroupTag re-reads the group mask, picking up groups created after
// the fix.
func (b *Base) UpdateGroupTag() error {
	tag, err := b.State.GroupTag(b.groupHandle)
	if err != nil {
		return err
	}
	b.groupTag = tag
	return nil
}

// ShouldApply reports whether the fix acts on turn.
func (b *Base) ShouldApply(turn int64) bool {
	return turn%int64(b.applyEvery) == 0
}

// Due is ShouldApply for any Fix.
func Due(f Fix, turn int64) bool {
	every := f.ApplyEvery()
	if every < 1 {
		every = 1
	}
	return turn%int64(every) == 0
}

func (b *Base) record() Record {
	return Record{Type: b.typ, Handle: b.handle, Attrs: map[string]string{}}
}

func (b *Base) checkRecord(r Record) error {
	if r.Type != b.typ || r.Handle != b.handle {
		return ErrRecordMismatch
	}
	return nil
}

func (b *Base) configError(format string, args ...any) error {
	return &ConfigError{Type: b.typ, Handle: b.handle, Reason: fmt.Sprintf(format, args...)}
}
