package fix

import "sort"

// List holds the fixes of a run in registration order.
type List struct {
	fixes []Fix
}

func NewList() *List { return &List{} }

// Add registers f. A fix with the same handle is replaced in place and Add
// reports true.
func (l *List) Add(f Fix) bool {
	for i, old := range l.fixes {
		if old.Handle() == f.Handle() {
			l.fixes[i] = f
			return true
		}
	}
	l.fixes = append(l.fixes, f)
	return false
}

// Remove drops the fix with handle and reports whether one was present.
func (l *List) Remove(handle string) bool {
	for i, f := range l.fixes {
		if f.Handle() == handle {
			l.fixes = append(l.fixes[:i], l.fixes[i+1:]...)
			return true
		}
	}
	return false
}

func (l *List) Get(handle string) (Fix, bool) {
	for _, f := range l.fixes {
		if f.Handle() == handle {
			return f, true
		}
	}
	return nil, false
}

func (l *List) Len() int { return len(l.fixes) }

// All returns the fixes in registration order.
func (l *List) All() []Fix {
	out := make([]Fix, len(l.fixes))
	copy(out, l.fixes)
	return out
}

// Ordered returns the fixes sorted by OrderPreference. Ties keep
// registration order.
func (l *List) Ordered() []Fix {
	out := l.All()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].OrderPreference() < out[j].OrderPreference()
	})
	return out
}

// MaxCutoff is the largest cutoff among pair fixes, or zero.
func (l *List) MaxCutoff() float64 {
	var rc float64
	for _, f := range l.fixes {
		if c, ok := f.(Cutoffer); ok && c.Cutoff() > rc {
			rc = c.Cutoff()
		}
	}
	return rc
}

// Thermostats returns the fixes flagged as thermostats.
func (l *List) Thermostats() []Fix {
	var out []Fix
	for _, f := range l.fixes {
		if f.Flags().IsThermostat {
			out = append(out, f)
		}
	}
	return out
}
