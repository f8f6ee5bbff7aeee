package thermo

import (
	"errors"
	"fmt"
	"sort"
)

var ErrBadSchedule = errors.New("thermo: invalid temperature schedule")

// Schedule yields a target temperature per turn. A constant schedule never
// finishes; an interval schedule interpolates linearly between its set
// points and finishes once the last interval boundary has passed.
type Schedule struct {
	constant  bool
	temp      float64
	intervals []int64
	temps     []float64
	cur       int
	finished  bool
}

// Constant returns a schedule fixed at t.
func Constant(t float64) *Schedule {
	return &Schedule{constant: true, temp: t}
}

// Intervals returns a schedule through (intervals[i], temps[i]). Intervals
// are turn numbers and must be strictly increasing.
func Intervals(intervals []int64, temps []float64) (*Schedule, error) {
	if len(intervals) == 0 || len(intervals) != len(temps) {
		return nil, fmt.Errorf("%w: %d intervals, %d temperatures", ErrBadSchedule, len(intervals), len(temps))
	}
	if !sort.SliceIsSorted(intervals, func(i, j int) bool { return intervals[i] < intervals[j] }) {
		return nil, fmt.Errorf("%w: intervals not increasing", ErrBadSchedule)
	}
	for i := 1; i < len(intervals); i++ {
		if intervals[i] == intervals[i-1] {
			return nil, fmt.Errorf("%w: repeated interval %d", ErrBadSchedule, intervals[i])
		}
	}
	for _, t := range temps {
		if t < 0 {
			return nil, fmt.Errorf("%w: negative temperature %g", ErrBadSchedule, t)
		}
	}
	s := &Schedule{
		intervals: append([]int64(nil), intervals...),
		temps:     append([]float64(nil), temps...),
	}
	return s, nil
}

func (s *Schedule) IsConstant() bool { return s.constant }

// At returns the target temperature at turn, clamping outside the schedule.
func (s *Schedule) At(turn int64) float64 {
	if s.constant {
		return s.temp
	}
	last := len(s.intervals) - 1
	if turn <= s.intervals[0] {
		return s.temps[0]
	}
	if turn >= s.intervals[last] {
		return s.temps[last]
	}
	i := sort.Search(len(s.intervals), func(i int) bool { return s.intervals[i] > turn }) - 1
	span := float64(s.intervals[i+1] - s.intervals[i])
	frac := float64(turn-s.intervals[i]) / span
	return s.temps[i] + frac*(s.temps[i+1]-s.temps[i])
}

// Advance moves the interval cursor to turn and returns the temperature.
func (s *Schedule) Advance(turn int64) float64 {
	if s.constant {
		return s.temp
	}
	for s.cur < len(s.intervals) && s.intervals[s.cur] <= turn {
		s.cur++
	}
	if turn > s.intervals[len(s.intervals)-1] {
		s.finished = true
	}
	return s.At(turn)
}

// Finished reports whether the schedule has run past its last interval.
func (s *Schedule) Finished() bool { return s.finished }

// Interval is the index of the next boundary not yet reached.
func (s *Schedule) Interval() int { return s.cur }

// Reset rewinds the cursor for a new run.
func (s *Schedule) Reset() {
	s.cur = 0
	s.finished = false
}
