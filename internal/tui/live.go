package tui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

const (
	width       = 70
	height      = 20
	clearScreen = "\033[2J\033[H"
	hideCursor  = "\033[?25l"
	showCursor  = "\033[?25h"
)

// LiveRenderer redraws the atom projection on a plain terminal at most
// frameRate times per second.
type LiveRenderer struct {
	out       io.Writer
	title     string
	frameRate int
	lastFrame time.Time
	canvas    *Canvas
}

func NewLiveRenderer(out io.Writer, title string, frameRate int) *LiveRenderer {
	if frameRate <= 0 {
		frameRate = 10
	}
	return &LiveRenderer{
		out:       out,
		title:     title,
		frameRate: frameRate,
		canvas:    NewCanvas(width, height),
	}
}

// OnSample has the shape of an experiment observer.
func (r *LiveRenderer) OnSample(smp thermo.Sample, s *md.State) {
	elapsed := time.Since(r.lastFrame)
	if elapsed < time.Second/time.Duration(r.frameRate) {
		return
	}
	r.lastFrame = time.Now()
	r.canvas.Draw(s)
	r.render(smp, len(s.Atoms))
}

func (r *LiveRenderer) render(smp thermo.Sample, atoms int) {
	var b strings.Builder
	b.WriteString(clearScreen)
	fmt.Fprintf(&b, "  %s  turn=%d  atoms=%d\n", r.title, smp.Turn, atoms)
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	for _, row := range r.canvas.Rows() {
		b.WriteString("  ")
		b.WriteString(row)
		b.WriteString("\n")
	}
	b.WriteString("  " + strings.Repeat("-", width) + "\n")
	fmt.Fprintf(&b, "  T=%.4f KE=%.4f PE=%.4f E=%.4f\n", smp.Temperature, smp.Kinetic, smp.Potential, smp.Total())
	fmt.Fprint(r.out, b.String())
}

func (r *LiveRenderer) Start() { fmt.Fprint(r.out, hideCursor) }
func (r *LiveRenderer) Stop()  { fmt.Fprint(r.out, showCursor) }
