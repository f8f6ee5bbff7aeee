package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/san-kum/mdsim/internal/md"
	"github.com/san-kum/mdsim/internal/thermo"
)

var (
	cyan    = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white   = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim     = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer  = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green   = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	yellow  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	magenta = lipgloss.NewStyle().Foreground(lipgloss.Color("213"))
	red     = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const historyLen = 120

type view int

const (
	viewAtoms view = iota
	viewEnergy
)

type sampleMsg struct {
	smp   thermo.Sample
	atoms int
	frame []string
}

type doneMsg struct{ err error }

type model struct {
	title string
	turns int64

	started bool
	first   int64
	last    thermo.Sample
	atoms   int
	frame   []string

	temps    []float64
	energies []float64

	view view
	done bool
	err  error

	width  int
	height int
}

func newModel(title string, turns int64) model {
	return model{title: title, turns: turns, width: 80, height: 24}
}

func (m model) Init() tea.Cmd { return nil }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil
	case sampleMsg:
		if !m.started {
			m.started = true
			m.first = msg.smp.Turn
		}
		m.last = msg.smp
		m.atoms = msg.atoms
		m.frame = msg.frame
		m.temps = push(m.temps, msg.smp.Temperature)
		m.energies = push(m.energies, msg.smp.Total())
		return m, nil
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, nil
	}
	return m, nil
}

func push(xs []float64, v float64) []float64 {
	xs = append(xs, v)
	if len(xs) > historyLen {
		xs = xs[len(xs)-historyLen:]
	}
	return xs
}

func (m model) handleKey(msg tea.KeyMsg) (model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		return m, tea.Quit
	case "v", "tab":
		if m.view == viewAtoms {
			m.view = viewEnergy
		} else {
			m.view = viewAtoms
		}
		return m, tea.ClearScreen
	}
	if m.done {
		return m, tea.Quit
	}
	return m, nil
}

func (m model) progress() float64 {
	if m.turns <= 0 || !m.started {
		return 0
	}
	p := float64(m.last.Turn-m.first) / float64(m.turns)
	if m.done && m.err == nil {
		p = 1
	}
	return min(max(p, 0), 1)
}

func (m model) View() string {
	var b strings.Builder

	statusIcon, statusText := green.Render("●"), green.Render("running")
	switch {
	case m.done && m.err != nil && !errors.Is(m.err, context.Canceled):
		statusIcon, statusText = red.Render("●"), red.Render("failed")
	case m.done:
		statusIcon, statusText = yellow.Render("○"), yellow.Render("finished")
	}
	fmt.Fprintf(&b, "\n   %s %s  %s  %s\n", statusIcon, cyan.Render(m.title), statusText,
		dim.Render(fmt.Sprintf("%d atoms", m.atoms)))

	barWidth := 36
	filled := int(m.progress() * float64(barWidth))
	bar := cyan.Render(strings.Repeat("━", filled)) + dimmer.Render(strings.Repeat("─", barWidth-filled))
	fmt.Fprintf(&b, "   %s %s\n\n", bar, dim.Render(fmt.Sprintf("turn %d", m.last.Turn)))

	switch m.view {
	case viewEnergy:
		w := max(m.width-12, 24)
		fmt.Fprintf(&b, "   %s %s\n", dim.Render("T"), magenta.Render(sparkline(m.temps, w)))
		fmt.Fprintf(&b, "   %s %s\n", dim.Render("E"), cyan.Render(sparkline(m.energies, w)))
	default:
		for _, row := range m.frame {
			b.WriteString("   " + row + "\n")
		}
	}

	smp := m.last
	if total := abs64(smp.Kinetic) + abs64(smp.Potential); total > 0 {
		energyWidth := 20
		keBar := int(abs64(smp.Kinetic) / total * float64(energyWidth))
		fmt.Fprintf(&b, "\n   energy %s%s  %s %.3f  %s %.3f\n",
			green.Render(strings.Repeat("█", keBar)),
			yellow.Render(strings.Repeat("█", energyWidth-keBar)),
			green.Render("KE"), smp.Kinetic,
			yellow.Render("PE"), smp.Potential)
	}
	fmt.Fprintf(&b, "   %s%s  %s%s\n",
		dim.Render("T="), white.Render(fmt.Sprintf("%.4f", smp.Temperature)),
		dim.Render("E="), white.Render(fmt.Sprintf("%.4f", smp.Total())))

	if m.done && m.err != nil && !errors.Is(m.err, context.Canceled) {
		b.WriteString("\n   " + red.Render(m.err.Error()) + "\n")
	}
	help := "   v view  q quit"
	if m.done {
		help = "   any key to exit"
	}
	b.WriteString("\n" + dim.Render(help) + "\n")
	return b.String()
}

func abs64(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// sparkline renders the last width values of data.
func sparkline(data []float64, width int) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > width {
		data = data[len(data)-width:]
	}
	chars := []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}
	minVal, maxVal := data[0], data[0]
	for _, v := range data {
		minVal = min(minVal, v)
		maxVal = max(maxVal, v)
	}
	rang := maxVal - minVal
	if rang == 0 {
		rang = 1
	}
	var sb strings.Builder
	for _, v := range data {
		idx := int((v - minVal) / rang * 7)
		sb.WriteRune(chars[min(max(idx, 0), 7)])
	}
	return sb.String()
}

// App shows a running experiment in a full-screen terminal view.
type App struct {
	program *tea.Program
	canvas  *Canvas
}

func NewApp(title string, turns int64, opts ...tea.ProgramOption) *App {
	return &App{
		program: tea.NewProgram(newModel(title, turns), opts...),
		canvas:  NewCanvas(width, height),
	}
}

// Observe projects s and forwards the sample to the view. It has the shape of
// an experiment observer and must be called from one goroutine at a time.
func (a *App) Observe(smp thermo.Sample, s *md.State) {
	a.canvas.Draw(s)
	a.program.Send(sampleMsg{smp: smp, atoms: len(s.Atoms), frame: a.canvas.Rows()})
}

// Run drives the view while job executes. Quitting the view cancels the
// context passed to job; Run returns once job has returned.
func (a *App) Run(ctx context.Context, job func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		err := job(ctx)
		errc <- err
		a.program.Send(doneMsg{err: err})
	}()

	_, perr := a.program.Run()
	cancel()
	err := <-errc
	if perr != nil {
		return perr
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
