// Package tui shows bake progress in the terminal. Pressing q or ctrl+c
// cancels the bake; a canceled bake writes nothing.
package tui

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/san-kum/springmagic/internal/dynamo"
	"github.com/san-kum/springmagic/internal/viz"
)

const barWidth = 40

type frameMsg struct{ frame, done, total int }

type doneMsg struct{ err error }

type tickMsg time.Time

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

type model struct {
	title     string
	cancel    context.CancelFunc
	frame     int
	done      int
	total     int
	spin      int
	started   time.Time
	canceling bool
	finished  bool
	err       error
}

func newModel(title string, total int, cancel context.CancelFunc) model {
	return model{title: title, total: total, cancel: cancel, started: time.Now()}
}

func (m model) Init() tea.Cmd { return tick() }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			if !m.canceling {
				m.canceling = true
				m.cancel()
			}
		}
		return m, nil
	case frameMsg:
		m.frame, m.done, m.total = msg.frame, msg.done, msg.total
		return m, nil
	case tickMsg:
		m.spin++
		return m, tick()
	case doneMsg:
		m.finished = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	b.WriteString(viz.Title.Render(m.title))
	b.WriteString("\n\n")

	pct := 0.0
	if m.total > 0 {
		pct = float64(m.done) / float64(m.total)
	}
	spin := viz.Spinner(m.spin)
	if m.finished {
		spin = " "
	}
	fmt.Fprintf(&b, "%s %s %s\n", spin, viz.ProgressBar(pct, barWidth),
		viz.MetricValue.Render(fmt.Sprintf("%3.0f%%", pct*100)))
	fmt.Fprintf(&b, "%s %s   %s %s\n",
		viz.MetricLabel.Render("frame"), viz.MetricValue.Render(fmt.Sprintf("%d (%d/%d)", m.frame, m.done, m.total)),
		viz.MetricLabel.Render("elapsed"), viz.MetricValue.Render(time.Since(m.started).Round(100*time.Millisecond).String()))

	switch {
	case m.canceling:
		b.WriteString(viz.StatusWarn.Render("canceling..."))
	case m.finished:
		b.WriteString(viz.StatusOK.Render("done"))
	default:
		b.WriteString(viz.KeyHint.Render("q cancel"))
	}
	b.WriteString("\n")
	return b.String()
}

// BakeFunc runs a bake, reporting every finished frame to obs.
type BakeFunc func(ctx context.Context, obs dynamo.Observer) error

// Run shows a progress view while bake runs and returns its error. Canceling
// from the keyboard cancels the context handed to bake.
func Run(ctx context.Context, title string, total int, out io.Writer, bake BakeFunc) error {
	return run(ctx, title, total, bake, tea.WithOutput(out))
}

func run(ctx context.Context, title string, total int, bake BakeFunc, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(newModel(title, total, cancel), opts...)
	result := make(chan error, 1)
	go func() {
		err := bake(ctx, dynamo.ObserverFunc(func(frame, done, total int) {
			p.Send(frameMsg{frame, done, total})
		}))
		result <- err
		p.Send(doneMsg{err})
	}()

	// without a terminal the view fails but the bake still runs to the end
	p.Run()
	return <-result
}
