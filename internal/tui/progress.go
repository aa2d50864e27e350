package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	cyan   = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	white  = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	dim    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	dimmer = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	green  = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	red    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

const barWidth = 40

// ProgressMsg reports that Done of Total configurations of File are read.
type ProgressMsg struct {
	File        string
	Done, Total int
}

// DoneMsg ends the program with the work's result.
type DoneMsg struct{ Err error }

type tickMsg time.Time

type Model struct {
	title    string
	tasks    []string
	finished map[string]bool
	current  string
	done     int
	total    int
	err      error
	quitting bool
	frame    int
	cancel   context.CancelFunc
}

// NewModel tracks the given files. cancel is called when the user quits.
func NewModel(title string, tasks []string, cancel context.CancelFunc) Model {
	return Model{
		title:    title,
		tasks:    tasks,
		finished: make(map[string]bool, len(tasks)),
		cancel:   cancel,
	}
}

func tick() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m Model) Init() tea.Cmd { return tick() }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.err = context.Canceled
			if m.cancel != nil {
				m.cancel()
			}
			return m, tea.Quit
		}
	case ProgressMsg:
		if m.current != "" && msg.File != m.current {
			m.finished[m.current] = true
		}
		m.current, m.done, m.total = msg.File, msg.Done, msg.Total
		if msg.Total > 0 && msg.Done >= msg.Total {
			m.finished[msg.File] = true
		}
	case DoneMsg:
		m.err = msg.Err
		m.quitting = true
		return m, tea.Quit
	case tickMsg:
		if m.quitting {
			return m, nil
		}
		m.frame++
		return m, tick()
	}
	return m, nil
}

// Err is the work's error, or context.Canceled if the user quit.
func (m Model) Err() error { return m.err }

func (m Model) Finished() int { return len(m.finished) }

func progressBar(done, total, width int) string {
	if total <= 0 {
		return dimmer.Render(strings.Repeat("░", width))
	}
	filled := min(width, max(0, done*width/total))
	return green.Render(strings.Repeat("█", filled)) + dimmer.Render(strings.Repeat("░", width-filled))
}

var spinner = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString("\n  " + cyan.Render(m.title) + dim.Render(fmt.Sprintf("  %d/%d", m.Finished(), len(m.tasks))) + "\n\n")
	for _, task := range m.tasks {
		switch {
		case m.finished[task]:
			b.WriteString("  " + green.Render("✓ ") + dim.Render(task) + "\n")
		case task == m.current:
			b.WriteString("  " + cyan.Render(spinner[m.frame%len(spinner)]+" ") + white.Render(task) + "\n")
			b.WriteString("    " + progressBar(m.done, m.total, barWidth) + dim.Render(fmt.Sprintf(" %d/%d", m.done, m.total)) + "\n")
		default:
			b.WriteString("    " + dimmer.Render(task) + "\n")
		}
	}

	if m.quitting && m.err != nil {
		b.WriteString("\n  " + red.Render(m.err.Error()) + "\n")
	}
	if !m.quitting {
		b.WriteString("\n" + dim.Render("  q quit") + "\n")
	}
	return b.String()
}

// Run shows progress for work until it returns or the user quits. work
// reports through send; Run waits for work to stop before returning.
func Run(ctx context.Context, title string, tasks []string, work func(ctx context.Context, send func(tea.Msg)) error, opts ...tea.ProgramOption) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p := tea.NewProgram(NewModel(title, tasks, cancel), opts...)
	errc := make(chan error, 1)
	go func() {
		err := work(ctx, p.Send)
		errc <- err
		p.Send(DoneMsg{Err: err})
	}()

	_, runErr := p.Run()
	cancel()
	workErr := <-errc
	if runErr != nil {
		return runErr
	}
	return workErr
}
