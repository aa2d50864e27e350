package viz

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/mdsuite/internal/project"
)

var (
	Panel       lipgloss.Style
	Title       lipgloss.Style
	MetricLabel lipgloss.Style
	MetricValue lipgloss.Style
	Subtle      lipgloss.Style
	Warning     lipgloss.Style
)

func init() {
	applyTheme(CurrentTheme)
}

func applyTheme(t Theme) {
	Panel = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(t.Border).
		Padding(0, 1)
	Title = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Primary)
	MetricLabel = lipgloss.NewStyle().
		Foreground(t.Muted).
		Width(18)
	MetricValue = lipgloss.NewStyle().
		Foreground(t.Accent).
		Bold(true)
	Subtle = lipgloss.NewStyle().
		Foreground(t.Muted)
	Warning = lipgloss.NewStyle().
		Bold(true).
		Foreground(t.Warning)
}

func row(label string, value any) string {
	return MetricLabel.Render(label) + MetricValue.Render(fmt.Sprint(value))
}

// RenderSummary renders an experiment summary as a bordered panel.
func RenderSummary(s *project.Summary) string {
	state := "active"
	if !s.Active {
		state = Warning.Render("disabled")
	}

	lines := []string{
		Title.Render(s.Name) + "  " + Subtle.Render(state),
		row("temperature", s.Temperature),
		row("time step", s.TimeStep),
		row("units", s.Units),
		row("configurations", s.Configurations),
		row("atoms", s.Atoms),
		row("sample rate", s.SampleRate),
		row("box", fmt.Sprintf("%g x %g x %g", s.Box[0], s.Box[1], s.Box[2])),
		row("version", s.Version),
		row("database", s.HumanSize),
	}

	species := make([]string, 0, len(s.Species))
	for name := range s.Species {
		species = append(species, name)
	}
	sort.Strings(species)
	if len(species) > 0 {
		lines = append(lines, "", Title.Render("species"))
	}
	for _, name := range species {
		lines = append(lines, row(name, fmt.Sprintf("%d atoms, charge %g", s.Species[name], s.Charges[name])))
	}

	if len(s.Groups) > 0 {
		lines = append(lines, "", Title.Render("datasets"))
		for _, g := range s.Groups {
			lines = append(lines, Subtle.Render(g))
		}
	}
	return Panel.Render(strings.Join(lines, "\n"))
}

// RenderComputation renders every scalar of a stored result.
func RenderComputation(c *project.Computation) string {
	lines := []string{
		Title.Render(c.Name) + "  " + Subtle.Render(fmt.Sprintf("%s  v%d  %s", c.Experiment, c.Version, shortID(c.ID))),
	}
	for _, e := range c.Entries {
		lines = append(lines, "", Title.Render(e.Key()))
		for _, name := range e.ScalarNames() {
			lines = append(lines, row(name, fmt.Sprintf("%.6g", e.Scalars[name])))
		}
		if series := e.SeriesNames(); len(series) > 0 {
			lines = append(lines, Subtle.Render("series: "+strings.Join(series, ", ")))
		}
	}
	return Panel.Render(strings.Join(lines, "\n"))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// PlotSeries draws a series as a line chart, downsampling to the width.
func PlotSeries(caption string, y []float64) string {
	if len(y) == 0 {
		return Subtle.Render(caption + ": no data")
	}
	return asciigraph.Plot(y,
		asciigraph.Height(10),
		asciigraph.Width(80),
		asciigraph.Caption(caption),
	)
}
