package theme

import "github.com/charmbracelet/lipgloss"

var (
	Surface1 = lipgloss.Color("#45475a")
	Subtext0 = lipgloss.Color("#a6adc8")
	Lavender = lipgloss.Color("#b4befe")
	Sapphire = lipgloss.Color("#74c7ec")
	Green    = lipgloss.Color("#a6e3a1")
	Peach    = lipgloss.Color("#fab387")
	Red      = lipgloss.Color("#f38ba8")

	Panel = lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(Surface1).
		Padding(0, 1)

	Title   = lipgloss.NewStyle().Foreground(Sapphire).Bold(true)
	Section = lipgloss.NewStyle().Foreground(Lavender).Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(Subtext0)
	Hot     = lipgloss.NewStyle().Foreground(Peach).Bold(true)
	OK      = lipgloss.NewStyle().Foreground(Green)
	Fail    = lipgloss.NewStyle().Foreground(Red).Bold(true)
)

// Outcome styles a run outcome or plugin status word.
func Outcome(word string) string {
	switch word {
	case "ok", "loaded":
		return OK.Render(word)
	case "invalid":
		return Hot.Render(word)
	default:
		return Fail.Render(word)
	}
}
