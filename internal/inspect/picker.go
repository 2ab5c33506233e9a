package inspect

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	pickerTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("39")).
				Padding(1, 0, 1, 2)

	pickerItemStyle = lipgloss.NewStyle().
			Padding(0, 0, 0, 4)

	pickerSelectedStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("39")).
				Bold(true).
				Padding(0, 0, 0, 2)

	pickerHintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Padding(1, 0, 0, 2)
)

// AllPortals is the picker entry that disables portal filtering.
const AllPortals = "all portals"

type pickerModel struct {
	options []string
	cursor  int
	chosen  int // -1 = no choice yet, -2 = quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q", "ctrl+c":
			m.chosen = -2
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.options)-1 {
				m.cursor++
			}
		case "enter":
			m.chosen = m.cursor
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	s := pickerTitleStyle.Render("Inspect ingestion: select a portal") + "\n"
	for i, o := range m.options {
		if i == m.cursor {
			s += pickerSelectedStyle.Render("> "+o) + "\n"
		} else {
			s += pickerItemStyle.Render(o) + "\n"
		}
	}
	s += pickerHintStyle.Render("↑/↓/j/k navigate  enter select  q quit")
	return s
}

// RunPortalPicker shows AllPortals followed by portals and returns the chosen
// entry, or "" if the user quit.
func RunPortalPicker(portals []string) (string, error) {
	m := pickerModel{options: append([]string{AllPortals}, portals...), chosen: -1}
	result, err := tea.NewProgram(m).Run()
	if err != nil {
		return "", err
	}
	final := result.(pickerModel)
	if final.chosen < 0 {
		return "", nil
	}
	return final.options[final.chosen], nil
}
