package command

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/theme"
)

// Command names understood by the palette.
const (
	Open     = "open"
	Refresh  = "refresh"
	ReadAll  = "read-all"
	Send     = "send"
	Inbox    = "inbox"
	Settings = "settings"
	Logout   = "logout"
	Quit     = "quit"
)

// Spec describes one palette command.
type Spec struct {
	Name    string
	Usage   string
	Summary string
	NeedArg bool
}

// Known lists the palette commands in display order.
var Known = []Spec{
	{Name: Open, Usage: "open <id>", Summary: "select a notification by id", NeedArg: true},
	{Name: Inbox, Usage: "inbox", Summary: "show all notifications"},
	{Name: ReadAll, Usage: "read-all", Summary: "mark every notification read"},
	{Name: Refresh, Usage: "refresh", Summary: "reload notifications from the server"},
	{Name: Send, Usage: "send", Summary: "send a notification"},
	{Name: Settings, Usage: "settings", Summary: "edit connection and display settings"},
	{Name: Logout, Usage: "logout", Summary: "end the session and forget the token"},
	{Name: Quit, Usage: "quit", Summary: "exit"},
}

// CommandMsg is emitted when the user executes a valid command.
type CommandMsg struct {
	Name string
	Arg  string
}

// ErrorMsg is emitted for a line that is not a valid command.
type ErrorMsg struct {
	Err error
}

// Parse splits a palette line into a command and its argument.
func Parse(line string) (CommandMsg, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return CommandMsg{}, fmt.Errorf("empty command")
	}

	name := strings.ToLower(fields[0])
	arg := strings.Join(fields[1:], " ")
	for _, c := range Known {
		if c.Name != name {
			continue
		}
		if c.NeedArg && arg == "" {
			return CommandMsg{}, fmt.Errorf("usage: %s", c.Usage)
		}
		return CommandMsg{Name: name, Arg: arg}, nil
	}
	return CommandMsg{}, fmt.Errorf("unknown command %q", name)
}

// Model is the command palette view.
type Model struct {
	input  textinput.Model
	width  int
	height int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "type a command..."
	ti.Prompt = ": "
	ti.ShowSuggestions = true
	ti.Focus()
	ti.Width = width - 6

	suggestions := make([]string, len(Known))
	for i, c := range Known {
		suggestions[i] = c.Name
	}
	ti.SetSuggestions(suggestions)

	return Model{
		input:  ti,
		width:  width,
		height: height,
	}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok && msg.String() == "enter" {
		line := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if line == "" {
			return m, nil
		}
		parsed, err := Parse(line)
		if err != nil {
			return m, func() tea.Msg { return ErrorMsg{Err: err} }
		}
		return m, func() tea.Msg { return parsed }
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View renders the command palette.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render("Command Palette"),
		m.input.View(),
	)

	return theme.DetailPanelStyle.
		Width(m.width - 4).
		Render(content)
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus gives keyboard focus to the text input.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	return m.input.Focus()
}
