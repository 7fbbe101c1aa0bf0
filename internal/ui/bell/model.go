// Package bell renders the compact notification view: the unread badge in
// the header and a popover with the most recent records.
package bell

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
)

// DefaultRecentLimit is how many records the popover lists.
const DefaultRecentLimit = 5

// Model is the bell badge plus its popover.
type Model struct {
	store  store.Reader
	keys   *keys.KeyMap
	limit  int
	cursor int
	width  int
}

// New creates a bell reading from r.
func New(r store.Reader, k *keys.KeyMap, limit, width int) Model {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	return Model{store: r, keys: k, limit: limit, width: width}
}

// recent returns the records shown in the popover.
func (m Model) recent() []model.Notification {
	return m.store.Recent(m.limit)
}

// Badge renders the bell with its unread count.
func (m Model) Badge() string {
	n := m.store.UnreadCount()
	if n == 0 {
		return "🔔"
	}
	label := fmt.Sprint(n)
	if n > 99 {
		label = "99+"
	}
	return "🔔 " + theme.BadgeStyle.Render(label)
}

// Reset moves the cursor back to the newest record.
func (m *Model) Reset() {
	m.cursor = 0
}

// Update handles keys while the popover is open.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	recent := m.recent()
	if m.cursor >= len(recent) {
		m.cursor = max(len(recent)-1, 0)
	}

	switch {
	case key.Matches(keyMsg, m.keys.Down):
		if m.cursor < len(recent)-1 {
			m.cursor++
		}
	case key.Matches(keyMsg, m.keys.Up):
		if m.cursor > 0 {
			m.cursor--
		}
	case key.Matches(keyMsg, m.keys.Select):
		if len(recent) == 0 {
			return m, nil
		}
		id := recent[m.cursor].ID
		return m, func() tea.Msg { return ui.OpenInboxMsg{FocusID: id} }
	case key.Matches(keyMsg, m.keys.MarkAllRead):
		return m, func() tea.Msg { return ui.MarkAllReadMsg{} }
	case key.Matches(keyMsg, m.keys.Inbox):
		return m, func() tea.Msg { return ui.OpenInboxMsg{} }
	case key.Matches(keyMsg, m.keys.Back), key.Matches(keyMsg, m.keys.Bell):
		return m, func() tea.Msg { return ui.BackMsg{} }
	}
	return m, nil
}

// View renders the popover.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	header := titleStyle.Render(fmt.Sprintf("Notifications (%d unread)", m.store.UnreadCount()))

	recent := m.recent()
	var lines []string
	switch {
	case !m.store.Loaded() && len(recent) == 0:
		lines = append(lines, theme.HelpStyle.Render("Loading..."))
	case len(recent) == 0:
		lines = append(lines, theme.HelpStyle.Render("No notifications"))
	}

	for i, n := range recent {
		line := fmt.Sprintf("%s %s  %s",
			n.Avatar(),
			ui.Truncate(n.Title, 36),
			lipgloss.NewStyle().Foreground(theme.ColorGray).Render(ui.RelativeTime(n.CreatedAt)),
		)
		if n.IsRead {
			line = theme.ReadStyle.Render(line)
		} else {
			line = theme.UnreadStyle.Render("● " + line)
		}
		if i == m.cursor {
			line = theme.SelectedItemStyle.Render(line)
		} else {
			line = theme.ListItemStyle.Render(line)
		}
		lines = append(lines, line)
	}

	footer := theme.HelpStyle.Render("enter open · a mark all read · v view all · esc close")
	content := lipgloss.JoinVertical(lipgloss.Left, header, "", strings.Join(lines, "\n"), "", footer)

	width := m.width
	if width <= 0 || width > 60 {
		width = 60
	}
	return theme.BorderStyle.Width(width).Padding(0, 1).Render(content)
}

// SetWidth sets the popover width.
func (m *Model) SetWidth(width int) {
	m.width = width
}
