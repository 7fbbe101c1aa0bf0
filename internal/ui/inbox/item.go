package inbox

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
)

// Item wraps a notification so it can be used in a bubbles/list.
type Item struct {
	Notification model.Notification
}

// FilterValue returns the string used for fuzzy filtering.
func (i Item) FilterValue() string {
	return i.Notification.Title + " " + i.Notification.Message
}

// ItemDelegate implements list.ItemDelegate with one line per record.
type ItemDelegate struct {
	// Width caps the rendered title.
	Width int
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (none).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single record: unread marker, avatar, kind, title, age.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(Item)
	if !ok {
		return
	}
	n := it.Notification

	marker := " "
	if !n.IsRead {
		marker = lipgloss.NewStyle().Foreground(theme.ColorRed).Render("●")
	}

	titleWidth := d.Width - 24
	if titleWidth < 12 {
		titleWidth = 12
	}
	title := ui.Truncate(n.Title, titleWidth)
	if n.IsRead {
		title = theme.ReadStyle.Render(title)
	} else {
		title = theme.UnreadStyle.Render(title)
	}

	age := lipgloss.NewStyle().Foreground(theme.ColorGray).Render(ui.RelativeTime(n.CreatedAt))

	line := fmt.Sprintf("%s %s %s %s  %s",
		marker,
		n.Avatar(),
		theme.KindStyle(string(n.Kind)).Render(kindLabel(n.Kind)),
		title,
		age,
	)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// kindLabel returns a fixed-width label for the kind column.
func kindLabel(k model.Kind) string {
	switch k {
	case model.KindSuccess:
		return "OK  "
	case model.KindWarning:
		return "WARN"
	case model.KindChat:
		return "CHAT"
	case model.KindSystem:
		return "SYS "
	default:
		return "INFO"
	}
}
