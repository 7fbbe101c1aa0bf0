// Package inbox is the full notification view: every record in a list with
// the selected one shown in a detail pane.
package inbox

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
)

// Model is the inbox view component.
type Model struct {
	store   store.Reader
	keys    *keys.KeyMap
	list    list.Model
	detail  viewport.Model
	spinner spinner.Model

	// shownID is the record in the detail pane.
	shownID string
	width   int
	height  int
}

// New creates an inbox reading from r.
func New(r store.Reader, k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, height)
	l.Title = "Notifications"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorBlue)

	m := Model{
		store:   r,
		keys:    k,
		list:    l,
		detail:  viewport.New(width, height),
		spinner: sp,
	}
	m.SetSize(width, height)
	return m
}

// Init starts the loading spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// Refresh rebuilds the list from the store, keeping the cursor on the same
// record where possible.
func (m *Model) Refresh() tea.Cmd {
	current := m.currentID()

	records := m.store.Records()
	items := make([]list.Item, len(records))
	for i, n := range records {
		items[i] = Item{Notification: n}
	}
	cmd := m.list.SetItems(items)

	if current != "" {
		m.moveTo(current)
	}
	m.renderDetail()
	return cmd
}

// Show puts the record with id under the cursor and in the detail pane.
// It reports false when the record is not in the store yet.
func (m *Model) Show(id string) bool {
	if !m.moveTo(id) {
		return false
	}
	m.shownID = id
	m.renderDetail()
	return true
}

// ShownID returns the record in the detail pane.
func (m Model) ShownID() string {
	return m.shownID
}

func (m *Model) moveTo(id string) bool {
	for i, it := range m.list.Items() {
		if it.(Item).Notification.ID == id {
			m.list.Select(i)
			return true
		}
	}
	return false
}

func (m Model) currentID() string {
	if it, ok := m.list.SelectedItem().(Item); ok {
		return it.Notification.ID
	}
	return ""
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.store.Loaded() {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Select):
			id := m.currentID()
			if id == "" {
				return m, nil
			}
			m.shownID = id
			m.renderDetail()
			return m, func() tea.Msg { return ui.SelectMsg{ID: id} }

		case key.Matches(msg, m.keys.MarkAllRead):
			return m, func() tea.Msg { return ui.MarkAllReadMsg{} }

		case key.Matches(msg, m.keys.Send):
			return m, func() tea.Msg { return ui.OpenSendFormMsg{} }

		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg { return ui.BackMsg{} }

		case msg.String() == "pgdown" || msg.String() == "pgup":
			var cmd tea.Cmd
			m.detail, cmd = m.detail.Update(msg)
			return m, cmd
		}
	}

	// Delegate to the list for navigation keys.
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the list and the detail pane side by side.
func (m Model) View() string {
	center := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	if len(m.list.Items()) == 0 {
		if !m.store.Loaded() {
			return center.Render(m.spinner.View() + " Loading notifications...")
		}
		return center.Render("No notifications yet.")
	}

	detail := theme.DetailPanelStyle.
		Width(m.detailWidth()).
		Height(m.height - 2).
		Render(m.detail.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, m.list.View(), detail)
}

func (m *Model) renderDetail() {
	n, ok := m.store.Get(m.shownID)
	if !ok {
		m.detail.SetContent(lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Render("Select a notification to read it."))
		return
	}
	m.detail.SetContent(renderContent(n, m.detailWidth()))
	m.detail.GotoTop()
}

// renderContent builds the detail pane text for n.
func renderContent(n model.Notification, width int) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	state := "unread"
	if n.IsRead {
		state = "read"
	}

	sections := []string{
		titleStyle.Render(n.Title),
		lipgloss.JoinHorizontal(lipgloss.Top,
			theme.KindStyle(string(n.Kind)).Render(strings.ToUpper(string(n.Kind))),
			"  ",
			metaStyle.Render(state),
		),
		"",
		fmt.Sprintf("%s  %s %s", metaStyle.Render("From:"), n.Avatar(), valStyle.Render(n.SenderLabel())),
	}
	if !n.CreatedAt.IsZero() {
		sections = append(sections, fmt.Sprintf("%s  %s",
			metaStyle.Render("Sent:"),
			valStyle.Render(n.CreatedAt.Local().Format("2006-01-02 15:04")),
		))
	}
	if project, ok := n.Meta.String(model.MetaProjectID); ok {
		sections = append(sections, fmt.Sprintf("%s  %s",
			metaStyle.Render("Project:"),
			valStyle.Render(project),
		))
	}

	sep := lipgloss.NewStyle().Foreground(theme.ColorSubtle).
		Render(strings.Repeat("─", max(min(width-4, 80), 1)))
	sections = append(sections, "", sep, "")

	body := n.Message
	if body == "" {
		body = lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true).Render("No message")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(width-4, 10)).Render(body))

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) listWidth() int {
	return m.width * 45 / 100
}

func (m Model) detailWidth() int {
	return m.width - m.listWidth() - 2
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(m.listWidth(), height)
	m.list.SetDelegate(ItemDelegate{Width: m.listWidth()})
	m.detail.Width = m.detailWidth() - 4
	m.detail.Height = height - 4
}
