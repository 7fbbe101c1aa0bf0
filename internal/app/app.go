package app

import (
	"context"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/rs/zerolog"

	"github.com/nhle/notification-sync/internal/alert"
	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
	appsync "github.com/nhle/notification-sync/internal/sync"
	"github.com/nhle/notification-sync/internal/theme"
	"github.com/nhle/notification-sync/internal/ui"
	"github.com/nhle/notification-sync/internal/ui/bell"
	"github.com/nhle/notification-sync/internal/ui/command"
	"github.com/nhle/notification-sync/internal/ui/config"
	helpview "github.com/nhle/notification-sync/internal/ui/help"
	"github.com/nhle/notification-sync/internal/ui/inbox"
	"github.com/nhle/notification-sync/internal/ui/sendform"
)

// Session is the part of *sync.Session the UI drives.
type Session interface {
	Store() store.Reader
	Status() channel.State
	Start(ctx context.Context) error
	Refresh(ctx context.Context) error
	Select(id string)
	MarkAllRead()
	Send(req gateway.SendRequest)
	Close()
	WaitForNext() tea.Cmd
}

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewBell
	ViewHelp
	ViewCommand
	ViewSend
	ViewSettings
)

// startedMsg reports the end of the session bootstrap.
type startedMsg struct {
	err error
}

// Options configures the root model.
type Options struct {
	Session Session

	// Config is the loaded configuration shown in the settings view.
	Config model.AppConfig

	// SaveConfig persists edited settings.
	SaveConfig config.SaveFunc

	// SelectID is a notification to open once it is available, e.g. from
	// a --select flag.
	SelectID string

	// Logout forgets the stored session token.
	Logout func() error

	Logger zerolog.Logger
}

// Model is the root Bubble Tea model that manages view routing, layout
// and the session's event stream.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	session      Session
	keys         *keys.KeyMap
	inbox        inbox.Model
	bell         bell.Model
	helpView     helpview.Model
	commandView  command.Model
	sendForm     sendform.Model
	settings     config.Model
	tray         alert.Tray
	logout       func() error
	log          zerolog.Logger

	// focusID is shown in the inbox as soon as its selection completes.
	focusID   string
	selectID  string
	loggedOut bool
	ready     bool
}

// New creates the root application model.
func New(opts Options) Model {
	k := keys.DefaultKeyMap()
	r := opts.Session.Store()
	uiCfg := opts.Config.UI

	return Model{
		currentView: ViewInbox,
		session:     opts.Session,
		keys:        k,
		inbox:       inbox.New(r, k, 80, 22),
		bell:        bell.New(r, k, uiCfg.BellRecentLimit, 60),
		helpView:    helpview.New(k, 80, 22),
		commandView: command.New(80, 22),
		sendForm:    sendform.New(80, 22),
		settings:    config.New(opts.Config, opts.SaveConfig, k, 80, 22),
		tray:        alert.NewTray(uiCfg.AlertTTL(), uiCfg.MaxAlerts),
		logout:      opts.Logout,
		log:         opts.Logger.With().Str("component", "app").Logger(),
		focusID:     opts.SelectID,
		selectID:    opts.SelectID,
	}
}

// LoggedOut reports whether the program ended through logout.
func (m Model) LoggedOut() bool {
	return m.loggedOut
}

// Init starts the session and begins listening for its events.
func (m Model) Init() tea.Cmd {
	s := m.session
	selectID := m.selectID
	start := func() tea.Msg {
		if selectID != "" {
			s.Select(selectID)
		}
		return startedMsg{err: s.Start(context.Background())}
	}
	return tea.Batch(m.inbox.Init(), start, s.WaitForNext())
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var trayCmd tea.Cmd
	m.tray, trayCmd = m.tray.Update(msg)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		h := m.layout.ContentHeight()
		m.inbox.SetSize(msg.Width, h)
		m.bell.SetWidth(min(msg.Width-2, 60))
		m.helpView.SetSize(msg.Width, h)
		m.commandView.SetSize(msg.Width, h)
		m.sendForm.SetSize(msg.Width, h)
		m.settings.SetSize(msg.Width, h)
		m.tray.SetWidth(min(msg.Width/2, 48))
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case startedMsg:
		if msg.err != nil {
			m.log.Warn().Err(msg.err).Msg("bootstrap failed")
		}
		return m, trayCmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.inbox, cmd = m.inbox.Update(msg)
		return m, cmd

	case appsync.ChangedMsg:
		cmd := m.inbox.Refresh()
		if _, ok := m.session.Store().Get(m.focusID); ok && m.focusID != "" {
			// Already selected once; only the cursor needs to follow.
			m.inbox.Show(m.focusID)
		}
		return m, tea.Batch(cmd, trayCmd, m.session.WaitForNext())

	case appsync.ReceivedMsg:
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Push(alert.FromRecord(msg.Record))
		return m, tea.Batch(cmd, m.session.WaitForNext())

	case appsync.SelectedMsg:
		m.inbox.Refresh()
		m.inbox.Show(msg.ID)
		if msg.ID == m.focusID {
			m.focusID = ""
		}
		return m, tea.Batch(trayCmd, m.session.WaitForNext())

	case appsync.NoticeMsg:
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Push(noticeAlert(msg))
		return m, tea.Batch(cmd, m.session.WaitForNext())

	case ui.SelectMsg:
		m.session.Select(msg.ID)
		return m, trayCmd

	case ui.MarkAllReadMsg:
		m.session.MarkAllRead()
		return m, trayCmd

	case ui.OpenInboxMsg:
		m.currentView = ViewInbox
		m.bell.Reset()
		if msg.FocusID != "" {
			m.focusID = msg.FocusID
			m.session.Select(msg.FocusID)
		}
		return m, trayCmd

	case ui.OpenSendFormMsg:
		m.previousView = m.currentView
		m.currentView = ViewSend
		return m, tea.Batch(trayCmd, m.sendForm.Start())

	case ui.BackMsg:
		m.currentView = ViewInbox
		m.bell.Reset()
		return m, trayCmd

	case sendform.SubmitMsg:
		m.currentView = ViewInbox
		m.session.Send(msg.Request)
		return m, trayCmd

	case sendform.CancelMsg:
		m.currentView = ViewInbox
		return m, trayCmd

	case config.SavedMsg:
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Push(alert.New(alert.ProfileSuccess, "Settings saved", "Connection changes apply on next start."))
		return m, cmd

	case config.ConfigDoneMsg:
		m.currentView = ViewInbox
		return m, trayCmd

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, tea.Batch(trayCmd, m.executeCommand(msg))

	case command.ErrorMsg:
		m.currentView = m.previousView
		var cmd tea.Cmd
		m.tray, cmd = m.tray.Push(alert.New(alert.ProfileWarning, "Command", msg.Err.Error()))
		return m, cmd

	case tea.KeyMsg:
		if cmd, handled := m.handleGlobalKey(msg); handled {
			return m, cmd
		}
	}

	model, cmd := m.updateActiveView(msg)
	return model, tea.Batch(cmd, trayCmd)
}

// handleGlobalKey handles keys that work regardless of the active view.
// Text-entry views only see ctrl+c and esc.
func (m *Model) handleGlobalKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m.quit(), true
	}

	switch m.currentView {
	case ViewSend, ViewSettings:
		return nil, false
	case ViewCommand:
		if msg.String() == "esc" {
			m.currentView = m.previousView
			return nil, true
		}
		return nil, false
	case ViewHelp:
		if key.Matches(msg, m.keys.Help) || key.Matches(msg, m.keys.Back) {
			m.currentView = m.previousView
			return nil, true
		}
	}

	switch {
	case key.Matches(msg, m.keys.Quit) && (m.currentView == ViewInbox || m.currentView == ViewBell):
		return m.quit(), true

	case key.Matches(msg, m.keys.Help):
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m.commandView.Focus(), true

	case key.Matches(msg, m.keys.Bell) && m.currentView == ViewInbox:
		m.currentView = ViewBell
		m.bell.Reset()
		return nil, true

	case key.Matches(msg, m.keys.Refresh) && m.currentView == ViewInbox:
		return m.refresh(), true
	}
	return nil, false
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewBell:
		m.bell, cmd = m.bell.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	case ViewSend:
		m.sendForm, cmd = m.sendForm.Update(msg)
	case ViewSettings:
		m.settings, cmd = m.settings.Update(msg)
	}

	return m, cmd
}

// executeCommand handles a command from the command palette.
func (m *Model) executeCommand(c command.CommandMsg) tea.Cmd {
	switch c.Name {
	case command.Open:
		return func() tea.Msg { return ui.OpenInboxMsg{FocusID: c.Arg} }
	case command.Inbox:
		m.currentView = ViewInbox
		return nil
	case command.ReadAll:
		m.session.MarkAllRead()
		return nil
	case command.Refresh:
		return m.refresh()
	case command.Send:
		return func() tea.Msg { return ui.OpenSendFormMsg{} }
	case command.Settings:
		m.currentView = ViewSettings
		return m.settings.Start()
	case command.Logout:
		return m.doLogout()
	case command.Quit:
		return m.quit()
	default:
		return nil
	}
}

func (m *Model) refresh() tea.Cmd {
	s := m.session
	return func() tea.Msg {
		// Failures come back as a NoticeMsg from the session.
		_ = s.Refresh(context.Background())
		return nil
	}
}

func (m *Model) quit() tea.Cmd {
	m.session.Close()
	return tea.Quit
}

func (m *Model) doLogout() tea.Cmd {
	m.session.Close()
	m.loggedOut = true
	if m.logout != nil {
		if err := m.logout(); err != nil {
			m.log.Error().Err(err).Msg("forgetting session token")
		}
	}
	m.log.Info().Msg("logged out")
	return tea.Quit
}

// noticeAlert maps a session notice to its alert.
func noticeAlert(n appsync.NoticeMsg) alert.Alert {
	if n.Err == nil {
		msg := n.Message
		if msg == "" {
			msg = "Done"
		}
		return alert.New(alert.ProfileSuccess, msg, "")
	}
	if gateway.IsUnauthorized(n.Err) {
		return alert.New(alert.ProfileError, "Session expired", "Log in again to keep notifications in sync.")
	}
	return alert.New(alert.ProfileError, fmt.Sprintf("Could not %s", n.Op), n.Err.Error())
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	state := m.session.Status()
	connection := theme.ConnectionStyle(state.String()).
		Background(theme.HeaderStyle.GetBackground()).
		Render("● " + state.String())

	header := m.layout.RenderHeader("Notifications", m.bell.Badge(), connection)
	statusBar := m.layout.RenderStatusBar(m.keyHints())

	return m.layout.RenderWithFrame(header, m.renderContent(), m.tray.View(), statusBar)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewBell:
		return lipgloss.PlaceHorizontal(m.layout.Width, lipgloss.Right, m.bell.View())
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	case ViewSend:
		return m.sendForm.View()
	case ViewSettings:
		return m.settings.View()
	default:
		return m.inbox.View()
	}
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewBell:
		return "enter open | a mark all read | v view all | esc close"
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | tab complete | esc back"
	case ViewSend, ViewSettings:
		return "enter next | esc cancel"
	default:
		return "q quit | ? help | enter open | b bell | a read all | s send | r refresh | : command"
	}
}
