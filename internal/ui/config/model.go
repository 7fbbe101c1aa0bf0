// Package config is the settings view: a form over the connection and
// display settings that writes them back to the config file.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/theme"
)

// ConfigMode represents the current state of the settings view.
type ConfigMode int

const (
	ModeForm   ConfigMode = iota // Editing settings
	ModeResult                   // Showing the save result
)

// ConfigDoneMsg signals the settings view should close.
type ConfigDoneMsg struct{}

// SavedMsg is sent after the settings were written to disk.
type SavedMsg struct {
	Config model.AppConfig
}

// savedInternalMsg carries the result of the save command.
type savedInternalMsg struct {
	cfg model.AppConfig
	err error
}

// SaveFunc persists cfg.
type SaveFunc func(cfg *model.AppConfig) error

// fields holds form values on the heap so huh's Value() pointers stay
// valid across model copies.
type fields struct {
	apiURL      string
	pushURL     string
	userID      string
	alertTTLMS  string
	bellLimit   string
	logLevel    string
	confirmSave bool
}

// Model is the Bubble Tea model for the settings view.
type Model struct {
	mode    ConfigMode
	base    model.AppConfig
	save    SaveFunc
	form    *huh.Form
	f       *fields
	saveErr error

	keys          *keys.KeyMap
	width, height int
}

// New creates a settings view over cfg. save is called with the edited
// copy when the form completes.
func New(cfg model.AppConfig, save SaveFunc, k *keys.KeyMap, width, height int) Model {
	return Model{
		base:   cfg,
		save:   save,
		f:      &fields{},
		keys:   k,
		width:  width,
		height: height,
	}
}

// Start resets the form to the current settings.
func (m *Model) Start() tea.Cmd {
	*m.f = fields{
		apiURL:     m.base.API.BaseURL,
		pushURL:    m.base.Push.URL,
		userID:     m.base.Session.UserID,
		alertTTLMS: strconv.Itoa(m.base.UI.AlertTTLMS),
		bellLimit:  strconv.Itoa(m.base.UI.BellRecentLimit),
		logLevel:   m.base.Log.Level,
	}
	m.mode = ModeForm
	m.saveErr = nil
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages based on the current mode.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case savedInternalMsg:
		m.mode = ModeResult
		m.saveErr = msg.err
		if msg.err != nil {
			return m, nil
		}
		m.base = msg.cfg
		cfg := msg.cfg
		return m, func() tea.Msg { return SavedMsg{Config: cfg} }

	case tea.KeyMsg:
		if m.mode == ModeResult {
			if msg.String() == "enter" || key.Matches(msg, m.keys.Back) {
				return m, func() tea.Msg { return ConfigDoneMsg{} }
			}
			return m, nil
		}
	}

	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		if !m.f.confirmSave {
			return m, func() tea.Msg { return ConfigDoneMsg{} }
		}
		return m, m.saveCmd()
	case huh.StateAborted:
		return m, func() tea.Msg { return ConfigDoneMsg{} }
	}
	return m, cmd
}

// apply copies the form values onto a copy of the base settings.
func (m Model) apply() (model.AppConfig, error) {
	cfg := m.base
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(m.f.apiURL), "/")
	cfg.Push.URL = strings.TrimSpace(m.f.pushURL)
	cfg.Session.UserID = strings.TrimSpace(m.f.userID)
	cfg.Log.Level = strings.TrimSpace(m.f.logLevel)

	ttl, err := strconv.Atoi(strings.TrimSpace(m.f.alertTTLMS))
	if err != nil {
		return cfg, fmt.Errorf("alert duration: %w", err)
	}
	cfg.UI.AlertTTLMS = ttl

	limit, err := strconv.Atoi(strings.TrimSpace(m.f.bellLimit))
	if err != nil {
		return cfg, fmt.Errorf("bell list size: %w", err)
	}
	cfg.UI.BellRecentLimit = limit
	return cfg, nil
}

func (m Model) saveCmd() tea.Cmd {
	cfg, err := m.apply()
	save := m.save
	return func() tea.Msg {
		if err != nil {
			return savedInternalMsg{err: err}
		}
		if save != nil {
			if err := save(&cfg); err != nil {
				return savedInternalMsg{err: err}
			}
		}
		return savedInternalMsg{cfg: cfg}
	}
}

func (m *Model) buildForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("API URL").
				Placeholder("http://localhost:1100/api").
				Value(&m.f.apiURL).
				Validate(validateURL("http", "https")),
			huh.NewInput().
				Title("Push URL").
				Placeholder("ws://localhost:1100/ws").
				Value(&m.f.pushURL).
				Validate(validateURL("ws", "wss")),
			huh.NewInput().
				Title("User ID").
				Description("Leave empty to use the token's subject").
				Value(&m.f.userID),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Alert duration (ms)").
				Value(&m.f.alertTTLMS).
				Validate(validatePositive),
			huh.NewInput().
				Title("Bell list size").
				Value(&m.f.bellLimit).
				Validate(validatePositive),
			huh.NewSelect[string]().
				Title("Log level").
				Options(huh.NewOptions("debug", "info", "warn", "error")...).
				Value(&m.f.logLevel),
			huh.NewConfirm().
				Title("Save settings?").
				Description("Connection changes apply on next start.").
				Value(&m.f.confirmSave),
		),
	).WithWidth(m.formWidth())
}

// View renders the settings view.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	var body string
	switch {
	case m.mode == ModeResult && m.saveErr != nil:
		body = lipgloss.NewStyle().Foreground(theme.ColorRed).
			Render("Could not save settings: "+m.saveErr.Error()) +
			"\n\n" + theme.HelpStyle.Render("enter/esc: back")
	case m.mode == ModeResult:
		body = lipgloss.NewStyle().Foreground(theme.ColorGreen).Render("Settings saved.") +
			"\n\n" + theme.HelpStyle.Render("enter/esc: back")
	case m.form != nil:
		body = m.form.View()
	}

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(titleStyle.Render("Settings") + "\n" + body)
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 100 {
		w = 100
	}
	return w
}

func validateURL(schemes ...string) func(string) error {
	return func(s string) error {
		s = strings.TrimSpace(s)
		if s == "" {
			return fmt.Errorf("URL is required")
		}
		u, err := url.Parse(s)
		if err != nil || u.Host == "" {
			return fmt.Errorf("invalid URL")
		}
		for _, scheme := range schemes {
			if u.Scheme == scheme {
				return nil
			}
		}
		return fmt.Errorf("URL must start with %s://", strings.Join(schemes, ":// or "))
	}
}

func validatePositive(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive number")
	}
	return nil
}
