package sendform

import (
	"fmt"
	"net/mail"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/theme"
)

// SubmitMsg is dispatched when the form is completed.
type SubmitMsg struct {
	Request gateway.SendRequest
}

// CancelMsg is dispatched when the user aborts the form.
type CancelMsg struct{}

// formBindings holds form field values on the heap so that huh's Value()
// pointers remain valid across Bubble Tea model copies.
type formBindings struct {
	title    string
	message  string
	kind     model.Kind
	audience gateway.Audience
	email    string
}

// Model is the Bubble Tea model for the send-notification form.
type Model struct {
	form   *huh.Form
	fb     *formBindings
	width  int
	height int
}

// New creates a new send form model.
func New(width, height int) Model {
	return Model{
		fb:     &formBindings{kind: model.KindInfo, audience: gateway.AudienceDevelopers},
		width:  width,
		height: height,
	}
}

// Start resets the fields and builds a fresh form.
func (m *Model) Start() tea.Cmd {
	*m.fb = formBindings{kind: model.KindInfo, audience: gateway.AudienceDevelopers}
	m.form = m.buildForm()
	return m.form.Init()
}

// Update handles messages for the form.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m, m.handleSubmit()
	case huh.StateAborted:
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

// View renders the form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	content := titleStyle.Render("Send Notification") + "\n" + m.form.View()

	return lipgloss.NewStyle().
		Padding(1, 2).
		Render(content)
}

// SetSize updates the form dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m *Model) buildForm() *huh.Form {
	kindOpts := make([]huh.Option[model.Kind], 0, len(model.Kinds))
	for _, k := range model.Kinds {
		kindOpts = append(kindOpts, huh.NewOption(strings.ToUpper(string(k[:1]))+string(k[1:]), k))
	}

	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Title").
				Placeholder("What is this about?").
				Value(&m.fb.title).
				Validate(validateRequired("Title")),
			huh.NewText().
				Title("Message").
				Placeholder("Write the notification...").
				Value(&m.fb.message).
				Validate(validateRequired("Message")),
			huh.NewSelect[model.Kind]().
				Title("Type").
				Options(kindOpts...).
				Value(&m.fb.kind),
			huh.NewSelect[gateway.Audience]().
				Title("Send to").
				Options(
					huh.NewOption("All developers", gateway.AudienceDevelopers),
					huh.NewOption("All project managers", gateway.AudienceManagers),
					huh.NewOption("Admins", gateway.AudienceAdmins),
					huh.NewOption("A specific user", gateway.AudienceSpecific),
				).
				Value(&m.fb.audience),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Recipient email").
				Placeholder("name@example.com").
				Value(&m.fb.email).
				Validate(validateEmail),
		).WithHideFunc(func() bool {
			return m.fb.audience != gateway.AudienceSpecific
		}),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) handleSubmit() tea.Cmd {
	req := gateway.SendRequest{
		Title:   strings.TrimSpace(m.fb.title),
		Message: strings.TrimSpace(m.fb.message),
		Kind:    m.fb.kind,
	}
	if err := req.SetAudience(m.fb.audience, m.fb.email); err != nil {
		// The email field validates before completion, so this only
		// happens for an audience the form does not offer.
		return func() tea.Msg { return CancelMsg{} }
	}
	return func() tea.Msg { return SubmitMsg{Request: req} }
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

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func validateRequired(fieldName string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
		return nil
	}
}

func validateEmail(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(s); err != nil {
		return fmt.Errorf("invalid email address")
	}
	return nil
}
