// Package alert turns pushed notifications and gateway notices into
// short-lived on-screen alerts.
package alert

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/nhle/notification-sync/internal/model"
)

// Profile is the presentation of one alert category.
type Profile struct {
	Name       string
	Glyph      string
	Foreground lipgloss.Color
	Background lipgloss.Color
	Border     lipgloss.Color
}

// Profile names. Kinds without a dedicated profile use ProfileDefault.
const (
	ProfileSuccess = "success"
	ProfileError   = "error"
	ProfileWarning = "warning"
	ProfileInfo    = "info"
	ProfileSystem  = "system"
	ProfileDefault = "default"
)

var profiles = map[string]Profile{
	ProfileSuccess: {Name: ProfileSuccess, Glyph: "✔", Foreground: "#0D47A1", Background: "#E7F3FF", Border: "#7BC4FF"},
	ProfileError:   {Name: ProfileError, Glyph: "✖", Foreground: "#B71C1C", Background: "#FDECEA", Border: "#CD7E7E"},
	ProfileWarning: {Name: ProfileWarning, Glyph: "⚠", Foreground: "#8B6B00", Background: "#FFF8E1", Border: "#FBD378"},
	ProfileInfo:    {Name: ProfileInfo, Glyph: "ℹ", Foreground: "#1B5E20", Background: "#E6F4EA", Border: "#8FFB95"},
	ProfileSystem:  {Name: ProfileSystem, Glyph: "⚠", Foreground: "#8B6B00", Background: "#FFF8E1", Border: "#FBD378"},
	ProfileDefault: {Name: ProfileDefault, Glyph: "💬", Foreground: "#333333", Background: "#F5F5F5", Border: "#90CAF9"},
}

// ProfileFor returns the profile named name, or the default profile.
func ProfileFor(name string) Profile {
	if p, ok := profiles[name]; ok {
		return p
	}
	return profiles[ProfileDefault]
}

// keySpace namespaces alert content keys.
var keySpace = uuid.MustParse("6f1c2a7e-3b1d-4c55-9a0e-5d8b2f4e9c01")

// Alert is one transient message. Alerts with the same Key are the same
// alert as far as the tray is concerned.
type Alert struct {
	Key     string
	Profile Profile
	Title   string
	Message string
}

// ContentKey derives a stable key from what an alert shows, so identical
// content maps to the same key however often it arrives.
func ContentKey(profile, title, message string) string {
	return uuid.NewSHA1(keySpace, []byte(profile+"\x00"+title+"\x00"+message)).String()
}

// FromRecord maps a received notification to its alert.
func FromRecord(n model.Notification) Alert {
	p := ProfileFor(string(n.Kind))
	title := n.Title
	if title == "" {
		title = "New notification"
	}
	return Alert{
		Key:     ContentKey(p.Name, title, n.Message),
		Profile: p,
		Title:   title,
		Message: n.Message,
	}
}

// New builds an alert with the named profile.
func New(profile, title, message string) Alert {
	p := ProfileFor(profile)
	return Alert{
		Key:     ContentKey(p.Name, title, message),
		Profile: p,
		Title:   title,
		Message: message,
	}
}

// View renders the alert as a bordered box of the given width.
func (a Alert) View(width int) string {
	style := lipgloss.NewStyle().
		Foreground(a.Profile.Foreground).
		Background(a.Profile.Background).
		Border(lipgloss.ThickBorder(), false, false, false, true).
		BorderForeground(a.Profile.Border).
		Padding(0, 1)
	if width > 2 {
		style = style.Width(width - 2)
	}

	title := lipgloss.NewStyle().Bold(true).Render(a.Profile.Glyph + " " + a.Title)
	if a.Message == "" {
		return style.Render(title)
	}
	return style.Render(lipgloss.JoinVertical(lipgloss.Left, title, a.Message))
}
