package model

import (
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// Kind is the category of a notification. It selects the alert profile
// and the avatar fallback used by the views.
type Kind string

const (
	KindInfo    Kind = "info"
	KindSuccess Kind = "success"
	KindWarning Kind = "warning"
	KindChat    Kind = "chat"
	KindSystem  Kind = "system"
)

// Kinds lists every known notification kind in display order.
var Kinds = []Kind{KindInfo, KindSuccess, KindWarning, KindChat, KindSystem}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Sender identifies the user who originated a notification.
type Sender struct {
	ID           string `json:"_id"`
	FirstName    string `json:"firstName,omitempty"`
	LastName     string `json:"lastName,omitempty"`
	Role         string `json:"role,omitempty"`
	ProfileImage string `json:"profileImage,omitempty"`
}

// FullName joins first and last name, skipping empty parts.
func (s Sender) FullName() string {
	return strings.TrimSpace(s.FirstName + " " + s.LastName)
}

// Initials returns up to two upper-case initials for avatar rendering.
func (s Sender) Initials() string {
	var b strings.Builder
	for _, part := range []string{s.FirstName, s.LastName} {
		if r, _ := utf8.DecodeRuneInString(part); r != utf8.RuneError {
			b.WriteRune(unicode.ToUpper(r))
		}
	}
	if b.Len() == 0 {
		return "?"
	}
	return b.String()
}

// Meta is an opaque key/value payload attached to a notification. The sync
// layer never interprets it; views use it for deep links.
type Meta map[string]any

// String returns the value stored under key when it is a non-empty string.
func (m Meta) String(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	v, ok := m[key].(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// MetaProjectID is the meta key carrying a related project identifier.
const MetaProjectID = "projectId"

// Notification is a single notification record as delivered by the read
// model and the push channel. IsRead is the only field that changes after
// creation.
type Notification struct {
	// ID is the server-assigned identity key.
	ID string `json:"_id"`

	Title   string `json:"title"`
	Message string `json:"message"`

	// Kind selects presentation; serialized as "type" on the wire.
	Kind Kind `json:"type"`

	// Sender is nil for system-generated notifications.
	Sender *Sender `json:"sender,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	IsRead    bool      `json:"isRead"`
	Meta      Meta      `json:"meta,omitempty"`
}

// IsSystem reports whether the record should be presented as coming from
// the system rather than a person.
func (n Notification) IsSystem() bool {
	return n.Kind == KindSystem || n.Sender == nil
}

// SenderLabel is the human-readable origin line shown in detail views.
func (n Notification) SenderLabel() string {
	if n.IsSystem() {
		return "System"
	}
	name := n.Sender.FullName()
	if name == "" {
		name = n.Sender.ID
	}
	if n.Sender.Role == "" {
		return name
	}
	return fmt.Sprintf("%s (%s)", name, n.Sender.Role)
}

// Avatar returns the short glyph rendered in place of a profile image.
func (n Notification) Avatar() string {
	if n.IsSystem() {
		return "⚙"
	}
	return n.Sender.Initials()
}
