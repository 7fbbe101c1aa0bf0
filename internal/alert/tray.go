package alert

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// Defaults used when the tray is built with zero values.
const (
	DefaultTTL       = 2500 * time.Millisecond
	DefaultMaxAlerts = 3
)

// expireMsg dismisses the alert with key if it is still the generation
// that scheduled it.
type expireMsg struct {
	key string
	gen int
}

type entry struct {
	alert Alert
	gen   int
}

// Tray shows the visible alerts, newest last.
type Tray struct {
	entries []entry
	ttl     time.Duration
	max     int
	gen     int
	width   int
}

// NewTray creates an empty tray.
func NewTray(ttl time.Duration, maxAlerts int) Tray {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxAlerts <= 0 {
		maxAlerts = DefaultMaxAlerts
	}
	return Tray{ttl: ttl, max: maxAlerts, width: 48}
}

// Push shows a. An alert with the same key that is still visible is
// replaced and its timer re-armed, so duplicates never stack. Beyond the
// maximum the oldest alert is dropped.
func (t Tray) Push(a Alert) (Tray, tea.Cmd) {
	t.gen++
	gen := t.gen

	kept := make([]entry, 0, len(t.entries)+1)
	for _, e := range t.entries {
		if e.alert.Key != a.Key {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry{alert: a, gen: gen})
	if len(kept) > t.max {
		kept = kept[len(kept)-t.max:]
	}
	t.entries = kept

	key := a.Key
	return t, tea.Tick(t.ttl, func(time.Time) tea.Msg {
		return expireMsg{key: key, gen: gen}
	})
}

// Update handles expiry ticks.
func (t Tray) Update(msg tea.Msg) (Tray, tea.Cmd) {
	if msg, ok := msg.(expireMsg); ok {
		kept := t.entries[:0:0]
		for _, e := range t.entries {
			if e.alert.Key == msg.key && e.gen == msg.gen {
				continue
			}
			kept = append(kept, e)
		}
		t.entries = kept
	}
	return t, nil
}

// Visible returns the alerts on screen, oldest first.
func (t Tray) Visible() []Alert {
	out := make([]Alert, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.alert
	}
	return out
}

// Len returns the number of visible alerts.
func (t Tray) Len() int {
	return len(t.entries)
}

// SetWidth sets the width of each rendered alert.
func (t *Tray) SetWidth(width int) {
	t.width = width
}

// View renders the visible alerts stacked, newest at the bottom.
func (t Tray) View() string {
	if len(t.entries) == 0 {
		return ""
	}
	views := make([]string, len(t.entries))
	for i, e := range t.entries {
		views[i] = e.alert.View(t.width)
	}
	return lipgloss.JoinVertical(lipgloss.Right, views...)
}
