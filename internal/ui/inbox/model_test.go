package inbox

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notification-sync/internal/keys"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
	"github.com/nhle/notification-sync/internal/ui"
)

func loaded(records ...model.Notification) *store.Store {
	s := store.New()
	s.Load(records)
	return s
}

func TestView_LoadingUntilBootstrap(t *testing.T) {
	m := New(store.New(), keys.DefaultKeyMap(), 100, 30)

	assert.Contains(t, m.View(), "Loading notifications")
}

func TestView_EmptyAfterLoad(t *testing.T) {
	m := New(loaded(), keys.DefaultKeyMap(), 100, 30)
	m.Refresh()

	assert.Contains(t, m.View(), "No notifications yet.")
}

func TestRefresh_ReflectsStore(t *testing.T) {
	s := loaded(
		model.Notification{ID: "a", Title: "Alpha"},
		model.Notification{ID: "b", Title: "Beta", IsRead: true},
	)
	m := New(s, keys.DefaultKeyMap(), 100, 30)
	m.Refresh()

	require.Len(t, m.list.Items(), 2)
	out := m.View()
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "Beta")

	_, _ = s.Ingest(model.Notification{ID: "c", Title: "Gamma"})
	m.Refresh()
	assert.Len(t, m.list.Items(), 3)
	assert.Equal(t, "c", m.list.Items()[0].(Item).Notification.ID)
}

func TestShow_MovesCursorAndRendersDetail(t *testing.T) {
	s := loaded(
		model.Notification{ID: "a", Title: "Alpha"},
		model.Notification{ID: "b", Title: "Beta", Message: "details here",
			Meta: model.Meta{model.MetaProjectID: "p-7"}},
	)
	m := New(s, keys.DefaultKeyMap(), 120, 30)
	m.Refresh()

	assert.False(t, m.Show("missing"))
	require.True(t, m.Show("b"))

	assert.Equal(t, "b", m.ShownID())
	assert.Equal(t, "b", m.currentID())
	out := m.View()
	assert.Contains(t, out, "details here")
	assert.Contains(t, out, "p-7")
}

func TestUpdate_EnterEmitsSelect(t *testing.T) {
	m := New(loaded(model.Notification{ID: "a", Title: "Alpha"}), keys.DefaultKeyMap(), 100, 30)
	m.Refresh()

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})

	require.NotNil(t, cmd)
	assert.Equal(t, ui.SelectMsg{ID: "a"}, cmd())
	assert.Equal(t, "a", m.ShownID())
}

func TestUpdate_ActionKeys(t *testing.T) {
	m := New(loaded(model.Notification{ID: "a"}), keys.DefaultKeyMap(), 100, 30)
	m.Refresh()

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}})
	assert.Equal(t, ui.MarkAllReadMsg{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'s'}})
	assert.Equal(t, ui.OpenSendFormMsg{}, cmd())

	_, cmd = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.Equal(t, ui.BackMsg{}, cmd())
}
