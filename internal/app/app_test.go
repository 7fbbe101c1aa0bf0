package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/store"
	appsync "github.com/nhle/notification-sync/internal/sync"
	"github.com/nhle/notification-sync/internal/ui"
	"github.com/nhle/notification-sync/internal/ui/command"
	"github.com/nhle/notification-sync/internal/ui/config"
	"github.com/nhle/notification-sync/internal/ui/sendform"
)

type fakeSession struct {
	mu       sync.Mutex
	store    *store.Store
	selected []string
	markAll  int
	sent     []gateway.SendRequest
	started  int
	refresh  int
	closed   bool
}

func newFakeSession(records ...model.Notification) *fakeSession {
	s := store.New()
	if records != nil {
		s.Load(records)
	}
	return &fakeSession{store: s}
}

func (f *fakeSession) Store() store.Reader   { return f.store }
func (f *fakeSession) Status() channel.State { return channel.Registered }

func (f *fakeSession) Start(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
	return nil
}

func (f *fakeSession) Refresh(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refresh++
	return nil
}

func (f *fakeSession) Select(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selected = append(f.selected, id)
}

func (f *fakeSession) MarkAllRead() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markAll++
}

func (f *fakeSession) Send(req gateway.SendRequest) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSession) WaitForNext() tea.Cmd {
	return func() tea.Msg { return nil }
}

func newTestModel(t *testing.T, s *fakeSession, selectID string) Model {
	t.Helper()
	m := New(Options{Session: s, Config: *model.DefaultAppConfig(), SelectID: selectID})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestView_LoadingBeforeWindowSize(t *testing.T) {
	m := New(Options{Session: newFakeSession()})
	assert.Equal(t, "Loading...", m.View())
}

func TestInit_SelectsDeepLinkBeforeStart(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(t, s, "deep")

	cmd := m.Init()
	require.NotNil(t, cmd)

	batch, ok := cmd().(tea.BatchMsg)
	require.True(t, ok)
	for _, c := range batch {
		if c == nil {
			continue
		}
		if msg, ok := c().(startedMsg); ok {
			assert.NoError(t, msg.err)
		}
	}

	assert.Equal(t, []string{"deep"}, s.selected)
	assert.Equal(t, 1, s.started)
}

func TestSelectedMsg_ShowsRecordAndClearsFocus(t *testing.T) {
	s := newFakeSession(
		model.Notification{ID: "a", Title: "Alpha"},
		model.Notification{ID: "b", Title: "Beta", Message: "beta body"},
	)
	m := newTestModel(t, s, "b")

	m, _ = update(t, m, appsync.SelectedMsg{ID: "b"})

	assert.Equal(t, "b", m.inbox.ShownID())
	assert.Empty(t, m.focusID)
	assert.Contains(t, m.View(), "beta body")
}

func TestReceivedMsg_PushesAlert(t *testing.T) {
	m := newTestModel(t, newFakeSession(), "")

	m, cmd := update(t, m, appsync.ReceivedMsg{Record: model.Notification{ID: "x", Title: "Deploy done", Kind: model.KindSuccess}})

	assert.NotNil(t, cmd)
	require.Equal(t, 1, m.tray.Len())
	assert.Equal(t, "Deploy done", m.tray.Visible()[0].Title)
}

func TestNoticeMsg_FailureAndSuccess(t *testing.T) {
	m := newTestModel(t, newFakeSession(), "")

	m, _ = update(t, m, appsync.NoticeMsg{Op: "mark read", Err: errors.New("boom")})
	m, _ = update(t, m, appsync.NoticeMsg{Op: "send", Message: "Notification sent"})

	require.Equal(t, 2, m.tray.Len())
	titles := []string{m.tray.Visible()[0].Title, m.tray.Visible()[1].Title}
	assert.Contains(t, titles, "Could not mark read")
	assert.Contains(t, titles, "Notification sent")
}

func TestIntents_DriveSession(t *testing.T) {
	s := newFakeSession(model.Notification{ID: "a"})
	m := newTestModel(t, s, "")

	m, _ = update(t, m, ui.SelectMsg{ID: "a"})
	m, _ = update(t, m, ui.MarkAllReadMsg{})
	m, _ = update(t, m, ui.OpenInboxMsg{FocusID: "a"})

	assert.Equal(t, []string{"a", "a"}, s.selected)
	assert.Equal(t, 1, s.markAll)
	assert.Equal(t, "a", m.focusID)
	assert.Equal(t, ViewInbox, m.currentView)
}

func TestBellKey_TogglesPopover(t *testing.T) {
	s := newFakeSession(model.Notification{ID: "a", Title: "Alpha"})
	m := newTestModel(t, s, "")

	m, _ = update(t, m, runes("b"))
	assert.Equal(t, ViewBell, m.currentView)
	assert.Contains(t, m.View(), "1 unread")

	m, _ = update(t, m, ui.BackMsg{})
	assert.Equal(t, ViewInbox, m.currentView)
}

func TestSendForm_SubmitCallsSession(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(t, s, "")

	m, _ = update(t, m, ui.OpenSendFormMsg{})
	assert.Equal(t, ViewSend, m.currentView)

	req := gateway.SendRequest{Title: "t", Message: "m", Kind: model.KindInfo, Role: gateway.RoleDeveloper}
	m, _ = update(t, m, sendform.SubmitMsg{Request: req})

	assert.Equal(t, ViewInbox, m.currentView)
	assert.Equal(t, []gateway.SendRequest{req}, s.sent)
}

func TestCommand_ReadAllAndOpen(t *testing.T) {
	s := newFakeSession(model.Notification{ID: "a"})
	m := newTestModel(t, s, "")

	m, _ = update(t, m, runes(":"))
	assert.Equal(t, ViewCommand, m.currentView)

	m, _ = update(t, m, command.CommandMsg{Name: command.ReadAll})
	assert.Equal(t, 1, s.markAll)
	assert.Equal(t, ViewInbox, m.currentView)

	_, cmd := update(t, m, command.CommandMsg{Name: command.Open, Arg: "a"})
	require.NotNil(t, cmd)
}

func TestCommand_ErrorShowsAlert(t *testing.T) {
	m := newTestModel(t, newFakeSession(), "")

	m, _ = update(t, m, command.ErrorMsg{Err: errors.New("unknown command")})

	require.Equal(t, 1, m.tray.Len())
	assert.Equal(t, "unknown command", m.tray.Visible()[0].Message)
}

func TestQuit_ClosesSession(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(t, s, "")

	_, cmd := update(t, m, runes("q"))

	require.NotNil(t, cmd)
	assert.True(t, s.closed)
}

func TestLogout_ForgetsToken(t *testing.T) {
	s := newFakeSession()
	forgot := false
	m := New(Options{Session: s, Logout: func() error { forgot = true; return nil }})

	m, cmd := update(t, m, command.CommandMsg{Name: command.Logout})

	require.NotNil(t, cmd)
	assert.True(t, forgot)
	assert.True(t, s.closed)
	assert.True(t, m.LoggedOut())
}

func TestRefreshKey_RefreshesSession(t *testing.T) {
	s := newFakeSession()
	m := newTestModel(t, s, "")

	_, cmd := update(t, m, runes("r"))

	require.NotNil(t, cmd)
	cmd()
	assert.Equal(t, 1, s.refresh)
}

func TestCommand_SettingsSavesConfig(t *testing.T) {
	var saved *model.AppConfig
	s := newFakeSession()
	m := New(Options{
		Session:    s,
		Config:     *model.DefaultAppConfig(),
		SaveConfig: func(c *model.AppConfig) error { saved = c; return nil },
	})
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})

	m, cmd := update(t, m, command.CommandMsg{Name: command.Settings})
	require.NotNil(t, cmd)
	assert.Equal(t, ViewSettings, m.currentView)

	m, _ = update(t, m, config.SavedMsg{Config: *model.DefaultAppConfig()})
	require.Equal(t, 1, m.tray.Len())
	assert.Equal(t, "Settings saved", m.tray.Visible()[0].Title)

	m, _ = update(t, m, config.ConfigDoneMsg{})
	assert.Equal(t, ViewInbox, m.currentView)
	assert.Nil(t, saved, "nothing saved without completing the form")
}
