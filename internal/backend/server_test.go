package backend_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notification-sync/internal/backend"
	"github.com/nhle/notification-sync/internal/channel"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
	appsync "github.com/nhle/notification-sync/internal/sync"
	"github.com/nhle/notification-sync/tests/testutil"
)

var testSecret = []byte("test-secret")

type testEnv struct {
	db  *backend.DB
	srv *backend.Server
	ts  *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewTestDB(t)
	srv := backend.NewServer(db, testSecret, zerolog.Nop())
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(func() {
		srv.Hub().Close()
		ts.Close()
	})

	return &testEnv{db: db, srv: srv, ts: ts}
}

func (e *testEnv) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := backend.IssueToken(testSecret, userID, time.Hour, time.Now())
	require.NoError(t, err)
	return tok
}

func (e *testEnv) client(t *testing.T, userID string) *gateway.Client {
	return gateway.NewClient(e.ts.URL+"/api", e.token(t, userID), 5*time.Second, zerolog.Nop())
}

func (e *testEnv) pushOptions(t *testing.T, userID string) channel.Options {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+e.token(t, userID))
	return channel.Options{
		URL:            "ws" + strings.TrimPrefix(e.ts.URL, "http") + "/ws",
		Dialer:         channel.WebsocketDialer{Header: header},
		InitialBackoff: 10 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Logger:         zerolog.Nop(),
	}
}

func (e *testEnv) waitOnline(t *testing.T, userID string) {
	t.Helper()
	require.Eventually(t, func() bool { return e.srv.Hub().Online(userID) > 0 },
		3*time.Second, 10*time.Millisecond)
}

func sendToDevelopers(t *testing.T, c *gateway.Client, title string) {
	t.Helper()
	req := gateway.SendRequest{Title: title, Message: "body", Kind: model.KindSuccess}
	require.NoError(t, req.SetAudience(gateway.AudienceDevelopers, ""))
	ack, err := c.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Contains(t, ack.Message, "1 recipient")
}

func TestIssueAndVerifyToken(t *testing.T) {
	tok, err := backend.IssueToken(testSecret, "u-dev", time.Hour, time.Now())
	require.NoError(t, err)

	sub, err := backend.VerifyToken(testSecret, tok)
	require.NoError(t, err)
	assert.Equal(t, "u-dev", sub)

	_, err = backend.VerifyToken([]byte("other"), tok)
	assert.Error(t, err)

	expired, err := backend.IssueToken(testSecret, "u-dev", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	_, err = backend.VerifyToken(testSecret, expired)
	assert.Error(t, err)

	_, err = backend.IssueToken(testSecret, "", time.Hour, time.Now())
	assert.Error(t, err)
}

func TestRoutes_RequireToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/notifications/user/u-dev")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp, err = http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestList_OtherUserForbidden(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client(t, "u-pm").FetchAll(context.Background(), "u-dev")

	var rf *gateway.RequestFailed
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, http.StatusForbidden, rf.Status)
}

func TestGatewayRoundTrip(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	dev := env.client(t, "u-dev")

	records, err := dev.FetchAll(ctx, "u-dev")
	require.NoError(t, err)
	assert.Empty(t, records)

	sendToDevelopers(t, env.client(t, "u-admin"), "Build green")

	records, err = dev.FetchAll(ctx, "u-dev")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Build green", records[0].Title)
	assert.Equal(t, model.KindSuccess, records[0].Kind)
	require.NotNil(t, records[0].Sender)
	assert.Equal(t, "u-admin", records[0].Sender.ID)
	assert.False(t, records[0].IsRead)

	_, err = dev.MarkRead(ctx, records[0].ID, "u-dev")
	require.NoError(t, err)

	_, err = dev.MarkRead(ctx, "missing", "u-dev")
	var rf *gateway.RequestFailed
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, http.StatusNotFound, rf.Status)

	ack, err := dev.MarkAllRead(ctx, "u-dev")
	require.NoError(t, err)
	assert.Equal(t, "All notifications marked as read", ack.Message)

	records, err = dev.FetchAll(ctx, "u-dev")
	require.NoError(t, err)
	assert.True(t, records[0].IsRead)
}

func TestSend_Validation(t *testing.T) {
	ctx := context.Background()
	admin := newTestEnv(t).client(t, "u-admin")

	_, err := admin.Send(ctx, gateway.SendRequest{Message: "no title", Role: gateway.RoleDeveloper})
	var rf *gateway.RequestFailed
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, http.StatusBadRequest, rf.Status)

	_, err = admin.Send(ctx, gateway.SendRequest{Title: "t", Email: "nobody@example.com"})
	require.True(t, errors.As(err, &rf))
	assert.Equal(t, http.StatusNotFound, rf.Status)
}

func TestPush_DeliveredToRegisteredUser(t *testing.T) {
	env := newTestEnv(t)

	received := make(chan model.Notification, 4)
	m := channel.NewManager(env.pushOptions(t, "u-dev"), func(n model.Notification) { received <- n })
	m.Connect("u-dev")
	defer m.Disconnect()
	env.waitOnline(t, "u-dev")

	sendToDevelopers(t, env.client(t, "u-admin"), "Deploy started")

	select {
	case n := <-received:
		assert.Equal(t, "Deploy started", n.Title)
		assert.NotEmpty(t, n.ID)
	case <-time.After(3 * time.Second):
		t.Fatal("push not delivered")
	}
}

func TestPush_RegisterForAnotherUserRefused(t *testing.T) {
	env := newTestEnv(t)

	m := channel.NewManager(env.pushOptions(t, "u-dev"), func(model.Notification) {})
	m.Connect("u-pm")
	defer m.Disconnect()

	select {
	case <-m.Registered():
	case <-time.After(3 * time.Second):
		t.Fatal("register frame not sent")
	}
	assert.Never(t, func() bool { return env.srv.Hub().Online("u-pm") > 0 },
		200*time.Millisecond, 20*time.Millisecond)
}

// awaitMsg runs the session's next-event command with a deadline.
func awaitMsg(t *testing.T, s *appsync.Session) tea.Msg {
	t.Helper()
	out := make(chan tea.Msg, 1)
	go func() { out <- s.WaitForNext()() }()
	select {
	case msg := <-out:
		return msg
	case <-time.After(3 * time.Second):
		t.Fatal("no session event")
		return nil
	}
}

func TestSession_EndToEnd(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)

	s := appsync.New(appsync.Options{
		UserID:  "u-dev",
		Gateway: env.client(t, "u-dev"),
		Channel: env.pushOptions(t, "u-dev"),
		Logger:  zerolog.Nop(),
	})
	defer s.Close()

	require.NoError(t, s.Start(ctx))
	assert.True(t, s.Store().Loaded())
	env.waitOnline(t, "u-dev")

	sendToDevelopers(t, env.client(t, "u-admin"), "Review requested")

	var rec model.Notification
	for rec.ID == "" {
		if msg, ok := awaitMsg(t, s).(appsync.ReceivedMsg); ok {
			rec = msg.Record
		}
	}
	assert.Equal(t, "Review requested", rec.Title)
	assert.Equal(t, 1, s.Store().UnreadCount())

	s.Select(rec.ID)
	s.Wait()
	assert.Zero(t, s.Store().UnreadCount())

	records, err := env.db.ListForUser(ctx, "u-dev")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsRead, "mark read reached the server")
}
