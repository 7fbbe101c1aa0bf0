package store

import (
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/notification-sync/internal/model"
)

func rec(id string, read bool) model.Notification {
	return model.Notification{
		ID:        id,
		Title:     "title " + id,
		Message:   "message " + id,
		Kind:      model.KindInfo,
		CreatedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
		IsRead:    read,
	}
}

func ids(records []model.Notification) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// assertInvariants checks uniqueness and the derived unread count.
func assertInvariants(t *testing.T, s *Store) {
	t.Helper()
	records := s.Records()
	assert.False(t, HasDuplicateIDs(records), "duplicate ids in %v", ids(records))
	assert.Equal(t, CountUnread(records), s.UnreadCount())
	assert.Equal(t, len(records), s.Len())
}

func TestLoad_DedupesAndDropsMissingIDs(t *testing.T) {
	s := New()

	dropped := s.Load([]model.Notification{
		rec("A", false), rec("B", true), rec("A", true), rec("", false),
	})

	assert.Equal(t, 2, dropped)
	assert.Equal(t, []string{"A", "B"}, ids(s.Records()))
	// First occurrence wins.
	a, ok := s.Get("A")
	require.True(t, ok)
	assert.False(t, a.IsRead)
	assert.True(t, s.Loaded())
	assertInvariants(t, s)
}

func TestLoad_ReplacesWholesale(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", false)})
	_, _ = s.Ingest(rec("C", false))

	s.Load([]model.Notification{rec("D", true)})

	assert.Equal(t, []string{"D"}, ids(s.Records()))
	assert.Equal(t, 0, s.UnreadCount())
	assert.False(t, s.Has("C"))
}

func TestIngest_PrependsRegardlessOfCreatedAt(t *testing.T) {
	s := New()
	a := rec("A", false)
	b := rec("B", false)
	c := rec("C", false)
	c.CreatedAt = a.CreatedAt.Add(-48 * time.Hour)
	s.Load([]model.Notification{a, b})

	added, err := s.Ingest(c)

	require.NoError(t, err)
	assert.True(t, added)
	assert.Equal(t, []string{"C", "A", "B"}, ids(s.Records()))
	assertInvariants(t, s)
}

func TestIngest_IsIdempotent(t *testing.T) {
	once := New()
	_, _ = once.Ingest(rec("A", false))

	twice := New()
	_, _ = twice.Ingest(rec("A", false))
	added, err := twice.Ingest(rec("A", false))

	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, once.Records(), twice.Records())
	assert.Equal(t, once.UnreadCount(), twice.UnreadCount())
}

func TestIngest_RedeliveryAfterReconnect(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", false)})
	before := s.UnreadCount()

	added, err := s.Ingest(rec("A", false))

	require.NoError(t, err)
	assert.False(t, added)
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, before, s.UnreadCount())
}

func TestIngest_RedeliveryDoesNotResurrectUnread(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false)})
	s.MarkReadLocal("A")

	_, _ = s.Ingest(rec("A", false))

	assert.Equal(t, 0, s.UnreadCount())
}

func TestIngest_RejectsMissingID(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false)})

	added, err := s.Ingest(rec("", false))

	assert.ErrorIs(t, err, ErrMissingID)
	assert.False(t, added)
	assert.Equal(t, []string{"A"}, ids(s.Records()))
}

func TestMarkReadLocal(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", false)})

	assert.True(t, s.MarkReadLocal("A"))
	assert.Equal(t, 1, s.UnreadCount())

	// Second call and absent ids are no-ops.
	assert.False(t, s.MarkReadLocal("A"))
	assert.False(t, s.MarkReadLocal("missing"))
	assert.Equal(t, 1, s.UnreadCount())
	assertInvariants(t, s)
}

func TestMarkAllReadLocal(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", true), rec("C", false)})

	assert.Equal(t, 2, s.MarkAllReadLocal())
	assert.Equal(t, 0, s.UnreadCount())
	assert.Equal(t, 0, s.MarkAllReadLocal())
	for _, r := range s.Records() {
		assert.True(t, r.IsRead, r.ID)
	}
}

func TestScenario_BootstrapPushSelect(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", true)})
	assert.Equal(t, 1, s.UnreadCount())

	_, err := s.Ingest(rec("C", false))
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "A", "B"}, ids(s.Records()))
	assert.Equal(t, 2, s.UnreadCount())

	s.MarkReadLocal("A")
	assert.Equal(t, 1, s.UnreadCount())
}

func TestClear(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false)})

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Equal(t, 0, s.UnreadCount())
	assert.False(t, s.Loaded())
	added, err := s.Ingest(rec("A", false))
	require.NoError(t, err)
	assert.True(t, added)
}

func TestRecordsAreCopies(t *testing.T) {
	s := New()
	r := rec("A", false)
	r.Sender = &model.Sender{ID: "u1", FirstName: "Ann"}
	r.Meta = model.Meta{model.MetaProjectID: "p1"}
	s.Load([]model.Notification{r})

	out := s.Records()
	out[0].IsRead = true
	out[0].Sender.FirstName = "Mallory"
	out[0].Meta[model.MetaProjectID] = "p2"

	got, _ := s.Get("A")
	assert.False(t, got.IsRead)
	assert.Equal(t, "Ann", got.Sender.FirstName)
	assert.Equal(t, "p1", got.Meta[model.MetaProjectID])
}

func TestRecent(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", false), rec("B", false), rec("C", false)})

	assert.Equal(t, []string{"A", "B"}, ids(s.Recent(2)))
	assert.Len(t, s.Recent(10), 3)
}

func TestSubscribe_CoalescesSignals(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	defer cancel()

	s.Load([]model.Notification{rec("A", false)})
	_, _ = s.Ingest(rec("B", false))
	s.MarkReadLocal("A")

	select {
	case <-ch:
	default:
		t.Fatal("expected a change signal")
	}
	select {
	case <-ch:
		t.Fatal("signals should be coalesced")
	default:
	}
}

func TestSubscribe_NoSignalForNoOps(t *testing.T) {
	s := New()
	s.Load([]model.Notification{rec("A", true)})
	ch, cancel := s.Subscribe()
	defer cancel()

	s.MarkReadLocal("A")
	s.MarkAllReadLocal()
	_, _ = s.Ingest(rec("A", false))

	select {
	case <-ch:
		t.Fatal("no-op mutations must not signal")
	default:
	}
}

func TestSubscribe_Cancel(t *testing.T) {
	s := New()
	ch, cancel := s.Subscribe()
	cancel()
	cancel()

	_, _ = s.Ingest(rec("A", false))

	select {
	case <-ch:
		t.Fatal("cancelled subscriber received a signal")
	default:
	}
}

// TestInvariants_RandomOperations drives the store with random sequences of
// every mutation and checks uniqueness and the derived count after each step.
func TestInvariants_RandomOperations(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := New()

	randomRecord := func() model.Notification {
		id := ""
		if rng.Intn(20) != 0 {
			id = fmt.Sprintf("n%d", rng.Intn(15))
		}
		return rec(id, rng.Intn(2) == 0)
	}

	for step := 0; step < 2000; step++ {
		switch rng.Intn(5) {
		case 0:
			batch := make([]model.Notification, rng.Intn(8))
			for i := range batch {
				batch[i] = randomRecord()
			}
			s.Load(batch)
		case 1, 2:
			_, _ = s.Ingest(randomRecord())
		case 3:
			s.MarkReadLocal(fmt.Sprintf("n%d", rng.Intn(15)))
		case 4:
			if rng.Intn(10) == 0 {
				s.MarkAllReadLocal()
			}
		}
		assertInvariants(t, s)
	}
}
