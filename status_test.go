package auth_test

import (
	"context"
	"testing"
	"time"

	auth "github.com/goliatone/go-session-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// document is a minimal tracked entity for the workflow tests.
type document struct {
	id      int64
	status  string
	notify  bool
	message string
	event   string
}

func (d *document) StatusRef() auth.ForeignRef {
	return auth.ForeignRef{Kind: "document", ID: d.id}
}

func (d *document) StatusName() string    { return d.status }
func (d *document) StatusNotify() bool    { return d.notify }
func (d *document) StatusMessage() string { return d.message }
func (d *document) StatusEvent() string   { return d.event }

func (d *document) StatusChanged(previous *auth.StatusEntry) bool {
	return previous == nil || previous.Name != d.status
}

// churnDoc claims a genuine change on every recording, whatever the name.
type churnDoc struct{ document }

func (d *churnDoc) StatusChanged(*auth.StatusEntry) bool { return true }

// inertDoc never reports a genuine change.
type inertDoc struct{ document }

func (d *inertDoc) StatusChanged(*auth.StatusEntry) bool { return false }

type statusSetup struct {
	scope    *auth.Scope
	repo     *fakeRepo
	bus      *auth.EventBus
	masq     *auth.MasqueradeHandler
	workflow *auth.StatusWorkflow
	mailer   *capturingMailer
	seen     []string
}

func newStatusSetup(t *testing.T) *statusSetup {
	t.Helper()

	repo := newFakeRepo()
	cfg := auth.DefaultConfig("test-signing-key")
	bus := auth.NewEventBus()
	scope := auth.NewScope(auth.NewMemorySessionStore(), bus, repo)

	mailer := &capturingMailer{}
	masq := auth.NewMasqueradeHandler(cfg, auth.WithMasqueradeLogger(testLogger{}))

	workflow := auth.NewStatusWorkflow(
		auth.WithStatusMasquerade(masq),
		auth.WithStatusMailer(mailer),
		auth.WithStatusLogger(testLogger{}),
	)
	workflow.Subscribe(bus)

	s := &statusSetup{
		scope:    scope,
		repo:     repo,
		bus:      bus,
		masq:     masq,
		workflow: workflow,
		mailer:   mailer,
	}

	watch := func(name string) {
		bus.Subscribe(name, func(_ context.Context, _ auth.EventPayload) error {
			s.seen = append(s.seen, name)
			return nil
		}, 0)
	}
	watch(auth.EventStatusChange)
	watch("document.approved")
	watch("document.pending")
	watch(auth.EventStatusSendMessages)

	return s
}

func TestRecordFirstTransitionPublishesInOrder(t *testing.T) {
	s := newStatusSetup(t)

	doc := &document{id: 7, status: auth.StatusPending, notify: true, event: "document.pending"}

	entry, err := s.workflow.Record(context.Background(), s.scope, doc)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.Equal(t, auth.StatusPending, entry.Name)
	assert.True(t, entry.Notify)
	assert.Equal(t, []string{
		auth.EventStatusChange,
		"document.pending",
		auth.EventStatusSendMessages,
	}, s.seen)
}

func TestRecordRepeatedNameIsNoop(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	doc := &document{id: 7, status: auth.StatusPending, notify: true, event: "document.pending"}

	first, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)
	require.NotNil(t, first)

	s.seen = nil

	// same name again: nothing persisted, zero publications
	second, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Empty(t, s.seen)
	assert.Len(t, s.repo.entries.entries, 1)
}

func TestRecordRepeatedNameSkipsBeforeChangePredicate(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	doc := &churnDoc{document{id: 7, status: auth.StatusPending, notify: true, event: "document.pending"}}

	first, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)
	require.NotNil(t, first)

	s.seen = nil

	// the name screens the repeat out even though the entity claims a change
	second, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Empty(t, s.seen)
	assert.Len(t, s.repo.entries.entries, 1)
}

func TestRecordNonGenuineTransitionPersistsSilently(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	doc := &inertDoc{document{id: 7, status: auth.StatusPending, notify: true}}

	// the name is new but the entity reports no genuine change: kept for the
	// audit trail with notify off, zero publications
	entry, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)
	require.NotNil(t, entry)

	assert.False(t, entry.Notify)
	assert.Empty(t, s.seen)
	assert.Len(t, s.repo.entries.entries, 1)
}

func TestRecordPendingThenApproved(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	doc := &document{id: 7, status: auth.StatusPending, notify: true, event: "document.pending"}
	_, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)

	s.seen = nil

	doc.status = auth.StatusApproved
	doc.event = "document.approved"

	entry, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)

	assert.Equal(t, auth.StatusApproved, entry.Name)
	assert.Equal(t, []string{
		auth.EventStatusChange,
		"document.approved",
		auth.EventStatusSendMessages,
	}, s.seen)

	previous, err := s.workflow.PreviousName(ctx, s.repo.entries, entry)
	require.NoError(t, err)
	assert.Equal(t, auth.StatusPending, previous)
}

func TestRecordStopPropagationConfinedToOnePublish(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	// a high priority handler halting the generic dispatch must not swallow
	// the named event or the message flush
	s.bus.Subscribe(auth.EventStatusChange, func(_ context.Context, payload auth.EventPayload) error {
		evt := payload.(*auth.StatusEvent)
		evt.QueueMessage(auth.NewMessage("watcher@example.com", "Status changed", "now {status}").
			Set("status", evt.Entry.Name))
		evt.StopPropagation()
		return nil
	}, 10)

	doc := &document{id: 7, status: auth.StatusPending, notify: true, event: "document.pending"}

	_, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"document.pending",
		auth.EventStatusSendMessages,
	}, s.seen)
	require.Len(t, s.mailer.sent, 1)
	assert.Equal(t, "now pending", s.mailer.sent[0].Render())
}

func TestRecordEmptyStatusNameSkipsEntirely(t *testing.T) {
	s := newStatusSetup(t)

	doc := &document{id: 7, status: ""}

	entry, err := s.workflow.Record(context.Background(), s.scope, doc)
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Empty(t, s.seen)
}

func TestRecordRejectsUntrackedSubject(t *testing.T) {
	s := newStatusSetup(t)

	_, err := s.workflow.Record(context.Background(), s.scope, struct{ Name string }{"plain"})
	require.Error(t, err)
	assert.ErrorIs(t, err, auth.ErrStatusCapabilityMissing)
}

func TestRecordAttributesActorAndDelegator(t *testing.T) {
	ctx := context.Background()
	s := newStatusSetup(t)

	admin := s.repo.users.add(activeUser(0, "root", auth.RoleAdmin))
	alice := s.repo.users.add(activeUser(0, "alice", auth.RoleUser))

	// wire the auth handler so Assume can resolve the identity
	handler := auth.NewAuthHandler(auth.DefaultConfig("test-signing-key"),
		auth.WithMasquerade(s.masq),
		auth.WithAuthLogger(testLogger{}),
	)
	handler.Subscribe(s.bus)

	s.scope.SetUser(admin)
	s.scope.WriteIdentity(admin.Username)
	s.scope.SetRequestURL("/admin/users")
	require.NoError(t, s.masq.Assume(ctx, s.scope, alice))

	doc := &document{id: 7, status: auth.StatusPending, notify: false}
	entry, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)

	assert.Equal(t, alice.ID, entry.UserID)
	assert.Equal(t, admin.ID, entry.MsqUserID)
	assert.True(t, entry.IsDelegated())
}

func TestSendQueuedMessagesFlushesOnlyWhenNotifying(t *testing.T) {
	s := newStatusSetup(t)
	ctx := context.Background()

	// compose one message per genuine transition
	s.bus.Subscribe(auth.EventStatusChange, func(_ context.Context, payload auth.EventPayload) error {
		evt := payload.(*auth.StatusEvent)
		msg := auth.NewMessage("watcher@example.com", "Status changed", "{name} is now {status}")
		msg.Set("name", "Document 7").Set("status", evt.Entry.Name)
		evt.QueueMessage(msg)
		return nil
	}, 5)

	doc := &document{id: 7, status: auth.StatusPending, notify: true}
	_, err := s.workflow.Record(ctx, s.scope, doc)
	require.NoError(t, err)

	require.Len(t, s.mailer.sent, 1)
	assert.Equal(t, "Document 7 is now pending", s.mailer.sent[0].Render())

	// notify off: the queue is never flushed
	doc2 := &document{id: 8, status: auth.StatusPending, notify: false}
	_, err = s.workflow.Record(ctx, s.scope, doc2)
	require.NoError(t, err)
	assert.Len(t, s.mailer.sent, 1)
}

func TestFindLastByUserType(t *testing.T) {
	ctx := context.Background()
	s := newStatusSetup(t)

	admin := s.repo.users.add(activeUser(0, "root", auth.RoleAdmin))
	alice := s.repo.users.add(activeUser(0, "alice", auth.RoleUser))

	ref := auth.ForeignRef{Kind: "document", ID: 7}
	base := time.Now().Add(-time.Hour)

	mk := func(userID int64, name string, offset time.Duration) *auth.StatusEntry {
		entry := (&auth.StatusEntry{
			UserID:    userID,
			Name:      name,
			CreatedAt: base.Add(offset),
		}).SetRef(ref)
		_, err := s.repo.entries.Create(ctx, entry)
		require.NoError(t, err)
		return entry
	}

	first := mk(alice.ID, auth.StatusPending, 0)
	adminEntry := mk(admin.ID, auth.StatusAmend, time.Minute)
	mk(alice.ID, auth.StatusPending, 2*time.Minute)
	last := mk(alice.ID, auth.StatusApproved, 3*time.Minute)

	found, err := s.workflow.FindLastByUserType(ctx, s.repo, last, auth.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, adminEntry.ID, found.ID)

	// the walk starts at the entry itself
	found, err = s.workflow.FindLastByUserType(ctx, s.repo, adminEntry, auth.RoleAdmin)
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, adminEntry.ID, found.ID)

	// no entry by that role type at or before this one
	found, err = s.workflow.FindLastByUserType(ctx, s.repo, first, auth.RoleAdmin)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestFindUsersByType(t *testing.T) {
	ctx := context.Background()
	s := newStatusSetup(t)

	admin := s.repo.users.add(activeUser(0, "root", auth.RoleAdmin))
	alice := s.repo.users.add(activeUser(0, "alice", auth.RoleUser))
	bob := s.repo.users.add(activeUser(0, "bob", auth.RoleUser))

	ref := auth.ForeignRef{Kind: "document", ID: 7}
	base := time.Now().Add(-time.Hour)

	for i, userID := range []int64{alice.ID, admin.ID, bob.ID, alice.ID} {
		entry := (&auth.StatusEntry{
			UserID:    userID,
			Name:      auth.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}).SetRef(ref)
		_, err := s.repo.entries.Create(ctx, entry)
		require.NoError(t, err)
	}

	users, err := s.workflow.FindUsersByType(ctx, s.repo, ref, auth.RoleUser)
	require.NoError(t, err)

	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, u.ID)
	}

	// newest first, no duplicates, admins excluded
	assert.Equal(t, []int64{alice.ID, bob.ID}, ids)
}

func TestStatusEntrySameTimestampTieBreak(t *testing.T) {
	ctx := context.Background()
	s := newStatusSetup(t)

	ref := auth.ForeignRef{Kind: "document", ID: 9}
	at := time.Now().Truncate(time.Second)

	first := (&auth.StatusEntry{Name: auth.StatusPending, CreatedAt: at}).SetRef(ref)
	second := (&auth.StatusEntry{Name: auth.StatusApproved, CreatedAt: at}).SetRef(ref)

	_, err := s.repo.entries.Create(ctx, first)
	require.NoError(t, err)
	_, err = s.repo.entries.Create(ctx, second)
	require.NoError(t, err)

	// higher id wins at equal timestamps
	previous, err := s.repo.entries.FindPrevious(ctx, second)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, first.ID, previous.ID)

	latest, err := s.repo.entries.FindLatestByRef(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}
