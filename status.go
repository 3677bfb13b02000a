package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
)

// Tracked is the capability a model opts into to have its state transitions
// recorded in the status log. The entity owns its transition semantics: it
// names the status, decides whether a change is genuine, and picks the
// domain event published alongside the generic one.
type Tracked interface {
	StatusRef() ForeignRef
	StatusName() string
	StatusNotify() bool
	StatusMessage() string
	StatusEvent() string
	StatusChanged(previous *StatusEntry) bool
}

// maxStatusWalk bounds the previous-entry chain walk so a pathological log
// cannot loop the request.
const maxStatusWalk = 500

// StatusWorkflow records state transitions for tracked entities and drives
// the notification events they trigger.
type StatusWorkflow struct {
	masq   *MasqueradeHandler
	mailer Mailer
	logger Logger
}

// NewStatusWorkflow builds a workflow engine.
func NewStatusWorkflow(opts ...func(*StatusWorkflow)) *StatusWorkflow {
	w := &StatusWorkflow{
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// WithStatusMasquerade lets the workflow attribute entries to the delegator
// when the actor is masquerading.
func WithStatusMasquerade(masq *MasqueradeHandler) func(*StatusWorkflow) {
	return func(w *StatusWorkflow) {
		w.masq = masq
	}
}

// WithStatusMailer sets the mailer used to flush queued notifications.
func WithStatusMailer(mailer Mailer) func(*StatusWorkflow) {
	return func(w *StatusWorkflow) {
		w.mailer = mailer
	}
}

// WithStatusLogger overrides the default stdout logger.
func WithStatusLogger(logger Logger) func(*StatusWorkflow) {
	return func(w *StatusWorkflow) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// Subscribe registers the queue flush handler on the dispatcher.
func (w *StatusWorkflow) Subscribe(d Dispatcher) {
	d.Subscribe(EventStatusSendMessages, w.SendQueuedMessages, 0)
}

// Record captures the subject's current status as a fresh immutable entry.
//
// An empty status name, or a name equal to the previous entry's, skips
// persistence entirely and returns nil. A genuine transition persists the
// entry and publishes, in order, the generic status-change event, the
// entry's named event when present, and the send-queued-messages event, all
// sharing one payload. A transition whose name differs but which the
// subject reports as not genuine is persisted for the audit trail with
// notify forced off, and nothing is published.
func (w *StatusWorkflow) Record(ctx context.Context, scope *Scope, subject any) (*StatusEntry, error) {
	tracked, ok := subject.(Tracked)
	if !ok {
		w.logger.Error("status: %T does not implement the status capability", subject)
		return nil, ErrStatusCapabilityMissing
	}

	name := tracked.StatusName()
	if name == "" {
		return nil, nil
	}

	ref := tracked.StatusRef()
	if ref.Zero() {
		return nil, errors.New("status subject has no foreign reference", errors.CategoryBadInput).
			WithTextCode("STATUS_REF_MISSING")
	}

	entry := &StatusEntry{
		Name:      name,
		Event:     tracked.StatusEvent(),
		Notify:    tracked.StatusNotify(),
		Message:   tracked.StatusMessage(),
		CreatedAt: time.Now(),
	}
	entry.SetRef(ref)

	if actor := scope.User(); actor != nil {
		entry.UserID = actor.ID
	}

	if w.masq != nil && w.masq.IsMasquerading(scope) {
		delegator, err := w.masq.Delegator(ctx, scope)
		if err != nil {
			return nil, err
		}
		if delegator != nil {
			entry.MsqUserID = delegator.ID
		}
	}

	previous, err := scope.Repo.StatusEntries().FindPrevious(ctx, entry)
	if err != nil {
		return nil, err
	}

	if previous != nil && previous.Name == name {
		w.logger.Debug("status: %s#%d already %q, skipping", ref.Kind, ref.ID, name)
		return nil, nil
	}

	changed := tracked.StatusChanged(previous)
	if !changed {
		entry.Notify = false
	}

	if _, err := scope.Repo.StatusEntries().Create(ctx, entry); err != nil {
		return nil, err
	}

	if !changed {
		w.logger.Debug("status: %s#%d moved to %q without a genuine change, nothing to publish", ref.Kind, ref.ID, name)
		return entry, nil
	}

	evt := NewStatusEvent(scope, entry)

	if err := scope.Dispatcher.Dispatch(ctx, EventStatusChange, evt); err != nil {
		return entry, err
	}

	if entry.Event != "" {
		if err := scope.Dispatcher.Dispatch(ctx, entry.Event, evt); err != nil {
			return entry, err
		}
	}

	if err := scope.Dispatcher.Dispatch(ctx, EventStatusSendMessages, evt); err != nil {
		return entry, err
	}

	return entry, nil
}

// SendQueuedMessages drains the messages composed by earlier status-change
// handlers. Entries with notify off flush nothing.
func (w *StatusWorkflow) SendQueuedMessages(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*StatusEvent)
	if !ok || evt.Entry == nil {
		return nil
	}

	if !evt.Entry.Notify || len(evt.Queue) == 0 {
		return nil
	}

	if w.mailer == nil {
		w.logger.Warn("status: %d queued messages dropped, no mailer configured", len(evt.Queue))
		return nil
	}

	for _, msg := range evt.Queue {
		if err := w.mailer.Send(ctx, msg); err != nil {
			return err
		}
	}

	return nil
}

// PreviousName returns the status name the entity held before this entry,
// empty when the entry is the first one.
func (w *StatusWorkflow) PreviousName(ctx context.Context, repo StatusEntries, entry *StatusEntry) (string, error) {
	previous, err := repo.FindPrevious(ctx, entry)
	if err != nil {
		return "", err
	}
	if previous == nil {
		return "", nil
	}
	return previous.Name, nil
}

// FindLastByUserType walks the previous-status chain, starting at entry
// itself, and returns the most recent entry recorded by a user holding
// role. The walk is iterative and bounded.
func (w *StatusWorkflow) FindLastByUserType(ctx context.Context, repo RepositoryManager, entry *StatusEntry, role UserRole) (*StatusEntry, error) {
	current := entry
	for i := 0; i < maxStatusWalk; i++ {
		if current.UserID != 0 {
			user, err := repo.Users().Find(ctx, current.UserID)
			if err != nil {
				return nil, err
			}
			if user != nil && user.Role == role {
				return current, nil
			}
		}

		previous, err := repo.StatusEntries().FindPrevious(ctx, current)
		if err != nil {
			return nil, err
		}
		if previous == nil {
			return nil, nil
		}

		current = previous
	}

	w.logger.Warn("status: chain walk for %s#%d hit the iteration bound", entry.FKey, entry.FID)

	return nil, nil
}

// FindUsersByType returns the unique users who recorded a status against
// ref, newest first, filtered by role.
func (w *StatusWorkflow) FindUsersByType(ctx context.Context, repo RepositoryManager, ref ForeignRef, role UserRole) ([]*User, error) {
	entries, err := repo.StatusEntries().FindByRef(ctx, ref)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	var users []*User

	for _, entry := range entries {
		if entry.UserID == 0 || seen[entry.UserID] {
			continue
		}
		seen[entry.UserID] = true

		user, err := repo.Users().Find(ctx, entry.UserID)
		if err != nil {
			return nil, err
		}
		if user != nil && user.Role == role {
			users = append(users, user)
		}
	}

	return users, nil
}
