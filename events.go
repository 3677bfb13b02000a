package auth

// Authentication event names, dispatched in the order the login lifecycle
// progresses through them.
const (
	EventLogin           = "auth.login"
	EventLoginSuccess    = "auth.login.success"
	EventLogout          = "auth.logout"
	EventRegister        = "auth.register"
	EventRegisterConfirm = "auth.register.confirm"
	EventRecover         = "auth.recover"
)

// Status workflow event names.
const (
	// EventStatusChange is published for every genuine transition.
	EventStatusChange = "status.change"
	// EventStatusSendMessages flushes messages queued by earlier handlers.
	EventStatusSendMessages = "status.send.messages"
)

// AuthEvent is the payload shared by all authentication events. Each
// dispatch builds a fresh, fully populated event; payloads are never cloned
// mid-flight.
type AuthEvent struct {
	Event

	Scope *Scope

	// Credentials submitted with a login attempt.
	Credentials Credentials

	// Adapter optionally pre-selects an adapter kind; after a successful
	// attempt it names the adapter that produced Result.
	Adapter AdapterKind

	// Result is the outcome of the winning adapter, nil until one succeeds.
	Result *Result

	// Redirect is the post-event redirect target.
	Redirect string

	// User is the subject of register/recover notifications.
	User *User
}

// NewAuthEvent builds an auth event bound to the request scope.
func NewAuthEvent(scope *Scope) *AuthEvent {
	return &AuthEvent{Scope: scope}
}

// Valid reports whether the event carries a valid authentication result.
func (e *AuthEvent) Valid() bool {
	return e.Result != nil && e.Result.Valid
}

// StatusEvent is the payload shared, in order, by the generic
// status-change event, the entry's named event, and the send-messages
// event. All three dispatches see the same entry so handlers can observe
// each other's side effects.
type StatusEvent struct {
	Event

	Scope *Scope
	Entry *StatusEntry

	// Queue collects messages composed by status-change handlers; the
	// send-messages handler drains it.
	Queue []*Message
}

// NewStatusEvent builds a status event for the given entry.
func NewStatusEvent(scope *Scope, entry *StatusEntry) *StatusEvent {
	return &StatusEvent{Scope: scope, Entry: entry}
}

// QueueMessage appends a composed message for the flush handler.
func (e *StatusEvent) QueueMessage(msg *Message) {
	if msg != nil {
		e.Queue = append(e.Queue, msg)
	}
}
