package auth

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SessionStore is a durable per-client key-value store. Values live for the
// lifetime of one client session; Destroy wipes the whole session.
type SessionStore interface {
	Get(key string) (string, bool)
	Set(key, value string)
	Has(key string) bool
	Remove(key string)
	Destroy() error
}

// EventPayload is implemented by every payload handed to a Dispatcher.
// Embedding Event gives a payload stop-propagation support.
type EventPayload interface {
	PropagationStopped() bool
}

// Handler consumes a dispatched event. A returned error aborts the dispatch
// and propagates to the publisher.
type Handler func(ctx context.Context, event EventPayload) error

// Dispatcher is a synchronous in-process publish/subscribe facility.
// Handlers run on the publishing goroutine, highest priority first; ties run
// in subscription order.
type Dispatcher interface {
	Subscribe(name string, handler Handler, priority int)
	Dispatch(ctx context.Context, name string, event EventPayload) error
}

// Mailer delivers outbound messages. Transport is up to the implementation.
type Mailer interface {
	Send(ctx context.Context, msg *Message) error
}

// Config holds the URL and role options the handlers need.
type Config interface {
	GetLoginURL() string
	GetRegisterURL() string
	GetRecoverURL() string
	GetSiteURL() string
	GetUserHomeURL(role UserRole) string
	GetRoleOrder() []UserRole
	GetSigningKey() string
	GetMasqueradeParam() string
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
