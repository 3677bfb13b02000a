package auth

import (
	"context"
	"net/url"
)

// Session keys owned by this package.
const (
	// SessionKeyIdentity holds the stored identity token.
	SessionKeyIdentity = "__identity__"
	// SessionKeyMasquerade holds the serialized masquerade frame stack.
	SessionKeyMasquerade = "__masquerade__"
)

// Scope bundles the request-scoped collaborators every handler needs:
// session store, dispatcher, repositories, and the current user. One scope
// is built per inbound request and passed explicitly; it replaces any
// global configuration lookup.
type Scope struct {
	Session    SessionStore
	Dispatcher Dispatcher
	Repo       RepositoryManager

	user       *User
	requestURL string
	redirect   string
	warnings   []string
}

// NewScope creates a request scope around the given collaborators.
func NewScope(session SessionStore, dispatcher Dispatcher, repo RepositoryManager) *Scope {
	return &Scope{
		Session:    session,
		Dispatcher: dispatcher,
		Repo:       repo,
	}
}

// User returns the current authenticated user, nil when anonymous.
func (s *Scope) User() *User {
	return s.user
}

// SetUser attaches the current user for the remainder of the request.
func (s *Scope) SetUser(user *User) {
	s.user = user
}

// ClearUser resets the request to anonymous.
func (s *Scope) ClearUser() {
	s.user = nil
}

// Identity returns the stored identity token, if any.
func (s *Scope) Identity() (string, bool) {
	return s.Session.Get(SessionKeyIdentity)
}

// WriteIdentity overwrites the stored identity token. At most one token
// lives in the session slot.
func (s *Scope) WriteIdentity(token string) {
	s.Session.Set(SessionKeyIdentity, token)
}

// ClearIdentity removes the stored identity token.
func (s *Scope) ClearIdentity() {
	s.Session.Remove(SessionKeyIdentity)
}

// RequestURL returns the URL of the request this scope belongs to.
func (s *Scope) RequestURL() string {
	return s.requestURL
}

// SetRequestURL records the URL of the inbound request.
func (s *Scope) SetRequestURL(u string) {
	s.requestURL = u
}

// Redirect returns the pending redirect target, empty when none is set.
// A set redirect is the request-level cancellation signal: the transport
// layer stops further processing and issues it.
func (s *Scope) Redirect() string {
	return s.redirect
}

// SetRedirect records a redirect target for the transport layer.
func (s *Scope) SetRedirect(target string) {
	s.redirect = target
}

// HasRedirect reports whether a redirect is pending.
func (s *Scope) HasRedirect() bool {
	return s.redirect != ""
}

// AddWarning queues a user-facing warning banner for the transport layer.
func (s *Scope) AddWarning(msg string) {
	s.warnings = append(s.warnings, msg)
}

// Warnings returns the queued warning banners.
func (s *Scope) Warnings() []string {
	return s.warnings
}

// StripQueryParam removes one query parameter from a URL, preserving the
// rest. Used to build masquerade return URLs without the trigger parameter.
func StripQueryParam(rawURL, param string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Del(param)
	u.RawQuery = q.Encode()
	return u.String()
}

var scopeCtxKey = &contextKey{"scope"}
var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithScope sets the request Scope in the given context
func WithScope(ctx context.Context, scope *Scope) context.Context {
	return context.WithValue(ctx, scopeCtxKey, scope)
}

// ScopeFromContext finds the request scope from the context.
func ScopeFromContext(ctx context.Context) (*Scope, bool) {
	raw, ok := ctx.Value(scopeCtxKey).(*Scope)
	return raw, ok
}

// WithUser sets the User in the given context
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, userCtxKey, user)
}

// UserFromContext finds the user from the context.
func UserFromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}
