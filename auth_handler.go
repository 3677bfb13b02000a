package auth

import (
	"context"
	"fmt"
	"time"
)

// Handler priorities on the logout event. The masquerade unwind must run
// before the session is destroyed.
const (
	priorityLogoutMasquerade = 10
	priorityLogoutDefault    = 0
)

// Handler priorities on the login-success event. Resolving the identity
// happens before the last-login bookkeeping.
const (
	priorityLoginResolve  = 5
	priorityLoginBookkeep = 0
)

// AuthHandler owns the authentication lifecycle: it subscribes to the auth
// events and carries a request from submitted credentials to a stored
// session identity, and back out again on logout.
type AuthHandler struct {
	adapters []AuthAdapter
	cfg      Config
	mailer   Mailer
	masq     *MasqueradeHandler
	tokens   *TokenService
	logger   Logger
}

// NewAuthHandler builds a handler. Adapters are tried in the order given.
func NewAuthHandler(cfg Config, opts ...func(*AuthHandler)) *AuthHandler {
	h := &AuthHandler{
		cfg:    cfg,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// WithAdapters appends authentication adapters.
func WithAdapters(adapters ...AuthAdapter) func(*AuthHandler) {
	return func(h *AuthHandler) {
		h.adapters = append(h.adapters, adapters...)
	}
}

// WithMailer sets the outbound mailer used by register and recover.
func WithMailer(mailer Mailer) func(*AuthHandler) {
	return func(h *AuthHandler) {
		h.mailer = mailer
	}
}

// WithMasquerade couples the handler to the masquerade stack.
func WithMasquerade(masq *MasqueradeHandler) func(*AuthHandler) {
	return func(h *AuthHandler) {
		h.masq = masq
	}
}

// WithTokenService sets the service used to mint recovery links.
func WithTokenService(tokens *TokenService) func(*AuthHandler) {
	return func(h *AuthHandler) {
		h.tokens = tokens
	}
}

// WithAuthLogger overrides the default stdout logger.
func WithAuthLogger(logger Logger) func(*AuthHandler) {
	return func(h *AuthHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// Subscribe registers every lifecycle handler on the dispatcher. Priorities
// encode ordering constraints; everything else runs at the default.
func (h *AuthHandler) Subscribe(d Dispatcher) {
	d.Subscribe(EventLogin, h.OnLogin, 0)

	d.Subscribe(EventLoginSuccess, h.OnLoginSuccess, priorityLoginResolve)
	d.Subscribe(EventLoginSuccess, h.UpdateLastLogin, priorityLoginBookkeep)

	if h.masq != nil {
		d.Subscribe(EventLogout, h.masq.OnLogout, priorityLogoutMasquerade)
	}
	d.Subscribe(EventLogout, h.OnLogout, priorityLogoutDefault)

	d.Subscribe(EventRegister, h.OnRegister, 0)
	d.Subscribe(EventRegisterConfirm, h.OnRegisterConfirm, 0)
	d.Subscribe(EventRecover, h.OnRecover, 0)
}

// OnLogin runs the submitted credentials through the adapters. The first
// valid result wins and is recorded on the event; when every adapter
// declines the whole attempt fails with a generic credentials error.
func (h *AuthHandler) OnLogin(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil {
		return nil
	}

	// a fresh login never inherits delegation frames
	if h.masq != nil {
		h.masq.Clear(evt.Scope)
	}

	for _, adapter := range h.adapters {
		if evt.Adapter != "" && adapter.Kind() != evt.Adapter {
			continue
		}

		result, err := adapter.Authenticate(ctx, evt.Credentials)
		if err != nil {
			if IsAuthenticationError(err) {
				h.logger.Debug("adapter %s declined: %v", adapter.Kind(), err)
				continue
			}
			return err
		}

		if result != nil && result.Valid {
			evt.Result = result
			evt.Adapter = adapter.Kind()
			return nil
		}
	}

	return ErrInvalidCredentials
}

// OnLoginSuccess resolves the winning identity token to a user, attaches it
// to the scope, and persists the token in the session. A token that no
// longer resolves, or resolves to an inactive account, fails the login.
func (h *AuthHandler) OnLoginSuccess(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil || !evt.Valid() {
		return nil
	}

	user, err := evt.Scope.Repo.Users().FindByIdentity(ctx, evt.Result.Identity)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrIdentityNotFound
	}
	if !user.IsActive() {
		return ErrUserInactive
	}

	evt.User = user
	evt.Scope.SetUser(user)
	evt.Scope.WriteIdentity(evt.Result.Identity)

	if evt.Redirect == "" {
		evt.Redirect = h.cfg.GetUserHomeURL(user.Role)
	}

	return nil
}

// UpdateLastLogin stamps the login timestamp. Masqueraded logins are the
// delegator acting, not the target signing in, so they are skipped.
func (h *AuthHandler) UpdateLastLogin(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil || evt.User == nil {
		return nil
	}

	if h.masq != nil && h.masq.IsMasquerading(evt.Scope) {
		return nil
	}

	return evt.Scope.Repo.Users().SetLastLogin(ctx, evt.User, time.Now())
}

// OnLogout ends the session. It only runs when the masquerade handler let
// the event through, meaning no frames were left to unwind.
func (h *AuthHandler) OnLogout(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil {
		return nil
	}

	if evt.Redirect == "" {
		evt.Redirect = h.cfg.GetSiteURL()
	}

	evt.Scope.ClearIdentity()
	evt.Scope.ClearUser()

	if err := evt.Scope.Session.Destroy(); err != nil {
		h.logger.Warn("failed to destroy session on logout: %v", err)
	}

	return nil
}

// OnRegister sends the activation email for a newly created account.
func (h *AuthHandler) OnRegister(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.User == nil {
		return nil
	}

	if h.mailer == nil {
		h.logger.Warn("no mailer configured, skipping activation email for %s", evt.User.Username)
		return nil
	}

	msg := NewMessage(evt.User.Email, "Activate your account", registerMailBody)
	msg.Set("name", evt.User.Name)
	msg.Set("activate-url", fmt.Sprintf("%s?h=%s", h.cfg.GetRegisterURL(), evt.User.Hash))

	return h.mailer.Send(ctx, msg)
}

// OnRegisterConfirm activates the account named by the event and sends the
// welcome email.
func (h *AuthHandler) OnRegisterConfirm(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil || evt.User == nil {
		return nil
	}

	if !evt.User.Active {
		evt.User.Active = true
		if _, err := evt.Scope.Repo.Users().Save(ctx, evt.User); err != nil {
			return err
		}
	}

	if h.mailer == nil {
		return nil
	}

	msg := NewMessage(evt.User.Email, "Welcome, your account is active", registerConfirmMailBody)
	msg.Set("name", evt.User.Name)
	msg.Set("login-url", h.cfg.GetLoginURL())

	return h.mailer.Send(ctx, msg)
}

// OnRecover mails a one-shot login link. The link signs the holder straight
// in so they can set a new password; nothing secret is stored or sent in
// clear text.
func (h *AuthHandler) OnRecover(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.User == nil {
		return nil
	}

	if h.tokens == nil || h.mailer == nil {
		h.logger.Warn("recover flow not fully configured, skipping email for %s", evt.User.Username)
		return nil
	}

	token, err := h.tokens.Mint(evt.User.Username, TokenPurposeLogin)
	if err != nil {
		return err
	}

	msg := NewMessage(evt.User.Email, "Recover your password", recoverMailBody)
	msg.Set("name", evt.User.Name)
	msg.Set("recover-url", fmt.Sprintf("%s?t=%s", h.cfg.GetRecoverURL(), token))

	return h.mailer.Send(ctx, msg)
}

// Login runs the full login lifecycle for the given credentials. On success
// the scope carries the authenticated user and a pending redirect.
func (h *AuthHandler) Login(ctx context.Context, scope *Scope, creds Credentials) error {
	evt := NewAuthEvent(scope)
	evt.Credentials = creds

	if err := scope.Dispatcher.Dispatch(ctx, EventLogin, evt); err != nil {
		return err
	}

	if !evt.Valid() {
		return ErrInvalidCredentials
	}

	if err := scope.Dispatcher.Dispatch(ctx, EventLoginSuccess, evt); err != nil {
		return err
	}

	scope.SetRedirect(evt.Redirect)

	return nil
}

// Logout runs the logout lifecycle. While masquerading this pops one frame
// instead of ending the session.
func (h *AuthHandler) Logout(ctx context.Context, scope *Scope) error {
	evt := NewAuthEvent(scope)

	if err := scope.Dispatcher.Dispatch(ctx, EventLogout, evt); err != nil {
		return err
	}

	if evt.Redirect != "" {
		scope.SetRedirect(evt.Redirect)
	}

	return nil
}

// Recover looks up the account for an email address and dispatches the
// recover event. Unknown addresses are a silent success so the endpoint
// does not leak which emails exist.
func (h *AuthHandler) Recover(ctx context.Context, scope *Scope, email string) error {
	user, err := scope.Repo.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil || !user.IsActive() {
		h.logger.Debug("recover requested for unknown or inactive address")
		return nil
	}

	evt := NewAuthEvent(scope)
	evt.User = user

	return scope.Dispatcher.Dispatch(ctx, EventRecover, evt)
}

const registerMailBody = `Hi {name},

Thanks for creating an account. Click the link below to activate it:

{activate-url}
`

const registerConfirmMailBody = `Hi {name},

Your account is now active. You can sign in here:

{login-url}
`

const recoverMailBody = `Hi {name},

A password recovery was requested for your account. The link below will
sign you in once so you can set a new password. It expires shortly:

{recover-url}

If you did not request this you can ignore this email.
`
