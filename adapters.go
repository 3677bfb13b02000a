package auth

import (
	"context"
	"time"
)

// AdapterKind is the closed set of authentication adapter kinds.
type AdapterKind string

const (
	// AdapterDBTable authenticates username/password against the users table.
	AdapterDBTable AdapterKind = "dbtable"
	// AdapterTrapdoor authenticates a signed one-shot token.
	AdapterTrapdoor AdapterKind = "trapdoor"
)

// Credentials are the submitted login inputs. Password-style adapters read
// Identifier/Password; token-style adapters read Token.
type Credentials struct {
	Identifier string
	Password   string
	Token      string
}

// Result is the outcome of one adapter attempt. Identity is the opaque
// token stored in the session and later resolved back to a user.
type Result struct {
	Valid    bool
	Identity string
}

// ValidResult builds a successful result for the given identity token.
func ValidResult(identity string) *Result {
	return &Result{Valid: true, Identity: identity}
}

// AuthAdapter validates submitted credentials. Adapters are tried in
// configured order; the first valid result wins. An invalid attempt returns
// a nil or non-valid result — adapter errors are logged by the caller and
// never surfaced individually.
type AuthAdapter interface {
	Kind() AdapterKind
	Authenticate(ctx context.Context, creds Credentials) (*Result, error)
}

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = 24 * time.Hour

// DBTableAdapter checks a username/password pair against stored bcrypt
// hashes, with attempt throttling.
type DBTableAdapter struct {
	users  Users
	logger Logger
}

var _ AuthAdapter = (*DBTableAdapter)(nil)

// NewDBTableAdapter will create a new DBTableAdapter
func NewDBTableAdapter(users Users) *DBTableAdapter {
	return &DBTableAdapter{
		users:  users,
		logger: defLogger{},
	}
}

func (a *DBTableAdapter) WithLogger(l Logger) *DBTableAdapter {
	if l != nil {
		a.logger = l
	}
	return a
}

func (a *DBTableAdapter) Kind() AdapterKind {
	return AdapterDBTable
}

// Authenticate verifies the credentials and returns the user's username as
// the identity token.
func (a *DBTableAdapter) Authenticate(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Identifier == "" || creds.Password == "" {
		return nil, nil
	}

	user, err := a.users.FindByUsername(ctx, creds.Identifier)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrMismatchedHashAndPassword
	}

	if user.LoginAttemptAt != nil && time.Since(*user.LoginAttemptAt) > CoolDownPeriod {
		user.LoginAttempts = 0
	}

	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(creds.Password, user.PasswordHash); err != nil {
		if err2 := a.users.TrackAttemptedLogin(ctx, user); err2 != nil {
			a.logger.Error("failed to track login attempt: %v", err2)
		}
		return nil, ErrMismatchedHashAndPassword
	}

	if err := a.users.ResetLoginAttempts(ctx, user); err != nil {
		a.logger.Error("failed to reset login attempts: %v", err)
	}

	return ValidResult(user.Username), nil
}

// TrapdoorAdapter accepts a signed one-shot login token, typically minted
// for account recovery links.
type TrapdoorAdapter struct {
	users  Users
	tokens *TokenService
	logger Logger
}

var _ AuthAdapter = (*TrapdoorAdapter)(nil)

// NewTrapdoorAdapter will create a new TrapdoorAdapter
func NewTrapdoorAdapter(users Users, tokens *TokenService) *TrapdoorAdapter {
	return &TrapdoorAdapter{
		users:  users,
		tokens: tokens,
		logger: defLogger{},
	}
}

func (a *TrapdoorAdapter) WithLogger(l Logger) *TrapdoorAdapter {
	if l != nil {
		a.logger = l
	}
	return a
}

func (a *TrapdoorAdapter) Kind() AdapterKind {
	return AdapterTrapdoor
}

// Authenticate validates the one-shot token and returns its subject as the
// identity token.
func (a *TrapdoorAdapter) Authenticate(ctx context.Context, creds Credentials) (*Result, error) {
	if creds.Token == "" {
		return nil, nil
	}

	subject, err := a.tokens.Validate(creds.Token, TokenPurposeLogin)
	if err != nil {
		return nil, err
	}

	user, err := a.users.FindByIdentity(ctx, subject)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	return ValidResult(user.Username), nil
}
