package auth

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
	"github.com/uptrace/bun"
)

// Users is the store we use to retrieve and persist accounts. Find methods
// return (nil, nil) when no row matches; a missing account is a normal
// state for the identity resolver, not an error.
type Users interface {
	Find(ctx context.Context, id int64) (*User, error)
	FindByUsername(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByHash(ctx context.Context, hash string) (*User, error)
	FindByIdentity(ctx context.Context, token string) (*User, error)

	Save(ctx context.Context, user *User) (*User, error)

	TrackAttemptedLogin(ctx context.Context, user *User) error
	ResetLoginAttempts(ctx context.Context, user *User) error
	SetLastLogin(ctx context.Context, user *User, at time.Time) error

	ValidateUser(ctx context.Context, user *User) map[string]string
}

type users struct {
	db bun.IDB
}

var _ Users = (*users)(nil)

// NewUsersRepository builds the bun-backed Users store.
func NewUsersRepository(db bun.IDB) Users {
	return &users{db: db}
}

func (a *users) Find(ctx context.Context, id int64) (*User, error) {
	return a.findOne(ctx, "?TableAlias.id = ?", id)
}

func (a *users) FindByUsername(ctx context.Context, username string) (*User, error) {
	return a.findOne(ctx, "?TableAlias.username = ?", username)
}

func (a *users) FindByEmail(ctx context.Context, email string) (*User, error) {
	return a.findOne(ctx, "?TableAlias.email = ?", email)
}

func (a *users) FindByHash(ctx context.Context, hash string) (*User, error) {
	return a.findOne(ctx, "?TableAlias.hash = ?", hash)
}

// FindByIdentity resolves a stored identity token. Logins store the
// username; masquerade delegation stores the capability hash, so both
// columns are tried in that order.
func (a *users) FindByIdentity(ctx context.Context, token string) (*User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}

	user, err := a.FindByUsername(ctx, token)
	if err != nil || user != nil {
		return user, err
	}

	return a.FindByHash(ctx, token)
}

func (a *users) findOne(ctx context.Context, where string, value any) (*User, error) {
	record := &User{}
	err := a.db.NewSelect().
		Model(record).
		Where(where, value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return record, nil
}

// Save upserts a single row. The capability hash is minted on first save;
// it never changes afterwards.
func (a *users) Save(ctx context.Context, user *User) (*User, error) {
	if user.Hash == "" && user.Username != "" {
		hash, err := CapabilityHash(user.Username)
		if err != nil {
			return nil, err
		}
		user.Hash = hash
	}

	if user.Role == "" {
		user.Role = RoleUser
	}

	now := time.Now()
	user.UpdatedAt = &now

	if user.ID == 0 {
		if user.CreatedAt == nil {
			user.CreatedAt = &now
		}
		if _, err := a.db.NewInsert().Model(user).Exec(ctx); err != nil {
			return nil, err
		}
		return user, nil
	}

	if _, err := a.db.NewUpdate().Model(user).WherePK().Exec(ctx); err != nil {
		return nil, err
	}

	return user, nil
}

func (a *users) TrackAttemptedLogin(ctx context.Context, user *User) error {
	now := time.Now()
	user.LoginAttempts++
	user.LoginAttemptAt = &now

	_, err := a.db.NewUpdate().
		Model(user).
		Column("login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)

	return err
}

func (a *users) ResetLoginAttempts(ctx context.Context, user *User) error {
	user.LoginAttempts = 0
	user.LoginAttemptAt = nil

	_, err := a.db.NewUpdate().
		Model(user).
		Column("login_attempts", "login_attempt_at").
		WherePK().
		Exec(ctx)

	return err
}

func (a *users) SetLastLogin(ctx context.Context, user *User, at time.Time) error {
	user.LastLoginAt = &at

	_, err := a.db.NewUpdate().
		Model(user).
		Column("last_login_at").
		WherePK().
		Exec(ctx)

	return err
}

// ValidateUser returns a field-keyed error map. An empty map means the
// record is valid. Validation output is returned, never thrown.
func (a *users) ValidateUser(ctx context.Context, user *User) map[string]string {
	errs := map[string]string{}

	if err := validation.Validate(user.Role, validation.Required); err != nil {
		errs["role"] = "Invalid field role value"
	}

	if user.Username == "" {
		errs["username"] = "Invalid field username value"
	} else if dup, err := a.FindByUsername(ctx, user.Username); err == nil && dup != nil && dup.ID != user.ID {
		errs["username"] = "This username is already in use"
	}

	if user.Email != "" {
		if _, err := mail.ParseAddress(user.Email); err != nil {
			errs["email"] = "Please enter a valid email address"
		} else if dup, err := a.FindByEmail(ctx, user.Email); err == nil && dup != nil && dup.ID != user.ID {
			errs["email"] = "This email is already in use"
		}
	}

	if user.Phone != "" {
		num, err := phonenumbers.Parse(user.Phone, "US")
		if err != nil || !phonenumbers.IsValidNumber(num) {
			errs["phone"] = "Please enter a valid phone number"
		}
	}

	return errs
}
