package auth

import (
	"time"

	"github.com/uptrace/bun"
)

// User is the durable account record. Accounts are deactivated via the
// Active flag (or soft-deleted), never removed.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             int64      `bun:"id,pk,autoincrement" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Name           string     `bun:"name" json:"name,omitempty"`
	Username       string     `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string     `bun:"email,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	Notes          string     `bun:"notes" json:"notes,omitempty"`
	IP             string     `bun:"ip" json:"ip,omitempty"`
	Active         bool       `bun:"active" json:"active"`
	Hash           string     `bun:"hash,unique" json:"hash,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LastLoginAt    *time.Time `bun:"last_login_at" json:"last_login_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// IsActive reports whether the account may authenticate.
func (u *User) IsActive() bool {
	return u != nil && u.Active
}

// HasRole reports whether the user's role grants role. A user always holds
// their own role; a role higher in DefaultRoleOrder covers lower ones.
func (u *User) HasRole(role UserRole) bool {
	if u == nil {
		return false
	}
	if u.Role == role {
		return true
	}
	return HasPrecedence(DefaultRoleOrder, u.Role, role)
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// CapabilityToken returns the per-account hash used as a masquerade and
// one-shot login capability. It is minted on first save.
func (u *User) CapabilityToken() string {
	if u == nil {
		return ""
	}
	return u.Hash
}

// Status name templates. Tracked entities are free to define their own.
const (
	StatusPending     = "pending"
	StatusAmend       = "amend"
	StatusApproved    = "approved"
	StatusInactive    = "inactive"
	StatusNotApproved = "not approved"
	StatusCancelled   = "cancelled"
)

// ForeignRef identifies the tracked entity a status entry belongs to.
type ForeignRef struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// Zero reports whether the reference is unset.
func (r ForeignRef) Zero() bool {
	return r.Kind == "" || r.ID == 0
}

// StatusEntry is an immutable audit record of one state transition on a
// tracked entity. After its initial save only the Notify flag may be
// flipped, and only to false, when a transition turns out to be a no-op.
type StatusEntry struct {
	bun.BaseModel `bun:"table:status_log,alias:st"`
	ID            int64          `bun:"id,pk,autoincrement" json:"id,omitempty"`
	UserID        int64          `bun:"user_id" json:"user_id,omitempty"`
	MsqUserID     int64          `bun:"msq_user_id" json:"msq_user_id,omitempty"`
	FID           int64          `bun:"fid,notnull" json:"fid,omitempty"`
	FKey          string         `bun:"fkey,notnull" json:"fkey,omitempty"`
	Name          string         `bun:"name,notnull" json:"name,omitempty"`
	Event         string         `bun:"event" json:"event,omitempty"`
	Notify        bool           `bun:"notify" json:"notify"`
	Message       string         `bun:"message" json:"message,omitempty"`
	Data          map[string]any `bun:"serial_data" json:"serial_data,omitempty"`
	CreatedAt     time.Time      `bun:"created_at,notnull" json:"created_at,omitempty"`
}

// Ref returns the foreign reference of the entry.
func (s *StatusEntry) Ref() ForeignRef {
	return ForeignRef{Kind: s.FKey, ID: s.FID}
}

// SetRef assigns the foreign reference of the entry.
func (s *StatusEntry) SetRef(ref ForeignRef) *StatusEntry {
	s.FKey = ref.Kind
	s.FID = ref.ID
	return s
}

// IsDelegated reports whether the entry was recorded while the actor was
// masquerading as another user.
func (s *StatusEntry) IsDelegated() bool {
	return s.MsqUserID != 0
}
