package auth

import (
	"context"
	"encoding/json"

	"github.com/goliatone/go-errors"
)

// MasqueradeFrame is one saved level of delegation: who we were before
// assuming the target identity, and where to return when unwinding.
type MasqueradeFrame struct {
	UserID    int64  `json:"user_id"`
	ReturnURL string `json:"return_url"`
}

// MasqueradeHandler lets a privileged user temporarily assume a target
// identity. Frames nest: assuming while already masquerading pushes a new
// frame, and each logout pops exactly one.
type MasqueradeHandler struct {
	cfg       Config
	roleOrder []UserRole
	logger    Logger
}

// NewMasqueradeHandler builds a handler using the configured role order.
func NewMasqueradeHandler(cfg Config, opts ...func(*MasqueradeHandler)) *MasqueradeHandler {
	h := &MasqueradeHandler{
		cfg:       cfg,
		roleOrder: cfg.GetRoleOrder(),
		logger:    defLogger{},
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// WithMasqueradeLogger overrides the default stdout logger.
func WithMasqueradeLogger(logger Logger) func(*MasqueradeHandler) {
	return func(h *MasqueradeHandler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// CanAssume reports whether actor may masquerade as target. The check is
// advisory for UI purposes and enforced again inside Assume.
func (h *MasqueradeHandler) CanAssume(scope *Scope, actor, target *User) bool {
	if actor == nil || target == nil {
		return false
	}

	if !target.IsActive() {
		return false
	}

	if actor.ID == target.ID {
		return false
	}

	frames, err := h.frames(scope)
	if err != nil {
		return false
	}

	// never re-enter an identity already on the stack
	for _, frame := range frames {
		if frame.UserID == target.ID {
			return false
		}
	}

	if IsTopRole(h.roleOrder, actor.Role) {
		return true
	}

	return HasPrecedence(h.roleOrder, actor.Role, target.Role)
}

// Assume pushes a masquerade frame and switches the session identity to
// the target's capability hash. Disallowed requests are a silent no-op.
func (h *MasqueradeHandler) Assume(ctx context.Context, scope *Scope, target *User) error {
	actor := scope.User()
	if !h.CanAssume(scope, actor, target) {
		return nil
	}

	frames, err := h.frames(scope)
	if err != nil {
		return err
	}
	frames = append(frames, MasqueradeFrame{
		UserID:    actor.ID,
		ReturnURL: StripQueryParam(scope.RequestURL(), h.cfg.GetMasqueradeParam()),
	})

	if err := h.writeFrames(scope, frames); err != nil {
		return err
	}

	scope.WriteIdentity(target.Hash)

	evt := NewAuthEvent(scope)
	evt.Result = ValidResult(target.Hash)
	evt.Redirect = h.cfg.GetUserHomeURL(target.Role)

	if err := scope.Dispatcher.Dispatch(ctx, EventLoginSuccess, evt); err != nil {
		return err
	}

	scope.SetRedirect(evt.Redirect)

	h.logger.Info("masquerade: %d now acting as %d", actor.ID, target.ID)

	return nil
}

// AssumeByToken resolves a capability hash carried in the request and
// assumes that user. Unknown hashes are ignored.
func (h *MasqueradeHandler) AssumeByToken(ctx context.Context, scope *Scope, hash string) error {
	if hash == "" {
		return nil
	}

	target, err := scope.Repo.Users().FindByHash(ctx, hash)
	if err != nil {
		return err
	}

	if target == nil {
		h.logger.Debug("masquerade: no user for requested hash")
		return nil
	}

	return h.Assume(ctx, scope, target)
}

// Unwind pops one masquerade frame, restoring the previous identity and
// its return URL. With an empty stack it is a no-op so plain logouts pass
// through untouched. A stack that cannot be decoded, or a popped frame
// missing its user or return URL, fails with a session-state error and
// drops the remaining frames.
func (h *MasqueradeHandler) Unwind(ctx context.Context, scope *Scope) error {
	frames, err := h.frames(scope)
	if err != nil {
		h.Clear(scope)
		scope.ClearIdentity()
		return err
	}
	if len(frames) == 0 {
		return nil
	}

	if _, ok := scope.Identity(); !ok {
		return nil
	}

	frame := frames[len(frames)-1]
	frames = frames[:len(frames)-1]

	if frame.UserID == 0 || frame.ReturnURL == "" {
		h.Clear(scope)
		scope.ClearIdentity()
		return errors.Wrap(ErrCorruptSessionState, errors.CategoryConflict, "masquerade frame is missing required fields").
			WithTextCode("CORRUPT_SESSION_STATE").
			WithMetadata(map[string]any{"user_id": frame.UserID})
	}

	user, err := scope.Repo.Users().Find(ctx, frame.UserID)
	if err != nil {
		return err
	}

	if user == nil {
		// stack points at a user that no longer exists, drop everything
		h.Clear(scope)
		scope.ClearIdentity()
		return errors.Wrap(ErrCorruptSessionState, errors.CategoryConflict, "masquerade frame references unknown user").
			WithTextCode("CORRUPT_SESSION_STATE").
			WithMetadata(map[string]any{"user_id": frame.UserID})
	}

	if err := h.writeFrames(scope, frames); err != nil {
		return err
	}

	scope.WriteIdentity(user.Username)
	scope.SetUser(user)
	scope.SetRedirect(frame.ReturnURL)

	h.logger.Info("masquerade: restored %d, depth now %d", user.ID, len(frames))

	return nil
}

// Depth returns the number of nested masquerade frames. An unreadable
// stack counts as empty; Unwind is where corruption surfaces as an error.
func (h *MasqueradeHandler) Depth(scope *Scope) int {
	frames, _ := h.frames(scope)
	return len(frames)
}

// IsMasquerading reports whether the session currently wears a borrowed
// identity.
func (h *MasqueradeHandler) IsMasquerading(scope *Scope) bool {
	return h.Depth(scope) > 0
}

// Delegator returns the original user at the bottom of the stack, nil
// when not masquerading.
func (h *MasqueradeHandler) Delegator(ctx context.Context, scope *Scope) (*User, error) {
	frames, err := h.frames(scope)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		return nil, nil
	}

	return scope.Repo.Users().Find(ctx, frames[0].UserID)
}

// Clear drops the whole frame stack without touching the identity slot.
// Login handlers call this so a fresh login never inherits stale frames.
func (h *MasqueradeHandler) Clear(scope *Scope) {
	scope.Session.Remove(SessionKeyMasquerade)
}

// OnLogout intercepts logout while masquerading: instead of ending the
// session it unwinds one frame and stops the event so the real logout
// handler never runs.
func (h *MasqueradeHandler) OnLogout(ctx context.Context, payload EventPayload) error {
	evt, ok := payload.(*AuthEvent)
	if !ok || evt.Scope == nil {
		return nil
	}

	frames, err := h.frames(evt.Scope)
	if err != nil {
		h.Clear(evt.Scope)
		evt.Scope.ClearIdentity()
		return err
	}
	if len(frames) == 0 {
		return nil
	}

	if err := h.Unwind(ctx, evt.Scope); err != nil {
		return err
	}

	evt.Redirect = evt.Scope.Redirect()
	evt.StopPropagation()

	return nil
}

func (h *MasqueradeHandler) frames(scope *Scope) ([]MasqueradeFrame, error) {
	raw, ok := scope.Session.Get(SessionKeyMasquerade)
	if !ok || raw == "" {
		return nil, nil
	}

	var frames []MasqueradeFrame
	if err := json.Unmarshal([]byte(raw), &frames); err != nil {
		h.logger.Error("masquerade: frame stack is unreadable: %v", err)
		return nil, errors.Wrap(ErrCorruptSessionState, errors.CategoryConflict, "masquerade stack is not valid JSON").
			WithTextCode("CORRUPT_SESSION_STATE")
	}

	return frames, nil
}

func (h *MasqueradeHandler) writeFrames(scope *Scope, frames []MasqueradeFrame) error {
	if len(frames) == 0 {
		scope.Session.Remove(SessionKeyMasquerade)
		return nil
	}

	raw, err := json.Marshal(frames)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to serialize masquerade stack")
	}

	scope.Session.Set(SessionKeyMasquerade, string(raw))

	return nil
}
