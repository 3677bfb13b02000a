package auth

import (
	"context"
	"strings"
)

// IdentityResolver turns a stored session identity back into a user at the
// start of every request. Resolution is read-only: it never writes the
// session and treats an absent or stale identity as an anonymous request.
type IdentityResolver struct {
	cfg    Config
	logger Logger
}

// NewIdentityResolver builds a resolver.
func NewIdentityResolver(cfg Config, opts ...func(*IdentityResolver)) *IdentityResolver {
	r := &IdentityResolver{
		cfg:    cfg,
		logger: defLogger{},
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// WithResolverLogger overrides the default stdout logger.
func WithResolverLogger(logger Logger) func(*IdentityResolver) {
	return func(r *IdentityResolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// OnRequest resolves the session identity and attaches the user to the
// scope. Anonymous requests pass through untouched; a token that no longer
// resolves, or resolves to an inactive account, also leaves the request
// anonymous rather than failing it.
func (r *IdentityResolver) OnRequest(ctx context.Context, scope *Scope) error {
	token, ok := scope.Identity()
	if !ok || token == "" {
		return nil
	}

	user, err := scope.Repo.Users().FindByIdentity(ctx, token)
	if err != nil {
		return err
	}

	if user == nil {
		r.logger.Debug("identity token no longer resolves, treating as anonymous")
		return nil
	}

	if !user.IsActive() {
		r.logger.Debug("identity %d is inactive, treating as anonymous", user.ID)
		return nil
	}

	scope.SetUser(user)

	return nil
}

// ValidatePageAccess gates a page by the role its path claims. Anonymous
// visitors to a role-gated page are sent to the login screen; signed-in
// users lacking the role get a warning banner and a redirect to their own
// home. Pages with no role prefix are public.
func (r *IdentityResolver) ValidatePageAccess(scope *Scope, path string) {
	required, ok := PathRole(path, r.cfg.GetRoleOrder())
	if !ok {
		return
	}

	user := scope.User()
	if user == nil {
		scope.SetRedirect(r.cfg.GetLoginURL())
		return
	}

	if user.HasRole(required) {
		return
	}

	scope.AddWarning("You do not have permission to access the requested page.")
	scope.SetRedirect(r.cfg.GetUserHomeURL(user.Role))
}

// PathRole extracts the role a path is gated by: the first path segment,
// when it names a known role. "/admin/users" requires admin; "/about" is
// public.
func PathRole(path string, order []UserRole) (UserRole, bool) {
	trimmed := strings.TrimPrefix(path, "/")
	segment, _, _ := strings.Cut(trimmed, "/")
	if segment == "" {
		return "", false
	}

	role := UserRole(segment)
	if _, ok := RolePrecedence(order, role); ok {
		return role, true
	}

	return "", false
}
