package auth_test

import (
	"context"
	"testing"

	auth "github.com/goliatone/go-session-auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newResolverSetup(t *testing.T) (*auth.Scope, *auth.IdentityResolver, *fakeRepo) {
	t.Helper()

	repo := newFakeRepo()
	cfg := auth.DefaultConfig("test-signing-key")
	scope := auth.NewScope(auth.NewMemorySessionStore(), auth.NewEventBus(), repo)
	resolver := auth.NewIdentityResolver(cfg, auth.WithResolverLogger(testLogger{}))

	return scope, resolver, repo
}

func TestOnRequestResolvesStoredIdentity(t *testing.T) {
	scope, resolver, repo := newResolverSetup(t)
	user := repo.users.add(activeUser(0, "alice", auth.RoleUser))

	scope.WriteIdentity(user.Username)

	require.NoError(t, resolver.OnRequest(context.Background(), scope))
	require.NotNil(t, scope.User())
	assert.Equal(t, user.ID, scope.User().ID)
}

func TestOnRequestResolvesCapabilityHash(t *testing.T) {
	scope, resolver, repo := newResolverSetup(t)
	user := repo.users.add(activeUser(0, "alice", auth.RoleUser))

	// masquerade sessions store the capability hash instead of the username
	scope.WriteIdentity(user.Hash)

	require.NoError(t, resolver.OnRequest(context.Background(), scope))
	require.NotNil(t, scope.User())
	assert.Equal(t, user.ID, scope.User().ID)
}

func TestOnRequestAnonymousPassesThrough(t *testing.T) {
	scope, resolver, _ := newResolverSetup(t)

	require.NoError(t, resolver.OnRequest(context.Background(), scope))
	assert.Nil(t, scope.User())
	assert.False(t, scope.HasRedirect())
}

func TestOnRequestStaleIdentityIsAnonymous(t *testing.T) {
	scope, resolver, _ := newResolverSetup(t)

	scope.WriteIdentity("deleted-user")

	require.NoError(t, resolver.OnRequest(context.Background(), scope))
	assert.Nil(t, scope.User())
}

func TestOnRequestInactiveIdentityIsAnonymous(t *testing.T) {
	scope, resolver, repo := newResolverSetup(t)

	user := repo.users.add(&auth.User{Username: "ghost", Role: auth.RoleUser, Active: false})
	scope.WriteIdentity(user.Username)

	require.NoError(t, resolver.OnRequest(context.Background(), scope))
	assert.Nil(t, scope.User())
}

func TestValidatePageAccess(t *testing.T) {
	tests := []struct {
		name         string
		user         *auth.User
		path         string
		wantRedirect string
		wantWarning  bool
	}{
		{
			name: "public page anonymous",
			path: "/about",
		},
		{
			name:         "gated page anonymous",
			path:         "/user/index",
			wantRedirect: "/login",
		},
		{
			name: "gated page with role",
			user: activeUser(1, "alice", auth.RoleUser),
			path: "/user/index",
		},
		{
			name: "admin page as admin",
			user: activeUser(1, "root", auth.RoleAdmin),
			path: "/admin/users",
		},
		{
			name: "user page as admin",
			user: activeUser(1, "root", auth.RoleAdmin),
			path: "/user/index",
		},
		{
			name:         "admin page as user",
			user:         activeUser(1, "alice", auth.RoleUser),
			path:         "/admin/users",
			wantRedirect: "/user/index",
			wantWarning:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scope, resolver, _ := newResolverSetup(t)
			if tt.user != nil {
				scope.SetUser(tt.user)
			}

			resolver.ValidatePageAccess(scope, tt.path)

			assert.Equal(t, tt.wantRedirect, scope.Redirect())
			if tt.wantWarning {
				assert.NotEmpty(t, scope.Warnings())
			} else {
				assert.Empty(t, scope.Warnings())
			}
		})
	}
}

func TestPathRole(t *testing.T) {
	order := auth.DefaultRoleOrder

	role, ok := auth.PathRole("/admin/users", order)
	assert.True(t, ok)
	assert.Equal(t, auth.RoleAdmin, role)

	role, ok = auth.PathRole("/user", order)
	assert.True(t, ok)
	assert.Equal(t, auth.RoleUser, role)

	_, ok = auth.PathRole("/about", order)
	assert.False(t, ok)

	_, ok = auth.PathRole("/", order)
	assert.False(t, ok)
}
