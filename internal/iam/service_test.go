package iam

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/repository/memory"
)

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	enforcer, err := NewTestEnforcer()
	require.NoError(t, err)

	svc, err := NewService(enforcer, store.Users(), store.Roles(), store.Permissions(), store.Tokens(),
		5*time.Hour, 0, "root")
	require.NoError(t, err)
	return svc, store
}

func TestLoginVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	require.NoError(t, svc.CreateUser(ctx, "u1", "correct-horse"))

	_, err := svc.Login(ctx, "u1", "wrong")
	assert.Equal(t, apierr.KindUnauthenticated, apierr.KindOf(err))

	token, err := svc.Login(ctx, "u1", "correct-horse")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	principal, err := svc.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "u1", principal.Username)
	assert.False(t, principal.IsRoot)
}

func TestVerifyRejectsUnknownToken(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Verify(context.Background(), "deadbeef")
	assert.Equal(t, apierr.KindUnauthenticated, apierr.KindOf(err))
}

// S4 — RBAC write denial: u1 has only read on public:DEFAULT_GROUP:*.
func TestAuthorizeRBACWriteDenial(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	require.NoError(t, svc.CreateUser(ctx, "u1", "pw"))
	require.NoError(t, svc.CreateRole(ctx, "roleR"))
	require.NoError(t, svc.GrantRole(ctx, "u1", "roleR"))
	require.NoError(t, svc.GrantPermission(ctx, "roleR", "public:DEFAULT_GROUP:*", ActionRead))

	principal := Principal{Username: "u1"}

	err := svc.Authorize(ctx, principal, "public:DEFAULT_GROUP:cfg3", ActionWrite)
	assert.Equal(t, apierr.KindForbidden, apierr.KindOf(err))

	err = svc.Authorize(ctx, principal, "public:DEFAULT_GROUP:cfg3", ActionRead)
	assert.NoError(t, err)
}

func TestAuthorizeRootBypasses(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Authorize(context.Background(), Principal{Username: "root", IsRoot: true}, "any:any:any", ActionWrite)
	assert.NoError(t, err)
}

func TestAuthorizeRejectsAnonymous(t *testing.T) {
	svc, _ := newTestService(t)
	err := svc.Authorize(context.Background(), Anonymous, "public:DEFAULT_GROUP:cfg", ActionRead)
	assert.Equal(t, apierr.KindUnauthenticated, apierr.KindOf(err))
}

func TestDeleteUserCascadesRoleBindingsNotRole(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	require.NoError(t, svc.CreateUser(ctx, "u1", "pw"))
	require.NoError(t, svc.CreateRole(ctx, "roleR"))
	require.NoError(t, svc.GrantRole(ctx, "u1", "roleR"))

	require.NoError(t, svc.DeleteUser(ctx, "u1"))

	roles, err := store.Roles().RolesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, roles)

	_, total, err := svc.ListRoles(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total) // role itself survives
}
