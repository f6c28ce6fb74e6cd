package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

func TestNamespaceRepositoryCRUD(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Namespaces()

	require.NoError(t, repo.Create(ctx, &models.Namespace{ID: "public", Name: "public"}))
	err := repo.Create(ctx, &models.Namespace{ID: "public", Name: "public"})
	assert.Equal(t, apierr.KindAlreadyExists, apierr.KindOf(err))

	got, err := repo.Get(ctx, "public")
	require.NoError(t, err)
	assert.Equal(t, "public", got.Name)

	require.NoError(t, repo.Delete(ctx, "public"))
	_, err = repo.Get(ctx, "public")
	assert.Equal(t, apierr.KindNotFound, apierr.KindOf(err))
}

func TestUserRepositoryPagination(t *testing.T) {
	ctx := context.Background()
	repo := NewStore().Users()

	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, repo.Create(ctx, &models.User{Username: name, PasswordHash: "x"}))
	}

	page, total, err := repo.List(ctx, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, page, 2)
	assert.Equal(t, "alice", page[0].Username)
}

func TestRolePermissionBindings(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	roles := store.Roles()
	perms := store.Permissions()

	require.NoError(t, roles.Create(ctx, "roleR"))
	require.NoError(t, roles.GrantUser(ctx, "roleR", "u1"))

	rolesForU1, err := roles.RolesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []string{"roleR"}, rolesForU1)

	require.NoError(t, perms.Grant(ctx, &models.Permission{Role: "roleR", Resource: "public:DEFAULT_GROUP:*", Action: "r"}))
	granted, err := perms.ForRole(ctx, "roleR")
	require.NoError(t, err)
	require.Len(t, granted, 1)
	assert.Equal(t, "r", granted[0].Action)

	require.NoError(t, roles.RevokeUser(ctx, "roleR", "u1"))
	rolesForU1, err = roles.RolesForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, rolesForU1)
}

func TestConfigHistoryMonotonicNID(t *testing.T) {
	ctx := context.Background()
	history := NewStore().History()

	for _, op := range []models.HistoryOp{models.HistoryOpInsert, models.HistoryOpUpdate, models.HistoryOpUpdate, models.HistoryOpDelete} {
		require.NoError(t, history.Append(ctx, &models.ConfigHistory{
			Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", Op: op, Content: "x", Type: "text", MD5: "m",
		}))
	}

	records, total, err := history.List(ctx, "public", "DEFAULT_GROUP", "cfg1", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	// List is newest-first; nids strictly decrease walking back to oldest.
	for i := 0; i < len(records)-1; i++ {
		assert.Greater(t, records[i].NID, records[i+1].NID)
	}
}
