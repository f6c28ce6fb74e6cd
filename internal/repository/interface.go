// Package repository declares the Store interfaces the in-memory core
// consumes for durable state. Concrete adapters live in repository/bun
// (backed by uptrace/bun over postgres or sqlite) and repository/memory
// (used by tests and single-process demos that don't need durability).
package repository

import (
	"context"

	"github.com/easynet-cn/batata/internal/db/models"
)

// NamespaceRepository persists namespace metadata.
type NamespaceRepository interface {
	Get(ctx context.Context, id string) (*models.Namespace, error)
	List(ctx context.Context) ([]*models.Namespace, error)
	Create(ctx context.Context, ns *models.Namespace) error
	Update(ctx context.Context, ns *models.Namespace) error
	Delete(ctx context.Context, id string) error
}

// UserRepository persists local principals.
type UserRepository interface {
	Get(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, page, pageSize int) ([]*models.User, int, error)
	Create(ctx context.Context, u *models.User) error
	Update(ctx context.Context, u *models.User) error
	Delete(ctx context.Context, username string) error
}

// RoleRepository persists roles and their (role, username) bindings.
type RoleRepository interface {
	Create(ctx context.Context, role string) error
	Delete(ctx context.Context, role string) error
	List(ctx context.Context, page, pageSize int) ([]string, int, error)

	GrantUser(ctx context.Context, role, username string) error
	RevokeUser(ctx context.Context, role, username string) error
	RolesForUser(ctx context.Context, username string) ([]string, error)
	UsersForRole(ctx context.Context, role string) ([]string, error)
	DeleteBindingsForUser(ctx context.Context, username string) error
}

// PermissionRepository persists (role, resource, action) grants.
type PermissionRepository interface {
	Grant(ctx context.Context, p *models.Permission) error
	Revoke(ctx context.Context, role, resource, action string) error
	ForRole(ctx context.Context, role string) ([]*models.Permission, error)
	List(ctx context.Context, page, pageSize int) ([]*models.Permission, int, error)
	DeleteForRole(ctx context.Context, role string) error
}

// ConfigRepository persists published config entries.
type ConfigRepository interface {
	Get(ctx context.Context, namespace, group, dataID string) (*models.ConfigEntry, error)
	Upsert(ctx context.Context, e *models.ConfigEntry) error
	Delete(ctx context.Context, namespace, group, dataID string) error
	List(ctx context.Context, namespace, group string, page, pageSize int) ([]*models.ConfigEntry, int, error)
}

// GrayRepository persists beta/gray config shadows.
type GrayRepository interface {
	Get(ctx context.Context, namespace, group, dataID string) (*models.GrayEntry, error)
	Upsert(ctx context.Context, e *models.GrayEntry) error
	Delete(ctx context.Context, namespace, group, dataID string) error
}

// AggregateRepository persists aggregate datums.
type AggregateRepository interface {
	Upsert(ctx context.Context, d *models.AggregateDatum) error
	Delete(ctx context.Context, namespace, group, dataID, datumID string) error
	List(ctx context.Context, namespace, group, dataID string) ([]*models.AggregateDatum, error)
	Count(ctx context.Context, namespace, group, dataID string) (int, error)
}

// HistoryRepository persists append-only config history.
type HistoryRepository interface {
	Append(ctx context.Context, h *models.ConfigHistory) error
	List(ctx context.Context, namespace, group, dataID string, page, pageSize int) ([]*models.ConfigHistory, int, error)
	Get(ctx context.Context, namespace, group, dataID string, nid int64) (*models.ConfigHistory, error)
	Previous(ctx context.Context, namespace, group, dataID string, beforeNID int64) (*models.ConfigHistory, error)
}

// TokenRepository persists issued bearer tokens by hash.
type TokenRepository interface {
	Create(ctx context.Context, t *models.AccessToken) error
	Get(ctx context.Context, tokenHash string) (*models.AccessToken, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteForUser(ctx context.Context, username string) error
}

// InstanceRepository persists persistent (non-ephemeral) registry instances.
type InstanceRepository interface {
	Upsert(ctx context.Context, i *models.PersistentInstance) error
	Delete(ctx context.Context, namespace, group, service, cluster, ip string, port int) error
	List(ctx context.Context, namespace, group, service string) ([]*models.PersistentInstance, error)
	ListAll(ctx context.Context) ([]*models.PersistentInstance, error)
}
