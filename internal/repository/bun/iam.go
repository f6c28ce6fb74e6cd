package bun

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// UserRepository is a bun-backed repository.UserRepository.
type UserRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) *UserRepository { return &UserRepository{db: db} }

func (r *UserRepository) Get(ctx context.Context, username string) (*models.User, error) {
	u := new(models.User)
	err := r.db.NewSelect().Model(u).Where("username = ?", username).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("user %q", username)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *UserRepository) List(ctx context.Context, page, pageSize int) ([]*models.User, int, error) {
	var out []*models.User
	q := r.db.NewSelect().Model(&out).OrderExpr("username ASC")
	count, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page > 0 && pageSize > 0 {
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

func (r *UserRepository) Create(ctx context.Context, u *models.User) error {
	exists, err := r.db.NewSelect().Model((*models.User)(nil)).Where("username = ?", u.Username).Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return apierr.AlreadyExists("user %q", u.Username)
	}
	_, err = r.db.NewInsert().Model(u).Exec(ctx)
	return err
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	res, err := r.db.NewUpdate().Model(u).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("user %q", u.Username)
	}
	return nil
}

func (r *UserRepository) Delete(ctx context.Context, username string) error {
	_, err := r.db.NewDelete().Model((*models.User)(nil)).Where("username = ?", username).Exec(ctx)
	return err
}

// RoleRepository is a bun-backed repository.RoleRepository.
type RoleRepository struct {
	db *bun.DB
}

func NewRoleRepository(db *bun.DB) *RoleRepository { return &RoleRepository{db: db} }

func (r *RoleRepository) Create(ctx context.Context, role string) error {
	_, err := r.db.NewInsert().Model(&models.Role{Name: role}).
		On("CONFLICT (name) DO NOTHING").Exec(ctx)
	return err
}

func (r *RoleRepository) Delete(ctx context.Context, role string) error {
	_, err := r.db.NewDelete().Model((*models.Role)(nil)).Where("name = ?", role).Exec(ctx)
	return err
}

func (r *RoleRepository) List(ctx context.Context, page, pageSize int) ([]string, int, error) {
	var roles []*models.Role
	q := r.db.NewSelect().Model(&roles).OrderExpr("name ASC")
	count, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page > 0 && pageSize > 0 {
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}
	names := make([]string, len(roles))
	for i, role := range roles {
		names[i] = role.Name
	}
	return names, count, nil
}

func (r *RoleRepository) GrantUser(ctx context.Context, role, username string) error {
	_, err := r.db.NewInsert().Model(&models.UserRole{Username: username, Role: role}).
		On("CONFLICT (username, role) DO NOTHING").Exec(ctx)
	return err
}

func (r *RoleRepository) RevokeUser(ctx context.Context, role, username string) error {
	_, err := r.db.NewDelete().Model((*models.UserRole)(nil)).
		Where("username = ? AND role = ?", username, role).Exec(ctx)
	return err
}

func (r *RoleRepository) RolesForUser(ctx context.Context, username string) ([]string, error) {
	var bindings []*models.UserRole
	if err := r.db.NewSelect().Model(&bindings).Where("username = ?", username).Scan(ctx); err != nil {
		return nil, err
	}
	roles := make([]string, len(bindings))
	for i, b := range bindings {
		roles[i] = b.Role
	}
	return roles, nil
}

func (r *RoleRepository) UsersForRole(ctx context.Context, role string) ([]string, error) {
	var bindings []*models.UserRole
	if err := r.db.NewSelect().Model(&bindings).Where("role = ?", role).Scan(ctx); err != nil {
		return nil, err
	}
	users := make([]string, len(bindings))
	for i, b := range bindings {
		users[i] = b.Username
	}
	return users, nil
}

func (r *RoleRepository) DeleteBindingsForUser(ctx context.Context, username string) error {
	_, err := r.db.NewDelete().Model((*models.UserRole)(nil)).Where("username = ?", username).Exec(ctx)
	return err
}

// PermissionRepository is a bun-backed repository.PermissionRepository.
type PermissionRepository struct {
	db *bun.DB
}

func NewPermissionRepository(db *bun.DB) *PermissionRepository { return &PermissionRepository{db: db} }

func (r *PermissionRepository) Grant(ctx context.Context, p *models.Permission) error {
	_, err := r.db.NewInsert().Model(p).Exec(ctx)
	return err
}

func (r *PermissionRepository) Revoke(ctx context.Context, role, resource, action string) error {
	_, err := r.db.NewDelete().Model((*models.Permission)(nil)).
		Where("role = ? AND resource = ? AND action = ?", role, resource, action).Exec(ctx)
	return err
}

func (r *PermissionRepository) ForRole(ctx context.Context, role string) ([]*models.Permission, error) {
	var out []*models.Permission
	if err := r.db.NewSelect().Model(&out).Where("role = ?", role).Scan(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PermissionRepository) List(ctx context.Context, page, pageSize int) ([]*models.Permission, int, error) {
	var out []*models.Permission
	q := r.db.NewSelect().Model(&out).OrderExpr("id ASC")
	count, err := q.Count(ctx)
	if err != nil {
		return nil, 0, err
	}
	if page > 0 && pageSize > 0 {
		q = q.Limit(pageSize).Offset((page - 1) * pageSize)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, 0, err
	}
	return out, count, nil
}

func (r *PermissionRepository) DeleteForRole(ctx context.Context, role string) error {
	_, err := r.db.NewDelete().Model((*models.Permission)(nil)).Where("role = ?", role).Exec(ctx)
	return err
}
