package memory

import (
	"context"
	"sort"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

type UserRepository struct{ s *Store }

func (r *UserRepository) Get(_ context.Context, username string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[username]
	if !ok {
		return nil, apierr.NotFound("user %q", username)
	}
	cp := *u
	return &cp, nil
}

func (r *UserRepository) List(_ context.Context, page, pageSize int) ([]*models.User, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	total := len(out)
	return paginate(out, page, pageSize), total, nil
}

func (r *UserRepository) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.Username]; ok {
		return apierr.AlreadyExists("user %q", u.Username)
	}
	cp := *u
	r.s.users[u.Username] = &cp
	return nil
}

func (r *UserRepository) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.users[u.Username]; !ok {
		return apierr.NotFound("user %q", u.Username)
	}
	cp := *u
	r.s.users[u.Username] = &cp
	return nil
}

func (r *UserRepository) Delete(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.users, username)
	return nil
}

type RoleRepository struct{ s *Store }

func (r *RoleRepository) Create(_ context.Context, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.roles[role]; !ok {
		r.s.roles[role] = &models.Role{Name: role}
	}
	return nil
}

func (r *RoleRepository) Delete(_ context.Context, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.roles, role)
	return nil
}

func (r *RoleRepository) List(_ context.Context, page, pageSize int) ([]string, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.roles))
	for name := range r.s.roles {
		out = append(out, name)
	}
	sort.Strings(out)
	total := len(out)
	return paginate(out, page, pageSize), total, nil
}

func (r *RoleRepository) GrantUser(_ context.Context, role, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.userRoles[username] == nil {
		r.s.userRoles[username] = map[string]bool{}
	}
	r.s.userRoles[username][role] = true
	return nil
}

func (r *RoleRepository) RevokeUser(_ context.Context, role, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.userRoles[username], role)
	return nil
}

func (r *RoleRepository) RolesForUser(_ context.Context, username string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]string, 0, len(r.s.userRoles[username]))
	for role := range r.s.userRoles[username] {
		out = append(out, role)
	}
	sort.Strings(out)
	return out, nil
}

func (r *RoleRepository) UsersForRole(_ context.Context, role string) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []string
	for username, roles := range r.s.userRoles {
		if roles[role] {
			out = append(out, username)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (r *RoleRepository) DeleteBindingsForUser(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.userRoles, username)
	return nil
}

type PermissionRepository struct{ s *Store }

func (r *PermissionRepository) Grant(_ context.Context, p *models.Permission) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.permSeq++
	cp := *p
	cp.ID = r.s.permSeq
	r.s.perms[cp.ID] = &cp
	return nil
}

func (r *PermissionRepository) Revoke(_ context.Context, role, resource, action string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.perms {
		if p.Role == role && p.Resource == resource && p.Action == action {
			delete(r.s.perms, id)
		}
	}
	return nil
}

func (r *PermissionRepository) ForRole(_ context.Context, role string) ([]*models.Permission, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.Permission
	for _, p := range r.s.perms {
		if p.Role == role {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *PermissionRepository) List(_ context.Context, page, pageSize int) ([]*models.Permission, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Permission, 0, len(r.s.perms))
	for _, p := range r.s.perms {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	total := len(out)
	return paginate(out, page, pageSize), total, nil
}

func (r *PermissionRepository) DeleteForRole(_ context.Context, role string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.perms {
		if p.Role == role {
			delete(r.s.perms, id)
		}
	}
	return nil
}

func paginate[T any](in []T, page, pageSize int) []T {
	if page <= 0 || pageSize <= 0 {
		return in
	}
	start := (page - 1) * pageSize
	if start >= len(in) {
		return []T{}
	}
	end := start + pageSize
	if end > len(in) {
		end = len(in)
	}
	return in[start:end]
}
