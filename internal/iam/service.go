// Package iam implements Component A: authentication, bearer-token
// issuance/verification, and RBAC authorization, backed by a casbin
// enforcer for the (principal, resource, action) decision.
package iam

import (
	"context"
	"time"

	"github.com/casbin/casbin/v2"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
	"github.com/easynet-cn/batata/internal/repository"
)

// Action is the permission action vocabulary: read, write, or both.
type Action string

const (
	ActionRead      Action = "r"
	ActionWrite     Action = "w"
	ActionReadWrite Action = "rw"
)

// Service implements login/verify/authorize and CRUD for users, roles, and
// permissions.
type Service struct {
	enforcer casbin.IEnforcer

	users      repository.UserRepository
	roles      repository.RoleRepository
	perms      repository.PermissionRepository
	tokens     repository.TokenRepository
	roleCache  *RoleCache
	tokenCache *TokenCache

	tokenTTL     time.Duration
	rootUsername string
}

// NewService wires an IAM Service. tokenCacheSize bounds the decoded-token
// LRU; 0 picks a sane default.
func NewService(
	enforcer casbin.IEnforcer,
	users repository.UserRepository,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	tokens repository.TokenRepository,
	tokenTTL time.Duration,
	tokenCacheSize int,
	rootUsername string,
) (*Service, error) {
	if tokenCacheSize <= 0 {
		tokenCacheSize = 4096
	}
	tc, err := NewTokenCache(tokenCacheSize)
	if err != nil {
		return nil, err
	}
	return &Service{
		enforcer:     enforcer,
		users:        users,
		roles:        roles,
		perms:        perms,
		tokens:       tokens,
		roleCache:    NewRoleCache(roles),
		tokenCache:   tc,
		tokenTTL:     tokenTTL,
		rootUsername: rootUsername,
	}, nil
}

// Login verifies credentials and issues a bearer accessToken.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	u, err := s.users.Get(ctx, username)
	if err != nil {
		return "", apierr.Unauthenticated("invalid credentials")
	}
	if !u.Enabled {
		return "", apierr.Unauthenticated("invalid credentials")
	}
	if !VerifyPassword(u.PasswordHash, password) {
		return "", apierr.Unauthenticated("invalid credentials")
	}

	token, tokenHash, err := IssueAccessToken()
	if err != nil {
		return "", apierr.Internal(err)
	}

	now := time.Now()
	expiresAt := Expiry(now, s.tokenTTL)
	if err := s.tokens.Create(ctx, &models.AccessToken{
		TokenHash: tokenHash,
		Username:  username,
		IssuedAt:  now,
		ExpiresAt: expiresAt,
	}); err != nil {
		return "", apierr.Internal(err)
	}

	s.tokenCache.Put(tokenHash, s.principalFor(username), expiresAt)

	return token, nil
}

// Verify decodes a bearer token into its principal, serving the
// cached decoding path before falling through to the token repository.
func (s *Service) Verify(ctx context.Context, token string) (Principal, error) {
	if token == "" {
		return Principal{}, apierr.Unauthenticated("missing token")
	}

	tokenHash := HashAccessToken(token)

	if p, ok := s.tokenCache.Get(tokenHash); ok {
		return p, nil
	}

	rec, err := s.tokens.Get(ctx, tokenHash)
	if err != nil {
		return Principal{}, apierr.Unauthenticated("invalid token")
	}
	if IsExpired(rec.ExpiresAt) {
		_ = s.tokens.Delete(ctx, tokenHash)
		s.tokenCache.Invalidate(tokenHash)
		return Principal{}, apierr.Unauthenticated("token expired")
	}

	principal := s.principalFor(rec.Username)
	s.tokenCache.Put(tokenHash, principal, rec.ExpiresAt)
	return principal, nil
}

// TokenTTL reports the lifetime issued tokens carry, for surfaces that echo
// it back to the caller (e.g. the login response's tokenTtl field).
func (s *Service) TokenTTL() time.Duration {
	return s.tokenTTL
}

func (s *Service) principalFor(username string) Principal {
	return Principal{Username: username, IsRoot: username == s.rootUsername}
}

// Authorize answers authorize(principal, resource, action). Root always
// allows. resource is the three-part "namespace:group:dataId" pattern
// ; action is r, w, or rw.
func (s *Service) Authorize(ctx context.Context, p Principal, resource string, action Action) error {
	if p.IsRoot {
		return nil
	}
	if p.IsAnonymous() {
		return apierr.Unauthenticated("authentication required")
	}

	allowed, err := s.enforcer.Enforce(p.Username, resource, string(action))
	if err != nil {
		return apierr.Internal(err)
	}
	if !allowed {
		return apierr.Forbidden("principal %q lacks %q on %q", p.Username, action, resource)
	}
	return nil
}

// CreateUser creates a new local principal.
func (s *Service) CreateUser(ctx context.Context, username, password string) error {
	if username == "" {
		return apierr.InvalidArgument("username is required")
	}
	hash, err := HashPassword(password)
	if err != nil {
		return apierr.Internal(err)
	}
	return s.users.Create(ctx, &models.User{Username: username, PasswordHash: hash, Enabled: true})
}

// UpdatePassword rehashes and stores a new password for an existing user,
// without disturbing its role bindings.
func (s *Service) UpdatePassword(ctx context.Context, username, password string) error {
	u, err := s.users.Get(ctx, username)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return apierr.Internal(err)
	}
	u.PasswordHash = hash
	if err := s.users.Update(ctx, u); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// DeleteUser removes a user and cascades to its role bindings.
func (s *Service) DeleteUser(ctx context.Context, username string) error {
	if err := s.roles.DeleteBindingsForUser(ctx, username); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.RemoveFilteredGroupingPolicy(0, username); err != nil {
		return apierr.Internal(err)
	}
	if err := s.tokens.DeleteForUser(ctx, username); err != nil {
		return apierr.Internal(err)
	}
	if err := s.users.Delete(ctx, username); err != nil {
		return apierr.Internal(err)
	}
	s.roleCache.Invalidate(username)
	return nil
}

func (s *Service) ListUsers(ctx context.Context, page, pageSize int) ([]*models.User, int, error) {
	return s.users.List(ctx, page, pageSize)
}

// RolesForUser returns the roles bound to username, served from the cached
// snapshot where possible.
func (s *Service) RolesForUser(ctx context.Context, username string) ([]string, error) {
	roles, err := s.roleCache.RolesFor(ctx, username)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	return roles, nil
}

// CreateRole creates a new, initially empty role.
func (s *Service) CreateRole(ctx context.Context, role string) error {
	if role == "" {
		return apierr.InvalidArgument("role name is required")
	}
	return s.roles.Create(ctx, role)
}

// DeleteRole removes a role and cascades to its permissions.
func (s *Service) DeleteRole(ctx context.Context, role string) error {
	if err := s.perms.DeleteForRole(ctx, role); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.RemoveFilteredPolicy(0, role); err != nil {
		return apierr.Internal(err)
	}
	return s.roles.Delete(ctx, role)
}

func (s *Service) ListRoles(ctx context.Context, page, pageSize int) ([]string, int, error) {
	return s.roles.List(ctx, page, pageSize)
}

// GrantRole binds role to username, both in the repository and the casbin
// grouping policy the enforcer reads at Authorize time.
func (s *Service) GrantRole(ctx context.Context, username, role string) error {
	if err := s.roles.GrantUser(ctx, role, username); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.AddGroupingPolicy(username, role); err != nil {
		return apierr.Internal(err)
	}
	s.roleCache.Invalidate(username)
	return nil
}

// RevokeRole removes the (role, username) binding.
func (s *Service) RevokeRole(ctx context.Context, username, role string) error {
	if err := s.roles.RevokeUser(ctx, role, username); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.RemoveGroupingPolicy(username, role); err != nil {
		return apierr.Internal(err)
	}
	s.roleCache.Invalidate(username)
	return nil
}

// GrantPermission adds a (role, resource, action) permission.
func (s *Service) GrantPermission(ctx context.Context, role, resource string, action Action) error {
	p := &models.Permission{Role: role, Resource: resource, Action: string(action)}
	if err := s.perms.Grant(ctx, p); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.AddPolicy(role, resource, string(action)); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

// RevokePermission removes a (role, resource, action) permission.
func (s *Service) RevokePermission(ctx context.Context, role, resource string, action Action) error {
	if err := s.perms.Revoke(ctx, role, resource, string(action)); err != nil {
		return apierr.Internal(err)
	}
	if _, err := s.enforcer.RemovePolicy(role, resource, string(action)); err != nil {
		return apierr.Internal(err)
	}
	return nil
}

func (s *Service) ListPermissions(ctx context.Context, role string) ([]*models.Permission, error) {
	return s.perms.ForRole(ctx, role)
}

func (s *Service) ListAllPermissions(ctx context.Context, page, pageSize int) ([]*models.Permission, int, error) {
	return s.perms.List(ctx, page, pageSize)
}
