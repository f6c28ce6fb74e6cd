package iam

import (
	"context"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/easynet-cn/batata/internal/repository"
)

// roleSnapshot is the immutable value swapped into RoleCache.current. Built
// fresh from the repository on every Refresh so readers never block a
// concurrent refresh or each other.
type roleSnapshot struct {
	rolesByUser map[string][]string
}

// RoleCache is a lock-free view of (username -> roles) bindings, rebuilt
// wholesale by Refresh and swapped in as one snapshot so readers never see
// a partial update. Usernames missing from the snapshot are read through to
// the repository on every RolesFor call.
type RoleCache struct {
	current atomic.Value // roleSnapshot
	roles   repository.RoleRepository
}

func NewRoleCache(roles repository.RoleRepository) *RoleCache {
	c := &RoleCache{roles: roles}
	c.current.Store(roleSnapshot{rolesByUser: map[string][]string{}})
	return c
}

// Refresh rebuilds the snapshot from the repository. Safe to call
// concurrently with RolesFor; readers always see a complete snapshot.
func (c *RoleCache) Refresh(ctx context.Context, usernames []string) error {
	snap := roleSnapshot{rolesByUser: make(map[string][]string, len(usernames))}
	for _, username := range usernames {
		roles, err := c.roles.RolesForUser(ctx, username)
		if err != nil {
			return err
		}
		snap.rolesByUser[username] = roles
	}
	c.current.Store(snap)
	return nil
}

// RolesFor returns the cached roles for username, reading through to the
// repository on a cache miss (e.g. first call, or a user created after the
// last bulk Refresh); the result of a miss is not stored in the snapshot.
func (c *RoleCache) RolesFor(ctx context.Context, username string) ([]string, error) {
	snap := c.current.Load().(roleSnapshot)
	if roles, ok := snap.rolesByUser[username]; ok {
		return roles, nil
	}
	roles, err := c.roles.RolesForUser(ctx, username)
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// Invalidate drops a single user's cached entry, forcing the next RolesFor
// to read through to the repository.
func (c *RoleCache) Invalidate(username string) {
	snap := c.current.Load().(roleSnapshot)
	next := roleSnapshot{rolesByUser: make(map[string][]string, len(snap.rolesByUser))}
	for k, v := range snap.rolesByUser {
		if k != username {
			next.rolesByUser[k] = v
		}
	}
	c.current.Store(next)
}

// tokenCacheEntry is what TokenCache stores per decoded token.
type tokenCacheEntry struct {
	principal Principal
	expiresAt time.Time
}

// TokenCache is a bounded LRU of decoded bearer tokens keyed by token hash,
// so verify(token) avoids a repository round-trip on every call.
type TokenCache struct {
	lru *lru.Cache[string, tokenCacheEntry]
}

func NewTokenCache(size int) (*TokenCache, error) {
	c, err := lru.New[string, tokenCacheEntry](size)
	if err != nil {
		return nil, err
	}
	return &TokenCache{lru: c}, nil
}

func (c *TokenCache) Get(tokenHash string) (Principal, bool) {
	entry, ok := c.lru.Get(tokenHash)
	if !ok {
		return Principal{}, false
	}
	if IsExpired(entry.expiresAt) {
		c.lru.Remove(tokenHash)
		return Principal{}, false
	}
	return entry.principal, true
}

func (c *TokenCache) Put(tokenHash string, principal Principal, expiresAt time.Time) {
	c.lru.Add(tokenHash, tokenCacheEntry{principal: principal, expiresAt: expiresAt})
}

func (c *TokenCache) Invalidate(tokenHash string) {
	c.lru.Remove(tokenHash)
}
