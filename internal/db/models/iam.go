package models

import (
	"time"

	"github.com/uptrace/bun"
)

// User is a local principal: a username with a salted password hash.
type User struct {
	bun.BaseModel `bun:"table:batata_users,alias:u"`

	Username     string    `bun:",pk"`
	PasswordHash string    `bun:",notnull"`
	Enabled      bool      `bun:",notnull,default:true"`
	CreatedAt    time.Time `bun:",notnull,default:current_timestamp"`
	UpdatedAt    time.Time `bun:",notnull,default:current_timestamp"`
}

// Role is a named set of permissions; (role, username) is a many-to-many binding.
type Role struct {
	bun.BaseModel `bun:"table:batata_roles,alias:r"`

	Name      string    `bun:",pk"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp"`
}

// UserRole is a (role, username) grant.
type UserRole struct {
	bun.BaseModel `bun:"table:batata_user_roles,alias:ur"`

	Username string `bun:",pk"`
	Role     string `bun:",pk"`
}

// Permission is a (role, resource, action) triple. Resource is the three-part
// glob pattern "namespace:group:dataId"; action is one of r, w, rw.
type Permission struct {
	bun.BaseModel `bun:"table:batata_permissions,alias:p"`

	ID       int64  `bun:",pk,autoincrement"`
	Role     string `bun:",notnull"`
	Resource string `bun:",notnull"`
	Action   string `bun:",notnull"`
}

// AccessToken is the durable record of an issued bearer token, keyed by its
// hash so the plaintext wire value is never stored.
type AccessToken struct {
	bun.BaseModel `bun:"table:batata_access_tokens,alias:at"`

	TokenHash string    `bun:",pk"`
	Username  string    `bun:",notnull"`
	IssuedAt  time.Time `bun:",notnull,default:current_timestamp"`
	ExpiresAt time.Time `bun:",notnull"`
}
