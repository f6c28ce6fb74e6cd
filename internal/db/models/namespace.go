package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Namespace is the top-level isolation unit; id "public" is the implicit default.
type Namespace struct {
	bun.BaseModel `bun:"table:batata_namespaces,alias:n"`

	ID          string    `bun:",pk"`
	Name        string    `bun:",notnull"`
	Description string    `bun:""`
	CreatedAt   time.Time `bun:",notnull,default:current_timestamp"`
}
