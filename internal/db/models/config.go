package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ConfigEntry is the durable row for a published (namespace, group, dataId) config.
type ConfigEntry struct {
	bun.BaseModel `bun:"table:batata_config_entries,alias:ce"`

	Namespace        string    `bun:",pk"`
	Group            string    `bun:",pk"`
	DataID           string    `bun:",pk"`
	Content          string    `bun:",notnull"`
	Type             string    `bun:",notnull,default:'text'"`
	MD5              string    `bun:",notnull"`
	EncryptedDataKey string    `bun:""`
	LastModified     time.Time `bun:",notnull,default:current_timestamp"`
}

// GrayEntry is the beta/gray shadow of a base ConfigEntry.
type GrayEntry struct {
	bun.BaseModel `bun:"table:batata_config_gray_entries,alias:cg"`

	Namespace    string    `bun:",pk"`
	Group        string    `bun:",pk"`
	DataID       string    `bun:",pk"`
	Content      string    `bun:",notnull"`
	IPList       string    `bun:",notnull"` // comma-separated
	LastModified time.Time `bun:",notnull,default:current_timestamp"`
}

// AggregateDatum is one unit of an aggregate config composed under a shared key.
type AggregateDatum struct {
	bun.BaseModel `bun:"table:batata_config_aggregate_datums,alias:ad"`

	Namespace    string    `bun:",pk"`
	Group        string    `bun:",pk"`
	DataID       string    `bun:",pk"`
	DatumID      string    `bun:",pk"`
	Content      string    `bun:",notnull"`
	LastModified time.Time `bun:",notnull,default:current_timestamp"`
}

// HistoryOp is the operation kind recorded for a config history entry.
type HistoryOp string

const (
	HistoryOpInsert         HistoryOp = "I"
	HistoryOpUpdate         HistoryOp = "U"
	HistoryOpDelete         HistoryOp = "D"
	HistoryOpAggregateMerge HistoryOp = "M"
)

// ConfigHistory is an append-only record addressed by (namespace, group,
// dataId, nid), where nid is database-assigned and monotonic. Its table is
// created by hand-written per-dialect DDL in internal/migrations rather than
// from these tags.
type ConfigHistory struct {
	bun.BaseModel `bun:"table:batata_config_history,alias:ch"`

	NID       int64     `bun:",pk,autoincrement"`
	Namespace string    `bun:",notnull"`
	Group     string    `bun:",notnull"`
	DataID    string    `bun:",notnull"`
	Content   string    `bun:",notnull"`
	Type      string    `bun:",notnull"`
	MD5       string    `bun:",notnull"`
	Op        HistoryOp `bun:",notnull"`
	CreatedAt time.Time `bun:",notnull,default:current_timestamp"`
}

// PersistentInstance backs a non-ephemeral service instance, whose lifetime
// is independent of any session.
type PersistentInstance struct {
	bun.BaseModel `bun:"table:batata_registry_instances,alias:ri"`

	Namespace  string            `bun:",pk"`
	Group      string            `bun:",pk"`
	Service    string            `bun:",pk"`
	Cluster    string            `bun:",pk,default:'DEFAULT'"`
	IP         string            `bun:",pk"`
	Port       int               `bun:",pk"`
	InstanceID string            `bun:""`
	Weight     float64           `bun:",notnull,default:1"`
	Healthy    bool              `bun:",notnull,default:true"`
	Enabled    bool              `bun:",notnull,default:true"`
	Metadata   map[string]string `bun:",notnull"`
}
