package bun

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// ConfigRepository is a bun-backed repository.ConfigRepository.
type ConfigRepository struct {
	db *bun.DB
}

func NewConfigRepository(db *bun.DB) *ConfigRepository { return &ConfigRepository{db: db} }

func (r *ConfigRepository) Get(ctx context.Context, namespace, group, dataID string) (*models.ConfigEntry, error) {
	e := new(models.ConfigEntry)
	err := r.db.NewSelect().Model(e).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("config %s:%s:%s", namespace, group, dataID)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *ConfigRepository) Upsert(ctx context.Context, e *models.ConfigEntry) error {
	_, err := r.db.NewInsert().Model(e).
		On("CONFLICT (namespace, \"group\", data_id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("type = EXCLUDED.type").
		Set("md5 = EXCLUDED.md5").
		Set("encrypted_data_key = EXCLUDED.encrypted_data_key").
		Set("last_modified = EXCLUDED.last_modified").
		Exec(ctx)
	return err
}

func (r *ConfigRepository) Delete(ctx context.Context, namespace, group, dataID string) error {
	_, err := r.db.NewDelete().Model((*models.ConfigEntry)(nil)).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).Exec(ctx)
	return err
}

func (r *ConfigRepository) List(ctx context.Context, namespace, group string, page, pageSize int) ([]*models.ConfigEntry, int, error) {
	var out []*models.ConfigEntry
	q := r.db.NewSelect().Model(&out).Where("namespace = ?", namespace).OrderExpr("data_id ASC")
	if group != "" {
		q = q.Where("\"group\" = ?", group)
	}
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

// GrayRepository is a bun-backed repository.GrayRepository.
type GrayRepository struct {
	db *bun.DB
}

func NewGrayRepository(db *bun.DB) *GrayRepository { return &GrayRepository{db: db} }

func (r *GrayRepository) Get(ctx context.Context, namespace, group, dataID string) (*models.GrayEntry, error) {
	e := new(models.GrayEntry)
	err := r.db.NewSelect().Model(e).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("gray entry %s:%s:%s", namespace, group, dataID)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *GrayRepository) Upsert(ctx context.Context, e *models.GrayEntry) error {
	_, err := r.db.NewInsert().Model(e).
		On("CONFLICT (namespace, \"group\", data_id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("ip_list = EXCLUDED.ip_list").
		Set("last_modified = EXCLUDED.last_modified").
		Exec(ctx)
	return err
}

func (r *GrayRepository) Delete(ctx context.Context, namespace, group, dataID string) error {
	_, err := r.db.NewDelete().Model((*models.GrayEntry)(nil)).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).Exec(ctx)
	return err
}

// AggregateRepository is a bun-backed repository.AggregateRepository.
type AggregateRepository struct {
	db *bun.DB
}

func NewAggregateRepository(db *bun.DB) *AggregateRepository { return &AggregateRepository{db: db} }

func (r *AggregateRepository) Upsert(ctx context.Context, d *models.AggregateDatum) error {
	_, err := r.db.NewInsert().Model(d).
		On("CONFLICT (namespace, \"group\", data_id, datum_id) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("last_modified = EXCLUDED.last_modified").
		Exec(ctx)
	return err
}

func (r *AggregateRepository) Delete(ctx context.Context, namespace, group, dataID, datumID string) error {
	_, err := r.db.NewDelete().Model((*models.AggregateDatum)(nil)).
		Where("namespace = ? AND \"group\" = ? AND data_id = ? AND datum_id = ?", namespace, group, dataID, datumID).
		Exec(ctx)
	return err
}

func (r *AggregateRepository) List(ctx context.Context, namespace, group, dataID string) ([]*models.AggregateDatum, error) {
	var out []*models.AggregateDatum
	err := r.db.NewSelect().Model(&out).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).
		OrderExpr("datum_id ASC").Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *AggregateRepository) Count(ctx context.Context, namespace, group, dataID string) (int, error) {
	return r.db.NewSelect().Model((*models.AggregateDatum)(nil)).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).Count(ctx)
}

// HistoryRepository is a bun-backed repository.HistoryRepository.
type HistoryRepository struct {
	db *bun.DB
}

func NewHistoryRepository(db *bun.DB) *HistoryRepository { return &HistoryRepository{db: db} }

func (r *HistoryRepository) Append(ctx context.Context, h *models.ConfigHistory) error {
	_, err := r.db.NewInsert().Model(h).Exec(ctx)
	return err
}

func (r *HistoryRepository) List(ctx context.Context, namespace, group, dataID string, page, pageSize int) ([]*models.ConfigHistory, int, error) {
	var out []*models.ConfigHistory
	q := r.db.NewSelect().Model(&out).
		Where("namespace = ? AND \"group\" = ? AND data_id = ?", namespace, group, dataID).
		OrderExpr("nid DESC")
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

func (r *HistoryRepository) Get(ctx context.Context, namespace, group, dataID string, nid int64) (*models.ConfigHistory, error) {
	h := new(models.ConfigHistory)
	err := r.db.NewSelect().Model(h).
		Where("namespace = ? AND \"group\" = ? AND data_id = ? AND nid = ?", namespace, group, dataID, nid).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("history %s:%s:%s#%d", namespace, group, dataID, nid)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

func (r *HistoryRepository) Previous(ctx context.Context, namespace, group, dataID string, beforeNID int64) (*models.ConfigHistory, error) {
	h := new(models.ConfigHistory)
	err := r.db.NewSelect().Model(h).
		Where("namespace = ? AND \"group\" = ? AND data_id = ? AND nid < ?", namespace, group, dataID, beforeNID).
		OrderExpr("nid DESC").Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("no history before nid %d for %s:%s:%s", beforeNID, namespace, group, dataID)
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}

// InstanceRepository is a bun-backed repository.InstanceRepository.
type InstanceRepository struct {
	db *bun.DB
}

func NewInstanceRepository(db *bun.DB) *InstanceRepository { return &InstanceRepository{db: db} }

func (r *InstanceRepository) Upsert(ctx context.Context, i *models.PersistentInstance) error {
	_, err := r.db.NewInsert().Model(i).
		On("CONFLICT (namespace, \"group\", service, cluster, ip, port) DO UPDATE").
		Set("weight = EXCLUDED.weight").
		Set("healthy = EXCLUDED.healthy").
		Set("enabled = EXCLUDED.enabled").
		Set("metadata = EXCLUDED.metadata").
		Set("instance_id = EXCLUDED.instance_id").
		Exec(ctx)
	return err
}

func (r *InstanceRepository) Delete(ctx context.Context, namespace, group, service, cluster, ip string, port int) error {
	_, err := r.db.NewDelete().Model((*models.PersistentInstance)(nil)).
		Where("namespace = ? AND \"group\" = ? AND service = ? AND cluster = ? AND ip = ? AND port = ?",
			namespace, group, service, cluster, ip, port).Exec(ctx)
	return err
}

func (r *InstanceRepository) ListAll(ctx context.Context) ([]*models.PersistentInstance, error) {
	var out []*models.PersistentInstance
	if err := r.db.NewSelect().Model(&out).Scan(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *InstanceRepository) List(ctx context.Context, namespace, group, service string) ([]*models.PersistentInstance, error) {
	var out []*models.PersistentInstance
	err := r.db.NewSelect().Model(&out).
		Where("namespace = ? AND \"group\" = ? AND service = ?", namespace, group, service).Scan(ctx)
	if err != nil {
		return nil, err
	}
	return out, nil
}
