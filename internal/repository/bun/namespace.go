// Package bun adapts the repository interfaces onto uptrace/bun, backing the
// pluggable persistent KV the core's in-memory components never import
// directly.
package bun

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// NamespaceRepository is a bun-backed repository.NamespaceRepository.
type NamespaceRepository struct {
	db *bun.DB
}

func NewNamespaceRepository(db *bun.DB) *NamespaceRepository {
	return &NamespaceRepository{db: db}
}

func (r *NamespaceRepository) Get(ctx context.Context, id string) (*models.Namespace, error) {
	ns := new(models.Namespace)
	err := r.db.NewSelect().Model(ns).Where("id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.NotFound("namespace %q", id)
	}
	if err != nil {
		return nil, err
	}
	return ns, nil
}

func (r *NamespaceRepository) List(ctx context.Context) ([]*models.Namespace, error) {
	var out []*models.Namespace
	if err := r.db.NewSelect().Model(&out).OrderExpr("id ASC").Scan(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *NamespaceRepository) Create(ctx context.Context, ns *models.Namespace) error {
	exists, err := r.db.NewSelect().Model((*models.Namespace)(nil)).Where("id = ?", ns.ID).Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return apierr.AlreadyExists("namespace %q", ns.ID)
	}
	_, err = r.db.NewInsert().Model(ns).Exec(ctx)
	return err
}

func (r *NamespaceRepository) Update(ctx context.Context, ns *models.Namespace) error {
	res, err := r.db.NewUpdate().Model(ns).WherePK().Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("namespace %q", ns.ID)
	}
	return nil
}

func (r *NamespaceRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.NewDelete().Model((*models.Namespace)(nil)).Where("id = ?", id).Exec(ctx)
	return err
}
