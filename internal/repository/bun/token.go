package bun

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// TokenRepository is a bun-backed repository.TokenRepository.
type TokenRepository struct {
	db *bun.DB
}

func NewTokenRepository(db *bun.DB) *TokenRepository { return &TokenRepository{db: db} }

func (r *TokenRepository) Create(ctx context.Context, t *models.AccessToken) error {
	_, err := r.db.NewInsert().Model(t).Exec(ctx)
	return err
}

func (r *TokenRepository) Get(ctx context.Context, tokenHash string) (*models.AccessToken, error) {
	t := new(models.AccessToken)
	err := r.db.NewSelect().Model(t).Where("token_hash = ?", tokenHash).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Unauthenticated("unknown token")
	}
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (r *TokenRepository) Delete(ctx context.Context, tokenHash string) error {
	_, err := r.db.NewDelete().Model((*models.AccessToken)(nil)).Where("token_hash = ?", tokenHash).Exec(ctx)
	return err
}

func (r *TokenRepository) DeleteForUser(ctx context.Context, username string) error {
	_, err := r.db.NewDelete().Model((*models.AccessToken)(nil)).Where("username = ?", username).Exec(ctx)
	return err
}
