package memory

import (
	"context"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

type TokenRepository struct{ s *Store }

func (r *TokenRepository) Create(_ context.Context, t *models.AccessToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.tokens == nil {
		r.s.tokens = map[string]*models.AccessToken{}
	}
	cp := *t
	r.s.tokens[t.TokenHash] = &cp
	return nil
}

func (r *TokenRepository) Get(_ context.Context, tokenHash string) (*models.AccessToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, apierr.Unauthenticated("unknown token")
	}
	cp := *t
	return &cp, nil
}

func (r *TokenRepository) Delete(_ context.Context, tokenHash string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.tokens, tokenHash)
	return nil
}

func (r *TokenRepository) DeleteForUser(_ context.Context, username string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for hash, t := range r.s.tokens {
		if t.Username == username {
			delete(r.s.tokens, hash)
		}
	}
	return nil
}
