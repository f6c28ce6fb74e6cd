package memory

import (
	"context"
	"sort"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

type NamespaceRepository struct{ s *Store }

func (r *NamespaceRepository) Get(_ context.Context, id string) (*models.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	ns, ok := r.s.namespaces[id]
	if !ok {
		return nil, apierr.NotFound("namespace %q", id)
	}
	cp := *ns
	return &cp, nil
}

func (r *NamespaceRepository) List(_ context.Context) ([]*models.Namespace, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.Namespace, 0, len(r.s.namespaces))
	for _, ns := range r.s.namespaces {
		cp := *ns
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *NamespaceRepository) Create(_ context.Context, ns *models.Namespace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.namespaces[ns.ID]; ok {
		return apierr.AlreadyExists("namespace %q", ns.ID)
	}
	cp := *ns
	r.s.namespaces[ns.ID] = &cp
	return nil
}

func (r *NamespaceRepository) Update(_ context.Context, ns *models.Namespace) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.namespaces[ns.ID]; !ok {
		return apierr.NotFound("namespace %q", ns.ID)
	}
	cp := *ns
	r.s.namespaces[ns.ID] = &cp
	return nil
}

func (r *NamespaceRepository) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.namespaces, id)
	return nil
}
