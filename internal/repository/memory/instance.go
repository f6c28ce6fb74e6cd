package memory

import (
	"context"
	"fmt"

	"github.com/easynet-cn/batata/internal/db/models"
)

type InstanceRepository struct{ s *Store }

func instanceKey(namespace, group, service, cluster, ip string, port int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%s:%d", namespace, group, service, cluster, ip, port)
}

func (r *InstanceRepository) Upsert(_ context.Context, i *models.PersistentInstance) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *i
	r.s.instances[instanceKey(i.Namespace, i.Group, i.Service, i.Cluster, i.IP, i.Port)] = &cp
	return nil
}

func (r *InstanceRepository) Delete(_ context.Context, namespace, group, service, cluster, ip string, port int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.instances, instanceKey(namespace, group, service, cluster, ip, port))
	return nil
}

func (r *InstanceRepository) ListAll(_ context.Context) ([]*models.PersistentInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]*models.PersistentInstance, 0, len(r.s.instances))
	for _, i := range r.s.instances {
		cp := *i
		out = append(out, &cp)
	}
	return out, nil
}

func (r *InstanceRepository) List(_ context.Context, namespace, group, service string) ([]*models.PersistentInstance, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.PersistentInstance
	for _, i := range r.s.instances {
		if i.Namespace == namespace && i.Group == group && i.Service == service {
			cp := *i
			out = append(out, &cp)
		}
	}
	return out, nil
}
