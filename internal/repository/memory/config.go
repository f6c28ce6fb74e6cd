package memory

import (
	"context"
	"sort"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

type ConfigRepository struct{ s *Store }

func (r *ConfigRepository) Get(_ context.Context, namespace, group, dataID string) (*models.ConfigEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.config[configKey{namespace, group, dataID}]
	if !ok {
		return nil, apierr.NotFound("config %s:%s:%s", namespace, group, dataID)
	}
	cp := *e
	return &cp, nil
}

func (r *ConfigRepository) Upsert(_ context.Context, e *models.ConfigEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.config[configKey{e.Namespace, e.Group, e.DataID}] = &cp
	return nil
}

func (r *ConfigRepository) Delete(_ context.Context, namespace, group, dataID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.config, configKey{namespace, group, dataID})
	return nil
}

func (r *ConfigRepository) List(_ context.Context, namespace, group string, page, pageSize int) ([]*models.ConfigEntry, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.ConfigEntry
	for k, e := range r.s.config {
		if k.namespace != namespace {
			continue
		}
		if group != "" && k.group != group {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DataID < out[j].DataID })
	total := len(out)
	return paginate(out, page, pageSize), total, nil
}

type GrayRepository struct{ s *Store }

func (r *GrayRepository) Get(_ context.Context, namespace, group, dataID string) (*models.GrayEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.gray[configKey{namespace, group, dataID}]
	if !ok {
		return nil, apierr.NotFound("gray entry %s:%s:%s", namespace, group, dataID)
	}
	cp := *e
	return &cp, nil
}

func (r *GrayRepository) Upsert(_ context.Context, e *models.GrayEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cp := *e
	r.s.gray[configKey{e.Namespace, e.Group, e.DataID}] = &cp
	return nil
}

func (r *GrayRepository) Delete(_ context.Context, namespace, group, dataID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.gray, configKey{namespace, group, dataID})
	return nil
}

type AggregateRepository struct{ s *Store }

func (r *AggregateRepository) Upsert(_ context.Context, d *models.AggregateDatum) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := configKey{d.Namespace, d.Group, d.DataID}
	if r.s.aggr[k] == nil {
		r.s.aggr[k] = map[string]*models.AggregateDatum{}
	}
	cp := *d
	r.s.aggr[k][d.DatumID] = &cp
	return nil
}

func (r *AggregateRepository) Delete(_ context.Context, namespace, group, dataID, datumID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.aggr[configKey{namespace, group, dataID}], datumID)
	return nil
}

func (r *AggregateRepository) List(_ context.Context, namespace, group, dataID string) ([]*models.AggregateDatum, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*models.AggregateDatum
	for _, d := range r.s.aggr[configKey{namespace, group, dataID}] {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DatumID < out[j].DatumID })
	return out, nil
}

func (r *AggregateRepository) Count(_ context.Context, namespace, group, dataID string) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return len(r.s.aggr[configKey{namespace, group, dataID}]), nil
}

type HistoryRepository struct{ s *Store }

func (r *HistoryRepository) Append(_ context.Context, h *models.ConfigHistory) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	k := configKey{h.Namespace, h.Group, h.DataID}
	r.s.nidSeq[k]++
	cp := *h
	cp.NID = r.s.nidSeq[k]
	r.s.history[k] = append(r.s.history[k], &cp)
	return nil
}

func (r *HistoryRepository) List(_ context.Context, namespace, group, dataID string, page, pageSize int) ([]*models.ConfigHistory, int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.history[configKey{namespace, group, dataID}]
	out := make([]*models.ConfigHistory, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		cp := *all[len(all)-1-i]
		out[i] = &cp
	}
	total := len(out)
	return paginate(out, page, pageSize), total, nil
}

func (r *HistoryRepository) Get(_ context.Context, namespace, group, dataID string, nid int64) (*models.ConfigHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, h := range r.s.history[configKey{namespace, group, dataID}] {
		if h.NID == nid {
			cp := *h
			return &cp, nil
		}
	}
	return nil, apierr.NotFound("history %s:%s:%s#%d", namespace, group, dataID, nid)
}

func (r *HistoryRepository) Previous(_ context.Context, namespace, group, dataID string, beforeNID int64) (*models.ConfigHistory, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := r.s.history[configKey{namespace, group, dataID}]
	var best *models.ConfigHistory
	for _, h := range all {
		if h.NID < beforeNID && (best == nil || h.NID > best.NID) {
			best = h
		}
	}
	if best == nil {
		return nil, apierr.NotFound("no history before nid %d for %s:%s:%s", beforeNID, namespace, group, dataID)
	}
	cp := *best
	return &cp, nil
}
