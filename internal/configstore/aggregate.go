package configstore

import (
	"context"
	"strings"
	"time"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// PublishAggregate upserts one datum and recomposes the merged entry under
// the same key. The merge function is
// concatenation in stable datumId order.
func (s *Store) PublishAggregate(ctx context.Context, key Key, datumID, content string) error {
	if err := s.aggregates.Upsert(ctx, &models.AggregateDatum{
		Namespace:    key.Namespace,
		Group:        key.Group,
		DataID:       key.DataID,
		DatumID:      datumID,
		Content:      content,
		LastModified: time.Now(),
	}); err != nil {
		return apierr.Internal(err)
	}
	return s.recomposeAggregate(ctx, key)
}

// RemoveAggregate removes one datum and recomposes.
func (s *Store) RemoveAggregate(ctx context.Context, key Key, datumID string) error {
	if err := s.aggregates.Delete(ctx, key.Namespace, key.Group, key.DataID, datumID); err != nil {
		return apierr.Internal(err)
	}
	return s.recomposeAggregate(ctx, key)
}

// ListDatums returns every datum composing key's aggregate.
func (s *Store) ListDatums(ctx context.Context, key Key) ([]Datum, error) {
	rows, err := s.aggregates.List(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		return nil, apierr.Internal(err)
	}
	out := make([]Datum, 0, len(rows))
	for _, r := range rows {
		out = append(out, Datum{Key: key, DatumID: r.DatumID, Content: r.Content, LastModified: r.LastModified})
	}
	return out, nil
}

// CountDatums returns the number of datums composing key's aggregate.
func (s *Store) CountDatums(ctx context.Context, key Key) (int, error) {
	n, err := s.aggregates.Count(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		return 0, apierr.Internal(err)
	}
	return n, nil
}

// recomposeAggregate recomputes the merged entry and publishes it with a
// history record marked as an aggregate merge rather than a plain update.
func (s *Store) recomposeAggregate(ctx context.Context, key Key) error {
	unlock := s.locks.lock(key)
	defer unlock()

	datums, err := s.aggregates.List(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		return apierr.Internal(err)
	}

	byDatumID := make(map[string]string, len(datums))
	for _, d := range datums {
		byDatumID[d.DatumID] = d.Content
	}
	ids := sortedKeys(byDatumID)

	var merged strings.Builder
	for _, id := range ids {
		merged.WriteString(byDatumID[id])
	}
	content := merged.String()
	newMD5 := contentMD5(content)
	now := time.Now()

	prior, err := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID)
	type_ := TypeText
	if err == nil {
		type_ = prior.Type
	} else if apierr.KindOf(err) != apierr.KindNotFound {
		return apierr.Internal(err)
	}

	if err := s.entries.Upsert(ctx, &models.ConfigEntry{
		Namespace:    key.Namespace,
		Group:        key.Group,
		DataID:       key.DataID,
		Content:      content,
		Type:         type_,
		MD5:          newMD5,
		LastModified: now,
	}); err != nil {
		return apierr.Internal(err)
	}

	if err := s.history.Append(ctx, &models.ConfigHistory{
		Namespace: key.Namespace,
		Group:     key.Group,
		DataID:    key.DataID,
		Content:   content,
		Type:      type_,
		MD5:       newMD5,
		Op:        models.HistoryOpAggregateMerge,
		CreatedAt: now,
	}); err != nil {
		return apierr.Internal(err)
	}

	s.notify(key, content, newMD5, false)
	return nil
}
