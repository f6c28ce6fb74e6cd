package configstore

import (
	"context"

	"github.com/easynet-cn/batata/internal/apierr"
)

// ListHistory returns a 1-based page of history records for key, newest
// first.
func (s *Store) ListHistory(ctx context.Context, key Key, page, pageSize int) ([]HistoryRecord, int, error) {
	rows, total, err := s.history.List(ctx, key.Namespace, key.Group, key.DataID, page, pageSize)
	if err != nil {
		return nil, 0, apierr.Internal(err)
	}
	out := make([]HistoryRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, HistoryRecord{
			Key:       key,
			NID:       r.NID,
			Content:   r.Content,
			Type:      r.Type,
			MD5:       r.MD5,
			Op:        HistoryOp(r.Op),
			CreatedAt: r.CreatedAt,
		})
	}
	return out, total, nil
}

// GetHistory returns one history record by nid.
func (s *Store) GetHistory(ctx context.Context, key Key, nid int64) (HistoryRecord, error) {
	r, err := s.history.Get(ctx, key.Namespace, key.Group, key.DataID, nid)
	if err != nil {
		return HistoryRecord{}, err
	}
	return HistoryRecord{
		Key: key, NID: r.NID, Content: r.Content, Type: r.Type, MD5: r.MD5,
		Op: HistoryOp(r.Op), CreatedAt: r.CreatedAt,
	}, nil
}

// RevertTo republishes the content recorded at nid through the normal
// publish path, so the revert itself gets an event and a history record.
// Reverting to a delete record removes the entry.
func (s *Store) RevertTo(ctx context.Context, key Key, nid int64) error {
	rec, err := s.GetHistory(ctx, key, nid)
	if err != nil {
		return err
	}
	if rec.Op == HistoryOpDelete {
		return s.Remove(ctx, key)
	}
	return s.Publish(ctx, key, rec.Content, rec.Type)
}

// PreviousHistory returns the history record immediately before id.
func (s *Store) PreviousHistory(ctx context.Context, key Key, beforeNID int64) (HistoryRecord, error) {
	r, err := s.history.Previous(ctx, key.Namespace, key.Group, key.DataID, beforeNID)
	if err != nil {
		return HistoryRecord{}, err
	}
	return HistoryRecord{
		Key: key, NID: r.NID, Content: r.Content, Type: r.Type, MD5: r.MD5,
		Op: HistoryOp(r.Op), CreatedAt: r.CreatedAt,
	}, nil
}
