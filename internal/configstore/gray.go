package configstore

import (
	"context"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// PublishBeta creates or replaces the gray shadow of an existing base entry.
func (s *Store) PublishBeta(ctx context.Context, key Key, content string, ipList []string) error {
	if _, err := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID); err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return apierr.NotFound("base config %s/%s/%s does not exist", key.Namespace, key.Group, key.DataID)
		}
		return apierr.Internal(err)
	}

	return wrapInternal(s.gray.Upsert(ctx, &models.GrayEntry{
		Namespace: key.Namespace,
		Group:     key.Group,
		DataID:    key.DataID,
		Content:   content,
		IPList:    joinIPList(ipList),
	}))
}

// QueryBeta returns the current gray shadow, if any.
func (s *Store) QueryBeta(ctx context.Context, key Key) (GrayEntry, error) {
	g, err := s.gray.Get(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		return GrayEntry{}, err
	}
	return GrayEntry{
		Key:          key,
		Content:      g.Content,
		IPList:       splitIPList(g.IPList),
		LastModified: g.LastModified,
	}, nil
}

// RemoveBeta deletes the gray shadow. A targeted delete of a gray entry
// that doesn't exist is a failure, unlike base-entry removal.
func (s *Store) RemoveBeta(ctx context.Context, key Key) error {
	if _, err := s.gray.Get(ctx, key.Namespace, key.Group, key.DataID); err != nil {
		return err
	}
	return wrapInternal(s.gray.Delete(ctx, key.Namespace, key.Group, key.DataID))
}

// GrayContentFor reports the content a listener at clientIP should see for
// key, and whether that content came from the gray shadow rather than the
// base entry. Used by the notify bus's
// GrayResolver when rewriting an in-flight change notification.
func (s *Store) GrayContentFor(ctx context.Context, key Key, clientIP string) (content, md5Sum string, isGray bool) {
	if clientIP == "" {
		return "", "", false
	}
	g, err := s.gray.Get(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil || !ipListContains(splitIPList(g.IPList), clientIP) {
		return "", "", false
	}
	return g.Content, contentMD5(g.Content), true
}

func wrapInternal(err error) error {
	if err == nil {
		return nil
	}
	if apierr.KindOf(err) != apierr.KindInternal {
		return err
	}
	return apierr.Internal(err)
}
