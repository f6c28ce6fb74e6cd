package configstore

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
	"github.com/easynet-cn/batata/internal/repository"
)

// Notifier receives onChange after every successful publish or remove,
// carrying the new content (or the delete sentinel) and its md5. The notify bus implements this.
type Notifier interface {
	OnChange(key Key, content, md5 string, deleted bool)
}

// keyMutex provides per-(namespace,group,dataId) serialization so a publish
// race linearizes instead of interleaving the read-modify-write against the
// repository and history append.
type keyMutex struct {
	mu sync.Mutex
	m  map[Key]*sync.Mutex
}

func newKeyMutex() *keyMutex {
	return &keyMutex{m: make(map[Key]*sync.Mutex)}
}

func (k *keyMutex) lock(key Key) func() {
	k.mu.Lock()
	l, ok := k.m[key]
	if !ok {
		l = &sync.Mutex{}
		k.m[key] = l
	}
	k.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Store implements publish/get/remove and the gray and aggregate
// sub-operations over a durable repository set.
type Store struct {
	entries    repository.ConfigRepository
	gray       repository.GrayRepository
	aggregates repository.AggregateRepository
	history    repository.HistoryRepository

	notifier Notifier
	locks    *keyMutex
}

// NewStore builds a Store. notifier may be nil in tests that don't check
// notification fan-out.
func NewStore(entries repository.ConfigRepository, gray repository.GrayRepository, aggregates repository.AggregateRepository, history repository.HistoryRepository, notifier Notifier) *Store {
	return &Store{
		entries:    entries,
		gray:       gray,
		aggregates: aggregates,
		history:    history,
		notifier:   notifier,
		locks:      newKeyMutex(),
	}
}

func contentMD5(content string) string {
	sum := md5.Sum([]byte(content))
	return hex.EncodeToString(sum[:])
}

// MaxContentBytes bounds a config entry's UTF-8 content.
const MaxContentBytes = 10 << 20

// Publish writes or replaces a config entry, recording history and emitting
// exactly one change event. type_ defaults to the
// prior entry's type, or TypeText for a brand-new entry.
func (s *Store) Publish(ctx context.Context, key Key, content, type_ string) error {
	if len(content) > MaxContentBytes {
		return apierr.ResourceExhausted("config content exceeds %d bytes", MaxContentBytes)
	}

	unlock := s.locks.lock(key)
	defer unlock()

	prior, err := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID)
	var op models.HistoryOp
	if err == nil {
		op = models.HistoryOpUpdate
		if type_ == "" {
			type_ = prior.Type
		}
	} else if apierr.KindOf(err) == apierr.KindNotFound {
		op = models.HistoryOpInsert
	} else {
		return apierr.Internal(err)
	}
	if type_ == "" {
		type_ = TypeText
	}

	newMD5 := contentMD5(content)
	now := time.Now()

	// Deadline check before the commit point: an expired request commits
	// nothing rather than half of entry+history.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return apierr.DeadlineExceeded("publish aborted: %v", ctxErr)
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
		Op:        op,
		CreatedAt: now,
	}); err != nil {
		return apierr.Internal(err)
	}

	s.notify(key, content, newMD5, false)
	return nil
}

// Get resolves a config read, applying gray visibility when clientIP
// matches a gray entry's IP list.
func (s *Store) Get(ctx context.Context, key Key, clientIP string) (Entry, error) {
	if clientIP != "" {
		g, err := s.gray.Get(ctx, key.Namespace, key.Group, key.DataID)
		if err == nil && ipListContains(splitIPList(g.IPList), clientIP) {
			return Entry{
				Key:          key,
				Content:      g.Content,
				Type:         TypeText,
				MD5:          contentMD5(g.Content),
				LastModified: g.LastModified,
			}, nil
		}
	}

	e, err := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return Entry{}, err
		}
		return Entry{}, apierr.Internal(err)
	}
	return Entry{
		Key:              key,
		Content:          e.Content,
		Type:             e.Type,
		MD5:              e.MD5,
		EncryptedDataKey: e.EncryptedDataKey,
		LastModified:     e.LastModified,
	}, nil
}

// ListEntries returns a 1-based page of base config entries within a
// namespace (optionally restricted to group), ordered by dataId. Used by
// the admin config-search endpoints and by the namespace-delete guard,
// which rejects deleting a namespace that still contains services or
// configs.
func (s *Store) ListEntries(ctx context.Context, namespace, group string, page, pageSize int) ([]Entry, int, error) {
	rows, total, err := s.entries.List(ctx, namespace, group, page, pageSize)
	if err != nil {
		return nil, 0, apierr.Internal(err)
	}
	out := make([]Entry, 0, len(rows))
	for _, e := range rows {
		out = append(out, Entry{
			Key:              Key{Namespace: e.Namespace, Group: e.Group, DataID: e.DataID},
			Content:          e.Content,
			Type:             e.Type,
			MD5:              e.MD5,
			EncryptedDataKey: e.EncryptedDataKey,
			LastModified:     e.LastModified,
		})
	}
	return out, total, nil
}

// Remove deletes a config entry, recording a delete history record and
// emitting a delete change event.
func (s *Store) Remove(ctx context.Context, key Key) error {
	unlock := s.locks.lock(key)
	defer unlock()

	e, err := s.entries.Get(ctx, key.Namespace, key.Group, key.DataID)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return nil
		}
		return apierr.Internal(err)
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return apierr.DeadlineExceeded("remove aborted: %v", ctxErr)
	}

	if err := s.history.Append(ctx, &models.ConfigHistory{
		Namespace: key.Namespace,
		Group:     key.Group,
		DataID:    key.DataID,
		Content:   e.Content,
		Type:      e.Type,
		MD5:       e.MD5,
		Op:        models.HistoryOpDelete,
		CreatedAt: time.Now(),
	}); err != nil {
		return apierr.Internal(err)
	}

	if err := s.entries.Delete(ctx, key.Namespace, key.Group, key.DataID); err != nil {
		return apierr.Internal(err)
	}

	s.notify(key, "", "", true)
	return nil
}

func (s *Store) notify(key Key, content, md5 string, deleted bool) {
	if s.notifier != nil {
		s.notifier.OnChange(key, content, md5, deleted)
	}
}

func ipListContains(ipList []string, clientIP string) bool {
	for _, ip := range ipList {
		if ip == clientIP {
			return true
		}
	}
	return false
}

func splitIPList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinIPList(list []string) string {
	return strings.Join(list, ",")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
