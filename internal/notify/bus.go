// Package notify implements Component F: the config-change notify bus
// driving Nacos-style long-poll convergence for config listeners.
package notify

import (
	"context"
	"sync"
)

// Fingerprint is a listener's claimed knowledge of a config entry's
// content, used to detect staleness on listen.
type Fingerprint struct {
	Namespace string
	Group     string
	DataID    string
	MD5       string
}

func (f Fingerprint) key() configKey {
	return configKey{f.Namespace, f.Group, f.DataID}
}

type configKey struct {
	namespace, group, dataID string
}

// GrayResolver answers whether a given session should see a config's gray
// content instead of its base content, keeping onChange's gray visibility
// decision out of this package's core state.
type GrayResolver interface {
	ResolveForSession(ctx context.Context, sessionID, namespace, group, dataID string) (content, md5 string, isGray bool)
}

// Pusher enqueues a notification frame onto a session's outbound channel.
type Pusher interface {
	TryPush(sessionID string, frame any) bool
}

// ChangeNotification is the frame pushed to a listener on change. A deleted entry carries Deleted=true and an empty
// Content/MD5.
type ChangeNotification struct {
	Namespace string
	Group     string
	DataID    string
	Content   string
	MD5       string
	Deleted   bool
}

type listener struct {
	sessionID string
	knownMD5  string
}

// Bus holds, per config key, the set of registered listeners, each guarded by its own mutex so listen/onChange on different
// keys never contend.
type Bus struct {
	mu        sync.RWMutex
	listeners map[configKey]*keyListeners

	gray   GrayResolver
	pusher Pusher
}

type keyListeners struct {
	mu   sync.Mutex
	byID map[string]*listener
}

// NewBus builds an empty notify bus. gray and pusher may be nil in tests
// that only check base-content convergence.
func NewBus(gray GrayResolver, pusher Pusher) *Bus {
	return &Bus{listeners: make(map[configKey]*keyListeners), gray: gray, pusher: pusher}
}

func (b *Bus) listenersFor(k configKey, createIfAbsent bool) *keyListeners {
	b.mu.RLock()
	kl, ok := b.listeners[k]
	b.mu.RUnlock()
	if ok {
		return kl
	}
	if !createIfAbsent {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if kl, ok := b.listeners[k]; ok {
		return kl
	}
	kl = &keyListeners{byID: make(map[string]*listener)}
	b.listeners[k] = kl
	return kl
}

// currentFn is supplied by the caller (normally the config store) to
// resolve a fingerprint's up-to-date md5; kept as a function argument on
// Listen rather than a stored dependency so the bus has no import-cycle
// back onto configstore.
type currentFn func(namespace, group, dataID string) (md5 string, found bool)

// Listen registers sessionID against every fingerprint and returns the
// subset whose claimed md5 is already stale, for immediate convergence.
// A stale fingerprint is still registered at its (stale) claimed md5,
// since the very next onChange corrects it.
func (b *Bus) Listen(sessionID string, fingerprints []Fingerprint, current currentFn) []Fingerprint {
	var changed []Fingerprint
	for _, fp := range fingerprints {
		kl := b.listenersFor(fp.key(), true)
		kl.mu.Lock()
		kl.byID[sessionID] = &listener{sessionID: sessionID, knownMD5: fp.MD5}
		kl.mu.Unlock()

		if current != nil {
			if actualMD5, found := current(fp.Namespace, fp.Group, fp.DataID); !found || actualMD5 != fp.MD5 {
				changed = append(changed, fp)
			}
		}
	}
	return changed
}

// Unlisten removes sessionID from the listeners of one config key.
func (b *Bus) Unlisten(ctx context.Context, sessionID, namespace, group, dataID string) {
	kl := b.listenersFor(configKey{namespace, group, dataID}, false)
	if kl == nil {
		return
	}
	kl.mu.Lock()
	delete(kl.byID, sessionID)
	kl.mu.Unlock()
}

// OnChange pushes a notification to every registered listener whose
// knownMD5 differs from newMD5, then advances that listener's knownMD5.
// deleted signals the remove sentinel.
func (b *Bus) OnChange(ctx context.Context, namespace, group, dataID, content, md5 string, deleted bool) {
	k := configKey{namespace, group, dataID}
	kl := b.listenersFor(k, false)
	if kl == nil {
		return
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()
	for _, l := range kl.byID {
		if l.knownMD5 == md5 && !deleted {
			continue
		}

		frame := ChangeNotification{Namespace: namespace, Group: group, DataID: dataID, Content: content, MD5: md5, Deleted: deleted}
		if b.gray != nil {
			if grayContent, grayMD5, isGray := b.gray.ResolveForSession(ctx, l.sessionID, namespace, group, dataID); isGray {
				frame.Content, frame.MD5 = grayContent, grayMD5
			}
		}

		if b.pusher != nil {
			b.pusher.TryPush(l.sessionID, frame)
		}
		l.knownMD5 = md5
	}
}

// ListenerCount reports the number of registered listeners for a key, for
// diagnostics and tests.
func (b *Bus) ListenerCount(namespace, group, dataID string) int {
	kl := b.listenersFor(configKey{namespace, group, dataID}, false)
	if kl == nil {
		return 0
	}
	kl.mu.Lock()
	defer kl.mu.Unlock()
	return len(kl.byID)
}
