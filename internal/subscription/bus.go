// Package subscription implements Component D: the service-change
// subscription bus, fanning registry mutations out to subscribed sessions.
package subscription

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/easynet-cn/batata/internal/registry"
	"github.com/easynet-cn/batata/internal/session"
)

// Pusher is the narrow slice of *session.Session the bus needs: a
// non-blocking enqueue onto the session's outbound channel. Kept as an
// interface so tests can substitute a recorder.
type Pusher interface {
	TryPush(frame any) bool
}

// sessionPusher adapts *session.Session to Pusher with the non-blocking,
// coalescing send the bus requires. Delegating to the session keeps the
// closed-state check under the session's own lock.
type sessionPusher struct {
	sess *session.Session
}

func (p sessionPusher) TryPush(frame any) bool {
	return p.sess.TryPush(frame)
}

// NewSessionPusher wraps a live session as a Pusher.
func NewSessionPusher(sess *session.Session) Pusher {
	return sessionPusher{sess: sess}
}

type subscriber struct {
	sessionID     string
	clusterFilter string
	pusher        Pusher
	lastRevision  uint64
	lastChecksum  string
}

func subKey(sessionID, clusterFilter string) string {
	return sessionID + "\x00" + clusterFilter
}

// Bus holds, per service key, the set of subscribed sessions. Each service's subscriber set is guarded by its own mutex so
// publishes to different services never contend.
type Bus struct {
	mu   sync.RWMutex
	subs map[registry.Key]*serviceSubs

	gate func() bool
}

type serviceSubs struct {
	mu          sync.Mutex
	subscribers map[string]*subscriber
}

// NewBus builds an empty subscription bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[registry.Key]*serviceSubs)}
}

// SetPushGate installs the operator push switch: when gate returns false,
// Publish fans nothing out (subscribers converge on the next enabled
// publish). Called once at wiring time, before traffic.
func (b *Bus) SetPushGate(gate func() bool) {
	b.gate = gate
}

func (b *Bus) subsFor(k registry.Key, createIfAbsent bool) *serviceSubs {
	b.mu.RLock()
	ss, ok := b.subs[k]
	b.mu.RUnlock()
	if ok {
		return ss
	}
	if !createIfAbsent {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if ss, ok := b.subs[k]; ok {
		return ss
	}
	ss = &serviceSubs{subscribers: make(map[string]*subscriber)}
	b.subs[k] = ss
	return ss
}

// Subscribe registers a subscriber and immediately enqueues snap as its
// first push. Subscribing the same (sessionID,
// key, clusterFilter) twice is idempotent.
func (b *Bus) Subscribe(k registry.Key, sessionID, clusterFilter string, pusher Pusher, snap registry.ServiceInfo) {
	filtered := filterSnapshot(snap, clusterFilter)

	ss := b.subsFor(k, true)
	ss.mu.Lock()
	sk := subKey(sessionID, clusterFilter)
	sub, existed := ss.subscribers[sk]
	if !existed {
		sub = &subscriber{sessionID: sessionID, clusterFilter: clusterFilter, pusher: pusher}
		ss.subscribers[sk] = sub
	}
	sub.lastRevision = snap.Revision
	sub.lastChecksum = snapshotChecksum(filtered)
	ss.mu.Unlock()

	pusher.TryPush(filtered)
}

// Unsubscribe removes a subscriber. Never fails.
func (b *Bus) Unsubscribe(k registry.Key, sessionID, clusterFilter string) {
	ss := b.subsFor(k, false)
	if ss == nil {
		return
	}
	ss.mu.Lock()
	delete(ss.subscribers, subKey(sessionID, clusterFilter))
	ss.mu.Unlock()
}

// UnsubscribeService implements session.SubscriptionRemover, the hook
// session cleanup calls for every subscription a closing session held.
func (b *Bus) UnsubscribeService(sessionID, namespace, group, service, clusterFilter string) {
	b.Unsubscribe(registry.Key{Namespace: namespace, Group: group, Name: service}, sessionID, clusterFilter)
}

// UnsubscribeAll removes every subscription this session holds under each
// of the given keys, whatever its cluster filter. The bus keeps no reverse
// index, so the caller supplies the keys the session tracked.
func (b *Bus) UnsubscribeAll(sessionID string, keys []registry.Key) {
	for _, k := range keys {
		ss := b.subsFor(k, false)
		if ss == nil {
			continue
		}
		ss.mu.Lock()
		for sk, sub := range ss.subscribers {
			if sub.sessionID == sessionID {
				delete(ss.subscribers, sk)
			}
		}
		ss.mu.Unlock()
	}
}

// Publish fans a post-mutation snapshot out to every subscriber of k,
// applying each subscriber's cluster filter. It
// implements registry.Publisher.
func (b *Bus) Publish(k registry.Key, snap registry.ServiceInfo) {
	if b.gate != nil && !b.gate() {
		return
	}
	ss := b.subsFor(k, false)
	if ss == nil {
		return
	}

	ss.mu.Lock()
	defer ss.mu.Unlock()
	for _, sub := range ss.subscribers {
		if snap.Revision == sub.lastRevision {
			continue
		}
		sub.lastRevision = snap.Revision
		filtered := filterSnapshot(snap, sub.clusterFilter)
		var ck string
		if sub.clusterFilter != "" {
			// A mutation outside the subscriber's cluster filter leaves its
			// view unchanged; no snapshot goes out for it.
			ck = snapshotChecksum(filtered)
			if ck == sub.lastChecksum {
				continue
			}
		}
		// Best-effort-once: a saturated channel means the bus is permitted
		// to drop this snapshot, as long as the final state eventually
		// arrives on a later publish. The checksum advances only on a
		// successful push, so a dropped view is not mistaken for delivered.
		if sub.pusher.TryPush(filtered) && sub.clusterFilter != "" {
			sub.lastChecksum = ck
		}
	}
}

func filterSnapshot(snap registry.ServiceInfo, clusterFilter string) registry.ServiceInfo {
	if clusterFilter == "" {
		return snap
	}
	allowed := make(map[string]struct{})
	for _, c := range strings.Split(clusterFilter, ",") {
		if c != "" {
			allowed[c] = struct{}{}
		}
	}
	filtered := snap
	filtered.Hosts = make([]registry.Instance, 0, len(snap.Hosts))
	for _, h := range snap.Hosts {
		if _, ok := allowed[h.Cluster]; ok {
			filtered.Hosts = append(filtered.Hosts, h)
		}
	}
	filtered.Clusters = clusterFilter
	return filtered
}

// snapshotChecksum summarizes a filtered host set so publishes that leave a
// subscriber's view unchanged can be suppressed. Hosts arrive sorted by
// (ip, port) from the registry, so the join is deterministic.
func snapshotChecksum(snap registry.ServiceInfo) string {
	var sb strings.Builder
	for _, h := range snap.Hosts {
		sb.WriteString(h.Cluster)
		sb.WriteByte('/')
		sb.WriteString(h.IP)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(h.Port))
		sb.WriteByte('#')
		sb.WriteString(strconv.FormatFloat(h.Weight, 'f', -1, 64))
		sb.WriteByte('#')
		sb.WriteString(strconv.FormatBool(h.Healthy))
		sb.WriteString(strconv.FormatBool(h.Enabled))
		keys := make([]string, 0, len(h.Metadata))
		for mk := range h.Metadata {
			keys = append(keys, mk)
		}
		sort.Strings(keys)
		for _, mk := range keys {
			sb.WriteByte('#')
			sb.WriteString(mk)
			sb.WriteByte('=')
			sb.WriteString(h.Metadata[mk])
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// SubscriberCount reports the number of live subscribers for a key, for
// diagnostics and tests.
func (b *Bus) SubscriberCount(k registry.Key) int {
	ss := b.subsFor(k, false)
	if ss == nil {
		return 0
	}
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return len(ss.subscribers)
}
