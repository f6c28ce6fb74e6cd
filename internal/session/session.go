// Package session implements Component B: the set of live client
// sessions, each the sole owner of its ephemeral registrations and config
// listens.
package session

import (
	"sync"
	"time"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/iam"
)

// ErrSessionClosed rejects a message that arrives after its session's
// cleanup has begun; handling it would resurrect resources cleanup already
// released.
var ErrSessionClosed = apierr.NotFound("session closed")

// InstanceRef identifies an ephemeral instance a session registered, by the
// same key the registry uses internally. No back-pointer from the registry
// to the session is kept; cleanup walks this index instead.
type InstanceRef struct {
	Namespace, Group, Service, Cluster, IP string
	Port                                   int
}

// ListenRef identifies a config fingerprint a session is listening on.
type ListenRef struct {
	Namespace, Group, DataID string
}

// SubscriptionRef identifies a service subscription a session holds.
type SubscriptionRef struct {
	Namespace, Group, Service, ClusterFilter string
}

// Frame is whatever the wire layer pushes to a session: a ServiceInfo
// snapshot or a config change notification. Kept as `any` here so session
// doesn't need to import the wire package's concrete frame types.
type Frame any

// State is a session's lifecycle state.
type State int

const (
	StateActive State = iota
	StateClosed
)

// Session is the sole owner of its ephemeral instance set and config listen
// set.
type Session struct {
	ID        string
	Principal iam.Principal
	ClientIP  string
	CreatedAt time.Time

	mu            sync.Mutex
	state         State
	lastSeen      time.Time
	pingSentAt    time.Time
	instances     map[InstanceRef]struct{}
	listens       map[ListenRef]struct{}
	subscriptions map[SubscriptionRef]struct{}

	// Outbound is the bounded push channel the wire layer drains. Sends are
	// non-blocking; a full channel triggers the coalescing/backpressure
	// policy in the publisher, not here.
	Outbound chan Frame
}

func newSession(id string, principal iam.Principal, clientIP string, now time.Time, outboundCapacity int) *Session {
	return &Session{
		ID:            id,
		Principal:     principal,
		ClientIP:      clientIP,
		CreatedAt:     now,
		lastSeen:      now,
		instances:     make(map[InstanceRef]struct{}),
		listens:       make(map[ListenRef]struct{}),
		subscriptions: make(map[SubscriptionRef]struct{}),
		Outbound:      make(chan Frame, outboundCapacity),
	}
}

// Touch records traffic, resetting the idle deadline.
func (s *Session) Touch(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSeen = now
	s.pingSentAt = time.Time{}
}

// State reports the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// TrackInstance records an ephemeral instance this session owns.
func (s *Session) TrackInstance(ref InstanceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances[ref] = struct{}{}
}

// UntrackInstance drops a tracked instance (explicit deregister).
func (s *Session) UntrackInstance(ref InstanceRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.instances, ref)
}

// TrackSubscription records a service subscription this session holds.
func (s *Session) TrackSubscription(ref SubscriptionRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscriptions[ref] = struct{}{}
}

// UntrackSubscription drops a tracked subscription (explicit unsubscribe).
func (s *Session) UntrackSubscription(ref SubscriptionRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subscriptions, ref)
}

// TrackListen records a config fingerprint this session is listening on.
func (s *Session) TrackListen(ref ListenRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listens[ref] = struct{}{}
}

// UntrackListen drops a tracked listen (explicit unlisten).
func (s *Session) UntrackListen(ref ListenRef) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listens, ref)
}

// ListenCount reports how many config listens this session holds.
func (s *Session) ListenCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listens)
}

// snapshotOwned copies the owned resource sets under the lock and marks the
// session closed, so cleanup can safely range over them after release.
func (s *Session) snapshotOwned() (instances []InstanceRef, listens []ListenRef, subs []SubscriptionRef, alreadyClosed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil, nil, nil, true
	}
	s.state = StateClosed

	instances = make([]InstanceRef, 0, len(s.instances))
	for ref := range s.instances {
		instances = append(instances, ref)
	}
	listens = make([]ListenRef, 0, len(s.listens))
	for ref := range s.listens {
		listens = append(listens, ref)
	}
	subs = make([]SubscriptionRef, 0, len(s.subscriptions))
	for ref := range s.subscriptions {
		subs = append(subs, ref)
	}
	return instances, listens, subs, false
}

// TryPush enqueues a frame without blocking. Returns false when the
// channel is full or the session is already closed, so publishers can
// apply their coalescing rule without ever writing to a closed channel.
func (s *Session) TryPush(frame Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return false
	}
	select {
	case s.Outbound <- frame:
		return true
	default:
		return false
	}
}

// closeOutbound closes the push channel under the same lock TryPush sends
// under, so no push can race the close.
func (s *Session) closeOutbound() {
	s.mu.Lock()
	defer s.mu.Unlock()
	close(s.Outbound)
}

// markPingedIfIdle records a ping send iff the session has been quiet past
// idle and no ping is already outstanding, so the sweep never resets an
// in-flight grace window. Reports whether a ping should actually go out.
func (s *Session) markPingedIfIdle(idle time.Duration, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastSeen) < idle || !s.pingSentAt.IsZero() {
		return false
	}
	s.pingSentAt = now
	return true
}

func (s *Session) gracePeriodExpired(grace time.Duration, asOf time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pingSentAt.IsZero() {
		return false
	}
	return asOf.Sub(s.pingSentAt) > grace
}
