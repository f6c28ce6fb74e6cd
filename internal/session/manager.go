package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/iam"
)

// InstanceDeregisterer is the registry-side hook a Manager calls during
// session cleanup, for every ephemeral instance the closing session owned.
// Session depends on this narrow interface rather than the registry package
// so the dependency runs one way (wiring happens in the composition root).
type InstanceDeregisterer interface {
	Deregister(ctx context.Context, namespace, group, service, cluster, ip string, port int) error
}

// ListenRemover is the notify-bus-side hook called for every config listen
// a closing session owned.
type ListenRemover interface {
	Unlisten(ctx context.Context, sessionID, namespace, group, dataID string)
}

// SubscriptionRemover is the subscription-bus-side hook called for every
// service subscription a closing session held, so a later publish never
// writes to a session's closed outbound channel.
type SubscriptionRemover interface {
	UnsubscribeService(sessionID, namespace, group, service, clusterFilter string)
}

const shardCount = 32

type shard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// Manager tracks all live sessions, sharded by session ID to bound lock
// contention, and runs the
// T_idle / T_grace keepalive sweep.
type Manager struct {
	shards [shardCount]*shard

	clock            clockwork.Clock
	idleTimeout      time.Duration
	graceTimeout     time.Duration
	outboundCapacity int

	registry InstanceDeregisterer
	notify   ListenRemover
	subs     SubscriptionRemover

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// Options configures a Manager.
type Options struct {
	IdleTimeout      time.Duration
	GraceTimeout     time.Duration
	OutboundCapacity int
	Clock            clockwork.Clock
}

// NewManager builds a Manager. registry, notify, and subs may be nil in
// tests that don't exercise disconnect cleanup.
func NewManager(registry InstanceDeregisterer, notify ListenRemover, subs SubscriptionRemover, opts Options) *Manager {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.OutboundCapacity <= 0 {
		opts.OutboundCapacity = 256
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 20 * time.Second
	}
	if opts.GraceTimeout <= 0 {
		opts.GraceTimeout = 5 * time.Second
	}

	m := &Manager{
		clock:            opts.Clock,
		idleTimeout:      opts.IdleTimeout,
		graceTimeout:     opts.GraceTimeout,
		outboundCapacity: opts.OutboundCapacity,
		registry:         registry,
		notify:           notify,
		subs:             subs,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
	for i := range m.shards {
		m.shards[i] = &shard{sessions: make(map[string]*Session)}
	}
	return m
}

func (m *Manager) shardFor(id string) *shard {
	var h uint32
	for i := 0; i < len(id); i++ {
		h = h*31 + uint32(id[i])
	}
	return m.shards[h%shardCount]
}

// Open admits a new session for an authenticated (or anonymous) principal
// and returns its ID. clientIP is the peer address
// captured at connect time, used later for gray-rule resolution.
func (m *Manager) Open(principal iam.Principal, clientIP string) *Session {
	id := uuid.NewString()
	sess := newSession(id, principal, clientIP, m.clock.Now(), m.outboundCapacity)
	sh := m.shardFor(id)
	sh.mu.Lock()
	sh.sessions[id] = sess
	sh.mu.Unlock()
	return sess
}

// Get looks up a live session by ID.
func (m *Manager) Get(id string) (*Session, error) {
	sh := m.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	sess, ok := sh.sessions[id]
	if !ok {
		return nil, apierr.NotFound("session %q not found", id)
	}
	return sess, nil
}

// Heartbeat extends a session's idle deadline.
func (m *Manager) Heartbeat(id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return err
	}
	sess.Touch(m.clock.Now())
	return nil
}

// Close tears a session down: idempotently deregisters every ephemeral
// instance it owned, removes every config listen it owned, then drops the
// session record. Safe to call more than
// once or concurrently with the sweep loop; only the first caller performs
// cleanup.
func (m *Manager) Close(ctx context.Context, id string) error {
	sess, err := m.Get(id)
	if err != nil {
		return nil // already gone: close is idempotent
	}
	return m.closeSession(ctx, sess)
}

func (m *Manager) closeSession(ctx context.Context, sess *Session) error {
	instances, listens, subs, alreadyClosed := sess.snapshotOwned()
	if alreadyClosed {
		return nil
	}

	// Subscriptions are torn down first so no in-flight publish writes to
	// the outbound channel after it's closed below.
	if m.subs != nil {
		for _, ref := range subs {
			m.subs.UnsubscribeService(sess.ID, ref.Namespace, ref.Group, ref.Service, ref.ClusterFilter)
		}
	}
	if m.registry != nil {
		for _, ref := range instances {
			_ = m.registry.Deregister(ctx, ref.Namespace, ref.Group, ref.Service, ref.Cluster, ref.IP, ref.Port)
		}
	}
	if m.notify != nil {
		for _, ref := range listens {
			m.notify.Unlisten(ctx, sess.ID, ref.Namespace, ref.Group, ref.DataID)
		}
	}

	sh := m.shardFor(sess.ID)
	sh.mu.Lock()
	delete(sh.sessions, sess.ID)
	sh.mu.Unlock()

	sess.closeOutbound()
	return nil
}

// CloseAll tears down every live session through the same ordered cleanup
// path as Close. Called at server shutdown after new connections stop
// arriving.
func (m *Manager) CloseAll(ctx context.Context) {
	for _, sh := range m.shards {
		sh.mu.RLock()
		sessions := make([]*Session, 0, len(sh.sessions))
		for _, sess := range sh.sessions {
			sessions = append(sessions, sess)
		}
		sh.mu.RUnlock()

		for _, sess := range sessions {
			_ = m.closeSession(ctx, sess)
		}
	}
}

// Count returns the number of live sessions, for diagnostics.
func (m *Manager) Count() int {
	total := 0
	for _, sh := range m.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// Run drives the keepalive sweep until ctx is canceled or Stop is called.
// A session idle past idleTimeout is pinged once (caller is expected to
// push a ping frame in response to onPing); one that doesn't respond within
// graceTimeout after the ping is treated as disconnected and closed.
func (m *Manager) Run(ctx context.Context, tick time.Duration, onPing func(*Session)) {
	defer close(m.doneCh)
	ticker := m.clock.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.Chan():
			m.sweep(ctx, onPing)
		}
	}
}

func (m *Manager) sweep(ctx context.Context, onPing func(*Session)) {
	now := m.clock.Now()
	for _, sh := range m.shards {
		sh.mu.RLock()
		candidates := make([]*Session, 0, len(sh.sessions))
		for _, sess := range sh.sessions {
			candidates = append(candidates, sess)
		}
		sh.mu.RUnlock()

		for _, sess := range candidates {
			if sess.gracePeriodExpired(m.graceTimeout, now) {
				_ = m.closeSession(ctx, sess)
				continue
			}
			if sess.markPingedIfIdle(m.idleTimeout, now) && onPing != nil {
				onPing(sess)
			}
		}
	}
}

// Stop halts the sweep loop started by Run, if any. Safe to call even when
// Run was never started.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}
