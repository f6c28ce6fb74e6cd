package session

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/iam"
)

type fakeRegistry struct {
	deregistered []InstanceRef
}

func (f *fakeRegistry) Deregister(ctx context.Context, namespace, group, service, cluster, ip string, port int) error {
	f.deregistered = append(f.deregistered, InstanceRef{namespace, group, service, cluster, ip, port})
	return nil
}

type fakeNotify struct {
	unlistened []ListenRef
}

func (f *fakeNotify) Unlisten(ctx context.Context, sessionID, namespace, group, dataID string) {
	f.unlistened = append(f.unlistened, ListenRef{namespace, group, dataID})
}

func TestOpenHeartbeatClose(t *testing.T) {
	m := NewManager(nil, nil, nil, Options{})
	sess := m.Open(iam.Principal{Username: "u1"}, "10.0.0.1")
	require.NotEmpty(t, sess.ID)
	assert.Equal(t, 1, m.Count())

	require.NoError(t, m.Heartbeat(sess.ID))

	require.NoError(t, m.Close(context.Background(), sess.ID))
	assert.Equal(t, 0, m.Count())

	// idempotent
	require.NoError(t, m.Close(context.Background(), sess.ID))
}

func TestCloseCleansUpOwnedResources(t *testing.T) {
	reg := &fakeRegistry{}
	notif := &fakeNotify{}
	m := NewManager(reg, notif, nil, Options{})

	sess := m.Open(iam.Principal{Username: "u1"}, "10.0.0.1")
	sess.TrackInstance(InstanceRef{Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc1", Cluster: "DEFAULT", IP: "10.0.0.1", Port: 8080})
	sess.TrackListen(ListenRef{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1"})

	require.NoError(t, m.Close(context.Background(), sess.ID))

	require.Len(t, reg.deregistered, 1)
	assert.Equal(t, "svc1", reg.deregistered[0].Service)
	require.Len(t, notif.unlistened, 1)
	assert.Equal(t, "cfg1", notif.unlistened[0].DataID)
}

func TestSweepPingsIdleSessionThenClosesAfterGrace(t *testing.T) {
	clock := clockwork.NewFakeClock()
	m := NewManager(nil, nil, nil, Options{
		IdleTimeout:  10 * time.Second,
		GraceTimeout: 5 * time.Second,
		Clock:        clock,
	})

	sess := m.Open(iam.Principal{Username: "u1"}, "10.0.0.1")

	var pinged atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go m.Run(ctx, time.Second, func(s *Session) { pinged.Add(1) })

	clock.BlockUntil(1)
	clock.Advance(11 * time.Second)

	require.Eventually(t, func() bool { return pinged.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Count())

	clock.BlockUntil(1)
	clock.Advance(6 * time.Second)

	require.Eventually(t, func() bool { return m.Count() == 0 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), pinged.Load()) // the grace window is never reset by a re-ping
	_ = sess
	m.Stop()
}

func TestTryPushAfterCloseIsRejected(t *testing.T) {
	m := NewManager(nil, nil, nil, Options{})
	sess := m.Open(iam.Principal{Username: "u1"}, "10.0.0.1")

	require.True(t, sess.TryPush("frame"))
	require.NoError(t, m.Close(context.Background(), sess.ID))
	assert.False(t, sess.TryPush("late frame"))
}

func TestGetUnknownSessionReturnsNotFound(t *testing.T) {
	m := NewManager(nil, nil, nil, Options{})
	_, err := m.Get("does-not-exist")
	assert.Error(t, err)
}
