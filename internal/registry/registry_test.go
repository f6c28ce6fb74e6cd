package registry

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	events []ServiceInfo
}

func (f *fakePublisher) Publish(k Key, snap ServiceInfo) {
	f.events = append(f.events, snap)
}

func testKey() Key {
	return Key{Namespace: "public", Group: "DEFAULT_GROUP", Name: "svc1"}
}

func TestRegisterEmitsEventAndIsQueryable(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRegistry(pub, nil, 0, nil)
	ctx := context.Background()
	k := testKey()

	require.NoError(t, r.Register(ctx, k, Instance{IP: "10.0.0.1", Port: 8080, Weight: 1, Healthy: true, Enabled: true}))

	info, err := r.Query(k, nil, false)
	require.NoError(t, err)
	require.Len(t, info.Hosts, 1)
	assert.Equal(t, "10.0.0.1", info.Hosts[0].IP)
	assert.Len(t, pub.events, 1)
}

func TestRegisterNoopDoesNotEmit(t *testing.T) {
	pub := &fakePublisher{}
	r := NewRegistry(pub, nil, 0, nil)
	ctx := context.Background()
	k := testKey()

	inst := Instance{IP: "10.0.0.1", Port: 8080, Weight: 1, Healthy: true, Enabled: true}
	require.NoError(t, r.Register(ctx, k, inst))
	require.NoError(t, r.Register(ctx, k, inst))

	assert.Len(t, pub.events, 1)
}

func TestEphemeralRegisterRequiresSessionID(t *testing.T) {
	r := NewRegistry(nil, nil, 0, nil)
	err := r.Register(context.Background(), testKey(), Instance{IP: "10.0.0.1", Port: 8080, Ephemeral: true})
	assert.Error(t, err)
}

func TestDeregisterNonExistentIsNoopSuccess(t *testing.T) {
	r := NewRegistry(nil, nil, 0, nil)
	err := r.Deregister(context.Background(), "public", "DEFAULT_GROUP", "svc1", "DEFAULT", "1.2.3.4", 80)
	assert.NoError(t, err)
}

func TestQueryFiltersByClusterAndHealth(t *testing.T) {
	r := NewRegistry(nil, nil, 0, nil)
	ctx := context.Background()
	k := testKey()

	require.NoError(t, r.Register(ctx, k, Instance{IP: "10.0.0.1", Port: 1, Cluster: "A", Healthy: true}))
	require.NoError(t, r.Register(ctx, k, Instance{IP: "10.0.0.2", Port: 2, Cluster: "B", Healthy: false}))

	info, err := r.Query(k, []string{"A"}, false)
	require.NoError(t, err)
	require.Len(t, info.Hosts, 1)
	assert.Equal(t, "A", info.Hosts[0].Cluster)

	info, err = r.Query(k, nil, true)
	require.NoError(t, err)
	require.Len(t, info.Hosts, 1)
	assert.Equal(t, "10.0.0.1", info.Hosts[0].IP)
}

func TestListServicesOrderedAndPaged(t *testing.T) {
	r := NewRegistry(nil, nil, 0, nil)
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "mu"} {
		require.NoError(t, r.Register(ctx, Key{Namespace: "public", Group: "DEFAULT_GROUP", Name: name},
			Instance{IP: "10.0.0.1", Port: 1}))
	}

	names, total := r.ListServices("public", "DEFAULT_GROUP", 1, 2)
	assert.Equal(t, 3, total)
	assert.Equal(t, []string{"alpha", "mu"}, names)
}

func TestUpdateHealthRejectsEphemeral(t *testing.T) {
	r := NewRegistry(nil, nil, 0, nil)
	ctx := context.Background()
	k := testKey()
	require.NoError(t, r.Register(ctx, k, Instance{IP: "10.0.0.1", Port: 1, Ephemeral: true, SessionID: "s1"}))

	err := r.UpdateHealth(ctx, k, "DEFAULT", "10.0.0.1", 1, false)
	assert.Error(t, err)
}

func TestSweepEvictsExpiredTombstone(t *testing.T) {
	clock := clockwork.NewFakeClock()
	r := NewRegistry(nil, nil, time.Second, clock)
	ctx := context.Background()
	k := testKey()

	require.NoError(t, r.Register(ctx, k, Instance{IP: "10.0.0.1", Port: 1}))
	require.NoError(t, r.Deregister(ctx, k.Namespace, k.Group, k.Name, "DEFAULT", "10.0.0.1", 1))

	clock.Advance(2 * time.Second)
	r.Sweep()

	_, err := r.Query(k, nil, false)
	assert.Error(t, err)
}
