package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/registry"
)

type recordingPusher struct {
	frames []any
	full   bool
}

func (p *recordingPusher) TryPush(frame any) bool {
	if p.full {
		return false
	}
	p.frames = append(p.frames, frame)
	return true
}

func testKey() registry.Key {
	return registry.Key{Namespace: "public", Group: "DEFAULT_GROUP", Name: "svc1"}
}

func TestSubscribePushesImmediateSnapshot(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	snap := registry.ServiceInfo{Name: "svc1", Revision: 1, Hosts: []registry.Instance{{IP: "10.0.0.1", Cluster: "DEFAULT"}}}

	bus.Subscribe(testKey(), "s1", "", pusher, snap)

	require.Len(t, pusher.frames, 1)
	assert.Equal(t, 1, bus.SubscriberCount(testKey()))
}

func TestSubscribeIdempotent(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	snap := registry.ServiceInfo{Name: "svc1", Revision: 1}

	bus.Subscribe(testKey(), "s1", "", pusher, snap)
	bus.Subscribe(testKey(), "s1", "", pusher, snap)

	assert.Equal(t, 1, bus.SubscriberCount(testKey()))
}

func TestPublishSkipsUnchangedRevision(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	snap := registry.ServiceInfo{Name: "svc1", Revision: 1}
	bus.Subscribe(testKey(), "s1", "", pusher, snap)

	bus.Publish(testKey(), snap) // same revision already recorded at subscribe time
	assert.Len(t, pusher.frames, 1)

	bus.Publish(testKey(), registry.ServiceInfo{Name: "svc1", Revision: 2})
	assert.Len(t, pusher.frames, 2)
}

func TestPublishFiltersByCluster(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	bus.Subscribe(testKey(), "s1", "A", pusher, registry.ServiceInfo{Name: "svc1", Revision: 1})

	bus.Publish(testKey(), registry.ServiceInfo{
		Name:     "svc1",
		Revision: 2,
		Hosts: []registry.Instance{
			{IP: "10.0.0.1", Cluster: "A"},
			{IP: "10.0.0.2", Cluster: "B"},
		},
	})

	require.Len(t, pusher.frames, 2)
	info := pusher.frames[1].(registry.ServiceInfo)
	require.Len(t, info.Hosts, 1)
	assert.Equal(t, "A", info.Hosts[0].Cluster)
}

func TestPublishSkipsWhenFilteredViewUnchanged(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	bus.Subscribe(testKey(), "s1", "A", pusher, registry.ServiceInfo{
		Name: "svc1", Revision: 1,
		Hosts: []registry.Instance{{IP: "10.0.0.1", Cluster: "A"}},
	})

	// a mutation confined to cluster B leaves the filter-A view unchanged,
	// so no snapshot goes out for this subscriber.
	bus.Publish(testKey(), registry.ServiceInfo{
		Name: "svc1", Revision: 2,
		Hosts: []registry.Instance{
			{IP: "10.0.0.1", Cluster: "A"},
			{IP: "10.0.0.2", Cluster: "B"},
		},
	})
	assert.Len(t, pusher.frames, 1)

	// a new cluster-A instance does reach it.
	bus.Publish(testKey(), registry.ServiceInfo{
		Name: "svc1", Revision: 3,
		Hosts: []registry.Instance{
			{IP: "10.0.0.1", Cluster: "A"},
			{IP: "10.0.0.2", Cluster: "B"},
			{IP: "10.0.0.3", Cluster: "A"},
		},
	})
	require.Len(t, pusher.frames, 2)
	info := pusher.frames[1].(registry.ServiceInfo)
	assert.Len(t, info.Hosts, 2)
}

func TestPushGateSuppressesPublish(t *testing.T) {
	bus := NewBus()
	enabled := true
	bus.SetPushGate(func() bool { return enabled })
	pusher := &recordingPusher{}
	bus.Subscribe(testKey(), "s1", "", pusher, registry.ServiceInfo{Name: "svc1", Revision: 1})

	enabled = false
	bus.Publish(testKey(), registry.ServiceInfo{Name: "svc1", Revision: 2})
	assert.Len(t, pusher.frames, 1)

	enabled = true
	bus.Publish(testKey(), registry.ServiceInfo{Name: "svc1", Revision: 3})
	assert.Len(t, pusher.frames, 2)
}

func TestUnsubscribeRemovesSubscriber(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	bus.Subscribe(testKey(), "s1", "", pusher, registry.ServiceInfo{Name: "svc1"})
	bus.Unsubscribe(testKey(), "s1", "")
	assert.Equal(t, 0, bus.SubscriberCount(testKey()))
}

func TestUnsubscribeAllAcrossKeys(t *testing.T) {
	bus := NewBus()
	pusher := &recordingPusher{}
	k1 := testKey()
	k2 := registry.Key{Namespace: "public", Group: "DEFAULT_GROUP", Name: "svc2"}
	bus.Subscribe(k1, "s1", "", pusher, registry.ServiceInfo{Name: "svc1"})
	bus.Subscribe(k2, "s1", "", pusher, registry.ServiceInfo{Name: "svc2"})

	bus.UnsubscribeAll("s1", []registry.Key{k1, k2})

	assert.Equal(t, 0, bus.SubscriberCount(k1))
	assert.Equal(t, 0, bus.SubscriberCount(k2))
}
