package registry

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

// Publisher receives one change event per successful register / deregister
// / updateInstance, carrying the post-mutation snapshot. The subscription bus implements this.
type Publisher interface {
	Publish(key Key, snapshot ServiceInfo)
}

// PersistentStore durably tracks non-ephemeral instances so they survive a
// restart. Ephemeral instances are
// never written through; they live only in the in-memory record.
type PersistentStore interface {
	Upsert(ctx context.Context, i *models.PersistentInstance) error
	Delete(ctx context.Context, namespace, group, service, cluster, ip string, port int) error
	List(ctx context.Context, namespace, group, service string) ([]*models.PersistentInstance, error)
	ListAll(ctx context.Context) ([]*models.PersistentInstance, error)
}

// serviceRecord holds one service's clusters and instances. Mutations and
// reads serialize on its own mutex so services don't contend with each
// other.
type serviceRecord struct {
	mu        sync.Mutex
	instances map[string]Instance // key: cluster|ip|port
	revision  uint64
	tombstone *tombstone
}

// Registry is the in-memory service registry. It is the sole
// source of truth for instance membership; the subscription bus only ever
// sees the snapshots it publishes.
type Registry struct {
	mu       sync.RWMutex
	services map[Key]*serviceRecord

	publisher    Publisher
	persistent   PersistentStore
	clock        clockwork.Clock
	tombstoneTTL time.Duration
}

// NewRegistry builds a Registry. publisher may be nil (events are simply
// dropped), which is convenient for tests that only check registry state.
// persistent may also be nil, in which case non-ephemeral instances are
// kept in memory only.
func NewRegistry(publisher Publisher, persistent PersistentStore, tombstoneTTL time.Duration, clock clockwork.Clock) *Registry {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if tombstoneTTL <= 0 {
		tombstoneTTL = 30 * time.Second
	}
	return &Registry{
		services:     make(map[Key]*serviceRecord),
		publisher:    publisher,
		persistent:   persistent,
		clock:        clock,
		tombstoneTTL: tombstoneTTL,
	}
}

// LoadPersistent restores every non-ephemeral instance from the persistent
// store into memory, for the composition root to call once at startup
// before the registry serves traffic.
func (r *Registry) LoadPersistent(ctx context.Context) error {
	if r.persistent == nil {
		return nil
	}
	rows, err := r.persistent.ListAll(ctx)
	if err != nil {
		return err
	}
	for _, row := range rows {
		rec := r.recordFor(Key{Namespace: row.Namespace, Group: row.Group, Name: row.Service}, true)
		rec.mu.Lock()
		ik := key(row.Cluster, row.IP, row.Port)
		rec.instances[ik] = Instance{
			IP: row.IP, Port: row.Port, Cluster: row.Cluster, Weight: row.Weight,
			Healthy: row.Healthy, Enabled: row.Enabled, Ephemeral: false,
			Metadata: row.Metadata, InstanceID: row.InstanceID,
		}
		rec.revision++
		rec.mu.Unlock()
	}
	return nil
}

func (r *Registry) recordFor(key Key, createIfAbsent bool) *serviceRecord {
	r.mu.RLock()
	rec, ok := r.services[key]
	r.mu.RUnlock()
	if ok {
		return rec
	}
	if !createIfAbsent {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.services[key]; ok {
		return rec
	}
	rec = &serviceRecord{instances: make(map[string]Instance)}
	r.services[key] = rec
	return rec
}

func key(cluster, ip string, port int) string {
	return cluster + "|" + ip + "|" + strconv.Itoa(port)
}

// Register adds or updates an instance. Ephemeral
// instances require a sessionID; re-registering the same (ip, port,
// cluster) updates fields idempotently, emitting an event only when
// something actually changed.
func (r *Registry) Register(ctx context.Context, k Key, inst Instance) error {
	if inst.IP == "" || inst.Port <= 0 {
		return apierr.InvalidArgument("instance ip and port are required")
	}
	if inst.Cluster == "" {
		inst.Cluster = DefaultCluster
	}
	if inst.Ephemeral && inst.SessionID == "" {
		return apierr.InvalidArgument("ephemeral instance requires a sessionId")
	}
	if inst.Weight < 0 {
		return apierr.InvalidArgument("instance weight must be non-negative")
	}

	rec := r.recordFor(k, true)
	rec.mu.Lock()
	ik := key(inst.Cluster, inst.IP, inst.Port)
	prior, existed := rec.instances[ik]
	noop := existed && prior.equal(inst)
	if !noop {
		rec.instances[ik] = cloneInstance(inst)
		rec.revision++
		rec.tombstone = nil
	}
	snap := rec.snapshotLocked(k, "")
	rec.mu.Unlock()

	if !noop {
		r.publish(k, snap)
	}
	if !inst.Ephemeral && r.persistent != nil {
		_ = r.persistent.Upsert(ctx, &models.PersistentInstance{
			Namespace: k.Namespace, Group: k.Group, Service: k.Name,
			Cluster: inst.Cluster, IP: inst.IP, Port: inst.Port,
			InstanceID: inst.InstanceID, Weight: inst.Weight,
			Healthy: inst.Healthy, Enabled: inst.Enabled, Metadata: inst.Metadata,
		})
	}
	return nil
}

// BatchRegister registers every instance in one call. Failures for individual instances are collected but do
// not stop the batch.
func (r *Registry) BatchRegister(ctx context.Context, k Key, instances []Instance) []error {
	var errs []error
	for _, inst := range instances {
		if err := r.Register(ctx, k, inst); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Deregister removes an instance. A non-existent instance is a no-op
// success.
func (r *Registry) Deregister(ctx context.Context, namespace, group, service, cluster, ip string, port int) error {
	k := Key{Namespace: namespace, Group: group, Name: service}
	rec := r.recordFor(k, false)
	if rec == nil {
		return nil
	}
	if cluster == "" {
		cluster = DefaultCluster
	}

	rec.mu.Lock()
	ik := key(cluster, ip, port)
	prior, existed := rec.instances[ik]
	if existed {
		delete(rec.instances, ik)
		rec.revision++
	}
	empty := len(rec.instances) == 0
	if empty && rec.tombstone == nil {
		rec.tombstone = &tombstone{emptyAt: r.clock.Now()}
	}
	snap := rec.snapshotLocked(k, "")
	rec.mu.Unlock()

	if existed {
		r.publish(k, snap)
		if !prior.Ephemeral && r.persistent != nil {
			_ = r.persistent.Delete(ctx, namespace, group, service, cluster, ip, port)
		}
	}
	return nil
}

// UpdateInstance applies the same semantics as Register to an existing
// instance, emitting a change event.
func (r *Registry) UpdateInstance(ctx context.Context, k Key, inst Instance) error {
	return r.Register(ctx, k, inst)
}

// UpdateHealth is the admin override for non-ephemeral instance health.
func (r *Registry) UpdateHealth(ctx context.Context, k Key, cluster, ip string, port int, healthy bool) error {
	rec := r.recordFor(k, false)
	if rec == nil {
		return apierr.NotFound("service %s/%s/%s not found", k.Namespace, k.Group, k.Name)
	}
	if cluster == "" {
		cluster = DefaultCluster
	}

	rec.mu.Lock()
	ik := key(cluster, ip, port)
	inst, ok := rec.instances[ik]
	if !ok {
		rec.mu.Unlock()
		return apierr.NotFound("instance %s:%d not found", ip, port)
	}
	if inst.Ephemeral {
		rec.mu.Unlock()
		return apierr.InvalidArgument("health of ephemeral instances is driven by heartbeat, not admin override")
	}
	if inst.Healthy == healthy {
		rec.mu.Unlock()
		return nil
	}
	inst.Healthy = healthy
	rec.instances[ik] = inst
	rec.revision++
	snap := rec.snapshotLocked(k, "")
	rec.mu.Unlock()

	r.publish(k, snap)
	return nil
}

// Query returns the current ServiceInfo, optionally filtered to a set of
// clusters. An empty/nil clusters filter means "all".
func (r *Registry) Query(k Key, clusters []string, healthyOnly bool) (ServiceInfo, error) {
	rec := r.recordFor(k, false)
	if rec == nil {
		return ServiceInfo{}, apierr.NotFound("service %s/%s/%s not found", k.Namespace, k.Group, k.Name)
	}

	filter := strings.Join(clusters, ",")
	rec.mu.Lock()
	snap := rec.snapshotLocked(k, filter)
	rec.mu.Unlock()

	if len(clusters) > 0 {
		allowed := make(map[string]struct{}, len(clusters))
		for _, c := range clusters {
			allowed[c] = struct{}{}
		}
		filtered := snap.Hosts[:0:0]
		for _, h := range snap.Hosts {
			if _, ok := allowed[h.Cluster]; ok {
				filtered = append(filtered, h)
			}
		}
		snap.Hosts = filtered
	}
	if healthyOnly {
		filtered := snap.Hosts[:0:0]
		for _, h := range snap.Hosts {
			if h.Healthy {
				filtered = append(filtered, h)
			}
		}
		snap.Hosts = filtered
	}
	return snap, nil
}

// snapshotLocked builds a ServiceInfo from the current instance set. Caller
// must hold rec.mu.
func (rec *serviceRecord) snapshotLocked(k Key, clusterFilter string) ServiceInfo {
	hosts := make([]Instance, 0, len(rec.instances))
	for _, inst := range rec.instances {
		hosts = append(hosts, cloneInstance(inst))
	}
	sort.Slice(hosts, func(i, j int) bool {
		if hosts[i].IP != hosts[j].IP {
			return hosts[i].IP < hosts[j].IP
		}
		return hosts[i].Port < hosts[j].Port
	})
	return ServiceInfo{
		Namespace: k.Namespace,
		Group:     k.Group,
		Name:      k.Name,
		Clusters:  clusterFilter,
		Hosts:     hosts,
		Revision:  rec.revision,
	}
}

func (r *Registry) publish(k Key, snap ServiceInfo) {
	if r.publisher != nil {
		r.publisher.Publish(k, snap)
	}
}

// ListServices returns a 1-based page of service names within a namespace
// and group, ordered by name.
func (r *Registry) ListServices(namespace, group string, page, pageSize int) ([]string, int) {
	r.mu.RLock()
	names := make([]string, 0)
	for k := range r.services {
		if k.Namespace == namespace && (group == "" || k.Group == group) {
			names = append(names, k.Name)
		}
	}
	r.mu.RUnlock()

	sort.Strings(names)
	total := len(names)
	if page <= 0 || pageSize <= 0 {
		return names, total
	}
	start := (page - 1) * pageSize
	if start >= total {
		return []string{}, total
	}
	end := start + pageSize
	if end > total {
		end = total
	}
	return names[start:end], total
}

// Stats reports the total number of known services and registered
// instances across every namespace, for the operator metrics panel.
func (r *Registry) Stats() (serviceCount, instanceCount int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	serviceCount = len(r.services)
	for _, rec := range r.services {
		rec.mu.Lock()
		instanceCount += len(rec.instances)
		rec.mu.Unlock()
	}
	return serviceCount, instanceCount
}

// Sweep evicts tombstoned services whose grace period has elapsed. Intended to be called periodically by the owning server.
func (r *Registry) Sweep() {
	now := r.clock.Now()
	var toEvict []Key

	r.mu.RLock()
	for k, rec := range r.services {
		rec.mu.Lock()
		if rec.tombstone != nil && now.Sub(rec.tombstone.emptyAt) > r.tombstoneTTL && len(rec.instances) == 0 {
			toEvict = append(toEvict, k)
		}
		rec.mu.Unlock()
	}
	r.mu.RUnlock()

	if len(toEvict) == 0 {
		return
	}
	r.mu.Lock()
	for _, k := range toEvict {
		if rec, ok := r.services[k]; ok {
			rec.mu.Lock()
			stillEmpty := len(rec.instances) == 0 && rec.tombstone != nil
			rec.mu.Unlock()
			if stillEmpty {
				delete(r.services, k)
			}
		}
	}
	r.mu.Unlock()
}
