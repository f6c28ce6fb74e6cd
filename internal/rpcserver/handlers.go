package rpcserver

import (
	"context"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/iam"
	"github.com/easynet-cn/batata/internal/notify"
	"github.com/easynet-cn/batata/internal/registry"
	"github.com/easynet-cn/batata/internal/session"
	"github.com/easynet-cn/batata/internal/subscription"
	"github.com/easynet-cn/batata/internal/wire"
)

func (s *Server) authorize(ctx context.Context, sess *session.Session, resource string, action iam.Action) error {
	return s.IAM.Authorize(ctx, sess.Principal, resource, action)
}

func (s *Server) handlePing(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	f, err := wire.NewFrame(wire.KindPong, "", wire.PongPayload{})
	return &f, err
}

func (s *Server) handleInstanceRegister(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.InstanceRegisterPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	key := registry.Key{Namespace: p.Instance.Namespace, Group: p.Instance.Group, Name: p.Instance.Service}
	if err := s.authorize(ctx, sess, resourcePattern(key.Namespace, key.Group, key.Name), iam.ActionWrite); err != nil {
		return nil, err
	}

	inst := instanceFromWire(p.Instance, sess.ID)
	if err := s.Registry.Register(ctx, key, inst); err != nil {
		return nil, err
	}
	if inst.Ephemeral {
		sess.TrackInstance(session.InstanceRef{
			Namespace: key.Namespace, Group: key.Group, Service: key.Name,
			Cluster: inst.Cluster, IP: inst.IP, Port: inst.Port,
		})
	}

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleInstanceDeregister(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.InstanceDeregisterPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sess, resourcePattern(p.Namespace, p.Group, p.Service), iam.ActionWrite); err != nil {
		return nil, err
	}

	cluster := p.Cluster
	if cluster == "" {
		cluster = registry.DefaultCluster
	}
	if err := s.Registry.Deregister(ctx, p.Namespace, p.Group, p.Service, cluster, p.IP, p.Port); err != nil {
		return nil, err
	}
	sess.UntrackInstance(session.InstanceRef{Namespace: p.Namespace, Group: p.Group, Service: p.Service, Cluster: cluster, IP: p.IP, Port: p.Port})

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleBatchInstanceRegister(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.BatchInstanceRegisterPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	key := registry.Key{Namespace: p.Namespace, Group: p.Group, Name: p.Service}
	if err := s.authorize(ctx, sess, resourcePattern(key.Namespace, key.Group, key.Name), iam.ActionWrite); err != nil {
		return nil, err
	}

	instances := make([]registry.Instance, 0, len(p.Instances))
	for _, ip := range p.Instances {
		instances = append(instances, instanceFromWire(ip, sess.ID))
	}
	errs := s.Registry.BatchRegister(ctx, key, instances)
	for _, inst := range instances {
		if inst.Ephemeral {
			sess.TrackInstance(session.InstanceRef{Namespace: key.Namespace, Group: key.Group, Service: key.Name, Cluster: inst.Cluster, IP: inst.IP, Port: inst.Port})
		}
	}
	if len(errs) > 0 {
		return nil, errs[0]
	}

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleServiceQuery(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ServiceQueryPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	key := registry.Key{Namespace: p.Namespace, Group: p.Group, Name: p.Service}
	if err := s.authorize(ctx, sess, resourcePattern(key.Namespace, key.Group, key.Name), iam.ActionRead); err != nil {
		return nil, err
	}

	info, err := s.Registry.Query(key, p.Clusters, p.HealthyOnly)
	if err != nil {
		return nil, err
	}

	payload := wire.ServiceInfoPayload{
		Namespace: info.Namespace, Group: info.Group, Name: info.Name,
		Clusters: info.Clusters, Revision: info.Revision,
	}
	for _, h := range info.Hosts {
		payload.Hosts = append(payload.Hosts, instanceToWire(h))
	}
	f, err := wire.NewFrame(wire.KindServiceQueryResult, "", payload)
	return &f, err
}

func (s *Server) handleServiceListQuery(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ServiceListQueryPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sess, resourcePattern(p.Namespace, p.Group, "*"), iam.ActionRead); err != nil {
		return nil, err
	}

	names, total := s.Registry.ListServices(p.Namespace, p.Group, p.Page, p.PageSize)
	f, err := wire.NewFrame(wire.KindServiceListQueryResult, "", wire.ServiceListQueryResultPayload{Names: names, Total: total})
	return &f, err
}

func (s *Server) handleSubscribeService(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.SubscribeServicePayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	key := registry.Key{Namespace: p.Namespace, Group: p.Group, Name: p.Service}
	if err := s.authorize(ctx, sess, resourcePattern(key.Namespace, key.Group, key.Name), iam.ActionRead); err != nil {
		return nil, err
	}

	snap, err := s.Registry.Query(key, nil, false)
	if err != nil {
		// subscribe is valid even for a not-yet-registered service: an
		// empty snapshot is pushed and future registrations will publish.
		snap = registry.ServiceInfo{Namespace: key.Namespace, Group: key.Group, Name: key.Name}
	}

	s.Subscriptions.Subscribe(key, sess.ID, p.ClusterFilter, subscription.NewSessionPusher(sess), snap)
	sess.TrackSubscription(session.SubscriptionRef{Namespace: key.Namespace, Group: key.Group, Service: key.Name, ClusterFilter: p.ClusterFilter})

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleUnsubscribeService(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.SubscribeServicePayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	key := registry.Key{Namespace: p.Namespace, Group: p.Group, Name: p.Service}
	s.Subscriptions.Unsubscribe(key, sess.ID, p.ClusterFilter)
	sess.UntrackSubscription(session.SubscriptionRef{Namespace: key.Namespace, Group: key.Group, Service: key.Name, ClusterFilter: p.ClusterFilter})

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleConfigPublish(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ConfigPublishPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sess, resourcePattern(p.Namespace, p.Group, p.DataID), iam.ActionWrite); err != nil {
		return nil, err
	}

	key := configstore.Key{Namespace: p.Namespace, Group: p.Group, DataID: p.DataID}
	if err := s.Configs.Publish(ctx, key, p.Content, p.Type); err != nil {
		return nil, err
	}

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

func (s *Server) handleConfigQuery(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ConfigQueryPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sess, resourcePattern(p.Namespace, p.Group, p.DataID), iam.ActionRead); err != nil {
		return nil, err
	}

	key := configstore.Key{Namespace: p.Namespace, Group: p.Group, DataID: p.DataID}
	e, err := s.Configs.Get(ctx, key, clientIP(ctx))
	if err != nil {
		return nil, err
	}

	f, err := wire.NewFrame(wire.KindConfigQueryResult, "", wire.ConfigQueryResultPayload{Content: e.Content, Type: e.Type, MD5: e.MD5})
	return &f, err
}

func (s *Server) handleConfigRemove(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ConfigRemovePayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, sess, resourcePattern(p.Namespace, p.Group, p.DataID), iam.ActionWrite); err != nil {
		return nil, err
	}

	key := configstore.Key{Namespace: p.Namespace, Group: p.Group, DataID: p.DataID}
	if err := s.Configs.Remove(ctx, key); err != nil {
		return nil, err
	}

	f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
	return &f, err
}

// maxListensPerSession bounds how many config fingerprints one session may
// hold open at once.
const maxListensPerSession = 10000

func (s *Server) handleConfigBatchListen(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error) {
	var p wire.ConfigBatchListenPayload
	if err := req.Decode(&p); err != nil {
		return nil, err
	}
	if p.Listen && sess.ListenCount()+len(p.Fingerprints) > maxListensPerSession {
		return nil, apierr.ResourceExhausted("session holds too many config listens (limit %d)", maxListensPerSession)
	}

	fingerprints := make([]notify.Fingerprint, 0, len(p.Fingerprints))
	for _, fp := range p.Fingerprints {
		fingerprints = append(fingerprints, notify.Fingerprint{Namespace: fp.Namespace, Group: fp.Group, DataID: fp.DataID, MD5: fp.MD5})
	}

	if !p.Listen {
		for _, fp := range fingerprints {
			s.Notify.Unlisten(ctx, sess.ID, fp.Namespace, fp.Group, fp.DataID)
			sess.UntrackListen(session.ListenRef{Namespace: fp.Namespace, Group: fp.Group, DataID: fp.DataID})
		}
		f, err := wire.NewFrame(wire.KindAck, "", wire.AckPayload{})
		return &f, err
	}

	changed := s.Notify.Listen(sess.ID, fingerprints, func(namespace, group, dataID string) (string, bool) {
		e, err := s.Configs.Get(ctx, configstore.Key{Namespace: namespace, Group: group, DataID: dataID}, clientIP(ctx))
		if err != nil {
			return "", false
		}
		return e.MD5, true
	})
	for _, fp := range fingerprints {
		sess.TrackListen(session.ListenRef{Namespace: fp.Namespace, Group: fp.Group, DataID: fp.DataID})
	}

	payload := wire.ConfigBatchListenResultPayload{}
	for _, fp := range changed {
		payload.Changed = append(payload.Changed, wire.ConfigFingerprintPayload{Namespace: fp.Namespace, Group: fp.Group, DataID: fp.DataID, MD5: fp.MD5})
	}
	f, err := wire.NewFrame(wire.KindConfigBatchListenResult, "", payload)
	return &f, err
}

// clientIP extracts the caller's source IP for gray-rule resolution. A
// production transport stashes this in context from peer/TLS info at
// Connect time; left as a context lookup so rpcserver doesn't hard-code a
// transport-specific extraction here.
func clientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(clientIPContextKey{}).(string); ok {
		return ip
	}
	return ""
}

type clientIPContextKey struct{}

// WithClientIP attaches a resolved client IP to ctx for gray-rule checks.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}
