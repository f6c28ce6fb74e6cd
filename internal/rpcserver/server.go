// Package rpcserver implements the bidirectional streaming transport, translating wire.Frame requests into calls
// against the six core components and domain push events back into frames.
package rpcserver

import (
	"context"
	"io"
	"log"
	"net"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/iam"
	"github.com/easynet-cn/batata/internal/notify"
	"github.com/easynet-cn/batata/internal/registry"
	"github.com/easynet-cn/batata/internal/session"
	"github.com/easynet-cn/batata/internal/subscription"
	"github.com/easynet-cn/batata/internal/wire"
)

// handlerFunc is one entry of the request-kind → handler dispatch table.
// It returns the response frame to send back correlated by RequestID, or
// nil if the request kind expects no direct reply.
type handlerFunc func(ctx context.Context, sess *session.Session, req wire.Frame) (*wire.Frame, error)

// Server implements wire.GatewayServer, owning the handler table and every
// component the core is built from.
type Server struct {
	Sessions      *session.Manager
	Registry      *registry.Registry
	Subscriptions *subscription.Bus
	Configs       *configstore.Store
	Notify        *notify.Bus
	IAM           *iam.Service

	AllowAnonymous bool

	handlers map[wire.Kind]handlerFunc
}

// New wires a Server and builds its handler dispatch table.
func New(sessions *session.Manager, reg *registry.Registry, subs *subscription.Bus, configs *configstore.Store, notifyBus *notify.Bus, iamSvc *iam.Service, allowAnonymous bool) *Server {
	s := &Server{
		Sessions:       sessions,
		Registry:       reg,
		Subscriptions:  subs,
		Configs:        configs,
		Notify:         notifyBus,
		IAM:            iamSvc,
		AllowAnonymous: allowAnonymous,
	}
	s.handlers = map[wire.Kind]handlerFunc{
		wire.KindPing:                  s.handlePing,
		wire.KindInstanceRegister:      s.handleInstanceRegister,
		wire.KindInstanceDeregister:    s.handleInstanceDeregister,
		wire.KindBatchInstanceRegister: s.handleBatchInstanceRegister,
		wire.KindServiceQuery:          s.handleServiceQuery,
		wire.KindServiceListQuery:      s.handleServiceListQuery,
		wire.KindSubscribeService:      s.handleSubscribeService,
		wire.KindUnsubscribeService:    s.handleUnsubscribeService,
		wire.KindConfigPublish:         s.handleConfigPublish,
		wire.KindConfigQuery:           s.handleConfigQuery,
		wire.KindConfigRemove:          s.handleConfigRemove,
		wire.KindConfigBatchListen:     s.handleConfigBatchListen,
	}
	return s
}

// Connect implements wire.GatewayServer: the handshake, the inbound
// dispatch loop, and the outbound push pump, all scoped to one session's
// lifetime.
func (s *Server) Connect(stream wire.Stream) error {
	ctx := stream.Context()

	setupFrame, err := stream.Recv()
	if err != nil {
		return err
	}
	if setupFrame.Type != wire.KindConnectionSetup {
		return status.Error(codes.FailedPrecondition, "first frame must be ConnectionSetup")
	}
	var setup wire.ConnectionSetupPayload
	if err := setupFrame.Decode(&setup); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid ConnectionSetup: %v", err)
	}

	principal, err := s.authenticate(ctx, setup.AccessToken)
	if err != nil {
		return status.Error(codes.Unauthenticated, err.Error())
	}

	ip := peerIP(ctx)
	ctx = WithClientIP(ctx, ip)

	sess := s.Sessions.Open(principal, ip)
	defer func() { _ = s.Sessions.Close(context.Background(), sess.ID) }()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		s.pumpOutbound(stream, sess)
	}()

	for {
		req, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}
		if err := s.Sessions.Heartbeat(sess.ID); err != nil || sess.State() == session.StateClosed {
			// Cleanup already ran (grace-timeout expiry racing this Recv);
			// reject the late frame rather than let a handler resurrect
			// resources the sweep just released.
			errResp, _ := wire.NewFrame(wire.KindErrorResponse, req.RequestID, errorPayload(session.ErrSessionClosed))
			if sendErr := stream.Send(&errResp); sendErr != nil {
				return sendErr
			}
			break
		}

		handler, ok := s.handlers[req.Type]
		if !ok {
			log.Printf("rpcserver: unknown frame kind %q from session %s", req.Type, sess.ID)
			continue
		}
		resp, err := handler(ctx, sess, *req)
		if err != nil {
			errResp, _ := wire.NewFrame(wire.KindErrorResponse, req.RequestID, errorPayload(err))
			if sendErr := stream.Send(&errResp); sendErr != nil {
				return sendErr
			}
			continue
		}
		if resp != nil {
			resp.RequestID = req.RequestID
			if sendErr := stream.Send(resp); sendErr != nil {
				return sendErr
			}
		}
	}

	// Closing the session closes its outbound channel, which is what lets
	// the pump drain and exit; the deferred Close above is then a no-op.
	_ = s.Sessions.Close(context.Background(), sess.ID)
	<-pumpDone
	return nil
}

// peerIP extracts the caller's address from the stream's peer info,
// stripping the port.
func peerIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func (s *Server) authenticate(ctx context.Context, token string) (iam.Principal, error) {
	if token == "" {
		if s.AllowAnonymous {
			return iam.Anonymous, nil
		}
		return iam.Principal{}, status.Error(codes.Unauthenticated, "anonymous access is disabled")
	}
	return s.IAM.Verify(ctx, token)
}

// pumpOutbound drains sess.Outbound, translating domain push events into
// wire frames, until the session closes.
func (s *Server) pumpOutbound(stream wire.Stream, sess *session.Session) {
	for frame := range sess.Outbound {
		wf, ok := toWireFrame(frame)
		if !ok {
			continue
		}
		if err := stream.Send(&wf); err != nil {
			return
		}
	}
}

// PingSession enqueues a ClientDetectionRequest push onto sess's outbound
// channel. Wired as the onPing callback passed to
// session.Manager.Run by the composition root. Best-effort: a full channel
// drops the ping, same as any other push.
func (s *Server) PingSession(sess *session.Session) {
	f, err := wire.NewFrame(wire.KindClientDetectionRequest, "", wire.PingPayload{})
	if err != nil {
		return
	}
	sess.TryPush(f)
}

func toWireFrame(frame any) (wire.Frame, bool) {
	switch v := frame.(type) {
	case wire.Frame:
		return v, true
	case registry.ServiceInfo:
		payload := wire.ServiceInfoPayload{
			Namespace: v.Namespace,
			Group:     v.Group,
			Name:      v.Name,
			Clusters:  v.Clusters,
			Revision:  v.Revision,
			Hosts:     make([]wire.InstancePayload, 0, len(v.Hosts)),
		}
		for _, h := range v.Hosts {
			payload.Hosts = append(payload.Hosts, instanceToWire(h))
		}
		f, err := wire.NewFrame(wire.KindNotifySubscriber, "", payload)
		return f, err == nil
	case notify.ChangeNotification:
		payload := wire.ConfigChangeNotifyPayload{
			Namespace: v.Namespace, Group: v.Group, DataID: v.DataID,
			Content: v.Content, MD5: v.MD5, Deleted: v.Deleted,
		}
		f, err := wire.NewFrame(wire.KindConfigChangeNotify, "", payload)
		return f, err == nil
	default:
		return wire.Frame{}, false
	}
}

func instanceToWire(i registry.Instance) wire.InstancePayload {
	return wire.InstancePayload{
		IP: i.IP, Port: i.Port, Cluster: i.Cluster, Weight: i.Weight,
		Healthy: i.Healthy, Enabled: i.Enabled, Ephemeral: i.Ephemeral,
		Metadata: i.Metadata, InstanceID: i.InstanceID,
	}
}

func instanceFromWire(p wire.InstancePayload, sessionID string) registry.Instance {
	return registry.Instance{
		IP: p.IP, Port: p.Port, Cluster: p.Cluster, Weight: p.Weight,
		Healthy: p.Healthy, Enabled: p.Enabled, Ephemeral: p.Ephemeral,
		Metadata: p.Metadata, InstanceID: p.InstanceID, SessionID: sessionID,
	}
}
