package rpcserver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/iam"
	"github.com/easynet-cn/batata/internal/notify"
	"github.com/easynet-cn/batata/internal/registry"
	"github.com/easynet-cn/batata/internal/repository/memory"
	"github.com/easynet-cn/batata/internal/session"
	"github.com/easynet-cn/batata/internal/subscription"
	"github.com/easynet-cn/batata/internal/wire"
)

// fakeStream is an in-memory wire.Stream driven directly by test code
// instead of a real gRPC transport.
type fakeStream struct {
	ctx context.Context
	in  chan *wire.Frame
	out chan *wire.Frame
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		ctx: context.Background(),
		in:  make(chan *wire.Frame, 16),
		out: make(chan *wire.Frame, 16),
	}
}

func (s *fakeStream) Context() context.Context { return s.ctx }

func (s *fakeStream) Send(f *wire.Frame) error {
	s.out <- f
	return nil
}

func (s *fakeStream) Recv() (*wire.Frame, error) {
	f, ok := <-s.in
	if !ok {
		return nil, errStreamClosed
	}
	return f, nil
}

var errStreamClosed = assertionError("fake stream closed")

type assertionError string

func (e assertionError) Error() string { return string(e) }

func newTestServer(t *testing.T) *Server {
	t.Helper()

	store := memory.NewStore()
	enforcer, err := iam.NewTestEnforcer()
	require.NoError(t, err)
	iamSvc, err := iam.NewService(enforcer, store.Users(), store.Roles(), store.Permissions(), store.Tokens(),
		5*time.Hour, 0, "root")
	require.NoError(t, err)

	subs := subscription.NewBus()
	reg := registry.NewRegistry(subs, nil, 0, nil)
	notifyBus := notify.NewBus(nil, nil)
	configs := configstore.NewStore(store.Configs(), store.Gray(), store.Aggregates(), store.History(), notify.StoreNotifier{Bus: notifyBus})
	sessions := session.NewManager(reg, notifyBus, subs, session.Options{})

	return New(sessions, reg, subs, configs, notifyBus, iamSvc, true)
}

func connectAnonymous(t *testing.T, s *Server) (*fakeStream, chan error) {
	t.Helper()
	stream := newFakeStream()
	setup, err := wire.NewFrame(wire.KindConnectionSetup, "", wire.ConnectionSetupPayload{})
	require.NoError(t, err)
	stream.in <- &setup

	done := make(chan error, 1)
	go func() { done <- s.Connect(stream) }()
	return stream, done
}

// connectAsRoot opens a session authenticated as the root account, which
// Authorize always allows, for tests of handlers that authorize.
func connectAsRoot(t *testing.T, s *Server) (*fakeStream, chan error) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.IAM.CreateUser(ctx, "root", "pw"))
	token, err := s.IAM.Login(ctx, "root", "pw")
	require.NoError(t, err)

	stream := newFakeStream()
	setup, err := wire.NewFrame(wire.KindConnectionSetup, "", wire.ConnectionSetupPayload{AccessToken: token})
	require.NoError(t, err)
	stream.in <- &setup

	done := make(chan error, 1)
	go func() { done <- s.Connect(stream) }()
	return stream, done
}

// request sends a frame and waits for its correlated reply, skipping any
// server-push frames (empty RequestID) the pump interleaves on the stream.
func request(t *testing.T, stream *fakeStream, kind wire.Kind, requestID string, payload any) *wire.Frame {
	t.Helper()
	f, err := wire.NewFrame(kind, requestID, payload)
	require.NoError(t, err)
	stream.in <- &f
	for {
		resp := <-stream.out
		if resp.RequestID == requestID {
			return resp
		}
	}
}

func TestPingRoundTrip(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAnonymous(t, s)

	resp := request(t, stream, wire.KindPing, "r1", wire.PingPayload{})
	assert.Equal(t, wire.KindPong, resp.Type)
	assert.Equal(t, "r1", resp.RequestID)

	close(stream.in)
	<-done
}

func TestInstanceRegisterThenServiceQuery(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAsRoot(t, s)

	resp := request(t, stream, wire.KindInstanceRegister, "r1", wire.InstanceRegisterPayload{
		Instance: wire.InstancePayload{
			Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc1",
			IP: "10.0.0.1", Port: 8080, Healthy: true, Enabled: true,
		},
	})
	require.Equal(t, wire.KindAck, resp.Type)

	resp = request(t, stream, wire.KindServiceQuery, "r2", wire.ServiceQueryPayload{
		Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc1",
	})
	require.Equal(t, wire.KindServiceQueryResult, resp.Type)

	var result wire.ServiceInfoPayload
	require.NoError(t, resp.Decode(&result))
	require.Len(t, result.Hosts, 1)
	assert.Equal(t, "10.0.0.1", result.Hosts[0].IP)

	close(stream.in)
	<-done
}

func TestSubscribeServiceReceivesPushOnChange(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAsRoot(t, s)

	resp := request(t, stream, wire.KindSubscribeService, "r1", wire.SubscribeServicePayload{
		Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc1",
	})
	require.Equal(t, wire.KindAck, resp.Type)

	// registering an instance publishes a change; the session's pump
	// translates it into a NotifySubscriber push on the same stream. The
	// push and the register Ack race on the outbound side, so collect
	// frames until both have been seen.
	regFrame, err := wire.NewFrame(wire.KindInstanceRegister, "r2", wire.InstanceRegisterPayload{
		Instance: wire.InstancePayload{
			Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc1",
			IP: "10.0.0.2", Port: 9090, Healthy: true, Enabled: true,
		},
	})
	require.NoError(t, err)
	stream.in <- &regFrame

	var info wire.ServiceInfoPayload
	sawAck, sawPush := false, false
	for !sawAck || !sawPush {
		f := <-stream.out
		switch {
		case f.RequestID == "r2":
			require.Equal(t, wire.KindAck, f.Type)
			sawAck = true
		case f.Type == wire.KindNotifySubscriber:
			require.NoError(t, f.Decode(&info))
			if len(info.Hosts) > 0 {
				sawPush = true
			}
		}
	}
	assert.Equal(t, "svc1", info.Name)
	assert.Equal(t, "10.0.0.2", info.Hosts[0].IP)

	close(stream.in)
	<-done
}

func TestConfigPublishThenQuery(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAsRoot(t, s)

	resp := request(t, stream, wire.KindConfigPublish, "r1", wire.ConfigPublishPayload{
		Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", Content: "hello=world",
	})
	require.Equal(t, wire.KindAck, resp.Type)

	resp = request(t, stream, wire.KindConfigQuery, "r2", wire.ConfigQueryPayload{
		Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1",
	})
	require.Equal(t, wire.KindConfigQueryResult, resp.Type)

	var result wire.ConfigQueryResultPayload
	require.NoError(t, resp.Decode(&result))
	assert.Equal(t, "hello=world", result.Content)
	assert.Equal(t, configstore.TypeText, result.Type)

	close(stream.in)
	<-done
}

func TestConfigBatchListenReportsStaleFingerprint(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAsRoot(t, s)

	require.Equal(t, wire.KindAck, request(t, stream, wire.KindConfigPublish, "r1", wire.ConfigPublishPayload{
		Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", Content: "v1",
	}).Type)

	resp := request(t, stream, wire.KindConfigBatchListen, "r2", wire.ConfigBatchListenPayload{
		Fingerprints: []wire.ConfigFingerprintPayload{
			{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", MD5: "stale"},
		},
		Listen: true,
	})
	require.Equal(t, wire.KindConfigBatchListenResult, resp.Type)

	var result wire.ConfigBatchListenResultPayload
	require.NoError(t, resp.Decode(&result))
	require.Len(t, result.Changed, 1)
	assert.Equal(t, "cfg1", result.Changed[0].DataID)

	close(stream.in)
	<-done
}

func TestLateFrameAfterCloseIsRejectedNotResurrected(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAnonymous(t, s)

	require.Equal(t, wire.KindPong, request(t, stream, wire.KindPing, "r1", wire.PingPayload{}).Type)

	// cleanup runs while the dispatch loop is still blocked in Recv, the
	// same shape as a grace-timeout expiry racing an in-flight frame.
	s.Sessions.CloseAll(context.Background())

	f, err := wire.NewFrame(wire.KindInstanceRegister, "r2", wire.InstanceRegisterPayload{
		Instance: wire.InstancePayload{
			Namespace: "public", Group: "DEFAULT_GROUP", Service: "svc-late",
			IP: "10.0.0.9", Port: 9999, Ephemeral: true, Healthy: true, Enabled: true,
		},
	})
	require.NoError(t, err)
	stream.in <- &f

	resp := <-stream.out
	require.Equal(t, wire.KindErrorResponse, resp.Type)
	var payload wire.ErrorPayload
	require.NoError(t, resp.Decode(&payload))
	assert.Contains(t, payload.Message, "session closed")

	// the rejected frame must not have reached the registry.
	_, err = s.Registry.Query(registry.Key{Namespace: "public", Group: "DEFAULT_GROUP", Name: "svc-late"}, nil, false)
	assert.Error(t, err)

	<-done
}

func TestUnknownFrameKindIsIgnored(t *testing.T) {
	s := newTestServer(t)
	stream, done := connectAnonymous(t, s)

	f, err := wire.NewFrame(wire.Kind("NotARealKind"), "r1", struct{}{})
	require.NoError(t, err)
	stream.in <- &f

	// the server should keep processing after an unknown kind rather than
	// tear the connection down.
	resp := request(t, stream, wire.KindPing, "r2", wire.PingPayload{})
	assert.Equal(t, wire.KindPong, resp.Type)

	close(stream.in)
	<-done
}
