package rpcserver

import (
	"context"

	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/notify"
	"github.com/easynet-cn/batata/internal/session"
)

// sessionGrayResolver adapts the session manager and config store to
// notify.GrayResolver: a listener's gray visibility depends on the client
// IP captured when its owning session connected.
type sessionGrayResolver struct {
	sessions *session.Manager
	configs  *configstore.Store
}

// NewGrayResolver builds the notify.GrayResolver the composition root wires
// into notify.NewBus.
func NewGrayResolver(sessions *session.Manager, configs *configstore.Store) notify.GrayResolver {
	return sessionGrayResolver{sessions: sessions, configs: configs}
}

func (g sessionGrayResolver) ResolveForSession(ctx context.Context, sessionID, namespace, group, dataID string) (content, md5 string, isGray bool) {
	sess, err := g.sessions.Get(sessionID)
	if err != nil {
		return "", "", false
	}
	return g.configs.GrayContentFor(ctx, configstore.Key{Namespace: namespace, Group: group, DataID: dataID}, sess.ClientIP)
}

// sessionNotifyPusher adapts the session manager to notify.Pusher: a
// config-change notification is enqueued by session ID rather than by a
// bound *session.Session, since the notify bus's listeners outlive any
// single dispatch call.
type sessionNotifyPusher struct {
	sessions *session.Manager
}

// NewNotifyPusher builds the notify.Pusher the composition root wires into
// notify.NewBus.
func NewNotifyPusher(sessions *session.Manager) notify.Pusher {
	return sessionNotifyPusher{sessions: sessions}
}

func (p sessionNotifyPusher) TryPush(sessionID string, frame any) bool {
	sess, err := p.sessions.Get(sessionID)
	if err != nil {
		return false
	}
	return sess.TryPush(frame)
}
