package notify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPusher struct {
	pushed map[string][]any
}

func newRecordingPusher() *recordingPusher { return &recordingPusher{pushed: make(map[string][]any)} }

func (p *recordingPusher) TryPush(sessionID string, frame any) bool {
	p.pushed[sessionID] = append(p.pushed[sessionID], frame)
	return true
}

func staticCurrent(md5 string, found bool) currentFn {
	return func(namespace, group, dataID string) (string, bool) { return md5, found }
}

func TestListenReturnsStaleFingerprintsImmediately(t *testing.T) {
	bus := NewBus(nil, nil)
	fps := []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", MD5: "stale"}}

	changed := bus.Listen("s1", fps, staticCurrent("fresh", true))
	require.Len(t, changed, 1)
	assert.Equal(t, "cfg1", changed[0].DataID)
}

func TestListenNotFoundIsTreatedAsChanged(t *testing.T) {
	bus := NewBus(nil, nil)
	fps := []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "missing", MD5: "anything"}}

	changed := bus.Listen("s1", fps, staticCurrent("", false))
	assert.Len(t, changed, 1)
}

func TestListenMatchingFingerprintNotReturned(t *testing.T) {
	bus := NewBus(nil, nil)
	fps := []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", MD5: "same"}}

	changed := bus.Listen("s1", fps, staticCurrent("same", true))
	assert.Empty(t, changed)
}

func TestOnChangePushesToRegisteredListeners(t *testing.T) {
	bus := NewBus(nil, newRecordingPusher())
	pusher := bus.pusher.(*recordingPusher)

	bus.Listen("s1", []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", MD5: "old"}}, nil)
	bus.OnChange(context.Background(), "public", "DEFAULT_GROUP", "cfg1", "new content", "new-md5", false)

	require.Len(t, pusher.pushed["s1"], 1)
	note := pusher.pushed["s1"][0].(ChangeNotification)
	assert.Equal(t, "new content", note.Content)
	assert.False(t, note.Deleted)
}

func TestOnChangeDeleteSendsSentinel(t *testing.T) {
	bus := NewBus(nil, newRecordingPusher())
	pusher := bus.pusher.(*recordingPusher)

	bus.Listen("s1", []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1", MD5: "old"}}, nil)
	bus.OnChange(context.Background(), "public", "DEFAULT_GROUP", "cfg1", "", "", true)

	require.Len(t, pusher.pushed["s1"], 1)
	note := pusher.pushed["s1"][0].(ChangeNotification)
	assert.True(t, note.Deleted)
	assert.Empty(t, note.Content)
}

func TestUnlistenRemovesListener(t *testing.T) {
	bus := NewBus(nil, nil)
	bus.Listen("s1", []Fingerprint{{Namespace: "public", Group: "DEFAULT_GROUP", DataID: "cfg1"}}, nil)
	assert.Equal(t, 1, bus.ListenerCount("public", "DEFAULT_GROUP", "cfg1"))

	bus.Unlisten(context.Background(), "s1", "public", "DEFAULT_GROUP", "cfg1")
	assert.Equal(t, 0, bus.ListenerCount("public", "DEFAULT_GROUP", "cfg1"))
}
