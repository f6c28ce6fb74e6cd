package notify

import (
	"context"

	"github.com/easynet-cn/batata/internal/configstore"
)

// StoreNotifier adapts a *Bus to configstore.Notifier, the interface the
// config store calls after every successful publish or remove.
type StoreNotifier struct {
	Bus *Bus
}

func (n StoreNotifier) OnChange(key configstore.Key, content, md5 string, deleted bool) {
	n.Bus.OnChange(context.Background(), key.Namespace, key.Group, key.DataID, content, md5, deleted)
}
