package rpcserver

import (
	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/wire"
)

func errorPayload(err error) wire.ErrorPayload {
	return wire.ErrorPayload{Kind: apierr.KindOf(err).String(), Message: err.Error()}
}

// resourcePattern builds the three-part RBAC resource coordinate a config
// or service operation authorizes against.
func resourcePattern(namespace, group, id string) string {
	if namespace == "" {
		namespace = "public"
	}
	if group == "" {
		group = "DEFAULT_GROUP"
	}
	return namespace + ":" + group + ":" + id
}
