// Package wire defines the bidirectional streaming protocol frames, tagged
// by a Kind that the RPC server's request-kind → handler dispatch table
// keys on in place of dynamic dispatch on request types.
package wire

import "encoding/json"

// Kind is the discriminant of a Frame: a tagged variant with an explicit
// discriminant in place of a class hierarchy of event types.
type Kind string

// Client-to-server request kinds.
const (
	KindConnectionSetup       Kind = "ConnectionSetup"
	KindPing                  Kind = "Ping"
	KindInstanceRegister      Kind = "InstanceRegister"
	KindInstanceDeregister    Kind = "InstanceDeregister"
	KindBatchInstanceRegister Kind = "BatchInstanceRegister"
	KindServiceQuery          Kind = "ServiceQuery"
	KindServiceListQuery      Kind = "ServiceListQuery"
	KindSubscribeService      Kind = "SubscribeService"
	KindUnsubscribeService    Kind = "UnsubscribeService"
	KindConfigPublish         Kind = "ConfigPublish"
	KindConfigQuery           Kind = "ConfigQuery"
	KindConfigRemove          Kind = "ConfigRemove"
	KindConfigBatchListen     Kind = "ConfigBatchListen"
)

// Server-to-client push kinds.
const (
	KindConnectResetRequest    Kind = "ConnectResetRequest"
	KindClientDetectionRequest Kind = "ClientDetectionRequest"
	KindNotifySubscriber       Kind = "NotifySubscriber"
	KindConfigChangeNotify     Kind = "ConfigChangeNotify"
	KindPong                   Kind = "Pong"
	KindErrorResponse          Kind = "ErrorResponse"
)

// Request/response kinds that don't double as a push (direct RPC-style
// replies on the same stream, correlated by RequestID).
const (
	KindAck                     Kind = "Ack"
	KindServiceQueryResult      Kind = "ServiceQueryResult"
	KindServiceListQueryResult  Kind = "ServiceListQueryResult"
	KindConfigQueryResult       Kind = "ConfigQueryResult"
	KindConfigBatchListenResult Kind = "ConfigBatchListenResult"
)

// Frame is the single wire envelope carried over the stream in both
// directions. Payload is kept as raw JSON and decoded into the concrete
// type the handler table expects for Type.
type Frame struct {
	Type      Kind            `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewFrame marshals payload into a Frame of the given kind.
func NewFrame(kind Kind, requestID string, payload any) (Frame, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Type: kind, RequestID: requestID, Payload: raw}, nil
}

// Decode unmarshals f.Payload into out.
func (f Frame) Decode(out any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	return json.Unmarshal(f.Payload, out)
}

// ConnectionSetupPayload carries the handshake's credentials, if any.
type ConnectionSetupPayload struct {
	AccessToken string `json:"accessToken,omitempty"`
	ClientID    string `json:"clientId,omitempty"`
}

type PingPayload struct{}
type PongPayload struct{}

// InstancePayload mirrors registry.Instance on the wire.
type InstancePayload struct {
	Namespace  string            `json:"namespace"`
	Group      string            `json:"group"`
	Service    string            `json:"service"`
	Cluster    string            `json:"cluster,omitempty"`
	IP         string            `json:"ip"`
	Port       int               `json:"port"`
	Weight     float64           `json:"weight"`
	Healthy    bool              `json:"healthy"`
	Enabled    bool              `json:"enabled"`
	Ephemeral  bool              `json:"ephemeral"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	InstanceID string            `json:"instanceId,omitempty"`
}

type InstanceRegisterPayload struct {
	Instance InstancePayload `json:"instance"`
}

type InstanceDeregisterPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	Service   string `json:"service"`
	Cluster   string `json:"cluster,omitempty"`
	IP        string `json:"ip"`
	Port      int    `json:"port"`
}

type BatchInstanceRegisterPayload struct {
	Namespace string            `json:"namespace"`
	Group     string            `json:"group"`
	Service   string            `json:"service"`
	Instances []InstancePayload `json:"instances"`
}

type ServiceQueryPayload struct {
	Namespace   string   `json:"namespace"`
	Group       string   `json:"group"`
	Service     string   `json:"service"`
	Clusters    []string `json:"clusters,omitempty"`
	HealthyOnly bool     `json:"healthyOnly"`
}

type ServiceListQueryPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	Page      int    `json:"page"`
	PageSize  int    `json:"pageSize"`
}

type SubscribeServicePayload struct {
	Namespace     string `json:"namespace"`
	Group         string `json:"group"`
	Service       string `json:"service"`
	ClusterFilter string `json:"clusterFilter,omitempty"`
}

type ConfigPublishPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	DataID    string `json:"dataId"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
}

type ConfigQueryPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	DataID    string `json:"dataId"`
}

type ConfigRemovePayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	DataID    string `json:"dataId"`
}

type ConfigFingerprintPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	DataID    string `json:"dataId"`
	MD5       string `json:"md5"`
}

type ConfigBatchListenPayload struct {
	Fingerprints []ConfigFingerprintPayload `json:"fingerprints"`
	Listen       bool                       `json:"listen"` // true=listen, false=unlisten
}

// ServiceInfoPayload mirrors registry.ServiceInfo for NotifySubscriber
// pushes.
type ServiceInfoPayload struct {
	Namespace   string            `json:"namespace"`
	Group       string            `json:"group"`
	Name        string            `json:"name"`
	Clusters    string            `json:"clusters,omitempty"`
	Hosts       []InstancePayload `json:"hosts"`
	CacheMillis int64             `json:"cacheMillis"`
	Revision    uint64            `json:"revision"`
}

// ConfigChangeNotifyPayload mirrors notify.ChangeNotification.
type ConfigChangeNotifyPayload struct {
	Namespace string `json:"namespace"`
	Group     string `json:"group"`
	DataID    string `json:"dataId"`
	Content   string `json:"content,omitempty"`
	MD5       string `json:"md5,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

type AckPayload struct{}

type ServiceListQueryResultPayload struct {
	Names []string `json:"names"`
	Total int      `json:"total"`
}

type ConfigQueryResultPayload struct {
	Content string `json:"content"`
	Type    string `json:"type"`
	MD5     string `json:"md5"`
}

type ConfigBatchListenResultPayload struct {
	Changed []ConfigFingerprintPayload `json:"changed"`
}
