package httpapi

import (
	"context"
	"net/http"
	"time"
)

type clusterNode struct {
	NodeID  string `json:"nodeId"`
	Address string `json:"address"`
	State   string `json:"state"`
}

// clusterSelf handles GET /v2/core/cluster/node/self and
// /v3/console/cluster/node/self. batata runs single-node, so self is
// always the whole cluster view.
func (h *handlers) clusterSelf(w http.ResponseWriter, r *http.Request) {
	writeOK(w, clusterNode{NodeID: h.opts.NodeID, Address: r.Host, State: "UP"})
}

// clusterList handles GET /v2/core/cluster/node/list and
// /v3/console/cluster/node/list.
func (h *handlers) clusterList(w http.ResponseWriter, r *http.Request) {
	writeOK(w, []clusterNode{{NodeID: h.opts.NodeID, Address: r.Host, State: "UP"}})
}

// clusterHealth handles GET /v2/core/cluster/node/health.
func (h *handlers) clusterHealth(w http.ResponseWriter, r *http.Request) {
	writeOK(w, "UP")
}

// liveness handles GET /v3/console/health/liveness: the process is up.
func (h *handlers) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Envelope{Code: 0, Message: "ok"})
}

// readiness handles GET /v3/console/health/readiness: the process is up
// and its storage backend answers.
func (h *handlers) readiness(w http.ResponseWriter, r *http.Request) {
	if h.opts.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.opts.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, Envelope{Code: http.StatusServiceUnavailable, Message: "storage backend unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, Envelope{Code: 0, Message: "ok"})
}
