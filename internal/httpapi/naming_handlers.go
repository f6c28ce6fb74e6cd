package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/registry"
)

func serviceKey(r *http.Request) registry.Key {
	return registry.Key{Namespace: namespaceParam(r), Group: groupParam(r), Name: param(r, "serviceName")}
}

func metadataParam(r *http.Request) map[string]string {
	raw := param(r, "metadata")
	if raw == "" {
		return nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil
	}
	return m
}

// registerInstance handles POST and PUT /v2/ns/instance. HTTP-registered
// instances are always persistent: unlike the RPC surface, no session owns
// them to drive heartbeat-based cleanup.
func (h *handlers) registerInstance(w http.ResponseWriter, r *http.Request) {
	k := serviceKey(r)
	if k.Name == "" {
		writeBadRequest(w, "serviceName is required")
		return
	}
	inst := registry.Instance{
		IP:        param(r, "ip"),
		Port:      paramInt(r, "port", 0),
		Cluster:   paramDefault(r, "clusterName", registry.DefaultCluster),
		Weight:    paramFloat(r, "weight", 1.0),
		Healthy:   paramBool(r, "healthy", true),
		Enabled:   paramBool(r, "enabled", true),
		Ephemeral: false,
		Metadata:  metadataParam(r),
	}
	if err := h.opts.Registry.Register(r.Context(), k, inst); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// deregisterInstance handles DELETE /v2/ns/instance.
func (h *handlers) deregisterInstance(w http.ResponseWriter, r *http.Request) {
	k := serviceKey(r)
	if k.Name == "" {
		writeBadRequest(w, "serviceName is required")
		return
	}
	cluster := paramDefault(r, "clusterName", registry.DefaultCluster)
	if err := h.opts.Registry.Deregister(r.Context(), k.Namespace, k.Group, k.Name, cluster, param(r, "ip"), paramInt(r, "port", 0)); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// updateHealth handles PUT /v2/ns/health/instance, the admin health
// override for persistent instances.
func (h *handlers) updateHealth(w http.ResponseWriter, r *http.Request) {
	k := serviceKey(r)
	cluster := paramDefault(r, "clusterName", registry.DefaultCluster)
	healthy := paramBool(r, "healthy", true)
	if err := h.opts.Registry.UpdateHealth(r.Context(), k, cluster, param(r, "ip"), paramInt(r, "port", 0), healthy); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, "ok")
}

// queryService handles GET /v2/ns/instance/list and /v2/ns/service.
func (h *handlers) queryService(w http.ResponseWriter, r *http.Request) {
	k := serviceKey(r)
	if k.Name == "" {
		writeBadRequest(w, "serviceName is required")
		return
	}
	var clusters []string
	if c := param(r, "clusters"); c != "" {
		clusters = strings.Split(c, ",")
	}
	healthyOnly := paramBool(r, "healthyOnly", false)

	info, err := h.opts.Registry.Query(k, clusters, healthyOnly)
	if err != nil {
		writeErr(w, err)
		return
	}

	if selector := param(r, "selector"); selector != "" {
		filtered := info.Hosts[:0:0]
		for _, inst := range info.Hosts {
			attrs := instanceAttrs(inst.IP, inst.Port, inst.Cluster, inst.Weight, inst.Healthy, inst.Enabled, inst.Metadata)
			if matchSelector(selector, attrs) {
				filtered = append(filtered, inst)
			}
		}
		info.Hosts = filtered
	}

	writeOK(w, info)
}

// listServices handles GET /v2/ns/service/list.
func (h *handlers) listServices(w http.ResponseWriter, r *http.Request) {
	page := paramInt(r, "pageNo", 1)
	pageSize := paramInt(r, "pageSize", 100)
	names, total := h.opts.Registry.ListServices(namespaceParam(r), groupParam(r), page, pageSize)
	writeOK(w, map[string]any{"count": total, "doms": names})
}

// getSwitches handles GET /v2/ns/operator/switches.
func (h *handlers) getSwitches(w http.ResponseWriter, r *http.Request) {
	writeOK(w, h.opts.Switches.snapshot())
}

// updateSwitches handles PUT /v2/ns/operator/switches?entry=&value=.
func (h *handlers) updateSwitches(w http.ResponseWriter, r *http.Request) {
	entry := param(r, "entry")
	value := param(r, "value")
	if entry == "" {
		writeBadRequest(w, "entry is required")
		return
	}
	if !h.opts.Switches.set(entry, value) {
		writeErr(w, apierr.InvalidArgument("unknown or invalid switch %q", entry))
		return
	}
	writeOK(w, "ok")
}

// getMetrics handles GET /v2/ns/operator/metrics: a coarse panel of service,
// instance, and connection counts.
func (h *handlers) getMetrics(w http.ResponseWriter, r *http.Request) {
	serviceCount, instanceCount := h.opts.Registry.Stats()
	connectionCount := 0
	if h.opts.Sessions != nil {
		connectionCount = h.opts.Sessions.Count()
	}
	writeOK(w, map[string]any{
		"serviceCount":    serviceCount,
		"instanceCount":   instanceCount,
		"connectionCount": connectionCount,
		"uptimeSeconds":   int64(time.Since(h.opts.StartedAt).Seconds()),
	})
}

// listClients handles GET /v2/ns/client/list: the number of live RPC
// sessions, standing in for Nacos's per-client connection inventory since
// batata's session layer doesn't retain a client-facing attribute set.
func (h *handlers) listClients(w http.ResponseWriter, r *http.Request) {
	count := 0
	if h.opts.Sessions != nil {
		count = h.opts.Sessions.Count()
	}
	writeOK(w, map[string]any{"count": count})
}
