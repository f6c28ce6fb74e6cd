package httpapi

import (
	"io"
	"net/http"
	"strconv"

	"github.com/easynet-cn/batata/internal/configstore"
)

func configKey(r *http.Request) configstore.Key {
	return configstore.Key{Namespace: namespaceParam(r), Group: groupParam(r), DataID: dataIDParam(r)}
}

// getConfig handles GET /{v2,v3}/.../cs/config.
func (h *handlers) getConfig(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	if key.DataID == "" {
		writeBadRequest(w, "dataId is required")
		return
	}
	entry, err := h.opts.Configs.Get(r.Context(), key, clientIPOf(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, entry)
}

// publishConfig handles POST /{v2,v3}/.../cs/config.
func (h *handlers) publishConfig(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	if key.DataID == "" {
		writeBadRequest(w, "dataId is required")
		return
	}
	content := param(r, "content")
	typ := param(r, "type")
	if err := h.opts.Configs.Publish(r.Context(), key, content, typ); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// removeConfig handles DELETE /{v2,v3}/.../cs/config.
func (h *handlers) removeConfig(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	if key.DataID == "" {
		writeBadRequest(w, "dataId is required")
		return
	}
	if err := h.opts.Configs.Remove(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// queryBeta handles GET .../cs/config/beta.
func (h *handlers) queryBeta(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	gray, err := h.opts.Configs.QueryBeta(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, gray)
}

// publishBeta handles POST .../cs/config/beta. betaIps
// is a comma-separated client IP allowlist.
func (h *handlers) publishBeta(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	content := param(r, "content")
	ips := splitIPList(param(r, "betaIps"))
	if err := h.opts.Configs.PublishBeta(r.Context(), key, content, ips); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// removeBeta handles DELETE .../cs/config/beta.
func (h *handlers) removeBeta(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	if err := h.opts.Configs.RemoveBeta(r.Context(), key); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// listDatums handles GET .../cs/config/aggr.
func (h *handlers) listDatums(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	if paramBool(r, "count", false) {
		n, err := h.opts.Configs.CountDatums(r.Context(), key)
		if err != nil {
			writeErr(w, err)
			return
		}
		writeOK(w, n)
		return
	}
	datums, err := h.opts.Configs.ListDatums(r.Context(), key)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, datums)
}

// publishAggregate handles POST .../cs/config/aggr.
func (h *handlers) publishAggregate(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	datumID := param(r, "datumId")
	content := param(r, "content")
	if datumID == "" {
		writeBadRequest(w, "datumId is required")
		return
	}
	if err := h.opts.Configs.PublishAggregate(r.Context(), key, datumID, content); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// removeAggregate handles DELETE .../cs/config/aggr.
func (h *handlers) removeAggregate(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	datumID := param(r, "datumId")
	if datumID == "" {
		writeBadRequest(w, "datumId is required")
		return
	}
	if err := h.opts.Configs.RemoveAggregate(r.Context(), key, datumID); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// listHistory handles GET .../cs/config/history.
func (h *handlers) listHistory(w http.ResponseWriter, r *http.Request) {
	key := configKey(r)
	page := paramInt(r, "pageNo", 1)
	pageSize := paramInt(r, "pageSize", 100)
	rows, total, err := h.opts.Configs.ListHistory(r.Context(), key, page, pageSize)
	if err != nil {
		writeErr(w, err)
		return
	}

	if selector := param(r, "selector"); selector != "" {
		filtered := rows[:0:0]
		for _, rec := range rows {
			if matchSelector(selector, historyAttrs(rec.NID, string(rec.Op), rec.Type, rec.MD5)) {
				filtered = append(filtered, rec)
			}
		}
		rows = filtered
		total = len(filtered)
	}

	writeOK(w, map[string]any{
		"totalCount":     total,
		"pageNumber":     page,
		"pagesAvailable": pagesAvailable(total, pageSize),
		"pageItems":      rows,
	})
}

// getHistory handles GET .../cs/config/history/{nid}.
func (h *handlers) getHistory(w http.ResponseWriter, r *http.Request) {
	nid, err := strconv.ParseInt(chiURLParam(r, "nid"), 10, 64)
	if err != nil {
		writeBadRequest(w, "nid must be an integer")
		return
	}
	key := configKey(r)
	rec, err := h.opts.Configs.GetHistory(r.Context(), key, nid)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rec)
}

// revertHistory handles POST .../cs/config/history/revert?nid=.
func (h *handlers) revertHistory(w http.ResponseWriter, r *http.Request) {
	nid, err := strconv.ParseInt(param(r, "nid"), 10, 64)
	if err != nil {
		writeBadRequest(w, "nid must be an integer")
		return
	}
	key := configKey(r)
	if err := h.opts.Configs.RevertTo(r.Context(), key, nid); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// previousHistory handles GET .../cs/config/history/previous?id=.
func (h *handlers) previousHistory(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(param(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "id must be an integer")
		return
	}
	key := configKey(r)
	rec, err := h.opts.Configs.PreviousHistory(r.Context(), key, id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, rec)
}

// exportConfigs handles GET .../cs/config/export.
func (h *handlers) exportConfigs(w http.ResponseWriter, r *http.Request) {
	data, err := h.opts.Configs.ExportZip(r.Context(), namespaceParam(r), param(r, "group"))
	if err != nil {
		writeErr(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", `attachment; filename="config-export.zip"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// importConfigs handles POST .../cs/config/import, accepting a raw zip body
// built by exportConfigs. policy defaults to SKIP.
func (h *handlers) importConfigs(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, 64<<20))
	if err != nil {
		writeBadRequest(w, "failed to read archive body")
		return
	}
	policy := configstore.ImportPolicy(paramDefault(r, "policy", string(configstore.ImportSkip)))

	report, err := h.opts.Configs.ImportZip(r.Context(), namespaceParam(r), data, policy)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, report)
}
