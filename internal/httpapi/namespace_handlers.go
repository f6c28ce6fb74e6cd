package httpapi

import (
	"net/http"
	"time"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/db/models"
)

type namespaceView struct {
	Namespace         string `json:"namespace"`
	NamespaceShowName string `json:"namespaceShowName"`
	NamespaceDesc     string `json:"namespaceDesc"`
	Quota             int    `json:"quota"`
	ConfigCount       int    `json:"configCount"`
	Type              int    `json:"type"`
}

func toNamespaceView(ns *models.Namespace) namespaceView {
	typ := 2 // custom
	if ns.ID == "public" {
		typ = 0
	}
	return namespaceView{
		Namespace:         ns.ID,
		NamespaceShowName: ns.Name,
		NamespaceDesc:     ns.Description,
		Quota:             200,
		Type:              typ,
	}
}

// listNamespaces handles GET /v2/console/namespace/list.
func (h *handlers) listNamespaces(w http.ResponseWriter, r *http.Request) {
	rows, err := h.opts.Namespaces.List(r.Context())
	if err != nil {
		writeErr(w, apierr.Internal(err))
		return
	}
	out := make([]namespaceView, 0, len(rows))
	for _, ns := range rows {
		out = append(out, toNamespaceView(ns))
	}
	writeOK(w, out)
}

// getNamespace handles GET /v2/console/namespace?namespaceId=.
func (h *handlers) getNamespace(w http.ResponseWriter, r *http.Request) {
	id := namespaceParam(r)
	ns, err := h.opts.Namespaces.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, toNamespaceView(ns))
}

// createNamespace handles POST /v2/console/namespace. A blank
// customNamespaceId lets the server assign one.
func (h *handlers) createNamespace(w http.ResponseWriter, r *http.Request) {
	id := param(r, "customNamespaceId")
	if id == "" {
		id = param(r, "namespaceId")
	}
	if id == "" {
		id = generateNamespaceID()
	}
	name := param(r, "namespaceName")
	if name == "" {
		writeBadRequest(w, "namespaceName is required")
		return
	}

	if err := h.opts.Namespaces.Create(r.Context(), &models.Namespace{
		ID:          id,
		Name:        name,
		Description: param(r, "namespaceDesc"),
	}); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// updateNamespace handles PUT /v2/console/namespace.
func (h *handlers) updateNamespace(w http.ResponseWriter, r *http.Request) {
	id := namespaceParam(r)
	ns, err := h.opts.Namespaces.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if name := param(r, "namespaceName"); name != "" {
		ns.Name = name
	}
	if desc := param(r, "namespaceDesc"); desc != "" {
		ns.Description = desc
	}
	if err := h.opts.Namespaces.Update(r.Context(), ns); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

// deleteNamespace handles DELETE /v2/console/namespace?namespaceId=. Rejects
// a namespace that still holds services or configs.
func (h *handlers) deleteNamespace(w http.ResponseWriter, r *http.Request) {
	id := namespaceParam(r)
	if id == "public" {
		writeErr(w, apierr.InvalidArgument("the public namespace cannot be deleted"))
		return
	}

	if _, total := h.opts.Registry.ListServices(id, "", 1, 1); total > 0 {
		writeErr(w, apierr.Conflict("namespace %q still has %d service(s)", id, total))
		return
	}
	if _, total, err := h.opts.Configs.ListEntries(r.Context(), id, "", 1, 1); err != nil {
		writeErr(w, err)
		return
	} else if total > 0 {
		writeErr(w, apierr.Conflict("namespace %q still has %d config(s)", id, total))
		return
	}

	if err := h.opts.Namespaces.Delete(r.Context(), id); err != nil {
		writeErr(w, err)
		return
	}
	writeOK(w, true)
}

func generateNamespaceID() string {
	return "ns-" + time.Now().UTC().Format("20060102T150405.000000000")
}
