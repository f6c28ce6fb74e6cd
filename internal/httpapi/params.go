package httpapi

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/easynet-cn/batata/internal/iam"
)

// chiURLParam reads a path parameter chi bound via its route pattern.
func chiURLParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// actionOf normalizes a raw action string to the iam.Action vocabulary,
// defaulting to read when the caller sent something else.
func actionOf(raw string) iam.Action {
	switch raw {
	case string(iam.ActionWrite):
		return iam.ActionWrite
	case string(iam.ActionReadWrite):
		return iam.ActionReadWrite
	default:
		return iam.ActionRead
	}
}

// param reads a value from the parsed form first (covers POST/PUT bodies
// encoded as application/x-www-form-urlencoded, the convention every Nacos
// admin endpoint uses) and falls back to the query string, matching how the
// console's own client populates requests regardless of HTTP verb.
func param(r *http.Request, name string) string {
	_ = r.ParseForm()
	return r.Form.Get(name)
}

func paramDefault(r *http.Request, name, def string) string {
	if v := param(r, name); v != "" {
		return v
	}
	return def
}

func paramInt(r *http.Request, name string, def int) int {
	v := param(r, name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func paramBool(r *http.Request, name string, def bool) bool {
	v := param(r, name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func paramFloat(r *http.Request, name string, def float64) float64 {
	v := param(r, name)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func namespaceParam(r *http.Request) string {
	ns := param(r, "namespaceId")
	if ns == "" {
		ns = param(r, "tenant")
	}
	if ns == "" {
		return "public"
	}
	return ns
}

func groupParam(r *http.Request) string {
	g := param(r, "group")
	if g == "" {
		g = param(r, "groupName")
	}
	if g == "" {
		return "DEFAULT_GROUP"
	}
	return g
}

func dataIDParam(r *http.Request) string {
	id := param(r, "dataId")
	if id == "" {
		id = param(r, "dataID")
	}
	return id
}

// clientIPOf reports the request's source IP without the port. RealIP
// middleware has already rewritten RemoteAddr when a proxy header is
// present, in which case no port suffix remains to strip.
func clientIPOf(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// splitIPList parses the comma-separated IP allowlist of a gray release
// request.
func splitIPList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// configResourceFn derives the three-part RBAC resource a config request
// authorizes against from its namespace/group/dataId.
func configResourceFn(r *http.Request) string {
	return namespaceParam(r) + ":" + groupParam(r) + ":" + dataIDParam(r)
}

// serviceResourceFn derives the RBAC resource a naming request authorizes
// against; the service name stands in for dataId in the resource triple.
func serviceResourceFn(r *http.Request) string {
	return namespaceParam(r) + ":" + groupParam(r) + ":" + param(r, "serviceName")
}
