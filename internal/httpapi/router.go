package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/iam"
	"github.com/easynet-cn/batata/internal/middleware"
	"github.com/easynet-cn/batata/internal/registry"
	"github.com/easynet-cn/batata/internal/repository"
	"github.com/easynet-cn/batata/internal/session"
)

// Pinger is the narrow interface readiness checks a storage backend
// through, satisfied by *bun.DB's PingContext.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Options bundles every core component the HTTP admin surface talks to
// directly, bypassing the session layer.
type Options struct {
	IAM          *iam.Service
	Namespaces   repository.NamespaceRepository
	Registry     *registry.Registry
	Configs      *configstore.Store
	Sessions     *session.Manager
	Switches     *Switches
	DB           Pinger
	NodeID       string
	CORSOrigins  []string
	StartedAt    time.Time
	RootUsername string
}

// NewRouter assembles the chi.Router for the HTTP admin/naming/config
// surface: baseline middleware, CORS, then one mount per endpoint
// family.
func NewRouter(opts Options) chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Use(middleware.NewAuthn(opts.IAM))

	h := &handlers{opts: opts}

	r.Route("/v1/auth", func(r chi.Router) {
		r.Post("/login", h.login)
	})

	r.Route("/v3/auth/user", func(r chi.Router) {
		r.Post("/login", h.login)
		r.With(h.requireWrite).Post("/", h.createUser)
		r.With(h.requireWrite).Put("/", h.updateUserPassword)
		r.With(h.requireWrite).Delete("/", h.deleteUser)
		r.With(h.requireRead).Get("/", h.listUsers)
		r.With(h.requireRead).Get("/search", h.listUsers)
		r.With(h.requireRead).Get("/searchPage", h.listUsers)
	})

	r.Route("/v3/auth/role", func(r chi.Router) {
		r.With(h.requireWrite).Post("/", h.grantRole)
		r.With(h.requireWrite).Delete("/", h.revokeRole)
		r.With(h.requireRead).Get("/", h.listRoles)
		r.With(h.requireRead).Get("/search", h.listRoles)
		r.With(h.requireRead).Get("/searchPage", h.listRoles)
	})

	r.Route("/v3/auth/permission", func(r chi.Router) {
		r.With(h.requireWrite).Post("/", h.grantPermission)
		r.With(h.requireWrite).Delete("/", h.revokePermission)
		r.With(h.requireRead).Get("/", h.listPermissions)
		r.With(h.requireRead).Get("/search", h.listPermissions)
		r.With(h.requireRead).Get("/searchPage", h.listPermissions)
	})

	r.Route("/v2/console/namespace", func(r chi.Router) {
		r.With(h.requireRead).Get("/", h.getNamespace)
		r.With(h.requireRead).Get("/list", h.listNamespaces)
		r.With(h.requireWrite).Post("/", h.createNamespace)
		r.With(h.requireWrite).Put("/", h.updateNamespace)
		r.With(h.requireWrite).Delete("/", h.deleteNamespace)
	})

	for _, prefix := range []string{"/v2/cs/config", "/v3/console/cs/config"} {
		r.Route(prefix, func(r chi.Router) {
			r.With(h.requireReadConfig).Get("/", h.getConfig)
			r.With(h.requireWriteConfig).Post("/", h.publishConfig)
			r.With(h.requireWriteConfig).Delete("/", h.removeConfig)

			r.With(h.requireReadConfig).Get("/beta", h.queryBeta)
			r.With(h.requireWriteConfig).Post("/beta", h.publishBeta)
			r.With(h.requireWriteConfig).Delete("/beta", h.removeBeta)

			r.With(h.requireReadConfig).Get("/aggr", h.listDatums)
			r.With(h.requireWriteConfig).Post("/aggr", h.publishAggregate)
			r.With(h.requireWriteConfig).Delete("/aggr", h.removeAggregate)

			r.With(h.requireReadConfig).Get("/history", h.listHistory)
			r.With(h.requireReadConfig).Get("/history/{nid}", h.getHistory)
			r.With(h.requireReadConfig).Get("/history/previous", h.previousHistory)
			r.With(h.requireWriteConfig).Post("/history/revert", h.revertHistory)

			r.With(h.requireReadConfig).Get("/export", h.exportConfigs)
			r.With(h.requireWriteConfig).Post("/import", h.importConfigs)
		})
	}

	r.Route("/v2/ns/instance", func(r chi.Router) {
		r.With(h.requireWriteService).Post("/", h.registerInstance)
		r.With(h.requireWriteService).Put("/", h.registerInstance)
		r.With(h.requireWriteService).Delete("/", h.deregisterInstance)
		r.With(h.requireReadService).Get("/list", h.queryService)
	})

	r.Route("/v2/ns/service", func(r chi.Router) {
		r.With(h.requireReadService).Get("/", h.queryService)
		r.With(h.requireReadService).Get("/list", h.listServices)
	})

	r.Route("/v2/ns/health/instance", func(r chi.Router) {
		r.With(h.requireWriteService).Put("/", h.updateHealth)
	})

	r.Route("/v2/ns/operator", func(r chi.Router) {
		r.With(h.requireRead).Get("/switches", h.getSwitches)
		r.With(h.requireWrite).Put("/switches", h.updateSwitches)
		r.With(h.requireRead).Get("/metrics", h.getMetrics)
	})

	r.Route("/v2/ns/client", func(r chi.Router) {
		r.With(h.requireRead).Get("/list", h.listClients)
	})

	r.Route("/v2/core/cluster/node", func(r chi.Router) {
		r.Get("/self", h.clusterSelf)
		r.Get("/list", h.clusterList)
		r.Get("/health", h.clusterHealth)
	})

	r.Route("/v3/console/cluster", func(r chi.Router) {
		r.Get("/node/self", h.clusterSelf)
		r.Get("/node/list", h.clusterList)
	})

	r.Route("/v3/console/health", func(r chi.Router) {
		r.Get("/liveness", h.liveness)
		r.Get("/readiness", h.readiness)
	})

	return r
}

// requireRead/requireWrite authorize against a wildcard RBAC resource for
// endpoint families not scoped to a single (namespace, group, dataId), such
// as namespace and IAM administration themselves.
func (h *handlers) requireRead(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, func(r *http.Request) string { return "*:*:*" }, iam.ActionRead)(next)
}

func (h *handlers) requireWrite(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, func(r *http.Request) string { return "*:*:*" }, iam.ActionWrite)(next)
}

func (h *handlers) requireReadConfig(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, configResourceFn, iam.ActionRead)(next)
}

func (h *handlers) requireWriteConfig(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, configResourceFn, iam.ActionWrite)(next)
}

func (h *handlers) requireReadService(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, serviceResourceFn, iam.ActionRead)(next)
}

func (h *handlers) requireWriteService(next http.Handler) http.Handler {
	return middleware.RequireAuth(h.opts.IAM, serviceResourceFn, iam.ActionWrite)(next)
}

type handlers struct {
	opts Options
}
