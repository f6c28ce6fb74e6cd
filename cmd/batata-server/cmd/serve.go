package cmd

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"github.com/easynet-cn/batata/internal/apierr"
	"github.com/easynet-cn/batata/internal/configstore"
	"github.com/easynet-cn/batata/internal/db/bunx"
	"github.com/easynet-cn/batata/internal/db/models"
	"github.com/easynet-cn/batata/internal/httpapi"
	"github.com/easynet-cn/batata/internal/iam"
	"github.com/easynet-cn/batata/internal/migrations"
	"github.com/easynet-cn/batata/internal/notify"
	"github.com/easynet-cn/batata/internal/registry"
	repobun "github.com/easynet-cn/batata/internal/repository/bun"
	"github.com/easynet-cn/batata/internal/rpcserver"
	"github.com/easynet-cn/batata/internal/session"
	"github.com/easynet-cn/batata/internal/subscription"
	"github.com/easynet-cn/batata/internal/wire"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the batata server",
	Long:  `Starts the HTTP admin surface and the bidirectional session RPC surface sharing one in-memory core.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// notifyForwarder breaks the construction cycle between session.Manager
// (which needs a notify.ListenRemover at construction) and notify.Bus
// (whose gray resolver and pusher need a live *session.Manager): the
// forwarder is handed to the session manager first, empty, then pointed at
// the real bus once it exists. By the time any session actually closes and
// calls Unlisten, bus is always set.
type notifyForwarder struct {
	bus *notify.Bus
}

func (f *notifyForwarder) Unlisten(ctx context.Context, sessionID, namespace, group, dataID string) {
	if f.bus != nil {
		f.bus.Unlisten(ctx, sessionID, namespace, group, dataID)
	}
}

// configNotifyForwarder breaks the symmetric cycle on the config-store side:
// configstore.Store needs a Notifier at construction, but notify.Bus's gray
// resolver needs the already-built *configstore.Store. Same deferred-wiring
// trick as notifyForwarder.
type configNotifyForwarder struct {
	bus *notify.Bus
}

func (f *configNotifyForwarder) OnChange(key configstore.Key, content, md5 string, deleted bool) {
	if f.bus != nil {
		f.bus.OnChange(context.Background(), key.Namespace, key.Group, key.DataID, content, md5, deleted)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	db, err := bunx.NewDB(cfg.DatabaseURL, cfg.MaxDBConnections)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer bunx.Close(db)
	log.Printf("batata-server: connected to %s", bunx.DetectDatabaseType(cfg.DatabaseURL))

	migrator := migrations.Migrator(db)
	ctx := context.Background()
	if err := migrator.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize migration tables: %w", err)
	}
	if err := migrator.Lock(ctx); err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	_, migrateErr := migrator.Migrate(ctx)
	if err := migrator.Unlock(ctx); err != nil {
		log.Printf("batata-server: warning: failed to release migration lock: %v", err)
	}
	if migrateErr != nil {
		return fmt.Errorf("failed to apply migrations: %w", migrateErr)
	}

	namespaces := repobun.NewNamespaceRepository(db)
	users := repobun.NewUserRepository(db)
	roles := repobun.NewRoleRepository(db)
	perms := repobun.NewPermissionRepository(db)
	tokens := repobun.NewTokenRepository(db)
	configEntries := repobun.NewConfigRepository(db)
	gray := repobun.NewGrayRepository(db)
	aggregates := repobun.NewAggregateRepository(db)
	history := repobun.NewHistoryRepository(db)
	instances := repobun.NewInstanceRepository(db)

	if err := ensurePublicNamespace(ctx, namespaces); err != nil {
		return fmt.Errorf("failed to seed public namespace: %w", err)
	}

	enforcer, err := iam.InitEnforcer(db, cfg.CasbinModelPath)
	if err != nil {
		return fmt.Errorf("failed to configure casbin enforcer: %w", err)
	}

	iamSvc, err := iam.NewService(enforcer, users, roles, perms, tokens, cfg.TokenTTL, 0, cfg.RootUsername)
	if err != nil {
		return fmt.Errorf("failed to build IAM service: %w", err)
	}
	if err := ensureRootAccount(ctx, iamSvc, cfg.RootUsername, cfg.RootPassword); err != nil {
		return fmt.Errorf("failed to seed root account: %w", err)
	}

	subs := subscription.NewBus()
	reg := registry.NewRegistry(subs, instances, 30*time.Second, clockwork.NewRealClock())
	if err := reg.LoadPersistent(ctx); err != nil {
		return fmt.Errorf("failed to restore persistent instances: %w", err)
	}

	forward := &notifyForwarder{}
	sessions := session.NewManager(reg, forward, subs, session.Options{
		IdleTimeout:  cfg.SessionIdleTimeout,
		GraceTimeout: cfg.SessionGraceTimeout,
	})

	configNotifier := &configNotifyForwarder{}
	configs := configstore.NewStore(configEntries, gray, aggregates, history, configNotifier)
	notifyBus := notify.NewBus(
		rpcserver.NewGrayResolver(sessions, configs),
		rpcserver.NewNotifyPusher(sessions),
	)
	forward.bus = notifyBus
	configNotifier.bus = notifyBus

	rpcSrv := rpcserver.New(sessions, reg, subs, configs, notifyBus, iamSvc, true)

	sweepCtx, cancelSweep := context.WithCancel(context.Background())
	defer cancelSweep()
	go sessions.Run(sweepCtx, 1*time.Second, rpcSrv.PingSession)
	go registryTombstoneSweep(sweepCtx, reg, 5*time.Second)

	switches := httpapi.NewSwitches()
	subs.SetPushGate(switches.IsPushEnabled)
	router := httpapi.NewRouter(httpapi.Options{
		IAM:          iamSvc,
		Namespaces:   namespaces,
		Registry:     reg,
		Configs:      configs,
		Sessions:     sessions,
		Switches:     switches,
		DB:           db,
		NodeID:       nodeID(),
		CORSOrigins:  []string{"*"},
		StartedAt:    time.Now(),
		RootUsername: cfg.RootUsername,
	})

	// h2c lets the admin surface accept HTTP/2 cleartext requests (no TLS
	// termination is this core's concern) alongside plain HTTP/1.1, the
	// same dual-protocol posture the teacher's router serves Connect over.
	httpSrv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      h2c.NewHandler(router, &http2.Server{}),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	grpcSrv := grpc.NewServer(grpc.ForceServerCodec(encoding.GetCodec(wire.CodecName)))
	grpcSrv.RegisterService(&wire.ServiceDesc, rpcSrv)

	rpcListener, err := net.Listen("tcp", cfg.RPCAddr)
	if err != nil {
		return fmt.Errorf("failed to bind RPC address %s: %w", cfg.RPCAddr, err)
	}

	serverErrors := make(chan error, 2)
	go func() {
		log.Printf("batata-server: HTTP admin surface listening on %s", cfg.HTTPAddr)
		serverErrors <- httpSrv.ListenAndServe()
	}()
	go func() {
		log.Printf("batata-server: RPC session surface listening on %s", cfg.RPCAddr)
		serverErrors <- grpcSrv.Serve(rpcListener)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Printf("batata-server: received signal %v, shutting down gracefully", sig)

		sessions.Stop()
		sessions.CloseAll(context.Background())
		cancelSweep()
		grpcSrv.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			httpSrv.Close()
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		log.Printf("batata-server: stopped")
	}

	return nil
}

// registryTombstoneSweep periodically reaps services whose instance set has
// been empty past the tombstone grace period.
func registryTombstoneSweep(ctx context.Context, reg *registry.Registry, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reg.Sweep()
		}
	}
}

func ensurePublicNamespace(ctx context.Context, namespaces *repobun.NamespaceRepository) error {
	if _, err := namespaces.Get(ctx, "public"); err == nil {
		return nil
	}
	err := namespaces.Create(ctx, &models.Namespace{ID: "public", Name: "public", Description: "default namespace"})
	if err != nil && apierr.KindOf(err) != apierr.KindAlreadyExists {
		return err
	}
	return nil
}

func ensureRootAccount(ctx context.Context, svc *iam.Service, username, password string) error {
	err := svc.CreateUser(ctx, username, password)
	if err != nil && apierr.KindOf(err) != apierr.KindAlreadyExists {
		return err
	}
	return nil
}

func nodeID() string {
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return uuid.NewString()
}
