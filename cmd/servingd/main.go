// Package main is the serving-path daemon entry point: it wires the
// config agent, component graph, document DB, dispatcher, distributor,
// sampler, and file config manager into one running process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vespacore/servingcore/internal/configsub"
	"github.com/vespacore/servingcore/internal/dispatch"
	"github.com/vespacore/servingcore/internal/distributor"
	"github.com/vespacore/servingcore/internal/distributor/mergelock"
	"github.com/vespacore/servingcore/internal/docdb"
	"github.com/vespacore/servingcore/internal/fileconfig"
	"github.com/vespacore/servingcore/internal/graph"
	"github.com/vespacore/servingcore/internal/sampler"
	"github.com/vespacore/servingcore/internal/txlog"
	"github.com/vespacore/servingcore/pkg/logger"
)

const (
	serviceName    = "servingd"
	serviceVersion = "1.0.0"

	nodeDocDB       graph.NodeID = "docdb"
	nodeDispatcher  graph.NodeID = "dispatcher"
	nodeDistributor graph.NodeID = "distributor"
)

func main() {
	var (
		configRoot = flag.String("config-root", envOr("SERVINGCORE_CONFIG_ROOT", "./data/config"), "root directory for per-generation config snapshots")
		dataRoot   = flag.String("data-root", envOr("SERVINGCORE_DATA_ROOT", "./data"), "root directory for transaction log segments")
		adminAddr  = flag.String("admin-addr", envOr("SERVINGCORE_ADMIN_ADDR", ":19098"), "address for the admin HTTP surface (/healthz, /metrics)")
		logLevel   = flag.String("log-level", envOr("SERVINGCORE_LOG_LEVEL", "info"), "log level: debug, info, warn, error")
		showVer    = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVer {
		fmt.Printf("%s version %s\n", serviceName, serviceVersion)
		os.Exit(0)
	}

	log := logger.NewLogger(logger.Config{Level: *logLevel, Format: "json", Output: "stdout"})
	log.Info("starting serving-path daemon", "service", serviceName, "version", serviceVersion)

	if err := run(log, *configRoot, *dataRoot, *adminAddr); err != nil {
		log.Error("daemon exited with error", "error", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func run(log *slog.Logger, configRoot, dataRoot, adminAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := fileconfig.NewStore(configRoot)
	if err != nil {
		return fmt.Errorf("servingd: open config store: %w", err)
	}

	txLog, err := txlog.Open(txlog.Config{Dir: filepath.Join(dataRoot, "txlog")}, log)
	if err != nil {
		return fmt.Errorf("servingd: open transaction log: %w", err)
	}
	defer txLog.Close()

	registry := newBucketRegistry()

	dist := distributor.New(
		distributor.Config{
			GC: distributor.DefaultGCConfig(),
			Throttle: distributor.MergeThrottleConfig{
				Policy:           distributor.PolicyDynamic,
				MaxMergesPerNode: 4,
				MaxQueueSize:     64,
				WindowSizeDecrementFactor: 0.5,
				WindowSizeBackoff:         1,
			},
			Activation: distributor.ActivationInhibitConfig{
				InhibitDefaultMergesWhenGlobalMergesPending: true,
				MaxActivationInhibitedOutOfSyncGroups:       2,
			},
			ThreePhase: true,
		},
		registry,
		func(docID string) bool { return true },
		registry.Buckets,
		registry,
		(*mergelock.Manager)(nil),
		log,
	)
	go dist.RunGC(ctx)

	diskSampler := sampler.New(sampler.DefaultConfig(), sampler.StatfsDiskProvider{Path: dataRoot}, sampler.ProcessMemProvider{Limit: 0}, log)
	go diskSampler.Run(ctx)

	graphMgr := graph.NewManager(log)
	defer graphMgr.Close()

	specs := []graph.NodeSpec{
		{
			ID: nodeDocDB,
			Build: func(ctx context.Context, deps map[graph.NodeID]any) (any, error) {
				db := docdb.NewDB(docdb.Config{
					Name:            "default",
					Log:             docdb.NewTxLogAdapter(txLog),
					FeedHandlerConfig: docdb.FeedHandlerConfig{
						ReplayOpsPerSec: 0,
						LiveOpsPerSec:   0,
					},
					VisibilityDelay:    0,
					MaxVisibilityDelay: 5 * time.Second,
					Logger:             log,
					MetaStorePath:      filepath.Join(dataRoot, "docmeta.db"),
				})
				if err := db.Start(ctx); err != nil {
					return nil, fmt.Errorf("start document db: %w", err)
				}
				return db, nil
			},
		},
		{
			ID:        nodeDispatcher,
			DependsOn: []graph.NodeID{nodeDocDB},
			Build: func(ctx context.Context, deps map[graph.NodeID]any) (any, error) {
				return dispatch.NewDispatcher(log), nil
			},
		},
		{
			ID:        nodeDistributor,
			DependsOn: []graph.NodeID{nodeDocDB},
			Build: func(ctx context.Context, deps map[graph.NodeID]any) (any, error) {
				return dist, nil
			},
		},
	}

	source := fileconfig.NewSource(store)
	subs := configsub.NewSubscriptionSet(source)
	agent := configsub.NewConfigAgent(subs, configsub.ListenerFunc(func(ctx context.Context, snap *configsub.Snapshot) {
		gen := snap.Generation
		if _, err := graphMgr.Swap(ctx, gen, gen, "servingcore", specs); err != nil {
			log.Error("component graph swap failed", "generation", uint64(gen), "error", err)
		}
	}), log)
	agent.Start(ctx)
	defer agent.Stop()

	sighup := newSighupHandler(agent, log)
	sighup.Start()
	defer sighup.Stop()

	adminServer := newAdminServer(adminAddr, graphMgr)
	go func() {
		log.Info("admin http surface listening", "addr", adminAddr)
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin http server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received, draining")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := adminServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown error", "error", err)
	}

	if current := graphMgr.Current(); current != nil {
		if inst, present := current.Instances[nodeDocDB]; present {
			if concrete, ok := inst.Value.(*docdb.DB); ok {
				concrete.Close()
			}
		}
	}

	log.Info("serving-path daemon stopped")
	return nil
}

func newAdminServer(addr string, graphMgr *graph.Manager) *http.Server {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	registerAPIRoutes(router, graphMgr)
	registerDocumentationRoutes(router)

	return &http.Server{
		Addr:    addr,
		Handler: router,
	}
}
