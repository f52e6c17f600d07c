package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/jizhuozhi/hermes/broker/internal/admission"
	"github.com/jizhuozhi/hermes/broker/internal/adminapi"
	"github.com/jizhuozhi/hermes/broker/internal/auth"
	"github.com/jizhuozhi/hermes/broker/internal/cluster"
	"github.com/jizhuozhi/hermes/broker/internal/cluster/etcdmembership"
	"github.com/jizhuozhi/hermes/broker/internal/config"
	"github.com/jizhuozhi/hermes/broker/internal/eventbus"
	"github.com/jizhuozhi/hermes/broker/internal/mesh"
	"github.com/jizhuozhi/hermes/broker/internal/registry"
	"github.com/jizhuozhi/hermes/broker/internal/routing"
	"github.com/jizhuozhi/hermes/broker/internal/workerpool"
)

// staleReapInterval and staleGrace bound the periodic sweep resolving
// spec.md §9's cleanStaleHandlers gap.
const (
	staleReapInterval = 15 * time.Second
	staleGrace        = 30 * time.Second
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	flag.Parse()

	logger, _ := zap.NewProduction()
	defer logger.Sync()
	sugar := logger.Sugar()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var authService auth.Service
	switch cfg.Auth.Mode {
	case "jwt":
		svc, err := auth.NewJWTService(auth.JWTConfig{
			Secret: cfg.Auth.Secret,
			Issuer: cfg.Auth.Issuer,
		}, sugar)
		if err != nil {
			sugar.Fatalf("JWT auth init failed: %v", err)
		}
		authService = svc
		sugar.Info("JWT authentication enabled")
	default:
		authService = auth.Disabled{}
		sugar.Info("authentication disabled (mock principal)")
	}

	selector := routing.NewInMemorySelector()
	bus := eventbus.New(cfg.EventBus.SubscriberBuffer, sugar)
	directory := registry.New(bus, sugar)
	disposal := workerpool.New(0, 256)
	defer disposal.Close()

	var brokerManager cluster.BrokerManager
	var etcdClient *clientv3.Client
	if cfg.Cluster.Standalone {
		brokerManager = cluster.Standalone{}
	} else {
		etcdClient, err = clientv3.New(clientv3.Config{
			Endpoints: cfg.Etcd.Endpoints,
			Username:  cfg.Etcd.Username,
			Password:  cfg.Etcd.Password,
		})
		if err != nil {
			sugar.Fatalf("etcd client init failed: %v", err)
		}
		defer etcdClient.Close()
		brokerManager = etcdmembership.New(etcdClient, cfg.Etcd.BrokerPrefix, sugar)
	}

	delays := cluster.Delays{
		PublishOnly:    time.Duration(cfg.Cluster.PublishOnlyDelayMS) * time.Millisecond,
		PublishConsume: time.Duration(cfg.Cluster.PublishConsumeDelayMS) * time.Millisecond,
		Other:          time.Duration(cfg.Cluster.OtherDelayMS) * time.Millisecond,
	}
	announcer := cluster.New(brokerManager, directory, delays, cfg.Cluster.Group, cfg.Cluster.InterfaceName, cfg.Cluster.Version, sugar)

	pipeline := admission.New(admission.Deps{
		Auth:          authService,
		Selector:      selector,
		Directory:     directory,
		Disposal:      disposal,
		Mesh:          mesh.NoopInspector{},
		Logger:        sugar,
		AcceptTimeout: cfg.Server.AcceptTimeoutDuration(),
	})
	// pipeline.Accept is wired into the transport's connection-accept path
	// by the surrounding broker; the RSocket frame codec and listener are
	// out of scope for this core.
	_ = pipeline
	sugar.Infof("admission pipeline ready (accept_timeout=%s)", cfg.Server.AcceptTimeoutDuration())

	adminHandler := adminapi.New(directory, brokerManager, sugar)
	adminMux := adminapi.Mux(adminHandler, cfg.Admin.AccessKey, cfg.Admin.SecretKey, sugar)

	srv := &http.Server{
		Addr:         cfg.Server.AdminAddr,
		Handler:      adminMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sugar.Infof("hermes broker admin API starting on %s", cfg.Server.AdminAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalf("admin server error: %v", err)
		}
	}()

	go func() {
		if err := announcer.Run(ctx); err != nil && err != context.Canceled {
			sugar.Warnf("cluster announcer stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Stale-handler reaper: disposes handlers whose socket signaled close
	// but whose disposal callback has not fired within the grace window
	// (spec.md §9).
	go func() {
		ticker := time.NewTicker(staleReapInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				directory.ReapStale(staleGrace)
			}
		}
	}()

	<-quit
	sugar.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = srv.Shutdown(shutdownCtx)
}
