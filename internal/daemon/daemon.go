package daemon

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/verimesh/verimesh/internal/api"
	"github.com/verimesh/verimesh/internal/gossip/liveness"
	"github.com/verimesh/verimesh/internal/gossip/peersync"
	"github.com/verimesh/verimesh/internal/gossip/protocol"
	"github.com/verimesh/verimesh/internal/gossip/registry"
	"github.com/verimesh/verimesh/internal/gossip/verify"
	"github.com/verimesh/verimesh/internal/health"
	_ "github.com/verimesh/verimesh/internal/infra/metrics" // Register Prometheus metrics
	"github.com/verimesh/verimesh/internal/infra/sqlite"
	"github.com/verimesh/verimesh/internal/security"
)

// Daemon is the core VeriMesh runtime. It wires together all services.
type Daemon struct {
	Config      Config
	DB          *sqlite.DB
	Keypair     *security.Keypair
	Registry    *registry.Registry
	Protocol    *protocol.Protocol
	Liveness    *liveness.Scheduler
	Coordinator *peersync.Coordinator
	Verify      *verify.Engine
	Health      *health.Checker
	Server      *api.Server
	cancel      context.CancelFunc
}

// New creates and initializes a Daemon with all services wired.
func New() (*Daemon, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(cfg)
}

// NewWithConfig creates a Daemon with the given configuration.
func NewWithConfig(cfg Config) (*Daemon, error) {
	home := verimeshHome()
	if err := os.MkdirAll(home, 0700); err != nil {
		return nil, fmt.Errorf("create home directory: %w", err)
	}

	db, err := sqlite.Open(home)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Crypto identity (Ed25519). Gossip envelopes go unsigned if the
	// keypair cannot be loaded.
	kp, err := security.LoadOrCreateKeypair(home)
	if err != nil {
		log.Printf("[daemon] WARNING: failed to load keypair: %v (gossip signing disabled)", err)
	}

	gossipDir := filepath.Join(home, "gossip")
	reg, err := registry.New(db, filepath.Join(gossipDir, "peers"))
	if err != nil {
		db.Close()
		return nil, err
	}

	protoCfg := protocol.DefaultConfig()
	if cfg.Gossip.UnicastPort > 0 {
		protoCfg.UnicastPort = cfg.Gossip.UnicastPort
	}
	if cfg.Gossip.DiscoveryPort > 0 {
		protoCfg.DiscoveryPort = cfg.Gossip.DiscoveryPort
	}
	if cfg.Gossip.BroadcastAddr != "" {
		protoCfg.BroadcastAddr = cfg.Gossip.BroadcastAddr
	}
	protoCfg.ResponseTimeout = parseDuration(cfg.Gossip.ResponseTimeout, protoCfg.ResponseTimeout)
	protoCfg.Capabilities = cfg.Node.Capabilities
	protoCfg.Version = cfg.Node.Version

	proto, err := protocol.New(protoCfg, db, reg, kp)
	if err != nil {
		db.Close()
		return nil, err
	}

	verifyCfg := verify.DefaultConfig(cfg.Verify.TraceDir, gossipDir)
	if verifyCfg.TraceDir == "" {
		verifyCfg.TraceDir = filepath.Join(home, "traces")
	}
	if cfg.Verify.MaxCacheAgeHours > 0 {
		verifyCfg.MaxCacheAge = time.Duration(cfg.Verify.MaxCacheAgeHours) * time.Hour
	}
	eng, err := verify.New(verifyCfg, reg, proto)
	if err != nil {
		db.Close()
		return nil, err
	}

	coord := peersync.New(reg, proto)
	proto.SetSyncHandler(coord)
	proto.SetTraceProvider(eng)

	livenessCfg := liveness.DefaultConfig()
	livenessCfg.HeartbeatInterval = parseDuration(cfg.Gossip.HeartbeatInterval, livenessCfg.HeartbeatInterval)
	livenessCfg.DiscoveryInterval = parseDuration(cfg.Gossip.DiscoveryInterval, livenessCfg.DiscoveryInterval)
	livenessCfg.OfflineThreshold = parseDuration(cfg.Gossip.OfflineThreshold, livenessCfg.OfflineThreshold)
	sched := liveness.New(livenessCfg, reg, proto)

	checker := health.NewChecker(db, verifyCfg.TraceDir, gossipDir)

	srv := api.NewServer(reg, proto, coord, eng, checker)
	if cfg.Telemetry.Prometheus {
		srv.EnableMetrics()
	}

	return &Daemon{
		Config:      cfg,
		DB:          db,
		Keypair:     kp,
		Registry:    reg,
		Protocol:    proto,
		Liveness:    sched,
		Coordinator: coord,
		Verify:      eng,
		Health:      checker,
		Server:      srv,
	}, nil
}

// Serve starts the background loops and the HTTP server, blocking until
// shutdown.
func (d *Daemon) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel

	if err := d.Protocol.Start(ctx); err != nil {
		return err
	}
	go d.Liveness.Run(ctx)
	go d.Health.Run(ctx)

	addr := fmt.Sprintf("%s:%d", d.Config.API.Host, d.Config.API.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      d.Server.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	// Graceful shutdown on signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-sigCh:
		case <-ctx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		// Best effort: freshen the peer hash cache while peers are
		// still reachable.
		d.Verify.RefreshCache()

		if err := d.Protocol.Shutdown(); err != nil {
			log.Printf("[daemon] persist protocol state: %v", err)
		}
		cancel() // stops receive and liveness loops

		_ = httpServer.Shutdown(shutdownCtx)
		_ = d.DB.Close()
	}()

	fmt.Printf("VeriMesh node %s serving on http://%s\n", d.Protocol.NodeID(), addr)
	fmt.Printf("  Gossip: udp :%d (unicast), :%d (discovery)\n",
		d.Config.Gossip.UnicastPort, d.Config.Gossip.DiscoveryPort)
	if d.Config.Telemetry.Prometheus {
		fmt.Printf("  Metrics: http://%s/metrics\n", addr)
	}

	if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Close shuts down all daemon resources.
func (d *Daemon) Close() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.Protocol != nil {
		if err := d.Protocol.Shutdown(); err != nil {
			log.Printf("[daemon] persist protocol state: %v", err)
		}
	}
	if d.DB != nil {
		_ = d.DB.Close()
	}
}
