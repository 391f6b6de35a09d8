package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/haukened/rr-dns/internal/dns/common/log"
	"github.com/haukened/rr-dns/internal/dns/common/utils"
	"github.com/haukened/rr-dns/internal/dns/config"
	"github.com/haukened/rr-dns/internal/dns/domain"
	"github.com/haukened/rr-dns/internal/dns/gateways/transport"
	"github.com/haukened/rr-dns/internal/dns/gateways/upstream"
	"github.com/haukened/rr-dns/internal/dns/gateways/wire"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/bloom"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/bolt"
	"github.com/haukened/rr-dns/internal/dns/repos/blocklist/lru"
	"github.com/haukened/rr-dns/internal/dns/repos/dnscache"
	"github.com/haukened/rr-dns/internal/dns/services/resolver"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-dnsd"

	// Default timeouts
	defaultUpstreamTimeout = 5 * time.Second
	defaultShutdownTimeout = 10 * time.Second

	// blocklistFPRate is the target Bloom filter false-positive rate.
	blocklistFPRate = 0.01
)

// Application holds all the components of the DNS server
type Application struct {
	config    *config.AppConfig
	transport transport.ServerTransport
	resolver  *resolver.Resolver
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.Log.Level, cfg.Log.File)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.Log.Level,
		"port":       cfg.Resolver.Port,
		"cache_size": cfg.Resolver.Cache.Size,
		"root":       cfg.Resolver.Root,
	}, "Starting RR-DNS server")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	// Start the DNS server
	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Server failed")
	}

	log.Info(nil, "RR-DNS server stopped gracefully")
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Initialize logger (already configured globally)
	logger := log.GetLogger()

	// Create DNS wire codec
	codec := wire.NewUDPCodec(logger)

	// Build repository layer
	repos, err := buildRepositories(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build repositories: %w", err)
	}

	// Build gateway layer
	gateways, err := buildGateways(cfg, codec)
	if err != nil {
		return nil, fmt.Errorf("failed to build gateways: %w", err)
	}

	root := net.ParseIP(cfg.Resolver.Root)

	// Build service layer
	resolverService := resolver.NewResolver(resolver.ResolverOptions{
		Cache:                 repos.cache,
		Client:                gateways.upstream,
		Logger:                logger,
		RootServer:            root,
		MaxNSResolutionDepth:  cfg.Resolver.MaxRecursion,
		MapFailuresToServfail: cfg.Resolver.ServfailOnFailure,
	})

	// Build transport layer
	addr := fmt.Sprintf("%s:%d", cfg.Resolver.Host, cfg.Resolver.Port)
	udpTransport, err := transport.NewTransport(transport.TransportUDP, addr, codec, logger, repos.blocklist)
	if err != nil {
		return nil, fmt.Errorf("failed to build transport: %w", err)
	}

	return &Application{
		config:    cfg,
		transport: udpTransport,
		resolver:  resolverService,
	}, nil
}

// repositories holds all repository implementations
type repositories struct {
	blocklist resolver.Blocklist
	cache     resolver.Cache
}

// gateways holds all gateway implementations
type gateways struct {
	upstream resolver.UpstreamClient
}

// buildRepositories creates and configures all repository implementations
func buildRepositories(cfg *config.AppConfig, logger log.Logger) (*repositories, error) {
	blocklistRepo, err := buildBlocklist(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build blocklist: %w", err)
	}

	// Create response cache (size 0 falls back to a one-entry cache; caching
	// is not turned off)
	var cache resolver.Cache
	if cfg.Resolver.Cache.Size > 0 {
		cache, err = dnscache.New(cfg.Resolver.Cache.Size)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		log.Info(map[string]any{"size": cfg.Resolver.Cache.Size}, "DNS response cache configured")
	} else {
		cache, err = dnscache.New(1)
		if err != nil {
			return nil, fmt.Errorf("failed to create response cache: %w", err)
		}
		log.Info(nil, "DNS response cache reduced to one entry (size=0)")
	}

	return &repositories{
		blocklist: blocklistRepo,
		cache:     cache,
	}, nil
}

// buildBlocklist constructs the bbolt-backed blocklist repository, seeding
// it with the configured default rules when the store has never been
// populated before.
func buildBlocklist(cfg *config.AppConfig, logger log.Logger) (resolver.Blocklist, error) {
	store, err := bolt.New(cfg.Blocklist.DB)
	if err != nil {
		return nil, fmt.Errorf("failed to open blocklist store: %w", err)
	}

	cache, err := lru.New(cfg.Blocklist.Cache.Size)
	if err != nil {
		return nil, fmt.Errorf("failed to create blocklist decision cache: %w", err)
	}

	factory := bloom.NewFactory()
	repo := blocklist.NewRepository(store, cache, factory, blocklistFPRate)

	stats := store.Stats()
	if stats.ExactKeys == 0 && stats.SuffixKeys == 0 && len(cfg.Blocklist.DefaultBlocked) > 0 {
		now := time.Now()
		rules := make([]domain.BlockRule, 0, len(cfg.Blocklist.DefaultBlocked))
		for _, name := range cfg.Blocklist.DefaultBlocked {
			rule, err := domain.NewExactBlockRule(strings.TrimSuffix(utils.CanonicalDNSName(name), "."), "default", now)
			if err != nil {
				return nil, fmt.Errorf("invalid default blocklist rule %q: %w", name, err)
			}
			rules = append(rules, rule)
		}
		if err := repo.UpdateAll(rules, 1, now.Unix()); err != nil {
			return nil, fmt.Errorf("failed to seed default blocklist rules: %w", err)
		}
		log.Info(map[string]any{"rules": cfg.Blocklist.DefaultBlocked}, "seeded default blocklist rules")
	}

	return repo, nil
}

// buildGateways creates and configures all gateway implementations
func buildGateways(cfg *config.AppConfig, codec wire.DNSCodec) (*gateways, error) {
	upstreamClient, err := upstream.NewResolver(upstream.Options{
		Timeout: defaultUpstreamTimeout,
		Codec:   codec,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream client: %w", err)
	}

	log.Info(map[string]any{
		"timeout": defaultUpstreamTimeout,
	}, "Upstream DNS client configured")

	return &gateways{
		upstream: upstreamClient,
	}, nil
}

// Run starts the DNS server and blocks until context is cancelled
func (app *Application) Run(ctx context.Context) error {
	// Start UDP transport
	if err := app.transport.Start(ctx, app.resolver); err != nil {
		return fmt.Errorf("failed to start UDP transport: %w", err)
	}

	log.Info(map[string]any{
		"address":   app.transport.Address(),
		"transport": "UDP",
	}, "DNS server started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	// Stop transport gracefully
	if err := app.transport.Stop(); err != nil {
		log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
	}

	// Wait for shutdown completion or timeout
	done := make(chan struct{})
	go func() {
		close(done)
	}()

	select {
	case <-done:
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
