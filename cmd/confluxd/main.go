package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"conflux/internal/adapter"
	"conflux/internal/config"
	"conflux/internal/deploy"
	"conflux/internal/handler"
	"conflux/internal/hub"
	"conflux/internal/mapper"
	"conflux/internal/nffg"
	"conflux/internal/repository"
	"conflux/internal/repository/sqlite"
	"conflux/internal/service"
	"conflux/internal/view"
	"conflux/internal/watcher"
)

func main() {
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting conflux orchestrator...")

	var (
		cfg  *config.Config
		path string
		err  error
	)
	if *configPath != "" {
		cfg, path, err = config.LoadFromPath(*configPath)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if path != "" {
		log.Printf("Config loaded from %s", path)
	} else {
		log.Printf("No config file found (searched %v), using defaults", config.SearchPaths())
	}
	log.Println(cfg.Summary())

	// Audit store
	var store repository.Store
	if cfg.Database.Enabled {
		s, err := sqlite.New(cfg.Database.Path)
		if err != nil {
			log.Fatalf("Failed to open database: %v", err)
		}
		defer s.Close()
		store = s
		log.Printf("Database opened: %s", cfg.Database.Path)
	}

	// Initialize event bus
	eventBus := service.NewEventBus()

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run()

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(event)
		}
	}()

	// Global view aggregator
	viewOpts := []view.Option{
		view.WithChangeHandler(func(ev view.DomainChangedEvent) {
			eventBus.Publish(service.Event{
				Type:    service.EventDomainChanged,
				Payload: ev,
			})
		}),
	}
	if cfg.View.EnsureUniqueIDs {
		viewOpts = append(viewOpts, view.WithUniqueIDs())
	}
	agg := view.New(viewOpts...)

	// Embedding engine
	engine := mapper.New(mapper.Config{
		TrialAndError: cfg.Mapper.TrialAndError,
		MaxBacktracks: cfg.Mapper.MaxBacktracks,
	})

	reportDiscipline := view.DisciplineReplace
	if cfg.Deploy.Remerge {
		reportDiscipline = view.DisciplineRemerge
	}

	// The registry's report path routes through the orchestrator, which
	// is constructed after the coordinator. Late-bound on purpose.
	var orch *service.Orchestrator
	registry := adapter.NewRegistry(func(ctx context.Context, domain string, topo *nffg.NFFG) error {
		return orch.HandleDomainReport(ctx, domain, topo, reportDiscipline)
	})

	// Deployment coordinator
	policy := deploy.Policy{
		Rollback: cfg.Deploy.Rollback,
		Remerge:  cfg.Deploy.Remerge,
	}
	if cfg.Deploy.DispatchTimeout != nil {
		policy.DispatchTimeout = cfg.Deploy.DispatchTimeout.Duration()
	}
	if cfg.Deploy.PollInterval != nil {
		policy.PollInterval = cfg.Deploy.PollInterval.Duration()
	}
	coord := deploy.New(registry, agg, policy, func(ev deploy.Event) {
		eventBus.Publish(service.Event{
			Type:    service.EventDeployment,
			Payload: ev,
		})
	})

	orch = service.NewOrchestrator(agg, engine, coord, store, eventBus)

	// Domain collaborators
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Static topologies have no agent to poll; watch their files instead.
	statics := make(map[string]*adapter.StaticCollaborator)
	staticPaths := make(map[string]config.DomainConfig)
	topoWatcher := watcher.New(func(domain string) {
		sc := statics[domain]
		dc := staticPaths[domain]
		if err := sc.Reload(dc.Path, dc.Format); err != nil {
			log.Printf("Failed to reload topology for %s: %v", domain, err)
			return
		}
		if err := registry.Refresh(rootCtx, domain); err != nil {
			log.Printf("Failed to refresh domain %s: %v", domain, err)
		}
	})

	for _, dc := range cfg.Domains {
		collab, err := buildCollaborator(dc)
		if err != nil {
			log.Fatalf("Failed to set up domain %s: %v", dc.Name, err)
		}
		if cb, ok := collab.(adapter.CallbackCapable); ok && dc.Discipline == "callback" {
			cb.SetCallbackSink(coord)
		}
		acfg := adapter.Config{
			Enabled:    dc.Enabled,
			Diff:       dc.Diff,
			Discipline: adapter.Discipline(dc.Discipline),
		}
		if dc.TopologyPoll != nil {
			acfg.PollInterval = dc.TopologyPoll.Duration().String()
		}
		if err := registry.Register(collab, acfg); err != nil {
			log.Fatalf("Failed to register domain %s: %v", dc.Name, err)
		}

		if sc, ok := collab.(*adapter.StaticCollaborator); ok && dc.Enabled {
			statics[dc.Name] = sc
			staticPaths[dc.Name] = dc
			if err := topoWatcher.Track(dc.Name, dc.Path); err != nil {
				log.Fatalf("Failed to track topology for %s: %v", dc.Name, err)
			}
		}
	}

	if len(statics) > 0 {
		go func() {
			if err := topoWatcher.Watch(rootCtx); err != nil && err != context.Canceled {
				log.Printf("Topology watcher stopped: %v", err)
			}
		}()
	}

	// Start adapter registry (initial topology fetch + poll loops)
	if err := registry.Start(rootCtx); err != nil {
		log.Printf("Warning: Failed to start adapter registry: %v", err)
	}

	// HTTP API
	apiHandler := handler.New(orch, coord, coord)
	if store != nil {
		apiHandler.SetStore(store)
	}
	apiHandler.SetEventStream(sseHub)

	router := apiHandler.Router()
	router.Handle("/metrics", promhttp.Handler())

	finalHandler := handler.Chain(router,
		handler.Recover,
		handler.CORS,
		handler.Logger,
	)

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop adapter registry and watchers
	rootCancel()
	if err := registry.Stop(); err != nil {
		log.Printf("Adapter registry shutdown error: %v", err)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

// buildCollaborator constructs the transport-specific collaborator for
// one configured domain.
func buildCollaborator(dc config.DomainConfig) (adapter.Collaborator, error) {
	switch dc.Type {
	case "static":
		return adapter.LoadStaticCollaborator(dc.Name, dc.Path, dc.Format)

	case "rest":
		return adapter.NewRESTCollaborator(dc.Name, dc.URL, 30*time.Second), nil

	case "ssh":
		port := dc.SSH.Port
		if port == 0 {
			port = 22
		}
		addr := net.JoinHostPort(dc.SSH.Host, strconv.Itoa(port))
		var opts []adapter.SSHOption
		if dc.SSH.Password != "" {
			opts = append(opts, adapter.WithSSHPassword(dc.SSH.Password))
		}
		if dc.SSH.KeyPath != "" {
			pem, err := os.ReadFile(dc.SSH.KeyPath)
			if err != nil {
				return nil, fmt.Errorf("read ssh key: %w", err)
			}
			opts = append(opts, adapter.WithSSHKey(pem))
		}
		if dc.SSH.Timeout != nil {
			opts = append(opts, adapter.WithSSHTimeout(dc.SSH.Timeout.Duration()))
		}
		return adapter.NewSSHCollaborator(dc.Name, addr, dc.SSH.User, dc.SSH.AgentCmd, opts...), nil

	case "discovery":
		return adapter.NewDiscoveryCollaborator(dc.Name, []string{dc.CIDR}), nil
	}
	return nil, fmt.Errorf("unknown domain type %q", dc.Type)
}
