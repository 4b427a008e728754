package adapter

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"conflux/internal/nffg"
)

// ReportFunc is called when a collaborator produces a fresh topology to be
// folded into the global view.
type ReportFunc func(ctx context.Context, domain string, topo *nffg.NFFG) error

// Registry manages all registered domain collaborators and their topology
// poll loops.
type Registry struct {
	mu            sync.RWMutex
	collaborators map[string]Collaborator
	configs       map[string]Config
	report        ReportFunc
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewRegistry creates a registry; report receives every fetched topology.
func NewRegistry(report ReportFunc) *Registry {
	return &Registry{
		collaborators: make(map[string]Collaborator),
		configs:       make(map[string]Config),
		report:        report,
	}
}

// Register adds a collaborator under its domain name.
func (r *Registry) Register(c Collaborator, cfg Config) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, exists := r.collaborators[name]; exists {
		return fmt.Errorf("domain %s already registered", name)
	}
	r.collaborators[name] = c
	r.configs[name] = cfg
	log.Printf("Registered domain %s (diff=%v, discipline=%s, enabled=%v)",
		name, cfg.Diff, cfg.Discipline, cfg.Enabled)
	return nil
}

// Collaborator returns the collaborator for a domain, or nil.
func (r *Registry) Collaborator(domain string) Collaborator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.collaborators[domain]
}

// ConfigFor returns the configuration of a registered domain.
func (r *Registry) ConfigFor(domain string) (Config, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[domain]
	return cfg, ok
}

// Domains returns the names of all enabled domains.
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for name, cfg := range r.configs {
		if cfg.Enabled {
			out = append(out, name)
		}
	}
	return out
}

// Start fetches an initial topology from every enabled domain and begins
// their poll loops.
func (r *Registry) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ctx, r.cancel = context.WithCancel(ctx)

	for name, c := range r.collaborators {
		cfg := r.configs[name]
		if !cfg.Enabled {
			log.Printf("Domain %s is disabled, skipping", name)
			continue
		}
		if err := r.refresh(r.ctx, name, c); err != nil {
			log.Printf("Initial topology fetch from %s failed: %v", name, err)
		}
		if cfg.PollInterval != "" {
			r.startPollLoop(name, c, cfg)
		}
	}
	return nil
}

// Stop cancels every poll loop and waits for them to drain.
func (r *Registry) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	return nil
}

func (r *Registry) startPollLoop(name string, c Collaborator, cfg Config) {
	interval, err := time.ParseDuration(cfg.PollInterval)
	if err != nil {
		log.Printf("Invalid poll interval for %s: %v, defaulting to 30s", name, err)
		interval = 30 * time.Second
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Printf("Started topology poll loop for domain %s (interval=%s)", name, interval)
		for {
			select {
			case <-r.ctx.Done():
				log.Printf("Stopped topology poll loop for domain %s", name)
				return
			case <-ticker.C:
				if err := r.refresh(r.ctx, name, c); err != nil {
					log.Printf("Topology refresh from %s failed: %v", name, err)
				}
			}
		}
	}()
}

// Refresh fetches a domain's topology once and reports it upstream.
func (r *Registry) Refresh(ctx context.Context, domain string) error {
	r.mu.RLock()
	c, exists := r.collaborators[domain]
	cfg := r.configs[domain]
	r.mu.RUnlock()

	if !exists {
		return fmt.Errorf("domain %s not found", domain)
	}
	if !cfg.Enabled {
		return fmt.Errorf("domain %s is disabled", domain)
	}
	return r.refresh(ctx, domain, c)
}

func (r *Registry) refresh(ctx context.Context, domain string, c Collaborator) error {
	topo, err := c.Topology(ctx)
	if err != nil {
		return fmt.Errorf("fetch topology: %w", err)
	}
	if r.report == nil {
		return nil
	}
	return r.report(ctx, domain, topo)
}
