package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"conflux/internal/codec"
	"conflux/internal/deploy"
	"conflux/internal/mapper"
	"conflux/internal/nffg"
	"conflux/internal/repository"
	"conflux/internal/view"
)

// RequestState is a service request's position in the intake pipeline.
type RequestState string

const (
	StateReceived  RequestState = "RECEIVED"
	StateMapping   RequestState = "MAPPING"
	StateDeploying RequestState = "DEPLOYING"
	StateDone      RequestState = "DONE"
	StateFailed    RequestState = "FAILED"
)

// Request tracks one service graph through parse, embed and deploy.
// Per-domain outcomes are preserved verbatim; a partial failure is never
// summarized into a single boolean.
type Request struct {
	ID        string                           `json:"id"`
	ServiceID string                           `json:"service_id"`
	State     RequestState                     `json:"state"`
	BatchID   string                           `json:"batch_id,omitempty"`
	Error     string                           `json:"error,omitempty"`
	Outcomes  map[string]*deploy.DomainOutcome `json:"outcomes,omitempty"`
	CreatedAt time.Time                        `json:"created_at"`
	UpdatedAt time.Time                        `json:"updated_at"`
}

// Orchestrator runs the request pipeline: parse the service graph, embed
// it onto the current global view, deploy the mapped graph across the
// domains, and record the audit artifacts.
type Orchestrator struct {
	agg    *view.Aggregator
	engine *mapper.Engine
	coord  *deploy.Coordinator
	store  repository.Store
	bus    *EventBus

	// pipeline serializes embed-then-commit: the view read by the
	// engine must still be current when the batch commits, so only one
	// request is in flight between Projection and Execute.
	pipeline sync.Mutex

	mu       sync.RWMutex
	requests map[string]*Request
	mapped   map[string]string // service graph id -> last successful request id
}

// NewOrchestrator creates the pipeline front end. The store may be nil
// when auditing is disabled.
func NewOrchestrator(agg *view.Aggregator, engine *mapper.Engine, coord *deploy.Coordinator, store repository.Store, bus *EventBus) *Orchestrator {
	return &Orchestrator{
		agg:      agg,
		engine:   engine,
		coord:    coord,
		store:    store,
		bus:      bus,
		requests: make(map[string]*Request),
		mapped:   make(map[string]string),
	}
}

// Submit parses a service graph and starts its pipeline asynchronously.
// The returned request is immediately queryable by id.
func (o *Orchestrator) Submit(data []byte, format string) (*Request, error) {
	c := codec.ForFormat(format)
	if c == nil {
		return nil, fmt.Errorf("unsupported request format %q", format)
	}
	sg, err := c.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse service graph: %w", err)
	}
	if len(sg.NFs()) == 0 && len(sg.SAPs()) == 0 {
		return nil, fmt.Errorf("service graph %s has no functions or access points", sg.ID)
	}

	req := &Request{
		ID:        uuid.NewString(),
		ServiceID: sg.ID,
		State:     StateReceived,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	o.mu.Lock()
	o.requests[req.ID] = req
	o.mu.Unlock()
	o.publish(EventRequestReceived, o.Request(req.ID))

	snap := o.Request(req.ID)
	go o.Process(context.Background(), req.ID, sg)
	return snap, nil
}

// Process runs one parsed service graph through embed and deploy. It is
// exported so callers that need synchronous completion can invoke it
// directly with the request id returned by an intake path of their own.
func (o *Orchestrator) Process(ctx context.Context, requestID string, sg *nffg.NFFG) {
	o.mu.RLock()
	req := o.requests[requestID]
	o.mu.RUnlock()
	if req == nil {
		log.Printf("service: process called for unknown request %s", requestID)
		return
	}

	o.setState(req, StateMapping)

	// Embed and commit under one lock so the view cannot move between
	// the engine's read and the coordinator's commit.
	o.pipeline.Lock()
	defer o.pipeline.Unlock()

	proj, err := o.agg.Projection(view.Global)
	if err != nil {
		o.fail(req, fmt.Errorf("no resource view available: %w", err))
		return
	}

	result, err := o.embed(sg, proj.Graph)
	if err != nil {
		o.fail(req, err)
		return
	}
	o.publish(EventRequestMapped, o.Request(req.ID))
	o.saveManifest(ctx, req, result.Manifest)

	o.setState(req, StateDeploying)
	batch, err := o.coord.Execute(ctx, result.Mapped)
	if batch != nil {
		o.mu.Lock()
		req.BatchID = batch.ID
		req.Outcomes = batch.Outcomes
		o.mu.Unlock()
		o.saveBatch(ctx, req, batch)
	}
	if err != nil {
		o.fail(req, err)
		return
	}

	switch batch.State {
	case deploy.StateDone:
		if len(batch.Failed()) > 0 {
			o.fail(req, fmt.Errorf("deployment settled partial: domains %v failed", batch.Failed()))
			return
		}
	default:
		o.fail(req, fmt.Errorf("batch %s ended in state %s", batch.ID, batch.State))
		return
	}

	o.mu.Lock()
	o.mapped[sg.ID] = req.ID
	o.mu.Unlock()
	o.setState(req, StateDone)
	o.publish(EventRequestDone, o.Request(req.ID))
}

// embed chooses between a clean mapping and a remap: a service graph the
// orchestrator has installed before is re-embedded against the view that
// already carries its artifacts, keeping unchanged placements intact.
func (o *Orchestrator) embed(sg, res *nffg.NFFG) (*mapper.Result, error) {
	o.mu.RLock()
	_, seen := o.mapped[sg.ID]
	o.mu.RUnlock()

	if seen {
		return o.engine.Remap(sg, res)
	}
	return o.engine.Map(sg, res)
}

// Request returns a snapshot of a request by id, or nil. Snapshots are
// safe to serialize while the pipeline keeps moving.
func (o *Orchestrator) Request(id string) *Request {
	o.mu.RLock()
	defer o.mu.RUnlock()
	r, ok := o.requests[id]
	if !ok {
		return nil
	}
	cp := *r
	return &cp
}

// Requests returns snapshots of all known requests, unordered.
func (o *Orchestrator) Requests() []*Request {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*Request, 0, len(o.requests))
	for _, r := range o.requests {
		cp := *r
		out = append(out, &cp)
	}
	return out
}

// Topology returns the requested projection of the global view.
func (o *Orchestrator) Topology(kind view.Kind) (*view.Projection, error) {
	return o.agg.Projection(kind)
}

// HandleDomainReport applies a domain topology report to the global view
// and journals it. Called by the adapter registry's report path.
func (o *Orchestrator) HandleDomainReport(ctx context.Context, domain string, report *nffg.NFFG, discipline view.UpdateDiscipline) error {
	if err := o.agg.ApplyDomainReport(domain, report, discipline); err != nil {
		return err
	}
	o.journalReport(ctx, domain, report, discipline)
	o.publish(EventViewUpdated, map[string]interface{}{
		"domain":  domain,
		"version": o.agg.Version(),
	})
	return nil
}

func (o *Orchestrator) setState(req *Request, s RequestState) {
	o.mu.Lock()
	req.State = s
	req.UpdatedAt = time.Now()
	o.mu.Unlock()
}

func (o *Orchestrator) fail(req *Request, err error) {
	o.mu.Lock()
	req.State = StateFailed
	req.Error = err.Error()
	req.UpdatedAt = time.Now()
	o.mu.Unlock()
	log.Printf("service: request %s failed: %v", req.ID, err)
	o.publish(EventRequestFailed, o.Request(req.ID))
}

func (o *Orchestrator) publish(t EventType, payload interface{}) {
	if o.bus != nil {
		o.bus.Publish(Event{Type: t, Payload: payload})
	}
}

func (o *Orchestrator) saveManifest(ctx context.Context, req *Request, m *mapper.Manifest) {
	if o.store == nil {
		return
	}
	raw, err := json.Marshal(m)
	if err != nil {
		log.Printf("service: marshaling manifest for %s: %v", req.ID, err)
		return
	}
	rec := &repository.ManifestRecord{
		RequestID:   req.ID,
		ViewVersion: m.ViewVersion,
		Manifest:    raw,
	}
	if err := o.store.SaveManifest(ctx, rec); err != nil {
		log.Printf("service: persisting manifest for %s: %v", req.ID, err)
	}
}

func (o *Orchestrator) saveBatch(ctx context.Context, req *Request, b *deploy.Batch) {
	if o.store == nil {
		return
	}
	raw, err := json.Marshal(b.Outcomes)
	if err != nil {
		log.Printf("service: marshaling outcomes for batch %s: %v", b.ID, err)
		return
	}
	rec := &repository.BatchRecord{
		ID:        b.ID,
		RequestID: req.ID,
		State:     string(b.State),
		Outcomes:  raw,
		CreatedAt: b.CreatedAt,
		SettledAt: b.SettledAt,
	}
	if err := o.store.SaveBatch(ctx, rec); err != nil {
		log.Printf("service: persisting batch %s: %v", b.ID, err)
	}
}

func (o *Orchestrator) journalReport(ctx context.Context, domain string, report *nffg.NFFG, discipline view.UpdateDiscipline) {
	if o.store == nil {
		return
	}
	raw, err := json.Marshal(report)
	if err != nil {
		log.Printf("service: marshaling report from %s: %v", domain, err)
		return
	}
	entry := &repository.ReportEntry{
		Domain:     domain,
		Version:    o.agg.Version(),
		Discipline: string(discipline),
		Graph:      raw,
		ReceivedAt: time.Now(),
	}
	if err := o.store.JournalReport(ctx, entry); err != nil {
		log.Printf("service: journaling report from %s: %v", domain, err)
	}
}
