// Package mapper is the embedding engine: it places a request graph's
// functions onto a resource view, realizes service hops as substrate
// paths and generates the flow rules along them. The engine is stateless
// and side-effect-free on shared state; each run works on its own copy of
// the view.
package mapper

import (
	"log"
	"sort"

	"conflux/internal/nffg"
)

// Config fixes the engine's search behaviour. Immutable after New.
type Config struct {
	// TrialAndError enables bounded backtracking: on a dead end the
	// engine unwinds placements and retries alternate candidates. When
	// false the engine fails on the first unsatisfiable element.
	TrialAndError bool
	// MaxBacktracks bounds how many times the engine may unwind.
	MaxBacktracks int
}

// Engine maps request graphs onto resource views.
type Engine struct {
	cfg Config
}

// New creates an engine with the given search configuration.
func New(cfg Config) *Engine {
	if cfg.MaxBacktracks <= 0 {
		cfg.MaxBacktracks = 10
	}
	return &Engine{cfg: cfg}
}

// Manifest is the audit artifact of a successful mapping.
type Manifest struct {
	RequestID   string              `json:"request_id"`
	ViewVersion uint64              `json:"view_version"`
	Placements  map[string]string   `json:"placements"` // nf id -> infra id
	HopRules    map[string][]string `json:"hop_rules"`  // hop id -> flow rule ids
}

// Result is a successful embedding: the annotated copy of the resource
// view plus the placement manifest.
type Result struct {
	Mapped   *nffg.NFFG
	Manifest *Manifest
}

// frame is one entry of the explicit candidate stack driving the search.
type frame struct {
	nf         *nffg.Node
	candidates []string
	next       int
	chosen     string
	routes     []*routeLog
}

// Map embeds the request graph onto the resource view from a clean slate.
func (e *Engine) Map(req, res *nffg.NFFG) (*Result, error) {
	return e.run(req, res, false)
}

// Remap embeds against a view that already carries a previous mapping of
// the same service: placements and flow rules still wanted by the request
// are kept as-is, elements no longer requested are removed, and only the
// delta is computed. A no-op remap yields zero flow-rule churn.
func (e *Engine) Remap(req, res *nffg.NFFG) (*Result, error) {
	return e.run(req, res, true)
}

func (e *Engine) run(req, res *nffg.NFFG, remap bool) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, &MappingError{Reason: "invalid request: " + err.Error()}
	}
	s, err := newState(res)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		RequestID:   req.ID,
		ViewVersion: res.Version,
		Placements:  make(map[string]string),
		HopRules:    make(map[string][]string),
	}

	kept := map[string]bool{} // hop ids already realized (REMAP)
	if remap {
		e.reconcilePrevious(req, s, manifest, kept)
	}

	// Phase 1: place functions with bounded backtracking over an explicit
	// candidate stack. Each frame journals its own routes so unwinding is
	// a pop, not a deep undo.
	var toPlace []*nffg.Node
	for _, nf := range orderNFs(req) {
		if _, done := manifest.Placements[nf.ID]; !done {
			toPlace = append(toPlace, nf)
		}
	}

	frames := make([]*frame, 0, len(toPlace))
	backtracks := 0
	i := 0
	for i < len(toPlace) {
		if len(frames) == i {
			nf := toPlace[i]
			frames = append(frames, &frame{
				nf:         nf,
				candidates: s.candidatesFor(nf, e.neighborInfras(req, nf, manifest)),
			})
		}
		f := frames[i]

		placed := false
		for f.next < len(f.candidates) {
			cand := f.candidates[f.next]
			f.next++
			if err := s.place(f.nf, cand); err != nil {
				continue
			}
			f.chosen = cand
			manifest.Placements[f.nf.ID] = cand
			if err := e.routeReady(req, s, f, manifest, kept); err != nil {
				e.unwindFrame(s, f, manifest)
				if !e.cfg.TrialAndError {
					return nil, err
				}
				continue
			}
			placed = true
			break
		}

		if placed {
			i++
			continue
		}

		// Dead end at this function.
		if !e.cfg.TrialAndError || backtracks >= e.cfg.MaxBacktracks || i == 0 {
			return nil, &MappingError{
				NodeID: f.nf.ID,
				Reason: "no infrastructure node satisfies its demand and functional type",
			}
		}
		backtracks++
		frames = frames[:i]
		i--
		prev := frames[i]
		e.unwindFrame(s, prev, manifest)
		log.Printf("mapper: backtracking over %s (%d/%d)", prev.nf.ID, backtracks, e.cfg.MaxBacktracks)
	}

	// Phase 2: hops between two access points never waited on a placement.
	for _, h := range req.Hops() {
		if kept[h.ID] || len(manifest.HopRules[h.ID]) > 0 {
			continue
		}
		rl, err := s.route(h, e.effectiveBandwidth(req, h))
		if err != nil {
			return nil, err
		}
		e.recordRoute(manifest, h.ID, rl)
		if err := e.checkRequirements(req, s, h.ID); err != nil {
			return nil, err
		}
	}

	e.annotate(req, s)
	log.Printf("mapper: embedded request %s: %d functions, %d hops, view v%d",
		req.ID, len(manifest.Placements), len(manifest.HopRules), res.Version)
	return &Result{Mapped: s.m, Manifest: manifest}, nil
}

// neighborInfras lists where the already-placed neighbors of nf live, for
// the distance term of the cost function.
func (e *Engine) neighborInfras(req *nffg.NFFG, nf *nffg.Node, manifest *Manifest) []string {
	var out []string
	for _, h := range req.Hops() {
		other := ""
		switch nf.ID {
		case h.Src.Node:
			other = h.Dst.Node
		case h.Dst.Node:
			other = h.Src.Node
		default:
			continue
		}
		if infra, ok := manifest.Placements[other]; ok {
			out = append(out, infra)
		}
	}
	sort.Strings(out)
	return out
}

// routeReady routes every hop of the request that became realizable when
// f's function was placed: the other endpoint is an access point or an
// already-placed function.
func (e *Engine) routeReady(req *nffg.NFFG, s *state, f *frame, manifest *Manifest, kept map[string]bool) error {
	for _, h := range req.Hops() {
		if h.Src.Node != f.nf.ID && h.Dst.Node != f.nf.ID {
			continue
		}
		if kept[h.ID] || len(manifest.HopRules[h.ID]) > 0 {
			continue
		}
		if !e.otherEndpointReady(req, s, h, f.nf.ID) {
			continue
		}
		rl, err := s.route(h, e.effectiveBandwidth(req, h))
		if err != nil {
			return err
		}
		f.routes = append(f.routes, rl)
		e.recordRoute(manifest, h.ID, rl)
		if err := e.checkRequirements(req, s, h.ID); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) otherEndpointReady(req *nffg.NFFG, s *state, h *nffg.SGHop, selfID string) bool {
	otherID := h.Src.Node
	if otherID == selfID {
		otherID = h.Dst.Node
	}
	other := req.Node(otherID)
	if other == nil {
		return false
	}
	if other.Type == nffg.NodeTypeSAP {
		return true
	}
	placed := s.m.Node(otherID)
	return placed != nil && placed.Host != ""
}

// effectiveBandwidth raises a hop's own demand to the strictest minimum
// of any requirement governing it.
func (e *Engine) effectiveBandwidth(req *nffg.NFFG, h *nffg.SGHop) float64 {
	bw := h.Bandwidth
	for _, r := range req.Requirements() {
		for _, hid := range r.HopIDs {
			if hid == h.ID && r.MinBandwidth > bw {
				bw = r.MinBandwidth
			}
		}
	}
	return bw
}

// checkRequirements verifies every fully-routed requirement that governs
// the given hop against its end-to-end delay bound.
func (e *Engine) checkRequirements(req *nffg.NFFG, s *state, hopID string) error {
	for _, r := range req.Requirements() {
		governs := false
		for _, hid := range r.HopIDs {
			if hid == hopID {
				governs = true
				break
			}
		}
		if !governs || r.MaxDelay <= 0 {
			continue
		}
		total := 0.0
		complete := true
		for _, hid := range r.HopIDs {
			d, routed := s.hopDelay[hid]
			if !routed {
				complete = false
				break
			}
			total += d
		}
		if complete && total > r.MaxDelay {
			return &MappingError{
				RequirementID: r.ID,
				Reason: "end-to-end delay " + trimFloat(total) +
					" exceeds bound " + trimFloat(r.MaxDelay),
			}
		}
	}
	return nil
}

func (e *Engine) recordRoute(manifest *Manifest, hopID string, rl *routeLog) {
	ids := make([]string, 0, len(rl.rules))
	for _, ref := range rl.rules {
		ids = append(ids, ref.rule)
	}
	manifest.HopRules[hopID] = ids
}

// unwindFrame undoes everything a frame did: its routes, then its
// placement.
func (e *Engine) unwindFrame(s *state, f *frame, manifest *Manifest) {
	for j := len(f.routes) - 1; j >= 0; j-- {
		delete(manifest.HopRules, f.routes[j].hopID)
		s.undoRoute(f.routes[j])
	}
	f.routes = nil
	if f.chosen != "" {
		s.unplace(f.nf.ID, f.chosen)
		delete(manifest.Placements, f.nf.ID)
		f.chosen = ""
	}
}

// annotate carries the request's service-graph structure into the mapped
// graph so the deployment artifact is self-describing.
func (e *Engine) annotate(req *nffg.NFFG, s *state) {
	for _, h := range req.Hops() {
		if s.m.Hop(h.ID) != nil {
			continue
		}
		ch := *h
		if err := s.m.AddHop(&ch); err != nil {
			// SAP port ids can differ between request and view; hops are
			// annotation only, so skip the ones that do not resolve.
			continue
		}
	}
	for _, r := range req.Requirements() {
		if s.m.Requirement(r.ID) != nil {
			// A remap re-annotates a view that already carries the
			// requirement from the previous run.
			continue
		}
		cr := *r
		cr.HopIDs = append([]string(nil), r.HopIDs...)
		_ = s.m.AddRequirement(&cr)
	}
}
