package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"conflux/internal/nffg"
)

// domainAgent is a minimal HTTP stand-in for a domain orchestrator.
type domainAgent struct {
	topo         *nffg.NFFG
	topoStatus   int
	deployStatus int
	deployBody   string
	pollStatus   string

	lastDeploy *http.Request
}

func (a *domainAgent) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/topology", func(w http.ResponseWriter, r *http.Request) {
		if a.topoStatus != 0 && a.topoStatus != http.StatusOK {
			w.WriteHeader(a.topoStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(a.topo)
	})
	mux.HandleFunc("/edit-config", func(w http.ResponseWriter, r *http.Request) {
		a.lastDeploy = r.Clone(context.Background())
		status := a.deployStatus
		if status == 0 {
			status = http.StatusAccepted
		}
		w.WriteHeader(status)
		w.Write([]byte(a.deployBody))
	})
	mux.HandleFunc("/status/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": a.pollStatus})
	})
	return mux
}

func newAgent(t *testing.T, a *domainAgent) *RESTCollaborator {
	t.Helper()
	srv := httptest.NewServer(a.handler())
	t.Cleanup(srv.Close)
	return NewRESTCollaborator("d1", srv.URL, time.Second)
}

func TestRESTTopology(t *testing.T) {
	agent := &domainAgent{topo: staticTopo("i1")}
	c := newAgent(t, agent)

	topo, err := c.Topology(context.Background())
	if err != nil {
		t.Fatalf("Topology() error = %v", err)
	}
	if topo.Node("i1") == nil || topo.Node("sap1") == nil {
		t.Error("fetched topology is missing nodes")
	}
}

func TestRESTTopologyError(t *testing.T) {
	agent := &domainAgent{topo: staticTopo("i1"), topoStatus: http.StatusServiceUnavailable}
	c := newAgent(t, agent)

	if _, err := c.Topology(context.Background()); err == nil {
		t.Error("Topology() succeeded against a 503 agent")
	}
}

func TestRESTDeploy(t *testing.T) {
	agent := &domainAgent{}
	c := newAgent(t, agent)

	if err := c.Deploy(context.Background(), staticTopo("i1"), true, "corr 1"); err != nil {
		t.Fatalf("Deploy() error = %v", err)
	}
	if agent.lastDeploy == nil {
		t.Fatal("agent never saw the deploy")
	}
	q := agent.lastDeploy.URL.Query()
	if q.Get("diff") != "true" {
		t.Errorf("diff query = %q, want true", q.Get("diff"))
	}
	if q.Get("correlation") != "corr 1" {
		t.Errorf("correlation query = %q, want %q", q.Get("correlation"), "corr 1")
	}
	if ct := agent.lastDeploy.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}

func TestRESTDeployRejected(t *testing.T) {
	agent := &domainAgent{deployStatus: http.StatusBadRequest, deployBody: "no such port"}
	c := newAgent(t, agent)

	err := c.Deploy(context.Background(), staticTopo("i1"), false, "corr-1")
	var rejected *RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("Deploy() error = %v, want *RejectedError", err)
	}
	if !strings.Contains(rejected.Reason, "no such port") {
		t.Errorf("rejected.Reason = %q, want agent message included", rejected.Reason)
	}
}

func TestRESTDeployServerError(t *testing.T) {
	agent := &domainAgent{deployStatus: http.StatusInternalServerError}
	c := newAgent(t, agent)

	err := c.Deploy(context.Background(), staticTopo("i1"), false, "corr-1")
	if err == nil {
		t.Fatal("Deploy() succeeded against a 500 agent")
	}
	var rejected *RejectedError
	if errors.As(err, &rejected) {
		t.Error("a 500 answer was treated as a rejection")
	}
}

func TestRESTPoll(t *testing.T) {
	tests := []struct {
		name    string
		status  string
		want    Status
		wantErr bool
	}{
		{"pending", "pending", StatusPending, false},
		{"success", "success", StatusSuccess, false},
		{"failure", "failure", StatusFailure, false},
		{"unknown status", "sideways", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newAgent(t, &domainAgent{pollStatus: tt.status})
			got, err := c.Poll(context.Background(), "corr-1")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Poll() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Poll() = %q, want %q", got, tt.want)
			}
		})
	}
}
