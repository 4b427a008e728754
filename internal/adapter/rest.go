package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"conflux/internal/nffg"
)

// RESTCollaborator drives a domain through its HTTP agent:
//
//	GET  {base}/topology                  -> NFFG JSON
//	POST {base}/edit-config               -> 202 accepted / 4xx rejected
//	GET  {base}/status/{correlation-id}   -> {"status": "..."}
type RESTCollaborator struct {
	name    string
	baseURL string
	client  *http.Client
}

// NewRESTCollaborator creates a REST-driven domain collaborator.
func NewRESTCollaborator(name, baseURL string, timeout time.Duration) *RESTCollaborator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RESTCollaborator{
		name:    name,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the domain name.
func (r *RESTCollaborator) Name() string { return r.name }

// Topology fetches the domain's resource graph.
func (r *RESTCollaborator) Topology(ctx context.Context) (*nffg.NFFG, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/topology", nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch topology from %s: %w", r.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch topology from %s: status %d", r.name, resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	g := &nffg.NFFG{}
	if err := json.Unmarshal(body, g); err != nil {
		return nil, fmt.Errorf("decode topology from %s: %w", r.name, err)
	}
	return g, nil
}

// Deploy posts a change-set to the domain agent.
func (r *RESTCollaborator) Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error {
	body, err := json.Marshal(changeSet)
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/edit-config?diff=%v&correlation=%s", r.baseURL, diff, url.QueryEscape(correlationID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("deploy to %s: %w", r.name, err)
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &RejectedError{Domain: r.name, Reason: fmt.Sprintf("status %d: %s", resp.StatusCode, msg)}
	default:
		return fmt.Errorf("deploy to %s: status %d", r.name, resp.StatusCode)
	}
}

// Poll queries the state of an accepted change-set.
func (r *RESTCollaborator) Poll(ctx context.Context, correlationID string) (Status, error) {
	u := r.baseURL + "/status/" + url.PathEscape(correlationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("poll %s: %w", r.name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("poll %s: status %d", r.name, resp.StatusCode)
	}
	var payload struct {
		Status Status `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode status from %s: %w", r.name, err)
	}
	switch payload.Status {
	case StatusPending, StatusSuccess, StatusFailure:
		return payload.Status, nil
	default:
		return "", fmt.Errorf("poll %s: unknown status %q", r.name, payload.Status)
	}
}
