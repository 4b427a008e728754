package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"golang.org/x/crypto/ssh"

	"conflux/internal/nffg"
)

// SSHCollaborator drives a domain whose agent is only reachable over SSH:
// each operation runs the remote agent binary and exchanges NFFG JSON on
// stdin/stdout.
type SSHCollaborator struct {
	name     string
	addr     string
	username string
	password string
	keyPEM   []byte
	agentCmd string
	timeout  time.Duration
}

// SSHOption configures an SSHCollaborator.
type SSHOption func(*SSHCollaborator)

// WithSSHPassword selects password authentication.
func WithSSHPassword(password string) SSHOption {
	return func(s *SSHCollaborator) { s.password = password }
}

// WithSSHKey selects key-based authentication from a PEM private key.
func WithSSHKey(keyPEM []byte) SSHOption {
	return func(s *SSHCollaborator) { s.keyPEM = keyPEM }
}

// WithSSHTimeout overrides the default 30s dial/command timeout.
func WithSSHTimeout(d time.Duration) SSHOption {
	return func(s *SSHCollaborator) { s.timeout = d }
}

// NewSSHCollaborator creates an SSH-driven domain collaborator. agentCmd
// is the remote agent binary, e.g. "conflux-agent".
func NewSSHCollaborator(name, addr, username, agentCmd string, opts ...SSHOption) *SSHCollaborator {
	s := &SSHCollaborator{
		name:     name,
		addr:     addr,
		username: username,
		agentCmd: agentCmd,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the domain name.
func (s *SSHCollaborator) Name() string { return s.name }

func (s *SSHCollaborator) sshConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:            s.username,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.timeout,
	}
	switch {
	case len(s.keyPEM) > 0:
		signer, err := ssh.ParsePrivateKey(s.keyPEM)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	case s.password != "":
		config.Auth = []ssh.AuthMethod{ssh.Password(s.password)}
	default:
		return nil, fmt.Errorf("no authentication configured for domain %s", s.name)
	}
	return config, nil
}

func (s *SSHCollaborator) connect(ctx context.Context) (*ssh.Client, error) {
	config, err := s.sshConfig()
	if err != nil {
		return nil, err
	}
	dialer := &net.Dialer{Timeout: s.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", s.addr, err)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, s.addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", s.addr, err)
	}
	return ssh.NewClient(sshConn, chans, reqs), nil
}

// runAgent executes one agent command, feeding stdin and returning stdout.
// The command is killed when the context expires.
func (s *SSHCollaborator) runAgent(ctx context.Context, cmd string, stdin []byte) ([]byte, error) {
	client, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	defer session.Close()

	if stdin != nil {
		session.Stdin = bytes.NewReader(stdin)
	}
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()
	select {
	case <-ctx.Done():
		session.Signal(ssh.SIGKILL)
		return nil, ctx.Err()
	case err := <-done:
		if err != nil {
			return nil, fmt.Errorf("agent command %q: %w (stderr: %s)", cmd, err, stderr.String())
		}
	}
	return stdout.Bytes(), nil
}

// Topology fetches the domain's resource graph from the remote agent.
func (s *SSHCollaborator) Topology(ctx context.Context) (*nffg.NFFG, error) {
	out, err := s.runAgent(ctx, s.agentCmd+" topology", nil)
	if err != nil {
		return nil, err
	}
	g := &nffg.NFFG{}
	if err := json.Unmarshal(out, g); err != nil {
		return nil, fmt.Errorf("decode topology from %s: %w", s.name, err)
	}
	return g, nil
}

// Deploy streams a change-set to the remote agent.
func (s *SSHCollaborator) Deploy(ctx context.Context, changeSet *nffg.NFFG, diff bool, correlationID string) error {
	body, err := json.Marshal(changeSet)
	if err != nil {
		return err
	}
	cmd := fmt.Sprintf("%s deploy --correlation %s", s.agentCmd, correlationID)
	if diff {
		cmd += " --diff"
	}
	out, err := s.runAgent(ctx, cmd, body)
	if err != nil {
		return err
	}
	var reply struct {
		Accepted bool   `json:"accepted"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal(out, &reply); err != nil {
		return fmt.Errorf("decode deploy reply from %s: %w", s.name, err)
	}
	if !reply.Accepted {
		return &RejectedError{Domain: s.name, Reason: reply.Reason}
	}
	return nil
}

// Poll queries the state of an accepted change-set.
func (s *SSHCollaborator) Poll(ctx context.Context, correlationID string) (Status, error) {
	out, err := s.runAgent(ctx, fmt.Sprintf("%s status %s", s.agentCmd, correlationID), nil)
	if err != nil {
		return "", err
	}
	var reply struct {
		Status Status `json:"status"`
	}
	if err := json.Unmarshal(out, &reply); err != nil {
		return "", fmt.Errorf("decode status from %s: %w", s.name, err)
	}
	return reply.Status, nil
}
