// Package sshmanager maintains SSH connections to remote devices, keyed by
// connection UUID.
//
// SSH multiplexes channels over a single TCP connection, so one connection
// per device suffices: every shell session opened against a device shares
// that device's connection. The manager owns connection establishment,
// liveness (keepalive), and teardown; opening channels on a connection is
// the job of internal/sshchannel.
package sshmanager

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/ssh"

	"github.com/lunadev/shellmux/internal/logutil"
)

const (
	// keepaliveInterval is how often keepalive requests are sent.
	keepaliveInterval = 30 * time.Second

	// connectTimeout bounds SSH connection establishment.
	connectTimeout = 30 * time.Second
)

// Manager tracks active SSH connections keyed by connection ID.
type Manager struct {
	mu    sync.RWMutex
	conns map[uuid.UUID]*managedConn
}

// managedConn wraps an SSH client with the cancel function stopping its
// keepalive goroutine.
type managedConn struct {
	client      *ssh.Client
	cancel      context.CancelFunc
	connectedAt time.Time
}

// New creates an empty Manager.
func New() *Manager {
	return &Manager{conns: make(map[uuid.UUID]*managedConn)}
}

// Connect establishes an SSH connection to host:port and stores it under id.
// An existing connection for the same id is closed first. The returned
// client stays owned by the manager; callers must not close it directly.
func (m *Manager) Connect(ctx context.Context, id uuid.UUID, host string, port int, user string, auth []ssh.AuthMethod) (*ssh.Client, error) {
	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         connectTimeout,
	}

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))

	dialer := net.Dialer{Timeout: connectTimeout}
	netConn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}

	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, cfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake with %s: %w", addr, err)
	}
	client := ssh.NewClient(sshConn, chans, reqs)

	m.mu.Lock()
	if existing, ok := m.conns[id]; ok {
		existing.cancel()
		existing.client.Close()
	}
	keepCtx, keepCancel := context.WithCancel(context.Background())
	m.conns[id] = &managedConn{
		client:      client,
		cancel:      keepCancel,
		connectedAt: time.Now(),
	}
	m.mu.Unlock()

	go m.keepalive(keepCtx, id, client)

	// addr carries the inventory host verbatim; keep it log-safe.
	log.Printf("[sshmanager] connected %s (%s)", id, logutil.Sanitize(addr))
	return client, nil
}

// GetConnection returns the SSH connection stored under id, if any.
func (m *Manager) GetConnection(id uuid.UUID) (*ssh.Client, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mc, ok := m.conns[id]
	if !ok {
		return nil, false
	}
	return mc.client, true
}

// IsConnected reports whether a healthy connection exists for id. It sends
// a keepalive request to verify liveness, not just map membership.
func (m *Manager) IsConnected(id uuid.UUID) bool {
	m.mu.RLock()
	mc, ok := m.conns[id]
	m.mu.RUnlock()
	if !ok {
		return false
	}
	_, _, err := mc.client.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Close closes the connection stored under id and removes it.
func (m *Manager) Close(id uuid.UUID) error {
	m.mu.Lock()
	mc, ok := m.conns[id]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	delete(m.conns, id)
	m.mu.Unlock()

	mc.cancel()
	if err := mc.client.Close(); err != nil {
		return fmt.Errorf("close ssh connection %s: %w", id, err)
	}
	log.Printf("[sshmanager] disconnected %s (up %s)", id, time.Since(mc.connectedAt).Round(time.Second))
	return nil
}

// CloseAll closes every connection. Used during shutdown.
func (m *Manager) CloseAll() error {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[uuid.UUID]*managedConn)
	m.mu.Unlock()

	var firstErr error
	for id, mc := range conns {
		mc.cancel()
		if err := mc.client.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close ssh connection %s: %w", id, err)
		}
	}
	log.Printf("[sshmanager] all connections closed (%d total)", len(conns))
	return firstErr
}

// Count returns the number of tracked connections.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// SweepDead drops connections whose keepalive no longer answers. Wired to a
// periodic maintenance job; returns how many connections were removed.
func (m *Manager) SweepDead() int {
	m.mu.RLock()
	ids := make([]uuid.UUID, 0, len(m.conns))
	for id := range m.conns {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	removed := 0
	for _, id := range ids {
		if !m.IsConnected(id) {
			if err := m.Close(id); err != nil {
				log.Printf("[sshmanager] sweep close %s: %v", id, err)
			}
			removed++
		}
	}
	return removed
}

// keepalive sends periodic keepalive requests and removes the connection
// once one fails.
func (m *Manager) keepalive(ctx context.Context, id uuid.UUID, client *ssh.Client) {
	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _, err := client.SendRequest("keepalive@openssh.com", true, nil)
			if err != nil {
				log.Printf("[sshmanager] keepalive failed for %s: %v, removing connection", id, err)
				m.mu.Lock()
				if mc, ok := m.conns[id]; ok && mc.client == client {
					delete(m.conns, id)
				}
				m.mu.Unlock()
				client.Close()
				return
			}
		}
	}
}
