// Package registry tracks the live shell actors, keyed by session token.
//
// The registry holds shared references: control calls (from HTTP handlers)
// and the protocol loop (its own goroutine) both reach the same *shell.Shell
// concurrently. An entry is removed only after its loop has exited, so a
// caller holding a shell across the removal still operates on a valid,
// merely disconnected, actor.
package registry

import (
	"errors"
	"log"
	"sync"

	"github.com/lunadev/shellmux/internal/shell"
)

// ErrNotFound is returned when no session exists for a token.
var ErrNotFound = errors.New("registry: session not found")

// Registry is a keyed collection of shell actors.
type Registry struct {
	mu     sync.RWMutex
	shells map[shell.Token]*shell.Shell
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{shells: make(map[shell.Token]*shell.Shell)}
}

// Start registers the shell and runs its protocol loop on a new goroutine,
// wiring cb as the loop's notification sink. The entry is removed and the
// channel released when the loop exits; the returned channel is closed at
// that point.
func (r *Registry) Start(sh *shell.Shell, cb shell.Callback) <-chan struct{} {
	token := sh.Token()

	r.mu.Lock()
	r.shells[token] = sh
	r.mu.Unlock()
	log.Printf("[registry] session %s started", token)

	done := make(chan struct{})
	go func() {
		defer close(done)

		err := sh.Run(cb)
		if err != nil && !errors.Is(err, shell.ErrDisconnected) {
			log.Printf("[registry] session %s loop error: %v", token, err)
		}
		// The loop leaves the channel closed or closable; make it closed.
		_ = sh.Close()

		r.mu.Lock()
		delete(r.shells, token)
		r.mu.Unlock()
		log.Printf("[registry] session %s removed", token)
	}()
	return done
}

// Get looks up a session actor by token.
func (r *Registry) Get(token shell.Token) (*shell.Shell, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sh, ok := r.shells[token]
	if !ok {
		return nil, ErrNotFound
	}
	return sh, nil
}

// List returns a metadata snapshot of every live session.
func (r *Registry) List() []shell.ShellInfo {
	r.mu.RLock()
	shells := make([]*shell.Shell, 0, len(r.shells))
	for _, sh := range r.shells {
		shells = append(shells, sh)
	}
	r.mu.RUnlock()

	infos := make([]shell.ShellInfo, len(shells))
	for i, sh := range shells {
		infos[i] = sh.Info()
	}
	return infos
}

// Close closes the session's channel; the loop observes the disconnection
// and removes the entry on its own.
func (r *Registry) Close(token shell.Token) error {
	sh, err := r.Get(token)
	if err != nil {
		return err
	}
	return sh.Close()
}

// CloseAll closes every session's channel. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.RLock()
	shells := make([]*shell.Shell, 0, len(r.shells))
	for _, sh := range r.shells {
		shells = append(shells, sh)
	}
	r.mu.RUnlock()

	for _, sh := range shells {
		_ = sh.Close()
	}
	log.Printf("[registry] closed %d sessions", len(shells))
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.shells)
}
