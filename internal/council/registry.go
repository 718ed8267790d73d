package council

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Registry holds isolated sessions keyed by a surface-specific id (a chat
// thread, an HTTP session id). Each key owns its own Controller.
type Registry struct {
	newFn  func(key string) (*Controller, error)
	now    func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]*registryEntry
}

type registryEntry struct {
	ctrl       *Controller
	created    time.Time
	lastActive time.Time
}

// RegistryOpts holds parameters for creating a Registry.
type RegistryOpts struct {
	// New builds the controller for a key on first use.
	New    func(key string) (*Controller, error)
	Logger *zap.Logger
	// For testing: override the clock.
	Now func() time.Time
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts RegistryOpts) (*Registry, error) {
	if opts.New == nil {
		return nil, fmt.Errorf("council: registry: controller factory is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		newFn:   opts.New,
		now:     now,
		logger:  logger,
		entries: make(map[string]*registryEntry),
	}, nil
}

// Get returns the controller for key and marks it active.
func (r *Registry) Get(key string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[key]
	if !ok {
		return nil, false
	}
	e.lastActive = r.now()
	return e.ctrl, true
}

// GetOrCreate returns the controller for key, creating it if needed. The
// boolean reports whether a new session was created.
func (r *Registry) GetOrCreate(key string) (*Controller, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.entries[key]; ok {
		e.lastActive = r.now()
		return e.ctrl, false, nil
	}
	ctrl, err := r.newFn(key)
	if err != nil {
		return nil, false, fmt.Errorf("council: registry: create %s: %w", key, err)
	}
	now := r.now()
	r.entries[key] = &registryEntry{ctrl: ctrl, created: now, lastActive: now}
	r.logger.Info("session created", zap.String("key", key))
	return ctrl, true, nil
}

// Has reports whether key has a live session.
func (r *Registry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[key]
	return ok
}

// Remove drops the session for key.
func (r *Registry) Remove(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	r.logger.Info("session removed", zap.String("key", key))
	return true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// SessionInfo summarises one live session.
type SessionInfo struct {
	Key        string    `json:"id"`
	Stage      Stage     `json:"stage"`
	Profile    string    `json:"profile"`
	Created    time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// List returns every live session ordered by key.
func (r *Registry) List() []SessionInfo {
	r.mu.RLock()
	infos := make([]SessionInfo, 0, len(r.entries))
	ctrls := make([]*Controller, 0, len(r.entries))
	for k, e := range r.entries {
		infos = append(infos, SessionInfo{Key: k, Created: e.created, LastActive: e.lastActive})
		ctrls = append(ctrls, e.ctrl)
	}
	r.mu.RUnlock()

	// A controller lock may be held for a whole generation call; never take
	// it under r.mu.
	for i, c := range ctrls {
		infos[i].Stage = c.Stage()
		infos[i].Profile = c.Profile()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

// Sweep removes sessions idle for longer than idle and returns their keys.
func (r *Registry) Sweep(idle time.Duration) []string {
	if idle <= 0 {
		return nil
	}
	cutoff := r.now().Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for k, e := range r.entries {
		if e.lastActive.Before(cutoff) {
			delete(r.entries, k)
			removed = append(removed, k)
		}
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		r.logger.Info("swept idle sessions", zap.Strings("keys", removed))
	}
	return removed
}
