package rag

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// ManagerOptions bound the instance cache.
type ManagerOptions struct {
	// MaxIdle evicts instances untouched for longer than this. Zero
	// disables idle eviction.
	MaxIdle time.Duration

	// CleanupInterval is the idle-sweep period. Zero disables the
	// background sweep (CleanupInactive can still be called directly).
	CleanupInterval time.Duration

	// MaxInstances caps the cache; exceeding it evicts the
	// least-recently-accessed instances. Zero means unbounded.
	MaxInstances int
}

type cacheEntry struct {
	engine     *TenantEngine
	lastAccess time.Time
}

// pending tracks an in-flight construction so that concurrent first-time
// access for the same tenant builds exactly one instance.
type pending struct {
	done   chan struct{}
	engine *TenantEngine
	err    error
}

// Manager is the keyed cache mapping tenant id to its engine instance. It
// is constructed once at startup, passed explicitly to every handler, and
// shut down once at teardown. One mutex guards the cache; instance
// construction and finalization always run outside it.
type Manager struct {
	cfg  Config
	opts ManagerOptions

	mu       sync.Mutex
	entries  map[string]*cacheEntry
	inflight map[string]*pending
	closed   bool

	stopSweep chan struct{}
	sweepDone chan struct{}

	shutdownOnce sync.Once
}

// NewManager builds a manager over the shared configuration and starts the
// idle sweep when configured.
func NewManager(cfg Config, opts ManagerOptions) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	m := &Manager{
		cfg:      cfg,
		opts:     opts,
		entries:  make(map[string]*cacheEntry),
		inflight: make(map[string]*pending),
	}
	if opts.CleanupInterval > 0 && opts.MaxIdle > 0 {
		m.stopSweep = make(chan struct{})
		m.sweepDone = make(chan struct{})
		go m.sweepLoop()
	}
	return m, nil
}

func (m *Manager) sweepLoop() {
	defer close(m.sweepDone)
	ticker := time.NewTicker(m.opts.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.CleanupInactive(m.opts.MaxIdle)
		case <-m.stopSweep:
			return
		}
	}
}

// GetOrCreate returns the cached instance for tenantID, constructing and
// initializing one on first access. At most one instance is ever built per
// tenant, even under concurrent misses; construction failures are not
// cached, so a later attempt starts fresh.
func (m *Manager) GetOrCreate(tenantID string) (*TenantEngine, error) {
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return nil, ErrManagerClosed
		}
		if entry, ok := m.entries[tenantID]; ok {
			entry.lastAccess = time.Now()
			m.mu.Unlock()
			return entry.engine, nil
		}
		if p, ok := m.inflight[tenantID]; ok {
			m.mu.Unlock()
			<-p.done
			if p.err != nil {
				return nil, p.err
			}
			// The builder published the instance, but it may already
			// have been evicted; re-check rather than hand out a
			// finalized engine.
			m.mu.Lock()
			if entry, ok := m.entries[tenantID]; ok && entry.engine == p.engine {
				entry.lastAccess = time.Now()
				m.mu.Unlock()
				return entry.engine, nil
			}
			m.mu.Unlock()
			continue
		}
		p := &pending{done: make(chan struct{})}
		m.inflight[tenantID] = p
		m.mu.Unlock()

		engine, err := m.buildInstance(tenantID)

		m.mu.Lock()
		delete(m.inflight, tenantID)
		closed := m.closed
		var evict []string
		if err == nil && !closed {
			m.entries[tenantID] = &cacheEntry{engine: engine, lastAccess: time.Now()}
			evict = m.overCapacityLocked(tenantID)
		}
		m.mu.Unlock()

		if closed && err == nil {
			// Shutdown already snapshotted the cache; an instance
			// published now would never be finalized. Finalize it here
			// and refuse the request.
			if ferr := engine.FinalizeStorages(); ferr != nil {
				log.Printf("⚠️  finalize failed for tenant %s: %v", tenantID, ferr)
			}
			engine, err = nil, ErrManagerClosed
		}

		p.engine = engine
		p.err = err
		close(p.done)

		for _, victim := range evict {
			log.Printf("🧹 evicting tenant %s: instance cache over capacity", victim)
			m.RemoveInstance(victim)
		}
		return engine, err
	}
}

// buildInstance does the expensive work: directory creation and storage
// initialization. Never called while holding the cache lock.
func (m *Manager) buildInstance(tenantID string) (*TenantEngine, error) {
	engine, err := NewTenantEngine(tenantID, m.cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrInstanceCreationFailed, tenantID, err)
	}
	if err := engine.InitializeStorages(); err != nil {
		return nil, fmt.Errorf("%w: tenant %s: %w", ErrInstanceCreationFailed, tenantID, err)
	}
	log.Printf("✨ created engine instance for tenant %s", tenantID)
	return engine, nil
}

// overCapacityLocked returns the least-recently-accessed tenants to evict,
// excluding keep. Callers hold m.mu.
func (m *Manager) overCapacityLocked(keep string) []string {
	if m.opts.MaxInstances <= 0 || len(m.entries) <= m.opts.MaxInstances {
		return nil
	}
	type aged struct {
		tenantID   string
		lastAccess time.Time
	}
	candidates := make([]aged, 0, len(m.entries))
	for tenantID, entry := range m.entries {
		if tenantID == keep {
			continue
		}
		candidates = append(candidates, aged{tenantID, entry.lastAccess})
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].lastAccess.Before(candidates[j].lastAccess)
	})
	excess := len(m.entries) - m.opts.MaxInstances
	if excess > len(candidates) {
		excess = len(candidates)
	}
	victims := make([]string, excess)
	for i := 0; i < excess; i++ {
		victims[i] = candidates[i].tenantID
	}
	return victims
}

// RemoveInstance evicts tenantID from the cache, finalizing its storages.
// Finalize failures are logged and absorbed; eviction must not get stuck.
// Reports whether anything was removed.
func (m *Manager) RemoveInstance(tenantID string) bool {
	m.mu.Lock()
	entry, ok := m.entries[tenantID]
	if ok {
		delete(m.entries, tenantID)
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	if err := entry.engine.FinalizeStorages(); err != nil {
		log.Printf("⚠️  finalize failed for tenant %s: %v", tenantID, err)
	}
	log.Printf("🗑️  removed engine instance for tenant %s", tenantID)
	return true
}

// CleanupInactive evicts every instance idle longer than maxIdle. Expired
// tenants are collected under the lock; removal and finalization run
// outside it, dispatched independently per tenant so one stalled finalize
// cannot block the rest.
func (m *Manager) CleanupInactive(maxIdle time.Duration) int {
	cutoff := time.Now().Add(-maxIdle)

	m.mu.Lock()
	var expired []string
	for tenantID, entry := range m.entries {
		if entry.lastAccess.Before(cutoff) {
			expired = append(expired, tenantID)
		}
	}
	m.mu.Unlock()

	if len(expired) == 0 {
		return 0
	}

	var g errgroup.Group
	for _, tenantID := range expired {
		tenantID := tenantID
		g.Go(func() error {
			if m.RemoveInstance(tenantID) {
				log.Printf("🧹 evicted idle tenant %s", tenantID)
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(expired)
}

// Len returns the number of cached instances.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Tenants returns the cached tenant ids, sorted.
func (m *Manager) Tenants() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	tenants := make([]string, 0, len(m.entries))
	for tenantID := range m.entries {
		tenants = append(tenants, tenantID)
	}
	sort.Strings(tenants)
	return tenants
}

// SystemGraphLabels lists node ids across every namespace in the shared
// graph. Serves the unauthenticated label-listing fallback only.
func (m *Manager) SystemGraphLabels() ([]string, error) {
	nodes, err := m.cfg.Graph.AllNodes()
	if err != nil {
		return nil, err
	}
	labels := make([]string, 0, len(nodes))
	for _, node := range nodes {
		labels = append(labels, string(node.ID))
	}
	sort.Strings(labels)
	return labels, nil
}

// Shutdown stops the idle sweep, waits for it, and finalizes every cached
// instance. Safe to call when no instance was ever created; subsequent
// calls are no-ops.
func (m *Manager) Shutdown() {
	m.shutdownOnce.Do(func() {
		if m.stopSweep != nil {
			close(m.stopSweep)
			<-m.sweepDone
		}

		m.mu.Lock()
		m.closed = true
		remaining := make([]string, 0, len(m.entries))
		for tenantID := range m.entries {
			remaining = append(remaining, tenantID)
		}
		m.mu.Unlock()

		var g errgroup.Group
		for _, tenantID := range remaining {
			tenantID := tenantID
			g.Go(func() error {
				m.RemoveInstance(tenantID)
				return nil
			})
		}
		_ = g.Wait()
		log.Printf("👋 instance manager shut down (%d instances finalized)", len(remaining))
	})
}
