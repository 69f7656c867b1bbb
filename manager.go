package session

import (
	"context"
	"sync"

	goerrors "github.com/goliatone/go-errors"
)

// Manager is the process-wide source of truth for "who is the current user
// and are they onboarded". It subscribes to the identity provider exactly
// once, resolves the application profile for each user-changed notification,
// and publishes whole Snapshots. Only the Manager writes the snapshot;
// guards and UI code read it.
type Manager struct {
	provider IdentityProvider
	profiles ProfileStore
	cache    ResponseCache
	logger   Logger
	activity ActivitySink

	mu          sync.Mutex
	snap        Snapshot
	gen         uint64
	baseCtx     context.Context
	cancelFetch context.CancelFunc
	unsubscribe func()
	started     bool

	listenerSeq uint64
	listeners   map[uint64]func(Snapshot)
}

// ManagerOption customizes Manager construction.
type ManagerOption func(*Manager)

// WithManagerLogger overrides the fallback logger.
func WithManagerLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithResponseCache registers a per-user response cache that is cleared on
// every identity change and on sign-out.
func WithResponseCache(cache ResponseCache) ManagerOption {
	return func(m *Manager) {
		m.cache = cache
	}
}

// WithManagerActivitySink sets the sink used to record session events.
func WithManagerActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// NewManager creates a Manager. The snapshot starts in the loading state and
// stays there until the provider's first notification settles.
func NewManager(provider IdentityProvider, profiles ProfileStore, opts ...ManagerOption) *Manager {
	m := &Manager{
		provider:  provider,
		profiles:  profiles,
		logger:    defLogger{},
		activity:  noopActivitySink{},
		snap:      Snapshot{Loading: true},
		listeners: map[uint64]func(Snapshot){},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

// Start subscribes to the identity provider's user-changed notifications.
// It must be called once per application lifetime; further calls error.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return goerrors.New("session manager already started", goerrors.CategoryConflict).
			WithCode(goerrors.CodeConflict)
	}
	m.started = true
	m.baseCtx = ctx
	m.mu.Unlock()

	m.unsubscribe = m.provider.OnUserChanged(m.handleUserChanged)
	return nil
}

// Stop detaches from the identity provider and cancels any in-flight
// profile fetch. The last published snapshot remains readable.
func (m *Manager) Stop() {
	m.mu.Lock()
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
	unsub := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

// Snapshot returns the current session snapshot.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap
}

// OnChange registers fn to be called with every published snapshot. The
// returned function removes the listener.
func (m *Manager) OnChange(fn func(Snapshot)) (unsubscribe func()) {
	m.mu.Lock()
	m.listenerSeq++
	id := m.listenerSeq
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// handleUserChanged processes one provider notification. Each notification
// fully supersedes prior state: it bumps the generation counter and cancels
// the profile fetch of any notification still in flight, so the last
// notification always wins.
func (m *Manager) handleUserChanged(identity Identity) {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}

	if identity == nil {
		m.publishLocked(Snapshot{})
		m.mu.Unlock()
		return
	}

	base := m.baseCtx
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	m.cancelFetch = cancel
	m.mu.Unlock()

	if m.cache != nil {
		m.cache.Clear()
	}

	go m.resolveProfile(ctx, gen, identity)
}

// resolveProfile fetches the profile for a notification generation and
// publishes identity + profile together. Results from superseded
// generations are discarded.
func (m *Manager) resolveProfile(ctx context.Context, gen uint64, identity Identity) {
	profile, err := m.profiles.FetchMine(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		profile = nil
		if IsProfileNotFound(err) {
			m.logger.Debug("no profile yet for %s, continuing onboarding", identity.Email())
		} else {
			m.logger.Error("profile fetch failed for %s: %v", identity.Email(), err)
		}
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.publishLocked(Snapshot{Identity: identity, Profile: profile})
	m.mu.Unlock()
}

// SignOut clears the response cache, signs out at the provider, and only
// then clears local state. When the provider call fails the local snapshot
// is left unchanged and the caller must not assume sign-out occurred.
func (m *Manager) SignOut(ctx context.Context) error {
	if m.cache != nil {
		m.cache.Clear()
	}

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Error("provider sign out failed: %v", err)
		return goerrors.Wrap(err, goerrors.CategoryInternal, "sign out failed").
			WithTextCode(TextCodeSignOutFailed).
			WithCode(goerrors.CodeInternal)
	}

	m.mu.Lock()
	m.gen++
	if m.cancelFetch != nil {
		m.cancelFetch()
		m.cancelFetch = nil
	}
	m.publishLocked(Snapshot{})
	m.mu.Unlock()

	m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventSignOut})
	return nil
}

// RefreshProfile re-fetches the profile and overwrites the cached copy. On
// failure the previously cached profile is left untouched; stale-but-present
// beats a false logged-out appearance.
func (m *Manager) RefreshProfile(ctx context.Context) (*Profile, error) {
	m.mu.Lock()
	identity := m.snap.Identity
	m.mu.Unlock()

	if identity == nil {
		return nil, ErrProfileFetch.WithMetadata(map[string]any{
			"reason": "no authenticated identity",
		})
	}

	profile, err := m.profiles.FetchMine(ctx)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to refresh profile").
			WithTextCode(TextCodeProfileFetch).
			WithCode(goerrors.CodeInternal)
	}

	m.mu.Lock()
	if m.snap.Identity != nil {
		m.publishLocked(Snapshot{Identity: m.snap.Identity, Profile: profile})
	}
	m.mu.Unlock()

	return profile, nil
}

// publishLocked replaces the snapshot and notifies listeners. Callers hold
// m.mu; listener callbacks run after the new snapshot is in place.
func (m *Manager) publishLocked(snap Snapshot) {
	m.snap = snap

	if len(m.listeners) == 0 {
		return
	}
	fns := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}

	go func() {
		for _, fn := range fns {
			fn(snap)
		}
	}()
}

func (m *Manager) recordActivity(ctx context.Context, event ActivityEvent) {
	sink := normalizeActivitySink(m.activity)
	if err := sink.Record(ctx, event); err != nil {
		m.logger.Warn("session activity sink error: %v", err)
	}
}
