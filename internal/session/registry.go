// Package session hands each authenticated principal an independent
// tracker and prediction cache. State containers are constructor-built per
// user, never process-global, so tests instantiate their own.
package session

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/events"
	"github.com/finsight/riskdash-back/internal/platform"
	"github.com/finsight/riskdash-back/internal/predcache"
	"github.com/finsight/riskdash-back/internal/repository"
	"github.com/finsight/riskdash-back/internal/tracker"
)

type Session struct {
	Principal domain.Principal
	Tracker   *tracker.Tracker
	Cache     *predcache.Cache
	lastSeen  time.Time
}

type RegistryConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	Tracker       tracker.Config
	Cache         predcache.Config
}

// Registry lazily builds sessions keyed by user id and sweeps the ones
// nobody has touched for a while, stopping their poll loops on the way
// out.
type Registry struct {
	client    platform.Client
	repo      repository.UploadJobsRepository
	publisher events.Publisher
	logger    *zap.Logger
	cfg       RegistryConfig

	mu       sync.Mutex
	sessions map[string]*Session
	stop     chan struct{}
	stopOnce sync.Once
}

func NewRegistry(
	client platform.Client,
	repo repository.UploadJobsRepository,
	publisher events.Publisher,
	logger *zap.Logger,
	cfg RegistryConfig,
) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}

	registry := &Registry{
		client:    client,
		repo:      repo,
		publisher: publisher,
		logger:    logger,
		cfg:       cfg,
		sessions:  make(map[string]*Session),
		stop:      make(chan struct{}),
	}
	go registry.sweepLoop()
	return registry
}

// For returns the session for a principal, building it on first use. A
// changed role or organization replaces the session: entitlements drive
// what the cache holds, so stale containers must not survive a role
// change.
func (r *Registry) For(principal domain.Principal) *Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[principal.UserID]
	if ok && existing.Principal == principal {
		existing.lastSeen = time.Now()
		return existing
	}
	if ok {
		existing.Tracker.StopPolling()
	}

	session := &Session{
		Principal: principal,
		Tracker: tracker.New(
			principal.UserID,
			r.client,
			r.repo,
			r.publisher,
			r.logger.Named("tracker"),
			r.cfg.Tracker,
		),
		Cache: predcache.New(
			principal,
			r.client,
			r.publisher,
			r.logger.Named("predcache"),
			r.cfg.Cache,
		),
		lastSeen: time.Now(),
	}
	r.sessions[principal.UserID] = session
	return session
}

// Client exposes the shared platform client for one-shot calls that do
// not belong to any per-user container.
func (r *Registry) Client() platform.Client {
	return r.client
}

func (r *Registry) Close() {
	r.stopOnce.Do(func() {
		close(r.stop)
	})

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, session := range r.sessions {
		session.Tracker.StopPolling()
	}
	r.sessions = make(map[string]*Session)
}

func (r *Registry) sweepLoop() {
	ticker := time.NewTicker(r.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweep()
		}
	}
}

func (r *Registry) sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for userID, session := range r.sessions {
		if time.Since(session.lastSeen) <= r.cfg.IdleTTL {
			continue
		}
		// Never evict a session with a live poll loop; the user is about
		// to come back for the result.
		if session.Tracker.Polling() {
			continue
		}
		delete(r.sessions, userID)
		r.logger.Debug("evicted idle session", zap.String("user_id", userID))
	}
}
