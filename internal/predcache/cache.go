// Package predcache holds a per-user, role-aware mirror of prediction
// records so the dashboard can switch scopes and filters without a round
// trip. The platform API stays the authority; this cache only saves
// requests.
package predcache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finsight/riskdash-back/internal/cache"
	"github.com/finsight/riskdash-back/internal/domain"
	"github.com/finsight/riskdash-back/internal/events"
	"github.com/finsight/riskdash-back/internal/platform"
)

type Config struct {
	// Freshness is how long a populated cache satisfies non-forced
	// refreshes.
	Freshness time.Duration
	PageSize  int
	// MaxPages bounds the pagination loop against a misbehaving total.
	MaxPages int
	// OrgLookupTTL caches a tenant's organization list between refreshes.
	OrgLookupTTL time.Duration
}

func (c Config) withDefaults() Config {
	if c.Freshness <= 0 {
		c.Freshness = 30 * time.Minute
	}
	if c.PageSize <= 0 {
		c.PageSize = 100
	}
	if c.MaxPages <= 0 {
		c.MaxPages = 50
	}
	if c.OrgLookupTTL <= 0 {
		c.OrgLookupTTL = 15 * time.Minute
	}
	return c
}

// Cache partitions predictions into four disjoint collections: user and
// system, each split by period type. User collections hold what the
// principal may see under personal/organization access; system collections
// hold platform-wide records.
type Cache struct {
	client    platform.Client
	orgLookup *cache.TTLCache[map[string]bool]
	publisher events.Publisher
	logger    *zap.Logger
	principal domain.Principal
	cfg       Config

	mu              sync.RWMutex
	userAnnual      []domain.Prediction
	userQuarterly   []domain.Prediction
	systemAnnual    []domain.Prediction
	systemQuarterly []domain.Prediction
	activeFilter    domain.DataFilter
	filterChosen    bool
	refreshing      bool
	populated       bool
	lastRefreshed   time.Time
	lastError       string
}

func New(
	principal domain.Principal,
	client platform.Client,
	publisher events.Publisher,
	logger *zap.Logger,
	cfg Config,
) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg = cfg.withDefaults()
	return &Cache{
		client:    client,
		orgLookup: cache.NewTTLCache[map[string]bool](cache.Config{TTL: cfg.OrgLookupTTL}),
		publisher: publisher,
		logger:    logger,
		principal: principal,
		cfg:       cfg,
	}
}

// Refresh reloads the partitions from the platform. Overlapping calls are
// dropped, not queued, and a populated cache younger than the freshness
// window is left alone unless force is set.
//
// A 401 keeps whatever data was cached and surfaces no error: token
// renewal is expected to resolve it and the caller retries. Any other
// failure records a non-fatal error and never clears good data.
func (c *Cache) Refresh(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.refreshing {
		c.mu.Unlock()
		return nil
	}
	if c.populated && !force && time.Since(c.lastRefreshed) < c.cfg.Freshness {
		c.mu.Unlock()
		return nil
	}
	c.refreshing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.refreshing = false
		c.mu.Unlock()
	}()

	var err error
	if c.principal.Role == domain.RoleSuperAdmin {
		err = c.refreshSystemOnly(ctx)
	} else {
		err = c.refreshAllScopes(ctx)
	}

	if err != nil {
		if errors.Is(err, platform.ErrUnauthorized) {
			c.setError("")
			return err
		}
		c.setError(err.Error())
		return err
	}

	c.publishEvent(ctx, events.Event{
		Kind:   events.KindCacheRefreshed,
		UserID: c.principal.UserID,
	})
	return nil
}

// refreshSystemOnly serves super_admin: exactly two fetches, user
// partitions forced empty, filter forced to system.
func (c *Cache) refreshSystemOnly(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)

	var systemAnnual, systemQuarterly []domain.Prediction
	group.Go(func() error {
		var err error
		systemAnnual, err = c.fetchScope(groupCtx, platform.ScopeSystem, domain.PeriodAnnual)
		return err
	})
	group.Go(func() error {
		var err error
		systemQuarterly, err = c.fetchScope(groupCtx, platform.ScopeSystem, domain.PeriodQuarterly)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.systemAnnual = systemAnnual
	c.systemQuarterly = systemQuarterly
	c.userAnnual = nil
	c.userQuarterly = nil
	c.activeFilter = domain.FilterSystem
	c.markRefreshedLocked()
	return nil
}

func (c *Cache) refreshAllScopes(ctx context.Context) error {
	// tenant_admin re-derives record access against the tenant's
	// organization set; resolve it before the fetches land.
	var tenantOrgs map[string]bool
	if c.principal.Role == domain.RoleTenantAdmin {
		orgs, err := c.tenantOrganizations(ctx)
		if err != nil {
			return err
		}
		tenantOrgs = orgs
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var userAnnual, userQuarterly, systemAnnual, systemQuarterly []domain.Prediction
	group.Go(func() error {
		var err error
		userAnnual, err = c.fetchScope(groupCtx, platform.ScopeUser, domain.PeriodAnnual)
		return err
	})
	group.Go(func() error {
		var err error
		userQuarterly, err = c.fetchScope(groupCtx, platform.ScopeUser, domain.PeriodQuarterly)
		return err
	})
	group.Go(func() error {
		var err error
		systemAnnual, err = c.fetchScope(groupCtx, platform.ScopeSystem, domain.PeriodAnnual)
		return err
	})
	group.Go(func() error {
		var err error
		systemQuarterly, err = c.fetchScope(groupCtx, platform.ScopeSystem, domain.PeriodQuarterly)
		return err
	})
	if err := group.Wait(); err != nil {
		return err
	}

	if tenantOrgs != nil {
		rescope(userAnnual, tenantOrgs, c.principal.UserID)
		rescope(userQuarterly, tenantOrgs, c.principal.UserID)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.userAnnual = userAnnual
	c.userQuarterly = userQuarterly
	c.systemAnnual = systemAnnual
	c.systemQuarterly = systemQuarterly
	if !c.filterChosen {
		c.activeFilter = domain.DefaultFilterForRole(c.principal.Role)
	}
	c.markRefreshedLocked()
	return nil
}

func (c *Cache) markRefreshedLocked() {
	c.populated = true
	c.lastRefreshed = time.Now().UTC()
	c.lastError = ""
}

func (c *Cache) fetchScope(
	ctx context.Context,
	scope platform.Scope,
	period domain.PeriodType,
) ([]domain.Prediction, error) {
	items := make([]domain.Prediction, 0)
	for page := 1; page <= c.cfg.MaxPages; page++ {
		result, err := c.client.FetchPredictions(ctx, platform.PredictionQuery{
			Scope:          scope,
			PeriodType:     period,
			UserID:         c.principal.UserID,
			OrganizationID: c.principal.OrganizationID,
			TenantID:       c.principal.TenantID,
			Page:           page,
			Size:           c.cfg.PageSize,
		})
		if err != nil {
			return nil, fmt.Errorf("fetch %s %s predictions: %w", scope, period, err)
		}
		items = append(items, result.Items...)
		if len(result.Items) == 0 || page >= result.Pages {
			break
		}
	}
	return items, nil
}

func (c *Cache) tenantOrganizations(ctx context.Context) (map[string]bool, error) {
	if cached, ok := c.orgLookup.Get(c.principal.TenantID); ok {
		return cached, nil
	}
	orgs, err := c.client.ListTenantOrganizations(ctx, c.principal.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list tenant organizations: %w", err)
	}
	set := make(map[string]bool, len(orgs))
	for _, org := range orgs {
		set[org.ID] = true
	}
	c.orgLookup.Set(c.principal.TenantID, set)
	return set, nil
}

// rescope re-derives organizationAccess for tenant_admin views: a record
// whose organization belongs to the tenant is organization-scoped, a
// record created by the current user with no matching organization is
// personal, anything else keeps what the server reported.
func rescope(items []domain.Prediction, tenantOrgs map[string]bool, userID string) {
	for i := range items {
		switch {
		case items[i].OrganizationID != "" && tenantOrgs[items[i].OrganizationID]:
			items[i].OrganizationAccess = domain.AccessOrganization
		case items[i].CreatedBy == userID:
			items[i].OrganizationAccess = domain.AccessPersonal
		}
	}
}

func (c *Cache) setError(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = message
}

// Filtered returns the view for a period type under the active filter.
// Pure and synchronous: no network call, ever. The system filter returns
// the system partition verbatim; personal/organization narrow the user
// partition; all returns it whole.
func (c *Cache) Filtered(period domain.PeriodType) []domain.Prediction {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.activeFilter == domain.FilterSystem {
		return clonePredictions(c.systemPartitionLocked(period))
	}

	source := c.userPartitionLocked(period)
	if c.activeFilter == domain.FilterAll || c.activeFilter == "" {
		return clonePredictions(source)
	}

	want := domain.AccessPersonal
	if c.activeFilter == domain.FilterOrganization {
		want = domain.AccessOrganization
	}
	filtered := make([]domain.Prediction, 0, len(source))
	for _, item := range source {
		if item.OrganizationAccess == want {
			filtered = append(filtered, item)
		}
	}
	return filtered
}

// SetFilter selects the displayed scope. It never refetches: everything
// the user is entitled to is already cached after Refresh. super_admin is
// pinned to system.
func (c *Cache) SetFilter(filter domain.DataFilter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.principal.Role == domain.RoleSuperAdmin {
		c.activeFilter = domain.FilterSystem
		c.filterChosen = true
		return
	}
	c.activeFilter = filter
	c.filterChosen = true
}

func (c *Cache) ActiveFilter() domain.DataFilter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.activeFilter == "" {
		return domain.DefaultFilterForRole(c.principal.Role)
	}
	return c.activeFilter
}

// Add is the optimistic insert after a creation call succeeds: the record
// appears immediately, most recent first, before any server refresh.
func (c *Cache) Add(prediction domain.Prediction, period domain.PeriodType) {
	c.mu.Lock()
	if prediction.OrganizationAccess == domain.AccessSystem {
		target := c.systemPartitionLocked(period)
		c.setSystemPartitionLocked(period, prepend(target, prediction))
	} else {
		target := c.userPartitionLocked(period)
		c.setUserPartitionLocked(period, prepend(target, prediction))
	}
	c.mu.Unlock()

	c.publishEvent(context.Background(), events.Event{
		Kind:         events.KindPredictionAdded,
		UserID:       c.principal.UserID,
		PredictionID: prediction.ID,
		PeriodType:   period,
	})
}

// Replace swaps the record inserted under temporaryID for the
// server-confirmed one, preserving its position in the collection.
func (c *Cache) Replace(prediction domain.Prediction, period domain.PeriodType, temporaryID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, partition := range []*[]domain.Prediction{
		c.userPartitionRefLocked(period),
		c.systemPartitionRefLocked(period),
	} {
		for i := range *partition {
			if (*partition)[i].ID == temporaryID {
				(*partition)[i] = prediction
				return
			}
		}
	}
}

// Remove deletes the record from both partitions for the period type.
// Removing an absent id is a no-op.
func (c *Cache) Remove(id string, period domain.PeriodType) {
	c.mu.Lock()
	c.setUserPartitionLocked(period, withoutID(c.userPartitionLocked(period), id))
	c.setSystemPartitionLocked(period, withoutID(c.systemPartitionLocked(period), id))
	c.mu.Unlock()

	c.publishEvent(context.Background(), events.Event{
		Kind:         events.KindPredictionRemoved,
		UserID:       c.principal.UserID,
		PredictionID: id,
		PeriodType:   period,
	})
}

func (c *Cache) LastError() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastError
}

func (c *Cache) Populated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.populated
}

func (c *Cache) userPartitionLocked(period domain.PeriodType) []domain.Prediction {
	if period == domain.PeriodQuarterly {
		return c.userQuarterly
	}
	return c.userAnnual
}

func (c *Cache) systemPartitionLocked(period domain.PeriodType) []domain.Prediction {
	if period == domain.PeriodQuarterly {
		return c.systemQuarterly
	}
	return c.systemAnnual
}

func (c *Cache) userPartitionRefLocked(period domain.PeriodType) *[]domain.Prediction {
	if period == domain.PeriodQuarterly {
		return &c.userQuarterly
	}
	return &c.userAnnual
}

func (c *Cache) systemPartitionRefLocked(period domain.PeriodType) *[]domain.Prediction {
	if period == domain.PeriodQuarterly {
		return &c.systemQuarterly
	}
	return &c.systemAnnual
}

func (c *Cache) setUserPartitionLocked(period domain.PeriodType, items []domain.Prediction) {
	if period == domain.PeriodQuarterly {
		c.userQuarterly = items
		return
	}
	c.userAnnual = items
}

func (c *Cache) setSystemPartitionLocked(period domain.PeriodType, items []domain.Prediction) {
	if period == domain.PeriodQuarterly {
		c.systemQuarterly = items
		return
	}
	c.systemAnnual = items
}

func (c *Cache) publishEvent(ctx context.Context, event events.Event) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.Publish(ctx, event); err != nil {
		c.logger.Warn("failed to publish cache event", zap.String("kind", string(event.Kind)), zap.Error(err))
	}
}

func prepend(items []domain.Prediction, item domain.Prediction) []domain.Prediction {
	result := make([]domain.Prediction, 0, len(items)+1)
	result = append(result, item)
	return append(result, items...)
}

func withoutID(items []domain.Prediction, id string) []domain.Prediction {
	result := items[:0]
	for _, item := range items {
		if item.ID != id {
			result = append(result, item)
		}
	}
	return result
}

func clonePredictions(items []domain.Prediction) []domain.Prediction {
	return append([]domain.Prediction(nil), items...)
}
