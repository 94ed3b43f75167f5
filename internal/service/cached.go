package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/hcservices/internal/cache"
	"github.com/and161185/hcservices/internal/errs"
	"github.com/and161185/hcservices/internal/gateway"
	"github.com/and161185/hcservices/internal/metrics"
	model "github.com/and161185/hcservices/internal/model"
)

// CacheOptions configure CachedLookup.
type CacheOptions struct {
	TTL     time.Duration
	Tier    cache.Tier
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Clock   func() time.Time
}

// CachedLookup wraps a LookupService with per-operation query caches.
// A query runs only when every required parameter is non-empty.
type CachedLookup struct {
	next   LookupService
	log    *zap.Logger
	search *cache.Cache[model.CaseSearchResult]
	cnr    *cache.Cache[model.CaseDetail]
	order  *cache.Cache[model.OrderDocument]
}

var _ LookupService = (*CachedLookup)(nil)

// NewCachedLookup constructs CachedLookup over next.
func NewCachedLookup(next LookupService, opts CacheOptions) *CachedLookup {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	co := func(name string) cache.Options {
		return cache.Options{
			Name:    name,
			TTL:     opts.TTL,
			Tier:    opts.Tier,
			Logger:  opts.Logger,
			Metrics: opts.Metrics,
			Clock:   opts.Clock,
		}
	}
	return &CachedLookup{
		next:   next,
		log:    opts.Logger,
		search: cache.New[model.CaseSearchResult](co(gateway.OpSearch)),
		cnr:    cache.New[model.CaseDetail](co(gateway.OpCNR)),
		order:  cache.New[model.OrderDocument](co(gateway.OpOrder)),
	}
}

func (c *CachedLookup) Search(ctx context.Context, q model.RegistrationQuery) (model.CaseSearchResult, error) {
	if err := enabled(gateway.OpSearch, q.Missing()); err != nil {
		return model.CaseSearchResult{}, err
	}
	key := cache.Key(gateway.OpSearch, q.EstCode, q.CaseType, q.RegYear, q.RegNo)
	return c.search.Get(ctx, key, func(ctx context.Context) (model.CaseSearchResult, error) {
		return c.next.Search(ctx, q)
	})
}

func (c *CachedLookup) Cnr(ctx context.Context, q model.CnrQuery) (model.CaseDetail, error) {
	if err := enabled(gateway.OpCNR, q.Missing()); err != nil {
		return model.CaseDetail{}, err
	}
	return c.cnr.Get(ctx, cache.Key(gateway.OpCNR, q.Cino), func(ctx context.Context) (model.CaseDetail, error) {
		return c.next.Cnr(ctx, q)
	})
}

func (c *CachedLookup) Order(ctx context.Context, q model.OrderQuery) (model.OrderDocument, error) {
	if err := enabled(gateway.OpOrder, q.Missing()); err != nil {
		return model.OrderDocument{}, err
	}
	key := cache.Key(gateway.OpOrder, q.Cino, q.OrderNo, q.OrderDate)
	return c.order.Get(ctx, key, func(ctx context.Context) (model.OrderDocument, error) {
		return c.next.Order(ctx, q)
	})
}

// CaseDetails composes the cached legs, so a repeated lookup costs no gateway calls.
func (c *CachedLookup) CaseDetails(ctx context.Context, q model.RegistrationQuery) (model.CaseDetails, error) {
	if err := enabled("details", q.Missing()); err != nil {
		return model.CaseDetails{}, err
	}
	return caseDetails(ctx, c.log, q, c.Search, c.Cnr)
}

// Forget drops the cached detail for cino, shared tier included.
func (c *CachedLookup) Forget(ctx context.Context, cino string) error {
	return c.cnr.Invalidate(ctx, cache.Key(gateway.OpCNR, cino))
}

func enabled(op string, missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s needs %s", errs.ErrIncompleteQuery, op, strings.Join(missing, ", "))
}
