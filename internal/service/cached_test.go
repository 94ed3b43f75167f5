package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/and161185/hcservices/internal/errs"
	model "github.com/and161185/hcservices/internal/model"
)

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newCached(gw *fakeGateway, clk *clock) *CachedLookup {
	opts := CacheOptions{}
	if clk != nil {
		opts.Clock = clk.now
	}
	return NewCachedLookup(NewLookupService(gw, nil), opts)
}

func TestCachedLookup_Gating(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c := newCached(gw, nil)
	ctx := context.Background()

	_, err := c.Search(ctx, model.RegistrationQuery{EstCode: "E", CaseType: "T", RegYear: "2020"})
	require.ErrorIs(t, err, errs.ErrIncompleteQuery)
	require.Contains(t, err.Error(), "reg_no")

	_, err = c.Cnr(ctx, model.CnrQuery{})
	require.ErrorIs(t, err, errs.ErrIncompleteQuery)

	_, err = c.Order(ctx, model.OrderQuery{Cino: "X", OrderNo: "1"})
	require.ErrorIs(t, err, errs.ErrIncompleteQuery)

	_, err = c.CaseDetails(ctx, model.RegistrationQuery{})
	require.ErrorIs(t, err, errs.ErrIncompleteQuery)

	s, n, o := gw.counts()
	require.Zero(t, s+n+o, "gated queries reached the gateway")
}

func TestCachedLookup_SingleFlight(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{search: oneCase("ABC123"), gate: make(chan struct{})}
	c := newCached(gw, nil)

	var wg sync.WaitGroup
	results := make([]model.CaseSearchResult, 2)
	errsOut := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errsOut[i] = c.Search(context.Background(), reg)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gw.gate)
	wg.Wait()

	require.NoError(t, errsOut[0])
	require.NoError(t, errsOut[1])
	require.Equal(t, results[0], results[1])
	s, _, _ := gw.counts()
	require.Equal(t, 1, s)
}

func TestCachedLookup_Expiry(t *testing.T) {
	t.Parallel()
	clk := &clock{t: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)}
	gw := &fakeGateway{detail: model.CaseDetail{PetName: "Ram"}}
	c := newCached(gw, clk)
	q := model.CnrQuery{Cino: "ABC123"}

	_, err := c.Cnr(context.Background(), q)
	require.NoError(t, err)
	clk.advance(4 * time.Minute)
	_, err = c.Cnr(context.Background(), q)
	require.NoError(t, err)
	_, n, _ := gw.counts()
	require.Equal(t, 1, n, "fresh entry refetched")

	clk.advance(time.Minute)
	_, err = c.Cnr(context.Background(), q)
	require.NoError(t, err)
	_, n, _ = gw.counts()
	require.Equal(t, 2, n, "stale entry served")
}

func TestCachedLookup_DistinctKeys(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{order: model.OrderDocument{PDFBase64: "JVBERg=="}}
	c := newCached(gw, nil)
	ctx := context.Background()

	_, _ = c.Order(ctx, model.OrderQuery{Cino: "X", OrderNo: "1", OrderDate: "2020-01-01"})
	_, _ = c.Order(ctx, model.OrderQuery{Cino: "X", OrderNo: "1", OrderDate: "2020-01-01"})
	_, _ = c.Order(ctx, model.OrderQuery{Cino: "X", OrderNo: "2", OrderDate: "2020-01-01"})
	_, _, o := gw.counts()
	require.Equal(t, 2, o)
}

func TestCachedLookup_CaseDetailsReusesLegs(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{search: oneCase("ABC123")}
	c := newCached(gw, nil)

	for i := 0; i < 3; i++ {
		out, err := c.CaseDetails(context.Background(), reg)
		require.NoError(t, err)
		require.NotNil(t, out.Detail)
		require.Equal(t, "ABC123", out.Detail.Summary.Cino)
	}
	s, n, _ := gw.counts()
	require.Equal(t, 1, s)
	require.Equal(t, 1, n)
}

func TestCachedLookup_ErrorsNotCached(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{searchErr: errs.ErrNetwork}
	c := newCached(gw, nil)

	_, err := c.Search(context.Background(), reg)
	require.True(t, errors.Is(err, errs.ErrNetwork))

	gw.mu.Lock()
	gw.searchErr = nil
	gw.search = oneCase("Z")
	gw.mu.Unlock()

	res, err := c.Search(context.Background(), reg)
	require.NoError(t, err)
	require.Equal(t, "Z", res.Cases[0].Cino)
}

func TestCachedLookup_Forget(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	c := newCached(gw, nil)
	q := model.CnrQuery{Cino: "ABC123"}

	_, _ = c.Cnr(context.Background(), q)
	require.NoError(t, c.Forget(context.Background(), "ABC123"))
	_, _ = c.Cnr(context.Background(), q)
	_, n, _ := gw.counts()
	require.Equal(t, 2, n)
}

// memTier is a shared cache tier held in memory.
type memTier struct {
	mu sync.Mutex
	m  map[string][]byte
}

func (t *memTier) Get(_ context.Context, key string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.m[key]
	if !ok {
		return nil, errs.ErrCacheMiss
	}
	return v, nil
}

func (t *memTier) Set(_ context.Context, key string, val []byte, _ time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.m[key] = val
	return nil
}

func (t *memTier) Delete(_ context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.m, key)
	return nil
}

func TestCachedLookup_ForgetWithTier(t *testing.T) {
	t.Parallel()
	gw := &fakeGateway{}
	tier := &memTier{m: map[string][]byte{}}
	c := NewCachedLookup(NewLookupService(gw, nil), CacheOptions{Tier: tier})
	other := NewCachedLookup(NewLookupService(gw, nil), CacheOptions{Tier: tier})
	q := model.CnrQuery{Cino: "ABC123"}

	_, err := c.Cnr(context.Background(), q)
	require.NoError(t, err)
	require.NoError(t, c.Forget(context.Background(), "ABC123"))
	_, err = c.Cnr(context.Background(), q)
	require.NoError(t, err)
	_, n, _ := gw.counts()
	require.Equal(t, 2, n, "forgotten detail served from the shared tier")

	// a second instance reads what the refetch wrote back
	_, err = other.Cnr(context.Background(), q)
	require.NoError(t, err)
	_, n, _ = gw.counts()
	require.Equal(t, 2, n)
}
