package query

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"crm_backend/internal/leads/domain"
	"crm_backend/internal/leads/repository"
	"crm_backend/internal/leads/searchindex"
	"crm_backend/platform/cache"
	"crm_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	leads        []domain.Lead
	listCalls    int
	getCalls     int
	statsWindows []int
}

func (s *fakeStore) List(_ context.Context, _ repository.ListParams) ([]domain.Lead, int, error) {
	s.listCalls++
	return s.leads, len(s.leads), nil
}

func (s *fakeStore) GetByID(_ context.Context, id uuid.UUID) (domain.Lead, error) {
	s.getCalls++
	for _, lead := range s.leads {
		if lead.ID == id {
			return lead, nil
		}
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (s *fakeStore) GetByIDs(_ context.Context, ids []uuid.UUID) ([]domain.Lead, error) {
	out := make([]domain.Lead, 0, len(ids))
	for _, lead := range s.leads {
		for _, id := range ids {
			if lead.ID == id {
				out = append(out, lead)
			}
		}
	}
	return out, nil
}

func (s *fakeStore) GetStats(_ context.Context, windowDays int) (repository.LeadStats, error) {
	s.statsWindows = append(s.statsWindows, windowDays)
	return repository.LeadStats{Total: len(s.leads)}, nil
}

func (s *fakeStore) GetCreationTrend(_ context.Context, days int) ([]repository.DailyLeadCount, error) {
	return []repository.DailyLeadCount{}, nil
}

type fakeSearcher struct {
	result searchindex.Result
	err    error
	calls  int
}

func (s *fakeSearcher) Search(_ context.Context, _ searchindex.Query) (searchindex.Result, error) {
	s.calls++
	return s.result, s.err
}

// testDetailView stands in for the transport representation the engine
// serializes into the detail cache.
type testDetailView struct {
	ID       uuid.UUID `json:"id"`
	FullName string    `json:"fullName"`
}

func renderTestDetail(lead domain.Lead) any {
	return testDetailView{ID: lead.ID, FullName: lead.FullName()}
}

func setupEngine(t *testing.T, store *fakeStore, search Searcher) *Engine {
	t.Helper()
	mr := miniredis.RunT(t)
	c := cache.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { c.Close() })
	return New(store, c, search, renderTestDetail, logger.New("development"), 2*time.Minute)
}

func someLeads(n int) []domain.Lead {
	leads := make([]domain.Lead, n)
	for i := range leads {
		leads[i] = domain.Lead{ID: uuid.New(), FirstName: "Lead", InquiryStatus: domain.StatusNew}
	}
	return leads
}

func TestSignatureStableAcrossKeyOrder(t *testing.T) {
	a := map[string]any{"status": "new", "page": 1}
	b := map[string]any{"page": 1, "status": "new"}
	assert.Equal(t, Signature("list", a), Signature("list", b))
	assert.NotEqual(t, Signature("list", a), Signature("list", map[string]any{"status": "won", "page": 1}))
	assert.NotEqual(t, Signature("list", a), Signature("stats", a))
}

func TestEquivalentRequestsShareACacheKey(t *testing.T) {
	assigned := uuid.New()
	a := ListRequest{Status: "new", AssignedTo: &assigned, Page: 1, PerPage: 20}
	b := ListRequest{AssignedTo: &assigned, Status: "new", Page: 1, PerPage: 20}
	assert.Equal(t, Signature("list", a.signatureMap()), Signature("list", b.signatureMap()))

	// Empty string filters collapse to the same map as absent ones.
	c := ListRequest{Status: "", Page: 1, PerPage: 20}
	d := ListRequest{Page: 1, PerPage: 20}
	assert.Equal(t, Signature("list", c.signatureMap()), Signature("list", d.signatureMap()))
}

func TestListCachesSecondRead(t *testing.T) {
	store := &fakeStore{leads: someLeads(3)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	first, err := engine.List(ctx, ListRequest{Status: "new"})
	require.NoError(t, err)
	assert.False(t, first.Meta.ServedFromCache)
	assert.Len(t, first.Data, 3)

	second, err := engine.List(ctx, ListRequest{Status: "new"})
	require.NoError(t, err)
	assert.True(t, second.Meta.ServedFromCache)
	assert.Equal(t, first.Meta.CacheKey, second.Meta.CacheKey)
	assert.Equal(t, 1, store.listCalls, "second read must come from cache")
}

func TestForceRefreshNeverReadsCache(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	// Warm the cache for this exact key.
	_, err := engine.List(ctx, ListRequest{Status: "new"})
	require.NoError(t, err)
	require.Equal(t, 1, store.listCalls)

	result, err := engine.List(ctx, ListRequest{Status: "new", ForceRefresh: true})
	require.NoError(t, err)
	assert.False(t, result.Meta.ServedFromCache)
	assert.Equal(t, string(BypassForceRefresh), result.Meta.BypassReason)
	assert.Equal(t, 2, store.listCalls)
}

func TestRecentUpdatedAfterBypassesCache(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	engine := setupEngine(t, store, &fakeSearcher{})

	recent := time.Now().Add(-30 * time.Second)
	result, err := engine.List(context.Background(), ListRequest{UpdatedAfter: &recent})
	require.NoError(t, err)
	assert.Equal(t, string(BypassRealtimeWindow), result.Meta.BypassReason)

	old := time.Now().Add(-time.Hour)
	result, err = engine.List(context.Background(), ListRequest{UpdatedAfter: &old})
	require.NoError(t, err)
	assert.Empty(t, result.Meta.BypassReason, "an old updated_after is cacheable")
}

func TestElevatedBulkBypassesCache(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	engine := setupEngine(t, store, &fakeSearcher{})

	result, err := engine.List(context.Background(), ListRequest{ElevatedBulk: true})
	require.NoError(t, err)
	assert.Equal(t, string(BypassElevatedBulk), result.Meta.BypassReason)
}

func TestListTTLTiers(t *testing.T) {
	assigned := uuid.New()
	assert.Equal(t, ttlVolatile, listTTL(ListRequest{AssignedTo: &assigned}))
	assert.Equal(t, ttlVolatile, listTTL(ListRequest{Hot: true}))
	assert.Equal(t, ttlVolatile, listTTL(ListRequest{Unassigned: true}))
	assert.Equal(t, ttlBroad, listTTL(ListRequest{Page: 1, PerPage: 20}))
	assert.Equal(t, ttlDefault, listTTL(ListRequest{Status: "new"}))
}

func TestInvalidateLeadDropsListAndDetail(t *testing.T) {
	store := &fakeStore{leads: someLeads(2)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()
	leadID := store.leads[0].ID

	_, err := engine.List(ctx, ListRequest{})
	require.NoError(t, err)
	_, _, err = engine.Detail(ctx, leadID, false)
	require.NoError(t, err)

	engine.InvalidateLead(ctx, leadID)

	list, err := engine.List(ctx, ListRequest{})
	require.NoError(t, err)
	assert.False(t, list.Meta.ServedFromCache)

	_, meta, err := engine.Detail(ctx, leadID, false)
	require.NoError(t, err)
	assert.False(t, meta.ServedFromCache)
}

func TestDetailCachesPerLead(t *testing.T) {
	store := &fakeStore{leads: someLeads(2)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	_, meta, err := engine.Detail(ctx, store.leads[0].ID, false)
	require.NoError(t, err)
	assert.False(t, meta.ServedFromCache)

	cached, meta, err := engine.Detail(ctx, store.leads[0].ID, false)
	require.NoError(t, err)
	assert.True(t, meta.ServedFromCache)
	assert.Equal(t, 1, store.getCalls)

	var view testDetailView
	require.NoError(t, json.Unmarshal(cached, &view))
	assert.Equal(t, store.leads[0].ID, view.ID)
}

func TestDetailCachesRenderedPayload(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	first, _, err := engine.Detail(ctx, store.leads[0].ID, false)
	require.NoError(t, err)
	second, meta, err := engine.Detail(ctx, store.leads[0].ID, false)
	require.NoError(t, err)
	require.True(t, meta.ServedFromCache)

	// The hit serves the serialized representation byte for byte; the
	// raw record never round-trips through the cache.
	assert.Equal(t, string(first), string(second))
	var view testDetailView
	require.NoError(t, json.Unmarshal(second, &view))
	assert.Equal(t, store.leads[0].FullName(), view.FullName)
}

func TestSearchPathReordersToIndexSequence(t *testing.T) {
	store := &fakeStore{leads: someLeads(3)}
	// The index ranks them in reverse store order, with one drifted id
	// that no longer exists relationally.
	drifted := uuid.New()
	search := &fakeSearcher{result: searchindex.Result{
		IDs:   []uuid.UUID{store.leads[2].ID, drifted, store.leads[0].ID},
		Total: 3,
	}}
	engine := setupEngine(t, store, search)

	result, err := engine.List(context.Background(), ListRequest{Search: "dubai", Priority: "high"})
	require.NoError(t, err)
	require.Len(t, result.Data, 2, "drifted id is dropped, not an error")
	assert.Equal(t, store.leads[2].ID, result.Data[0].ID)
	assert.Equal(t, store.leads[0].ID, result.Data[1].ID)
	assert.Equal(t, string(BypassSearchPath), result.Meta.BypassReason)
	assert.Equal(t, 0, store.listCalls, "search path never queries the relational list")
}

func TestSearchResultsAreNotCached(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	search := &fakeSearcher{result: searchindex.Result{IDs: []uuid.UUID{store.leads[0].ID}, Total: 1}}
	engine := setupEngine(t, store, search)
	ctx := context.Background()

	for range 2 {
		result, err := engine.List(ctx, ListRequest{Search: "acme"})
		require.NoError(t, err)
		assert.False(t, result.Meta.ServedFromCache)
	}
	assert.Equal(t, 2, search.calls)
}

func TestStatsCached(t *testing.T) {
	store := &fakeStore{leads: someLeads(4)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	data, meta, err := engine.Stats(ctx, StatsRequest{})
	require.NoError(t, err)
	assert.False(t, meta.ServedFromCache)
	assert.Equal(t, 4, data.Stats.Total)

	_, meta, err = engine.Stats(ctx, StatsRequest{})
	require.NoError(t, err)
	assert.True(t, meta.ServedFromCache)

	// Any lead mutation invalidates stats through the shared tag.
	engine.InvalidateLead(ctx, uuid.New())
	_, meta, err = engine.Stats(ctx, StatsRequest{})
	require.NoError(t, err)
	assert.False(t, meta.ServedFromCache)
}

func TestStatsWindowFollowsRequest(t *testing.T) {
	store := &fakeStore{leads: someLeads(1)}
	engine := setupEngine(t, store, &fakeSearcher{})
	ctx := context.Background()

	_, _, err := engine.Stats(ctx, StatsRequest{TrendDays: 7})
	require.NoError(t, err)
	_, _, err = engine.Stats(ctx, StatsRequest{})
	require.NoError(t, err)

	// The conversion-rate window tracks the requested trend window, and
	// the defaulted request computes under its own cache key.
	assert.Equal(t, []int{7, 30}, store.statsWindows)
}
