package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestCache creates a Cache backed by miniredis.
func setupTestCache(t *testing.T) (*Cache, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client), mr
}

type payload struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestCache_SetGetJSON(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	err := c.SetJSON(ctx, "leads:list:abc", payload{Name: "new leads", Count: 3}, time.Minute, "leads", "leads_list")
	require.NoError(t, err)

	var got payload
	found, err := c.GetJSON(ctx, "leads:list:abc", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "new leads", Count: 3}, got)
}

func TestCache_GetJSON_Miss(t *testing.T) {
	c, _ := setupTestCache(t)

	var got payload
	found, err := c.GetJSON(context.Background(), "leads:list:missing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_GetJSON_CorruptEntryIsMiss(t *testing.T) {
	c, mr := setupTestCache(t)

	mr.Set("leads:list:bad", "{not json")

	var got payload
	found, err := c.GetJSON(context.Background(), "leads:list:bad", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_Expiry(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "leads:detail:1", payload{Name: "x"}, time.Minute, "leads"))

	mr.FastForward(2 * time.Minute)

	var got payload
	found, err := c.GetJSON(ctx, "leads:detail:1", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCache_InvalidateTags(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "leads:list:a", payload{Count: 1}, time.Minute, "leads", "leads_list"))
	require.NoError(t, c.SetJSON(ctx, "leads:list:b", payload{Count: 2}, time.Minute, "leads", "leads_list"))
	require.NoError(t, c.SetJSON(ctx, "leads:detail:1", payload{Count: 3}, time.Minute, "leads", "lead:1"))
	require.NoError(t, c.SetJSON(ctx, "tickets:list:a", payload{Count: 4}, time.Minute, "tickets"))

	deleted, err := c.InvalidateTags(ctx, "leads")
	require.NoError(t, err)
	assert.Equal(t, 3, deleted)

	var got payload
	found, _ := c.GetJSON(ctx, "leads:list:a", &got)
	assert.False(t, found)
	found, _ = c.GetJSON(ctx, "leads:detail:1", &got)
	assert.False(t, found)

	// Entries under unrelated tags survive.
	found, _ = c.GetJSON(ctx, "tickets:list:a", &got)
	assert.True(t, found)
}

func TestCache_InvalidateTags_NarrowLeadTag(t *testing.T) {
	c, _ := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "leads:detail:1", payload{Count: 1}, time.Minute, "leads", "lead:1"))
	require.NoError(t, c.SetJSON(ctx, "leads:detail:2", payload{Count: 2}, time.Minute, "leads", "lead:2"))

	deleted, err := c.InvalidateTags(ctx, "lead:1")
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	var got payload
	found, _ := c.GetJSON(ctx, "leads:detail:2", &got)
	assert.True(t, found)
}

func TestCache_InvalidateTags_ToleratesExpiredMembers(t *testing.T) {
	c, mr := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetJSON(ctx, "leads:list:a", payload{Count: 1}, time.Second, "leads"))
	mr.FastForward(time.Minute)

	// The tag set still references the expired key; deletion count is zero
	// but invalidation must not fail.
	_, err := c.InvalidateTags(ctx, "leads")
	require.NoError(t, err)
}
