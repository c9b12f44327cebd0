package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/strata/pkg/adapters/redis"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/ports"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T, opts ...redis.Option) (*redis.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redis.NewFromClient(client, opts...), mr
}

func TestRedisStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, func(t *testing.T) ports.ReadWriteStore {
		store, _ := newStore(t)
		return store
	})
}

func TestRedisStore_Prefix(t *testing.T) {
	store, mr := newStore(t, redis.WithPrefix("custom:app:"))
	ctx := context.Background()

	rule, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindTask, Name: "review", Content: "x"})
	require.NoError(t, err)

	// Verify keys in Redis directly
	assert.True(t, mr.Exists("custom:app:rule:task:1"), "Expected document with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:index:rule:task"), "Expected index with custom prefix to exist")
	assert.True(t, mr.Exists("custom:app:name:task:review"), "Expected name index with custom prefix to exist")
	assert.Equal(t, int64(1), rule.ID)
	assert.NoError(t, store.Ping(ctx))
}

func TestRedisStore_RenameMovesNameIndex(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rule, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "old", Content: "x"})
	require.NoError(t, err)
	rule.Name = "new"
	_, err = store.SaveRule(ctx, rule)
	require.NoError(t, err)

	_, err = store.GetRuleByName(ctx, domain.KindSemantic, "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	got, err := store.GetRuleByName(ctx, domain.KindSemantic, "new")
	require.NoError(t, err)
	assert.Equal(t, rule.ID, got.ID)
}

func TestRedisStore_DuplicateNamesAndExplicitIDs(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	_, err := store.SaveRule(ctx, domain.Rule{ID: 10, Kind: domain.KindPrimitive, Name: "dup", Content: "ten", Category: "format"})
	require.NoError(t, err)
	_, err = store.SaveRule(ctx, domain.Rule{ID: 4, Kind: domain.KindPrimitive, Name: "dup", Content: "four", Category: "format"})
	require.NoError(t, err)

	got, err := store.GetRuleByName(ctx, domain.KindPrimitive, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.ID, "lowest id wins")

	next, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "fresh", Content: "x", Category: "format"})
	require.NoError(t, err)
	assert.Equal(t, int64(11), next.ID, "sequence stays ahead of explicit ids")
}

func TestRedisStore_MovedRelationLeavesOldParent(t *testing.T) {
	store, _ := newStore(t)
	ctx := context.Background()

	rel, err := store.SaveRelation(ctx, domain.Relation{
		ParentKind: domain.KindTask, ParentID: 1, ChildKind: domain.KindSemantic, ChildID: 5, Weight: 1,
	})
	require.NoError(t, err)
	rel.ParentID = 2
	_, err = store.SaveRelation(ctx, rel)
	require.NoError(t, err)

	old, err := store.SemanticRelationsForTask(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, old)
	moved, err := store.SemanticRelationsForTask(ctx, 2)
	require.NoError(t, err)
	require.Len(t, moved, 1)
	assert.Equal(t, int64(5), moved[0].ChildID)
}

func TestRedisStore_Watch(t *testing.T) {
	store, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes, err := store.Watch(ctx)
	require.NoError(t, err)

	saved, err := store.SaveRule(context.Background(), domain.Rule{Kind: domain.KindTask, Name: "t", Content: "x"})
	require.NoError(t, err)

	select {
	case id := <-changes:
		assert.Equal(t, domain.NodeName(domain.KindTask, saved.ID), id)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	cancel()
	for range changes {
	}
}
