package sqlite_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aretw0/strata"
	"github.com/aretw0/strata/pkg/adapters/sqlite"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/dsl"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func openStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.Open(context.Background(), ":memory:", sqlite.WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	ports.RunStoreContract(t, func(t *testing.T) ports.ReadWriteStore {
		return openStore(t)
	})
}

func TestMigrate_Idempotent(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	require.NoError(t, sqlite.Migrate(ctx, store.DB(), nil))

	var applied int
	require.NoError(t, store.DB().QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&applied))
	assert.Equal(t, 2, applied)
}

func TestSQLiteStore_DuplicateNamesLowestIDWins(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.SaveRule(ctx, domain.Rule{ID: 9, Kind: domain.KindSemantic, Name: "dup", Content: "nine"})
	require.NoError(t, err)
	_, err = store.SaveRule(ctx, domain.Rule{ID: 4, Kind: domain.KindSemantic, Name: "dup", Content: "four"})
	require.NoError(t, err)

	got, err := store.GetRuleByName(ctx, domain.KindSemantic, "dup")
	require.NoError(t, err)
	assert.Equal(t, int64(4), got.ID)
	assert.Equal(t, "four", got.Content)

	next, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "other", Content: "x"})
	require.NoError(t, err)
	assert.Equal(t, int64(10), next.ID)
}

func TestSQLiteStore_ReplaceKeepsCreatedAt(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	saved, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindTask, Name: "t", Content: "v1"})
	require.NoError(t, err)

	saved.Content = "v2"
	saved.CreatedAt = saved.CreatedAt.AddDate(1, 0, 0)
	replaced, err := store.SaveRule(ctx, saved)
	require.NoError(t, err)

	got, err := store.GetRule(ctx, domain.KindTask, saved.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Content)
	assert.True(t, replaced.CreatedAt.Equal(got.CreatedAt))
	assert.Equal(t, 1, got.Version)
}

func TestSQLiteStore_Categories(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	_, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "p", Content: "x", Category: "format"})
	require.NoError(t, err)
	_, err = store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "q", Content: "y", Category: "format"})
	require.NoError(t, err)

	first, err := store.UpsertCategory(ctx, domain.KindPrimitive, "instruction")
	require.NoError(t, err)
	again, err := store.UpsertCategory(ctx, domain.KindPrimitive, "instruction")
	require.NoError(t, err)
	assert.Equal(t, first, again)

	names, err := store.Categories(ctx, domain.KindPrimitive)
	require.NoError(t, err)
	assert.Equal(t, []string{"format", "instruction"}, names)

	none, err := store.Categories(ctx, domain.KindSemantic)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStore_CheckIntegrity(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	problems, err := store.CheckIntegrity(ctx)
	require.NoError(t, err)
	assert.Empty(t, problems)

	sem, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindSemantic, Name: "s", Content: "x"})
	require.NoError(t, err)
	_, err = store.SaveRelation(ctx, domain.Relation{
		ParentKind: domain.KindSemantic, ParentID: sem.ID,
		ChildKind: domain.KindPrimitive, ChildID: 42, Weight: 1,
	})
	require.NoError(t, err)

	problems, err = store.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "semantic_primitive_relations")
	assert.Contains(t, problems[0], "primitive_rules")

	require.NoError(t, store.DeleteRule(ctx, domain.KindSemantic, sem.ID))
	assert.ErrorIs(t, store.DeleteRule(ctx, domain.KindSemantic, sem.ID), domain.ErrNotFound)
}

func TestSQLiteStore_SystemEndToEnd(t *testing.T) {
	store := openStore(t)
	ctx := context.Background()

	b := dsl.New()
	b.Primitive("concise").Category("instruction").Content("Be concise.").Tag("style")
	b.Semantic("review").Category("code_review").Content("Review: {{ primitive_rules }}").Uses("concise").Version(1, "initial")
	b.Task("pr").Domain("web_dev").Content("{{ semantic_rules }} ({{ lang }})").Uses("review")
	require.NoError(t, b.Apply(ctx, store))

	sys, err := strata.New(store)
	require.NoError(t, err)

	gen, err := sys.Generate(ctx, "pr", map[string]any{"lang": "go"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Review: Be concise. (go)", gen.Text)

	report := sys.ValidateAll(ctx)
	assert.True(t, report.Valid, "%+v", report)
	assert.Contains(t, report.Checks, "store_integrity")
}

func TestSQLiteStore_ErrorPropagation(t *testing.T) {
	ctx := context.Background()

	newMock := func(t *testing.T) (*sqlite.Store, sqlmock.Sqlmock) {
		db, mock, err := sqlmock.New()
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })
		return sqlite.New(db), mock
	}

	t.Run("query failure is wrapped", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(`SELECT .+ FROM task_rules WHERE id = \?`).
			WithArgs(int64(7)).
			WillReturnError(errors.New("disk I/O error"))

		_, err := store.GetRule(ctx, domain.KindTask, 7)
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
		assert.Contains(t, err.Error(), "disk I/O error")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no rows is not found", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(`FROM semantic_rules WHERE name = \? ORDER BY id LIMIT 1`).
			WithArgs("missing").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		_, err := store.GetRuleByName(ctx, domain.KindSemantic, "missing")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("failed category upsert rolls back", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(`INSERT INTO categories`).
			WithArgs("primitive", "format").
			WillReturnError(errors.New("database is locked"))
		mock.ExpectRollback()

		_, err := store.SaveRule(ctx, domain.Rule{Kind: domain.KindPrimitive, Name: "p", Content: "x", Category: "format"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database is locked")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("relation insert", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectExec(`INSERT INTO task_semantic_relations`).
			WithArgs(int64(1), int64(2), 2.5, 0, true, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(5, 1))
		mock.ExpectExec(`INSERT INTO task_semantic_relations`).
			WillReturnError(errors.New("CHECK constraint failed"))

		rel := domain.Relation{ParentKind: domain.KindTask, ParentID: 1, ChildKind: domain.KindSemantic, ChildID: 2, Weight: 2.5, IsRequired: true}
		saved, err := store.SaveRelation(ctx, rel)
		require.NoError(t, err)
		assert.Equal(t, int64(5), saved.ID)

		_, err = store.SaveRelation(ctx, rel)
		assert.ErrorContains(t, err, "CHECK constraint failed")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("list failure", func(t *testing.T) {
		store, mock := newMock(t)
		mock.ExpectQuery(`FROM rule_versions`).WillReturnError(errors.New("no such table"))

		_, err := store.ListVersions(ctx)
		assert.ErrorContains(t, err, "no such table")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
