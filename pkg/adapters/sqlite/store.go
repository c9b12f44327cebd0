// Package sqlite stores a rule corpus in a SQLite database with embedded,
// versioned schema migrations.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// Store implements ports.ReadWriteStore on a SQLite database.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migrations and integrity reports.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock sets the time source used to stamp saved records.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Open opens (or creates) the database at path and applies pending migrations.
// ":memory:" yields a private in-memory database.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", path)
	}
	// Every ":memory:" connection is its own database.
	db.SetMaxOpenConns(1)

	s := New(db, opts...)
	if err := Migrate(ctx, db, s.logger); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "migrate")
	}
	return s, nil
}

// New wraps an already migrated database.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRule(row scanner, kind domain.Kind) (domain.Rule, error) {
	r := domain.Rule{Kind: kind}
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.Content, &r.Category,
		&r.Language, &r.Framework, &r.Domain, &r.Version, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}

func scanRelation(row scanner, rk domain.RelationKind) (domain.Relation, error) {
	var (
		rel      domain.Relation
		override sql.NullString
	)
	rel.ParentKind, rel.ChildKind = rk.Endpoints()
	err := row.Scan(&rel.ID, &rel.ParentID, &rel.ChildID, &rel.Weight, &rel.OrderIndex, &rel.IsRequired, &override)
	rel.ContextOverride = override.String
	return rel, err
}

// GetRule retrieves a rule by kind and id.
func (s *Store) GetRule(ctx context.Context, kind domain.Kind, id int64) (domain.Rule, error) {
	t, err := lookupRuleTable(kind)
	if err != nil {
		return domain.Rule{}, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE id = ?", t.columns(), t.name)
	rule, err := scanRule(s.db.QueryRowContext(ctx, q, id), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, ID: id}
	}
	if err != nil {
		return domain.Rule{}, errors.Wrapf(err, "get %s rule %d", kind, id)
	}
	return rule, nil
}

// GetRuleByName retrieves a rule by kind and name. When the corpus holds
// duplicate names the lowest id wins.
func (s *Store) GetRuleByName(ctx context.Context, kind domain.Kind, name string) (domain.Rule, error) {
	t, err := lookupRuleTable(kind)
	if err != nil {
		return domain.Rule{}, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s WHERE name = ? ORDER BY id LIMIT 1", t.columns(), t.name)
	rule, err := scanRule(s.db.QueryRowContext(ctx, q, name), kind)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Rule{}, &domain.NotFoundError{Kind: kind, Name: name}
	}
	if err != nil {
		return domain.Rule{}, errors.Wrapf(err, "get %s rule %q", kind, name)
	}
	return rule, nil
}

// SemanticRelationsForTask returns the ordered semantic relations of a task.
func (s *Store) SemanticRelationsForTask(ctx context.Context, taskID int64) ([]domain.Relation, error) {
	return s.childRelations(ctx, domain.RelationTaskSemantic, taskID)
}

// PrimitiveRelationsForSemantic returns the ordered primitive relations of a semantic rule.
func (s *Store) PrimitiveRelationsForSemantic(ctx context.Context, semanticID int64) ([]domain.Relation, error) {
	return s.childRelations(ctx, domain.RelationSemanticPrimitive, semanticID)
}

func (s *Store) childRelations(ctx context.Context, rk domain.RelationKind, parentID int64) ([]domain.Relation, error) {
	t := relationTables[rk]
	_, childKind := rk.Endpoints()
	q := fmt.Sprintf(
		"SELECT %s FROM %s r LEFT JOIN %s c ON c.id = r.%s WHERE r.%s = ? ORDER BY r.order_index, COALESCE(c.name, ''), r.id",
		t.columns("r."), t.name, ruleTables[childKind].name, t.child, t.parent,
	)
	return s.queryRelations(ctx, rk, q, parentID)
}

func (s *Store) queryRelations(ctx context.Context, rk domain.RelationKind, q string, args ...any) ([]domain.Relation, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, errors.Wrapf(err, "query %s relations", rk)
	}
	defer rows.Close()

	out := make([]domain.Relation, 0)
	for rows.Next() {
		rel, err := scanRelation(rows, rk)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s relation", rk)
		}
		out = append(out, rel)
	}
	return out, errors.Wrapf(rows.Err(), "iterate %s relations", rk)
}

// ListRules returns every rule of a kind ordered by id.
func (s *Store) ListRules(ctx context.Context, kind domain.Kind) ([]domain.Rule, error) {
	t, err := lookupRuleTable(kind)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", t.columns(), t.name))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s rules", kind)
	}
	defer rows.Close()

	out := make([]domain.Rule, 0)
	for rows.Next() {
		rule, err := scanRule(rows, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "scan %s rule", kind)
		}
		out = append(out, rule)
	}
	return out, errors.Wrapf(rows.Err(), "iterate %s rules", kind)
}

// ListRelations returns every relation of a kind ordered by id.
func (s *Store) ListRelations(ctx context.Context, kind domain.RelationKind) ([]domain.Relation, error) {
	t, ok := relationTables[kind]
	if !ok {
		return nil, errors.Newf("unknown relation kind %q", kind)
	}
	return s.queryRelations(ctx, kind, fmt.Sprintf("SELECT %s FROM %s ORDER BY id", t.columns(""), t.name))
}

// ListVersions returns every version entry ordered by id.
func (s *Store) ListVersions(ctx context.Context) ([]domain.RuleVersion, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, rule_kind, rule_id, version_number, content, change_note, created_at FROM rule_versions ORDER BY id")
	if err != nil {
		return nil, errors.Wrap(err, "list versions")
	}
	defer rows.Close()

	out := make([]domain.RuleVersion, 0)
	for rows.Next() {
		var v domain.RuleVersion
		if err := rows.Scan(&v.ID, &v.Kind, &v.RuleID, &v.Number, &v.Content, &v.ChangeNote, &v.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "scan version")
		}
		out = append(out, v)
	}
	return out, errors.Wrap(rows.Err(), "iterate versions")
}

// ListTags returns every rule tag ordered by id.
func (s *Store) ListTags(ctx context.Context) ([]domain.RuleTag, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT rt.id, rt.rule_kind, rt.rule_id, t.name FROM rule_tags rt JOIN tags t ON t.id = rt.tag_id ORDER BY rt.id")
	if err != nil {
		return nil, errors.Wrap(err, "list tags")
	}
	defer rows.Close()

	out := make([]domain.RuleTag, 0)
	for rows.Next() {
		var tag domain.RuleTag
		if err := rows.Scan(&tag.ID, &tag.Kind, &tag.RuleID, &tag.Tag); err != nil {
			return nil, errors.Wrap(err, "scan tag")
		}
		out = append(out, tag)
	}
	return out, errors.Wrap(rows.Err(), "iterate tags")
}
