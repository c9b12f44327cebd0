package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveRule inserts or replaces a rule. The category of primitive and
// semantic rules is registered in the categories table in the same
// transaction.
func (s *Store) SaveRule(ctx context.Context, rule domain.Rule) (domain.Rule, error) {
	t, err := lookupRuleTable(rule.Kind)
	if err != nil {
		return domain.Rule{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Rule{}, errors.Wrap(err, "begin save rule")
	}
	defer func() { _ = tx.Rollback() }()

	if rule.Kind != domain.KindTask && rule.Category != "" {
		if _, err := upsertCategory(ctx, tx, rule.Kind, rule.Category); err != nil {
			return domain.Rule{}, err
		}
	}

	now := s.now()
	if rule.Version == 0 {
		rule.Version = 1
	}
	rule.UpdatedAt = now

	if rule.ID != 0 {
		var created sql.NullTime
		err := tx.QueryRowContext(ctx, fmt.Sprintf("SELECT created_at FROM %s WHERE id = ?", t.name), rule.ID).Scan(&created)
		switch {
		case err == nil:
			rule.CreatedAt = created.Time
		case errors.Is(err, sql.ErrNoRows):
			if rule.CreatedAt.IsZero() {
				rule.CreatedAt = now
			}
		default:
			return domain.Rule{}, errors.Wrapf(err, "read %s rule %d", rule.Kind, rule.ID)
		}
	} else if rule.CreatedAt.IsZero() {
		rule.CreatedAt = now
	}

	args := []any{rule.Name, rule.Description, rule.Content, rule.Category,
		rule.Language, rule.Framework, rule.Domain, rule.Version, rule.CreatedAt, rule.UpdatedAt}
	if rule.ID == 0 {
		q := fmt.Sprintf(
			"INSERT INTO %s (name, description, %s, category, language, framework, domain, version, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)",
			t.name, t.content)
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return domain.Rule{}, errors.Wrapf(err, "insert %s rule %q", rule.Kind, rule.Name)
		}
		if rule.ID, err = res.LastInsertId(); err != nil {
			return domain.Rule{}, errors.Wrap(err, "read inserted id")
		}
	} else {
		q := fmt.Sprintf(
			`INSERT INTO %[1]s (id, name, description, %[2]s, category, language, framework, domain, version, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET name = excluded.name, description = excluded.description,
				%[2]s = excluded.%[2]s, category = excluded.category, language = excluded.language,
				framework = excluded.framework, domain = excluded.domain, version = excluded.version,
				updated_at = excluded.updated_at`,
			t.name, t.content)
		if _, err := tx.ExecContext(ctx, q, append([]any{rule.ID}, args...)...); err != nil {
			return domain.Rule{}, errors.Wrapf(err, "upsert %s rule %d", rule.Kind, rule.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.Rule{}, errors.Wrap(err, "commit save rule")
	}
	return rule, nil
}

// SaveRelation validates and inserts or replaces a relation.
// Endpoint existence is not enforced; dangling relations are reported by validation.
func (s *Store) SaveRelation(ctx context.Context, rel domain.Relation) (domain.Relation, error) {
	if err := rel.Validate(); err != nil {
		return domain.Relation{}, err
	}
	rk := rel.Type()
	t := relationTables[rk]

	var override sql.NullString
	if rel.ContextOverride != "" {
		override = sql.NullString{String: rel.ContextOverride, Valid: true}
	}
	args := []any{rel.ParentID, rel.ChildID, rel.Weight, rel.OrderIndex, rel.IsRequired, override}

	if rel.ID == 0 {
		q := fmt.Sprintf("INSERT INTO %s (%s, %s, weight, order_index, is_required, context_override) VALUES (?, ?, ?, ?, ?, ?)",
			t.name, t.parent, t.child)
		res, err := s.db.ExecContext(ctx, q, args...)
		if err != nil {
			return domain.Relation{}, errors.Wrapf(err, "insert %s relation", rk)
		}
		if rel.ID, err = res.LastInsertId(); err != nil {
			return domain.Relation{}, errors.Wrap(err, "read inserted id")
		}
		return rel, nil
	}

	q := fmt.Sprintf(
		`INSERT INTO %[1]s (id, %[2]s, %[3]s, weight, order_index, is_required, context_override) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET %[2]s = excluded.%[2]s, %[3]s = excluded.%[3]s, weight = excluded.weight,
			order_index = excluded.order_index, is_required = excluded.is_required, context_override = excluded.context_override`,
		t.name, t.parent, t.child)
	if _, err := s.db.ExecContext(ctx, q, append([]any{rel.ID}, args...)...); err != nil {
		return domain.Relation{}, errors.Wrapf(err, "upsert %s relation %d", rk, rel.ID)
	}
	return rel, nil
}

// SaveVersion inserts or replaces a version entry.
func (s *Store) SaveVersion(ctx context.Context, v domain.RuleVersion) (domain.RuleVersion, error) {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = s.now()
	}
	args := []any{string(v.Kind), v.RuleID, v.Number, v.Content, v.ChangeNote, v.CreatedAt}

	if v.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			"INSERT INTO rule_versions (rule_kind, rule_id, version_number, content, change_note, created_at) VALUES (?, ?, ?, ?, ?, ?)",
			args...)
		if err != nil {
			return domain.RuleVersion{}, errors.Wrapf(err, "insert version %d of %s rule %d", v.Number, v.Kind, v.RuleID)
		}
		if v.ID, err = res.LastInsertId(); err != nil {
			return domain.RuleVersion{}, errors.Wrap(err, "read inserted id")
		}
		return v, nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO rule_versions (id, rule_kind, rule_id, version_number, content, change_note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		append([]any{v.ID}, args...)...)
	if err != nil {
		return domain.RuleVersion{}, errors.Wrapf(err, "upsert version %d", v.ID)
	}
	return v, nil
}

// SaveTag attaches a tag to a rule, creating the tag name when new.
func (s *Store) SaveTag(ctx context.Context, tag domain.RuleTag) (domain.RuleTag, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.RuleTag{}, errors.Wrap(err, "begin save tag")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "INSERT INTO tags (name) VALUES (?) ON CONFLICT(name) DO NOTHING", tag.Tag); err != nil {
		return domain.RuleTag{}, errors.Wrapf(err, "insert tag %q", tag.Tag)
	}
	var tagID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM tags WHERE name = ?", tag.Tag).Scan(&tagID); err != nil {
		return domain.RuleTag{}, errors.Wrapf(err, "read tag %q", tag.Tag)
	}

	if tag.ID == 0 {
		res, err := tx.ExecContext(ctx, "INSERT INTO rule_tags (rule_kind, rule_id, tag_id) VALUES (?, ?, ?)",
			string(tag.Kind), tag.RuleID, tagID)
		if err != nil {
			return domain.RuleTag{}, errors.Wrapf(err, "tag %s rule %d", tag.Kind, tag.RuleID)
		}
		if tag.ID, err = res.LastInsertId(); err != nil {
			return domain.RuleTag{}, errors.Wrap(err, "read inserted id")
		}
	} else {
		_, err := tx.ExecContext(ctx, "INSERT OR REPLACE INTO rule_tags (id, rule_kind, rule_id, tag_id) VALUES (?, ?, ?, ?)",
			tag.ID, string(tag.Kind), tag.RuleID, tagID)
		if err != nil {
			return domain.RuleTag{}, errors.Wrapf(err, "upsert rule tag %d", tag.ID)
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.RuleTag{}, errors.Wrap(err, "commit save tag")
	}
	return tag, nil
}

// UpsertCategory registers a category name for a rule kind and returns its id.
// Registering an existing name returns the existing id.
func (s *Store) UpsertCategory(ctx context.Context, kind domain.Kind, name string) (int64, error) {
	return upsertCategory(ctx, s.db, kind, name)
}

func upsertCategory(ctx context.Context, db execer, kind domain.Kind, name string) (int64, error) {
	if _, err := db.ExecContext(ctx,
		"INSERT INTO categories (kind, name) VALUES (?, ?) ON CONFLICT(kind, name) DO NOTHING",
		string(kind), name); err != nil {
		return 0, errors.Wrapf(err, "upsert %s category %q", kind, name)
	}
	var id int64
	if err := db.QueryRowContext(ctx, "SELECT id FROM categories WHERE kind = ? AND name = ?", string(kind), name).Scan(&id); err != nil {
		return 0, errors.Wrapf(err, "read %s category %q", kind, name)
	}
	return id, nil
}

// Categories lists the registered category names of a rule kind.
func (s *Store) Categories(ctx context.Context, kind domain.Kind) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM categories WHERE kind = ? ORDER BY name", string(kind))
	if err != nil {
		return nil, errors.Wrapf(err, "list %s categories", kind)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, errors.Wrap(err, "scan category")
		}
		out = append(out, name)
	}
	return out, errors.Wrap(rows.Err(), "iterate categories")
}

// DeleteRule removes a rule. Relations pointing at it are kept so that
// validation can report them.
func (s *Store) DeleteRule(ctx context.Context, kind domain.Kind, id int64) error {
	t, err := lookupRuleTable(kind)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t.name), id)
	if err != nil {
		return errors.Wrapf(err, "delete %s rule %d", kind, id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.NotFoundError{Kind: kind, ID: id}
	}
	return nil
}

// CheckIntegrity runs SQLite's integrity and foreign key pragmas and returns
// one message per problem found.
func (s *Store) CheckIntegrity(ctx context.Context) ([]string, error) {
	var problems []string

	rows, err := s.db.QueryContext(ctx, "PRAGMA integrity_check")
	if err != nil {
		return nil, errors.Wrap(err, "integrity check")
	}
	for rows.Next() {
		var msg string
		if err := rows.Scan(&msg); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan integrity check")
		}
		if msg != "ok" {
			problems = append(problems, msg)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate integrity check")
	}

	fk, err := s.db.QueryContext(ctx, "PRAGMA foreign_key_check")
	if err != nil {
		return nil, errors.Wrap(err, "foreign key check")
	}
	defer fk.Close()
	for fk.Next() {
		var (
			table, parent string
			rowid         sql.NullInt64
			fkid          int64
		)
		if err := fk.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return nil, errors.Wrap(err, "scan foreign key check")
		}
		problems = append(problems, fmt.Sprintf("%s row %d references a missing %s row", table, rowid.Int64, parent))
	}
	if err := fk.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate foreign key check")
	}

	if len(problems) > 0 {
		s.logger.Warn("sqlite integrity problems", zap.Int("count", len(problems)))
	}
	return problems, nil
}
