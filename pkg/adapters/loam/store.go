// Package loam serves a rule corpus kept as a Loam repository of markdown
// documents: the frontmatter describes the rule and its children, the body
// is the template.
//
// The kind of a rule comes from its frontmatter or, when absent, from the
// top-level directory of the document (primitives/, semantics/, tasks/).
// The name defaults to the file name without extension.
package loam

import (
	"context"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/aretw0/loam"
	"github.com/aretw0/strata/pkg/adapters/memory"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/dsl"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Store implements ports.Store and ports.Watchable over a Loam repository.
type Store struct {
	*memory.Snapshot

	Repo   *loam.TypedRepository[RuleMetadata]
	logger *zap.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used to report reloads.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New loads the corpus of repo.
func New(ctx context.Context, repo *loam.TypedRepository[RuleMetadata], opts ...Option) (*Store, error) {
	s := &Store{
		Repo:   repo,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	initial, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	s.Snapshot = memory.NewSnapshot(initial)
	return s, nil
}

// Open initializes a Loam repository at dir, without versioning, and loads it.
func Open(ctx context.Context, dir string, opts ...Option) (*Store, error) {
	repo, err := loam.Init(dir, loam.WithVersioning(false))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to init loam repo at %s", dir)
	}
	return New(ctx, loam.NewTypedRepository[RuleMetadata](repo), opts...)
}

// Load reads every document of the repository into a new in-memory store.
func (s *Store) Load(ctx context.Context) (*memory.Store, error) {
	docs, err := s.Repo.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "loam list failed")
	}

	type entry struct {
		docID string
		kind  domain.Kind
		def   dsl.Definition
	}
	entries := make([]entry, 0, len(docs))
	seen := make(map[string]string, len(docs))

	for _, listed := range docs {
		// List only carries ids and metadata; the body needs a Get.
		doc, err := s.Repo.Get(ctx, listed.ID)
		if err != nil {
			return nil, errors.Wrapf(err, "loam get failed for %s", listed.ID)
		}
		docID := listed.ID
		kind, err := kindOf(doc.Data.Kind, docID)
		if err != nil {
			return nil, errors.Wrapf(err, "document %s", docID)
		}
		name := doc.Data.Name
		if name == "" {
			name = path.Base(trimExtension(docID))
		}

		key := string(kind) + "/" + name
		if existing, ok := seen[key]; ok {
			return nil, errors.Newf("collision detected: %s rule %q is defined in both '%s' and '%s'", kind, name, existing, docID)
		}
		seen[key] = docID

		def := doc.Data.definition(name, strings.TrimSpace(doc.Content))
		def.Kind = string(kind)
		entries = append(entries, entry{docID: docID, kind: kind, def: def})
	}

	// Document order is not guaranteed; ids follow the document path.
	slices.SortFunc(entries, func(a, b entry) int { return strings.Compare(a.docID, b.docID) })

	b := dsl.New()
	for _, e := range entries {
		if _, err := b.Define(e.kind, e.def); err != nil {
			return nil, errors.Wrapf(err, "document %s", e.docID)
		}
	}
	store := memory.NewStore()
	if err := b.Apply(ctx, store); err != nil {
		return nil, err
	}
	return store, nil
}

// Reload re-reads the repository. On failure the previous corpus keeps serving.
func (s *Store) Reload(ctx context.Context) error {
	next, err := s.Load(ctx)
	if err != nil {
		return err
	}
	s.Publish(next)
	return nil
}

// Watch implements ports.Watchable. Every change reloads the corpus before
// the document id is forwarded.
func (s *Store) Watch(ctx context.Context) (<-chan string, error) {
	events, err := s.Repo.Watch(ctx, "**/*.{md,json,yaml,yml}")
	if err != nil {
		return nil, errors.Wrap(err, "failed to start loam watcher")
	}

	ch := make(chan string, 1)
	go func() {
		defer close(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-events:
				if !ok {
					return
				}
				if err := s.Reload(ctx); err != nil {
					s.logger.Warn("corpus reload failed, keeping previous corpus",
						zap.String("document", evt.ID), zap.Error(err))
					continue
				}
				select {
				case ch <- evt.ID:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return ch, nil
}

// kindOf resolves the rule kind from the frontmatter, falling back to the
// top-level directory of the document id.
func kindOf(declared, docID string) (domain.Kind, error) {
	if declared != "" {
		return domain.ParseKind(declared)
	}
	dir, _, found := strings.Cut(filepath.ToSlash(docID), "/")
	if !found {
		return "", errors.Newf("no kind in frontmatter and no kind directory")
	}
	return domain.ParseKind(strings.TrimSuffix(dir, "s"))
}

func trimExtension(id string) string {
	ext := filepath.Ext(id)
	return filepath.ToSlash(strings.TrimSuffix(id, ext))
}
