package loam

import (
	"context"
	"path"

	"github.com/aretw0/loam"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/dsl"
	"github.com/cockroachdb/errors"
)

// kindDirs are the document directories of each kind, in load order.
var kindDirs = []struct {
	kind domain.Kind
	dir  string
}{
	{domain.KindPrimitive, "primitives"},
	{domain.KindSemantic, "semantics"},
	{domain.KindTask, "tasks"},
}

// DocumentID returns the id under which a rule is exported.
func DocumentID(kind domain.Kind, name string) string {
	return path.Join(string(kind)+"s", name)
}

// Export writes every definition as a document of repo, one directory per
// kind. Rules loaded back from repo are numbered in document order, so ids
// may differ from the source corpus.
func Export(ctx context.Context, repo *loam.TypedRepository[RuleMetadata], defs map[domain.Kind][]dsl.Definition) (int, error) {
	written := 0
	for _, kd := range kindDirs {
		for _, def := range defs[kd.kind] {
			if def.Name == "" {
				return written, errors.Newf("%s rule without a name", kd.kind)
			}
			doc := &loam.DocumentModel[RuleMetadata]{
				ID:      DocumentID(kd.kind, def.Name),
				Content: def.Content,
				Data:    metadataOf(def),
			}
			if err := repo.Save(ctx, doc); err != nil {
				return written, errors.Wrapf(err, "failed to save %s", doc.ID)
			}
			written++
		}
	}
	return written, nil
}

// metadataOf is the inverse of RuleMetadata.definition. The kind is implied
// by the document directory.
func metadataOf(def dsl.Definition) RuleMetadata {
	return RuleMetadata{
		Description: def.Description,
		Category:    def.Category,
		Domain:      def.Domain,
		Language:    def.Language,
		Framework:   def.Framework,
		Tags:        def.Tags,
		Versions:    def.Versions,
		Uses:        def.Uses,
	}
}
