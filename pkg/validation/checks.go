package validation

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
)

func (e *Engine) builtinChecks() []Check {
	return []Check{
		{Name: CheckContent, Description: "Rule content validation", Run: checkContent},
		{Name: CheckRelations, Description: "Rule relationship validation", Run: checkRelations},
		{Name: CheckTemplates, Description: "Template syntax validation", Run: e.checkTemplates},
		{Name: CheckCycles, Description: "Circular dependency validation", Run: checkCycles},
		{Name: CheckOrphans, Description: "Orphaned records validation", Run: checkOrphans},
		{Name: CheckDuplicates, Description: "Duplicate name validation", Run: checkDuplicates},
		{Name: CheckVersions, Description: "Version consistency validation", Run: checkVersions},
		{Name: CheckOverrides, Description: "JSON field validation", Run: checkOverrides},
	}
}

func issueFor(r domain.Rule, format string, args ...any) domain.Issue {
	return domain.Issue{Kind: r.Kind, ID: r.ID, Name: r.Name, Message: fmt.Sprintf(format, args...)}
}

func checkContent(ctx context.Context, v *View) ([]domain.Issue, error) {
	var issues []domain.Issue
	for _, kind := range domain.Kinds {
		rules, err := v.Rules(ctx, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s rules", kind)
		}
		for _, r := range rules {
			if strings.TrimSpace(r.Name) == "" {
				issues = append(issues, issueFor(r, "%s rule %d has an empty name", kind, r.ID))
			}
			if strings.TrimSpace(r.Content) == "" {
				issues = append(issues, issueFor(r, "%s rule %q has empty content", kind, r.Name))
			}
			if err := r.CheckClassifier(); err != nil {
				issues = append(issues, issueFor(r, "%s rule %q: %v", kind, r.Name, err))
			}
		}
	}
	return issues, nil
}

func checkRelations(ctx context.Context, v *View) ([]domain.Issue, error) {
	idx, err := v.index(ctx)
	if err != nil {
		return nil, err
	}
	var issues []domain.Issue
	for _, rk := range domain.RelationKinds {
		rels, err := v.Relations(ctx, rk)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s relations", rk)
		}
		for _, rel := range rels {
			if err := rel.Validate(); err != nil {
				issues = append(issues, domain.Issue{ID: rel.ID, Message: err.Error()})
				continue
			}
			if _, ok := idx[rel.Parent()]; !ok {
				issues = append(issues, domain.Issue{
					Kind: rel.ParentKind, ID: rel.ParentID,
					Message: fmt.Sprintf("%s relation %d references missing parent %s", rk, rel.ID, rel.Parent()),
				})
			}
			if _, ok := idx[rel.Child()]; !ok {
				issues = append(issues, domain.Issue{
					Kind: rel.ChildKind, ID: rel.ChildID,
					Message: fmt.Sprintf("%s relation %d references missing child %s", rk, rel.ID, rel.Child()),
				})
			}
		}
	}
	return issues, nil
}

func (e *Engine) checkTemplates(ctx context.Context, v *View) ([]domain.Issue, error) {
	var issues []domain.Issue
	for _, kind := range []domain.Kind{domain.KindTask, domain.KindSemantic} {
		rules, err := v.Rules(ctx, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s rules", kind)
		}
		for _, r := range rules {
			if res := e.renderer.Validate(r.Content); !res.Valid {
				issues = append(issues, issueFor(r, "%s rule %q has an invalid template: %s", kind, r.Name, strings.Join(res.Errors, "; ")))
			}
		}
	}
	return issues, nil
}

func checkCycles(ctx context.Context, v *View) ([]domain.Issue, error) {
	graph := make(map[string][]string)
	for _, rk := range domain.RelationKinds {
		rels, err := v.Relations(ctx, rk)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s relations", rk)
		}
		for _, rel := range rels {
			graph[rel.Parent()] = append(graph[rel.Parent()], rel.Child())
		}
	}
	var issues []domain.Issue
	for _, cycle := range FindCycles(graph) {
		issues = append(issues, domain.Issue{
			Message: "Circular dependency detected: " + strings.Join(cycle, " -> "),
			Cycle:   cycle,
		})
	}
	return issues, nil
}

func checkOrphans(ctx context.Context, v *View) ([]domain.Issue, error) {
	idx, err := v.index(ctx)
	if err != nil {
		return nil, err
	}
	versions, err := v.Versions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing versions")
	}
	tags, err := v.Tags(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing tags")
	}

	var issues []domain.Issue
	for _, ver := range versions {
		if _, ok := idx[domain.NodeName(ver.Kind, ver.RuleID)]; !ok {
			issues = append(issues, domain.Issue{
				Kind: ver.Kind, ID: ver.RuleID,
				Message: fmt.Sprintf("version %d (#%d) references missing %s rule %d", ver.Number, ver.ID, ver.Kind, ver.RuleID),
			})
		}
	}
	for _, tag := range tags {
		if _, ok := idx[domain.NodeName(tag.Kind, tag.RuleID)]; !ok {
			issues = append(issues, domain.Issue{
				Kind: tag.Kind, ID: tag.RuleID,
				Message: fmt.Sprintf("tag %q (#%d) references missing %s rule %d", tag.Tag, tag.ID, tag.Kind, tag.RuleID),
			})
		}
	}
	return issues, nil
}

// duplicateGroups returns the rules sharing a name, grouped by name in sorted
// order with each group sorted by ID.
func duplicateGroups(rules []domain.Rule) [][]domain.Rule {
	byName := make(map[string][]domain.Rule)
	for _, r := range rules {
		byName[r.Name] = append(byName[r.Name], r)
	}
	var groups [][]domain.Rule
	for _, group := range byName {
		if len(group) < 2 {
			continue
		}
		slices.SortFunc(group, func(a, b domain.Rule) int { return cmp.Compare(a.ID, b.ID) })
		groups = append(groups, group)
	}
	slices.SortFunc(groups, func(a, b []domain.Rule) int { return strings.Compare(a[0].Name, b[0].Name) })
	return groups
}

func checkDuplicates(ctx context.Context, v *View) ([]domain.Issue, error) {
	var issues []domain.Issue
	for _, kind := range domain.Kinds {
		rules, err := v.Rules(ctx, kind)
		if err != nil {
			return nil, errors.Wrapf(err, "listing %s rules", kind)
		}
		for _, group := range duplicateGroups(rules) {
			issues = append(issues, issueFor(group[0], "Duplicate %s rule name: '%s' (%d occurrences)", kind, group[0].Name, len(group)))
		}
	}
	return issues, nil
}

func checkVersions(ctx context.Context, v *View) ([]domain.Issue, error) {
	versions, err := v.Versions(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "listing versions")
	}

	type ruleKey struct {
		kind domain.Kind
		id   int64
	}
	byRule := make(map[ruleKey][]int)
	var keys []ruleKey
	for _, ver := range versions {
		k := ruleKey{ver.Kind, ver.RuleID}
		if _, ok := byRule[k]; !ok {
			keys = append(keys, k)
		}
		byRule[k] = append(byRule[k], ver.Number)
	}
	slices.SortFunc(keys, func(a, b ruleKey) int {
		return cmp.Or(strings.Compare(string(a.kind), string(b.kind)), cmp.Compare(a.id, b.id))
	})

	var issues []domain.Issue
	for _, k := range keys {
		numbers := byRule[k]
		slices.Sort(numbers)
		for i, n := range numbers {
			if expected := i + 1; n != expected {
				issues = append(issues, domain.Issue{
					Kind: k.kind, ID: k.id,
					Message: fmt.Sprintf("Version gap for %s: expected %d, found %d", domain.NodeName(k.kind, k.id), expected, n),
				})
				break
			}
		}
	}
	return issues, nil
}

func checkOverrides(ctx context.Context, v *View) ([]domain.Issue, error) {
	rels, err := v.Relations(ctx, domain.RelationTaskSemantic)
	if err != nil {
		return nil, errors.Wrapf(err, "listing %s relations", domain.RelationTaskSemantic)
	}
	var issues []domain.Issue
	for _, rel := range rels {
		raw := strings.TrimSpace(rel.ContextOverride)
		if raw == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			issues = append(issues, domain.Issue{
				Kind: rel.ParentKind, ID: rel.ParentID,
				Message: fmt.Sprintf("Invalid JSON in context_override for relation %d: %v", rel.ID, err),
			})
		}
	}
	return issues, nil
}

// warnings reports rules no parent references and primitive templates that
// will fall back to raw content. Corpus failures here are logged, not fatal.
func (e *Engine) warnings(ctx context.Context, v *View) []string {
	out := []string{}
	for _, rk := range domain.RelationKinds {
		_, childKind := rk.Endpoints()
		rels, err := v.Relations(ctx, rk)
		if err != nil {
			continue
		}
		rules, err := v.Rules(ctx, childKind)
		if err != nil {
			continue
		}
		used := make(map[int64]bool, len(rels))
		for _, rel := range rels {
			used[rel.ChildID] = true
		}
		for _, r := range rules {
			if !used[r.ID] {
				out = append(out, fmt.Sprintf("Unused %s rule: '%s' (id %d)", childKind, r.Name, r.ID))
			}
		}
	}

	prims, err := v.Rules(ctx, domain.KindPrimitive)
	if err == nil {
		for _, r := range prims {
			if res := e.renderer.Validate(r.Content); !res.Valid {
				out = append(out, fmt.Sprintf("Primitive rule '%s' does not parse and will render as raw content: %s", r.Name, strings.Join(res.Errors, "; ")))
			}
		}
	}
	return out
}
