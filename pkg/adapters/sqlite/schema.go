package sqlite

import (
	"fmt"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/cockroachdb/errors"
)

type ruleTable struct {
	name    string
	content string
}

var ruleTables = map[domain.Kind]ruleTable{
	domain.KindPrimitive: {name: "primitive_rules", content: "content"},
	domain.KindSemantic:  {name: "semantic_rules", content: "content_template"},
	domain.KindTask:      {name: "task_rules", content: "prompt_template"},
}

func (t ruleTable) columns() string {
	return fmt.Sprintf("id, name, description, %s, category, language, framework, domain, version, created_at, updated_at", t.content)
}

type relationTable struct {
	name   string
	parent string
	child  string
}

var relationTables = map[domain.RelationKind]relationTable{
	domain.RelationTaskSemantic:      {name: "task_semantic_relations", parent: "task_id", child: "semantic_id"},
	domain.RelationSemanticPrimitive: {name: "semantic_primitive_relations", parent: "semantic_id", child: "primitive_id"},
}

func (t relationTable) columns(alias string) string {
	return fmt.Sprintf("%[1]sid, %[1]s%[2]s, %[1]s%[3]s, %[1]sweight, %[1]sorder_index, %[1]sis_required, %[1]scontext_override",
		alias, t.parent, t.child)
}

func lookupRuleTable(kind domain.Kind) (ruleTable, error) {
	t, ok := ruleTables[kind]
	if !ok {
		return ruleTable{}, errors.Newf("unknown rule kind %q", kind)
	}
	return t, nil
}
