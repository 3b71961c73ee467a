package sqlparse

import (
	"encoding/json"
	"strings"
)

// ReferencedTables walks the statement ASTs and collects every table
// name referenced in a FROM clause, join, or CTE body, lowercased and
// deduplicated in encounter order. CTE names themselves are not
// filtered out; callers match the result against known cell result
// names, so spurious entries are harmless.
func (r *ParseResult) ReferencedTables() []string {
	if r == nil {
		return nil
	}

	var names []string
	seen := make(map[string]struct{})

	for _, stmt := range r.Statements {
		var node any
		if err := json.Unmarshal(stmt, &node); err != nil {
			continue
		}
		walkTableNames(node, func(name string) {
			lower := strings.ToLower(name)
			if _, ok := seen[lower]; ok {
				return
			}
			seen[lower] = struct{}{}
			names = append(names, lower)
		})
	}

	return names
}

// walkTableNames visits every "table_name" key in the decoded AST.
func walkTableNames(node any, visit func(string)) {
	switch v := node.(type) {
	case map[string]any:
		for key, child := range v {
			if key == "table_name" {
				if name, ok := child.(string); ok && name != "" {
					visit(name)
					continue
				}
			}
			walkTableNames(child, visit)
		}
	case []any:
		for _, child := range v {
			walkTableNames(child, visit)
		}
	}
}
