package sqltext

import (
	"fmt"
	"regexp"
	"strings"
)

// RenderInput is one parameter value available to template substitution.
type RenderInput struct {
	VarName string
	Value   any
}

var templateVarRe = regexp.MustCompile(`\{\{\s*([a-zA-Z_][a-zA-Z0-9_]*)\s*\}\}`)

// RenderSQLWithInputs substitutes every {{varName}} occurrence in rawSQL
// with the parameter's current value. Numeric values are inlined
// unquoted; everything else is inlined as a single-quoted string with
// embedded single quotes doubled. This is lexical substitution, not
// parameterized binding, and no other escaping is performed.
func RenderSQLWithInputs(rawSQL string, inputs []RenderInput) string {
	values := make(map[string]any, len(inputs))
	for _, in := range inputs {
		values[in.VarName] = in.Value
	}
	return templateVarRe.ReplaceAllStringFunc(rawSQL, func(m string) string {
		name := templateVarRe.FindStringSubmatch(m)[1]
		val, ok := values[name]
		if !ok {
			return quoteValue("")
		}
		return inlineValue(val)
	})
}

func inlineValue(val any) string {
	switch v := val.(type) {
	case int:
		return fmt.Sprintf("%d", v)
	case int32:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case float32:
		return fmt.Sprintf("%v", v)
	case float64:
		// JSON round-trips numbers as float64.
		return fmt.Sprintf("%v", v)
	case nil:
		return quoteValue("")
	default:
		return quoteValue(fmt.Sprintf("%v", v))
	}
}

func quoteValue(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
