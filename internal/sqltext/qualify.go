package sqltext

import (
	"regexp"
	"strings"
)

// QualifySheetLocalResultNames rewrites unqualified references to other
// same-sheet result names into schema-qualified identifiers, so that two
// sheets publishing identical result names into one shared catalog never
// collide. For each name, only standalone identifier tokens are
// rewritten: partial tokens (result_a inside result_a_backup) are left
// alone, and occurrences already preceded by `identifier.` keep their
// explicit schema.
func QualifySheetLocalResultNames(sqlText, sheetSchema string, resultNames []string) string {
	out := sqlText
	for _, name := range resultNames {
		if name == "" {
			continue
		}
		out = qualifyOne(out, sheetSchema, name)
	}
	return out
}

func qualifyOne(sqlText, schema, name string) string {
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) + `\b`)
	if err != nil {
		return sqlText
	}

	var b strings.Builder
	last := 0
	for _, loc := range re.FindAllStringIndex(sqlText, -1) {
		start, end := loc[0], loc[1]
		if isSchemaQualified(sqlText, start) {
			continue
		}
		b.WriteString(sqlText[last:start])
		b.WriteString(schema)
		b.WriteByte('.')
		b.WriteString(sqlText[start:end])
		last = end
	}
	b.WriteString(sqlText[last:])
	return b.String()
}

// isSchemaQualified reports whether the token starting at pos is already
// preceded by `identifier.`.
func isSchemaQualified(s string, pos int) bool {
	if pos == 0 || s[pos-1] != '.' {
		return false
	}
	i := pos - 2
	if i < 0 {
		return false
	}
	c := s[i]
	return isIdentByte(c) || c == '"'
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}
