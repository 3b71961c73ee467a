// Package sqltext provides lexical SQL helpers for cell execution:
// parameter substitution, sheet-local identifier qualification, and the
// deterministic derivation of result view names from cell titles.
package sqltext

import (
	"regexp"
	"strings"
)

var identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// IsValidIdentifier reports whether s can be used as an unquoted SQL
// identifier.
func IsValidIdentifier(s string) bool {
	return identifierRe.MatchString(s)
}

// ToValidIdentifier derives a SQL identifier from a free-form title.
// The derivation is deterministic: invalid characters become
// underscores, a leading digit is prefixed, and an empty result falls
// back to "untitled".
func ToValidIdentifier(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	out := b.String()
	if out == "" {
		return "untitled"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// EscapeID quotes an identifier for safe interpolation into DDL,
// doubling any embedded double quotes.
func EscapeID(id string) string {
	if IsValidIdentifier(id) {
		return id
	}
	return `"` + strings.ReplaceAll(id, `"`, `""`) + `"`
}

// EffectiveResultName returns the identifier a SQL cell's result view is
// published under: the explicit override when it is a valid identifier,
// otherwise a name derived from the cell title.
func EffectiveResultName(resultName, title string) string {
	if resultName != "" && IsValidIdentifier(resultName) {
		return resultName
	}
	return ToValidIdentifier(title)
}
