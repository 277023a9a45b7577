// Package quote renders Snowflake identifiers for safe splicing into
// session-context statements.
package quote

import (
	"regexp"
	"strings"
)

var bareIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Identifier returns s ready for splicing into a SQL statement.
// Identifiers consisting of ASCII letters, digits, and underscores (not
// starting with a digit) pass through unquoted so Snowflake applies its usual
// case folding. Anything else is wrapped in double quotes with embedded
// quotes doubled.
func Identifier(s string) string {
	if bareIdentifier.MatchString(s) {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
