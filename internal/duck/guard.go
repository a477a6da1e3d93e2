package duck

import (
	"regexp"
	"strings"
)

// mutatingRe matches statements that could mutate the store. Keyword
// positions are bounded by non-identifier characters so column or table
// names containing a keyword don't trip it.
var mutatingRe = regexp.MustCompile(`(?i)(?:^|[^A-Za-z_])(INSERT|UPDATE|DELETE|MERGE|CREATE|DROP|ALTER|TRUNCATE|ATTACH|DETACH|COPY|IMPORT|EXPORT|INSTALL|LOAD|GRANT|REVOKE|VACUUM|CHECKPOINT)(?:[^A-Za-z_]|$)`)

var (
	lineCommentRe  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRe = regexp.MustCompile(`(?s)/\*.*?\*/`)
	stringRe       = regexp.MustCompile(`'(?:[^']|'')*'`)
	quotedIdentRe  = regexp.MustCompile(`"(?:[^"]|"")*"`)
)

// stripLiterals removes comments, string literals, and quoted identifiers so
// the keyword screen doesn't fire on data or names.
func stripLiterals(sql string) string {
	cleaned := blockCommentRe.ReplaceAllString(sql, " ")
	cleaned = lineCommentRe.ReplaceAllString(cleaned, " ")
	cleaned = stringRe.ReplaceAllString(cleaned, "''")
	cleaned = quotedIdentRe.ReplaceAllString(cleaned, `""`)
	return cleaned
}

// GuardReadOnly rejects statements that could mutate the store before any
// handle is opened for them. It is a best-effort screen: the engine's own
// read-only enforcement backstops anything that slips through.
func GuardReadOnly(sql string) *Error {
	if strings.TrimSpace(sql) == "" {
		return newError(KindSyntax, "empty statement")
	}
	if m := mutatingRe.FindStringSubmatch(stripLiterals(sql)); m != nil {
		return newError(KindPermission, "%s is not allowed on a read-only database", strings.ToUpper(m[1]))
	}
	return nil
}
