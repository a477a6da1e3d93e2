package duck

import (
	"errors"
	"fmt"
	"strings"
)

type ErrorKind string

const (
	// KindConfiguration marks an invalid combination of startup flags. It is
	// fatal at startup and never produced by a running invocation.
	KindConfiguration ErrorKind = "ConfigurationError"

	// KindMissingCredential marks a cloud open attempted without a token.
	KindMissingCredential ErrorKind = "MissingCredential"

	// KindConnection marks a failed open: bad path, lock contention,
	// unreachable host, bad credential, invalidated database.
	KindConnection ErrorKind = "ConnectionError"

	// KindPermission marks a mutating statement attempted under read-only or
	// SaaS restriction.
	KindPermission ErrorKind = "PermissionError"

	// KindSyntax marks a statement the engine could not parse.
	KindSyntax ErrorKind = "SyntaxError"

	// KindEngine is the catch-all for everything else the engine rejects.
	KindEngine ErrorKind = "EngineError"
)

// Error is the structured error descriptor returned to callers in place of
// raw engine errors.
type Error struct {
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Classify maps an engine error onto the error taxonomy. DuckDB does not
// expose typed errors through database/sql, so classification is by message
// pattern and best-effort: anything unrecognized is an EngineError.
func Classify(err error) *Error {
	var de *Error
	if errors.As(err, &de) {
		return de
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "parser error"),
		strings.Contains(lower, "syntax error"):
		return &Error{Kind: KindSyntax, Message: msg}
	// Permission patterns must not swallow open failures: a bad path opened
	// read-only reports "Cannot open ... in read-only mode", which is a
	// connection failure, not a rejected statement.
	case strings.Contains(lower, "attached in read-only mode"),
		strings.Contains(lower, "read-only database"),
		strings.Contains(lower, "cannot execute statement"),
		strings.Contains(lower, "saas mode"),
		strings.Contains(lower, "permission denied"),
		strings.Contains(lower, "disabled by configuration"):
		return &Error{Kind: KindPermission, Message: msg}
	case strings.Contains(lower, "motherduck_token"),
		strings.Contains(lower, "token is expired"),
		strings.Contains(lower, "invalid token"):
		return &Error{Kind: KindMissingCredential, Message: msg}
	case isInvalidationError(err),
		strings.Contains(lower, "io error"),
		strings.Contains(lower, "could not set lock"),
		strings.Contains(lower, "cannot open"),
		strings.Contains(lower, "connection error"),
		strings.Contains(lower, "failed to connect"),
		strings.Contains(lower, "bad connection"),
		strings.Contains(lower, "database is closed"):
		return &Error{Kind: KindConnection, Message: msg}
	default:
		return &Error{Kind: KindEngine, Message: msg}
	}
}

// isInvalidationError reports whether the engine has invalidated the whole
// database instance, meaning the cached handle is unusable and must be
// reopened.
func isInvalidationError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "database has been invalidated") ||
		strings.Contains(errStr, "FATAL Error") ||
		strings.Contains(errStr, "must be restarted")
}
