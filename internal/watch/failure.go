package watch

import (
	"errors"
	"fmt"
)

// FailureKind classifies domain failures. Infrastructure errors are never
// Failures; they are returned wrapped.
type FailureKind string

const (
	// KindMissingField: an event lacked author, contribution or subreddit.
	KindMissingField FailureKind = "missing_field"
	// KindNotFound: a user, post or document does not exist.
	KindNotFound FailureKind = "not_found"
	// KindInvalidInput: moderator input was rejected.
	KindInvalidInput FailureKind = "invalid_input"
	// KindMalformed: an external document could not be parsed.
	KindMalformed FailureKind = "malformed"
)

// Failure is a domain failure scoped to a single invocation.
type Failure struct {
	Kind FailureKind
	Op   string
	// Detail is safe to show to a moderator.
	Detail string
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s: %s", f.Op, f.Kind, f.Detail)
}

func fail(kind FailureKind, op, format string, args ...any) *Failure {
	return &Failure{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is a Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	var f *Failure
	return errors.As(err, &f) && f.Kind == kind
}
