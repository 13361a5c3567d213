package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind classifies configuration errors.
type ErrorKind int

const (
	// Invalid is the aggregate kind: the error's Details hold every problem found.
	Invalid ErrorKind = iota
	DuplicateEntryName
	InvalidTemplate
	UnknownEnvironment
	SourceUnreachable
	OutputUnwritable
)

func (k ErrorKind) String() string {
	switch k {
	case Invalid:
		return "invalid configuration"
	case DuplicateEntryName:
		return "duplicate entry name"
	case InvalidTemplate:
		return "invalid filename template"
	case UnknownEnvironment:
		return "unknown environment"
	case SourceUnreachable:
		return "source unreachable"
	case OutputUnwritable:
		return "output not writable"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Sentinels for errors.Is. They match any *Error of the same kind, including
// those nested in an Invalid aggregate.
var (
	ErrInvalid            = &Error{Kind: Invalid}
	ErrDuplicateEntryName = &Error{Kind: DuplicateEntryName}
	ErrInvalidTemplate    = &Error{Kind: InvalidTemplate}
	ErrUnknownEnvironment = &Error{Kind: UnknownEnvironment}
	ErrSourceUnreachable  = &Error{Kind: SourceUnreachable}
	ErrOutputUnwritable   = &Error{Kind: OutputUnwritable}
)

// Error is returned for every configuration problem.
type Error struct {
	Kind    ErrorKind
	Subject string  // entry name, environment, template, ... depending on Kind
	Err     error   // underlying cause, if any
	Details []error // problems aggregated by an Invalid error
}

func NewError(kind ErrorKind, subject string, cause error) *Error {
	return &Error{Kind: kind, Subject: subject, Err: cause}
}

// Aggregate wraps all problems into one Invalid error. It returns nil when
// there are no problems.
func Aggregate(problems []error) error {
	if len(problems) == 0 {
		return nil
	}
	return &Error{Kind: Invalid, Details: problems}
}

func (e *Error) Error() string {
	if e.Kind == Invalid && len(e.Details) > 0 {
		lines := make([]string, 0, len(e.Details)+1)
		lines = append(lines, fmt.Sprintf("%v: %d problem(s)", e.Kind, len(e.Details)))
		for _, d := range e.Details {
			lines = append(lines, "- "+d.Error())
		}
		return strings.Join(lines, "\n")
	}

	msg := e.Kind.String()
	if e.Subject != "" {
		msg += fmt.Sprintf(" %q", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return e.Details
	}
	return append([]error{e.Err}, e.Details...)
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Subject == "" && t.Err == nil && len(t.Details) == 0
}

// Problems returns the individual problems behind err: the details of an
// Invalid aggregate, or err itself.
func Problems(err error) []error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == Invalid && len(e.Details) > 0 {
		return e.Details
	}
	return []error{err}
}
