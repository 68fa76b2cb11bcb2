// Package apperr classifies pipeline failures by the stage that produced
// them so callers can decide between retrying, warning and aborting.
package apperr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/forPelevin/autocut/internal/domain/timeline"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindProbe
	KindTranscription
	KindPlanning
	KindLengthFit
	KindRender
)

func (k Kind) String() string {
	switch k {
	case KindProbe:
		return "probe"
	case KindTranscription:
		return "transcription"
	case KindPlanning:
		return "planning"
	case KindLengthFit:
		return "length_fit"
	case KindRender:
		return "render"
	default:
		return "unknown"
	}
}

// Fatal reports whether an error of this kind stops the pipeline. Only a
// missed length target is a warning.
func (k Kind) Fatal() bool { return k != KindLengthFit }

var (
	ErrEmptyResult       = errors.New("policy removes the entire timeline")
	ErrTargetUnreachable = errors.New("target duration unreachable")
)

// Error carries the failing stage, an optional offending time range on the
// original timeline and the underlying cause.
type Error struct {
	Kind      Kind
	Msg       string
	Range     *timeline.TimeRange
	Retryable bool
	Cause     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Range != nil {
		fmt.Fprintf(&b, " at %s", e.Range)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Wrap(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

// WithRange returns a copy of e pointing at r.
func (e *Error) WithRange(r timeline.TimeRange) *Error {
	out := *e
	out.Range = &r
	return &out
}

// AsRetryable returns a copy of e marked as safe to retry.
func (e *Error) AsRetryable() *Error {
	out := *e
	out.Retryable = true
	return &out
}

// LengthFitError reports that the fitter could not reach Target; Achieved is
// the edited duration of the best-effort plan returned alongside it.
type LengthFitError struct {
	Target   float64
	Achieved float64
}

func (e *LengthFitError) Error() string {
	return fmt.Sprintf("length_fit: target %.2fs unreachable, best effort %.2fs", e.Target, e.Achieved)
}

func (e *LengthFitError) Is(target error) bool { return target == ErrTargetUnreachable }

// KindOf extracts the kind of err, or KindUnknown.
func KindOf(err error) Kind {
	var fit *LengthFitError
	if errors.As(err, &fit) {
		return KindLengthFit
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

func IsRetryable(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Retryable
}

// RangeOf returns the innermost time range attached to err.
func RangeOf(err error) (timeline.TimeRange, bool) {
	var found *timeline.TimeRange
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			break
		}
		if e.Range != nil {
			found = e.Range
		}
		err = e.Cause
	}
	if found == nil {
		return timeline.TimeRange{}, false
	}
	return *found, true
}
