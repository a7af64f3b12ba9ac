// Package apperrors defines the failure kinds of the podcast pipeline.
// Each kind is fatal to the request that raised it; errors.Is matches on kind.
package apperrors

import (
	"errors"
	"fmt"
)

// Kind categorizes a pipeline failure.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfiguration indicates missing credentials or collaborators
	KindConfiguration
	// KindArgument indicates invalid caller input
	KindArgument
	// KindUpstream indicates the script generation service failed
	KindUpstream
	// KindScriptParse indicates no structured script could be recovered
	KindScriptParse
	// KindEmptyScript indicates the script had no usable lines
	KindEmptyScript
	// KindSynthesis indicates speech synthesis failed after the retry budget
	KindSynthesis
	// KindUpload indicates the object store rejected the audio
	KindUpload
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindArgument:
		return "argument"
	case KindUpstream:
		return "upstream"
	case KindScriptParse:
		return "script_parse"
	case KindEmptyScript:
		return "empty_script"
	case KindSynthesis:
		return "synthesis"
	case KindUpload:
		return "upload"
	default:
		return "unknown"
	}
}

// Error carries the kind of failure plus where in the pipeline it happened.
type Error struct {
	Kind    Kind
	Message string
	Stage   string // pipeline stage, e.g. "script", "synthesis"
	Line    int    // 1-based script line, 0 when not line-specific
	// Transient is only meaningful for synthesis errors: true when a retry could succeed.
	Transient bool
	Err       error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Stage != "" {
		s += " (" + e.Stage
		if e.Line > 0 {
			s += fmt.Sprintf(", line %d", e.Line)
		}
		s += ")"
	}
	if e.Message != "" {
		s += ": " + e.Message
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// AtLine records the 1-based script line the error belongs to.
func (e *Error) AtLine(line int) *Error {
	e.Line = line
	return e
}

// InStage records the pipeline stage.
func (e *Error) InStage(stage string) *Error {
	e.Stage = stage
	return e
}

// Sentinels for errors.Is.
var (
	ErrConfiguration = &Error{Kind: KindConfiguration}
	ErrArgument      = &Error{Kind: KindArgument}
	ErrUpstream      = &Error{Kind: KindUpstream}
	ErrScriptParse   = &Error{Kind: KindScriptParse}
	ErrEmptyScript   = &Error{Kind: KindEmptyScript}
	ErrSynthesis     = &Error{Kind: KindSynthesis}
	ErrUpload        = &Error{Kind: KindUpload}
)

func Configuration(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func Argument(format string, args ...any) *Error {
	return &Error{Kind: KindArgument, Message: fmt.Sprintf(format, args...)}
}

func Upstream(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpstream, Stage: "script", Message: fmt.Sprintf(format, args...), Err: err}
}

func ScriptParse(err error, format string, args ...any) *Error {
	return &Error{Kind: KindScriptParse, Stage: "script", Message: fmt.Sprintf(format, args...), Err: err}
}

func EmptyScript() *Error {
	return &Error{Kind: KindEmptyScript, Stage: "script", Message: "script generation returned no lines"}
}

// Synthesis wraps a text-to-speech failure, tagging whether it is worth retrying.
func Synthesis(err error, transient bool) *Error {
	return &Error{Kind: KindSynthesis, Stage: "synthesis", Transient: transient, Err: err}
}

func Upload(err error, format string, args ...any) *Error {
	return &Error{Kind: KindUpload, Stage: "upload", Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
