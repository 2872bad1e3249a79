package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseCompile   Phase = "compile"   // serializer compilation
	PhaseDiscover  Phase = "discover"  // feature discovery
	PhaseSerialize Phase = "serialize" // per-example conversion
	PhaseLabel     Phase = "label"     // label comparator selection
	PhaseConfig    Phase = "config"    // settings loading
	PhaseTransform Phase = "transform" // wasm feature transforms
)

// Kind categorizes the error
type Kind string

const (
	KindTypeMismatch     Kind = "type_mismatch"
	KindNotEnumerable    Kind = "not_enumerable"
	KindDuplicateFeature Kind = "duplicate_feature"
	KindUnsupported      Kind = "unsupported"
	KindUnsupportedLabel Kind = "unsupported_label"
	KindExtraction       Kind = "extraction"
	KindNilPointer       Kind = "nil_pointer"
	KindOutOfBounds      Kind = "out_of_bounds"
	KindInvalidInput     Kind = "invalid_input"
	KindInvalidData      Kind = "invalid_data"
	KindNotFound         Kind = "not_found"
	KindInstantiation    Kind = "instantiation"
)

// Error is the structured error type used throughout the module
type Error struct {
	Value    any
	Cause    error
	Phase    Phase
	Kind     Kind
	GoType   string
	WireType string
	Detail   string
	Path     []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	typed := e.GoType != "" || e.WireType != ""
	if typed {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.WireType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", wire type ")
			b.WriteString(e.WireType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("wire type ")
			b.WriteString(e.WireType)
		}
	}

	if e.Detail != "" {
		if typed {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Path sets the feature path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// WireType sets the wire type name
func (b *Builder) WireType(t string) *Builder {
	b.err.WireType = t
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// IsSchema reports whether err is a schema error: a failure raised while discovering
// features, compiling a serializer or selecting a label comparator. Label comparison
// failures are not schema errors.
func IsSchema(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	switch e.Phase {
	case PhaseCompile, PhaseDiscover:
		return true
	case PhaseLabel:
		return e.Kind == KindUnsupportedLabel
	}
	return false
}

// IsExtraction reports whether err is a per-call extraction failure.
func IsExtraction(err error) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Phase == PhaseSerialize && e.Kind == KindExtraction
}

// Convenience constructors for common error patterns

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, wireType string) *Error {
	return &Error{
		Phase:    phase,
		Kind:     KindTypeMismatch,
		Path:     path,
		GoType:   goType,
		WireType: wireType,
	}
}

// NotEnumerable creates the error raised when the collection feature does not reduce to
// a sequence of element records.
func NotEnumerable(path []string, goType string) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindNotEnumerable,
		Path:   path,
		GoType: goType,
		Detail: "must be array or sequence",
	}
}

// DuplicateFeature creates a duplicate feature name error
func DuplicateFeature(phase Phase, owner, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindDuplicateFeature,
		Path:   []string{name},
		GoType: owner,
		Detail: fmt.Sprintf("feature %q declared more than once", name),
	}
}

// UnsupportedLabel creates the error returned for label types without a comparator
func UnsupportedLabel(goType string) *Error {
	return &Error{
		Phase:  PhaseLabel,
		Kind:   KindUnsupportedLabel,
		GoType: goType,
		Detail: "label type not supported",
	}
}

// Extraction wraps an error returned by a feature extractor
func Extraction(path []string, cause error) *Error {
	return &Error{
		Phase:  PhaseSerialize,
		Kind:   KindExtraction,
		Path:   path,
		Detail: "feature extraction failed",
		Cause:  cause,
	}
}

// Unsupported creates an error for a Go type that cannot be handled at path
func Unsupported(phase Phase, path []string, goType, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Path:   path,
		GoType: goType,
		Detail: detail,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// NilPointer creates a nil pointer error
func NilPointer(phase Phase, path []string, goType string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Path:   path,
		GoType: goType,
		Detail: "nil pointer",
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Instantiation creates a wasm module instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseTransform,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}
