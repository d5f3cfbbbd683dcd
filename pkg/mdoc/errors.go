package mdoc

import (
	"errors"
	"fmt"
)

// Error categories. Every fatal error returned by ParseAndValidate wraps
// exactly one of them.
var (
	ErrStructural      = errors.New("mdoc: structural error")
	ErrFieldExtraction = errors.New("mdoc: field extraction error")
)

var (
	ErrUnexpectedZValue    = fmt.Errorf("%w: unexpected Z value", ErrStructural)
	ErrMalformedLine       = fmt.Errorf("%w: malformed line", ErrStructural)
	ErrNoSlices            = fmt.Errorf("%w: no ZValue sections", ErrStructural)
	ErrMissingSubFramePath = fmt.Errorf("%w: slice section does not have %s field", ErrFieldExtraction, KeySubFramePath)
	ErrMissingDateTime     = fmt.Errorf("%w: slice section does not have %s field", ErrFieldExtraction, KeyDateTime)
	ErrMissingTiltAngle    = fmt.Errorf("%w: slice section does not have %s field", ErrFieldExtraction, KeyTiltAngle)
	ErrBadNumber           = fmt.Errorf("%w: invalid number", ErrFieldExtraction)
	ErrBadDateTime         = fmt.Errorf("%w: invalid %s", ErrFieldExtraction, KeyDateTime)
)

// ErrorKind classifies a fatal ParseError.
type ErrorKind int

const (
	KindStructural ErrorKind = iota + 1
	KindField
	KindIO
)

func (k ErrorKind) String() string {
	switch k {
	case KindStructural:
		return "structural"
	case KindField:
		return "field"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

// ParseError is returned when an mdoc file cannot be turned into a Document.
// No partial document accompanies it.
type ParseError struct {
	File string
	Kind ErrorKind
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("*CRITICAL mdoc parsing error: %s can't be parsed.* %v", e.File, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// newParseError classifies err and attaches the file name.
func newParseError(file string, err error) *ParseError {
	kind := KindIO
	switch {
	case errors.Is(err, ErrStructural):
		kind = KindStructural
	case errors.Is(err, ErrFieldExtraction):
		kind = KindField
	}
	return &ParseError{File: file, Kind: kind, Err: err}
}

// DeficiencyKind separates problems found in the mdoc contents from
// references to files that do not exist.
type DeficiencyKind int

const (
	DeficiencyValidation DeficiencyKind = iota + 1
	DeficiencyExternalReference
)

func (k DeficiencyKind) String() string {
	if k == DeficiencyExternalReference {
		return "external-reference"
	}
	return "validation"
}

// Deficiency is a non-fatal problem found after a successful parse.
type Deficiency struct {
	Kind   DeficiencyKind
	Field  string
	Detail string
}

func (d Deficiency) String() string {
	if d.Detail == "" {
		return d.Field
	}
	return d.Field + ": " + d.Detail
}
