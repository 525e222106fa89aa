package registry

import (
	"errors"
	"fmt"
)

// Kind classifies a resolution failure.
type Kind int

const (
	InvalidPathFormat Kind = iota + 1
	ModuleImportFailed
	ClassNotFound
	NotAClass
)

var (
	ErrInvalidPathFormat  = errors.New("invalid strategy path format")
	ErrModuleImportFailed = errors.New("module import failed")
	ErrClassNotFound      = errors.New("class not found")
	ErrNotAClass          = errors.New("not a class")
)

func (k Kind) sentinel() error {
	switch k {
	case InvalidPathFormat:
		return ErrInvalidPathFormat
	case ModuleImportFailed:
		return ErrModuleImportFailed
	case ClassNotFound:
		return ErrClassNotFound
	case NotAClass:
		return ErrNotAClass
	}
	return nil
}

func (k Kind) String() string {
	switch k {
	case InvalidPathFormat:
		return "InvalidPathFormat"
	case ModuleImportFailed:
		return "ModuleImportFailed"
	case ClassNotFound:
		return "ClassNotFound"
	case NotAClass:
		return "NotAClass"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ResolveError is the only error type Resolve returns.
type ResolveError struct {
	Kind Kind
	Path string
	Msg  string
	Err  error
}

func (e *ResolveError) Error() string {
	s := fmt.Sprintf("resolve %q: %s", e.Path, e.Msg)
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *ResolveError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so errors.Is(err, ErrClassNotFound) works.
func (e *ResolveError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

func newError(kind Kind, path, msg string, err error) *ResolveError {
	return &ResolveError{Kind: kind, Path: path, Msg: msg, Err: err}
}

// KindOf returns the kind of a resolution error, or 0 when err is not one.
func KindOf(err error) Kind {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Kind
	}
	return 0
}
