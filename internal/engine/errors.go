package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Configuration errors are detected before any provider call is made and
// abort the whole run. They map to exit status 2 at the CLI layer.

// UnresolvedReferenceError reports a reference whose target identity does
// not exist in the configuration set.
type UnresolvedReferenceError struct {
	Consumer string // address of the referencing resource
	AttrPath string // attribute path holding the reference
	Target   string // missing target address
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("resource %s references unknown resource %s at attribute %q",
		e.Consumer, e.Target, e.AttrPath)
}

// CyclicDependencyError reports a dependency cycle as an ordered list of
// resource addresses, first member repeated at the end.
type CyclicDependencyError struct {
	Cycle []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Cycle, " -> "))
}

// DuplicateResourceError reports two declared resources sharing one
// (type, name) identity.
type DuplicateResourceError struct {
	Addr string
}

func (e *DuplicateResourceError) Error() string {
	return fmt.Sprintf("duplicate resource identity %s", e.Addr)
}

// IsConfigurationError reports whether err is fatal configuration error
// detected before apply (cycle, unresolved reference, duplicate identity).
func IsConfigurationError(err error) bool {
	var unresolved *UnresolvedReferenceError
	var cyclic *CyclicDependencyError
	var dup *DuplicateResourceError
	return errors.As(err, &unresolved) || errors.As(err, &cyclic) || errors.As(err, &dup)
}
