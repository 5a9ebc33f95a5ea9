package failure

import (
	"errors"
	"strings"
)

// Known failure conditions. Collaborators wrap these so the classifier can
// find them anywhere in an error chain.
var (
	// ErrSizeLimit indicates a payload exceeded a size ceiling.
	ErrSizeLimit = errors.New("size limit exceeded")
	// ErrResourceConstraint indicates the sync process could not get resources.
	ErrResourceConstraint = errors.New("resource constraint")
	// ErrWorkloadLauncher indicates the sync process could not be launched.
	ErrWorkloadLauncher = errors.New("workload launcher failure")
	// ErrWorkloadMonitor indicates the sync process could not be monitored.
	ErrWorkloadMonitor = errors.New("workload monitor failure")
)

// Predicate tests one error in a chain.
type Predicate func(error) bool

// ExceptionChainContains reports whether err or any error it wraps satisfies
// kind. Both single (Unwrap() error) and joined (Unwrap() []error) wrapping
// are followed. A nil err never matches.
func ExceptionChainContains(err error, kind Predicate) bool {
	if err == nil || kind == nil {
		return false
	}
	if kind(err) {
		return true
	}
	switch u := err.(type) {
	case interface{ Unwrap() error }:
		return ExceptionChainContains(u.Unwrap(), kind)
	case interface{ Unwrap() []error }:
		for _, e := range u.Unwrap() {
			if ExceptionChainContains(e, kind) {
				return true
			}
		}
	}
	return false
}

// Sentinel matches a chain link that is target or declares itself
// equivalent to target through an Is method.
func Sentinel(target error) Predicate {
	return func(err error) bool {
		if err == target {
			return true
		}
		if x, ok := err.(interface{ Is(error) bool }); ok {
			return x.Is(target)
		}
		return false
	}
}

// OfType matches a chain link whose dynamic type is T.
func OfType[T error]() Predicate {
	return func(err error) bool {
		_, ok := err.(T)
		return ok
	}
}

// chainOrMessageContains also matches when a collaborator flattened the
// original error into text, which loses the chain but keeps the message.
func chainOrMessageContains(err, target error) bool {
	if ExceptionChainContains(err, Sentinel(target)) {
		return true
	}
	return err != nil && strings.Contains(err.Error(), target.Error())
}
