package resolver

import "fmt"

// ErrKind classifies derivation and reporting failures.
type ErrKind int

const (
	// ErrKindTrunkDiscovery indicates no viable trunk reference was
	// found among local and remote master candidates.
	ErrKindTrunkDiscovery ErrKind = iota
	// ErrKindDescribe indicates no acceptable tag was found by
	// either describe strategy.
	ErrKindDescribe
	// ErrKindMergeBase indicates the merge-base of HEAD and trunk
	// could not be computed.
	ErrKindMergeBase
	// ErrKindCacheWrite indicates the VERSION_DEFAULT cache file
	// could not be written or swapped in.
	ErrKindCacheWrite
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindTrunkDiscovery:
		return "trunk discovery"
	case ErrKindDescribe:
		return "describe"
	case ErrKindMergeBase:
		return "merge-base"
	case ErrKindCacheWrite:
		return "cache write"
	default:
		return "unknown"
	}
}

// Error is a classified resolver failure.
type Error struct {
	Kind    ErrKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether the failure may be absorbed by falling
// back to default-based derivation. Cache write failures abort the
// invocation instead.
func (e *Error) Recoverable() bool {
	return e.Kind != ErrKindCacheWrite
}
