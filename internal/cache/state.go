// Package cache implements the virtual calendar data manager: a
// month-keyed cache of merged days with single-flight loading, LRU
// eviction, viewport pinning and scroll-aware prefetch.
package cache

// DataState is the per-month-key cache state machine:
// Empty → Loading → {Loaded, Error}, with Error → Loading on retry.
type DataState int

const (
	StateEmpty DataState = iota
	StateLoading
	StateLoaded
	StateError
)

func (s DataState) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateLoading:
		return "LOADING"
	case StateLoaded:
		return "LOADED"
	case StateError:
		return "ERROR"
	}
	return "UNKNOWN"
}
