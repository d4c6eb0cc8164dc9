package blob

import (
	"strings"
	"sync"

	"github.com/google/uuid"
)

const refPrefix = "blob:printcraft/"

// IsEphemeral reports whether a design element value is a process-local blob
// reference rather than a durable storage URL.
func IsEphemeral(value string) bool {
	return strings.HasPrefix(value, refPrefix)
}

type entry struct {
	data     []byte
	released bool
}

// Registry owns in-process binary data referenced by design elements before
// upload settles. References must be released exactly once; a second release
// of the same reference is a no-op and is reported to the caller.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	releases map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		entries:  make(map[string]*entry),
		releases: make(map[string]int),
	}
}

// Create stores raw bytes and returns an ephemeral reference to them.
func (r *Registry) Create(data []byte) string {
	ref := refPrefix + uuid.New().String()
	r.mu.Lock()
	r.entries[ref] = &entry{data: data}
	r.mu.Unlock()
	return ref
}

// Resolve returns the bytes behind a reference, if it is still live.
func (r *Registry) Resolve(ref string) ([]byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref]
	if !ok || e.released {
		return nil, false
	}
	return e.data, true
}

// Release frees the bytes behind a reference. Returns false if the reference
// is unknown or was already released.
func (r *Registry) Release(ref string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[ref]
	if !ok || e.released {
		return false
	}
	e.released = true
	e.data = nil
	r.releases[ref]++
	return true
}

// ReleaseCount reports how many times a reference was successfully released.
// It exists so leak behavior stays observable in tests.
func (r *Registry) ReleaseCount(ref string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releases[ref]
}

// Live reports how many references are held and not yet released.
func (r *Registry) Live() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.entries {
		if !e.released {
			n++
		}
	}
	return n
}
