package design

import (
	"sync"

	"printcraftAPI/internal/blob"
)

// Janitor cleans up the data behind an image element's value when the
// element is removed. ReleaseBlob frees a local ephemeral reference;
// DeleteRemote requests best-effort deletion of a durable object. Remote
// failures are the implementation's problem to log — element deletion always
// succeeds locally.
type Janitor interface {
	ReleaseBlob(ref string) bool
	DeleteRemote(url string)
}

type noopJanitor struct{}

func (noopJanitor) ReleaseBlob(string) bool { return false }
func (noopJanitor) DeleteRemote(string)     {}

// Store is the ordered collection of elements placed on one canvas. It is
// the single shared mutable resource of a design session: gestures,
// ingestion, text edits and deletes all mutate through Add/Update/Delete, so
// invariants are enforced in one place.
type Store struct {
	mu         sync.Mutex
	elements   []*Element
	selectedID string
	janitor    Janitor
}

func NewStore(j Janitor) *Store {
	if j == nil {
		j = noopJanitor{}
	}
	return &Store{janitor: j}
}

// Add appends an element and selects it. At most one image element may exist
// on a canvas: adding a second image replaces the first, releasing whatever
// its value referenced.
func (s *Store) Add(el *Element) {
	s.mu.Lock()
	var evicted *Element
	if el.Type == TypeImage {
		for i, existing := range s.elements {
			if existing.Type == TypeImage {
				evicted = existing
				s.elements = append(s.elements[:i], s.elements[i+1:]...)
				break
			}
		}
	}
	s.elements = append(s.elements, el)
	s.selectedID = el.ID
	s.mu.Unlock()

	if evicted != nil {
		s.cleanup(evicted)
	}
}

// Update merges a partial attribute set into the matching element. Unknown
// ids are a no-op; ordering and identity of other elements never change.
func (s *Store) Update(id string, p Patch) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.elements {
		if el.ID == id {
			el.apply(p)
			return true
		}
	}
	return false
}

// Delete removes the matching element and clears selection if it was
// selected. Image values are cleaned up through the janitor.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	var removed *Element
	for i, el := range s.elements {
		if el.ID == id {
			removed = el
			s.elements = append(s.elements[:i], s.elements[i+1:]...)
			break
		}
	}
	if removed != nil && s.selectedID == id {
		s.selectedID = ""
	}
	s.mu.Unlock()

	if removed == nil {
		return false
	}
	s.cleanup(removed)
	return true
}

// Clear removes every element without janitor cleanup and returns them.
// Bulk replace goes through here: the caller decides which removed values
// are actually orphaned, since the replacement document may reference the
// same objects.
func (s *Store) Clear() []*Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := s.elements
	s.elements = nil
	s.selectedID = ""
	return removed
}

func (s *Store) cleanup(el *Element) {
	if el.Type != TypeImage || el.Value == "" {
		return
	}
	if blob.IsEphemeral(el.Value) {
		s.janitor.ReleaseBlob(el.Value)
		return
	}
	s.janitor.DeleteRemote(el.Value)
}

// Get returns a copy of the element with the given id.
func (s *Store) Get(id string) (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.elements {
		if el.ID == id {
			return *el, true
		}
	}
	return Element{}, false
}

// Elements returns a snapshot copy of all elements in z-order.
func (s *Store) Elements() []Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Element, len(s.elements))
	for i, el := range s.elements {
		out[i] = *el
	}
	return out
}

// ImageElement returns the canvas's image element, if one exists.
func (s *Store) ImageElement() (Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, el := range s.elements {
		if el.Type == TypeImage {
			return *el, true
		}
	}
	return Element{}, false
}

func (s *Store) Select(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.selectedID = ""
		return
	}
	for _, el := range s.elements {
		if el.ID == id {
			s.selectedID = id
			return
		}
	}
}

func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elements)
}
