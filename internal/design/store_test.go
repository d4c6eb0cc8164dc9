package design

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"printcraftAPI/internal/blob"
)

type countingJanitor struct {
	blobs    *blob.Registry
	released []string
	remote   []string
}

func (j *countingJanitor) ReleaseBlob(ref string) bool {
	j.released = append(j.released, ref)
	if j.blobs != nil {
		return j.blobs.Release(ref)
	}
	return true
}

func (j *countingJanitor) DeleteRemote(url string) {
	j.remote = append(j.remote, url)
}

func newTextElement(value string) *Element {
	return &Element{
		ID:       NewElementID(),
		Type:     TypeText,
		Value:    value,
		X:        50,
		Y:        50,
		Width:    150,
		Height:   60,
		FontSize: 24,
		Color:    "#000000",
	}
}

func TestAddSelectsNewElement(t *testing.T) {
	s := NewStore(nil)
	el := newTextElement("Hello")
	s.Add(el)

	assert.Equal(t, el.ID, s.SelectedID())
	assert.Equal(t, 1, s.Len())
}

func TestAtMostOneImageElement(t *testing.T) {
	reg := blob.NewRegistry()
	j := &countingJanitor{blobs: reg}
	s := NewStore(j)

	s.Add(newTextElement("keep me"))

	var lastID, firstRef string
	for i := 0; i < 3; i++ {
		ref := reg.Create([]byte{byte(i)})
		if i == 0 {
			firstRef = ref
		}
		el := &Element{ID: NewElementID(), Type: TypeImage, Value: ref, Width: 300, Height: 300}
		s.Add(el)
		lastID = el.ID
	}

	imgs := 0
	for _, el := range s.Elements() {
		if el.Type == TypeImage {
			imgs++
			assert.Equal(t, lastID, el.ID, "surviving image must be the most recent insertion")
		}
	}
	assert.Equal(t, 1, imgs)
	assert.Equal(t, 2, s.Len(), "text element must survive image replacement")

	// Replaced images had ephemeral values, so they were released.
	assert.Len(t, j.released, 2)
	assert.Equal(t, 1, reg.ReleaseCount(firstRef))
}

func TestUpdateMergesWithoutReordering(t *testing.T) {
	s := NewStore(nil)
	a := newTextElement("a")
	b := newTextElement("b")
	s.Add(a)
	s.Add(b)

	require.True(t, s.Update(a.ID, Patch{X: Float(99), Color: String("#ff0000")}))

	got, ok := s.Get(a.ID)
	require.True(t, ok)
	assert.Equal(t, 99.0, got.X)
	assert.Equal(t, 50.0, got.Y, "unpatched fields stay put")
	assert.Equal(t, "#ff0000", got.Color)

	order := s.Elements()
	assert.Equal(t, a.ID, order[0].ID)
	assert.Equal(t, b.ID, order[1].ID)

	assert.False(t, s.Update("el-missing", Patch{X: Float(1)}), "unknown id is a no-op")
}

func TestDeleteReleasesEphemeralExactlyOnce(t *testing.T) {
	reg := blob.NewRegistry()
	j := &countingJanitor{blobs: reg}
	s := NewStore(j)

	ref := reg.Create([]byte("photo"))
	el := &Element{ID: NewElementID(), Type: TypeImage, Value: ref, Width: 100, Height: 100}
	s.Add(el)

	require.True(t, s.Delete(el.ID))
	assert.False(t, s.Delete(el.ID), "second delete finds nothing")
	assert.Equal(t, 1, reg.ReleaseCount(ref))
	assert.Empty(t, j.remote)
}

func TestDeleteDurableImageRequestsRemoteCleanup(t *testing.T) {
	j := &countingJanitor{}
	s := NewStore(j)

	url := "https://storage.googleapis.com/printcraft/designs/abc.jpg"
	el := &Element{ID: NewElementID(), Type: TypeImage, Value: url, Width: 100, Height: 100}
	s.Add(el)

	require.True(t, s.Delete(el.ID))
	assert.Equal(t, []string{url}, j.remote)
	assert.Empty(t, j.released)
}

func TestDeleteSelectedClearsSelection(t *testing.T) {
	s := NewStore(nil)
	el := newTextElement("bye")
	s.Add(el)
	require.Equal(t, el.ID, s.SelectedID())

	s.Delete(el.ID)
	assert.Equal(t, "", s.SelectedID())
}

func TestPatchUsesWireKeys(t *testing.T) {
	s := NewStore(nil)
	el := newTextElement("hello")
	s.Add(el)

	// patches arrive straight off the websocket with the same keys the
	// elements are serialized with
	var p Patch
	require.NoError(t, json.Unmarshal([]byte(`{"value":"bye","fontSize":18,"x":10}`), &p))
	require.True(t, s.Update(el.ID, p))

	got, ok := s.Get(el.ID)
	require.True(t, ok)
	assert.Equal(t, "bye", got.Value)
	assert.Equal(t, 18.0, got.FontSize)
	assert.Equal(t, 10.0, got.X)

	out, err := json.Marshal(Patch{Value: String("x"), FontSize: Float(12)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"value":"x","fontSize":12}`, string(out))
}

func TestClearSkipsJanitor(t *testing.T) {
	j := &countingJanitor{}
	s := NewStore(j)
	s.Add(newTextElement("a"))
	url := "https://storage.googleapis.com/printcraft/designs/keep.jpg"
	s.Add(&Element{ID: NewElementID(), Type: TypeImage, Value: url, Width: 100, Height: 100})

	removed := s.Clear()
	assert.Len(t, removed, 2)
	assert.Empty(t, s.Elements())
	assert.Equal(t, "", s.SelectedID())
	assert.Empty(t, j.released, "bulk replace decides cleanup itself")
	assert.Empty(t, j.remote)
}

func TestSelectIgnoresUnknownID(t *testing.T) {
	s := NewStore(nil)
	el := newTextElement("x")
	s.Add(el)

	s.Select("el-nope")
	assert.Equal(t, el.ID, s.SelectedID())

	s.Select("")
	assert.Equal(t, "", s.SelectedID())
}
