package broker

import (
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryPopsHighestCapability(t *testing.T) {
	r := NewRegistry()
	r.Admit([]byte("a"), 3)
	r.Admit([]byte("b"), 9)
	r.Admit([]byte("c"), 5)

	var order []string
	for r.Len() > 0 {
		w, ok := r.PopBest()
		require.True(t, ok)
		order = append(order, string(w.Identity))
	}
	assert.Equal(t, []string{"b", "c", "a"}, order)

	_, ok := r.PopBest()
	assert.False(t, ok)
}

func TestRegistryTieBreakLowestIdentity(t *testing.T) {
	for run := 0; run < 20; run++ {
		r := NewRegistry()
		ids := []string{"B", "A", "C"}
		rand.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })

		for _, id := range ids {
			r.Admit([]byte(id), 5)
		}

		w, ok := r.PopBest()
		require.True(t, ok)
		assert.Equal(t, "A", string(w.Identity))
	}
}

func TestRegistryTieBreakIsByteOrder(t *testing.T) {
	r := NewRegistry()
	r.Admit([]byte{0x01, 0xff}, 1)
	r.Admit([]byte{0x01}, 1)
	r.Admit([]byte{0x00, 0xff, 0xff}, 1)

	w, _ := r.PopBest()
	assert.Equal(t, []byte{0x00, 0xff, 0xff}, w.Identity)
	w, _ = r.PopBest()
	assert.Equal(t, []byte{0x01}, w.Identity)
}

func TestRegistryReadmitReorders(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Admit([]byte("a"), 10))
	assert.True(t, r.Admit([]byte("b"), 5))

	// a re-announces with a lower capability: no duplicate, new rank
	assert.False(t, r.Admit([]byte("a"), 1))
	assert.Equal(t, 2, r.Len())

	k, ok := r.Capability([]byte("a"))
	assert.True(t, ok)
	assert.Equal(t, int64(1), k)

	w, _ := r.PopBest()
	assert.Equal(t, "b", string(w.Identity))
	w, _ = r.PopBest()
	assert.Equal(t, "a", string(w.Identity))
}

func TestRegistryRemove(t *testing.T) {
	r := NewRegistry()
	r.Admit([]byte("a"), 1)
	r.Admit([]byte("b"), 2)
	r.Admit([]byte("c"), 3)

	assert.True(t, r.Remove([]byte("c")))
	assert.False(t, r.Remove([]byte("c")))
	assert.False(t, r.Contains([]byte("c")))
	assert.True(t, r.Contains([]byte("a")))

	w, ok := r.Peek()
	require.True(t, ok)
	assert.Equal(t, "b", string(w.Identity))
	assert.Equal(t, 2, r.Len())
}

func TestRegistryCopiesIdentity(t *testing.T) {
	r := NewRegistry()
	id := []byte("abc")
	r.Admit(id, 1)
	id[0] = 'x'

	assert.True(t, r.Contains([]byte("abc")))
	w, _ := r.PopBest()
	assert.Equal(t, "abc", string(w.Identity))
}

// Random admits, removals and pops, checked against sorting all registered workers.
func TestRegistryMatchesSortedModel(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	r := NewRegistry()
	model := map[string]int64{}

	for i := 0; i < 5000; i++ {
		id := fmt.Sprintf("w%02d", rnd.Intn(40))

		switch op := rnd.Intn(10); {
		case op < 5:
			k := int64(rnd.Intn(11) - 2)
			r.Admit([]byte(id), k)
			model[id] = k
		case op < 7:
			_, inModel := model[id]
			assert.Equal(t, inModel, r.Remove([]byte(id)))
			delete(model, id)
		default:
			w, ok := r.PopBest()
			if len(model) == 0 {
				assert.False(t, ok)
				continue
			}
			require.True(t, ok)

			want := bestOf(model)
			assert.Equal(t, want, string(w.Identity))
			assert.Equal(t, model[want], w.Capability)
			delete(model, want)
		}
		require.Equal(t, len(model), r.Len())
	}
}

func bestOf(model map[string]int64) string {
	handles := make([]WorkerHandle, 0, len(model))
	for id, k := range model {
		handles = append(handles, WorkerHandle{Identity: []byte(id), Capability: k})
	}
	sort.Slice(handles, func(i, j int) bool { return ranksBefore(handles[i], handles[j]) })
	return string(handles[0].Identity)
}

// Admit and pop a worker while 1000 others are registered
func BenchmarkRegistry(b *testing.B) {
	r := NewRegistry()
	for i := 0; i < 1000; i++ {
		r.Admit([]byte(fmt.Sprintf("worker-%d", i)), int64(i%10))
	}

	for i := 0; i < b.N; i++ {
		w, _ := r.PopBest()
		r.Admit(w.Identity, int64(i%10))
	}
}
