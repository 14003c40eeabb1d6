package broker

import (
	"bytes"
	"container/heap"
)

// WorkerHandle is a worker as seen by the broker: the identity ZeroMQ assigned to its connection
// and the capability it announced last. Higher capability is preferred.
type WorkerHandle struct {
	Identity   []byte
	Capability int64
}

// Registry is the set of workers that are eligible for a new request, ordered by capability.
// Among equal capabilities, the lowest identity (byte-wise) ranks first.
//
// A Registry is owned by exactly one goroutine; it does no locking.
type Registry struct {
	h workerHeap
}

func NewRegistry() *Registry {
	return &Registry{h: workerHeap{index: make(map[string]int)}}
}

func (r *Registry) Len() int {
	return len(r.h.items)
}

func (r *Registry) Contains(identity []byte) bool {
	_, ok := r.h.index[string(identity)]
	return ok
}

// Capability returns the capability a registered worker is ranked with.
func (r *Registry) Capability(identity []byte) (int64, bool) {
	if i, ok := r.h.index[string(identity)]; ok {
		return r.h.items[i].Capability, true
	}
	return 0, false
}

// Admit inserts a worker, or, if it is already registered, updates its capability and reorders it.
// Returns true if the worker was not registered before.
func (r *Registry) Admit(identity []byte, capability int64) bool {
	if i, ok := r.h.index[string(identity)]; ok {
		r.h.items[i].Capability = capability
		heap.Fix(&r.h, i)
		return false
	}

	id := make([]byte, len(identity))
	copy(id, identity)

	heap.Push(&r.h, WorkerHandle{Identity: id, Capability: capability})
	return true
}

// Peek returns the best worker without removing it.
func (r *Registry) Peek() (WorkerHandle, bool) {
	if len(r.h.items) == 0 {
		return WorkerHandle{}, false
	}
	return r.h.items[0], true
}

// PopBest removes and returns the worker with the highest capability.
func (r *Registry) PopBest() (WorkerHandle, bool) {
	if len(r.h.items) == 0 {
		return WorkerHandle{}, false
	}
	return heap.Pop(&r.h).(WorkerHandle), true
}

// Remove takes a worker out of the registry. Returns false if it wasn't registered.
func (r *Registry) Remove(identity []byte) bool {
	i, ok := r.h.index[string(identity)]
	if !ok {
		return false
	}
	heap.Remove(&r.h, i)
	return true
}

// Handles returns the registered workers in no particular order.
func (r *Registry) Handles() []WorkerHandle {
	handles := make([]WorkerHandle, len(r.h.items))
	copy(handles, r.h.items)
	return handles
}

// ranksBefore defines the registry order: capability descending, then identity ascending.
func ranksBefore(a, b WorkerHandle) bool {
	if a.Capability != b.Capability {
		return a.Capability > b.Capability
	}
	return bytes.Compare(a.Identity, b.Identity) < 0
}

// workerHeap implements heap.Interface and keeps an index identity -> position
// for removal and updates by identity.
type workerHeap struct {
	items []WorkerHandle
	index map[string]int
}

func (h *workerHeap) Len() int {
	return len(h.items)
}

func (h *workerHeap) Less(i, j int) bool {
	return ranksBefore(h.items[i], h.items[j])
}

func (h *workerHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.index[string(h.items[i].Identity)] = i
	h.index[string(h.items[j].Identity)] = j
}

func (h *workerHeap) Push(x interface{}) {
	w := x.(WorkerHandle)
	h.index[string(w.Identity)] = len(h.items)
	h.items = append(h.items, w)
}

func (h *workerHeap) Pop() interface{} {
	n := len(h.items)
	w := h.items[n-1]
	h.items[n-1] = WorkerHandle{}
	h.items = h.items[:n-1]
	delete(h.index, string(w.Identity))
	return w
}
