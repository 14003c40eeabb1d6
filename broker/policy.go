package broker

// The dispatch policy: the most capable eligible worker gets the next request.
// It only decides, it never talks to the network.
type dispatchPolicy struct {
	registry *Registry
}

func newDispatchPolicy() *dispatchPolicy {
	return &dispatchPolicy{registry: NewRegistry()}
}

// Make a worker eligible with the given capability. A worker that is already eligible keeps
// its place in the registry, but is re-ranked with the new capability.
func (p *dispatchPolicy) admitWorker(identity []byte, capability int64) {
	p.registry.Admit(identity, capability)
}

// Take the best worker out of the registry: highest capability, lowest identity among equals.
// ok is false if no worker is eligible.
func (p *dispatchPolicy) selectWorker() (w WorkerHandle, ok bool) {
	return p.registry.PopBest()
}

func (p *dispatchPolicy) available() int {
	return p.registry.Len()
}

// Forget a worker that turned out to be unreachable.
func (p *dispatchPolicy) discardWorker(identity []byte) {
	p.registry.Remove(identity)
}
