package client

import (
	"container/list"
	"sync"
	"time"
)

/*
ConnectionCache is a pool of clients. Applications call Connect() and get, transparently,
either a cached client or a newly created one. After being finished with using the client,
the application should call Return() with it if it wants to use it later again.

Every client in the pool is a separate connection to the broker, so N goroutines using N
clients from the cache have N requests in flight at once.
*/
type ConnectionCache struct {
	// Map frontend URL -> clients
	cache       map[string]*list.List
	client_name string

	timeout time.Duration
	retries uint

	mx sync.Mutex
}

func NewConnCache(client_name string) *ConnectionCache {
	return &ConnectionCache{cache: make(map[string]*list.List),
		client_name: client_name, timeout: DEFAULT_TIMEOUT}
}

// Parameters of newly created clients.
func (cc *ConnectionCache) SetParameters(timeout time.Duration, retries uint) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	cc.timeout = timeout
	cc.retries = retries
}

/*
Get a client, either from the pool or a new one, depending on if there are clients
available.
*/
func (cc *ConnectionCache) Connect(addr PeerAddress) (*Client, error) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	cls, ok := cc.cache[addr.ToUrl()]

	if ok {
		if cls.Len() > 0 {
			cl := cls.Front().Value.(*Client)
			cls.Remove(cls.Front())
			return cl, nil
		}
	} else {
		cc.cache[addr.ToUrl()] = list.New()
	}

	new_cl, err := NewClient(cc.client_name, addr)

	if err != nil {
		return nil, err
	}

	new_cl.SetTimeout(cc.timeout)
	new_cl.SetRetries(cc.retries)

	return new_cl, nil
}

/*
Return a client into the pool. Argument is a pointer to a pointer to make sure that the client
is not used by the calling function after this call.
*/
func (cc *ConnectionCache) Return(clp **Client) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	cl := *clp
	*clp = nil

	key := cl.Peer().ToUrl()
	cls, ok := cc.cache[key]

	if !ok {
		// Happens when there was a garbage collection (CleanOld()) in between
		cls = list.New()
		cc.cache[key] = cls
	}

	cls.PushBack(cl)
}

// Number of idle clients in the pool.
func (cc *ConnectionCache) Len() int {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	n := 0
	for _, cls := range cc.cache {
		n += cls.Len()
	}
	return n
}

/*
Remove and close all clients from the pool that have been idle for longer than older_than. Also
cleans up empty cache entries.
*/
func (cc *ConnectionCache) CleanOld(older_than time.Duration) {
	cc.mx.Lock()
	defer cc.mx.Unlock()

	for h, cls := range cc.cache {
		for e := cls.Front(); e != nil; {
			next := e.Next()
			cl := e.Value.(*Client)

			if time.Since(cl.last_used) >= older_than {
				cl.Close()
				cls.Remove(e)
			}
			e = next
		}

		if cls.Len() == 0 {
			delete(cc.cache, h)
		}
	}
}

// Closes all clients
func (cc *ConnectionCache) CloseAll() {
	cc.CleanOld(0 * time.Second)
}
