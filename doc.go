/*
Lbbroker is a load-balancing message broker on ZeroMQ. Clients send opaque requests to the
broker's frontend; workers connect to its backend, announce how capable they are and get each
request dispatched to the most capable worker that is idle at that moment.

The packages are:

	broker    the broker itself: frame codec, worker registry, dispatch policy, event loop
	worker    a library for writing workers (handshake, request/reply loop)
	client    a REQ client with timeouts, retries, an asynchronous variant and a connection cache
	fractal   a Mandelbrot renderer distributing image tiles over a broker
	log       the leveled logger used by all of the above

A worker's handshake is a single frame

	READY,<capability>

and every reply it sends carries its (possibly new) capability, so that a worker can change
its rank while running. Workers with equal capability are chosen in order of their identity.

Run a broker with cmd/lbbroker, or see echo_example and mandelbrot_example for complete
programs.
*/
package lbbroker
