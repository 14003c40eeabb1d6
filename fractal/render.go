package fractal

import (
	"fmt"
	"sync"

	"github.com/dermesser/lbbroker/client"
	"github.com/dermesser/lbbroker/log"
	"github.com/dermesser/lbbroker/worker"
)

// A worker handler computing tiles. Requests that can't be decoded or are invalid get an empty reply.
func Handler(codec Codec) worker.Handler {
	return func(request []byte) []byte {
		rq, err := codec.DecodeRequest(request)

		if err != nil {
			log.LB_log(log.LOGLEVEL_WARNINGS, "Could not decode tile request:", err.Error())
			return nil
		}
		if err = rq.Validate(); err != nil {
			log.LB_log(log.LOGLEVEL_WARNINGS, "Invalid tile request:", err.Error())
			return nil
		}

		reply, err := codec.EncodeReply(Compute(rq))

		if err != nil {
			log.LB_log(log.LOGLEVEL_ERRORS, "Could not encode tile reply:", err.Error())
			return nil
		}
		return reply
	}
}

/*
Render a width x height image in the given number of tiles, with up to parallel requests in flight
at once. Each in-flight request uses its own client from cc.

Returns the first error that occurred; the image is then incomplete.
*/
func Render(cc *client.ConnectionCache, addr client.PeerAddress, codec Codec, width, height, tiles, parallel int) (*Image, error) {
	rqs, err := Split(width, height, tiles)

	if err != nil {
		return nil, err
	}
	if parallel < 1 {
		parallel = 1
	}

	img := NewImage(width, height)
	work := make(chan *TileRequest)
	errs := make(chan error, len(rqs))

	var wg sync.WaitGroup

	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rq := range work {
				if err := renderTile(cc, addr, codec, img, rq); err != nil {
					errs <- err
				}
			}
		}()
	}

	for _, rq := range rqs {
		work <- rq
	}
	close(work)
	wg.Wait()
	close(errs)

	if err, ok := <-errs; ok {
		return img, err
	}
	return img, nil
}

func renderTile(cc *client.ConnectionCache, addr client.PeerAddress, codec Codec, img *Image, rq *TileRequest) error {
	cl, err := cc.Connect(addr)

	if err != nil {
		return err
	}
	defer cc.Return(&cl)

	payload, err := codec.EncodeRequest(rq)

	if err != nil {
		return err
	}

	data, err := cl.Request(payload)

	if err != nil {
		return fmt.Errorf("tile x=[%d,%d): %w", rq.XBegin, rq.XEnd, err)
	}

	rp, err := codec.DecodeReply(data)

	if err != nil {
		return fmt.Errorf("tile x=[%d,%d): %w", rq.XBegin, rq.XEnd, err)
	}

	return img.Apply(rp)
}
