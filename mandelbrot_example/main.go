/*
Render a Mandelbrot image with a broker and a pool of workers of random capability, all in one
process:

	$ mandelbrot_example -size 600 -workers 20 -out mandelbrot.png
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/client"
	"github.com/dermesser/lbbroker/fractal"
	"github.com/dermesser/lbbroker/log"
	"github.com/dermesser/lbbroker/worker"
)

func main() {
	var size, nworkers, tiles, parallel int
	var out, codecName, frontend, backend string
	var debug bool

	flag.IntVar(&size, "size", 600, "Width and height of the image")
	flag.IntVar(&nworkers, "workers", 10, "Number of workers")
	flag.IntVar(&tiles, "tiles", 0, "Number of tiles (default: one per column)")
	flag.IntVar(&parallel, "parallel", 16, "Requests in flight at once")
	flag.StringVar(&out, "out", "mandelbrot.png", "Output file")
	flag.StringVar(&codecName, "codec", "protobuf", "protobuf or msgpack")
	flag.StringVar(&frontend, "frontend", "inproc://mandelbrot-frontend", "Broker frontend")
	flag.StringVar(&backend, "backend", "inproc://mandelbrot-backend", "Broker backend")
	flag.BoolVar(&debug, "debug", false, "Log every request")

	flag.Parse()

	if debug {
		log.SetLoglevel(log.LOGLEVEL_DEBUG)
	}
	if tiles == 0 {
		tiles = size
	}

	codec, err := fractal.CodecByName(codecName)

	if err != nil {
		fmt.Println(err.Error())
		return
	}

	b, err := broker.NewBroker(frontend, backend)

	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := b.Run(ctx); err != nil {
			fmt.Println("Broker stopped:", err.Error())
		}
	}()

	for i := 0; i < nworkers; i++ {
		w, err := worker.NewWorker(b.BackendEndpoint(), int64(rand.Intn(10)+1))

		if err != nil {
			fmt.Println(err.Error())
			cancel()
			wg.Wait()
			return
		}
		w.SetIdentity(fmt.Sprintf("worker-%02d", i))

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.Close()
			w.Run(ctx, fractal.Handler(codec))
		}()
	}

	cc := client.NewConnCache("mandelbrot")
	cc.SetParameters(10*time.Second, 2)

	before := time.Now()
	img, err := fractal.Render(cc, client.URL(b.FrontendEndpoint()), codec, size, size, tiles, parallel)
	took := time.Since(before)

	cc.CloseAll()
	cancel()
	wg.Wait()

	if err != nil {
		fmt.Println("Rendering failed:", err.Error())
		return
	}

	st := b.Stats()
	fmt.Printf("Rendered %dx%d in %d tiles in %s (%d dispatches, %d replies)\n", size, size, tiles, took, st.Dispatches, st.Replies)

	f, err := os.Create(out)

	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer f.Close()

	if err = img.WritePNG(f); err != nil {
		fmt.Println(err.Error())
		return
	}
	fmt.Println("Wrote", out)
}
