/*
Use either as

	$ echo -broker

or

	$ echo -worker -capability 5

or

	$ echo -cl
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/client"
	"github.com/dermesser/lbbroker/log"
	"github.com/dermesser/lbbroker/worker"
)

const (
	FRONTEND = "tcp://localhost:9000"
	BACKEND  = "tcp://localhost:9001"
)

func echoHandler(i []byte) []byte {
	fmt.Println("Called echoHandler:", string(i), len(i))
	return i
}

func runBroker(ctx context.Context) {
	b, err := broker.NewBroker(FRONTEND, BACKEND)

	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer b.Close()

	if err = b.Run(ctx); err != nil {
		fmt.Println(err.Error())
	}
	fmt.Printf("%+v\n", b.Stats())
}

func runWorker(ctx context.Context, capability int64) {
	w, err := worker.NewWorker(BACKEND, capability)

	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer w.Close()

	if err = w.Run(ctx, echoHandler); err != nil {
		fmt.Println(err.Error())
	}
}

func runClient(n int) {
	cl, err := client.NewAsyncClient("echo1_cl", client.Peer("localhost", 9000), uint(n))

	if err != nil {
		fmt.Println(err.Error())
		return
	}
	defer cl.Close()

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		cl.Request([]byte(fmt.Sprintf("helloworld %d", i)), func(resp []byte, err error) {
			defer wg.Done()

			if err != nil {
				fmt.Println(err.Error())
				return
			}
			fmt.Println("Received response:", string(resp), len(resp))
		})
	}
	wg.Wait()
}

func main() {

	var brk, wrk, cl, debug bool
	var capability int64
	var n int
	flag.BoolVar(&brk, "broker", false, "Specify if you want us to run as broker")
	flag.BoolVar(&wrk, "worker", false, "Specify if you want us to run as worker")
	flag.BoolVar(&cl, "cl", false, "Specify if you want us to run as client")
	flag.Int64Var(&capability, "capability", 1, "Capability of the worker")
	flag.IntVar(&n, "n", 3, "Number of requests sent by the client")
	flag.BoolVar(&debug, "debug", false, "Log everything")

	flag.Parse()

	chosen := 0
	for _, b := range []bool{brk, wrk, cl} {
		if b {
			chosen++
		}
	}
	if chosen != 1 {
		fmt.Println("Wrong combination: Use one of -broker, -worker or -cl")
		return
	}

	if debug {
		log.SetLoglevel(log.LOGLEVEL_DEBUG)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if brk {
		runBroker(ctx)
	}
	if wrk {
		runWorker(ctx, capability)
	}
	if cl {
		runClient(n)
	}
}
