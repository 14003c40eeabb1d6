package fractal

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dermesser/lbbroker/broker"
	"github.com/dermesser/lbbroker/client"
	"github.com/dermesser/lbbroker/worker"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Starts a broker with workers computing tiles; all of it is stopped at the end of the test.
func startCluster(t *testing.T, codec Codec, capabilities ...int64) client.PeerAddress {
	t.Helper()

	id := uuid.NewString()
	b, err := broker.NewBroker("inproc://lbbroker-frontend-"+id, "inproc://lbbroker-backend-"+id)
	require.NoError(t, err)
	b.SetPollInterval(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, b.Run(ctx))
	}()

	for _, k := range capabilities {
		w, err := worker.NewWorker(b.BackendEndpoint(), k)
		require.NoError(t, err)
		w.SetPollInterval(10 * time.Millisecond)

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer w.Close()
			assert.NoError(t, w.Run(ctx, Handler(codec)))
		}()
	}

	t.Cleanup(func() {
		cancel()
		wg.Wait()
		b.Close()
	})
	return client.URL(b.FrontendEndpoint())
}

func TestRender(t *testing.T) {
	for _, codec := range []Codec{ProtoCodec{}, MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			addr := startCluster(t, codec, 1, 2, 3)

			cc := client.NewConnCache("render")
			cc.SetParameters(5*time.Second, 1)
			defer cc.CloseAll()

			img, err := Render(cc, addr, codec, 30, 20, 6, 3)
			require.NoError(t, err)
			assert.True(t, img.Complete())

			whole := Compute(&TileRequest{ImgWidth: 30, ImgHeight: 20, XEnd: 30, YEnd: 20})
			assert.Equal(t, whole.Columns[17].Values[9], img.At(17, 9))
		})
	}
}

func TestRenderRejectsBadSplit(t *testing.T) {
	_, err := Render(client.NewConnCache("render"), client.URL("inproc://nowhere"), ProtoCodec{}, 10, 10, 20, 1)
	assert.Error(t, err)
}

func TestRequestProto(t *testing.T) {
	addr := startCluster(t, ProtoCodec{}, 1)

	cl, err := client.NewClient("proto", addr)
	require.NoError(t, err)
	defer cl.Close()
	cl.SetTimeout(2 * time.Second)

	rq := &TileRequest{ImgWidth: 16, ImgHeight: 16, XBegin: 4, XEnd: 8, YBegin: 0, YEnd: 16}
	rp := new(TileReply)
	require.NoError(t, cl.RequestProto(rq, rp))

	assert.Equal(t, Compute(rq), rp)
}

// The msgpack reply of a worker can't be read as protobuf.
func TestCodecMismatch(t *testing.T) {
	addr := startCluster(t, ProtoCodec{}, 1)

	cl, err := client.NewClient("proto", addr)
	require.NoError(t, err)
	defer cl.Close()
	cl.SetTimeout(2 * time.Second)

	payload, err := MsgpackCodec{}.EncodeRequest(&TileRequest{ImgWidth: 4, ImgHeight: 4, XEnd: 4, YEnd: 4})
	require.NoError(t, err)

	// an undecodable request gets an empty reply, which is an empty tile
	data, err := cl.Request(payload)
	require.NoError(t, err)
	rp, err := ProtoCodec{}.DecodeReply(data)
	require.NoError(t, err)
	assert.Error(t, NewImage(4, 4).Apply(rp))
}
