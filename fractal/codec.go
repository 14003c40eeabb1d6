package fractal

import (
	"fmt"

	pb "github.com/gogo/protobuf/proto"
	"github.com/vmihailenco/msgpack/v5"
)

// How tile messages travel as request and reply payloads. Workers and clients must agree on it.
type Codec interface {
	Name() string
	EncodeRequest(*TileRequest) ([]byte, error)
	DecodeRequest([]byte) (*TileRequest, error)
	EncodeReply(*TileReply) ([]byte, error)
	DecodeReply([]byte) (*TileReply, error)
}

type ProtoCodec struct{}

func (ProtoCodec) Name() string { return "protobuf" }

func (ProtoCodec) EncodeRequest(rq *TileRequest) ([]byte, error) {
	return pb.Marshal(rq)
}

func (ProtoCodec) DecodeRequest(data []byte) (*TileRequest, error) {
	rq := new(TileRequest)
	if err := pb.Unmarshal(data, rq); err != nil {
		return nil, err
	}
	return rq, nil
}

func (ProtoCodec) EncodeReply(rp *TileReply) ([]byte, error) {
	return pb.Marshal(rp)
}

func (ProtoCodec) DecodeReply(data []byte) (*TileReply, error) {
	rp := new(TileReply)
	if err := pb.Unmarshal(data, rp); err != nil {
		return nil, err
	}
	return rp, nil
}

type MsgpackCodec struct{}

func (MsgpackCodec) Name() string { return "msgpack" }

func (MsgpackCodec) EncodeRequest(rq *TileRequest) ([]byte, error) {
	return msgpack.Marshal(rq)
}

func (MsgpackCodec) DecodeRequest(data []byte) (*TileRequest, error) {
	rq := new(TileRequest)
	if err := msgpack.Unmarshal(data, rq); err != nil {
		return nil, err
	}
	return rq, nil
}

func (MsgpackCodec) EncodeReply(rp *TileReply) ([]byte, error) {
	return msgpack.Marshal(rp)
}

func (MsgpackCodec) DecodeReply(data []byte) (*TileReply, error) {
	rp := new(TileReply)
	if err := msgpack.Unmarshal(data, rp); err != nil {
		return nil, err
	}
	return rp, nil
}

// "protobuf" (or "proto") or "msgpack".
func CodecByName(name string) (Codec, error) {
	switch name {
	case "protobuf", "proto":
		return ProtoCodec{}, nil
	case "msgpack":
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}
