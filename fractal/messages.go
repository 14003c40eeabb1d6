package fractal

import "fmt"

/*
Tile messages. gogo/protobuf marshals them by reflection from the struct tags, which
correspond to

	message TileRequest {
		int32 img_width = 1; int32 img_height = 2;
		int32 x_begin = 3; int32 x_end = 4; int32 y_begin = 5; int32 y_end = 6;
	}
	message TileReply {
		int32 x_begin = 1; int32 x_end = 2; int32 y_begin = 3; int32 y_end = 4;
		repeated Column columns = 5;
	}
	message Column { repeated int32 values = 1 [packed = true]; }
*/

// A rectangle [XBegin, XEnd) x [YBegin, YEnd) of an ImgWidth x ImgHeight image.
type TileRequest struct {
	ImgWidth  int32 `protobuf:"varint,1,opt,name=img_width,proto3" msgpack:"w"`
	ImgHeight int32 `protobuf:"varint,2,opt,name=img_height,proto3" msgpack:"h"`
	XBegin    int32 `protobuf:"varint,3,opt,name=x_begin,proto3" msgpack:"xb"`
	XEnd      int32 `protobuf:"varint,4,opt,name=x_end,proto3" msgpack:"xe"`
	YBegin    int32 `protobuf:"varint,5,opt,name=y_begin,proto3" msgpack:"yb"`
	YEnd      int32 `protobuf:"varint,6,opt,name=y_end,proto3" msgpack:"ye"`
}

// The pixels of one column of a tile, from YBegin to YEnd.
type Column struct {
	Values []int32 `protobuf:"varint,1,rep,packed,name=values,proto3" msgpack:"v"`
}

// The computed tile: one Column per x in [XBegin, XEnd). Values are 0xAARRGGBB colors.
type TileReply struct {
	XBegin  int32     `protobuf:"varint,1,opt,name=x_begin,proto3" msgpack:"xb"`
	XEnd    int32     `protobuf:"varint,2,opt,name=x_end,proto3" msgpack:"xe"`
	YBegin  int32     `protobuf:"varint,3,opt,name=y_begin,proto3" msgpack:"yb"`
	YEnd    int32     `protobuf:"varint,4,opt,name=y_end,proto3" msgpack:"ye"`
	Columns []*Column `protobuf:"bytes,5,rep,name=columns,proto3" msgpack:"c"`
}

// Checks that the tile is a non-empty part of the image.
func (m *TileRequest) Validate() error {
	if m.ImgWidth <= 0 || m.ImgHeight <= 0 {
		return fmt.Errorf("bad image size %dx%d", m.ImgWidth, m.ImgHeight)
	}
	if m.XBegin < 0 || m.XBegin >= m.XEnd || m.XEnd > m.ImgWidth {
		return fmt.Errorf("bad x range [%d, %d) for width %d", m.XBegin, m.XEnd, m.ImgWidth)
	}
	if m.YBegin < 0 || m.YBegin >= m.YEnd || m.YEnd > m.ImgHeight {
		return fmt.Errorf("bad y range [%d, %d) for height %d", m.YBegin, m.YEnd, m.ImgHeight)
	}
	return nil
}

func (m *TileRequest) Reset()      { *m = TileRequest{} }
func (*TileRequest) ProtoMessage() {}
func (m *TileRequest) String() string {
	return fmt.Sprintf("TileRequest{%dx%d x=[%d,%d) y=[%d,%d)}", m.ImgWidth, m.ImgHeight, m.XBegin, m.XEnd, m.YBegin, m.YEnd)
}

func (c *Column) Reset()      { *c = Column{} }
func (*Column) ProtoMessage() {}
func (c *Column) String() string {
	return fmt.Sprintf("Column{%d values}", len(c.Values))
}

func (m *TileReply) Reset()      { *m = TileReply{} }
func (*TileReply) ProtoMessage() {}
func (m *TileReply) String() string {
	return fmt.Sprintf("TileReply{x=[%d,%d) y=[%d,%d) %d columns}", m.XBegin, m.XEnd, m.YBegin, m.YEnd, len(m.Columns))
}
