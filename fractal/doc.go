/*
Package fractal is the demonstration workload of lbbroker: a Mandelbrot image is split into tiles
of columns, workers compute tiles, and the client assembles the replies into an image.

Tile messages can be encoded as protocol buffers (ProtoCodec) or msgpack (MsgpackCodec).
*/
package fractal
