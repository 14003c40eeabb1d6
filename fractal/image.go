package fractal

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
)

/*
Split a width x height image into tiles of full columns. All tiles are equally wide, except for
the last one, which also gets the remaining columns.
*/
func Split(width, height, tiles int) ([]*TileRequest, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("bad image size %dx%d", width, height)
	}
	if tiles < 1 || tiles > width {
		return nil, fmt.Errorf("can't split width %d into %d tiles", width, tiles)
	}

	portion := width / tiles
	rqs := make([]*TileRequest, 0, tiles)

	for i := 0; i < tiles; i++ {
		rq := &TileRequest{ImgWidth: int32(width), ImgHeight: int32(height),
			XBegin: int32(i * portion), XEnd: int32((i + 1) * portion), YBegin: 0, YEnd: int32(height)}

		if i == tiles-1 {
			rq.XEnd = int32(width)
		}
		rqs = append(rqs, rq)
	}
	return rqs, nil
}

// An image assembled from tile replies. Safe for concurrent use.
type Image struct {
	Width, Height int

	mx     sync.Mutex
	pixels []int32
	filled int
	set    []bool
}

func NewImage(width, height int) *Image {
	return &Image{Width: width, Height: height,
		pixels: make([]int32, width*height), set: make([]bool, width*height)}
}

// Paint a tile into the image. The tile must lie within the image and have a value for every pixel.
func (img *Image) Apply(rp *TileReply) error {
	if rp.XBegin < 0 || rp.XBegin >= rp.XEnd || int(rp.XEnd) > img.Width ||
		rp.YBegin < 0 || rp.YBegin >= rp.YEnd || int(rp.YEnd) > img.Height {
		return fmt.Errorf("tile x=[%d,%d) y=[%d,%d) is not within %dx%d", rp.XBegin, rp.XEnd, rp.YBegin, rp.YEnd, img.Width, img.Height)
	}
	if len(rp.Columns) != int(rp.XEnd-rp.XBegin) {
		return fmt.Errorf("tile x=[%d,%d) has %d columns", rp.XBegin, rp.XEnd, len(rp.Columns))
	}
	for i := range rp.Columns {
		if rp.Columns[i] == nil {
			return fmt.Errorf("column %d is missing", int(rp.XBegin)+i)
		}
		if len(rp.Columns[i].Values) != int(rp.YEnd-rp.YBegin) {
			return fmt.Errorf("column %d has %d values, want %d", int(rp.XBegin)+i, len(rp.Columns[i].Values), rp.YEnd-rp.YBegin)
		}
	}

	img.mx.Lock()
	defer img.mx.Unlock()

	for i, col := range rp.Columns {
		x := int(rp.XBegin) + i
		for j, v := range col.Values {
			p := (int(rp.YBegin)+j)*img.Width + x
			img.pixels[p] = v
			if !img.set[p] {
				img.set[p] = true
				img.filled++
			}
		}
	}
	return nil
}

// The 0xAARRGGBB color at (x, y); 0 if no tile covered it yet.
func (img *Image) At(x, y int) int32 {
	img.mx.Lock()
	defer img.mx.Unlock()
	return img.pixels[y*img.Width+x]
}

// Whether every pixel has been painted.
func (img *Image) Complete() bool {
	img.mx.Lock()
	defer img.mx.Unlock()
	return img.filled == len(img.pixels)
}

func (img *Image) RGBA() *image.RGBA {
	img.mx.Lock()
	defer img.mx.Unlock()

	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for p, v := range img.pixels {
		argb := uint32(v)
		out.SetRGBA(p%img.Width, p/img.Width, color.RGBA{
			R: uint8(argb >> 16), G: uint8(argb >> 8), B: uint8(argb), A: uint8(argb >> 24)})
	}
	return out
}

func (img *Image) WritePNG(w io.Writer) error {
	return png.Encode(w, img.RGBA())
}
