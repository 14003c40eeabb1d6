package fractal

import (
	"math"
	"math/cmplx"
)

const ITERATIONS = 255

// Color of points inside the set (opaque orange).
const INSIDE int32 = -14336 // 0xffffc800

/*
Compute the tile described by rq: for every pixel the escape time of the Mandelbrot iteration,
mapped to a color. The complex plane is scaled so that the set fills the image, with the origin at
(3/4 width, 1/2 height).

rq must be valid (see TileRequest.Validate()).
*/
func Compute(rq *TileRequest) *TileReply {
	x0 := float64(3 * rq.ImgWidth / 4)
	y0 := float64(rq.ImgHeight / 2)
	scale := float64(rq.ImgWidth) * 0.47

	rp := &TileReply{XBegin: rq.XBegin, XEnd: rq.XEnd, YBegin: rq.YBegin, YEnd: rq.YEnd}
	rp.Columns = make([]*Column, 0, rq.XEnd-rq.XBegin)

	for i := rq.XBegin; i < rq.XEnd; i++ {
		col := &Column{Values: make([]int32, 0, rq.YEnd-rq.YBegin)}

		for j := rq.YBegin; j < rq.YEnd; j++ {
			c := complex((float64(i)-x0)/scale, (float64(j)-y0)/scale)
			col.Values = append(col.Values, pointColor(c))
		}
		rp.Columns = append(rp.Columns, col)
	}
	return rp
}

func pointColor(c complex128) int32 {
	z := c
	for n := ITERATIONS; n > 0; n-- {
		if cmplx.Abs(z) > 2 {
			return hsbToRGB(float32(n)/ITERATIONS, 0.5, 1)
		}
		z = z*z + c
	}
	return INSIDE
}

// 0xAARRGGBB with full opacity, for hue, saturation and brightness in [0, 1].
func hsbToRGB(hue, saturation, brightness float32) int32 {
	var r, g, b int32

	if saturation == 0 {
		r = int32(brightness*255 + 0.5)
		g, b = r, r
	} else {
		h := (hue - float32(math.Floor(float64(hue)))) * 6
		f := h - float32(math.Floor(float64(h)))
		p := brightness * (1 - saturation)
		q := brightness * (1 - saturation*f)
		t := brightness * (1 - saturation*(1-f))

		scale := func(v float32) int32 { return int32(v*255 + 0.5) }

		switch int(h) {
		case 0:
			r, g, b = scale(brightness), scale(t), scale(p)
		case 1:
			r, g, b = scale(q), scale(brightness), scale(p)
		case 2:
			r, g, b = scale(p), scale(brightness), scale(t)
		case 3:
			r, g, b = scale(p), scale(q), scale(brightness)
		case 4:
			r, g, b = scale(t), scale(p), scale(brightness)
		case 5:
			r, g, b = scale(brightness), scale(p), scale(q)
		}
	}
	return int32(uint32(0xff000000) | uint32(r)<<16 | uint32(g)<<8 | uint32(b))
}
