// Package color provides 8-bit color representation and conversion helpers
// for the lighting engine.
package color

import "math"

// Color is an 8-bit RGB(W) color. W is only meaningful for fixtures with a
// dedicated white channel.
type Color struct {
	R, G, B byte
	W       *byte
}

// RGB constructs a Color with no white channel.
func RGB(r, g, b byte) Color {
	return Color{R: r, G: g, B: b}
}

// RGBW constructs a Color carrying a white channel value.
func RGBW(r, g, b, w byte) Color {
	return Color{R: r, G: g, B: b, W: &w}
}

// FromHSV converts HSV (h in [0,360), s and v in [0,1]) to an 8-bit RGB
// color using the standard sector-based conversion.
func FromHSV(h, s, v float64) Color {
	c := v * s
	x := c * (1 - math.Abs(math.Mod(h/60.0, 2)-1))
	m := v - c

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}

	return Color{
		R: to8(r + m),
		G: to8(g + m),
		B: to8(b + m),
	}
}

func to8(x float64) byte {
	return byte(x * 255)
}

// Lerp linearly interpolates between two colors in 8-bit space. t is not
// clamped: callers that extrapolate beyond [0,1] get extrapolated (and
// wrapped, per Go's byte conversion) results intentionally, mirroring the
// engine's HDR-headroom behavior for blend values above 1.0.
func Lerp(a, b Color, t float64) Color {
	out := Color{
		R: lerp8(a.R, b.R, t),
		G: lerp8(a.G, b.G, t),
		B: lerp8(a.B, b.B, t),
	}
	if a.W != nil || b.W != nil {
		aw, bw := byte(0), byte(0)
		if a.W != nil {
			aw = *a.W
		}
		if b.W != nil {
			bw = *b.W
		}
		w := lerp8(aw, bw, t)
		out.W = &w
	}
	return out
}

func lerp8(a, b byte, t float64) byte {
	v := float64(a) + (float64(b)-float64(a))*t
	return byte(int64(v))
}
