package card

import (
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"
)

// RGB is an opaque 8-bit colour.
type RGB struct {
	R, G, B uint8
}

var namedColors = map[string]RGB{
	"black": {0, 0, 0},
	"white": {255, 255, 255},
}

// ParseColor parses #rgb, #rrggbb (the leading '#' is optional) or the names black/white.
func ParseColor(s string) (RGB, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if c, ok := namedColors[v]; ok {
		return c, nil
	}
	v = strings.TrimPrefix(v, "#")
	switch len(v) {
	case 3:
		v = string([]byte{v[0], v[0], v[1], v[1], v[2], v[2]})
	case 6:
	default:
		return RGB{}, fmt.Errorf("unsupported colour %q", s)
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return RGB{}, fmt.Errorf("unsupported colour %q", s)
	}
	return RGB{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n)}, nil
}

// MustParseColor is ParseColor for compile-time constants.
func MustParseColor(s string) RGB {
	c, err := ParseColor(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Hex formats the colour as #rrggbb.
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// Gray returns the luminance of c as a neutral colour.
func (c RGB) Gray() RGB {
	y := 0.299*float64(c.R) + 0.587*float64(c.G) + 0.114*float64(c.B)
	v := uint8(math.Round(y))
	return RGB{R: v, G: v, B: v}
}

// NRGBA converts to the image/color model.
func (c RGB) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}

// Ints returns the components as ints for drawing APIs.
func (c RGB) Ints() (int, int, int) {
	return int(c.R), int(c.G), int(c.B)
}
