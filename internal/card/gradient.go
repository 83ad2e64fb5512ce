package card

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// GradientStop is one colour stop; Offset is in [0, 1].
type GradientStop struct {
	Color  RGB
	Offset float64
}

// LinearGradient is the parsed form of a CSS linear-gradient() value.
// Angle follows CSS: 0deg points up, angles grow clockwise.
type LinearGradient struct {
	Angle float64
	Stops []GradientStop
}

var sideAngles = map[string]float64{
	"to top":          0,
	"to top right":    45,
	"to right top":    45,
	"to right":        90,
	"to bottom right": 135,
	"to right bottom": 135,
	"to bottom":       180,
	"to bottom left":  225,
	"to left bottom":  225,
	"to left":         270,
	"to top left":     315,
	"to left top":     315,
}

// ParseLinearGradient parses linear-gradient(<angle>|to <side>, <colour> [<pct>%], ...).
// Colours must be hex or black/white; at least two stops are required.
func ParseLinearGradient(s string) (LinearGradient, error) {
	v := strings.TrimSpace(s)
	lower := strings.ToLower(v)
	if !strings.HasPrefix(lower, "linear-gradient(") || !strings.HasSuffix(v, ")") {
		return LinearGradient{}, fmt.Errorf("unsupported gradient %q", s)
	}
	inner := v[len("linear-gradient(") : len(v)-1]
	if strings.ContainsAny(inner, "()") {
		return LinearGradient{}, fmt.Errorf("unsupported gradient %q: only hex colours are allowed", s)
	}
	parts := strings.Split(inner, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}

	g := LinearGradient{Angle: 180}
	if angle, ok, err := parseGradientAngle(parts[0]); err != nil {
		return LinearGradient{}, err
	} else if ok {
		g.Angle = angle
		parts = parts[1:]
	}

	if len(parts) < 2 {
		return LinearGradient{}, fmt.Errorf("gradient %q needs at least two colour stops", s)
	}

	offsets := make([]float64, len(parts))
	known := make([]bool, len(parts))
	for i, p := range parts {
		fields := strings.Fields(p)
		if len(fields) == 0 || len(fields) > 2 {
			return LinearGradient{}, fmt.Errorf("invalid colour stop %q", p)
		}
		c, err := ParseColor(fields[0])
		if err != nil {
			return LinearGradient{}, err
		}
		g.Stops = append(g.Stops, GradientStop{Color: c})
		if len(fields) == 2 {
			pct := strings.TrimSuffix(fields[1], "%")
			if pct == fields[1] {
				return LinearGradient{}, fmt.Errorf("colour stop position %q must be a percentage", fields[1])
			}
			f, err := strconv.ParseFloat(pct, 64)
			if err != nil {
				return LinearGradient{}, fmt.Errorf("invalid colour stop position %q", fields[1])
			}
			offsets[i] = clamp01(f / 100)
			known[i] = true
		}
	}
	fillStopOffsets(offsets, known)
	for i := range g.Stops {
		g.Stops[i].Offset = offsets[i]
	}
	return g, nil
}

func parseGradientAngle(p string) (float64, bool, error) {
	lower := strings.Join(strings.Fields(strings.ToLower(p)), " ")
	if a, ok := sideAngles[lower]; ok {
		return a, true, nil
	}
	if strings.HasPrefix(lower, "to ") {
		return 0, false, fmt.Errorf("unsupported gradient direction %q", p)
	}
	for _, unit := range []struct {
		suffix string
		scale  float64
	}{{"deg", 1}, {"turn", 360}, {"rad", 180 / math.Pi}} {
		if !strings.HasSuffix(lower, unit.suffix) {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSuffix(lower, unit.suffix), 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid gradient angle %q", p)
		}
		return f * unit.scale, true, nil
	}
	return 0, false, nil
}

// fillStopOffsets applies the CSS rules: first defaults to 0, last to 1,
// unpositioned stops are spread evenly between their positioned neighbours,
// and positions never decrease.
func fillStopOffsets(offsets []float64, known []bool) {
	n := len(offsets)
	if !known[0] {
		offsets[0], known[0] = 0, true
	}
	if !known[n-1] {
		offsets[n-1], known[n-1] = 1, true
	}
	for i := 1; i < n; i++ {
		if known[i] && offsets[i] < offsets[i-1] {
			offsets[i] = offsets[i-1]
		}
	}
	for i := 1; i < n; {
		if known[i] {
			i++
			continue
		}
		j := i
		for !known[j] {
			j++
		}
		start, end := offsets[i-1], offsets[j]
		step := (end - start) / float64(j-i+1)
		for k := i; k < j; k++ {
			offsets[k] = start + step*float64(k-i+1)
			known[k] = true
		}
		i = j
	}
}

// CSS renders the gradient back to a canonical linear-gradient() value.
func (g LinearGradient) CSS() string {
	var b strings.Builder
	b.WriteString("linear-gradient(")
	b.WriteString(strconv.FormatFloat(g.Angle, 'f', -1, 64))
	b.WriteString("deg")
	for _, s := range g.Stops {
		b.WriteString(", ")
		b.WriteString(s.Color.Hex())
		b.WriteString(" ")
		b.WriteString(strconv.FormatFloat(s.Offset*100, 'f', -1, 64))
		b.WriteString("%")
	}
	b.WriteString(")")
	return b.String()
}

// Line returns the gradient line for a w×h box in y-down coordinates,
// from the 0% point to the 100% point, as CSS defines it.
func (g LinearGradient) Line(w, h float64) (x0, y0, x1, y1 float64) {
	rad := g.Angle * math.Pi / 180
	dx, dy := math.Sin(rad), -math.Cos(rad)
	half := (math.Abs(w*dx) + math.Abs(h*dy)) / 2
	cx, cy := w/2, h/2
	return cx - dx*half, cy - dy*half, cx + dx*half, cy + dy*half
}

// StopLine narrows Line to the segment between the first and last stop offsets.
func (g LinearGradient) StopLine(w, h float64) (x0, y0, x1, y1 float64) {
	ax, ay, bx, by := g.Line(w, h)
	first, last := 0.0, 1.0
	if len(g.Stops) > 0 {
		first, last = g.Stops[0].Offset, g.Stops[len(g.Stops)-1].Offset
	}
	return ax + (bx-ax)*first, ay + (by-ay)*first, ax + (bx-ax)*last, ay + (by-ay)*last
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
