package layout

import (
	"errors"
	"fmt"
	"math"

	"idcard/internal/card"
)

// TargetKind names a renderer coordinate system.
type TargetKind string

const (
	// AbsoluteMM maps millimetres multiplied by Scale (interactive canvas).
	AbsoluteMM TargetKind = "absoluteMM"
	// PercentageOfContainer maps every box to percentages of the card (preview).
	PercentageOfContainer TargetKind = "percentageOfContainer"
	// DocumentUnits maps millimetres 1:1 onto a page sized to the card (print).
	DocumentUnits TargetKind = "documentUnits"
)

// ErrInvalidTarget is returned for an unknown target kind or a non-positive scale.
var ErrInvalidTarget = errors.New("invalid render target")

// RenderTarget describes the destination coordinate system.
type RenderTarget struct {
	Kind  TargetKind
	Scale float64
}

// Canvas returns an AbsoluteMM target with the given magnification.
func Canvas(scale float64) RenderTarget {
	return RenderTarget{Kind: AbsoluteMM, Scale: scale}
}

// Percentage returns a PercentageOfContainer target.
func Percentage() RenderTarget {
	return RenderTarget{Kind: PercentageOfContainer}
}

// Document returns a DocumentUnits target.
func Document() RenderTarget {
	return RenderTarget{Kind: DocumentUnits}
}

// Box is a rectangle in target units.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns X + Width.
func (b Box) Right() float64 { return b.X + b.Width }

// Bottom returns Y + Height.
func (b Box) Bottom() float64 { return b.Y + b.Height }

// Contains reports whether the point lies inside the box (edges inclusive).
func (b Box) Contains(x, y float64) bool {
	return x >= b.X && x <= b.Right() && y >= b.Y && y <= b.Bottom()
}

// ResolvedElement is an element with its geometry in target units.
type ResolvedElement struct {
	Index   int
	Element card.Element
	Box     Box
}

// Resolution is the output of ToRendererSpace.
// Card is the whole card in target units; AspectRatio is always width/height of the physical card,
// which a percentage container must adopt.
type Resolution struct {
	Target      RenderTarget
	Card        Box
	AspectRatio float64
	Elements    []ResolvedElement
}

// ToRendererSpace maps a millimetre design into target coordinates, preserving element order.
// Zero or negative dimensions are a configuration error.
func ToRendererSpace(design card.TemplateDesign, target RenderTarget) (Resolution, error) {
	dim := design.Dimensions
	if err := card.ValidateDimensions(dim); err != nil {
		return Resolution{}, err
	}

	var m mapping
	switch target.Kind {
	case AbsoluteMM:
		if !(target.Scale > 0) || math.IsInf(target.Scale, 0) {
			return Resolution{}, fmt.Errorf("%w: scale must be positive, got %v", ErrInvalidTarget, target.Scale)
		}
		m = mapping{sx: target.Scale, sy: target.Scale}
	case PercentageOfContainer:
		m = mapping{sx: 100 / dim.Width, sy: 100 / dim.Height}
	case DocumentUnits:
		m = mapping{sx: 1, sy: 1}
	default:
		return Resolution{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidTarget, target.Kind)
	}

	res := Resolution{
		Target:      target,
		Card:        m.box(0, 0, dim.Width, dim.Height),
		AspectRatio: dim.AspectRatio(),
		Elements:    make([]ResolvedElement, 0, len(design.Elements)),
	}
	for i, el := range design.Elements {
		res.Elements = append(res.Elements, ResolvedElement{
			Index:   i,
			Element: el,
			Box:     m.box(el.Position.X, el.Position.Y, el.Size.Width, el.Size.Height),
		})
	}
	return res, nil
}

// ScaleFontSize maps a millimetre font size into target units. Percentages are relative to the card height.
func ScaleFontSize(mm float64, dim card.Dimensions, target RenderTarget) float64 {
	switch target.Kind {
	case AbsoluteMM:
		return mm * target.Scale
	case PercentageOfContainer:
		return mm / dim.Height * 100
	default:
		return mm
	}
}

type mapping struct {
	sx, sy float64
}

func (m mapping) box(x, y, w, h float64) Box {
	return Box{X: x * m.sx, Y: y * m.sy, Width: w * m.sx, Height: h * m.sy}
}
