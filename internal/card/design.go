package card

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// BackgroundKind selects how the card background is filled.
type BackgroundKind string

const (
	BackgroundGradient BackgroundKind = "gradient"
	BackgroundSolid    BackgroundKind = "solid"
	BackgroundImage    BackgroundKind = "image"
)

// ElementKind identifies the visual unit type of an element.
// Only text and image are painted; the others are reserved and skipped by renderers.
type ElementKind string

const (
	KindText    ElementKind = "text"
	KindImage   ElementKind = "image"
	KindLogo    ElementKind = "logo"
	KindQR      ElementKind = "qr"
	KindBarcode ElementKind = "barcode"
)

// Painted reports whether renderers know how to draw the kind.
func (k ElementKind) Painted() bool {
	return k == KindText || k == KindImage
}

// Length units accepted in TemplateDesign.Units.
const (
	UnitMillimeter = "mm"
	UnitInch       = "in"
	UnitPoint      = "pt"
)

// Style defaults applied when a field is absent.
const (
	DefaultFontSize   = 10.0
	DefaultFontFamily = "Inter"
	DefaultTextColor  = "#000000"
	DefaultFontWeight = "normal"
	DefaultTextAlign  = "left"
)

// Background describes the card fill.
type Background struct {
	Kind  BackgroundKind `json:"type" yaml:"type"`
	Value string         `json:"value" yaml:"value"`
}

// Dimensions is the physical card size.
type Dimensions struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// AspectRatio returns width / height.
func (d Dimensions) AspectRatio() float64 {
	return d.Width / d.Height
}

// Point is a top-left anchored position.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Size is an element box size.
type Size struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
}

// Style holds optional font attributes. Zero values mean "use the default".
type Style struct {
	FontSize   float64 `json:"fontSize,omitempty" yaml:"fontSize,omitempty"`
	FontFamily string  `json:"fontFamily,omitempty" yaml:"fontFamily,omitempty"`
	Color      string  `json:"color,omitempty" yaml:"color,omitempty"`
	FontWeight string  `json:"fontWeight,omitempty" yaml:"fontWeight,omitempty"`
	TextAlign  string  `json:"textAlign,omitempty" yaml:"textAlign,omitempty"`
}

// UnmarshalJSON accepts fontSize/fontWeight as either numbers or strings, as saved by the designer.
func (s *Style) UnmarshalJSON(data []byte) error {
	var raw struct {
		FontSize   json.RawMessage `json:"fontSize"`
		FontFamily string          `json:"fontFamily"`
		Color      string          `json:"color"`
		FontWeight json.RawMessage `json:"fontWeight"`
		TextAlign  string          `json:"textAlign"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	size, err := looseNumber(raw.FontSize)
	if err != nil {
		return fmt.Errorf("fontSize: %w", err)
	}
	weight, err := looseString(raw.FontWeight)
	if err != nil {
		return fmt.Errorf("fontWeight: %w", err)
	}
	*s = Style{
		FontSize:   size,
		FontFamily: raw.FontFamily,
		Color:      raw.Color,
		FontWeight: weight,
		TextAlign:  raw.TextAlign,
	}
	return nil
}

// WithDefaults fills every empty field. textColor replaces DefaultTextColor when non-empty.
func (s Style) WithDefaults(textColor string) Style {
	if s.FontSize <= 0 {
		s.FontSize = DefaultFontSize
	}
	if strings.TrimSpace(s.FontFamily) == "" {
		s.FontFamily = DefaultFontFamily
	}
	if strings.TrimSpace(s.Color) == "" {
		s.Color = textColor
		if s.Color == "" {
			s.Color = DefaultTextColor
		}
	}
	if strings.TrimSpace(s.FontWeight) == "" {
		s.FontWeight = DefaultFontWeight
	}
	if strings.TrimSpace(s.TextAlign) == "" {
		s.TextAlign = DefaultTextAlign
	}
	return s
}

// IsBold reports whether the weight selects a bold face ("bold", "bolder" or a numeric weight of 600+).
func (s Style) IsBold() bool {
	w := strings.ToLower(strings.TrimSpace(s.FontWeight))
	switch w {
	case "bold", "bolder":
		return true
	}
	if n, err := strconv.Atoi(w); err == nil {
		return n >= 600
	}
	return false
}

// Element is one positioned visual unit within a template.
type Element struct {
	ID       string      `json:"id" yaml:"id"`
	Kind     ElementKind `json:"type" yaml:"type"`
	Position Point       `json:"position" yaml:"position"`
	Size     Size        `json:"size" yaml:"size"`
	Content  string      `json:"content" yaml:"content"`
	Style    Style       `json:"style,omitempty" yaml:"style,omitempty"`
}

// TemplateDesign is the declarative card layout shared by every renderer.
type TemplateDesign struct {
	Units      string     `json:"units,omitempty" yaml:"units,omitempty"`
	Background Background `json:"background" yaml:"background"`
	Dimensions Dimensions `json:"dimensions" yaml:"dimensions"`
	Elements   []Element  `json:"elements" yaml:"elements"`
}

// Clone returns a deep copy so callers can edit without aliasing the element slice.
func (d TemplateDesign) Clone() TemplateDesign {
	out := d
	out.Elements = append([]Element(nil), d.Elements...)
	return out
}

// Element returns the element with the given id.
func (d TemplateDesign) Element(id string) (Element, int, bool) {
	for i, el := range d.Elements {
		if el.ID == id {
			return el, i, true
		}
	}
	return Element{}, -1, false
}

// Parse decodes a stored design, converts it to millimetres and validates it.
func Parse(data []byte) (TemplateDesign, error) {
	var d TemplateDesign
	if err := json.Unmarshal(data, &d); err != nil {
		return TemplateDesign{}, &ConfigurationError{Field: "design", Reason: err.Error()}
	}
	return Prepare(d)
}

// Prepare normalizes units and validates an already decoded design.
func Prepare(d TemplateDesign) (TemplateDesign, error) {
	n, err := Normalize(d)
	if err != nil {
		return TemplateDesign{}, err
	}
	if err := Validate(n); err != nil {
		return TemplateDesign{}, err
	}
	return n, nil
}

// Normalize converts every length to millimetres. The returned design has Units "mm".
func Normalize(d TemplateDesign) (TemplateDesign, error) {
	factor, err := unitFactor(d.Units)
	if err != nil {
		return TemplateDesign{}, err
	}
	out := d.Clone()
	out.Units = UnitMillimeter
	if factor == 1 {
		return out, nil
	}
	out.Dimensions.Width *= factor
	out.Dimensions.Height *= factor
	for i := range out.Elements {
		el := &out.Elements[i]
		el.Position.X *= factor
		el.Position.Y *= factor
		el.Size.Width *= factor
		el.Size.Height *= factor
		el.Style.FontSize *= factor
	}
	return out, nil
}

func unitFactor(unit string) (float64, error) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "", UnitMillimeter:
		return 1, nil
	case UnitInch:
		return 25.4, nil
	case UnitPoint:
		return 25.4 / 72, nil
	default:
		return 0, &ConfigurationError{Field: "units", Reason: fmt.Sprintf("unsupported unit %q", unit)}
	}
}

// PointsToMM converts a typographic point size to millimetres.
func PointsToMM(pt float64) float64 {
	return pt * 25.4 / 72
}

// MMToPoints converts millimetres to typographic points.
func MMToPoints(mm float64) float64 {
	return mm * 72 / 25.4
}

func looseNumber(raw json.RawMessage) (float64, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, err
	}
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "mm"))
	if s == "" {
		return 0, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) {
		return 0, fmt.Errorf("invalid number %q", s)
	}
	return f, nil
}

func looseString(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", err
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}
