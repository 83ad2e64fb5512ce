package canvas

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"idcard/internal/card"
)

var (
	// ErrElementNotFound is returned when an edit names an element id the design does not contain.
	ErrElementNotFound = errors.New("element not found")
	// ErrDuplicateElement is returned when AddElement would create a second element with the same id.
	ErrDuplicateElement = errors.New("duplicate element id")
)

// Editor operations never mutate their input; each returns a new design.

// MoveElement sets the top-left position of an element.
func MoveElement(d card.TemplateDesign, id string, pos card.Point) (card.TemplateDesign, error) {
	return edit(d, id, func(el *card.Element) error {
		if !finite(pos.X) || !finite(pos.Y) {
			return fmt.Errorf("move %q: position must be finite", id)
		}
		el.Position = pos
		return nil
	})
}

// ResizeElement sets the size of an element. Negative extents are clamped to zero.
func ResizeElement(d card.TemplateDesign, id string, size card.Size) (card.TemplateDesign, error) {
	return edit(d, id, func(el *card.Element) error {
		if !finite(size.Width) || !finite(size.Height) {
			return fmt.Errorf("resize %q: size must be finite", id)
		}
		el.Size = card.Size{Width: math.Max(size.Width, 0), Height: math.Max(size.Height, 0)}
		return nil
	})
}

// UpdateContent replaces the content of an element.
func UpdateContent(d card.TemplateDesign, id, content string) (card.TemplateDesign, error) {
	return edit(d, id, func(el *card.Element) error {
		el.Content = content
		return nil
	})
}

// StylePatch lists the style fields to change. Nil fields are left as they are.
type StylePatch struct {
	FontSize   *float64 `json:"fontSize,omitempty"`
	FontFamily *string  `json:"fontFamily,omitempty"`
	Color      *string  `json:"color,omitempty"`
	FontWeight *string  `json:"fontWeight,omitempty"`
	TextAlign  *string  `json:"textAlign,omitempty"`
}

// UpdateStyle merges patch into an element's style.
func UpdateStyle(d card.TemplateDesign, id string, patch StylePatch) (card.TemplateDesign, error) {
	return edit(d, id, func(el *card.Element) error {
		s := el.Style
		if patch.FontSize != nil {
			s.FontSize = *patch.FontSize
		}
		if patch.FontFamily != nil {
			s.FontFamily = *patch.FontFamily
		}
		if patch.Color != nil {
			if *patch.Color != "" {
				if _, err := card.ParseColor(*patch.Color); err != nil {
					return &card.ConfigurationError{Field: "style.color", Reason: err.Error()}
				}
			}
			s.Color = *patch.Color
		}
		if patch.FontWeight != nil {
			s.FontWeight = *patch.FontWeight
		}
		if patch.TextAlign != nil {
			s.TextAlign = *patch.TextAlign
		}
		el.Style = s
		return nil
	})
}

// AddElement appends el on top of every other element. An empty id is generated.
func AddElement(d card.TemplateDesign, el card.Element) (card.TemplateDesign, string, error) {
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	if _, _, ok := d.Element(el.ID); ok {
		return d, "", fmt.Errorf("%w: %q", ErrDuplicateElement, el.ID)
	}
	out := d.Clone()
	out.Elements = append(out.Elements, el)
	return out, el.ID, nil
}

// RemoveElement deletes an element.
func RemoveElement(d card.TemplateDesign, id string) (card.TemplateDesign, error) {
	_, i, ok := d.Element(id)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrElementNotFound, id)
	}
	out := d.Clone()
	out.Elements = append(out.Elements[:i], out.Elements[i+1:]...)
	return out, nil
}

// BringToFront moves an element to the end of the paint order.
func BringToFront(d card.TemplateDesign, id string) (card.TemplateDesign, error) {
	return reorder(d, id, true)
}

// SendToBack moves an element to the start of the paint order.
func SendToBack(d card.TemplateDesign, id string) (card.TemplateDesign, error) {
	return reorder(d, id, false)
}

// SetBackground replaces the card background after validating it.
func SetBackground(d card.TemplateDesign, bg card.Background) (card.TemplateDesign, error) {
	if err := card.ValidateBackground(bg); err != nil {
		return d, err
	}
	out := d.Clone()
	out.Background = bg
	return out, nil
}

func edit(d card.TemplateDesign, id string, fn func(*card.Element) error) (card.TemplateDesign, error) {
	_, i, ok := d.Element(id)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrElementNotFound, id)
	}
	out := d.Clone()
	if err := fn(&out.Elements[i]); err != nil {
		return d, err
	}
	return out, nil
}

func reorder(d card.TemplateDesign, id string, front bool) (card.TemplateDesign, error) {
	el, i, ok := d.Element(id)
	if !ok {
		return d, fmt.Errorf("%w: %q", ErrElementNotFound, id)
	}
	rest := make([]card.Element, 0, len(d.Elements))
	rest = append(rest, d.Elements[:i]...)
	rest = append(rest, d.Elements[i+1:]...)

	out := d.Clone()
	if front {
		out.Elements = append(rest, el)
	} else {
		out.Elements = append([]card.Element{el}, rest...)
	}
	return out, nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
