package card

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks a millimetre-normalized design. Unknown element kinds are allowed.
func Validate(d TemplateDesign) error {
	if err := ValidateDimensions(d.Dimensions); err != nil {
		return err
	}
	if err := ValidateBackground(d.Background); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(d.Elements))
	for i, el := range d.Elements {
		field := fmt.Sprintf("elements[%d]", i)
		if strings.TrimSpace(el.ID) == "" {
			return configErrorf(field+".id", "element id is required")
		}
		if _, dup := seen[el.ID]; dup {
			return configErrorf(field+".id", "duplicate element id %q", el.ID)
		}
		seen[el.ID] = struct{}{}

		if !finite(el.Position.X) || !finite(el.Position.Y) {
			return configErrorf(field+".position", "position must be finite")
		}
		if !finite(el.Size.Width) || !finite(el.Size.Height) || el.Size.Width < 0 || el.Size.Height < 0 {
			return configErrorf(field+".size", "size must be finite and not negative")
		}
		if err := validateStyle(field+".style", el.Style); err != nil {
			return err
		}
	}
	return nil
}

// ValidateDimensions rejects zero, negative and non-finite card sizes.
func ValidateDimensions(dim Dimensions) error {
	if !finite(dim.Width) || dim.Width <= 0 {
		return configErrorf("dimensions.width", "must be greater than zero, got %v", dim.Width)
	}
	if !finite(dim.Height) || dim.Height <= 0 {
		return configErrorf("dimensions.height", "must be greater than zero, got %v", dim.Height)
	}
	return nil
}

// ValidateBackground checks that the value is usable for its kind.
func ValidateBackground(bg Background) error {
	switch bg.Kind {
	case BackgroundSolid:
		if _, err := ParseColor(bg.Value); err != nil {
			return configErrorf("background.value", "%v", err)
		}
	case BackgroundGradient:
		if _, err := ParseLinearGradient(bg.Value); err != nil {
			return configErrorf("background.value", "%v", err)
		}
	case BackgroundImage:
		if strings.TrimSpace(bg.Value) == "" {
			return configErrorf("background.value", "image background needs a source")
		}
	default:
		return configErrorf("background.type", "unsupported background type %q", bg.Kind)
	}
	return nil
}

func validateStyle(field string, s Style) error {
	if !finite(s.FontSize) || s.FontSize < 0 {
		return configErrorf(field+".fontSize", "must be finite and not negative")
	}
	if strings.TrimSpace(s.Color) != "" {
		if _, err := ParseColor(s.Color); err != nil {
			return configErrorf(field+".color", "%v", err)
		}
	}
	switch strings.ToLower(strings.TrimSpace(s.TextAlign)) {
	case "", "left", "center", "right":
	default:
		return configErrorf(field+".textAlign", "unsupported alignment %q", s.TextAlign)
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
