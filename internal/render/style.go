package render

import (
	"strings"

	"idcard/internal/card"
	"idcard/internal/errcode"
)

// Shared visual constants. Every renderer paints placeholders and text with these values.
const (
	BackgroundFallback  = "#ffffff"
	PlaceholderFill     = "#e5e7eb"
	PlaceholderBorder   = "#9ca3af"
	PlaceholderText     = "#6b7280"
	PlaceholderFontSize = 2.0 // mm
	LineHeight          = 1.2
)

// BaselineOffset is the distance from the top of a text box to the first baseline, in mm.
// 0.35 is the point-to-millimetre factor, so the baseline sits about one em below the top.
func BaselineOffset(fontSizeMM float64) float64 {
	return card.MMToPoints(fontSizeMM) * 0.35
}

// Lines splits resolved text into explicit lines. Wrapping to the box width is the renderer's job.
func Lines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// PlaceholderWarning describes an image element drawn as a placeholder.
func PlaceholderWarning(el Element, reason string) Warning {
	return Warning{
		Code:      errcode.ResourceMissing,
		ElementID: el.ID,
		Source:    el.Image.Source,
		Message:   reason,
	}
}

// BackgroundWarning describes a degraded background paint.
func BackgroundWarning(source, reason string) Warning {
	return Warning{Code: errcode.Degraded, Source: source, Message: reason}
}

// CountCode returns how many warnings carry code.
func CountCode(ws []Warning, code int) int {
	n := 0
	for _, w := range ws {
		if w.Code == code {
			n++
		}
	}
	return n
}
