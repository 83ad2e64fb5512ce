package document

import "strings"

// Colour modes.
const (
	ColorModeColor     = "color"
	ColorModeGrayscale = "grayscale"
)

// Print qualities.
const (
	QualityDraft    = "draft"
	QualityStandard = "standard"
	QualityHigh     = "high"
)

var qualityDPI = map[string]int{
	QualityDraft:    150,
	QualityStandard: 300,
	QualityHigh:     600,
}

// PrintOptions mirrors the print manager settings stored with a print job.
type PrintOptions struct {
	Copies    int    `json:"copies"`
	ColorMode string `json:"colorMode"`
	Quality   string `json:"quality"`
}

// DefaultPrintOptions prints one colour copy at standard quality.
func DefaultPrintOptions() PrintOptions {
	return PrintOptions{Copies: 1, ColorMode: ColorModeColor, Quality: QualityStandard}
}

// Normalize fills unset or unknown fields with defaults.
func (o PrintOptions) Normalize() PrintOptions {
	if o.Copies < 1 {
		o.Copies = 1
	}
	o.ColorMode = strings.ToLower(strings.TrimSpace(o.ColorMode))
	if o.ColorMode != ColorModeGrayscale {
		o.ColorMode = ColorModeColor
	}
	o.Quality = strings.ToLower(strings.TrimSpace(o.Quality))
	if _, ok := qualityDPI[o.Quality]; !ok {
		o.Quality = QualityStandard
	}
	return o
}

// Grayscale reports whether paint colours and images are converted to luminance.
func (o PrintOptions) Grayscale() bool {
	return o.ColorMode == ColorModeGrayscale
}

// DPI is the resolution embedded photos are resampled to.
func (o PrintOptions) DPI() int {
	if dpi, ok := qualityDPI[o.Quality]; ok {
		return dpi
	}
	return qualityDPI[QualityStandard]
}
