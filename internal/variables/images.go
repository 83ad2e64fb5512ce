package variables

import (
	"strings"

	"idcard/internal/card"
)

// Placeholder labels drawn when an image element has no usable source.
const (
	LabelPhoto = "Photo"
	LabelLogo  = "Logo"
	LabelImage = "Image"
)

// ImageRef is the resolved source of an image element. An empty Source means
// the renderer must draw a placeholder labelled Label.
type ImageRef struct {
	Source string
	Label  string
}

// ImageSource resolves image element content: the {{studentPhoto}} and {{schoolLogo}}
// tokens, or a direct URL which may itself contain tokens.
func (r *Resolver) ImageSource(content string, student *card.Student, settings card.SchoolSettings) ImageRef {
	trimmed := strings.TrimSpace(content)
	switch trimmed {
	case "{{" + StudentPhoto + "}}":
		ref := ImageRef{Label: LabelPhoto}
		if student != nil {
			ref.Source = strings.TrimSpace(student.PhotoURL)
		}
		return ref
	case "{{" + SchoolLogo + "}}":
		return ImageRef{Label: LabelLogo, Source: vocabulary[SchoolLogo](r, student, settings)}
	}

	ref := ImageRef{Label: LabelImage}
	resolved := strings.TrimSpace(r.Resolve(trimmed, student, settings))
	if resolved == "" || tokenPattern.MatchString(resolved) {
		return ref
	}
	ref.Source = resolved
	return ref
}

// ImageSource resolves with the default resolver.
func ImageSource(content string, student *card.Student, settings card.SchoolSettings) ImageRef {
	return defaultResolver.ImageSource(content, student, settings)
}
