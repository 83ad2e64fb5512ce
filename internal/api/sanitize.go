package api

import (
	"html"
	"strings"
	"sync"

	"github.com/microcosm-cc/bluemonday"

	"idcard/internal/card"
)

var (
	textPolicyOnce sync.Once
	textPolicy     *bluemonday.Policy
)

func textSanitizer() *bluemonday.Policy {
	textPolicyOnce.Do(func() {
		textPolicy = bluemonday.StrictPolicy()
	})
	return textPolicy
}

// stripMarkup removes tags from plain text content. Entities escaped by the policy are restored
// so "&" and quotes survive; renderers escape on output.
func stripMarkup(raw string) string {
	if !strings.ContainsAny(raw, "<>&") {
		return raw
	}
	return html.UnescapeString(textSanitizer().Sanitize(raw))
}

// sanitizeDesign strips markup from the text content and the names of a design.
func sanitizeDesign(d card.TemplateDesign) card.TemplateDesign {
	out := d.Clone()
	for i, el := range out.Elements {
		if el.Kind == card.KindImage {
			continue
		}
		out.Elements[i].Content = stripMarkup(el.Content)
	}
	return out
}
