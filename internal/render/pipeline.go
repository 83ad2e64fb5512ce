package render

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"idcard/internal/card"
	"idcard/internal/errcode"
	"idcard/internal/layout"
	"idcard/internal/variables"
)

// Renderer is the contract shared by the canvas, preview and document renderers.
type Renderer[T any] interface {
	Render(ctx context.Context, design card.TemplateDesign, student *card.Student, settings card.SchoolSettings) (T, error)
}

// Card is one (design, student, settings) tuple to render.
type Card struct {
	Design   card.TemplateDesign
	Student  *card.Student
	Settings card.SchoolSettings
}

// Warning reports a tolerated condition: placeholder used, element skipped, paint degraded.
type Warning struct {
	Code      int    `json:"code"`
	ElementID string `json:"element_id,omitempty"`
	Source    string `json:"source,omitempty"`
	Message   string `json:"message"`
}

// Paint is a resolved card background.
type Paint struct {
	Kind     card.BackgroundKind  `json:"type"`
	CSS      string               `json:"css"`
	Color    string               `json:"color,omitempty"`
	ImageURL string               `json:"imageUrl,omitempty"`
	Gradient *card.LinearGradient `json:"-"`
}

// Element is a paintable element: substituted, laid out and styled.
type Element struct {
	ID    string
	Kind  card.ElementKind
	Box   layout.Box
	Style card.Style
	// FontSize is Style.FontSize mapped into target units.
	FontSize float64
	Text     string
	Image    variables.ImageRef
}

// Prepared is everything a renderer needs to paint one card.
type Prepared struct {
	Design      card.TemplateDesign
	Target      layout.RenderTarget
	Card        layout.Box
	AspectRatio float64
	Background  Paint
	Elements    []Element
	Warnings    []Warning
}

// Warn records a warning.
func (p *Prepared) Warn(w Warning) {
	p.Warnings = append(p.Warnings, w)
}

// ImageSources lists the distinct image sources the card needs, background first.
func (p *Prepared) ImageSources() []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(src string) {
		if src == "" {
			return
		}
		if _, ok := seen[src]; ok {
			return
		}
		seen[src] = struct{}{}
		out = append(out, src)
	}
	add(p.Background.ImageURL)
	for _, el := range p.Elements {
		if el.Kind == card.KindImage {
			add(el.Image.Source)
		}
	}
	return out
}

// Pipeline composes substitution and layout. It is stateless and safe for concurrent use.
type Pipeline struct {
	resolver  *variables.Resolver
	textColor string
	logger    *slog.Logger
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithResolver replaces the variable resolver.
func WithResolver(r *variables.Resolver) PipelineOption {
	return func(p *Pipeline) {
		if r != nil {
			p.resolver = r
		}
	}
}

// WithTextColor sets the default text colour applied by every renderer.
func WithTextColor(hex string) PipelineOption {
	return func(p *Pipeline) {
		if strings.TrimSpace(hex) != "" {
			p.textColor = hex
		}
	}
}

// WithLogger sets the logger used for tolerated conditions.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewPipeline builds a Pipeline.
func NewPipeline(opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		resolver:  variables.New(),
		textColor: card.DefaultTextColor,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// TextColor returns the default text colour.
func (p *Pipeline) TextColor() string {
	return p.textColor
}

// Logger returns the pipeline logger.
func (p *Pipeline) Logger() *slog.Logger {
	return p.logger
}

// Prepare validates the design, substitutes every element and maps geometry into target.
// A malformed design returns a *card.ConfigurationError and nothing is prepared.
func (p *Pipeline) Prepare(c Card, target layout.RenderTarget) (*Prepared, error) {
	design, err := card.Prepare(c.Design)
	if err != nil {
		return nil, err
	}
	res, err := layout.ToRendererSpace(design, target)
	if err != nil {
		return nil, fmt.Errorf("resolve layout: %w", err)
	}

	out := &Prepared{
		Design:      design,
		Target:      target,
		Card:        res.Card,
		AspectRatio: res.AspectRatio,
		Elements:    make([]Element, 0, len(res.Elements)),
	}
	out.Background = p.background(design.Background, c)
	if design.Background.Kind == card.BackgroundImage && out.Background.ImageURL == "" {
		out.Warn(Warning{
			Code:    errcode.Degraded,
			Message: "background image source did not resolve, using " + BackgroundFallback,
		})
	}

	for _, re := range res.Elements {
		el := re.Element
		if !el.Kind.Painted() {
			out.Warn(Warning{
				Code:      errcode.Skipped,
				ElementID: el.ID,
				Message:   fmt.Sprintf("element kind %q is not rendered", el.Kind),
			})
			continue
		}

		style := el.Style.WithDefaults(p.textColor)
		pe := Element{
			ID:       el.ID,
			Kind:     el.Kind,
			Box:      re.Box,
			Style:    style,
			FontSize: layout.ScaleFontSize(style.FontSize, design.Dimensions, target),
		}
		switch el.Kind {
		case card.KindText:
			pe.Text = p.resolver.Resolve(el.Content, c.Student, c.Settings)
		case card.KindImage:
			pe.Image = p.resolver.ImageSource(el.Content, c.Student, c.Settings)
		}
		out.Elements = append(out.Elements, pe)
	}
	return out, nil
}

func (p *Pipeline) background(bg card.Background, c Card) Paint {
	switch bg.Kind {
	case card.BackgroundSolid:
		rgb, _ := card.ParseColor(bg.Value)
		return Paint{Kind: bg.Kind, CSS: rgb.Hex(), Color: rgb.Hex()}
	case card.BackgroundGradient:
		g, _ := card.ParseLinearGradient(bg.Value)
		return Paint{Kind: bg.Kind, CSS: g.CSS(), Color: g.Stops[0].Color.Hex(), Gradient: &g}
	default:
		ref := p.resolver.ImageSource(bg.Value, c.Student, c.Settings)
		return Paint{Kind: card.BackgroundImage, CSS: BackgroundFallback, Color: BackgroundFallback, ImageURL: ref.Source}
	}
}
