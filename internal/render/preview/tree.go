package preview

import (
	"context"
	"log/slog"

	"idcard/internal/card"
	"idcard/internal/fonts"
	"idcard/internal/imagefetch"
	"idcard/internal/layout"
	"idcard/internal/render"
)

// NodeKind is the type of a preview node.
type NodeKind string

const (
	NodeText        NodeKind = "text"
	NodeImage       NodeKind = "image"
	NodePlaceholder NodeKind = "placeholder"
)

// Node is one element positioned in percentages of the card.
// FontSize is a percentage of the card height.
type Node struct {
	ID         string   `json:"id"`
	Kind       NodeKind `json:"kind"`
	Left       float64  `json:"left"`
	Top        float64  `json:"top"`
	Width      float64  `json:"width"`
	Height     float64  `json:"height"`
	Text       string   `json:"text,omitempty"`
	FontSize   float64  `json:"fontSize,omitempty"`
	FontFamily string   `json:"fontFamily,omitempty"`
	FontWeight string   `json:"fontWeight,omitempty"`
	Bold       bool     `json:"bold,omitempty"`
	Color      string   `json:"color,omitempty"`
	TextAlign  string   `json:"textAlign,omitempty"`
	ImageURL   string   `json:"imageUrl,omitempty"`
	Label      string   `json:"label,omitempty"`
}

// Tree is a container-independent card description. A container embedding it must
// adopt AspectRatio; everything outside the card is clipped.
type Tree struct {
	AspectRatio float64          `json:"aspectRatio"`
	Dimensions  card.Dimensions  `json:"dimensions"`
	Background  render.Paint     `json:"background"`
	Nodes       []Node           `json:"nodes"`
	Warnings    []render.Warning `json:"warnings,omitempty"`
}

// DefaultThumbnailWidth is the PNG width used when none is configured.
const DefaultThumbnailWidth = 428

// Renderer produces preview trees, HTML, PNG thumbnails and print HTML.
type Renderer struct {
	pipeline         *render.Pipeline
	fetcher          imagefetch.Fetcher
	fetchLimit       int
	fonts            *fonts.Registry
	maxThumbnailSide int
	logger           *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFetcher sets the image fetcher used by Render, Thumbnail and PrintHTML.
func WithFetcher(f imagefetch.Fetcher, limit int) Option {
	return func(r *Renderer) {
		r.fetcher = f
		r.fetchLimit = limit
	}
}

// WithFonts sets the font registry used by Thumbnail.
func WithFonts(reg *fonts.Registry) Option {
	return func(r *Renderer) {
		if reg != nil {
			r.fonts = reg
		}
	}
}

// WithMaxThumbnailSide bounds the width and height of PNG thumbnails.
func WithMaxThumbnailSide(px int) Option {
	return func(r *Renderer) {
		r.maxThumbnailSide = px
	}
}

// MaxThumbnailSide returns the largest thumbnail side in pixels.
func (r *Renderer) MaxThumbnailSide() int {
	return r.maxThumbnailSide
}

// New builds a preview Renderer.
func New(p *render.Pipeline, opts ...Option) *Renderer {
	if p == nil {
		p = render.NewPipeline()
	}
	r := &Renderer{pipeline: p, logger: p.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.fonts == nil {
		r.fonts = fonts.NewRegistry()
	}
	if r.maxThumbnailSide <= 0 {
		r.maxThumbnailSide = DefaultMaxThumbnailSide
	}
	return r
}

// Render implements render.Renderer. With a fetcher configured, images that cannot be
// loaded become placeholders, the same way the canvas renderer degrades them.
func (r *Renderer) Render(ctx context.Context, design card.TemplateDesign, student *card.Student, settings card.SchoolSettings) (*Tree, error) {
	prep, err := r.pipeline.Prepare(render.Card{Design: design, Student: student, Settings: settings}, layout.Percentage())
	if err != nil {
		return nil, err
	}
	t := buildTree(prep)
	if r.fetcher != nil {
		r.degrade(t, prep.Elements, r.fetch(ctx, prep))
	}
	return t, nil
}

func buildTree(prep *render.Prepared) *Tree {
	t := &Tree{
		AspectRatio: prep.AspectRatio,
		Dimensions:  prep.Design.Dimensions,
		Background:  prep.Background,
		Nodes:       make([]Node, 0, len(prep.Elements)),
		Warnings:    prep.Warnings,
	}
	for _, el := range prep.Elements {
		n := Node{
			ID:     el.ID,
			Left:   el.Box.X,
			Top:    el.Box.Y,
			Width:  el.Box.Width,
			Height: el.Box.Height,
		}
		switch el.Kind {
		case card.KindText:
			n.Kind = NodeText
			n.Text = el.Text
			n.FontSize = el.FontSize
			n.FontFamily = el.Style.FontFamily
			n.FontWeight = el.Style.FontWeight
			n.Bold = el.Style.IsBold()
			n.Color = el.Style.Color
			n.TextAlign = el.Style.TextAlign
		case card.KindImage:
			n.Label = el.Image.Label
			if el.Image.Source == "" {
				n.Kind = NodePlaceholder
				t.Warnings = append(t.Warnings, render.PlaceholderWarning(el, "no image source"))
			} else {
				n.Kind = NodeImage
				n.ImageURL = el.Image.Source
			}
		}
		t.Nodes = append(t.Nodes, n)
	}
	return t
}

// degrade turns image nodes whose fetch failed into placeholders and drops a failed background image.
func (r *Renderer) degrade(t *Tree, elements []render.Element, fetched map[string]imagefetch.Result) {
	if src := t.Background.ImageURL; src != "" {
		if res := fetched[src]; res.Err != nil || res.Image == nil {
			r.logger.Warn("background image unavailable", slog.String("source", src), slog.Any("error", res.Err))
			t.Background.ImageURL = ""
			t.Warnings = append(t.Warnings, render.BackgroundWarning(src, "background image unavailable, using "+render.BackgroundFallback))
		}
	}
	for i, n := range t.Nodes {
		if n.Kind != NodeImage {
			continue
		}
		res := fetched[n.ImageURL]
		if res.Err == nil && res.Image != nil {
			continue
		}
		reason := "image unavailable"
		if res.Err != nil {
			reason = res.Err.Error()
		}
		r.logger.Warn("image unavailable", slog.String("element_id", n.ID), slog.String("source", n.ImageURL), slog.Any("error", res.Err))
		t.Warnings = append(t.Warnings, render.PlaceholderWarning(elements[i], reason))
		t.Nodes[i] = Node{ID: n.ID, Kind: NodePlaceholder, Left: n.Left, Top: n.Top, Width: n.Width, Height: n.Height, Label: elements[i].Image.Label}
	}
}

func (r *Renderer) fetch(ctx context.Context, prep *render.Prepared) map[string]imagefetch.Result {
	if r.fetcher == nil {
		return map[string]imagefetch.Result{}
	}
	return imagefetch.FetchAll(ctx, r.fetcher, prep.ImageSources(), r.fetchLimit)
}
