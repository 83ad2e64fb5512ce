package canvas

import (
	"context"
	"log/slog"

	"idcard/internal/card"
	"idcard/internal/errcode"
	"idcard/internal/imagefetch"
	"idcard/internal/layout"
	"idcard/internal/render"
)

// DefaultScale is the designer magnification: one millimetre is drawn three units wide.
const DefaultScale = 3.0

// NodeKind is the type of a scene node.
type NodeKind string

const (
	NodeText        NodeKind = "text"
	NodeImage       NodeKind = "image"
	NodePlaceholder NodeKind = "placeholder"
)

// Font is the resolved text style of a text node, in scene units.
type Font struct {
	Family     string  `json:"family"`
	Size       float64 `json:"size"`
	Weight     string  `json:"weight"`
	Bold       bool    `json:"bold"`
	Color      string  `json:"color"`
	Align      string  `json:"align"`
	LineHeight float64 `json:"lineHeight"`
}

// Node is one retained element of the scene. ID is the element id and stays stable across renders.
type Node struct {
	ID       string     `json:"id"`
	Kind     NodeKind   `json:"kind"`
	Box      layout.Box `json:"box"`
	Text     string     `json:"text,omitempty"`
	Font     *Font      `json:"font,omitempty"`
	ImageURL string     `json:"imageUrl,omitempty"`
	Fit      string     `json:"fit,omitempty"`
	Label    string     `json:"label,omitempty"`
}

// Equal reports whether two nodes would paint identically.
func (n Node) Equal(o Node) bool {
	if n.ID != o.ID || n.Kind != o.Kind || n.Box != o.Box || n.Text != o.Text ||
		n.ImageURL != o.ImageURL || n.Fit != o.Fit || n.Label != o.Label {
		return false
	}
	if n.Font == nil || o.Font == nil {
		return n.Font == nil && o.Font == nil
	}
	return *n.Font == *o.Font
}

// Scene is the declarative description of one card as the designer draws it.
// Nodes are in paint order; everything outside Width x Height is clipped.
type Scene struct {
	Width        float64          `json:"width"`
	Height       float64          `json:"height"`
	Scale        float64          `json:"scale"`
	Unit         string           `json:"unit"`
	Background   render.Paint     `json:"background"`
	ClipToBounds bool             `json:"clipToBounds"`
	Nodes        []Node           `json:"nodes"`
	Warnings     []render.Warning `json:"warnings,omitempty"`
}

// Node returns the node with the given id.
func (s *Scene) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Renderer builds scenes for the interactive designer.
type Renderer struct {
	pipeline   *render.Pipeline
	scale      float64
	fetcher    imagefetch.Fetcher
	fetchLimit int
	logger     *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithScale sets the magnification applied to millimetre geometry.
func WithScale(scale float64) Option {
	return func(r *Renderer) {
		if scale > 0 {
			r.scale = scale
		}
	}
}

// WithFetcher makes the renderer fetch image sources and replace unreachable ones with placeholders.
// Without a fetcher, image nodes carry the URL and the UI layer loads it.
func WithFetcher(f imagefetch.Fetcher, limit int) Option {
	return func(r *Renderer) {
		r.fetcher = f
		r.fetchLimit = limit
	}
}

// New builds a canvas Renderer.
func New(p *render.Pipeline, opts ...Option) *Renderer {
	if p == nil {
		p = render.NewPipeline()
	}
	r := &Renderer{pipeline: p, scale: DefaultScale, logger: p.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Scale returns the magnification used for new scenes.
func (r *Renderer) Scale() float64 {
	return r.scale
}

// Render implements render.Renderer.
func (r *Renderer) Render(ctx context.Context, design card.TemplateDesign, student *card.Student, settings card.SchoolSettings) (*Scene, error) {
	prep, err := r.pipeline.Prepare(render.Card{Design: design, Student: student, Settings: settings}, layout.Canvas(r.scale))
	if err != nil {
		return nil, err
	}

	var fetched map[string]imagefetch.Result
	if r.fetcher != nil {
		fetched = imagefetch.FetchAll(ctx, r.fetcher, prep.ImageSources(), r.fetchLimit)
	}
	return r.build(prep, fetched), nil
}

func (r *Renderer) build(prep *render.Prepared, fetched map[string]imagefetch.Result) *Scene {
	s := &Scene{
		Width:        prep.Card.Width,
		Height:       prep.Card.Height,
		Scale:        r.scale,
		Unit:         card.UnitMillimeter,
		Background:   prep.Background,
		ClipToBounds: true,
		Nodes:        make([]Node, 0, len(prep.Elements)),
		Warnings:     prep.Warnings,
	}

	if src := prep.Background.ImageURL; src != "" {
		if res, ok := fetched[src]; ok && res.Err != nil {
			r.logger.Warn("background image unavailable", slog.String("source", src), slog.Any("error", res.Err))
			s.Background.ImageURL = ""
			s.Warnings = append(s.Warnings, render.BackgroundWarning(src, "background image unavailable, using "+render.BackgroundFallback))
		}
	}

	for _, el := range prep.Elements {
		switch el.Kind {
		case card.KindText:
			s.Nodes = append(s.Nodes, Node{
				ID:   el.ID,
				Kind: NodeText,
				Box:  el.Box,
				Text: el.Text,
				Font: &Font{
					Family:     el.Style.FontFamily,
					Size:       el.FontSize,
					Weight:     el.Style.FontWeight,
					Bold:       el.Style.IsBold(),
					Color:      el.Style.Color,
					Align:      el.Style.TextAlign,
					LineHeight: render.LineHeight,
				},
			})
		case card.KindImage:
			s.Nodes = append(s.Nodes, r.imageNode(s, el, fetched))
		}
	}
	return s
}

func (r *Renderer) imageNode(s *Scene, el render.Element, fetched map[string]imagefetch.Result) Node {
	src := el.Image.Source
	reason := ""
	if src == "" {
		reason = "no image source"
	} else if res, ok := fetched[src]; ok && res.Err != nil {
		r.logger.Warn("image unavailable", slog.String("element_id", el.ID), slog.String("source", src), slog.Any("error", res.Err))
		reason = res.Err.Error()
	}
	if reason != "" {
		s.Warnings = append(s.Warnings, render.PlaceholderWarning(el, reason))
		return Node{ID: el.ID, Kind: NodePlaceholder, Box: el.Box, Label: el.Image.Label}
	}
	return Node{ID: el.ID, Kind: NodeImage, Box: el.Box, ImageURL: src, Fit: "cover"}
}

// HitTest returns the id of the top-most node under (x, y) in scene units.
// Points outside the card never hit, since the card clips its content.
func HitTest(s *Scene, x, y float64) (string, bool) {
	if s == nil || x < 0 || y < 0 || x > s.Width || y > s.Height {
		return "", false
	}
	for i := len(s.Nodes) - 1; i >= 0; i-- {
		if s.Nodes[i].Box.Contains(x, y) {
			return s.Nodes[i].ID, true
		}
	}
	return "", false
}

// Placeholders counts placeholder nodes.
func (s *Scene) Placeholders() int {
	return render.CountCode(s.Warnings, errcode.ResourceMissing)
}
