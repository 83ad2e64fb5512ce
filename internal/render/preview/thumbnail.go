package preview

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"log/slog"
	"math"

	"github.com/fogleman/gg"

	"idcard/internal/card"
	"idcard/internal/imagefetch"
	"idcard/internal/imaging"
	"idcard/internal/layout"
	"idcard/internal/render"
)

// DefaultMaxThumbnailSide bounds both sides of a thumbnail when no limit is configured.
const DefaultMaxThumbnailSide = 2048

// ThumbnailSize returns the pixel size of a thumbnail widthPx wide for a card of dim,
// shrunk so that neither side exceeds maxSide. dim must be normalized.
func ThumbnailSize(dim card.Dimensions, widthPx, maxSide int) (int, int) {
	if widthPx <= 0 {
		widthPx = DefaultThumbnailWidth
	}
	if maxSide <= 0 {
		maxSide = DefaultMaxThumbnailSide
	}
	aspect := dim.Width / dim.Height
	w := min(widthPx, maxSide)
	h := int(math.Round(float64(w) / aspect))
	if h > maxSide {
		h = maxSide
		w = int(math.Round(float64(h) * aspect))
	}
	return max(1, w), max(1, h)
}

// Thumbnail rasterises one card to PNG, widthPx wide with the card's aspect ratio.
// Neither side exceeds the renderer's maximum. Images that cannot be fetched are drawn as placeholders.
func (r *Renderer) Thumbnail(ctx context.Context, c render.Card, widthPx int) ([]byte, []render.Warning, error) {
	design, err := card.Prepare(c.Design)
	if err != nil {
		return nil, nil, err
	}
	w, h := ThumbnailSize(design.Dimensions, widthPx, r.maxThumbnailSide)
	// Pixels per millimetre.
	scale := float64(w) / design.Dimensions.Width
	prep, err := r.pipeline.Prepare(c, layout.Canvas(scale))
	if err != nil {
		return nil, nil, err
	}

	dc := gg.NewContext(w, h)
	fetched := r.fetch(ctx, prep)

	r.paintBackground(dc, prep, fetched)
	for _, el := range prep.Elements {
		switch el.Kind {
		case card.KindText:
			r.paintText(dc, el, scale)
		case card.KindImage:
			res := fetched[el.Image.Source]
			if el.Image.Source == "" || res.Image == nil {
				reason := "no image source"
				if el.Image.Source != "" {
					reason = "image unavailable"
					if res.Err != nil {
						reason = res.Err.Error()
					}
					r.logger.Warn("image unavailable", slog.String("element_id", el.ID), slog.String("source", el.Image.Source), slog.Any("error", res.Err))
				}
				prep.Warn(render.PlaceholderWarning(el, reason))
				r.paintPlaceholder(dc, el, scale)
				continue
			}
			bw, bh := int(math.Round(el.Box.Width)), int(math.Round(el.Box.Height))
			if bw <= 0 || bh <= 0 {
				continue
			}
			dc.DrawImage(imaging.Cover(res.Image, bw, bh), int(math.Round(el.Box.X)), int(math.Round(el.Box.Y)))
		}
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), prep.Warnings, nil
}

func (r *Renderer) paintBackground(dc *gg.Context, prep *render.Prepared, fetched map[string]imagefetch.Result) {
	w, h := float64(dc.Width()), float64(dc.Height())
	bg := prep.Background

	switch {
	case bg.Gradient != nil:
		x0, y0, x1, y1 := bg.Gradient.Line(w, h)
		grad := gg.NewLinearGradient(x0, y0, x1, y1)
		for _, s := range bg.Gradient.Stops {
			grad.AddColorStop(s.Offset, s.Color.NRGBA())
		}
		dc.SetFillStyle(grad)
		dc.DrawRectangle(0, 0, w, h)
		dc.Fill()
		return
	case bg.ImageURL != "":
		if res := fetched[bg.ImageURL]; res.Image != nil {
			dc.DrawImage(imaging.Cover(res.Image, dc.Width(), dc.Height()), 0, 0)
			return
		}
		r.logger.Warn("background image unavailable", slog.String("source", bg.ImageURL))
		prep.Warn(render.BackgroundWarning(bg.ImageURL, "background image unavailable, using "+render.BackgroundFallback))
	}

	dc.SetColor(parseOr(bg.Color, render.BackgroundFallback))
	dc.DrawRectangle(0, 0, w, h)
	dc.Fill()
}

func (r *Renderer) paintText(dc *gg.Context, el render.Element, scale float64) {
	if el.Text == "" || el.FontSize <= 0 {
		return
	}
	dc.SetFontFace(r.fonts.Face(el.Style.FontFamily, el.Style.IsBold(), el.FontSize))
	dc.SetColor(parseOr(el.Style.Color, card.DefaultTextColor))

	y := el.Box.Y + render.BaselineOffset(el.FontSize/scale)*scale
	for _, para := range render.Lines(el.Text) {
		lines := []string{para}
		if el.Box.Width > 0 && para != "" {
			lines = dc.WordWrap(para, el.Box.Width)
		}
		for _, line := range lines {
			tw, _ := dc.MeasureString(line)
			x := el.Box.X
			switch el.Style.TextAlign {
			case "center":
				x += (el.Box.Width - tw) / 2
			case "right":
				x += el.Box.Width - tw
			}
			dc.DrawString(line, x, y)
			y += el.FontSize * render.LineHeight
		}
	}
}

func (r *Renderer) paintPlaceholder(dc *gg.Context, el render.Element, scale float64) {
	b := el.Box
	dc.SetColor(card.MustParseColor(render.PlaceholderFill).NRGBA())
	dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
	dc.Fill()

	dc.SetColor(card.MustParseColor(render.PlaceholderBorder).NRGBA())
	dc.SetLineWidth(math.Max(1, 0.2*scale))
	dc.SetDash(scale, scale/2)
	dc.DrawRectangle(b.X, b.Y, b.Width, b.Height)
	dc.Stroke()
	dc.SetDash()

	if el.Image.Label == "" {
		return
	}
	dc.SetFontFace(r.fonts.Face("", false, render.PlaceholderFontSize*scale))
	dc.SetColor(card.MustParseColor(render.PlaceholderText).NRGBA())
	dc.DrawStringAnchored(el.Image.Label, b.X+b.Width/2, b.Y+b.Height/2, 0.5, 0.5)
}

func parseOr(s, fallback string) color.Color {
	if c, err := card.ParseColor(s); err == nil {
		return c.NRGBA()
	}
	return card.MustParseColor(fallback).NRGBA()
}
