package document

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/go-pdf/fpdf"

	"idcard/internal/card"
	"idcard/internal/errcode"
	"idcard/internal/fonts"
	"idcard/internal/imagefetch"
	"idcard/internal/imaging"
	"idcard/internal/layout"
	"idcard/internal/render"
)

// DefaultFetchLimit bounds concurrent image fetches within one batch.
const DefaultFetchLimit = 8

// Renderer produces print-ready PDFs with pages sized exactly to each card.
// Each call assembles its own document, so one Renderer may serve concurrent calls.
type Renderer struct {
	pipeline   *render.Pipeline
	fetcher    imagefetch.Fetcher
	fetchLimit int
	fonts      *fonts.Registry
	logger     *slog.Logger
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithFetcher sets the image fetcher and its concurrency limit.
func WithFetcher(f imagefetch.Fetcher, limit int) Option {
	return func(r *Renderer) {
		r.fetcher = f
		if limit > 0 {
			r.fetchLimit = limit
		}
	}
}

// WithFonts sets the font registry.
func WithFonts(reg *fonts.Registry) Option {
	return func(r *Renderer) {
		if reg != nil {
			r.fonts = reg
		}
	}
}

// New builds a document Renderer.
func New(p *render.Pipeline, opts ...Option) *Renderer {
	if p == nil {
		p = render.NewPipeline()
	}
	r := &Renderer{pipeline: p, fetchLimit: DefaultFetchLimit, logger: p.Logger()}
	for _, opt := range opts {
		opt(r)
	}
	if r.fonts == nil {
		r.fonts = fonts.NewRegistry()
	}
	return r
}

// Render implements render.Renderer: a one-page document with default print options.
func (r *Renderer) Render(ctx context.Context, design card.TemplateDesign, student *card.Student, settings card.SchoolSettings) (*Document, error) {
	return r.RenderBatch(ctx, []render.Card{{Design: design, Student: student, Settings: settings}}, DefaultPrintOptions())
}

// RenderBatch renders cards into one document, pages in input order and each card repeated
// opts.Copies times. A malformed design aborts the batch; an unavailable image only degrades
// its page to a placeholder. An empty batch yields a valid zero-page PDF.
func (r *Renderer) RenderBatch(ctx context.Context, cards []render.Card, opts PrintOptions) (*Document, error) {
	opts = opts.Normalize()
	if len(cards) == 0 {
		return &Document{data: emptyPDF()}, nil
	}

	preps := make([]*render.Prepared, len(cards))
	var sources []string
	for i, c := range cards {
		prep, err := r.pipeline.Prepare(c, layout.Document())
		if err != nil {
			return nil, fmt.Errorf("card %d: %w", i, err)
		}
		preps[i] = prep
		sources = append(sources, prep.ImageSources()...)
	}

	fetched := map[string]imagefetch.Result{}
	if r.fetcher != nil {
		fetched = imagefetch.FetchAll(ctx, r.fetcher, sources, r.fetchLimit)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := newBuilder(r, opts, fetched, preps[0].Card)
	for i, prep := range preps {
		for c := 0; c < opts.Copies; c++ {
			b.page(i, prep)
		}
	}
	return b.finish()
}

// PrintCards renders cards for a print job and returns the PDF with its warnings.
func (r *Renderer) PrintCards(ctx context.Context, cards []render.Card, opts PrintOptions) ([]byte, []render.Warning, error) {
	doc, err := r.RenderBatch(ctx, cards, opts)
	if err != nil {
		return nil, nil, err
	}
	return doc.Bytes(), doc.Warnings(), nil
}

// builder accumulates one PDF. It is not safe for concurrent use.
type builder struct {
	r       *Renderer
	opts    PrintOptions
	pdf     *fpdf.Fpdf
	fetched map[string]imagefetch.Result
	fonts   map[string]bool
	images  map[string]string
	pages   []PageInfo
}

func newBuilder(r *Renderer, opts PrintOptions, fetched map[string]imagefetch.Result, first layout.Box) *builder {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: first.Width, Ht: first.Height},
	})
	pdf.SetMargins(0, 0, 0)
	pdf.SetCellMargin(0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetCreator("idcard", true)
	return &builder{
		r:       r,
		opts:    opts,
		pdf:     pdf,
		fetched: fetched,
		fonts:   map[string]bool{},
		images:  map[string]string{},
	}
}

func (b *builder) page(index int, prep *render.Prepared) {
	pdf := b.pdf
	w, h := prep.Card.Width, prep.Card.Height
	pdf.AddPageFormat("P", fpdf.SizeType{Wd: w, Ht: h})

	info := PageInfo{Card: index, Width: w, Height: h}
	info.Warnings = append(info.Warnings, prep.Warnings...)

	pdf.ClipRect(0, 0, w, h, false)
	b.background(prep, &info)
	for _, el := range prep.Elements {
		switch el.Kind {
		case card.KindText:
			b.text(el)
		case card.KindImage:
			b.image(el, &info)
		}
	}
	pdf.ClipEnd()

	info.Placeholders = render.CountCode(info.Warnings, errcode.ResourceMissing)
	b.pages = append(b.pages, info)
}

func (b *builder) finish() (*Document, error) {
	var buf bytes.Buffer
	if err := b.pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Document{data: buf.Bytes(), pages: b.pages}, nil
}

func (b *builder) color(hex, fallback string) (int, int, int) {
	c, err := card.ParseColor(hex)
	if err != nil {
		c = card.MustParseColor(fallback)
	}
	if b.opts.Grayscale() {
		c = c.Gray()
	}
	return c.Ints()
}

func (b *builder) fill(hex string, x, y, w, h float64) {
	b.pdf.SetFillColor(b.color(hex, render.BackgroundFallback))
	b.pdf.Rect(x, y, w, h, "F")
}

func (b *builder) background(prep *render.Prepared, info *PageInfo) {
	w, h := prep.Card.Width, prep.Card.Height
	bg := prep.Background

	switch {
	case bg.Gradient != nil:
		stops := bg.Gradient.Stops
		if len(stops) != 2 {
			b.fill(bg.Color, 0, 0, w, h)
			info.Warnings = append(info.Warnings, render.BackgroundWarning("",
				fmt.Sprintf("gradient with %d stops approximated by its first colour", len(stops))))
			return
		}
		from, to := stops[0].Color, stops[1].Color
		if b.opts.Grayscale() {
			from, to = from.Gray(), to.Gray()
		}
		r1, g1, b1 := from.Ints()
		r2, g2, b2 := to.Ints()
		x0, y0, x1, y1 := bg.Gradient.StopLine(w, h)
		// Shading coordinates are fractions of the rectangle with the origin at the bottom left.
		b.pdf.LinearGradient(0, 0, w, h, r1, g1, b1, r2, g2, b2, x0/w, 1-y0/h, x1/w, 1-y1/h)
	case bg.ImageURL != "":
		if name, ok := b.embed(bg.ImageURL, w, h); ok {
			b.pdf.ImageOptions(name, 0, 0, w, h, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			return
		}
		b.r.logger.Warn("background image unavailable", slog.String("source", bg.ImageURL))
		b.fill(render.BackgroundFallback, 0, 0, w, h)
		info.Warnings = append(info.Warnings, render.BackgroundWarning(bg.ImageURL,
			"background image unavailable, using "+render.BackgroundFallback))
	default:
		b.fill(bg.Color, 0, 0, w, h)
	}
}

func (b *builder) useFont(family string, bold bool, sizeMM float64) {
	f := b.r.fonts.Lookup(family, bold)
	key := f.Key()
	if !b.fonts[key] {
		b.pdf.AddUTF8FontFromBytes(key, "", f.TTF)
		b.fonts[key] = true
	}
	b.pdf.SetFont(key, "", 0)
	b.pdf.SetFontUnitSize(sizeMM)
}

func (b *builder) text(el render.Element) {
	if el.Text == "" || el.FontSize <= 0 {
		return
	}
	pdf := b.pdf
	b.useFont(el.Style.FontFamily, el.Style.IsBold(), el.FontSize)
	pdf.SetTextColor(b.color(el.Style.Color, card.DefaultTextColor))

	y := el.Box.Y + render.BaselineOffset(el.FontSize)
	for _, para := range render.Lines(el.Text) {
		lines := []string{para}
		if para != "" && el.Box.Width > 0 {
			lines = pdf.SplitText(para, el.Box.Width)
		}
		for _, line := range lines {
			x := el.Box.X
			switch el.Style.TextAlign {
			case "center":
				x += (el.Box.Width - pdf.GetStringWidth(line)) / 2
			case "right":
				x += el.Box.Width - pdf.GetStringWidth(line)
			}
			if line != "" {
				pdf.Text(x, y, line)
			}
			y += el.FontSize * render.LineHeight
		}
	}
}

func (b *builder) image(el render.Element, info *PageInfo) {
	box := el.Box
	if box.Width <= 0 || box.Height <= 0 {
		return
	}
	if el.Image.Source != "" {
		if name, ok := b.embed(el.Image.Source, box.Width, box.Height); ok {
			b.pdf.ImageOptions(name, box.X, box.Y, box.Width, box.Height, false, fpdf.ImageOptions{ImageType: "PNG"}, 0, "")
			return
		}
	}

	reason := "no image source"
	if el.Image.Source != "" {
		reason = "image unavailable"
		if err := b.fetched[el.Image.Source].Err; err != nil {
			reason = err.Error()
		}
		b.r.logger.Warn("image unavailable, drawing placeholder",
			slog.String("element_id", el.ID),
			slog.String("source", el.Image.Source),
			slog.String("reason", reason),
		)
	}
	info.Warnings = append(info.Warnings, render.PlaceholderWarning(el, reason))
	b.placeholder(el)
}

func (b *builder) placeholder(el render.Element) {
	pdf := b.pdf
	box := el.Box

	pdf.SetFillColor(b.color(render.PlaceholderFill, render.PlaceholderFill))
	pdf.SetDrawColor(b.color(render.PlaceholderBorder, render.PlaceholderBorder))
	pdf.SetLineWidth(0.2)
	pdf.SetDashPattern([]float64{1, 0.5}, 0)
	pdf.Rect(box.X, box.Y, box.Width, box.Height, "FD")
	pdf.SetDashPattern([]float64{}, 0)

	if el.Image.Label == "" {
		return
	}
	b.useFont("", false, render.PlaceholderFontSize)
	pdf.SetTextColor(b.color(render.PlaceholderText, render.PlaceholderText))
	tw := pdf.GetStringWidth(el.Image.Label)
	x := box.X + (box.Width-tw)/2
	y := box.Y + box.Height/2 + render.PlaceholderFontSize*0.35
	pdf.Text(x, y, el.Image.Label)
}

// embed registers the fetched image cover-cropped to a w x h mm box at the configured DPI.
func (b *builder) embed(src string, w, h float64) (string, bool) {
	res, ok := b.fetched[src]
	if !ok || res.Err != nil || res.Image == nil {
		return "", false
	}
	dpi := b.opts.DPI()
	pw, ph := imaging.Pixels(w, dpi), imaging.Pixels(h, dpi)
	key := fmt.Sprintf("%s|%dx%d", src, pw, ph)
	if name, ok := b.images[key]; ok {
		return name, true
	}

	var img image.Image = imaging.Cover(res.Image, pw, ph)
	if b.opts.Grayscale() {
		img = imaging.Grayscale(img)
	}
	data, err := imaging.EncodePNG(img)
	if err != nil {
		b.r.logger.Warn("encode image failed", slog.String("source", src), slog.Any("error", err))
		return "", false
	}
	name := fmt.Sprintf("img-%d", len(b.images))
	b.pdf.RegisterImageOptionsReader(name, fpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
	if b.pdf.Err() {
		return "", false
	}
	b.images[key] = name
	return name, true
}
