package preview

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"strconv"
	"strings"

	"idcard/internal/card"
	"idcard/internal/imagefetch"
	"idcard/internal/imaging"
	"idcard/internal/layout"
	"idcard/internal/render"
)

var fragmentTmpl = template.Must(template.New("fragment").Parse(
	`<div class="idcard" style="{{.Style}}">{{range .Nodes}}{{template "node" .}}{{end}}</div>
{{define "node"}}<div class="idcard-{{.Kind}}" data-id="{{.ID}}" style="{{.Style}}">` +
		`{{if .Image}}<img src="{{.Image}}" alt="{{.Label}}" style="width:100%;height:100%;object-fit:cover;display:block">` +
		`{{else if .Label}}{{.Label}}{{else}}{{.Text}}{{end}}</div>{{end}}`))

var printTmpl = template.Must(template.New("print").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>ID cards</title>
<style>
html, body { margin: 0; padding: 0; }
.idcard-page { position: relative; overflow: hidden; break-after: page; }
.idcard-page:last-child { break-after: auto; }
{{if .Grayscale}}html { filter: grayscale(100%); }
{{end}}{{range .Pages}}@page {{.Name}} { size: {{.Width}}mm {{.Height}}mm; margin: 0; }
{{end}}</style>
</head>
<body>
{{range .Sheets}}<div class="idcard-page" style="{{.Style}}">{{range .Nodes}}{{template "node" .}}{{end}}</div>
{{end}}</body>
</html>
{{define "node"}}<div class="idcard-{{.Kind}}" data-id="{{.ID}}" style="{{.Style}}">` +
	`{{if .Image}}<img src="{{.Image}}" alt="{{.Label}}" style="width:100%;height:100%;object-fit:cover;display:block">` +
	`{{else if .Label}}{{.Label}}{{else}}{{.Text}}{{end}}</div>{{end}}`))

type nodeView struct {
	ID    string
	Kind  NodeKind
	Style template.CSS
	Text  string
	Label string
	Image template.URL
}

type fragmentView struct {
	Style template.CSS
	Nodes []nodeView
}

type pageView struct {
	Name   string
	Width  string
	Height string
	Style  template.CSS
	Nodes  []nodeView
}

// HTML writes an embeddable fragment of t, widthPx wide and sized to the card's aspect ratio.
func HTML(w io.Writer, t *Tree, widthPx int) error {
	if widthPx <= 0 {
		widthPx = DefaultThumbnailWidth
	}
	heightPx := float64(widthPx) / t.AspectRatio
	view := fragmentView{
		Style: template.CSS(fmt.Sprintf("position:relative;width:%dpx;aspect-ratio:%s;overflow:hidden;%s",
			widthPx, num(t.AspectRatio), backgroundCSS(t.Background))),
		Nodes: nodeViews(t.Nodes, t.Dimensions.Height, func(pct float64) string { return num(pct/100*heightPx) + "px" }),
	}
	return fragmentTmpl.Execute(w, view)
}

// PrintSettings controls the printable document layout.
type PrintSettings struct {
	// Copies repeats each card consecutively. Values below 1 print one copy.
	Copies    int
	Grayscale bool
}

// PrintHTML renders cards as one HTML document with a named page per card sized in millimetres.
// With a fetcher configured, images are embedded and unreachable ones become placeholders;
// otherwise image URLs are left for the browser to load. Warnings are reported once per card.
func (r *Renderer) PrintHTML(ctx context.Context, cards []render.Card, ps PrintSettings) ([]byte, []render.Warning, error) {
	copies := max(ps.Copies, 1)
	var warnings []render.Warning
	sheets := make([]pageView, 0, len(cards)*copies)
	pages := make([]pageView, 0, len(cards))
	for i, c := range cards {
		prep, err := r.pipeline.Prepare(c, layout.Percentage())
		if err != nil {
			return nil, nil, fmt.Errorf("card %d: %w", i, err)
		}
		t := buildTree(prep)
		if r.fetcher != nil {
			fetched := r.fetch(ctx, prep)
			r.degrade(t, prep.Elements, fetched)
			embed(t, fetched)
		}
		warnings = append(warnings, t.Warnings...)

		heightMM := t.Dimensions.Height
		page := pageView{
			Name:   "card-" + strconv.Itoa(i),
			Width:  num(t.Dimensions.Width),
			Height: num(heightMM),
			Style: template.CSS(fmt.Sprintf("page:card-%d;width:%smm;height:%smm;%s",
				i, num(t.Dimensions.Width), num(heightMM), backgroundCSS(t.Background))),
			Nodes: nodeViews(t.Nodes, heightMM, func(pct float64) string { return num(pct/100*heightMM) + "mm" }),
		}
		pages = append(pages, page)
		for range copies {
			sheets = append(sheets, page)
		}
	}

	view := struct {
		Pages, Sheets []pageView
		Grayscale     bool
	}{pages, sheets, ps.Grayscale}
	var buf bytes.Buffer
	if err := printTmpl.Execute(&buf, view); err != nil {
		return nil, nil, fmt.Errorf("execute print template: %w", err)
	}
	return buf.Bytes(), warnings, nil
}

// embed replaces fetched image URLs with PNG data URIs so the print document is self-contained.
func embed(t *Tree, fetched map[string]imagefetch.Result) {
	encoded := map[string]string{}
	uri := func(src string) string {
		if u, ok := encoded[src]; ok {
			return u
		}
		res := fetched[src]
		if res.Image == nil {
			return src
		}
		data, err := imaging.EncodePNG(res.Image)
		if err != nil {
			return src
		}
		u := "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
		encoded[src] = u
		return u
	}
	if t.Background.ImageURL != "" {
		t.Background.ImageURL = uri(t.Background.ImageURL)
	}
	for i, n := range t.Nodes {
		if n.Kind == NodeImage {
			t.Nodes[i].ImageURL = uri(n.ImageURL)
		}
	}
}

// nodeViews styles nodes; fontSize maps a percentage of the card height to a CSS length.
func nodeViews(nodes []Node, heightMM float64, fontSize func(pct float64) string) []nodeView {
	out := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		box := fmt.Sprintf("position:absolute;left:%s%%;top:%s%%;width:%s%%;height:%s%%;",
			num(n.Left), num(n.Top), num(n.Width), num(n.Height))
		v := nodeView{ID: n.ID, Kind: n.Kind}
		switch n.Kind {
		case NodeText:
			v.Text = n.Text
			v.Style = template.CSS(box + fmt.Sprintf(
				"font-size:%s;font-family:%s;font-weight:%s;color:%s;text-align:%s;line-height:%s;white-space:pre-line;overflow:visible",
				fontSize(n.FontSize), cssFamily(n.FontFamily), cssWeight(n.FontWeight), safeColor(n.Color), cssAlign(n.TextAlign), num(render.LineHeight)))
		case NodeImage:
			v.Label = n.Label
			if u, ok := safeURL(n.ImageURL); ok {
				v.Image = u
				v.Style = template.CSS(box + "overflow:hidden")
				break
			}
			// A source the browser cannot load draws the same box as an unavailable image.
			v.Kind = NodePlaceholder
			v.Style = placeholderCSS(box, heightMM, fontSize)
		case NodePlaceholder:
			v.Label = n.Label
			v.Style = placeholderCSS(box, heightMM, fontSize)
		}
		out = append(out, v)
	}
	return out
}

func placeholderCSS(box string, heightMM float64, fontSize func(pct float64) string) template.CSS {
	return template.CSS(box + fmt.Sprintf(
		"box-sizing:border-box;background:%s;border:1px dashed %s;color:%s;font-size:%s;display:flex;align-items:center;justify-content:center",
		render.PlaceholderFill, render.PlaceholderBorder, render.PlaceholderText, fontSize(render.PlaceholderFontSize/heightMM*100)))
}

func backgroundCSS(p render.Paint) string {
	u, ok := safeURL(p.ImageURL)
	switch {
	case ok:
		return fmt.Sprintf("background:%s url(%q) center/cover no-repeat", safeColor(p.Color), string(u))
	case p.Kind == card.BackgroundGradient && p.Gradient != nil:
		return "background:" + p.Gradient.CSS()
	default:
		return "background:" + safeColor(p.Color)
	}
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func safeColor(s string) string {
	c, err := card.ParseColor(s)
	if err != nil {
		return card.DefaultTextColor
	}
	return c.Hex()
}

// safeURL reports whether a browser can load s as an image source.
func safeURL(s string) (template.URL, bool) {
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") || strings.HasPrefix(lower, "data:image/") ||
		(strings.HasPrefix(s, "/") && !strings.HasPrefix(s, "//")) {
		return template.URL(s), true
	}
	return "", false
}

func cssFamily(f string) string {
	f = strings.Map(func(r rune) rune {
		if r == '"' || r == ';' || r == '<' || r == '>' || r == '{' || r == '}' || r == '\\' {
			return -1
		}
		return r
	}, f)
	return fmt.Sprintf("%q, sans-serif", f)
}

func cssWeight(w string) string {
	switch w {
	case "normal", "bold", "bolder", "lighter":
		return w
	}
	if n, err := strconv.Atoi(w); err == nil && n > 0 && n <= 1000 {
		return w
	}
	return card.DefaultFontWeight
}

func cssAlign(a string) string {
	switch a {
	case "center", "right":
		return a
	}
	return card.DefaultTextAlign
}
