package preview

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"idcard/internal/card"
	"idcard/internal/errcode"
	"idcard/internal/imagefetch"
	"idcard/internal/render"
	"idcard/internal/render/canvas"
)

func exampleDesign() card.TemplateDesign {
	return card.TemplateDesign{
		Background: card.Background{Kind: card.BackgroundSolid, Value: "#1e40af"},
		Dimensions: card.Dimensions{Width: 85.6, Height: 54},
		Elements: []card.Element{
			{ID: "name", Kind: card.KindText, Position: card.Point{X: 25, Y: 20}, Size: card.Size{Width: 55, Height: 5}, Content: "{{studentName}}"},
			{ID: "photo", Kind: card.KindImage, Position: card.Point{X: 5, Y: 15}, Size: card.Size{Width: 15, Height: 20}, Content: "{{studentPhoto}}"},
			{ID: "barcode", Kind: card.KindBarcode, Position: card.Point{X: 5, Y: 45}, Size: card.Size{Width: 30, Height: 6}, Content: "{{idNumber}}"},
		},
	}
}

type stubFetcher map[string]error

func (f stubFetcher) Fetch(_ context.Context, source string) (image.Image, error) {
	if err, ok := f[source]; ok {
		return nil, err
	}
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	return img, nil
}

func TestRender_ExampleScenario(t *testing.T) {
	tree, err := New(nil).Render(context.Background(), exampleDesign(), &card.Student{NameEnglish: "Arif Rahman"}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	if math.Abs(tree.AspectRatio-85.6/54) > 1e-9 {
		t.Fatalf("unexpected aspect ratio %v", tree.AspectRatio)
	}
	name := tree.Nodes[0]
	if name.Text != "Arif Rahman" {
		t.Fatalf("unexpected text %q", name.Text)
	}
	got := []float64{name.Left, name.Top, name.Width, name.Height}
	want := []float64{29.2056, 37.037, 64.2523, 9.2593}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Fatalf("percent box mismatch (-want +got):\n%s", diff)
	}

	photo := tree.Nodes[1]
	if photo.Kind != NodePlaceholder || photo.Label != "Photo" {
		t.Fatalf("missing photo must be a labelled placeholder, got %+v", photo)
	}
	if len(tree.Nodes) != 2 || render.CountCode(tree.Warnings, errcode.Skipped) != 1 {
		t.Fatalf("barcode must be skipped with a warning: %+v", tree.Warnings)
	}

	raw, err := json.Marshal(tree)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"aspectRatio"`)) || !bytes.Contains(raw, []byte(`"kind":"placeholder"`)) {
		t.Fatalf("unexpected json %s", raw)
	}
}

func TestHTML_EscapesAndSizes(t *testing.T) {
	d := exampleDesign()
	d.Elements[0].Content = "<script>alert(1)</script> {{studentName}}"
	tree, err := New(nil).Render(context.Background(), d, &card.Student{NameEnglish: "Arif"}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	var buf bytes.Buffer
	if err := HTML(&buf, tree, 428); err != nil {
		t.Fatalf("html: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"width:428px",
		"overflow:hidden",
		"left:29.205",
		"&lt;script&gt;alert(1)&lt;/script&gt; Arif",
		">Photo<",
		"background:#1e40af",
		"color:#000000",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("html missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "<script>") {
		t.Fatalf("text must be escaped:\n%s", out)
	}
}

func TestThumbnail(t *testing.T) {
	r := New(nil, WithFetcher(stubFetcher{}, 2))
	student := &card.Student{NameEnglish: "Arif Rahman", PhotoURL: "https://cdn.example.com/a.png"}

	data, warnings, err := r.Thumbnail(context.Background(), render.Card{Design: exampleDesign(), Student: student}, 428)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 428 || b.Dy() != 270 {
		t.Fatalf("unexpected size %v", b)
	}
	if got := color.NRGBAModel.Convert(img.At(1, 1)).(color.NRGBA); got != (color.NRGBA{R: 0x1e, G: 0x40, B: 0xaf, A: 0xff}) {
		t.Fatalf("background not painted, got %v", got)
	}
	// The fetched photo is white and covers its box (5,15)-(20,35) mm at 5 px/mm.
	if got := color.NRGBAModel.Convert(img.At(60, 120)).(color.NRGBA); got != (color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}) {
		t.Fatalf("photo not painted, got %v", got)
	}
	if render.CountCode(warnings, errcode.ResourceMissing) != 0 {
		t.Fatalf("unexpected placeholder warnings %+v", warnings)
	}
}

func TestThumbnail_PlaceholderOnFetchFailure(t *testing.T) {
	src := "https://cdn.example.com/missing.png"
	r := New(nil, WithFetcher(stubFetcher{src: fmt.Errorf("%w: 404", imagefetch.ErrUnavailable)}, 2))

	data, warnings, err := r.Thumbnail(context.Background(), render.Card{Design: exampleDesign(), Student: &card.Student{PhotoURL: src}}, 428)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if render.CountCode(warnings, errcode.ResourceMissing) != 1 {
		t.Fatalf("expected one placeholder warning, got %+v", warnings)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := color.NRGBAModel.Convert(img.At(40, 85)).(color.NRGBA); got != (color.NRGBA{R: 0xe5, G: 0xe7, B: 0xeb, A: 0xff}) {
		t.Fatalf("placeholder fill not painted, got %v", got)
	}
}

func TestThumbnail_Gradient(t *testing.T) {
	d := exampleDesign()
	d.Background = card.Background{Kind: card.BackgroundGradient, Value: "linear-gradient(90deg, #000000 0%, #ffffff 100%)"}
	d.Elements = nil

	data, _, err := New(nil).Thumbnail(context.Background(), render.Card{Design: d}, 200)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	left := color.GrayModel.Convert(img.At(2, 10)).(color.Gray).Y
	right := color.GrayModel.Convert(img.At(197, 10)).(color.Gray).Y
	if left > 20 || right < 235 {
		t.Fatalf("expected dark-to-light gradient, got %d .. %d", left, right)
	}
}

func TestPrintHTML(t *testing.T) {
	broken := "https://cdn.example.com/broken.png"
	r := New(nil, WithFetcher(stubFetcher{broken: imagefetch.ErrUnavailable}, 4))

	small := exampleDesign()
	small.Dimensions = card.Dimensions{Width: 54, Height: 85.6}
	cards := []render.Card{
		{Design: exampleDesign(), Student: &card.Student{NameEnglish: "A", PhotoURL: "https://cdn.example.com/ok.png"}},
		{Design: small, Student: &card.Student{NameEnglish: "B", PhotoURL: broken}},
	}

	out, warnings, err := r.PrintHTML(context.Background(), cards, PrintSettings{})
	if err != nil {
		t.Fatalf("print html: %v", err)
	}
	html := string(out)
	for _, want := range []string{
		"size: 85.6mm 54mm",
		"size: 54mm 85.6mm",
		"page:card-1;width:54mm;height:85.6mm",
		"data:image/png;base64,",
		">Photo<",
	} {
		if !strings.Contains(html, want) {
			t.Fatalf("print html missing %q:\n%s", want, html)
		}
	}
	if render.CountCode(warnings, errcode.ResourceMissing) != 1 {
		t.Fatalf("expected exactly one placeholder, got %+v", warnings)
	}
	if strings.Contains(html, "grayscale") {
		t.Fatalf("colour output must not carry a grayscale filter")
	}

	out, warnings, err = r.PrintHTML(context.Background(), cards, PrintSettings{Copies: 3, Grayscale: true})
	if err != nil {
		t.Fatalf("print html with copies: %v", err)
	}
	if got := strings.Count(string(out), `<div class="idcard-page"`); got != 6 {
		t.Fatalf("expected 6 sheets, got %d", got)
	}
	if !strings.Contains(string(out), "filter: grayscale(100%)") {
		t.Fatalf("grayscale output must carry a grayscale filter")
	}
	if render.CountCode(warnings, errcode.ResourceMissing) != 1 {
		t.Fatalf("copies must not repeat warnings: %+v", warnings)
	}

	bad := exampleDesign()
	bad.Dimensions.Width = 0
	if _, _, err := r.PrintHTML(context.Background(), []render.Card{{Design: bad}}, PrintSettings{}); !card.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestRender_UnreachablePhotoMatchesCanvas(t *testing.T) {
	const missing = "https://cdn.example.com/missing.jpg"
	fetcher := stubFetcher{missing: fmt.Errorf("%w: status 404", imagefetch.ErrUnavailable)}
	student := &card.Student{NameEnglish: "Arif Rahman", PhotoURL: missing}

	scene, err := canvas.New(nil, canvas.WithFetcher(fetcher, 2)).Render(context.Background(), exampleDesign(), student, nil)
	if err != nil {
		t.Fatalf("canvas render: %v", err)
	}
	tree, err := New(nil, WithFetcher(fetcher, 2)).Render(context.Background(), exampleDesign(), student, nil)
	if err != nil {
		t.Fatalf("preview render: %v", err)
	}

	node, ok := scene.Node("photo")
	if !ok || node.Kind != canvas.NodePlaceholder || node.Label != "Photo" {
		t.Fatalf("canvas photo = %+v", node)
	}
	photo := tree.Nodes[1]
	if photo.Kind != NodePlaceholder || photo.Label != "Photo" || photo.ImageURL != "" {
		t.Fatalf("preview photo = %+v", photo)
	}
	if got, want := render.CountCode(tree.Warnings, errcode.ResourceMissing), render.CountCode(scene.Warnings, errcode.ResourceMissing); got != want || got != 1 {
		t.Fatalf("placeholder warnings: preview %d, canvas %d", got, want)
	}

	reachable, err := New(nil, WithFetcher(fetcher, 2)).Render(context.Background(), exampleDesign(),
		&card.Student{PhotoURL: "https://cdn.example.com/a.png"}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if n := reachable.Nodes[1]; n.Kind != NodeImage || n.ImageURL != "https://cdn.example.com/a.png" {
		t.Fatalf("reachable photo = %+v", n)
	}
}

func TestHTML_UnloadableSourceIsPlaceholder(t *testing.T) {
	d := exampleDesign()
	d.Background = card.Background{Kind: card.BackgroundImage, Value: "javascript:alert(1)"}
	tree, err := New(nil).Render(context.Background(), d, &card.Student{PhotoURL: "photos/arif.jpg"}, nil)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if tree.Nodes[1].Kind != NodeImage {
		t.Fatalf("without a fetcher the source is kept, got %+v", tree.Nodes[1])
	}

	var buf bytes.Buffer
	if err := HTML(&buf, tree, 428); err != nil {
		t.Fatalf("html: %v", err)
	}
	out := buf.String()
	if strings.Contains(out, "about:blank") || strings.Contains(out, "javascript") || strings.Contains(out, "<img") {
		t.Fatalf("unloadable sources leaked into html:\n%s", out)
	}
	for _, want := range []string{`class="idcard-placeholder" data-id="photo"`, ">Photo<", "dashed"} {
		if !strings.Contains(out, want) {
			t.Fatalf("html missing %q:\n%s", want, out)
		}
	}
}

func TestThumbnailSize(t *testing.T) {
	landscape := card.Dimensions{Width: 85.6, Height: 54}
	portrait := card.Dimensions{Width: 54, Height: 85.6}
	for name, tc := range map[string]struct {
		dim     card.Dimensions
		width   int
		maxSide int
		want    [2]int
	}{
		"default width":       {dim: landscape, width: 0, maxSide: 0, want: [2]int{428, 270}},
		"within bounds":       {dim: landscape, width: 856, maxSide: 2048, want: [2]int{856, 540}},
		"width clamped":       {dim: landscape, width: 1 << 30, maxSide: 2048, want: [2]int{2048, 1292}},
		"portrait height cap": {dim: portrait, width: 2000, maxSide: 2048, want: [2]int{1292, 2048}},
		"never zero":          {dim: card.Dimensions{Width: 1000, Height: 1}, width: 10, maxSide: 2048, want: [2]int{10, 1}},
	} {
		t.Run(name, func(t *testing.T) {
			w, h := ThumbnailSize(tc.dim, tc.width, tc.maxSide)
			if diff := cmp.Diff(tc.want, [2]int{w, h}); diff != "" {
				t.Fatalf("size mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestThumbnail_BoundedSize(t *testing.T) {
	data, _, err := New(nil, WithMaxThumbnailSide(300)).Thumbnail(context.Background(), render.Card{Design: exampleDesign()}, 1<<30)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Width != 300 || cfg.Height != 189 {
		t.Fatalf("size = %dx%d, want 300x189", cfg.Width, cfg.Height)
	}
}
