package pdf

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"idcard/internal/card"
	"idcard/internal/render"
	"idcard/internal/render/document"
	"idcard/internal/render/preview"
)

func design() card.TemplateDesign {
	return card.TemplateDesign{
		Background: card.Background{Kind: card.BackgroundSolid, Value: "#1e40af"},
		Dimensions: card.Dimensions{Width: 85.6, Height: 54},
		Elements: []card.Element{
			{ID: "name", Kind: card.KindText, Position: card.Point{X: 5, Y: 5}, Size: card.Size{Width: 50, Height: 6}, Content: "{{studentName}}"},
		},
	}
}

func TestBrowserPrinter_PassesLayoutToExporter(t *testing.T) {
	var got string
	export := func(_ context.Context, html []byte) ([]byte, error) {
		got = string(html)
		return []byte("%PDF-1.7 fake"), nil
	}
	p := NewBrowserPrinter(preview.New(nil), export, nil)

	cards := []render.Card{{Design: design(), Student: &card.Student{NameEnglish: "Arif Rahman"}}}
	data, _, err := p.PrintCards(context.Background(), cards, document.PrintOptions{Copies: 2, ColorMode: document.ColorModeGrayscale})
	if err != nil {
		t.Fatalf("print: %v", err)
	}
	if string(data) != "%PDF-1.7 fake" {
		t.Fatalf("unexpected output %q", data)
	}
	if strings.Count(got, `<div class="idcard-page"`) != 2 || !strings.Contains(got, "Arif Rahman") {
		t.Fatalf("unexpected html:\n%s", got)
	}
	if !strings.Contains(got, "grayscale(100%)") {
		t.Fatalf("expected grayscale filter:\n%s", got)
	}
}

func TestBrowserPrinter_ConfigurationErrorSkipsBrowser(t *testing.T) {
	called := false
	p := NewBrowserPrinter(preview.New(nil), func(context.Context, []byte) ([]byte, error) {
		called = true
		return nil, errors.New("unexpected")
	}, nil)

	bad := design()
	bad.Dimensions.Width = -5
	_, _, err := p.PrintCards(context.Background(), []render.Card{{Design: bad}}, document.DefaultPrintOptions())
	if !card.IsConfigurationError(err) || called {
		t.Fatalf("expected configuration error without launching a browser, got %v (called=%v)", err, called)
	}
}

func TestBrowserPrinter_EmptyBatch(t *testing.T) {
	p := NewBrowserPrinter(preview.New(nil), func(context.Context, []byte) ([]byte, error) {
		t.Fatalf("empty batch must not launch a browser")
		return nil, nil
	}, nil)
	data, _, err := p.PrintCards(context.Background(), nil, document.DefaultPrintOptions())
	if err != nil || !bytes.Contains(data, []byte("/Count 0")) {
		t.Fatalf("expected empty pdf, got %v", err)
	}
}

func TestBrowserThumbnailer(t *testing.T) {
	var gotHTML string
	var gotW, gotH float64
	var gotPx int
	capture := func(_ context.Context, html []byte, widthMM, heightMM float64, widthPx int) ([]byte, error) {
		gotHTML, gotW, gotH, gotPx = string(html), widthMM, heightMM, widthPx
		return []byte("png"), nil
	}
	th := NewBrowserThumbnailer(preview.New(nil), capture, 0)

	data, _, err := th.Thumbnail(context.Background(), render.Card{Design: design()}, 340)
	if err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if string(data) != "png" || gotW != 85.6 || gotH != 54 || gotPx != 340 {
		t.Fatalf("unexpected capture call: %q %v %v %d", data, gotW, gotH, gotPx)
	}
	if strings.Count(gotHTML, `<div class="idcard-page"`) != 1 || !strings.Contains(gotHTML, "{{studentName}}") {
		t.Fatalf("unexpected html:\n%s", gotHTML)
	}

	if _, _, err := th.Thumbnail(context.Background(), render.Card{Design: design()}, 0); err == nil {
		t.Fatalf("expected error for zero width")
	}
}

func TestBrowserThumbnailer_NormalizesUnitsAndBoundsSize(t *testing.T) {
	var gotW, gotH float64
	var gotPx int
	capture := func(_ context.Context, _ []byte, widthMM, heightMM float64, widthPx int) ([]byte, error) {
		gotW, gotH, gotPx = widthMM, heightMM, widthPx
		return []byte("png"), nil
	}
	th := NewBrowserThumbnailer(preview.New(nil), capture, 1000)

	d := card.TemplateDesign{
		Background: card.Background{Kind: card.BackgroundSolid, Value: "#ffffff"},
		Dimensions: card.Dimensions{Width: 3.37, Height: 2.125},
		Units:      card.UnitInch,
		Elements: []card.Element{
			{ID: "name", Kind: card.KindText, Position: card.Point{X: 0.2, Y: 0.2}, Size: card.Size{Width: 2, Height: 0.25}, Content: "{{studentName}}"},
		},
	}
	if _, _, err := th.Thumbnail(context.Background(), render.Card{Design: d}, 5000); err != nil {
		t.Fatalf("thumbnail: %v", err)
	}
	if math.Abs(gotW-3.37*25.4) > 1e-9 || math.Abs(gotH-2.125*25.4) > 1e-9 {
		t.Fatalf("capture got %vx%v, want millimetres", gotW, gotH)
	}
	if gotPx != 1000 {
		t.Fatalf("width = %d, want it bounded to 1000", gotPx)
	}
}
