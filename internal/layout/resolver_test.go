package layout

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"idcard/internal/card"
)

func exampleDesign() card.TemplateDesign {
	return card.TemplateDesign{
		Background: card.Background{Kind: card.BackgroundSolid, Value: "#ffffff"},
		Dimensions: card.Dimensions{Width: 85.6, Height: 54},
		Elements: []card.Element{{
			ID:       "name",
			Kind:     card.KindText,
			Position: card.Point{X: 25, Y: 20},
			Size:     card.Size{Width: 55, Height: 5},
			Content:  "{{studentName}}",
		}},
	}
}

func TestToRendererSpace_PercentageExample(t *testing.T) {
	res, err := ToRendererSpace(exampleDesign(), Percentage())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	want := Box{X: 29.2056, Y: 37.037, Width: 64.2523, Height: 9.2593}
	if diff := cmp.Diff(want, res.Elements[0].Box, cmpopts.EquateApprox(0, 1e-3)); diff != "" {
		t.Fatalf("box mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Box{Width: 100, Height: 100}, res.Card, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Fatalf("card mismatch (-want +got):\n%s", diff)
	}
}

func TestToRendererSpace_AbsoluteAndDocument(t *testing.T) {
	res, err := ToRendererSpace(exampleDesign(), Canvas(3))
	if err != nil {
		t.Fatalf("resolve canvas: %v", err)
	}
	approx := cmpopts.EquateApprox(0, 1e-9)
	if diff := cmp.Diff(Box{X: 75, Y: 60, Width: 165, Height: 15}, res.Elements[0].Box, approx); diff != "" {
		t.Fatalf("canvas box mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Box{Width: 256.8, Height: 162}, res.Card, approx); diff != "" {
		t.Fatalf("canvas card mismatch (-want +got):\n%s", diff)
	}

	res, err = ToRendererSpace(exampleDesign(), Document())
	if err != nil {
		t.Fatalf("resolve document: %v", err)
	}
	if diff := cmp.Diff(Box{X: 25, Y: 20, Width: 55, Height: 5}, res.Elements[0].Box); diff != "" {
		t.Fatalf("document box mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Box{Width: 85.6, Height: 54}, res.Card); diff != "" {
		t.Fatalf("document page must match dimensions exactly (-want +got):\n%s", diff)
	}
}

func TestToRendererSpace_AspectRatioInvariance(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	targets := []RenderTarget{Canvas(3), Canvas(0.5), Percentage(), Document()}

	for i := 0; i < 200; i++ {
		d := exampleDesign()
		d.Dimensions = card.Dimensions{Width: 1 + rng.Float64()*300, Height: 1 + rng.Float64()*300}
		want := d.Dimensions.Width / d.Dimensions.Height

		for _, target := range targets {
			res, err := ToRendererSpace(d, target)
			if err != nil {
				t.Fatalf("resolve %v: %v", target, err)
			}
			if math.Abs(res.AspectRatio-want) > 1e-9 {
				t.Fatalf("%s aspect ratio: want %v got %v", target.Kind, want, res.AspectRatio)
			}

			// A percentage card filling a container of the card's own aspect ratio.
			w, h := res.Card.Width, res.Card.Height
			if target.Kind == PercentageOfContainer {
				w, h = res.Card.Width/100*d.Dimensions.Width, res.Card.Height/100*d.Dimensions.Height
			}
			if math.Abs(w/h-want) > 1e-9 {
				t.Fatalf("%s card ratio: want %v got %v", target.Kind, want, w/h)
			}
		}
	}
}

func TestToRendererSpace_PreservesOrder(t *testing.T) {
	d := exampleDesign()
	for _, id := range []string{"c", "a", "b"} {
		d.Elements = append(d.Elements, card.Element{ID: id, Kind: card.KindText})
	}

	for _, target := range []RenderTarget{Canvas(3), Percentage(), Document()} {
		res, err := ToRendererSpace(d, target)
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		var got []string
		for i, el := range res.Elements {
			if el.Index != i {
				t.Fatalf("index %d carries %d", i, el.Index)
			}
			got = append(got, el.Element.ID)
		}
		if diff := cmp.Diff([]string{"name", "c", "a", "b"}, got); diff != "" {
			t.Fatalf("order mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestToRendererSpace_Errors(t *testing.T) {
	d := exampleDesign()
	d.Dimensions.Width = 0
	_, err := ToRendererSpace(d, Percentage())
	if !card.IsConfigurationError(err) {
		t.Fatalf("expected configuration error for zero width, got %v", err)
	}

	d = exampleDesign()
	d.Dimensions.Height = 0
	if _, err := ToRendererSpace(d, Document()); !card.IsConfigurationError(err) {
		t.Fatalf("expected configuration error for zero height, got %v", err)
	}

	if _, err := ToRendererSpace(exampleDesign(), Canvas(0)); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
	if _, err := ToRendererSpace(exampleDesign(), RenderTarget{Kind: "pixels"}); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func TestScaleFontSize(t *testing.T) {
	dim := card.Dimensions{Width: 85.6, Height: 54}
	if got := ScaleFontSize(3, dim, Canvas(3)); got != 9 {
		t.Fatalf("canvas: %v", got)
	}
	if got := ScaleFontSize(5.4, dim, Percentage()); math.Abs(got-10) > 1e-9 {
		t.Fatalf("percentage: %v", got)
	}
	if got := ScaleFontSize(3, dim, Document()); got != 3 {
		t.Fatalf("document: %v", got)
	}
}
