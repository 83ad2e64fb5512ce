package pdf

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/go-rod/rod/lib/proto"

	"idcard/internal/card"
	"idcard/internal/render"
	"idcard/internal/render/preview"
)

// cssPxPerMM is the CSS reference resolution: 96px per inch.
const cssPxPerMM = 96 / 25.4

// PageCapture rasterises the first card page of html to PNG at widthPx.
type PageCapture func(ctx context.Context, html []byte, widthMM, heightMM float64, widthPx int) ([]byte, error)

// BrowserThumbnailer renders template thumbnails through headless Chromium so previews
// match what the chromium engine prints.
type BrowserThumbnailer struct {
	source  HTMLSource
	capture PageCapture
	maxSide int
}

// NewBrowserThumbnailer builds a thumbnailer whose output sides never exceed maxSide pixels.
// A nil capture uses CapturePNG.
func NewBrowserThumbnailer(source HTMLSource, capture PageCapture, maxSide int) *BrowserThumbnailer {
	if capture == nil {
		capture = CapturePNG
	}
	if maxSide <= 0 {
		maxSide = preview.DefaultMaxThumbnailSide
	}
	return &BrowserThumbnailer{source: source, capture: capture, maxSide: maxSide}
}

// Thumbnail renders one card to PNG widthPx wide.
func (t *BrowserThumbnailer) Thumbnail(ctx context.Context, c render.Card, widthPx int) ([]byte, []render.Warning, error) {
	if widthPx <= 0 {
		return nil, nil, errors.New("thumbnail width must be positive")
	}
	design, err := card.Prepare(c.Design)
	if err != nil {
		return nil, nil, err
	}
	html, warnings, err := t.source.PrintHTML(ctx, []render.Card{c}, preview.PrintSettings{Copies: 1})
	if err != nil {
		return nil, nil, err
	}
	dim := design.Dimensions
	widthPx, _ = preview.ThumbnailSize(dim, widthPx, t.maxSide)
	data, err := t.capture(ctx, html, dim.Width, dim.Height, widthPx)
	if err != nil {
		return nil, warnings, err
	}
	return data, warnings, nil
}

// CapturePNG loads html in headless Chromium and screenshots the first card page.
func CapturePNG(ctx context.Context, html []byte, widthMM, heightMM float64, widthPx int) ([]byte, error) {
	page, cleanup, err := openPage(ctx, html)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	cssWidth := widthMM * cssPxPerMM
	cssHeight := heightMM * cssPxPerMM
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(math.Ceil(cssWidth)),
		Height:            int(math.Ceil(cssHeight)),
		DeviceScaleFactor: float64(widthPx) / cssWidth,
	}); err != nil {
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	element, err := page.Timeout(5 * time.Second).Element(".idcard-page")
	if err != nil {
		return nil, fmt.Errorf("find card page: %w", err)
	}
	data, err := element.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("card screenshot: %w", err)
	}
	return data, nil
}
