// Package engine wires the renderers from configuration for the api, worker and admin binaries.
package engine

import (
	"context"
	"fmt"
	"log/slog"

	"idcard/internal/config"
	"idcard/internal/fonts"
	"idcard/internal/imagefetch"
	"idcard/internal/pdf"
	"idcard/internal/render"
	"idcard/internal/render/canvas"
	"idcard/internal/render/document"
	"idcard/internal/render/preview"
)

// Printer renders a batch of cards into one PDF.
type Printer interface {
	PrintCards(ctx context.Context, cards []render.Card, opts document.PrintOptions) ([]byte, []render.Warning, error)
}

// Thumbnailer rasterises one card to PNG.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, c render.Card, widthPx int) ([]byte, []render.Warning, error)
}

// Engines holds the configured renderers. All of them are safe for concurrent use.
type Engines struct {
	Pipeline    *render.Pipeline
	Fetcher     *imagefetch.Client
	Fonts       *fonts.Registry
	Preview     *preview.Renderer
	Document    *document.Renderer
	Printer     Printer
	Thumbnailer Thumbnailer

	canvasScale float64
	fetchLimit  int
}

// Build creates the renderers. objects may be nil when object storage is not configured.
func Build(cfg config.RenderConfig, objects imagefetch.ObjectOpener, logger *slog.Logger) (*Engines, error) {
	if logger == nil {
		logger = slog.Default()
	}

	registry := fonts.NewRegistry()
	if cfg.FontDir != "" {
		n, err := registry.LoadDir(cfg.FontDir, logger)
		if err != nil {
			return nil, fmt.Errorf("load fonts: %w", err)
		}
		logger.Info("fonts loaded", slog.String("dir", cfg.FontDir), slog.Int("faces", n))
	}

	fetcher := imagefetch.New(imagefetch.Options{
		Timeout:   cfg.FetchTimeout,
		MaxBytes:  cfg.MaxImageBytes,
		MaxPixels: cfg.MaxImagePixels,
		LocalRoot: cfg.LocalImageRoot,
		Objects:   objects,
		Logger:    logger,
	})

	pipeline := render.NewPipeline(
		render.WithTextColor(cfg.DefaultTextColor),
		render.WithLogger(logger),
	)

	previewRenderer := preview.New(pipeline,
		preview.WithFetcher(fetcher, cfg.FetchConcurrency),
		preview.WithFonts(registry),
		preview.WithMaxThumbnailSide(cfg.MaxThumbnailPx),
	)

	e := &Engines{
		Pipeline:    pipeline,
		Fetcher:     fetcher,
		Fonts:       registry,
		Preview:     previewRenderer,
		Document:    document.New(pipeline, document.WithFetcher(fetcher, cfg.FetchConcurrency), document.WithFonts(registry)),
		canvasScale: cfg.CanvasScale,
		fetchLimit:  cfg.FetchConcurrency,
	}

	switch cfg.Engine {
	case config.EngineChromium:
		e.Printer = pdf.NewBrowserPrinter(e.Preview, nil, logger)
		e.Thumbnailer = pdf.NewBrowserThumbnailer(e.Preview, nil, cfg.MaxThumbnailPx)
	default:
		e.Printer = e.Document
		e.Thumbnailer = e.Preview
	}
	return e, nil
}

// Canvas returns a canvas renderer at scale, or at the configured scale when scale is not positive.
func (e *Engines) Canvas(scale float64) *canvas.Renderer {
	if scale <= 0 {
		scale = e.canvasScale
	}
	return canvas.New(e.Pipeline, canvas.WithScale(scale), canvas.WithFetcher(e.Fetcher, e.fetchLimit))
}
