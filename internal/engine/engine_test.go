package engine

import (
	"testing"
	"time"

	"idcard/internal/config"
	"idcard/internal/pdf"
	"idcard/internal/render/document"
	"idcard/internal/render/preview"
)

func renderConfig(engine string) config.RenderConfig {
	return config.RenderConfig{
		CanvasScale:      3,
		ThumbnailWidthPx: 340,
		MaxThumbnailPx:   1024,
		FetchTimeout:     time.Second,
		FetchConcurrency: 4,
		MaxImageBytes:    1 << 20,
		Engine:           engine,
		DefaultTextColor: "#111111",
	}
}

func TestBuild_SelectsEngine(t *testing.T) {
	e, err := Build(renderConfig(config.EngineFPDF), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := e.Printer.(*document.Renderer); !ok {
		t.Fatalf("fpdf engine printer = %T", e.Printer)
	}
	if _, ok := e.Thumbnailer.(*preview.Renderer); !ok {
		t.Fatalf("fpdf engine thumbnailer = %T", e.Thumbnailer)
	}
	if got := e.Preview.MaxThumbnailSide(); got != 1024 {
		t.Fatalf("max thumbnail side = %d", got)
	}
	if got := e.Pipeline.TextColor(); got != "#111111" {
		t.Fatalf("text colour = %s", got)
	}

	e, err = Build(renderConfig(config.EngineChromium), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if _, ok := e.Printer.(*pdf.BrowserPrinter); !ok {
		t.Fatalf("chromium engine printer = %T", e.Printer)
	}
	if _, ok := e.Thumbnailer.(*pdf.BrowserThumbnailer); !ok {
		t.Fatalf("chromium engine thumbnailer = %T", e.Thumbnailer)
	}
}

func TestCanvasScale(t *testing.T) {
	e, err := Build(renderConfig(config.EngineFPDF), nil, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := e.Canvas(0).Scale(); got != 3 {
		t.Fatalf("default scale = %v", got)
	}
	if got := e.Canvas(5).Scale(); got != 5 {
		t.Fatalf("explicit scale = %v", got)
	}
}

func TestBuild_BadFontDir(t *testing.T) {
	cfg := renderConfig(config.EngineFPDF)
	cfg.FontDir = t.TempDir() + "/missing"
	if _, err := Build(cfg, nil, nil); err == nil {
		t.Fatalf("expected error for missing font dir")
	}
}
