package pdf

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"idcard/internal/render"
	"idcard/internal/render/document"
	"idcard/internal/render/preview"
)

const defaultTimeout = 60 * time.Second

// HTMLSource produces a printable HTML document for a batch of cards.
type HTMLSource interface {
	PrintHTML(ctx context.Context, cards []render.Card, ps preview.PrintSettings) ([]byte, []render.Warning, error)
}

// PageExporter turns an HTML document into PDF bytes.
type PageExporter func(ctx context.Context, html []byte) ([]byte, error)

// BrowserPrinter prints cards through headless Chromium. Page sizes come from the CSS @page rules.
type BrowserPrinter struct {
	source HTMLSource
	export PageExporter
	logger *slog.Logger
}

// NewBrowserPrinter builds a printer. A nil export uses GeneratePDFFromHTML.
func NewBrowserPrinter(source HTMLSource, export PageExporter, logger *slog.Logger) *BrowserPrinter {
	if export == nil {
		export = GeneratePDFFromHTML
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BrowserPrinter{source: source, export: export, logger: logger}
}

// PrintCards renders cards into one PDF. A design error in any card aborts the batch.
func (p *BrowserPrinter) PrintCards(ctx context.Context, cards []render.Card, opts document.PrintOptions) ([]byte, []render.Warning, error) {
	opts = opts.Normalize()
	if len(cards) == 0 {
		doc, err := document.New(nil).RenderBatch(ctx, nil, opts)
		if err != nil {
			return nil, nil, err
		}
		return doc.Bytes(), nil, nil
	}

	html, warnings, err := p.source.PrintHTML(ctx, cards, preview.PrintSettings{
		Copies:    opts.Copies,
		Grayscale: opts.Grayscale(),
	})
	if err != nil {
		return nil, nil, err
	}

	started := time.Now()
	data, err := p.export(ctx, html)
	if err != nil {
		return nil, warnings, err
	}
	p.logger.Debug("chromium print finished",
		slog.Int("cards", len(cards)),
		slog.Duration("took", time.Since(started)),
	)
	return data, warnings, nil
}

// openPage launches headless Chromium and loads html into a fresh page.
// The returned cleanup closes the page, the browser and the launcher.
func openPage(ctx context.Context, html []byte) (_ *rod.Page, cleanup func(), err error) {
	var cleanups []func()
	cleanup = func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	defer func() {
		if err != nil {
			cleanup()
		}
	}()

	launch := launcher.New().
		Headless(true).
		NoSandbox(true).
		Context(ctx)
	if path, ok := launcher.LookPath(); ok {
		launch = launch.Bin(path)
	}

	browserURL, err := launch.Launch()
	if err != nil {
		return nil, cleanup, fmt.Errorf("launch chromium: %w", err)
	}
	cleanups = append(cleanups, launch.Cleanup)

	browser := rod.New().ControlURL(browserURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, cleanup, fmt.Errorf("connect browser: %w", err)
	}
	cleanups = append(cleanups, func() { _ = browser.Close() })

	page, err := browser.Timeout(defaultTimeout).Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, cleanup, fmt.Errorf("create page: %w", err)
	}
	cleanups = append(cleanups, func() { _ = page.Close() })

	page = page.Timeout(defaultTimeout)
	if err := page.SetDocumentContent(string(html)); err != nil {
		return nil, cleanup, fmt.Errorf("set document content: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, cleanup, fmt.Errorf("wait load: %w", err)
	}
	return page, cleanup, nil
}

// GeneratePDFFromHTML renders HTML in headless Chromium and returns the PDF bytes.
func GeneratePDFFromHTML(ctx context.Context, html []byte) ([]byte, error) {
	page, cleanup, err := openPage(ctx, html)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	if err := (proto.EmulationSetEmulatedMedia{Media: "print"}).Call(page); err != nil {
		return nil, fmt.Errorf("set emulated media to print: %w", err)
	}

	reader, err := page.PDF(&proto.PagePrintToPDF{
		PrintBackground:   true,
		PreferCSSPageSize: true,
		MarginTop:         float64Ptr(0),
		MarginBottom:      float64Ptr(0),
		MarginLeft:        float64Ptr(0),
		MarginRight:       float64Ptr(0),
	})
	if err != nil {
		return nil, fmt.Errorf("export pdf: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read pdf bytes: %w", err)
	}
	return data, nil
}

func float64Ptr(value float64) *float64 {
	return &value
}
