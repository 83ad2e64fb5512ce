package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"idcard/internal/api/middleware"
	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/errcode"
	"idcard/internal/metrics"
	"idcard/internal/render"
	"idcard/internal/render/canvas"
	"idcard/internal/render/document"
	"idcard/internal/render/preview"
)

const maxDocumentCards = 200

// Preview response formats.
const (
	formatJSON = "json"
	formatHTML = "html"
	formatPNG  = "png"
)

// Printer renders a batch of cards into one PDF.
type Printer interface {
	PrintCards(ctx context.Context, cards []render.Card, opts document.PrintOptions) ([]byte, []render.Warning, error)
}

// Thumbnailer rasterises one card to PNG.
type Thumbnailer interface {
	Thumbnail(ctx context.Context, c render.Card, widthPx int) ([]byte, []render.Warning, error)
}

// RenderHandler exposes the three renderers synchronously.
type RenderHandler struct {
	db                *gorm.DB
	canvas            func(scale float64) *canvas.Renderer
	preview           *preview.Renderer
	printer           Printer
	thumbnailer       Thumbnailer
	thumbnailWidth    int
	maxThumbnailWidth int
	sessions          *editSessions
}

// NewRenderHandler builds the render endpoints. A nil thumbnailer rasterises with previewRenderer.
// PNG previews wider than maxThumbnailWidth are rejected.
func NewRenderHandler(db *gorm.DB, canvasFor func(scale float64) *canvas.Renderer, previewRenderer *preview.Renderer, printer Printer, thumbnailer Thumbnailer, thumbnailWidth, maxThumbnailWidth int) *RenderHandler {
	if thumbnailer == nil {
		thumbnailer = previewRenderer
	}
	if maxThumbnailWidth <= 0 {
		maxThumbnailWidth = previewRenderer.MaxThumbnailSide()
	}
	if thumbnailWidth <= 0 {
		thumbnailWidth = min(preview.DefaultThumbnailWidth, maxThumbnailWidth)
	}
	return &RenderHandler{
		db:                db,
		canvas:            canvasFor,
		preview:           previewRenderer,
		printer:           printer,
		thumbnailer:       thumbnailer,
		thumbnailWidth:    thumbnailWidth,
		maxThumbnailWidth: maxThumbnailWidth,
		sessions:          newEditSessions(),
	}
}

type renderRequest struct {
	TemplateID string                `json:"template_id"`
	Design     json.RawMessage       `json:"design"`
	StudentID  string                `json:"student_id"`
	StudentIDs []string              `json:"student_ids"`
	Scale      float64               `json:"scale"`
	Format     string                `json:"format"`
	WidthPx    int                   `json:"width_px"`
	Options    document.PrintOptions `json:"options"`
}

// source loads the design and settings shared by every card of the request.
func (h *RenderHandler) source(ctx context.Context, req renderRequest) (card.TemplateDesign, card.SchoolSettings, error) {
	var (
		design card.TemplateDesign
		err    error
	)
	switch {
	case len(req.Design) > 0 && string(req.Design) != "null":
		design, err = card.Parse(req.Design)
	case strings.TrimSpace(req.TemplateID) != "":
		_, design, err = database.LoadTemplate(ctx, h.db, strings.TrimSpace(req.TemplateID))
	default:
		return card.TemplateDesign{}, nil, errMissingDesign
	}
	if err != nil {
		return card.TemplateDesign{}, nil, err
	}

	settings, err := database.LoadSchoolSettings(ctx, h.db)
	if err != nil {
		return card.TemplateDesign{}, nil, err
	}
	return design, settings, nil
}

// student returns nil when no id is given: tokens then stay literal.
func (h *RenderHandler) student(ctx context.Context, id string) (*card.Student, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	return database.LoadStudent(ctx, h.db, id)
}

var errMissingDesign = errors.New("template_id or design is required")

func (h *RenderHandler) bind(c *gin.Context) (renderRequest, bool) {
	var req renderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return req, false
	}
	return req, true
}

func (h *RenderHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, errMissingDesign) {
		BadRequest(c, err.Error())
		return
	}
	if !card.IsConfigurationError(err) {
		middleware.LoggerFromContext(c).Error("render request failed", slog.Any("error", err))
	}
	renderFailure(c, err, "failed to render card")
}

// POST /v1/render/canvas
func (h *RenderHandler) Canvas(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	design, settings, err := h.source(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	student, err := h.student(ctx, req.StudentID)
	if err != nil {
		h.fail(c, err)
		return
	}

	started := time.Now()
	scene, err := h.canvas(req.Scale).Render(ctx, design, student, settings)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.ObserveRender(metrics.RendererCanvas, 1, scene.Placeholders(), started)
	c.JSON(http.StatusOK, scene)
}

// POST /v1/render/preview
func (h *RenderHandler) Preview(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	format := strings.ToLower(strings.TrimSpace(req.Format))
	if format == "" {
		format = formatJSON
	}
	if format != formatJSON && format != formatHTML && format != formatPNG {
		BadRequest(c, "format must be json, html or png")
		return
	}

	ctx := c.Request.Context()
	design, settings, err := h.source(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}
	student, err := h.student(ctx, req.StudentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	if req.WidthPx < 0 || req.WidthPx > h.maxThumbnailWidth {
		BadRequest(c, fmt.Sprintf("width_px must be between 1 and %d", h.maxThumbnailWidth))
		return
	}
	width := req.WidthPx
	if width == 0 {
		width = h.thumbnailWidth
	}

	started := time.Now()
	if format == formatPNG {
		png, warnings, err := h.thumbnailer.Thumbnail(ctx, render.Card{Design: design, Student: student, Settings: settings}, width)
		if err != nil {
			h.fail(c, err)
			return
		}
		metrics.ObserveRender(metrics.RendererPreview, 1, render.CountCode(warnings, errcode.ResourceMissing), started)
		c.Data(http.StatusOK, "image/png", png)
		return
	}

	tree, err := h.preview.Render(ctx, design, student, settings)
	if err != nil {
		h.fail(c, err)
		return
	}
	metrics.ObserveRender(metrics.RendererPreview, 1, render.CountCode(tree.Warnings, errcode.ResourceMissing), started)

	if format == formatJSON {
		c.JSON(http.StatusOK, tree)
		return
	}
	var buf bytes.Buffer
	if err := preview.HTML(&buf, tree, width); err != nil {
		h.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

// POST /v1/render/document
// Without student_ids the card is rendered once with tokens left literal.
func (h *RenderHandler) Document(c *gin.Context) {
	req, ok := h.bind(c)
	if !ok {
		return
	}
	if len(req.StudentIDs) > maxDocumentCards {
		BadRequest(c, fmt.Sprintf("at most %d students per document", maxDocumentCards))
		return
	}

	ctx := c.Request.Context()
	design, settings, err := h.source(ctx, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	var cards []render.Card
	if len(req.StudentIDs) == 0 {
		cards = []render.Card{{Design: design, Settings: settings}}
	} else {
		students, err := database.LoadStudents(ctx, h.db, req.StudentIDs)
		if err != nil {
			h.fail(c, err)
			return
		}
		cards = make([]render.Card, len(students))
		for i, s := range students {
			cards[i] = render.Card{Design: design, Student: s, Settings: settings}
		}
	}

	started := time.Now()
	pdf, warnings, err := h.printer.PrintCards(ctx, cards, req.Options)
	if err != nil {
		h.fail(c, err)
		return
	}
	placeholders := render.CountCode(warnings, errcode.ResourceMissing)
	metrics.ObserveRender(metrics.RendererDocument, len(cards), placeholders, started)

	c.Header("Content-Disposition", `inline; filename="id-cards.pdf"`)
	c.Header("X-Card-Placeholders", fmt.Sprint(placeholders))
	c.Data(http.StatusOK, "application/pdf", pdf)
}
