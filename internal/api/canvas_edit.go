package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"idcard/internal/card"
	"idcard/internal/render/canvas"
)

// Canvas edit operations.
const (
	editOpen       = "open"
	editMove       = "move"
	editResize     = "resize"
	editContent    = "content"
	editStyle      = "style"
	editAdd        = "add"
	editRemove     = "remove"
	editFront      = "front"
	editBack       = "back"
	editBackground = "background"
	editUndo       = "undo"
	editRedo       = "redo"
	editSelect     = "select"
)

const (
	maxEditSessions = 256
	editSessionTTL  = 30 * time.Minute
)

var errNoHistory = errors.New("nothing to undo or redo")

// editSession holds the undo history and last rendered scene of one open editor.
// The student and settings are fixed when the session opens.
type editSession struct {
	mu       sync.Mutex
	history  *canvas.History
	scene    *canvas.Scene
	renderer *canvas.Renderer
	student  *card.Student
	settings card.SchoolSettings
	lastUsed time.Time
}

// editSessions is a bounded in-process store. Idle sessions expire after editSessionTTL
// and the least recently used one is evicted when the store is full.
type editSessions struct {
	mu       sync.Mutex
	sessions map[string]*editSession
	now      func() time.Time
}

func newEditSessions() *editSessions {
	return &editSessions{sessions: map[string]*editSession{}, now: time.Now}
}

func (s *editSessions) get(id string) (*editSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if s.now().Sub(sess.lastUsed) > editSessionTTL {
		delete(s.sessions, id)
		return nil, false
	}
	sess.lastUsed = s.now()
	return sess, true
}

func (s *editSessions) add(sess *editSession) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, old := range s.sessions {
		if now.Sub(old.lastUsed) > editSessionTTL {
			delete(s.sessions, id)
		}
	}
	if len(s.sessions) >= maxEditSessions {
		var oldestID string
		var oldest time.Time
		for id, old := range s.sessions {
			if oldestID == "" || old.lastUsed.Before(oldest) {
				oldestID, oldest = id, old.lastUsed
			}
		}
		delete(s.sessions, oldestID)
	}

	id := uuid.NewString()
	sess.lastUsed = now
	s.sessions[id] = sess
	return id
}

type canvasEditRequest struct {
	SessionID  string             `json:"session_id"`
	TemplateID string             `json:"template_id"`
	Design     json.RawMessage    `json:"design"`
	StudentID  string             `json:"student_id"`
	Scale      float64            `json:"scale"`
	Op         string             `json:"op"`
	ElementID  string             `json:"element_id"`
	Position   *card.Point        `json:"position"`
	Size       *card.Size         `json:"size"`
	Content    *string            `json:"content"`
	Style      *canvas.StylePatch `json:"style"`
	Element    *card.Element      `json:"element"`
	Background *card.Background   `json:"background"`
}

type canvasEditResponse struct {
	SessionID string              `json:"session_id"`
	Design    card.TemplateDesign `json:"design"`
	Scene     *canvas.Scene       `json:"scene"`
	Patches   []canvas.Patch      `json:"patches"`
	Selected  string              `json:"selected,omitempty"`
	CanUndo   bool                `json:"can_undo"`
	CanRedo   bool                `json:"can_redo"`
}

// POST /v1/render/canvas/edit
// Without session_id a session is opened from design or template_id. Every response carries
// the patches that turn the previous scene into the new one.
func (h *RenderHandler) CanvasEdit(c *gin.Context) {
	var req canvasEditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, err.Error())
		return
	}
	op := strings.ToLower(strings.TrimSpace(req.Op))
	ctx := c.Request.Context()

	var (
		sess   *editSession
		id     = strings.TrimSpace(req.SessionID)
		opened bool
	)
	if id == "" {
		var err error
		if sess, err = h.openSession(ctx, req); err != nil {
			h.fail(c, err)
			return
		}
		id = h.sessions.add(sess)
		opened = true
	} else {
		var ok bool
		if sess, ok = h.sessions.get(id); !ok {
			NotFound(c, "edit session not found")
			return
		}
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	resp := canvasEditResponse{SessionID: id, Patches: []canvas.Patch{}}
	switch {
	case op == "" || op == editOpen:
		if opened {
			resp.Patches = canvas.Diff(nil, sess.scene)
		}
	case op == editSelect:
		if req.Position == nil {
			BadRequest(c, "select needs position")
			return
		}
		resp.Selected, _ = canvas.HitTest(sess.scene, req.Position.X, req.Position.Y)
	default:
		next, selected, err := applyEdit(sess.history, op, req)
		if err != nil {
			editFailure(c, err)
			return
		}
		scene, err := sess.renderer.Render(ctx, next, sess.student, sess.settings)
		if err != nil {
			h.fail(c, err)
			return
		}
		if op != editUndo && op != editRedo {
			sess.history.Push(next)
		}
		resp.Patches = canvas.Diff(sess.scene, scene)
		resp.Selected = selected
		sess.scene = scene
	}

	resp.Design = sess.history.Current()
	resp.Scene = sess.scene
	resp.CanUndo = sess.history.CanUndo()
	resp.CanRedo = sess.history.CanRedo()
	c.JSON(http.StatusOK, resp)
}

func (h *RenderHandler) openSession(ctx context.Context, req canvasEditRequest) (*editSession, error) {
	design, settings, err := h.source(ctx, renderRequest{TemplateID: req.TemplateID, Design: req.Design})
	if err != nil {
		return nil, err
	}
	student, err := h.student(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	renderer := h.canvas(req.Scale)
	scene, err := renderer.Render(ctx, design, student, settings)
	if err != nil {
		return nil, err
	}
	return &editSession{
		history:  canvas.NewHistory(design, canvas.DefaultHistoryCapacity),
		scene:    scene,
		renderer: renderer,
		student:  student,
		settings: settings,
	}, nil
}

type badEditError string

func (e badEditError) Error() string { return string(e) }

// applyEdit returns the design produced by op. Undo and redo move the history cursor;
// every other op leaves the history for the caller to push once the result renders.
func applyEdit(history *canvas.History, op string, req canvasEditRequest) (card.TemplateDesign, string, error) {
	cur := history.Current()
	id := strings.TrimSpace(req.ElementID)
	needID := func() error {
		if id == "" {
			return badEditError(op + " needs element_id")
		}
		return nil
	}

	switch op {
	case editUndo:
		d, ok := history.Undo()
		if !ok {
			return cur, "", errNoHistory
		}
		return d, "", nil
	case editRedo:
		d, ok := history.Redo()
		if !ok {
			return cur, "", errNoHistory
		}
		return d, "", nil
	case editMove:
		if err := needID(); err != nil {
			return cur, "", err
		}
		if req.Position == nil {
			return cur, "", badEditError("move needs position")
		}
		d, err := canvas.MoveElement(cur, id, *req.Position)
		return d, id, err
	case editResize:
		if err := needID(); err != nil {
			return cur, "", err
		}
		if req.Size == nil {
			return cur, "", badEditError("resize needs size")
		}
		d, err := canvas.ResizeElement(cur, id, *req.Size)
		return d, id, err
	case editContent:
		if err := needID(); err != nil {
			return cur, "", err
		}
		if req.Content == nil {
			return cur, "", badEditError("content needs content")
		}
		d, err := canvas.UpdateContent(cur, id, *req.Content)
		return d, id, err
	case editStyle:
		if err := needID(); err != nil {
			return cur, "", err
		}
		if req.Style == nil {
			return cur, "", badEditError("style needs style")
		}
		d, err := canvas.UpdateStyle(cur, id, *req.Style)
		return d, id, err
	case editAdd:
		if req.Element == nil {
			return cur, "", badEditError("add needs element")
		}
		return canvas.AddElement(cur, *req.Element)
	case editRemove:
		if err := needID(); err != nil {
			return cur, "", err
		}
		d, err := canvas.RemoveElement(cur, id)
		return d, "", err
	case editFront, editBack:
		if err := needID(); err != nil {
			return cur, "", err
		}
		if op == editFront {
			d, err := canvas.BringToFront(cur, id)
			return d, id, err
		}
		d, err := canvas.SendToBack(cur, id)
		return d, id, err
	case editBackground:
		if req.Background == nil {
			return cur, "", badEditError("background needs background")
		}
		d, err := canvas.SetBackground(cur, *req.Background)
		return d, "", err
	default:
		return cur, "", badEditError("unknown op " + op)
	}
}

func editFailure(c *gin.Context, err error) {
	var bad badEditError
	switch {
	case errors.As(err, &bad):
		BadRequest(c, err.Error())
	case errors.Is(err, canvas.ErrElementNotFound):
		NotFound(c, err.Error())
	case errors.Is(err, canvas.ErrDuplicateElement), errors.Is(err, errNoHistory):
		Conflict(c, err.Error())
	case card.IsConfigurationError(err):
		Unprocessable(c, err)
	default:
		BadRequest(c, err.Error())
	}
}
