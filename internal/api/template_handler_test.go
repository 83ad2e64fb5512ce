package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"

	"idcard/internal/card"
	"idcard/internal/database"
	"idcard/internal/errcode"
	"idcard/internal/seed"
	"idcard/internal/tasks"
)

func TestCreateTemplate(t *testing.T) {
	s := newTestServer(t)

	w := s.do(t, http.MethodPost, "/v1/templates", map[string]any{
		"name":        "<b>Blue</b> & White",
		"description": "school <script>alert(1)</script>card",
		"design":      json.RawMessage(testDesign),
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	got := decode[templateResponse](t, w)
	if got.Name != "Blue & White" {
		t.Fatalf("name = %q", got.Name)
	}
	if strings.Contains(got.Description, "<script>") {
		t.Fatalf("description kept markup: %q", got.Description)
	}
	if got.Category != "custom" {
		t.Fatalf("category = %q", got.Category)
	}
	if diff := cmp.Diff([]string{tasks.TypeTemplatePreview}, s.enqueuer.types()); diff != "" {
		t.Fatalf("enqueued tasks mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateTemplate_Rejects(t *testing.T) {
	s := newTestServer(t)
	badDesign := `{"background":{"type":"solid","value":"#ffffff"},"dimensions":{"width":0,"height":54},"elements":[]}`

	for name, tc := range map[string]struct {
		body string
		want int
	}{
		"missing name":   {body: `{"design":` + testDesign + `}`, want: http.StatusBadRequest},
		"missing design": {body: `{"name":"x"}`, want: http.StatusBadRequest},
		"invalid design": {body: `{"name":"x","design":` + badDesign + `}`, want: http.StatusUnprocessableEntity},
		"malformed json": {body: `{"name":`, want: http.StatusBadRequest},
	} {
		t.Run(name, func(t *testing.T) {
			w := s.do(t, http.MethodPost, "/v1/templates", tc.body)
			if w.Code != tc.want {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tc.want, w.Body.String())
			}
			if tc.want == http.StatusUnprocessableEntity {
				body := decode[map[string]any](t, w)
				if body["code"] != float64(errcode.InvalidTemplate) {
					t.Fatalf("code = %v", body["code"])
				}
			}
		})
	}
	if n := len(s.enqueuer.types()); n != 0 {
		t.Fatalf("rejected requests enqueued %d tasks", n)
	}
}

func TestListTemplates_OrderAndFilter(t *testing.T) {
	s := newTestServer(t)
	s.mustCreate(t,
		&database.Template{ID: "a", Name: "A", Category: "student", UsageCount: 1, Design: datatypes.JSON(testDesign)},
		&database.Template{ID: "b", Name: "B", Category: "staff", UsageCount: 9, Design: datatypes.JSON(testDesign), IsPopular: true},
		&database.Template{ID: "c", Name: "C", Category: "student", UsageCount: 5, Design: datatypes.JSON(testDesign)},
	)

	ids := func(rows []templateResponse) []string {
		out := make([]string, len(rows))
		for i, r := range rows {
			out[i] = r.ID
		}
		return out
	}

	all := decode[[]templateResponse](t, s.do(t, http.MethodGet, "/v1/templates", nil))
	if diff := cmp.Diff([]string{"b", "c", "a"}, ids(all)); diff != "" {
		t.Fatalf("list order mismatch (-want +got):\n%s", diff)
	}
	students := decode[[]templateResponse](t, s.do(t, http.MethodGet, "/v1/templates?category=student", nil))
	if diff := cmp.Diff([]string{"c", "a"}, ids(students)); diff != "" {
		t.Fatalf("category filter mismatch (-want +got):\n%s", diff)
	}
	popular := decode[[]templateResponse](t, s.do(t, http.MethodGet, "/v1/templates/popular", nil))
	if diff := cmp.Diff([]string{"b"}, ids(popular)); diff != "" {
		t.Fatalf("popular mismatch (-want +got):\n%s", diff)
	}

	if w := s.do(t, http.MethodGet, "/v1/templates/missing", nil); w.Code != http.StatusNotFound {
		t.Fatalf("get missing status = %d", w.Code)
	}
}

func TestUpdateTemplate(t *testing.T) {
	s := newTestServer(t)
	s.mustCreate(t, &database.Template{ID: "tpl", Name: "Old", Category: "student", Design: datatypes.JSON(testDesign)})

	w := s.do(t, http.MethodPut, "/v1/templates/tpl", `{"name":"New"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if got := decode[templateResponse](t, w); got.Name != "New" || got.Category != "student" {
		t.Fatalf("unexpected template %+v", got)
	}
	if n := len(s.enqueuer.types()); n != 0 {
		t.Fatalf("metadata update enqueued %d previews", n)
	}

	design := strings.Replace(testDesign, "{{studentName}}", "<i>{{studentName}}</i>", 1)
	w = s.do(t, http.MethodPut, "/v1/templates/tpl", `{"design":`+design+`}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var stored card.TemplateDesign
	if err := json.Unmarshal(decode[templateResponse](t, w).Design, &stored); err != nil {
		t.Fatalf("decode design: %v", err)
	}
	if got := stored.Elements[0].Content; got != "{{studentName}}" {
		t.Fatalf("content = %q", got)
	}
	if diff := cmp.Diff([]string{tasks.TypeTemplatePreview}, s.enqueuer.types()); diff != "" {
		t.Fatalf("enqueued tasks mismatch (-want +got):\n%s", diff)
	}

	for name, tc := range map[string]struct {
		path, body string
		want       int
	}{
		"empty":   {path: "/v1/templates/tpl", body: `{}`, want: http.StatusBadRequest},
		"blank":   {path: "/v1/templates/tpl", body: `{"name":"  "}`, want: http.StatusBadRequest},
		"missing": {path: "/v1/templates/nope", body: `{"name":"x"}`, want: http.StatusNotFound},
	} {
		t.Run(name, func(t *testing.T) {
			if w := s.do(t, http.MethodPut, tc.path, tc.body); w.Code != tc.want {
				t.Fatalf("status = %d, want %d", w.Code, tc.want)
			}
		})
	}
}

func TestDeleteTemplate(t *testing.T) {
	s := newTestServer(t)
	s.mustCreate(t,
		&database.Template{ID: "busy", Name: "Busy", Design: datatypes.JSON(testDesign)},
		&database.Template{ID: "idle", Name: "Idle", Design: datatypes.JSON(testDesign), PreviewURL: "template-previews/idle.png"},
		&database.PrintJob{StudentID: "s1", TemplateID: "busy", Status: database.JobQueued},
	)

	if w := s.do(t, http.MethodDelete, "/v1/templates/busy", nil); w.Code != http.StatusConflict {
		t.Fatalf("busy delete status = %d", w.Code)
	}
	if w := s.do(t, http.MethodDelete, "/v1/templates/idle", nil); w.Code != http.StatusNoContent {
		t.Fatalf("idle delete status = %d body=%s", w.Code, w.Body.String())
	}
	if diff := cmp.Diff([]string{"template-previews/idle.png"}, s.objects.deleted); diff != "" {
		t.Fatalf("deleted objects mismatch (-want +got):\n%s", diff)
	}
	if w := s.do(t, http.MethodDelete, "/v1/templates/idle", nil); w.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d", w.Code)
	}
}

func TestUseTemplate(t *testing.T) {
	s := newTestServer(t)
	s.mustCreate(t, &database.Template{ID: "tpl", Name: "T", UsageCount: 2, Design: datatypes.JSON(testDesign)})

	if w := s.do(t, http.MethodPost, "/v1/templates/tpl/use", nil); w.Code != http.StatusNoContent {
		t.Fatalf("status = %d", w.Code)
	}
	var row database.Template
	if err := s.db.First(&row, "id = ?", "tpl").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.UsageCount != 3 {
		t.Fatalf("usage = %d", row.UsageCount)
	}
	if w := s.do(t, http.MethodPost, "/v1/templates/nope/use", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", w.Code)
	}
}

func TestSeed(t *testing.T) {
	s := newTestServer(t)
	seeds, err := seed.Templates()
	if err != nil {
		t.Fatalf("load seeds: %v", err)
	}

	if w := s.do(t, http.MethodPost, "/v1/templates/seed", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated seed status = %d", w.Code)
	}

	w := s.do(t, http.MethodPost, "/v1/templates/seed", nil, "X-Internal-Secret", "secret")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	body := decode[map[string]int](t, w)
	if body["templates"] != len(seeds) || body["settings"] == 0 {
		t.Fatalf("unexpected seed result %v", body)
	}
	if n := len(s.enqueuer.types()); n != len(seeds) {
		t.Fatalf("enqueued %d previews, want %d", n, len(seeds))
	}

	w = s.do(t, http.MethodPost, "/v1/templates/seed", nil, "X-Internal-Secret", "secret")
	if body := decode[map[string]int](t, w); body["templates"] != 0 || body["settings"] != 0 {
		t.Fatalf("second seed not idempotent: %v", body)
	}
	if n := len(s.enqueuer.types()); n != len(seeds) {
		t.Fatalf("idempotent seed enqueued previews: %d", n)
	}
}

func TestStripMarkup(t *testing.T) {
	for in, want := range map[string]string{
		"plain":                   "plain",
		"Tom & Jerry":             "Tom & Jerry",
		"<b>bold</b>":             "bold",
		`say "hi"`:                `say "hi"`,
		"{{studentName}}":         "{{studentName}}",
		"<a href='x'>link</a> ok": "link ok",
	} {
		if got := stripMarkup(in); got != want {
			t.Errorf("stripMarkup(%q) = %q, want %q", in, got, want)
		}
	}
}
