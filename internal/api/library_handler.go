package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"idcard/internal/database"
)

const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// LibraryHandler serves the read-only student and settings data used by the designer.
type LibraryHandler struct {
	db *gorm.DB
}

func NewLibraryHandler(db *gorm.DB) *LibraryHandler {
	return &LibraryHandler{db: db}
}

type studentResponse struct {
	ID          string    `json:"id"`
	NameEnglish string    `json:"name_english"`
	NameBengali string    `json:"name_bengali,omitempty"`
	IDNumber    string    `json:"id_number"`
	Class       string    `json:"class"`
	Section     string    `json:"section,omitempty"`
	RollNumber  string    `json:"roll_number,omitempty"`
	FatherName  string    `json:"father_name,omitempty"`
	MotherName  string    `json:"mother_name,omitempty"`
	DateOfBirth string    `json:"date_of_birth,omitempty"`
	Address     string    `json:"address,omitempty"`
	PhoneNumber string    `json:"phone_number,omitempty"`
	BloodGroup  string    `json:"blood_group,omitempty"`
	PhotoURL    string    `json:"photo_url,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

func toStudentResponse(s database.Student) studentResponse {
	return studentResponse{
		ID:          s.ID,
		NameEnglish: s.NameEnglish,
		NameBengali: s.NameBengali,
		IDNumber:    s.IDNumber,
		Class:       s.Class,
		Section:     s.Section,
		RollNumber:  s.RollNumber,
		FatherName:  s.FatherName,
		MotherName:  s.MotherName,
		DateOfBirth: s.DateOfBirth,
		Address:     s.Address,
		PhoneNumber: s.PhoneNumber,
		BloodGroup:  s.BloodGroup,
		PhotoURL:    s.PhotoURL,
		Status:      s.Status,
		CreatedAt:   s.CreatedAt,
	}
}

func positiveQueryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n < 1 {
		return fallback
	}
	return n
}

// GET /v1/students?page=&limit=&search=
func (h *LibraryHandler) ListStudents(c *gin.Context) {
	page := positiveQueryInt(c, "page", 1)
	limit := min(positiveQueryInt(c, "limit", defaultPageSize), maxPageSize)

	query := h.db.WithContext(c.Request.Context()).Model(&database.Student{})
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		query = query.Where("name_english LIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		Internal(c, "failed to count students")
		return
	}
	var rows []database.Student
	if err := query.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&rows).Error; err != nil {
		Internal(c, "failed to list students")
		return
	}

	students := make([]studentResponse, 0, len(rows))
	for _, s := range rows {
		students = append(students, toStudentResponse(s))
	}
	c.JSON(http.StatusOK, gin.H{"students": students, "total": total, "page": page, "limit": limit})
}

// GET /v1/students/:id
func (h *LibraryHandler) GetStudent(c *gin.Context) {
	var row database.Student
	if err := h.db.WithContext(c.Request.Context()).First(&row, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			NotFound(c, "student not found")
			return
		}
		Internal(c, "failed to query student")
		return
	}
	c.JSON(http.StatusOK, toStudentResponse(row))
}

// GET /v1/settings?category=
func (h *LibraryHandler) GetSettings(c *gin.Context) {
	query := h.db.WithContext(c.Request.Context())
	if category := strings.TrimSpace(c.Query("category")); category != "" {
		query = query.Where("category = ?", category)
	}
	var rows []database.Setting
	if err := query.Order("key").Find(&rows).Error; err != nil {
		Internal(c, "failed to list settings")
		return
	}
	out := make(map[string]string, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	c.JSON(http.StatusOK, out)
}
