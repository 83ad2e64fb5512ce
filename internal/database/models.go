package database

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"idcard/internal/card"
)

// Print job states.
const (
	JobQueued     = "queued"
	JobProcessing = "processing"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// Student is a student record. Rendering only reads it.
type Student struct {
	ID          string `gorm:"primaryKey;size:64"`
	NameEnglish string `gorm:"size:255"`
	NameBengali string `gorm:"size:255"`
	IDNumber    string `gorm:"size:64;uniqueIndex"`
	Class       string `gorm:"size:32;index"`
	Section     string `gorm:"size:32"`
	RollNumber  string `gorm:"size:32"`
	FatherName  string `gorm:"size:255"`
	MotherName  string `gorm:"size:255"`
	DateOfBirth string `gorm:"size:32"`
	Address     string `gorm:"size:512"`
	PhoneNumber string `gorm:"size:32"`
	BloodGroup  string `gorm:"size:8"`
	PhotoURL    string `gorm:"size:1024"`
	Status      string `gorm:"size:32;default:active"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate assigns an id when none is set.
func (s *Student) BeforeCreate(*gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

// Record converts the row into the record consumed by substitution.
func (s Student) Record() *card.Student {
	return &card.Student{
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
		PhotoURL:    s.PhotoURL,
		BloodGroup:  s.BloodGroup,
		Status:      s.Status,
	}
}

// Template is a reusable card layout.
type Template struct {
	ID          string         `gorm:"primaryKey;size:64"`
	Name        string         `gorm:"size:255"`
	Description string         `gorm:"size:1024"`
	Category    string         `gorm:"size:32;index"`
	IsDefault   bool           `gorm:"default:false"`
	IsPopular   bool           `gorm:"default:false;index"`
	UsageCount  int            `gorm:"default:0"`
	Design      datatypes.JSON `gorm:"type:jsonb"`
	PreviewURL  string         `gorm:"size:512"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// BeforeCreate assigns an id when none is set.
func (t *Template) BeforeCreate(*gorm.DB) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return nil
}

// PrintJob tracks one student card queued for printing.
type PrintJob struct {
	ID              string         `gorm:"primaryKey;size:64"`
	BatchID         string         `gorm:"size:64;index"`
	StudentID       string         `gorm:"size:64;index"`
	TemplateID      string         `gorm:"size:64;index"`
	Status          string         `gorm:"size:16;index"`
	Priority        int            `gorm:"default:0"`
	PrinterSettings datatypes.JSON `gorm:"type:jsonb"`
	PdfURL          string         `gorm:"size:512"`
	ErrorMessage    string         `gorm:"size:1024"`
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BeforeCreate assigns an id when none is set.
func (j *PrintJob) BeforeCreate(*gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	return nil
}

// Setting is one school-wide key/value pair.
type Setting struct {
	Key       string `gorm:"primaryKey;size:128"`
	Value     string `gorm:"type:text"`
	Category  string `gorm:"size:32;index"`
	UpdatedAt time.Time
}

// Models lists every table for AutoMigrate.
func Models() []any {
	return []any{&Student{}, &Template{}, &PrintJob{}, &Setting{}}
}
