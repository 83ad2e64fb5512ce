package seed

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"idcard/internal/card"
	"idcard/internal/database"
)

//go:embed templates.yaml
var templatesYAML []byte

//go:embed settings.yaml
var settingsYAML []byte

// Template is one built-in template.
type Template struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Category    string              `yaml:"category"`
	IsDefault   bool                `yaml:"is_default"`
	IsPopular   bool                `yaml:"is_popular"`
	UsageCount  int                 `yaml:"usage_count"`
	Design      card.TemplateDesign `yaml:"design"`
}

// Setting is one default school setting. CurrentYear settings take the year at initialisation.
type Setting struct {
	Key         string `yaml:"key"`
	Value       string `yaml:"value"`
	Category    string `yaml:"category"`
	CurrentYear bool   `yaml:"current_year"`
}

var loadTemplates = sync.OnceValues(func() ([]Template, error) {
	var doc struct {
		Templates []Template `yaml:"templates"`
	}
	if err := yaml.Unmarshal(templatesYAML, &doc); err != nil {
		return nil, fmt.Errorf("decode seed templates: %w", err)
	}
	for _, t := range doc.Templates {
		if _, err := card.Prepare(t.Design); err != nil {
			return nil, fmt.Errorf("seed template %q: %w", t.ID, err)
		}
	}
	return doc.Templates, nil
})

// Templates returns the built-in templates. Every design is validated on first load.
func Templates() ([]Template, error) {
	ts, err := loadTemplates()
	if err != nil {
		return nil, err
	}
	out := make([]Template, len(ts))
	for i, t := range ts {
		t.Design = t.Design.Clone()
		out[i] = t
	}
	return out, nil
}

// Settings returns the default school settings as of now.
func Settings(now time.Time) ([]Setting, error) {
	var doc struct {
		Settings []Setting `yaml:"settings"`
	}
	if err := yaml.Unmarshal(settingsYAML, &doc); err != nil {
		return nil, fmt.Errorf("decode seed settings: %w", err)
	}
	for i := range doc.Settings {
		if doc.Settings[i].CurrentYear {
			doc.Settings[i].Value = strconv.Itoa(now.Year())
		}
	}
	return doc.Settings, nil
}

// SeedTemplates inserts the built-in templates that are missing. With force, existing
// built-in templates are reset to their seed design. It returns the number of rows written.
func SeedTemplates(ctx context.Context, db *gorm.DB, force bool) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	seeds, err := Templates()
	if err != nil {
		return 0, err
	}

	written := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range seeds {
			design, err := json.Marshal(s.Design)
			if err != nil {
				return fmt.Errorf("encode design %q: %w", s.ID, err)
			}

			var existing database.Template
			err = tx.Where("id = ?", s.ID).First(&existing).Error
			switch {
			case errors.Is(err, gorm.ErrRecordNotFound):
				row := database.Template{
					ID:          s.ID,
					Name:        s.Name,
					Description: s.Description,
					Category:    s.Category,
					IsDefault:   s.IsDefault,
					IsPopular:   s.IsPopular,
					UsageCount:  s.UsageCount,
					Design:      datatypes.JSON(design),
				}
				if err := tx.Create(&row).Error; err != nil {
					return fmt.Errorf("create template %q: %w", s.ID, err)
				}
				written++
			case err != nil:
				return fmt.Errorf("load template %q: %w", s.ID, err)
			case force:
				updates := map[string]any{
					"name":        s.Name,
					"description": s.Description,
					"category":    s.Category,
					"is_default":  s.IsDefault,
					"is_popular":  s.IsPopular,
					"design":      datatypes.JSON(design),
				}
				if err := tx.Model(&existing).Updates(updates).Error; err != nil {
					return fmt.Errorf("reset template %q: %w", s.ID, err)
				}
				written++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

// InitializeSettings creates the default settings that do not exist yet and never overwrites.
func InitializeSettings(ctx context.Context, db *gorm.DB, now time.Time) (int, error) {
	if db == nil {
		return 0, errors.New("seed database handle is required")
	}
	defaults, err := Settings(now)
	if err != nil {
		return 0, err
	}

	created := 0
	err = db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, s := range defaults {
			var existing database.Setting
			err := tx.Where("key = ?", s.Key).First(&existing).Error
			if err == nil {
				continue
			}
			if !errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("load setting %q: %w", s.Key, err)
			}
			if err := tx.Create(&database.Setting{Key: s.Key, Value: s.Value, Category: s.Category}).Error; err != nil {
				return fmt.Errorf("create setting %q: %w", s.Key, err)
			}
			created++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// SampleStudent is the record used for template thumbnails and the admin demo data.
func SampleStudent() database.Student {
	return database.Student{
		ID:          "sample-student",
		NameEnglish: "Arif Rahman",
		NameBengali: "আরিফ রহমান",
		IDNumber:    "2024-0001",
		Class:       "8",
		Section:     "A",
		RollNumber:  "12",
		FatherName:  "Abdul Karim",
		MotherName:  "Fatema Begum",
		DateOfBirth: "2011-03-14",
		BloodGroup:  "B+",
		Status:      "active",
	}
}
