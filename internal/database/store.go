package database

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"idcard/internal/card"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("record not found")

func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s %q", ErrNotFound, what, id)
	}
	return fmt.Errorf("load %s %q: %w", what, id, err)
}

// LoadTemplate returns the template row and its parsed design.
// A stored design that cannot be parsed is a *card.ConfigurationError.
func LoadTemplate(ctx context.Context, db *gorm.DB, id string) (*Template, card.TemplateDesign, error) {
	var tpl Template
	if err := db.WithContext(ctx).First(&tpl, "id = ?", id).Error; err != nil {
		return nil, card.TemplateDesign{}, notFound(err, "template", id)
	}
	design, err := card.Parse(tpl.Design)
	if err != nil {
		return &tpl, card.TemplateDesign{}, err
	}
	return &tpl, design, nil
}

// LoadStudent returns one student record.
func LoadStudent(ctx context.Context, db *gorm.DB, id string) (*card.Student, error) {
	var s Student
	if err := db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "student", id)
	}
	return s.Record(), nil
}

// LoadStudents returns student records in the order of ids. Any missing id is an error.
func LoadStudents(ctx context.Context, db *gorm.DB, ids []string) ([]*card.Student, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID, err := FindStudents(ctx, db, ids)
	if err != nil {
		return nil, err
	}
	out := make([]*card.Student, 0, len(ids))
	for _, id := range ids {
		s, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: student %q", ErrNotFound, id)
		}
		out = append(out, s)
	}
	return out, nil
}

// FindStudents returns the records of the ids that exist, keyed by id.
func FindStudents(ctx context.Context, db *gorm.DB, ids []string) (map[string]*card.Student, error) {
	var rows []Student
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	out := make(map[string]*card.Student, len(rows))
	for _, r := range rows {
		out[r.ID] = r.Record()
	}
	return out, nil
}

// LoadSchoolSettings returns every setting as a flat map.
func LoadSchoolSettings(ctx context.Context, db *gorm.DB) (card.SchoolSettings, error) {
	var rows []Setting
	if err := db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	out := make(card.SchoolSettings, len(rows))
	for _, r := range rows {
		out[r.Key] = r.Value
	}
	return out, nil
}

// IncrementTemplateUsage bumps the usage counter of a template.
func IncrementTemplateUsage(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Model(&Template{}).
		Where("id = ?", id).
		UpdateColumn("usage_count", gorm.Expr("usage_count + ?", 1))
	if res.Error != nil {
		return fmt.Errorf("increment template usage: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: template %q", ErrNotFound, id)
	}
	return nil
}
