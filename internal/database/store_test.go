package database

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"idcard/internal/card"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestLoadTemplate(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	good := `{"background":{"type":"solid","value":"#ffffff"},"dimensions":{"width":85.6,"height":54},"elements":[{"id":"name","type":"text","position":{"x":5,"y":5},"size":{"width":40,"height":6},"content":"{{studentName}}","style":{"fontSize":3}}]}`
	bad := `{"background":{"type":"solid","value":"#ffffff"},"dimensions":{"width":0,"height":54},"elements":[]}`
	for _, row := range []Template{
		{ID: "good", Name: "Good", Design: datatypes.JSON(good)},
		{ID: "bad", Name: "Bad", Design: datatypes.JSON(bad)},
	} {
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	tpl, design, err := LoadTemplate(ctx, db, "good")
	if err != nil {
		t.Fatalf("load good: %v", err)
	}
	if tpl.Name != "Good" || len(design.Elements) != 1 || design.Elements[0].Content != "{{studentName}}" {
		t.Fatalf("unexpected template %+v / %+v", tpl, design)
	}

	if _, _, err := LoadTemplate(ctx, db, "bad"); !card.IsConfigurationError(err) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if _, _, err := LoadTemplate(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadStudents_PreservesOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	for _, s := range []Student{
		{ID: "s1", NameEnglish: "Arif", IDNumber: "1"},
		{ID: "s2", NameEnglish: "Nusrat", IDNumber: "2"},
		{ID: "s3", NameEnglish: "Tanvir", IDNumber: "3"},
	} {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	got, err := LoadStudents(ctx, db, []string{"s3", "s1", "s2"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	var names []string
	for _, s := range got {
		names = append(names, s.NameEnglish)
	}
	if diff := cmp.Diff([]string{"Tanvir", "Arif", "Nusrat"}, names); diff != "" {
		t.Fatalf("order mismatch (-want +got):\n%s", diff)
	}

	if _, err := LoadStudents(ctx, db, []string{"s1", "nope"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if s, err := LoadStudent(ctx, db, "s2"); err != nil || s.IDNumber != "2" {
		t.Fatalf("load student: %+v %v", s, err)
	}
}

func TestStudentBeforeCreateAssignsID(t *testing.T) {
	db := newTestDB(t)
	s := Student{NameEnglish: "No Id", IDNumber: "x"}
	if err := db.Create(&s).Error; err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.ID == "" {
		t.Fatalf("expected generated id")
	}
}

func TestIncrementTemplateUsage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if err := db.Create(&Template{ID: "t1", Name: "T", UsageCount: 4, Design: datatypes.JSON(`{}`)}).Error; err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := IncrementTemplateUsage(ctx, db, "t1"); err != nil {
		t.Fatalf("increment: %v", err)
	}
	var tpl Template
	if err := db.First(&tpl, "id = ?", "t1").Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if tpl.UsageCount != 5 {
		t.Fatalf("expected usage 5, got %d", tpl.UsageCount)
	}
	if err := IncrementTemplateUsage(ctx, db, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadSchoolSettings(t *testing.T) {
	db := newTestDB(t)
	for _, s := range []Setting{
		{Key: "school_name_english", Value: "Dhaka Model School"},
		{Key: "valid_till", Value: "Dec 2026"},
	} {
		if err := db.Create(&s).Error; err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	got, err := LoadSchoolSettings(context.Background(), db)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	want := card.SchoolSettings{"school_name_english": "Dhaka Model School", "valid_till": "Dec 2026"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("settings mismatch (-want +got):\n%s", diff)
	}
}
