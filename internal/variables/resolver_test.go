package variables

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"idcard/internal/card"
)

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2031, time.March, 4, 10, 0, 0, 0, time.UTC) }
}

func sampleStudent() *card.Student {
	return &card.Student{
		NameEnglish: "Arif Rahman",
		NameBengali: "আরিফ রহমান",
		IDNumber:    "STU-2024-001",
		Class:       "Ten",
		Section:     "A",
		RollNumber:  "12",
		FatherName:  "Karim Rahman",
		MotherName:  "Salma Begum",
		DateOfBirth: "2009-05-14",
		Address:     "Dhaka",
		PhoneNumber: "+8801700000000",
		PhotoURL:    "https://cdn.example.com/p/arif.jpg",
		BloodGroup:  "B+",
		Status:      "active",
	}
}

func sampleSettings() card.SchoolSettings {
	return card.SchoolSettings{
		"school_name_english": "Dhaka Model School",
		"schoolNameBengali":   "ঢাকা মডেল স্কুল",
		"valid_till":          "Dec 2031",
		"school_logo":         "logos/dms.png",
	}
}

func TestResolve_ExampleScenario(t *testing.T) {
	got := Resolve("{{studentName}}", &card.Student{NameEnglish: "Arif Rahman"}, nil)
	if got != "Arif Rahman" {
		t.Fatalf("expected Arif Rahman, got %q", got)
	}
}

func TestResolve_AllTokens(t *testing.T) {
	r := New(WithClock(fixedClock()))
	s := sampleStudent()
	settings := sampleSettings()

	cases := map[string]string{
		"{{studentName}}":        "Arif Rahman",
		"{{studentNameBengali}}": "আরিফ রহমান",
		"ID: {{idNumber}}":       "ID: STU-2024-001",
		"{{class}}-{{section}}":  "Ten-A",
		"Roll {{rollNumber}}":    "Roll 12",
		"{{fatherName}}":         "Karim Rahman",
		"{{motherName}}":         "Salma Begum",
		"{{dateOfBirth}}":        "2009-05-14",
		"{{address}}":            "Dhaka",
		"{{phoneNumber}}":        "+8801700000000",
		"{{bloodGroup}}":         "B+",
		"{{schoolName}}":         "Dhaka Model School",
		"{{schoolNameBengali}}":  "ঢাকা মডেল স্কুল",
		"Valid: {{validTill}}":   "Valid: Dec 2031",
		"Session {{year}}":       "Session 2031",
		"{{studentPhoto}}":       "https://cdn.example.com/p/arif.jpg",
		"{{schoolLogo}}":         "logos/dms.png",
		"{{studentDetails}}":     "Arif Rahman\nআরিফ রহমান\nID: STU-2024-001\nClass: Ten-A\nRoll: 12",
		"{{studentInfo}}":        "Arif Rahman\nID: STU-2024-001\nClass: Ten\nSection: A",
	}

	for in, want := range cases {
		if got := r.Resolve(in, s, settings); got != want {
			t.Fatalf("resolve %q: want %q got %q", in, want, got)
		}
	}

	if got := r.Resolve("{{idNumber}}{{idNumber}}", s, settings); got != "STU-2024-001STU-2024-001" {
		t.Fatalf("every occurrence must be replaced, got %q", got)
	}
}

func TestResolve_EmptyStudentPassthrough(t *testing.T) {
	in := "{{studentName}} - {{idNumber}}"
	if got := Resolve(in, nil, sampleSettings()); got != in {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestResolve_UnknownTokensSurvive(t *testing.T) {
	in := "{{studentName}} {{nickname}} {{ studentName }} {studentName}"
	got := Resolve(in, sampleStudent(), nil)
	want := "Arif Rahman {{nickname}} {{ studentName }} {studentName}"
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}

	if diff := cmp.Diff([]string{"{{nickname}}"}, UnknownTokens(in)); diff != "" {
		t.Fatalf("unknown tokens mismatch (-want +got):\n%s", diff)
	}
}

func TestResolve_MissingFieldsBecomeEmpty(t *testing.T) {
	s := &card.Student{NameEnglish: "Nadia", IDNumber: "7", Class: "Five"}
	got := Resolve("[{{section}}][{{rollNumber}}][{{schoolName}}]", s, nil)
	if got != "[][][]" {
		t.Fatalf("expected empty substitutions, got %q", got)
	}

	if got := Resolve("{{studentDetails}}", s, nil); got != "Nadia\nID: 7\nClass: Five" {
		t.Fatalf("details omit empty lines, got %q", got)
	}
	if strings.Contains(Resolve("{{studentInfo}}", s, nil), "Section") {
		t.Fatalf("info must omit empty section")
	}
}

func TestResolve_DoesNotRescanInsertedValues(t *testing.T) {
	s := &card.Student{NameEnglish: "{{idNumber}}", IDNumber: "SECRET"}
	if got := Resolve("{{studentName}}", s, nil); got != "{{idNumber}}" {
		t.Fatalf("inserted value must not be substituted again, got %q", got)
	}
}

func TestResolve_YearPrefersSettings(t *testing.T) {
	r := New(WithClock(fixedClock()))
	got := r.Resolve("{{year}}", sampleStudent(), card.SchoolSettings{"academic_year": "2030-31"})
	if got != "2030-31" {
		t.Fatalf("expected academic year from settings, got %q", got)
	}
}

func TestResolve_TokenRoundTrip(t *testing.T) {
	var b strings.Builder
	for _, name := range Tokens() {
		b.WriteString("{{" + name + "}} ")
	}
	b.WriteString("{{notAToken}}")

	students := []*card.Student{sampleStudent(), {NameEnglish: "X", IDNumber: "1", Class: "1"}}
	for _, s := range students {
		out := Resolve(b.String(), s, sampleSettings())
		for _, name := range Tokens() {
			if strings.Contains(out, "{{"+name+"}}") {
				t.Fatalf("token %s survived substitution: %q", name, out)
			}
		}
		if !strings.HasSuffix(out, "{{notAToken}}") {
			t.Fatalf("unknown token must survive unchanged: %q", out)
		}
	}
}

func TestImageSource(t *testing.T) {
	s := sampleStudent()
	settings := sampleSettings()

	cases := []struct {
		name    string
		content string
		student *card.Student
		want    ImageRef
	}{
		{"photo", "{{studentPhoto}}", s, ImageRef{Source: s.PhotoURL, Label: LabelPhoto}},
		{"photo missing", "{{studentPhoto}}", &card.Student{NameEnglish: "No Photo"}, ImageRef{Label: LabelPhoto}},
		{"photo without student", " {{studentPhoto}} ", nil, ImageRef{Label: LabelPhoto}},
		{"logo", "{{schoolLogo}}", s, ImageRef{Source: "logos/dms.png", Label: LabelLogo}},
		{"direct url", "https://cdn.example.com/seal.png", s, ImageRef{Source: "https://cdn.example.com/seal.png", Label: LabelImage}},
		{"templated url", "https://cdn.example.com/{{idNumber}}.png", s, ImageRef{Source: "https://cdn.example.com/STU-2024-001.png", Label: LabelImage}},
		{"unresolved url", "https://cdn.example.com/{{idNumber}}.png", nil, ImageRef{Label: LabelImage}},
		{"empty", "", s, ImageRef{Label: LabelImage}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := ImageSource(tc.content, tc.student, settings)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("image source mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
