package variables

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"idcard/internal/card"
)

// Recognized token names.
const (
	StudentName        = "studentName"
	StudentNameBengali = "studentNameBengali"
	IDNumber           = "idNumber"
	Class              = "class"
	Section            = "section"
	RollNumber         = "rollNumber"
	FatherName         = "fatherName"
	MotherName         = "motherName"
	DateOfBirth        = "dateOfBirth"
	Address            = "address"
	PhoneNumber        = "phoneNumber"
	BloodGroup         = "bloodGroup"
	SchoolName         = "schoolName"
	SchoolNameBengali  = "schoolNameBengali"
	ValidTill          = "validTill"
	Year               = "year"
	StudentDetails     = "studentDetails"
	StudentInfo        = "studentInfo"
	StudentPhoto       = "studentPhoto"
	SchoolLogo         = "schoolLogo"
)

var tokenPattern = regexp.MustCompile(`\{\{([A-Za-z][A-Za-z0-9_]*)\}\}`)

type valueFunc func(r *Resolver, s *card.Student, settings card.SchoolSettings) string

var vocabulary = map[string]valueFunc{
	StudentName:        func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.NameEnglish },
	StudentNameBengali: func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.NameBengali },
	IDNumber:           func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.IDNumber },
	Class:              func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.Class },
	Section:            func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.Section },
	RollNumber:         func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.RollNumber },
	FatherName:         func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.FatherName },
	MotherName:         func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.MotherName },
	DateOfBirth:        func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.DateOfBirth },
	Address:            func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.Address },
	PhoneNumber:        func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.PhoneNumber },
	BloodGroup:         func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.BloodGroup },
	StudentPhoto:       func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return s.PhotoURL },
	StudentDetails:     func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return studentDetails(s) },
	StudentInfo:        func(_ *Resolver, s *card.Student, _ card.SchoolSettings) string { return studentInfo(s) },
	SchoolName: func(_ *Resolver, _ *card.Student, settings card.SchoolSettings) string {
		return settings.Lookup("schoolNameEnglish", "schoolName", "school_name_english")
	},
	SchoolNameBengali: func(_ *Resolver, _ *card.Student, settings card.SchoolSettings) string {
		return settings.Lookup("schoolNameBengali", "school_name_bengali")
	},
	ValidTill: func(_ *Resolver, _ *card.Student, settings card.SchoolSettings) string {
		return settings.Lookup("validTill", "valid_till")
	},
	Year: func(r *Resolver, _ *card.Student, settings card.SchoolSettings) string {
		if y := settings.Lookup("year", "academicYear", "academic_year"); y != "" {
			return y
		}
		return strconv.Itoa(r.now().Year())
	},
	SchoolLogo: func(_ *Resolver, _ *card.Student, settings card.SchoolSettings) string {
		return settings.Lookup("schoolLogo", "school_logo", "schoolLogoUrl", "school_logo_url")
	},
}

// Resolver substitutes {{token}} placeholders. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	now func() time.Time
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithClock overrides the clock used for {{year}}.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// New builds a Resolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var defaultResolver = New()

// Resolve substitutes content with the default resolver.
func Resolve(content string, student *card.Student, settings card.SchoolSettings) string {
	return defaultResolver.Resolve(content, student, settings)
}

// Resolve replaces every recognized token in a single pass. Unknown tokens are kept verbatim
// and inserted values are never re-scanned. A nil student leaves content unchanged.
func (r *Resolver) Resolve(content string, student *card.Student, settings card.SchoolSettings) string {
	if student == nil || !strings.Contains(content, "{{") {
		return content
	}
	return tokenPattern.ReplaceAllStringFunc(content, func(token string) string {
		fn, ok := vocabulary[token[2:len(token)-2]]
		if !ok {
			return token
		}
		return fn(r, student, settings)
	})
}

// Tokens lists the recognized vocabulary in sorted order.
func Tokens() []string {
	out := make([]string, 0, len(vocabulary))
	for name := range vocabulary {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// IsKnown reports whether name (without braces) belongs to the vocabulary.
func IsKnown(name string) bool {
	_, ok := vocabulary[name]
	return ok
}

// UnknownTokens returns the distinct tokens in content that substitution will leave in place.
func UnknownTokens(content string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range tokenPattern.FindAllStringSubmatch(content, -1) {
		if IsKnown(m[1]) {
			continue
		}
		if _, dup := seen[m[0]]; dup {
			continue
		}
		seen[m[0]] = struct{}{}
		out = append(out, m[0])
	}
	return out
}

func studentDetails(s *card.Student) string {
	class := s.Class
	if s.Section != "" {
		class += "-" + s.Section
	}
	lines := []string{
		s.NameEnglish,
		s.NameBengali,
		labelled("ID", s.IDNumber),
		labelled("Class", class),
		labelled("Roll", s.RollNumber),
	}
	return joinNonEmpty(lines)
}

func studentInfo(s *card.Student) string {
	lines := []string{
		s.NameEnglish,
		labelled("ID", s.IDNumber),
		labelled("Class", s.Class),
		labelled("Section", s.Section),
	}
	return joinNonEmpty(lines)
}

func labelled(label, value string) string {
	if strings.TrimSpace(value) == "" {
		return ""
	}
	return label + ": " + value
}

func joinNonEmpty(lines []string) string {
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return strings.Join(out, "\n")
}
