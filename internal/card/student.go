package card

import "strings"

// Student is the read-only student record consumed by substitution.
type Student struct {
	NameEnglish string `json:"nameEnglish"`
	NameBengali string `json:"nameBengali,omitempty"`
	IDNumber    string `json:"idNumber"`
	Class       string `json:"class"`
	Section     string `json:"section,omitempty"`
	RollNumber  string `json:"rollNumber,omitempty"`
	FatherName  string `json:"fatherName,omitempty"`
	MotherName  string `json:"motherName,omitempty"`
	DateOfBirth string `json:"dateOfBirth,omitempty"`
	Address     string `json:"address,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	PhotoURL    string `json:"photoUrl,omitempty"`
	BloodGroup  string `json:"bloodGroup,omitempty"`
	Status      string `json:"status,omitempty"`
}

// SchoolSettings is the flat school-wide key/value map.
type SchoolSettings map[string]string

// Lookup returns the first non-empty value among keys.
func (s SchoolSettings) Lookup(keys ...string) string {
	for _, k := range keys {
		if v := strings.TrimSpace(s[k]); v != "" {
			return v
		}
	}
	return ""
}
