package types

import "strings"

// referenceSeparator joins the student id and plan name in a checkout
// external_reference.
const referenceSeparator = "|"

// ExternalReference is the payload carried through the gateway in
// external_reference: "studentId" or "studentId|planName".
type ExternalReference struct {
	StudentID string
	Plan      string
}

// String encodes the reference. The plan suffix is omitted when empty.
func (r ExternalReference) String() string {
	if r.Plan == "" {
		return r.StudentID
	}
	return r.StudentID + referenceSeparator + r.Plan
}

// ParseExternalReference splits raw on the first separator. Plan names may
// themselves contain the separator.
func ParseExternalReference(raw string) ExternalReference {
	raw = strings.TrimSpace(raw)
	student, plan, _ := strings.Cut(raw, referenceSeparator)
	return ExternalReference{
		StudentID: strings.TrimSpace(student),
		Plan:      strings.TrimSpace(plan),
	}
}
