// Package enrich derives display-ready views of records by resolving their
// lookup references into readable names. Resolution is a pure function of
// the in-memory collections and is recomputed from the source slices on
// every call; there is no cache to invalidate.
package enrich

import (
	"strings"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/livingapps"
)

// Table builds an id → record lookup table for one collection. Record ids
// are unique within a collection, so insertion order is irrelevant.
func Table(records []livingapps.Record) map[string]livingapps.Record {
	m := make(map[string]livingapps.Record, len(records))
	for _, r := range records {
		m[r.ID] = r
	}
	return m
}

// ResolveDisplay resolves a lookup reference against a table and composes a
// display string from the named attributes of the referenced record, joined
// by single spaces and trimmed. Numeric and boolean attribute values are
// stringified. An absent, malformed, or dangling reference
// resolves to "", a silent miss rather than an error: dangling references are an
// expected steady-state condition and display code must tolerate them.
func ResolveDisplay(ref string, table map[string]livingapps.Record, attrs ...string) string {
	if ref == "" {
		return ""
	}
	id := livingapps.ExtractRecordID(ref)
	if id == "" {
		return ""
	}
	r, ok := table[id]
	if !ok {
		return ""
	}
	parts := make([]string, 0, len(attrs))
	for _, a := range attrs {
		parts = append(parts, catalog.DisplayField(r.Fields, a))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Course is a course record annotated with resolved instructor and room names.
type Course struct {
	livingapps.Record
	InstructorName string `json:"dozent_name"`
	RoomName       string `json:"raum_name"`
}

// Enrollment is an enrollment record annotated with resolved participant
// name and course title.
type Enrollment struct {
	livingapps.Record
	ParticipantName string `json:"teilnehmer_name"`
	CourseTitle     string `json:"kurs_name"`
}

// Courses annotates each course with its resolved instructor and room names.
func Courses(courses []livingapps.Record, instructors, rooms map[string]livingapps.Record) []Course {
	out := make([]Course, len(courses))
	for i, r := range courses {
		out[i] = Course{
			Record:         r,
			InstructorName: ResolveDisplay(catalog.StringField(r.Fields, "dozent"), instructors, "vorname", "nachname"),
			RoomName:       ResolveDisplay(catalog.StringField(r.Fields, "raum"), rooms, "raumname"),
		}
	}
	return out
}

// Enrollments annotates each enrollment with its resolved participant name
// and course title.
func Enrollments(enrollments []livingapps.Record, participants, courses map[string]livingapps.Record) []Enrollment {
	out := make([]Enrollment, len(enrollments))
	for i, r := range enrollments {
		out[i] = Enrollment{
			Record:          r,
			ParticipantName: ResolveDisplay(catalog.StringField(r.Fields, "teilnehmer"), participants, "vorname", "nachname"),
			CourseTitle:     ResolveDisplay(catalog.StringField(r.Fields, "kurs"), courses, "titel"),
		}
	}
	return out
}
