package dashboard

import (
	"testing"
	"time"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/enrich"
	"github.com/kursbuero/kursd/internal/livingapps"
)

const base = "https://my.living-apps.de/gateway"

func courseRef(id string) string {
	return livingapps.RecordURL(base, "app-kurse", id)
}

func enrollment(id, courseID string, paid bool) livingapps.Record {
	return livingapps.Record{ID: id, Fields: map[string]any{
		"kurs":    courseRef(courseID),
		"bezahlt": paid,
	}}
}

func testSnapshot(courses, enrollments []livingapps.Record) *Snapshot {
	snap := &Snapshot{
		Collections: map[catalog.Key][]livingapps.Record{
			catalog.Courses:     courses,
			catalog.Enrollments: enrollments,
		},
		Tables:    map[catalog.Key]map[string]livingapps.Record{},
		FetchedAt: time.Now(),
	}
	for k, records := range snap.Collections {
		snap.Tables[k] = enrich.Table(records)
	}
	return snap
}

func TestStatusForFullCourse(t *testing.T) {
	course := livingapps.Record{ID: "c1", Fields: map[string]any{
		"titel":               "Yoga",
		"maximale_teilnehmer": float64(10),
		"enddatum":            "2026-12-31",
	}}
	var enrollments []livingapps.Record
	for i := 0; i < 10; i++ {
		enrollments = append(enrollments, enrollment("e"+string(rune('0'+i)), "c1", false))
	}
	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	st := StatusFor(course, enrollments, today)
	if st.Count != 10 || st.Max != 10 {
		t.Errorf("Count/Max = %d/%d, want 10/10", st.Count, st.Max)
	}
	if !st.IsFull {
		t.Error("IsFull = false, want true at limit")
	}
	if st.IsPast {
		t.Error("IsPast = true for a future end date")
	}
}

func TestStatusForPastCourse(t *testing.T) {
	course := livingapps.Record{ID: "c1", Fields: map[string]any{"enddatum": "2026-08-30"}}
	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	st := StatusFor(course, nil, today)
	if !st.IsPast {
		t.Error("IsPast = false for yesterday's end date")
	}

	// Ends today: not past; status works on calendar days.
	sameDay := livingapps.Record{ID: "c2", Fields: map[string]any{"enddatum": "2026-08-31"}}
	if StatusFor(sameDay, nil, today).IsPast {
		t.Error("course ending today classified as past")
	}
}

func TestStatusForNoLimit(t *testing.T) {
	course := livingapps.Record{ID: "c1", Fields: map[string]any{"titel": "Offener Treff"}}
	enrollments := []livingapps.Record{enrollment("e1", "c1", false)}

	st := StatusFor(course, enrollments, Today(time.Now()))
	if st.IsFull {
		t.Error("course without participant limit reported full")
	}
	if st.Count != 1 {
		t.Errorf("Count = %d, want 1", st.Count)
	}
}

func TestStatusForIgnoresOtherCourses(t *testing.T) {
	course := livingapps.Record{ID: "c1", Fields: map[string]any{}}
	enrollments := []livingapps.Record{
		enrollment("e1", "c1", false),
		enrollment("e2", "c2", false),
		{ID: "e3", Fields: map[string]any{"kurs": "malformed"}},
	}

	st := StatusFor(course, enrollments, Today(time.Now()))
	if st.Count != 1 {
		t.Errorf("Count = %d, want 1", st.Count)
	}
}

func TestFilterCourseViews(t *testing.T) {
	views := []CourseView{
		{Status: CourseStatus{}},                           // active
		{Status: CourseStatus{IsFull: true}},               // full
		{Status: CourseStatus{IsPast: true}},               // past
		{Status: CourseStatus{IsPast: true, IsFull: true}}, // past wins
	}

	if got := len(FilterCourseViews(views, "active")); got != 1 {
		t.Errorf("active = %d, want 1", got)
	}
	if got := len(FilterCourseViews(views, "full")); got != 1 {
		t.Errorf("full = %d, want 1", got)
	}
	if got := len(FilterCourseViews(views, "past")); got != 2 {
		t.Errorf("past = %d, want 2", got)
	}
	if got := len(FilterCourseViews(views, "all")); got != 4 {
		t.Errorf("all = %d, want 4", got)
	}
	if got := len(FilterCourseViews(views, "")); got != 4 {
		t.Errorf("empty filter = %d, want 4", got)
	}
}

func TestComputeStats(t *testing.T) {
	courses := []livingapps.Record{
		{ID: "c1", Fields: map[string]any{"preis": float64(30), "enddatum": "2026-12-31"}},
		{ID: "c2", Fields: map[string]any{"preis": float64(50), "enddatum": "2020-01-01"}},
	}
	enrollments := []livingapps.Record{
		enrollment("e1", "c1", true),
		enrollment("e2", "c1", false),
		enrollment("e3", "c2", true),
		enrollment("e4", "missing", true), // dangling, no revenue
	}
	snap := testSnapshot(courses, enrollments)
	today := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	st := snap.ComputeStats(today)
	if st.TotalCourses != 2 || st.ActiveCourses != 1 {
		t.Errorf("courses = %d/%d active, want 2/1", st.TotalCourses, st.ActiveCourses)
	}
	if st.Enrollments != 4 || st.PaidCount != 3 {
		t.Errorf("enrollments = %d, paid = %d, want 4/3", st.Enrollments, st.PaidCount)
	}
	if st.TotalRevenue != 110 {
		t.Errorf("TotalRevenue = %v, want 110 (30+30+50)", st.TotalRevenue)
	}
}

func TestEnrollmentsForCourse(t *testing.T) {
	courses := []livingapps.Record{{ID: "c1", Fields: map[string]any{"titel": "Yoga"}}}
	enrollments := []livingapps.Record{
		enrollment("e1", "c1", true),
		enrollment("e2", "c2", false),
	}
	snap := testSnapshot(courses, enrollments)

	got := snap.EnrollmentsForCourse("c1")
	if len(got) != 1 || got[0].ID != "e1" {
		t.Errorf("EnrollmentsForCourse = %v, want [e1]", got)
	}
	if got[0].CourseTitle != "Yoga" {
		t.Errorf("CourseTitle = %q, want Yoga", got[0].CourseTitle)
	}
}

func TestToday(t *testing.T) {
	now := time.Date(2026, 8, 31, 15, 42, 7, 123, time.UTC)
	want := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	if got := Today(now); !got.Equal(want) {
		t.Errorf("Today = %v, want %v", got, want)
	}
}
