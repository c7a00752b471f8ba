package dashboard

import (
	"time"

	"github.com/kursbuero/kursd/internal/catalog"
	"github.com/kursbuero/kursd/internal/enrich"
	"github.com/kursbuero/kursd/internal/livingapps"
)

// CourseStatus classifies one course against its enrollments and end date.
type CourseStatus struct {
	Count  int  `json:"count"`
	Max    int  `json:"max"`
	IsPast bool `json:"is_past"`
	IsFull bool `json:"is_full"`
}

// CourseView is an enriched course plus its computed status.
type CourseView struct {
	enrich.Course
	Status CourseStatus `json:"status"`
}

// Stats are the dashboard headline numbers.
type Stats struct {
	TotalCourses  int     `json:"total_courses"`
	ActiveCourses int     `json:"active_courses"`
	Enrollments   int     `json:"enrollments"`
	PaidCount     int     `json:"paid_count"`
	Instructors   int     `json:"instructors"`
	Participants  int     `json:"participants"`
	Rooms         int     `json:"rooms"`
	TotalRevenue  float64 `json:"total_revenue"`
}

// Today truncates a time to day granularity; status comparisons work on
// calendar days, not instants.
func Today(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// StatusFor computes the status of one course. A course is full when it has
// a positive participant limit and at least that many enrollments, and past
// when its end date lies before today.
func StatusFor(course livingapps.Record, enrollments []livingapps.Record, today time.Time) CourseStatus {
	count := 0
	for _, e := range enrollments {
		if livingapps.ExtractRecordID(catalog.StringField(e.Fields, "kurs")) == course.ID {
			count++
		}
	}

	max := 0
	if n, ok := catalog.NumberField(course.Fields, "maximale_teilnehmer"); ok {
		max = int(n)
	}

	isPast := false
	if end, ok := catalog.DateField(course.Fields, "enddatum"); ok {
		isPast = end.Before(today)
	}

	return CourseStatus{
		Count:  count,
		Max:    max,
		IsPast: isPast,
		IsFull: max > 0 && count >= max,
	}
}

// CourseViews returns all courses enriched and classified.
func (s *Snapshot) CourseViews(today time.Time) []CourseView {
	enrollments := s.Collections[catalog.Enrollments]
	courses := s.Courses()
	views := make([]CourseView, len(courses))
	for i, c := range courses {
		views[i] = CourseView{
			Course: c,
			Status: StatusFor(c.Record, enrollments, today),
		}
	}
	return views
}

// FilterCourseViews filters by status: "active" (not past, not full),
// "full" (full and not past), "past", or anything else for all.
func FilterCourseViews(views []CourseView, filter string) []CourseView {
	if filter == "" || filter == "all" {
		return views
	}
	out := make([]CourseView, 0, len(views))
	for _, v := range views {
		switch filter {
		case "active":
			if !v.Status.IsPast && !v.Status.IsFull {
				out = append(out, v)
			}
		case "full":
			if v.Status.IsFull && !v.Status.IsPast {
				out = append(out, v)
			}
		case "past":
			if v.Status.IsPast {
				out = append(out, v)
			}
		}
	}
	return out
}

// EnrollmentsForCourse returns the enriched enrollments referencing the
// given course.
func (s *Snapshot) EnrollmentsForCourse(courseID string) []enrich.Enrollment {
	var out []enrich.Enrollment
	for _, e := range s.Enrollments() {
		if livingapps.ExtractRecordID(catalog.StringField(e.Fields, "kurs")) == courseID {
			out = append(out, e)
		}
	}
	return out
}

// ComputeStats derives the headline numbers from a snapshot. Revenue sums
// the price of the referenced course over all enrollments; enrollments with
// dangling course references contribute nothing.
func (s *Snapshot) ComputeStats(today time.Time) Stats {
	st := Stats{
		TotalCourses: len(s.Collections[catalog.Courses]),
		Enrollments:  len(s.Collections[catalog.Enrollments]),
		Instructors:  len(s.Collections[catalog.Instructors]),
		Participants: len(s.Collections[catalog.Participants]),
		Rooms:        len(s.Collections[catalog.Rooms]),
	}

	enrollments := s.Collections[catalog.Enrollments]
	for _, c := range s.Collections[catalog.Courses] {
		if !StatusFor(c, enrollments, today).IsPast {
			st.ActiveCourses++
		}
	}

	courseTable := s.Tables[catalog.Courses]
	for _, e := range enrollments {
		if catalog.BoolField(e.Fields, "bezahlt") {
			st.PaidCount++
		}
		id := livingapps.ExtractRecordID(catalog.StringField(e.Fields, "kurs"))
		if id == "" {
			continue
		}
		if course, ok := courseTable[id]; ok {
			if price, ok := catalog.NumberField(course.Fields, "preis"); ok {
				st.TotalRevenue += price
			}
		}
	}
	return st
}
