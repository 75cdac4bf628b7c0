package catalog

import (
	"context"
	"fmt"
	"math"

	"astrixo/admin/internal/store"
)

// Stats are the dashboard totals.
type Stats struct {
	Categories         int     `json:"categories"`
	Courses            int     `json:"courses"`
	Lessons            int     `json:"lessons"`
	CoursesPerCategory float64 `json:"coursesPerCategory"`
	LessonsPerCourse   float64 `json:"lessonsPerCourse"`
	EstimatedMinutes   int     `json:"estimatedMinutes"`
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	categories, err := s.store.List(ctx, CategoriesCollection, store.Query{})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: list categories: %w", err)
	}
	courses, err := s.store.List(ctx, CoursesCollection, store.Query{})
	if err != nil {
		return Stats{}, fmt.Errorf("stats: list courses: %w", err)
	}

	stats := Stats{Categories: len(categories), Courses: len(courses)}
	for _, course := range courses {
		lessons, err := s.store.List(ctx, LessonsCollection(course.ID), store.Query{})
		if err != nil {
			return Stats{}, fmt.Errorf("stats: list lessons %s: %w", course.ID, err)
		}
		stats.Lessons += len(lessons)
	}
	stats.CoursesPerCategory = ratio(stats.Courses, stats.Categories)
	stats.LessonsPerCourse = ratio(stats.Lessons, stats.Courses)
	stats.EstimatedMinutes = stats.Lessons * MinutesPerLesson
	return stats, nil
}

// ratio rounds to one decimal place; a zero denominator gives 0.
func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(d)*10) / 10
}
