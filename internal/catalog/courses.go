package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

// CascadeError reports a course delete that stopped after removing some of
// its lessons. The course document itself is left in place.
type CascadeError struct {
	CourseID       string
	LessonsDeleted int
	LessonsTotal   int
	Err            error
}

func (e *CascadeError) Error() string {
	return fmt.Sprintf("delete course %s: removed %d of %d lessons: %v", e.CourseID, e.LessonsDeleted, e.LessonsTotal, e.Err)
}

func (e *CascadeError) Unwrap() error {
	return e.Err
}

// Courses lists every course with the number of lessons it holds.
func (s *Service) Courses(ctx context.Context) ([]Course, error) {
	docs, err := s.store.List(ctx, CoursesCollection, store.Query{OrderBy: "createdAt", Descending: true})
	if err != nil {
		return nil, fmt.Errorf("list courses: %w", err)
	}
	out := make([]Course, 0, len(docs))
	for _, doc := range docs {
		var course Course
		if err := doc.Decode(&course); err != nil {
			log.Printf("catalog: skip course: %v", err)
			continue
		}
		course.ID = doc.ID
		lessons, err := s.store.List(ctx, LessonsCollection(doc.ID), store.Query{})
		if err != nil {
			return nil, fmt.Errorf("count lessons %s: %w", doc.ID, err)
		}
		course.LessonCount = len(lessons)
		out = append(out, course)
	}
	return out, nil
}

func (s *Service) Course(ctx context.Context, id string) (Course, error) {
	doc, err := s.store.Get(ctx, coursePath(id))
	if err != nil {
		return Course{}, fmt.Errorf("get course %s: %w", id, err)
	}
	var course Course
	if err := doc.Decode(&course); err != nil {
		return Course{}, err
	}
	course.ID = doc.ID
	lessons, err := s.store.List(ctx, LessonsCollection(id), store.Query{})
	if err != nil {
		return Course{}, fmt.Errorf("count lessons %s: %w", id, err)
	}
	course.LessonCount = len(lessons)
	return course, nil
}

func (s *Service) checkCourseInput(ctx context.Context, in CourseInput) error {
	if err := util.Validate(in); err != nil {
		return err
	}
	_, err := s.store.Get(ctx, categoryPath(strings.TrimSpace(in.CategoryID)))
	if errors.Is(err, store.ErrNotFound) {
		return util.Invalid("categoryId", ErrUnknownCategory.Error())
	}
	if err != nil {
		return fmt.Errorf("check category %s: %w", in.CategoryID, err)
	}
	return nil
}

func courseFields(in CourseInput) store.Fields {
	fields := store.Fields{
		"name":        strings.TrimSpace(in.Name),
		"description": strings.TrimSpace(in.Description),
		"categoryId":  strings.TrimSpace(in.CategoryID),
		"coverUrl":    nil,
	}
	if in.CoverURL != "" {
		fields["coverUrl"] = in.CoverURL
	}
	return fields
}

func (s *Service) CreateCourse(ctx context.Context, in CourseInput) (Course, error) {
	if err := s.checkCourseInput(ctx, in); err != nil {
		return Course{}, err
	}
	fields := courseFields(in)
	fields["createdAt"] = s.now().UTC()
	id, err := s.store.Create(ctx, CoursesCollection, fields)
	if err != nil {
		return Course{}, fmt.Errorf("create course: %w", err)
	}
	return s.Course(ctx, id)
}

func (s *Service) UpdateCourse(ctx context.Context, id string, in CourseInput) (Course, error) {
	if err := s.checkCourseInput(ctx, in); err != nil {
		return Course{}, err
	}
	if err := s.store.Update(ctx, coursePath(id), courseFields(in)); err != nil {
		return Course{}, fmt.Errorf("update course %s: %w", id, err)
	}
	return s.Course(ctx, id)
}

// DeleteCourse removes every lesson of the course one by one and then the
// course. The removal is not atomic: when a lesson delete fails the returned
// *CascadeError says how many lessons were already gone.
func (s *Service) DeleteCourse(ctx context.Context, id string) (int, error) {
	if _, err := s.store.Get(ctx, coursePath(id)); err != nil {
		return 0, fmt.Errorf("delete course %s: %w", id, err)
	}
	lessons, err := s.store.List(ctx, LessonsCollection(id), store.Query{})
	if err != nil {
		return 0, fmt.Errorf("list lessons %s: %w", id, err)
	}

	deleted := 0
	for _, lesson := range lessons {
		if err := s.store.Delete(ctx, lesson.Path); err != nil {
			return deleted, &CascadeError{CourseID: id, LessonsDeleted: deleted, LessonsTotal: len(lessons), Err: err}
		}
		deleted++
	}
	if err := s.store.Delete(ctx, coursePath(id)); err != nil {
		return deleted, fmt.Errorf("delete course %s: %w", id, err)
	}
	log.Printf("catalog: deleted course %s with %d lessons", id, deleted)
	return deleted, nil
}
