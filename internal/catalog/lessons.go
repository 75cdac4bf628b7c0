package catalog

import (
	"context"
	"fmt"
	"log"
	"strings"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
)

// Lessons lists the lessons of a course by ascending order. Equal order
// values fall back to document id.
func (s *Service) Lessons(ctx context.Context, courseID string) ([]Lesson, error) {
	docs, err := s.store.List(ctx, LessonsCollection(courseID), store.Query{OrderBy: "order"})
	if err != nil {
		return nil, fmt.Errorf("list lessons %s: %w", courseID, err)
	}
	out := make([]Lesson, 0, len(docs))
	for _, doc := range docs {
		lesson, err := decodeLesson(courseID, doc)
		if err != nil {
			log.Printf("catalog: skip lesson: %v", err)
			continue
		}
		out = append(out, lesson)
	}
	return out, nil
}

func decodeLesson(courseID string, doc store.Document) (Lesson, error) {
	var lesson Lesson
	if err := doc.Decode(&lesson); err != nil {
		return Lesson{}, err
	}
	lesson.ID = doc.ID
	lesson.CourseID = courseID
	return lesson, nil
}

func (s *Service) Lesson(ctx context.Context, courseID, lessonID string) (Lesson, error) {
	doc, err := s.store.Get(ctx, lessonPath(courseID, lessonID))
	if err != nil {
		return Lesson{}, fmt.Errorf("get lesson %s: %w", lessonID, err)
	}
	return decodeLesson(courseID, doc)
}

func lessonFields(in LessonInput) store.Fields {
	return store.Fields{
		"title":       strings.TrimSpace(in.Title),
		"description": strings.TrimSpace(in.Description),
		"videoUrl":    strings.TrimSpace(in.VideoURL),
		"order":       in.Order,
	}
}

func (s *Service) CreateLesson(ctx context.Context, courseID string, in LessonInput) (Lesson, error) {
	if err := util.Validate(in); err != nil {
		return Lesson{}, err
	}
	if _, err := s.store.Get(ctx, coursePath(courseID)); err != nil {
		return Lesson{}, fmt.Errorf("create lesson: course %s: %w", courseID, err)
	}
	fields := lessonFields(in)
	fields["createdAt"] = s.now().UTC()
	id, err := s.store.Create(ctx, LessonsCollection(courseID), fields)
	if err != nil {
		return Lesson{}, fmt.Errorf("create lesson: %w", err)
	}
	return s.Lesson(ctx, courseID, id)
}

func (s *Service) UpdateLesson(ctx context.Context, courseID, lessonID string, in LessonInput) (Lesson, error) {
	if err := util.Validate(in); err != nil {
		return Lesson{}, err
	}
	if err := s.store.Update(ctx, lessonPath(courseID, lessonID), lessonFields(in)); err != nil {
		return Lesson{}, fmt.Errorf("update lesson %s: %w", lessonID, err)
	}
	return s.Lesson(ctx, courseID, lessonID)
}

func (s *Service) DeleteLesson(ctx context.Context, courseID, lessonID string) error {
	if err := s.store.Delete(ctx, lessonPath(courseID, lessonID)); err != nil {
		return fmt.Errorf("delete lesson %s: %w", lessonID, err)
	}
	return nil
}
