package catalog

import (
	"errors"
	"time"

	"astrixo/admin/internal/store"
)

const (
	CategoriesCollection = "categories"
	CoursesCollection    = "courses"
)

// MinutesPerLesson is the duration the dashboard assumes for every lesson.
const MinutesPerLesson = 15

var ErrUnknownCategory = errors.New("category does not exist")

type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type Course struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CategoryID  string    `json:"categoryId"`
	CoverURL    string    `json:"coverUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	LessonCount int       `json:"lessonCount"`
}

type Lesson struct {
	ID          string    `json:"id"`
	CourseID    string    `json:"courseId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	VideoURL    string    `json:"videoUrl"`
	Order       int       `json:"order"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
}

type CategoryInput struct {
	Name        string `json:"name" validate:"notblank,max=120"`
	Description string `json:"description" validate:"max=1000"`
}

type CourseInput struct {
	Name        string `json:"name" validate:"notblank,max=160"`
	Description string `json:"description" validate:"max=4000"`
	CategoryID  string `json:"categoryId" validate:"notblank"`
	CoverURL    string `json:"coverUrl" validate:"imagedata"`
}

type LessonInput struct {
	Title       string `json:"title" validate:"notblank,max=160"`
	Description string `json:"description" validate:"max=4000"`
	VideoURL    string `json:"videoUrl" validate:"omitempty,url"`
	Order       int    `json:"order" validate:"min=0"`
}

// Service manages categories, courses and lessons.
type Service struct {
	store store.Store
	now   func() time.Time
}

func NewService(s store.Store) *Service {
	return &Service{store: s, now: time.Now}
}

func LessonsCollection(courseID string) string {
	return store.Collection(CoursesCollection, courseID, "lessons")
}

func categoryPath(id string) string {
	return store.Doc(CategoriesCollection, id)
}

func coursePath(id string) string {
	return store.Doc(CoursesCollection, id)
}

func lessonPath(courseID, lessonID string) string {
	return store.Doc(LessonsCollection(courseID), lessonID)
}
