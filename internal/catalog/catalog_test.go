package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"astrixo/admin/internal/store"
	"astrixo/admin/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	s := store.NewMemoryStore()
	svc := NewService(s)
	svc.now = func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) }
	return svc, s
}

func seedCourse(t *testing.T, svc *Service, lessons int) Course {
	t.Helper()
	ctx := context.Background()
	cat, err := svc.CreateCategory(ctx, CategoryInput{Name: "Design"})
	require.NoError(t, err)
	course, err := svc.CreateCourse(ctx, CourseInput{Name: "Figma", CategoryID: cat.ID})
	require.NoError(t, err)
	for i := 0; i < lessons; i++ {
		_, err := svc.CreateLesson(ctx, course.ID, LessonInput{Title: fmt.Sprintf("Aula %d", i+1), Order: i + 1})
		require.NoError(t, err)
	}
	return course
}

func TestCreateCategoryStampsCreatedAt(t *testing.T) {
	svc, _ := newService(t)
	cat, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "  UX  ", Description: "Pesquisa"})
	require.NoError(t, err)
	assert.NotEmpty(t, cat.ID)
	assert.Equal(t, "UX", cat.Name)

	stored, err := svc.Category(context.Background(), cat.ID)
	require.NoError(t, err)
	assert.True(t, stored.CreatedAt.Equal(time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)))
}

func TestCategoryValidation(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateCategory(context.Background(), CategoryInput{Name: "   "})
	var verr *util.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, verr.Fields, "name")
}

func TestUpdateMissingCategory(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.UpdateCategory(context.Background(), "nope", CategoryInput{Name: "X"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteCategoryDoesNotCascade(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	course := seedCourse(t, svc, 1)

	require.NoError(t, svc.DeleteCategory(ctx, course.CategoryID))
	kept, err := svc.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, course.CategoryID, kept.CategoryID)
}

func TestCourseRequiresExistingCategory(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateCourse(context.Background(), CourseInput{Name: "Go", CategoryID: "ghost"})
	var verr *util.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, ErrUnknownCategory.Error(), verr.Fields["categoryId"])
}

func TestCourseCoverMustBeImageData(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	cat, err := svc.CreateCategory(ctx, CategoryInput{Name: "Dev"})
	require.NoError(t, err)

	_, err = svc.CreateCourse(ctx, CourseInput{Name: "Go", CategoryID: cat.ID, CoverURL: "https://cdn/x.png"})
	require.ErrorIs(t, err, util.ErrValidation)

	course, err := svc.CreateCourse(ctx, CourseInput{Name: "Go", CategoryID: cat.ID, CoverURL: "data:image/jpeg;base64,/9j/4AAQ"})
	require.NoError(t, err)
	assert.Equal(t, "data:image/jpeg;base64,/9j/4AAQ", course.CoverURL)
}

func TestCoursesCountLessons(t *testing.T) {
	svc, _ := newService(t)
	course := seedCourse(t, svc, 3)

	courses, err := svc.Courses(context.Background())
	require.NoError(t, err)
	require.Len(t, courses, 1)
	assert.Equal(t, course.ID, courses[0].ID)
	assert.Equal(t, 3, courses[0].LessonCount)
}

func TestLessonsOrderedByOrder(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	course := seedCourse(t, svc, 0)
	for _, in := range []LessonInput{
		{Title: "Terceira", Order: 3},
		{Title: "Primeira", Order: 1},
		{Title: "Segunda", Order: 2},
	} {
		_, err := svc.CreateLesson(ctx, course.ID, in)
		require.NoError(t, err)
	}

	lessons, err := svc.Lessons(ctx, course.ID)
	require.NoError(t, err)
	require.Len(t, lessons, 3)
	assert.Equal(t, []string{"Primeira", "Segunda", "Terceira"}, []string{lessons[0].Title, lessons[1].Title, lessons[2].Title})
	assert.Equal(t, course.ID, lessons[0].CourseID)
}

func TestUpdateLesson(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	course := seedCourse(t, svc, 1)
	lessons, err := svc.Lessons(ctx, course.ID)
	require.NoError(t, err)

	updated, err := svc.UpdateLesson(ctx, course.ID, lessons[0].ID, LessonInput{
		Title:    "Introdução",
		VideoURL: "https://videos.example.com/intro",
		Order:    7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Introdução", updated.Title)
	assert.Equal(t, 7, updated.Order)

	_, err = svc.UpdateLesson(ctx, course.ID, lessons[0].ID, LessonInput{Title: "x", VideoURL: "not a url"})
	require.ErrorIs(t, err, util.ErrValidation)
}

func TestCreateLessonForMissingCourse(t *testing.T) {
	svc, _ := newService(t)
	_, err := svc.CreateLesson(context.Background(), "ghost", LessonInput{Title: "x"})
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteCourseRemovesLessons(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	course := seedCourse(t, svc, 4)

	deleted, err := svc.DeleteCourse(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, deleted)

	left, err := s.List(ctx, LessonsCollection(course.ID), store.Query{})
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = svc.Course(ctx, course.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

// flakyDelete fails every lesson delete after the first n.
type flakyDelete struct {
	store.Store
	n int
}

func (f *flakyDelete) Delete(ctx context.Context, path string) error {
	if f.n == 0 {
		return errors.New("unavailable")
	}
	f.n--
	return f.Store.Delete(ctx, path)
}

func TestDeleteCourseReportsPartialCascade(t *testing.T) {
	svc, s := newService(t)
	ctx := context.Background()
	course := seedCourse(t, svc, 5)

	svc.store = &flakyDelete{Store: s, n: 2}
	deleted, err := svc.DeleteCourse(ctx, course.ID)
	var cascade *CascadeError
	require.True(t, errors.As(err, &cascade))
	assert.Equal(t, 2, deleted)
	assert.Equal(t, 2, cascade.LessonsDeleted)
	assert.Equal(t, 5, cascade.LessonsTotal)

	// The course stays so the delete can be retried.
	svc.store = s
	kept, err := svc.Course(ctx, course.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, kept.LessonCount)
}

func TestStats(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	empty, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, empty)

	seedCourse(t, svc, 3)
	seedCourse(t, svc, 4)
	cat, err := svc.CreateCategory(ctx, CategoryInput{Name: "Vazia"})
	require.NoError(t, err)
	require.NotEmpty(t, cat.ID)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Categories)
	assert.Equal(t, 2, stats.Courses)
	assert.Equal(t, 7, stats.Lessons)
	assert.Equal(t, 0.7, stats.CoursesPerCategory)
	assert.Equal(t, 3.5, stats.LessonsPerCourse)
	assert.Equal(t, 105, stats.EstimatedMinutes)
}
