package app

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createCategory(t *testing.T, env *testEnv, name string) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/categories", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id, _ := decodeJSON(t, rr)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func createCourse(t *testing.T, env *testEnv, categoryID, name string) string {
	t.Helper()
	rr := env.do(t, http.MethodPost, "/api/courses", map[string]string{"name": name, "categoryId": categoryID})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	id, _ := decodeJSON(t, rr)["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func TestCategoryCRUD(t *testing.T) {
	env := newTestEnv(t)
	id := createCategory(t, env, "Design")

	rr := env.do(t, http.MethodPut, "/api/categories/"+id, map[string]string{"name": "UX Design", "description": "Pesquisa e prototipação"})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "UX Design", decodeJSON(t, rr)["name"])

	rr = env.do(t, http.MethodGet, "/api/categories", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	categories, _ := decodeJSON(t, rr)["categories"].([]any)
	assert.Len(t, categories, 1)

	rr = env.do(t, http.MethodDelete, "/api/categories/"+id, nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/categories/"+id, nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCategoryValidationError(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/categories", map[string]string{"name": "  "})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	payload := decodeJSON(t, rr)
	assert.Equal(t, "VALIDATION_ERROR", payload["code"])
	details, _ := payload["details"].(map[string]any)
	assert.Contains(t, details, "name")

	rr = env.do(t, http.MethodPut, "/api/categories/missing", map[string]string{"name": "X"})
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestCourseRequiresKnownCategory(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, http.MethodPost, "/api/courses", map[string]string{"name": "Go", "categoryId": "ghost"})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	details, _ := decodeJSON(t, rr)["details"].(map[string]any)
	assert.Contains(t, details, "categoryId")
}

func TestLessonsAndCascadeDelete(t *testing.T) {
	env := newTestEnv(t)
	categoryID := createCategory(t, env, "Dev")
	courseID := createCourse(t, env, categoryID, "Go do zero")

	for i := 3; i >= 1; i-- {
		rr := env.do(t, http.MethodPost, "/api/courses/"+courseID+"/lessons", map[string]any{
			"title": fmt.Sprintf("Aula %d", i),
			"order": i,
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	}

	rr := env.do(t, http.MethodGet, "/api/courses/"+courseID+"/lessons", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	lessons, _ := decodeJSON(t, rr)["lessons"].([]any)
	require.Len(t, lessons, 3)
	first, _ := lessons[0].(map[string]any)
	assert.Equal(t, "Aula 1", first["title"])

	lessonID, _ := first["id"].(string)
	rr = env.do(t, http.MethodPut, "/api/courses/"+courseID+"/lessons/"+lessonID, map[string]any{
		"title":    "Boas-vindas",
		"videoUrl": "not a url",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = env.do(t, http.MethodGet, "/api/courses/"+courseID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 3, decodeJSON(t, rr)["lessonCount"])

	rr = env.do(t, http.MethodDelete, "/api/courses/"+courseID, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.EqualValues(t, 3, decodeJSON(t, rr)["lessonsDeleted"])

	rr = env.do(t, http.MethodGet, "/api/courses/"+courseID+"/lessons", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	categoryID := createCategory(t, env, "Marketing")
	createCategory(t, env, "Vendas")
	courseID := createCourse(t, env, categoryID, "SEO")
	for i := 1; i <= 2; i++ {
		rr := env.do(t, http.MethodPost, "/api/courses/"+courseID+"/lessons", map[string]any{"title": fmt.Sprintf("Aula %d", i), "order": i})
		require.Equal(t, http.StatusCreated, rr.Code)
	}

	rr := env.do(t, http.MethodGet, "/api/dashboard/stats", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	stats := decodeJSON(t, rr)
	assert.EqualValues(t, 2, stats["categories"])
	assert.EqualValues(t, 1, stats["courses"])
	assert.EqualValues(t, 2, stats["lessons"])
	assert.EqualValues(t, 0.5, stats["coursesPerCategory"])
	assert.EqualValues(t, 2, stats["lessonsPerCourse"])
	assert.EqualValues(t, 30, stats["estimatedMinutes"])
}
