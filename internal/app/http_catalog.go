package app

import (
	"net/http"

	"astrixo/admin/internal/catalog"
	"github.com/gorilla/mux"
)

func (s *HTTPServer) routeCatalog(r *mux.Router) {
	r.HandleFunc("/dashboard/stats", s.handleStats).Methods(http.MethodGet)

	r.HandleFunc("/categories", s.handleListCategories).Methods(http.MethodGet)
	r.HandleFunc("/categories", s.handleCreateCategory).Methods(http.MethodPost)
	r.HandleFunc("/categories/{id}", s.handleGetCategory).Methods(http.MethodGet)
	r.HandleFunc("/categories/{id}", s.handleUpdateCategory).Methods(http.MethodPut)
	r.HandleFunc("/categories/{id}", s.handleDeleteCategory).Methods(http.MethodDelete)

	r.HandleFunc("/courses", s.handleListCourses).Methods(http.MethodGet)
	r.HandleFunc("/courses", s.handleCreateCourse).Methods(http.MethodPost)
	r.HandleFunc("/courses/{id}", s.handleGetCourse).Methods(http.MethodGet)
	r.HandleFunc("/courses/{id}", s.handleUpdateCourse).Methods(http.MethodPut)
	r.HandleFunc("/courses/{id}", s.handleDeleteCourse).Methods(http.MethodDelete)

	r.HandleFunc("/courses/{id}/lessons", s.handleListLessons).Methods(http.MethodGet)
	r.HandleFunc("/courses/{id}/lessons", s.handleCreateLesson).Methods(http.MethodPost)
	r.HandleFunc("/courses/{id}/lessons/{lessonId}", s.handleUpdateLesson).Methods(http.MethodPut)
	r.HandleFunc("/courses/{id}/lessons/{lessonId}", s.handleDeleteLesson).Methods(http.MethodDelete)
}

func (s *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.service.catalog.Stats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) handleListCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.service.catalog.Categories(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": categories})
}

func (s *HTTPServer) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	category, err := s.service.catalog.Category(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *HTTPServer) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	var body catalog.CategoryInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	category, err := s.service.catalog.CreateCategory(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, category)
}

func (s *HTTPServer) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	var body catalog.CategoryInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	category, err := s.service.catalog.UpdateCategory(r.Context(), mux.Vars(r)["id"], body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, category)
}

func (s *HTTPServer) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := s.service.catalog.DeleteCategory(r.Context(), mux.Vars(r)["id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := s.service.catalog.Courses(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"courses": courses})
}

func (s *HTTPServer) handleGetCourse(w http.ResponseWriter, r *http.Request) {
	course, err := s.service.catalog.Course(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func (s *HTTPServer) handleCreateCourse(w http.ResponseWriter, r *http.Request) {
	var body catalog.CourseInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	course, err := s.service.catalog.CreateCourse(r.Context(), body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, course)
}

func (s *HTTPServer) handleUpdateCourse(w http.ResponseWriter, r *http.Request) {
	var body catalog.CourseInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	course, err := s.service.catalog.UpdateCourse(r.Context(), mux.Vars(r)["id"], body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

// handleDeleteCourse removes the lessons first. When that stops part way the
// course is kept and the response reports how many lessons went.
func (s *HTTPServer) handleDeleteCourse(w http.ResponseWriter, r *http.Request) {
	deleted, err := s.service.catalog.DeleteCourse(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lessonsDeleted": deleted})
}

func (s *HTTPServer) handleListLessons(w http.ResponseWriter, r *http.Request) {
	courseID := mux.Vars(r)["id"]
	if _, err := s.service.catalog.Course(r.Context(), courseID); err != nil {
		writeServiceError(w, err)
		return
	}
	lessons, err := s.service.catalog.Lessons(r.Context(), courseID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lessons": lessons})
}

func (s *HTTPServer) handleCreateLesson(w http.ResponseWriter, r *http.Request) {
	var body catalog.LessonInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	lesson, err := s.service.catalog.CreateLesson(r.Context(), mux.Vars(r)["id"], body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, lesson)
}

func (s *HTTPServer) handleUpdateLesson(w http.ResponseWriter, r *http.Request) {
	var body catalog.LessonInput
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	vars := mux.Vars(r)
	lesson, err := s.service.catalog.UpdateLesson(r.Context(), vars["id"], vars["lessonId"], body)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

func (s *HTTPServer) handleDeleteLesson(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	if err := s.service.catalog.DeleteLesson(r.Context(), vars["id"], vars["lessonId"]); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
