package web

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/wuweiapp/wuwei/internal/journal"
	"github.com/wuweiapp/wuwei/internal/mantras"
	"github.com/wuweiapp/wuwei/internal/todos"
)

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	return id, err == nil
}

// --- Todos ---

func (s *Server) handleTodoList(w http.ResponseWriter, r *http.Request) {
	includeCompleted := r.URL.Query().Get("include_completed") == "true"

	list, err := s.stores.Todos.List(userFrom(r).ID, includeCompleted)
	if err != nil {
		s.logger.Error("todo list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}
	if list == nil {
		list = []*todos.Todo{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"todos": list, "count": len(list)}, s.logger)
}

type todoRequest struct {
	Task    string `json:"task"`
	DueDate string `json:"due_date,omitempty"`
}

func (s *Server) handleTodoCreate(w http.ResponseWriter, r *http.Request) {
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DueDate != "" {
		if _, err := time.Parse("2006-01-02", req.DueDate); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "due_date must be YYYY-MM-DD")
			return
		}
	}

	td, err := s.stores.Todos.Create(userFrom(r).ID, req.Task, req.DueDate)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, td, s.logger)
}

func (s *Server) handleTodoUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "invalid todo id")
		return
	}
	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	td, err := s.stores.Todos.Update(userFrom(r).ID, id, req.Task, req.DueDate)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, td, s.logger)
}

func (s *Server) handleTodoComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	td, err := s.stores.Todos.Complete(userFrom(r).ID, id)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, td, s.logger)
}

func (s *Server) handleTodoDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "invalid todo id")
		return
	}

	if err := s.stores.Todos.Delete(userFrom(r).ID, id); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Mantras ---

func (s *Server) handleMantraList(w http.ResponseWriter, r *http.Request) {
	list, err := s.stores.Mantras.List(userFrom(r).ID)
	if err != nil {
		s.logger.Error("mantra list failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}
	if list == nil {
		list = []*mantras.Mantra{}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{"mantras": list, "count": len(list)}, s.logger)
}

type mantraRequest struct {
	Content string `json:"content"`
	Order   int    `json:"order"`
}

func (s *Server) handleMantraCreate(w http.ResponseWriter, r *http.Request) {
	var req mantraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := s.stores.Mantras.Add(userFrom(r).ID, req.Content)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMantraUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "invalid mantra id")
		return
	}
	var req mantraRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	m, err := s.stores.Mantras.Update(userFrom(r).ID, id, req.Content, req.Order)
	if err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, m, s.logger)
}

func (s *Server) handleMantraDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.errorResponse(w, http.StatusBadRequest, "invalid mantra id")
		return
	}

	if err := s.stores.Mantras.Delete(userFrom(r).ID, id); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Daily view ---

// dayView aggregates everything recorded for one day.
type dayView struct {
	Date      string                  `json:"date"`
	Checkin   *journal.Checkin        `json:"checkin,omitempty"`
	Gratitude *journal.GratitudeEntry `json:"gratitude,omitempty"`
	Journal   *journal.Entry          `json:"journal,omitempty"`
}

func (s *Server) handleDayGet(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}
	userID := userFrom(r).ID

	view := dayView{Date: day}

	checkin, err := s.stores.Journal.GetCheckin(userID, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("checkin query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}
	view.Checkin = checkin

	gratitude, err := s.stores.Journal.GetGratitude(userID, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("gratitude query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}
	view.Gratitude = gratitude

	entry, err := s.stores.Journal.GetEntry(userID, day)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		s.logger.Error("entry query failed", "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "query failed")
		return
	}
	view.Journal = entry

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, view, s.logger)
}

type reflectionRequest struct {
	Reflection string `json:"reflection"`
}

func (s *Server) handleReflectionSet(w http.ResponseWriter, r *http.Request) {
	day := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", day); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	var req reflectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.stores.Journal.SetReflection(userFrom(r).ID, day, req.Reflection); err != nil {
		s.errorResponse(w, http.StatusNotFound, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{"status": "ok"}, s.logger)
}
