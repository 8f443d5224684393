// Package taskstest provides an in-memory task API for tests.
package taskstest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"

	"github.com/jordan-barrett-jm/telegram-todo-bot-v2/internal/tasks"
)

// Request records one call made against the server.
type Request struct {
	Method string
	Path   string
	Query  string
	ChatID string
}

// Server is an httptest server implementing the task API wire contract.
// Tasks are partitioned by the chat-id header.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int64
	tasks    map[string]map[int64]tasks.Task
	requests []Request
}

// NewServer starts a server. Close it with Close.
func NewServer() *Server {
	s := &Server{tasks: map[string]map[int64]tasks.Task{}}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /tasks", s.list)
	mux.HandleFunc("POST /tasks", s.create)
	mux.HandleFunc("GET /tasks/{id}", s.get)
	mux.HandleFunc("PUT /tasks/{id}", s.update)
	mux.HandleFunc("DELETE /tasks/{id}", s.remove)

	s.Server = httptest.NewServer(s.record(mux))
	return s
}

// Seed stores a task for chatID and returns it with its assigned id.
func (s *Server) Seed(chatID, title string, completed bool) tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store(chatID, tasks.Task{Title: title, Completed: completed})
}

// Requests returns the calls received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Tasks returns chatID's tasks ordered by id.
func (s *Server) Tasks(chatID string) []tasks.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted(chatID, nil)
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.RawQuery,
			ChatID: r.Header.Get(tasks.ChatIDHeader),
		})
		s.mu.Unlock()

		if r.Header.Get(tasks.ChatIDHeader) == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "chat-id header missing"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) store(chatID string, t tasks.Task) tasks.Task {
	s.nextID++
	t.ID = s.nextID
	if s.tasks[chatID] == nil {
		s.tasks[chatID] = map[int64]tasks.Task{}
	}
	s.tasks[chatID][t.ID] = t
	return t
}

func (s *Server) sorted(chatID string, completed *bool) []tasks.Task {
	out := []tasks.Task{}
	for _, t := range s.tasks[chatID] {
		if completed != nil && t.Completed != *completed {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) list(w http.ResponseWriter, r *http.Request) {
	var filter *bool
	if raw := r.URL.Query().Get("completed"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid completed filter"})
			return
		}
		filter = &v
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	writeJSON(w, http.StatusOK, s.sorted(r.Header.Get(tasks.ChatIDHeader), filter))
}

func (s *Server) get(w http.ResponseWriter, r *http.Request) {
	s.withTask(w, r, func(chatID string, t tasks.Task) {
		writeJSON(w, http.StatusOK, t)
	})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req tasks.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "title is required"})
		return
	}
	t := tasks.Task{Title: req.Title, Description: req.Description}
	if req.Completed != nil {
		t.Completed = *req.Completed
	}
	s.mu.Lock()
	t = s.store(r.Header.Get(tasks.ChatIDHeader), t)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) update(w http.ResponseWriter, r *http.Request) {
	var req tasks.UpdateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
		return
	}
	s.withTask(w, r, func(chatID string, t tasks.Task) {
		if req.Title != nil {
			t.Title = *req.Title
		}
		if req.Description != nil {
			t.Description = req.Description
		}
		if req.Completed != nil {
			t.Completed = *req.Completed
		}
		s.tasks[chatID][t.ID] = t
		writeJSON(w, http.StatusOK, t)
	})
}

func (s *Server) remove(w http.ResponseWriter, r *http.Request) {
	s.withTask(w, r, func(chatID string, t tasks.Task) {
		delete(s.tasks[chatID], t.ID)
		writeJSON(w, http.StatusOK, t)
	})
}

// withTask runs fn with the addressed task under the lock, or writes 404.
func (s *Server) withTask(w http.ResponseWriter, r *http.Request, fn func(chatID string, t tasks.Task)) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid task id"})
		return
	}
	chatID := r.Header.Get(tasks.ChatIDHeader)

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[chatID][id]
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Task not found"})
		return
	}
	fn(chatID, t)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
