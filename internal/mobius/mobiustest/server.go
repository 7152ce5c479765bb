// Package mobiustest provides an in-process fake Mobius3D server for tests.
package mobiustest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"

	"github.com/mrsinham/mobiuskit/internal/mobius"
)

const sessionCookie = "sessionid"

// Attachment is one data file served for a plan check.
type Attachment struct {
	Name    string
	Content []byte
}

// Server is a fake Mobius3D server. Fill the exported fields before issuing
// requests; they are read under the server lock on every call.
type Server struct {
	*httptest.Server

	Username string
	Password string

	Patients []mobius.Patient
	// Details maps a request id to the raw plan-check details document.
	Details map[string]string
	// Files maps a request id to its data files, in listing order.
	Files map[string][]Attachment

	mu       sync.Mutex
	requests []string
	limit    int
}

// NewServer starts a fake server accepting the given credentials.
func NewServer(username, password string) *Server {
	s := &Server{
		Username: username,
		Password: password,
		Details:  make(map[string]string),
		Files:    make(map[string][]Attachment),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", s.login)
	mux.HandleFunc("GET /_plan/list", s.authed(s.planList))
	mux.HandleFunc("GET /check/details/{id}", s.authed(s.details))
	mux.HandleFunc("GET /check/details/{id}/data", s.authed(s.files))
	mux.HandleFunc("GET /check/attachment/{id}/{filename}", s.authed(s.attachment))
	s.Server = httptest.NewServer(mux)
	return s
}

// Requests returns the paths requested so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Limit returns the limit query value of the last plan list request.
func (s *Server) Limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.limit
}

func (s *Server) record(r *http.Request) {
	s.mu.Lock()
	s.requests = append(s.requests, r.URL.Path)
	s.mu.Unlock()
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	s.record(r)
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("username") != s.Username || r.PostForm.Get("password") != s.Password {
		// Mobius3D answers a failed login with the login page, not an error.
		w.WriteHeader(http.StatusOK)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "ok", Path: "/"})
	w.WriteHeader(http.StatusOK)
}

func (s *Server) authed(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.record(r)
		if c, err := r.Cookie(sessionCookie); err != nil || c.Value != "ok" {
			http.Error(w, "login required", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) planList(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	s.mu.Lock()
	s.limit = limit
	patients := s.Patients
	s.mu.Unlock()

	if patients == nil {
		patients = []mobius.Patient{}
	}
	writeJSON(w, mobius.PlanList{Patients: patients})
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	doc, ok := s.Details[r.PathValue("id")]
	s.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(doc))
}

func (s *Server) files(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	files := s.Files[r.PathValue("id")]
	s.mu.Unlock()

	data := make([]mobius.File, 0, len(files))
	for _, f := range files {
		data = append(data, mobius.File{Filename: f.Name})
	}
	writeJSON(w, map[string]any{"data": data})
}

func (s *Server) attachment(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	files := s.Files[r.PathValue("id")]
	s.mu.Unlock()

	name := r.PathValue("filename")
	for _, f := range files {
		if f.Name == name {
			w.Header().Set("Content-Type", "application/octet-stream")
			_, _ = w.Write(f.Content)
			return
		}
	}
	http.NotFound(w, r)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
