// Package metabasetest provides an in-process fake of the Metabase card API
// for tests.
package metabasetest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

// Default credentials accepted by the fake.
const (
	Username = "analyst@example.com"
	Password = "s3cret"
)

// Column mirrors the engine's column descriptor.
type Column struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name,omitempty"`
	BaseType    string `json:"base_type,omitempty"`
}

type card struct {
	cols   []Column
	rows   [][]any
	status int
	body   string
}

// Server is a fake Metabase instance.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	cards        map[int]*card
	tokens       map[string]bool
	logins       int
	failLogins   bool
	loginDelay   time.Duration
	rejectNext   int
	queries      map[int]int
	lastParams   map[int][]map[string]any
	healthStatus int
}

// New starts a fake engine that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		cards:        make(map[int]*card),
		tokens:       make(map[string]bool),
		queries:      make(map[int]int),
		lastParams:   make(map[int][]map[string]any),
		healthStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/session", s.handleLogin)
	mux.HandleFunc("POST /api/card/{id}/query", s.handleQuery)
	mux.HandleFunc("GET /api/card/{id}", s.handleCard)
	mux.HandleFunc("GET /api/health", s.handleHealth)

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// SetCard registers a card that answers with the given columns and rows.
func (s *Server) SetCard(id int, cols []Column, rows [][]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[id] = &card{cols: cols, rows: rows, status: http.StatusOK}
}

// FailCard registers a card that answers with the given status and body.
func (s *Server) FailCard(id, status int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[id] = &card{status: status, body: body}
}

// RawCard registers a card that answers 200 with an arbitrary body.
func (s *Server) RawCard(id int, body string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cards[id] = &card{status: http.StatusOK, body: body}
}

// RejectNext makes the next n authenticated requests answer 401.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectNext = n
}

// ExpireSessions forgets every issued token.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = make(map[string]bool)
}

// FailLogins makes every login answer 401.
func (s *Server) FailLogins(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failLogins = fail
}

// SetLoginDelay delays login responses.
func (s *Server) SetLoginDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginDelay = d
}

// SetHealthStatus sets the status returned by /api/health.
func (s *Server) SetHealthStatus(status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.healthStatus = status
}

// Logins returns the number of login requests received.
func (s *Server) Logins() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logins
}

// Queries returns the number of query requests received for a card,
// including rejected ones.
func (s *Server) Queries(id int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queries[id]
}

// LastParameters returns the template parameters of the last query for a card.
func (s *Server) LastParameters(id int) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams[id]
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&creds)

	s.mu.Lock()
	s.logins++
	delay := s.loginDelay
	fail := s.failLogins
	s.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if fail || creds.Username != Username || creds.Password != Password {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errors": map[string]string{"password": "did not match stored password"}})
		return
	}

	token := uuid.NewString()
	s.mu.Lock()
	s.tokens[token] = true
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"id": token})
}

func (s *Server) authorize(r *http.Request) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rejectNext > 0 {
		s.rejectNext--
		return false
	}
	return s.tokens[r.Header.Get("X-Metabase-Session")]
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}

	var body struct {
		Parameters []map[string]any `json:"parameters"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.queries[id]++
	s.lastParams[id] = body.Parameters
	s.mu.Unlock()

	if !s.authorize(r) {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	c, ok := s.cards[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	if c.body != "" || c.status != http.StatusOK {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(c.status)
		_, _ = w.Write([]byte(c.body))
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "completed",
		"data":   map[string]any{"cols": c.cols, "rows": c.rows},
	})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		http.NotFound(w, r)
		return
	}
	if !s.authorize(r) {
		http.Error(w, "Unauthenticated", http.StatusUnauthorized)
		return
	}

	s.mu.Lock()
	_, ok := s.cards[id]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Not found.", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"name":     fmt.Sprintf("Card %d", id),
		"display":  "table",
		"archived": false,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	status := s.healthStatus
	s.mu.Unlock()
	writeJSON(w, status, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
