package server

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"

	"spanscope/internal/viewmodel"
)

const viewerCookie = "viewer"

// Sessions maps a viewer and a trace to one DetailView, so reloading a trace supersedes the
// viewer's earlier load of that trace while other traces open in other tabs load
// independently. The least recently used views are evicted once the cache is full, and
// evicted views are closed so their loads stop.
type Sessions struct {
	mu      sync.Mutex
	cache   *lru.Cache
	newView func() *viewmodel.DetailView
}

// NewSessions creates a session store holding at most size views.
func NewSessions(size int, newView func() *viewmodel.DetailView) (*Sessions, error) {
	cache, err := lru.NewWithEvict(size, func(key, value interface{}) {
		if view, ok := value.(*viewmodel.DetailView); ok {
			view.Close()
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache: %w", err)
	}
	return &Sessions{cache: cache, newView: newView}, nil
}

// View returns the view viewerID uses for traceID, creating it on first use.
func (s *Sessions) View(viewerID, traceID string) *viewmodel.DetailView {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := viewerID + "/" + traceID
	if v, ok := s.cache.Get(key); ok {
		return v.(*viewmodel.DetailView)
	}
	view := s.newView()
	s.cache.Add(key, view)
	return view
}

// Len returns the number of live views.
func (s *Sessions) Len() int {
	return s.cache.Len()
}

// Close closes every view.
func (s *Sessions) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Purge()
}

// viewerID returns the viewer cookie, issuing a new id when the request has none.
func viewerID(w http.ResponseWriter, r *http.Request) string {
	if c, err := r.Cookie(viewerCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return c.Value
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     viewerCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}
