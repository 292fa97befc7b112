// Package nav models where the operator currently is and where the client
// sends them next. Command paths play the role of pages.
package nav

import (
	"net/url"
	"sync"
)

// Known pages
const (
	PathLogin     = "/login"
	PathRegister  = "/register"
	PathDashboard = "/dashboard"
	PathProfile   = "/profile"
)

// Navigator is implemented by anything that can report the current page and
// move the operator elsewhere.
type Navigator interface {
	Current() string
	Navigate(path string, query url.Values)
}

// IsPublicAuthPage reports whether path is reachable without a session
func IsPublicAuthPage(path string) bool {
	return path == PathLogin || path == PathRegister
}

// Route is a recorded navigation
type Route struct {
	Path  string
	Query url.Values
}

// String renders the route as a path with its query string
func (r Route) String() string {
	if len(r.Query) == 0 {
		return r.Path
	}
	return r.Path + "?" + r.Query.Encode()
}

// Recorder is a Navigator that remembers every navigation
type Recorder struct {
	mu      sync.Mutex
	current string
	history []Route
}

// NewRecorder starts a Recorder on the given page
func NewRecorder(start string) *Recorder {
	if start == "" {
		start = PathDashboard
	}
	return &Recorder{current: start}
}

// Current returns the page the operator is on
func (r *Recorder) Current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

// Navigate moves to path
func (r *Recorder) Navigate(path string, query url.Values) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = path
	r.history = append(r.history, Route{Path: path, Query: query})
}

// Last returns the most recent navigation, if any
func (r *Recorder) Last() (Route, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Route{}, false
	}
	return r.history[len(r.history)-1], true
}

// History returns a copy of all navigations in order
func (r *Recorder) History() []Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Route, len(r.history))
	copy(out, r.history)
	return out
}
