package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/matzehuels/stackforge/pkg/buildinfo"
	"github.com/matzehuels/stackforge/pkg/pkginfo"
)

// Summary is the list entry for one published package.
type Summary struct {
	Name        string    `json:"name" yaml:"name"`
	Version     string    `json:"version" yaml:"version"`
	Platform    string    `json:"platform" yaml:"platform"`
	Profile     string    `json:"profile,omitempty" yaml:"profile,omitempty"`
	Components  []string  `json:"components" yaml:"components"`
	PublishedAt time.Time `json:"published_at" yaml:"published_at"`
}

// HealthResponse is the body of the probe endpoints.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, map[string]any{
		"name":    name,
		"version": buildinfo.Version,
		"ready":   s.isReady(),
		"routes": []string{
			"GET /v1/packages",
			"GET /v1/packages/{name}/{version}",
			"GET /v1/packages/{name}/{version}/components/{id}",
			"GET /health",
			"GET /ready",
			"GET /metrics",
		},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now().UTC()})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if !s.isReady() {
		respondJSON(w, http.StatusServiceUnavailable, HealthResponse{
			Status:    "not_ready",
			Timestamp: time.Now().UTC(),
			Reason:    "server is not serving",
		})
		return
	}
	respondJSON(w, http.StatusOK, HealthResponse{Status: "ready", Timestamp: time.Now().UTC()})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	infos, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]Summary, 0, len(infos))
	for _, info := range infos {
		sum := Summary{
			Name:        info.Name,
			Version:     info.Version,
			Platform:    info.Platform.String(),
			Profile:     info.Profile,
			PublishedAt: info.PublishedAt,
		}
		for _, c := range info.Components {
			sum.Components = append(sum.Components, c.ID)
		}
		out = append(out, sum)
	}
	respond(w, r, http.StatusOK, out)
}

func (s *Server) load(w http.ResponseWriter, r *http.Request) (*pkginfo.Info, bool) {
	info, err := s.store.Load(r.Context(), chi.URLParam(r, "name"), chi.URLParam(r, "version"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return info, true
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	if info, ok := s.load(w, r); ok {
		respond(w, r, http.StatusOK, info)
	}
}

func (s *Server) handleComponent(w http.ResponseWriter, r *http.Request) {
	info, ok := s.load(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	c, found := info.Component(id)
	if !found {
		s.writeErrorCode(w, r, http.StatusNotFound, "NOT_FOUND", "package "+info.Ref()+" has no component "+id)
		return
	}
	respond(w, r, http.StatusOK, c)
}
