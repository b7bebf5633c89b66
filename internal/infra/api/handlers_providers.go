package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"genhub/internal/domain/ports/adapter"
)

func (s *Server) providerRoutes(r chi.Router) {
	r.Get("/models", s.listAllModels)
	r.Route("/providers", func(r chi.Router) {
		r.Get("/", s.listProviders)
		r.Get("/{provider}/models", s.listModels)
		r.Get("/{provider}/loaded", s.loadedModels)
		r.Post("/{provider}/unload", s.unloadModel)
	})
}

func (s *Server) listProviders(w http.ResponseWriter, r *http.Request) {
	success(w, http.StatusOK, s.providers.Providers())
}

func (s *Server) listAllModels(w http.ResponseWriter, r *http.Request) {
	success(w, http.StatusOK, s.providers.ListAllModels(r.Context()))
}

func (s *Server) listModels(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	names, err := s.providers.ListModels(r.Context(), p)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if names == nil {
		names = []string{}
	}
	success(w, http.StatusOK, names)
}

func (s *Server) loadedModels(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	loaded, err := s.providers.LoadedModels(r.Context(), p)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if loaded == nil {
		loaded = []adapter.LoadedModel{}
	}
	success(w, http.StatusOK, loaded)
}

type unloadBody struct {
	Model string `json:"model"`
}

func (s *Server) unloadModel(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	var body unloadBody
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if err := s.providers.UnloadModel(r.Context(), p, body.Model); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, map[string]string{"unloaded": body.Model})
}
