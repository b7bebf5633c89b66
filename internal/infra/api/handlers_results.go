package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
)

func (s *Server) resultRoutes(r chi.Router) {
	r.Route("/results", func(r chi.Router) {
		r.Get("/", s.listResults)
		r.Get("/{id}", s.getResult)
		r.Delete("/{id}", s.deleteResult)
		r.Get("/{id}/files/{index}", s.downloadArtifact)
	})
}

func (s *Server) listResults(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	list, err := s.results.List(r.Context(), offset, limit)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if list == nil {
		list = []*model.Result{}
	}
	success(w, http.StatusOK, list)
}

func (s *Server) getResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.results.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, res)
}

func (s *Server) deleteResult(w http.ResponseWriter, r *http.Request) {
	if err := s.results.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) downloadArtifact(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		fail(w, r, s.log, domain.Invalid("index", "must be an integer"), nil)
		return
	}
	id := chi.URLParam(r, "id")
	data, ct, err := s.results.Artifact(r.Context(), id, idx)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="`+id+"-"+strconv.Itoa(idx)+ctExt(ct)+`"`)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func ctExt(ct string) string {
	switch ct {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".bin"
}
