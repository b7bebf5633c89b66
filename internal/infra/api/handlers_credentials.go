package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"genhub/internal/domain/model"
)

func (s *Server) credentialRoutes(r chi.Router) {
	r.Route("/credentials", func(r chi.Router) {
		r.Get("/", s.listCredentials)
		r.Get("/{provider}", s.getCredential)
		r.Put("/{provider}", s.saveCredential)
		r.Delete("/{provider}", s.deleteCredential)
		r.Post("/{provider}/test", s.testCredential)
	})
}

type credentialBody struct {
	Secret   string `json:"secret"`
	Endpoint string `json:"endpoint"`
}

func providerParam(r *http.Request) (model.ProviderID, error) {
	return model.ParseProviderID(chi.URLParam(r, "provider"))
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	views, err := s.creds.List(r.Context())
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if views == nil {
		views = []*model.CredentialView{}
	}
	success(w, http.StatusOK, views)
}

func (s *Server) getCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	view, err := s.creds.Get(r.Context(), p)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, view)
}

func (s *Server) saveCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	var body credentialBody
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	view, err := s.creds.Save(r.Context(), p, body.Secret, body.Endpoint)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, view)
}

func (s *Server) deleteCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if err := s.creds.Delete(r.Context(), p); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// testCredential always answers 200 once the probe ran: the outcome is the
// recorded status, with the probe error in the body.
func (s *Server) testCredential(w http.ResponseWriter, r *http.Request) {
	p, err := providerParam(r)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	view, err := s.creds.Test(r.Context(), p)
	if view == nil {
		if err == nil {
			err = errors.New("connection test returned no result")
		}
		fail(w, r, s.log, err, nil)
		return
	}
	resp := struct {
		*model.CredentialView
		Error string `json:"error,omitempty"`
	}{CredentialView: view}
	if err != nil {
		resp.Error = err.Error()
	}
	success(w, http.StatusOK, resp)
}
