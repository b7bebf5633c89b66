package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"genhub/internal/domain/model"
)

func (s *Server) conversationRoutes(r chi.Router) {
	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", s.listConversations)
		r.Post("/", s.createConversation)
		r.Get("/{id}", s.getConversation)
		r.Delete("/{id}", s.deleteConversation)
		r.Post("/{id}/messages", s.appendMessage)
	})
}

type conversationBody struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Title    string `json:"title"`
}

type messageBody struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) listConversations(w http.ResponseWriter, r *http.Request) {
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
	list, err := s.convs.List(r.Context(), offset, limit)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if list == nil {
		list = []*model.Conversation{}
	}
	success(w, http.StatusOK, list)
}

func (s *Server) createConversation(w http.ResponseWriter, r *http.Request) {
	var body conversationBody
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	conv, err := s.convs.Create(r.Context(), model.ProviderID(body.Provider), body.Model, body.Title)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusCreated, conv)
}

func (s *Server) getConversation(w http.ResponseWriter, r *http.Request) {
	conv, err := s.convs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, conv)
}

func (s *Server) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := s.convs.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	var body messageBody
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	msg, err := s.convs.Append(r.Context(), chi.URLParam(r, "id"), body.Role, body.Content)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusCreated, msg)
}
