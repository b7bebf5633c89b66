package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/usecase"
)

func (s *Server) jobRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", s.listJobs)
		r.Post("/chat", s.submitChat)
		r.Post("/image", s.submitImage)
		r.Get("/{id}", s.getJob)
		r.Get("/{id}/result", s.getJobResult)
		r.Post("/{id}/check", s.checkJob)
		r.Post("/{id}/await", s.awaitJob)
		r.Post("/{id}/retry", s.retryJob)
	})
}

type chatJobBody struct {
	Provider          string            `json:"provider"`
	Model             string            `json:"model"`
	Messages          []adapter.Message `json:"messages"`
	ConversationID    string            `json:"conversation_id"`
	StartConversation bool              `json:"start_conversation"`
	Title             string            `json:"title"`
}

type imageJobBody struct {
	Provider       string              `json:"provider"`
	Model          string              `json:"model"`
	Prompt         string              `json:"prompt"`
	NegativePrompt string              `json:"negative_prompt"`
	Params         adapter.ImageParams `json:"params"`
}

func (s *Server) submitChat(w http.ResponseWriter, r *http.Request) {
	var body chatJobBody
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	p, err := model.ParseProviderID(body.Provider)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	job, err := s.jobs.SubmitChat(r.Context(), usecase.ChatJobRequest{
		Provider:          p,
		Model:             body.Model,
		Messages:          body.Messages,
		ConversationID:    body.ConversationID,
		StartConversation: body.StartConversation,
		Title:             body.Title,
	})
	s.respondJob(w, r, job, err, http.StatusCreated)
}

func (s *Server) submitImage(w http.ResponseWriter, r *http.Request) {
	// Omitted parameters keep their defaults; explicit values are validated.
	body := imageJobBody{Params: usecase.DefaultImageParams()}
	if err := decode(r, &body); err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	p, err := model.ParseProviderID(body.Provider)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	job, err := s.jobs.SubmitImage(r.Context(), usecase.ImageJobRequest{
		Provider:       p,
		Model:          body.Model,
		Prompt:         body.Prompt,
		NegativePrompt: body.NegativePrompt,
		Params:         body.Params,
	})
	s.respondJob(w, r, job, err, http.StatusAccepted)
}

// respondJob reports a failed submission with the stored job attached, so
// the client can retry it by id.
func (s *Server) respondJob(w http.ResponseWriter, r *http.Request, job *model.Job, err error, status int) {
	if err != nil {
		var data any
		if job != nil {
			data = job
		}
		fail(w, r, s.log, err, data)
		return
	}
	if job.Status.Terminal() {
		status = http.StatusOK
	}
	success(w, status, job)
}

func (s *Server) listJobs(w http.ResponseWriter, r *http.Request) {
	var statuses []model.JobStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, part := range strings.Split(raw, ",") {
			st, err := model.ParseJobStatus(part)
			if err != nil {
				fail(w, r, s.log, err, nil)
				return
			}
			statuses = append(statuses, st)
		}
	}
	limit, err := queryInt(r, "limit", 100)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	jobs, err := s.jobs.List(r.Context(), statuses, limit)
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}
	success(w, http.StatusOK, jobs)
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, job)
}

func (s *Server) getJobResult(w http.ResponseWriter, r *http.Request) {
	res, err := s.results.GetByJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, res)
}

func (s *Server) checkJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Check(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, r, s.log, err, nil)
		return
	}
	success(w, http.StatusOK, job)
}

func (s *Server) awaitJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Await(r.Context(), chi.URLParam(r, "id"))
	if err != nil && job == nil {
		fail(w, r, s.log, err, nil)
		return
	}
	// A request deadline ends the wait; the job is reported as it stands.
	success(w, http.StatusOK, job)
}

func (s *Server) retryJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.jobs.Retry(r.Context(), chi.URLParam(r, "id"))
	s.respondJob(w, r, job, err, http.StatusAccepted)
}
