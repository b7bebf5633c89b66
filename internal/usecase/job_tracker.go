package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/domain/ports/repository"
	"genhub/internal/infra/logging"
	"genhub/internal/infra/metrics"
	"genhub/internal/infra/storage"
)

// JobGateway is the subset of the gateway the tracker drives.
type JobGateway interface {
	Chat(ctx context.Context, provider model.ProviderID, modelName string, messages []adapter.Message) (adapter.ChatResult, error)
	SubmitImage(ctx context.Context, provider model.ProviderID, modelName string, req adapter.ImageRequest) (adapter.Submission, error)
	ImageStatus(ctx context.Context, provider model.ProviderID, token string) (adapter.RemoteStatus, error)
	FetchArtifact(ctx context.Context, provider model.ProviderID, a adapter.Artifact) ([]byte, string, error)
}

type ChatJobRequest struct {
	Provider model.ProviderID  `json:"provider"`
	Model    string            `json:"model"`
	Messages []adapter.Message `json:"messages"`
	// ConversationID continues a stored conversation; its recent history is
	// prepended to Messages.
	ConversationID string `json:"conversation_id,omitempty"`
	// StartConversation creates a conversation when ConversationID is empty.
	StartConversation bool   `json:"start_conversation,omitempty"`
	Title             string `json:"title,omitempty"`
}

type ImageJobRequest struct {
	Provider       model.ProviderID    `json:"provider"`
	Model          string              `json:"model"`
	Prompt         string              `json:"prompt"`
	NegativePrompt string              `json:"negative_prompt,omitempty"`
	Params         adapter.ImageParams `json:"params"`
}

// chatInput is what a text job stores so a retry can replay it.
type chatInput struct {
	Messages       []adapter.Message `json:"messages"`
	ConversationID string            `json:"conversation_id,omitempty"`
}

type TrackerConfig struct {
	PollInterval time.Duration
	MaxAttempts  int
	LockTTL      time.Duration
	HistoryLimit int
}

// Compile-time check
var _ JobTrackerUseCase = (*JobTracker)(nil)

type JobTrackerUseCase interface {
	SubmitChat(ctx context.Context, req ChatJobRequest) (*model.Job, error)
	SubmitImage(ctx context.Context, req ImageJobRequest) (*model.Job, error)
	Check(ctx context.Context, id string) (*model.Job, error)
	Await(ctx context.Context, id string) (*model.Job, error)
	Retry(ctx context.Context, id string) (*model.Job, error)
	Get(ctx context.Context, id string) (*model.Job, error)
	List(ctx context.Context, statuses []model.JobStatus, limit int) ([]*model.Job, error)
}

// JobTracker owns the job lifecycle from submission to a terminal state.
// Store, locker, notifier and tx manager are optional.
type JobTracker struct {
	jobs     repository.JobRepository
	results  repository.ResultRepository
	convs    repository.ConversationRepository
	tx       repository.TransactionManager
	gw       JobGateway
	store    adapter.ArtifactStore
	locker   adapter.Locker
	notifier adapter.Notifier
	clock    Clock
	cfg      TrackerConfig
	log      *zerolog.Logger
}

type TrackerDeps struct {
	Jobs          repository.JobRepository
	Results       repository.ResultRepository
	Conversations repository.ConversationRepository
	Tx            repository.TransactionManager
	Gateway       JobGateway
	Store         adapter.ArtifactStore
	Locker        adapter.Locker
	Notifier      adapter.Notifier
	Clock         Clock
}

func NewJobTracker(d TrackerDeps, cfg TrackerConfig, logger *zerolog.Logger) *JobTracker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 120
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 30
	}
	if d.Clock == nil {
		d.Clock = SystemClock()
	}
	return &JobTracker{
		jobs:     d.Jobs,
		results:  d.Results,
		convs:    d.Conversations,
		tx:       d.Tx,
		gw:       d.Gateway,
		store:    d.Store,
		locker:   d.Locker,
		notifier: d.Notifier,
		clock:    d.Clock,
		cfg:      cfg,
		log:      logger,
	}
}

// SubmitChat runs a chat request as a text job. Malformed input is rejected
// before a job exists; provider failures leave a failed job and are returned
// together with it.
func (t *JobTracker) SubmitChat(ctx context.Context, req ChatJobRequest) (*model.Job, error) {
	if _, err := model.ParseProviderID(string(req.Provider)); err != nil {
		return nil, err
	}
	if err := ValidateChat(req.Model, req.Messages); err != nil {
		return nil, err
	}

	in := chatInput{Messages: req.Messages, ConversationID: req.ConversationID}
	if in.ConversationID != "" {
		if _, err := t.convs.FindByID(ctx, repository.NoTX, in.ConversationID); err != nil {
			return nil, err
		}
	}

	var job *model.Job
	err := t.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if in.ConversationID == "" && req.StartConversation {
			title := req.Title
			if title == "" {
				title = titleFrom(req.Messages)
			}
			conv := model.NewConversation(newID(), req.Provider, req.Model, title, t.clock.Now())
			if err := t.convs.Create(ctx, tx, conv); err != nil {
				return err
			}
			in.ConversationID = conv.ID
		}
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		job = model.NewJob(newID(), model.JobKindText, req.Provider, req.Model, raw, t.clock.Now())
		return t.jobs.Create(ctx, tx, job)
	})
	if err != nil {
		return nil, err
	}
	return t.dispatchChat(ctx, job, in)
}

func (t *JobTracker) dispatchChat(ctx context.Context, job *model.Job, in chatInput) (*model.Job, error) {
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, t.log)

	if err := t.advance(ctx, repository.NoTX, job, model.JobStatusRunning); err != nil {
		return nil, err
	}

	msgs := in.Messages
	var conv *model.Conversation
	if in.ConversationID != "" {
		c, err := t.convs.FindByID(ctx, repository.NoTX, in.ConversationID)
		if err != nil {
			return t.failJob(ctx, job, err)
		}
		conv = c
		msgs = append(historyOf(c, t.cfg.HistoryLimit), in.Messages...)
	}

	reply, err := t.gw.Chat(ctx, job.Provider, job.Model, msgs)
	if err != nil {
		log.Warn().Err(err).Str("provider", string(job.Provider)).Msg("chat job failed")
		return t.failJob(ctx, job, err)
	}

	now := t.clock.Now()
	res := &model.Result{ID: newID(), JobID: job.ID, Type: model.ResultTypeText, Content: reply.Content, CreatedAt: now}
	snapshot := *job
	err = t.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := t.results.Create(ctx, tx, res); err != nil {
			return err
		}
		if conv != nil {
			for _, m := range in.Messages {
				msg := conv.AddMessage(newID(), m.Role, m.Content, 0, now)
				if err := t.convs.AppendMessage(ctx, tx, &msg); err != nil {
					return err
				}
			}
			tokens := 0
			if reply.TokensUsed != nil {
				tokens = *reply.TokensUsed
			}
			msg := conv.AddMessage(newID(), model.RoleAssistant, reply.Content, tokens, now)
			if err := t.convs.AppendMessage(ctx, tx, &msg); err != nil {
				return err
			}
		}
		job.ResultID = res.ID
		return t.advance(ctx, tx, job, model.JobStatusCompleted)
	})
	if err != nil {
		*job = snapshot
		if errors.Is(err, domain.ErrConflict) {
			return t.jobs.FindByID(ctx, repository.NoTX, job.ID)
		}
		return t.failJob(ctx, job, err)
	}
	t.announce(ctx, job)
	return job, nil
}

// SubmitImage creates an image job and dispatches it. The stored input holds
// the concrete seed.
func (t *JobTracker) SubmitImage(ctx context.Context, req ImageJobRequest) (*model.Job, error) {
	if _, err := model.ParseProviderID(string(req.Provider)); err != nil {
		return nil, err
	}
	ir, err := NormalizeImageRequest(req.Model, adapter.ImageRequest{
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
		Params:         req.Params,
	})
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(ir)
	if err != nil {
		return nil, err
	}
	job := model.NewJob(newID(), model.JobKindImage, req.Provider, req.Model, raw, t.clock.Now())
	if err := t.jobs.Create(ctx, repository.NoTX, job); err != nil {
		return nil, err
	}
	return t.dispatchImage(ctx, job, ir)
}

func (t *JobTracker) dispatchImage(ctx context.Context, job *model.Job, ir adapter.ImageRequest) (*model.Job, error) {
	ctx = logging.WithJobID(ctx, job.ID)

	zero := 0
	job.Progress = &zero
	if err := t.advance(ctx, repository.NoTX, job, model.JobStatusRunning); err != nil {
		return nil, err
	}
	sub, err := t.gw.SubmitImage(ctx, job.Provider, job.Model, ir)
	if err != nil {
		logging.With(ctx, t.log).Warn().Err(err).Str("provider", string(job.Provider)).Msg("image dispatch failed")
		return t.failJob(ctx, job, err)
	}
	job.RemoteToken = sub.Token
	job.UpdatedAt = t.clock.Now()
	if err := t.jobs.Update(ctx, repository.NoTX, job, model.JobStatusRunning); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return t.jobs.FindByID(ctx, repository.NoTX, job.ID)
		}
		return nil, err
	}
	if len(sub.Artifacts) == 0 {
		return job, nil
	}
	// Synchronous backend: artifacts are already here.
	if err := t.complete(ctx, job, sub.Artifacts); err != nil {
		return t.failJob(ctx, job, err)
	}
	return job, nil
}

// Check runs one reconciliation step. Terminal jobs come back as stored
// without contacting the backend.
func (t *JobTracker) Check(ctx context.Context, id string) (*model.Job, error) {
	job, err := t.jobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusRunning || job.Kind != model.JobKindImage {
		return job, nil
	}
	ctx = logging.WithJobID(ctx, job.ID)
	log := logging.With(ctx, t.log)

	if t.locker != nil {
		key := "genhub:job:" + job.ID
		token, err := t.locker.TryLock(ctx, key, t.cfg.LockTTL)
		if errors.Is(err, domain.ErrConflict) {
			return job, nil
		}
		if err != nil {
			log.Warn().Err(err).Msg("job lock unavailable, checking without it")
		} else {
			defer func() {
				if err := t.locker.Unlock(context.WithoutCancel(ctx), key, token); err != nil {
					log.Debug().Err(err).Msg("job unlock")
				}
			}()
			if job, err = t.jobs.FindByID(ctx, repository.NoTX, id); err != nil {
				return nil, err
			}
			if job.Status != model.JobStatusRunning {
				return job, nil
			}
		}
	}

	job.PollAttempts++
	metrics.IncJobPoll(string(job.Provider))

	// Dispatch has not recorded the remote token yet.
	if job.RemoteToken == "" {
		return t.settlePoll(ctx, job)
	}

	st, err := t.gw.ImageStatus(ctx, job.Provider, job.RemoteToken)
	if err != nil {
		log.Warn().Err(err).Int("attempt", job.PollAttempts).Msg("status check failed")
		return t.settlePoll(ctx, job)
	}

	switch st.State {
	case adapter.RemoteCompleted:
		if len(st.Artifacts) == 0 {
			return t.settleFailed(ctx, job, errNoOutput(job))
		}
		if err := t.complete(ctx, job, st.Artifacts); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return t.jobs.FindByID(ctx, repository.NoTX, id)
			}
			if errors.Is(err, domain.ErrNotConfigured) {
				return t.settleFailed(ctx, job, err)
			}
			log.Warn().Err(err).Msg("collecting artifacts failed")
			return t.settlePoll(ctx, job)
		}
		return job, nil
	case adapter.RemoteFailed:
		msg := st.Error
		if msg == "" {
			msg = "remote job failed"
		}
		return t.settleFailed(ctx, job, fmt.Errorf("%w: %s", domain.ErrUpstream, msg))
	}

	if st.Progress != nil {
		job.Progress = st.Progress
	}
	return t.settlePoll(ctx, job)
}

// settlePoll persists a non-terminal poll, or fails the job once the
// attempt budget is spent.
func (t *JobTracker) settlePoll(ctx context.Context, job *model.Job) (*model.Job, error) {
	if job.PollAttempts >= t.cfg.MaxAttempts {
		err := fmt.Errorf("%w: no result after %d status checks", domain.ErrTimeout, job.PollAttempts)
		return t.settleFailed(ctx, job, err)
	}
	job.UpdatedAt = t.clock.Now()
	if err := t.jobs.Update(ctx, repository.NoTX, job, model.JobStatusRunning); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return t.jobs.FindByID(ctx, repository.NoTX, job.ID)
		}
		return nil, err
	}
	return job, nil
}

// complete stores artifacts and the Result, then marks the job completed.
func (t *JobTracker) complete(ctx context.Context, job *model.Job, artifacts []adapter.Artifact) error {
	if len(artifacts) == 0 {
		return errNoOutput(job)
	}
	if t.store == nil {
		for _, a := range artifacts {
			if len(a.Data) > 0 {
				return fmt.Errorf("%w: %s returned image bytes but no artifact store is configured", domain.ErrNotConfigured, job.Provider)
			}
		}
	}
	res := &model.Result{ID: newID(), JobID: job.ID, Type: model.ResultTypeImage, CreatedAt: t.clock.Now()}
	var stored []string
	for _, a := range artifacts {
		ref := a.Filename
		if a.Subfolder != "" {
			ref = path.Join(a.Subfolder, a.Filename)
		}
		if t.store != nil {
			data, ct, err := t.gw.FetchArtifact(ctx, job.Provider, a)
			if err != nil {
				t.cleanup(ctx, stored)
				return err
			}
			key := path.Join(job.ID, path.Base(a.Filename))
			if err := t.store.Put(ctx, key, data, ct); err != nil {
				t.cleanup(ctx, stored)
				return err
			}
			stored = append(stored, key)
			ref = key
			if res.Width == 0 {
				if w, h, err := storage.ImageSize(data); err == nil {
					res.Width, res.Height = w, h
				}
			}
		}
		res.Files = append(res.Files, ref)
	}
	res.Content = res.Files[0]

	snapshot := *job
	err := t.withTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := t.results.Create(ctx, tx, res); err != nil {
			return err
		}
		job.ResultID = res.ID
		return t.advance(ctx, tx, job, model.JobStatusCompleted)
	})
	if err != nil {
		*job = snapshot
		t.cleanup(ctx, stored)
		return err
	}
	t.announce(ctx, job)
	return nil
}

func errNoOutput(job *model.Job) error {
	return &domain.UpstreamError{Provider: string(job.Provider), Body: "completed without output files"}
}

func (t *JobTracker) cleanup(ctx context.Context, keys []string) {
	for _, k := range keys {
		if err := t.store.Delete(context.WithoutCancel(ctx), k); err != nil {
			t.log.Warn().Err(err).Str("key", k).Msg("artifact cleanup")
		}
	}
}

// Await re-checks the job at the poll interval until it is terminal, the
// attempt budget runs out, or ctx ends.
func (t *JobTracker) Await(ctx context.Context, id string) (*model.Job, error) {
	for {
		job, err := t.Check(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.Terminal() || job.Status == model.JobStatusPending {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-t.clock.After(t.cfg.PollInterval):
		}
	}
}

// Retry moves a failed job back to pending and dispatches it again.
func (t *JobTracker) Retry(ctx context.Context, id string) (*model.Job, error) {
	job, err := t.jobs.FindByID(ctx, repository.NoTX, id)
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobStatusFailed {
		return nil, fmt.Errorf("%w: only failed jobs can be retried, job is %s", domain.ErrInvalidTransition, job.Status)
	}
	var (
		in chatInput
		ir adapter.ImageRequest
	)
	switch job.Kind {
	case model.JobKindText:
		err = json.Unmarshal(job.Input, &in)
	case model.JobKindImage:
		err = json.Unmarshal(job.Input, &ir)
	}
	if err != nil {
		return nil, fmt.Errorf("job %s: stored input unreadable: %w", job.ID, err)
	}
	if err := t.advance(ctx, repository.NoTX, job, model.JobStatusPending); err != nil {
		return nil, err
	}

	switch job.Kind {
	case model.JobKindText:
		return t.dispatchChat(ctx, job, in)
	case model.JobKindImage:
		return t.dispatchImage(ctx, job, ir)
	}
	return job, nil
}

func (t *JobTracker) Get(ctx context.Context, id string) (*model.Job, error) {
	return t.jobs.FindByID(ctx, repository.NoTX, id)
}

func (t *JobTracker) List(ctx context.Context, statuses []model.JobStatus, limit int) ([]*model.Job, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return t.jobs.List(ctx, repository.NoTX, statuses, limit)
}

// Watch reconciles running image jobs server-side until ctx ends. Each pass
// checks jobs concurrently; one slow backend does not hold up the others.
func (t *JobTracker) Watch(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.clock.After(t.cfg.PollInterval):
		}
		running, err := t.jobs.List(ctx, repository.NoTX, []model.JobStatus{model.JobStatusRunning}, 200)
		if err != nil {
			t.log.Warn().Err(err).Msg("watch: list running jobs")
			continue
		}
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(8)
		for _, j := range running {
			if j.Kind != model.JobKindImage {
				continue
			}
			eg.Go(func() error {
				if _, err := t.Check(egCtx, j.ID); err != nil {
					t.log.Warn().Err(err).Str("job_id", j.ID).Msg("watch: check")
				}
				return nil
			})
		}
		_ = eg.Wait()
	}
}

// failJob records err on the job and persists the failed state. The original
// error is returned so callers can map it.
func (t *JobTracker) failJob(ctx context.Context, job *model.Job, cause error) (*model.Job, error) {
	from := job.Status
	if err := job.Fail(cause.Error(), t.clock.Now()); err != nil {
		return nil, err
	}
	if err := t.jobs.Update(ctx, repository.NoTX, job, from); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return t.jobs.FindByID(ctx, repository.NoTX, job.ID)
		}
		return nil, err
	}
	metrics.IncJobTransition(string(job.Kind), string(from), string(job.Status))
	t.announce(ctx, job)
	return job, cause
}

// settleFailed fails the job from a reconciliation step. The check itself
// succeeded, so the stored failure is the answer rather than an error.
func (t *JobTracker) settleFailed(ctx context.Context, job *model.Job, cause error) (*model.Job, error) {
	failed, err := t.failJob(ctx, job, cause)
	if failed != nil {
		return failed, nil
	}
	return nil, err
}

// advance applies a state transition and writes it with compare-and-set on
// the previous status.
func (t *JobTracker) advance(ctx context.Context, tx repository.Tx, job *model.Job, to model.JobStatus) error {
	from := job.Status
	if err := job.Transition(to, t.clock.Now()); err != nil {
		return err
	}
	if err := t.jobs.Update(ctx, tx, job, from); err != nil {
		return err
	}
	metrics.IncJobTransition(string(job.Kind), string(from), string(to))
	return nil
}

func (t *JobTracker) withTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	if t.tx == nil {
		return fn(ctx, repository.NoTX)
	}
	return t.tx.WithTx(ctx, fn)
}

// announce publishes a terminal event. Failures are logged only.
func (t *JobTracker) announce(ctx context.Context, job *model.Job) {
	if t.notifier == nil || !job.Status.Terminal() {
		return
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := t.notifier.Publish(pctx, job.Event()); err != nil {
		logging.With(ctx, t.log).Warn().Err(err).Msg("job event not delivered")
	}
}

func historyOf(c *model.Conversation, limit int) []adapter.Message {
	recent := c.RecentMessages(limit)
	out := make([]adapter.Message, 0, len(recent))
	for _, m := range recent {
		out = append(out, adapter.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

func titleFrom(msgs []adapter.Message) string {
	for _, m := range msgs {
		if m.Role == model.RoleUser {
			r := []rune(m.Content)
			if len(r) > 60 {
				return string(r[:60]) + "..."
			}
			return string(r)
		}
	}
	return "New conversation"
}
