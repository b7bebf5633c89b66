package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/adapter"
	"genhub/internal/domain/ports/repository"
)

// ---- clock ----

// fakeClock advances virtual time whenever a caller waits on it.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	t := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- t
	return ch
}

// ---- repositories ----

// snapshotTx restores the conversation and job stores when fn fails.
type snapshotTx struct {
	jobs  *memJobRepo
	convs *memConvRepo
}

func (s snapshotTx) WithTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.jobs.mu.Lock()
	jobs := make(map[string]model.Job, len(s.jobs.store))
	for k, v := range s.jobs.store {
		jobs[k] = v
	}
	s.jobs.mu.Unlock()
	s.convs.mu.Lock()
	convs := make(map[string]*model.Conversation, len(s.convs.store))
	for k, v := range s.convs.store {
		convs[k] = v
	}
	s.convs.mu.Unlock()

	if err := fn(ctx, struct{}{}); err != nil {
		s.jobs.mu.Lock()
		s.jobs.store = jobs
		s.jobs.mu.Unlock()
		s.convs.mu.Lock()
		s.convs.store = convs
		s.convs.mu.Unlock()
		return err
	}
	return nil
}

type memJobRepo struct {
	mu        sync.Mutex
	store     map[string]model.Job
	createErr error
}

func newMemJobRepo() *memJobRepo { return &memJobRepo{store: make(map[string]model.Job)} }

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if _, ok := m.store[job.ID]; ok {
		return domain.ErrAlreadyExists
	}
	m.store[job.ID] = *job
	return nil
}

func (m *memJobRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &j, nil
}

func (m *memJobRepo) List(ctx context.Context, tx repository.Tx, statuses []model.JobStatus, limit int) ([]*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Job
	for _, j := range m.store {
		if len(statuses) > 0 {
			match := false
			for _, s := range statuses {
				match = match || j.Status == s
			}
			if !match {
				continue
			}
		}
		cp := j
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.Before(out[b].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memJobRepo) Update(ctx context.Context, tx repository.Tx, job *model.Job, expected model.JobStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.store[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if cur.Status != expected {
		return fmt.Errorf("job %s is %s: %w", job.ID, cur.Status, domain.ErrConflict)
	}
	m.store[job.ID] = *job
	return nil
}

func (m *memJobRepo) get(id string) model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store[id]
}

type memResultRepo struct {
	mu    sync.Mutex
	store map[string]model.Result
}

func newMemResultRepo() *memResultRepo { return &memResultRepo{store: make(map[string]model.Result)} }

func (m *memResultRepo) Create(ctx context.Context, tx repository.Tx, r *model.Result) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.store {
		if existing.JobID == r.JobID {
			return domain.ErrAlreadyExists
		}
	}
	m.store[r.ID] = *r
	return nil
}

func (m *memResultRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &r, nil
}

func (m *memResultRepo) FindByJobID(ctx context.Context, tx repository.Tx, jobID string) (*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.store {
		if r.JobID == jobID {
			cp := r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *memResultRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Result
	for _, r := range m.store {
		cp := r
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memResultRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

type memCredRepo struct {
	mu    sync.Mutex
	store map[model.ProviderID]model.ProviderCredential
}

func newMemCredRepo() *memCredRepo {
	return &memCredRepo{store: make(map[model.ProviderID]model.ProviderCredential)}
}

func (m *memCredRepo) Upsert(ctx context.Context, tx repository.Tx, c *model.ProviderCredential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[c.Provider] = *c
	return nil
}

func (m *memCredRepo) FindByProvider(ctx context.Context, tx repository.Tx, p model.ProviderID) (*model.ProviderCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[p]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &c, nil
}

func (m *memCredRepo) List(ctx context.Context, tx repository.Tx) ([]*model.ProviderCredential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.ProviderCredential
	for _, c := range m.store {
		cp := c
		out = append(out, &cp)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Provider < out[b].Provider })
	return out, nil
}

func (m *memCredRepo) Delete(ctx context.Context, tx repository.Tx, p model.ProviderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[p]; !ok {
		return domain.ErrNotFound
	}
	delete(m.store, p)
	return nil
}

func (m *memCredRepo) UpdateStatus(ctx context.Context, tx repository.Tx, p model.ProviderID, status model.ConnectionStatus, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[p]
	if !ok {
		return domain.ErrNotFound
	}
	c.Status = status
	c.LastTestedAt = &at
	m.store[p] = c
	return nil
}

type memConvRepo struct {
	mu    sync.Mutex
	store map[string]*model.Conversation
}

func newMemConvRepo() *memConvRepo { return &memConvRepo{store: make(map[string]*model.Conversation)} }

func (m *memConvRepo) Create(ctx context.Context, tx repository.Tx, c *model.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	cp.Messages = append([]model.Message(nil), c.Messages...)
	m.store[c.ID] = &cp
	return nil
}

func (m *memConvRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	cp.Messages = append([]model.Message(nil), c.Messages...)
	return &cp, nil
}

func (m *memConvRepo) List(ctx context.Context, tx repository.Tx, offset, limit int) ([]*model.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Conversation
	for _, c := range m.store {
		cp := *c
		cp.Messages = nil
		out = append(out, &cp)
	}
	return out, nil
}

func (m *memConvRepo) AppendMessage(ctx context.Context, tx repository.Tx, msg *model.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.store[msg.ConversationID]
	if !ok {
		return domain.ErrNotFound
	}
	c.Messages = append(c.Messages, *msg)
	if msg.CreatedAt.After(c.UpdatedAt) {
		c.UpdatedAt = msg.CreatedAt
	}
	return nil
}

func (m *memConvRepo) Delete(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.store, id)
	return nil
}

// ---- ports ----

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	putErr  error
}

func newMemStore() *memStore { return &memStore{objects: make(map[string][]byte)} }

func (s *memStore) Put(ctx context.Context, key string, data []byte, ct string) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return nil
}

func (s *memStore) Get(ctx context.Context, key string) ([]byte, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, "", domain.ErrNotFound
	}
	return b, "image/png", nil
}

func (s *memStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []model.JobEvent
}

func (n *recordingNotifier) Publish(ctx context.Context, ev model.JobEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type memLocker struct {
	mu   sync.Mutex
	held map[string]string
}

func newMemLocker() *memLocker { return &memLocker{held: make(map[string]string)} }

func (l *memLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", domain.ErrConflict
	}
	tok := newID()
	l.held[key] = tok
	return tok, nil
}

func (l *memLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
	}
	return nil
}

// fakeBackend is a scriptable chat + image provider that counts calls.
type fakeBackend struct {
	mu sync.Mutex

	id         model.ProviderID
	reply      adapter.ChatResult
	chatErr    error
	submitErr  error
	syncImages []adapter.Artifact
	statuses   []adapter.RemoteStatus // consumed in order; the last one repeats
	statusErr  error
	loaded     []adapter.LoadedModel

	chatCalls, submitCalls, statusCalls, fetchCalls int
	lastMessages                                    []adapter.Message
	lastImage                                       adapter.ImageRequest
	lastConfig                                      adapter.ProviderConfig
}

func (f *fakeBackend) ID() model.ProviderID { return f.id }

func (f *fakeBackend) ListModels(ctx context.Context) ([]string, error) {
	if f.chatErr != nil {
		return nil, f.chatErr
	}
	return []string{"m1", "m2"}, nil
}

func (f *fakeBackend) Chat(ctx context.Context, modelName string, msgs []adapter.Message) (adapter.ChatResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatCalls++
	f.lastMessages = msgs
	return f.reply, f.chatErr
}

func (f *fakeBackend) SubmitImage(ctx context.Context, modelName string, req adapter.ImageRequest) (adapter.Submission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitCalls++
	f.lastImage = req
	if f.submitErr != nil {
		return adapter.Submission{}, f.submitErr
	}
	return adapter.Submission{Token: fmt.Sprintf("prompt-%d", f.submitCalls), Artifacts: f.syncImages}, nil
}

func (f *fakeBackend) ImageStatus(ctx context.Context, token string) (adapter.RemoteStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++
	if f.statusErr != nil {
		return adapter.RemoteStatus{}, f.statusErr
	}
	if len(f.statuses) == 0 {
		return adapter.RemoteStatus{State: adapter.RemoteRunning}, nil
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st, nil
}

func (f *fakeBackend) FetchArtifact(ctx context.Context, a adapter.Artifact) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls++
	return []byte("bytes-of-" + a.Filename), "image/png", nil
}

func (f *fakeBackend) LoadedModels(ctx context.Context) ([]adapter.LoadedModel, error) {
	return f.loaded, nil
}

func (f *fakeBackend) UnloadModel(ctx context.Context, modelName string) error {
	f.loaded = nil
	return nil
}

func (f *fakeBackend) spec(needsCred bool) adapter.ProviderSpec {
	return adapter.ProviderSpec{
		ID:              f.id,
		NeedsCredential: needsCred,
		DefaultEndpoint: "http://default.local",
		MaxConcurrent:   2,
		New: func(ctx context.Context, cfg adapter.ProviderConfig) (adapter.Provider, error) {
			f.mu.Lock()
			f.lastConfig = cfg
			f.mu.Unlock()
			return f, nil
		},
	}
}

// plainVault is a reversible stand-in for the AES vault.
type plainVault struct{ fail bool }

func (v plainVault) Encrypt(s string) (string, error) { return "enc:" + s, nil }

func (v plainVault) Decrypt(s string) (string, error) {
	if v.fail || len(s) < 4 || s[:4] != "enc:" {
		return "", errors.New("cipher: message authentication failed")
	}
	return s[4:], nil
}
