//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"genhub/internal/domain"
	"genhub/internal/domain/model"
	"genhub/internal/domain/ports/repository"
)

func TestJobRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewJobRepo(testPool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	job := model.NewJob("01JOB", model.JobKindImage, model.ProviderComfyUI, "sd15", json.RawMessage(`{"prompt":"a cat"}`), now)
	if err := repo.Create(ctx, nil, job); err != nil {
		t.Fatalf("create: %v", err)
	}

	t.Run("compare and set", func(t *testing.T) {
		job.RemoteToken = "p-1"
		if err := job.Transition(model.JobStatusRunning, now); err != nil {
			t.Fatal(err)
		}
		if err := repo.Update(ctx, nil, job, model.JobStatusPending); err != nil {
			t.Fatalf("update: %v", err)
		}
		// A second writer still believing the job is pending loses.
		stale := *job
		stale.Status = model.JobStatusFailed
		if err := repo.Update(ctx, nil, &stale, model.JobStatusPending); !errors.Is(err, domain.ErrConflict) {
			t.Fatalf("stale update = %v, want ErrConflict", err)
		}
		got, err := repo.FindByID(ctx, nil, job.ID)
		if err != nil {
			t.Fatal(err)
		}
		if got.Status != model.JobStatusRunning || got.RemoteToken != "p-1" {
			t.Fatalf("stored job = %+v", got)
		}
		if string(got.Input) == "" {
			t.Fatal("input lost")
		}
	})

	t.Run("list by status", func(t *testing.T) {
		other := model.NewJob("01JOC", model.JobKindText, model.ProviderOllama, "llama3", nil, now.Add(time.Second))
		if err := repo.Create(ctx, nil, other); err != nil {
			t.Fatal(err)
		}
		running, err := repo.List(ctx, nil, []model.JobStatus{model.JobStatusRunning}, 10)
		if err != nil || len(running) != 1 || running[0].ID != job.ID {
			t.Fatalf("running = %v, %v", running, err)
		}
		all, err := repo.List(ctx, nil, nil, 10)
		if err != nil || len(all) != 2 || all[0].ID != job.ID {
			t.Fatalf("all = %v, %v", all, err)
		}
	})

	t.Run("missing job", func(t *testing.T) {
		if _, err := repo.FindByID(ctx, nil, "nope"); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})
}

func TestResultRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	jobs := NewJobRepo(testPool)
	results := NewResultRepo(testPool)
	tm := NewTxManager(testPool)
	now := time.Now().UTC()

	job := model.NewJob("01JOB", model.JobKindImage, model.ProviderComfyUI, "sd15", nil, now)
	if err := jobs.Create(ctx, nil, job); err != nil {
		t.Fatal(err)
	}
	res := &model.Result{ID: "01RES", JobID: job.ID, Type: model.ResultTypeImage, Content: "01JOB/a.png", Files: []string{"01JOB/a.png"}, Width: 512, Height: 512, CreatedAt: now}

	err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := results.Create(ctx, tx, res); err != nil {
			return err
		}
		_ = job.Transition(model.JobStatusRunning, now)
		job.ResultID = res.ID
		_ = job.Transition(model.JobStatusCompleted, now)
		return jobs.Update(ctx, tx, job, model.JobStatusPending)
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}

	got, err := results.FindByJobID(ctx, nil, job.ID)
	if err != nil || got.Content != "01JOB/a.png" || len(got.Files) != 1 {
		t.Fatalf("by job = %+v, %v", got, err)
	}
	if err := results.Create(ctx, nil, &model.Result{ID: "01RES2", JobID: job.ID, Type: model.ResultTypeImage, CreatedAt: now}); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Fatalf("second result for a job = %v, want ErrAlreadyExists", err)
	}
	if err := results.Delete(ctx, nil, res.ID); err != nil {
		t.Fatal(err)
	}
	if err := results.Delete(ctx, nil, res.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete = %v", err)
	}
	j, _ := jobs.FindByID(ctx, nil, job.ID)
	if j.ResultID != "" {
		t.Fatalf("job still references deleted result: %q", j.ResultID)
	}
}

func TestTxRollback_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	jobs := NewJobRepo(testPool)
	tm := NewTxManager(testPool)

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		if err := jobs.Create(ctx, tx, model.NewJob("01JOB", model.JobKindText, model.ProviderOllama, "m", nil, time.Now())); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if _, err := jobs.FindByID(ctx, nil, "01JOB"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("rolled back job visible: %v", err)
	}
}

func TestCredentialRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewCredentialRepo(testPool)
	now := time.Now().UTC()

	c := &model.ProviderCredential{Provider: model.ProviderOpenAI, EncryptedSecret: "blob", Status: model.ConnectionUnknown, CreatedAt: now, UpdatedAt: now}
	if err := repo.Upsert(ctx, nil, c); err != nil {
		t.Fatal(err)
	}
	if err := repo.UpdateStatus(ctx, nil, model.ProviderOpenAI, model.ConnectionConnected, now); err != nil {
		t.Fatal(err)
	}
	got, err := repo.FindByProvider(ctx, nil, model.ProviderOpenAI)
	if err != nil || got.Status != model.ConnectionConnected || got.LastTestedAt == nil {
		t.Fatalf("after test = %+v, %v", got, err)
	}

	c.EncryptedSecret = "blob2"
	if err := repo.Upsert(ctx, nil, c); err != nil {
		t.Fatal(err)
	}
	got, _ = repo.FindByProvider(ctx, nil, model.ProviderOpenAI)
	if got.EncryptedSecret != "blob2" || got.Status != model.ConnectionUnknown {
		t.Fatalf("after re-save = %+v", got)
	}
	if err := repo.Delete(ctx, nil, model.ProviderOpenAI); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindByProvider(ctx, nil, model.ProviderOpenAI); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete = %v", err)
	}
	if err := repo.UpdateStatus(ctx, nil, model.ProviderGemini, model.ConnectionError, now); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("status of missing = %v", err)
	}
}

func TestConversationRepo_Integration(t *testing.T) {
	cleanup(t)
	ctx := context.Background()
	repo := NewConversationRepo(testPool)
	start := time.Now().UTC().Truncate(time.Microsecond)

	conv := model.NewConversation("01CONV", model.ProviderOllama, "llama3", "hello", start)
	if err := repo.Create(ctx, nil, conv); err != nil {
		t.Fatal(err)
	}
	m1 := conv.AddMessage("01M1", model.RoleUser, "hi", 0, start.Add(time.Second))
	m2 := conv.AddMessage("01M2", model.RoleAssistant, "hello!", 5, start.Add(2*time.Second))
	for _, m := range []model.Message{m1, m2} {
		if err := repo.AppendMessage(ctx, nil, &m); err != nil {
			t.Fatal(err)
		}
	}

	got, err := repo.FindByID(ctx, nil, conv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Messages) != 2 || got.Messages[0].ID != "01M1" || got.Messages[1].Tokens != 5 {
		t.Fatalf("messages = %+v", got.Messages)
	}
	if !got.UpdatedAt.Equal(start.Add(2 * time.Second)) {
		t.Fatalf("updated_at = %v, want %v", got.UpdatedAt, start.Add(2*time.Second))
	}
	if err := repo.Delete(ctx, nil, conv.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.FindByID(ctx, nil, conv.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("after delete = %v", err)
	}
}
