package worker

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/pkg/queue"
	"github.com/hyleo/genmedia_go_server/internal/provider"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
	"github.com/hyleo/genmedia_go_server/internal/testutil"
)

type stubProvider struct {
	pollJobFn func(ctx context.Context, handle string) (*provider.JobStatus, error)
}

func (s *stubProvider) GenerateSync(ctx context.Context, req *provider.GenerateRequest) (string, error) {
	return "", nil
}

func (s *stubProvider) SubmitJob(ctx context.Context, req *provider.GenerateRequest) (string, error) {
	return "", nil
}

func (s *stubProvider) PollJob(ctx context.Context, handle string) (*provider.JobStatus, error) {
	return s.pollJobFn(ctx, handle)
}

type stubStore struct {
	mu      sync.Mutex
	deleted []string
}

func (s *stubStore) MirrorMedia(ctx context.Context, generationID int64, sourceURL string) (string, error) {
	return fmt.Sprintf("https://cdn.example.com/media/%d/out.mp4", generationID), nil
}

func (s *stubStore) Delete(url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleted = append(s.deleted, url)
	return nil
}

type processorEnv struct {
	processor *Processor
	ledger    *service.LedgerService
	store     *stubStore
	db        *gorm.DB
}

func setupProcessor(t *testing.T, prov provider.Provider, pollBudgetSeconds int) *processorEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{
		Provider: config.ProviderConfig{
			PollIntervalSeconds: 1,
			PollBudgetSeconds:   pollBudgetSeconds,
		},
	}

	accountRepo := repository.NewAccountRepository(db)
	genRepo := repository.NewGenerationRepository(db)
	ledger := service.NewLedgerService(db, accountRepo, repository.NewTransactionRepository(db), cfg)
	store := &stubStore{}

	processor := NewProcessor(genRepo, accountRepo, ledger, prov, store, nil, cfg)

	return &processorEnv{processor: processor, ledger: ledger, store: store, db: db}
}

func TestProcessor_Success(t *testing.T) {
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			return &provider.JobStatus{
				Handle:    handle,
				State:     provider.JobStateSuccess,
				OutputURL: "https://provider.example.com/raw.mp4",
			}, nil
		},
	}
	env := setupProcessor(t, prov, 60)
	account := testutil.TestAccount(t, env.db, testutil.WithBalance(50))
	gen := testutil.TestGeneration(t, env.db, account.ID, model.StatusProcessing, testutil.WithKind(model.KindVideo))

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    account.ID,
		JobHandle:    "job-1",
	})
	require.NoError(t, err)

	var updated model.Generation
	require.NoError(t, env.db.First(&updated, gen.ID).Error)
	assert.Equal(t, model.StatusCompleted, updated.Status)
	assert.Contains(t, updated.OutputURL, "cdn.example.com")
	assert.NotNil(t, updated.CompletedAt)

	// 成功不退款，计数累加
	info, _ := env.ledger.GetAccount(account.ID)
	assert.Equal(t, int64(50), info.Balance)

	var acc model.Account
	require.NoError(t, env.db.First(&acc, account.ID).Error)
	assert.Equal(t, int64(1), acc.TotalGenerations)
	assert.Equal(t, int64(1), acc.TotalVideos)
}

func TestProcessor_RemoteFailureRefunds(t *testing.T) {
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			return &provider.JobStatus{
				Handle:        handle,
				State:         provider.JobStateFailed,
				FailureReason: "content policy violation",
			}, nil
		},
	}
	env := setupProcessor(t, prov, 60)
	account := testutil.TestAccount(t, env.db, testutil.WithBalance(50))
	gen := testutil.TestGeneration(t, env.db, account.ID, model.StatusProcessing,
		testutil.WithKind(model.KindVideo), testutil.WithCredits(30))

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    account.ID,
		JobHandle:    "job-1",
	})
	require.NoError(t, err)

	var updated model.Generation
	require.NoError(t, env.db.First(&updated, gen.ID).Error)
	assert.Equal(t, model.StatusFailed, updated.Status)
	assert.Contains(t, updated.ErrorMessage, "content policy violation")

	info, _ := env.ledger.GetAccount(account.ID)
	assert.Equal(t, int64(80), info.Balance)
}

func TestProcessor_PollTimeout(t *testing.T) {
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			return &provider.JobStatus{Handle: handle, State: provider.JobStateProcessing}, nil
		},
	}
	env := setupProcessor(t, prov, 1)
	account := testutil.TestAccount(t, env.db, testutil.WithBalance(50))
	gen := testutil.TestGeneration(t, env.db, account.ID, model.StatusProcessing,
		testutil.WithKind(model.KindVideo), testutil.WithCredits(30))

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    account.ID,
		JobHandle:    "job-1",
	})
	require.NoError(t, err)

	var updated model.Generation
	require.NoError(t, env.db.First(&updated, gen.ID).Error)
	assert.Equal(t, model.StatusFailed, updated.Status)
	assert.Contains(t, updated.ErrorMessage, "超时")

	info, _ := env.ledger.GetAccount(account.ID)
	assert.Equal(t, int64(80), info.Balance)
}

func TestProcessor_SkipsTerminalGeneration(t *testing.T) {
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			t.Fatal("poll should not be called for terminal generation")
			return nil, nil
		},
	}
	env := setupProcessor(t, prov, 60)
	account := testutil.TestAccount(t, env.db, testutil.WithBalance(50))
	gen := testutil.TestGeneration(t, env.db, account.ID, model.StatusFailed, testutil.WithKind(model.KindVideo))

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    account.ID,
		JobHandle:    "job-1",
	})
	require.NoError(t, err)

	// 终态记录原样保留，不退款
	info, _ := env.ledger.GetAccount(account.ID)
	assert.Equal(t, int64(50), info.Balance)
}

func TestProcessor_MissingGeneration(t *testing.T) {
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			return &provider.JobStatus{Handle: handle, State: provider.JobStateProcessing}, nil
		},
	}
	env := setupProcessor(t, prov, 60)

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: 99999,
		AccountID:    1,
		JobHandle:    "job-1",
	})
	assert.NoError(t, err)
}

func TestProcessor_CancelledDuringPollDropsArtifact(t *testing.T) {
	env := setupProcessor(t, nil, 60)
	account := testutil.TestAccount(t, env.db, testutil.WithBalance(50))
	gen := testutil.TestGeneration(t, env.db, account.ID, model.StatusProcessing,
		testutil.WithKind(model.KindVideo), testutil.WithCredits(30))

	// 轮询返回成功前用户取消了任务
	prov := &stubProvider{
		pollJobFn: func(ctx context.Context, handle string) (*provider.JobStatus, error) {
			ok, err := env.processor.gens.MarkFailed(gen.ID, "用户取消")
			require.NoError(t, err)
			require.True(t, ok)
			return &provider.JobStatus{
				Handle:    handle,
				State:     provider.JobStateSuccess,
				OutputURL: "https://provider.example.com/raw.mp4",
			}, nil
		},
	}
	env.processor.provider = prov

	err := env.processor.Process(context.Background(), &queue.VideoJobMessage{
		GenerationID: gen.ID,
		AccountID:    account.ID,
		JobHandle:    "job-1",
	})
	require.NoError(t, err)

	// 先写者（取消）胜出，转存的产物被丢弃
	var updated model.Generation
	require.NoError(t, env.db.First(&updated, gen.ID).Error)
	assert.Equal(t, model.StatusFailed, updated.Status)
	assert.Len(t, env.store.deleted, 1)
}
