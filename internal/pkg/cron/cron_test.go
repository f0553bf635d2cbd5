package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
	"github.com/hyleo/genmedia_go_server/internal/testutil"
)

func setupCronService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	db := testutil.SetupTestDB(t)
	t.Cleanup(func() { testutil.CleanupTestDB(t, db) })

	cfg := &config.Config{}
	ledger := service.NewLedgerService(db, repository.NewAccountRepository(db), repository.NewTransactionRepository(db), cfg)
	reconcile := service.NewReconcileService(repository.NewGenerationRepository(db), ledger, nil)

	svc := NewService(ledger, reconcile, time.Hour, 10*time.Minute)
	return svc, db
}

func TestNewService_Defaults(t *testing.T) {
	svc := NewService(nil, nil, 0, 0)
	assert.NotNil(t, svc)
	assert.Equal(t, time.Hour, svc.staleAfter)
	assert.Equal(t, 10*time.Minute, svc.sweepInterval)
	assert.NotNil(t, svc.stopChan)
}

func TestService_StartAndStop(t *testing.T) {
	svc, _ := setupCronService(t)

	svc.Start()
	time.Sleep(10 * time.Millisecond)
	svc.Stop()
	time.Sleep(10 * time.Millisecond)
}

func TestService_StopBeforeStart(t *testing.T) {
	svc, _ := setupCronService(t)

	// Stop before start should not panic
	svc.Stop()
}

func TestService_RunNow(t *testing.T) {
	svc, db := setupCronService(t)
	account := testutil.TestAccount(t, db, testutil.WithBalance(50))

	// A stuck processing record should be swept by a manual run
	gen := testutil.TestGeneration(t, db, account.ID, model.StatusProcessing,
		testutil.WithCreatedAt(time.Now().Add(-2*time.Hour)), testutil.WithCredits(10))

	require.NoError(t, svc.RunNow())

	var updated model.Generation
	require.NoError(t, db.First(&updated, gen.ID).Error)
	assert.Equal(t, model.StatusFailed, updated.Status)

	var acc model.Account
	require.NoError(t, db.First(&acc, account.ID).Error)
	assert.Equal(t, int64(60), acc.Balance)
}

func TestService_RunNow_Empty(t *testing.T) {
	svc, _ := setupCronService(t)

	// Nothing to sweep - should not error
	assert.NoError(t, svc.RunNow())
}
