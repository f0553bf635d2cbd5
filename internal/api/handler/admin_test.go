package handler

import (
	"fmt"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
	"github.com/hyleo/genmedia_go_server/internal/testutil"
)

func setupAdminHandler(t *testing.T) (*AdminHandler, *service.LedgerService, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	cfg := &config.Config{
		Billing: config.BillingConfig{
			StartingBalance: 50,
			AdminSecret:     "admin-secret",
			Tiers: map[string]config.TierConfig{
				"free": {MonthlyAllowance: 100},
			},
		},
		Reconcile: config.ReconcileConfig{StaleAfterMinutes: 60},
	}

	genRepo := repository.NewGenerationRepository(db)
	ledgerService := service.NewLedgerService(db,
		repository.NewAccountRepository(db), repository.NewTransactionRepository(db), cfg)
	reconcileService := service.NewReconcileService(genRepo, ledgerService, nil)

	handler := NewAdminHandler(ledgerService, reconcileService, cfg)

	ctx := &testContext{DB: db}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return handler, ledgerService, ctx, cleanup
}

func TestAdminHandler_AdjustCredits(t *testing.T) {
	handler, _, ctx, cleanup := setupAdminHandler(t)
	defer cleanup()

	account := testutil.TestAccount(t, ctx.DB, testutil.WithBalance(100))

	router := gin.New()
	router.POST("/adjust", handler.AdjustCredits)

	t.Run("grant credits", func(t *testing.T) {
		req := dto.AdjustCreditsRequest{AccountID: account.ID, Amount: 50, Description: "活动补偿"}
		w := performRequest(router, "POST", "/adjust", req)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeSuccess, resp.Code)

		var acc model.Account
		require.NoError(t, ctx.DB.First(&acc, account.ID).Error)
		assert.Equal(t, int64(150), acc.Balance)

		var tx model.Transaction
		require.NoError(t, ctx.DB.Where("account_id = ? AND kind = ?",
			account.ID, model.TxKindAdminAdjustment).First(&tx).Error)
		assert.Equal(t, int64(50), tx.Amount)
		assert.Equal(t, "活动补偿", tx.Description)
	})

	t.Run("deduct credits", func(t *testing.T) {
		req := dto.AdjustCreditsRequest{AccountID: account.ID, Amount: -30}
		w := performRequest(router, "POST", "/adjust", req)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeSuccess, resp.Code)

		var acc model.Account
		require.NoError(t, ctx.DB.First(&acc, account.ID).Error)
		assert.Equal(t, int64(120), acc.Balance)
	})

	t.Run("deduct beyond balance", func(t *testing.T) {
		req := dto.AdjustCreditsRequest{AccountID: account.ID, Amount: -100000}
		w := performRequest(router, "POST", "/adjust", req)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeInsufficientCredits, resp.Code)
	})

	t.Run("account not found", func(t *testing.T) {
		req := dto.AdjustCreditsRequest{AccountID: 99999, Amount: 10}
		w := performRequest(router, "POST", "/adjust", req)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	})

	t.Run("missing amount", func(t *testing.T) {
		w := performRequest(router, "POST", "/adjust", gin.H{"account_id": account.ID})
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeParamError, resp.Code)
	})
}

func TestAdminHandler_ReconcileCount(t *testing.T) {
	handler, _, ctx, cleanup := setupAdminHandler(t)
	defer cleanup()

	account := testutil.TestAccount(t, ctx.DB)
	staleTime := time.Now().Add(-2 * time.Hour)
	testutil.TestGeneration(t, ctx.DB, account.ID, model.StatusProcessing,
		testutil.WithCreatedAt(staleTime))
	testutil.TestGeneration(t, ctx.DB, account.ID, model.StatusPending,
		testutil.WithCreatedAt(staleTime))
	testutil.TestGeneration(t, ctx.DB, account.ID, model.StatusProcessing) // fresh

	router := gin.New()
	router.GET("/reconcile", handler.ReconcileCount)

	w := performRequest(router, "GET", "/reconcile", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["stuck_processing"])
	assert.Equal(t, float64(1), data["stuck_pending"])
	assert.Equal(t, float64(0), data["failed_cleanup"])
}

func TestAdminHandler_Reconcile(t *testing.T) {
	handler, _, ctx, cleanup := setupAdminHandler(t)
	defer cleanup()

	account := testutil.TestAccount(t, ctx.DB, testutil.WithBalance(50))
	staleTime := time.Now().Add(-2 * time.Hour)
	stuck := testutil.TestGeneration(t, ctx.DB, account.ID, model.StatusProcessing,
		testutil.WithCreatedAt(staleTime), testutil.WithCredits(30))

	router := gin.New()
	router.POST("/reconcile", handler.Reconcile)

	w := performRequest(router, "POST", "/reconcile", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), data["marked_failed"])

	var got model.Generation
	require.NoError(t, ctx.DB.First(&got, stuck.ID).Error)
	assert.Equal(t, model.StatusFailed, got.Status)

	var acc model.Account
	require.NoError(t, ctx.DB.First(&acc, account.ID).Error)
	assert.Equal(t, int64(80), acc.Balance)
}

func TestAdminHandler_VerifyLedger(t *testing.T) {
	handler, ledgerService, ctx, cleanup := setupAdminHandler(t)
	defer cleanup()

	account, err := ledgerService.ProvisionAccount(8001, "free")
	require.NoError(t, err)
	require.NoError(t, ledgerService.Credit(account.ID, 100, model.TxKindCreditPurchase, "充值", nil))

	router := gin.New()
	router.GET("/accounts/:id/verify", handler.VerifyLedger)

	t.Run("consistent ledger", func(t *testing.T) {
		w := performRequest(router, "GET", fmt.Sprintf("/accounts/%d/verify", account.ID), nil)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeSuccess, resp.Code)
		assert.Equal(t, "账本一致", resp.Message)
	})

	t.Run("tampered balance is detected", func(t *testing.T) {
		require.NoError(t, ctx.DB.Model(&model.Account{}).
			Where("id = ?", account.ID).Update("balance", 999999).Error)

		w := performRequest(router, "GET", fmt.Sprintf("/accounts/%d/verify", account.ID), nil)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeServerError, resp.Code)
	})

	t.Run("account not found", func(t *testing.T) {
		w := performRequest(router, "GET", "/accounts/99999/verify", nil)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeResourceNotFound, resp.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := performRequest(router, "GET", "/accounts/abc/verify", nil)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeParamError, resp.Code)
	})
}
