package handler

import (
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/pkg/response"
	"github.com/hyleo/genmedia_go_server/internal/repository"
	"github.com/hyleo/genmedia_go_server/internal/service"
	"github.com/hyleo/genmedia_go_server/internal/testutil"
)

func setupAccountHandler(t *testing.T) (*AccountHandler, *testContext, func()) {
	t.Helper()

	db := testutil.SetupTestDB(t)

	cfg := &config.Config{
		Billing: config.BillingConfig{StartingBalance: 100},
	}

	ledgerService := service.NewLedgerService(db,
		repository.NewAccountRepository(db), repository.NewTransactionRepository(db), cfg)
	handler := NewAccountHandler(ledgerService)

	ctx := &testContext{DB: db}

	cleanup := func() {
		testutil.CleanupTestDB(t, db)
	}

	return handler, ctx, cleanup
}

func TestAccountHandler_Get_Success(t *testing.T) {
	handler, ctx, cleanup := setupAccountHandler(t)
	defer cleanup()

	account := testutil.TestAccount(t, ctx.DB, testutil.WithBalance(250), testutil.WithTier("pro", 1000))

	router := gin.New()
	router.Use(mockAuth(account.ID))
	router.GET("/account", handler.Get)

	w := performRequest(router, "GET", "/account", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, response.CodeSuccess, resp.Code)

	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(account.ID), data["account_id"])
	assert.Equal(t, "pro", data["tier"])
	assert.Equal(t, float64(250), data["balance"])
	assert.Equal(t, float64(1000), data["monthly_allowance"])
}

func TestAccountHandler_Get_NotFound(t *testing.T) {
	handler, _, cleanup := setupAccountHandler(t)
	defer cleanup()

	router := gin.New()
	router.Use(mockAuth(99999))
	router.GET("/account", handler.Get)

	w := performRequest(router, "GET", "/account", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeResourceNotFound, resp.Code)
}

func TestAccountHandler_Get_Unauthorized(t *testing.T) {
	handler, _, cleanup := setupAccountHandler(t)
	defer cleanup()

	router := gin.New()
	router.GET("/account", handler.Get)

	w := performRequest(router, "GET", "/account", nil)
	resp := parseResponse(t, w)

	assert.Equal(t, response.CodeAuthFailed, resp.Code)
}

func TestAccountHandler_ListTransactions(t *testing.T) {
	handler, ctx, cleanup := setupAccountHandler(t)
	defer cleanup()

	account := testutil.TestAccount(t, ctx.DB)
	for i := 0; i < 3; i++ {
		testutil.TestTransaction(t, ctx.DB, account.ID, -10, model.TxKindGenerationDebit, nil)
	}
	testutil.TestTransaction(t, ctx.DB, account.ID, 10, model.TxKindRefund, nil)

	router := gin.New()
	router.Use(mockAuth(account.ID))
	router.GET("/transactions", handler.ListTransactions)

	t.Run("paged list", func(t *testing.T) {
		w := performRequest(router, "GET", "/transactions?page=1&page_size=3", nil)
		resp := parseResponse(t, w)

		assert.Equal(t, response.CodeSuccess, resp.Code)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(4), data["total"])
		assert.Len(t, data["items"], 3)
	})

	t.Run("filter by kind", func(t *testing.T) {
		w := performRequest(router, "GET", "/transactions?kind=refund", nil)
		resp := parseResponse(t, w)

		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), data["total"])
	})
}
