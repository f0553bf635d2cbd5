package testutil

import (
	"sync/atomic"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/internal/model"
)

var nextAccountID int64 = 1000

// TestAccount 创建测试账户
func TestAccount(t *testing.T, db *gorm.DB, opts ...func(*model.Account)) *model.Account {
	t.Helper()

	account := &model.Account{
		ID:               atomic.AddInt64(&nextAccountID, 1),
		Tier:             "free",
		Balance:          100,
		MonthlyAllowance: 100,
	}

	for _, opt := range opts {
		opt(account)
	}

	if err := db.Create(account).Error; err != nil {
		t.Fatalf("Failed to create test account: %v", err)
	}

	return account
}

// WithBalance 设置初始余额
func WithBalance(balance int64) func(*model.Account) {
	return func(a *model.Account) {
		a.Balance = balance
	}
}

// WithTier 设置套餐
func WithTier(tier string, allowance int64) func(*model.Account) {
	return func(a *model.Account) {
		a.Tier = tier
		a.MonthlyAllowance = allowance
	}
}

// TestGeneration 创建测试生成记录
func TestGeneration(t *testing.T, db *gorm.DB, accountID int64, status model.GenerationStatus, opts ...func(*model.Generation)) *model.Generation {
	t.Helper()

	gen := &model.Generation{
		AccountID:       accountID,
		Kind:            model.KindImage,
		ModelName:       "flux-dev",
		Prompt:          "a lighthouse at dusk",
		CreditsReserved: 10,
		Status:          status,
	}

	for _, opt := range opts {
		opt(gen)
	}
	backdate := gen.CreatedAt

	if err := db.Create(gen).Error; err != nil {
		t.Fatalf("Failed to create test generation: %v", err)
	}

	// gorm 的 Create 会覆盖 CreatedAt，陈旧记录需要显式回写
	if !backdate.IsZero() {
		if err := db.Model(gen).Update("created_at", backdate).Error; err != nil {
			t.Fatalf("Failed to backdate test generation: %v", err)
		}
		gen.CreatedAt = backdate
	}

	return gen
}

// WithKind 设置生成类型
func WithKind(kind string) func(*model.Generation) {
	return func(g *model.Generation) {
		g.Kind = kind
	}
}

// WithCredits 设置预留积分
func WithCredits(credits int64) func(*model.Generation) {
	return func(g *model.Generation) {
		g.CreditsReserved = credits
	}
}

// WithCreatedAt 设置创建时间（构造陈旧记录）
func WithCreatedAt(at time.Time) func(*model.Generation) {
	return func(g *model.Generation) {
		g.CreatedAt = at
	}
}

// WithOutputURL 设置产物位置
func WithOutputURL(url string) func(*model.Generation) {
	return func(g *model.Generation) {
		g.OutputURL = url
	}
}

// TestTransaction 创建测试交易记录
func TestTransaction(t *testing.T, db *gorm.DB, accountID, amount int64, kind string, referenceID *int64) *model.Transaction {
	t.Helper()

	tx := &model.Transaction{
		AccountID:    accountID,
		Amount:       amount,
		Kind:         kind,
		ReferenceID:  referenceID,
		BalanceAfter: 0,
	}

	if err := db.Create(tx).Error; err != nil {
		t.Fatalf("Failed to create test transaction: %v", err)
	}

	return tx
}
