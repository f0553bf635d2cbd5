package service

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/config"
	"github.com/hyleo/genmedia_go_server/internal/model"
	"github.com/hyleo/genmedia_go_server/internal/model/dto"
	"github.com/hyleo/genmedia_go_server/internal/repository"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrInvalidAmount   = errors.New("金额必须为正数")
	ErrInvalidTxKind   = errors.New("不支持的交易类型")
)

// InsufficientCreditsError 余额不足，携带缺口信息
type InsufficientCreditsError struct {
	Required int64
	Balance  int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("积分不足: 需要 %d, 当前余额 %d", e.Required, e.Balance)
}

func (e *InsufficientCreditsError) Deficit() int64 {
	return e.Required - e.Balance
}

type LedgerService struct {
	db       *gorm.DB
	accounts *repository.AccountRepository
	txs      *repository.TransactionRepository
	cfg      *config.Config
}

func NewLedgerService(db *gorm.DB, accounts *repository.AccountRepository, txs *repository.TransactionRepository, cfg *config.Config) *LedgerService {
	return &LedgerService{
		db:       db,
		accounts: accounts,
		txs:      txs,
		cfg:      cfg,
	}
}

// ProvisionAccount 开通账户，ID 由外部身份服务分配
// 重复开通返回已有账户，不报错
func (s *LedgerService) ProvisionAccount(accountID int64, tier string) (*model.Account, error) {
	if existing, err := s.accounts.GetByID(accountID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if tier == "" {
		tier = "free"
	}

	allowance := int64(0)
	if tierCfg, ok := s.cfg.Billing.Tiers[tier]; ok {
		allowance = tierCfg.MonthlyAllowance
	}

	account := &model.Account{
		ID:               accountID,
		Tier:             tier,
		Balance:          s.cfg.Billing.StartingBalance,
		MonthlyAllowance: allowance,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.accounts.WithTx(tx).Create(account); err != nil {
			return err
		}
		if account.Balance > 0 {
			return s.txs.WithTx(tx).Create(&model.Transaction{
				AccountID:    accountID,
				Amount:       account.Balance,
				Kind:         model.TxKindSubscriptionCredit,
				Description:  "开户赠送积分",
				BalanceAfter: account.Balance,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return account, nil
}

// GetAccount 获取账户信息
func (s *LedgerService) GetAccount(accountID int64) (*dto.AccountInfo, error) {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return &dto.AccountInfo{
		AccountID:        account.ID,
		Tier:             account.Tier,
		Balance:          account.Balance,
		MonthlyAllowance: account.MonthlyAllowance,
		TotalGenerations: account.TotalGenerations,
		TotalImages:      account.TotalImages,
		TotalVideos:      account.TotalVideos,
	}, nil
}

// HasSufficientBalance 提交前的预检查，不加锁，最终以 Debit 的条件更新为准
func (s *LedgerService) HasSufficientBalance(accountID, amount int64) (bool, error) {
	if amount <= 0 {
		return false, ErrInvalidAmount
	}

	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrAccountNotFound
		}
		return false, err
	}
	return account.Balance >= amount, nil
}

// Debit 扣减余额并写审计记录，整体在一个事务内
// 条件更新失败时区分余额不足和账户不存在
func (s *LedgerService) Debit(accountID, amount int64, description string, referenceID *int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)

		ok, err := accounts.DecrementBalance(accountID, amount)
		if err != nil {
			return err
		}
		if !ok {
			account, err := accounts.GetByID(accountID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			return &InsufficientCreditsError{Required: amount, Balance: account.Balance}
		}

		account, err := accounts.GetByID(accountID)
		if err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&model.Transaction{
			AccountID:    accountID,
			Amount:       -amount,
			Kind:         model.TxKindGenerationDebit,
			Description:  description,
			ReferenceID:  referenceID,
			BalanceAfter: account.Balance,
		})
	})
}

// Credit 入账并写审计记录
func (s *LedgerService) Credit(accountID, amount int64, kind, description string, referenceID *int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	switch kind {
	case model.TxKindSubscriptionCredit, model.TxKindCreditPurchase, model.TxKindRefund, model.TxKindAdminAdjustment:
	default:
		return ErrInvalidTxKind
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)

		ok, err := accounts.IncrementBalance(accountID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAccountNotFound
		}

		account, err := accounts.GetByID(accountID)
		if err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&model.Transaction{
			AccountID:    accountID,
			Amount:       amount,
			Kind:         kind,
			Description:  description,
			ReferenceID:  referenceID,
			BalanceAfter: account.Balance,
		})
	})
}

// Refund 按生成记录退款，同一条生成记录只会退一次
// 重复调用静默成功，worker 和对账任务可以放心重试
func (s *LedgerService) Refund(accountID, amount, referenceID int64, description string) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		txRepo := s.txs.WithTx(tx)

		exists, err := txRepo.ExistsRefundForReference(referenceID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		accounts := s.accounts.WithTx(tx)
		ok, err := accounts.IncrementBalance(accountID, amount)
		if err != nil {
			return err
		}
		if !ok {
			return ErrAccountNotFound
		}

		account, err := accounts.GetByID(accountID)
		if err != nil {
			return err
		}

		return txRepo.Create(&model.Transaction{
			AccountID:    accountID,
			Amount:       amount,
			Kind:         model.TxKindRefund,
			Description:  description,
			ReferenceID:  &referenceID,
			BalanceAfter: account.Balance,
		})
	})
}

// AdminAdjust 管理员手工调整，正负皆可，任何调整都留审计记录
// 负向调整同样不允许把余额打成负数
func (s *LedgerService) AdminAdjust(accountID, amount int64, description string) error {
	if amount == 0 {
		return ErrInvalidAmount
	}
	if description == "" {
		description = "管理员手工调整"
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		accounts := s.accounts.WithTx(tx)

		var ok bool
		var err error
		if amount > 0 {
			ok, err = accounts.IncrementBalance(accountID, amount)
		} else {
			ok, err = accounts.DecrementBalance(accountID, -amount)
		}
		if err != nil {
			return err
		}
		if !ok {
			account, err := accounts.GetByID(accountID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrAccountNotFound
				}
				return err
			}
			return &InsufficientCreditsError{Required: -amount, Balance: account.Balance}
		}

		account, err := accounts.GetByID(accountID)
		if err != nil {
			return err
		}

		return s.txs.WithTx(tx).Create(&model.Transaction{
			AccountID:    accountID,
			Amount:       amount,
			Kind:         model.TxKindAdminAdjustment,
			Description:  description,
			BalanceAfter: account.Balance,
		})
	})
}

// ListTransactions 分页查询交易记录
func (s *LedgerService) ListTransactions(accountID int64, page, pageSize int, kind string) ([]*dto.TransactionItem, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	txs, total, err := s.txs.ListByAccountID(accountID, page, pageSize, kind)
	if err != nil {
		return nil, 0, err
	}

	items := make([]*dto.TransactionItem, 0, len(txs))
	for _, tx := range txs {
		items = append(items, &dto.TransactionItem{
			ID:           tx.ID,
			Amount:       tx.Amount,
			Kind:         tx.Kind,
			Description:  tx.Description,
			ReferenceID:  tx.ReferenceID,
			BalanceAfter: tx.BalanceAfter,
			CreatedAt:    tx.CreatedAt.Format(time.RFC3339),
		})
	}

	return items, total, nil
}

// VerifyLedger 回放账户全部交易，校验流水与当前余额一致
// 开户前余额为 0，所以回放累加和应等于当前余额
func (s *LedgerService) VerifyLedger(accountID int64) error {
	account, err := s.accounts.GetByID(accountID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAccountNotFound
		}
		return err
	}

	txs, err := s.txs.ListByAccountIDAsc(accountID)
	if err != nil {
		return err
	}

	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
		if tx.BalanceAfter != sum {
			return fmt.Errorf("账户 %d 交易 %d 余额快照不一致: 回放 %d, 记录 %d", accountID, tx.ID, sum, tx.BalanceAfter)
		}
	}

	if sum != account.Balance {
		return fmt.Errorf("账户 %d 流水回放结果 %d 与当前余额 %d 不一致", accountID, sum, account.Balance)
	}

	return nil
}

// GrantMonthlyAllowances 按档位给所有账户发放月度积分，月初定时任务调用
func (s *LedgerService) GrantMonthlyAllowances() error {
	accounts, err := s.accounts.ListWithAllowance()
	if err != nil {
		return err
	}

	for _, account := range accounts {
		err := s.Credit(account.ID, account.MonthlyAllowance, model.TxKindSubscriptionCredit, "月度积分发放", nil)
		if err != nil {
			log.Printf("Grant allowance failed for account %d: %v", account.ID, err)
		}
	}

	return nil
}
