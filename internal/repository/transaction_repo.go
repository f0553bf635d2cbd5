package repository

import (
	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/internal/model"
)

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *TransactionRepository) WithTx(tx *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: tx}
}

func (r *TransactionRepository) Create(tx *model.Transaction) error {
	return r.db.Create(tx).Error
}

func (r *TransactionRepository) GetByID(id int64) (*model.Transaction, error) {
	var tx model.Transaction
	err := r.db.Where("id = ?", id).First(&tx).Error
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// ListByAccountID 按时间倒序分页，kind 为空时不过滤
func (r *TransactionRepository) ListByAccountID(accountID int64, page, pageSize int, kind string) ([]*model.Transaction, int64, error) {
	query := r.db.Model(&model.Transaction{}).Where("account_id = ?", accountID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var txs []*model.Transaction
	err := query.Order("created_at DESC, id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&txs).Error
	return txs, total, err
}

// ListByAccountIDAsc 按创建顺序返回账户全部交易（审计回放用）
func (r *TransactionRepository) ListByAccountIDAsc(accountID int64) ([]*model.Transaction, error) {
	var txs []*model.Transaction
	err := r.db.Where("account_id = ?", accountID).
		Order("id ASC").
		Find(&txs).Error
	return txs, err
}

// ExistsRefundForReference 退款幂等检查：该生成记录是否已有退款交易
func (r *TransactionRepository) ExistsRefundForReference(referenceID int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Transaction{}).
		Where("reference_id = ? AND kind = ?", referenceID, model.TxKindRefund).
		Count(&count).Error
	return count > 0, err
}
