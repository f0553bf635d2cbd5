package repository

import (
	"gorm.io/gorm"

	"github.com/hyleo/genmedia_go_server/internal/model"
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// WithTx 返回绑定到事务的仓库
func (r *AccountRepository) WithTx(tx *gorm.DB) *AccountRepository {
	return &AccountRepository{db: tx}
}

func (r *AccountRepository) Create(account *model.Account) error {
	return r.db.Create(account).Error
}

func (r *AccountRepository) GetByID(id int64) (*model.Account, error) {
	var account model.Account
	err := r.db.Where("id = ?", id).First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) ExistsByID(id int64) (bool, error) {
	var count int64
	err := r.db.Model(&model.Account{}).Where("id = ?", id).Count(&count).Error
	return count > 0, err
}

// DecrementBalance 条件扣减余额，余额不足或账户不存在时不做任何修改
// 单条条件 UPDATE 保证同一账户的并发扣减串行化
func (r *AccountRepository) DecrementBalance(id, amount int64) (bool, error) {
	result := r.db.Model(&model.Account{}).
		Where("id = ? AND balance >= ?", id, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementBalance 增加余额，返回 false 表示账户不存在
func (r *AccountRepository) IncrementBalance(id, amount int64) (bool, error) {
	result := r.db.Model(&model.Account{}).
		Where("id = ?", id).
		Update("balance", gorm.Expr("balance + ?", amount))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// IncrementUsageCounters 成功完成后累加用量计数
func (r *AccountRepository) IncrementUsageCounters(id int64, kind string) error {
	updates := map[string]interface{}{
		"total_generations": gorm.Expr("total_generations + 1"),
	}
	switch kind {
	case model.KindImage:
		updates["total_images"] = gorm.Expr("total_images + 1")
	case model.KindVideo:
		updates["total_videos"] = gorm.Expr("total_videos + 1")
	}
	return r.db.Model(&model.Account{}).Where("id = ?", id).Updates(updates).Error
}

// ListWithAllowance 月度发放对象：配置了月度积分的账户
func (r *AccountRepository) ListWithAllowance() ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.Where("monthly_allowance > 0").Order("id ASC").Find(&accounts).Error
	return accounts, err
}

func (r *AccountRepository) UpdateFields(id int64, fields map[string]interface{}) error {
	return r.db.Model(&model.Account{}).Where("id = ?", id).Updates(fields).Error
}
