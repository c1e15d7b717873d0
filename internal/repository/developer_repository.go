package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/eidos-exchange/eidos-ads/internal/model"
)

var (
	ErrDeveloperNotFound = errors.New("developer not found")
	// ErrWalletConflict 钱包或推荐码唯一索引冲突
	ErrWalletConflict = errors.New("wallet already bound")
	// ErrWalletImmutable 钱包一经绑定不可变更
	ErrWalletImmutable = errors.New("wallet already set")
)

// DeveloperRepository 开发者仓储接口
type DeveloperRepository interface {
	Create(ctx context.Context, dev *model.Developer) error
	GetByID(ctx context.Context, id string) (*model.Developer, error)
	GetByWallet(ctx context.Context, wallet string) (*model.Developer, error)
	// BindWallet 绑定钱包和推荐码，仅当两者均未设置时生效
	BindWallet(ctx context.Context, id, wallet, referralCode string) error
}

// developerRepository 开发者仓储实现
type developerRepository struct {
	*Repository
}

// NewDeveloperRepository 创建开发者仓储
func NewDeveloperRepository(db *gorm.DB) DeveloperRepository {
	return &developerRepository{
		Repository: NewRepository(db),
	}
}

func (r *developerRepository) Create(ctx context.Context, dev *model.Developer) error {
	now := time.Now().UnixMilli()
	dev.CreatedAt = now
	dev.UpdatedAt = now
	err := r.DB(ctx).Create(dev).Error
	if IsUniqueViolation(err) {
		return ErrWalletConflict
	}
	return err
}

func (r *developerRepository) GetByID(ctx context.Context, id string) (*model.Developer, error) {
	var dev model.Developer
	err := r.DB(ctx).Where("id = ?", id).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeveloperNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (r *developerRepository) GetByWallet(ctx context.Context, wallet string) (*model.Developer, error) {
	var dev model.Developer
	err := r.DB(ctx).Where("wallet_address = ?", wallet).First(&dev).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeveloperNotFound
	}
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (r *developerRepository) BindWallet(ctx context.Context, id, wallet, referralCode string) error {
	result := r.DB(ctx).Model(&model.Developer{}).
		Where("id = ? AND wallet_address IS NULL", id).
		Updates(map[string]interface{}{
			"wallet_address": wallet,
			"referral_code":  referralCode,
			"updated_at":     time.Now().UnixMilli(),
		})
	if result.Error != nil {
		if IsUniqueViolation(result.Error) {
			return ErrWalletConflict
		}
		return result.Error
	}
	if result.RowsAffected == 0 {
		// 开发者不存在，或钱包已绑定
		var dev model.Developer
		err := r.DB(ctx).Where("id = ?", id).First(&dev).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeveloperNotFound
		}
		if err != nil {
			return err
		}
		return ErrWalletImmutable
	}
	return nil
}
